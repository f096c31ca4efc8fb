// Package websocket connects a session to an action-emitting backend over a
// websocket: audio goes out as binary frames, action envelopes come back as
// text frames.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"transcribe-stream-service/internal/observability/logging"
	"transcribe-stream-service/internal/service/transport"
)

// Config controls the backend connection.
type Config struct {
	URL    string
	APIKey string

	// ConnectTimeout bounds the websocket handshake.
	ConnectTimeout time.Duration
	// CloseTimeout bounds how long Disconnect waits for the backend to
	// close the socket after the end-of-stream message.
	CloseTimeout time.Duration
	// EndOfStream is sent as a text frame once no more audio follows.
	EndOfStream string
}

// DefaultConfig returns sensible defaults for everything but URL and APIKey.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		CloseTimeout:   5 * time.Second,
		EndOfStream:    `{"type":"CloseStream"}`,
	}
}

// Transport implements transport.Transport over gorilla/websocket.
type Transport struct {
	cfg    Config
	dialer *websocket.Dialer
	logger zerolog.Logger

	conn     *websocket.Conn
	listener transport.Listener

	audio    chan []byte
	readDone chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	localClose    atomic.Bool
	sendMu        sync.RWMutex
	sendClosed    bool
}

// New creates an unconnected transport.
func New(sessionID string, cfg Config) *Transport {
	def := DefaultConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = def.CloseTimeout
	}
	if cfg.EndOfStream == "" {
		cfg.EndOfStream = def.EndOfStream
	}
	return &Transport{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.ConnectTimeout,
		},
		logger:   logging.WithTransport(sessionID, "websocket"),
		audio:    make(chan []byte, 64),
		readDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Connect dials the backend and starts the read and write loops.
func (t *Transport) Connect(ctx context.Context, l transport.Listener) error {
	if t.cfg.URL == "" {
		return errors.New("websocket transport: URL is not configured")
	}

	headers := http.Header{}
	if t.cfg.APIKey != "" {
		headers.Set("Authorization", "Token "+t.cfg.APIKey)
	}

	dialCtx, cancel := context.WithTimeout(ctx, t.cfg.ConnectTimeout)
	defer cancel()

	conn, _, err := t.dialer.DialContext(dialCtx, t.cfg.URL, headers)
	if err != nil {
		return fmt.Errorf("failed to connect to backend websocket: %w", err)
	}
	t.conn = conn
	t.listener = l

	t.logger.Info().Str("url", t.cfg.URL).Msg("Backend websocket connected")
	l.OnOpen()

	t.wg.Add(2)
	go t.readLoop()
	go t.writeLoop()
	go func() {
		t.wg.Wait()
		_ = conn.Close()
		if err := t.waitErr(); err != nil {
			l.OnError(err)
		}
		close(t.done)
		l.OnClose()
	}()

	return nil
}

// Send queues one audio frame.
func (t *Transport) Send(ctx context.Context, audio []byte) error {
	if len(audio) == 0 {
		return nil
	}

	t.sendMu.RLock()
	defer t.sendMu.RUnlock()
	if t.sendClosed {
		return transport.ErrClosed
	}

	select {
	case <-t.done:
		return t.closedErr()
	default:
	}

	copied := append([]byte(nil), audio...)
	select {
	case t.audio <- copied:
		return nil
	case <-t.done:
		return t.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect sends end-of-stream and waits up to CloseTimeout for the
// backend to close the socket before closing it locally.
func (t *Transport) Disconnect() error {
	if t.conn == nil {
		return nil
	}
	t.closeSend()

	select {
	case <-t.done:
	case <-time.After(t.cfg.CloseTimeout):
		t.logger.Warn().Dur("closeTimeout", t.cfg.CloseTimeout).Msg("Backend did not close in time, closing socket")
		t.closeOnce.Do(func() {
			t.localClose.Store(true)
			_ = t.conn.Close()
		})
		<-t.done
	}
	return t.waitErr()
}

func (t *Transport) closeSend() {
	t.closeSendOnce.Do(func() {
		t.sendMu.Lock()
		t.sendClosed = true
		close(t.audio)
		t.sendMu.Unlock()
	})
}

func (t *Transport) closedErr() error {
	if err := t.waitErr(); err != nil {
		return err
	}
	return transport.ErrClosed
}

func (t *Transport) waitErr() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

func (t *Transport) setErr(msg string, err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}
	if t.localClose.Load() && errors.Is(err, net.ErrClosed) {
		return
	}

	t.errMu.Lock()
	defer t.errMu.Unlock()
	if t.err == nil {
		t.err = fmt.Errorf("%s: %w", msg, err)
	}
}

func (t *Transport) writeLoop() {
	defer t.wg.Done()

	for {
		select {
		case chunk, ok := <-t.audio:
			if !ok {
				if err := t.conn.WriteMessage(websocket.TextMessage, []byte(t.cfg.EndOfStream)); err != nil {
					t.setErr("failed to send end of stream", err)
				}
				return
			}
			if err := t.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				t.setErr("failed to send audio", err)
				return
			}
		case <-t.readDone:
			return
		}
	}
}

func (t *Transport) readLoop() {
	defer t.wg.Done()
	defer close(t.readDone)

	for {
		msgType, payload, err := t.conn.ReadMessage()
		if err != nil {
			t.setErr("failed to read backend message", err)
			return
		}
		if msgType != websocket.TextMessage {
			t.logger.Debug().Int("messageType", msgType).Msg("Ignoring non-text backend message")
			continue
		}
		t.listener.OnMessage(string(payload))
	}
}
