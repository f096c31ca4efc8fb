package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"transcribe-stream-service/internal/service/transport"
)

type testListener struct {
	mu       sync.Mutex
	opened   int
	messages []string
	errs     []error
	closed   chan struct{}
}

func newTestListener() *testListener {
	return &testListener{closed: make(chan struct{})}
}

func (l *testListener) OnOpen() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opened++
}

func (l *testListener) OnMessage(raw string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, raw)
}

func (l *testListener) OnError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func (l *testListener) OnClose() { close(l.closed) }

func (l *testListener) getMessages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.messages...)
}

func (l *testListener) getErrors() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error{}, l.errs...)
}

func (l *testListener) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-l.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnClose")
	}
}

var upgrader = websocket.Upgrader{}

// echoBackend answers every audio frame with one replace_text envelope and
// closes normally on the end-of-stream message.
func echoBackend(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			msgType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType == websocket.TextMessage && strings.Contains(string(payload), "CloseStream") {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			reply := `{"actions":[{"id":"x","index":0,"type":"replace_text","parameters":{"startCharacterIndex":0,"endCharacterIndex":0,"text":"` + string(payload) + `"}}]}`
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestTransport_SendReceiveDisconnect(t *testing.T) {
	srv := echoBackend(t)
	defer srv.Close()

	tr := New("s1", Config{URL: wsURL(srv), APIKey: "secret", CloseTimeout: time.Second})
	l := newTestListener()

	if err := tr.Connect(context.Background(), l); err != nil {
		t.Fatalf("connect: %v", err)
	}

	ctx := context.Background()
	for _, frame := range []string{"one", "two"} {
		if err := tr.Send(ctx, []byte(frame)); err != nil {
			t.Fatalf("send %s: %v", frame, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(l.getMessages()) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if err := tr.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	l.waitClosed(t)

	msgs := l.getMessages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0], `"text":"one"`) || !strings.Contains(msgs[1], `"text":"two"`) {
		t.Errorf("expected messages in arrival order, got %v", msgs)
	}
	l.mu.Lock()
	opened := l.opened
	l.mu.Unlock()
	if opened != 1 {
		t.Errorf("expected OnOpen once, got %d", opened)
	}
	if errs := l.getErrors(); len(errs) != 0 {
		t.Errorf("expected no errors on normal close, got %v", errs)
	}

	if err := tr.Send(ctx, []byte("late")); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("expected ErrClosed after disconnect, got %v", err)
	}
}

func TestTransport_AbnormalClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Drop the TCP connection without a close frame.
		_ = conn.NetConn().Close()
	}))
	defer srv.Close()

	tr := New("s1", Config{URL: wsURL(srv)})
	l := newTestListener()
	if err := tr.Connect(context.Background(), l); err != nil {
		t.Fatalf("connect: %v", err)
	}
	l.waitClosed(t)

	if errs := l.getErrors(); len(errs) != 1 {
		t.Fatalf("expected exactly one error, got %v", errs)
	}
	if err := tr.Send(context.Background(), []byte("audio")); err == nil {
		t.Error("expected send to fail after abnormal close")
	}
}

func TestTransport_ConnectErrors(t *testing.T) {
	tr := New("s1", Config{})
	if err := tr.Connect(context.Background(), newTestListener()); err == nil {
		t.Error("expected error without URL")
	}

	srv := echoBackend(t)
	defer srv.Close()

	tr = New("s1", Config{URL: wsURL(srv), APIKey: "wrong"})
	if err := tr.Connect(context.Background(), newTestListener()); err == nil {
		t.Error("expected handshake to fail with wrong API key")
	}
}

func TestTransport_DisconnectBeforeConnect(t *testing.T) {
	tr := New("s1", Config{URL: "ws://127.0.0.1:1"})
	if err := tr.Disconnect(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	tr := New("s1", Config{URL: "ws://example"})
	def := DefaultConfig()

	if tr.cfg.ConnectTimeout != def.ConnectTimeout {
		t.Errorf("expected connect timeout %v, got %v", def.ConnectTimeout, tr.cfg.ConnectTimeout)
	}
	if tr.cfg.CloseTimeout != def.CloseTimeout {
		t.Errorf("expected close timeout %v, got %v", def.CloseTimeout, tr.cfg.CloseTimeout)
	}
	if tr.cfg.EndOfStream != `{"type":"CloseStream"}` {
		t.Errorf("unexpected end of stream message %q", tr.cfg.EndOfStream)
	}
}
