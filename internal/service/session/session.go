// Package session adapts a transport to a transcript stream. Each session
// owns one stream and one goroutine that applies incoming batches, undo and
// redo requests strictly in arrival order.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"transcribe-stream-service/internal/models"
	"transcribe-stream-service/internal/observability/logging"
	"transcribe-stream-service/internal/observability/metrics"
	"transcribe-stream-service/internal/service/decoder"
	"transcribe-stream-service/internal/service/transcript"
	"transcribe-stream-service/internal/service/transport"
)

const publishTimeout = 5 * time.Second

// Publisher receives transcript events. *events.Publisher implements it.
type Publisher interface {
	PublishUpdate(ctx context.Context, event models.TranscriptUpdated) error
	PublishFinal(ctx context.Context, event models.TranscriptFinal) error
}

// Limits bounds the audio accepted by one session. Zero disables a limit.
type Limits struct {
	MaxAudioBytes int64
	MaxDuration   time.Duration
}

// Config configures a session.
type Config struct {
	QueueSize int
	Limits    Limits
	// Backend labels metrics and logs.
	Backend  string
	TenantID string
}

// Snapshot is a consistent copy of a session's observable state.
type Snapshot struct {
	ID          string
	TenantID    string
	State       State
	Text        string
	Annotations []models.AddAnnotation
	HistoryLen  int
	UndoneLen   int
	AudioBytes  int64
	LastError   error
}

type opKind int

const (
	opMessage opKind = iota
	opApply
	opUndo
	opRedo
)

func (o opKind) String() string {
	switch o {
	case opMessage:
		return "message"
	case opApply:
		return "apply"
	case opUndo:
		return "undo"
	case opRedo:
		return "redo"
	default:
		return "unknown"
	}
}

// outgoing is one queued event; exactly one field is set.
type outgoing struct {
	update *models.TranscriptUpdated
	final  *models.TranscriptFinal
}

type request struct {
	op      opKind
	raw     string
	actions []models.Action
	count   int
	reply   chan error
}

// Session implements transport.Listener.
type Session struct {
	id        string
	cfg       Config
	transport transport.Transport
	decoder   decoder.Decoder
	publisher Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time

	// stream is only touched by run.
	stream *transcript.Stream

	ctx    context.Context
	cancel context.CancelFunc

	queue    chan request
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// outbox feeds publishLoop; nil without a publisher.
	outbox    chan outgoing
	published chan struct{}

	closeOnce sync.Once

	mu         sync.RWMutex
	state      State
	opened     bool
	openedAt   time.Time
	audioBytes int64
	lastErr    error
	snap       Snapshot
}

// New creates an idle session and starts its processing goroutine.
// publisher and m may be nil.
func New(id string, cfg Config, t transport.Transport, dec decoder.Decoder, publisher Publisher, m *metrics.Metrics) *Session {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if dec == nil {
		dec = decoder.NewJSON()
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:        id,
		cfg:       cfg,
		transport: t,
		decoder:   dec,
		publisher: publisher,
		metrics:   m,
		logger:    logging.WithTenant(id, cfg.TenantID),
		now:       time.Now,
		stream:    transcript.NewStream(),
		ctx:       ctx,
		cancel:    cancel,
		queue:     make(chan request, cfg.QueueSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		state:     StateIdle,
	}
	s.snap = Snapshot{ID: id, TenantID: cfg.TenantID}
	if publisher != nil {
		s.outbox = make(chan outgoing, cfg.QueueSize)
		s.published = make(chan struct{})
		go s.publishLoop()
	}
	go s.run()
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastError returns the most recent transport, decode or apply error.
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Text returns the current transcript text.
func (s *Session) Text() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Text
}

// Annotations returns the current annotations in insertion order.
func (s *Session) Annotations() []models.AddAnnotation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.AddAnnotation(nil), s.snap.Annotations...)
}

// Snapshot returns a copy of the session's observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snap
	snap.Annotations = append([]models.AddAnnotation(nil), s.snap.Annotations...)
	snap.State = s.state
	snap.AudioBytes = s.audioBytes
	snap.LastError = s.lastErr
	return snap
}

// Done is closed once the session has ended and its final event is out.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start connects the transport with the session as its listener.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot start session in state %s", state)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	s.logger.Info().Str("backend", s.cfg.Backend).Msg("Connecting session")

	// The transport outlives the caller's request, so it gets the
	// session's own context.
	err := ctx.Err()
	if err == nil {
		err = s.transport.Connect(s.ctx, s)
	}
	if err != nil {
		s.mu.Lock()
		s.state = StateFailed
		s.lastErr = err
		s.mu.Unlock()
		s.metrics.RecordBackendError(s.cfg.Backend)
		s.logger.Error().Err(err).Msg("Failed to connect session")
		s.shutdown()
		<-s.done
		return err
	}
	return nil
}

// OnOpen implements transport.Listener.
func (s *Session) OnOpen() {
	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateIdle {
		s.state = StateOpen
	}
	s.opened = true
	s.openedAt = s.now()
	s.mu.Unlock()

	s.metrics.RecordSessionStart(s.cfg.Backend)
	s.logger.Info().Msg("Session open")
}

// OnMessage implements transport.Listener. It blocks while the queue is
// full, and drops the message once the session has stopped.
func (s *Session) OnMessage(raw string) {
	select {
	case s.queue <- request{op: opMessage, raw: raw}:
	case <-s.stop:
		s.logger.Warn().Int("bytes", len(raw)).Msg("Dropping message for stopped session")
	}
}

// OnError implements transport.Listener. The session fails but its
// transcript stays readable.
func (s *Session) OnError(err error) {
	s.mu.Lock()
	s.state = StateFailed
	s.lastErr = err
	s.mu.Unlock()

	s.metrics.RecordBackendError(s.cfg.Backend)
	s.logger.Error().Err(err).Msg("Transport failed")
}

// OnClose implements transport.Listener.
func (s *Session) OnClose() {
	s.logger.Debug().Msg("Transport closed")
	s.shutdown()
}

// ReceiveActions applies a batch as if it had arrived from the backend.
func (s *Session) ReceiveActions(ctx context.Context, actions []models.Action) error {
	return s.submit(ctx, request{op: opApply, actions: actions})
}

// ReceiveRaw decodes an action envelope and applies it. Decode errors are
// returned without touching the transcript.
func (s *Session) ReceiveRaw(ctx context.Context, raw string) error {
	actions, err := s.decoder.Decode(raw)
	if err != nil {
		s.metrics.RecordDecodeError()
		return err
	}
	return s.ReceiveActions(ctx, actions)
}

// Undo rolls back the last count batches.
func (s *Session) Undo(ctx context.Context, count int) error {
	return s.submit(ctx, request{op: opUndo, count: count})
}

// Redo re-applies the next count undone batches.
func (s *Session) Redo(ctx context.Context, count int) error {
	return s.submit(ctx, request{op: opRedo, count: count})
}

// SendAudio forwards one audio frame to the backend. A frame that would
// exceed the session limits closes the session.
func (s *Session) SendAudio(ctx context.Context, frame []byte) error {
	s.mu.Lock()
	state := s.state
	if state.IsTerminal() {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if state != StateOpen {
		s.mu.Unlock()
		return ErrNotOpen
	}

	limit := ""
	switch {
	case s.cfg.Limits.MaxAudioBytes > 0 && s.audioBytes+int64(len(frame)) > s.cfg.Limits.MaxAudioBytes:
		limit = "audio_bytes"
	case s.cfg.Limits.MaxDuration > 0 && s.now().Sub(s.openedAt) > s.cfg.Limits.MaxDuration:
		limit = "duration"
	default:
		s.audioBytes += int64(len(frame))
	}
	s.mu.Unlock()

	if limit != "" {
		s.metrics.RecordLimitExceeded(limit)
		s.logger.Warn().Str("limit", limit).Msg("Session limit exceeded, closing")
		err := fmt.Errorf("%s: %w", limit, ErrLimitExceeded)
		s.setLastErr(err)
		s.Close()
		return err
	}

	s.metrics.RecordAudioReceived(len(frame))
	if err := s.transport.Send(ctx, frame); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return ErrSessionClosed
		}
		return err
	}
	return nil
}

// Close disconnects the transport and waits until the final event has been
// published. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.logger.Info().Msg("Closing session")
		err = s.transport.Disconnect()
		s.shutdown()
	})
	<-s.done
	return err
}

func (s *Session) shutdown() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Session) setLastErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Session) submit(ctx context.Context, req request) error {
	select {
	case <-s.stop:
		return ErrSessionClosed
	default:
	}

	req.reply = make(chan error, 1)
	select {
	case s.queue <- req:
	case <-s.stop:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-s.done:
		select {
		case err := <-req.reply:
			return err
		default:
			return ErrSessionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the only goroutine that touches s.stream.
func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case req := <-s.queue:
			s.handle(req)
		case <-s.stop:
			for {
				select {
				case req := <-s.queue:
					s.handle(req)
				default:
					s.finish()
					return
				}
			}
		}
	}
}

func (s *Session) handle(req request) {
	var err error
	switch req.op {
	case opMessage:
		var actions []models.Action
		actions, err = s.decoder.Decode(req.raw)
		if err != nil {
			s.metrics.RecordDecodeError()
			s.logger.Warn().Err(err).Msg("Rejected undecodable message")
			break
		}
		err = s.apply(actions, "transport")
	case opApply:
		err = s.apply(req.actions, "api")
	case opUndo:
		err = s.history(opUndo, req.count)
	case opRedo:
		err = s.history(opRedo, req.count)
	}

	if err != nil {
		s.setLastErr(err)
	}
	if req.reply != nil {
		req.reply <- err
	}
}

func (s *Session) apply(actions []models.Action, source string) error {
	start := time.Now()
	if err := s.stream.ReceiveActions(actions); err != nil {
		s.metrics.RecordBatchRejected(rejectReason(err))
		s.logger.Warn().
			Err(err).
			Str("source", source).
			Int("actionCount", len(actions)).
			Msg("Rejected action batch")
		if source == "transport" {
			s.rebase()
		}
		return err
	}

	kinds := make([]string, len(actions))
	for i, a := range actions {
		kinds[i] = a.Kind().String()
	}
	s.metrics.RecordBatchApplied(source, kinds, time.Since(start).Seconds())

	s.logger.Debug().
		Str("source", source).
		Int("actionCount", len(actions)).
		Int("historyLength", s.stream.HistoryLen()).
		Msg("Applied action batch")

	if source != "transport" {
		s.rebase()
	}
	s.commit(opApply, len(actions))
	return nil
}

func (s *Session) history(op opKind, count int) error {
	before := s.stream.HistoryLen()

	var err error
	if op == opUndo {
		err = s.stream.Undo(count)
	} else {
		err = s.stream.Redo(count)
	}
	if err != nil {
		s.metrics.RecordBatchRejected(rejectReason(err))
		return err
	}

	moved := s.stream.HistoryLen() - before
	if moved < 0 {
		moved = -moved
	}
	if moved == 0 {
		return nil
	}
	if op == opUndo {
		s.metrics.RecordUndo(moved)
	} else {
		s.metrics.RecordRedo(moved)
	}
	s.logger.Debug().Str("operation", op.String()).Int("count", moved).Msg("History moved")

	s.rebase()
	s.commit(op, moved)
	return nil
}

// rebase tells a synthesizing transport where the transcript now stands.
func (s *Session) rebase() {
	if r, ok := s.transport.(transport.Rebaser); ok {
		r.Rebase(s.stream.State())
	}
}

// commit publishes the stream's new state to readers and to the publisher.
func (s *Session) commit(op opKind, n int) {
	st := s.stream.State()
	anns := s.stream.Annotations()

	s.mu.Lock()
	s.snap.Text = st.Text
	s.snap.Annotations = anns
	s.snap.HistoryLen = s.stream.HistoryLen()
	s.snap.UndoneLen = s.stream.UndoneLen()
	s.mu.Unlock()

	if s.outbox == nil {
		return
	}
	event := models.TranscriptUpdated{
		EventType:   models.EventTranscriptUpdated,
		SessionID:   s.id,
		TenantID:    s.cfg.TenantID,
		Timestamp:   time.Now().UnixMilli(),
		Operation:   op.String(),
		ActionCount: n,
		Text:        st.Text,
		Annotations: models.NewAnnotationViews(anns),
		HistoryLen:  s.stream.HistoryLen(),
		UndoneLen:   s.stream.UndoneLen(),
	}
	// Every update carries the full transcript, so a dropped one is
	// superseded by the next.
	select {
	case s.outbox <- outgoing{update: &event}:
	default:
		s.logger.Warn().Str("operation", event.Operation).Msg("Publish queue full, dropping transcript update")
	}
}

func (s *Session) finish() {
	s.mu.Lock()
	if s.state != StateFailed {
		s.state = StateClosed
	}
	state, opened, openedAt, lastErr := s.state, s.opened, s.openedAt, s.lastErr
	s.mu.Unlock()

	defer s.cancel()

	if opened {
		s.metrics.RecordSessionEnd(state == StateClosed, s.now().Sub(openedAt).Seconds())
	}
	s.logger.Info().
		Str("state", state.String()).
		Int("historyLength", s.stream.HistoryLen()).
		Msg("Session ended")

	if s.outbox == nil {
		return
	}
	event := models.TranscriptFinal{
		EventType:   models.EventTranscriptFinal,
		SessionID:   s.id,
		TenantID:    s.cfg.TenantID,
		Timestamp:   time.Now().UnixMilli(),
		Text:        s.stream.Text(),
		Annotations: models.NewAnnotationViews(s.stream.Annotations()),
		State:       state.String(),
	}
	if lastErr != nil {
		event.Error = lastErr.Error()
	}
	s.outbox <- outgoing{final: &event}
	close(s.outbox)
	<-s.published
}

// publishLoop hands events to the publisher in commit order, off the
// stream goroutine. It exits after the final event.
func (s *Session) publishLoop() {
	defer close(s.published)
	for ev := range s.outbox {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if ev.final != nil {
			if err := s.publisher.PublishFinal(ctx, *ev.final); err != nil {
				s.logger.Error().Err(err).Msg("Failed to publish final transcript")
			}
		} else if err := s.publisher.PublishUpdate(ctx, *ev.update); err != nil {
			s.logger.Error().Err(err).Msg("Failed to publish transcript update")
		}
		cancel()
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, transcript.ErrInvalidRange):
		return "invalid_range"
	case errors.Is(err, transcript.ErrDuplicateAnnotation):
		return "duplicate_annotation"
	case errors.Is(err, transcript.ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "other"
	}
}
