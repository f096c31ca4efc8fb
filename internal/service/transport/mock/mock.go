// Package mock provides a simulated backend for running without network
// access or credentials. Each audio frame advances a scripted utterance:
// progressive partials, then exactly one final. Results are turned into
// action envelopes and delivered in order through OnMessage.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"transcribe-stream-service/internal/models"
	"transcribe-stream-service/internal/observability/logging"
	"transcribe-stream-service/internal/service/decoder"
	"transcribe-stream-service/internal/service/synth"
	"transcribe-stream-service/internal/service/transcript"
	"transcribe-stream-service/internal/service/transport"
)

// SimulatedUtterance is a scripted utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials []string
	Final    string
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials: []string{"I want", "I want to", "I want to cancel"},
		Final:    "I want to cancel my subscription",
	},
	{
		Partials: []string{"Yes", "Yes please"},
		Final:    "Yes please go ahead",
	},
	{
		Partials: []string{"Can you", "Can you help", "Can you help me with"},
		Final:    "Can you help me with my account",
	},
	{
		Partials: []string{"I've been", "I've been waiting", "I've been waiting for"},
		Final:    "I've been waiting for over an hour",
	},
	{
		Partials: []string{"Thank you"},
		Final:    "Thank you very much",
	},
}

// utteranceCounter rotates the starting utterance across transports.
var (
	utteranceCounter int
	counterMu        sync.Mutex
)

// Option configures a Transport.
type Option func(*Transport)

// WithUtterances replaces the script.
func WithUtterances(u []SimulatedUtterance) Option {
	return func(t *Transport) {
		t.utterances = u
		t.current = 0
	}
}

// WithDelay sets the simulated processing delay before each message.
func WithDelay(d time.Duration) Option {
	return func(t *Transport) {
		t.delay = d
	}
}

// WithSynthesizer replaces the synthesizer (for deterministic ids in tests).
func WithSynthesizer(s *synth.Synthesizer) Option {
	return func(t *Transport) {
		t.synth = s
	}
}

// Transport implements transport.Transport with scripted responses.
type Transport struct {
	mu           sync.Mutex
	sessionID    string
	logger       zerolog.Logger
	synth        *synth.Synthesizer
	utterances   []SimulatedUtterance
	current      int
	partialIndex int
	delay        time.Duration

	listener  transport.Listener
	outbox    chan string
	delivered chan struct{}
	framesIn  int
	closed    bool
}

// New creates a mock transport for sessionID.
func New(sessionID string, ids *synth.IDGenerator, opts ...Option) *Transport {
	counterMu.Lock()
	start := utteranceCounter % len(DefaultUtterances)
	utteranceCounter++
	counterMu.Unlock()

	t := &Transport{
		sessionID:  sessionID,
		logger:     logging.WithTransport(sessionID, "mock"),
		synth:      synth.New(sessionID, ids),
		utterances: DefaultUtterances,
		current:    start,
		delay:      50 * time.Millisecond,
		outbox:     make(chan string, 256),
		delivered:  make(chan struct{}),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Connect starts delivering simulated messages to l.
func (t *Transport) Connect(ctx context.Context, l transport.Listener) error {
	t.mu.Lock()
	t.listener = l
	t.mu.Unlock()

	t.logger.Info().
		Int("utterances", len(t.utterances)).
		Dur("delay", t.delay).
		Msg("Mock backend connected")
	l.OnOpen()
	go t.deliver(l)
	return nil
}

func (t *Transport) deliver(l transport.Listener) {
	defer close(t.delivered)
	for raw := range t.outbox {
		if t.delay > 0 {
			time.Sleep(t.delay)
		}
		l.OnMessage(raw)
	}
	l.OnClose()
}

// Send advances the script by one step per audio frame.
func (t *Transport) Send(ctx context.Context, audio []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return transport.ErrClosed
	}
	if t.listener == nil || len(t.utterances) == 0 {
		return nil
	}
	t.framesIn++

	utt := t.utterances[t.current%len(t.utterances)]
	if t.partialIndex < len(utt.Partials) {
		text := utt.Partials[t.partialIndex]
		t.partialIndex++
		t.enqueue(t.synth.Partial(text))
		return nil
	}

	// All partials sent: the speaker went quiet, settle the utterance.
	t.enqueue(t.synth.Final(utt.Final))
	t.current++
	t.partialIndex = 0
	return nil
}

// Disconnect settles any open segment and stops delivery once the queued
// messages are out.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	connected := t.listener != nil

	if connected && t.partialIndex > 0 && len(t.utterances) > 0 {
		utt := t.utterances[t.current%len(t.utterances)]
		t.enqueue(t.synth.Final(utt.Final))
	}
	close(t.outbox)
	t.mu.Unlock()

	if connected {
		<-t.delivered
	}
	return nil
}

// FramesReceived returns the number of audio frames accepted.
func (t *Transport) FramesReceived() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.framesIn
}

func (t *Transport) enqueue(actions []models.Action) {
	if len(actions) == 0 {
		return
	}
	raw, err := decoder.Encode(actions)
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to encode simulated actions")
		return
	}
	t.outbox <- raw
}

var _ transport.Rebaser = (*Transport)(nil)

// Rebase implements transport.Rebaser.
func (t *Transport) Rebase(st transcript.State) {
	t.synth.Rebase(st)
}
