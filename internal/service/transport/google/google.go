// Package google drives a transcript from Google Cloud Speech-to-Text.
// Interim and final recognition results are turned into action envelopes
// by synth and delivered through OnMessage like any other backend.
package google

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"

	"transcribe-stream-service/internal/models"
	"transcribe-stream-service/internal/observability/logging"
	"transcribe-stream-service/internal/service/decoder"
	"transcribe-stream-service/internal/service/synth"
	"transcribe-stream-service/internal/service/transcript"
	"transcribe-stream-service/internal/service/transport"
)

// Config holds recognition settings.
type Config struct {
	LanguageCode   string
	SampleRateHz   int32
	InterimResults bool
	AudioEncoding  string
	CloseTimeout   time.Duration
}

// DefaultConfig returns sensible defaults for telephony-grade audio.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-US",
		SampleRateHz:   8000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
		CloseTimeout:   5 * time.Second,
	}
}

// parseAudioEncoding maps an encoding name to the API enum. Names are
// case-sensitive; anything unknown falls back to LINEAR16.
func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	v, ok := speechpb.RecognitionConfig_AudioEncoding_value[s]
	if !ok || v == int32(speechpb.RecognitionConfig_ENCODING_UNSPECIFIED) {
		return speechpb.RecognitionConfig_LINEAR16
	}
	return speechpb.RecognitionConfig_AudioEncoding(v)
}

// Transport implements transport.Transport using Google streaming recognition.
// Requires GOOGLE_APPLICATION_CREDENTIALS to be set.
type Transport struct {
	cfg    Config
	synth  *synth.Synthesizer
	logger zerolog.Logger

	mu     sync.Mutex
	client *speech.Client
	stream speechpb.Speech_StreamingRecognizeClient
	closed bool
	done   chan struct{}
}

// New creates an unconnected transport.
func New(sessionID string, cfg Config, ids *synth.IDGenerator) *Transport {
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultConfig().CloseTimeout
	}
	return &Transport{
		cfg:    cfg,
		synth:  synth.New(sessionID, ids),
		logger: logging.WithTransport(sessionID, "google"),
		done:   make(chan struct{}),
	}
}

// Connect opens a streaming recognition session and sends the config as
// the first message.
func (t *Transport) Connect(ctx context.Context, l transport.Listener) error {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return err
	}
	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		client.Close()
		return err
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        parseAudioEncoding(t.cfg.AudioEncoding),
					SampleRateHertz: t.cfg.SampleRateHz,
					LanguageCode:    t.cfg.LanguageCode,
				},
				InterimResults: t.cfg.InterimResults,
			},
		},
	})
	if err != nil {
		client.Close()
		return err
	}

	t.mu.Lock()
	t.client = client
	t.stream = stream
	t.mu.Unlock()

	t.logger.Info().
		Str("languageCode", t.cfg.LanguageCode).
		Int32("sampleRateHz", t.cfg.SampleRateHz).
		Msg("Google streaming recognition started")

	l.OnOpen()
	go t.listen(l)
	return nil
}

// Send forwards one audio frame.
func (t *Transport) Send(ctx context.Context, audio []byte) error {
	t.mu.Lock()
	stream, closed := t.stream, t.closed
	t.mu.Unlock()

	if closed || stream == nil {
		return transport.ErrClosed
	}
	return stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Disconnect half-closes the stream, waits for the remaining results and
// releases the client.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	if t.closed || t.stream == nil {
		t.closed = true
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	stream, client := t.stream, t.client
	t.mu.Unlock()

	err := stream.CloseSend()
	select {
	case <-t.done:
	case <-time.After(t.cfg.CloseTimeout):
		t.logger.Warn().Dur("closeTimeout", t.cfg.CloseTimeout).Msg("Recognizer did not finish in time")
	}
	if cerr := client.Close(); err == nil {
		err = cerr
	}
	return err
}

// listen receives recognition responses until the stream ends.
func (t *Transport) listen(l transport.Listener) {
	defer close(t.done)
	defer l.OnClose()

	for {
		resp, err := t.stream.Recv()
		if err != nil {
			// A tail the recognizer never confirmed is withdrawn.
			t.deliver(l, t.synth.Drop())
			if !errors.Is(err, io.EOF) {
				t.logger.Error().Err(err).Msg("Recognition stream failed")
				l.OnError(err)
			}
			return
		}
		t.handleResponse(l, resp)
	}
}

func (t *Transport) handleResponse(l transport.Listener, resp *speechpb.StreamingRecognizeResponse) {
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		alt := r.GetAlternatives()[0]
		if r.GetIsFinal() {
			t.deliver(l, t.synth.Final(alt.GetTranscript()))
		} else {
			t.deliver(l, t.synth.Partial(alt.GetTranscript()))
		}
	}
}

func (t *Transport) deliver(l transport.Listener, actions []models.Action) {
	if len(actions) == 0 {
		return
	}
	raw, err := decoder.Encode(actions)
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to encode recognition actions")
		return
	}
	l.OnMessage(raw)
}

var _ transport.Rebaser = (*Transport)(nil)

// Rebase implements transport.Rebaser.
func (t *Transport) Rebase(st transcript.State) {
	t.synth.Rebase(st)
}
