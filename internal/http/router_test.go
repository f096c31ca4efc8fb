package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"transcribe-stream-service/internal/app"
	"transcribe-stream-service/internal/config"
	"transcribe-stream-service/internal/observability/metrics"
	"transcribe-stream-service/internal/service/decoder"
	"transcribe-stream-service/internal/service/session"
	"transcribe-stream-service/internal/service/transport"
)

type fakeTransport struct {
	mu       sync.Mutex
	listener transport.Listener
	frames   int
	closed   bool
}

func (t *fakeTransport) Connect(ctx context.Context, l transport.Listener) error {
	t.mu.Lock()
	t.listener = l
	t.mu.Unlock()
	l.OnOpen()
	return nil
}

func (t *fakeTransport) Send(ctx context.Context, audio []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames++
	return nil
}

func (t *fakeTransport) Disconnect() error {
	t.mu.Lock()
	already := t.closed
	t.closed = true
	l := t.listener
	t.mu.Unlock()
	if !already && l != nil {
		l.OnClose()
	}
	return nil
}

func newTestRouter(t *testing.T, maxSessions int) (http.Handler, *app.Application) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	factory := func(id string) (transport.Transport, error) { return &fakeTransport{}, nil }
	manager := session.NewManager(session.ManagerConfig{MaxSessions: maxSessions}, factory, decoder.NewJSON(), nil, m)
	a := app.New(&config.Config{Backend: config.BackendConfig{Kind: "test"}}, manager, nil, m)
	t.Cleanup(func() { a.Shutdown(context.Background()) })
	return NewRouter(a), a
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) sessionResponse {
	t.Helper()
	var resp sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func createSession(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/v1/sessions", `{"tenantId":"t1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeSession(t, rec)
	if resp.SessionID == "" || resp.State != "OPEN" || resp.TenantID != "t1" {
		t.Fatalf("unexpected create response: %+v", resp)
	}
	return resp.SessionID
}

const (
	replaceEnvelope = `{"actions":[{"id":"r1","index":0,"type":"replace_text",` +
		`"parameters":{"startCharacterIndex":0,"endCharacterIndex":0,"text":"Attendi"}}]}`
	addEnvelope = `{"actions":[{"id":"a1","index":1,"type":"add_annotation",` +
		`"parameters":{"id":"1A","startCharacterIndex":0,"endCharacterIndex":7,"type":"intent","parameters":{"status":"pending"}}}]}`
	badRangeEnvelope = `{"actions":[{"id":"r2","index":2,"type":"replace_text",` +
		`"parameters":{"startCharacterIndex":5,"endCharacterIndex":3,"text":"x"}}]}`
)

func TestHealthEndpoints(t *testing.T) {
	h, a := newTestRouter(t, 0)

	if rec := do(t, h, http.MethodGet, "/v1/liveness", ""); rec.Code != http.StatusOK {
		t.Errorf("expected liveness 200, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/readiness", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected readiness 503 before start, got %d", rec.Code)
	}
	a.Start()
	if rec := do(t, h, http.MethodGet, "/v1/readiness", ""); rec.Code != http.StatusOK {
		t.Errorf("expected readiness 200 after start, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK {
		t.Errorf("expected metrics 200, got %d", rec.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	h, _ := newTestRouter(t, 0)
	id := createSession(t, h)
	base := "/v1/sessions/" + id

	rec := do(t, h, http.MethodPost, base+"/actions", replaceEnvelope)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, base+"/actions", addEnvelope)
	resp := decodeSession(t, rec)
	if resp.Text != "Attendi" || len(resp.Annotations) != 1 {
		t.Fatalf("unexpected state: %+v", resp)
	}
	ann := resp.Annotations[0]
	if ann.ID != "1A" || ann.Type != "intent" || ann.Status != "pending" || ann.End != 7 {
		t.Errorf("unexpected annotation view: %+v", ann)
	}

	rec = do(t, h, http.MethodPost, base+"/undo?count=2", "")
	resp = decodeSession(t, rec)
	if resp.Text != "" || len(resp.Annotations) != 0 || resp.UndoneLength != 2 {
		t.Errorf("expected empty transcript after undo 2, got %+v", resp)
	}

	rec = do(t, h, http.MethodPost, base+"/redo", "")
	resp = decodeSession(t, rec)
	if resp.Text != "Attendi" || resp.HistoryLength != 1 || resp.UndoneLength != 1 {
		t.Errorf("expected one batch redone, got %+v", resp)
	}

	rec = do(t, h, http.MethodPost, base+"/audio", "\x00\x01\x02\x03")
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202 for audio, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, base, "")
	resp = decodeSession(t, rec)
	if resp.AudioBytes != 4 {
		t.Errorf("expected 4 audio bytes, got %d", resp.AudioBytes)
	}

	rec = do(t, h, http.MethodDelete, base, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", rec.Code)
	}
	if resp = decodeSession(t, rec); resp.State != "CLOSED" || resp.Text != "Attendi" {
		t.Errorf("expected closed session with final text, got %+v", resp)
	}

	if rec = do(t, h, http.MethodGet, base, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	h, _ := newTestRouter(t, 0)
	id := createSession(t, h)
	base := "/v1/sessions/" + id

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		expected int
	}{
		{"unknown session", http.MethodGet, "/v1/sessions/nope", "", http.StatusNotFound},
		{"malformed envelope", http.MethodPost, base + "/actions", `{"actions":[{}]}`, http.StatusBadRequest},
		{"invalid range", http.MethodPost, base + "/actions", badRangeEnvelope, http.StatusUnprocessableEntity},
		{"undo past history", http.MethodPost, base + "/undo?count=3", "", http.StatusBadRequest},
		{"negative redo", http.MethodPost, base + "/redo?count=-1", "", http.StatusBadRequest},
		{"non-numeric count", http.MethodPost, base + "/undo?count=two", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			if rec.Code != tt.expected {
				t.Errorf("expected %d, got %d: %s", tt.expected, rec.Code, rec.Body.String())
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Error == "" {
				t.Errorf("expected error body, got %q", rec.Body.String())
			}
		})
	}
}

func TestClosedSessionConflicts(t *testing.T) {
	h, a := newTestRouter(t, 0)
	id := createSession(t, h)

	s, err := a.Sessions.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	rec := do(t, h, http.MethodPost, "/v1/sessions/"+id+"/audio", "\x00")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for audio on closed session, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/v1/sessions/"+id+"/undo", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for undo on closed session, got %d", rec.Code)
	}
}

func TestMaxSessions(t *testing.T) {
	h, _ := newTestRouter(t, 1)
	createSession(t, h)

	rec := do(t, h, http.MethodPost, "/v1/sessions", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
}
