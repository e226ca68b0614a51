package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/engine"
	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/health"
)

type fakeDispatcher struct {
	mu      sync.Mutex
	events  []engine.Event
	outcome engine.Outcome
}

func (f *fakeDispatcher) HandleEvent(_ context.Context, ev engine.Event) engine.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.outcome
}

func (f *fakeDispatcher) last(t *testing.T) engine.Event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		t.Fatalf("no event was dispatched")
	}
	return f.events[len(f.events)-1]
}

type fakeAnswerer struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeAnswerer) AnswerCallbackQuery(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	return nil
}

type fakeHealth struct{ snap health.Snapshot }

func (f fakeHealth) Last(context.Context) health.Snapshot { return f.snap }

func newTestHandler(dispatch *fakeDispatcher, answerer *fakeAnswerer, hs HealthSource) *Handler {
	h := New(Options{
		Dispatch: dispatch,
		Answerer: answerer,
		Health:   hs,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	h.SetReady(true)
	return h
}

func postWebhook(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	return rec
}

func TestWebhookCommandTranslation(t *testing.T) {
	cases := []struct {
		text string
		want engine.Kind
	}{
		{"/start", engine.KindBegin},
		{"/start@quizbot extra", engine.KindBegin},
		{"/help", engine.KindHelp},
		{"/template", engine.KindTemplate},
		{"/quickstart", engine.KindQuickstart},
		{"/status", engine.KindStatus},
		{"/toggle", engine.KindToggle},
	}
	for _, tc := range cases {
		dispatch := &fakeDispatcher{outcome: engine.Outcome{Kind: engine.OutcomeQueued}}
		h := newTestHandler(dispatch, nil, nil)
		body := `{"update_id":1,"message":{"message_id":5,"chat":{"id":70},"from":{"id":7,"first_name":"Ada"},"text":"` + tc.text + `"}}`
		rec := postWebhook(t, h, body)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", tc.text, rec.Code)
		}
		ev := dispatch.last(t)
		if ev.Kind != tc.want {
			t.Errorf("%s: kind = %q, want %q", tc.text, ev.Kind, tc.want)
		}
		if ev.UserID != 7 || ev.ChatID != 70 || ev.FirstName != "Ada" {
			t.Errorf("%s: event identity %+v", tc.text, ev)
		}
	}
}

func TestWebhookPayloadTranslation(t *testing.T) {
	dispatch := &fakeDispatcher{outcome: engine.Outcome{Kind: engine.OutcomeQueued}}
	h := newTestHandler(dispatch, nil, nil)

	body := `{"update_id":1,"message":{"message_id":5,"chat":{"id":70},"from":{"id":7},"text":"{\"all_q\":[]}"}}`
	rec := postWebhook(t, h, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	ev := dispatch.last(t)
	if ev.Kind != engine.KindPayload {
		t.Fatalf("kind = %q, want %q", ev.Kind, engine.KindPayload)
	}
	if ev.Payload != `{"all_q":[]}` {
		t.Errorf("payload = %q", ev.Payload)
	}
}

func TestWebhookCallbackTranslation(t *testing.T) {
	dispatch := &fakeDispatcher{outcome: engine.Outcome{Kind: engine.OutcomeQueued}}
	answerer := &fakeAnswerer{}
	h := newTestHandler(dispatch, answerer, nil)

	body := `{"update_id":2,"callback_query":{"id":"cb1","from":{"id":7,"first_name":"Ada"},` +
		`"message":{"message_id":12,"chat":{"id":70}},"data":"anonymous_false"}}`
	rec := postWebhook(t, h, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	ev := dispatch.last(t)
	if ev.Kind != engine.KindPreference || ev.Anonymous || ev.MessageID != 12 {
		t.Fatalf("event = %+v, want non-anonymous preference for message 12", ev)
	}
	if len(answerer.ids) != 1 || answerer.ids[0] != "cb1" {
		t.Errorf("acknowledged callbacks = %v, want [cb1]", answerer.ids)
	}
}

func TestWebhookIgnoresUnhandledUpdates(t *testing.T) {
	cases := map[string]string{
		"no message":      `{"update_id":1}`,
		"bot sender":      `{"update_id":1,"message":{"message_id":5,"chat":{"id":70},"from":{"id":7,"is_bot":true},"text":"hi"}}`,
		"empty text":      `{"update_id":1,"message":{"message_id":5,"chat":{"id":70},"from":{"id":7},"text":"  "}}`,
		"unknown command": `{"update_id":1,"message":{"message_id":5,"chat":{"id":70},"from":{"id":7},"text":"/ban"}}`,
		"stray callback":  `{"update_id":2,"callback_query":{"id":"cb1","from":{"id":7},"message":{"message_id":12,"chat":{"id":70}},"data":"other"}}`,
	}
	for name, body := range cases {
		dispatch := &fakeDispatcher{}
		h := newTestHandler(dispatch, &fakeAnswerer{}, nil)
		rec := postWebhook(t, h, body)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", name, rec.Code)
		}
		if len(dispatch.events) != 0 {
			t.Errorf("%s: dispatched %d events, want 0", name, len(dispatch.events))
		}
	}
}

func TestWebhookRejectsBadJSON(t *testing.T) {
	h := newTestHandler(&fakeDispatcher{}, nil, nil)
	rec := postWebhook(t, h, `{"update_id":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookBeforeReady(t *testing.T) {
	h := New(Options{Dispatch: &fakeDispatcher{}, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	rec := postWebhook(t, h, `{"update_id":1}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 before ready", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHandler(&fakeDispatcher{}, nil, fakeHealth{snap: health.Snapshot{Status: health.StatusHealthy, Goroutines: 9}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"goroutines":9`) {
		t.Errorf("body %q does not include the snapshot", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodHead, "/health", nil)
	rec = httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("HEAD status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("HEAD response has a body")
	}
}

func TestHealthCriticalIs503(t *testing.T) {
	h := newTestHandler(&fakeDispatcher{}, nil, fakeHealth{snap: health.Snapshot{Status: health.StatusCritical}})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestWakeAndHome(t *testing.T) {
	h := newTestHandler(&fakeDispatcher{}, nil, nil)
	for _, path := range []string{"/wake", "/"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}
