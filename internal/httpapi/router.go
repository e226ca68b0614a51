// Package httpapi is the HTTP front door: it translates Telegram webhook
// updates into engine events and serves the health, wake and home
// endpoints. It knows nothing about conversation state.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/engine"
	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/health"
	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/telegram"
)

// Dispatcher admits one translated event into the bot runtime.
type Dispatcher interface {
	HandleEvent(ctx context.Context, ev engine.Event) engine.Outcome
}

// CallbackAnswerer acknowledges an inline-keyboard tap so the client
// stops showing a spinner. Failures are tolerated.
type CallbackAnswerer interface {
	AnswerCallbackQuery(ctx context.Context, callbackID string) error
}

// HealthSource serves the most recent health snapshot.
type HealthSource interface {
	Last(ctx context.Context) health.Snapshot
}

type Handler struct {
	dispatch Dispatcher
	answerer CallbackAnswerer
	health   HealthSource
	logger   *slog.Logger
	ready    atomic.Bool

	maxBodyBytes int64
}

type Options struct {
	Dispatch Dispatcher
	Answerer CallbackAnswerer
	Health   HealthSource
	Logger   *slog.Logger

	// MaxBodyBytes caps a webhook request body; defaults to 1 MiB.
	MaxBodyBytes int64
}

func New(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	return &Handler{
		dispatch:     opts.Dispatch,
		answerer:     opts.Answerer,
		health:       opts.Health,
		logger:       opts.Logger,
		maxBodyBytes: opts.MaxBodyBytes,
	}
}

// SetReady flips the webhook endpoint from 503 to accepting updates.
// Called once the engine and storage are wired up.
func (h *Handler) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Router builds the service mux.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	r.Post("/webhook", h.Webhook)
	r.Get("/health", h.Health)
	r.Head("/health", h.Health)
	r.Get("/wake", h.Wake)
	r.Get("/", h.Home)
	return r
}

// Webhook ingests one Telegram update. The response is 200 whenever the
// update was understood, regardless of the conversational outcome; the
// sender retries on anything else, and a denial must not trigger a retry
// storm.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}
	var update telegram.Update
	if err := json.Unmarshal(body, &update); err != nil {
		h.logger.Warn("webhook_decode_error", "error", err.Error())
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad update"})
		return
	}

	ev, ok := h.translate(r.Context(), update)
	if !ok {
		// Updates this bot does not consume (polls closing, edits, other
		// bots' noise) are acknowledged and dropped.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	out := h.dispatch.HandleEvent(r.Context(), ev)
	writeJSON(w, http.StatusOK, map[string]string{"status": string(out.Kind)})
}

// translate maps one update onto a core event. The second return is false
// for updates the bot has no handler for.
func (h *Handler) translate(ctx context.Context, update telegram.Update) (engine.Event, bool) {
	if cb := update.CallbackQuery; cb != nil {
		return h.translateCallback(ctx, cb)
	}
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.From == nil || msg.From.IsBot {
		return engine.Event{}, false
	}
	ev := engine.Event{
		UserID:    msg.From.ID,
		ChatID:    msg.Chat.ID,
		FirstName: telegram.DisplayName(msg.From),
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return engine.Event{}, false
	}
	if strings.HasPrefix(text, "/") {
		kind, ok := commandKind(text)
		if !ok {
			return engine.Event{}, false
		}
		ev.Kind = kind
		return ev, true
	}
	ev.Kind = engine.KindPayload
	ev.Payload = text
	return ev, true
}

func (h *Handler) translateCallback(ctx context.Context, cb *telegram.CallbackQuery) (engine.Event, bool) {
	if h.answerer != nil {
		ackCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := h.answerer.AnswerCallbackQuery(ackCtx, cb.ID); err != nil {
			h.logger.Debug("callback_ack_error", "callback_id", cb.ID, "error", err.Error())
		}
		cancel()
	}
	if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return engine.Event{}, false
	}
	var anonymous bool
	switch cb.Data {
	case "anonymous_true":
		anonymous = true
	case "anonymous_false":
		anonymous = false
	default:
		return engine.Event{}, false
	}
	return engine.Event{
		UserID:    cb.From.ID,
		ChatID:    cb.Message.Chat.ID,
		FirstName: telegram.DisplayName(cb.From),
		Kind:      engine.KindPreference,
		Anonymous: anonymous,
		MessageID: cb.Message.MessageID,
	}, true
}

// commandKind maps a leading slash command onto an event kind. A trailing
// @botname mention is tolerated, as sent in group chats.
func commandKind(text string) (engine.Kind, bool) {
	cmd := text
	if i := strings.IndexAny(cmd, " \n"); i >= 0 {
		cmd = cmd[:i]
	}
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	switch cmd {
	case "/start":
		return engine.KindBegin, true
	case "/help":
		return engine.KindHelp, true
	case "/template":
		return engine.KindTemplate, true
	case "/quickstart":
		return engine.KindQuickstart, true
	case "/status":
		return engine.KindStatus, true
	case "/toggle":
		return engine.KindToggle, true
	default:
		return "", false
	}
}

// Health serves the latest monitor snapshot. The status code tracks the
// classification so platform probes can act on it without parsing JSON.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	snap := h.health.Last(r.Context())
	code := http.StatusOK
	if snap.Status == health.StatusCritical {
		code = http.StatusServiceUnavailable
	}
	if r.Method == http.MethodHead {
		w.WriteHeader(code)
		return
	}
	writeJSON(w, code, snap)
}

// Wake exists for external keep-alive pingers on free hosting tiers.
func (h *Handler) Wake(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "awake",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) Home(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "telegram-quiz-bot",
		"status":  "running",
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
