// Package engine is the session state machine: it consumes one inbound
// event at a time per user, consults the session store, calls the validator
// and delivery layer, and advances conversation state.
//
// Events for the same user are serialized through a per-user worker; events
// for different users run in parallel up to a shared concurrency cap. The
// engine is the only layer that translates failures into user-visible
// messages: whatever goes wrong, the user is told what happened and the
// cycle restarts, never leaving them stuck.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/delivery"
	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/health"
	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/quiz"
	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/ratelimit"
	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/session"
	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/storage"
	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/telegram"
)

// AuditSink receives one record per handled event, fire-and-forget.
type AuditSink interface {
	AppendAudit(ctx context.Context, rec storage.AuditRecord) error
}

type Engine struct {
	store    *session.Store
	sender   *delivery.Sender
	admit    *ratelimit.Admitter
	audit    AuditSink
	counters *health.Counters
	logger   *slog.Logger

	limits       quiz.Limits
	eventTimeout time.Duration
	queueSize    int

	runCtx context.Context
	stop   context.CancelFunc
	// workersMu guards the worker map and every enqueue, so a job can never
	// land on a queue that is retiring.
	workersMu sync.Mutex
	workers   map[int64]*userWorker
	sem       chan struct{}
}

type userWorker struct {
	jobs chan Event
}

type Options struct {
	Store    *session.Store
	Sender   *delivery.Sender
	Admitter *ratelimit.Admitter
	Audit    AuditSink
	Counters *health.Counters
	Logger   *slog.Logger

	Limits quiz.Limits
	// EventTimeout bounds one unit of work end to end; defaults to 30s.
	EventTimeout time.Duration
	// MaxConcurrency caps simultaneously processing users; defaults to 8.
	MaxConcurrency int
	// QueueSize is the per-user job buffer; defaults to 16.
	QueueSize int
}

func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("engine: session store is required")
	}
	if opts.Sender == nil {
		return nil, errors.New("engine: delivery sender is required")
	}
	if opts.Counters == nil {
		opts.Counters = health.NewCounters()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Limits == (quiz.Limits{}) {
		opts.Limits = quiz.DefaultLimits()
	}
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = 30 * time.Second
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 8
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	runCtx, stop := context.WithCancel(context.Background())
	e := &Engine{
		store:        opts.Store,
		sender:       opts.Sender,
		admit:        opts.Admitter,
		audit:        opts.Audit,
		counters:     opts.Counters,
		logger:       opts.Logger,
		limits:       opts.Limits,
		eventTimeout: opts.EventTimeout,
		queueSize:    opts.QueueSize,
		runCtx:       runCtx,
		stop:         stop,
		workers:      make(map[int64]*userWorker),
		sem:          make(chan struct{}, opts.MaxConcurrency),
	}
	return e, nil
}

// Shutdown stops all workers. In-flight events finish or time out.
func (e *Engine) Shutdown() {
	e.stop()
}

// HandleEvent is the single entry point for inbound events. It admits the
// event through the rate limiter and hands it to the user's serialized
// worker. The returned outcome reflects admission only; conversational
// results reach the user over the transport.
func (e *Engine) HandleEvent(ctx context.Context, ev Event) Outcome {
	e.counters.RecordRequest()

	if e.admit != nil {
		if ok, denial := e.admit.Admit(ev.UserID); !ok {
			e.auditEvent(ev, "rate_limited")
			return Outcome{Kind: OutcomeRateLimited, RetryAt: denial.Until}
		}
	}

	e.workersMu.Lock()
	w := e.workers[ev.UserID]
	if w == nil {
		w = &userWorker{jobs: make(chan Event, e.queueSize)}
		e.workers[ev.UserID] = w
		go e.runWorker(ev.UserID, w)
	}
	select {
	case w.jobs <- ev:
		e.workersMu.Unlock()
		return Outcome{Kind: OutcomeQueued}
	default:
		e.workersMu.Unlock()
		e.logger.Warn("event_queue_full", "user_id", ev.UserID, "kind", string(ev.Kind))
		return Outcome{Kind: OutcomeDropped}
	}
}

// runWorker drains one user's job queue, one event at a time. An idle
// worker retires after a while; enqueue and retirement both happen under
// the workers lock, so no job can land on a retired queue.
func (e *Engine) runWorker(userID int64, w *userWorker) {
	idle := time.NewTimer(10 * time.Minute)
	defer idle.Stop()
	for {
		select {
		case <-e.runCtx.Done():
			return
		case <-idle.C:
			e.workersMu.Lock()
			if len(w.jobs) == 0 {
				delete(e.workers, userID)
				e.workersMu.Unlock()
				return
			}
			e.workersMu.Unlock()
			idle.Reset(10 * time.Minute)
		case ev := <-w.jobs:
			select {
			case e.sem <- struct{}{}:
			case <-e.runCtx.Done():
				return
			}
			e.handleJob(ev)
			<-e.sem
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(10 * time.Minute)
		}
	}
}

func (e *Engine) handleJob(ev Event) {
	ctx, cancel := context.WithTimeout(e.runCtx, e.eventTimeout)
	defer cancel()

	start := time.Now()
	outcome := e.process(ctx, ev)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		// Timeout is its own terminal outcome. The session was touched
		// before any delivery work, so state stays consistent; whatever the
		// detached delivery attempt returns is discarded with the context.
		outcome = "timeout"
		e.logger.Warn("event_timeout", "user_id", ev.UserID, "kind", string(ev.Kind))
		e.counters.RecordFailure()
	}
	e.logger.Info("event_handled",
		"user_id", ev.UserID,
		"kind", string(ev.Kind),
		"outcome", outcome,
		"elapsed", time.Since(start).String())
	e.auditEvent(ev, outcome)
}

// process dispatches one event on (current state, event kind). The
// session's activity is recorded first, unconditionally, before any
// delivery step can fail.
func (e *Engine) process(ctx context.Context, ev Event) string {
	sess := e.store.Touch(ctx, ev.UserID, ev.ChatID)

	switch ev.Kind {
	case KindBegin:
		e.begin(ctx, sess, ev)
		return "handled"
	case KindPreference:
		return e.preferenceChosen(ctx, sess, ev)
	case KindPayload:
		return e.payloadReceived(ctx, sess, ev)
	case KindHelp:
		e.sender.SendMessage(ctx, sess.ChatID, helpMessage, markdown())
		return "handled"
	case KindQuickstart:
		e.sender.SendMessage(ctx, sess.ChatID, quickstartMessage, markdown())
		return "handled"
	case KindTemplate:
		e.sendTemplate(ctx, sess.ChatID)
		return "handled"
	case KindStatus:
		e.sender.SendMessage(ctx, sess.ChatID,
			statusMessage(ev.FirstName, sess.ChatID, sess.Anonymous, e.store.Len()), markdown())
		return "handled"
	case KindToggle:
		e.sender.SendMessage(ctx, sess.ChatID, toggleMessage(sess.Anonymous), telegram.SendOptions{
			ParseMode:   "Markdown",
			ReplyMarkup: toggleKeyboard(),
		})
		return "handled"
	default:
		e.logger.Warn("event_kind_unknown", "user_id", ev.UserID, "kind", string(ev.Kind))
		return "ignored"
	}
}

// begin resets the cycle to preference selection and replays the welcome
// sequence.
func (e *Engine) begin(ctx context.Context, sess session.Session, ev Event) {
	sess.State = session.StateSelectingPreference
	e.store.Put(ctx, sess)

	if msg := e.sender.SendMessage(ctx, sess.ChatID, greetingMessage(ev.FirstName), markdown()); msg == nil {
		return
	}
	e.sendStyleChooser(ctx, sess.ChatID)
}

// preferenceChosen is honored in any state: the style can be changed at any
// time, and it always moves the user to awaiting-payload.
func (e *Engine) preferenceChosen(ctx context.Context, sess session.Session, ev Event) string {
	sess.Anonymous = ev.Anonymous
	sess.State = session.StateAwaitingPayload
	e.store.Put(ctx, sess)

	confirmed := false
	if ev.MessageID != 0 {
		confirmed = e.sender.EditMessage(ctx, sess.ChatID, ev.MessageID, styleSelectedMessage(ev.Anonymous), markdown()) != nil
	} else {
		confirmed = e.sender.SendMessage(ctx, sess.ChatID, styleSelectedMessage(ev.Anonymous), markdown()) != nil
	}
	if !confirmed {
		return "delivery_failed"
	}
	// Plain text on purpose: the template must survive copy-paste untouched.
	if msg := e.sender.SendMessage(ctx, sess.ChatID, templateJSON, telegram.SendOptions{}); msg == nil {
		return "delivery_failed"
	}
	if msg := e.sender.SendMessage(ctx, sess.ChatID, instructionsMessage(ev.Anonymous), markdown()); msg == nil {
		return "delivery_failed"
	}
	return "handled"
}

// payloadReceived validates the quiz JSON and delivers the polls. Any
// failure is explained to the user and the cycle restarts; the user is
// never left in a state that needs an internal recovery command.
func (e *Engine) payloadReceived(ctx context.Context, sess session.Session, ev Event) string {
	if sess.State != session.StateAwaitingPayload {
		if msg := e.sender.SendMessage(ctx, sess.ChatID, redirectMessage, markdown()); msg != nil {
			e.begin(ctx, sess, ev)
		}
		return "redirected"
	}

	processing := e.sender.SendMessage(ctx, sess.ChatID, processingMessage, markdown())
	if processing == nil {
		return "delivery_failed"
	}

	questions, err := quiz.Validate(ev.Payload, e.limits)
	if err != nil {
		var verr *quiz.ValidationError
		detail := ""
		outcome := "validation_failed"
		switch {
		case errors.Is(err, quiz.ErrDecode):
			detail = invalidJSONMessage
			outcome = "decode_failed"
		case errors.Is(err, quiz.ErrNoQuestions):
			detail = noQuestionsMessage
		case errors.As(err, &verr):
			reason := verr.Reason
			if verr.Index > 0 {
				reason = fmt.Sprintf("Question %d: %s", verr.Index, verr.Reason)
			}
			detail = validationErrorMessage(reason)
		default:
			detail = validationErrorMessage(err.Error())
		}
		e.sender.EditMessage(ctx, sess.ChatID, processing.MessageID, detail, markdown())
		e.restartCycle(ctx, sess, ev)
		return outcome
	}

	e.sender.EditMessage(ctx, sess.ChatID, processing.MessageID,
		validatedMessage(len(questions), sess.Anonymous), markdown())

	sent := e.sender.SendQuizBatch(ctx, sess.ChatID, sess.Anonymous, questions)
	if sent == len(questions) {
		e.sender.EditMessage(ctx, sess.ChatID, processing.MessageID,
			completionMessage(sent, sess.Anonymous), markdown())
		e.restartCycle(ctx, sess, ev)
		return "delivered"
	}
	e.sender.EditMessage(ctx, sess.ChatID, processing.MessageID,
		partialSuccessMessage(sent, len(questions)), markdown())
	e.restartCycle(ctx, sess, ev)
	return "partial"
}

// restartCycle returns the session to the initial state and replays the
// welcome sequence, so every path ends with the user able to go again.
func (e *Engine) restartCycle(ctx context.Context, sess session.Session, ev Event) {
	sess.State = session.StateSelectingPreference
	e.store.Put(ctx, sess)

	if msg := e.sender.SendMessage(ctx, sess.ChatID, restartMessage, markdown()); msg == nil {
		return
	}
	if msg := e.sender.SendMessage(ctx, sess.ChatID, welcomeMessage, markdown()); msg == nil {
		return
	}
	e.sendStyleChooser(ctx, sess.ChatID)
}

func (e *Engine) sendStyleChooser(ctx context.Context, chatID int64) {
	e.sender.SendMessage(ctx, chatID, styleChooserMessage, telegram.SendOptions{
		ParseMode:   "Markdown",
		ReplyMarkup: styleChooserKeyboard(),
	})
}

func (e *Engine) sendTemplate(ctx context.Context, chatID int64) {
	if msg := e.sender.SendMessage(ctx, chatID, templateLeadMessage, markdown()); msg == nil {
		return
	}
	if msg := e.sender.SendMessage(ctx, chatID, templateJSON, telegram.SendOptions{}); msg == nil {
		return
	}
	e.sender.SendMessage(ctx, chatID, templateFollowupMessage, markdown())
}

func (e *Engine) auditEvent(ev Event, outcome string) {
	if e.audit == nil {
		return
	}
	rec := storage.AuditRecord{
		ID:        uuid.NewString(),
		UserID:    ev.UserID,
		Kind:      string(ev.Kind),
		Outcome:   outcome,
		CreatedAt: time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := e.audit.AppendAudit(ctx, rec); err != nil {
			e.logger.Debug("audit_append_error", "user_id", ev.UserID, "error", err.Error())
		}
	}()
}

func markdown() telegram.SendOptions {
	return telegram.SendOptions{ParseMode: "Markdown"}
}
