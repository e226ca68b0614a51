// Package delivery sends and edits messages and submits quiz polls through
// the transport, masking transient transport failures with bounded retry.
//
// Every primitive returns a nil message when the step could not be
// completed; callers treat nil as "this step did not happen" and decide
// whether the conversation continues. Nothing in this package panics or
// surfaces a transport error directly.
package delivery

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/health"
	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/quiz"
	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/telegram"
)

// Transport is the outbound messaging boundary. *telegram.Client satisfies
// it; tests substitute function-backed fakes.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string, opts telegram.SendOptions) (*telegram.Message, error)
	SendPoll(ctx context.Context, poll telegram.QuizPoll) (*telegram.Message, error)
}

type Sender struct {
	transport Transport
	counters  *health.Counters
	logger    *slog.Logger

	maxAttempts   int
	baseDelay     time.Duration
	retryAfterCap time.Duration
	pollPause     time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

type Options struct {
	Transport Transport
	Counters  *health.Counters
	Logger    *slog.Logger

	// MaxAttempts bounds retries of transient failures; defaults to 3.
	MaxAttempts int
	// BaseDelay is the linear backoff unit (wait = BaseDelay x attempt);
	// defaults to 2s.
	BaseDelay time.Duration
	// RetryAfterCap caps a server-requested wait; defaults to 60s.
	RetryAfterCap time.Duration
	// PollPause is the pause between polls of one batch; defaults to 50ms.
	PollPause time.Duration
}

func New(opts Options) (*Sender, error) {
	if opts.Transport == nil {
		return nil, errors.New("delivery: transport is required")
	}
	if opts.Counters == nil {
		opts.Counters = health.NewCounters()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 2 * time.Second
	}
	if opts.RetryAfterCap <= 0 {
		opts.RetryAfterCap = 60 * time.Second
	}
	if opts.PollPause <= 0 {
		opts.PollPause = 50 * time.Millisecond
	}
	return &Sender{
		transport:     opts.Transport,
		counters:      opts.Counters,
		logger:        opts.Logger,
		maxAttempts:   opts.MaxAttempts,
		baseDelay:     opts.BaseDelay,
		retryAfterCap: opts.RetryAfterCap,
		pollPause:     opts.PollPause,
		sleep:         sleepCtx,
	}, nil
}

// SendMessage sends a new message. Nil means the message was not delivered.
func (s *Sender) SendMessage(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) *telegram.Message {
	return s.withRetry(ctx, "send_message", func(ctx context.Context) (*telegram.Message, error) {
		return s.transport.SendMessage(ctx, chatID, text, opts)
	})
}

// EditMessage edits an existing message. Nil means the edit did not happen.
func (s *Sender) EditMessage(ctx context.Context, chatID, messageID int64, text string, opts telegram.SendOptions) *telegram.Message {
	return s.withRetry(ctx, "edit_message", func(ctx context.Context) (*telegram.Message, error) {
		return s.transport.EditMessageText(ctx, chatID, messageID, text, opts)
	})
}

// SendQuizPoll submits one quiz poll. The poll is checked again here before
// sending; this duplicates the validator on purpose, as a last guard against
// malformed internal callers, and a violation refuses the send outright.
func (s *Sender) SendQuizPoll(ctx context.Context, poll telegram.QuizPoll) *telegram.Message {
	if poll.CorrectID < 0 {
		// Already-validated data may carry the unset sentinel; delivery is
		// the only place it defaults to the first option.
		poll.CorrectID = 0
	}
	if err := checkPoll(poll); err != nil {
		s.logger.Warn("delivery_poll_rejected", "chat_id", poll.ChatID, "error", err.Error())
		return nil
	}
	return s.withRetry(ctx, "send_poll", func(ctx context.Context) (*telegram.Message, error) {
		return s.transport.SendPoll(ctx, poll)
	})
}

// SendQuizBatch sends one poll per question and returns how many the
// transport acknowledged. The acknowledged count is authoritative: a batch
// cut short by a timeout reports only what actually went out.
func (s *Sender) SendQuizBatch(ctx context.Context, chatID int64, anonymous bool, questions []quiz.Question) int {
	sent := 0
	for _, q := range questions {
		if ctx.Err() != nil {
			break
		}
		msg := s.SendQuizPoll(ctx, telegram.QuizPoll{
			ChatID:      chatID,
			Question:    q.Text,
			Options:     q.Options,
			CorrectID:   q.Correct,
			Anonymous:   anonymous,
			Explanation: q.Explanation,
		})
		if msg != nil {
			sent++
		}
		if err := s.sleep(ctx, s.pollPause); err != nil {
			break
		}
	}
	return sent
}

func checkPoll(poll telegram.QuizPoll) error {
	if poll.Question == "" {
		return errors.New("poll question is empty")
	}
	if len(poll.Options) < 2 || len(poll.Options) > 10 {
		return errors.New("poll option count out of range")
	}
	if poll.CorrectID < 0 || poll.CorrectID >= len(poll.Options) {
		return errors.New("poll correct option out of range")
	}
	return nil
}

func (s *Sender) withRetry(ctx context.Context, op string, fn func(ctx context.Context) (*telegram.Message, error)) *telegram.Message {
	attempt := 1
	for {
		msg, err := fn(ctx)
		if err == nil {
			s.counters.RecordSuccess()
			return msg
		}

		switch classify(err) {
		case classRateLimited:
			wait := retryAfter(err)
			if wait > s.retryAfterCap {
				wait = s.retryAfterCap
			}
			s.logger.Warn("delivery_rate_limited", "op", op, "wait", wait.String())
			if sleepErr := s.sleep(ctx, wait); sleepErr != nil {
				return nil
			}
			// A server-requested wait does not consume a retry slot.
			continue
		case classRetryable:
			if attempt >= s.maxAttempts {
				s.logger.Warn("delivery_retries_exhausted", "op", op, "attempts", attempt, "error", err.Error())
				s.counters.RecordFailure()
				return nil
			}
			backoff := s.baseDelay * time.Duration(attempt)
			s.logger.Debug("delivery_retry", "op", op, "attempt", attempt, "backoff", backoff.String())
			if sleepErr := s.sleep(ctx, backoff); sleepErr != nil {
				return nil
			}
			attempt++
		default: // classFatal
			s.logger.Warn("delivery_request_rejected", "op", op, "error", err.Error())
			return nil
		}
	}
}

type class int

const (
	classRetryable class = iota
	classRateLimited
	classFatal
)

// classify maps a transport error to a retry class: rate-limited replies
// carry an explicit wait, network/timeout/5xx failures are retryable, and
// everything else means the request itself is wrong.
func classify(err error) class {
	var reqErr *telegram.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.RetryAfter > 0 || reqErr.StatusCode == 429:
			return classRateLimited
		case reqErr.StatusCode >= 500:
			return classRetryable
		default:
			return classFatal
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return classRetryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return classRetryable
	}
	return classFatal
}

func retryAfter(err error) time.Duration {
	var reqErr *telegram.RequestError
	if errors.As(err, &reqErr) {
		if d := reqErr.RetryAfterDuration(); d > 0 {
			return d
		}
	}
	return time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
