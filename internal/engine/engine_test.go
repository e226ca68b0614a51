package engine

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/delivery"
	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/health"
	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/ratelimit"
	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/session"
	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/telegram"
)

type sentText struct {
	chatID int64
	text   string
	opts   telegram.SendOptions
}

type editedText struct {
	messageID int64
	text      string
}

// fakeTransport records every call so a test can assert on the full
// conversation a single event produced.
type fakeTransport struct {
	mu     sync.Mutex
	nextID int64
	sends  []sentText
	edits  []editedText
	polls  []telegram.QuizPoll
}

func (f *fakeTransport) SendMessage(_ context.Context, chatID int64, text string, opts telegram.SendOptions) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sends = append(f.sends, sentText{chatID: chatID, text: text, opts: opts})
	return &telegram.Message{MessageID: f.nextID}, nil
}

func (f *fakeTransport) EditMessageText(_ context.Context, _, messageID int64, text string, _ telegram.SendOptions) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, editedText{messageID: messageID, text: text})
	return &telegram.Message{MessageID: messageID}, nil
}

func (f *fakeTransport) SendPoll(_ context.Context, poll telegram.QuizPoll) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.polls = append(f.polls, poll)
	return &telegram.Message{MessageID: f.nextID}, nil
}

func (f *fakeTransport) sentTexts() []sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentText(nil), f.sends...)
}

func (f *fakeTransport) sentPolls() []telegram.QuizPoll {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]telegram.QuizPoll(nil), f.polls...)
}

func (f *fakeTransport) editedTexts() []editedText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]editedText(nil), f.edits...)
}

type fakeRepo struct{}

func (fakeRepo) LoadSession(context.Context, int64) (session.Session, bool, error) {
	return session.Session{}, false, nil
}

func (fakeRepo) SaveSession(context.Context, session.Session) error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, opts Options) (*Engine, *fakeTransport) {
	t.Helper()
	transport := &fakeTransport{}
	logger := discardLogger()
	sender, err := delivery.New(delivery.Options{
		Transport: transport,
		Logger:    logger,
		PollPause: time.Microsecond,
	})
	if err != nil {
		t.Fatalf("delivery.New: %v", err)
	}
	opts.Sender = sender
	if opts.Store == nil {
		opts.Store = session.NewStore(session.StoreOptions{Repo: fakeRepo{}, Logger: logger})
	}
	opts.Logger = logger
	eng, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(eng.Shutdown)
	return eng, transport
}

const validPayload = `{"all_q":[` +
	`{"q":"Capital of France?","o":["London","Paris"],"c":1,"e":"Paris."},` +
	`{"q":"What is 2+2?","o":["3","4","5"],"c":1}` +
	`]}`

func TestBeginSendsGreetingAndChooser(t *testing.T) {
	eng, transport := newTestEngine(t, Options{})
	ctx := context.Background()

	out := eng.process(ctx, Event{UserID: 7, ChatID: 70, FirstName: "Ada", Kind: KindBegin})
	if out != "handled" {
		t.Fatalf("outcome = %q, want handled", out)
	}

	sends := transport.sentTexts()
	if len(sends) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sends))
	}
	if !strings.Contains(sends[0].text, "Ada") {
		t.Errorf("greeting %q does not address the user", sends[0].text)
	}
	if sends[1].opts.ReplyMarkup == nil || len(sends[1].opts.ReplyMarkup.InlineKeyboard) == 0 {
		t.Fatalf("chooser message has no inline keyboard")
	}
	if got := eng.store.Get(ctx, 7).State; got != session.StateSelectingPreference {
		t.Errorf("state = %q, want %q", got, session.StateSelectingPreference)
	}
}

func TestPreferenceMovesToAwaitingPayload(t *testing.T) {
	eng, transport := newTestEngine(t, Options{})
	ctx := context.Background()

	out := eng.process(ctx, Event{UserID: 7, ChatID: 70, Kind: KindPreference, Anonymous: false, MessageID: 42})
	if out != "handled" {
		t.Fatalf("outcome = %q, want handled", out)
	}

	sess := eng.store.Get(ctx, 7)
	if sess.State != session.StateAwaitingPayload {
		t.Errorf("state = %q, want %q", sess.State, session.StateAwaitingPayload)
	}
	if sess.Anonymous {
		t.Errorf("anonymous = true, want false")
	}

	edits := transport.editedTexts()
	if len(edits) != 1 || edits[0].messageID != 42 {
		t.Fatalf("edits = %+v, want one edit of message 42", edits)
	}
	sends := transport.sentTexts()
	if len(sends) != 2 {
		t.Fatalf("sent %d messages after edit, want 2 (template + instructions)", len(sends))
	}
	if sends[0].text != templateJSON {
		t.Errorf("first follow-up is not the raw template")
	}
	if sends[0].opts.ParseMode != "" {
		t.Errorf("template sent with parse mode %q, want plain text", sends[0].opts.ParseMode)
	}
}

func TestPayloadDeliversPollsAndRestarts(t *testing.T) {
	eng, transport := newTestEngine(t, Options{})
	ctx := context.Background()

	eng.process(ctx, Event{UserID: 7, ChatID: 70, Kind: KindPreference, Anonymous: true})

	out := eng.process(ctx, Event{UserID: 7, ChatID: 70, Kind: KindPayload, Payload: validPayload})
	if out != "delivered" {
		t.Fatalf("outcome = %q, want delivered", out)
	}

	polls := transport.sentPolls()
	if len(polls) != 2 {
		t.Fatalf("sent %d polls, want 2", len(polls))
	}
	if polls[0].Question != "Capital of France?" || polls[1].Question != "What is 2+2?" {
		t.Errorf("polls out of order: %q, %q", polls[0].Question, polls[1].Question)
	}
	if !polls[0].Anonymous || !polls[1].Anonymous {
		t.Errorf("polls do not carry the chosen anonymous style")
	}
	if polls[1].CorrectID != 1 {
		t.Errorf("second poll correct id = %d, want 1", polls[1].CorrectID)
	}

	edits := transport.editedTexts()
	if len(edits) != 2 {
		t.Fatalf("got %d edits of the processing message, want 2", len(edits))
	}
	if !strings.Contains(edits[len(edits)-1].text, "2") {
		t.Errorf("completion edit %q does not mention the count", edits[len(edits)-1].text)
	}

	if got := eng.store.Get(ctx, 7).State; got != session.StateSelectingPreference {
		t.Errorf("state after delivery = %q, want %q", got, session.StateSelectingPreference)
	}
}

func TestPayloadRejectedKeepsPollsUnsent(t *testing.T) {
	eng, transport := newTestEngine(t, Options{})
	ctx := context.Background()

	eng.process(ctx, Event{UserID: 7, ChatID: 70, Kind: KindPreference, Anonymous: true})

	bad := `{"all_q":[{"q":"ok?","o":["a","b"],"c":5}]}`
	out := eng.process(ctx, Event{UserID: 7, ChatID: 70, Kind: KindPayload, Payload: bad})
	if out != "validation_failed" {
		t.Fatalf("outcome = %q, want validation_failed", out)
	}
	if polls := transport.sentPolls(); len(polls) != 0 {
		t.Fatalf("sent %d polls from a rejected payload, want 0", len(polls))
	}
	edits := transport.editedTexts()
	if len(edits) != 1 || !strings.Contains(edits[0].text, "Question 1") {
		t.Fatalf("edits = %+v, want one error edit naming question 1", edits)
	}
	if got := eng.store.Get(ctx, 7).State; got != session.StateSelectingPreference {
		t.Errorf("state after rejection = %q, want %q", got, session.StateSelectingPreference)
	}
}

func TestPayloadOutsideAwaitingStateRedirects(t *testing.T) {
	eng, transport := newTestEngine(t, Options{})
	ctx := context.Background()

	out := eng.process(ctx, Event{UserID: 7, ChatID: 70, Kind: KindPayload, Payload: validPayload})
	if out != "redirected" {
		t.Fatalf("outcome = %q, want redirected", out)
	}
	if polls := transport.sentPolls(); len(polls) != 0 {
		t.Fatalf("sent %d polls without a chosen style, want 0", len(polls))
	}
	sends := transport.sentTexts()
	if len(sends) == 0 || sends[0].text != redirectMessage {
		t.Fatalf("first message %+v, want the redirect notice", sends)
	}
}

func TestPreferencePersistsAcrossCycles(t *testing.T) {
	eng, transport := newTestEngine(t, Options{})
	ctx := context.Background()

	eng.process(ctx, Event{UserID: 7, ChatID: 70, Kind: KindPreference, Anonymous: false})
	eng.process(ctx, Event{UserID: 7, ChatID: 70, Kind: KindPayload, Payload: validPayload})

	// The cycle restarted; the style must survive into the next round.
	eng.process(ctx, Event{UserID: 7, ChatID: 70, Kind: KindPreference, Anonymous: false})
	eng.process(ctx, Event{UserID: 7, ChatID: 70, Kind: KindPayload, Payload: validPayload})

	polls := transport.sentPolls()
	if len(polls) != 4 {
		t.Fatalf("sent %d polls over two cycles, want 4", len(polls))
	}
	for i, p := range polls {
		if p.Anonymous {
			t.Errorf("poll %d anonymous = true, want false", i)
		}
	}
}

func TestHandleEventQueuesAndProcesses(t *testing.T) {
	eng, transport := newTestEngine(t, Options{})
	ctx := context.Background()

	out := eng.HandleEvent(ctx, Event{UserID: 7, ChatID: 70, Kind: KindBegin})
	if out.Kind != OutcomeQueued {
		t.Fatalf("outcome = %q, want %q", out.Kind, OutcomeQueued)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(transport.sentTexts()) >= 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("queued event never produced the welcome sequence; sent %d messages", len(transport.sentTexts()))
}

func TestHandleEventRateLimited(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.LimiterOptions{
		Name:     "short",
		Max:      1,
		Window:   time.Minute,
		Cooldown: 5 * time.Minute,
	})
	eng, _ := newTestEngine(t, Options{
		Admitter: ratelimit.NewAdmitter(discardLogger(), limiter),
		Counters: health.NewCounters(),
	})
	ctx := context.Background()

	if out := eng.HandleEvent(ctx, Event{UserID: 7, ChatID: 70, Kind: KindHelp}); out.Kind != OutcomeQueued {
		t.Fatalf("first event outcome = %q, want %q", out.Kind, OutcomeQueued)
	}
	out := eng.HandleEvent(ctx, Event{UserID: 7, ChatID: 70, Kind: KindHelp})
	if out.Kind != OutcomeRateLimited {
		t.Fatalf("second event outcome = %q, want %q", out.Kind, OutcomeRateLimited)
	}
	if out.RetryAt.IsZero() {
		t.Errorf("rate-limited outcome has no retry time")
	}
}

func TestCommandsReplyInPlace(t *testing.T) {
	eng, transport := newTestEngine(t, Options{})
	ctx := context.Background()

	cases := []struct {
		kind Kind
		want string
	}{
		{KindHelp, "Help"},
		{KindQuickstart, "Quick Start"},
		{KindStatus, "Status"},
	}
	for _, tc := range cases {
		before := len(transport.sentTexts())
		if out := eng.process(ctx, Event{UserID: 7, ChatID: 70, Kind: tc.kind}); out != "handled" {
			t.Fatalf("%s outcome = %q, want handled", tc.kind, out)
		}
		sends := transport.sentTexts()
		if len(sends) != before+1 {
			t.Fatalf("%s sent %d messages, want 1", tc.kind, len(sends)-before)
		}
		if !strings.Contains(sends[before].text, tc.want) {
			t.Errorf("%s reply %q does not contain %q", tc.kind, sends[before].text, tc.want)
		}
	}

	if out := eng.process(ctx, Event{UserID: 7, ChatID: 70, Kind: KindToggle}); out != "handled" {
		t.Fatalf("toggle outcome = %q, want handled", out)
	}
	sends := transport.sentTexts()
	last := sends[len(sends)-1]
	if last.opts.ReplyMarkup == nil {
		t.Errorf("toggle reply has no inline keyboard")
	}
}
