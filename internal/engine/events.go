package engine

import "time"

// Kind is the inbound event type the state machine dispatches on.
type Kind string

const (
	// KindBegin resets the conversation cycle (/start).
	KindBegin Kind = "begin"
	// KindPreference records the quiz style chosen from the inline keyboard
	// or via /toggle. Honored in any state.
	KindPreference Kind = "preference"
	// KindPayload is a raw text message, expected to be the quiz JSON.
	KindPayload Kind = "payload"

	KindHelp       Kind = "help"
	KindTemplate   Kind = "template"
	KindQuickstart Kind = "quickstart"
	KindStatus     Kind = "status"
	KindToggle     Kind = "toggle"
)

// Event is one inbound chat event, already translated from the transport's
// wire format by the HTTP front door.
type Event struct {
	UserID    int64
	ChatID    int64
	FirstName string
	Kind      Kind

	// Anonymous carries the chosen style for KindPreference.
	Anonymous bool
	// Payload carries the raw text for KindPayload.
	Payload string
	// MessageID, when set on a KindPreference event, is the chooser message
	// to edit in place.
	MessageID int64
}

// OutcomeKind is the admission verdict returned to the front door. The
// conversational result of a queued event is reported to the user over the
// transport, not through this value.
type OutcomeKind string

const (
	OutcomeQueued      OutcomeKind = "queued"
	OutcomeRateLimited OutcomeKind = "rate_limited"
	OutcomeDropped     OutcomeKind = "dropped"
)

type Outcome struct {
	Kind OutcomeKind
	// RetryAt is when a rate-limited user unblocks.
	RetryAt time.Time
}
