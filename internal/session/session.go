// Package session holds per-user conversation state: the current step of
// the quiz-creation cycle, the delivery preference, and activity tracking
// with retention-based eviction.
package session

import (
	"context"
	"time"
)

// State is the user's position in the conversation cycle.
type State string

const (
	// StateSelectingPreference is the initial state: the user is choosing a
	// quiz style. Every completed or failed cycle returns here.
	StateSelectingPreference State = "selecting_preference"
	// StateAwaitingPayload means the user picked a style and the service is
	// waiting for the quiz JSON.
	StateAwaitingPayload State = "awaiting_payload"
)

// Session is one user's conversation state. There is exactly one session
// per user id at any time; only the engine drives state transitions.
type Session struct {
	UserID       int64     `json:"user_id"`
	ChatID       int64     `json:"chat_id"`
	State        State     `json:"state"`
	Anonymous    bool      `json:"anonymous"`
	LastActivity time.Time `json:"last_activity"`
	Requests     int64     `json:"requests"`
}

// Repository is the durable-storage boundary the store mirrors sessions to.
type Repository interface {
	LoadSession(ctx context.Context, userID int64) (Session, bool, error)
	SaveSession(ctx context.Context, sess Session) error
}

func defaultSession(userID int64) Session {
	return Session{
		UserID:    userID,
		State:     StateSelectingPreference,
		Anonymous: true,
	}
}
