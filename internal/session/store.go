package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Store is the in-memory session map with read-through to durable storage.
// Lookups that miss both memory and storage yield a fresh default session.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session

	repo      Repository
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

type StoreOptions struct {
	Repo Repository
	// Retention is the inactivity window after which a session is persisted
	// and evicted; defaults to 1h.
	Retention time.Duration
	Logger    *slog.Logger
}

func NewStore(opts StoreOptions) *Store {
	if opts.Retention <= 0 {
		opts.Retention = time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		sessions:  make(map[int64]*Session),
		repo:      opts.Repo,
		retention: opts.Retention,
		logger:    opts.Logger,
		now:       time.Now,
	}
}

// Touch loads (or creates) the user's session, unconditionally records
// activity, and returns a copy. Activity is recorded before the caller does
// anything else with the event, so activity tracking never depends on a
// later delivery step succeeding.
func (s *Store) Touch(ctx context.Context, userID, chatID int64) Session {
	now := s.now()

	s.mu.Lock()
	sess, ok := s.sessions[userID]
	s.mu.Unlock()

	if !ok {
		loaded := s.load(ctx, userID)
		s.mu.Lock()
		// Another goroutine may have raced the load; keep the existing entry.
		if cur, exists := s.sessions[userID]; exists {
			sess = cur
		} else {
			sess = &loaded
			s.sessions[userID] = sess
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	sess.LastActivity = now
	sess.Requests++
	if chatID != 0 {
		sess.ChatID = chatID
	}
	copied := *sess
	s.mu.Unlock()
	return copied
}

// Put replaces the stored session and mirrors it to durable storage.
// Storage failures are logged, not surfaced: the in-memory state is the
// working truth for an active conversation.
func (s *Store) Put(ctx context.Context, sess Session) {
	s.mu.Lock()
	stored := sess
	s.sessions[sess.UserID] = &stored
	s.mu.Unlock()

	if s.repo == nil {
		return
	}
	if err := s.repo.SaveSession(ctx, sess); err != nil {
		s.logger.Warn("session_persist_error", "user_id", sess.UserID, "error", err.Error())
	}
}

// Get returns a copy of the user's session without recording activity,
// read-through included.
func (s *Store) Get(ctx context.Context, userID int64) Session {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if ok {
		copied := *sess
		s.mu.Unlock()
		return copied
	}
	s.mu.Unlock()
	return s.load(ctx, userID)
}

func (s *Store) load(ctx context.Context, userID int64) Session {
	if s.repo != nil {
		sess, found, err := s.repo.LoadSession(ctx, userID)
		if err != nil {
			s.logger.Warn("session_load_error", "user_id", userID, "error", err.Error())
		} else if found {
			return sess
		}
	}
	return defaultSession(userID)
}

// Len reports the number of in-memory sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep persists and evicts sessions idle past the retention threshold and
// returns how many were evicted. The candidate set is snapshotted first so
// the store lock is never held across storage I/O; sessions that become
// active mid-sweep are left alone. Re-running a sweep with no idle sessions
// is a no-op.
func (s *Store) Sweep(ctx context.Context) int {
	cutoff := s.now().Add(-s.retention)

	s.mu.Lock()
	candidates := make([]Session, 0)
	for _, sess := range s.sessions {
		if sess.LastActivity.Before(cutoff) {
			candidates = append(candidates, *sess)
		}
	}
	s.mu.Unlock()

	evicted := 0
	for _, c := range candidates {
		if s.repo != nil {
			if err := s.repo.SaveSession(ctx, c); err != nil {
				s.logger.Warn("session_sweep_persist_error", "user_id", c.UserID, "error", err.Error())
			}
		}
		s.mu.Lock()
		if cur, ok := s.sessions[c.UserID]; ok && !cur.LastActivity.After(c.LastActivity) {
			delete(s.sessions, c.UserID)
			evicted++
		}
		s.mu.Unlock()
	}
	if evicted > 0 {
		s.logger.Info("session_swept", "evicted", evicted)
	}
	return evicted
}

// Run sweeps on a fixed interval until the context is canceled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
