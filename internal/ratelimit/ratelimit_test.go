package ratelimit

import (
	"testing"
	"time"
)

func newTestLimiter(opts LimiterOptions) (*Limiter, *time.Time) {
	l := NewLimiter(opts)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiterAdmitsUpToMax(t *testing.T) {
	t.Parallel()

	l, now := newTestLimiter(LimiterOptions{Name: "short", Max: 5, Window: time.Minute, Cooldown: 5 * time.Minute})
	for i := 0; i < 5; i++ {
		ok, _ := l.Allow(1)
		if !ok {
			t.Fatalf("Allow() #%d denied, want admitted", i+1)
		}
		*now = now.Add(time.Second)
	}
	ok, until := l.Allow(1)
	if ok {
		t.Fatalf("Allow() #6 admitted, want denied")
	}
	if want := now.Add(5 * time.Minute); !until.Equal(want) {
		t.Fatalf("blocked until %v, want %v", until, want)
	}
}

func TestLimiterCooldownOutlivesWindow(t *testing.T) {
	t.Parallel()

	l, now := newTestLimiter(LimiterOptions{Name: "short", Max: 2, Window: time.Minute, Cooldown: 5 * time.Minute})
	l.Allow(1)
	l.Allow(1)
	if ok, _ := l.Allow(1); ok {
		t.Fatalf("expected denial at max")
	}

	// Two minutes later the window has drained, but the cooldown has not.
	*now = now.Add(2 * time.Minute)
	if ok, _ := l.Allow(1); ok {
		t.Fatalf("expected denial during cooldown even though window drained")
	}

	*now = now.Add(4 * time.Minute)
	if ok, _ := l.Allow(1); !ok {
		t.Fatalf("expected admission after cooldown expiry")
	}
}

func TestLimiterWindowEviction(t *testing.T) {
	t.Parallel()

	l, now := newTestLimiter(LimiterOptions{Name: "short", Max: 2, Window: time.Minute, Cooldown: 5 * time.Minute})
	l.Allow(1)
	*now = now.Add(61 * time.Second)
	l.Allow(1)
	// The first event aged out, so this is the second in-window event, not
	// the third.
	*now = now.Add(time.Second)
	if ok, _ := l.Allow(1); !ok {
		t.Fatalf("expected admission after eviction of aged timestamps")
	}
}

func TestLimiterUsersAreIndependent(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(LimiterOptions{Name: "short", Max: 1, Window: time.Minute, Cooldown: 5 * time.Minute})
	l.Allow(1)
	if ok, _ := l.Allow(1); ok {
		t.Fatalf("user 1 should be denied")
	}
	if ok, _ := l.Allow(2); !ok {
		t.Fatalf("user 2 should be unaffected by user 1's cooldown")
	}
}

func TestAdmitterRequiresAllLimiters(t *testing.T) {
	t.Parallel()

	short, _ := newTestLimiter(LimiterOptions{Name: "short", Max: 10, Window: time.Minute, Cooldown: time.Minute})
	long, _ := newTestLimiter(LimiterOptions{Name: "long", Max: 2, Window: time.Hour, Cooldown: time.Minute})
	a := NewAdmitter(nil, short, long)

	for i := 0; i < 2; i++ {
		if ok, _ := a.Admit(7); !ok {
			t.Fatalf("Admit() #%d denied, want admitted", i+1)
		}
	}
	ok, denial := a.Admit(7)
	if ok {
		t.Fatalf("Admit() #3 admitted, want denied by long window")
	}
	if denial.Window != "long" {
		t.Fatalf("denial.Window = %q, want %q", denial.Window, "long")
	}
}
