package health

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// Status is the derived health verdict.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// Snapshot is a point-in-time aggregate. It is derived on each check, never
// stored as a source of truth.
type Snapshot struct {
	Time           time.Time `json:"time"`
	MemoryPercent  float64   `json:"memory_percent"`
	CPUPercent     float64   `json:"cpu_percent"`
	HeapBytes      uint64    `json:"heap_bytes"`
	Goroutines     int       `json:"goroutines"`
	ActiveSessions int       `json:"active_sessions"`
	Requests       int64     `json:"requests"`
	Successes      int64     `json:"successes"`
	Failures       int64     `json:"failures"`
	LastError      time.Time `json:"last_error,omitempty"`
	Status         Status    `json:"status"`
}

// SessionStore is the slice of the session store the monitor needs.
type SessionStore interface {
	Len() int
	Sweep(ctx context.Context) int
}

// Reconnecter lets remediation reinitialize the durable-storage connection.
type Reconnecter interface {
	Reconnect(ctx context.Context) error
}

// Thresholds classify a snapshot. Crossing the error budget is critical by
// itself; a single crossed pressure threshold degrades the verdict and both
// together make it critical.
type Thresholds struct {
	MemoryPercent float64
	CPUPercent    float64
	MaxErrors     int64
}

type Monitor struct {
	counters *Counters
	store    SessionStore
	storage  Reconnecter
	logger   *slog.Logger

	thresholds Thresholds
	interval   time.Duration
	probe      func(ctx context.Context) (memPercent, cpuPercent float64, err error)

	mu   sync.Mutex
	last Snapshot
}

type MonitorOptions struct {
	Counters   *Counters
	Store      SessionStore
	Storage    Reconnecter
	Logger     *slog.Logger
	Thresholds Thresholds
	// Interval between periodic checks; defaults to 1m.
	Interval time.Duration
}

func NewMonitor(opts MonitorOptions) *Monitor {
	if opts.Counters == nil {
		opts.Counters = NewCounters()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Thresholds.MemoryPercent <= 0 {
		opts.Thresholds.MemoryPercent = 90
	}
	if opts.Thresholds.CPUPercent <= 0 {
		opts.Thresholds.CPUPercent = 85
	}
	if opts.Thresholds.MaxErrors <= 0 {
		opts.Thresholds.MaxErrors = 50
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	return &Monitor{
		counters:   opts.Counters,
		store:      opts.Store,
		storage:    opts.Storage,
		logger:     opts.Logger,
		thresholds: opts.Thresholds,
		interval:   opts.Interval,
		probe:      probeProcess,
	}
}

// Check samples process pressure and counters, classifies the result, and
// runs remediation when the verdict is critical.
func (m *Monitor) Check(ctx context.Context) Snapshot {
	snap := m.sample(ctx)
	snap.Status = m.classify(snap)

	m.mu.Lock()
	m.last = snap
	m.mu.Unlock()

	switch snap.Status {
	case StatusCritical:
		m.logger.Warn("health_critical",
			"memory_percent", snap.MemoryPercent,
			"cpu_percent", snap.CPUPercent,
			"failures", snap.Failures)
		m.remediate(ctx)
	case StatusDegraded:
		m.logger.Warn("health_degraded",
			"memory_percent", snap.MemoryPercent,
			"cpu_percent", snap.CPUPercent,
			"failures", snap.Failures)
	}
	return snap
}

func (m *Monitor) sample(ctx context.Context) Snapshot {
	snap := Snapshot{
		Time:      time.Now(),
		Requests:  m.counters.Requests(),
		Successes: m.counters.Successes(),
		Failures:  m.counters.Failures(),
		LastError: m.counters.LastError(),
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	snap.HeapBytes = ms.HeapAlloc
	snap.Goroutines = runtime.NumGoroutine()
	if m.store != nil {
		snap.ActiveSessions = m.store.Len()
	}
	memPct, cpuPct, err := m.probe(ctx)
	if err != nil {
		m.logger.Warn("health_probe_error", "error", err.Error())
	} else {
		snap.MemoryPercent = memPct
		snap.CPUPercent = cpuPct
	}
	return snap
}

func (m *Monitor) classify(snap Snapshot) Status {
	// An error-budget breach is critical on its own: only remediation
	// resets the failure counters. Pressure readings need a second signal.
	if snap.Failures >= m.thresholds.MaxErrors {
		return StatusCritical
	}
	crossed := 0
	if snap.MemoryPercent >= m.thresholds.MemoryPercent {
		crossed++
	}
	if snap.CPUPercent >= m.thresholds.CPUPercent {
		crossed++
	}
	switch {
	case crossed == 0:
		return StatusHealthy
	case crossed == 1:
		return StatusDegraded
	default:
		return StatusCritical
	}
}

// remediate is best-effort and idempotent: force a session sweep, clear the
// error counters, and reinitialize the storage connection. Repeating it
// compounds nothing.
func (m *Monitor) remediate(ctx context.Context) {
	if m.store != nil {
		evicted := m.store.Sweep(ctx)
		m.logger.Info("health_remediation_sweep", "evicted", evicted)
	}
	m.counters.ResetErrors()
	if m.storage != nil {
		if err := m.storage.Reconnect(ctx); err != nil {
			m.logger.Warn("health_remediation_reconnect_error", "error", err.Error())
		}
	}
}

// Last returns the most recent snapshot, or a fresh check when none exists.
func (m *Monitor) Last(ctx context.Context) Snapshot {
	m.mu.Lock()
	last := m.last
	m.mu.Unlock()
	if last.Time.IsZero() {
		return m.Check(ctx)
	}
	return last
}

// Run checks on the configured interval until the context is canceled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
