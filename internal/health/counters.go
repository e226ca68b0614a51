// Package health aggregates process pressure and service counters into a
// health verdict and runs best-effort remediation when the verdict is
// critical.
package health

import (
	"sync/atomic"
	"time"
)

// Counters is the shared counter set maintained by the engine and the
// delivery layer. All methods are safe for concurrent use.
type Counters struct {
	requests  atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
	lastError atomic.Int64 // unix seconds, 0 when no error recorded
}

func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) RecordRequest() {
	c.requests.Add(1)
}

func (c *Counters) RecordSuccess() {
	c.successes.Add(1)
}

func (c *Counters) RecordFailure() {
	c.failures.Add(1)
	c.lastError.Store(time.Now().Unix())
}

// ResetErrors clears the failure count and last-error timestamp. Requests
// and successes are cumulative for the life of the process.
func (c *Counters) ResetErrors() {
	c.failures.Store(0)
	c.lastError.Store(0)
}

func (c *Counters) Requests() int64  { return c.requests.Load() }
func (c *Counters) Successes() int64 { return c.successes.Load() }
func (c *Counters) Failures() int64  { return c.failures.Load() }

func (c *Counters) LastError() time.Time {
	unix := c.lastError.Load()
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}
