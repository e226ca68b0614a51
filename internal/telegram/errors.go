package telegram

import (
	"fmt"
	"strings"
	"time"
)

// RequestError is a non-2xx or ok=false reply from the Bot API. It carries
// enough detail for callers to classify the failure without string matching
// the description.
type RequestError struct {
	StatusCode  int
	ErrorCode   int
	Description string
	RetryAfter  int // seconds, from parameters.retry_after on 429 replies
	Body        string
}

func (e *RequestError) Error() string {
	if e == nil {
		return "telegram request failed"
	}
	desc := strings.TrimSpace(e.Description)
	if desc != "" {
		if e.StatusCode > 0 {
			return fmt.Sprintf("telegram http %d: %s", e.StatusCode, desc)
		}
		return "telegram: " + desc
	}
	body := strings.TrimSpace(e.Body)
	if e.StatusCode > 0 {
		if body != "" {
			return fmt.Sprintf("telegram http %d: %s", e.StatusCode, body)
		}
		return fmt.Sprintf("telegram http %d", e.StatusCode)
	}
	if body != "" {
		return "telegram: " + body
	}
	return "telegram request failed"
}

// RetryAfterDuration returns the server-requested wait, or zero when the
// reply carried none.
func (e *RequestError) RetryAfterDuration() time.Duration {
	if e == nil || e.RetryAfter <= 0 {
		return 0
	}
	return time.Duration(e.RetryAfter) * time.Second
}
