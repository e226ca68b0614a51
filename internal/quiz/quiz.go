// Package quiz parses and validates user-submitted quiz payloads.
//
// The accepted wire format is the historical one: a JSON object whose
// question list may live under any of several legacy key names, with the
// same aliasing applied per question field. The aliases are load-bearing
// compatibility behavior and must not be collapsed to a single canonical
// key.
package quiz

import (
	"errors"
	"fmt"
)

// Question is one validated quiz question, ready for delivery as a poll.
type Question struct {
	Text        string
	Options     []string
	Correct     int
	Explanation string
}

// Limits bounds a payload during validation.
type Limits struct {
	MaxQuestions      int
	MaxQuestionLen    int
	MinOptions        int
	MaxOptions        int
	MaxOptionLen      int
	MaxExplanationLen int
}

// DefaultLimits returns the product limits. MaxOptions is 10 even though the
// user-facing copy advertises 2-4 options; the wider bound is what the
// validator has always accepted and existing payloads rely on it.
func DefaultLimits() Limits {
	return Limits{
		MaxQuestions:      50,
		MaxQuestionLen:    300,
		MinOptions:        2,
		MaxOptions:        10,
		MaxOptionLen:      100,
		MaxExplanationLen: 200,
	}
}

// ErrDecode reports a payload that is not parseable JSON at all, as opposed
// to one that parses but fails a validation rule.
var ErrDecode = errors.New("quiz: payload is not valid JSON")

// ErrNoQuestions reports a payload with no question list under any accepted
// key, or an empty list.
var ErrNoQuestions = errors.New("quiz: no questions found")

// ValidationError reports the first rule violation in a batch. Index is the
// 1-based position of the offending question; 0 means the violation applies
// to the batch as a whole.
type ValidationError struct {
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "quiz: validation failed"
	}
	if e.Index > 0 {
		return fmt.Sprintf("quiz: question %d: %s", e.Index, e.Reason)
	}
	return "quiz: " + e.Reason
}
