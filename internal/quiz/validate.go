package quiz

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Validate parses a raw payload and checks every question against the
// configured limits. It performs no I/O and has no side effects.
//
// Failure modes are distinct: ErrDecode when the payload is not JSON,
// ErrNoQuestions when no question list is found, and *ValidationError for
// the first per-question rule violation (reported with its 1-based index).
// On success the full question list is returned in payload order.
func Validate(payload string, limits Limits) ([]Question, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &root); err != nil {
		return nil, ErrDecode
	}

	items, ok := firstList(root, questionListKeys)
	if !ok {
		return nil, ErrNoQuestions
	}
	if limits.MaxQuestions > 0 && len(items) > limits.MaxQuestions {
		return nil, &ValidationError{Reason: fmt.Sprintf("too many questions: %d (max %d)", len(items), limits.MaxQuestions)}
	}

	questions := make([]Question, 0, len(items))
	for i, item := range items {
		q, err := validateQuestion(item, i+1, limits)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func validateQuestion(raw json.RawMessage, index int, limits Limits) (Question, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Question{}, &ValidationError{Index: index, Reason: "not an object"}
	}

	text := decodeString(obj, questionTextKeys)
	if strings.TrimSpace(text) == "" {
		return Question{}, &ValidationError{Index: index, Reason: "missing question text"}
	}
	if limits.MaxQuestionLen > 0 && len(text) > limits.MaxQuestionLen {
		return Question{}, &ValidationError{Index: index, Reason: fmt.Sprintf("question text too long (max %d chars)", limits.MaxQuestionLen)}
	}

	options, ok := decodeOptions(obj)
	if !ok {
		return Question{}, &ValidationError{Index: index, Reason: "missing options"}
	}
	if len(options) < limits.MinOptions || len(options) > limits.MaxOptions {
		return Question{}, &ValidationError{Index: index, Reason: fmt.Sprintf("invalid option count: %d (need %d-%d)", len(options), limits.MinOptions, limits.MaxOptions)}
	}
	for _, opt := range options {
		if limits.MaxOptionLen > 0 && len(opt) > limits.MaxOptionLen {
			return Question{}, &ValidationError{Index: index, Reason: fmt.Sprintf("option too long (max %d chars)", limits.MaxOptionLen)}
		}
	}

	correct, err := decodeCorrect(obj)
	if err != nil {
		return Question{}, &ValidationError{Index: index, Reason: err.Error()}
	}
	if correct == correctUnset {
		return Question{}, &ValidationError{Index: index, Reason: "missing correct option index"}
	}
	if correct < 0 || correct >= len(options) {
		return Question{}, &ValidationError{Index: index, Reason: fmt.Sprintf("correct option index %d out of range (0-%d)", correct, len(options)-1)}
	}

	explanation := decodeString(obj, explanationKeys)
	if limits.MaxExplanationLen > 0 && len(explanation) > limits.MaxExplanationLen {
		return Question{}, &ValidationError{Index: index, Reason: fmt.Sprintf("explanation too long (max %d chars)", limits.MaxExplanationLen)}
	}

	return Question{
		Text:        text,
		Options:     options,
		Correct:     correct,
		Explanation: explanation,
	}, nil
}

// decodeString resolves an aliased string field. A key holding an empty
// string is skipped so a later alias can still supply the value.
func decodeString(obj map[string]json.RawMessage, keys []string) string {
	for _, key := range keys {
		raw, ok := obj[key]
		if !ok || isJSONNull(raw) {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if s == "" {
			continue
		}
		return s
	}
	return ""
}

// decodeOptions resolves the option-list aliases with the same empty-value
// fallthrough as the payload-level question list.
func decodeOptions(obj map[string]json.RawMessage) ([]string, bool) {
	for _, key := range optionKeys {
		raw, ok := obj[key]
		if !ok || isJSONNull(raw) {
			continue
		}
		var options []string
		if err := json.Unmarshal(raw, &options); err != nil {
			continue
		}
		if len(options) == 0 {
			continue
		}
		return options, true
	}
	return nil, false
}

func decodeCorrect(obj map[string]json.RawMessage) (int, error) {
	raw, ok := firstValue(obj, correctKeys)
	if !ok {
		return correctUnset, nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return 0, fmt.Errorf("correct option index must be an integer")
	}
	n, err := num.Int64()
	if err != nil {
		return 0, fmt.Errorf("correct option index must be an integer")
	}
	return int(n), nil
}
