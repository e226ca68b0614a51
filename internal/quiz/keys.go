package quiz

import (
	"bytes"
	"encoding/json"
)

// Legacy key aliases, in priority order. The first present, non-empty match
// wins; only the correct-index keys resolve on presence alone, since 0 and
// an absent index mean different things.
var (
	questionListKeys = []string{"all_q", "q", "all_questions"}
	questionTextKeys = []string{"q", "question"}
	optionKeys       = []string{"o", "options"}
	correctKeys      = []string{"c", "correct", "correct_option_id"}
	explanationKeys  = []string{"e", "explanation"}
)

// correctUnset is the sentinel for a missing correct-option index. Validation
// never defaults a missing index; only the delivery-side poll builder may
// treat it as 0, and only for data that already passed validation.
const correctUnset = -1

// firstValue resolves an aliased field: the first key that is present and not
// JSON null wins.
func firstValue(obj map[string]json.RawMessage, keys []string) (json.RawMessage, bool) {
	for _, key := range keys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		if isJSONNull(raw) {
			continue
		}
		return raw, true
	}
	return nil, false
}

// firstList resolves an aliased list field, skipping keys whose value is an
// empty list so that a later alias can still supply the data.
func firstList(obj map[string]json.RawMessage, keys []string) ([]json.RawMessage, bool) {
	for _, key := range keys {
		raw, ok := obj[key]
		if !ok || isJSONNull(raw) {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			continue
		}
		if len(items) == 0 {
			continue
		}
		return items, true
	}
	return nil, false
}

func isJSONNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
