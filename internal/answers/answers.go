package answers

import (
	"strconv"
	"strings"
)

// Map holds one attempt's answers keyed by question number. An absent key
// means the question is unanswered; keys are never renumbered while a
// session is open.
//
// Value shapes by question kind:
//   - scalar string: fill-in, single choice, boolean, matching slot
//   - []string: multiple choice, ordered lists
//   - map[string]any: structured objects such as {"labels": {...}},
//     {"values": {...}} or {"pairs": [...]} for diagram/grouped widgets
type Map map[string]any

// Key converts a question number into its canonical map key.
func Key(question int) string {
	return strconv.Itoa(question)
}

// Get returns the answer for a question number, or nil when unanswered.
func (m Map) Get(question int) any {
	return m[Key(question)]
}

// Set records the answer for a question number. A nil value deletes the key
// so "unanswered" stays representable as key absence.
func (m Map) Set(question int, value any) {
	k := Key(question)
	if value == nil {
		delete(m, k)
		return
	}
	m[k] = value
}

// Delete removes the answer for a question number.
func (m Map) Delete(question int) {
	delete(m, Key(question))
}

// Clone returns a deep copy of the map covering all supported value shapes.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case []string:
		return append([]string(nil), val...)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = cloneValue(e)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, e := range val {
			out[k] = e
		}
		return out
	default:
		// Scalars (string, bool, numbers) are value types.
		return val
	}
}

// Equal reports structural equality between two maps. Reference identity is
// irrelevant: two independently built maps with the same content are equal.
func (m Map) Equal(other Map) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		ov, ok := other[k]
		if !ok || !equalValue(v, ov) {
			return false
		}
	}
	return true
}

func equalValue(a, b any) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case []string:
		bv, ok := b.([]string)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !equalValue(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bve, ok := bv[k]
			if !ok || !equalValue(v, bve) {
				return false
			}
		}
		return true
	case map[string]string:
		bv, ok := b.(map[string]string)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			if bv[k] != v {
				return false
			}
		}
		return true
	case nil:
		return b == nil
	default:
		return a == b
	}
}

// IsEmptyValue reports whether a value counts as "no answer": nil, blank or
// whitespace-only strings, empty collections, and structured objects whose
// members are all empty themselves.
func IsEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []string:
		for _, e := range val {
			if strings.TrimSpace(e) != "" {
				return false
			}
		}
		return true
	case []any:
		for _, e := range val {
			if !IsEmptyValue(e) {
				return false
			}
		}
		return true
	case map[string]any:
		for _, e := range val {
			if !IsEmptyValue(e) {
				return false
			}
		}
		return true
	case map[string]string:
		for _, e := range val {
			if strings.TrimSpace(e) != "" {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Answered counts questions carrying a non-empty answer.
func (m Map) Answered() int {
	n := 0
	for _, v := range m {
		if !IsEmptyValue(v) {
			n++
		}
	}
	return n
}

// HasAnswered reports whether at least one question has a non-empty answer.
// This is the client-side gate for non-forced submits.
func (m Map) HasAnswered() bool {
	for _, v := range m {
		if !IsEmptyValue(v) {
			return true
		}
	}
	return false
}
