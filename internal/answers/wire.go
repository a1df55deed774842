package answers

import (
	"sort"
	"strconv"
)

// WireAnswer is the upstream serialization of one answer. Draft saves and
// submits always send the full current set (idempotent replace, not merge).
type WireAnswer struct {
	QuestionID int `json:"question_id"`
	AnswerData any `json:"answer_data"`
}

// Wire converts the map into the upstream answers array, ordered by question
// number so payloads are deterministic.
func (m Map) Wire() []WireAnswer {
	out := make([]WireAnswer, 0, len(m))
	for k, v := range m {
		q, err := strconv.Atoi(k)
		if err != nil {
			continue // Non-numeric keys never reach the wire
		}
		out = append(out, WireAnswer{QuestionID: q, AnswerData: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out
}

// FromWire rebuilds a map from the upstream answers array, dropping entries
// with empty payloads.
func FromWire(wire []WireAnswer) Map {
	m := make(Map, len(wire))
	for _, w := range wire {
		if IsEmptyValue(w.AnswerData) {
			continue
		}
		m[Key(w.QuestionID)] = w.AnswerData
	}
	return m
}
