// Package navigator tracks the current position over the flattened question
// groups of one content item and derives per-part completion summaries.
package navigator

import (
	"sync"

	"github.com/stemsi/examflow/internal/answers"
	"github.com/stemsi/examflow/internal/content"
)

// PartSummary aggregates answer progress for one part/passage/task. It is
// derived state: recomputed on every answer change, never hand-mutated.
type PartSummary struct {
	PartIndex       int   `json:"part_index"`
	QuestionNumbers []int `json:"question_numbers"`
	AnsweredCount   int   `json:"answered_count"`
	FirstQuestion   int   `json:"first_question"`
	LastQuestion    int   `json:"last_question"`
}

// Navigator holds the in-part group pointer. The index is always clamped to
// the group list; selecting a question outside the active part is a no-op
// until the part is switched.
type Navigator struct {
	mu         sync.Mutex
	groups     []content.Group
	byQuestion map[int]int
	partFirst  map[int]int // part index → first group index
	current    int
	activePart int
}

// New builds a navigator over flattened groups. The question-number → group
// map is built once per content load.
func New(groups []content.Group) *Navigator {
	n := &Navigator{
		groups:     groups,
		byQuestion: content.GroupIndex(groups),
		partFirst:  make(map[int]int),
	}
	for gi := len(groups) - 1; gi >= 0; gi-- {
		n.partFirst[groups[gi].OwnerIndex] = gi
	}
	if len(groups) > 0 {
		n.activePart = groups[0].OwnerIndex
	}
	return n
}

// CurrentIndex returns the current group index.
func (n *Navigator) CurrentIndex() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Current returns the current group, or nil when the document has none.
func (n *Navigator) Current() *content.Group {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.groups) == 0 {
		return nil
	}
	g := n.groups[n.current]
	return &g
}

// ActivePart returns the part index navigation is currently scoped to.
func (n *Navigator) ActivePart() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.activePart
}

// Next advances one group, clamped at the end.
func (n *Navigator) Next() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.setIndex(n.current + 1)
}

// Previous steps back one group, clamped at the start.
func (n *Navigator) Previous() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.setIndex(n.current - 1)
}

// SelectByIndex jumps to a group index, clamped to [0, len(groups)-1].
func (n *Navigator) SelectByIndex(i int) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.setIndex(i)
}

// SelectByQuestion resolves a question number to its group and jumps there.
// A number outside the active part (or unknown) leaves the position
// unchanged; switch parts first for cross-part jumps.
func (n *Navigator) SelectByQuestion(question int) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	gi, ok := n.byQuestion[question]
	if !ok || n.groups[gi].OwnerIndex != n.activePart {
		return n.current
	}
	return n.setIndex(gi)
}

// SelectPart switches the active part and resets the pointer to that part's
// first group. An unknown part index is a no-op.
func (n *Navigator) SelectPart(part int) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	first, ok := n.partFirst[part]
	if !ok {
		return n.current
	}
	n.activePart = part
	return n.setIndex(first)
}

// setIndex clamps and applies an index; active part follows the group's
// owner. Must be called with the mutex held.
func (n *Navigator) setIndex(i int) int {
	if len(n.groups) == 0 {
		n.current = 0
		return 0
	}
	if i < 0 {
		i = 0
	}
	if i > len(n.groups)-1 {
		i = len(n.groups) - 1
	}
	n.current = i
	n.activePart = n.groups[i].OwnerIndex
	return n.current
}

// Summaries recomputes the per-part aggregates against the given answers.
func (n *Navigator) Summaries(m answers.Map) []PartSummary {
	n.mu.Lock()
	defer n.mu.Unlock()

	byPart := make(map[int]*PartSummary)
	var order []int
	for _, g := range n.groups {
		s, ok := byPart[g.OwnerIndex]
		if !ok {
			s = &PartSummary{PartIndex: g.OwnerIndex}
			byPart[g.OwnerIndex] = s
			order = append(order, g.OwnerIndex)
		}
		s.QuestionNumbers = append(s.QuestionNumbers, g.QuestionNumbers...)
	}

	out := make([]PartSummary, 0, len(order))
	for _, pi := range order {
		s := byPart[pi]
		for _, q := range s.QuestionNumbers {
			if !answers.IsEmptyValue(m.Get(q)) {
				s.AnsweredCount++
			}
		}
		if len(s.QuestionNumbers) > 0 {
			s.FirstQuestion = s.QuestionNumbers[0]
			s.LastQuestion = s.QuestionNumbers[len(s.QuestionNumbers)-1]
		}
		out = append(out, *s)
	}
	return out
}
