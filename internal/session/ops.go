package session

import (
	"fmt"

	"github.com/stemsi/examflow/internal/binder"
)

// AnswerOp is one kind-specific answer mutation. Op selects the binder
// operation; Value and LabelID carry its arguments.
type AnswerOp struct {
	Question int    `json:"question" binding:"required,min=1"`
	Op       string `json:"op" binding:"required,oneof=text select toggle bool place label blank essay clear"`
	Value    string `json:"value,omitempty"`
	LabelID  string `json:"label_id,omitempty"`
}

// Apply funnels one answer mutation through the session's single entry
// point. The mutation is synchronous and local; network traffic (autosave,
// mirror) happens strictly after, off this path.
func (o *Orchestrator) Apply(op AnswerOp) error {
	o.mu.Lock()
	if o.state != StateActive {
		o.mu.Unlock()
		return fmt.Errorf("answer in %s: %w", o.state, ErrWrongState)
	}
	bind := o.bind
	o.mu.Unlock()

	switch op.Op {
	case "text":
		return bind.SetText(op.Question, op.Value)
	case "select":
		return bind.SelectOption(op.Question, op.Value)
	case "toggle":
		return bind.ToggleOption(op.Question, op.Value)
	case "bool":
		return bind.SetBool(op.Question, op.Value)
	case "place":
		return bind.PlaceOption(op.Question, op.Value)
	case "label":
		return bind.SetLabel(op.Question, op.LabelID, op.Value)
	case "blank":
		return bind.FillBlank(op.Question, op.Value)
	case "essay":
		return bind.SetEssay(op.Question, op.Value)
	case "clear":
		return bind.Clear(op.Question)
	default:
		return fmt.Errorf("unknown answer op %q", op.Op)
	}
}

// NavCommand moves the session's current position.
type NavCommand struct {
	Op       string `json:"op" binding:"required,oneof=next previous index question part"`
	Index    int    `json:"index,omitempty"`
	Question int    `json:"question,omitempty"`
	Part     int    `json:"part,omitempty"`
}

// Navigate applies a navigation command and returns the resulting group
// index.
func (o *Orchestrator) Navigate(cmd NavCommand) (int, error) {
	o.mu.Lock()
	if o.state != StateActive {
		o.mu.Unlock()
		return 0, fmt.Errorf("navigate in %s: %w", o.state, ErrWrongState)
	}
	nav := o.nav
	o.mu.Unlock()

	var idx int
	switch cmd.Op {
	case "next":
		idx = nav.Next()
	case "previous":
		idx = nav.Previous()
	case "index":
		idx = nav.SelectByIndex(cmd.Index)
	case "question":
		idx = nav.SelectByQuestion(cmd.Question)
	case "part":
		idx = nav.SelectPart(cmd.Part)
	default:
		return 0, fmt.Errorf("unknown navigation op %q", cmd.Op)
	}
	o.publish()
	return idx, nil
}

// Binder exposes the answer binder for read access (word counts, blanks).
func (o *Orchestrator) Binder() *binder.Binder {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.bind
}
