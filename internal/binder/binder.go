// Package binder binds question-widget state to the answer map both ways.
//
// The binder keeps two update rates apart: document structure (widgets,
// options, detected blanks) only changes on Load, while answer values change
// on every keystroke or drop. Observers read the pair of version counters
// instead of tearing widgets down: a docVersion bump means re-render the
// structure, an ansVersion bump means refresh values only.
package binder

import (
	"errors"
	"fmt"
	"sync"

	"github.com/stemsi/examflow/internal/answers"
	"github.com/stemsi/examflow/internal/content"
)

var (
	// ErrUnknownQuestion is returned when a question number is not bound by
	// any widget in the loaded document.
	ErrUnknownQuestion = errors.New("question not present in document")
	// ErrWrongKind is returned when a mutation does not match the widget
	// kind bound to the question number.
	ErrWrongKind = errors.New("operation does not match widget kind")
	// ErrUnknownOption is returned when an option key is not offered by the
	// widget.
	ErrUnknownOption = errors.New("option not offered by widget")
	// ErrUnknownLabel is returned for a label id the diagram widget does not
	// declare.
	ErrUnknownLabel = errors.New("label not declared by widget")
	// ErrUnknownBlank is returned when a summary blank is filled that the
	// current text no longer declares.
	ErrUnknownBlank = errors.New("blank not present in summary text")
	// ErrInvalidBool is returned for a boolean value outside the widget's
	// variant enum.
	ErrInvalidBool = errors.New("value outside boolean variant")
)

// Binder owns the live answer map for one content item.
type Binder struct {
	mu      sync.Mutex
	groups  []content.Group
	widgets map[int]*content.QuestionConfig
	// blanks holds the detected blank set per summary widget, keyed by the
	// widget's first question number.
	blanks map[int]map[int]bool

	ans        answers.Map
	docVersion uint64
	ansVersion uint64

	onChange func(question int)
}

// New returns an empty binder. Call Load before binding answers.
func New() *Binder {
	return &Binder{
		widgets: make(map[int]*content.QuestionConfig),
		blanks:  make(map[int]map[int]bool),
		ans:     make(answers.Map),
	}
}

// SetOnChange registers the single change callback, invoked with the mutated
// question number after each successful answer mutation.
func (b *Binder) SetOnChange(fn func(question int)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

// Load installs a new document's flattened groups and seeds the answer map
// from restored answers. Answers for questions no longer present — including
// summary blanks the new text does not declare — are pruned; surviving
// answers keep their values untouched.
func (b *Binder) Load(groups []content.Group, restored answers.Map) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.groups = groups
	b.widgets = make(map[int]*content.QuestionConfig)
	b.blanks = make(map[int]map[int]bool)

	for gi := range groups {
		tmpl := &groups[gi].Template
		for _, w := range content.Widgets(tmpl) {
			nums := w.Numbers()
			for _, n := range nums {
				b.widgets[n] = w
			}
			if w.Kind == content.WidgetSummaryBank && len(nums) > 0 {
				detected := make(map[int]bool)
				for _, n := range content.ScanBlanks(tmpl) {
					detected[n] = true
				}
				b.blanks[nums[0]] = detected
			}
		}
	}

	kept := make(answers.Map, len(restored))
	for k, v := range restored.Clone() {
		q, w := b.lookupKey(k)
		if w == nil {
			continue
		}
		if w.Kind == content.WidgetSummaryBank && !b.blankDeclared(w, q) {
			continue
		}
		kept[k] = normalizeValue(v)
	}
	b.ans = kept
	b.docVersion++
}

// normalizeValue canonicalizes restored answer shapes. Values arriving from
// the wire or the durable mirror are JSON-decoded, so a multi-select comes
// back as []any; the widget operations work on the native shapes the binder
// writes ([]string, nested string maps).
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, e := range val {
			s, ok := e.(string)
			if !ok {
				return val // mixed slice, leave as decoded
			}
			out = append(out, s)
		}
		return out
	case map[string]any:
		for k, e := range val {
			val[k] = normalizeValue(e)
		}
		return val
	default:
		return v
	}
}

// Answers returns a deep copy of the current answer map. Autosave snapshots
// and submit payloads are taken through this so the live map never aliases
// an in-flight request body.
func (b *Binder) Answers() answers.Map {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ans.Clone()
}

// Answer returns a copy of one question's current value, nil if unanswered.
func (b *Binder) Answer(question int) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap := answers.Map{answers.Key(question): b.ans.Get(question)}
	return snap.Clone().Get(question)
}

// Versions returns the (document, answers) version pair.
func (b *Binder) Versions() (doc, ans uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.docVersion, b.ansVersion
}

// Blanks returns the detected blank numbers for the summary widget binding
// the given question, in no particular order.
func (b *Binder) Blanks(question int) []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.widgets[question]
	if w == nil || w.Kind != content.WidgetSummaryBank {
		return nil
	}
	nums := w.Numbers()
	if len(nums) == 0 {
		return nil
	}
	var out []int
	for n := range b.blanks[nums[0]] {
		out = append(out, n)
	}
	return out
}

// Clear removes the answer for a question.
func (b *Binder) Clear(question int) error {
	b.mu.Lock()
	if _, ok := b.widgets[question]; !ok {
		b.mu.Unlock()
		return fmt.Errorf("clear %d: %w", question, ErrUnknownQuestion)
	}
	b.ans.Delete(question)
	b.bump(question)
	return nil
}

// bump publishes a mutation: version increment plus change callback. Must be
// called with the mutex held; it unlocks before invoking the callback.
func (b *Binder) bump(question int) {
	b.ansVersion++
	fn := b.onChange
	b.mu.Unlock()
	if fn != nil {
		fn(question)
	}
}

func (b *Binder) lookupKey(key string) (int, *content.QuestionConfig) {
	for q, w := range b.widgets {
		if answers.Key(q) == key {
			return q, w
		}
	}
	return 0, nil
}

func (b *Binder) blankDeclared(w *content.QuestionConfig, question int) bool {
	nums := w.Numbers()
	if len(nums) == 0 {
		return false
	}
	return b.blanks[nums[0]][question]
}

func (b *Binder) widget(question int, kind content.WidgetKind) (*content.QuestionConfig, error) {
	w, ok := b.widgets[question]
	if !ok {
		return nil, fmt.Errorf("question %d: %w", question, ErrUnknownQuestion)
	}
	if w.Kind != kind {
		return nil, fmt.Errorf("question %d is %s: %w", question, w.Kind, ErrWrongKind)
	}
	return w, nil
}

func hasOption(w *content.QuestionConfig, key string) bool {
	for _, o := range w.Options {
		if o.Key == key {
			return true
		}
	}
	return false
}

func hasLabel(w *content.QuestionConfig, id string) bool {
	for _, l := range w.Labels {
		if l.ID == id {
			return true
		}
	}
	return false
}

func inWordBank(w *content.QuestionConfig, token string) bool {
	for _, t := range w.WordBank {
		if t == token {
			return true
		}
	}
	return false
}
