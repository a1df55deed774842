package binder

import (
	"fmt"
	"strings"

	"github.com/stemsi/examflow/internal/answers"
	"github.com/stemsi/examflow/internal/content"
)

// SetText records a free-text fill-in answer (scalar string).
func (b *Binder) SetText(question int, text string) error {
	b.mu.Lock()
	if _, err := b.widget(question, content.WidgetFillIn); err != nil {
		b.mu.Unlock()
		return err
	}
	if strings.TrimSpace(text) == "" {
		b.ans.Delete(question)
	} else {
		b.ans.Set(question, text)
	}
	b.bump(question)
	return nil
}

// SelectOption applies radio semantics on a single-choice widget: the chosen
// option replaces any previous one.
func (b *Binder) SelectOption(question int, key string) error {
	b.mu.Lock()
	w, err := b.widget(question, content.WidgetChoice)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	if w.Multiple {
		b.mu.Unlock()
		return fmt.Errorf("question %d accepts multiple options: %w", question, ErrWrongKind)
	}
	if !hasOption(w, key) {
		b.mu.Unlock()
		return fmt.Errorf("question %d option %q: %w", question, key, ErrUnknownOption)
	}
	b.ans.Set(question, key)
	b.bump(question)
	return nil
}

// ToggleOption applies checkbox semantics on a multiple-choice widget:
// membership of the key is flipped. An empty resulting set deletes the
// answer so the question counts as unanswered again.
func (b *Binder) ToggleOption(question int, key string) error {
	b.mu.Lock()
	w, err := b.widget(question, content.WidgetChoice)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	if !w.Multiple {
		b.mu.Unlock()
		return fmt.Errorf("question %d accepts a single option: %w", question, ErrWrongKind)
	}
	if !hasOption(w, key) {
		b.mu.Unlock()
		return fmt.Errorf("question %d option %q: %w", question, key, ErrUnknownOption)
	}

	var current []string
	if v, ok := b.ans.Get(question).([]string); ok {
		current = v
	}
	next := make([]string, 0, len(current)+1)
	removed := false
	for _, k := range current {
		if k == key {
			removed = true
			continue
		}
		next = append(next, k)
	}
	if !removed {
		next = append(next, key)
	}
	if len(next) == 0 {
		b.ans.Delete(question)
	} else {
		b.ans.Set(question, next)
	}
	b.bump(question)
	return nil
}

// SetBool records a boolean-kind answer, validated against the widget's
// variant enum (TRUE/FALSE/NOT_GIVEN or YES/NO/NOT_GIVEN).
func (b *Binder) SetBool(question int, value string) error {
	b.mu.Lock()
	w, err := b.widget(question, content.WidgetBoolean)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	if !validBool(w.Variant, value) {
		b.mu.Unlock()
		return fmt.Errorf("question %d value %q: %w", question, value, ErrInvalidBool)
	}
	b.ans.Set(question, value)
	b.bump(question)
	return nil
}

func validBool(variant, value string) bool {
	switch variant {
	case content.VariantYesNo:
		return value == "YES" || value == "NO" || value == "NOT_GIVEN"
	default: // TFNG is the default variant
		return value == "TRUE" || value == "FALSE" || value == "NOT_GIVEN"
	}
}

// PlaceOption drops an option key into a matching slot. Each question number
// of the widget's range is one slot; placing a key that already occupies
// another slot of the same widget atomically clears it there first, so no
// key ever appears in two slots. Last drop wins.
func (b *Binder) PlaceOption(question int, key string) error {
	b.mu.Lock()
	w, err := b.widget(question, content.WidgetMatching)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	if !hasOption(w, key) {
		b.mu.Unlock()
		return fmt.Errorf("question %d option %q: %w", question, key, ErrUnknownOption)
	}
	for _, slot := range w.Numbers() {
		if held, ok := b.ans.Get(slot).(string); ok && slot != question && held == key {
			b.ans.Delete(slot)
		}
	}
	b.ans.Set(question, key)
	b.bump(question)
	return nil
}

// SetLabel records a value for one label of a diagram widget. The answer is
// stored as {"labels": {labelID: value}} under the widget's question number.
// The drag-exclusivity invariant of matching applies here too: a value may
// occupy only one label at a time within the widget.
func (b *Binder) SetLabel(question int, labelID, value string) error {
	b.mu.Lock()
	w, err := b.widget(question, content.WidgetDiagram)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	if !hasLabel(w, labelID) {
		b.mu.Unlock()
		return fmt.Errorf("question %d label %q: %w", question, labelID, ErrUnknownLabel)
	}

	labels := b.labelMap(question)
	if strings.TrimSpace(value) == "" {
		delete(labels, labelID)
	} else {
		for id, held := range labels {
			if id != labelID && held == value {
				delete(labels, id)
			}
		}
		labels[labelID] = value
	}
	if len(labels) == 0 {
		b.ans.Delete(question)
	} else {
		b.ans.Set(question, map[string]any{"labels": toAnyMap(labels)})
	}
	b.bump(question)
	return nil
}

func (b *Binder) labelMap(question int) map[string]string {
	out := make(map[string]string)
	obj, ok := b.ans.Get(question).(map[string]any)
	if !ok {
		return out
	}
	inner, ok := obj["labels"].(map[string]any)
	if !ok {
		return out
	}
	for id, v := range inner {
		if s, ok := v.(string); ok {
			out[id] = s
		}
	}
	return out
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// FillBlank places a word-bank token into a summary blank. The blank must be
// declared by the current text scan; single-use banks clear the token from
// any other blank of the widget first.
func (b *Binder) FillBlank(question int, token string) error {
	b.mu.Lock()
	w, err := b.widget(question, content.WidgetSummaryBank)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	if !b.blankDeclared(w, question) {
		b.mu.Unlock()
		return fmt.Errorf("question %d: %w", question, ErrUnknownBlank)
	}
	if len(w.WordBank) > 0 && !inWordBank(w, token) {
		b.mu.Unlock()
		return fmt.Errorf("question %d token %q: %w", question, token, ErrUnknownOption)
	}
	if w.SingleUse {
		for _, blank := range w.Numbers() {
			if held, ok := b.ans.Get(blank).(string); ok && blank != question && held == token {
				b.ans.Delete(blank)
			}
		}
	}
	if strings.TrimSpace(token) == "" {
		b.ans.Delete(question)
	} else {
		b.ans.Set(question, token)
	}
	b.bump(question)
	return nil
}

// SetEssay records long-form text. No correctness validation happens client
// side; completion is a word-count check only.
func (b *Binder) SetEssay(question int, text string) error {
	b.mu.Lock()
	if _, err := b.widget(question, content.WidgetEssay); err != nil {
		b.mu.Unlock()
		return err
	}
	if strings.TrimSpace(text) == "" {
		b.ans.Delete(question)
	} else {
		b.ans.Set(question, text)
	}
	b.bump(question)
	return nil
}

// EssayComplete reports whether the essay answer meets the widget's minimum
// word count. An unanswered essay is never complete.
func (b *Binder) EssayComplete(question int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.widgets[question]
	if !ok || w.Kind != content.WidgetEssay {
		return false
	}
	text, _ := b.ans.Get(question).(string)
	return WordCount(text) >= w.MinWords && !answers.IsEmptyValue(text)
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
