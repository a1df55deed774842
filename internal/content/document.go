package content

import (
	"encoding/json"
	"fmt"
)

// WidgetKind identifies the interactive question node types a content
// document may embed.
type WidgetKind string

const (
	WidgetFillIn      WidgetKind = "FILL_IN"
	WidgetChoice      WidgetKind = "CHOICE"
	WidgetBoolean     WidgetKind = "BOOLEAN"
	WidgetMatching    WidgetKind = "MATCHING"
	WidgetDiagram     WidgetKind = "DIAGRAM"
	WidgetSummaryBank WidgetKind = "SUMMARY_BANK"
	WidgetEssay       WidgetKind = "ESSAY"
)

// BooleanVariant selects the enum set a boolean widget accepts.
const (
	VariantTrueFalse = "TFNG" // TRUE / FALSE / NOT_GIVEN
	VariantYesNo     = "YNNG" // YES / NO / NOT_GIVEN
)

// Option is one selectable choice or word-bank style option key.
type Option struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Label is one target on a diagram/map labelling widget.
type Label struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuestionConfig carries the widget payload of a question node. A widget
// binds either a single question number or an inclusive range.
type QuestionConfig struct {
	Kind       WidgetKind `json:"kind"`
	Number     int        `json:"number,omitempty"`
	RangeStart int        `json:"range_start,omitempty"`
	RangeEnd   int        `json:"range_end,omitempty"`
	Multiple   bool       `json:"multiple,omitempty"`
	Variant    string     `json:"variant,omitempty"`
	Options    []Option   `json:"options,omitempty"`
	Labels     []Label    `json:"labels,omitempty"`
	WordBank   []string   `json:"word_bank,omitempty"`
	// SingleUse constrains word-bank tokens to one blank at a time.
	SingleUse bool `json:"single_use,omitempty"`
	MinWords  int  `json:"min_words,omitempty"`
}

// Numbers returns the question numbers this widget binds, in order.
func (q *QuestionConfig) Numbers() []int {
	if q.RangeEnd >= q.RangeStart && q.RangeStart > 0 {
		nums := make([]int, 0, q.RangeEnd-q.RangeStart+1)
		for n := q.RangeStart; n <= q.RangeEnd; n++ {
			nums = append(nums, n)
		}
		return nums
	}
	if q.Number > 0 {
		return []int{q.Number}
	}
	return nil
}

// Node is one element of the ordered content tree. Leaf nodes carry text;
// question nodes carry a widget config; everything else is structural.
type Node struct {
	Type     string          `json:"type,omitempty"`
	Text     string          `json:"text,omitempty"`
	Children []Node          `json:"children,omitempty"`
	Question *QuestionConfig `json:"question,omitempty"`
}

// Part is a mid-level grouping (a listening Part, a reading Passage, a
// writing Task) holding an ordered list of top-level nodes.
type Part struct {
	Title string `json:"title,omitempty"`
	Nodes []Node `json:"nodes"`
}

// Document is a parsed content item: an ordered list of parts.
type Document struct {
	Parts []Part `json:"parts"`
}

// Parse decodes and validates a content document. A question number must map
// to exactly one widget within the document.
func Parse(raw []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode content document: %w", err)
	}
	if len(doc.Parts) == 0 {
		return nil, fmt.Errorf("content document has no parts")
	}

	seen := make(map[int]bool)
	for pi := range doc.Parts {
		for ni := range doc.Parts[pi].Nodes {
			if err := walkValidate(&doc.Parts[pi].Nodes[ni], seen); err != nil {
				return nil, fmt.Errorf("part %d: %w", pi, err)
			}
		}
	}
	return &doc, nil
}

func walkValidate(n *Node, seen map[int]bool) error {
	if q := n.Question; q != nil {
		switch q.Kind {
		case WidgetFillIn, WidgetChoice, WidgetBoolean, WidgetMatching,
			WidgetDiagram, WidgetSummaryBank, WidgetEssay:
		default:
			return fmt.Errorf("unknown widget kind %q", q.Kind)
		}
		nums := q.Numbers()
		if len(nums) == 0 {
			return fmt.Errorf("widget %q binds no question number", q.Kind)
		}
		for _, num := range nums {
			if seen[num] {
				return fmt.Errorf("question %d bound by more than one widget", num)
			}
			seen[num] = true
		}
	}
	for i := range n.Children {
		if err := walkValidate(&n.Children[i], seen); err != nil {
			return err
		}
	}
	return nil
}

// Widgets collects every widget config under a node in document order.
func Widgets(n *Node) []*QuestionConfig {
	var out []*QuestionConfig
	collectWidgets(n, &out)
	return out
}

func collectWidgets(n *Node, out *[]*QuestionConfig) {
	if n.Question != nil {
		*out = append(*out, n.Question)
	}
	for i := range n.Children {
		collectWidgets(&n.Children[i], out)
	}
}

// Texts concatenates the visible text under a node in document order,
// separated by single spaces.
func Texts(n *Node) string {
	var buf []byte
	appendTexts(n, &buf)
	return string(buf)
}

func appendTexts(n *Node, buf *[]byte) {
	if n.Text != "" {
		if len(*buf) > 0 {
			*buf = append(*buf, ' ')
		}
		*buf = append(*buf, n.Text...)
	}
	for i := range n.Children {
		appendTexts(&n.Children[i], buf)
	}
}
