package content

import (
	"fmt"
	"sort"
)

// Group is the flattened unit of navigation: one top-level node of a part
// that contains at least one question widget, plus the question numbers it
// binds. Groups are built once per content load and are immutable until the
// content changes.
type Group struct {
	ID              string
	OwnerIndex      int // index of the owning part
	Template        Node
	QuestionNumbers []int
}

// Flatten derives the navigation groups from a parsed document. Top-level
// nodes without any widget are presentational and fold into no group.
func (d *Document) Flatten() []Group {
	var groups []Group
	for pi, part := range d.Parts {
		for ni := range part.Nodes {
			node := part.Nodes[ni]
			widgets := Widgets(&node)
			if len(widgets) == 0 {
				continue
			}
			var nums []int
			for _, w := range widgets {
				nums = append(nums, w.Numbers()...)
			}
			sort.Ints(nums)
			groups = append(groups, Group{
				ID:              fmt.Sprintf("p%d-g%d", pi, len(groups)),
				OwnerIndex:      pi,
				Template:        node,
				QuestionNumbers: nums,
			})
		}
	}
	return groups
}

// GroupIndex builds the question-number → group-index map used for
// select-by-question navigation. Built once per content load.
func GroupIndex(groups []Group) map[int]int {
	idx := make(map[int]int)
	for gi, g := range groups {
		for _, n := range g.QuestionNumbers {
			idx[n] = gi
		}
	}
	return idx
}
