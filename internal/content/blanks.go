package content

import (
	"regexp"
	"sort"
	"strconv"
)

// blankMarker is the placeholder pattern a summary widget's text uses to
// declare an answer blank: a parenthesized question number, e.g. "(7)".
var blankMarker = regexp.MustCompile(`\((\d+)\)`)

// ScanBlanks finds the blank question numbers declared in the text under a
// summary widget's node, sorted and de-duplicated. Zero blanks is a valid
// (degenerate) result: the widget then renders no answer controls.
func ScanBlanks(n *Node) []int {
	matches := blankMarker.FindAllStringSubmatch(Texts(n), -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(matches))
	var nums []int
	for _, m := range matches {
		num, err := strconv.Atoi(m[1])
		if err != nil || num <= 0 || seen[num] {
			continue
		}
		seen[num] = true
		nums = append(nums, num)
	}
	sort.Ints(nums)
	return nums
}
