package gate

import (
	"regexp"
	"sort"

	"github.com/dgallion1/docgate/internal/record"
)

// Placeholder is one unfilled marker left in the record.
type Placeholder struct {
	Path string `json:"path"`
	Text string `json:"text"`
}

// FindPlaceholders scans every text leaf of rec, in key order. A span
// matched by several patterns counts once.
func FindPlaceholders(rec *record.Group, patterns []*regexp.Regexp) []Placeholder {
	out := []Placeholder{}
	if rec == nil {
		return out
	}
	rec.Walk(func(path string, t record.Text) {
		s := string(t)
		var spans [][]int
		for _, re := range patterns {
			for _, loc := range re.FindAllStringIndex(s, -1) {
				if !overlaps(spans, loc) {
					spans = append(spans, loc)
				}
			}
		}
		sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })
		for _, loc := range spans {
			out = append(out, Placeholder{Path: path, Text: s[loc[0]:loc[1]]})
		}
	})
	return out
}

func overlaps(spans [][]int, loc []int) bool {
	for _, sp := range spans {
		if loc[0] < sp[1] && sp[0] < loc[1] {
			return true
		}
	}
	return false
}
