// Package mapper assigns canonical section ids to segments by matching
// their normalized titles against ruleset anchors.
package mapper

import (
	"fmt"
	"strings"

	"github.com/dgallion1/docgate/internal/ruleset"
	"github.com/dgallion1/docgate/internal/segment"
	"github.com/dgallion1/docgate/internal/textutil"
)

// Method names the strategy that produced a match.
type Method string

const (
	MethodExact    Method = "exact"
	MethodContains Method = "contains"
	MethodRegex    Method = "regex"
	MethodFuzzy    Method = "fuzzy"
)

const (
	confidenceExact    = 1.0
	confidenceContains = 0.9
	confidenceRegex    = 0.9

	// Reverse containment (title inside anchor) needs a title at least this long.
	minReverseContainLen = 4
)

// Match is the outcome of mapping one title.
type Match struct {
	Section    *ruleset.Section
	Confidence float64
	Method     Method
	// Candidates lists every section that tied at the winning tier.
	Candidates []string
}

// strategy is one tier of the mapping waterfall. It returns the best
// candidates of the tier in ruleset declaration order.
type strategy struct {
	method Method
	match  func(title string, rs *ruleset.Ruleset) []candidate
}

type candidate struct {
	section    *ruleset.Section
	confidence float64
}

var strategies = []strategy{
	{MethodExact, matchExact},
	{MethodContains, matchContains},
	{MethodRegex, matchRegex},
	{MethodFuzzy, matchFuzzy},
}

// MatchTitle maps one normalized title. It returns nil when the title is
// ignored or unknown.
func MatchTitle(normalized string, rs *ruleset.Ruleset) *Match {
	if normalized == "" || rs.IsIgnoredTitle(normalized) {
		return nil
	}
	for _, st := range strategies {
		cands := st.match(normalized, rs)
		if len(cands) == 0 {
			continue
		}
		m := &Match{Section: cands[0].section, Confidence: cands[0].confidence, Method: st.method}
		for _, c := range cands {
			m.Candidates = append(m.Candidates, c.section.Path)
		}
		return m
	}
	return nil
}

// Map sets MappedSectionID, MappingConfidence and MappingMethod on every
// segment it can match. Segments whose title matches an ignore pattern are
// left unmapped. Ties within a tier go to the section declared first.
func Map(segments []*segment.Segment, rs *ruleset.Ruleset) []string {
	var warnings []string
	for _, seg := range segments {
		seg.MappedSectionID = ""
		seg.MappingConfidence = 0
		seg.MappingMethod = ""

		m := MatchTitle(seg.NormalizedTitle, rs)
		if m == nil {
			continue
		}
		seg.MappedSectionID = m.Section.Path
		seg.MappingConfidence = m.Confidence
		seg.MappingMethod = string(m.Method)
		if rivals(m) {
			warnings = append(warnings, fmt.Sprintf("Ambiguous title %q: matches %s (%s), using %s",
				seg.RawTitle, strings.Join(m.Candidates, ", "), m.Method, m.Section.Path))
		}
	}
	return warnings
}

// rivals reports whether a tier matched sections other than the winner and
// its own descendants. A parent beating its child is not ambiguous.
func rivals(m *Match) bool {
	for _, path := range m.Candidates {
		if path != m.Section.Path && !strings.HasPrefix(path, m.Section.Path+".") {
			return true
		}
	}
	return false
}

// IsUnknown reports whether a segment has a title that is neither mapped
// nor ignored.
func IsUnknown(seg *segment.Segment, rs *ruleset.Ruleset) bool {
	return seg.NormalizedTitle != "" && !seg.Mapped() && !rs.IsIgnoredTitle(seg.NormalizedTitle)
}

func matchExact(title string, rs *ruleset.Ruleset) []candidate {
	var out []candidate
	for _, s := range rs.AllSections() {
		for _, a := range s.Anchors {
			if a.Kind == ruleset.AnchorExact && a.Text == title {
				out = append(out, candidate{s, confidenceExact})
				break
			}
		}
	}
	return out
}

func matchContains(title string, rs *ruleset.Ruleset) []candidate {
	var out []candidate
	for _, s := range rs.AllSections() {
		for _, a := range s.Anchors {
			if a.Kind == ruleset.AnchorRegex {
				continue
			}
			if strings.Contains(title, a.Text) ||
				(len([]rune(title)) >= minReverseContainLen && strings.Contains(a.Text, title)) {
				out = append(out, candidate{s, confidenceContains})
				break
			}
		}
	}
	return out
}

func matchRegex(title string, rs *ruleset.Ruleset) []candidate {
	var out []candidate
	for _, s := range rs.AllSections() {
		for _, a := range s.Anchors {
			if a.Kind == ruleset.AnchorRegex && a.Pattern.MatchString(title) {
				out = append(out, candidate{s, confidenceRegex})
				break
			}
		}
	}
	return out
}

// matchFuzzy keeps only the sections that reach the best ratio.
func matchFuzzy(title string, rs *ruleset.Ruleset) []candidate {
	var (
		out  []candidate
		best float64
	)
	for _, s := range rs.AllSections() {
		sectionBest := 0.0
		for _, a := range s.Anchors {
			if a.Kind == ruleset.AnchorRegex {
				continue
			}
			if r := textutil.Ratio(title, a.Text); r > sectionBest {
				sectionBest = r
			}
		}
		if sectionBest < rs.FuzzyThreshold {
			continue
		}
		sectionBest = textutil.Round2(sectionBest)
		switch {
		case sectionBest > best:
			best = sectionBest
			out = []candidate{{s, sectionBest}}
		case sectionBest == best:
			out = append(out, candidate{s, sectionBest})
		}
	}
	return out
}
