// Package segment groups a paragraph stream into heading-led segments.
package segment

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/dgallion1/docgate/internal/doctree"
	"github.com/dgallion1/docgate/internal/ruleset"
	"github.com/dgallion1/docgate/internal/textutil"
)

// Detection names the tier that classified a heading.
type Detection string

const (
	ByStyle     Detection = "style"
	ByPattern   Detection = "pattern"
	ByHeuristic Detection = "heuristic"
	ByPreface   Detection = "preface"
)

// Segment is a heading plus the body paragraphs that follow it.
type Segment struct {
	RawTitle          string              `json:"raw_title"`
	NormalizedTitle   string              `json:"normalized_title"`
	Level             int                 `json:"level"`
	DetectedBy        Detection           `json:"detected_by"`
	Paragraphs        []doctree.Paragraph `json:"-"`
	MappedSectionID   string              `json:"mapped_section_id,omitempty"`
	MappingConfidence float64             `json:"mapping_confidence"`
	MappingMethod     string              `json:"mapping_method,omitempty"`
}

// Mapped reports whether the mapper attached the segment to a section.
func (s *Segment) Mapped() bool { return s.MappedSectionID != "" }

// Text joins body paragraphs with blank lines.
func (s *Segment) Text() string {
	parts := make([]string, 0, len(s.Paragraphs))
	for _, p := range s.Paragraphs {
		if t := strings.TrimSpace(p.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// detector is one tier of the heading waterfall.
type detector struct {
	by     Detection
	detect func(p doctree.Paragraph, h ruleset.HeadingConfig) (level int, ok bool)
}

var detectors = []detector{
	{ByStyle, detectByStyle},
	{ByPattern, detectByPattern},
	{ByHeuristic, detectByHeuristic},
}

// Classify runs the waterfall on one paragraph.
func Classify(p doctree.Paragraph, h ruleset.HeadingConfig) (Detection, int, bool) {
	for _, d := range detectors {
		if lvl, ok := d.detect(p, h); ok {
			return d.by, lvl, true
		}
	}
	return "", 0, false
}

func detectByStyle(p doctree.Paragraph, h ruleset.HeadingConfig) (int, bool) {
	return h.StyleLevel(p.StyleName)
}

func detectByPattern(p doctree.Paragraph, h ruleset.HeadingConfig) (int, bool) {
	text := strings.TrimSpace(p.Text)
	if len([]rune(text)) >= h.MaxLength || strings.HasSuffix(text, ".") {
		return 0, false
	}

	prefix := strings.TrimSpace(p.NumberingPrefix)
	if prefix == "" && h.NumberingPattern != nil {
		if m := h.NumberingPattern.FindString(text); m != "" {
			prefix = strings.TrimSpace(m)
		}
	}
	if prefix != "" && isNumeric(prefix) && hasLetters(strings.TrimPrefix(text, prefix)) {
		return strings.Count(strings.TrimSuffix(prefix, "."), ".") + 1, true
	}

	if p.IsAllCaps || doctree.IsUpper(text) {
		if letterCount(text) >= h.AllCapsMinLength {
			return 1, true
		}
	}
	return 0, false
}

func detectByHeuristic(p doctree.Paragraph, h ruleset.HeadingConfig) (int, bool) {
	text := strings.TrimSpace(p.Text)
	if h.RequireBold && !p.IsBold {
		return 0, false
	}
	if len([]rune(text)) >= h.MaxLength || strings.HasSuffix(text, ".") {
		return 0, false
	}
	if textutil.WordCount(text) > h.MaxWords {
		return 0, false
	}
	return 2, true
}

// Build splits paragraphs into segments in document order. Paragraphs
// before the first heading are handled by the ruleset's preface policy and
// never disappear without a warning.
func Build(paragraphs []doctree.Paragraph, rs *ruleset.Ruleset) ([]*Segment, []string) {
	var (
		segments []*Segment
		preface  []doctree.Paragraph
		warnings []string
		current  *Segment
	)

	for _, p := range paragraphs {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		if by, lvl, ok := Classify(p, rs.Headings); ok {
			current = &Segment{
				RawTitle:        text,
				NormalizedTitle: textutil.NormalizeTitle(text),
				Level:           lvl,
				DetectedBy:      by,
			}
			segments = append(segments, current)
			continue
		}
		if current == nil {
			preface = append(preface, p)
			continue
		}
		current.Paragraphs = append(current.Paragraphs, p)
	}

	if len(preface) == 0 {
		return segments, warnings
	}

	if len(segments) == 0 {
		// No heading at all: keep the text as one untitled segment.
		warnings = append(warnings, fmt.Sprintf("No heading detected; %d paragraphs kept as untitled preface", len(preface)))
		return []*Segment{{DetectedBy: ByPreface, Paragraphs: preface}}, warnings
	}

	switch rs.Headings.Preface {
	case ruleset.PrefaceAttach:
		first := segments[0]
		first.Paragraphs = append(append([]doctree.Paragraph{}, preface...), first.Paragraphs...)
		warnings = append(warnings, fmt.Sprintf("Preface of %d paragraphs attached to %q", len(preface), first.RawTitle))
	default:
		warnings = append(warnings, fmt.Sprintf("Preface of %d paragraphs before the first heading was dropped", len(preface)))
	}
	return segments, warnings
}

func isNumeric(prefix string) bool {
	digits := 0
	for _, r := range prefix {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
		default:
			return false
		}
	}
	return digits > 0
}

func hasLetters(s string) bool {
	return letterCount(s) > 0
}

func letterCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
