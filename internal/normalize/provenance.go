package normalize

import (
	"strings"

	"github.com/dgallion1/docgate/internal/segment"
	"github.com/dgallion1/docgate/internal/textutil"
)

const (
	snippetRunes      = 200
	snippetParagraphs = 3
)

// Entry records where a section value came from. It is audit data only.
type Entry struct {
	SourceTitle     string   `json:"source_title"`
	NormalizedTitle string   `json:"normalized_title"`
	Confidence      float64  `json:"confidence"`
	Method          string   `json:"method"`
	Level           int      `json:"level"`
	ParagraphCount  int      `json:"paragraph_count"`
	Snippet         string   `json:"snippet"`
	Collisions      []string `json:"collisions,omitempty"`
}

// Provenance maps section paths to their source.
type Provenance map[string]Entry

func newEntry(primary *segment.Segment, segs []*segment.Segment) Entry {
	e := Entry{
		SourceTitle:     primary.RawTitle,
		NormalizedTitle: primary.NormalizedTitle,
		Confidence:      primary.MappingConfidence,
		Method:          primary.MappingMethod,
		Level:           primary.Level,
		ParagraphCount:  len(primary.Paragraphs),
		Snippet:         snippet(primary),
	}
	for _, seg := range segs {
		if seg != primary {
			e.Collisions = append(e.Collisions, seg.RawTitle)
		}
	}
	return e
}

func snippet(seg *segment.Segment) string {
	parts := []string{seg.RawTitle}
	for _, p := range seg.Paragraphs {
		if len(parts) > snippetParagraphs {
			break
		}
		if t := strings.TrimSpace(p.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return textutil.Truncate(strings.TrimSpace(strings.Join(parts, "\n")), snippetRunes)
}
