// Package engine runs the four stages over one document: segment, map,
// normalize and gate.
package engine

import (
	"fmt"

	"github.com/dgallion1/docgate/internal/doctree"
	"github.com/dgallion1/docgate/internal/gate"
	"github.com/dgallion1/docgate/internal/mapper"
	"github.com/dgallion1/docgate/internal/normalize"
	"github.com/dgallion1/docgate/internal/parser"
	"github.com/dgallion1/docgate/internal/record"
	"github.com/dgallion1/docgate/internal/ruleset"
	"github.com/dgallion1/docgate/internal/segment"
)

// WarnNoParagraphs is reported when the reader produced nothing.
const WarnNoParagraphs = "No paragraphs extracted"

// Options control one run.
type Options struct {
	// Profile forces a gate profile. Empty selects it from the signals.
	Profile string
	// IncludeSegments adds the detected segments to the result.
	IncludeSegments bool
	// Parser is passed to the document readers by ParseFile.
	Parser parser.Options
}

// Meta identifies what produced a result.
type Meta struct {
	Source          string `json:"source"`
	Title           string `json:"title"`
	RulesetVersion  string `json:"ruleset_version"`
	DocType         string `json:"doc_type"`
	ParagraphsCount int    `json:"paragraphs_count"`
}

// Result is the output contract of a run. Field order is the JSON key order.
type Result struct {
	Normalized     *record.Group        `json:"normalized"`
	Report         normalize.Report     `json:"report"`
	Provenance     normalize.Provenance `json:"provenance"`
	ProductionGate gate.Verdict         `json:"production_gate"`
	Segments       []*segment.Segment   `json:"segments,omitempty"`
	Meta           Meta                 `json:"meta"`
}

// Run processes a parsed document. It is pure: the same document and
// ruleset always give the same result.
func Run(doc *doctree.Document, rs *ruleset.Ruleset, opts Options) *Result {
	var paragraphs []doctree.Paragraph
	meta := Meta{RulesetVersion: rs.Version, DocType: rs.DocType}
	if doc != nil {
		paragraphs = doc.Paragraphs
		meta.Source = doc.Source
		meta.Title = doc.Title
		meta.ParagraphsCount = len(doc.Paragraphs)
	}

	warnings := []string{}
	if len(paragraphs) == 0 {
		warnings = append(warnings, WarnNoParagraphs)
	}

	segs, segWarnings := segment.Build(paragraphs, rs)
	warnings = append(warnings, segWarnings...)
	warnings = append(warnings, mapper.Map(segs, rs)...)

	out := normalize.Normalize(segs, rs)
	out.Report.Warnings = append(warnings, out.Report.Warnings...)

	res := &Result{
		Normalized: out.Record,
		Report:     out.Report,
		Provenance: out.Provenance,
		ProductionGate: gate.Evaluate(gate.Input{
			Report: out.Report,
			Record: out.Record,
		}, rs, opts.Profile),
		Meta: meta,
	}
	if opts.IncludeSegments {
		res.Segments = segs
	}
	return res
}

// ParseFile reads path with the parser for its extension and runs it.
func ParseFile(path string, rs *ruleset.Ruleset, opts Options) (*Result, error) {
	doc, err := parser.ParseFile(path, opts.Parser)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return Run(doc, rs, opts), nil
}
