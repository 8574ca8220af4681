// Package normalize turns mapped segments into the canonical record, the
// coverage report and the provenance map.
package normalize

import (
	"fmt"
	"strings"

	"github.com/dgallion1/docgate/internal/mapper"
	"github.com/dgallion1/docgate/internal/record"
	"github.com/dgallion1/docgate/internal/ruleset"
	"github.com/dgallion1/docgate/internal/segment"
	"github.com/dgallion1/docgate/internal/textutil"
)

// FoundSection describes one section counted as present.
type FoundSection struct {
	SectionID  string  `json:"section_id"`
	Title      string  `json:"title"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

// MethodContent marks sections found through their content (a child or an
// inline split field) rather than through a heading of their own.
const MethodContent = "content"

// Report is the coverage and quality summary of one document.
type Report struct {
	FoundSections           []FoundSection `json:"found_sections"`
	MissingRequiredSections []string       `json:"missing_required_sections"`
	MissingWeightedSections []string       `json:"missing_weighted_sections"`
	UnknownTitles           []string       `json:"unknown_titles"`
	CoverageRatio           float64        `json:"coverage_ratio"`
	RequiredCoverageRatio   float64        `json:"required_coverage_ratio"`
	WeightedCoverage        float64        `json:"weighted_coverage"`
	TotalSections           int            `json:"total_sections"`
	RequiredSections        int            `json:"required_sections"`
	SegmentsCount           int            `json:"segments_count"`
	MappedSegmentsCount     int            `json:"mapped_segments_count"`
	Warnings                []string       `json:"warnings"`
}

// IsFound reports whether a section path is in FoundSections.
func (r *Report) IsFound(path string) bool {
	for _, f := range r.FoundSections {
		if f.SectionID == path {
			return true
		}
	}
	return false
}

// Output bundles everything Normalize produces.
type Output struct {
	Record     *record.Group
	Report     Report
	Provenance Provenance
}

// Normalize builds the record for one document. It never fails: every
// degradation becomes a warning and a well-typed empty or partial value.
// The segments are read only.
func Normalize(segments []*segment.Segment, rs *ruleset.Ruleset) Output {
	n := &normalizer{
		rs:     rs,
		byPath: make(map[string][]*segment.Segment),
	}
	for _, seg := range segments {
		if seg.Mapped() {
			n.byPath[seg.MappedSectionID] = append(n.byPath[seg.MappedSectionID], seg)
		}
	}

	rec := skeleton(rs)
	prov := make(Provenance)

	// Parents are placed before their children so that a child segment
	// lands on top of whatever the parent's inline split produced.
	for _, s := range rs.AllSections() {
		segs := n.byPath[s.Path]
		if len(segs) == 0 {
			continue
		}
		var primary *segment.Segment
		if s.FillStrategy == ruleset.FillIdentityExtract {
			primary = n.placeIdentity(rec, s, segs)
		} else {
			primary = n.placeSection(rec, s, segs)
		}
		prov[s.Path] = newEntry(primary, segs)
	}

	report := n.coverage(rec, segments)
	return Output{Record: rec, Report: report, Provenance: prov}
}

type normalizer struct {
	rs       *ruleset.Ruleset
	byPath   map[string][]*segment.Segment
	warnings []string
}

func (n *normalizer) warnf(format string, args ...any) {
	n.warnings = append(n.warnings, fmt.Sprintf(format, args...))
}

// skeleton pre-builds the record so every section key exists even when no
// segment maps to it.
func skeleton(rs *ruleset.Ruleset) *record.Group {
	root := record.NewGroup()
	for _, s := range rs.Sections {
		root.Set(s.ID, skeletonValue(rs, s))
	}
	return root
}

func skeletonValue(rs *ruleset.Ruleset, s *ruleset.Section) record.Value {
	if s.FillStrategy == ruleset.FillIdentityExtract {
		return record.NewGroup(ruleset.IdentityFields...)
	}
	fields := rs.SplitRules[s.Path]
	if s.IsLeaf() && len(fields) == 0 {
		return record.Text("")
	}
	g := record.NewGroup()
	for _, c := range s.Children {
		g.Set(c.ID, skeletonValue(rs, c))
	}
	for _, f := range fields {
		if !g.Has(f.Field) {
			g.Set(f.Field, record.Text(""))
		}
	}
	return g
}

// placeSection resolves first-seen-wins plus the collision policy for a
// regular section and writes the result into rec.
func (n *normalizer) placeSection(rec *record.Group, s *ruleset.Section, segs []*segment.Segment) *segment.Segment {
	fields := n.rs.SplitRules[s.Path]

	var value record.Value = record.Text(segs[0].Text())
	for i, seg := range segs[1:] {
		value = collide(value, seg, fields, i+2)
	}

	if txt, ok := value.(record.Text); ok && len(fields) > 0 {
		value = n.splitInline(s.Path, string(txt), segs[0].NormalizedTitle, fields)
	}

	parent, key := n.container(rec, s)
	merge(parent, key, value)
	return segs[0]
}

// collide folds one more segment into an existing value. Writing into an
// empty value is not a collision.
func collide(existing record.Value, seg *segment.Segment, fields []ruleset.SplitField, n int) record.Value {
	text := seg.Text()
	if text == "" {
		return existing
	}
	if existing.IsEmpty() {
		if _, ok := existing.(record.Text); ok {
			return record.Text(text)
		}
	}

	key := fieldForTitle(seg.NormalizedTitle, fields)
	if key == "" {
		key = fmt.Sprintf("_part%d", n)
	}

	switch v := existing.(type) {
	case record.Text:
		g := record.NewGroup()
		g.Set(record.RawKey, v)
		g.Set(key, record.Text(text))
		return g
	case *record.Group:
		appendText(v, key, text)
		return v
	}
	return existing
}

// container returns the group that holds section s and the key of s in it.
// A parent holding plain text is turned into a group keeping the text
// under _raw.
func (n *normalizer) container(rec *record.Group, s *ruleset.Section) (*record.Group, string) {
	if s.Parent == nil {
		return rec, s.ID
	}
	grand, key := n.container(rec, s.Parent)
	v, _ := grand.Get(key)
	g, ok := v.(*record.Group)
	if !ok {
		g = record.NewGroup()
		if txt, isText := v.(record.Text); isText && !txt.IsEmpty() {
			set(g, record.RawKey, txt)
		}
		grand.Set(key, g)
	}
	return g, s.ID
}

// merge writes v under key. Text going into a group lands in _raw; a group
// going into a group is merged key by key, appending to non-empty text.
func merge(parent *record.Group, key string, v record.Value) {
	cur, _ := parent.Get(key)
	switch dst := cur.(type) {
	case *record.Group:
		switch src := v.(type) {
		case record.Text:
			if !src.IsEmpty() {
				appendText(dst, record.RawKey, string(src))
			}
		case *record.Group:
			for _, k := range src.Keys() {
				sv, _ := src.Get(k)
				merge(dst, k, sv)
			}
		}
	case record.Text:
		if dst.IsEmpty() {
			parent.Set(key, v)
			return
		}
		switch src := v.(type) {
		case record.Text:
			if !src.IsEmpty() {
				parent.Set(key, record.Text(string(dst)+"\n\n"+string(src)))
			}
		case *record.Group:
			g := record.NewGroup()
			g.Set(record.RawKey, dst)
			for _, k := range src.Keys() {
				sv, _ := src.Get(k)
				merge(g, k, sv)
			}
			parent.Set(key, g)
		}
	default:
		set(parent, key, v)
	}
}

// appendText sets key, joining with a blank line when it already holds
// text. A group under key receives the text in its _raw.
func appendText(g *record.Group, key, text string) {
	cur, _ := g.Get(key)
	switch v := cur.(type) {
	case *record.Group:
		appendText(v, record.RawKey, text)
	case record.Text:
		if v.IsEmpty() {
			g.Set(key, record.Text(text))
			return
		}
		g.Set(key, record.Text(strings.TrimSpace(string(v))+"\n\n"+text))
	default:
		set(g, key, record.Text(text))
	}
}

// set stores v under key, keeping _raw as the first key of the group.
func set(g *record.Group, key string, v record.Value) {
	if key == record.RawKey {
		g.SetFirst(key, v)
		return
	}
	g.Set(key, v)
}

// fieldForTitle returns the split field named by a normalized heading
// title. A title naming no field, or more than one, gives "".
func fieldForTitle(title string, fields []ruleset.SplitField) string {
	match := ""
	for _, f := range fields {
		for _, l := range f.Labels {
			if !strings.Contains(" "+title+" ", " "+l+" ") {
				continue
			}
			if match != "" && match != f.Field {
				return ""
			}
			match = f.Field
			break
		}
	}
	return match
}

// coverage computes found sections, ratios and the report warnings.
func (n *normalizer) coverage(rec *record.Group, segments []*segment.Segment) Report {
	r := Report{
		FoundSections:           []FoundSection{},
		MissingRequiredSections: []string{},
		MissingWeightedSections: []string{},
		UnknownTitles:           []string{},
		SegmentsCount:           len(segments),
	}

	for _, seg := range segments {
		if seg.Mapped() {
			r.MappedSegmentsCount++
		}
		if mapper.IsUnknown(seg, n.rs) {
			r.UnknownTitles = append(r.UnknownTitles, seg.RawTitle)
		}
	}

	var (
		foundWeight, totalWeight float64
		foundRequired            int
	)
	for _, s := range n.rs.AllSections() {
		r.TotalSections++
		w := n.rs.Weight(s.Path)
		totalWeight += w
		if s.Required {
			r.RequiredSections++
		}

		found, ok := n.foundSection(rec, s)
		if ok {
			r.FoundSections = append(r.FoundSections, found)
			foundWeight += w
			if s.Required {
				foundRequired++
			}
			continue
		}
		if s.Required {
			r.MissingRequiredSections = append(r.MissingRequiredSections, s.Path)
		} else if w > 1 {
			r.MissingWeightedSections = append(r.MissingWeightedSections, s.Path)
		}
	}

	r.CoverageRatio = ratio(float64(len(r.FoundSections)), float64(r.TotalSections))
	r.RequiredCoverageRatio = ratio(float64(foundRequired), float64(r.RequiredSections))
	r.WeightedCoverage = ratio(foundWeight, totalWeight)

	r.Warnings = append(r.Warnings, n.warnings...)
	for _, p := range r.MissingRequiredSections {
		r.Warnings = append(r.Warnings, "Required section missing: "+p)
	}
	for _, p := range r.MissingWeightedSections {
		r.Warnings = append(r.Warnings, "Weighted section missing (not blocking): "+p)
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
	return r
}

func (n *normalizer) foundSection(rec *record.Group, s *ruleset.Section) (FoundSection, bool) {
	if segs := n.byPath[s.Path]; len(segs) > 0 {
		primary := segs[0]
		if s.FillStrategy == ruleset.FillIdentityExtract {
			primary = identityPrimary(segs)
		}
		return FoundSection{
			SectionID:  s.Path,
			Title:      primary.RawTitle,
			Confidence: primary.MappingConfidence,
			Method:     primary.MappingMethod,
		}, true
	}
	if v, ok := rec.Lookup(s.Path); ok && !v.IsEmpty() {
		return FoundSection{SectionID: s.Path, Title: s.Title, Method: MethodContent}, true
	}
	return FoundSection{}, false
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return textutil.Round2(num / den)
}
