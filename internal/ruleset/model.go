package ruleset

import (
	"regexp"
	"strings"
)

// FillStrategy says how a section value is produced from its segments.
type FillStrategy string

const (
	FillSourceOnly      FillStrategy = "source_only"
	FillIdentityExtract FillStrategy = "identity_extract"
)

// PrefacePolicy decides what happens to paragraphs before the first heading.
type PrefacePolicy string

const (
	PrefaceDrop   PrefacePolicy = "drop"
	PrefaceAttach PrefacePolicy = "attach"
)

// IdentityFields are the sub-fields filled by identity extraction.
var IdentityFields = []string{"name", "surname", "avs", "full_name"}

// AnchorKind is the matching rule of an anchor.
type AnchorKind string

const (
	AnchorExact    AnchorKind = "exact"
	AnchorContains AnchorKind = "contains"
	AnchorRegex    AnchorKind = "regex"
)

// Anchor is one matching rule of a section. Text is already normalized.
type Anchor struct {
	Kind    AnchorKind
	Raw     string
	Text    string
	Pattern *regexp.Regexp
}

// Section is a node of the canonical section tree.
type Section struct {
	ID           string
	Path         string
	Title        string
	Required     bool
	Weight       *float64
	FillStrategy FillStrategy
	Anchors      []Anchor
	Children     []*Section
	Parent       *Section
}

// IsLeaf reports whether the section has no children.
func (s *Section) IsLeaf() bool { return len(s.Children) == 0 }

// SplitField is one named sub-field of an inline split rule.
type SplitField struct {
	Field  string
	Labels []string // normalized
}

// HeadingConfig drives the segmenter.
type HeadingConfig struct {
	Styles           map[string]int // key is StyleKey(name)
	NumberingPattern *regexp.Regexp
	AllCapsMinLength int
	MaxLength        int
	MaxWords         int
	RequireBold      bool
	Preface          PrefacePolicy
}

// StyleLevel returns the heading level configured for a paragraph style.
func (h HeadingConfig) StyleLevel(style string) (int, bool) {
	if style == "" {
		return 0, false
	}
	lvl, ok := h.Styles[StyleKey(style)]
	return lvl, ok
}

// StyleKey folds a style name so "Heading 1", "heading1" and "Heading1" are equal.
func StyleKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), ""))
}

// Thresholds are the GO/NO-GO limits of a profile.
type Thresholds struct {
	MaxMissingRequired       int     `json:"max_missing_required"`
	MinRequiredCoverageRatio float64 `json:"min_required_coverage_ratio"`
	MaxUnknownTitles         int     `json:"max_unknown_titles"`
	MaxPlaceholders          int     `json:"max_placeholders"`
}

// ScoreRule adds Points to a profile when Signal fires. Numeric signals
// multiply the points.
type ScoreRule struct {
	Signal string
	Points float64
}

// Profile is a named gate profile.
type Profile struct {
	ID                     string
	Description            string
	Thresholds             Thresholds
	IgnoreRequiredPrefixes []string
	Scoring                []ScoreRule
}

// Keyword is a named title signal and its patterns.
type Keyword struct {
	Signal   string
	Patterns []*regexp.Regexp
}

// GateConfig groups the production gate settings.
type GateConfig struct {
	DefaultProfile      string
	Keywords            []Keyword
	SpecializedSections []string
	Profiles            []*Profile
}

// Built-in signal names.
const (
	SignalAlways               = "always"
	SignalSpecializedCount     = "bilan_complet_sections_count"
	SignalNoSpecialized        = "no_specialized_sections"
	SpecializedSignalPrefix    = "has_"
	defaultFuzzyThreshold      = 0.84
	defaultAllCapsMinLength    = 8
	defaultHeadingMaxLength    = 100
	defaultHeadingMaxWords     = 15
	defaultNumberingExpression = `^\d+(\.\d+)*\.?\s+`
)

// Ruleset is the immutable, validated configuration of the engine.
type Ruleset struct {
	Version        string
	Language       string
	DocType        string
	Headings       HeadingConfig
	IgnoreTitles   []*regexp.Regexp
	FuzzyThreshold float64
	Sections       []*Section
	SplitRules     map[string][]SplitField
	Placeholders   []*regexp.Regexp
	Gate           GateConfig

	all    []*Section
	byPath map[string]*Section
}

var defaultWeights = map[string]float64{
	"identity":              2,
	"profession_formation":  3,
	"orientation_formation": 3,
	"tests":                 2,
	"competences":           1.5,
	"conclusion":            1.5,
}

// AllSections returns every section in declaration pre-order.
func (r *Ruleset) AllSections() []*Section { return r.all }

// Section returns the section at a dot path.
func (r *Ruleset) Section(path string) (*Section, bool) {
	s, ok := r.byPath[path]
	return s, ok
}

// RequiredPaths returns the paths of required sections, in pre-order.
func (r *Ruleset) RequiredPaths() []string {
	var out []string
	for _, s := range r.all {
		if s.Required {
			out = append(out, s.Path)
		}
	}
	return out
}

// Weight returns the coverage weight of a section path. Explicit weights
// win; otherwise a built-in table gives key sections more weight.
func (r *Ruleset) Weight(path string) float64 {
	if s, ok := r.byPath[path]; ok && s.Weight != nil {
		return *s.Weight
	}
	if w, ok := defaultWeights[path]; ok {
		return w
	}
	return 1
}

// Profile returns a gate profile by id.
func (r *Ruleset) Profile(id string) (*Profile, bool) {
	for _, p := range r.Gate.Profiles {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// IsIgnoredTitle reports whether a normalized title is a generic document
// title that must never be mapped.
func (r *Ruleset) IsIgnoredTitle(normalized string) bool {
	for _, re := range r.IgnoreTitles {
		if re.MatchString(normalized) {
			return true
		}
	}
	return false
}

// SpecializedSignal is the boolean signal name for a specialized section.
func SpecializedSignal(sectionID string) string {
	return SpecializedSignalPrefix + strings.ReplaceAll(sectionID, ".", "_")
}

// Signals returns every signal name the gate can compute.
func (r *Ruleset) Signals() []string {
	out := []string{SignalAlways, SignalSpecializedCount, SignalNoSpecialized}
	for _, kw := range r.Gate.Keywords {
		out = append(out, kw.Signal)
	}
	for _, id := range r.Gate.SpecializedSections {
		out = append(out, SpecializedSignal(id))
	}
	return out
}

// Summary is the version card of a ruleset.
type Summary struct {
	Version          string   `json:"version"`
	Language         string   `json:"language"`
	DocType          string   `json:"doc_type"`
	TotalSections    int      `json:"total_sections"`
	RequiredSections []string `json:"required_sections"`
	TopLevelSections []string `json:"top_level_sections"`
	Profiles         []string `json:"profiles"`
	DefaultProfile   string   `json:"default_profile"`
}

// Summarize describes the ruleset for the version command and endpoint.
func (r *Ruleset) Summarize() Summary {
	s := Summary{
		Version:          r.Version,
		Language:         r.Language,
		DocType:          r.DocType,
		TotalSections:    len(r.all),
		RequiredSections: r.RequiredPaths(),
		TopLevelSections: make([]string, 0, len(r.Sections)),
		Profiles:         make([]string, 0, len(r.Gate.Profiles)),
		DefaultProfile:   r.Gate.DefaultProfile,
	}
	if s.RequiredSections == nil {
		s.RequiredSections = []string{}
	}
	for _, sec := range r.Sections {
		s.TopLevelSections = append(s.TopLevelSections, sec.ID)
	}
	for _, p := range r.Gate.Profiles {
		s.Profiles = append(s.Profiles, p.ID)
	}
	return s
}
