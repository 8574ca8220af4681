package ruleset

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dgallion1/docgate/internal/textutil"
)

//go:embed rulesets/rhpro_v1.yaml
var defaultRuleset []byte

// ConfigError is a fatal ruleset problem at a given document path.
type ConfigError struct {
	Path string
	Msg  string
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "ruleset: " + e.Msg
	}
	return fmt.Sprintf("ruleset: %s: %s", e.Path, e.Msg)
}

type rawRuleset struct {
	Version        string                     `yaml:"version"`
	Language       string                     `yaml:"language"`
	DocType        string                     `yaml:"doc_type"`
	Headings       rawHeadings                `yaml:"headings"`
	IgnoreTitles   []string                   `yaml:"ignore_titles"`
	FuzzyThreshold *float64                   `yaml:"fuzzy_threshold"`
	Sections       []rawSection               `yaml:"sections"`
	SplitRules     map[string][]rawSplitField `yaml:"split_rules"`
	Placeholders   []string                   `yaml:"placeholders"`
	Gate           rawGate                    `yaml:"gate"`
}

type rawHeadings struct {
	Styles           map[string]int `yaml:"styles"`
	NumberingRegex   string         `yaml:"numbering_regex"`
	AllCapsMinLength int            `yaml:"all_caps_min_length"`
	Heuristic        struct {
		MaxLength   int   `yaml:"max_length"`
		MaxWords    int   `yaml:"max_words"`
		RequireBold *bool `yaml:"require_bold"`
	} `yaml:"heuristic"`
	Preface string `yaml:"preface"`
}

type rawSection struct {
	ID           string       `yaml:"id"`
	Title        string       `yaml:"title"`
	Required     bool         `yaml:"required"`
	Weight       *float64     `yaml:"weight"`
	FillStrategy string       `yaml:"fill_strategy"`
	Anchors      []rawAnchor  `yaml:"anchors"`
	Children     []rawSection `yaml:"children"`
}

type rawAnchor struct {
	Exact    string `yaml:"exact"`
	Contains string `yaml:"contains"`
	Regex    string `yaml:"regex"`
}

type rawSplitField struct {
	Field  string   `yaml:"field"`
	Labels []string `yaml:"labels"`
}

type rawGate struct {
	DefaultProfile      string       `yaml:"default_profile"`
	Keywords            []rawKeyword `yaml:"keywords"`
	SpecializedSections []string     `yaml:"specialized_sections"`
	Profiles            []rawProfile `yaml:"profiles"`
}

type rawKeyword struct {
	Signal   string   `yaml:"signal"`
	Patterns []string `yaml:"patterns"`
}

type rawProfile struct {
	ID                     string         `yaml:"id"`
	Description            string         `yaml:"description"`
	Thresholds             rawThresholds  `yaml:"thresholds"`
	IgnoreRequiredPrefixes []string       `yaml:"ignore_required_prefixes"`
	Scoring                []rawScoreRule `yaml:"scoring"`
}

type rawThresholds struct {
	MaxMissingRequired       int     `yaml:"max_missing_required"`
	MinRequiredCoverageRatio float64 `yaml:"min_required_coverage_ratio"`
	MaxUnknownTitles         int     `yaml:"max_unknown_titles"`
	MaxPlaceholders          int     `yaml:"max_placeholders"`
}

type rawScoreRule struct {
	Signal string  `yaml:"signal"`
	Points float64 `yaml:"points"`
}

// Load reads and validates a ruleset file.
func Load(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ruleset: %w", err)
	}
	return Parse(data)
}

// Default returns the embedded ruleset.
func Default() (*Ruleset, error) {
	return Parse(defaultRuleset)
}

// LoadOrDefault loads path, or the embedded ruleset when path is empty.
func LoadOrDefault(path string) (*Ruleset, error) {
	if path == "" {
		return Default()
	}
	return Load(path)
}

// Parse decodes and validates ruleset YAML. Unknown keys are rejected.
func Parse(data []byte) (*Ruleset, error) {
	var raw rawRuleset
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ConfigError{Msg: "empty document"}
		}
		return nil, &ConfigError{Msg: err.Error()}
	}

	c := &compiler{rs: &Ruleset{byPath: make(map[string]*Section)}, anchors: make(map[string]string)}
	c.compile(&raw)
	if len(c.errs) > 0 {
		return nil, errors.Join(c.errs...)
	}
	return c.rs, nil
}

type compiler struct {
	rs      *Ruleset
	errs    []error
	anchors map[string]string // kind:text -> section path
}

func (c *compiler) fail(path, format string, args ...any) {
	c.errs = append(c.errs, &ConfigError{Path: path, Msg: fmt.Sprintf(format, args...)})
}

func (c *compiler) regex(path, expr string) *regexp.Regexp {
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		c.fail(path, "invalid regex %q: %v", expr, err)
		return nil
	}
	return re
}

func (c *compiler) compile(raw *rawRuleset) {
	rs := c.rs
	rs.Version = raw.Version
	rs.Language = raw.Language
	rs.DocType = raw.DocType
	if strings.TrimSpace(raw.Version) == "" {
		c.fail("version", "is required")
	}
	if len(raw.Sections) == 0 {
		c.fail("sections", "at least one section is required")
	}

	c.compileHeadings(&raw.Headings)

	for i, expr := range raw.IgnoreTitles {
		if re := c.regex(fmt.Sprintf("ignore_titles[%d]", i), expr); re != nil {
			rs.IgnoreTitles = append(rs.IgnoreTitles, re)
		}
	}

	rs.FuzzyThreshold = defaultFuzzyThreshold
	if raw.FuzzyThreshold != nil {
		rs.FuzzyThreshold = *raw.FuzzyThreshold
		if rs.FuzzyThreshold <= 0 || rs.FuzzyThreshold > 1 {
			c.fail("fuzzy_threshold", "must be in (0, 1], got %v", rs.FuzzyThreshold)
		}
	}

	rs.Sections = c.compileSections("sections", raw.Sections, nil)
	c.compileSplitRules(raw.SplitRules)

	for i, expr := range raw.Placeholders {
		re, err := regexp.Compile(expr)
		if err != nil {
			c.fail(fmt.Sprintf("placeholders[%d]", i), "invalid regex %q: %v", expr, err)
			continue
		}
		rs.Placeholders = append(rs.Placeholders, re)
	}

	c.compileGate(&raw.Gate)
}

func (c *compiler) compileHeadings(raw *rawHeadings) {
	h := HeadingConfig{
		Styles:           make(map[string]int, len(raw.Styles)),
		AllCapsMinLength: raw.AllCapsMinLength,
		MaxLength:        raw.Heuristic.MaxLength,
		MaxWords:         raw.Heuristic.MaxWords,
		RequireBold:      true,
		Preface:          PrefacePolicy(raw.Preface),
	}
	for _, name := range slices.Sorted(maps.Keys(raw.Styles)) {
		lvl := raw.Styles[name]
		if lvl <= 0 {
			c.fail("headings.styles."+name, "level must be positive, got %d", lvl)
			continue
		}
		h.Styles[StyleKey(name)] = lvl
	}
	expr := raw.NumberingRegex
	if expr == "" {
		expr = defaultNumberingExpression
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		c.fail("headings.numbering_regex", "invalid regex %q: %v", expr, err)
	}
	h.NumberingPattern = re
	if h.AllCapsMinLength <= 0 {
		h.AllCapsMinLength = defaultAllCapsMinLength
	}
	if h.MaxLength <= 0 {
		h.MaxLength = defaultHeadingMaxLength
	}
	if h.MaxWords <= 0 {
		h.MaxWords = defaultHeadingMaxWords
	}
	if raw.Heuristic.RequireBold != nil {
		h.RequireBold = *raw.Heuristic.RequireBold
	}
	switch h.Preface {
	case "":
		h.Preface = PrefaceDrop
	case PrefaceDrop, PrefaceAttach:
	default:
		c.fail("headings.preface", "unknown policy %q (want drop or attach)", raw.Preface)
	}
	c.rs.Headings = h
}

func (c *compiler) compileSections(at string, raws []rawSection, parent *Section) []*Section {
	seen := make(map[string]bool, len(raws))
	out := make([]*Section, 0, len(raws))
	for i, raw := range raws {
		loc := fmt.Sprintf("%s[%d]", at, i)
		id := strings.TrimSpace(raw.ID)
		if id == "" {
			c.fail(loc+".id", "is required")
			continue
		}
		if strings.Contains(id, ".") {
			c.fail(loc+".id", "must not contain '.' (%q)", id)
			continue
		}
		if seen[id] {
			c.fail(loc+".id", "duplicate section id %q", id)
			continue
		}
		seen[id] = true

		s := &Section{ID: id, Title: raw.Title, Required: raw.Required, Weight: raw.Weight, Parent: parent}
		s.Path = id
		if parent != nil {
			s.Path = parent.Path + "." + id
		}
		if s.Title == "" {
			s.Title = id
		}
		if s.Weight != nil && *s.Weight < 0 {
			c.fail(loc+".weight", "must not be negative")
		}
		switch FillStrategy(raw.FillStrategy) {
		case "", FillSourceOnly:
			s.FillStrategy = FillSourceOnly
		case FillIdentityExtract:
			s.FillStrategy = FillIdentityExtract
			if len(raw.Children) > 0 {
				c.fail(loc+".fill_strategy", "identity_extract sections cannot have children")
			}
		default:
			c.fail(loc+".fill_strategy", "unknown fill strategy %q", raw.FillStrategy)
		}

		for j, ra := range raw.Anchors {
			if a, ok := c.compileAnchor(fmt.Sprintf("%s.anchors[%d]", loc, j), ra, s.Path); ok {
				s.Anchors = append(s.Anchors, a)
			}
		}

		c.rs.all = append(c.rs.all, s)
		c.rs.byPath[s.Path] = s
		s.Children = c.compileSections(loc+".children", raw.Children, s)
		out = append(out, s)
	}
	return out
}

func (c *compiler) compileAnchor(loc string, ra rawAnchor, sectionPath string) (Anchor, bool) {
	var kinds []AnchorKind
	if ra.Exact != "" {
		kinds = append(kinds, AnchorExact)
	}
	if ra.Contains != "" {
		kinds = append(kinds, AnchorContains)
	}
	if ra.Regex != "" {
		kinds = append(kinds, AnchorRegex)
	}
	if len(kinds) != 1 {
		c.fail(loc, "exactly one of exact, contains or regex is required")
		return Anchor{}, false
	}

	a := Anchor{Kind: kinds[0]}
	switch a.Kind {
	case AnchorExact:
		a.Raw, a.Text = ra.Exact, textutil.NormalizeTitle(ra.Exact)
	case AnchorContains:
		a.Raw, a.Text = ra.Contains, textutil.NormalizeTitle(ra.Contains)
	case AnchorRegex:
		a.Raw = ra.Regex
		a.Pattern = c.regex(loc+".regex", ra.Regex)
		if a.Pattern == nil {
			return Anchor{}, false
		}
		a.Text = ra.Regex
	}
	if a.Text == "" {
		c.fail(loc, "anchor %q normalizes to an empty string", a.Raw)
		return Anchor{}, false
	}

	key := string(a.Kind) + ":" + a.Text
	if owner, dup := c.anchors[key]; dup {
		c.fail(loc, "duplicate anchor %s %q (already used by %s)", a.Kind, a.Raw, owner)
		return Anchor{}, false
	}
	c.anchors[key] = sectionPath
	return a, true
}

func (c *compiler) compileSplitRules(raw map[string][]rawSplitField) {
	c.rs.SplitRules = make(map[string][]SplitField, len(raw))
	for _, path := range slices.Sorted(maps.Keys(raw)) {
		fields := raw[path]
		loc := "split_rules." + path
		s, ok := c.rs.byPath[path]
		if !ok {
			c.fail(loc, "unknown section %q", path)
			continue
		}
		if s.FillStrategy == FillIdentityExtract {
			c.fail(loc, "identity_extract sections cannot be split")
			continue
		}
		if len(fields) == 0 {
			c.fail(loc, "at least one field is required")
			continue
		}
		seen := map[string]bool{}
		var out []SplitField
		for i, f := range fields {
			floc := fmt.Sprintf("%s[%d]", loc, i)
			if f.Field == "" || f.Field == "_raw" || strings.Contains(f.Field, ".") {
				c.fail(floc+".field", "invalid field name %q", f.Field)
				continue
			}
			if seen[f.Field] {
				c.fail(floc+".field", "duplicate field %q", f.Field)
				continue
			}
			seen[f.Field] = true
			labels := f.Labels
			if len(labels) == 0 {
				labels = []string{f.Field}
			}
			sf := SplitField{Field: f.Field}
			for _, l := range labels {
				if n := textutil.NormalizeTitle(l); n != "" {
					sf.Labels = append(sf.Labels, n)
				}
			}
			if len(sf.Labels) == 0 {
				c.fail(floc+".labels", "no usable label")
				continue
			}
			out = append(out, sf)
		}
		c.rs.SplitRules[path] = out
	}
}

func (c *compiler) compileGate(raw *rawGate) {
	g := GateConfig{DefaultProfile: raw.DefaultProfile}

	builtin := map[string]bool{SignalAlways: true, SignalSpecializedCount: true, SignalNoSpecialized: true}
	for i, kw := range raw.Keywords {
		loc := fmt.Sprintf("gate.keywords[%d]", i)
		if kw.Signal == "" || builtin[kw.Signal] {
			c.fail(loc+".signal", "invalid signal name %q", kw.Signal)
			continue
		}
		k := Keyword{Signal: kw.Signal}
		for j, expr := range kw.Patterns {
			if re := c.regex(fmt.Sprintf("%s.patterns[%d]", loc, j), expr); re != nil {
				k.Patterns = append(k.Patterns, re)
			}
		}
		g.Keywords = append(g.Keywords, k)
	}

	for i, id := range raw.SpecializedSections {
		if _, ok := c.rs.byPath[id]; !ok {
			c.fail(fmt.Sprintf("gate.specialized_sections[%d]", i), "unknown section %q", id)
			continue
		}
		g.SpecializedSections = append(g.SpecializedSections, id)
	}
	c.rs.Gate = g

	known := make(map[string]bool)
	for _, s := range c.rs.Signals() {
		known[s] = true
	}

	if len(raw.Profiles) == 0 {
		c.fail("gate.profiles", "at least one profile is required")
	}
	ids := map[string]bool{}
	for i, rp := range raw.Profiles {
		loc := fmt.Sprintf("gate.profiles[%d]", i)
		if rp.ID == "" {
			c.fail(loc+".id", "is required")
			continue
		}
		if ids[rp.ID] {
			c.fail(loc+".id", "duplicate profile id %q", rp.ID)
			continue
		}
		ids[rp.ID] = true

		t := rp.Thresholds
		if t.MinRequiredCoverageRatio < 0 || t.MinRequiredCoverageRatio > 1 {
			c.fail(loc+".thresholds.min_required_coverage_ratio", "must be in [0, 1], got %v", t.MinRequiredCoverageRatio)
		}
		if t.MaxMissingRequired < 0 || t.MaxUnknownTitles < 0 || t.MaxPlaceholders < 0 {
			c.fail(loc+".thresholds", "max_* thresholds must not be negative")
		}

		p := &Profile{
			ID:          rp.ID,
			Description: rp.Description,
			Thresholds:  Thresholds(t),
		}
		for j, prefix := range rp.IgnoreRequiredPrefixes {
			if _, ok := c.rs.byPath[prefix]; !ok {
				c.fail(fmt.Sprintf("%s.ignore_required_prefixes[%d]", loc, j), "unknown section %q", prefix)
				continue
			}
			p.IgnoreRequiredPrefixes = append(p.IgnoreRequiredPrefixes, prefix)
		}
		for j, sr := range rp.Scoring {
			if !known[sr.Signal] {
				c.fail(fmt.Sprintf("%s.scoring[%d].signal", loc, j), "unknown signal %q", sr.Signal)
				continue
			}
			p.Scoring = append(p.Scoring, ScoreRule(sr))
		}
		c.rs.Gate.Profiles = append(c.rs.Gate.Profiles, p)
	}

	if raw.DefaultProfile == "" {
		c.fail("gate.default_profile", "is required")
	} else if !ids[raw.DefaultProfile] {
		c.fail("gate.default_profile", "unknown profile %q", raw.DefaultProfile)
	}
}
