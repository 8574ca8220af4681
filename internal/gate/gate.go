// Package gate decides whether a normalized document is ready to publish.
// It scores the ruleset's profiles from heading signals, picks one and
// checks the profile thresholds.
package gate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dgallion1/docgate/internal/normalize"
	"github.com/dgallion1/docgate/internal/record"
	"github.com/dgallion1/docgate/internal/ruleset"
	"github.com/dgallion1/docgate/internal/textutil"
)

// Verdict statuses.
const (
	StatusGo   = "GO"
	StatusNoGo = "NO-GO"
)

// Input is what the gate reads from a normalized document.
type Input struct {
	Report normalize.Report
	Record *record.Group
}

// Ranked is one entry of the profile ranking.
type Ranked struct {
	ProfileID string  `json:"profile_id"`
	Score     float64 `json:"score"`
}

// Criteria holds one boolean per threshold.
type Criteria struct {
	MissingRequiredOK  bool `json:"missing_required_ok"`
	RequiredCoverageOK bool `json:"required_coverage_ok"`
	UnknownTitlesOK    bool `json:"unknown_titles_ok"`
	PlaceholdersOK     bool `json:"placeholders_ok"`
}

// Metrics are the values compared against the thresholds.
type Metrics struct {
	RequiredCoverageRatio                 float64 `json:"required_coverage_ratio"`
	RequiredCoverageRatioEffective        float64 `json:"required_coverage_ratio_effective"`
	MissingRequiredSectionsCount          int     `json:"missing_required_sections_count"`
	MissingRequiredSectionsCountEffective int     `json:"missing_required_sections_count_effective"`
	UnknownTitlesCount                    int     `json:"unknown_titles_count"`
	PlaceholdersCount                     int     `json:"placeholders_count"`
}

// Verdict is the explainable GO/NO-GO decision.
type Verdict struct {
	Status                   string             `json:"status"`
	ProfileID                string             `json:"profile_id"`
	Forced                   bool               `json:"forced"`
	RequestedProfile         string             `json:"requested_profile,omitempty"`
	Signals                  Signals            `json:"signals"`
	Scores                   map[string]float64 `json:"scores"`
	ProfileRanking           []Ranked           `json:"profile_ranking"`
	Confidence               float64            `json:"confidence"`
	Reasons                  []string           `json:"reasons"`
	Criteria                 Criteria           `json:"criteria"`
	Metrics                  Metrics            `json:"metrics"`
	Thresholds               ruleset.Thresholds `json:"thresholds"`
	MissingRequiredEffective []string           `json:"missing_required_effective"`
	Placeholders             []Placeholder      `json:"placeholders"`
	Notes                    []string           `json:"notes"`
}

// IsGo reports whether the document passed.
func (v *Verdict) IsGo() bool { return v.Status == StatusGo }

// Evaluate runs signal extraction, profile selection and the threshold
// checks. An empty override selects the profile automatically. It never
// fails: an unknown override falls back to the default profile.
func Evaluate(in Input, rs *ruleset.Ruleset, override string) Verdict {
	v := Verdict{
		Signals:        ExtractSignals(in.Report, rs),
		Scores:         map[string]float64{},
		ProfileRanking: []Ranked{},
		Reasons:        []string{},
		Notes:          []string{},
	}

	var profile *ruleset.Profile
	if override != "" {
		v.Forced = true
		v.RequestedProfile = override
		p, ok := rs.Profile(override)
		if !ok {
			p, _ = rs.Profile(rs.Gate.DefaultProfile)
			v.Notes = append(v.Notes, fmt.Sprintf("Unknown forced profile %q, using default profile %q", override, p.ID))
		} else {
			v.Notes = append(v.Notes, fmt.Sprintf("Profile forced to %q", p.ID))
		}
		profile = p
	} else {
		v.Scores = Score(v.Signals, rs)
		v.ProfileRanking = Rank(v.Scores, rs)
		profile = selectProfile(v.ProfileRanking, rs)
		if len(v.ProfileRanking) > 1 {
			v.Confidence = textutil.Round2(v.ProfileRanking[0].Score - v.ProfileRanking[1].Score)
		} else if len(v.ProfileRanking) == 1 {
			v.Confidence = v.ProfileRanking[0].Score
		}
		if profile.ID == rs.Gate.DefaultProfile && (len(v.ProfileRanking) == 0 || v.ProfileRanking[0].Score <= 0) {
			v.Notes = append(v.Notes, fmt.Sprintf("No profile scored above zero, using default profile %q", profile.ID))
		}
	}

	v.ProfileID = profile.ID
	v.Thresholds = profile.Thresholds
	v.Placeholders = FindPlaceholders(in.Record, rs.Placeholders)
	check(&v, in.Report, rs, profile)
	return v
}

// Score gives every profile the sum of its scoring rules. Flags add their
// points when set; counters multiply them.
func Score(s Signals, rs *ruleset.Ruleset) map[string]float64 {
	scores := make(map[string]float64, len(rs.Gate.Profiles))
	for _, p := range rs.Gate.Profiles {
		total := 0.0
		for _, rule := range p.Scoring {
			if val, ok := s.Value(rule.Signal); ok {
				total += rule.Points * val
			}
		}
		scores[p.ID] = textutil.Round2(total)
	}
	return scores
}

// Rank sorts profiles by descending score; ties keep declaration order.
func Rank(scores map[string]float64, rs *ruleset.Ruleset) []Ranked {
	out := make([]Ranked, 0, len(rs.Gate.Profiles))
	for _, p := range rs.Gate.Profiles {
		out = append(out, Ranked{ProfileID: p.ID, Score: scores[p.ID]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func selectProfile(ranking []Ranked, rs *ruleset.Ruleset) *ruleset.Profile {
	if len(ranking) > 0 && ranking[0].Score > 0 {
		if p, ok := rs.Profile(ranking[0].ProfileID); ok {
			return p
		}
	}
	p, _ := rs.Profile(rs.Gate.DefaultProfile)
	return p
}

// check fills metrics, criteria, reasons and the final status.
func check(v *Verdict, report normalize.Report, rs *ruleset.Ruleset, p *ruleset.Profile) {
	ignored := func(path string) bool {
		for _, prefix := range p.IgnoreRequiredPrefixes {
			if path == prefix || strings.HasPrefix(path, prefix+".") {
				return true
			}
		}
		return false
	}

	v.MissingRequiredEffective = []string{}
	for _, path := range report.MissingRequiredSections {
		if !ignored(path) {
			v.MissingRequiredEffective = append(v.MissingRequiredEffective, path)
		}
	}

	required, found := 0, 0
	for _, path := range rs.RequiredPaths() {
		if ignored(path) {
			continue
		}
		required++
		if report.IsFound(path) {
			found++
		}
	}
	effective := 1.0
	if required > 0 {
		effective = textutil.Round2(float64(found) / float64(required))
	}

	v.Metrics = Metrics{
		RequiredCoverageRatio:                 report.RequiredCoverageRatio,
		RequiredCoverageRatioEffective:        effective,
		MissingRequiredSectionsCount:          len(report.MissingRequiredSections),
		MissingRequiredSectionsCountEffective: len(v.MissingRequiredEffective),
		UnknownTitlesCount:                    len(report.UnknownTitles),
		PlaceholdersCount:                     len(v.Placeholders),
	}

	t := p.Thresholds
	m := v.Metrics
	v.Criteria = Criteria{
		MissingRequiredOK:  m.MissingRequiredSectionsCountEffective <= t.MaxMissingRequired,
		RequiredCoverageOK: m.RequiredCoverageRatioEffective >= t.MinRequiredCoverageRatio,
		UnknownTitlesOK:    m.UnknownTitlesCount <= t.MaxUnknownTitles,
		PlaceholdersOK:     m.PlaceholdersCount <= t.MaxPlaceholders,
	}

	if !v.Criteria.MissingRequiredOK {
		v.Reasons = append(v.Reasons, fmt.Sprintf("Too many missing required sections: %d > %d (%s)",
			m.MissingRequiredSectionsCountEffective, t.MaxMissingRequired, strings.Join(v.MissingRequiredEffective, ", ")))
	}
	if !v.Criteria.RequiredCoverageOK {
		v.Reasons = append(v.Reasons, fmt.Sprintf("Required coverage too low: %s < %s",
			percent(m.RequiredCoverageRatioEffective), percent(t.MinRequiredCoverageRatio)))
	}
	if !v.Criteria.UnknownTitlesOK {
		v.Reasons = append(v.Reasons, fmt.Sprintf("Too many unknown titles: %d > %d", m.UnknownTitlesCount, t.MaxUnknownTitles))
	}
	if !v.Criteria.PlaceholdersOK {
		v.Reasons = append(v.Reasons, fmt.Sprintf("Too many placeholders: %d > %d", m.PlaceholdersCount, t.MaxPlaceholders))
	}

	v.Status = StatusGo
	if len(v.Reasons) > 0 {
		v.Status = StatusNoGo
	}
}

func percent(f float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(f*100)))
}
