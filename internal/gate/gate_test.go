package gate

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docgate/internal/normalize"
	"github.com/dgallion1/docgate/internal/record"
	"github.com/dgallion1/docgate/internal/ruleset"
)

const customRules = `
version: "1"
sections:
  - id: identity
    required: true
    anchors: [{exact: Identité}]
  - id: tests
    required: true
    anchors: [{exact: Tests}]
    children:
      - id: evolution
        required: true
        anchors: [{exact: Evolution}]
  - id: tests_extra
    required: true
    anchors: [{exact: Tests complémentaires}]
placeholders: ['\[TODO\]']
gate:
  default_profile: fallback
  keywords:
    - signal: has_stage
      patterns: ['\bstages?\b']
  specialized_sections: [tests]
  profiles:
    - id: strict
      thresholds: {max_missing_required: 0, min_required_coverage_ratio: 1, max_unknown_titles: 0, max_placeholders: 0}
      scoring:
        - {signal: has_tests, points: 10}
    - id: fallback
      thresholds: {max_missing_required: 0, min_required_coverage_ratio: 1, max_unknown_titles: 0, max_placeholders: 0}
      ignore_required_prefixes: [tests]
      scoring:
        - {signal: has_stage, points: 5}
`

func defaultRuleset(t *testing.T) *ruleset.Ruleset {
	t.Helper()
	rs, err := ruleset.Default()
	require.NoError(t, err)
	return rs
}

func customRuleset(t *testing.T) *ruleset.Ruleset {
	t.Helper()
	rs, err := ruleset.Parse([]byte(customRules))
	require.NoError(t, err)
	return rs
}

// report builds a report where the given sections were found through
// headings of the same name.
func report(found ...string) normalize.Report {
	r := normalize.Report{}
	for _, f := range found {
		id, title, _ := strings.Cut(f, "=")
		if title == "" {
			title = id
		}
		r.FoundSections = append(r.FoundSections, normalize.FoundSection{SectionID: id, Title: title, Confidence: 1, Method: "exact"})
	}
	return r
}

func withMissing(r normalize.Report, rs *ruleset.Ruleset) normalize.Report {
	r.MissingRequiredSections = []string{}
	for _, p := range rs.RequiredPaths() {
		if !r.IsFound(p) {
			r.MissingRequiredSections = append(r.MissingRequiredSections, p)
		}
	}
	return r
}

func TestSignalsReadTitlesOnly(t *testing.T) {
	rs := defaultRuleset(t)

	s := ExtractSignals(report("identity=Identité", "conclusion=Conclusion"), rs)
	assert.False(t, s.Flags["has_stage"])
	assert.True(t, s.Flags["no_specialized_sections"])
	assert.Equal(t, 0, s.Counts["bilan_complet_sections_count"])
	assert.Equal(t, []string{"Identité", "Conclusion"}, s.MatchedTitles)

	s = ExtractSignals(report("orientation_formation.stage=Bilan de stage – Mars 2024", "tests=Tests", "vocation=Vocation"), rs)
	assert.True(t, s.Flags["has_stage"])
	assert.True(t, s.Flags["has_tests"])
	assert.True(t, s.Flags["has_vocation"])
	assert.False(t, s.Flags["has_profil_emploi"])
	assert.Equal(t, 2, s.Counts["bilan_complet_sections_count"])
	assert.False(t, s.Flags["no_specialized_sections"])
}

func TestSignalsIgnoreContentSections(t *testing.T) {
	rs := defaultRuleset(t)
	r := normalize.Report{FoundSections: []normalize.FoundSection{
		{SectionID: "orientation_formation.stage", Title: "Stage", Method: normalize.MethodContent},
	}}

	s := ExtractSignals(r, rs)
	assert.False(t, s.Flags["has_stage"])
	assert.Empty(t, s.MatchedTitles)
}

func TestSignalsRegulatoryKeywords(t *testing.T) {
	rs := defaultRuleset(t)
	s := ExtractSignals(report("conclusion=Conclusion LAI 15", "vocation=Mesure art. 18 LAI"), rs)
	assert.True(t, s.Flags["has_lai15"])
	assert.True(t, s.Flags["has_lai18"])
}

func TestMatchedTitlesAreTruncated(t *testing.T) {
	rs := defaultRuleset(t)
	long := strings.Repeat("Conclusion ", 10)
	s := ExtractSignals(report("conclusion="+long), rs)
	require.Len(t, s.MatchedTitles, 1)
	assert.Equal(t, 40, len([]rune(s.MatchedTitles[0])))
}

func TestScoring(t *testing.T) {
	rs := defaultRuleset(t)

	scores := Score(ExtractSignals(report("identity=Identité"), rs), rs)
	assert.Equal(t, 0.0, scores["bilan_complet"])
	assert.Equal(t, 0.0, scores["stage"])
	assert.Equal(t, 45.0, scores["placement_suivi"])

	scores = Score(ExtractSignals(report("tests=Tests", "vocation=Vocation", "profil_emploi=Profil emploi"), rs), rs)
	assert.Equal(t, 60.0, scores["bilan_complet"])
	assert.Equal(t, 25.0, scores["placement_suivi"])

	scores = Score(ExtractSignals(report("orientation_formation.stage=Stages"), rs), rs)
	assert.Equal(t, 100.0, scores["stage"])
}

func TestRankKeepsDeclarationOrderOnTies(t *testing.T) {
	rs := defaultRuleset(t)
	ranking := Rank(map[string]float64{"bilan_complet": 20, "stage": 20, "placement_suivi": 40}, rs)
	assert.Equal(t, []Ranked{
		{"placement_suivi", 40},
		{"bilan_complet", 20},
		{"stage", 20},
	}, ranking)
}

func TestAutoSelection(t *testing.T) {
	rs := defaultRuleset(t)
	r := withMissing(report("identity=Identité", "tests=Tests", "vocation=Vocation", "profil_emploi=Profil emploi"), rs)

	v := Evaluate(Input{Report: r, Record: record.NewGroup()}, rs, "")
	assert.Equal(t, "bilan_complet", v.ProfileID)
	assert.False(t, v.Forced)
	assert.Equal(t, 35.0, v.Confidence)
	require.Len(t, v.ProfileRanking, 3)
	assert.Equal(t, "bilan_complet", v.ProfileRanking[0].ProfileID)
}

func TestDefaultProfileWhenNothingScores(t *testing.T) {
	rs := customRuleset(t)
	r := withMissing(report("identity=Identité"), rs)

	v := Evaluate(Input{Report: r}, rs, "")
	assert.Equal(t, "fallback", v.ProfileID)
	require.NotEmpty(t, v.Notes)
	assert.Contains(t, v.Notes[0], "No profile scored above zero")
}

func TestIgnorePrefixesUseSegmentBoundaries(t *testing.T) {
	rs := customRuleset(t)
	r := withMissing(report("identity=Identité"), rs)
	require.Equal(t, []string{"tests", "tests.evolution", "tests_extra"}, r.MissingRequiredSections)

	v := Evaluate(Input{Report: r}, rs, "fallback")
	assert.Equal(t, []string{"tests_extra"}, v.MissingRequiredEffective)
	assert.Equal(t, 0.5, v.Metrics.RequiredCoverageRatioEffective)
	assert.Equal(t, 3, v.Metrics.MissingRequiredSectionsCount)
	assert.Equal(t, 1, v.Metrics.MissingRequiredSectionsCountEffective)
}

func TestThresholdReasons(t *testing.T) {
	rs := defaultRuleset(t)
	r := withMissing(report("identity=Identité"), rs)
	r.RequiredCoverageRatio = 0.25
	for i := 0; i < 6; i++ {
		r.UnknownTitles = append(r.UnknownTitles, "Inconnu")
	}
	rec := record.NewGroup()
	rec.Set("conclusion", record.Text("[TODO] puis XXXX et ...."))

	v := Evaluate(Input{Report: r, Record: rec}, rs, "bilan_complet")
	assert.Equal(t, StatusNoGo, v.Status)
	assert.False(t, v.IsGo())
	assert.Equal(t, Criteria{}, v.Criteria)
	assert.Equal(t, []string{
		"Too many missing required sections: 3 > 0 (profession_formation, orientation_formation, orientation_formation.orientation)",
		"Required coverage too low: 25% < 95%",
		"Too many unknown titles: 6 > 5",
		"Too many placeholders: 3 > 1",
	}, v.Reasons)
}

func TestGoWhenAllCriteriaPass(t *testing.T) {
	rs := defaultRuleset(t)
	r := withMissing(report(
		"identity=Identité",
		"profession_formation=Profession & Formation",
		"orientation_formation=Orientation & Formation",
		"orientation_formation.orientation=Orientation retenue",
	), rs)

	v := Evaluate(Input{Report: r, Record: record.NewGroup()}, rs, "")
	assert.Equal(t, StatusGo, v.Status)
	assert.Equal(t, "placement_suivi", v.ProfileID)
	assert.Empty(t, v.Reasons)
	assert.Equal(t, 1.0, v.Metrics.RequiredCoverageRatioEffective)
}

func TestForcedProfile(t *testing.T) {
	rs := defaultRuleset(t)
	r := withMissing(report("identity=Identité", "conclusion=Conclusion"), rs)

	auto := Evaluate(Input{Report: r}, rs, "")
	require.Equal(t, "placement_suivi", auto.ProfileID)

	v := Evaluate(Input{Report: r}, rs, "bilan_complet")
	assert.Equal(t, "bilan_complet", v.ProfileID)
	assert.True(t, v.Forced)
	assert.Equal(t, "bilan_complet", v.RequestedProfile)
	assert.Equal(t, 0.95, v.Thresholds.MinRequiredCoverageRatio)
	assert.Empty(t, v.Scores)
}

func TestUnknownForcedProfileFallsBack(t *testing.T) {
	rs := defaultRuleset(t)
	v := Evaluate(Input{Report: withMissing(report(), rs)}, rs, "nope")

	assert.Equal(t, "placement_suivi", v.ProfileID)
	assert.True(t, v.Forced)
	assert.Equal(t, "nope", v.RequestedProfile)
	require.Len(t, v.Notes, 1)
	assert.Contains(t, v.Notes[0], `Unknown forced profile "nope"`)
}

func TestFindPlaceholders(t *testing.T) {
	rs := defaultRuleset(t)
	rec := record.NewGroup()
	rec.Set("a", record.Text("Nom: [A COMPLETER]"))
	sub := record.NewGroup()
	sub.Set("b", record.Text("Date ____ et [XXX]"))
	sub.Set("c", record.Text("Rien à signaler."))
	rec.Set("sub", sub)

	got := FindPlaceholders(rec, rs.Placeholders)
	assert.Equal(t, []Placeholder{
		{"a", "[A COMPLETER]"},
		{"sub.b", "____"},
		{"sub.b", "[XXX]"},
	}, got)

	assert.Empty(t, FindPlaceholders(nil, rs.Placeholders))
	assert.Len(t, FindPlaceholders(rec, []*regexp.Regexp{regexp.MustCompile(`X`)}), 3)
}

func TestVerdictJSON(t *testing.T) {
	rs := defaultRuleset(t)
	v := Evaluate(Input{Report: withMissing(report("orientation_formation.stage=Bilan de stage"), rs)}, rs, "")

	b, err := json.Marshal(v)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	for _, key := range []string{"status", "profile_id", "forced", "signals", "scores", "profile_ranking",
		"confidence", "reasons", "criteria", "metrics", "thresholds", "missing_required_effective", "placeholders"} {
		assert.Contains(t, m, key)
	}
	signals := m["signals"].(map[string]any)
	assert.Equal(t, true, signals["has_stage"])
	assert.Equal(t, []any{"Bilan de stage"}, signals["matched_titles"])

	var back Verdict
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, v.Signals.Flags, back.Signals.Flags)
	assert.Equal(t, v.Signals.Counts, back.Signals.Counts)
}
