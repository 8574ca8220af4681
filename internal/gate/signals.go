package gate

import (
	"encoding/json"

	"github.com/dgallion1/docgate/internal/normalize"
	"github.com/dgallion1/docgate/internal/ruleset"
	"github.com/dgallion1/docgate/internal/textutil"
)

const matchedTitleRunes = 40

// Signals are the facts the profile scoring reads. They come from heading
// titles and section ids only, never from body text.
type Signals struct {
	Flags         map[string]bool
	Counts        map[string]int
	MatchedTitles []string
}

// Value returns a signal as a number: 1 or 0 for flags, the count for
// counters.
func (s Signals) Value(name string) (float64, bool) {
	if v, ok := s.Flags[name]; ok {
		if v {
			return 1, true
		}
		return 0, true
	}
	if v, ok := s.Counts[name]; ok {
		return float64(v), true
	}
	return 0, false
}

// MarshalJSON flattens flags, counters and matched titles into one object.
func (s Signals) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Flags)+len(s.Counts)+1)
	for k, v := range s.Flags {
		out[k] = v
	}
	for k, v := range s.Counts {
		out[k] = v
	}
	titles := s.MatchedTitles
	if titles == nil {
		titles = []string{}
	}
	out["matched_titles"] = titles
	return json.Marshal(out)
}

// UnmarshalJSON reads the flattened form back.
func (s *Signals) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Flags = make(map[string]bool)
	s.Counts = make(map[string]int)
	for k, v := range raw {
		if k == "matched_titles" {
			if err := json.Unmarshal(v, &s.MatchedTitles); err != nil {
				return err
			}
			continue
		}
		var b bool
		if err := json.Unmarshal(v, &b); err == nil {
			s.Flags[k] = b
			continue
		}
		var n int
		if err := json.Unmarshal(v, &n); err != nil {
			return err
		}
		s.Counts[k] = n
	}
	return nil
}

// ExtractSignals computes every signal the ruleset declares from the
// titles of found sections.
func ExtractSignals(report normalize.Report, rs *ruleset.Ruleset) Signals {
	s := Signals{
		Flags:         make(map[string]bool),
		Counts:        make(map[string]int),
		MatchedTitles: []string{},
	}
	s.Counts[ruleset.SignalAlways] = 1

	var titles []string
	for _, f := range report.FoundSections {
		if f.Method == normalize.MethodContent || f.Title == "" {
			continue
		}
		titles = append(titles, textutil.NormalizeTitle(f.Title))
		s.MatchedTitles = append(s.MatchedTitles, textutil.Truncate(f.Title, matchedTitleRunes))
	}

	for _, kw := range rs.Gate.Keywords {
		s.Flags[kw.Signal] = anyMatch(kw, titles)
	}

	present := 0
	for _, id := range rs.Gate.SpecializedSections {
		found := report.IsFound(id)
		s.Flags[ruleset.SpecializedSignal(id)] = found
		if found {
			present++
		}
	}
	s.Counts[ruleset.SignalSpecializedCount] = present
	s.Flags[ruleset.SignalNoSpecialized] = present == 0
	return s
}

func anyMatch(kw ruleset.Keyword, titles []string) bool {
	for _, t := range titles {
		for _, re := range kw.Patterns {
			if re.MatchString(t) {
				return true
			}
		}
	}
	return false
}
