// Package batch evaluates every matching document under a directory tree
// and aggregates the verdicts into one report.
package batch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/docgate/internal/engine"
	"github.com/dgallion1/docgate/internal/gate"
	"github.com/dgallion1/docgate/internal/parser"
	"github.com/dgallion1/docgate/internal/ruleset"
)

// DefaultPattern is the file name looked for in each client folder.
const DefaultPattern = "source.docx"

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Options control a batch run.
type Options struct {
	// Pattern is matched against file base names (filepath.Match syntax).
	Pattern string
	// Profile forces a gate profile for every document.
	Profile     string
	Concurrency int
	Parser      parser.Options
	Log         *slog.Logger
}

// DocResult is the outcome for one discovered document.
type DocResult struct {
	ClientDir  string `json:"client_dir"`
	ClientName string `json:"client_name"`
	File       string `json:"file"`
	Status     string `json:"status"`

	Profile                 string         `json:"profile,omitempty"`
	GateStatus              string         `json:"gate_status,omitempty"`
	RequiredCoverageRatio   float64        `json:"required_coverage_ratio"`
	MissingRequiredSections []string       `json:"missing_required_sections,omitempty"`
	UnknownTitlesCount      int            `json:"unknown_titles_count"`
	PlaceholdersCount       int            `json:"placeholders_count"`
	Reasons                 []string       `json:"reasons,omitempty"`
	Warnings                []string       `json:"warnings,omitempty"`
	Signals                 *gate.Signals  `json:"signals,omitempty"`
	Criteria                *gate.Criteria `json:"criteria,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`

	result *engine.Result
}

// ErrorDetail names a failed document.
type ErrorDetail struct {
	Client string `json:"client"`
	Error  string `json:"error"`
}

// Summary aggregates a run.
type Summary struct {
	TotalProcessed int           `json:"total_processed"`
	Successful     int           `json:"successful"`
	Errors         int           `json:"errors"`
	GateGo         int           `json:"gate_go"`
	GateNoGo       int           `json:"gate_no_go"`
	AvgCoverage    float64       `json:"avg_coverage"`
	ErrorDetails   []ErrorDetail `json:"error_details"`
}

// Report is the full batch outcome. Results follow discovery order.
type Report struct {
	Timestamp       time.Time   `json:"timestamp"`
	RootDir         string      `json:"root_dir"`
	Pattern         string      `json:"pattern"`
	RulesetVersion  string      `json:"ruleset_version"`
	ProfileOverride string      `json:"gate_profile_override,omitempty"`
	DiscoveredCount int         `json:"discovered_count"`
	Results         []DocResult `json:"results"`
	Summary         Summary     `json:"summary"`
}

// Discover walks root and returns every file whose base name matches
// pattern, sorted by path.
func Discover(root, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", root, err)
	}
	sort.Strings(found)
	return found, nil
}

// Run evaluates every discovered document. A failing document is recorded
// in the report and does not stop the others.
func Run(ctx context.Context, root string, rs *ruleset.Ruleset, opts Options) (*Report, error) {
	if opts.Pattern == "" {
		opts.Pattern = DefaultPattern
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	log := opts.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	files, err := Discover(root, opts.Pattern)
	if err != nil {
		return nil, err
	}
	log.Info("discovered documents", "root", root, "pattern", opts.Pattern, "count", len(files))

	results := make([]DocResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = evaluate(root, file, rs, opts)
			if results[i].Status == StatusError {
				log.Warn("document failed", "file", file, "error", results[i].ErrorMessage)
			} else {
				log.Debug("document evaluated", "file", file, "gate_status", results[i].GateStatus, "profile", results[i].Profile)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Report{
		Timestamp:       time.Now().UTC(),
		RootDir:         root,
		Pattern:         opts.Pattern,
		RulesetVersion:  rs.Version,
		ProfileOverride: opts.Profile,
		DiscoveredCount: len(files),
		Results:         results,
		Summary:         summarize(results),
	}, nil
}

func evaluate(root, file string, rs *ruleset.Ruleset, opts Options) DocResult {
	dir := filepath.Dir(file)
	out := DocResult{
		ClientDir:  dir,
		ClientName: clientName(root, dir),
		File:       file,
	}

	res, err := engine.ParseFile(file, rs, engine.Options{Profile: opts.Profile, Parser: opts.Parser})
	if err != nil {
		out.Status = StatusError
		out.ErrorMessage = err.Error()
		return out
	}

	v := res.ProductionGate
	out.Status = StatusSuccess
	out.Profile = v.ProfileID
	out.GateStatus = v.Status
	out.RequiredCoverageRatio = round3(res.Report.RequiredCoverageRatio)
	out.MissingRequiredSections = v.MissingRequiredEffective
	out.UnknownTitlesCount = len(res.Report.UnknownTitles)
	out.PlaceholdersCount = len(v.Placeholders)
	out.Reasons = v.Reasons
	out.Warnings = res.Report.Warnings
	out.Signals = &v.Signals
	out.Criteria = &v.Criteria
	out.result = res
	return out
}

// clientName is the folder path relative to root, or the folder name when
// the document sits directly in root.
func clientName(root, dir string) string {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return filepath.Base(dir)
	}
	return filepath.ToSlash(rel)
}

func summarize(results []DocResult) Summary {
	s := Summary{TotalProcessed: len(results), ErrorDetails: []ErrorDetail{}}
	var coverage float64
	for _, r := range results {
		if r.Status == StatusError {
			s.Errors++
			s.ErrorDetails = append(s.ErrorDetails, ErrorDetail{Client: r.ClientName, Error: r.ErrorMessage})
			continue
		}
		s.Successful++
		coverage += r.RequiredCoverageRatio
		switch r.GateStatus {
		case gate.StatusGo:
			s.GateGo++
		case gate.StatusNoGo:
			s.GateNoGo++
		}
	}
	// Failed documents count as zero coverage.
	s.AvgCoverage = round3(coverage / float64(max(len(results), 1)))
	return s
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
