package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/docgate/internal/archive"
	"github.com/dgallion1/docgate/internal/engine"
	"github.com/dgallion1/docgate/internal/parser"
	"github.com/dgallion1/docgate/internal/ruleset"
)

// Archive is the part of the result archive the worker needs.
type Archive interface {
	Exists(ctx context.Context, hash string) (bool, error)
	Save(ctx context.Context, doc archive.Document) (bool, error)
}

// Worker processes a single document job.
type Worker struct {
	rs      *ruleset.Ruleset
	archive Archive
	log     *slog.Logger
	opts    parser.Options

	parseStats *LatencyStats
	gateStats  *LatencyStats
	counts     *GateCounts
}

func NewWorker(rs *ruleset.Ruleset, store Archive, log *slog.Logger, opts parser.Options, parseStats, gateStats *LatencyStats, counts *GateCounts) *Worker {
	return &Worker{
		rs:         rs,
		archive:    store,
		log:        log,
		opts:       opts,
		parseStats: parseStats,
		gateStats:  gateStats,
		counts:     counts,
	}
}

// Process runs parse, evaluate and archive for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)

	data := job.FileData()
	job.SetContentHash(ContentHashHex(data))

	// Phase 0: Dedup check
	if w.archive != nil {
		exists, err := w.archive.Exists(ctx, job.ContentHash)
		if err != nil {
			log.Warn("dedup check failed, proceeding", "error", err)
		} else if exists {
			log.Info("duplicate document, skipping", "content_hash", job.ContentHash)
			job.SetFileData(nil)
			job.SetStatus(StatusDuplicate, "dedup")
			return
		}
	}

	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	p, err := parser.ForFile(job.Filename, w.opts)
	if err != nil {
		log.Error("unsupported format", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "parsing")
		return
	}

	start := time.Now()
	doc, err := p.Parse(bytes.NewReader(data), job.Filename)
	if err != nil {
		log.Error("parse failed", "error", err)
		job.AddError(fmt.Sprintf("parse: %s", err))
		job.SetStatus(StatusFailed, "parsing")
		return
	}
	w.parseStats.Observe(start)
	log.Info("parsed document", "paragraphs", len(doc.Paragraphs))

	// Phase 2: Evaluate
	job.SetStatus(StatusEvaluating, "evaluating")
	start = time.Now()
	res := engine.Run(doc, w.rs, engine.Options{Profile: job.Profile})
	w.gateStats.Observe(start)
	w.counts.Add(res.ProductionGate.Status, res.ProductionGate.ProfileID)
	job.SetResult(res)
	log.Info("evaluated document",
		"status", res.ProductionGate.Status,
		"profile", res.ProductionGate.ProfileID,
		"coverage", res.Report.CoverageRatio,
		"warnings", len(res.Report.Warnings))

	// Phase 3: Archive
	if w.archive != nil {
		job.SetStatus(StatusArchiving, "archiving")
		if err := w.store(ctx, job, res); err != nil {
			// The verdict is still available on the job.
			log.Error("archive failed", "error", err)
			job.AddError(fmt.Sprintf("archive: %s", err))
		}
	}

	job.SetStatus(StatusCompleted, "done")
}

// store saves the result, retrying while the database is busy.
func (w *Worker) store(ctx context.Context, job *Job, res *engine.Result) error {
	body, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	doc := archive.Document{
		ContentHash:    job.ContentHash,
		JobID:          job.ID,
		Filename:       job.Filename,
		Title:          res.Meta.Title,
		ProfileID:      res.ProductionGate.ProfileID,
		Status:         res.ProductionGate.Status,
		CoverageRatio:  res.Report.CoverageRatio,
		RulesetVersion: res.Meta.RulesetVersion,
		CreatedAt:      job.CreatedAt,
		Result:         body,
	}

	var lastErr error
	for attempt := range MaxRetries {
		_, lastErr = w.archive.Save(ctx, doc)
		if lastErr == nil || !IsRetryable(lastErr) {
			break
		}
		w.log.Warn("retryable archive error", "job_id", job.ID, "attempt", attempt, "error", lastErr)
		select {
		case <-time.After(Backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
