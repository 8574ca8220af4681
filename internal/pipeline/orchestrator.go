package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/docgate/internal/config"
	"github.com/dgallion1/docgate/internal/parser"
	"github.com/dgallion1/docgate/internal/ruleset"
)

// Orchestrator manages the document evaluation pipeline.
type Orchestrator struct {
	jobs    *JobStore
	queue   chan *Job
	rs      *ruleset.Ruleset
	archive Archive
	log     *slog.Logger
	cfg     config.Config

	parseStats *LatencyStats
	gateStats  *LatencyStats
	counts     *GateCounts

	cleanupEvery time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. store may be nil to run without
// an archive.
func NewOrchestrator(cfg config.Config, rs *ruleset.Ruleset, store Archive, log *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		jobs:         NewJobStore(cfg.JobTTL),
		queue:        make(chan *Job, cfg.MaxQueueSize),
		rs:           rs,
		archive:      store,
		log:          log,
		cfg:          cfg,
		parseStats:   NewLatencyStats(cfg.StatsWindow),
		gateStats:    NewLatencyStats(cfg.StatsWindow),
		counts:       NewGateCounts(),
		cleanupEvery: 5 * time.Minute,
	}
	return o
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	opts := parser.Options{PDFFallbackPdftotext: o.cfg.PDFFallbackPdftotext}
	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.rs, o.archive, o.log, opts, o.parseStats, o.gateStats, o.counts)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(o.cleanupEvery)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Ruleset returns the ruleset shared by all workers.
func (o *Orchestrator) Ruleset() *ruleset.Ruleset {
	return o.rs
}

// StatsReport is the payload of the stats endpoint.
type StatsReport struct {
	Parse      StatsSnapshot      `json:"parse"`
	Evaluate   StatsSnapshot      `json:"evaluate"`
	Verdicts   GateCountsSnapshot `json:"verdicts"`
	QueueDepth int                `json:"queue_depth"`
	Jobs       int                `json:"jobs"`
}

// Stats aggregates the latency windows and verdict counts.
func (o *Orchestrator) Stats() StatsReport {
	return StatsReport{
		Parse:      o.parseStats.Snapshot(),
		Evaluate:   o.gateStats.Snapshot(),
		Verdicts:   o.counts.Snapshot(),
		QueueDepth: o.QueueDepth(),
		Jobs:       o.jobs.Len(),
	}
}

// ObserveSync records a synchronous evaluation made outside the workers.
func (o *Orchestrator) ObserveSync(parseStart, evalStart time.Time, status, profile string) {
	o.parseStats.Record(evalStart.Sub(parseStart).Milliseconds())
	o.gateStats.Observe(evalStart)
	o.counts.Add(status, profile)
}
