package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/docgate/internal/engine"
)

// JobStatus represents the state of an evaluation job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusParsing    JobStatus = "parsing"
	StatusEvaluating JobStatus = "evaluating"
	StatusArchiving  JobStatus = "archiving"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusDuplicate  JobStatus = "duplicate"
)

// Job tracks the state of a single document evaluation.
type Job struct {
	mu sync.Mutex

	ID       string `json:"job_id"`
	Filename string `json:"filename"`
	// Profile forces a gate profile; empty lets the gate choose.
	Profile string `json:"profile,omitempty"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData []byte
	result   *engine.Result
	errors   []string
}

// NewJob creates a queued job with a fresh id.
func NewJob(filename, profile string, data []byte) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Filename:  filename,
		Profile:   profile,
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
		fileData:  data,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.UpdatedAt = time.Now()
}

// SetContentHash records the hash used for archiving and dedup.
func (j *Job) SetContentHash(hash string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ContentHash = hash
	j.UpdatedAt = time.Now()
}

// SetResult attaches the engine output and releases the upload bytes.
func (j *Job) SetResult(res *engine.Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = res
	j.fileData = nil
	j.UpdatedAt = time.Now()
}

// Result returns the engine output, nil until evaluation finished.
func (j *Job) Result() *engine.Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// SetFileData sets the raw file bytes for processing.
func (j *Job) SetFileData(data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = data
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// Verdict is the short gate outcome shown on a job.
type Verdict struct {
	Status        string   `json:"status"`
	ProfileID     string   `json:"profile_id"`
	Forced        bool     `json:"forced"`
	CoverageRatio float64  `json:"coverage_ratio"`
	Reasons       []string `json:"reasons"`
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string         `json:"job_id"`
	Filename    string         `json:"filename"`
	Profile     string         `json:"profile,omitempty"`
	Status      JobStatus      `json:"status"`
	Phase       string         `json:"phase"`
	ContentHash string         `json:"content_hash,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Errors      []string       `json:"errors"`
	Verdict     *Verdict       `json:"verdict,omitempty"`
	Result      *engine.Result `json:"result,omitempty"`
}

// Snapshot returns a JSON-safe copy of the job state. The full engine
// result is included only when withResult is set.
func (j *Job) Snapshot(withResult bool) JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.errors))
	copy(errs, j.errors)
	snap := JobSnapshot{
		ID:          j.ID,
		Filename:    j.Filename,
		Profile:     j.Profile,
		Status:      j.Status,
		Phase:       j.Phase,
		ContentHash: j.ContentHash,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		Errors:      errs,
	}
	if j.result != nil {
		g := j.result.ProductionGate
		snap.Verdict = &Verdict{
			Status:        g.Status,
			ProfileID:     g.ProfileID,
			Forced:        g.Forced,
			CoverageRatio: j.result.Report.CoverageRatio,
			Reasons:       g.Reasons,
		}
		if withResult {
			snap.Result = j.result
		}
	}
	return snap
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
