package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bryanchriswhite/PacedRecorder/internal/logger"
	"github.com/bryanchriswhite/PacedRecorder/internal/metrics"
	"github.com/bryanchriswhite/PacedRecorder/internal/status"
	"github.com/google/uuid"
)

// JobState is the lifecycle state of an extraction job
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCanceled  JobState = "canceled"
)

// Params selects what a job extracts
type Params struct {
	Strategy Strategy `json:"strategy"`
	Count    int      `json:"count"`
	Interval int      `json:"interval"`
	Quality  int      `json:"quality"`
}

// Job is one extraction run over one finished recording
type Job struct {
	ID        string
	SessionID string
	Source    string
	OutputDir string
	Params    Params
	Created   time.Time

	mu       sync.RWMutex
	state    JobState
	total    int
	plan     []int
	written  int
	skipped  []int
	err      error
	started  time.Time
	finished time.Time
}

// JobInfo is a snapshot of a job
type JobInfo struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Source      string    `json:"source"`
	OutputDir   string    `json:"output_dir"`
	Params      Params    `json:"params"`
	State       JobState  `json:"state"`
	TotalFrames int       `json:"total_frames"`
	Planned     int       `json:"planned"`
	Written     int       `json:"written"`
	Skipped     []int     `json:"skipped,omitempty"`
	Created     time.Time `json:"created"`
	Started     time.Time `json:"started,omitempty"`
	Finished    time.Time `json:"finished,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// NewJob creates a pending job
func NewJob(sessionID, source, outputDir string, p Params) *Job {
	return &Job{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Source:    source,
		OutputDir: outputDir,
		Params:    p,
		Created:   time.Now(),
		state:     JobPending,
	}
}

// Info returns a snapshot
func (j *Job) Info() JobInfo {
	j.mu.RLock()
	defer j.mu.RUnlock()
	info := JobInfo{
		ID:          j.ID,
		SessionID:   j.SessionID,
		Source:      j.Source,
		OutputDir:   j.OutputDir,
		Params:      j.Params,
		State:       j.state,
		TotalFrames: j.total,
		Planned:     len(j.plan),
		Written:     j.written,
		Skipped:     append([]int(nil), j.skipped...),
		Created:     j.Created,
		Started:     j.started,
		Finished:    j.finished,
	}
	if j.err != nil {
		info.Error = j.err.Error()
	}
	return info
}

// Plan returns a copy of the planned indices
func (j *Job) Plan() []int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]int(nil), j.plan...)
}

// State returns the current state
func (j *Job) State() JobState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

func (j *Job) setRunning() {
	j.mu.Lock()
	j.state = JobRunning
	j.started = time.Now()
	j.mu.Unlock()
}

func (j *Job) setPlan(total int, plan []int) {
	j.mu.Lock()
	j.total = total
	j.plan = plan
	j.mu.Unlock()
}

func (j *Job) setWritten(n int) {
	j.mu.Lock()
	j.written = n
	j.mu.Unlock()
}

func (j *Job) finish(state JobState, res Result, err error) {
	j.mu.Lock()
	j.state = state
	j.written = res.Materialized
	j.skipped = res.Skipped
	j.err = err
	j.finished = time.Now()
	j.mu.Unlock()
}

// Extractor runs jobs. It holds no per-job state, so jobs for different
// sessions can run concurrently on one Extractor.
type Extractor struct {
	Opener   Opener
	Writer   ImageWriter
	Notifier status.Notifier
}

// Run executes job to completion. An open failure fails only this job.
func (x *Extractor) Run(ctx context.Context, job *Job) error {
	log := logger.WithJob("extract", job.ID, job.SessionID)
	notifier := x.Notifier
	if notifier == nil {
		notifier = status.Discard
	}
	notify := func(e status.Event) {
		e.JobID = job.ID
		if e.SessionID == "" {
			e.SessionID = job.SessionID
		}
		notifier.Notify(e)
	}

	job.setRunning()
	start := time.Now()

	fail := func(err error, msg string) error {
		job.finish(JobFailed, Result{OutputDir: job.OutputDir}, err)
		metrics.ExtractionJobs.WithLabelValues(string(JobFailed)).Inc()
		notify(status.FromError(err, msg))
		return err
	}

	r, err := x.Opener.Open(ctx, job.Source)
	if err != nil {
		return fail(err, fmt.Sprintf("Error: Cannot open video file %s", job.Source))
	}
	defer r.Close()

	total := r.FrameCount()
	plan := Plan(total, job.Params.Count, job.Params.Strategy, job.Params.Interval)
	job.setPlan(total, plan)

	log.Info().
		Int("total_frames", total).
		Int("planned", len(plan)).
		Str("strategy", string(job.Params.Strategy)).
		Msg("Extraction started")
	notify(status.New(status.KindInfo, "Extracting %d images from %d frames", len(plan), total))

	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return fail(status.Wrap(status.KindExtractOpen, job.OutputDir, err), "Error: Cannot create image directory")
	}

	sel := &Selector{Writer: x.Writer, Quality: job.Params.Quality, Notifier: status.NotifierFunc(notify)}
	res, err := sel.Execute(ctx, plan, r, job.OutputDir, func(done, total int) {
		job.setWritten(done)
		notify(status.Progress(job.ID, done, total))
	})
	metrics.ExtractionDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		state := JobFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			state = JobCanceled
		}
		job.finish(state, res, err)
		metrics.ExtractionJobs.WithLabelValues(string(state)).Inc()
		log.Warn().Err(err).Int("written", res.Materialized).Msg("Extraction interrupted")
		return err
	}

	job.finish(JobCompleted, res, nil)
	metrics.ExtractionJobs.WithLabelValues(string(JobCompleted)).Inc()

	e := status.New(status.KindExtractDone, "Extracted %d images to %s", res.Materialized, job.OutputDir)
	e.Path = job.OutputDir
	e.Done = res.Materialized
	e.Total = res.Planned
	notify(e)

	log.Info().
		Int("written", res.Materialized).
		Int("skipped", len(res.Skipped)).
		Dur("elapsed", time.Since(start)).
		Msg("Extraction finished")
	return nil
}
