// Package recorder ties the capture loop to session files and launches an
// extraction job for every session that finishes cleanly.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/bryanchriswhite/PacedRecorder/internal/capture"
	"github.com/bryanchriswhite/PacedRecorder/internal/config"
	"github.com/bryanchriswhite/PacedRecorder/internal/extract"
	"github.com/bryanchriswhite/PacedRecorder/internal/layout"
	"github.com/bryanchriswhite/PacedRecorder/internal/logger"
	"github.com/bryanchriswhite/PacedRecorder/internal/relay"
	"github.com/bryanchriswhite/PacedRecorder/internal/sink"
	"github.com/bryanchriswhite/PacedRecorder/internal/status"
	"github.com/rs/zerolog"
)

var (
	// ErrClosed is returned once Shutdown has started
	ErrClosed = errors.New("recorder is shut down")
	// ErrUnknownSession is returned for a session ID with no finished session
	ErrUnknownSession = errors.New("no finished session with that ID")
	// ErrNotExtractable is returned for an aborted or empty session
	ErrNotExtractable = errors.New("session cannot be extracted")
	// ErrJobActive is returned while a session's extraction job is pending or running
	ErrJobActive = errors.New("extraction already in progress for session")
)

// Deps are the collaborators a Recorder drives
type Deps struct {
	Sinks    sink.Factory
	Opener   extract.Opener
	Writer   extract.ImageWriter
	Notifier status.Notifier
	Clock    capture.Clock
}

// SessionRecord is a finished session and the job extracting it, if any
type SessionRecord struct {
	capture.SessionInfo
	JobID string `json:"job_id,omitempty"`
}

// Status is a snapshot for UIs
type Status struct {
	Recording bool                 `json:"recording"`
	Device    string               `json:"device"`
	Mode      capture.Mode         `json:"mode"`
	Codec     string               `json:"codec"`
	Capture   capture.Stats        `json:"capture"`
	Session   *capture.SessionInfo `json:"session,omitempty"`
	JobsTotal int                  `json:"jobs_total"`
	JobsBusy  int                  `json:"jobs_running"`
}

// Recorder owns the Capture and the extraction job registry
type Recorder struct {
	cfg       *config.Config
	capture   *capture.Capture
	mode      capture.Mode
	sinks     sink.Factory
	extractor *extract.Extractor
	layout    layout.Layout
	notifier  status.Notifier
	clock     capture.Clock

	// opMu serializes start/stop transitions
	opMu sync.Mutex

	mu       sync.Mutex
	sessions []SessionRecord
	jobs     map[string]*extract.Job
	jobOrder []string
	closed   bool

	jobCtx    context.Context
	cancelJob context.CancelFunc
	wg        sync.WaitGroup

	log *zerolog.Logger
}

// New builds a Recorder reading from src, already configured to mode
func New(cfg *config.Config, src capture.FrameSource, mode capture.Mode, rl *relay.Relay, d Deps) (*Recorder, error) {
	if d.Sinks == nil {
		d.Sinks = sink.FFmpegFactory{BinPath: cfg.FFmpegPath}
	}
	if d.Opener == nil {
		d.Opener = extract.FFmpegOpener{FFmpegPath: cfg.FFmpegPath, FFprobePath: cfg.FFprobePath}
	}
	if d.Writer == nil {
		d.Writer = extract.JPEGWriter{}
	}
	if d.Notifier == nil {
		d.Notifier = status.Discard
	}
	if d.Clock == nil {
		d.Clock = capture.RealClock()
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	r := &Recorder{
		cfg:   cfg,
		mode:  mode,
		sinks: d.Sinks,
		extractor: &extract.Extractor{
			Opener:   d.Opener,
			Writer:   d.Writer,
			Notifier: d.Notifier,
		},
		layout: layout.Layout{
			VideoDir:  cfg.Recording.OutputDir,
			ImagesDir: cfg.Extraction.ImagesDir,
			VideoExt:  cfg.Recording.Extension,
		},
		notifier:  d.Notifier,
		clock:     d.Clock,
		jobs:      make(map[string]*extract.Job),
		jobCtx:    jobCtx,
		cancelJob: cancel,
		log:       logger.WithComponent("recorder"),
	}

	c, err := capture.New(src, rl, capture.Options{
		FPS:                cfg.Device.FPS,
		OverrunReportAfter: cfg.Pacing.OverrunReportAfter,
		Clock:              d.Clock,
		Notifier:           d.Notifier,
		OnSessionEnd:       r.sessionAborted,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	r.capture = c
	return r, nil
}

// Run drives the capture loop until ctx is canceled
func (r *Recorder) Run(ctx context.Context) error {
	return r.capture.Run(ctx)
}

// Capture returns the underlying loop
func (r *Recorder) Capture() *capture.Capture { return r.capture }

// Layout returns the on-disk naming used for sessions
func (r *Recorder) Layout() layout.Layout { return r.layout }

// StartRecording opens a new session file and starts writing frames to it
func (r *Recorder) StartRecording(ctx context.Context) (capture.SessionInfo, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	return r.startLocked()
}

func (r *Recorder) startLocked() (capture.SessionInfo, error) {
	if r.isClosed() {
		return capture.SessionInfo{}, ErrClosed
	}
	if r.capture.Recording() {
		return capture.SessionInfo{}, capture.ErrSessionActive
	}

	if err := os.MkdirAll(r.cfg.Recording.OutputDir, 0o755); err != nil {
		serr := status.Wrap(status.KindSinkOpen, r.cfg.Recording.OutputDir, err)
		r.notifier.Notify(status.FromError(serr, "Error: Could not create recordings directory"))
		return capture.SessionInfo{}, serr
	}

	id := r.layout.NextSessionID(r.clock.Now())
	path := r.layout.VideoPath(id)
	fps := r.cfg.Device.FPS

	sk, err := r.sinks.Open(path, r.cfg.Recording.Codec, fps, r.mode.Width, r.mode.Height)
	if err != nil {
		serr := status.Wrap(status.KindSinkOpen, path, err)
		e := status.FromError(serr, "Error: Could not open video writer")
		e.SessionID = id
		r.notifier.Notify(e)
		return capture.SessionInfo{}, serr
	}

	s := capture.NewSession(id, path, sk, capture.Mode{Width: r.mode.Width, Height: r.mode.Height, FPS: fps})
	if err := r.capture.Begin(s); err != nil {
		_ = sk.Finalize()
		return capture.SessionInfo{}, err
	}

	logger.WithSession("recorder", id).Info().Str("path", path).Msg("Recording started")
	info, _ := r.capture.Session()
	return info, nil
}

// StopRecording finalizes the active session and, when enabled, starts
// extracting it. The returned record carries the job ID.
func (r *Recorder) StopRecording(ctx context.Context) (SessionRecord, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	return r.stopLocked()
}

func (r *Recorder) stopLocked() (SessionRecord, error) {
	s, err := r.capture.End()
	if errors.Is(err, capture.ErrNoSession) {
		return SessionRecord{}, err
	}

	rec := SessionRecord{SessionInfo: s.Info()}
	logger.WithSession("recorder", rec.ID).Info().
		Uint64("frames", rec.Frames).
		Dur("duration", rec.Duration).
		Float64("avg_fps", rec.AchievedFPS).
		Msg("Recording stopped")

	if err == nil && r.cfg.Extraction.Enabled && rec.Frames > 0 {
		if job, jerr := r.launchJob(rec.ID, rec.Path); jerr == nil {
			rec.JobID = job.ID
		}
	}

	r.mu.Lock()
	r.sessions = append(r.sessions, rec)
	r.mu.Unlock()

	return rec, err
}

// Toggle starts a session when idle and stops the active one otherwise
func (r *Recorder) Toggle(ctx context.Context) (bool, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	if r.capture.Recording() {
		_, err := r.stopLocked()
		return false, err
	}
	_, err := r.startLocked()
	return err == nil, err
}

// sessionAborted records a session the capture loop gave up on. Aborted
// sessions are finalized but not extracted.
func (r *Recorder) sessionAborted(s *capture.Session) {
	rec := SessionRecord{SessionInfo: s.Info()}
	logger.WithSession("recorder", rec.ID).Warn().Str("error", rec.Error).Msg("Recording aborted")

	r.mu.Lock()
	r.sessions = append(r.sessions, rec)
	r.mu.Unlock()
}

// Params returns the configured extraction parameters
func (r *Recorder) Params() extract.Params {
	return extract.Params{
		Strategy: extract.Strategy(r.cfg.Extraction.Method),
		Count:    r.cfg.Extraction.Count,
		Interval: r.cfg.Extraction.Interval,
		Quality:  r.cfg.Extraction.Quality,
	}
}

// ExtractSession runs the configured extraction again over a finished
// session. A session gets at most one pending or running job.
func (r *Recorder) ExtractSession(id string) (*extract.Job, error) {
	r.mu.Lock()
	idx := -1
	for i := range r.sessions {
		if r.sessions[i].ID == id {
			idx = i
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return nil, ErrUnknownSession
	}
	rec := r.sessions[idx]
	r.mu.Unlock()

	if rec.State != capture.SessionStopped || rec.Frames == 0 {
		return nil, ErrNotExtractable
	}
	if _, err := os.Stat(rec.Path); err != nil {
		return nil, status.Wrap(status.KindExtractOpen, rec.Path, err)
	}

	job, err := r.launchJob(rec.ID, rec.Path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[idx].JobID = job.ID
	r.mu.Unlock()
	return job, nil
}

func (r *Recorder) launchJob(sessionID, path string) (*extract.Job, error) {
	job := extract.NewJob(sessionID, path, r.layout.ImageDir(sessionID), r.Params())

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	for _, j := range r.jobs {
		if j.SessionID != sessionID {
			continue
		}
		if s := j.State(); s == extract.JobPending || s == extract.JobRunning {
			r.mu.Unlock()
			return nil, ErrJobActive
		}
	}
	r.jobs[job.ID] = job
	r.jobOrder = append(r.jobOrder, job.ID)
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		if err := r.extractor.Run(r.jobCtx, job); err != nil {
			logger.WithJob("recorder", job.ID, job.SessionID).Warn().Err(err).Msg("Extraction job ended with error")
		}
	}()
	return job, nil
}

func (r *Recorder) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Sessions returns finished sessions, oldest first
func (r *Recorder) Sessions() []SessionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SessionRecord(nil), r.sessions...)
}

// Jobs returns every job, oldest first
func (r *Recorder) Jobs() []extract.JobInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]extract.JobInfo, 0, len(r.jobOrder))
	for _, id := range r.jobOrder {
		out = append(out, r.jobs[id].Info())
	}
	return out
}

// Job returns one job
func (r *Recorder) Job(id string) (*extract.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	return j, ok
}

// Status returns a snapshot
func (r *Recorder) Status() Status {
	st := Status{
		Recording: r.capture.Recording(),
		Device:    r.cfg.Device.ID,
		Mode:      r.mode,
		Codec:     r.cfg.Recording.Codec,
		Capture:   r.capture.Stats(),
	}
	st.Session = st.Capture.Session

	r.mu.Lock()
	st.JobsTotal = len(r.jobs)
	for _, j := range r.jobs {
		if s := j.State(); s == extract.JobRunning || s == extract.JobPending {
			st.JobsBusy++
		}
	}
	r.mu.Unlock()
	return st
}

// Shutdown stops an active recording, then waits for extraction jobs. When
// ctx expires first the jobs are canceled and still awaited.
func (r *Recorder) Shutdown(ctx context.Context) error {
	r.opMu.Lock()
	var stopErr error
	if r.capture.Recording() {
		_, stopErr = r.stopLocked()
	}
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.opMu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		r.log.Warn().Msg("Shutdown deadline reached, canceling extraction jobs")
		r.cancelJob()
		<-done
		waitErr = fmt.Errorf("extraction jobs canceled: %w", ctx.Err())
	}
	r.cancelJob()

	r.log.Info().Int("sessions", len(r.Sessions())).Msg("Recorder shut down")
	return errors.Join(stopErr, waitErr)
}
