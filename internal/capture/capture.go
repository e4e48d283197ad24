// Package capture runs the paced acquisition loop: read a frame, hand a copy
// to the preview relay, write it to the active session, then sleep whatever
// is left of the frame interval.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/PacedRecorder/internal/frame"
	"github.com/bryanchriswhite/PacedRecorder/internal/logger"
	"github.com/bryanchriswhite/PacedRecorder/internal/metrics"
	"github.com/bryanchriswhite/PacedRecorder/internal/relay"
	"github.com/bryanchriswhite/PacedRecorder/internal/status"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	// ErrSessionActive is returned by Begin while another session is recording
	ErrSessionActive = errors.New("a recording session is already active")
	// ErrNoSession is returned by End when nothing is recording
	ErrNoSession = errors.New("no active recording session")
)

// Options configures a Capture
type Options struct {
	// FPS is the target frame rate F
	FPS float64
	// OverrunReportAfter consecutive late iterations trigger one device_slow
	// event. Zero means round(FPS).
	OverrunReportAfter int
	Clock              Clock
	Notifier           status.Notifier
	// OnSessionEnd is called, outside the session lock, when the loop aborts
	// a session after a sink write failure
	OnSessionEnd func(*Session)
}

// Capture owns the acquisition loop and the active session
type Capture struct {
	src      FrameSource
	relay    *relay.Relay
	fps      float64
	interval time.Duration
	clock    Clock
	notifier status.Notifier
	onEnd    func(*Session)

	reportEvery   int
	overrunReport int

	// mu is the exclusive-access point for the active session's sink
	mu      sync.Mutex
	session *Session

	// loop-local
	seq           uint64
	overrunStreak int
	failureLog    rate.Sometimes

	running      atomic.Bool
	captured     atomic.Uint64
	readFailures atomic.Uint64
	overruns     atomic.Uint64
	lastSleep    atomic.Int64
	lastWork     atomic.Int64

	log *zerolog.Logger
}

// Stats is a snapshot of loop counters
type Stats struct {
	Running      bool          `json:"running"`
	TargetFPS    float64       `json:"target_fps"`
	Interval     time.Duration `json:"interval"`
	Captured     uint64        `json:"captured"`
	ReadFailures uint64        `json:"read_failures"`
	Overruns     uint64        `json:"overruns"`
	LastWork     time.Duration `json:"last_work"`
	LastSleep    time.Duration `json:"last_sleep"`
	Relay        relay.Stats   `json:"relay"`
	Session      *SessionInfo  `json:"session,omitempty"`
}

// New creates a capture loop over src feeding r
func New(src FrameSource, r *relay.Relay, opts Options) (*Capture, error) {
	if src == nil {
		return nil, fmt.Errorf("frame source is required")
	}
	if opts.FPS <= 0 {
		return nil, fmt.Errorf("target fps must be positive, got %v", opts.FPS)
	}
	if r == nil {
		r = relay.New(relay.DefaultCapacity)
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Notifier == nil {
		opts.Notifier = status.Discard
	}

	c := &Capture{
		src:           src,
		relay:         r,
		fps:           opts.FPS,
		interval:      Interval(opts.FPS),
		clock:         opts.Clock,
		notifier:      opts.Notifier,
		onEnd:         opts.OnSessionEnd,
		reportEvery:   FramesPerReport(opts.FPS),
		overrunReport: opts.OverrunReportAfter,
		failureLog:    rate.Sometimes{First: 1, Interval: 5 * time.Second},
		log:           logger.WithComponent("capture"),
	}
	if c.overrunReport <= 0 {
		c.overrunReport = c.reportEvery
	}
	return c, nil
}

// Run executes read-process-pace cycles until ctx is canceled. It returns nil
// on cancellation.
func (c *Capture) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("capture loop already running")
	}
	defer c.running.Store(false)

	c.log.Info().
		Float64("fps", c.fps).
		Dur("interval", c.interval).
		Int("relay_capacity", c.relay.Cap()).
		Msg("Capture loop started")
	defer c.log.Info().Uint64("frames", c.captured.Load()).Msg("Capture loop stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := c.step(ctx); err != nil {
			return nil
		}
	}
}

// step runs one iteration. A non-nil error means the pacing sleep was
// interrupted by cancellation.
func (c *Capture) step(ctx context.Context) error {
	t0 := c.clock.Now()

	f, err := c.src.ReadFrame()
	if err != nil {
		c.readFailed(err)
		return nil
	}

	c.seq++
	f.Seq = c.seq
	if f.CapturedAt.IsZero() {
		f.CapturedAt = t0
	}
	c.captured.Add(1)
	metrics.FramesCaptured.Inc()

	if !c.relay.TryPushFunc(f.Clone) {
		metrics.RelayDrops.Inc()
	}

	c.record(f)

	p := Pace(c.interval, c.clock.Now().Sub(t0))
	c.lastWork.Store(int64(p.Work))
	c.lastSleep.Store(int64(p.Sleep))
	c.trackOverrun(p)

	if p.Sleep <= 0 {
		return nil
	}
	metrics.PacingSleep.Observe(p.Sleep.Seconds())
	return c.clock.Sleep(ctx, p.Sleep)
}

func (c *Capture) readFailed(err error) {
	n := c.readFailures.Add(1)
	metrics.ReadFailures.Inc()
	c.failureLog.Do(func() {
		e := status.New(status.KindReadFailure, "Failed to read frame from camera")
		e.Err = err.Error()
		e.Done = int(n)
		c.notifier.Notify(e)
	})
}

func (c *Capture) trackOverrun(p PacingState) {
	if !p.Overrun {
		if c.overrunStreak >= c.overrunReport {
			c.notifier.Notify(status.New(status.KindInfo, "Device back on schedule after %d late frames", c.overrunStreak))
		}
		c.overrunStreak = 0
		return
	}

	c.overruns.Add(1)
	metrics.PacingOverruns.Inc()
	c.overrunStreak++
	if c.overrunStreak == c.overrunReport {
		e := status.New(status.KindDeviceSlow,
			"Device is slower than %.2f fps: %d consecutive frames over the %s budget",
			c.fps, c.overrunStreak, c.interval)
		e.FPS = float64(time.Second) / float64(p.Work)
		c.notifier.Notify(e)
	}
}

// withSession runs fn on the active session under the exclusive-access lock.
// fn is not called when nothing is recording.
func (c *Capture) withSession(fn func(s *Session)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		fn(c.session)
	}
}

// record writes f to the active session. A write failure aborts and
// finalizes the session; the partial file stays on disk.
func (c *Capture) record(f frame.Frame) {
	var (
		events  []status.Event
		aborted *Session
	)

	c.withSession(func(s *Session) {
		if err := s.write(f); err != nil {
			metrics.SinkErrors.Inc()
			s.err = status.Wrap(status.KindSinkWrite, s.Path, err)
			s.state = SessionAborted
			s.ended = c.clock.Now()
			c.session = nil

			fe := status.FromError(s.err, "Error: Failed to write frame, recording aborted")
			fe.SessionID = s.ID
			events = append(events, fe)

			if ferr := s.finalize(); ferr != nil {
				logger.WithSession("capture", s.ID).Error().Err(ferr).Msg("Failed to finalize aborted session")
			}
			ae := status.New(status.KindSessionAborted, "Recording aborted: %s (%d frames kept)", s.Path, s.frames)
			ae.SessionID = s.ID
			ae.Path = s.Path
			events = append(events, ae)

			metrics.Sessions.WithLabelValues("aborted").Inc()
			metrics.Recording.Set(0)
			aborted = s
			return
		}

		metrics.FramesWritten.Inc()
		if s.frames%uint64(c.reportEvery) == 0 {
			fps := s.achievedFPS(c.clock.Now())
			metrics.AchievedFPS.Set(fps)
			e := status.New(status.KindRate, "Recording at %.2f fps (%d frames)", fps, s.frames)
			e.SessionID = s.ID
			e.FPS = fps
			e.Done = int(s.frames)
			events = append(events, e)
		}
	})

	for _, e := range events {
		c.notifier.Notify(e)
	}
	if aborted != nil && c.onEnd != nil {
		c.onEnd(aborted)
	}
}

// Begin makes s the active session
func (c *Capture) Begin(s *Session) error {
	if s == nil || s.sink == nil {
		return fmt.Errorf("session has no sink")
	}

	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return ErrSessionActive
	}
	s.started = c.clock.Now()
	s.state = SessionActive
	c.session = s
	c.mu.Unlock()

	metrics.Sessions.WithLabelValues("started").Inc()
	metrics.Recording.Set(1)
	metrics.AchievedFPS.Set(0)

	e := status.New(status.KindSessionStarted, "Recording started: %s", s.Path)
	e.SessionID = s.ID
	e.Path = s.Path
	c.notifier.Notify(e)
	return nil
}

// End detaches and finalizes the active session. Finalize runs under the
// same lock as writes, so no frame can be written after it.
func (c *Capture) End() (*Session, error) {
	c.mu.Lock()
	s := c.session
	if s == nil {
		c.mu.Unlock()
		return nil, ErrNoSession
	}
	c.session = nil
	s.ended = c.clock.Now()
	s.state = SessionStopped
	ferr := s.finalize()
	info := s.info(s.ended)
	c.mu.Unlock()

	metrics.Sessions.WithLabelValues("stopped").Inc()
	metrics.Recording.Set(0)

	e := status.New(status.KindSessionStopped,
		"Recording stopped. Duration: %.1fs, Frames: %d, Avg FPS: %.2f",
		info.Duration.Seconds(), info.Frames, info.AchievedFPS)
	e.SessionID = s.ID
	e.Path = s.Path
	e.FPS = info.AchievedFPS
	e.Done = int(info.Frames)
	c.notifier.Notify(e)

	if ferr != nil {
		return s, status.Wrap(status.KindSinkWrite, s.Path, fmt.Errorf("finalize: %w", ferr))
	}
	return s, nil
}

// Recording reports whether a session is active
func (c *Capture) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Session returns a snapshot of the active session
func (c *Capture) Session() (SessionInfo, bool) {
	var (
		info SessionInfo
		ok   bool
	)
	c.withSession(func(s *Session) {
		info = s.info(c.clock.Now())
		ok = true
	})
	return info, ok
}

// Relay returns the preview relay
func (c *Capture) Relay() *relay.Relay { return c.relay }

// FPS returns the target frame rate
func (c *Capture) FPS() float64 { return c.fps }

// Stats returns loop counters
func (c *Capture) Stats() Stats {
	st := Stats{
		Running:      c.running.Load(),
		TargetFPS:    c.fps,
		Interval:     c.interval,
		Captured:     c.captured.Load(),
		ReadFailures: c.readFailures.Load(),
		Overruns:     c.overruns.Load(),
		LastWork:     time.Duration(c.lastWork.Load()),
		LastSleep:    time.Duration(c.lastSleep.Load()),
		Relay:        c.relay.Stats(),
	}
	if info, ok := c.Session(); ok {
		st.Session = &info
	}
	return st
}
