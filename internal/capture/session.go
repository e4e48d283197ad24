package capture

import (
	"sync"
	"time"

	"github.com/bryanchriswhite/PacedRecorder/internal/frame"
	"github.com/bryanchriswhite/PacedRecorder/internal/sink"
)

// SessionState is the lifecycle state of a recording session
type SessionState string

const (
	SessionPending SessionState = "pending"
	SessionActive  SessionState = "active"
	SessionStopped SessionState = "stopped"
	SessionAborted SessionState = "aborted"
)

// Session is one recording bound to one output file. While active it is
// owned by Capture and only touched under its session lock.
type Session struct {
	ID     string
	Path   string
	Width  int
	Height int
	FPS    float64

	sink    sink.FrameSink
	started time.Time
	ended   time.Time
	frames  uint64
	state   SessionState
	err     error

	finalizeOnce sync.Once
	finalizeErr  error
}

// SessionInfo is a snapshot of a session
type SessionInfo struct {
	ID          string        `json:"id"`
	Path        string        `json:"path"`
	Width       int           `json:"width"`
	Height      int           `json:"height"`
	TargetFPS   float64       `json:"target_fps"`
	State       SessionState  `json:"state"`
	Frames      uint64        `json:"frames"`
	Started     time.Time     `json:"started"`
	Ended       time.Time     `json:"ended,omitempty"`
	Duration    time.Duration `json:"duration"`
	AchievedFPS float64       `json:"achieved_fps"`
	Error       string        `json:"error,omitempty"`
}

// NewSession binds an opened sink to a session. The size is locked in here.
func NewSession(id, path string, s sink.FrameSink, mode Mode) *Session {
	return &Session{
		ID:     id,
		Path:   path,
		Width:  mode.Width,
		Height: mode.Height,
		FPS:    mode.FPS,
		sink:   s,
		state:  SessionPending,
	}
}

func (s *Session) write(f frame.Frame) error {
	if err := s.sink.Write(f); err != nil {
		return err
	}
	s.frames++
	return nil
}

// finalize closes the sink exactly once, whatever the path that got here
func (s *Session) finalize() error {
	s.finalizeOnce.Do(func() {
		s.finalizeErr = s.sink.Finalize()
	})
	return s.finalizeErr
}

func (s *Session) achievedFPS(now time.Time) float64 {
	elapsed := now.Sub(s.started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.frames) / elapsed
}

// Frames returns the number of frames written
func (s *Session) Frames() uint64 { return s.frames }

// State returns the lifecycle state
func (s *Session) State() SessionState { return s.state }

// Err returns the error that aborted the session, if any
func (s *Session) Err() error { return s.err }

func (s *Session) info(now time.Time) SessionInfo {
	end := s.ended
	if end.IsZero() {
		end = now
	}
	info := SessionInfo{
		ID:        s.ID,
		Path:      s.Path,
		Width:     s.Width,
		Height:    s.Height,
		TargetFPS: s.FPS,
		State:     s.state,
		Frames:    s.frames,
		Started:   s.started,
		Ended:     s.ended,
	}
	if !s.started.IsZero() {
		info.Duration = end.Sub(s.started)
		info.AchievedFPS = s.achievedFPS(end)
	}
	if s.err != nil {
		info.Error = s.err.Error()
	}
	return info
}

// Info returns a snapshot. Only call it on a session no longer owned by a
// Capture; use Capture.Session for the active one.
func (s *Session) Info() SessionInfo {
	return s.info(time.Now())
}
