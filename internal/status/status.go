// Package status carries human-readable status and progress notifications
// from the core to whichever UI is attached.
package status

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an event so a UI can decide whether to retry
type Kind string

const (
	KindInfo           Kind = "info"
	KindDeviceOpen     Kind = "device_open"
	KindReadFailure    Kind = "read_failure"
	KindSinkOpen       Kind = "sink_open"
	KindSinkWrite      Kind = "sink_write"
	KindDeviceSlow     Kind = "device_slow"
	KindRate           Kind = "rate"
	KindSessionStarted Kind = "session_started"
	KindSessionStopped Kind = "session_stopped"
	KindSessionAborted Kind = "session_aborted"
	KindExtractOpen    Kind = "extract_open"
	KindExtractFrame   Kind = "extract_frame"
	KindProgress       Kind = "progress"
	KindExtractDone    Kind = "extract_done"
)

// Event is one notification. Index is -1 when not applicable.
type Event struct {
	Time      time.Time `json:"time"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	SessionID string    `json:"session_id,omitempty"`
	JobID     string    `json:"job_id,omitempty"`
	Path      string    `json:"path,omitempty"`
	Index     int       `json:"index"`
	Done      int       `json:"done,omitempty"`
	Total     int       `json:"total,omitempty"`
	FPS       float64   `json:"fps,omitempty"`
	Err       string    `json:"error,omitempty"`
}

// Notifier receives events. Implementations must not block the caller.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(Event)

// Notify calls f
func (f NotifierFunc) Notify(e Event) { f(e) }

// Discard drops every event
var Discard Notifier = NotifierFunc(func(Event) {})

// New builds an event stamped with the current time
func New(kind Kind, format string, args ...interface{}) Event {
	return Event{
		Time:    time.Now(),
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Index:   -1,
	}
}

// Progress builds a progress event
func Progress(jobID string, done, total int) Event {
	e := New(KindProgress, "Extracting images: %d/%d (%.0f%%)", done, total, percent(done, total))
	e.JobID = jobID
	e.Done = done
	e.Total = total
	return e
}

func percent(done, total int) float64 {
	if total <= 0 {
		return 100
	}
	return float64(done) / float64(total) * 100
}

// Error is a failure with enough structure for a UI to act on
type Error struct {
	Kind  Kind
	Path  string
	Index int
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Index >= 0:
		return fmt.Sprintf("%s: %s frame %d: %v", e.Kind, e.Path, e.Index, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap builds an *Error with no index
func Wrap(kind Kind, path string, err error) *Error {
	return &Error{Kind: kind, Path: path, Index: -1, Err: err}
}

// KindOf returns the Kind carried by err, or KindInfo
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInfo
}

// FromError converts a failure into an event
func FromError(err error, message string) Event {
	e := New(KindOf(err), "%s", message)
	e.Err = err.Error()
	var se *Error
	if errors.As(err, &se) {
		e.Path = se.Path
		e.Index = se.Index
	}
	return e
}
