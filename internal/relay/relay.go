// Package relay hands frames from the capture loop to a preview consumer
// without letting either side block the other.
package relay

import (
	"sync/atomic"

	"github.com/bryanchriswhite/PacedRecorder/internal/frame"
)

// DefaultCapacity matches the preview buffer of three frames
const DefaultCapacity = 3

// Relay is a fixed-capacity FIFO of frames. When full, new frames are
// discarded and the queued ones are kept (oldest wins).
type Relay struct {
	ch      chan frame.Frame
	pushed  atomic.Uint64
	dropped atomic.Uint64
}

// New creates a relay; capacity below 1 falls back to DefaultCapacity
func New(capacity int) *Relay {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Relay{ch: make(chan frame.Frame, capacity)}
}

// TryPush enqueues f without blocking. It returns false, leaving the relay
// unchanged, when the relay is full.
func (r *Relay) TryPush(f frame.Frame) bool {
	select {
	case r.ch <- f:
		r.pushed.Add(1)
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// TryPushFunc is TryPush for a frame built only when there is room, so a
// full relay costs no copy. It assumes a single producer; with more, a
// frame built for a free slot may still be dropped.
func (r *Relay) TryPushFunc(build func() frame.Frame) bool {
	if r.Len() >= r.Cap() {
		r.dropped.Add(1)
		return false
	}
	return r.TryPush(build())
}

// TryPop dequeues the oldest frame without blocking
func (r *Relay) TryPop() (frame.Frame, bool) {
	select {
	case f := <-r.ch:
		return f, true
	default:
		return frame.Frame{}, false
	}
}

// Len returns the number of queued frames
func (r *Relay) Len() int { return len(r.ch) }

// Cap returns the fixed capacity
func (r *Relay) Cap() int { return cap(r.ch) }

// Stats is a snapshot of relay counters
type Stats struct {
	Capacity int    `json:"capacity"`
	Queued   int    `json:"queued"`
	Pushed   uint64 `json:"pushed"`
	Dropped  uint64 `json:"dropped"`
}

// Stats returns the current counters
func (r *Relay) Stats() Stats {
	return Stats{
		Capacity: r.Cap(),
		Queued:   r.Len(),
		Pushed:   r.pushed.Load(),
		Dropped:  r.dropped.Load(),
	}
}

// Dropped returns the number of frames discarded because the relay was full
func (r *Relay) Dropped() uint64 { return r.dropped.Load() }
