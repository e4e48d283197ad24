package status

import (
	"sync"

	"github.com/bryanchriswhite/PacedRecorder/internal/logger"
	"github.com/rs/zerolog"
)

const (
	defaultHistory      = 64
	subscriberQueueSize = 16
)

// Hub logs every event, keeps a short history and fans events out to
// subscribers. Slow subscribers miss events instead of blocking Notify.
type Hub struct {
	// mu guards history, closed and clients together so a subscriber sees
	// each event exactly once across replay and live delivery
	mu      sync.Mutex
	history []Event
	next    int
	full    bool
	closed  bool
	clients map[chan Event]struct{}

	log *zerolog.Logger
}

// NewHub creates a hub retaining up to history events (default 64)
func NewHub(history int) *Hub {
	if history <= 0 {
		history = defaultHistory
	}
	return &Hub{
		history: make([]Event, history),
		clients: make(map[chan Event]struct{}),
		log:     logger.WithComponent("status"),
	}
}

// Notify records and broadcasts e
func (h *Hub) Notify(e Event) {
	h.logEvent(e)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.history[h.next] = e
	h.next = (h.next + 1) % len(h.history)
	if h.next == 0 {
		h.full = true
	}

	for ch := range h.clients {
		select {
		case ch <- e:
		default:
			// Subscriber is slow, skip this event
		}
	}
}

func (h *Hub) logEvent(e Event) {
	var ev *zerolog.Event
	switch e.Kind {
	case KindDeviceOpen, KindSinkOpen, KindSinkWrite, KindSessionAborted, KindExtractOpen:
		ev = h.log.Error()
	case KindReadFailure, KindDeviceSlow, KindExtractFrame:
		ev = h.log.Warn()
	case KindProgress, KindRate:
		ev = h.log.Debug()
	default:
		ev = h.log.Info()
	}
	ev = ev.Str("kind", string(e.Kind))
	if e.SessionID != "" {
		ev = ev.Str("session", e.SessionID)
	}
	if e.JobID != "" {
		ev = ev.Str("job", e.JobID)
	}
	if e.Path != "" {
		ev = ev.Str("path", e.Path)
	}
	if e.Index >= 0 {
		ev = ev.Int("index", e.Index)
	}
	if e.Err != "" {
		ev = ev.Str("error", e.Err)
	}
	ev.Msg(e.Message)
}

// History returns retained events, oldest first
func (h *Hub) History() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.historyLocked()
}

func (h *Hub) historyLocked() []Event {
	if !h.full {
		out := make([]Event, h.next)
		copy(out, h.history[:h.next])
		return out
	}
	out := make([]Event, 0, len(h.history))
	out = append(out, h.history[h.next:]...)
	out = append(out, h.history[:h.next]...)
	return out
}

// Subscribe registers a new subscriber channel. The channel is already
// closed when the hub is.
func (h *Hub) Subscribe() chan Event {
	_, ch := h.SubscribeWithHistory()
	return ch
}

// SubscribeWithHistory returns the retained events and a channel carrying
// every event after them
func (h *Hub) SubscribeWithHistory() ([]Event, chan Event) {
	ch := make(chan Event, subscriberQueueSize)

	h.mu.Lock()
	defer h.mu.Unlock()
	hist := h.historyLocked()
	if h.closed {
		close(ch)
		return hist, ch
	}
	h.clients[ch] = struct{}{}
	return hist, ch
}

// Unsubscribe removes and closes ch
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

// Subscribers returns the number of connected subscribers
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber; later events are only logged
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.clients {
		close(ch)
	}
	h.clients = make(map[chan Event]struct{})
}

// Tee sends each event to every notifier in order
func Tee(notifiers ...Notifier) Notifier {
	return NotifierFunc(func(e Event) {
		for _, n := range notifiers {
			if n != nil {
				n.Notify(e)
			}
		}
	})
}
