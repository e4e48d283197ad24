package overlay

import (
	"fmt"
	"image"
	"sync"

	"github.com/bryanchriswhite/PacedRecorder/internal/logger"
)

// Manager renders widgets in the order they were added
type Manager struct {
	mu      sync.RWMutex
	widgets []Widget
	enabled bool
}

// NewManager creates an enabled manager with no widgets
func NewManager() *Manager {
	return &Manager{enabled: true}
}

// NewDefaultManager returns the preview overlay: the recording indicator in
// the top-left corner and the rate line in the bottom-left corner
func NewDefaultManager() *Manager {
	m := NewManager()
	_ = m.AddWidget(NewRecordingWidget("recording", 8, 8))
	_ = m.AddWidget(NewTextWidget("stats", 8, -8, StatsText))
	return m
}

// AddWidget appends a widget; IDs must be unique
func (m *Manager) AddWidget(w Widget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.widgets {
		if existing.ID() == w.ID() {
			return fmt.Errorf("widget with ID %s already exists", w.ID())
		}
	}
	m.widgets = append(m.widgets, w)
	logger.WithComponent("overlay").Debug().Str("widget", w.ID()).Msg("Added widget")
	return nil
}

// RemoveWidget removes a widget by ID
func (m *Manager) RemoveWidget(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, w := range m.widgets {
		if w.ID() == id {
			m.widgets = append(m.widgets[:i], m.widgets[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("widget with ID %s not found", id)
}

// Widgets returns the widgets in render order
func (m *Manager) Widgets() []Widget {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Widget(nil), m.widgets...)
}

// SetEnabled enables or disables the entire overlay
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	m.enabled = enabled
	m.mu.Unlock()
}

// IsEnabled returns whether the overlay is enabled
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Render draws every enabled widget onto img. A failing widget is logged
// and skipped.
func (m *Manager) Render(img *image.RGBA, st State) {
	if !m.IsEnabled() {
		return
	}
	for _, w := range m.Widgets() {
		if !w.IsEnabled() {
			continue
		}
		if err := w.Render(img, st); err != nil {
			logger.WithComponent("overlay").Warn().Err(err).Str("widget", w.ID()).Msg("Failed to render widget")
		}
	}
}
