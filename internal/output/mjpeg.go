package output

import (
	"bytes"
	"fmt"
	"html/template"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/PacedRecorder/internal/logger"
	"github.com/bryanchriswhite/PacedRecorder/internal/metrics"
)

const clientQueueSize = 2

// MJPEGOutput streams preview frames as Motion JPEG over HTTP
type MJPEGOutput struct {
	config  Config
	running bool
	mu      sync.RWMutex

	// latest encoded frame, served by the snapshot handler
	frameMu    sync.RWMutex
	lastJPEG   []byte
	lastUpdate time.Time

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	frameCount uint64
	startTime  time.Time
}

// NewMJPEGOutput creates a new MJPEG stream output
func NewMJPEGOutput(config Config) *MJPEGOutput {
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = 80
	}
	return &MJPEGOutput{
		config:  config,
		clients: make(map[chan []byte]struct{}),
	}
}

// Start initializes the MJPEG output. Handlers are mounted separately.
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output already running")
	}
	m.running = true
	m.startTime = time.Now()
	m.frameCount = 0

	logger.WithComponent("preview").Info().
		Int("width", m.config.Width).
		Int("height", m.config.Height).
		Int("fps", m.config.FPS).
		Msg("MJPEG output started")
	return nil
}

// Stop disconnects every client
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false

	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()
	metrics.PreviewClients.Set(0)

	logger.WithComponent("preview").Info().Uint64("frames", m.frameCount).Msg("MJPEG output stopped")
	return nil
}

// WriteFrame encodes img and sends it to every client that is keeping up
func (m *MJPEGOutput) WriteFrame(img *image.RGBA) error {
	if !m.IsRunning() {
		return fmt.Errorf("MJPEG output not running")
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: m.config.Quality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	data := buf.Bytes()

	m.frameMu.Lock()
	m.lastJPEG = data
	m.lastUpdate = time.Now()
	m.frameMu.Unlock()

	m.mu.Lock()
	m.frameCount++
	m.mu.Unlock()

	m.clientsMu.RLock()
	for ch := range m.clients {
		select {
		case ch <- data:
		default:
			// Client is slow, skip this frame
		}
	}
	m.clientsMu.RUnlock()
	return nil
}

// Name returns the output type name
func (m *MJPEGOutput) Name() string { return "MJPEG HTTP Stream" }

// IsRunning returns true if the output is active
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Clients returns the number of connected stream clients
func (m *MJPEGOutput) Clients() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

func (m *MJPEGOutput) addClient() (chan []byte, bool) {
	ch := make(chan []byte, clientQueueSize)
	if !m.IsRunning() {
		return nil, false
	}
	m.clientsMu.Lock()
	m.clients[ch] = struct{}{}
	n := len(m.clients)
	m.clientsMu.Unlock()

	metrics.PreviewClients.Set(float64(n))
	logger.WithComponent("preview").Info().Int("clients", n).Msg("Stream client connected")
	return ch, true
}

func (m *MJPEGOutput) removeClient(ch chan []byte) {
	m.clientsMu.Lock()
	delete(m.clients, ch)
	n := len(m.clients)
	m.clientsMu.Unlock()

	metrics.PreviewClients.Set(float64(n))
	logger.WithComponent("preview").Info().Int("clients", n).Msg("Stream client disconnected")
}

// GetHTTPHandler returns the multipart MJPEG stream handler
func (m *MJPEGOutput) GetHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frames, ok := m.addClient()
		if !ok {
			http.Error(w, "preview not running", http.StatusServiceUnavailable)
			return
		}
		defer m.removeClient(frames)

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		for {
			var data []byte
			select {
			case <-r.Context().Done():
				return
			case d, ok := <-frames:
				if !ok {
					return
				}
				data = d
			}

			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(data)); err != nil {
				return
			}
			if _, err := w.Write(data); err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}

// GetSnapshotHandler serves the most recent preview frame as a JPEG
func (m *MJPEGOutput) GetSnapshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.frameMu.RLock()
		data := m.lastJPEG
		m.frameMu.RUnlock()

		if data == nil {
			http.Error(w, "no frame yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(data)
	}
}

var viewerTemplate = template.Must(template.New("viewer").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>PacedRecorder</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { background: #000; color: #ccc; font-family: system-ui, sans-serif; }
        img { width: 100vw; height: calc(100vh - 56px); object-fit: contain; display: block; }
        .bar { height: 56px; display: flex; align-items: center; gap: 16px; padding: 0 16px; background: #1e1e1e; }
        button { padding: 8px 18px; border: none; border-radius: 18px; background: #4682b4; color: #fff; cursor: pointer; font-size: 14px; }
        button.recording { background: #c83c3c; }
        #status { font-size: 13px; }
        a { color: #569cd6; font-size: 13px; }
    </style>
</head>
<body>
    <img src="/stream" alt="Camera preview {{.Width}}x{{.Height}}">
    <div class="bar">
        <button id="rec" onclick="toggle()">Start Recording</button>
        <span id="status">Ready</span>
        <a href="/stats">Stats</a>
    </div>
    <script>
        const btn = document.getElementById('rec');
        const statusEl = document.getElementById('status');
        function render(recording) {
            btn.textContent = recording ? 'Stop Recording' : 'Start Recording';
            btn.classList.toggle('recording', recording);
        }
        function toggle() {
            fetch('/api/recording/toggle', { method: 'POST' })
                .then(r => r.json()).then(d => render(d.recording)).catch(console.error);
        }
        fetch('/api/status').then(r => r.json()).then(d => render(d.recording)).catch(console.error);
        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/api/events');
        ws.onmessage = e => {
            const ev = JSON.parse(e.data);
            statusEl.textContent = ev.message;
            if (ev.kind === 'session_started') render(true);
            if (ev.kind === 'session_stopped' || ev.kind === 'session_aborted') render(false);
        };
    </script>
</body>
</html>`))

// GetViewerHandler returns the HTML page embedding the stream and the
// record button
func (m *MJPEGOutput) GetViewerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := viewerTemplate.Execute(w, m.config); err != nil {
			logger.WithComponent("preview").Warn().Err(err).Msg("Failed to render viewer")
		}
	}
}

// Stats is a snapshot of stream counters
type Stats struct {
	Running    bool    `json:"running"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	TargetFPS  int     `json:"target_fps"`
	FPS        float64 `json:"fps"`
	Frames     uint64  `json:"frames"`
	Clients    int     `json:"clients"`
	LastUpdate string  `json:"last_update"`
	Uptime     string  `json:"uptime"`
}

// Stats returns stream counters
func (m *MJPEGOutput) Stats() Stats {
	m.mu.RLock()
	running := m.running
	frameCount := m.frameCount
	startTime := m.startTime
	m.mu.RUnlock()

	m.frameMu.RLock()
	lastUpdate := m.lastUpdate
	m.frameMu.RUnlock()

	st := Stats{
		Running:    running,
		Width:      m.config.Width,
		Height:     m.config.Height,
		TargetFPS:  m.config.FPS,
		Frames:     frameCount,
		Clients:    m.Clients(),
		LastUpdate: "Never",
		Uptime:     "N/A",
	}
	if running && !startTime.IsZero() {
		if elapsed := time.Since(startTime).Seconds(); elapsed > 0 {
			st.FPS = float64(frameCount) / elapsed
		}
		st.Uptime = time.Since(startTime).Round(time.Second).String()
	}
	if !lastUpdate.IsZero() {
		st.LastUpdate = time.Since(lastUpdate).Round(time.Millisecond).String() + " ago"
	}
	return st
}

var statsTemplate = template.Must(template.New("stats").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>PacedRecorder - Preview Stats</title>
    <style>
        body { font-family: monospace; padding: 20px; background: #1e1e1e; color: #d4d4d4; }
        .stat { margin: 10px 0; }
        .label { color: #569cd6; }
        .value { color: #4ec9b0; }
    </style>
</head>
<body>
    <h1>Preview Stream Stats</h1>
    <div class="stat"><span class="label">Status:</span> <span class="value">{{if .Running}}Running{{else}}Stopped{{end}}</span></div>
    <div class="stat"><span class="label">Resolution:</span> <span class="value">{{.Width}}x{{.Height}} @ {{.TargetFPS}} FPS (target)</span></div>
    <div class="stat"><span class="label">Actual FPS:</span> <span class="value">{{printf "%.2f" .FPS}}</span></div>
    <div class="stat"><span class="label">Total Frames:</span> <span class="value">{{.Frames}}</span></div>
    <div class="stat"><span class="label">Connected Clients:</span> <span class="value">{{.Clients}}</span></div>
    <div class="stat"><span class="label">Last Update:</span> <span class="value">{{.LastUpdate}}</span></div>
    <div class="stat"><span class="label">Uptime:</span> <span class="value">{{.Uptime}}</span></div>
    <p><a href="/" style="color: #569cd6;">View Stream</a></p>
</body>
</html>`))

// GetStatsHandler returns an HTML page with stream statistics
func (m *MJPEGOutput) GetStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := statsTemplate.Execute(w, m.Stats()); err != nil {
			logger.WithComponent("preview").Warn().Err(err).Msg("Failed to render stats")
		}
	}
}
