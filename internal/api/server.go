package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bryanchriswhite/PacedRecorder/internal/capture"
	"github.com/bryanchriswhite/PacedRecorder/internal/extract"
	"github.com/bryanchriswhite/PacedRecorder/internal/logger"
	"github.com/bryanchriswhite/PacedRecorder/internal/output"
	"github.com/bryanchriswhite/PacedRecorder/internal/recorder"
	"github.com/bryanchriswhite/PacedRecorder/internal/status"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// maxImageSize is the largest gallery file served
	maxImageSize = 50 << 20
	// maxPlanCount bounds /api/plan responses
	maxPlanCount = 100000
)

var allowedImageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
}

// Recorder is the part of the recorder the API drives
type Recorder interface {
	StartRecording(ctx context.Context) (capture.SessionInfo, error)
	StopRecording(ctx context.Context) (recorder.SessionRecord, error)
	Toggle(ctx context.Context) (bool, error)
	Status() recorder.Status
	Sessions() []recorder.SessionRecord
	ExtractSession(id string) (*extract.Job, error)
	Jobs() []extract.JobInfo
	Job(id string) (*extract.Job, bool)
}

// Server represents the HTTP API server
type Server struct {
	router     *mux.Router
	rec        Recorder
	hub        *status.Hub
	stream     *output.MJPEGOutput
	imagesDir  string
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// NewServer creates a new API server. stream may be nil when the preview is
// disabled.
func NewServer(rec Recorder, hub *status.Hub, stream *output.MJPEGOutput, imagesDir string) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		rec:       rec,
		hub:       hub,
		stream:    stream,
		imagesDir: imagesDir,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local use
			},
		},
	}

	s.setupRoutes()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")

	// Recording control. The method is checked in the handler so a GET
	// gets 405 no matter which routes follow.
	api.HandleFunc("/recording/start", postOnly(s.handleStart))
	api.HandleFunc("/recording/stop", postOnly(s.handleStop))
	api.HandleFunc("/recording/toggle", postOnly(s.handleToggle))

	// Sessions and extraction jobs
	api.HandleFunc("/sessions", s.handleSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}/extract", postOnly(s.handleExtract))
	api.HandleFunc("/jobs", s.handleJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", s.handleJob).Methods("GET")
	api.HandleFunc("/plan", s.handlePlan).Methods("GET")

	// Extracted images
	api.HandleFunc("/gallery/{session}", s.handleGalleryList).Methods("GET")
	api.HandleFunc("/gallery/{session}/{name}", s.handleGalleryImage).Methods("GET")

	api.HandleFunc("/events", s.handleEvents)

	s.router.Handle("/metrics", promhttp.Handler())

	if s.stream != nil {
		s.router.HandleFunc("/stream", s.stream.GetHTTPHandler())
		s.router.HandleFunc("/snapshot.jpg", s.stream.GetSnapshotHandler())
		s.router.HandleFunc("/stats", s.stream.GetStatsHandler())
		s.router.HandleFunc("/", s.stream.GetViewerHandler())
	} else {
		s.router.HandleFunc("/", s.handleIndex)
	}
}

// Handler returns the router wrapped with CORS headers
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves until Shutdown is called
func (s *Server) Start(port int) error {
	s.httpServer.Addr = fmt.Sprintf(":%d", port)
	logger.WithComponent("api").Info().Int("port", port).Msgf("Starting server on http://localhost:%d", port)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests.
// Streaming clients are cut off when ctx expires. A Start after Shutdown
// returns immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// postOnly rejects every method but POST with 405
func postOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed", Kind: status.KindInfo})
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// errorBody is the JSON shape of every API error
type errorBody struct {
	Error string      `json:"error"`
	Kind  status.Kind `json:"kind"`
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	kind := status.KindOf(err)
	switch {
	case errors.Is(err, capture.ErrSessionActive), errors.Is(err, capture.ErrNoSession),
		errors.Is(err, recorder.ErrJobActive), errors.Is(err, recorder.ErrNotExtractable):
		code = http.StatusConflict
	case errors.Is(err, recorder.ErrUnknownSession):
		code = http.StatusNotFound
	case errors.Is(err, recorder.ErrClosed):
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, errorBody{Error: err.Error(), Kind: kind})
}

func badRequest(w http.ResponseWriter, format string, args ...interface{}) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf(format, args...), Kind: status.KindInfo})
}

// HTTP Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.rec.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	info, err := s.rec.StartRecording(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"recording": true, "session": info})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	rec, err := s.rec.StopRecording(r.Context())
	if err != nil && rec.ID == "" {
		writeError(w, err)
		return
	}
	// A stop whose finalize failed still produced a session record
	body := map[string]interface{}{"recording": false, "session": rec}
	if err != nil {
		body["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	recording, err := s.rec.Toggle(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"recording": recording})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.rec.Sessions())
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	job, err := s.rec.ExtractSession(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job.Info())
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.rec.Jobs())
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.rec.Job(mux.Vars(r)["id"])
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "job not found", Kind: status.KindInfo})
		return
	}
	writeJSON(w, http.StatusOK, job.Info())
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	intParam := func(name string, def int) (int, error) {
		raw := q.Get(name)
		if raw == "" {
			return def, nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %q", name, raw)
		}
		return n, nil
	}

	total, err := intParam("total", 0)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}
	count, err := intParam("count", 100)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}
	interval, err := intParam("interval", 30)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}
	if count > maxPlanCount {
		badRequest(w, "count must be at most %d", maxPlanCount)
		return
	}
	method := q.Get("method")
	if method == "" {
		method = string(extract.EvenlySpaced)
	}
	strategy, err := extract.ParseStrategy(method)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":    total,
		"count":    count,
		"method":   strategy,
		"interval": interval,
		"indices":  extract.Plan(total, count, strategy, interval),
	})
}

// galleryPath joins parts under the images root and rejects anything that
// would escape it
func (s *Server) galleryPath(parts ...string) (string, bool) {
	root, err := filepath.Abs(s.imagesDir)
	if err != nil {
		return "", false
	}
	for _, p := range parts {
		if p == "" || p == "." || p == ".." || strings.ContainsAny(p, `/\`) {
			return "", false
		}
	}
	full := filepath.Join(append([]string{root}, parts...)...)
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return full, true
}

// GalleryImage describes one extracted image
type GalleryImage struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

func (s *Server) handleGalleryList(w http.ResponseWriter, r *http.Request) {
	session := mux.Vars(r)["session"]
	dir, ok := s.galleryPath(session)
	if !ok {
		badRequest(w, "invalid session: %q", session)
		return
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "session has no images", Kind: status.KindInfo})
		return
	} else if err != nil {
		writeError(w, err)
		return
	}

	images := make([]GalleryImage, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !allowedImageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		images = append(images, GalleryImage{
			Name: e.Name(),
			Size: fi.Size(),
			URL:  "/api/gallery/" + session + "/" + e.Name(),
		})
	}
	writeJSON(w, http.StatusOK, images)
}

func (s *Server) handleGalleryImage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["name"]
	if !allowedImageExts[strings.ToLower(filepath.Ext(name))] {
		badRequest(w, "unsupported image type: %q", name)
		return
	}
	path, ok := s.galleryPath(vars["session"], name)
	if !ok {
		badRequest(w, "invalid image path")
		return
	}

	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		http.NotFound(w, r)
		return
	}
	if fi.Size() > maxImageSize {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "image exceeds 50 MB", Kind: status.KindInfo})
		return
	}
	http.ServeFile(w, r, path)
}

// handleEvents streams status events over a websocket, replaying retained
// history first
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	history, updates := s.hub.SubscribeWithHistory()
	defer s.hub.Unsubscribe(updates)

	for _, e := range history {
		if err := conn.WriteJSON(e); err != nil {
			return
		}
	}

	// The read loop notices when the client goes away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case e, ok := <-updates:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>PacedRecorder</title></head>
<body style="font-family: sans-serif; max-width: 800px; margin: 50px auto;">
    <h1>PacedRecorder</h1>
    <p>Preview is disabled. API endpoints:</p>
    <ul>
        <li><a href="/api/health">/api/health</a> - Server health check</li>
        <li><a href="/api/status">/api/status</a> - Capture and recording status</li>
        <li><a href="/api/sessions">/api/sessions</a> - Finished sessions</li>
        <li>POST /api/sessions/{id}/extract - Extract a finished session again</li>
        <li><a href="/api/jobs">/api/jobs</a> - Extraction jobs</li>
        <li><a href="/metrics">/metrics</a> - Prometheus metrics</li>
    </ul>
</body>
</html>`))
}
