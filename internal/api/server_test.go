package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/PacedRecorder/internal/capture"
	"github.com/bryanchriswhite/PacedRecorder/internal/extract"
	"github.com/bryanchriswhite/PacedRecorder/internal/output"
	"github.com/bryanchriswhite/PacedRecorder/internal/recorder"
	"github.com/bryanchriswhite/PacedRecorder/internal/status"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	mu        sync.Mutex
	recording bool
	sessions  []recorder.SessionRecord
	jobs      map[string]*extract.Job
}

func (f *fakeRecorder) StartRecording(ctx context.Context) (capture.SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recording {
		return capture.SessionInfo{}, capture.ErrSessionActive
	}
	f.recording = true
	return capture.SessionInfo{ID: "video_20260101_120000", State: capture.SessionActive}, nil
}

func (f *fakeRecorder) StopRecording(ctx context.Context) (recorder.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.recording {
		return recorder.SessionRecord{}, capture.ErrNoSession
	}
	f.recording = false
	rec := recorder.SessionRecord{SessionInfo: capture.SessionInfo{ID: "video_20260101_120000", State: capture.SessionStopped, Frames: 31}}
	f.sessions = append(f.sessions, rec)
	return rec, nil
}

func (f *fakeRecorder) Toggle(ctx context.Context) (bool, error) {
	f.mu.Lock()
	recording := f.recording
	f.mu.Unlock()
	if recording {
		_, err := f.StopRecording(ctx)
		return false, err
	}
	_, err := f.StartRecording(ctx)
	return err == nil, err
}

func (f *fakeRecorder) Status() recorder.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return recorder.Status{Recording: f.recording, Device: "synthetic"}
}

func (f *fakeRecorder) Sessions() []recorder.SessionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recorder.SessionRecord(nil), f.sessions...)
}

func (f *fakeRecorder) ExtractSession(id string) (*extract.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.sessions {
		if rec.ID != id {
			continue
		}
		for _, j := range f.jobs {
			if j.SessionID == id && j.State() == extract.JobPending {
				return nil, recorder.ErrJobActive
			}
		}
		job := extract.NewJob(id, rec.Path, filepath.Join("Images", id), extract.Params{Strategy: extract.EvenlySpaced, Count: 10})
		f.jobs[job.ID] = job
		return job, nil
	}
	return nil, recorder.ErrUnknownSession
}

func (f *fakeRecorder) Jobs() []extract.JobInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []extract.JobInfo{}
	for _, j := range f.jobs {
		out = append(out, j.Info())
	}
	return out
}

func (f *fakeRecorder) Job(id string) (*extract.Job, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	return j, ok
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeRecorder, *status.Hub, string) {
	t.Helper()
	images := t.TempDir()
	job := extract.NewJob("video_1", "video_1.avi", filepath.Join(images, "video_1"), extract.Params{Strategy: extract.EvenlySpaced, Count: 10})
	rec := &fakeRecorder{jobs: map[string]*extract.Job{job.ID: job}}
	hub := status.NewHub(16)
	s := NewServer(rec, hub, nil, images)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv, rec, hub, images
}

func post(t *testing.T, url string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestServer_Health(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_StartStopConflicts(t *testing.T) {
	srv, rec, _, _ := newTestServer(t)

	resp, body := post(t, srv.URL+"/api/recording/start")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["recording"])

	resp, body = post(t, srv.URL+"/api/recording/start")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, capture.ErrSessionActive.Error(), body["error"])
	assert.Equal(t, string(status.KindInfo), body["kind"])

	resp, _ = post(t, srv.URL+"/api/recording/stop")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, rec.Sessions(), 1)

	resp, body = post(t, srv.URL+"/api/recording/stop")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, capture.ErrNoSession.Error(), body["error"])
}

func TestServer_Toggle(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	_, body := post(t, srv.URL+"/api/recording/toggle")
	assert.Equal(t, true, body["recording"])
	_, body = post(t, srv.URL+"/api/recording/toggle")
	assert.Equal(t, false, body["recording"])
}

func TestServer_RecordingControlRequiresPost(t *testing.T) {
	srv, rec, _, _ := newTestServer(t)
	for _, action := range []string{"start", "stop", "toggle"} {
		resp, err := http.Get(srv.URL + "/api/recording/" + action)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, action)
		assert.Equal(t, http.MethodPost, resp.Header.Get("Allow"), action)
	}
	assert.False(t, rec.Status().Recording)
}

func TestServer_ExtractSession(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	resp, body := post(t, srv.URL+"/api/sessions/video_20260101_120000/extract")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, recorder.ErrUnknownSession.Error(), body["error"])

	post(t, srv.URL+"/api/recording/start")
	post(t, srv.URL+"/api/recording/stop")

	resp, body = post(t, srv.URL+"/api/sessions/video_20260101_120000/extract")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "video_20260101_120000", body["session_id"])
	assert.Equal(t, string(extract.JobPending), body["state"])

	resp, body = post(t, srv.URL+"/api/sessions/video_20260101_120000/extract")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, recorder.ErrJobActive.Error(), body["error"])

	r, err := http.Get(srv.URL + "/api/sessions/video_20260101_120000/extract")
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, r.StatusCode)
}

func TestServer_Jobs(t *testing.T) {
	srv, rec, _, _ := newTestServer(t)

	var jobs []extract.JobInfo
	resp, err := http.Get(srv.URL + "/api/jobs")
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jobs))
	resp.Body.Close()
	require.Len(t, jobs, 1)

	resp, err = http.Get(srv.URL + "/api/jobs/" + jobs[0].ID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, ok := rec.Job(jobs[0].ID)
	assert.True(t, ok)

	resp, err = http.Get(srv.URL + "/api/jobs/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Plan(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	var body struct {
		Indices []int `json:"indices"`
	}
	resp, err := http.Get(srv.URL + "/api/plan?total=310&count=999&method=interval&interval=30")
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Len(t, body.Indices, 11)
	assert.Equal(t, 300, body.Indices[10])

	resp, err = http.Get(srv.URL + "/api/plan?total=100&count=10")
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, []int{0, 10, 20, 30, 40, 50, 60, 70, 80, 90}, body.Indices)

	for _, q := range []string{"total=x", "method=random", "count=1000000000"} {
		resp, err = http.Get(srv.URL + "/api/plan?" + q)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestServer_Gallery(t *testing.T) {
	srv, _, _, images := newTestServer(t)
	dir := filepath.Join(images, "video_1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image_001.jpg"), []byte("jpeg"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("text"), 0o644))

	var list []GalleryImage
	resp, err := http.Get(srv.URL + "/api/gallery/video_1")
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list, 1)
	assert.Equal(t, "image_001.jpg", list[0].Name)
	assert.Equal(t, "/api/gallery/video_1/image_001.jpg", list[0].URL)

	resp, err = http.Get(srv.URL + list[0].URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	tests := []struct {
		path string
		code int
	}{
		{"/api/gallery/video_1/notes.txt", http.StatusBadRequest},
		{"/api/gallery/video_1/missing.jpg", http.StatusNotFound},
		{"/api/gallery/missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp, err := http.Get(srv.URL + tt.path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, tt.code, resp.StatusCode, tt.path)
	}
}

func TestServer_GalleryPath(t *testing.T) {
	s := &Server{imagesDir: t.TempDir()}

	_, ok := s.galleryPath("video_1", "image_001.jpg")
	assert.True(t, ok)
	for _, parts := range [][]string{{".."}, {"video_1", ".."}, {"a/b"}, {`a\b`}, {""}, {"."}} {
		_, ok := s.galleryPath(parts...)
		assert.False(t, ok, "%v", parts)
	}
}

func TestServer_Metrics(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_EventsReplayHistoryThenStream(t *testing.T) {
	srv, _, hub, _ := newTestServer(t)
	hub.Notify(status.New(status.KindSessionStarted, "Recording started"))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var e status.Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, status.KindSessionStarted, e.Kind)

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)
	hub.Notify(status.Progress("job-1", 3, 10))
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, status.KindProgress, e.Kind)
	assert.Equal(t, 3, e.Done)
}

func TestServer_PreviewRoutes(t *testing.T) {
	stream := output.NewMJPEGOutput(output.Config{Width: 64, Height: 36, FPS: 10})
	require.NoError(t, stream.Start())
	defer stream.Stop()

	s := NewServer(&fakeRecorder{}, status.NewHub(4), stream, t.TempDir())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
}
