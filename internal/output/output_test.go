package output

import (
	"bufio"
	"context"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/PacedRecorder/internal/frame"
	"github.com/bryanchriswhite/PacedRecorder/internal/overlay"
	"github.com/bryanchriswhite/PacedRecorder/internal/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeOutput struct {
	mu      sync.Mutex
	running bool
	frames  []*image.RGBA
}

func (o *fakeOutput) Start() error {
	o.mu.Lock()
	o.running = true
	o.mu.Unlock()
	return nil
}

func (o *fakeOutput) Stop() error {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
	return nil
}

func (o *fakeOutput) WriteFrame(img *image.RGBA) error {
	o.mu.Lock()
	o.frames = append(o.frames, img)
	o.mu.Unlock()
	return nil
}

func (o *fakeOutput) Name() string { return "fake" }

func (o *fakeOutput) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *fakeOutput) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.frames)
}

func solid(w, h int, v byte) frame.Frame {
	f := frame.New(w, h, frame.RGBA)
	for i := range f.Pix {
		f.Pix[i] = v
	}
	return f
}

func TestPreview_RenderScalesToPreviewSize(t *testing.T) {
	p, err := NewPreview(relay.New(3), &fakeOutput{}, Config{Width: 32, Height: 18, FPS: 30}, nil, nil)
	require.NoError(t, err)

	img, err := p.Render(solid(64, 36, 0x40))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 18), img.Bounds())
	assert.Equal(t, uint8(0x40), img.RGBAAt(10, 10).R)
}

func TestPreview_RenderKeepsSizeWhenEqual(t *testing.T) {
	p, err := NewPreview(relay.New(3), &fakeOutput{}, Config{Width: 16, Height: 16, FPS: 30}, nil, nil)
	require.NoError(t, err)

	img, err := p.Render(solid(16, 16, 0x10))
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
}

func TestPreview_RenderDrawsOverlay(t *testing.T) {
	state := func() overlay.State { return overlay.State{Recording: true, Elapsed: 5 * time.Second} }
	p, err := NewPreview(relay.New(3), &fakeOutput{}, Config{Width: 160, Height: 90, FPS: 30}, overlay.NewDefaultManager(), state)
	require.NoError(t, err)

	img, err := p.Render(solid(160, 90, 0))
	require.NoError(t, err)

	lit := false
	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 {
			lit = true
			break
		}
	}
	assert.True(t, lit, "overlay should draw over a black frame")
}

func TestPreview_RenderRejectsEmptyFrame(t *testing.T) {
	p, err := NewPreview(relay.New(3), &fakeOutput{}, Config{Width: 8, Height: 8, FPS: 30}, nil, nil)
	require.NoError(t, err)
	_, err = p.Render(frame.Frame{})
	assert.Error(t, err)
}

func TestNewPreview_RequiresRelayAndOutput(t *testing.T) {
	_, err := NewPreview(nil, &fakeOutput{}, Config{}, nil, nil)
	assert.Error(t, err)
	_, err = NewPreview(relay.New(1), nil, Config{}, nil, nil)
	assert.Error(t, err)
}

func TestPreview_RunDrainsRelay(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rl := relay.New(3)
	out := &fakeOutput{}
	p, err := NewPreview(rl, out, Config{Width: 8, Height: 8, FPS: 200}, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	for i := 0; i < 3; i++ {
		require.True(t, rl.TryPush(solid(8, 8, byte(i))))
	}
	require.Eventually(t, func() bool { return out.count() == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, rl.Len())
	assert.Equal(t, uint64(3), p.Rendered())

	cancel()
	require.NoError(t, <-done)
	assert.False(t, out.IsRunning())
}

func TestMJPEGOutput_WriteRequiresStart(t *testing.T) {
	m := NewMJPEGOutput(Config{Width: 8, Height: 8, FPS: 10})
	assert.Error(t, m.WriteFrame(image.NewRGBA(image.Rect(0, 0, 8, 8))))

	require.NoError(t, m.Start())
	assert.Error(t, m.Start())
	require.NoError(t, m.WriteFrame(image.NewRGBA(image.Rect(0, 0, 8, 8))))
	require.NoError(t, m.Stop())
	assert.NoError(t, m.Stop())
}

func TestMJPEGOutput_Snapshot(t *testing.T) {
	m := NewMJPEGOutput(Config{Width: 8, Height: 8, FPS: 10})
	require.NoError(t, m.Start())
	defer m.Stop()

	rec := httptest.NewRecorder()
	m.GetSnapshotHandler()(rec, httptest.NewRequest(http.MethodGet, "/snapshot.jpg", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, m.WriteFrame(image.NewRGBA(image.Rect(0, 0, 8, 8))))
	rec = httptest.NewRecorder()
	m.GetSnapshotHandler()(rec, httptest.NewRequest(http.MethodGet, "/snapshot.jpg", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	img, err := jpeg.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
}

func TestMJPEGOutput_StreamsMultipartFrames(t *testing.T) {
	m := NewMJPEGOutput(Config{Width: 8, Height: 8, FPS: 10})
	require.NoError(t, m.Start())

	srv := httptest.NewServer(m.GetHTTPHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return m.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, m.WriteFrame(image.NewRGBA(image.Rect(0, 0, 8, 8))))

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "--frame", strings.TrimSpace(line))

	require.NoError(t, m.Stop())
	assert.Equal(t, 0, m.Clients())
}

func TestMJPEGOutput_StreamUnavailableWhenStopped(t *testing.T) {
	m := NewMJPEGOutput(Config{})
	rec := httptest.NewRecorder()
	m.GetHTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMJPEGOutput_Pages(t *testing.T) {
	m := NewMJPEGOutput(Config{Width: 960, Height: 540, FPS: 60})
	require.NoError(t, m.Start())
	defer m.Stop()

	rec := httptest.NewRecorder()
	m.GetViewerHandler()(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), "/api/recording/toggle")
	assert.Contains(t, rec.Body.String(), "960x540")

	rec = httptest.NewRecorder()
	m.GetStatsHandler()(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.Contains(t, rec.Body.String(), "960x540 @ 60 FPS")
	assert.Contains(t, rec.Body.String(), "Running")

	st := m.Stats()
	assert.True(t, st.Running)
	assert.Equal(t, 60, st.TargetFPS)
}
