package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bryanchriswhite/PacedRecorder/internal/frame"
)

// SyntheticDevice generates a moving test pattern instead of reading a camera
type SyntheticDevice struct {
	// LatencyMS is added to every ReadFrame to simulate device work
	LatencyMS int
}

// Name implements Device
func (d *SyntheticDevice) Name() string { return "synthetic" }

// Open implements Device
func (d *SyntheticDevice) Open(ctx context.Context, deviceID string) (FrameSource, error) {
	return &syntheticSource{latency: time.Duration(d.LatencyMS) * time.Millisecond}, nil
}

type syntheticSource struct {
	mu      sync.Mutex
	mode    Mode
	latency time.Duration
	n       int
	closed  bool
}

func (s *syntheticSource) Configure(width, height int, fps float64) (Mode, error) {
	if width <= 0 || height <= 0 || fps <= 0 {
		return Mode{}, fmt.Errorf("invalid mode %dx%d@%v", width, height, fps)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = Mode{Width: width, Height: height, FPS: fps}
	return s.mode, nil
}

func (s *syntheticSource) ReadFrame() (frame.Frame, error) {
	if s.latency > 0 {
		time.Sleep(s.latency)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return frame.Frame{}, fmt.Errorf("device closed")
	}
	if s.mode.Width == 0 {
		return frame.Frame{}, ErrNoFrame
	}

	f := frame.New(s.mode.Width, s.mode.Height, frame.RGBA)
	drawTestPattern(f, s.n)
	f.CapturedAt = time.Now()
	s.n++
	return f, nil
}

func (s *syntheticSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// drawTestPattern fills f with vertical color bars and a sweeping white column
func drawTestPattern(f frame.Frame, n int) {
	bars := [][3]byte{
		{192, 192, 192}, {192, 192, 0}, {0, 192, 192}, {0, 192, 0},
		{192, 0, 192}, {192, 0, 0}, {0, 0, 192},
	}
	sweep := n % f.Width
	for y := 0; y < f.Height; y++ {
		row := f.Pix[y*f.Stride:]
		for x := 0; x < f.Width; x++ {
			c := bars[x*len(bars)/f.Width]
			if x == sweep {
				c = [3]byte{255, 255, 255}
			}
			row[x*4+0] = c[0]
			row[x*4+1] = c[1]
			row[x*4+2] = c[2]
			row[x*4+3] = 0xff
		}
	}
}
