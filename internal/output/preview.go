package output

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/PacedRecorder/internal/frame"
	"github.com/bryanchriswhite/PacedRecorder/internal/logger"
	"github.com/bryanchriswhite/PacedRecorder/internal/overlay"
	"github.com/bryanchriswhite/PacedRecorder/internal/relay"
	xdraw "golang.org/x/image/draw"
)

// StateFunc reports recording state for the overlay
type StateFunc func() overlay.State

// Preview polls the relay at its own cadence, scales each frame down,
// draws the overlay and hands the result to an Output. It never blocks the
// capture loop: an empty relay just means nothing to show this tick.
type Preview struct {
	relay   *relay.Relay
	out     Output
	cfg     Config
	overlay *overlay.Manager
	state   StateFunc

	rendered atomic.Uint64
	fpsBits  atomic.Uint64
}

// NewPreview creates a preview consumer. overlay and state may be nil.
func NewPreview(r *relay.Relay, out Output, cfg Config, ov *overlay.Manager, state StateFunc) (*Preview, error) {
	if r == nil || out == nil {
		return nil, fmt.Errorf("preview needs a relay and an output")
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 60
	}
	return &Preview{relay: r, out: out, cfg: cfg, overlay: ov, state: state}, nil
}

// Run consumes frames until ctx is canceled
func (p *Preview) Run(ctx context.Context) error {
	log := logger.WithComponent("preview")

	if !p.out.IsRunning() {
		if err := p.out.Start(); err != nil {
			return err
		}
	}
	defer p.out.Stop()

	ticker := time.NewTicker(time.Second / time.Duration(p.cfg.FPS))
	defer ticker.Stop()

	windowStart := time.Now()
	var windowFrames uint64

	log.Info().Str("output", p.out.Name()).Int("fps", p.cfg.FPS).Msg("Preview started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Uint64("frames", p.rendered.Load()).Msg("Preview stopped")
			return nil
		case <-ticker.C:
		}

		f, ok := p.relay.TryPop()
		if !ok {
			continue
		}
		img, err := p.Render(f)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to render preview frame")
			continue
		}
		if err := p.out.WriteFrame(img); err != nil {
			log.Warn().Err(err).Msg("Failed to write preview frame")
			continue
		}
		p.rendered.Add(1)

		windowFrames++
		if elapsed := time.Since(windowStart); elapsed >= time.Second {
			p.setFPS(float64(windowFrames) / elapsed.Seconds())
			windowStart = time.Now()
			windowFrames = 0
		}
	}
}

// Render scales f to the preview size and draws the overlay
func (p *Preview) Render(f frame.Frame) (*image.RGBA, error) {
	src, err := f.RGBA()
	if err != nil {
		return nil, err
	}

	dst := src
	if p.cfg.Width > 0 && p.cfg.Height > 0 && (p.cfg.Width != f.Width || p.cfg.Height != f.Height) {
		dst = image.NewRGBA(image.Rect(0, 0, p.cfg.Width, p.cfg.Height))
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	}

	if p.overlay != nil {
		var st overlay.State
		if p.state != nil {
			st = p.state()
		}
		st.FPS = p.FPS()
		st.Dropped = p.relay.Dropped()
		p.overlay.Render(dst, st)
	}
	return dst, nil
}

// Rendered returns the number of frames delivered to the output
func (p *Preview) Rendered() uint64 { return p.rendered.Load() }

// FPS returns the preview rate over the last second
func (p *Preview) FPS() float64 {
	return math.Float64frombits(p.fpsBits.Load())
}

func (p *Preview) setFPS(v float64) {
	p.fpsBits.Store(math.Float64bits(v))
}
