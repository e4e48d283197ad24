package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/bryanchriswhite/PacedRecorder/internal/capture"
	"github.com/bryanchriswhite/PacedRecorder/internal/config"
	"github.com/bryanchriswhite/PacedRecorder/internal/overlay"
	"github.com/bryanchriswhite/PacedRecorder/internal/recorder"
	"github.com/bryanchriswhite/PacedRecorder/internal/relay"
	"github.com/bryanchriswhite/PacedRecorder/internal/status"
)

// pipeline is an opened camera wired to a recorder
type pipeline struct {
	source capture.FrameSource
	mode   capture.Mode
	relay  *relay.Relay
	rec    *recorder.Recorder
}

func newPipeline(ctx context.Context, cfg *config.Config, n status.Notifier) (*pipeline, error) {
	dev := capture.NewDevice(cfg)
	src, mode, err := capture.OpenSource(ctx, dev, cfg.Device, n)
	if err != nil {
		return nil, err
	}

	rl := relay.New(cfg.Preview.BufferSize)
	rec, err := recorder.New(cfg, src, mode, rl, recorder.Deps{Notifier: n})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to create recorder: %w", err)
	}
	return &pipeline{source: src, mode: mode, relay: rl, rec: rec}, nil
}

func (p *pipeline) Close() error {
	return p.source.Close()
}

// overlayState feeds the preview overlay from the capture loop
func (p *pipeline) overlayState() overlay.State {
	c := p.rec.Capture()
	st := overlay.State{TargetFPS: c.FPS(), Now: time.Now()}
	if info, ok := c.Session(); ok {
		st.Recording = true
		st.SessionID = info.ID
		st.Elapsed = info.Duration
		st.Frames = info.Frames
	}
	return st
}
