package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/bryanchriswhite/PacedRecorder/internal/config"
	"github.com/bryanchriswhite/PacedRecorder/internal/frame"
	"github.com/bryanchriswhite/PacedRecorder/internal/logger"
	"github.com/bryanchriswhite/PacedRecorder/internal/status"
)

// ErrNoFrame is returned by ReadFrame when the device produced nothing this
// time. The caller retries on the next iteration.
var ErrNoFrame = errors.New("no frame available")

// Mode is a resolution and frame rate as negotiated with a device
type Mode struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps"`
}

func (m Mode) String() string {
	return fmt.Sprintf("%dx%d@%.2f", m.Width, m.Height, m.FPS)
}

// Device opens frame sources
type Device interface {
	// Open acquires the device. Failure is fatal to starting capture.
	Open(ctx context.Context, deviceID string) (FrameSource, error)

	// Name returns a human-readable name for this backend
	Name() string
}

// FrameSource is an open live device
type FrameSource interface {
	// Configure requests a mode and returns what the device actually delivers
	Configure(width, height int, fps float64) (Mode, error)

	// ReadFrame blocks until the next frame. ErrNoFrame (or any error) is a
	// transient failure.
	ReadFrame() (frame.Frame, error)

	// Close releases the device
	Close() error
}

// NewDevice returns the backend selected by cfg
func NewDevice(cfg *config.Config) Device {
	if cfg.Device.IsSynthetic() {
		return &SyntheticDevice{LatencyMS: cfg.Device.SyntheticLatencyMS}
	}
	return &FFmpegDevice{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		InputFormat: cfg.Device.InputFormat,
	}
}

// OpenSource opens and configures the device described by cfg. A failure is
// reported once through n and returned; there is no retry.
func OpenSource(ctx context.Context, dev Device, cfg config.DeviceConfig, n status.Notifier) (FrameSource, Mode, error) {
	log := logger.WithComponent("device")
	if n == nil {
		n = status.Discard
	}

	src, err := dev.Open(ctx, cfg.ID)
	if err != nil {
		serr := status.Wrap(status.KindDeviceOpen, cfg.ID, err)
		n.Notify(status.FromError(serr, fmt.Sprintf("Error: Could not open device %s", cfg.ID)))
		return nil, Mode{}, serr
	}

	mode, err := src.Configure(cfg.Width, cfg.Height, cfg.FPS)
	if err != nil {
		_ = src.Close()
		serr := status.Wrap(status.KindDeviceOpen, cfg.ID, err)
		n.Notify(status.FromError(serr, fmt.Sprintf("Error: Could not configure device %s", cfg.ID)))
		return nil, Mode{}, serr
	}

	log.Info().
		Str("backend", dev.Name()).
		Str("device", cfg.ID).
		Str("requested", Mode{cfg.Width, cfg.Height, cfg.FPS}.String()).
		Str("actual", mode.String()).
		Msg("Device opened")

	e := status.New(status.KindInfo, "Camera resolution: %dx%d, FPS: %.2f", mode.Width, mode.Height, mode.FPS)
	e.Path = cfg.ID
	n.Notify(e)

	return src, mode, nil
}
