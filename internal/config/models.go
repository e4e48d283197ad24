package config

import (
	"errors"
	"fmt"
	"strings"
)

// Extraction methods
const (
	MethodEvenlySpaced = "evenly_spaced"
	MethodInterval     = "interval"
)

// SyntheticDeviceID selects the built-in test pattern device instead of a camera
const SyntheticDeviceID = "synthetic"

// Config represents the application configuration. Once loaded and validated
// it is treated as an immutable value and handed to constructors by pointer.
type Config struct {
	ServerPort  int    `json:"server_port" yaml:"server_port" mapstructure:"server_port"`
	LogLevel    string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	FFmpegPath  string `json:"ffmpeg_path" yaml:"ffmpeg_path" mapstructure:"ffmpeg_path"`
	FFprobePath string `json:"ffprobe_path" yaml:"ffprobe_path" mapstructure:"ffprobe_path"`

	Device     DeviceConfig     `json:"device" yaml:"device" mapstructure:"device"`
	Recording  RecordingConfig  `json:"recording" yaml:"recording" mapstructure:"recording"`
	Preview    PreviewConfig    `json:"preview" yaml:"preview" mapstructure:"preview"`
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction" mapstructure:"extraction"`
	Pacing     PacingConfig     `json:"pacing" yaml:"pacing" mapstructure:"pacing"`
}

// DeviceConfig describes the camera and the mode requested from it
type DeviceConfig struct {
	ID          string  `json:"id" yaml:"id" mapstructure:"id"`
	Width       int     `json:"width" yaml:"width" mapstructure:"width"`
	Height      int     `json:"height" yaml:"height" mapstructure:"height"`
	FPS         float64 `json:"fps" yaml:"fps" mapstructure:"fps"`
	InputFormat string  `json:"input_format" yaml:"input_format" mapstructure:"input_format"`
	// Simulated per-frame latency for the synthetic device
	SyntheticLatencyMS int `json:"synthetic_latency_ms,omitempty" yaml:"synthetic_latency_ms,omitempty" mapstructure:"synthetic_latency_ms"`
}

// RecordingConfig controls where and how sessions are written
type RecordingConfig struct {
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`
	Codec     string `json:"codec" yaml:"codec" mapstructure:"codec"`
	Extension string `json:"extension" yaml:"extension" mapstructure:"extension"`
}

// PreviewConfig controls the relay and the MJPEG preview consumer
type PreviewConfig struct {
	Width       int  `json:"width" yaml:"width" mapstructure:"width"`
	Height      int  `json:"height" yaml:"height" mapstructure:"height"`
	BufferSize  int  `json:"buffer_size" yaml:"buffer_size" mapstructure:"buffer_size"`
	FPS         int  `json:"fps" yaml:"fps" mapstructure:"fps"`
	JPEGQuality int  `json:"jpeg_quality" yaml:"jpeg_quality" mapstructure:"jpeg_quality"`
	Overlay     bool `json:"overlay" yaml:"overlay" mapstructure:"overlay"`
}

// ExtractionConfig controls the post-recording frame sampling
type ExtractionConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	ImagesDir string `json:"images_dir" yaml:"images_dir" mapstructure:"images_dir"`
	Count     int    `json:"count" yaml:"count" mapstructure:"count"`
	Method    string `json:"method" yaml:"method" mapstructure:"method"`
	Interval  int    `json:"interval" yaml:"interval" mapstructure:"interval"`
	Quality   int    `json:"quality" yaml:"quality" mapstructure:"quality"`
}

// PacingConfig tunes capture loop diagnostics. Zero means round(device fps).
type PacingConfig struct {
	OverrunReportAfter int `json:"overrun_report_after" yaml:"overrun_report_after" mapstructure:"overrun_report_after"`
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		ServerPort:  8080,
		LogLevel:    "info",
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		Device: DeviceConfig{
			ID:          "/dev/video2",
			Width:       3840,
			Height:      2160,
			FPS:         31.0,
			InputFormat: "mjpeg",
		},
		Recording: RecordingConfig{
			OutputDir: "Recordings",
			Codec:     "XVID",
			Extension: ".avi",
		},
		Preview: PreviewConfig{
			Width:       960,
			Height:      540,
			BufferSize:  3,
			FPS:         60,
			JPEGQuality: 80,
			Overlay:     true,
		},
		Extraction: ExtractionConfig{
			Enabled:   true,
			ImagesDir: "Images",
			Count:     100,
			Method:    MethodEvenlySpaced,
			Interval:  30,
			Quality:   95,
		},
	}
}

// Validate reports every invalid field at once
func (c *Config) Validate() error {
	var errs []error

	if c.ServerPort < 0 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("server_port out of range: %d", c.ServerPort))
	}
	if strings.TrimSpace(c.Device.ID) == "" {
		errs = append(errs, errors.New("device.id is required"))
	}
	if c.Device.Width <= 0 || c.Device.Height <= 0 {
		errs = append(errs, fmt.Errorf("device resolution must be positive: %dx%d", c.Device.Width, c.Device.Height))
	}
	if c.Device.FPS <= 0 {
		errs = append(errs, fmt.Errorf("device.fps must be positive: %v", c.Device.FPS))
	}
	if c.Device.SyntheticLatencyMS < 0 {
		errs = append(errs, errors.New("device.synthetic_latency_ms must not be negative"))
	}
	if strings.TrimSpace(c.Recording.OutputDir) == "" {
		errs = append(errs, errors.New("recording.output_dir is required"))
	}
	if len(c.Recording.Codec) != 4 {
		errs = append(errs, fmt.Errorf("recording.codec must be a FOURCC: %q", c.Recording.Codec))
	}
	if !strings.HasPrefix(c.Recording.Extension, ".") {
		errs = append(errs, fmt.Errorf("recording.extension must start with a dot: %q", c.Recording.Extension))
	}
	if c.Preview.BufferSize < 1 {
		errs = append(errs, fmt.Errorf("preview.buffer_size must be at least 1: %d", c.Preview.BufferSize))
	}
	if c.Preview.Width <= 0 || c.Preview.Height <= 0 {
		errs = append(errs, fmt.Errorf("preview resolution must be positive: %dx%d", c.Preview.Width, c.Preview.Height))
	}
	if c.Preview.FPS <= 0 {
		errs = append(errs, fmt.Errorf("preview.fps must be positive: %d", c.Preview.FPS))
	}
	if c.Preview.JPEGQuality < 1 || c.Preview.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("preview.jpeg_quality must be 1-100: %d", c.Preview.JPEGQuality))
	}
	if strings.TrimSpace(c.Extraction.ImagesDir) == "" {
		errs = append(errs, errors.New("extraction.images_dir is required"))
	}
	if c.Extraction.Count < 0 {
		errs = append(errs, fmt.Errorf("extraction.count must not be negative: %d", c.Extraction.Count))
	}
	switch c.Extraction.Method {
	case MethodEvenlySpaced, MethodInterval:
	default:
		errs = append(errs, fmt.Errorf("invalid extraction.method: %q (use %s or %s)", c.Extraction.Method, MethodEvenlySpaced, MethodInterval))
	}
	if c.Extraction.Interval <= 0 {
		errs = append(errs, fmt.Errorf("extraction.interval must be positive: %d", c.Extraction.Interval))
	}
	if c.Extraction.Quality < 1 || c.Extraction.Quality > 100 {
		errs = append(errs, fmt.Errorf("extraction.quality must be 1-100: %d", c.Extraction.Quality))
	}
	if c.Pacing.OverrunReportAfter < 0 {
		errs = append(errs, errors.New("pacing.overrun_report_after must not be negative"))
	}

	return errors.Join(errs...)
}

// IsSynthetic reports whether the built-in test pattern device is selected
func (d DeviceConfig) IsSynthetic() bool {
	return d.ID == SyntheticDeviceID
}
