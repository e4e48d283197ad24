package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesCaptured counts frames successfully read from the device
	FramesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pacedrecorder_frames_captured_total",
		Help: "Total frames read from the device",
	})

	// ReadFailures counts transient device read failures
	ReadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pacedrecorder_read_failures_total",
		Help: "Total transient device read failures",
	})

	// RelayDrops counts frames discarded because the preview relay was full
	RelayDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pacedrecorder_relay_dropped_total",
		Help: "Total frames dropped for preview because the relay was full",
	})

	// FramesWritten counts frames written to recording sinks
	FramesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pacedrecorder_frames_written_total",
		Help: "Total frames written to recording sinks",
	})

	// SinkErrors counts sink write failures
	SinkErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pacedrecorder_sink_errors_total",
		Help: "Total sink write failures",
	})

	// AchievedFPS is the achieved recording rate of the active session
	AchievedFPS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pacedrecorder_achieved_fps",
		Help: "Achieved frame rate of the active recording session",
	})

	// PacingSleep observes the per-iteration compensated sleep
	PacingSleep = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pacedrecorder_pacing_sleep_seconds",
		Help:    "Compensated sleep per capture iteration",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 10), // 0.5ms to ~256ms
	})

	// PacingOverruns counts iterations whose work exceeded the frame interval
	PacingOverruns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pacedrecorder_pacing_overruns_total",
		Help: "Capture iterations that ran past the target frame interval",
	})

	// Sessions counts recording sessions by outcome
	Sessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pacedrecorder_sessions_total",
		Help: "Recording sessions by outcome",
	}, []string{"outcome"}) // started, stopped, aborted

	// Recording is 1 while a session is active
	Recording = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pacedrecorder_recording",
		Help: "1 while a recording session is active",
	})

	// ImagesWritten counts extracted images
	ImagesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pacedrecorder_extraction_images_written_total",
		Help: "Total images materialized by extraction jobs",
	})

	// ExtractionSkipped counts planned indices that could not be read
	ExtractionSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pacedrecorder_extraction_frames_skipped_total",
		Help: "Planned frame indices skipped because seek or read failed",
	})

	// ExtractionJobs counts extraction jobs by final state
	ExtractionJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pacedrecorder_extraction_jobs_total",
		Help: "Extraction jobs by final state",
	}, []string{"state"})

	// ExtractionDuration observes extraction job wall time
	ExtractionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pacedrecorder_extraction_duration_seconds",
		Help:    "Extraction job duration",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4m
	})

	// PreviewClients is the number of connected MJPEG clients
	PreviewClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pacedrecorder_preview_clients",
		Help: "Connected MJPEG preview clients",
	})
)
