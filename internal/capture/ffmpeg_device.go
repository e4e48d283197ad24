package capture

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/PacedRecorder/internal/frame"
	"github.com/bryanchriswhite/PacedRecorder/internal/logger"
	"golang.org/x/time/rate"
)

const (
	probeTimeout    = 10 * time.Second
	restartInterval = 2 * time.Second
)

// FFmpegDevice reads a V4L2 camera through an ffmpeg subprocess that writes
// raw RGBA frames to stdout
type FFmpegDevice struct {
	FFmpegPath  string
	FFprobePath string
	InputFormat string
}

// Name implements Device
func (d *FFmpegDevice) Name() string { return "ffmpeg-v4l2" }

// Open implements Device
func (d *FFmpegDevice) Open(ctx context.Context, deviceID string) (FrameSource, error) {
	if _, err := os.Stat(deviceID); err != nil {
		return nil, fmt.Errorf("device not available: %w", err)
	}
	ffmpeg := d.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if _, err := exec.LookPath(ffmpeg); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	ffprobe := d.FFprobePath
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}

	return &ffmpegSource{
		ctx:         ctx,
		ffmpeg:      ffmpeg,
		ffprobe:     ffprobe,
		device:      deviceID,
		inputFormat: d.InputFormat,
		restart:     rate.NewLimiter(rate.Every(restartInterval), 1),
	}, nil
}

type ffmpegSource struct {
	ctx         context.Context
	ffmpeg      string
	ffprobe     string
	device      string
	inputFormat string

	mu      sync.Mutex
	mode    Mode
	cmd     *exec.Cmd
	stdout  *bufio.Reader
	running bool
	closed  bool
	restart *rate.Limiter
}

// CaptureArgs builds the ffmpeg command line that streams the device as raw
// RGBA on stdout
func CaptureArgs(device, inputFormat string, m Mode) []string {
	args := []string{"-hide_banner", "-loglevel", "warning", "-f", "v4l2"}
	if inputFormat != "" {
		args = append(args, "-input_format", inputFormat)
	}
	args = append(args,
		"-video_size", fmt.Sprintf("%dx%d", m.Width, m.Height),
		"-framerate", strconv.FormatFloat(m.FPS, 'f', -1, 64),
		"-i", device,
		"-an",
		"-f", "rawvideo",
		"-pix_fmt", frame.RGBA.PixFmt(),
		"pipe:1",
	)
	return args
}

func (s *ffmpegSource) Configure(width, height int, fps float64) (Mode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logger.WithComponent("device")
	requested := Mode{Width: width, Height: height, FPS: fps}

	actual, err := s.probe(requested)
	if err != nil {
		log.Warn().Err(err).Str("device", s.device).Msg("Failed to probe device mode, using requested mode")
		actual = requested
	}
	if actual.FPS <= 0 {
		actual.FPS = fps
	}
	s.mode = actual

	if s.running {
		s.stopLocked()
	}
	if err := s.startLocked(); err != nil {
		return Mode{}, err
	}
	return actual, nil
}

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
	} `json:"streams"`
}

// probe asks ffprobe what the device delivers for the requested mode
func (s *ffmpegSource) probe(m Mode) (Mode, error) {
	ctx, cancel := context.WithTimeout(s.ctx, probeTimeout)
	defer cancel()

	args := []string{"-v", "error", "-f", "v4l2"}
	if s.inputFormat != "" {
		args = append(args, "-input_format", s.inputFormat)
	}
	args = append(args,
		"-video_size", fmt.Sprintf("%dx%d", m.Width, m.Height),
		"-framerate", strconv.FormatFloat(m.FPS, 'f', -1, 64),
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,avg_frame_rate,r_frame_rate",
		"-of", "json",
		s.device,
	)

	out, err := exec.CommandContext(ctx, s.ffprobe, args...).Output()
	if err != nil {
		return Mode{}, fmt.Errorf("ffprobe %s: %w", s.device, err)
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (Mode, error) {
	var p probeOutput
	if err := json.Unmarshal(out, &p); err != nil {
		return Mode{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(p.Streams) == 0 || p.Streams[0].Width <= 0 || p.Streams[0].Height <= 0 {
		return Mode{}, fmt.Errorf("ffprobe reported no video stream")
	}
	st := p.Streams[0]
	fps := parseRate(st.AvgFrameRate)
	if fps <= 0 {
		fps = parseRate(st.RFrameRate)
	}
	return Mode{Width: st.Width, Height: st.Height, FPS: fps}, nil
}

// parseRate parses ffprobe rationals such as "30000/1001"
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func (s *ffmpegSource) startLocked() error {
	log := logger.WithComponent("device")

	s.cmd = exec.CommandContext(s.ctx, s.ffmpeg, CaptureArgs(s.device, s.inputFormat, s.mode)...)
	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := s.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	size := frame.Size(s.mode.Width, s.mode.Height, frame.RGBA)
	s.stdout = bufio.NewReaderSize(stdout, size)
	s.running = true

	go s.logStderr(stderr)

	log.Info().
		Str("device", s.device).
		Str("mode", s.mode.String()).
		Int("pid", s.cmd.Process.Pid).
		Msg("Capture subprocess started")
	return nil
}

func (s *ffmpegSource) logStderr(r io.Reader) {
	log := logger.WithComponent("device")
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "rror") {
			log.Warn().Str("ffmpeg", line).Msg("Capture subprocess message")
		} else {
			log.Debug().Str("ffmpeg", line).Msg("Capture subprocess output")
		}
	}
}

func (s *ffmpegSource) stopLocked() {
	if !s.running {
		return
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	s.running = false
	s.stdout = nil
}

// ReadFrame reads exactly one frame from the subprocess. After the process
// exits the next call restarts it, at most once per restartInterval.
func (s *ffmpegSource) ReadFrame() (frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return frame.Frame{}, fmt.Errorf("device closed")
	}
	if s.mode.Width == 0 {
		return frame.Frame{}, ErrNoFrame
	}
	if !s.running {
		if err := s.restart.Wait(s.ctx); err != nil {
			return frame.Frame{}, err
		}
		if err := s.startLocked(); err != nil {
			return frame.Frame{}, err
		}
	}

	f := frame.New(s.mode.Width, s.mode.Height, frame.RGBA)
	if _, err := io.ReadFull(s.stdout, f.Pix); err != nil {
		logger.WithComponent("device").Warn().Err(err).Str("device", s.device).Msg("Capture subprocess stream ended")
		s.stopLocked()
		return frame.Frame{}, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}
	f.CapturedAt = time.Now()
	return f, nil
}

func (s *ffmpegSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.stopLocked()
	logger.WithComponent("device").Info().Str("device", s.device).Msg("Capture subprocess stopped")
	return nil
}
