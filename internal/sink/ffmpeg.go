package sink

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/PacedRecorder/internal/frame"
	"github.com/bryanchriswhite/PacedRecorder/internal/logger"
)

const (
	defaultFinalizeTimeout = 30 * time.Second
	stderrTailLines        = 20
)

// ErrFinalized is returned by Write after Finalize
var ErrFinalized = errors.New("sink already finalized")

// FFmpegFactory opens FFmpegSinks using the given ffmpeg binary
type FFmpegFactory struct {
	BinPath         string
	FinalizeTimeout time.Duration
}

// Open implements Factory
func (f FFmpegFactory) Open(path, codec string, fps float64, width, height int) (FrameSink, error) {
	return NewFFmpegSink(f.BinPath, path, codec, fps, width, height, f.FinalizeTimeout)
}

// FFmpegSink pipes raw RGBA frames into an ffmpeg encoder process
type FFmpegSink struct {
	path   string
	width  int
	height int

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	done   chan struct{}
	waitMu sync.Mutex
	err    error

	stderrMu sync.Mutex
	stderr   []string

	finalizeTimeout time.Duration
	finalized       bool
	frames          uint64
}

// EncodeArgs builds the ffmpeg command line for a sink. Input timing comes
// from -framerate so the container plays back at exactly fps.
func EncodeArgs(path string, c Codec, fps float64, width, height int) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", frame.RGBA.PixFmt(),
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-framerate", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "pipe:0",
		"-an",
		"-c:v", c.Encoder,
	}
	if c.Tag != "" {
		args = append(args, "-vtag", c.Tag)
	}
	args = append(args, c.Extra...)
	args = append(args, "-pix_fmt", "yuv420p", path)
	return args
}

// NewFFmpegSink starts the encoder process
func NewFFmpegSink(binPath, path, codec string, fps float64, width, height int, finalizeTimeout time.Duration) (*FFmpegSink, error) {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	if fps <= 0 {
		return nil, fmt.Errorf("invalid sink fps: %v", fps)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid sink size: %dx%d", width, height)
	}
	c, err := LookupCodec(codec)
	if err != nil {
		return nil, err
	}
	if finalizeTimeout <= 0 {
		finalizeTimeout = defaultFinalizeTimeout
	}

	log := logger.WithComponent("sink")

	cmd := exec.Command(binPath, EncodeArgs(path, c, fps, width, height)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	s := &FFmpegSink{
		path:            path,
		width:           width,
		height:          height,
		cmd:             cmd,
		stdin:           stdin,
		done:            make(chan struct{}),
		finalizeTimeout: finalizeTimeout,
	}

	go s.logStderr(stderr)
	go s.wait()

	log.Info().
		Str("path", path).
		Str("codec", c.FourCC).
		Float64("fps", fps).
		Int("width", width).
		Int("height", height).
		Int("pid", cmd.Process.Pid).
		Msg("Encoder started")

	return s, nil
}

func (s *FFmpegSink) wait() {
	err := s.cmd.Wait()
	s.waitMu.Lock()
	s.err = err
	s.waitMu.Unlock()
	close(s.done)
}

// logStderr keeps the last lines of encoder output for error messages
func (s *FFmpegSink) logStderr(r io.Reader) {
	log := logger.WithComponent("sink")
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		log.Debug().Str("ffmpeg", line).Str("path", s.path).Msg("Encoder output")

		s.stderrMu.Lock()
		s.stderr = append(s.stderr, line)
		if len(s.stderr) > stderrTailLines {
			s.stderr = s.stderr[len(s.stderr)-stderrTailLines:]
		}
		s.stderrMu.Unlock()
	}
}

func (s *FFmpegSink) stderrTail() string {
	s.stderrMu.Lock()
	defer s.stderrMu.Unlock()
	return strings.Join(s.stderr, "; ")
}

// Write sends one frame to the encoder
func (s *FFmpegSink) Write(f frame.Frame) error {
	if s.finalized {
		return ErrFinalized
	}
	if f.Width != s.width || f.Height != s.height {
		return fmt.Errorf("frame size %dx%d does not match sink %dx%d", f.Width, f.Height, s.width, s.height)
	}
	if f.Layout != frame.RGBA {
		return fmt.Errorf("sink expects %s frames, got %s", frame.RGBA, f.Layout)
	}

	select {
	case <-s.done:
		return fmt.Errorf("encoder exited: %v (%s)", s.exitErr(), s.stderrTail())
	default:
	}

	if _, err := s.stdin.Write(f.Packed()); err != nil {
		return fmt.Errorf("failed to write frame %d to encoder: %w", s.frames, err)
	}
	s.frames++
	return nil
}

func (s *FFmpegSink) exitErr() error {
	s.waitMu.Lock()
	defer s.waitMu.Unlock()
	return s.err
}

// Finalize closes the encoder input and waits for the container to be written
func (s *FFmpegSink) Finalize() error {
	if s.finalized {
		return ErrFinalized
	}
	s.finalized = true

	log := logger.WithComponent("sink")
	closeErr := s.stdin.Close()

	select {
	case <-s.done:
	case <-time.After(s.finalizeTimeout):
		log.Warn().Str("path", s.path).Dur("timeout", s.finalizeTimeout).Msg("Encoder did not exit, killing")
		_ = s.cmd.Process.Kill()
		<-s.done
	}

	if err := s.exitErr(); err != nil {
		return fmt.Errorf("encoder failed for %s: %w (%s)", s.path, err, s.stderrTail())
	}
	if closeErr != nil && !errors.Is(closeErr, io.ErrClosedPipe) {
		return fmt.Errorf("failed to close encoder input: %w", closeErr)
	}

	log.Info().Str("path", s.path).Uint64("frames", s.frames).Msg("Encoder finalized")
	return nil
}

// Path returns the output file
func (s *FFmpegSink) Path() string { return s.path }
