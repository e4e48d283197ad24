package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"github.com/bryanchriswhite/PacedRecorder/internal/frame"
	"github.com/bryanchriswhite/PacedRecorder/internal/logger"
	"github.com/bryanchriswhite/PacedRecorder/internal/status"
)

// ErrOpen marks a source that could not be opened for extraction
var ErrOpen = errors.New("cannot open video file")

// Reader is random access over a finished recording
type Reader interface {
	// FrameCount returns the total number of frames
	FrameCount() int
	// ReadAt seeks to index and decodes that one frame
	ReadAt(ctx context.Context, index int) (frame.Frame, error)
	Close() error
}

// Opener opens readers
type Opener interface {
	Open(ctx context.Context, path string) (Reader, error)
}

// FFmpegOpener opens recordings with ffprobe and decodes frames with ffmpeg
type FFmpegOpener struct {
	FFmpegPath  string
	FFprobePath string
}

type streamInfo struct {
	Streams []struct {
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		NbFrames      string `json:"nb_frames"`
		NbReadPackets string `json:"nb_read_packets"`
	} `json:"streams"`
}

// Open implements Opener. The frame count is queried once here.
func (o FFmpegOpener) Open(ctx context.Context, path string) (Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, openErr(path, err)
	}
	ffprobe := o.FFprobePath
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	ffmpeg := o.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}

	out, err := exec.CommandContext(ctx, ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=width,height,nb_frames,nb_read_packets",
		"-of", "json",
		path,
	).Output()
	if err != nil {
		return nil, openErr(path, fmt.Errorf("ffprobe: %w", err))
	}

	total, width, height, err := parseStreamInfo(out)
	if err != nil {
		return nil, openErr(path, err)
	}

	logger.WithComponent("extract").Debug().
		Str("path", path).
		Int("frames", total).
		Int("width", width).
		Int("height", height).
		Msg("Opened video for extraction")

	return &ffmpegReader{
		ffmpeg: ffmpeg,
		path:   path,
		total:  total,
		width:  width,
		height: height,
	}, nil
}

func openErr(path string, err error) error {
	return status.Wrap(status.KindExtractOpen, path, fmt.Errorf("%w: %v", ErrOpen, err))
}

func parseStreamInfo(out []byte) (total, width, height int, err error) {
	var info streamInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(info.Streams) == 0 {
		return 0, 0, 0, fmt.Errorf("no video stream")
	}
	st := info.Streams[0]
	if st.Width <= 0 || st.Height <= 0 {
		return 0, 0, 0, fmt.Errorf("invalid video size %dx%d", st.Width, st.Height)
	}
	for _, s := range []string{st.NbReadPackets, st.NbFrames} {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			return n, st.Width, st.Height, nil
		}
	}
	return 0, 0, 0, fmt.Errorf("frame count unavailable")
}

type ffmpegReader struct {
	ffmpeg string
	path   string
	total  int
	width  int
	height int
}

// DecodeArgs builds the ffmpeg command line that decodes exactly frame index
// of path as raw RGBA on stdout
func DecodeArgs(path string, index int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-an",
		"-vf", fmt.Sprintf(`select=eq(n\,%d)`, index),
		"-fps_mode", "passthrough",
		"-frames:v", "1",
		"-f", "rawvideo",
		"-pix_fmt", frame.RGBA.PixFmt(),
		"pipe:1",
	}
}

func (r *ffmpegReader) FrameCount() int { return r.total }

func (r *ffmpegReader) ReadAt(ctx context.Context, index int) (frame.Frame, error) {
	if index < 0 || index >= r.total {
		return frame.Frame{}, fmt.Errorf("frame %d out of range [0,%d)", index, r.total)
	}

	cmd := exec.CommandContext(ctx, r.ffmpeg, DecodeArgs(r.path, index)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return frame.Frame{}, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return frame.Frame{}, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	f := frame.New(r.width, r.height, frame.RGBA)
	_, readErr := io.ReadFull(stdout, f.Pix)
	if readErr != nil {
		_ = cmd.Process.Kill()
	}
	waitErr := cmd.Wait()

	if readErr != nil {
		return frame.Frame{}, fmt.Errorf("decode frame %d: %w (%s)", index, readErr, bytes.TrimSpace(stderr.Bytes()))
	}
	if waitErr != nil {
		return frame.Frame{}, fmt.Errorf("decode frame %d: %w (%s)", index, waitErr, bytes.TrimSpace(stderr.Bytes()))
	}
	f.Seq = uint64(index)
	return f, nil
}

func (r *ffmpegReader) Close() error { return nil }
