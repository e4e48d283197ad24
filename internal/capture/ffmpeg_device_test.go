package capture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureArgs(t *testing.T) {
	args := CaptureArgs("/dev/video2", "mjpeg", Mode{Width: 3840, Height: 2160, FPS: 31})

	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "warning",
		"-f", "v4l2",
		"-input_format", "mjpeg",
		"-video_size", "3840x2160",
		"-framerate", "31",
		"-i", "/dev/video2",
		"-an",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	}, args)
}

func TestCaptureArgs_NoInputFormat(t *testing.T) {
	args := CaptureArgs("/dev/video0", "", Mode{Width: 640, Height: 480, FPS: 30})
	assert.NotContains(t, args, "-input_format")
}

func TestParseProbe(t *testing.T) {
	out := []byte(`{"streams":[{"width":1920,"height":1080,"avg_frame_rate":"0/0","r_frame_rate":"30000/1001"}]}`)
	m, err := parseProbe(out)
	require.NoError(t, err)
	assert.Equal(t, 1920, m.Width)
	assert.Equal(t, 1080, m.Height)
	assert.InDelta(t, 29.97, m.FPS, 0.01)

	_, err = parseProbe([]byte(`{"streams":[]}`))
	assert.Error(t, err)
	_, err = parseProbe([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseRate(t *testing.T) {
	assert.Equal(t, 31.0, parseRate("31/1"))
	assert.Equal(t, 25.0, parseRate("25"))
	assert.Equal(t, 0.0, parseRate("0/0"))
	assert.Equal(t, 0.0, parseRate(""))
}

func TestFFmpegDevice_OpenMissingDevice(t *testing.T) {
	d := &FFmpegDevice{}
	_, err := d.Open(context.Background(), "/dev/does-not-exist")
	assert.Error(t, err)
}
