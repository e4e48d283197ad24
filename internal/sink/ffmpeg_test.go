package sink

import (
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/bryanchriswhite/PacedRecorder/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupCodec(t *testing.T) {
	c, err := LookupCodec("xvid")
	require.NoError(t, err)
	assert.Equal(t, "mpeg4", c.Encoder)
	assert.Equal(t, "xvid", c.Tag)

	_, err = LookupCodec("NOPE")
	assert.Error(t, err)
}

func TestEncodeArgs(t *testing.T) {
	c, err := LookupCodec("XVID")
	require.NoError(t, err)

	args := EncodeArgs("out.avi", c, 31, 3840, 2160)
	assert.Subset(t, args, []string{"-framerate", "31", "-video_size", "3840x2160", "-pix_fmt", "rgba", "-vtag", "xvid"})
	assert.Equal(t, "out.avi", args[len(args)-1])

	idx := indexOf(args, "-i")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "pipe:0", args[idx+1])
	assert.Less(t, indexOf(args, "-framerate"), idx, "input rate must precede -i")
}

func TestEncodeArgs_FractionalRate(t *testing.T) {
	c, _ := LookupCodec("MJPG")
	args := EncodeArgs("x.avi", c, 29.97, 2, 2)
	assert.Equal(t, "29.97", args[indexOf(args, "-framerate")+1])
}

func TestNewFFmpegSink_RejectsBadInput(t *testing.T) {
	_, err := NewFFmpegSink("ffmpeg", "x.avi", "XVID", 0, 2, 2, 0)
	assert.Error(t, err)
	_, err = NewFFmpegSink("ffmpeg", "x.avi", "XVID", 30, 0, 2, 0)
	assert.Error(t, err)
	_, err = NewFFmpegSink("ffmpeg", "x.avi", "BAD!", 30, 2, 2, 0)
	assert.Error(t, err)
}

func TestFFmpegSink_WriteAndFinalize(t *testing.T) {
	bin, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}

	path := filepath.Join(t.TempDir(), "video.avi")
	s, err := NewFFmpegSink(bin, path, "MJPG", 10, 16, 16, 0)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Write(frame.New(16, 16, frame.RGBA)))
	}
	assert.Error(t, s.Write(frame.New(8, 8, frame.RGBA)))

	require.NoError(t, s.Finalize())
	assert.ErrorIs(t, s.Finalize(), ErrFinalized)
	assert.ErrorIs(t, s.Write(frame.New(16, 16, frame.RGBA)), ErrFinalized)
	assert.FileExists(t, path)
}

func indexOf(args []string, v string) int {
	for i, a := range args {
		if a == v {
			return i
		}
	}
	return -1
}
