package layout

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames(t *testing.T) {
	ts := time.Date(2025, 3, 7, 9, 5, 1, 0, time.Local)
	l := Layout{VideoDir: "Recordings", ImagesDir: "Images", VideoExt: ".avi"}

	assert.Equal(t, "video_20250307_090501", SessionID(ts))
	assert.Equal(t, filepath.Join("Recordings", "video_20250307_090501.avi"), l.VideoPath(SessionID(ts)))
	assert.Equal(t, filepath.Join("Images", "video_20250307_090501"), l.ImageDir(SessionID(ts)))
	assert.Equal(t, "image_001.jpg", ImageName(1))
	assert.Equal(t, "image_100.jpg", ImageName(100))
	assert.Equal(t, "video_20250307_090501", SessionFromVideo("/x/Recordings/video_20250307_090501.avi"))
}

func TestNextSessionID_AvoidsCollision(t *testing.T) {
	dir := t.TempDir()
	l := Layout{VideoDir: dir, ImagesDir: dir, VideoExt: ".avi"}
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local)

	first := l.NextSessionID(ts)
	assert.Equal(t, "video_20250101_000000", first)
	require.NoError(t, os.WriteFile(l.VideoPath(first), nil, 0o644))

	assert.Equal(t, "video_20250101_000000_2", l.NextSessionID(ts))
}
