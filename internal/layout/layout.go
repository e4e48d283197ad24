// Package layout names the files a recording session leaves on disk:
//
//	<output_dir>/video_YYYYMMDD_HHMMSS.avi
//	<images_dir>/video_YYYYMMDD_HHMMSS/image_001.jpg
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// SessionPrefix prefixes every session ID
	SessionPrefix = "video_"
	// TimestampFormat is the session timestamp layout
	TimestampFormat = "20060102_150405"
	// ImagePrefix prefixes every extracted image
	ImagePrefix = "image_"
	// ImageExt is the fixed extension of extracted images
	ImageExt = ".jpg"
)

// Layout resolves paths under the configured roots
type Layout struct {
	VideoDir  string
	ImagesDir string
	VideoExt  string
}

// SessionID returns video_<timestamp> for t
func SessionID(t time.Time) string {
	return SessionPrefix + t.Format(TimestampFormat)
}

// NextSessionID returns the session ID for t, suffixed _2, _3... when a video
// with that name already exists.
func (l Layout) NextSessionID(t time.Time) string {
	base := SessionID(t)
	id := base
	for n := 2; ; n++ {
		if _, err := os.Stat(l.VideoPath(id)); os.IsNotExist(err) {
			return id
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}
}

// VideoPath returns the video file of a session
func (l Layout) VideoPath(sessionID string) string {
	return filepath.Join(l.VideoDir, sessionID+l.VideoExt)
}

// ImageDir returns the directory holding a session's extracted images
func (l Layout) ImageDir(sessionID string) string {
	return filepath.Join(l.ImagesDir, sessionID)
}

// ImageName returns the 1-based, 3-digit zero-padded image name
func ImageName(seq int) string {
	return fmt.Sprintf("%s%03d%s", ImagePrefix, seq, ImageExt)
}

// SessionFromVideo derives a session ID from a video path
func SessionFromVideo(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
