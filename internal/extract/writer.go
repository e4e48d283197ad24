package extract

import (
	"bytes"
	"fmt"
	"image/jpeg"

	"github.com/bryanchriswhite/PacedRecorder/internal/frame"
	"github.com/google/renameio/v2"
)

// ImageWriter persists one frame as a still image
type ImageWriter interface {
	WriteImage(path string, f frame.Frame, quality int) error
}

// JPEGWriter encodes JPEG files and replaces them atomically
type JPEGWriter struct{}

// WriteImage implements ImageWriter. quality is clamped to [1,100].
func (JPEGWriter) WriteImage(path string, f frame.Frame, quality int) error {
	img, err := f.RGBA()
	if err != nil {
		return err
	}
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
