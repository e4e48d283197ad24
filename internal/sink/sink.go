// Package sink writes recorded frames into a video container.
package sink

import (
	"fmt"
	"strings"

	"github.com/bryanchriswhite/PacedRecorder/internal/frame"
)

// FrameSink accepts frames in arrival order and is finalized exactly once
type FrameSink interface {
	// Write appends one frame. Frames must match the size the sink was opened with.
	Write(f frame.Frame) error

	// Finalize flushes and closes the container. The file stays on disk even
	// when earlier writes failed.
	Finalize() error
}

// Factory opens sinks
type Factory interface {
	Open(path, codec string, fps float64, width, height int) (FrameSink, error)
}

// FactoryFunc adapts a function to Factory
type FactoryFunc func(path, codec string, fps float64, width, height int) (FrameSink, error)

// Open calls f
func (f FactoryFunc) Open(path, codec string, fps float64, width, height int) (FrameSink, error) {
	return f(path, codec, fps, width, height)
}

// Codec maps a FOURCC to ffmpeg encoder arguments
type Codec struct {
	FourCC  string
	Encoder string
	Tag     string
	Extra   []string
}

var codecs = map[string]Codec{
	"XVID": {FourCC: "XVID", Encoder: "mpeg4", Tag: "xvid", Extra: []string{"-q:v", "3"}},
	"DIVX": {FourCC: "DIVX", Encoder: "mpeg4", Tag: "divx", Extra: []string{"-q:v", "3"}},
	"MP4V": {FourCC: "MP4V", Encoder: "mpeg4", Tag: "mp4v", Extra: []string{"-q:v", "3"}},
	"MJPG": {FourCC: "MJPG", Encoder: "mjpeg", Tag: "MJPG", Extra: []string{"-q:v", "2"}},
	"H264": {FourCC: "H264", Encoder: "libx264", Extra: []string{"-preset", "veryfast", "-crf", "18"}},
	"AVC1": {FourCC: "AVC1", Encoder: "libx264", Tag: "avc1", Extra: []string{"-preset", "veryfast", "-crf", "18"}},
}

// LookupCodec resolves a FOURCC, case-insensitively
func LookupCodec(fourcc string) (Codec, error) {
	c, ok := codecs[strings.ToUpper(fourcc)]
	if !ok {
		return Codec{}, fmt.Errorf("unsupported codec %q", fourcc)
	}
	return c, nil
}
