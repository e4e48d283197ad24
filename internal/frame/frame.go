// Package frame defines the pixel buffer that flows from the device to the
// relay, the sink and the image writer.
package frame

import (
	"fmt"
	"image"
	"time"
)

// Layout is the channel layout of a frame's pixel buffer
type Layout string

const (
	// RGBA is 4 bytes per pixel, the layout every ffmpeg pipe in this repo uses
	RGBA Layout = "rgba"
	// BGR24 is 3 bytes per pixel
	BGR24 Layout = "bgr24"
)

// BytesPerPixel returns the pixel size of the layout
func (l Layout) BytesPerPixel() int {
	switch l {
	case RGBA:
		return 4
	case BGR24:
		return 3
	default:
		return 0
	}
}

// PixFmt returns the ffmpeg -pix_fmt name of the layout
func (l Layout) PixFmt() string {
	return string(l)
}

// Frame is one still image read from the video stream. A Frame is treated as
// immutable once produced; use Clone before handing it to a second owner.
type Frame struct {
	Width      int
	Height     int
	Layout     Layout
	Stride     int
	Pix        []byte
	CapturedAt time.Time
	Seq        uint64
}

// New allocates a zeroed frame
func New(width, height int, layout Layout) Frame {
	stride := width * layout.BytesPerPixel()
	return Frame{
		Width:  width,
		Height: height,
		Layout: layout,
		Stride: stride,
		Pix:    make([]byte, stride*height),
	}
}

// Size returns the byte length of a tightly packed frame of this shape
func Size(width, height int, layout Layout) int {
	return width * height * layout.BytesPerPixel()
}

// Empty reports whether the frame carries no pixels
func (f Frame) Empty() bool {
	return f.Width == 0 || f.Height == 0 || len(f.Pix) == 0
}

// Validate checks that the buffer is large enough for the declared shape
func (f Frame) Validate() error {
	bpp := f.Layout.BytesPerPixel()
	if bpp == 0 {
		return fmt.Errorf("unsupported layout %q", f.Layout)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	if f.Stride < f.Width*bpp {
		return fmt.Errorf("stride %d too small for width %d", f.Stride, f.Width)
	}
	if len(f.Pix) < f.Stride*(f.Height-1)+f.Width*bpp {
		return fmt.Errorf("pixel buffer too small: %d bytes for %dx%d", len(f.Pix), f.Width, f.Height)
	}
	return nil
}

// Clone returns a deep copy that shares no memory with f
func (f Frame) Clone() Frame {
	c := f
	if f.Pix != nil {
		c.Pix = make([]byte, len(f.Pix))
		copy(c.Pix, f.Pix)
	}
	return c
}

// Packed returns the pixel rows without stride padding. Returns f.Pix itself
// when the buffer is already tightly packed.
func (f Frame) Packed() []byte {
	row := f.Width * f.Layout.BytesPerPixel()
	if f.Stride == row && len(f.Pix) == row*f.Height {
		return f.Pix
	}
	out := make([]byte, row*f.Height)
	for y := 0; y < f.Height; y++ {
		copy(out[y*row:(y+1)*row], f.Pix[y*f.Stride:y*f.Stride+row])
	}
	return out
}

// RGBA converts the frame to an *image.RGBA. RGBA frames are copied, not aliased.
func (f Frame) RGBA() (*image.RGBA, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	switch f.Layout {
	case RGBA:
		for y := 0; y < f.Height; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+f.Width*4], f.Pix[y*f.Stride:])
		}
	case BGR24:
		for y := 0; y < f.Height; y++ {
			src := f.Pix[y*f.Stride:]
			dst := img.Pix[y*img.Stride:]
			for x := 0; x < f.Width; x++ {
				dst[x*4+0] = src[x*3+2]
				dst[x*4+1] = src[x*3+1]
				dst[x*4+2] = src[x*3+0]
				dst[x*4+3] = 0xff
			}
		}
	}
	return img, nil
}

// FromRGBA wraps a copy of img as an RGBA frame
func FromRGBA(img *image.RGBA, capturedAt time.Time) Frame {
	b := img.Bounds()
	f := New(b.Dx(), b.Dy(), RGBA)
	for y := 0; y < f.Height; y++ {
		start := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(f.Pix[y*f.Stride:(y+1)*f.Stride], img.Pix[start:start+f.Stride])
	}
	f.CapturedAt = capturedAt
	return f
}
