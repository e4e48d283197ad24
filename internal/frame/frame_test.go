package frame

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClone_DoesNotAlias(t *testing.T) {
	f := New(2, 2, RGBA)
	f.Pix[0] = 7
	f.Seq = 9

	c := f.Clone()
	c.Pix[0] = 42

	assert.Equal(t, byte(7), f.Pix[0])
	assert.Equal(t, uint64(9), c.Seq)
	assert.Len(t, c.Pix, len(f.Pix))
}

func TestValidate(t *testing.T) {
	require.NoError(t, New(4, 3, RGBA).Validate())
	require.NoError(t, New(4, 3, BGR24).Validate())

	short := New(4, 3, RGBA)
	short.Pix = short.Pix[:10]
	assert.Error(t, short.Validate())

	assert.Error(t, Frame{Width: 1, Height: 1, Layout: "yuv", Pix: []byte{1}}.Validate())
	assert.Error(t, Frame{Layout: RGBA}.Validate())
}

func TestRGBA_FromBGR24(t *testing.T) {
	f := New(1, 1, BGR24)
	f.Pix[0], f.Pix[1], f.Pix[2] = 10, 20, 30 // B G R

	img, err := f.RGBA()
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 30, G: 20, B: 10, A: 255}, img.RGBAAt(0, 0))
}

func TestFromRGBA_RoundTripsPixels(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.SetRGBA(2, 1, color.RGBA{R: 1, G: 2, B: 3, A: 4})
	now := time.Now()

	f := FromRGBA(img, now)
	assert.Equal(t, 3, f.Width)
	assert.Equal(t, 2, f.Height)
	assert.Equal(t, now, f.CapturedAt)

	back, err := f.RGBA()
	require.NoError(t, err)
	assert.Equal(t, img.Pix, back.Pix)
}

func TestPacked_StripsStride(t *testing.T) {
	f := Frame{Width: 1, Height: 2, Layout: RGBA, Stride: 8, Pix: []byte{
		1, 2, 3, 4, 0, 0, 0, 0,
		5, 6, 7, 8, 0, 0, 0, 0,
	}}
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, f.Packed())

	packed := New(2, 2, RGBA)
	assert.Equal(t, &packed.Pix[0], &packed.Packed()[0])
}
