// Package overlay draws status widgets onto preview frames. Recorded frames
// are never touched; only the downscaled preview copy is.
package overlay

import (
	"image"
	"image/color"
	"time"
)

// State is what widgets render
type State struct {
	Recording bool
	SessionID string
	Elapsed   time.Duration
	Frames    uint64
	TargetFPS float64
	FPS       float64
	Dropped   uint64
	Now       time.Time
}

// Widget is one renderable overlay element
type Widget interface {
	// ID returns the unique identifier for this widget instance
	ID() string

	// Render draws the widget onto img
	Render(img *image.RGBA, st State) error

	IsEnabled() bool
	SetEnabled(enabled bool)
}

// BaseWidget provides position, opacity and the enabled flag
type BaseWidget struct {
	id      string
	enabled bool
	x       int
	y       int
	opacity float64 // 0.0 to 1.0
}

// NewBaseWidget creates a new base widget
func NewBaseWidget(id string, x, y int, opacity float64) *BaseWidget {
	w := &BaseWidget{id: id, enabled: true, x: x, y: y}
	w.SetOpacity(opacity)
	return w
}

// ID returns the widget's unique identifier
func (w *BaseWidget) ID() string { return w.id }

// IsEnabled returns whether the widget should be rendered
func (w *BaseWidget) IsEnabled() bool { return w.enabled }

// SetEnabled sets whether the widget should be rendered
func (w *BaseWidget) SetEnabled(enabled bool) { w.enabled = enabled }

// SetPosition sets the top-left corner. Negative values anchor to the
// right or bottom edge.
func (w *BaseWidget) SetPosition(x, y int) {
	w.x = x
	w.y = y
}

// SetOpacity sets the widget's opacity (0.0 to 1.0)
func (w *BaseWidget) SetOpacity(opacity float64) {
	if opacity < 0.0 {
		opacity = 0.0
	}
	if opacity > 1.0 {
		opacity = 1.0
	}
	w.opacity = opacity
}

// origin resolves the widget position for a box of size wd x ht inside b
func (w *BaseWidget) origin(b image.Rectangle, wd, ht int) (int, int) {
	x, y := b.Min.X+w.x, b.Min.Y+w.y
	if w.x < 0 {
		x = b.Max.X + w.x - wd
	}
	if w.y < 0 {
		y = b.Max.Y + w.y - ht
	}
	return x, y
}

// BlendImage alpha-blends src onto dst at (x, y), scaling src alpha by
// opacity. Pixels outside dst are clipped.
func BlendImage(dst *image.RGBA, src *image.RGBA, x, y int, opacity float64) {
	sb := src.Bounds()
	db := dst.Bounds()

	for sy := sb.Min.Y; sy < sb.Max.Y; sy++ {
		dy := y + sy - sb.Min.Y
		if dy < db.Min.Y || dy >= db.Max.Y {
			continue
		}
		for sx := sb.Min.X; sx < sb.Max.X; sx++ {
			dx := x + sx - sb.Min.X
			if dx < db.Min.X || dx >= db.Max.X {
				continue
			}

			si := src.PixOffset(sx, sy)
			a := float64(src.Pix[si+3]) / 255 * opacity
			if a <= 0 {
				continue
			}
			di := dst.PixOffset(dx, dy)
			for c := 0; c < 3; c++ {
				dst.Pix[di+c] = uint8(float64(src.Pix[si+c])*a + float64(dst.Pix[di+c])*(1-a) + 0.5)
			}
			dst.Pix[di+3] = uint8(a*255 + float64(dst.Pix[di+3])*(1-a) + 0.5)
		}
	}
}

// DrawRectangle blends a filled rectangle onto dst
func DrawRectangle(dst *image.RGBA, x, y, width, height int, c color.RGBA, opacity float64) {
	if width <= 0 || height <= 0 {
		return
	}
	tmp := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(tmp.Pix); i += 4 {
		tmp.Pix[i+0] = c.R
		tmp.Pix[i+1] = c.G
		tmp.Pix[i+2] = c.B
		tmp.Pix[i+3] = c.A
	}
	BlendImage(dst, tmp, x, y, opacity)
}

// DrawDisc blends a filled circle of radius r centered at (cx, cy)
func DrawDisc(dst *image.RGBA, cx, cy, r int, c color.RGBA, opacity float64) {
	size := 2*r + 1
	tmp := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			if x*x+y*y <= r*r {
				tmp.SetRGBA(x+r, y+r, c)
			}
		}
	}
	BlendImage(dst, tmp, cx-r, cy-r, opacity)
}
