package overlay

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const lineHeight = 13 // basicfont.Face7x13

// TextFunc produces the widget text for a frame
type TextFunc func(st State) string

// TextWidget draws one line of text on an optional background
type TextWidget struct {
	*BaseWidget
	text      TextFunc
	textColor color.RGBA
	bgColor   *color.RGBA
	padding   int
}

// NewTextWidget creates a text widget at (x, y)
func NewTextWidget(id string, x, y int, text TextFunc) *TextWidget {
	return &TextWidget{
		BaseWidget: NewBaseWidget(id, x, y, 1.0),
		text:       text,
		textColor:  color.RGBA{255, 255, 255, 255},
		bgColor:    &color.RGBA{0, 0, 0, 160},
		padding:    4,
	}
}

// SetColor sets the text color
func (w *TextWidget) SetColor(c color.RGBA) { w.textColor = c }

// SetBackground sets the background color (nil for transparent)
func (w *TextWidget) SetBackground(c *color.RGBA) { w.bgColor = c }

// Render draws the text widget
func (w *TextWidget) Render(img *image.RGBA, st State) error {
	if !w.IsEnabled() || w.text == nil {
		return nil
	}
	s := w.text(st)
	if s == "" {
		return nil
	}

	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, s).Ceil()
	boxW := textWidth + w.padding*2
	boxH := lineHeight + w.padding*2
	x, y := w.origin(img.Bounds(), boxW, boxH)

	if w.bgColor != nil {
		DrawRectangle(img, x, y, boxW, boxH, *w.bgColor, w.opacity)
	}

	textImg := image.NewRGBA(image.Rect(0, 0, textWidth, lineHeight))
	d := &font.Drawer{
		Dst:  textImg,
		Src:  image.NewUniform(w.textColor),
		Face: face,
		Dot:  fixed.Point26_6{X: 0, Y: fixed.I(face.Ascent)},
	}
	d.DrawString(s)
	BlendImage(img, textImg, x+w.padding, y+w.padding, w.opacity)
	return nil
}

// RecordingWidget shows a red dot with the elapsed session time while
// recording and nothing otherwise
type RecordingWidget struct {
	*TextWidget
}

// NewRecordingWidget creates the indicator at (x, y)
func NewRecordingWidget(id string, x, y int) *RecordingWidget {
	tw := NewTextWidget(id, x, y, func(st State) string {
		if !st.Recording {
			return ""
		}
		secs := int(st.Elapsed.Seconds())
		return fmt.Sprintf("    REC %02d:%02d  %d frames", secs/60, secs%60, st.Frames)
	})
	return &RecordingWidget{TextWidget: tw}
}

// Render draws the text box, then the dot over its left padding
func (w *RecordingWidget) Render(img *image.RGBA, st State) error {
	if !w.IsEnabled() || !st.Recording {
		return nil
	}
	if err := w.TextWidget.Render(img, st); err != nil {
		return err
	}

	s := w.text(st)
	boxW := font.MeasureString(basicfont.Face7x13, s).Ceil() + w.padding*2
	boxH := lineHeight + w.padding*2
	x, y := w.origin(img.Bounds(), boxW, boxH)
	r := lineHeight / 3
	DrawDisc(img, x+w.padding+r+2, y+boxH/2, r, color.RGBA{220, 30, 30, 255}, 1.0)
	return nil
}

// StatsText formats the preview rate line
func StatsText(st State) string {
	return fmt.Sprintf("%.1f/%.0f fps  dropped %d", st.FPS, st.TargetFPS, st.Dropped)
}
