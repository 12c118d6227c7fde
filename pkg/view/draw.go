package view

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"unicode/utf8"

	"github.com/MatthiasKunnen/sessionlock/pkg/config"
	"github.com/MatthiasKunnen/sessionlock/pkg/surface"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	placeholder = "hello"
	loading     = "loading..."
)

// Theme holds the parsed colors used by Draw.
type Theme struct {
	Background color.RGBA
	Foreground color.RGBA
	Button     color.RGBA
	Input      color.RGBA
	Focus      color.RGBA
}

// NewTheme parses the colors of a config.Theme.
func NewTheme(t config.Theme) (Theme, error) {
	var result Theme
	for _, c := range []struct {
		dst *color.RGBA
		src string
	}{
		{&result.Background, t.Background},
		{&result.Foreground, t.Foreground},
		{&result.Button, t.Button},
		{&result.Input, t.Input},
		{&result.Focus, t.Focus},
	} {
		parsed, err := config.ParseColor(c.src)
		if err != nil {
			return Theme{}, err
		}
		*c.dst = parsed
	}

	return result, nil
}

// Snapshot is the state a surface is painted from.
type Snapshot struct {
	State surface.State
	// Ready is false while the surface has no state. Placeholders are shown instead.
	Ready bool
}

// Draw paints a surface into dst, which must cover the layout's surface size.
// focused marks the text field as having keyboard focus.
func Draw(dst *image.RGBA, l Layout, snap Snapshot, theme Theme, focused bool) {
	canvas := dst
	if l.Scale > 1 {
		canvas = image.NewRGBA(image.Rectangle{Max: l.Size})
		// Covers the remainder when the surface size is not a multiple of the scale.
		draw.Draw(dst, dst.Bounds(), image.NewUniform(theme.Background), image.Point{}, draw.Src)
	}

	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(theme.Background), image.Point{}, draw.Src)

	for _, p := range l.Widgets {
		switch p.Widget {
		case Increment:
			drawButton(canvas, p.Rect, "Increment", theme)
		case Unlock:
			drawButton(canvas, p.Rect, "Unlock", theme)
		case Decrement:
			drawButton(canvas, p.Rect, "Decrement", theme)
		case Counter:
			text := loading
			if snap.Ready {
				text = strconv.Itoa(snap.State.Counter)
			}
			drawZoomed(canvas, p.Rect, text, theme.Foreground, counterZoom)
		case Input:
			drawInput(canvas, p.Rect, snap, theme, focused)
		case Label:
			text := loading
			if snap.Ready {
				text = snap.State.Text
			}
			drawText(canvas, p.Rect, fit("text is "+text, p.Rect.Dx(), false), theme.Foreground, true)
		}
	}

	if canvas != dst {
		xdraw.NearestNeighbor.Scale(
			dst,
			image.Rectangle{Max: l.Size.Mul(l.Scale)},
			canvas,
			canvas.Bounds(),
			draw.Src,
			nil,
		)
	}
}

func drawButton(dst *image.RGBA, r image.Rectangle, label string, theme Theme) {
	draw.Draw(dst, r, image.NewUniform(theme.Button), image.Point{}, draw.Src)
	drawText(dst, r, label, theme.Foreground, true)
}

func drawInput(dst *image.RGBA, r image.Rectangle, snap Snapshot, theme Theme, focused bool) {
	border := theme.Button
	if focused {
		border = theme.Focus
	}
	draw.Draw(dst, r, image.NewUniform(border), image.Point{}, draw.Src)
	draw.Draw(dst, r.Inset(1), image.NewUniform(theme.Input), image.Point{}, draw.Src)

	inner := r.Inset(buttonPadY)
	text, c := snap.State.Text, color.Color(theme.Foreground)
	switch {
	case !snap.Ready:
		text, c = loading, dim(theme.Foreground)
	case text == "":
		text, c = placeholder, dim(theme.Foreground)
	}

	shown := fit(text, inner.Dx(), true)
	drawText(dst, inner, shown, c, false)

	if focused && snap.Ready {
		x := inner.Min.X
		if snap.State.Text != "" {
			x += utf8.RuneCountInString(shown) * glyphWidth
		}
		caret := image.Rect(x, inner.Min.Y, x+1, inner.Min.Y+glyphHeight).Intersect(inner)
		draw.Draw(dst, caret, image.NewUniform(theme.Focus), image.Point{}, draw.Src)
	}
}

// drawText draws s on one line inside r, vertically centred.
func drawText(dst *image.RGBA, r image.Rectangle, s string, c color.Color, center bool) {
	x := r.Min.X
	if center {
		x += (r.Dx() - utf8.RuneCountInString(s)*glyphWidth) / 2
	}
	y := r.Min.Y + (r.Dy()-glyphHeight)/2 + glyphAscent

	d := font.Drawer{
		Dst:  clip{dst, r},
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// drawZoomed draws s magnified by zoom, centred in r.
func drawZoomed(dst *image.RGBA, r image.Rectangle, s string, c color.Color, zoom int) {
	small := image.NewRGBA(image.Rect(0, 0, max(r.Dx()/zoom, 1), glyphHeight))
	drawText(small, small.Bounds(), fit(s, small.Bounds().Dx(), false), c, true)

	xdraw.NearestNeighbor.Scale(
		dst,
		image.Rectangle{Min: r.Min, Max: r.Min.Add(small.Bounds().Size().Mul(zoom))},
		small,
		small.Bounds(),
		draw.Over,
		nil,
	)
}

// fit shortens s to at most width pixels. tail keeps the end of s, otherwise the start is kept
// and the cut is marked.
func fit(s string, width int, tail bool) string {
	limit := width / glyphWidth
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit <= 0 {
		return ""
	}

	if tail {
		return string(runes[len(runes)-limit:])
	}

	return fmt.Sprintf("%s~", string(runes[:limit-1]))
}

func dim(c color.RGBA) color.RGBA {
	return color.RGBA{R: c.R / 2, G: c.G / 2, B: c.B / 2, A: c.A}
}

// clip restricts drawing to a rectangle of an image.
type clip struct {
	*image.RGBA
	r image.Rectangle
}

func (c clip) Set(x, y int, col color.Color) {
	if image.Pt(x, y).In(c.r) {
		c.RGBA.Set(x, y, col)
	}
}

func (c clip) Bounds() image.Rectangle {
	return c.r.Intersect(c.RGBA.Bounds())
}
