package view

import (
	"image"
)

// Widget is an element of a lock surface.
type Widget int

const (
	Increment Widget = iota
	Unlock
	Counter
	Input
	Label
	Decrement
)

func (w Widget) String() string {
	switch w {
	case Increment:
		return "increment"
	case Unlock:
		return "unlock"
	case Counter:
		return "counter"
	case Input:
		return "input"
	case Label:
		return "label"
	case Decrement:
		return "decrement"
	default:
		return "unknown"
	}
}

// Interactive reports whether the widget reacts to pointer presses.
func (w Widget) Interactive() bool {
	switch w {
	case Increment, Unlock, Input, Decrement:
		return true
	default:
		return false
	}
}

const (
	glyphWidth   = 7
	glyphHeight  = 13
	glyphAscent  = 11
	counterZoom  = 4
	padding      = 20
	spacing      = 10
	buttonPadX   = 12
	buttonPadY   = 6
	inputWidth   = 240
	buttonHeight = glyphHeight + 2*buttonPadY
)

var column = []Widget{Increment, Unlock, Counter, Input, Label, Decrement}

// Placed is a widget and the rectangle it occupies in logical coordinates.
type Placed struct {
	Widget Widget
	Rect   image.Rectangle
}

// Layout is the arrangement of a surface. Logical coordinates are surface pixels divided by
// Scale.
type Layout struct {
	Scale   int
	Size    image.Point
	Widgets []Placed
}

// AutoScale picks a scale for an output height.
func AutoScale(height int) int {
	switch {
	case height >= 2000:
		return 3
	case height >= 1200:
		return 2
	default:
		return 1
	}
}

// NewLayout arranges the widgets of a width x height surface.
// A scale below 1 is replaced by AutoScale(height).
func NewLayout(width, height, scale int) Layout {
	if scale < 1 {
		scale = AutoScale(height)
	}

	size := image.Pt(width/scale, height/scale)
	l := Layout{
		Scale:   scale,
		Size:    size,
		Widgets: make([]Placed, 0, len(column)),
	}

	total := 0
	for i, w := range column {
		if i > 0 {
			total += spacing
		}
		total += widgetSize(w).Y
	}

	// The column is centred vertically; any overflow is clipped at the bottom, never above the
	// padding.
	y := max(padding, (size.Y-total)/2)
	for _, w := range column {
		ws := widgetSize(w)
		x := max(padding, (size.X-ws.X)/2)
		l.Widgets = append(l.Widgets, Placed{
			Widget: w,
			Rect:   image.Rect(x, y, x+ws.X, y+ws.Y),
		})
		y += ws.Y + spacing
	}

	return l
}

// Rect returns the rectangle of w.
func (l Layout) Rect(w Widget) image.Rectangle {
	for _, p := range l.Widgets {
		if p.Widget == w {
			return p.Rect
		}
	}

	return image.Rectangle{}
}

// HitTest returns the interactive widget under the surface coordinates x, y.
func (l Layout) HitTest(x, y float64) (Widget, bool) {
	scale := float64(max(l.Scale, 1))
	pt := image.Pt(int(x/scale), int(y/scale))

	for _, p := range l.Widgets {
		if p.Widget.Interactive() && pt.In(p.Rect) {
			return p.Widget, true
		}
	}

	return 0, false
}

func widgetSize(w Widget) image.Point {
	switch w {
	case Increment:
		return buttonSize("Increment")
	case Unlock:
		return buttonSize("Unlock")
	case Decrement:
		return buttonSize("Decrement")
	case Counter:
		return image.Pt(inputWidth, glyphHeight*counterZoom)
	case Input:
		return image.Pt(inputWidth, buttonHeight)
	case Label:
		return image.Pt(inputWidth, glyphHeight)
	default:
		return image.Point{}
	}
}

func buttonSize(label string) image.Point {
	return image.Pt(len(label)*glyphWidth+2*buttonPadX, buttonHeight)
}
