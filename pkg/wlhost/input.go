package wlhost

import (
	"github.com/MatthiasKunnen/go-wayland/wayland/client"
	"github.com/MatthiasKunnen/sessionlock/pkg/session"
	"github.com/MatthiasKunnen/sessionlock/pkg/surface"
	"github.com/MatthiasKunnen/sessionlock/pkg/view"
)

// PointerEvent is the raw host event for pointer input on a lock surface.
type PointerEvent struct {
	Surface surface.ID
	X, Y    float64
	// Button is the evdev button code, 0 for motion and focus changes.
	Button  uint32
	Pressed bool
}

// KeyEvent is the raw host event for a key on the lock surface with keyboard focus.
type KeyEvent struct {
	Surface surface.ID
	Code    uint32
	Pressed bool
}

func (h *Host) setPointerHandlers() {
	h.pointer.SetEnterHandler(func(e client.PointerEnterEvent) {
		if e.Surface == nil {
			return
		}
		h.pointerFocus = surface.ID(e.Surface.ID())
		h.pointerX, h.pointerY = e.SurfaceX, e.SurfaceY
		h.route(PointerEvent{Surface: h.pointerFocus, X: h.pointerX, Y: h.pointerY})
	})
	h.pointer.SetLeaveHandler(func(e client.PointerLeaveEvent) {
		h.pointerFocus = 0
	})
	h.pointer.SetMotionHandler(func(e client.PointerMotionEvent) {
		h.pointerX, h.pointerY = e.SurfaceX, e.SurfaceY
		h.route(PointerEvent{Surface: h.pointerFocus, X: h.pointerX, Y: h.pointerY})
	})
	h.pointer.SetButtonHandler(func(e client.PointerButtonEvent) {
		pressed := e.State == uint32(client.PointerButtonStatePressed)
		h.route(PointerEvent{
			Surface: h.pointerFocus,
			X:       h.pointerX,
			Y:       h.pointerY,
			Button:  e.Button,
			Pressed: pressed,
		})

		if pressed && e.Button == btnLeft {
			h.press(h.pointerFocus, h.pointerX, h.pointerY)
		}
	})
}

// press handles a primary button press at surface coordinates x, y.
func (h *Host) press(id surface.ID, x, y float64) {
	ls, ok := h.surfaces[id]
	if !ok || !ls.configured || h.session == nil {
		return
	}

	widget, ok := ls.layout.HitTest(x, y)
	if !ok {
		return
	}

	if widget == view.Input {
		h.focusKeyboard(id)
		return
	}

	if msg, ok := view.Action(widget, id); ok {
		h.session.Dispatch(msg)
	}
}

// focusKeyboard moves the text field focus to id and redraws the surfaces whose focus changed.
func (h *Host) focusKeyboard(id surface.ID) {
	if h.keyboardFocus == id {
		return
	}

	previous := h.keyboardFocus
	h.keyboardFocus = id
	h.Redraw(previous)
	h.Redraw(id)
}

func (h *Host) setKeyboardHandlers() {
	h.keyboard.SetKeymapHandler(func(e client.KeyboardKeymapEvent) {
		h.closeFd(e.Fd)
	})
	h.keyboard.SetEnterHandler(func(e client.KeyboardEnterEvent) {
		if e.Surface == nil {
			return
		}
		h.focusKeyboard(surface.ID(e.Surface.ID()))
	})
	h.keyboard.SetModifiersHandler(func(e client.KeyboardModifiersEvent) {
		h.modifiers = e.ModsDepressed | e.ModsLatched | e.ModsLocked
	})
	h.keyboard.SetKeyHandler(func(e client.KeyboardKeyEvent) {
		pressed := e.State == uint32(client.KeyboardKeyStatePressed)
		h.route(KeyEvent{Surface: h.keyboardFocus, Code: e.Key, Pressed: pressed})

		if pressed {
			h.typeKey(h.keyboardFocus, e.Key)
		}
	})
}

// typeKey applies a pressed key to the text field of id.
func (h *Host) typeKey(id surface.ID, code uint32) {
	if _, ok := h.surfaces[id]; !ok || h.session == nil {
		return
	}

	key, ok := decodeKey(code, h.modifiers)
	if !ok {
		return
	}

	current, _ := h.session.Render(id)
	text, changed := view.Edit(current.Text, key)
	if changed {
		h.session.Dispatch(session.TextChanged{ID: id, Text: text})
	}
}
