package view

import (
	"unicode"
	"unicode/utf8"

	"github.com/MatthiasKunnen/sessionlock/pkg/session"
	"github.com/MatthiasKunnen/sessionlock/pkg/surface"
)

// Key is a decoded key press.
type Key struct {
	// Rune is the character typed, 0 for keys without one.
	Rune rune
	Special
}

// Special is a key that edits the text field without typing a character.
type Special int

const (
	NoSpecial Special = iota
	Backspace
	// ClearLine empties the text field.
	ClearLine
	Enter
	Escape
)

// Action returns the message a press on w sends for surface id.
func Action(w Widget, id surface.ID) (session.Message, bool) {
	switch w {
	case Increment:
		return session.IncrementRequested{ID: id}, true
	case Decrement:
		return session.DecrementRequested{ID: id}, true
	case Unlock:
		return session.UnlockRequested{}, true
	default:
		return nil, false
	}
}

// Edit applies k to the content of the text field and reports whether it changed.
func Edit(text string, k Key) (string, bool) {
	switch k.Special {
	case Backspace:
		if text == "" {
			return text, false
		}
		_, size := utf8.DecodeLastRuneInString(text)
		return text[:len(text)-size], true
	case ClearLine:
		return "", text != ""
	case NoSpecial:
		if k.Rune == 0 || !unicode.IsPrint(k.Rune) {
			return text, false
		}
		return text + string(k.Rune), true
	default:
		return text, false
	}
}
