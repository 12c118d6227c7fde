package wlhost

import (
	"github.com/MatthiasKunnen/sessionlock/pkg/view"
)

// Evdev key codes as delivered by wl_keyboard.key, see linux/input-event-codes.h.
const (
	keyEsc       = 1
	keyBackspace = 14
	keyEnter     = 28
	keyU         = 22
	keyKPEnter   = 96
	btnLeft      = 0x110
)

// Modifier masks of the default xkb keymap.
const (
	modShift   = 1 << 0
	modCapsLck = 1 << 1
	modControl = 1 << 2
)

type keyPair struct {
	plain, shifted rune
}

// usLayout maps evdev codes to the characters of a US layout.
var usLayout = map[uint32]keyPair{
	2: {'1', '!'}, 3: {'2', '@'}, 4: {'3', '#'}, 5: {'4', '$'}, 6: {'5', '%'},
	7: {'6', '^'}, 8: {'7', '&'}, 9: {'8', '*'}, 10: {'9', '('}, 11: {'0', ')'},
	12: {'-', '_'}, 13: {'=', '+'},
	16: {'q', 'Q'}, 17: {'w', 'W'}, 18: {'e', 'E'}, 19: {'r', 'R'}, 20: {'t', 'T'},
	21: {'y', 'Y'}, 22: {'u', 'U'}, 23: {'i', 'I'}, 24: {'o', 'O'}, 25: {'p', 'P'},
	26: {'[', '{'}, 27: {']', '}'},
	30: {'a', 'A'}, 31: {'s', 'S'}, 32: {'d', 'D'}, 33: {'f', 'F'}, 34: {'g', 'G'},
	35: {'h', 'H'}, 36: {'j', 'J'}, 37: {'k', 'K'}, 38: {'l', 'L'},
	39: {';', ':'}, 40: {'\'', '"'}, 41: {'`', '~'}, 43: {'\\', '|'},
	44: {'z', 'Z'}, 45: {'x', 'X'}, 46: {'c', 'C'}, 47: {'v', 'V'}, 48: {'b', 'B'},
	49: {'n', 'N'}, 50: {'m', 'M'},
	51: {',', '<'}, 52: {'.', '>'}, 53: {'/', '?'},
	57: {' ', ' '},
}

// decodeKey turns an evdev key code and the active modifiers into a key for the text field.
// Keymaps sent by the compositor are not interpreted; a US layout is assumed.
func decodeKey(code uint32, mods uint32) (view.Key, bool) {
	switch code {
	case keyBackspace:
		return view.Key{Special: view.Backspace}, true
	case keyEnter, keyKPEnter:
		return view.Key{Special: view.Enter}, true
	case keyEsc:
		return view.Key{Special: view.Escape}, true
	}

	if mods&modControl != 0 {
		if code == keyU {
			return view.Key{Special: view.ClearLine}, true
		}
		return view.Key{}, false
	}

	pair, ok := usLayout[code]
	if !ok {
		return view.Key{}, false
	}

	shifted := mods&modShift != 0
	if mods&modCapsLck != 0 && pair.plain >= 'a' && pair.plain <= 'z' {
		shifted = !shifted
	}

	if shifted {
		return view.Key{Rune: pair.shifted}, true
	}

	return view.Key{Rune: pair.plain}, true
}
