package input

import (
	"fmt"

	"github.com/ellery/kiln/internal/vt"
	"github.com/gdamore/tcell/v2"
)

// EncodeKey renders an unbound key event into the byte sequence the pane's
// application expects, honoring DECCKM for the cursor keys.
func EncodeKey(key KeyCode, mods Modifiers, modes vt.InputModes) []byte {
	if key.Key == tcell.KeyRune {
		r := key.Rune
		if mods&ModCtrl != 0 {
			if b, ok := ctrlByte(r); ok {
				return maybeAltPrefix(mods, []byte{b})
			}
		}
		return maybeAltPrefix(mods, []byte(string(r)))
	}

	cursor := func(final byte) []byte {
		if mods != 0 && mods != ModAlt {
			// Modified arrows use the CSI 1;<mods> form
			return []byte(fmt.Sprintf("\x1b[1;%d%c", 1+xtermMods(mods), final))
		}
		if modes.CursorKeysApp {
			return maybeAltPrefix(mods, []byte{0x1b, 'O', final})
		}
		return maybeAltPrefix(mods, []byte{0x1b, '[', final})
	}

	switch key.Key {
	case tcell.KeyEnter:
		return maybeAltPrefix(mods, []byte{'\r'})
	case tcell.KeyTab:
		if mods&ModShift != 0 {
			return []byte("\x1b[Z")
		}
		return []byte{'\t'}
	case tcell.KeyBacktab:
		return []byte("\x1b[Z")
	case tcell.KeyEscape:
		return []byte{0x1b}
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		return maybeAltPrefix(mods, []byte{0x7f})
	case tcell.KeyUp:
		return cursor('A')
	case tcell.KeyDown:
		return cursor('B')
	case tcell.KeyRight:
		return cursor('C')
	case tcell.KeyLeft:
		return cursor('D')
	case tcell.KeyHome:
		return cursor('H')
	case tcell.KeyEnd:
		return cursor('F')
	case tcell.KeyPgUp:
		return []byte("\x1b[5~")
	case tcell.KeyPgDn:
		return []byte("\x1b[6~")
	case tcell.KeyInsert:
		return []byte("\x1b[2~")
	case tcell.KeyDelete:
		return []byte("\x1b[3~")
	case tcell.KeyF1:
		return []byte("\x1bOP")
	case tcell.KeyF2:
		return []byte("\x1bOQ")
	case tcell.KeyF3:
		return []byte("\x1bOR")
	case tcell.KeyF4:
		return []byte("\x1bOS")
	case tcell.KeyF5:
		return []byte("\x1b[15~")
	case tcell.KeyF6:
		return []byte("\x1b[17~")
	case tcell.KeyF7:
		return []byte("\x1b[18~")
	case tcell.KeyF8:
		return []byte("\x1b[19~")
	case tcell.KeyF9:
		return []byte("\x1b[20~")
	case tcell.KeyF10:
		return []byte("\x1b[21~")
	case tcell.KeyF11:
		return []byte("\x1b[23~")
	case tcell.KeyF12:
		return []byte("\x1b[24~")
	}

	// tcell reports bare control characters as dedicated keys
	if key.Key >= tcell.KeyCtrlA && key.Key <= tcell.KeyCtrlZ {
		return maybeAltPrefix(mods, []byte{byte(key.Key)})
	}
	return nil
}

// ctrlByte maps a rune to its control byte.
func ctrlByte(r rune) (byte, bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return byte(r - 'a' + 1), true
	case r >= 'A' && r <= 'Z':
		return byte(r - 'A' + 1), true
	case r == ' ', r == '@':
		return 0, true
	case r == '[':
		return 0x1b, true
	case r == '\\':
		return 0x1c, true
	case r == ']':
		return 0x1d, true
	case r == '^':
		return 0x1e, true
	case r == '_':
		return 0x1f, true
	}
	return 0, false
}

// xtermMods computes the xterm modifier parameter bits.
func xtermMods(mods Modifiers) int {
	n := 0
	if mods&ModShift != 0 {
		n |= 1
	}
	if mods&ModAlt != 0 {
		n |= 2
	}
	if mods&ModCtrl != 0 {
		n |= 4
	}
	return n
}

// maybeAltPrefix prepends ESC for Alt-modified keys.
func maybeAltPrefix(mods Modifiers, seq []byte) []byte {
	if mods&ModAlt != 0 {
		return append([]byte{0x1b}, seq...)
	}
	return seq
}
