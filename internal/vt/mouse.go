package vt

import "fmt"

// MouseButton identifies the button of a mouse event.
type MouseButton uint8

const (
	MouseLeft MouseButton = iota
	MouseMiddle
	MouseRight
	MouseWheelUp
	MouseWheelDown
	MouseNoButton
)

// MouseEvent is a normalized mouse action in cell coordinates.
type MouseEvent struct {
	Button  MouseButton
	X       int // 0-based column
	Y       int // 0-based row
	Press   bool
	Motion  bool
	Shift   bool
	Alt     bool
	Control bool
}

// EncodeMouseEvent renders the event in the encoding the application asked
// for, or "" when the active protocol does not report it.
func (t *Terminal) EncodeMouseEvent(ev MouseEvent) string {
	switch t.mouseProtocol {
	case MouseNone:
		return ""
	case MouseClicks:
		if ev.Motion {
			return ""
		}
	case MouseButtonMotion:
		if ev.Motion && ev.Button == MouseNoButton {
			return ""
		}
	case MouseAnyMotion:
		// everything reports
	}

	btn := encodeButtonBits(ev)

	if t.mouseEncoding == MouseEncodingSGR {
		action := "M"
		if !ev.Press && !ev.Motion && ev.Button < MouseWheelUp {
			action = "m"
		}
		return fmt.Sprintf("\x1b[<%d;%d;%d%s", btn, ev.X+1, ev.Y+1, action)
	}

	// Legacy X10 encoding caps coordinates at 223
	x := ev.X + 1
	y := ev.Y + 1
	if x > 223 {
		x = 223
	}
	if y > 223 {
		y = 223
	}
	code := btn
	if !ev.Press && !ev.Motion && ev.Button < MouseWheelUp {
		code = 3 // release
	}
	return fmt.Sprintf("\x1b[M%c%c%c", byte(32+code), byte(32+x), byte(32+y))
}

func encodeButtonBits(ev MouseEvent) int {
	var btn int
	switch ev.Button {
	case MouseLeft:
		btn = 0
	case MouseMiddle:
		btn = 1
	case MouseRight:
		btn = 2
	case MouseWheelUp:
		btn = 64
	case MouseWheelDown:
		btn = 65
	case MouseNoButton:
		btn = 3
	}
	if ev.Shift {
		btn |= 4
	}
	if ev.Alt {
		btn |= 8
	}
	if ev.Control {
		btn |= 16
	}
	if ev.Motion {
		btn |= 32
	}
	return btn
}
