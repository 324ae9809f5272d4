package vt

import (
	"fmt"
	"log"

	"github.com/ellery/kiln/internal/cell"
)

// hasPrivateMarker reports whether the CSI carried a leading private byte.
func hasPrivateMarker(intermediates []byte, marker byte) bool {
	for _, b := range intermediates {
		if b == marker {
			return true
		}
	}
	return false
}

// CsiDispatch applies a complete CSI sequence. Unknown sequences are logged
// and dropped; parsing always continues.
func (t *Terminal) CsiDispatch(params []CSIParam, intermediates []byte, final byte) {
	if hasPrivateMarker(intermediates, '?') {
		switch final {
		case 'h':
			t.decSet(params, true)
		case 'l':
			t.decSet(params, false)
		case 'c':
			// DA with ? marker: primary DA from some emitters
			t.writeAnswer("\x1b[?6c")
		default:
			log.Printf("vt: ignoring private CSI ?%c", final)
		}
		return
	}

	first := func(def int64) int {
		if len(params) == 0 {
			return int(def)
		}
		return int(params[0].First(def))
	}
	second := func(def int64) int {
		if len(params) < 2 {
			return int(def)
		}
		return int(params[1].First(def))
	}

	scr := t.Screen()
	rows := scr.PhysicalRows()
	cols := scr.PhysicalCols()

	switch final {
	case 'A': // CUU
		t.moveCursorBy(0, -max1(first(1)))
	case 'B': // CUD
		t.moveCursorBy(0, max1(first(1)))
	case 'C': // CUF
		t.moveCursorBy(max1(first(1)), 0)
	case 'D': // CUB
		t.moveCursorBy(-max1(first(1)), 0)
	case 'E': // CNL
		t.moveCursorBy(0, max1(first(1)))
		t.cursorX = 0
	case 'F': // CPL
		t.moveCursorBy(0, -max1(first(1)))
		t.cursorX = 0
	case 'G', '`': // CHA / HPA
		t.moveTo(first(1)-1, t.cursorY)
	case 'H', 'f': // CUP / HVP, 1-based
		t.moveTo(second(1)-1, first(1)-1)
	case 'd': // VPA
		t.moveTo(t.cursorX, first(1)-1)
	case 'I': // CHT
		for i := 0; i < max1(first(1)); i++ {
			t.cursorX = t.nextTabStop(t.cursorX)
		}
	case 'Z': // CBT
		for i := 0; i < max1(first(1)); i++ {
			t.cursorX = t.prevTabStop(t.cursorX)
		}
	case 'J':
		t.eraseInDisplay(first(0))
	case 'K':
		t.eraseInLine(first(0))
	case 'L': // IL
		if t.cursorY >= t.scrollTop && t.cursorY < t.scrollBottom {
			scr.ScrollDown(t.cursorY, t.scrollBottom, max1(first(1)), t.pen, t.nextSeq())
		}
	case 'M': // DL
		if t.cursorY >= t.scrollTop && t.cursorY < t.scrollBottom {
			scr.ScrollUp(t.cursorY, t.scrollBottom, max1(first(1)), t.pen, t.nextSeq())
		}
	case '@': // ICH
		if line := scr.VisibleLine(t.cursorY); line != nil {
			line.InsertCells(t.cursorX, max1(first(1)), t.pen, t.nextSeq())
		}
	case 'P': // DCH
		if line := scr.VisibleLine(t.cursorY); line != nil {
			line.DeleteCells(t.cursorX, max1(first(1)), t.pen, t.nextSeq())
		}
	case 'X': // ECH
		n := max1(first(1))
		end := t.cursorX + n
		if end > cols {
			end = cols
		}
		scr.ClearLine(t.cursorY, t.cursorX, end, t.pen, t.nextSeq())
	case 'S': // SU
		scr.ScrollUp(t.scrollTop, t.scrollBottom, max1(first(1)), t.pen, t.nextSeq())
	case 'T': // SD
		scr.ScrollDown(t.scrollTop, t.scrollBottom, max1(first(1)), t.pen, t.nextSeq())
	case 'm': // SGR
		t.applySGR(params)
	case 'r': // DECSTBM; bottom is treated as exclusive
		top := first(1) - 1
		bottom := second(int64(rows + 1)) - 1
		if bottom > rows {
			bottom = rows
		}
		if top < 0 {
			top = 0
		}
		if top < bottom {
			t.scrollTop = top
			t.scrollBottom = bottom
			t.moveTo(0, 0)
		}
	case 'h': // SM
		t.ansiSet(params, true)
	case 'l': // RM
		t.ansiSet(params, false)
	case 'c': // DA
		t.writeAnswer("\x1b[?6c")
	case 'n': // DSR
		switch first(0) {
		case 5:
			t.writeAnswer("\x1b[0n")
		case 6:
			y := t.cursorY
			if t.originMode {
				y -= t.scrollTop
			}
			t.writeAnswer(fmt.Sprintf("\x1b[%d;%dR", y+1, t.cursorX+1))
		}
	case 's': // save cursor (ANSI.SYS)
		t.saveCursor()
	case 'u': // restore cursor
		t.restoreCursor()
	case 'g': // TBC
		switch first(0) {
		case 0:
			if t.cursorX < len(t.tabStops) {
				t.tabStops[t.cursorX] = false
			}
		case 3:
			for i := range t.tabStops {
				t.tabStops[i] = false
			}
		}
	case 'q':
		if len(intermediates) == 1 && intermediates[0] == ' ' {
			// DECSCUSR
			shape := first(0)
			if shape >= 0 && shape <= 6 {
				t.cursorShape = CursorShape(shape)
				t.stateChanged = true
			}
		}
	case 't':
		// Window manipulation: not applicable to a headless core
	default:
		log.Printf("vt: ignoring CSI %q %c", intermediates, final)
	}
}

func max1(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

// moveCursorBy moves relative, clamped to the screen (and region when the
// cursor starts inside it).
func (t *Terminal) moveCursorBy(dx, dy int) {
	scr := t.Screen()
	x := t.cursorX + dx
	y := t.cursorY + dy

	top := 0
	bottom := scr.PhysicalRows()
	// Relative vertical movement does not leave the region
	if t.cursorY >= t.scrollTop && t.cursorY < t.scrollBottom {
		top = t.scrollTop
		bottom = t.scrollBottom
	}
	if y < top {
		y = top
	}
	if y > bottom-1 {
		y = bottom - 1
	}
	if x < 0 {
		x = 0
	}
	if x > scr.PhysicalCols()-1 {
		x = scr.PhysicalCols() - 1
	}
	t.cursorX = x
	t.cursorY = y
	t.wrapPending = false
}

// eraseInDisplay implements ED 0/1/2/3.
func (t *Terminal) eraseInDisplay(mode int) {
	scr := t.Screen()
	rows := scr.PhysicalRows()
	cols := scr.PhysicalCols()
	seq := t.nextSeq()

	switch mode {
	case 0: // cursor to end
		scr.ClearLine(t.cursorY, t.cursorX, cols, t.pen, seq)
		for y := t.cursorY + 1; y < rows; y++ {
			scr.ClearLine(y, 0, cols, t.pen, seq)
		}
	case 1: // start to cursor
		for y := 0; y < t.cursorY; y++ {
			scr.ClearLine(y, 0, cols, t.pen, seq)
		}
		scr.ClearLine(t.cursorY, 0, t.cursorX+1, t.pen, seq)
	case 2: // whole display
		for y := 0; y < rows; y++ {
			scr.ClearLine(y, 0, cols, t.pen, seq)
		}
	case 3: // scrollback
		scr.EraseScrollback()
	}
}

// eraseInLine implements EL 0/1/2.
func (t *Terminal) eraseInLine(mode int) {
	scr := t.Screen()
	cols := scr.PhysicalCols()
	seq := t.nextSeq()

	switch mode {
	case 0:
		scr.ClearLine(t.cursorY, t.cursorX, cols, t.pen, seq)
	case 1:
		scr.ClearLine(t.cursorY, 0, t.cursorX+1, t.pen, seq)
	case 2:
		scr.ClearLine(t.cursorY, 0, cols, t.pen, seq)
	}
}

// ansiSet handles SM/RM (non-private modes).
func (t *Terminal) ansiSet(params []CSIParam, on bool) {
	for _, p := range params {
		switch p.First(0) {
		case 4:
			t.insertMode = on
		case 20:
			t.lineFeedNewLine = on
		default:
			log.Printf("vt: ignoring ANSI mode %d", p.First(0))
		}
	}
}

// decSet handles DECSET/DECRST private modes.
func (t *Terminal) decSet(params []CSIParam, on bool) {
	for _, p := range params {
		switch p.First(0) {
		case 1: // DECCKM
			t.cursorKeysApp = on
		case 3: // DECCOLM: column switching is not supported; clear screen
			t.eraseInDisplay(2)
			t.moveTo(0, 0)
		case 6: // DECOM
			t.originMode = on
			t.moveTo(0, 0)
		case 7: // DECAWM
			t.autoWrap = on
		case 12: // cursor blink hint
			t.stateChanged = true
		case 25: // DECTCEM
			t.cursorVisible = on
			t.stateChanged = true
		case 47, 1047:
			if on {
				t.enterAltScreen(true)
			} else {
				t.exitAltScreen()
			}
		case 1048:
			if on {
				t.saveCursor()
			} else {
				t.restoreCursor()
			}
		case 1049:
			if on {
				t.saveCursor()
				t.enterAltScreen(true)
				t.moveTo(0, 0)
			} else {
				t.exitAltScreen()
				t.restoreCursor()
			}
		case 1000:
			t.setMouseProtocol(MouseClicks, on)
		case 1002:
			t.setMouseProtocol(MouseButtonMotion, on)
		case 1003:
			t.setMouseProtocol(MouseAnyMotion, on)
		case 1005:
			// UTF-8 mouse coords: superseded by SGR; accept and ignore
		case 1006:
			if on {
				t.mouseEncoding = MouseEncodingSGR
			} else {
				t.mouseEncoding = MouseEncodingX10
			}
		case 2004:
			t.bracketedPaste = on
		default:
			log.Printf("vt: ignoring DEC mode %d", p.First(0))
		}
	}
}

func (t *Terminal) setMouseProtocol(proto MouseProtocol, on bool) {
	if on {
		t.mouseProtocol = proto
	} else if t.mouseProtocol == proto {
		t.mouseProtocol = MouseNone
	}
	t.stateChanged = true
}

// EscDispatch applies non-CSI escape sequences.
func (t *Terminal) EscDispatch(intermediates []byte, final byte) {
	if len(intermediates) > 0 {
		switch intermediates[0] {
		case '(', ')', '*', '+':
			// Charset designation: kept for compatibility, unused since the
			// model is natively UTF-8
			return
		case '#':
			if final == '8' { // DECALN
				t.decAlign()
			}
			return
		}
	}

	switch final {
	case '7': // DECSC
		t.saveCursor()
	case '8': // DECRC
		t.restoreCursor()
	case 'D': // IND
		t.lineFeed()
	case 'E': // NEL
		t.lineFeed()
		t.cursorX = 0
	case 'M': // RI
		t.reverseIndex()
	case 'H': // HTS
		if t.cursorX < len(t.tabStops) {
			t.tabStops[t.cursorX] = true
		}
	case 'c': // RIS
		t.fullReset()
	case '=': // DECKPAM
		t.keypadApp = true
	case '>': // DECKPNM
		t.keypadApp = false
	default:
		log.Printf("vt: ignoring ESC %c", final)
	}
}

// decAlign fills the screen with E for alignment checks.
func (t *Terminal) decAlign() {
	scr := t.Screen()
	seq := t.nextSeq()
	e := cell.New("E", cell.Attributes{})
	for y := 0; y < scr.PhysicalRows(); y++ {
		for x := 0; x < scr.PhysicalCols(); x++ {
			scr.SetCell(x, y, e, seq)
		}
	}
	t.moveTo(0, 0)
}

// DcsDispatch receives DCS strings. None are acted upon; the stream simply
// continues.
func (t *Terminal) DcsDispatch(data []byte) {
	if len(data) > 0 {
		log.Printf("vt: ignoring DCS (%d bytes)", len(data))
	}
}
