package vt

import (
	"io"
	"log"

	"github.com/ellery/kiln/internal/cell"
	"github.com/ellery/kiln/internal/color"
	"github.com/ellery/kiln/internal/rangeset"
	"github.com/ellery/kiln/internal/screen"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"
)

// Events receives the out-of-band effects of parsed sequences. All methods
// are invoked from the parsing goroutine; implementations queue rather than
// block.
type Events interface {
	Bell()
	TitleChanged(title string)
	PaletteChanged()
	WorkingDirChanged(dir string)
	SetClipboard(data string)
	Notification(text string)
}

// nopEvents lets a Terminal run without an observer.
type nopEvents struct{}

func (nopEvents) Bell()                  {}
func (nopEvents) TitleChanged(string)    {}
func (nopEvents) PaletteChanged()        {}
func (nopEvents) WorkingDirChanged(string) {}
func (nopEvents) SetClipboard(string)    {}
func (nopEvents) Notification(string)    {}

// MouseProtocol selects which events the application asked to receive.
type MouseProtocol uint8

const (
	MouseNone MouseProtocol = iota
	MouseClicks
	MouseButtonMotion
	MouseAnyMotion
)

// MouseEncoding selects how mouse reports are encoded on the wire.
type MouseEncoding uint8

const (
	MouseEncodingX10 MouseEncoding = iota
	MouseEncodingSGR
)

// CursorShape is the cursor rendition requested via DECSCUSR.
type CursorShape uint8

const (
	CursorShapeDefault CursorShape = iota
	CursorShapeBlinkingBlock
	CursorShapeSteadyBlock
	CursorShapeBlinkingUnderline
	CursorShapeSteadyUnderline
	CursorShapeBlinkingBar
	CursorShapeSteadyBar
)

// savedCursor is the DECSC register.
type savedCursor struct {
	x, y   int
	pen    cell.Attributes
	origin bool
	valid  bool
}

// Options configures a new Terminal.
type Options struct {
	Rows          int
	Cols          int
	ScrollbackCap int
	// Answerback receives DA/DSR/CPR responses; usually the PTY writer.
	Answerback io.Writer
	Events     Events
	// LinkRules drive implicit hyperlink discovery on rendered lines.
	LinkRules []cell.Rule
}

// Terminal is the authoritative model of one terminal: primary and alt
// screens, cursor, pen, tab stops, modes, scroll region, title and palette.
// It is not internally locked; the owning pane serializes access.
type Terminal struct {
	parser *Parser

	primary *screen.Screen
	alt     *screen.Screen
	altActive bool

	cursorX int
	cursorY int
	pen     cell.Attributes

	wrapPending bool

	saved    savedCursor
	altSaved savedCursor

	tabStops []bool

	// Half-open scroll region in visible rows. The DECSTBM bottom
	// parameter is treated as exclusive: rows at and below it are outside
	// the region.
	scrollTop    int
	scrollBottom int

	// modes
	autoWrap       bool
	insertMode     bool
	originMode     bool
	cursorVisible  bool
	cursorKeysApp  bool
	keypadApp      bool
	bracketedPaste bool
	lineFeedNewLine bool
	mouseProtocol  MouseProtocol
	mouseEncoding  MouseEncoding
	cursorShape    CursorShape

	title      string
	workingDir string
	palette    *color.Palette
	paletteDirty bool

	currentLink *cell.Hyperlink

	seqno        uint64
	stateChanged bool

	answerback io.Writer
	events     Events
	linkRules  []cell.Rule
}

// NewTerminal builds a terminal with the given options.
func NewTerminal(opts Options) *Terminal {
	rows, cols := opts.Rows, opts.Cols
	if rows < 1 {
		rows = 24
	}
	if cols < 1 {
		cols = 80
	}
	ev := opts.Events
	if ev == nil {
		ev = nopEvents{}
	}
	t := &Terminal{
		parser:        NewParser(),
		primary:       screen.NewScreen(rows, cols, opts.ScrollbackCap),
		alt:           screen.NewScreen(rows, cols, 0),
		scrollTop:     0,
		scrollBottom:  rows,
		autoWrap:      true,
		cursorVisible: true,
		palette:       color.DefaultPalette(),
		answerback:    opts.Answerback,
		events:        ev,
		linkRules:     opts.LinkRules,
	}
	t.resetTabStops(cols)
	return t
}

func (t *Terminal) resetTabStops(cols int) {
	t.tabStops = make([]bool, cols)
	for i := 0; i < cols; i += 8 {
		t.tabStops[i] = true
	}
}

// Advance feeds raw PTY bytes through the parser into the state machine.
func (t *Terminal) Advance(data []byte) {
	t.parser.Parse(data, t)
}

// Screen returns the active screen buffer.
func (t *Terminal) Screen() *screen.Screen {
	if t.altActive {
		return t.alt
	}
	return t.primary
}

// PrimaryScreen returns the primary buffer regardless of alt state.
func (t *Terminal) PrimaryScreen() *screen.Screen { return t.primary }

// AltActive reports whether the alt screen is displayed.
func (t *Terminal) AltActive() bool { return t.altActive }

// CursorPosition returns the cursor in visible coordinates.
func (t *Terminal) CursorPosition() (x, y int) { return t.cursorX, t.cursorY }

// CursorShape returns the shape requested by the application.
func (t *Terminal) CursorShape() CursorShape { return t.cursorShape }

// CursorVisible reports DECTCEM.
func (t *Terminal) CursorVisible() bool { return t.cursorVisible }

// Title returns the window title set via OSC 0/2.
func (t *Terminal) Title() string { return t.title }

// WorkingDir returns the directory advertised via OSC 7, or "".
func (t *Terminal) WorkingDir() string { return t.workingDir }

// Palette returns the live palette. Callers treat it as read-only.
func (t *Terminal) Palette() *color.Palette { return t.palette }

// BracketedPaste reports mode 2004.
func (t *Terminal) BracketedPaste() bool { return t.bracketedPaste }

// CursorKeysApplication reports DECCKM.
func (t *Terminal) CursorKeysApplication() bool { return t.cursorKeysApp }

// MouseProtocol reports the active mouse reporting protocol.
func (t *Terminal) MouseProtocol() MouseProtocol { return t.mouseProtocol }

// MouseEncoding reports the active mouse report encoding.
func (t *Terminal) MouseEncoding() MouseEncoding { return t.mouseEncoding }

// MouseGrabbed reports whether the application wants mouse events.
func (t *Terminal) MouseGrabbed() bool { return t.mouseProtocol != MouseNone }

// SeqNo returns the terminal's global mutation counter.
func (t *Terminal) SeqNo() uint64 { return t.seqno }

// InputModes is the subset of terminal modes the key encoder consults.
type InputModes struct {
	CursorKeysApp  bool
	KeypadApp      bool
	BracketedPaste bool
}

// InputModes snapshots the current input-relevant modes.
func (t *Terminal) InputModes() InputModes {
	return InputModes{
		CursorKeysApp:  t.cursorKeysApp,
		KeypadApp:      t.keypadApp,
		BracketedPaste: t.bracketedPaste,
	}
}

// LinkRules returns the configured implicit hyperlink rules.
func (t *Terminal) LinkRules() []cell.Rule { return t.linkRules }

// TakeStateChanged returns and clears the aggregate changed bit.
func (t *Terminal) TakeStateChanged() bool {
	ch := t.stateChanged
	t.stateChanged = false
	return ch
}

// nextSeq bumps the global counter and marks the terminal changed.
func (t *Terminal) nextSeq() uint64 {
	t.seqno++
	t.stateChanged = true
	return t.seqno
}

// GetChangedSince delegates to the active screen. See screen.ChangedSince.
func (t *Terminal) GetChangedSince(bound rangeset.Range, seqno uint64) *rangeset.RangeSet {
	return t.Screen().ChangedSince(bound, seqno)
}

// Resize adjusts both screens, clamps the cursor and resets the scroll
// region to the full new height.
func (t *Terminal) Resize(rows, cols int) {
	if rows < 1 || cols < 1 {
		return
	}
	seq := t.nextSeq()
	t.primary.Resize(rows, cols, seq)
	t.alt.Resize(rows, cols, seq)
	t.scrollTop = 0
	t.scrollBottom = rows
	if cols != len(t.tabStops) {
		t.resetTabStops(cols)
	}
	if t.cursorX >= cols {
		t.cursorX = cols - 1
	}
	if t.cursorY >= rows {
		t.cursorY = rows - 1
	}
	t.wrapPending = false
}

// writeAnswer sends a report back toward the application.
func (t *Terminal) writeAnswer(s string) {
	if t.answerback == nil {
		return
	}
	if _, err := t.answerback.Write([]byte(s)); err != nil {
		log.Printf("vt: answerback write failed: %v", err)
	}
}

// --- Print path ---

// Print writes a run of text at the cursor, clustering into graphemes.
func (t *Terminal) Print(text string) {
	state := -1
	for len(text) > 0 {
		var cluster string
		cluster, text, _, state = uniseg.StepString(text, state)
		t.printCluster(cluster)
	}
}

func (t *Terminal) printCluster(cluster string) {
	scr := t.Screen()
	cols := scr.PhysicalCols()

	width := runewidth.StringWidth(cluster)
	if width <= 0 {
		// Combining cluster: merge into the cell just written
		if t.cursorX > 0 {
			scr.AppendToCell(t.cursorX-1, t.cursorY, cluster, t.nextSeq())
		}
		return
	}
	if width > 2 {
		width = 2
	}

	if t.wrapPending {
		if t.autoWrap {
			t.cursorX = 0
			t.lineFeed()
		}
		t.wrapPending = false
	}

	// A wide cell that would straddle the right edge wraps early
	if width == 2 && t.cursorX == cols-1 {
		if t.autoWrap {
			t.cursorX = 0
			t.lineFeed()
		} else {
			t.cursorX = cols - 2
		}
	}

	seq := t.nextSeq()
	attrs := t.pen
	if t.currentLink != nil {
		attrs.Hyperlink = t.currentLink
	}

	if t.insertMode {
		if line := scr.VisibleLine(t.cursorY); line != nil {
			line.InsertCells(t.cursorX, width, t.pen, seq)
		}
	}

	c := cell.Cell{Text: cluster, Width: width, Attrs: attrs}
	scr.SetCell(t.cursorX, t.cursorY, c, seq)

	if t.cursorX+width >= cols {
		t.cursorX = cols - 1
		t.wrapPending = true
	} else {
		t.cursorX += width
	}
}

// --- C0 ---

// Execute handles a C0 control byte.
func (t *Terminal) Execute(b byte) {
	switch b {
	case 0x07: // BEL
		t.events.Bell()
	case 0x08: // BS
		t.wrapPending = false
		if t.cursorX > 0 {
			t.cursorX--
		}
	case 0x09: // HT
		t.wrapPending = false
		t.cursorX = t.nextTabStop(t.cursorX)
	case 0x0a, 0x0b, 0x0c: // LF, VT, FF
		t.lineFeed()
		if t.lineFeedNewLine {
			t.cursorX = 0
		}
	case 0x0d: // CR
		t.wrapPending = false
		t.cursorX = 0
	}
}

func (t *Terminal) nextTabStop(x int) int {
	cols := t.Screen().PhysicalCols()
	for c := x + 1; c < cols; c++ {
		if c < len(t.tabStops) && t.tabStops[c] {
			return c
		}
	}
	return cols - 1
}

func (t *Terminal) prevTabStop(x int) int {
	for c := x - 1; c >= 0; c-- {
		if c < len(t.tabStops) && t.tabStops[c] {
			return c
		}
	}
	return 0
}

// lineFeed moves down one row, scrolling the region when the cursor sits on
// its last line.
func (t *Terminal) lineFeed() {
	t.wrapPending = false
	if t.cursorY == t.scrollBottom-1 {
		t.Screen().ScrollUp(t.scrollTop, t.scrollBottom, 1, t.pen, t.nextSeq())
	} else if t.cursorY < t.Screen().PhysicalRows()-1 {
		t.cursorY++
	}
}

// reverseIndex moves up one row, scrolling down at the region top.
func (t *Terminal) reverseIndex() {
	t.wrapPending = false
	if t.cursorY == t.scrollTop {
		t.Screen().ScrollDown(t.scrollTop, t.scrollBottom, 1, t.pen, t.nextSeq())
	} else if t.cursorY > 0 {
		t.cursorY--
	}
}

// moveTo places the cursor, honoring origin mode and clamping to the
// screen. Coordinates are 0-based.
func (t *Terminal) moveTo(x, y int) {
	scr := t.Screen()
	if t.originMode {
		y += t.scrollTop
		if y > t.scrollBottom-1 {
			y = t.scrollBottom - 1
		}
	}
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x >= scr.PhysicalCols() {
		x = scr.PhysicalCols() - 1
	}
	if y >= scr.PhysicalRows() {
		y = scr.PhysicalRows() - 1
	}
	t.cursorX = x
	t.cursorY = y
	t.wrapPending = false
}

// --- Alt screen and cursor save/restore ---

func (t *Terminal) saveCursor() {
	t.saved = savedCursor{
		x:      t.cursorX,
		y:      t.cursorY,
		pen:    t.pen,
		origin: t.originMode,
		valid:  true,
	}
}

func (t *Terminal) restoreCursor() {
	if !t.saved.valid {
		t.moveTo(0, 0)
		t.pen = cell.Attributes{}
		return
	}
	t.cursorX = t.saved.x
	t.cursorY = t.saved.y
	t.pen = t.saved.pen
	t.originMode = t.saved.origin
	t.wrapPending = false
	scr := t.Screen()
	if t.cursorX >= scr.PhysicalCols() {
		t.cursorX = scr.PhysicalCols() - 1
	}
	if t.cursorY >= scr.PhysicalRows() {
		t.cursorY = scr.PhysicalRows() - 1
	}
}

// enterAltScreen switches to the alt buffer, optionally clearing it.
func (t *Terminal) enterAltScreen(clear bool) {
	if t.altActive {
		return
	}
	t.altActive = true
	if clear {
		seq := t.nextSeq()
		for y := 0; y < t.alt.PhysicalRows(); y++ {
			t.alt.ClearLine(y, 0, t.alt.PhysicalCols(), cell.Attributes{}, seq)
		}
	}
	t.nextSeq()
	t.stateChanged = true
}

// exitAltScreen returns to the primary buffer.
func (t *Terminal) exitAltScreen() {
	if !t.altActive {
		return
	}
	t.altActive = false
	// Returning to primary redraws everything it covers
	seq := t.nextSeq()
	for y := 0; y < t.primary.PhysicalRows(); y++ {
		if line := t.primary.VisibleLine(y); line != nil {
			line.Touch(seq)
		}
	}
}

// fullReset implements RIS.
func (t *Terminal) fullReset() {
	rows := t.primary.PhysicalRows()
	cols := t.primary.PhysicalCols()
	seq := t.nextSeq()
	for y := 0; y < rows; y++ {
		t.primary.ClearLine(y, 0, cols, cell.Attributes{}, seq)
		t.alt.ClearLine(y, 0, cols, cell.Attributes{}, seq)
	}
	t.altActive = false
	t.cursorX = 0
	t.cursorY = 0
	t.pen = cell.Attributes{}
	t.saved = savedCursor{}
	t.scrollTop = 0
	t.scrollBottom = rows
	t.autoWrap = true
	t.insertMode = false
	t.originMode = false
	t.cursorVisible = true
	t.cursorKeysApp = false
	t.bracketedPaste = false
	t.mouseProtocol = MouseNone
	t.mouseEncoding = MouseEncodingX10
	t.resetTabStops(cols)
	t.palette.ResetAll()
	t.currentLink = nil
	t.wrapPending = false
}
