package vt

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ellery/kiln/internal/cell"
	"github.com/ellery/kiln/internal/color"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingEvents captures the out-of-band effects for assertions.
type recordingEvents struct {
	bells     int
	titles    []string
	palettes  int
	dirs      []string
	clipboard []string
	notes     []string
}

func (r *recordingEvents) Bell()                    { r.bells++ }
func (r *recordingEvents) TitleChanged(s string)    { r.titles = append(r.titles, s) }
func (r *recordingEvents) PaletteChanged()          { r.palettes++ }
func (r *recordingEvents) WorkingDirChanged(d string) { r.dirs = append(r.dirs, d) }
func (r *recordingEvents) SetClipboard(d string)    { r.clipboard = append(r.clipboard, d) }
func (r *recordingEvents) Notification(s string)    { r.notes = append(r.notes, s) }

func newTestTerminal(rows, cols int) (*Terminal, *recordingEvents, *bytes.Buffer) {
	ev := &recordingEvents{}
	answer := &bytes.Buffer{}
	t := NewTerminal(Options{
		Rows:          rows,
		Cols:          cols,
		ScrollbackCap: 100,
		Answerback:    answer,
		Events:        ev,
	})
	return t, ev, answer
}

// screenText renders the visible screen for failure diffs.
func screenText(t *Terminal) string {
	var sb strings.Builder
	for y := 0; y < t.Screen().PhysicalRows(); y++ {
		sb.WriteString(t.Screen().VisibleLine(y).String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// assertScreen compares visible content and renders a readable diff on
// mismatch.
func assertScreen(t *testing.T, term *Terminal, want string) {
	t.Helper()
	got := screenText(term)
	if got != want {
		dmp := diffmatchpatch.New()
		diffs := dmp.DiffMain(want, got, false)
		t.Fatalf("screen mismatch:\n%s", dmp.DiffPrettyText(diffs))
	}
}

// =============================================================================
// Printing, wrapping, cursor
// =============================================================================

func TestPrint_Basic(t *testing.T) {
	term, _, _ := newTestTerminal(3, 10)
	term.Advance([]byte("hi"))

	assert.Equal(t, "hi", term.Screen().VisibleLine(0).String())
	x, y := term.CursorPosition()
	assert.Equal(t, 2, x)
	assert.Equal(t, 0, y)
}

func TestPrint_WrapsAtMargin(t *testing.T) {
	term, _, _ := newTestTerminal(3, 4)
	term.Advance([]byte("abcdef"))

	assertScreen(t, term, "abcd\nef\n\n")
	x, y := term.CursorPosition()
	assert.Equal(t, 2, x)
	assert.Equal(t, 1, y)
}

func TestPrint_DeferredWrapInvariant(t *testing.T) {
	term, _, _ := newTestTerminal(2, 4)
	term.Advance([]byte("abcd"))

	// Cursor never leaves the screen: deferred wrap holds it on the margin
	x, y := term.CursorPosition()
	assert.Equal(t, 3, x)
	assert.Equal(t, 0, y)
}

func TestPrint_NoWrapWhenDECAWMReset(t *testing.T) {
	term, _, _ := newTestTerminal(2, 4)
	term.Advance([]byte("\x1b[?7l"))
	term.Advance([]byte("abcdefg"))

	// Overwrites the last column instead of wrapping
	assertScreen(t, term, "abcg\n\n")
}

func TestPrint_WideCharacter(t *testing.T) {
	term, _, _ := newTestTerminal(2, 6)
	term.Advance([]byte("a世b"))

	line := term.Screen().VisibleLine(0)
	assert.Equal(t, 2, line.CellAt(1).Width)
	assert.Equal(t, 0, line.CellAt(2).Width)
	assert.Equal(t, "b", line.CellAt(3).Text)
}

func TestPrint_CombiningMark(t *testing.T) {
	term, _, _ := newTestTerminal(2, 6)
	term.Advance([]byte("e\xcc\x81x")) // e + COMBINING ACUTE + x

	// The cluster stays decomposed; it occupies a single cell
	line := term.Screen().VisibleLine(0)
	assert.Equal(t, "e\u0301", line.CellAt(0).Text)
	assert.Equal(t, "x", line.CellAt(1).Text)
}

func TestExecute_ControlCharacters(t *testing.T) {
	term, ev, _ := newTestTerminal(3, 10)
	term.Advance([]byte("ab\rc"))
	assert.Equal(t, "cb", term.Screen().VisibleLine(0).String())

	// LF keeps the column: X lands at column 1 of the next row
	term.Advance([]byte("\nX"))
	assert.Equal(t, " X", term.Screen().VisibleLine(1).String())

	term.Advance([]byte("\x07"))
	assert.Equal(t, 1, ev.bells)

	// BS moves back over the X, which the y then overwrites
	term.Advance([]byte("\by"))
	assert.Equal(t, " y", term.Screen().VisibleLine(1).String())
}

func TestExecute_TabStops(t *testing.T) {
	term, _, _ := newTestTerminal(2, 20)
	term.Advance([]byte("a\tb"))

	line := term.Screen().VisibleLine(0)
	assert.Equal(t, "b", line.CellAt(8).Text)
}

// =============================================================================
// Basic SGR
// =============================================================================

func TestSGR_BasicForegroundReset(t *testing.T) {
	term, _, _ := newTestTerminal(3, 10)
	term.Advance([]byte("\x1b[31mA\x1b[0mB"))

	line := term.Screen().VisibleLine(0)
	a := line.CellAt(0)
	b := line.CellAt(1)

	assert.Equal(t, "A", a.Text)
	assert.Equal(t, color.PaletteIndex(1), a.Attrs.Foreground)
	assert.Equal(t, "B", b.Text)
	assert.Equal(t, color.Default(), b.Attrs.Foreground)
}

// =============================================================================
// Cursor positioning (CSI H is 1-based)
// =============================================================================

func TestCursorPositioning_OneBased(t *testing.T) {
	term, _, _ := newTestTerminal(5, 10)
	term.Advance([]byte("\x1b[2;3HX"))

	line := term.Screen().VisibleLine(1)
	assert.Equal(t, "X", line.CellAt(2).Text)
	// Single X on the whole screen
	count := 0
	for y := 0; y < 5; y++ {
		for x := 0; x < 10; x++ {
			if term.Screen().VisibleLine(y).CellAt(x).Text == "X" {
				count++
			}
		}
	}
	assert.Equal(t, 1, count)
}

// =============================================================================
// Scroll region + IL
// =============================================================================

func TestScrollRegion_InsertLine(t *testing.T) {
	term, _, _ := newTestTerminal(6, 10)
	// Rows 1..6: r1..r6
	for i := 1; i <= 6; i++ {
		term.Advance([]byte("\x1b[" + string(rune('0'+i)) + ";1Hr" + string(rune('0'+i))))
	}

	// DECSTBM 2;5 (bottom exclusive: region is rows 2..4), cursor to row 3,
	// insert line
	term.Advance([]byte("\x1b[2;5r"))
	term.Advance([]byte("\x1b[3;1H"))
	term.Advance([]byte("\x1b[L"))

	assertScreen(t, term, "r1\nr2\n\nr3\nr5\nr6\n")
}

// =============================================================================
// Alt-screen save/restore (DECSET/DECRST 1049)
// =============================================================================

func TestAltScreen_SaveRestore(t *testing.T) {
	term, _, _ := newTestTerminal(4, 10)
	term.Advance([]byte("before\x1b[2;2H"))
	wantText := screenText(term)
	wantX, wantY := term.CursorPosition()

	term.Advance([]byte("\x1b[?1049h"))
	assert.True(t, term.AltActive())
	term.Advance([]byte("ALT CONTENT\x1b[31m!!"))

	term.Advance([]byte("\x1b[?1049l"))
	assert.False(t, term.AltActive())

	assert.Equal(t, wantText, screenText(term))
	x, y := term.CursorPosition()
	assert.Equal(t, wantX, x)
	assert.Equal(t, wantY, y)
	// Pen restored too
	assert.Equal(t, color.Default(), penOf(term).Foreground)
}

func penOf(t *Terminal) cell.Attributes { return t.pen }

// =============================================================================
// Line seqno drives ChangedSince
// =============================================================================

func TestChangedSince_ExactMutatedRow(t *testing.T) {
	term, _, _ := newTestTerminal(6, 10)
	term.Advance([]byte("seed"))
	baseline := term.SeqNo()

	term.Advance([]byte("\x1b[5;1Hmutate")) // row index 4

	changed := term.GetChangedSince(term.Screen().VisibleRange(), baseline)
	assert.Equal(t, []int64{term.Screen().StableOfVisible(4)}, changed.Values())
}

// =============================================================================
// SGR details
// =============================================================================

func TestSGR_ExtendedColors(t *testing.T) {
	term, _, _ := newTestTerminal(2, 20)

	term.Advance([]byte("\x1b[38;5;123ma"))
	assert.Equal(t, color.PaletteIndex(123), term.pen.Foreground)

	term.Advance([]byte("\x1b[48;2;10;20;30mb"))
	assert.Equal(t, color.TrueColor(color.New(10, 20, 30)), term.pen.Background)

	// Colon forms
	term.Advance([]byte("\x1b[38:5:200mc"))
	assert.Equal(t, color.PaletteIndex(200), term.pen.Foreground)

	term.Advance([]byte("\x1b[38:2::1:2:3md"))
	assert.Equal(t, color.TrueColor(color.New(1, 2, 3)), term.pen.Foreground)
}

func TestSGR_UnderlineStyles(t *testing.T) {
	term, _, _ := newTestTerminal(2, 20)

	term.Advance([]byte("\x1b[4m"))
	assert.Equal(t, cell.UnderlineSingle, term.pen.Underline())

	term.Advance([]byte("\x1b[4:3m"))
	assert.Equal(t, cell.UnderlineCurly, term.pen.Underline())

	term.Advance([]byte("\x1b[4:4m"))
	assert.Equal(t, cell.UnderlineDashed, term.pen.Underline())

	term.Advance([]byte("\x1b[4:5m"))
	assert.Equal(t, cell.UnderlineDotted, term.pen.Underline())

	term.Advance([]byte("\x1b[21m"))
	assert.Equal(t, cell.UnderlineDouble, term.pen.Underline())

	term.Advance([]byte("\x1b[24m"))
	assert.Equal(t, cell.UnderlineNone, term.pen.Underline())
}

func TestSGR_UnknownParamsSkippedNotFatal(t *testing.T) {
	term, _, _ := newTestTerminal(2, 20)
	// 99 is unknown; 31 after it must still apply
	term.Advance([]byte("\x1b[99;31m"))
	assert.Equal(t, color.PaletteIndex(1), term.pen.Foreground)
}

func TestSGR_AttributeBatch(t *testing.T) {
	term, _, _ := newTestTerminal(2, 20)
	term.Advance([]byte("\x1b[1;3;5;7;9m"))

	assert.Equal(t, cell.IntensityBold, term.pen.Intensity())
	assert.True(t, term.pen.Italic())
	assert.True(t, term.pen.Blink())
	assert.True(t, term.pen.Reverse())
	assert.True(t, term.pen.Strikethrough())

	term.Advance([]byte("\x1b[m"))
	assert.True(t, term.pen.Equal(&cell.Attributes{}))
}

// =============================================================================
// Erase, insert, delete
// =============================================================================

func TestEraseInLine(t *testing.T) {
	term, _, _ := newTestTerminal(2, 10)
	term.Advance([]byte("abcdefghij\x1b[1;5H"))

	term.Advance([]byte("\x1b[K")) // cursor to end
	assert.Equal(t, "abcd", term.Screen().VisibleLine(0).String())
}

func TestEraseInDisplay(t *testing.T) {
	term, _, _ := newTestTerminal(3, 5)
	term.Advance([]byte("aaaaa\r\nbbbbb\r\nccccc\x1b[2;3H"))

	term.Advance([]byte("\x1b[J"))
	assertScreen(t, term, "aaaaa\nbb\n\n")

	term.Advance([]byte("\x1b[2J"))
	assertScreen(t, term, "\n\n\n")
}

func TestInsertDeleteChars(t *testing.T) {
	term, _, _ := newTestTerminal(2, 10)
	term.Advance([]byte("abcdef\x1b[1;2H"))

	term.Advance([]byte("\x1b[2@"))
	assert.Equal(t, "a  bcdef", term.Screen().VisibleLine(0).String())

	term.Advance([]byte("\x1b[2P"))
	assert.Equal(t, "abcdef", term.Screen().VisibleLine(0).String())
}

// =============================================================================
// Reports
// =============================================================================

func TestReports_DA_DSR_CPR(t *testing.T) {
	term, _, answer := newTestTerminal(5, 10)

	term.Advance([]byte("\x1b[c"))
	assert.Equal(t, "\x1b[?6c", answer.String())
	answer.Reset()

	term.Advance([]byte("\x1b[5n"))
	assert.Equal(t, "\x1b[0n", answer.String())
	answer.Reset()

	term.Advance([]byte("\x1b[3;4H\x1b[6n"))
	assert.Equal(t, "\x1b[3;4R", answer.String())
}

// =============================================================================
// OSC
// =============================================================================

func TestOSC_TitleAndWorkingDir(t *testing.T) {
	term, ev, _ := newTestTerminal(2, 20)

	term.Advance([]byte("\x1b]0;hello world\x07"))
	assert.Equal(t, "hello world", term.Title())
	assert.Equal(t, []string{"hello world"}, ev.titles)

	// ST-terminated, with a semicolon inside the title
	term.Advance([]byte("\x1b]2;a;b\x1b\\"))
	assert.Equal(t, "a;b", term.Title())

	term.Advance([]byte("\x1b]7;file://host/home/me\x07"))
	assert.Equal(t, "/home/me", term.WorkingDir())
}

func TestOSC_Palette(t *testing.T) {
	term, ev, _ := newTestTerminal(2, 20)

	term.Advance([]byte("\x1b]4;1;#102030\x07"))
	assert.Equal(t, color.New(0x10, 0x20, 0x30), term.Palette().Colors[1])
	assert.Equal(t, 1, ev.palettes)

	term.Advance([]byte("\x1b]104;1\x07"))
	assert.Equal(t, color.DefaultPalette().Colors[1], term.Palette().Colors[1])
}

func TestOSC_Hyperlink(t *testing.T) {
	term, _, _ := newTestTerminal(2, 30)
	term.Advance([]byte("\x1b]8;id=x;https://example.com\x07link\x1b]8;;\x07plain"))

	line := term.Screen().VisibleLine(0)
	require.NotNil(t, line.CellAt(0).Attrs.Hyperlink)
	assert.Equal(t, "https://example.com", line.CellAt(0).Attrs.Hyperlink.URI)
	assert.Equal(t, "x", line.CellAt(0).Attrs.Hyperlink.ID)
	assert.Nil(t, line.CellAt(4).Attrs.Hyperlink)
}

func TestOSC_Clipboard(t *testing.T) {
	term, ev, _ := newTestTerminal(2, 20)
	term.Advance([]byte("\x1b]52;c;aGVsbG8=\x07")) // "hello"

	assert.Equal(t, []string{"hello"}, ev.clipboard)
}

// =============================================================================
// Modes
// =============================================================================

func TestModes_BracketedPasteAndMouse(t *testing.T) {
	term, _, _ := newTestTerminal(2, 20)

	term.Advance([]byte("\x1b[?2004h"))
	assert.True(t, term.BracketedPaste())

	term.Advance([]byte("\x1b[?1000h\x1b[?1006h"))
	assert.Equal(t, MouseClicks, term.MouseProtocol())
	assert.Equal(t, MouseEncodingSGR, term.MouseEncoding())
	assert.True(t, term.MouseGrabbed())

	term.Advance([]byte("\x1b[?1000l\x1b[?2004l"))
	assert.False(t, term.MouseGrabbed())
	assert.False(t, term.BracketedPaste())
}

func TestMouse_SGREncoding(t *testing.T) {
	term, _, _ := newTestTerminal(5, 20)
	term.Advance([]byte("\x1b[?1000h\x1b[?1006h"))

	press := term.EncodeMouseEvent(MouseEvent{Button: MouseLeft, X: 4, Y: 2, Press: true})
	assert.Equal(t, "\x1b[<0;5;3M", press)

	release := term.EncodeMouseEvent(MouseEvent{Button: MouseLeft, X: 4, Y: 2})
	assert.Equal(t, "\x1b[<0;5;3m", release)

	// Motion not reported by click-only protocol
	motion := term.EncodeMouseEvent(MouseEvent{Button: MouseLeft, X: 1, Y: 1, Motion: true})
	assert.Equal(t, "", motion)
}

// =============================================================================
// Malformed input never unwinds
// =============================================================================

func TestMalformedSequencesContinue(t *testing.T) {
	term, _, _ := newTestTerminal(2, 20)

	term.Advance([]byte("\x1b[999999999999999999mok"))
	term.Advance([]byte("\x1b]notanumber;x\x07"))
	term.Advance([]byte("\xff\xfe"))
	term.Advance([]byte("after"))

	assert.Contains(t, screenText(term), "ok")
	assert.Contains(t, screenText(term), "after")
}

func TestScrollbackAccumulates(t *testing.T) {
	term, _, _ := newTestTerminal(3, 10)
	for i := 0; i < 10; i++ {
		term.Advance([]byte("line\r\n"))
	}

	assert.Greater(t, term.Screen().ScrollbackRows(), 0)
	// Alt screen never accumulates scrollback
	term.Advance([]byte("\x1b[?1049h"))
	for i := 0; i < 10; i++ {
		term.Advance([]byte("alt\r\n"))
	}
	assert.Equal(t, 0, term.Screen().ScrollbackRows())
	term.Advance([]byte("\x1b[?1049l"))
}
