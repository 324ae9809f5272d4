package overlay

import (
	"strings"
	"unicode"

	"github.com/ellery/kiln/internal/pane"
	"github.com/ellery/kiln/internal/rangeset"
	"github.com/ellery/kiln/internal/screen"
)

// SelectionMode controls how the copy-mode selection snaps.
type SelectionMode uint8

const (
	SelectCell SelectionMode = iota
	SelectWord
	SelectLine
)

// Pos addresses a cell by stable row and column.
type Pos struct {
	Row screen.StableRowIndex
	X   int
}

// Before orders positions top-to-bottom, left-to-right.
func (p Pos) Before(other Pos) bool {
	if p.Row != other.Row {
		return p.Row < other.Row
	}
	return p.X < other.X
}

// CopyMode is a keyboard-driven cursor and selection over the scrollback.
// It presents the scrolled view instead of the live one, while writes still
// reach the wrapped pane untouched.
type CopyMode struct {
	Wrapper

	cursor Pos
	// viewTop is the stable row shown at the top of the viewport.
	viewTop screen.StableRowIndex

	selStart *Pos
	selMode  SelectionMode
}

// NewCopyMode starts with the cursor at the live cursor position.
func NewCopyMode(inner pane.Pane) *CopyMode {
	cur := inner.CursorPosition()
	viewport := inner.VisibleRange()
	return &CopyMode{
		Wrapper: Wrapper{Pane: inner},
		cursor:  Pos{Row: viewport.Start + int64(cur.Y), X: cur.X},
		viewTop: viewport.Start,
	}
}

// CursorPosition presents the copy cursor instead of the live one.
func (c *CopyMode) CursorPosition() pane.CursorState {
	y := int(c.cursor.Row - c.viewTop)
	return pane.CursorState{X: c.cursor.X, Y: y, Visible: true}
}

// VisibleRange presents the scrolled viewport.
func (c *CopyMode) VisibleRange() rangeset.Range {
	_, rows := c.dims()
	return rangeset.Range{Start: c.viewTop, End: c.viewTop + int64(rows)}
}

func (c *CopyMode) dims() (cols, rows int) {
	r, cl := c.Pane.Dimensions()
	return cl, r
}

// Cursor returns the copy cursor in stable coordinates.
func (c *CopyMode) Cursor() Pos { return c.cursor }

// clampCursor keeps the cursor inside stored content and scrolls the view
// to keep it visible.
func (c *CopyMode) clampCursor() {
	all := c.Pane.AllRange()
	if c.cursor.Row < all.Start {
		c.cursor.Row = all.Start
	}
	if c.cursor.Row >= all.End {
		c.cursor.Row = all.End - 1
	}
	cols, rows := c.dims()
	if c.cursor.X < 0 {
		c.cursor.X = 0
	}
	if c.cursor.X >= cols {
		c.cursor.X = cols - 1
	}

	if c.cursor.Row < c.viewTop {
		c.viewTop = c.cursor.Row
	}
	if c.cursor.Row >= c.viewTop+int64(rows) {
		c.viewTop = c.cursor.Row - int64(rows) + 1
	}
	if c.viewTop < all.Start {
		c.viewTop = all.Start
	}
}

// lineText fetches the text of a stable row.
func (c *CopyMode) lineText(row screen.StableRowIndex) string {
	_, lines := c.Pane.GetLines(rangeset.Range{Start: row, End: row + 1})
	if len(lines) == 0 {
		return ""
	}
	return lines[0].String()
}

// --- Motions ---

// MoveByCell moves the cursor by whole cells.
func (c *CopyMode) MoveByCell(dx, dy int) {
	c.cursor.X += dx
	c.cursor.Row += int64(dy)
	c.clampCursor()
}

// MoveLineStart jumps to column zero.
func (c *CopyMode) MoveLineStart() { c.cursor.X = 0 }

// MoveLineEnd jumps past the last non-blank cell.
func (c *CopyMode) MoveLineEnd() {
	text := c.lineText(c.cursor.Row)
	c.cursor.X = len([]rune(text))
	c.clampCursor()
}

// isWordRune classifies word characters for word motions.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// MoveWordForward advances to the start of the next word, crossing line
// boundaries.
func (c *CopyMode) MoveWordForward() {
	for i := 0; i < 2; i++ { // at most one line hop per invocation
		runes := []rune(c.lineText(c.cursor.Row))
		x := c.cursor.X
		// Skip the current word, then any gap
		for x < len(runes) && isWordRune(runes[x]) {
			x++
		}
		for x < len(runes) && !isWordRune(runes[x]) {
			x++
		}
		if x < len(runes) {
			c.cursor.X = x
			c.clampCursor()
			return
		}
		all := c.Pane.AllRange()
		if c.cursor.Row+1 >= all.End {
			c.cursor.X = len(runes)
			c.clampCursor()
			return
		}
		c.cursor.Row++
		c.cursor.X = 0
		// Landing on a word is a valid stop
		next := []rune(c.lineText(c.cursor.Row))
		if len(next) > 0 && isWordRune(next[0]) {
			c.clampCursor()
			return
		}
	}
	c.clampCursor()
}

// MoveWordBackward retreats to the start of the previous word.
func (c *CopyMode) MoveWordBackward() {
	for {
		runes := []rune(c.lineText(c.cursor.Row))
		x := c.cursor.X
		if x > len(runes) {
			x = len(runes)
		}
		// Back over any gap, then to the word start
		for x > 0 && !isWordRune(runes[x-1]) {
			x--
		}
		for x > 0 && isWordRune(runes[x-1]) {
			x--
		}
		if x > 0 || x != c.cursor.X {
			c.cursor.X = x
			c.clampCursor()
			return
		}
		all := c.Pane.AllRange()
		if c.cursor.Row <= all.Start {
			c.clampCursor()
			return
		}
		c.cursor.Row--
		c.cursor.X = len([]rune(c.lineText(c.cursor.Row)))
	}
}

// MovePage moves by a viewport height; negative is up.
func (c *CopyMode) MovePage(pages int) {
	_, rows := c.dims()
	c.cursor.Row += int64(pages * rows)
	c.clampCursor()
}

// MoveViewportTop/Middle/Bottom jump within the current view.
func (c *CopyMode) MoveViewportTop() {
	c.cursor.Row = c.viewTop
	c.clampCursor()
}

func (c *CopyMode) MoveViewportMiddle() {
	_, rows := c.dims()
	c.cursor.Row = c.viewTop + int64(rows/2)
	c.clampCursor()
}

func (c *CopyMode) MoveViewportBottom() {
	_, rows := c.dims()
	c.cursor.Row = c.viewTop + int64(rows-1)
	c.clampCursor()
}

// MoveScrollbackTop jumps to the oldest stored row.
func (c *CopyMode) MoveScrollbackTop() {
	c.cursor.Row = c.Pane.AllRange().Start
	c.clampCursor()
}

// MoveScrollbackBottom jumps to the newest row.
func (c *CopyMode) MoveScrollbackBottom() {
	c.cursor.Row = c.Pane.AllRange().End - 1
	c.clampCursor()
}

// MoveToContent jumps to the next occurrence of needle at or below the
// cursor. Content-anchored motion used by copy-mode search.
func (c *CopyMode) MoveToContent(needle string) bool {
	if needle == "" {
		return false
	}
	all := c.Pane.AllRange()
	for row := c.cursor.Row; row < all.End; row++ {
		text := c.lineText(row)
		from := 0
		if row == c.cursor.Row {
			from = c.cursor.X + 1
			if from > len([]rune(text)) {
				continue
			}
		}
		runes := []rune(text)
		idx := strings.Index(string(runes[min(from, len(runes)):]), needle)
		if idx >= 0 {
			prefix := string(runes[:min(from, len(runes))])
			c.cursor.Row = row
			c.cursor.X = len([]rune(prefix)) + len([]rune(string(runes[min(from, len(runes)):])[:idx]))
			c.clampCursor()
			return true
		}
	}
	return false
}

// --- Selection ---

// ToggleSelection starts or clears the selection at the cursor.
func (c *CopyMode) ToggleSelection(mode SelectionMode) {
	if c.selStart != nil {
		c.selStart = nil
		return
	}
	start := c.cursor
	c.selStart = &start
	c.selMode = mode
}

// HasSelection reports whether a selection is active.
func (c *CopyMode) HasSelection() bool { return c.selStart != nil }

// SelectionBounds returns the normalized selection endpoints.
func (c *CopyMode) SelectionBounds() (Pos, Pos, bool) {
	if c.selStart == nil {
		return Pos{}, Pos{}, false
	}
	start, end := *c.selStart, c.cursor
	if end.Before(start) {
		start, end = end, start
	}
	switch c.selMode {
	case SelectLine:
		start.X = 0
		end.X = len([]rune(c.lineText(end.Row)))
	case SelectWord:
		start.X = c.wordStart(start)
		end.X = c.wordEnd(end)
	}
	return start, end, true
}

func (c *CopyMode) wordStart(p Pos) int {
	runes := []rune(c.lineText(p.Row))
	x := min(p.X, len(runes))
	for x > 0 && x-1 < len(runes) && isWordRune(runes[x-1]) {
		x--
	}
	return x
}

func (c *CopyMode) wordEnd(p Pos) int {
	runes := []rune(c.lineText(p.Row))
	x := p.X
	for x < len(runes) && isWordRune(runes[x]) {
		x++
	}
	return x
}

// SelectedText renders the selection as plain text with newlines between
// rows.
func (c *CopyMode) SelectedText() string {
	start, end, ok := c.SelectionBounds()
	if !ok {
		return ""
	}
	var sb strings.Builder
	for row := start.Row; row <= end.Row; row++ {
		runes := []rune(c.lineText(row))
		from, to := 0, len(runes)
		if row == start.Row {
			from = min(start.X, len(runes))
		}
		if row == end.Row {
			to = min(end.X, len(runes))
		}
		if from < to {
			sb.WriteString(string(runes[from:to]))
		}
		if row != end.Row {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
