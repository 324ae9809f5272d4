// Package screen implements the line storage for one terminal buffer: the
// visible rows, the scrollback ring above them, and the stable row indexing
// that observers use to track content across scroll-off.
package screen

import (
	"github.com/ellery/kiln/internal/cell"
	"github.com/ellery/kiln/internal/rangeset"
)

// StableRowIndex is a signed row index that keeps referring to the same
// logical content as new lines push older ones out of the ring. Negative
// values address content that has already been evicted.
type StableRowIndex = int64

// Screen is one line buffer. The primary screen carries a scrollback ring;
// the alt screen is created with scrollbackCap 0.
//
// Index 0 of lines is the topmost stored row; the bottom physRows lines are
// the visible ones.
type Screen struct {
	lines    []*cell.Line
	physRows int
	physCols int

	// scrollbackCap limits how many lines beyond physRows are retained.
	scrollbackCap int

	// stableTop is the stable index of lines[0]. It grows as lines are
	// evicted from the front of the ring.
	stableTop StableRowIndex
}

// NewScreen builds a screen with the given visible size and scrollback cap.
func NewScreen(rows, cols, scrollbackCap int) *Screen {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	s := &Screen{
		physRows:      rows,
		physCols:      cols,
		scrollbackCap: scrollbackCap,
	}
	for i := 0; i < rows; i++ {
		s.lines = append(s.lines, cell.NewLine(cols))
	}
	return s
}

// PhysicalRows returns the visible row count.
func (s *Screen) PhysicalRows() int { return s.physRows }

// PhysicalCols returns the visible column count.
func (s *Screen) PhysicalCols() int { return s.physCols }

// ScrollbackRows returns how many stored rows precede the visible area.
func (s *Screen) ScrollbackRows() int { return len(s.lines) - s.physRows }

// StoredRows returns the total number of stored rows.
func (s *Screen) StoredRows() int { return len(s.lines) }

// visibleToStored translates a visible row (0..physRows) to a stored index.
func (s *Screen) visibleToStored(y int) int {
	return len(s.lines) - s.physRows + y
}

// StableOfVisible returns the stable index of visible row y.
func (s *Screen) StableOfVisible(y int) StableRowIndex {
	return s.stableTop + StableRowIndex(s.visibleToStored(y))
}

// VisibleOfStable translates a stable index back to a visible row. The
// second result is false when the row is not currently visible.
func (s *Screen) VisibleOfStable(idx StableRowIndex) (int, bool) {
	stored := idx - s.stableTop
	vis := int(stored) - (len(s.lines) - s.physRows)
	if vis < 0 || vis >= s.physRows {
		return 0, false
	}
	return vis, true
}

// VisibleRange returns the stable range currently on screen.
func (s *Screen) VisibleRange() rangeset.Range {
	start := s.StableOfVisible(0)
	return rangeset.Range{Start: start, End: start + StableRowIndex(s.physRows)}
}

// AllRange returns the stable range of every stored row, scrollback included.
func (s *Screen) AllRange() rangeset.Range {
	return rangeset.Range{
		Start: s.stableTop,
		End:   s.stableTop + StableRowIndex(len(s.lines)),
	}
}

// LineByStable returns the stored line for a stable index, or nil if the row
// has been evicted or does not exist yet.
func (s *Screen) LineByStable(idx StableRowIndex) *cell.Line {
	stored := idx - s.stableTop
	if stored < 0 || stored >= StableRowIndex(len(s.lines)) {
		return nil
	}
	return s.lines[stored]
}

// VisibleLine returns the line at visible row y, or nil.
func (s *Screen) VisibleLine(y int) *cell.Line {
	if y < 0 || y >= s.physRows {
		return nil
	}
	return s.lines[s.visibleToStored(y)]
}

// SetCell writes a cell at visible position (x, y).
func (s *Screen) SetCell(x, y int, c cell.Cell, seqno uint64) {
	line := s.VisibleLine(y)
	if line == nil {
		return
	}
	line.SetCell(x, c, seqno)
}

// AppendToCell merges a zero-width grapheme into the cell at (x, y).
func (s *Screen) AppendToCell(x, y int, text string, seqno uint64) {
	line := s.VisibleLine(y)
	if line == nil {
		return
	}
	line.AppendToCell(x, text, seqno)
}

// ClearLine blanks columns [from, to) of visible row y.
func (s *Screen) ClearLine(y, from, to int, attrs cell.Attributes, seqno uint64) {
	line := s.VisibleLine(y)
	if line == nil {
		return
	}
	line.ClearRange(from, to, attrs, seqno)
}

// ScrollUp scrolls the region [top, bottom) of the visible area up by n
// lines. When the region is the full screen and scrollback is enabled, the
// scrolled-off lines are retained in the ring; otherwise they are dropped.
func (s *Screen) ScrollUp(top, bottom, n int, attrs cell.Attributes, seqno uint64) {
	if n <= 0 || top >= bottom {
		return
	}
	if top < 0 {
		top = 0
	}
	if bottom > s.physRows {
		bottom = s.physRows
	}
	if n > bottom-top {
		n = bottom - top
	}

	fullWidth := top == 0 && bottom == s.physRows
	if fullWidth && s.scrollbackCap > 0 {
		// Push new blank lines; older content becomes scrollback
		for i := 0; i < n; i++ {
			nl := cell.NewLine(s.physCols)
			nl.Touch(seqno)
			s.lines = append(s.lines, nl)
		}
		s.enforceCap()
		return
	}

	// Region (or capless) scroll: rotate within the stored window
	start := s.visibleToStored(top)
	end := s.visibleToStored(bottom)
	copy(s.lines[start:end-n], s.lines[start+n:end])
	for i := end - n; i < end; i++ {
		nl := cell.NewLine(s.physCols)
		nl.ClearRange(0, s.physCols, attrs, seqno)
		s.lines[i] = nl
	}
	for i := start; i < end-n; i++ {
		s.lines[i].Touch(seqno)
	}
}

// ScrollDown scrolls the region [top, bottom) down by n lines. New blank
// lines appear at the top of the region; lines pushed past the bottom are
// dropped.
func (s *Screen) ScrollDown(top, bottom, n int, attrs cell.Attributes, seqno uint64) {
	if n <= 0 || top >= bottom {
		return
	}
	if top < 0 {
		top = 0
	}
	if bottom > s.physRows {
		bottom = s.physRows
	}
	if n > bottom-top {
		n = bottom - top
	}

	start := s.visibleToStored(top)
	end := s.visibleToStored(bottom)
	copy(s.lines[start+n:end], s.lines[start:end-n])
	for i := start; i < start+n; i++ {
		nl := cell.NewLine(s.physCols)
		nl.ClearRange(0, s.physCols, attrs, seqno)
		s.lines[i] = nl
	}
	for i := start + n; i < end; i++ {
		s.lines[i].Touch(seqno)
	}
}

// enforceCap drops rows from the front of the ring once the scrollback
// exceeds its cap, advancing stableTop so surviving rows keep their indices.
func (s *Screen) enforceCap() {
	max := s.physRows + s.scrollbackCap
	if len(s.lines) <= max {
		return
	}
	drop := len(s.lines) - max
	s.lines = append([]*cell.Line(nil), s.lines[drop:]...)
	s.stableTop += StableRowIndex(drop)
}

// EraseScrollback drops every stored row above the visible area. ED 3.
func (s *Screen) EraseScrollback() {
	drop := len(s.lines) - s.physRows
	if drop <= 0 {
		return
	}
	s.lines = append([]*cell.Line(nil), s.lines[drop:]...)
	s.stableTop += StableRowIndex(drop)
}

// Resize adjusts the visible dimensions, preserving scrollback. Column
// growth pads lines with default cells; row growth appends blank lines; row
// shrink lets excess visible rows overflow into the ring (primary) or drop
// (alt).
func (s *Screen) Resize(rows, cols int, seqno uint64) {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}

	if cols != s.physCols {
		for _, l := range s.lines {
			l.Resize(cols, seqno)
		}
		s.physCols = cols
	}

	switch {
	case rows > s.physRows:
		for i := s.physRows; i < rows; i++ {
			nl := cell.NewLine(cols)
			nl.Touch(seqno)
			s.lines = append(s.lines, nl)
		}
	case rows < s.physRows:
		if s.scrollbackCap == 0 {
			// Alt screen: discard from the top so bottom content survives
			drop := s.physRows - rows
			s.lines = append([]*cell.Line(nil), s.lines[drop:]...)
			s.stableTop += StableRowIndex(drop)
		}
		// Primary: nothing to move; shrinking physRows leaves the excess
		// rows in the ring as scrollback
	}
	s.physRows = rows
	s.enforceCap()
}

// ChangedSince returns the stable rows inside bound whose line seqno
// exceeds the supplied threshold. This is the single mechanism by which any
// observer learns what to redraw.
func (s *Screen) ChangedSince(bound rangeset.Range, seqno uint64) *rangeset.RangeSet {
	out := rangeset.New()
	sect := bound.Intersection(s.AllRange())
	for idx := sect.Start; idx < sect.End; idx++ {
		line := s.lines[idx-s.stableTop]
		if line.SeqNo() > seqno {
			out.Add(idx)
		}
	}
	return out
}

// LinesInRange returns clones of the stored lines for the stable range,
// paired with their indices. Rows outside storage are skipped.
func (s *Screen) LinesInRange(bound rangeset.Range) ([]StableRowIndex, []*cell.Line) {
	var idxs []StableRowIndex
	var lines []*cell.Line
	sect := bound.Intersection(s.AllRange())
	for idx := sect.Start; idx < sect.End; idx++ {
		idxs = append(idxs, idx)
		lines = append(lines, s.lines[idx-s.stableTop].Clone())
	}
	return idxs, lines
}
