package cell

import (
	"github.com/mattn/go-runewidth"
)

// Cell is one grapheme cluster plus its attributes. Width is the number of
// display columns the cluster occupies (0 for combining-only content that
// merged into a neighbor, 2 for east-asian wide and most emoji).
type Cell struct {
	Text  string
	Width int
	Attrs Attributes
}

// New builds a cell from a grapheme cluster, deriving the display width from
// the cluster's East-Asian width.
func New(text string, attrs Attributes) Cell {
	w := runewidth.StringWidth(text)
	if w < 0 {
		w = 0
	}
	if w > 2 {
		w = 2
	}
	return Cell{Text: text, Width: w, Attrs: attrs}
}

// Blank returns a single-space cell carrying the given attributes. Erase
// operations use the current pen's background, per BCE semantics.
func Blank(attrs Attributes) Cell {
	return Cell{Text: " ", Width: 1, Attrs: attrs}
}

// IsBlank reports whether the cell shows nothing: a space or empty cluster.
func (c *Cell) IsBlank() bool {
	return c.Text == " " || c.Text == ""
}

// AppendGrapheme merges a zero-width cluster (combining mark, ZWJ
// continuation) into this cell.
func (c *Cell) AppendGrapheme(text string) {
	c.Text += text
}
