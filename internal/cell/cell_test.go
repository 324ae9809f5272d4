package cell

import (
	"testing"

	"github.com/ellery/kiln/internal/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Attribute round trips
// =============================================================================

func TestAttributes_SetterGetterRoundTrips(t *testing.T) {
	var a Attributes

	for _, in := range []Intensity{IntensityNormal, IntensityBold, IntensityHalf} {
		a.SetIntensity(in)
		assert.Equal(t, in, a.Intensity())
	}

	for _, u := range []Underline{UnderlineNone, UnderlineSingle, UnderlineDouble, UnderlineCurly, UnderlineDashed, UnderlineDotted} {
		a.SetUnderline(u)
		assert.Equal(t, u, a.Underline())
	}

	for _, on := range []bool{true, false} {
		a.SetItalic(on)
		assert.Equal(t, on, a.Italic())
		a.SetBlink(on)
		assert.Equal(t, on, a.Blink())
		a.SetReverse(on)
		assert.Equal(t, on, a.Reverse())
		a.SetStrikethrough(on)
		assert.Equal(t, on, a.Strikethrough())
		a.SetInvisible(on)
		assert.Equal(t, on, a.Invisible())
		a.SetOverline(on)
		assert.Equal(t, on, a.Overline())
	}
}

func TestAttributes_FlagsIndependent(t *testing.T) {
	var a Attributes
	a.SetItalic(true)
	a.SetReverse(true)
	a.SetItalic(false)

	assert.False(t, a.Italic())
	assert.True(t, a.Reverse())
}

func TestAttributes_Reset(t *testing.T) {
	var a Attributes
	a.SetIntensity(IntensityBold)
	a.SetUnderline(UnderlineCurly)
	a.SetItalic(true)
	a.Foreground = color.PaletteIndex(3)
	a.Hyperlink = &Hyperlink{URI: "https://example.com"}

	a.Reset()
	assert.True(t, a.Equal(&Attributes{}))
}

// =============================================================================
// Cell width derivation
// =============================================================================

func TestCell_Widths(t *testing.T) {
	tests := []struct {
		text  string
		width int
	}{
		{"a", 1},
		{" ", 1},
		{"世", 2}, // CJK
		{"Ａ", 2}, // fullwidth A
	}
	for _, tt := range tests {
		c := New(tt.text, Attributes{})
		assert.Equal(t, tt.width, c.Width, "width of %q", tt.text)
	}
}

// =============================================================================
// Line mutations and seqno
// =============================================================================

func TestLine_WidthInvariantAfterMutations(t *testing.T) {
	l := NewLine(10)
	var attrs Attributes

	l.SetCell(3, New("x", attrs), 1)
	assert.Equal(t, 10, len(l.Cells()))

	l.InsertCells(2, 4, attrs, 2)
	assert.Equal(t, 10, len(l.Cells()))

	l.DeleteCells(0, 3, attrs, 3)
	assert.Equal(t, 10, len(l.Cells()))

	l.ClearRange(0, 10, attrs, 4)
	assert.Equal(t, 10, len(l.Cells()))

	l.Resize(6, 5)
	assert.Equal(t, 6, len(l.Cells()))
	l.Resize(12, 6)
	assert.Equal(t, 12, len(l.Cells()))
}

func TestLine_SeqnoStrictlyIncreases(t *testing.T) {
	l := NewLine(4)
	var last uint64

	mutate := []func(seq uint64){
		func(s uint64) { l.SetCell(0, New("a", Attributes{}), s) },
		func(s uint64) { l.ClearRange(0, 2, Attributes{}, s) },
		func(s uint64) { l.InsertCells(1, 1, Attributes{}, s) },
		func(s uint64) { l.DeleteCells(0, 1, Attributes{}, s) },
	}
	seq := uint64(10)
	for _, m := range mutate {
		m(seq)
		assert.Greater(t, l.SeqNo(), last)
		last = l.SeqNo()
		seq += 10
	}
}

func TestLine_WideCellSpacer(t *testing.T) {
	l := NewLine(4)
	l.SetCell(1, New("世", Attributes{}), 1)

	assert.Equal(t, 2, l.CellAt(1).Width)
	assert.Equal(t, 0, l.CellAt(2).Width)
	assert.Equal(t, "世", l.String())
}

func TestLine_InsertDelete(t *testing.T) {
	l := NewLine(5)
	for i, ch := range []string{"a", "b", "c", "d", "e"} {
		l.SetCell(i, New(ch, Attributes{}), uint64(i+1))
	}

	l.InsertCells(1, 2, Attributes{}, 10)
	assert.Equal(t, "a  bc", l.String())

	l.DeleteCells(1, 2, Attributes{}, 11)
	assert.Equal(t, "abc", l.String())
}

func TestLine_CloneIndependent(t *testing.T) {
	l := NewLine(3)
	l.SetCell(0, New("x", Attributes{}), 5)

	c := l.Clone()
	require.Equal(t, l.SeqNo(), c.SeqNo())

	l.SetCell(1, New("y", Attributes{}), 6)
	assert.Equal(t, "x", c.String())
	assert.Equal(t, "xy", l.String())
}

func TestLine_MutationClearsAppData(t *testing.T) {
	l := NewLine(3)
	l.SetAppData("hash")
	require.Equal(t, "hash", l.AppData())

	l.SetCell(0, New("z", Attributes{}), 2)
	assert.Nil(t, l.AppData())
}

// =============================================================================
// Hyperlink scanning
// =============================================================================

func putString(l *Line, s string) {
	for i, r := range []rune(s) {
		l.SetCell(i, New(string(r), Attributes{}), uint64(i+1))
	}
}

func TestLine_ScanLinks(t *testing.T) {
	l := NewLine(40)
	putString(l, "see https://example.com/x for more")

	links := l.ScanLinks(DefaultRules)
	require.Len(t, links, 1)
	assert.Equal(t, "https://example.com/x", links[0].URI)
	assert.Equal(t, 4, links[0].Start)
	assert.Equal(t, 25, links[0].End)

	// Matched cells carry the implicit hyperlink
	assert.NotNil(t, l.CellAt(4).Attrs.Hyperlink)
	assert.True(t, l.CellAt(4).Attrs.Hyperlink.Implicit)
	assert.Nil(t, l.CellAt(0).Attrs.Hyperlink)
	assert.True(t, l.HasLinks())
}

func TestLine_ScanLinks_NoMatch(t *testing.T) {
	l := NewLine(20)
	putString(l, "plain text only")

	links := l.ScanLinks(DefaultRules)
	assert.Empty(t, links)
	assert.False(t, l.HasLinks())
}

func TestLine_ScanLinks_CachedUntilMutation(t *testing.T) {
	l := NewLine(30)
	putString(l, "go to http://a.io now")

	first := l.ScanLinks(DefaultRules)
	require.Len(t, first, 1)

	// Mutation invalidates the cached scan
	l.SetCell(0, New("X", Attributes{}), 100)
	second := l.ScanLinks(DefaultRules)
	require.Len(t, second, 1)
	assert.Equal(t, "http://a.io", second[0].URI)
}
