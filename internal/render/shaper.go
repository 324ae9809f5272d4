// Package render turns screen lines into textured quads: attribute runs are
// shaped into positioned glyphs, glyphs become sprites in a texture atlas,
// and finished lines are cached so an unchanged frame costs nothing.
package render

import (
	"unicode"

	"github.com/ellery/kiln/internal/cell"
	"github.com/rivo/uniseg"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// Script is the coarse script class used for run segmentation. Runs never
// mix scripts so the shaper can pick one strategy per run.
type Script uint8

const (
	ScriptLatin Script = iota
	ScriptCJK
	ScriptOther
)

func scriptOf(r rune) Script {
	switch {
	case r < 0x2e80:
		return ScriptLatin
	case unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hangul, r) ||
		unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
		return ScriptCJK
	default:
		return ScriptOther
	}
}

// Run is a maximal stretch of cells sharing attributes and script.
type Run struct {
	StartCol int
	Cells    []cell.Cell
	Attrs    cell.Attributes
	Script   Script
}

// ClusterRuns splits a line into shaping runs. Wide-cell spacers are folded
// into their leading cell's run.
func ClusterRuns(l *cell.Line) []Run {
	cells := l.Cells()
	var runs []Run
	var cur *Run

	for col := 0; col < len(cells); col++ {
		c := cells[col]
		if c.Width == 0 && c.Text == " " {
			continue // wide-cell spacer
		}
		var first rune
		for _, r := range c.Text {
			first = r
			break
		}
		script := scriptOf(first)

		if cur != nil && cur.Attrs.Equal(&c.Attrs) && cur.Script == script {
			cur.Cells = append(cur.Cells, c)
			continue
		}
		runs = append(runs, Run{StartCol: col, Attrs: c.Attrs, Script: script})
		cur = &runs[len(runs)-1]
		cur.Cells = append(cur.Cells, c)
	}
	return runs
}

// GlyphInfo is one shaped cluster: which font produced it, its advance and
// offsets in subpixel units, and the cell span it covers.
type GlyphInfo struct {
	Cluster  string
	FontIdx  int
	Cols     int
	Advance  fixed.Int26_6
	XOffset  fixed.Int26_6
	YOffset  fixed.Int26_6
	Missing  bool
}

// Shaper maps runs of text to positioned glyphs using a font stack.
// Clusters the primary font cannot shape fall through the stack; a cluster
// no font can shape is marked Missing and assigned the primary font. No
// replacement glyph is substituted for it.
type Shaper struct {
	faces []font.Face
}

// NewShaper builds a shaper over an ordered font stack. The first face is
// the primary font.
func NewShaper(faces []font.Face) *Shaper {
	return &Shaper{faces: faces}
}

// FaceCount returns the size of the font stack.
func (s *Shaper) FaceCount() int { return len(s.faces) }

// Face returns the face at idx.
func (s *Shaper) Face(idx int) font.Face {
	if idx < 0 || idx >= len(s.faces) {
		return nil
	}
	return s.faces[idx]
}

// ShapeRun shapes one run into glyph infos, one per grapheme cluster.
func (s *Shaper) ShapeRun(run Run) []GlyphInfo {
	var out []GlyphInfo
	for _, c := range run.Cells {
		out = append(out, s.shapeCluster(c.Text, c.Width))
	}
	return out
}

// shapeCluster resolves one cluster against the font stack.
func (s *Shaper) shapeCluster(cluster string, cols int) GlyphInfo {
	var first rune
	state := -1
	seg, _, _, _ := uniseg.StepString(cluster, state)
	for _, r := range seg {
		first = r
		break
	}
	if first == 0 {
		first = ' '
	}

	for idx, face := range s.faces {
		if advance, ok := face.GlyphAdvance(first); ok {
			return GlyphInfo{
				Cluster: cluster,
				FontIdx: idx,
				Cols:    cols,
				Advance: advance,
			}
		}
	}
	return GlyphInfo{Cluster: cluster, FontIdx: 0, Cols: cols, Missing: true}
}

// Metrics describes the cell box derived from the primary font.
type Metrics struct {
	CellWidth  int
	CellHeight int
	Baseline   int
	// UnderlineY and StrikeY are offsets from the cell top.
	UnderlineY int
	StrikeY    int
}

// MetricsFromFace derives cell metrics from the primary face.
func MetricsFromFace(face font.Face) Metrics {
	m := face.Metrics()
	advance, _ := face.GlyphAdvance('M')
	height := (m.Ascent + m.Descent).Ceil()
	if height < 1 {
		height = 1
	}
	width := advance.Ceil()
	if width < 1 {
		width = 1
	}
	ascent := m.Ascent.Ceil()
	return Metrics{
		CellWidth:  width,
		CellHeight: height,
		Baseline:   ascent,
		UnderlineY: ascent + 1,
		StrikeY:    ascent * 2 / 3,
	}
}
