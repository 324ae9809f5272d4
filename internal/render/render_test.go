package render

import (
	"image"
	"testing"
	"time"

	"github.com/ellery/kiln/internal/cell"
	"github.com/ellery/kiln/internal/color"
	"github.com/ellery/kiln/internal/vt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

func newTestRenderer() *Renderer {
	shaper := NewShaper([]font.Face{basicfont.Face7x13})
	return NewRenderer(shaper, Options{
		Metrics:       MetricsFromFace(basicfont.Face7x13),
		BoldBrightens: true,
		Padding:       2,
		BlinkPeriod:   time.Second,
	})
}

func lineOf(text string) *cell.Line {
	l := cell.NewLine(20)
	for i, r := range []rune(text) {
		l.SetCell(i, cell.New(string(r), cell.Attributes{}), uint64(i+1))
	}
	return l
}

// =============================================================================
// Run clustering
// =============================================================================

func TestClusterRuns_SplitsOnAttrs(t *testing.T) {
	l := cell.NewLine(6)
	var red cell.Attributes
	red.Foreground = color.PaletteIndex(1)

	l.SetCell(0, cell.New("a", cell.Attributes{}), 1)
	l.SetCell(1, cell.New("b", cell.Attributes{}), 2)
	l.SetCell(2, cell.New("c", red), 3)
	l.SetCell(3, cell.New("d", red), 4)

	runs := ClusterRuns(l)
	require.Len(t, runs, 3) // plain, red, trailing blanks
	assert.Equal(t, 0, runs[0].StartCol)
	assert.Len(t, runs[0].Cells, 2)
	assert.Equal(t, 2, runs[1].StartCol)
	assert.Len(t, runs[1].Cells, 2)
}

func TestClusterRuns_SplitsOnScript(t *testing.T) {
	l := cell.NewLine(6)
	l.SetCell(0, cell.New("a", cell.Attributes{}), 1)
	l.SetCell(1, cell.New("世", cell.Attributes{}), 2)

	runs := ClusterRuns(l)
	// Latin, CJK, then trailing blank run
	require.GreaterOrEqual(t, len(runs), 3)
	assert.Equal(t, ScriptLatin, runs[0].Script)
	assert.Equal(t, ScriptCJK, runs[1].Script)
	// Wide-cell spacer folded away: CJK run has one cell
	assert.Len(t, runs[1].Cells, 1)
}

// =============================================================================
// Glyph cache and atlas
// =============================================================================

func TestGlyphCache_SpriteReuse(t *testing.T) {
	r := newTestRenderer()
	key := GlyphKey{Cluster: "A"}

	s1, err := r.Glyphs().Sprite(key)
	require.NoError(t, err)
	s2, err := r.Glyphs().Sprite(key)
	require.NoError(t, err)
	assert.Same(t, s1, s2)
}

func TestGlyphCache_GrowOnFull(t *testing.T) {
	shaper := NewShaper([]font.Face{basicfont.Face7x13})
	g := NewGlyphCache(shaper, Metrics{CellWidth: 200, CellHeight: 200, Baseline: 150})

	// 512x512 atlas holds few 200x200 sprites; force exhaustion
	var sawFull bool
	for i := 0; i < 20; i++ {
		key := GlyphKey{Cluster: string(rune('a' + i))}
		_, err := g.Sprite(key)
		if err == ErrAtlasFull {
			sawFull = true
			gen := g.Generation()
			g.Grow()
			assert.Equal(t, gen+1, g.Generation())
			assert.Equal(t, 1024, g.AtlasSize())
			break
		}
	}
	assert.True(t, sawFull, "expected the atlas to fill")
}

func TestBlockGlyphClassification(t *testing.T) {
	assert.True(t, IsBlockGlyph('─'))
	assert.True(t, IsBlockGlyph('█'))
	assert.True(t, IsBlockGlyph('⣿'))
	assert.True(t, IsBlockGlyph(0xe0b0))
	assert.False(t, IsBlockGlyph('A'))
	assert.False(t, IsBlockGlyph('世'))
}

func TestBlockGlyph_RenderedWithoutFont(t *testing.T) {
	r := newTestRenderer()
	s, err := r.Glyphs().Sprite(GlyphKey{Cluster: "█"})
	require.NoError(t, err)

	// A full block fills its sprite: check a center pixel is opaque
	img := r.Glyphs().AtlasImage()
	center := s.Rect.Min.Add(s.Rect.Size().Div(2))
	_, _, _, a := img.At(center.X, center.Y).RGBA()
	assert.NotZero(t, a)
}

// =============================================================================
// Quad cache idempotence
// =============================================================================

func TestPaintLine_IdempotentQuads(t *testing.T) {
	r := newTestRenderer()
	l := lineOf("hello world")
	ctx := LineContext{PaneID: 1, PhysLineIdx: 0, PaneIsActive: true, WindowFocused: true}

	q1 := r.PaintLine(l, ctx)
	q2 := r.PaintLine(l, ctx)

	// Repainting an unchanged frame yields the same quads bit for bit
	assert.Same(t, q1, q2)
	assert.True(t, q1.Equal(q2))
	assert.Greater(t, q1.Len(), 0)
}

func TestPaintLine_MutationChangesKey(t *testing.T) {
	r := newTestRenderer()
	l := lineOf("hello")
	ctx := LineContext{PaneID: 1, WindowFocused: true}

	q1 := r.PaintLine(l, ctx)
	l.SetCell(0, cell.New("H", cell.Attributes{}), 99)
	q2 := r.PaintLine(l, ctx)

	assert.NotSame(t, q1, q2)
}

func TestPaintLine_ConfigGenerationInvalidates(t *testing.T) {
	r := newTestRenderer()
	l := lineOf("stable")
	ctx := LineContext{PaneID: 1, WindowFocused: true}

	q1 := r.PaintLine(l, ctx)
	r.BumpConfigGeneration()
	q2 := r.PaintLine(l, ctx)

	assert.NotSame(t, q1, q2)
	assert.True(t, q1.Equal(q2), "same content renders the same quads after reload")
}

func TestPaintLine_SelectionChangesOutput(t *testing.T) {
	r := newTestRenderer()
	l := lineOf("select me")

	plain := r.PaintLine(l, LineContext{PaneID: 1, WindowFocused: true})
	selected := r.PaintLine(l, LineContext{PaneID: 1, WindowFocused: true, SelectionStart: 0, SelectionEnd: 6})

	assert.False(t, plain.Equal(selected))
}

func TestPaintLine_CursorBlinkSetsDeadline(t *testing.T) {
	r := newTestRenderer()
	l := lineOf("$")

	r.PaintLine(l, LineContext{
		PaneID:        1,
		WindowFocused: true,
		Cursor:        CursorProps{OnLine: true, X: 1, Visible: true},
	})
	deadline := r.EndFrame()
	assert.False(t, deadline.IsZero(), "blinking cursor registers a frame hint")
}

// =============================================================================
// Shape hash memoization
// =============================================================================

func TestHashLine_MemoizedUntilMutation(t *testing.T) {
	l := lineOf("content")
	h1 := HashLine(l)
	h2 := HashLine(l)
	assert.Equal(t, h1, h2)
	assert.NotNil(t, l.AppData())

	l.SetCell(0, cell.New("X", cell.Attributes{}), 50)
	assert.Nil(t, l.AppData(), "mutation clears the memoized hash")
	h3 := HashLine(l)
	assert.NotEqual(t, h1, h3)
}

// =============================================================================
// Cursor shape and bell
// =============================================================================

func TestEffectiveShape(t *testing.T) {
	assert.Equal(t, vt.CursorShapeSteadyBar,
		EffectiveShape(vt.CursorShapeSteadyBar, vt.CursorShapeDefault))
	assert.Equal(t, vt.CursorShapeBlinkingUnderline,
		EffectiveShape(vt.CursorShapeSteadyBar, vt.CursorShapeBlinkingUnderline))
}

func TestVisualBell_Envelope(t *testing.T) {
	b := VisualBell{
		Target:  BellTargetBackground,
		FadeIn:  100 * time.Millisecond,
		FadeOut: 200 * time.Millisecond,
		EaseIn:  EasingLinear,
		EaseOut: EasingLinear,
	}
	start := time.Now()
	b.Trigger(start)

	assert.InDelta(t, 0.5, b.Intensity(start.Add(50*time.Millisecond)), 0.01)
	assert.InDelta(t, 1.0, b.Intensity(start.Add(100*time.Millisecond)), 0.01)
	assert.InDelta(t, 0.5, b.Intensity(start.Add(200*time.Millisecond)), 0.01)

	// Ended: intensity zero, no deadline
	assert.Zero(t, b.Intensity(start.Add(time.Second)))
	assert.False(t, b.Active(start.Add(time.Second)))
	assert.True(t, b.NextDeadline(start.Add(time.Second)).IsZero())
}

// =============================================================================
// Image cells
// =============================================================================

func TestImageCell_AnimationAdvances(t *testing.T) {
	frames := []*image.RGBA{
		image.NewRGBA(image.Rect(0, 0, 2, 2)),
		image.NewRGBA(image.Rect(0, 0, 2, 2)),
		image.NewRGBA(image.Rect(0, 0, 2, 2)),
	}
	data := &ImageData{
		Frames:    frames,
		Durations: []time.Duration{0, 100 * time.Millisecond, 100 * time.Millisecond},
	}
	ic := &ImageCell{Data: data}

	start := time.Now()
	// Zero-duration leading frame is skipped
	f, next := ic.CurrentFrame(start)
	assert.Same(t, frames[1], f)
	assert.False(t, next.IsZero())

	f, _ = ic.CurrentFrame(start.Add(150 * time.Millisecond))
	assert.Same(t, frames[2], f)
}

func TestImageData_HashStable(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Pix[0] = 42
	d := &ImageData{Frames: []*image.RGBA{img}}

	h1 := d.Hash()
	h2 := d.Hash()
	assert.Equal(t, h1, h2)

	other := &ImageData{Frames: []*image.RGBA{image.NewRGBA(image.Rect(0, 0, 4, 4))}}
	assert.NotEqual(t, h1, other.Hash())
}
