package render

import (
	"time"

	"github.com/ellery/kiln/internal/cell"
	"github.com/ellery/kiln/internal/color"
	"github.com/ellery/kiln/internal/pane"
	"github.com/ellery/kiln/internal/vt"
)

// Options configures a renderer.
type Options struct {
	Metrics Metrics
	Palette *color.Palette
	// BoldBrightens maps bold + base palette colors to their bright
	// variants.
	BoldBrightens bool
	// Padding is the pixel border around the pane content. It is filled
	// with the palette background; selection fills do not extend into it.
	Padding int
	// BlinkPeriod drives cursor blink; zero disables blinking.
	BlinkPeriod time.Duration
	// DefaultCursorStyle overrides the terminal's default shape request.
	DefaultCursorStyle vt.CursorShape
}

// Renderer owns the shaping and caching pipeline for one window.
type Renderer struct {
	shaper  *Shaper
	glyphs  *GlyphCache
	lines   *LineQuadCache
	opts    Options

	configGeneration uint64

	// hover is the hyperlink currently under the pointer.
	hover        *cell.Hyperlink
	hoverChanged bool

	// frameDeadline is the earliest pending animation deadline.
	frameDeadline time.Time

	now func() time.Time
}

// NewRenderer assembles the pipeline.
func NewRenderer(shaper *Shaper, opts Options) *Renderer {
	if opts.Palette == nil {
		opts.Palette = color.DefaultPalette()
	}
	return &Renderer{
		shaper: shaper,
		glyphs: NewGlyphCache(shaper, opts.Metrics),
		lines:  NewLineQuadCache(),
		opts:   opts,
		now:    time.Now,
	}
}

// SetNowFunc injects a clock for tests.
func (r *Renderer) SetNowFunc(now func() time.Time) { r.now = now }

// Glyphs exposes the glyph cache (the GPU layer uploads its atlas).
func (r *Renderer) Glyphs() *GlyphCache { return r.glyphs }

// BumpConfigGeneration invalidates every cached line after a config
// reload.
func (r *Renderer) BumpConfigGeneration() {
	r.configGeneration++
	r.lines.Purge()
}

// SetHover updates the hovered hyperlink; lines carrying hover-sensitive
// underlines rebuild on the next paint.
func (r *Renderer) SetHover(link *cell.Hyperlink) {
	if link == r.hover {
		return
	}
	r.hover = link
	r.hoverChanged = true
}

// FrameDeadline returns the next animation deadline, or zero when no
// animation is pending. Missing a deadline only delays the next frame.
func (r *Renderer) FrameDeadline() time.Time { return r.frameDeadline }

func (r *Renderer) noteDeadline(t time.Time) {
	if t.IsZero() {
		return
	}
	if r.frameDeadline.IsZero() || t.Before(r.frameDeadline) {
		r.frameDeadline = t
	}
}

// LineContext carries the per-line render parameters that feed the cache
// key.
type LineContext struct {
	PaneID       pane.ID
	PhysLineIdx  int
	TopPixel     int
	LeftPixel    int
	PaneIsActive bool
	WindowFocused bool
	SelectionStart int
	SelectionEnd   int
	Composing      string
	ReverseVideo   bool
	PasswordInput  bool
	Cursor         CursorProps
	// Bell is the current visual-bell intensity, zero when idle.
	Bell float32
	BellTarget BellTarget
}

// PaintLine produces the quads for one line, consulting the cache first.
// The returned allocator is owned by the cache; callers must not mutate it.
func (r *Renderer) PaintLine(line *cell.Line, ctx LineContext) *QuadAllocator {
	key := LineQuadCacheKey{
		ConfigGeneration: r.configGeneration,
		ShapeGeneration:  r.glyphs.Generation(),
		QuadGeneration:   r.glyphs.Generation(),
		Composing:        ctx.Composing,
		SelectionStart:   ctx.SelectionStart,
		SelectionEnd:     ctx.SelectionEnd,
		ShapeHash:        HashLine(line),
		TopPixel:         ctx.TopPixel,
		LeftPixel:        ctx.LeftPixel,
		PhysLineIdx:      ctx.PhysLineIdx,
		PaneID:           ctx.PaneID,
		PaneIsActive:     ctx.PaneIsActive,
		Cursor:           ctx.Cursor,
		ReverseVideo:     ctx.ReverseVideo,
		PasswordInput:    ctx.PasswordInput,
	}

	now := r.now()
	if entry, ok := r.lines.Get(key, now, r.hoverChanged); ok {
		return entry.Quads
	}

	entry := r.buildLine(line, ctx)
	r.lines.Put(key, entry)
	if !entry.ExpiresAt.IsZero() {
		r.noteDeadline(entry.ExpiresAt)
	}
	return entry.Quads
}

// EndFrame clears the per-frame hover-change flag and returns the next
// animation deadline.
func (r *Renderer) EndFrame() time.Time {
	r.hoverChanged = false
	deadline := r.frameDeadline
	r.frameDeadline = time.Time{}
	return deadline
}

// buildLine shapes and quads a line: background fills, glyphs, then
// overlays, with the padding region filled with the palette background so
// the background reaches the pane edge. Selection stops at the cell grid.
func (r *Renderer) buildLine(line *cell.Line, ctx LineContext) *CachedQuads {
	qa := NewQuadAllocator()
	m := r.opts.Metrics
	pal := r.opts.Palette

	var expires time.Time
	hoverSensitive := line.HasLinks()

	y := float32(ctx.TopPixel)
	cellH := float32(m.CellHeight)

	// Padding fill keeps the pane background contiguous to its edges
	if r.opts.Padding > 0 {
		bg := pal.Background.ToLinear()
		qa.Add(Quad{
			Layer: LayerBg,
			X:     float32(ctx.LeftPixel - r.opts.Padding),
			Y:     y,
			W:     float32(r.opts.Padding),
			H:     cellH,
			Color: bg,
		})
		qa.Add(Quad{
			Layer: LayerBg,
			X:     float32(ctx.LeftPixel + line.Width()*m.CellWidth),
			Y:     y,
			W:     float32(r.opts.Padding),
			H:     cellH,
			Color: bg,
		})
	}

	runs := ClusterRuns(line)
	for _, run := range runs {
		glyphs := r.shaper.ShapeRun(run)
		col := run.StartCol
		for _, gi := range glyphs {
			fg, bg := r.resolveColors(&run.Attrs, pal)
			selected := col >= ctx.SelectionStart && col < ctx.SelectionEnd && ctx.SelectionEnd > ctx.SelectionStart
			if selected != run.Attrs.Reverse() != ctx.ReverseVideo {
				fg, bg = bg, fg
			}

			x := float32(ctx.LeftPixel + col*m.CellWidth)
			w := float32(gi.Cols * m.CellWidth)

			// Bell wash mixes the background toward the configured color
			if ctx.Bell > 0 && ctx.BellTarget == BellTargetBackground {
				bg = mixLinear(bg, pal.Cursor.ToLinear(), ctx.Bell)
			}

			qa.Add(Quad{Layer: LayerBg, X: x, Y: y, W: w, H: cellH, Color: bg})

			if !run.Attrs.Invisible() && !isBlankCluster(gi.Cluster) {
				sprite, err := r.glyphs.Sprite(GlyphKey{
					Cluster: gi.Cluster,
					FontIdx: gi.FontIdx,
					Bold:    run.Attrs.Intensity() == cell.IntensityBold,
					Italic:  run.Attrs.Italic(),
				})
				if err == ErrAtlasFull {
					r.glyphs.Grow()
					r.lines.Purge()
					sprite, err = r.glyphs.Sprite(GlyphKey{
						Cluster: gi.Cluster,
						FontIdx: gi.FontIdx,
						Bold:    run.Attrs.Intensity() == cell.IntensityBold,
						Italic:  run.Attrs.Italic(),
					})
				}
				if err == nil && sprite != nil {
					glyphFg := fg
					if run.Attrs.Intensity() == cell.IntensityHalf {
						glyphFg = mixLinear(glyphFg, bg, 0.5)
					}
					qa.Add(Quad{
						Layer:  LayerGlyph,
						X:      x,
						Y:      y,
						W:      w,
						H:      cellH,
						Tex:    sprite.Rect,
						HasTex: true,
						Color:  glyphFg,
					})
				}
			}

			// Overlays: underline variants, strikethrough, overline
			r.addDecorations(qa, &run.Attrs, x, y, w, fg)

			col += maxInt(gi.Cols, 1)
		}
	}

	// Cursor overlay
	if ctx.Cursor.OnLine && ctx.Cursor.Visible {
		exp := r.addCursor(qa, ctx, pal)
		if !exp.IsZero() && (expires.IsZero() || exp.Before(expires)) {
			expires = exp
		}
	}

	if ctx.Bell > 0 {
		// Bell animations expire quickly to keep easing smooth
		exp := r.now().Add(16 * time.Millisecond)
		if expires.IsZero() || exp.Before(expires) {
			expires = exp
		}
	}

	return &CachedQuads{
		Quads:                   qa,
		ExpiresAt:               expires,
		InvalidateOnHoverChange: hoverSensitive,
	}
}

// addDecorations emits the overlay quads for underline, strikethrough and
// overline.
func (r *Renderer) addDecorations(qa *QuadAllocator, attrs *cell.Attributes, x, y, w float32, fg color.LinearRGBA) {
	m := r.opts.Metrics
	lineH := float32(1 + m.CellHeight/16)

	ulColor := fg
	if !attrs.UnderlineColor.IsDefault() {
		ulColor = attrs.UnderlineColor.ResolveFg(r.opts.Palette, false, false).ToLinear()
	}

	switch attrs.Underline() {
	case cell.UnderlineNone:
	case cell.UnderlineDouble:
		uy := y + float32(m.UnderlineY)
		qa.Add(Quad{Layer: LayerOverlay, X: x, Y: uy, W: w, H: lineH, Color: ulColor})
		qa.Add(Quad{Layer: LayerOverlay, X: x, Y: uy + 2*lineH, W: w, H: lineH, Color: ulColor})
	case cell.UnderlineCurly, cell.UnderlineDashed, cell.UnderlineDotted:
		// Broken underlines: segments across the cell
		uy := y + float32(m.UnderlineY)
		seg := w / 4
		for i := 0; i < 4; i += 2 {
			qa.Add(Quad{Layer: LayerOverlay, X: x + float32(i)*seg, Y: uy, W: seg, H: lineH, Color: ulColor})
		}
	default:
		uy := y + float32(m.UnderlineY)
		qa.Add(Quad{Layer: LayerOverlay, X: x, Y: uy, W: w, H: lineH, Color: ulColor})
	}

	if attrs.Strikethrough() {
		qa.Add(Quad{Layer: LayerOverlay, X: x, Y: y + float32(m.StrikeY), W: w, H: lineH, Color: fg})
	}
	if attrs.Overline() {
		qa.Add(Quad{Layer: LayerOverlay, X: x, Y: y, W: w, H: lineH, Color: fg})
	}
}

// addCursor emits the cursor quads and returns the next blink deadline.
func (r *Renderer) addCursor(qa *QuadAllocator, ctx LineContext, pal *color.Palette) time.Time {
	m := r.opts.Metrics
	x := float32(ctx.LeftPixel + ctx.Cursor.X*m.CellWidth)
	y := float32(ctx.TopPixel)
	w := float32(m.CellWidth)
	h := float32(m.CellHeight)

	shape := EffectiveShape(r.opts.DefaultCursorStyle, vt.CursorShape(ctx.Cursor.Shape))

	// An unfocused window degrades fancy shapes to a steady outline block
	if !ctx.WindowFocused {
		border := float32(1)
		cu := pal.Cursor.ToLinear()
		qa.Add(Quad{Layer: LayerOverlay, X: x, Y: y, W: w, H: border, Color: cu})
		qa.Add(Quad{Layer: LayerOverlay, X: x, Y: y + h - border, W: w, H: border, Color: cu})
		qa.Add(Quad{Layer: LayerOverlay, X: x, Y: y, W: border, H: h, Color: cu})
		qa.Add(Quad{Layer: LayerOverlay, X: x + w - border, Y: y, W: border, H: h, Color: cu})
		return time.Time{}
	}

	cursorColor := pal.Cursor.ToLinear()
	var deadline time.Time
	if r.opts.BlinkPeriod > 0 && isBlinkingShape(shape) {
		phase := ctx.Cursor.BlinkPhase
		if phase%2 == 1 {
			// Inactive half of the blink: mix toward the background
			cursorColor = mixLinear(cursorColor, pal.Background.ToLinear(), 0.85)
		}
		deadline = r.now().Add(r.opts.BlinkPeriod / 2)
	}

	switch shape {
	case vt.CursorShapeSteadyUnderline, vt.CursorShapeBlinkingUnderline:
		qa.Add(Quad{Layer: LayerOverlay, X: x, Y: y + h - 2, W: w, H: 2, Color: cursorColor})
	case vt.CursorShapeSteadyBar, vt.CursorShapeBlinkingBar:
		qa.Add(Quad{Layer: LayerOverlay, X: x, Y: y, W: 2, H: h, Color: cursorColor})
	default:
		qa.Add(Quad{Layer: LayerOverlay, X: x, Y: y, W: w, H: h, Color: cursorColor})
	}
	return deadline
}

// EffectiveShape resolves the configured default against the shape the
// application requested.
func EffectiveShape(configured, requested vt.CursorShape) vt.CursorShape {
	if requested == vt.CursorShapeDefault {
		return configured
	}
	return requested
}

func isBlinkingShape(s vt.CursorShape) bool {
	switch s {
	case vt.CursorShapeDefault, vt.CursorShapeBlinkingBlock,
		vt.CursorShapeBlinkingUnderline, vt.CursorShapeBlinkingBar:
		return true
	}
	return false
}

// resolveColors applies the palette plus bold-brightening.
func (r *Renderer) resolveColors(attrs *cell.Attributes, pal *color.Palette) (fg, bg color.LinearRGBA) {
	bold := attrs.Intensity() == cell.IntensityBold
	f := attrs.Foreground.ResolveFg(pal, bold, r.opts.BoldBrightens)
	b := attrs.Background.ResolveBg(pal)
	return f.ToLinear(), b.ToLinear()
}

func mixLinear(a, b color.LinearRGBA, t float32) color.LinearRGBA {
	lerp := func(x, y float32) float32 { return x + (y-x)*t }
	return color.LinearRGBA{
		R: lerp(a.R, b.R),
		G: lerp(a.G, b.G),
		B: lerp(a.B, b.B),
		A: lerp(a.A, b.A),
	}
}

func isBlankCluster(s string) bool { return s == "" || s == " " }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
