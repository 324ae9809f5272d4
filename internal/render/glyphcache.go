package render

import (
	"errors"
	"image"
	"image/draw"
	"log"

	"github.com/ellery/kiln/internal/cell"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// ErrAtlasFull signals that the texture atlas has no room for another
// sprite. The renderer reacts by recreating the atlas at a larger size and
// invalidating the shape and quad caches.
var ErrAtlasFull = errors.New("glyph atlas out of space")

// defaultAtlasSize is the initial atlas edge in pixels.
const defaultAtlasSize = 512

// spriteCacheEntries bounds the sprite lookup table.
const spriteCacheEntries = 4096

// Sprite is one rendered glyph in the atlas.
type Sprite struct {
	// Rect is the atlas region holding the pixels.
	Rect image.Rectangle
	// Advance is the pen advance the glyph wants.
	Advance fixed.Int26_6
}

// GlyphKey identifies a rendered sprite.
type GlyphKey struct {
	Cluster string
	FontIdx int
	Bold    bool
	Italic  bool
}

// atlas is a shelf-packed RGBA texture.
type atlas struct {
	img    *image.RGBA
	size   int
	nextX  int
	nextY  int
	shelfH int
}

func newAtlas(size int) *atlas {
	return &atlas{
		img:  image.NewRGBA(image.Rect(0, 0, size, size)),
		size: size,
	}
}

// allocate reserves a w x h region, moving to a new shelf when the current
// row is exhausted.
func (a *atlas) allocate(w, h int) (image.Rectangle, error) {
	if w > a.size || h > a.size {
		return image.Rectangle{}, ErrAtlasFull
	}
	if a.nextX+w > a.size {
		a.nextY += a.shelfH
		a.nextX = 0
		a.shelfH = 0
	}
	if a.nextY+h > a.size {
		return image.Rectangle{}, ErrAtlasFull
	}
	r := image.Rect(a.nextX, a.nextY, a.nextX+w, a.nextY+h)
	a.nextX += w
	if h > a.shelfH {
		a.shelfH = h
	}
	return r, nil
}

// GlyphCache owns the atlas and the sprite table. Sprites are rendered
// white-on-transparent; color is applied per quad at draw time.
type GlyphCache struct {
	shaper  *Shaper
	metrics Metrics

	atlas   *atlas
	sprites *lru.Cache[GlyphKey, *Sprite]

	// generation increments every time the atlas is recreated; cached
	// quads from older generations are invalid.
	generation uint64
}

// NewGlyphCache builds a cache over the shaper's font stack.
func NewGlyphCache(shaper *Shaper, metrics Metrics) *GlyphCache {
	sprites, err := lru.New[GlyphKey, *Sprite](spriteCacheEntries)
	if err != nil {
		panic(err)
	}
	return &GlyphCache{
		shaper:  shaper,
		metrics: metrics,
		atlas:   newAtlas(defaultAtlasSize),
		sprites: sprites,
	}
}

// Generation returns the atlas generation.
func (g *GlyphCache) Generation() uint64 { return g.generation }

// AtlasImage exposes the backing texture for upload.
func (g *GlyphCache) AtlasImage() *image.RGBA { return g.atlas.img }

// AtlasSize returns the current atlas edge.
func (g *GlyphCache) AtlasSize() int { return g.atlas.size }

// Grow recreates the atlas at double size and drops every sprite. Callers
// must treat all previously returned sprites as invalid.
func (g *GlyphCache) Grow() {
	newSize := g.atlas.size * 2
	log.Printf("render: atlas full, growing %d -> %d", g.atlas.size, newSize)
	g.atlas = newAtlas(newSize)
	g.sprites.Purge()
	g.generation++
}

// Sprite resolves or renders the sprite for a key. On ErrAtlasFull the
// caller should Grow and retry.
func (g *GlyphCache) Sprite(key GlyphKey) (*Sprite, error) {
	if s, ok := g.sprites.Get(key); ok {
		return s, nil
	}

	cols := 1
	var first rune
	for _, r := range key.Cluster {
		first = r
		break
	}
	if isWideRune(key.Cluster) {
		cols = 2
	}

	w := g.metrics.CellWidth * cols
	h := g.metrics.CellHeight
	rect, err := g.atlas.allocate(w, h)
	if err != nil {
		return nil, err
	}

	if IsBlockGlyph(first) {
		drawBlockGlyph(g.atlas.img, rect, first)
	} else {
		g.drawFontGlyph(rect, key)
	}

	sprite := &Sprite{
		Rect:    rect,
		Advance: fixed.I(w),
	}
	g.sprites.Add(key, sprite)
	return sprite, nil
}

// drawFontGlyph rasterizes a cluster through the font stack into the atlas.
func (g *GlyphCache) drawFontGlyph(rect image.Rectangle, key GlyphKey) {
	face := g.shaper.Face(key.FontIdx)
	if face == nil {
		face = g.shaper.Face(0)
	}
	if face == nil {
		return
	}
	drawer := font.Drawer{
		Dst:  g.atlas.img,
		Src:  image.White,
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(rect.Min.X),
			Y: fixed.I(rect.Min.Y + g.metrics.Baseline),
		},
	}
	drawer.DrawString(key.Cluster)
}

// isWideRune reports whether the cluster's cell is double width.
func isWideRune(cluster string) bool {
	c := cell.New(cluster, cell.Attributes{})
	return c.Width == 2
}

// --- Custom block glyphs ---

// IsBlockGlyph reports whether a codepoint is drawn as pixel-exact geometry
// instead of through the font: box drawing, block elements, braille and the
// powerline triangles render seam-free at any DPI this way.
func IsBlockGlyph(r rune) bool {
	switch {
	case r >= 0x2500 && r <= 0x257f: // box drawing
		return true
	case r >= 0x2580 && r <= 0x259f: // block elements
		return true
	case r >= 0x2800 && r <= 0x28ff: // braille
		return true
	case r >= 0xe0b0 && r <= 0xe0b3: // powerline triangles
		return true
	}
	return false
}

// drawBlockGlyph fills the sprite region with the geometry for r.
func drawBlockGlyph(dst *image.RGBA, rect image.Rectangle, r rune) {
	w := rect.Dx()
	h := rect.Dy()
	fill := func(x0, y0, x1, y1 int) {
		draw.Draw(dst, image.Rect(rect.Min.X+x0, rect.Min.Y+y0, rect.Min.X+x1, rect.Min.Y+y1),
			image.White, image.Point{}, draw.Src)
	}

	switch {
	case r >= 0x2800 && r <= 0x28ff:
		drawBraille(fill, w, h, r)
	case r == 0x2588: // full block
		fill(0, 0, w, h)
	case r >= 0x2581 && r <= 0x2587: // lower blocks, 1/8 .. 7/8
		eighths := int(r - 0x2580)
		fill(0, h-h*eighths/8, w, h)
	case r == 0x2580: // upper half
		fill(0, 0, w, h/2)
	case r >= 0x2589 && r <= 0x258f: // left blocks, 7/8 .. 1/8
		eighths := 8 - int(r-0x2588)
		fill(0, 0, w*eighths/8, h)
	case r == 0x2590: // right half
		fill(w/2, 0, w, h)
	case r == 0x2591: // light shade
		stipple(dst, rect, 4)
	case r == 0x2592: // medium shade
		stipple(dst, rect, 2)
	case r == 0x2593: // dark shade
		stipple(dst, rect, 1)
	case r >= 0xe0b0 && r <= 0xe0b3:
		drawPowerline(dst, rect, r)
	default:
		drawBoxDrawing(fill, w, h, r)
	}
}

// stipple sets the pixels where x+y is a multiple of n+1, for the shade
// glyphs.
func stipple(dst *image.RGBA, rect image.Rectangle, n int) {
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if (x+y)%(n+1) == 0 {
				dst.Set(x, y, image.White.C)
			}
		}
	}
}

// drawBraille places the up-to-eight dots of a braille pattern.
func drawBraille(fill func(x0, y0, x1, y1 int), w, h int, r rune) {
	bits := int(r - 0x2800)
	dotW := w / 2
	dotH := h / 4
	if dotW < 1 {
		dotW = 1
	}
	if dotH < 1 {
		dotH = 1
	}
	// Braille bit layout: 0,1,2,6 left column; 3,4,5,7 right column
	pos := [8][2]int{
		{0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}, {1, 2}, {0, 3}, {1, 3},
	}
	for bit := 0; bit < 8; bit++ {
		if bits&(1<<bit) == 0 {
			continue
		}
		cx := pos[bit][0] * dotW
		cy := pos[bit][1] * dotH
		// Dot with a 1px inset so neighbors stay distinct
		fill(cx+1, cy+1, cx+dotW-1, cy+dotH-1)
	}
}

// drawPowerline rasterizes the four powerline triangle glyphs by scanline.
func drawPowerline(dst *image.RGBA, rect image.Rectangle, r rune) {
	w := rect.Dx()
	h := rect.Dy()
	for y := 0; y < h; y++ {
		// Horizontal extent of the triangle at this scanline
		frac := float64(y) / float64(h-1)
		if frac > 0.5 {
			frac = 1 - frac
		}
		span := int(frac * 2 * float64(w))
		for x := 0; x < w; x++ {
			var on bool
			switch r {
			case 0xe0b0: // solid right-pointing
				on = x < span
			case 0xe0b1: // right-pointing outline
				on = x == span-1 || x == span
			case 0xe0b2: // solid left-pointing
				on = x >= w-span
			case 0xe0b3: // left-pointing outline
				on = x == w-span || x == w-span-1
			}
			if on {
				dst.Set(rect.Min.X+x, rect.Min.Y+y, image.White.C)
			}
		}
	}
}

// drawBoxDrawing approximates the box-drawing set with stroke segments.
// Heavy strokes reuse the light geometry at the same thickness.
func drawBoxDrawing(fill func(x0, y0, x1, y1 int), w, h int, r rune) {
	midX := w / 2
	midY := h / 2
	t := 1 + w/8 // stroke thickness scales with cell size

	up := func() { fill(midX-t/2, 0, midX+t/2+1, midY+t/2+1) }
	down := func() { fill(midX-t/2, midY-t/2, midX+t/2+1, h) }
	left := func() { fill(0, midY-t/2, midX+t/2+1, midY+t/2+1) }
	right := func() { fill(midX-t/2, midY-t/2, w, midY+t/2+1) }

	switch r {
	case 0x2500, 0x2501: // horizontal
		left()
		right()
	case 0x2502, 0x2503: // vertical
		up()
		down()
	case 0x250c, 0x250f: // down and right
		down()
		right()
	case 0x2510, 0x2513: // down and left
		down()
		left()
	case 0x2514, 0x2517: // up and right
		up()
		right()
	case 0x2518, 0x251b: // up and left
		up()
		left()
	case 0x251c, 0x2523: // vertical and right
		up()
		down()
		right()
	case 0x2524, 0x252b: // vertical and left
		up()
		down()
		left()
	case 0x252c, 0x2533: // down and horizontal
		down()
		left()
		right()
	case 0x2534, 0x253b: // up and horizontal
		up()
		left()
		right()
	case 0x253c, 0x254b: // cross
		up()
		down()
		left()
		right()
	default:
		// Remaining variants (dashed, rounded, doubled) fall back to a
		// plain horizontal stroke
		left()
		right()
	}
}
