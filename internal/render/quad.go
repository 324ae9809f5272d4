package render

import (
	"image"

	"github.com/ellery/kiln/internal/color"
)

// Layer orders quads within one cell: background fill first, then the
// glyph, then overlays (underlines, cursor, selection).
type Layer uint8

const (
	LayerBg Layer = iota
	LayerGlyph
	LayerOverlay
)

// Quad is one textured or solid rectangle in pixel coordinates.
type Quad struct {
	Layer Layer
	X     float32
	Y     float32
	W     float32
	H     float32
	// Tex is the atlas region for textured quads; HasTex is false for
	// solid fills.
	Tex    image.Rectangle
	HasTex bool
	Color  color.LinearRGBA
}

// QuadAllocator accumulates the quads of one line. Cached lines keep their
// allocator so repainting an unchanged frame reuses it bit for bit.
type QuadAllocator struct {
	quads []Quad
}

// NewQuadAllocator returns an empty allocator.
func NewQuadAllocator() *QuadAllocator {
	return &QuadAllocator{}
}

// Add appends a quad.
func (qa *QuadAllocator) Add(q Quad) {
	qa.quads = append(qa.quads, q)
}

// Quads returns the accumulated quads in layer order. The slice is owned by
// the allocator.
func (qa *QuadAllocator) Quads() []Quad {
	return qa.quads
}

// Len returns the quad count.
func (qa *QuadAllocator) Len() int { return len(qa.quads) }

// Equal compares two allocators bit for bit.
func (qa *QuadAllocator) Equal(other *QuadAllocator) bool {
	if len(qa.quads) != len(other.quads) {
		return false
	}
	for i := range qa.quads {
		if qa.quads[i] != other.quads[i] {
			return false
		}
	}
	return true
}
