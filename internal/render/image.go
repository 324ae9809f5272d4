package render

import (
	"image"
	"time"

	"github.com/zeebo/blake3"
)

// ImageData is a decoded image shared by every cell that shows part of it.
// Frames beyond the first animate.
type ImageData struct {
	Frames    []*image.RGBA
	Durations []time.Duration

	hash [32]byte
	hashed bool
}

// Hash fingerprints the image content for atlas caching.
func (d *ImageData) Hash() [32]byte {
	if !d.hashed {
		h := blake3.New()
		for _, f := range d.Frames {
			h.Write(f.Pix)
		}
		copy(d.hash[:], h.Sum(nil))
		d.hashed = true
	}
	return d.hash
}

// ImageCell attaches a region of an image to one cell. TopLeft and
// BottomRight are fractional coordinates into the source image; padding is
// in pixels per side.
type ImageCell struct {
	Data        *ImageData
	TopLeft     [2]float64
	BottomRight [2]float64
	PaddingLeft, PaddingTop, PaddingRight, PaddingBottom int

	frameStart time.Time
	current    int
}

// CurrentFrame advances the animation to the frame due at now, skipping
// zero-duration leading frames, and returns the frame plus the next
// deadline (zero for still images).
func (c *ImageCell) CurrentFrame(now time.Time) (*image.RGBA, time.Time) {
	if c.Data == nil || len(c.Data.Frames) == 0 {
		return nil, time.Time{}
	}
	if len(c.Data.Frames) == 1 {
		return c.Data.Frames[0], time.Time{}
	}

	if c.frameStart.IsZero() {
		c.frameStart = now
		// Zero-duration leading frames are skipped outright
		for c.current < len(c.Data.Durations) && c.Data.Durations[c.current] == 0 {
			c.current++
		}
		if c.current >= len(c.Data.Frames) {
			c.current = 0
		}
	}

	for now.Sub(c.frameStart) >= c.Data.Durations[c.current] {
		c.frameStart = c.frameStart.Add(c.Data.Durations[c.current])
		c.current = (c.current + 1) % len(c.Data.Frames)
		if c.Data.Durations[c.current] == 0 {
			// A zero-duration frame would spin; show it for one tick
			c.frameStart = now
			break
		}
	}

	next := c.frameStart.Add(c.Data.Durations[c.current])
	return c.Data.Frames[c.current], next
}
