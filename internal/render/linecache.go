package render

import (
	"time"

	"github.com/ellery/kiln/internal/cell"
	"github.com/ellery/kiln/internal/pane"
	"github.com/ellery/kiln/internal/wire"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/blake3"
)

// lineCacheEntries bounds the per-window quad cache.
const lineCacheEntries = 1024

// ShapeHash fingerprints a line's shaping-relevant content.
type ShapeHash [32]byte

// HashLine computes the line's shape hash, memoizing it on the line's
// app-data handle so unchanged lines are never rehashed. Any mutation
// clears the handle.
func HashLine(l *cell.Line) ShapeHash {
	if v, ok := l.AppData().(ShapeHash); ok {
		return v
	}
	var e wire.Encoder
	wire.EncodeLine(&e, l)
	h := ShapeHash(blake3.Sum256(e.Bytes()))
	l.SetAppData(h)
	return h
}

// CursorProps is the cursor portion of a cache key; the zero value means
// the cursor is not on this line.
type CursorProps struct {
	OnLine  bool
	X       int
	Shape   byte
	Visible bool
	// BlinkPhase folds the blink animation state into the key.
	BlinkPhase uint8
}

// LineQuadCacheKey identifies one rendered line variant. Any field change
// forces a rebuild; everything that can alter the pixels must be in here.
type LineQuadCacheKey struct {
	ConfigGeneration uint64
	ShapeGeneration  uint64
	QuadGeneration   uint64
	Composing        string
	SelectionStart   int
	SelectionEnd     int
	ShapeHash        ShapeHash
	TopPixel         int
	LeftPixel        int
	PhysLineIdx      int
	PaneID           pane.ID
	PaneIsActive     bool
	Cursor           CursorProps
	ReverseVideo     bool
	PasswordInput    bool
}

// CachedQuads is a cache value: the quads plus an optional animation expiry
// and the hover-sensitivity bit.
type CachedQuads struct {
	Quads *QuadAllocator
	// ExpiresAt is non-zero when an animation (blink, bell, image frame)
	// bounds the entry's validity.
	ExpiresAt time.Time
	// InvalidateOnHoverChange marks lines whose hyperlink underline would
	// change under the pointer.
	InvalidateOnHoverChange bool
}

// Expired reports whether the entry's animation deadline has passed.
func (c *CachedQuads) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// LineQuadCache memoizes rendered lines.
type LineQuadCache struct {
	cache *lru.Cache[LineQuadCacheKey, *CachedQuads]
}

// NewLineQuadCache builds an empty cache.
func NewLineQuadCache() *LineQuadCache {
	c, err := lru.New[LineQuadCacheKey, *CachedQuads](lineCacheEntries)
	if err != nil {
		panic(err)
	}
	return &LineQuadCache{cache: c}
}

// Get returns a live entry, treating expiry as a miss.
func (lc *LineQuadCache) Get(key LineQuadCacheKey, now time.Time, hoverChanged bool) (*CachedQuads, bool) {
	entry, ok := lc.cache.Get(key)
	if !ok {
		return nil, false
	}
	if entry.Expired(now) {
		lc.cache.Remove(key)
		return nil, false
	}
	if hoverChanged && entry.InvalidateOnHoverChange {
		lc.cache.Remove(key)
		return nil, false
	}
	return entry, true
}

// Put installs an entry.
func (lc *LineQuadCache) Put(key LineQuadCacheKey, entry *CachedQuads) {
	lc.cache.Add(key, entry)
}

// Purge drops everything; used when the atlas or config generation moves.
func (lc *LineQuadCache) Purge() {
	lc.cache.Purge()
}

// Len returns the number of cached lines.
func (lc *LineQuadCache) Len() int {
	return lc.cache.Len()
}
