// Package mux owns the pane/tab/window graph: the registry that maps ids to
// live objects, the split trees that tile panes inside a tab, and the
// domains that manufacture panes.
package mux

import (
	"fmt"
	"math"

	"github.com/ellery/kiln/internal/pane"
)

// TabID identifies a tab within one mux.
type TabID uint64

// SplitDirection says how a split divides its area.
type SplitDirection uint8

const (
	// SplitHorizontal puts the children side by side.
	SplitHorizontal SplitDirection = iota
	// SplitVertical stacks the children.
	SplitVertical
)

// node is one vertex of a tab's binary split tree: either a leaf carrying a
// pane or an internal split carrying a direction and a proportional size.
type node struct {
	leaf pane.Pane

	dir    SplitDirection
	ratio  float64 // share of the area given to first
	first  *node
	second *node
}

func (n *node) isLeaf() bool { return n.leaf != nil }

// PositionedPane is the flattened view of one leaf: its pane plus the cell
// rectangle it occupies inside the tab's content area.
type PositionedPane struct {
	Pane     pane.Pane
	Left     int
	Top      int
	Width    int
	Height   int
	IsActive bool
}

// Tab arranges panes in a binary split tree over a shared content area.
type Tab struct {
	id    TabID
	root  *node
	rows  int
	cols  int
	active pane.ID
	// zoomed, when set, shows a single pane over the whole area while the
	// split layout is retained underneath.
	zoomed pane.ID
}

// NewTab builds a tab holding a single pane.
func NewTab(id TabID, p pane.Pane, rows, cols int) *Tab {
	return &Tab{
		id:     id,
		root:   &node{leaf: p},
		rows:   rows,
		cols:   cols,
		active: p.ID(),
	}
}

// ID returns the tab id.
func (t *Tab) ID() TabID { return t.id }

// Size returns the tab's content area in cells.
func (t *Tab) Size() (rows, cols int) { return t.rows, t.cols }

// ActivePane returns the id of the focused pane.
func (t *Tab) ActivePane() pane.ID { return t.active }

// SetActivePane focuses the given pane if it lives in this tab.
func (t *Tab) SetActivePane(id pane.ID) bool {
	if t.findLeaf(t.root, id) == nil {
		return false
	}
	t.active = id
	return true
}

// SetZoomed zooms a pane over the whole tab, or clears the zoom with id 0.
func (t *Tab) SetZoomed(id pane.ID, zoomed bool) bool {
	if !zoomed {
		t.zoomed = 0
		t.resizeAll()
		return true
	}
	leaf := t.findLeaf(t.root, id)
	if leaf == nil {
		return false
	}
	t.zoomed = id
	_ = leaf.leaf.Resize(t.rows, t.cols)
	return true
}

// Zoomed returns the zoomed pane id, or 0.
func (t *Tab) Zoomed() pane.ID { return t.zoomed }

func (t *Tab) findLeaf(n *node, id pane.ID) *node {
	if n == nil {
		return nil
	}
	if n.isLeaf() {
		if n.leaf.ID() == id {
			return n
		}
		return nil
	}
	if found := t.findLeaf(n.first, id); found != nil {
		return found
	}
	return t.findLeaf(n.second, id)
}

// PositionedPanes flattens the split tree into rectangles. The rectangles
// tile the content area exactly: no gaps, no overlap. A zoomed pane covers
// everything by itself.
func (t *Tab) PositionedPanes() []PositionedPane {
	if t.zoomed != 0 {
		if leaf := t.findLeaf(t.root, t.zoomed); leaf != nil {
			return []PositionedPane{{
				Pane:     leaf.leaf,
				Width:    t.cols,
				Height:   t.rows,
				IsActive: leaf.leaf.ID() == t.active,
			}}
		}
	}
	var out []PositionedPane
	t.flatten(t.root, 0, 0, t.cols, t.rows, &out)
	return out
}

func (t *Tab) flatten(n *node, left, top, width, height int, out *[]PositionedPane) {
	if n == nil {
		return
	}
	if n.isLeaf() {
		*out = append(*out, PositionedPane{
			Pane:     n.leaf,
			Left:     left,
			Top:      top,
			Width:    width,
			Height:   height,
			IsActive: n.leaf.ID() == t.active,
		})
		return
	}
	if n.dir == SplitHorizontal {
		firstW := int(math.Round(n.ratio * float64(width)))
		if firstW < 1 {
			firstW = 1
		}
		if firstW > width-1 {
			firstW = width - 1
		}
		t.flatten(n.first, left, top, firstW, height, out)
		t.flatten(n.second, left+firstW, top, width-firstW, height, out)
	} else {
		firstH := int(math.Round(n.ratio * float64(height)))
		if firstH < 1 {
			firstH = 1
		}
		if firstH > height-1 {
			firstH = height - 1
		}
		t.flatten(n.first, left, top, width, firstH, out)
		t.flatten(n.second, left, top+firstH, width, height-firstH, out)
	}
}

// Panes lists every pane in the tab in tree order.
func (t *Tab) Panes() []pane.Pane {
	var out []pane.Pane
	var walk func(n *node)
	walk = func(n *node) {
		if n == nil {
			return
		}
		if n.isLeaf() {
			out = append(out, n.leaf)
			return
		}
		walk(n.first)
		walk(n.second)
	}
	walk(t.root)
	return out
}

// CountPanes returns the number of leaves.
func (t *Tab) CountPanes() int { return len(t.Panes()) }

// Split replaces the leaf holding existing with a split of it and the new
// pane, giving each half the area. It returns the rectangle allotted to the
// new pane so the caller can size its PTY.
func (t *Tab) Split(existing pane.ID, dir SplitDirection, newPane pane.Pane) (PositionedPane, error) {
	leaf := t.findLeaf(t.root, existing)
	if leaf == nil {
		return PositionedPane{}, fmt.Errorf("pane %d not in tab %d", existing, t.id)
	}

	old := leaf.leaf
	leaf.leaf = nil
	leaf.dir = dir
	leaf.ratio = 0.5
	leaf.first = &node{leaf: old}
	leaf.second = &node{leaf: newPane}

	t.zoomed = 0
	t.active = newPane.ID()
	t.resizeAll()

	for _, pp := range t.PositionedPanes() {
		if pp.Pane.ID() == newPane.ID() {
			return pp, nil
		}
	}
	return PositionedPane{}, fmt.Errorf("split of pane %d produced no rectangle", existing)
}

// Remove deletes the leaf for id, promoting its sibling. Returns false when
// the pane is not in this tab; when the removed pane was the last one the
// tab becomes empty and the caller should drop it.
func (t *Tab) Remove(id pane.ID) bool {
	if t.root.isLeaf() {
		if t.root.leaf.ID() != id {
			return false
		}
		t.root = nil
		return true
	}

	var walk func(n *node) bool
	walk = func(n *node) bool {
		if n == nil || n.isLeaf() {
			return false
		}
		for _, child := range []*node{n.first, n.second} {
			if child.isLeaf() && child.leaf.ID() == id {
				sibling := n.second
				if child == n.second {
					sibling = n.first
				}
				*n = *sibling
				return true
			}
		}
		return walk(n.first) || walk(n.second)
	}
	if !walk(t.root) {
		return false
	}

	if t.zoomed == id {
		t.zoomed = 0
	}
	if t.active == id {
		panes := t.Panes()
		if len(panes) > 0 {
			t.active = panes[0].ID()
		}
	}
	t.resizeAll()
	return true
}

// IsEmpty reports whether every pane has been removed.
func (t *Tab) IsEmpty() bool { return t.root == nil }

// Resize updates the content area and re-lays-out every pane.
func (t *Tab) Resize(rows, cols int) {
	if rows < 1 || cols < 1 {
		return
	}
	t.rows = rows
	t.cols = cols
	t.resizeAll()
}

// resizeAll pushes the flattened rectangles into the panes' PTYs.
func (t *Tab) resizeAll() {
	if t.root == nil {
		return
	}
	for _, pp := range t.PositionedPanes() {
		_ = pp.Pane.Resize(pp.Height, pp.Width)
	}
}

// AdjustRatio nudges the split that directly contains the pane. Used by
// interactive resize bindings.
func (t *Tab) AdjustRatio(id pane.ID, delta float64) bool {
	var walk func(n *node) bool
	walk = func(n *node) bool {
		if n == nil || n.isLeaf() {
			return false
		}
		if (n.first.isLeaf() && n.first.leaf.ID() == id) ||
			(n.second.isLeaf() && n.second.leaf.ID() == id) {
			n.ratio += delta
			if n.ratio < 0.1 {
				n.ratio = 0.1
			}
			if n.ratio > 0.9 {
				n.ratio = 0.9
			}
			t.resizeAll()
			return true
		}
		return walk(n.first) || walk(n.second)
	}
	return walk(t.root)
}
