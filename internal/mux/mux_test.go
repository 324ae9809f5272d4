package mux

import (
	"testing"

	"github.com/ellery/kiln/internal/pane"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memDomain spawns in-memory panes so tests need no PTYs.
type memDomain struct{}

func (memDomain) Name() string       { return "local" }
func (memDomain) State() DomainState { return DomainAttached }
func (memDomain) Spawnable() bool    { return true }
func (memDomain) Attach() error      { return nil }
func (memDomain) Detach() error      { return nil }
func (memDomain) SpawnPane(id pane.ID, size PtySize, cmd SpawnCommand) (pane.Pane, error) {
	return pane.NewMemPane(id, size.Rows, size.Cols, 100), nil
}

func newTestMux() *Mux {
	m := New()
	m.AddDomain(memDomain{})
	return m
}

func spawnOne(t *testing.T, m *Mux) (*Tab, pane.Pane, WindowID) {
	t.Helper()
	tab, p, win, err := m.SpawnTabOrWindow(0, "local", SpawnCommand{}, PtySize{Rows: 24, Cols: 80}, "")
	require.NoError(t, err)
	return tab, p, win
}

// =============================================================================
// Spawning and registry
// =============================================================================

func TestMux_SpawnCreatesWindowTabPane(t *testing.T) {
	m := newTestMux()
	tab, p, win := spawnOne(t, m)

	got, err := m.GetPane(p.ID())
	require.NoError(t, err)
	assert.Equal(t, p.ID(), got.ID())

	winID, tabID, err := m.ResolvePaneID(p.ID())
	require.NoError(t, err)
	assert.Equal(t, win, winID)
	assert.Equal(t, tab.ID(), tabID)

	wins := m.IterWindows()
	require.Len(t, wins, 1)
	assert.Equal(t, DefaultWorkspace, wins[0].Workspace)
}

func TestMux_SpawnIntoExistingWindow(t *testing.T) {
	m := newTestMux()
	_, _, win := spawnOne(t, m)

	_, _, win2, err := m.SpawnTabOrWindow(win, "local", SpawnCommand{}, PtySize{Rows: 24, Cols: 80}, "")
	require.NoError(t, err)
	assert.Equal(t, win, win2)

	w, ok := m.GetWindow(win)
	require.True(t, ok)
	assert.Len(t, w.Tabs, 2)
	assert.Equal(t, 1, w.ActiveTab)
}

func TestMux_UnknownDomain(t *testing.T) {
	m := newTestMux()
	_, _, _, err := m.SpawnTabOrWindow(0, "nope", SpawnCommand{}, PtySize{Rows: 24, Cols: 80}, "")
	assert.ErrorIs(t, err, ErrUnknownDomain)
}

func TestMux_UnknownPane(t *testing.T) {
	m := newTestMux()
	_, err := m.GetPane(999)
	assert.ErrorIs(t, err, ErrUnknownPane)
}

// =============================================================================
// Split trees
// =============================================================================

func TestTab_SplitTilesExactly(t *testing.T) {
	m := newTestMux()
	tab, p1, _ := spawnOne(t, m)

	p2, size, err := m.SplitPane(p1.ID(), SplitHorizontal, "local", SpawnCommand{})
	require.NoError(t, err)
	assert.Equal(t, 24, size.Rows)

	p3, _, err := m.SplitPane(p2.ID(), SplitVertical, "local", SpawnCommand{})
	require.NoError(t, err)

	panes := tab.PositionedPanes()
	require.Len(t, panes, 3)

	// The rectangles tile the 80x24 area: no gaps, no overlap
	covered := make(map[[2]int]int)
	for _, pp := range panes {
		for y := pp.Top; y < pp.Top+pp.Height; y++ {
			for x := pp.Left; x < pp.Left+pp.Width; x++ {
				covered[[2]int{x, y}]++
			}
		}
	}
	assert.Equal(t, 80*24, len(covered))
	for pos, n := range covered {
		require.Equal(t, 1, n, "cell %v covered %d times", pos, n)
	}

	// Exactly one active pane, and it is the most recent split
	actives := 0
	for _, pp := range panes {
		if pp.IsActive {
			actives++
			assert.Equal(t, p3.ID(), pp.Pane.ID())
		}
	}
	assert.Equal(t, 1, actives)
}

func TestTab_SplitResizesPanes(t *testing.T) {
	m := newTestMux()
	_, p1, _ := spawnOne(t, m)

	_, _, err := m.SplitPane(p1.ID(), SplitHorizontal, "local", SpawnCommand{})
	require.NoError(t, err)

	rows, cols := p1.Dimensions()
	assert.Equal(t, 24, rows)
	assert.Equal(t, 40, cols)
}

func TestTab_RemoveCollapsesSplit(t *testing.T) {
	m := newTestMux()
	tab, p1, _ := spawnOne(t, m)
	p2, _, err := m.SplitPane(p1.ID(), SplitHorizontal, "local", SpawnCommand{})
	require.NoError(t, err)

	m.RemovePane(p2.ID())

	panes := tab.PositionedPanes()
	require.Len(t, panes, 1)
	assert.Equal(t, p1.ID(), panes[0].Pane.ID())
	assert.Equal(t, 80, panes[0].Width)
	assert.True(t, panes[0].IsActive)
}

func TestMux_RemoveLastPanePrunesWindow(t *testing.T) {
	m := newTestMux()
	_, p, win := spawnOne(t, m)

	m.RemovePane(p.ID())

	_, err := m.GetPane(p.ID())
	assert.Error(t, err)
	_, ok := m.GetWindow(win)
	assert.False(t, ok)
	assert.Empty(t, m.IterPanes())
}

func TestTab_Zoom(t *testing.T) {
	m := newTestMux()
	tab, p1, _ := spawnOne(t, m)
	p2, _, err := m.SplitPane(p1.ID(), SplitHorizontal, "local", SpawnCommand{})
	require.NoError(t, err)

	require.True(t, tab.SetZoomed(p2.ID(), true))
	panes := tab.PositionedPanes()
	require.Len(t, panes, 1)
	assert.Equal(t, p2.ID(), panes[0].Pane.ID())
	assert.Equal(t, 80, panes[0].Width)

	// Unzoom restores the split layout
	require.True(t, tab.SetZoomed(0, false))
	assert.Len(t, tab.PositionedPanes(), 2)
}

func TestTab_ResizeRedistributes(t *testing.T) {
	m := newTestMux()
	tab, p1, _ := spawnOne(t, m)
	_, _, err := m.SplitPane(p1.ID(), SplitVertical, "local", SpawnCommand{})
	require.NoError(t, err)

	tab.Resize(40, 100)

	total := 0
	for _, pp := range tab.PositionedPanes() {
		assert.Equal(t, 100, pp.Width)
		total += pp.Height
	}
	assert.Equal(t, 40, total)
}

// =============================================================================
// Notifications and lifecycle
// =============================================================================

func TestMux_Notifications(t *testing.T) {
	m := newTestMux()
	ch := m.Subscribe()

	_, p, _ := spawnOne(t, m)

	n := <-ch
	assert.Equal(t, NotifyWindowCreated, n.Kind)
	n = <-ch
	assert.Equal(t, NotifyPaneAdded, n.Kind)
	assert.Equal(t, p.ID(), n.Pane)

	m.RemovePane(p.ID())
	n = <-ch
	assert.Equal(t, NotifyPaneRemoved, n.Kind)
}

func TestMux_PruneDeadPanes(t *testing.T) {
	m := newTestMux()
	_, p, _ := spawnOne(t, m)

	p.(*pane.MemPane).MarkDead()
	m.PruneDeadPanes()

	assert.Empty(t, m.IterPanes())
}
