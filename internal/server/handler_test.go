package server

import (
	"net"
	"testing"

	"github.com/ellery/kiln/internal/mux"
	"github.com/ellery/kiln/internal/pane"
	"github.com/ellery/kiln/internal/rangeset"
	"github.com/ellery/kiln/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memDomain struct{}

func (memDomain) Name() string           { return "local" }
func (memDomain) State() mux.DomainState { return mux.DomainAttached }
func (memDomain) Spawnable() bool        { return true }
func (memDomain) Attach() error          { return nil }
func (memDomain) Detach() error          { return nil }
func (memDomain) SpawnPane(id pane.ID, size mux.PtySize, cmd mux.SpawnCommand) (pane.Pane, error) {
	return pane.NewMemPane(id, size.Rows, size.Cols, 100), nil
}

func newHandlerFixture(t *testing.T) (*SessionHandler, *pane.MemPane) {
	t.Helper()
	m := mux.New()
	m.AddDomain(memDomain{})
	_, p, _, err := m.SpawnTabOrWindow(0, "local", mux.SpawnCommand{}, mux.PtySize{Rows: 5, Cols: 20}, "")
	require.NoError(t, err)

	c1, c2 := net.Pipe()
	t.Cleanup(func() { c1.Close(); c2.Close() })
	h := NewSessionHandler(m, Info{Version: "1.0.0"}, c1)
	h.negotiated = true
	return h, p.(*pane.MemPane)
}

// =============================================================================
// computeChanges
// =============================================================================

func TestComputeChanges_FirstCallSendsEverything(t *testing.T) {
	h, p := newHandlerFixture(t)
	p.Advance([]byte("hello"))

	resp := h.computeChanges(p, 0)
	require.NotNil(t, resp)
	assert.Equal(t, uint64(p.ID()), resp.PaneID)
	assert.Equal(t, int64(5), resp.Dims.Rows)
	assert.Equal(t, int64(20), resp.Dims.Cols)

	// Row 0 changed and is in the viewport: shipped inline
	found := false
	for _, bl := range resp.BonusLines {
		if bl.Row == 0 && bl.Line.String() == "hello" {
			found = true
		}
	}
	assert.True(t, found, "changed viewport row must be a bonus line")
	assert.True(t, resp.DirtyLines.IsEmpty())
}

func TestComputeChanges_QuiescentReturnsNil(t *testing.T) {
	h, p := newHandlerFixture(t)
	p.Advance([]byte("hello"))

	require.NotNil(t, h.computeChanges(p, 0))
	assert.Nil(t, h.computeChanges(p, 0))
}

func TestComputeChanges_ForceWithInputSerialAnswers(t *testing.T) {
	h, p := newHandlerFixture(t)
	p.Advance([]byte("x"))
	require.NotNil(t, h.computeChanges(p, 0))

	resp := h.computeChanges(p, 777)
	require.NotNil(t, resp)
	assert.Equal(t, wire.InputSerial(777), resp.InputSerial)
}

// The cursor row is always a bonus line, even when clean, so cursor
// redraws never lag.
func TestComputeChanges_CursorRowAlwaysBonus(t *testing.T) {
	h, p := newHandlerFixture(t)
	p.Advance([]byte("steady"))
	require.NotNil(t, h.computeChanges(p, 0))

	// Nothing changed; force a response as input does
	resp := h.computeChanges(p, 1234)
	require.NotNil(t, resp)

	cursorRow := resp.Dims.ViewportStart + resp.Cursor.Y
	found := false
	for _, bl := range resp.BonusLines {
		if bl.Row == cursorRow {
			found = true
		}
	}
	assert.True(t, found, "cursor row must ride along even when clean")
}

func TestComputeChanges_ScrollbackRowsAdvertisedNotInlined(t *testing.T) {
	h, p := newHandlerFixture(t)
	require.NotNil(t, h.computeChanges(p, 0))

	// Push enough lines that early rows leave the viewport
	for i := 0; i < 10; i++ {
		p.Advance([]byte("line\r\n"))
	}

	resp := h.computeChanges(p, 0)
	require.NotNil(t, resp)

	viewport := p.VisibleRange()
	// Dirty rows outside the viewport are advertised only
	for _, row := range resp.DirtyLines.Values() {
		assert.False(t, viewport.Contains(row), "row %d advertised but visible", row)
	}
	// Bonus rows are all within the viewport (modulo the cursor row)
	for _, bl := range resp.BonusLines {
		assert.True(t, viewport.Contains(bl.Row))
	}
	assert.False(t, resp.DirtyLines.IsEmpty())
}

func TestComputeChanges_TitleChangeTriggersResponse(t *testing.T) {
	h, p := newHandlerFixture(t)
	require.NotNil(t, h.computeChanges(p, 0))

	p.Advance([]byte("\x1b]0;new title\x07"))
	resp := h.computeChanges(p, 0)
	require.NotNil(t, resp)
	assert.Equal(t, "new title", resp.Title)
}

// =============================================================================
// dispatch
// =============================================================================

func TestDispatch_RequiresNegotiation(t *testing.T) {
	m := mux.New()
	c1, c2 := net.Pipe()
	t.Cleanup(func() { c1.Close(); c2.Close() })
	h := NewSessionHandler(m, Info{}, c1)

	resp := h.dispatch(&wire.GetCodecVersion{})
	vr, ok := resp.(*wire.GetCodecVersionResponse)
	require.True(t, ok)
	assert.Equal(t, uint64(wire.CodecVersion), vr.Codec)
}

func TestDispatch_SpawnListKill(t *testing.T) {
	h, _ := newHandlerFixture(t)

	resp := h.dispatch(&wire.SpawnV2{Domain: "local", Rows: 10, Cols: 40})
	spawned, ok := resp.(*wire.SpawnResponse)
	require.True(t, ok, "got %#v", resp)

	list := h.dispatch(&wire.ListPanes{}).(*wire.ListPanesResponse)
	assert.Len(t, list.Panes, 2)

	kill := h.dispatch(&wire.KillPane{PaneID: spawned.PaneID})
	_, ok = kill.(*wire.UnitResponse)
	assert.True(t, ok)
}

func TestDispatch_WriteAndLiveness(t *testing.T) {
	h, p := newHandlerFixture(t)

	resp := h.dispatch(&wire.WriteToPane{PaneID: uint64(p.ID()), Data: []byte("typed")})
	_, ok := resp.(*wire.UnitResponse)
	require.True(t, ok)
	assert.Equal(t, "typed", p.InputString())

	live := h.dispatch(&wire.GetLiveness{PaneID: uint64(p.ID())}).(*wire.LivenessResponse)
	assert.True(t, live.IsAlive)

	p.MarkDead()
	live = h.dispatch(&wire.GetLiveness{PaneID: uint64(p.ID())}).(*wire.LivenessResponse)
	assert.False(t, live.IsAlive)

	// Unknown panes are reported dead, not errored
	live = h.dispatch(&wire.GetLiveness{PaneID: 404}).(*wire.LivenessResponse)
	assert.False(t, live.IsAlive)
}

func TestDispatch_GetLines(t *testing.T) {
	h, p := newHandlerFixture(t)
	p.Advance([]byte("alpha\r\nbeta"))

	req := &wire.GetLines{PaneID: uint64(p.ID()), Ranges: rangesetOf(0, 2)}
	resp := h.dispatch(req).(*wire.GetLinesResponse)
	require.Len(t, resp.Lines, 2)
	assert.Equal(t, "alpha", resp.Lines[0].Line.String())
	assert.Equal(t, "beta", resp.Lines[1].Line.String())
}

func TestDispatch_SearchScrollback(t *testing.T) {
	h, p := newHandlerFixture(t)
	p.Advance([]byte("Error: one\r\nok\r\nerror: two"))

	resp := h.dispatch(&wire.SearchScrollbackRequest{
		PaneID:  uint64(p.ID()),
		Kind:    wire.SearchCaseInsensitive,
		Pattern: "error",
	}).(*wire.SearchScrollbackResponse)
	assert.Len(t, resp.Results, 2)

	re := h.dispatch(&wire.SearchScrollbackRequest{
		PaneID:  uint64(p.ID()),
		Kind:    wire.SearchRegex,
		Pattern: `(?i)error: \w+`,
	}).(*wire.SearchScrollbackResponse)
	require.Len(t, re.Results, 2)
	assert.Equal(t, "Error: one", re.Results[0].Text)
}

func TestDispatch_UnknownPaneErrors(t *testing.T) {
	h, _ := newHandlerFixture(t)
	resp := h.dispatch(&wire.Resize{PaneID: 404, Rows: 2, Cols: 2})
	_, ok := resp.(*wire.ErrorResponse)
	assert.True(t, ok)
}

func rangesetOf(start, end int64) *rangeset.RangeSet {
	rs := rangeset.New()
	rs.AddRange(rangeset.Range{Start: start, End: end})
	return rs
}
