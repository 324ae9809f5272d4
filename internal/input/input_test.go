package input

import (
	"testing"
	"time"

	"github.com/ellery/kiln/internal/vt"
	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFixture() (*InputMap, *KeyTableStack, *time.Time) {
	im := NewInputMap()
	im.Bind(Combo{Key: Char('t'), Mods: ModCtrl}, Assignment{Kind: SpawnTab})
	im.Bind(Combo{Key: Char('d'), Mods: ModLeader}, Assignment{Kind: SplitHorizontal})
	im.BindIn("resize", Combo{Key: Char('h')}, Assignment{Kind: AdjustPaneSize, Arg: "Left", Amount: 1})
	im.BindIn("resize", Combo{Key: Fn(tcell.KeyEscape)}, Assignment{Kind: PopKeyTable})
	im.BindIn("copy_mode", Combo{Key: Char('q')}, Assignment{Kind: PopKeyTable})

	stack := NewKeyTableStack(im)
	now := time.Now()
	stack.SetNowFunc(func() time.Time { return now })
	return im, stack, &now
}

// =============================================================================
// Basic lookup
// =============================================================================

func TestLookup_DefaultTable(t *testing.T) {
	_, s, _ := newFixture()

	a, ok := s.Lookup(Char('t'), ModCtrl)
	require.True(t, ok)
	assert.Equal(t, SpawnTab, a.Kind)

	_, ok = s.Lookup(Char('x'), 0)
	assert.False(t, ok)
}

func TestLookup_StackShadowsDefault(t *testing.T) {
	im, s, _ := newFixture()
	im.BindIn("resize", Combo{Key: Char('t'), Mods: ModCtrl}, Assignment{Kind: Nop})

	s.Push(TableActivation{Name: "resize"})
	a, ok := s.Lookup(Char('t'), ModCtrl)
	require.True(t, ok)
	assert.Equal(t, Nop, a.Kind)
}

func TestLookup_FallsBackToDefaultOnMiss(t *testing.T) {
	_, s, _ := newFixture()
	s.Push(TableActivation{Name: "resize"})

	a, ok := s.Lookup(Char('t'), ModCtrl)
	require.True(t, ok)
	assert.Equal(t, SpawnTab, a.Kind)
	// Plain miss does not pop the table
	assert.Equal(t, 1, s.Depth())
}

// =============================================================================
// Shift normalization
// =============================================================================

func TestLookup_ShiftNormalization(t *testing.T) {
	im := NewInputMap()
	// Authored as Shift+a
	im.Bind(Combo{Key: Char('a'), Mods: ModShift}, Assignment{Kind: QuickSelect})
	s := NewKeyTableStack(im)

	// Composed form: uppercase A with no shift reported
	a, ok := s.Lookup(Char('A'), 0)
	require.True(t, ok)
	assert.Equal(t, QuickSelect, a.Kind)

	// Physical form: lowercase a with shift
	a, ok = s.Lookup(Char('a'), ModShift)
	require.True(t, ok)
	assert.Equal(t, QuickSelect, a.Kind)
}

// =============================================================================
// Expiration
// =============================================================================

func TestStack_ExpiredEntriesPoppedAtLookup(t *testing.T) {
	_, s, now := newFixture()
	s.Push(TableActivation{Name: "resize", Timeout: time.Second})

	*now = now.Add(2 * time.Second)
	_, _ = s.Lookup(Char('h'), 0)

	// After any lookup, no expired entry survives at the top
	assert.Equal(t, 0, s.Depth())
}

func TestStack_HitRefreshesDeadline(t *testing.T) {
	_, s, now := newFixture()
	s.Push(TableActivation{Name: "resize", Timeout: time.Second})

	*now = now.Add(800 * time.Millisecond)
	a, ok := s.Lookup(Char('h'), 0)
	require.True(t, ok)
	assert.Equal(t, AdjustPaneSize, a.Kind)

	// The hit refreshed the deadline: still live 800ms later
	*now = now.Add(800 * time.Millisecond)
	_, ok = s.Lookup(Char('h'), 0)
	assert.True(t, ok)
	assert.Equal(t, 1, s.Depth())
}

// =============================================================================
// one_shot / until_unknown / prevent_fallback
// =============================================================================

func TestStack_OneShotNeverSurvivesMatch(t *testing.T) {
	_, s, _ := newFixture()
	s.Push(TableActivation{Name: "resize", OneShot: true})

	a, ok := s.Lookup(Char('h'), 0)
	require.True(t, ok)
	assert.Equal(t, AdjustPaneSize, a.Kind)
	assert.Equal(t, 0, s.Depth())
}

func TestStack_OneShotPoppedOnDefaultFallback(t *testing.T) {
	_, s, _ := newFixture()
	s.Push(TableActivation{Name: "resize", OneShot: true})

	// Miss in resize, hit in default: the one_shot still never survives
	a, ok := s.Lookup(Char('t'), ModCtrl)
	require.True(t, ok)
	assert.Equal(t, SpawnTab, a.Kind)
	assert.Equal(t, 0, s.Depth())
}

func TestStack_UntilUnknownPopsOnMiss(t *testing.T) {
	_, s, _ := newFixture()
	s.Push(TableActivation{Name: "copy_mode", UntilUnknown: true})

	// 'z' is bound nowhere: the entry pops after the lookup
	_, ok := s.Lookup(Char('z'), 0)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Depth())
}

func TestStack_PreventFallbackReturnsNop(t *testing.T) {
	_, s, _ := newFixture()
	s.Push(TableActivation{Name: "copy_mode", PreventFallback: true})

	// Ctrl+t is bound in the default table, but fallback is prevented
	a, ok := s.Lookup(Char('t'), ModCtrl)
	require.True(t, ok)
	assert.Equal(t, Nop, a.Kind)
	assert.Equal(t, 1, s.Depth())
}

// =============================================================================
// Leader
// =============================================================================

func leaderFixture() (*KeyTableStack, *time.Time) {
	im := NewInputMap()
	im.Leader = &Leader{Key: Char('a'), Mods: ModCtrl, Timeout: time.Second}
	im.Bind(Combo{Key: Char('d'), Mods: ModLeader}, Assignment{Kind: SplitHorizontal})
	im.Bind(Combo{Key: Char('d')}, Assignment{Kind: SpawnWindow})

	s := NewKeyTableStack(im)
	now := time.Now()
	s.SetNowFunc(func() time.Time { return now })
	return s, &now
}

func TestLeader_ArmsAndResolves(t *testing.T) {
	s, _ := leaderFixture()

	a, ok := s.Lookup(Char('a'), ModCtrl)
	require.True(t, ok)
	assert.Equal(t, ActivateLeader, a.Kind)
	assert.True(t, s.LeaderActive())

	// d with leader resolves the LEADER binding, not the plain one
	a, ok = s.Lookup(Char('d'), 0)
	require.True(t, ok)
	assert.Equal(t, SplitHorizontal, a.Kind)
	assert.False(t, s.LeaderActive(), "leader is consumed by a match")
}

func TestLeader_ExpiresAfterTimeout(t *testing.T) {
	s, now := leaderFixture()
	_, _ = s.Lookup(Char('a'), ModCtrl)
	require.True(t, s.LeaderActive())

	*now = now.Add(2 * time.Second)
	assert.False(t, s.LeaderActive())

	// After expiry the plain binding applies again
	a, ok := s.Lookup(Char('d'), 0)
	require.True(t, ok)
	assert.Equal(t, SpawnWindow, a.Kind)
}

func TestLeader_SuppressesDefaultFallback(t *testing.T) {
	s, _ := leaderFixture()
	_, _ = s.Lookup(Char('a'), ModCtrl)

	// 'x' has no LEADER binding; with the leader armed only LEADER
	// bindings of the default table can match
	_, ok := s.Lookup(Char('x'), 0)
	assert.False(t, ok)
	assert.False(t, s.LeaderActive(), "unbound key spends the leader")
}

// =============================================================================
// Key encoding
// =============================================================================

func TestEncodeKey_Basics(t *testing.T) {
	var modes vt.InputModes

	assert.Equal(t, []byte("x"), EncodeKey(Char('x'), 0, modes))
	assert.Equal(t, []byte{0x03}, EncodeKey(Char('c'), ModCtrl, modes))
	assert.Equal(t, []byte{0x1b, 'f'}, EncodeKey(Char('f'), ModAlt, modes))
	assert.Equal(t, []byte{'\r'}, EncodeKey(Fn(tcell.KeyEnter), 0, modes))
	assert.Equal(t, []byte{0x7f}, EncodeKey(Fn(tcell.KeyBackspace2), 0, modes))
	assert.Equal(t, []byte("\x1b[Z"), EncodeKey(Fn(tcell.KeyTab), ModShift, modes))
}

func TestEncodeKey_CursorKeysHonorDECCKM(t *testing.T) {
	normal := vt.InputModes{}
	app := vt.InputModes{CursorKeysApp: true}

	assert.Equal(t, []byte("\x1b[A"), EncodeKey(Fn(tcell.KeyUp), 0, normal))
	assert.Equal(t, []byte("\x1bOA"), EncodeKey(Fn(tcell.KeyUp), 0, app))

	// Ctrl-modified arrows use the CSI 1;n form even in application mode
	assert.Equal(t, []byte("\x1b[1;5C"), EncodeKey(Fn(tcell.KeyRight), ModCtrl, app))
}
