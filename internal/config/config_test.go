package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ellery/kiln/internal/color"
	"github.com/ellery/kiln/internal/input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MissingFileIsDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "absent.json"), nil)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoad_Json5CommentsAccepted(t *testing.T) {
	path := writeFile(t, "kiln.json", `{
		// comments are fine in json5
		scrollback_lines: 9000,
		background: "#101010",
	}`)

	cfg := Load(path, nil)
	assert.Equal(t, 9000, cfg.ScrollbackLines)
	assert.Equal(t, "#101010", cfg.Background)
}

func TestLoad_InvalidColorSubstitutedAndReported(t *testing.T) {
	path := writeFile(t, "kiln.json", `{background: "notacolor"}`)

	var problems []string
	cfg := Load(path, func(msg string) { problems = append(problems, msg) })

	assert.Empty(t, cfg.Background, "invalid value replaced with default")
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "notacolor")

	// Palette still builds
	p := cfg.Palette()
	assert.Equal(t, color.DefaultPalette().Background, p.Background)
}

func TestConfig_PaletteOverrides(t *testing.T) {
	path := writeFile(t, "kiln.json", `{
		foreground: "#ffffff",
		ansi_colors: ["#000000", "#ff0000"],
	}`)
	cfg := Load(path, nil)

	p := cfg.Palette()
	assert.Equal(t, color.New(0xff, 0xff, 0xff), p.Foreground)
	assert.Equal(t, color.New(0xff, 0x00, 0x00), p.Colors[1])
	// Unlisted entries keep their defaults
	assert.Equal(t, color.DefaultPalette().Colors[2], p.Colors[2])
}

func TestWatcher_ReloadBumpsGeneration(t *testing.T) {
	path := writeFile(t, "kiln.json", `{scrollback_lines: 100}`)
	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	defer w.Close()

	gen := w.Generation()
	var reloaded *Config
	w.OnReload(func(c *Config) { reloaded = c })

	require.NoError(t, os.WriteFile(path, []byte(`{scrollback_lines: 200}`), 0o600))
	w.Reload(nil)

	assert.Equal(t, gen+1, w.Generation())
	require.NotNil(t, reloaded)
	assert.Equal(t, 200, reloaded.ScrollbackLines)
	assert.Equal(t, 200, w.Current().ScrollbackLines)
}

// =============================================================================
// Key bindings
// =============================================================================

func TestLoadKeyBindings_MissingFileIsDefaults(t *testing.T) {
	im := LoadKeyBindings(filepath.Join(t.TempDir(), "absent.yaml"), nil)

	s := input.NewKeyTableStack(im)
	a, ok := s.Lookup(input.Char('t'), input.ModCtrl|input.ModShift)
	require.True(t, ok)
	assert.Equal(t, input.SpawnTab, a.Kind)
}

func TestLoadKeyBindings_YamlFile(t *testing.T) {
	path := writeFile(t, "keys.yaml", `
leader:
  key: a
  mods: ctrl
  timeout_milliseconds: 1500
keys:
  - key: d
    mods: leader
    action: split_horizontal
  - key: r
    mods: leader
    action: activate_key_table
    table: resize
    one_shot: false
    timeout_milliseconds: 2000
key_tables:
  resize:
    - key: h
      action: adjust_pane_size
      arg: Left
      amount: 2
`)
	im := LoadKeyBindings(path, nil)
	require.NotNil(t, im.Leader)
	assert.Equal(t, 1500*time.Millisecond, im.Leader.Timeout)

	s := input.NewKeyTableStack(im)

	// Arm the leader, then the leader binding resolves
	_, ok := s.Lookup(input.Char('a'), input.ModCtrl)
	require.True(t, ok)
	a, ok := s.Lookup(input.Char('d'), 0)
	require.True(t, ok)
	assert.Equal(t, input.SplitHorizontal, a.Kind)

	// Leader+r pushes the resize table
	_, _ = s.Lookup(input.Char('a'), input.ModCtrl)
	a, ok = s.Lookup(input.Char('r'), 0)
	require.True(t, ok)
	require.Equal(t, input.ActivateKeyTable, a.Kind)
	s.Push(a.Activation)

	a, ok = s.Lookup(input.Char('h'), 0)
	require.True(t, ok)
	assert.Equal(t, input.AdjustPaneSize, a.Kind)
	assert.Equal(t, 2, a.Amount)
}

func TestLoadKeyBindings_BadActionReported(t *testing.T) {
	path := writeFile(t, "keys.yaml", `
keys:
  - key: x
    action: fly_to_the_moon
`)
	var problems []string
	LoadKeyBindings(path, func(msg string) { problems = append(problems, msg) })
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "fly_to_the_moon")
}
