package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ellery/kiln/internal/input"
	"github.com/gdamore/tcell/v2"
	"gopkg.in/yaml.v2"
)

// KeyBindingFile is the yaml shape of the key-binding configuration.
type KeyBindingFile struct {
	Leader *LeaderSpec          `yaml:"leader"`
	Keys   []KeySpec            `yaml:"keys"`
	Tables map[string][]KeySpec `yaml:"key_tables"`
}

// LeaderSpec configures the modal prefix key.
type LeaderSpec struct {
	Key       string `yaml:"key"`
	Mods      string `yaml:"mods"`
	TimeoutMs int    `yaml:"timeout_milliseconds"`
}

// KeySpec is one binding row.
type KeySpec struct {
	Key    string `yaml:"key"`
	Mods   string `yaml:"mods"`
	Action string `yaml:"action"`
	Arg    string `yaml:"arg"`
	Amount int    `yaml:"amount"`

	// Table activation fields, used with action: activate_key_table
	Table           string `yaml:"table"`
	TimeoutMs       int    `yaml:"timeout_milliseconds"`
	OneShot         bool   `yaml:"one_shot"`
	UntilUnknown    bool   `yaml:"until_unknown"`
	PreventFallback bool   `yaml:"prevent_fallback"`
}

// LoadKeyBindings parses the yaml file into an InputMap. A missing file
// yields the default bindings; a malformed file reports and falls back.
func LoadKeyBindings(path string, onProblem func(string)) *input.InputMap {
	im := DefaultKeyBindings()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) && onProblem != nil {
			onProblem(fmt.Sprintf("keybindings: %v", err))
		}
		return im
	}

	var file KeyBindingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		if onProblem != nil {
			onProblem(fmt.Sprintf("keybindings: parse %s: %v", path, err))
		}
		return im
	}

	if file.Leader != nil {
		key, kerr := parseKey(file.Leader.Key)
		mods, merr := parseMods(file.Leader.Mods)
		if kerr != nil || merr != nil {
			if onProblem != nil {
				onProblem(fmt.Sprintf("keybindings: bad leader: %v %v", kerr, merr))
			}
		} else {
			timeout := time.Duration(file.Leader.TimeoutMs) * time.Millisecond
			if timeout == 0 {
				timeout = time.Second
			}
			im.Leader = &input.Leader{Key: key, Mods: mods, Timeout: timeout}
		}
	}

	install := func(table string, specs []KeySpec) {
		for _, spec := range specs {
			combo, a, err := parseSpec(spec)
			if err != nil {
				if onProblem != nil {
					onProblem(fmt.Sprintf("keybindings: %v", err))
				}
				continue
			}
			if table == "" {
				im.Bind(combo, a)
			} else {
				im.BindIn(table, combo, a)
			}
		}
	}
	install("", file.Keys)
	for name, specs := range file.Tables {
		install(name, specs)
	}
	return im
}

// parseSpec converts one yaml row.
func parseSpec(spec KeySpec) (input.Combo, input.Assignment, error) {
	key, err := parseKey(spec.Key)
	if err != nil {
		return input.Combo{}, input.Assignment{}, fmt.Errorf("key %q: %w", spec.Key, err)
	}
	mods, err := parseMods(spec.Mods)
	if err != nil {
		return input.Combo{}, input.Assignment{}, fmt.Errorf("mods %q: %w", spec.Mods, err)
	}
	kind, ok := actionNames[strings.ToLower(spec.Action)]
	if !ok {
		return input.Combo{}, input.Assignment{}, fmt.Errorf("unknown action %q", spec.Action)
	}
	a := input.Assignment{Kind: kind, Arg: spec.Arg, Amount: spec.Amount}
	if kind == input.ActivateKeyTable {
		a.Activation = input.TableActivation{
			Name:            spec.Table,
			Timeout:         time.Duration(spec.TimeoutMs) * time.Millisecond,
			OneShot:         spec.OneShot,
			UntilUnknown:    spec.UntilUnknown,
			PreventFallback: spec.PreventFallback,
		}
	}
	return input.Combo{Key: key, Mods: mods}, a, nil
}

var actionNames = map[string]input.AssignmentKind{
	"nop":                   input.Nop,
	"spawn_tab":             input.SpawnTab,
	"spawn_window":          input.SpawnWindow,
	"close_current_pane":    input.CloseCurrentPane,
	"split_horizontal":      input.SplitHorizontal,
	"split_vertical":        input.SplitVertical,
	"activate_pane":         input.ActivatePaneDirection,
	"activate_tab_relative": input.ActivateTabRelative,
	"toggle_zoom":           input.ToggleZoom,
	"adjust_pane_size":      input.AdjustPaneSize,
	"copy_to":               input.CopyTo,
	"paste_from":            input.PasteFrom,
	"activate_copy_mode":    input.ActivateCopyMode,
	"quick_select":          input.QuickSelect,
	"char_select":           input.CharSelect,
	"search":                input.Search,
	"scroll_by_page":        input.ScrollByPage,
	"send_string":           input.SendString,
	"activate_key_table":    input.ActivateKeyTable,
	"pop_key_table":         input.PopKeyTable,
	"clear_key_table_stack": input.ClearKeyTableStack,
	"reload_configuration":  input.ReloadConfiguration,
	"detach_domain":         input.DetachDomain,
}

var namedKeys = map[string]tcell.Key{
	"enter":     tcell.KeyEnter,
	"tab":       tcell.KeyTab,
	"escape":    tcell.KeyEscape,
	"backspace": tcell.KeyBackspace2,
	"up":        tcell.KeyUp,
	"down":      tcell.KeyDown,
	"left":      tcell.KeyLeft,
	"right":     tcell.KeyRight,
	"home":      tcell.KeyHome,
	"end":       tcell.KeyEnd,
	"pageup":    tcell.KeyPgUp,
	"pagedown":  tcell.KeyPgDn,
	"insert":    tcell.KeyInsert,
	"delete":    tcell.KeyDelete,
	"f1":        tcell.KeyF1,
	"f2":        tcell.KeyF2,
	"f3":        tcell.KeyF3,
	"f4":        tcell.KeyF4,
	"f5":        tcell.KeyF5,
	"f6":        tcell.KeyF6,
	"f7":        tcell.KeyF7,
	"f8":        tcell.KeyF8,
	"f9":        tcell.KeyF9,
	"f10":       tcell.KeyF10,
	"f11":       tcell.KeyF11,
	"f12":       tcell.KeyF12,
}

func parseKey(s string) (input.KeyCode, error) {
	if s == "" {
		return input.KeyCode{}, fmt.Errorf("empty key")
	}
	if k, ok := namedKeys[strings.ToLower(s)]; ok {
		return input.Fn(k), nil
	}
	runes := []rune(s)
	if len(runes) != 1 {
		return input.KeyCode{}, fmt.Errorf("unrecognized key name %q", s)
	}
	return input.Char(runes[0]), nil
}

func parseMods(s string) (input.Modifiers, error) {
	var mods input.Modifiers
	if s == "" {
		return 0, nil
	}
	for _, part := range strings.Split(s, "|") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "shift":
			mods |= input.ModShift
		case "alt", "opt", "meta":
			mods |= input.ModAlt
		case "ctrl", "control":
			mods |= input.ModCtrl
		case "super", "cmd", "win":
			mods |= input.ModSuper
		case "leader":
			mods |= input.ModLeader
		case "":
		default:
			return 0, fmt.Errorf("unknown modifier %q", part)
		}
	}
	return mods, nil
}

// DefaultKeyBindings installs the built-in bindings.
func DefaultKeyBindings() *input.InputMap {
	im := input.NewInputMap()

	bind := func(r rune, mods input.Modifiers, kind input.AssignmentKind, arg string, amount int) {
		im.Bind(input.Combo{Key: input.Char(r), Mods: mods}, input.Assignment{Kind: kind, Arg: arg, Amount: amount})
	}

	ctrlShift := input.ModCtrl | input.ModShift
	bind('t', ctrlShift, input.SpawnTab, "", 0)
	bind('n', ctrlShift, input.SpawnWindow, "", 0)
	bind('w', ctrlShift, input.CloseCurrentPane, "", 0)
	bind('%', ctrlShift, input.SplitHorizontal, "", 0)
	bind('"', ctrlShift, input.SplitVertical, "", 0)
	bind('z', ctrlShift, input.ToggleZoom, "", 0)
	bind('c', ctrlShift, input.CopyTo, "Clipboard", 0)
	bind('v', ctrlShift, input.PasteFrom, "Clipboard", 0)
	bind('x', ctrlShift, input.ActivateCopyMode, "", 0)
	bind(' ', ctrlShift, input.QuickSelect, "", 0)
	bind('u', ctrlShift, input.CharSelect, "", 0)
	bind('f', ctrlShift, input.Search, "", 0)
	bind('r', ctrlShift, input.ReloadConfiguration, "", 0)

	im.Bind(input.Combo{Key: input.Fn(tcell.KeyPgUp), Mods: input.ModShift},
		input.Assignment{Kind: input.ScrollByPage, Amount: -1})
	im.Bind(input.Combo{Key: input.Fn(tcell.KeyPgDn), Mods: input.ModShift},
		input.Assignment{Kind: input.ScrollByPage, Amount: 1})

	for _, dir := range []struct {
		key tcell.Key
		arg string
	}{
		{tcell.KeyLeft, "Left"},
		{tcell.KeyRight, "Right"},
		{tcell.KeyUp, "Up"},
		{tcell.KeyDown, "Down"},
	} {
		im.Bind(input.Combo{Key: input.Fn(dir.key), Mods: ctrlShift},
			input.Assignment{Kind: input.ActivatePaneDirection, Arg: dir.arg})
	}

	// The resize table: activated from a binding, adjusts until Escape
	for _, row := range []struct {
		r   rune
		arg string
	}{
		{'h', "Left"}, {'l', "Right"}, {'k', "Up"}, {'j', "Down"},
	} {
		im.BindIn("resize", input.Combo{Key: input.Char(row.r)},
			input.Assignment{Kind: input.AdjustPaneSize, Arg: row.arg, Amount: 1})
	}
	im.BindIn("resize", input.Combo{Key: input.Fn(tcell.KeyEscape)},
		input.Assignment{Kind: input.PopKeyTable})

	return im
}
