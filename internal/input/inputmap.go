// Package input maps key and mouse events onto assignments through a stack
// of named key tables, and encodes unbound keys into the byte sequences the
// pane's application expects.
package input

import (
	"time"
	"unicode"

	"github.com/gdamore/tcell/v2"
)

// Modifiers is the modifier bitmask used in bindings. LEADER is virtual: it
// is or-ed in while the leader state is active.
type Modifiers uint16

const (
	ModShift Modifiers = 1 << iota
	ModAlt
	ModCtrl
	ModSuper
	ModLeader
)

// ModsFromEvent translates tcell modifiers.
func ModsFromEvent(ev *tcell.EventKey) Modifiers {
	var m Modifiers
	tm := ev.Modifiers()
	if tm&tcell.ModShift != 0 {
		m |= ModShift
	}
	if tm&tcell.ModAlt != 0 {
		m |= ModAlt
	}
	if tm&tcell.ModCtrl != 0 {
		m |= ModCtrl
	}
	if tm&tcell.ModMeta != 0 {
		m |= ModSuper
	}
	return m
}

// KeyCode identifies a key: a tcell function key, or KeyRune plus the rune.
type KeyCode struct {
	Key  tcell.Key
	Rune rune
}

// Char builds a KeyCode for a printable character.
func Char(r rune) KeyCode {
	return KeyCode{Key: tcell.KeyRune, Rune: r}
}

// Fn builds a KeyCode for a function key.
func Fn(k tcell.Key) KeyCode {
	return KeyCode{Key: k}
}

// Combo is the lookup key of a key table.
type Combo struct {
	Key  KeyCode
	Mods Modifiers
}

// AssignmentKind enumerates the actions bindings can trigger.
type AssignmentKind uint8

const (
	Nop AssignmentKind = iota
	ActivateLeader
	SpawnTab
	SpawnWindow
	CloseCurrentPane
	SplitHorizontal
	SplitVertical
	ActivatePaneDirection
	ActivateTabRelative
	ToggleZoom
	AdjustPaneSize
	CopyTo
	PasteFrom
	ActivateCopyMode
	QuickSelect
	CharSelect
	Search
	ScrollByPage
	SendString
	ActivateKeyTable
	PopKeyTable
	ClearKeyTableStack
	ReloadConfiguration
	DetachDomain
)

// TableActivation configures pushing a named table onto the stack.
type TableActivation struct {
	Name            string
	Timeout         time.Duration
	OneShot         bool
	UntilUnknown    bool
	PreventFallback bool
}

// Assignment is the resolved action of a binding.
type Assignment struct {
	Kind AssignmentKind
	// Arg carries the string argument (direction, clipboard name, string
	// to send).
	Arg string
	// Amount carries the numeric argument (tab offset, resize cells).
	Amount int
	// Activation is set for ActivateKeyTable.
	Activation TableActivation
}

// KeyTable maps combos to assignments.
type KeyTable map[Combo]Assignment

// MouseCombo identifies a mouse binding.
type MouseCombo struct {
	Button int
	Clicks int
	Mods   Modifiers
}

// Leader is the modal prefix key configuration.
type Leader struct {
	Key     KeyCode
	Mods    Modifiers
	Timeout time.Duration
}

// InputMap holds the default table, the named tables reachable through
// ActivateKeyTable, the mouse bindings, and the optional leader.
type InputMap struct {
	Default KeyTable
	ByName  map[string]KeyTable
	Mouse   map[MouseCombo]Assignment
	Leader  *Leader
}

// NewInputMap builds an empty input map.
func NewInputMap() *InputMap {
	return &InputMap{
		Default: make(KeyTable),
		ByName:  make(map[string]KeyTable),
		Mouse:   make(map[MouseCombo]Assignment),
	}
}

// Bind installs a default-table binding.
func (im *InputMap) Bind(combo Combo, a Assignment) {
	im.Default[combo] = a
}

// BindIn installs a binding in a named table, creating it on demand.
func (im *InputMap) BindIn(table string, combo Combo, a Assignment) {
	kt, ok := im.ByName[table]
	if !ok {
		kt = make(KeyTable)
		im.ByName[table] = kt
	}
	kt[combo] = a
}

// candidates produces the lookup passes for an event, most specific first:
// the verbatim form, then shift-normalized variants so a binding authored
// as Shift+a matches either the physical or the composed form.
func candidates(key KeyCode, mods Modifiers) []Combo {
	out := []Combo{{Key: key, Mods: mods}}

	if key.Key == tcell.KeyRune {
		r := key.Rune
		switch {
		case unicode.IsUpper(r):
			// Composed form: try the lowercase rune with Shift asserted
			out = append(out, Combo{Key: Char(unicode.ToLower(r)), Mods: mods | ModShift})
		case mods&ModShift != 0 && unicode.IsLower(r):
			// Physical form: try the uppercase rune without Shift
			out = append(out, Combo{Key: Char(unicode.ToUpper(r)), Mods: mods &^ ModShift})
		}
	}
	return out
}
