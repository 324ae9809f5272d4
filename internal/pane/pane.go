// Package pane defines the capability set every terminal pane exposes to
// the mux, the renderer and the wire protocol, plus the PTY-backed local
// implementation.
package pane

import (
	"io"

	"github.com/ellery/kiln/internal/cell"
	"github.com/ellery/kiln/internal/color"
	"github.com/ellery/kiln/internal/rangeset"
	"github.com/ellery/kiln/internal/screen"
	"github.com/ellery/kiln/internal/vt"
)

// ID uniquely identifies a pane within one mux.
type ID uint64

// AlertKind enumerates the notification types a pane can raise.
type AlertKind uint8

const (
	AlertBell AlertKind = iota
	AlertPaletteChanged
	AlertToastNotification
	AlertTitleMaybeChanged
	AlertOutputSinceFocusLost
)

// String names the alert kind for logs.
func (k AlertKind) String() string {
	switch k {
	case AlertBell:
		return "Bell"
	case AlertPaletteChanged:
		return "PaletteChanged"
	case AlertToastNotification:
		return "ToastNotification"
	case AlertTitleMaybeChanged:
		return "TitleMaybeChanged"
	case AlertOutputSinceFocusLost:
		return "OutputSinceFocusLost"
	default:
		return "Unknown"
	}
}

// Alert is one queued notification. Data is kind-specific (the toast text,
// the new title).
type Alert struct {
	Kind AlertKind
	Data string
}

// CursorState is the renderable cursor description.
type CursorState struct {
	X       int
	Y       int
	Shape   vt.CursorShape
	Visible bool
}

// Pane is the capability set of a terminal pane. Local panes own a PTY;
// remote panes mirror a server-side pane; overlays wrap another pane.
type Pane interface {
	ID() ID
	Title() string
	WorkingDir() string
	Dimensions() (rows, cols int)
	CursorPosition() CursorState

	// GetLines returns clones of the stored lines in the stable range.
	GetLines(bound rangeset.Range) ([]screen.StableRowIndex, []*cell.Line)
	// GetChangedSince reports which stable rows in bound changed after
	// the given seqno.
	GetChangedSince(bound rangeset.Range, seqno uint64) *rangeset.RangeSet
	SeqNo() uint64
	VisibleRange() rangeset.Range
	AllRange() rangeset.Range

	// Writer accepts raw bytes destined for the application.
	Writer() io.Writer
	// SendText writes text typed by the user.
	SendText(s string) error
	// SendPaste writes pasted text, honoring bracketed paste mode.
	SendPaste(s string) error
	// MouseEvent reports a mouse action to the application if it asked.
	MouseEvent(ev vt.MouseEvent) error

	Resize(rows, cols int) error
	IsDead() bool
	Kill()
	DrainAlerts() []Alert
	MouseGrabbed() bool
	Palette() *color.Palette
	LinkRules() []cell.Rule
	// InputModes snapshots the modes the key encoder consults.
	InputModes() vt.InputModes
}

// Clipboard is the delegate a pane hands OSC 52 payloads to. The OS-level
// backend lives outside the core.
type Clipboard interface {
	SetClipboard(data string) error
}
