package pane

import (
	"bytes"
	"io"
	"sync"

	"github.com/ellery/kiln/internal/cell"
	"github.com/ellery/kiln/internal/color"
	"github.com/ellery/kiln/internal/rangeset"
	"github.com/ellery/kiln/internal/screen"
	"github.com/ellery/kiln/internal/vt"
)

// MemPane is a pane backed by an in-process terminal with no child. Output
// is fed in through Advance and input accumulates in a buffer. It backs
// scratch surfaces (the char-select preview) and tests.
type MemPane struct {
	id ID

	mu    sync.Mutex
	term  *vt.Terminal
	input bytes.Buffer

	dead   bool
	alerts []Alert
}

// NewMemPane builds an in-memory pane of the given size.
func NewMemPane(id ID, rows, cols, scrollbackCap int) *MemPane {
	p := &MemPane{id: id}
	p.term = vt.NewTerminal(vt.Options{
		Rows:          rows,
		Cols:          cols,
		ScrollbackCap: scrollbackCap,
		Answerback:    &p.input,
		Events:        (*memEvents)(p),
		LinkRules:     cell.DefaultRules,
	})
	return p
}

// Advance feeds output bytes into the pane's terminal.
func (p *MemPane) Advance(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.term.Advance(data)
}

// InputString returns everything written toward the (absent) application.
func (p *MemPane) InputString() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input.String()
}

// MarkDead flips the pane to dead, as if its child exited.
func (p *MemPane) MarkDead() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dead = true
}

type memEvents MemPane

func (e *memEvents) Bell() { e.alerts = append(e.alerts, Alert{Kind: AlertBell}) }
func (e *memEvents) TitleChanged(t string) {
	e.alerts = append(e.alerts, Alert{Kind: AlertTitleMaybeChanged, Data: t})
}
func (e *memEvents) PaletteChanged() {
	e.alerts = append(e.alerts, Alert{Kind: AlertPaletteChanged})
}
func (e *memEvents) WorkingDirChanged(string) {}
func (e *memEvents) Notification(text string) {
	e.alerts = append(e.alerts, Alert{Kind: AlertToastNotification, Data: text})
}
func (e *memEvents) SetClipboard(string) {}

// --- Pane interface ---

func (p *MemPane) ID() ID { return p.id }

func (p *MemPane) Title() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.Title()
}

func (p *MemPane) WorkingDir() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.WorkingDir()
}

func (p *MemPane) Dimensions() (rows, cols int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.Screen().PhysicalRows(), p.term.Screen().PhysicalCols()
}

func (p *MemPane) CursorPosition() CursorState {
	p.mu.Lock()
	defer p.mu.Unlock()
	x, y := p.term.CursorPosition()
	return CursorState{X: x, Y: y, Shape: p.term.CursorShape(), Visible: p.term.CursorVisible()}
}

func (p *MemPane) GetLines(bound rangeset.Range) ([]screen.StableRowIndex, []*cell.Line) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.Screen().LinesInRange(bound)
}

func (p *MemPane) GetChangedSince(bound rangeset.Range, seqno uint64) *rangeset.RangeSet {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.GetChangedSince(bound, seqno)
}

func (p *MemPane) SeqNo() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.SeqNo()
}

func (p *MemPane) VisibleRange() rangeset.Range {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.Screen().VisibleRange()
}

func (p *MemPane) AllRange() rangeset.Range {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.Screen().AllRange()
}

func (p *MemPane) Writer() io.Writer { return &p.input }

func (p *MemPane) SendText(s string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dead {
		return io.ErrClosedPipe
	}
	p.input.WriteString(s)
	return nil
}

func (p *MemPane) SendPaste(s string) error {
	p.mu.Lock()
	bracketed := p.term.BracketedPaste()
	p.mu.Unlock()
	if bracketed {
		s = "\x1b[200~" + s + "\x1b[201~"
	}
	return p.SendText(s)
}

func (p *MemPane) MouseEvent(ev vt.MouseEvent) error {
	p.mu.Lock()
	encoded := p.term.EncodeMouseEvent(ev)
	p.mu.Unlock()
	if encoded == "" {
		return nil
	}
	return p.SendText(encoded)
}

func (p *MemPane) Resize(rows, cols int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.term.Resize(rows, cols)
	return nil
}

func (p *MemPane) IsDead() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dead
}

func (p *MemPane) Kill() {
	p.MarkDead()
}

func (p *MemPane) DrainAlerts() []Alert {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.alerts
	p.alerts = nil
	return out
}

func (p *MemPane) MouseGrabbed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.MouseGrabbed()
}

func (p *MemPane) Palette() *color.Palette {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.Palette()
}

func (p *MemPane) LinkRules() []cell.Rule {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.LinkRules()
}

func (p *MemPane) InputModes() vt.InputModes {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.InputModes()
}
