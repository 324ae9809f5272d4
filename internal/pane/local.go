package pane

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"github.com/ellery/kiln/internal/cell"
	"github.com/ellery/kiln/internal/color"
	"github.com/ellery/kiln/internal/rangeset"
	"github.com/ellery/kiln/internal/screen"
	"github.com/ellery/kiln/internal/vt"
)

// readChunk is the PTY read buffer size.
const readChunk = 4096

// parseQueueDepth bounds the reader-to-parser channel. A full queue blocks
// the reader, which propagates backpressure to the child through the PTY's
// own buffers.
const parseQueueDepth = 16

// LocalPane runs a child process under a PTY and feeds its output through a
// vt.Terminal.
type LocalPane struct {
	id ID

	mu   sync.Mutex
	term *vt.Terminal

	ptmx *os.File
	cmd  *exec.Cmd

	alerts []Alert

	dead     bool
	deadCh   chan struct{}
	exitCode int

	focused      bool
	unseenOutput bool

	clipboard Clipboard

	// onDamage is invoked (outside the lock) after a parse batch mutated
	// the terminal; the mux uses it to schedule repaints and sync ticks.
	onDamage func()
	// onDead is invoked once when the child has exited and output drained.
	onDead func(id ID)
}

// LocalPaneOptions configures SpawnLocalPane.
type LocalPaneOptions struct {
	ID            ID
	Rows          int
	Cols          int
	ScrollbackCap int
	Argv          []string
	Dir           string
	Env           []string
	Clipboard     Clipboard
	LinkRules     []cell.Rule
	OnDamage      func()
	OnDead        func(id ID)
}

// SpawnLocalPane starts argv under a fresh PTY and begins parsing its
// output.
func SpawnLocalPane(opts LocalPaneOptions) (*LocalPane, error) {
	if len(opts.Argv) == 0 {
		return nil, fmt.Errorf("spawn: empty command")
	}
	rows, cols := opts.Rows, opts.Cols
	if rows < 1 {
		rows = 24
	}
	if cols < 1 {
		cols = 80
	}

	cmd := exec.Command(opts.Argv[0], opts.Argv[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	cmd.Env = append(cmd.Env, opts.Env...)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
	if err != nil {
		return nil, fmt.Errorf("spawn %q: %w", opts.Argv[0], err)
	}

	p := &LocalPane{
		id:        opts.ID,
		ptmx:      ptmx,
		cmd:       cmd,
		deadCh:    make(chan struct{}),
		clipboard: opts.Clipboard,
		onDamage:  opts.OnDamage,
		onDead:    opts.OnDead,
	}
	p.term = vt.NewTerminal(vt.Options{
		Rows:          rows,
		Cols:          cols,
		ScrollbackCap: opts.ScrollbackCap,
		Answerback:    ptmx,
		Events:        (*paneEvents)(p),
		LinkRules:     opts.LinkRules,
	})

	log.Printf("pane: spawned %v as pane %d (pid %d)", opts.Argv, p.id, cmd.Process.Pid)

	parseCh := make(chan []byte, parseQueueDepth)
	go p.readLoop(parseCh)
	go p.parseLoop(parseCh)

	return p, nil
}

// readLoop drains the PTY into the bounded parse queue. Any read error, EOF
// included, closes the queue; the pane is marked dead once it drains.
func (p *LocalPane) readLoop(parseCh chan<- []byte) {
	buf := make([]byte, readChunk)
	for {
		n, err := p.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			parseCh <- chunk
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("pane %d: pty read: %v", p.id, err)
			}
			close(parseCh)
			return
		}
	}
}

// parseLoop applies queued output to the terminal in order.
func (p *LocalPane) parseLoop(parseCh <-chan []byte) {
	for chunk := range parseCh {
		p.mu.Lock()
		p.term.Advance(chunk)
		changed := p.term.TakeStateChanged()
		if changed && !p.focused && !p.unseenOutput {
			p.unseenOutput = true
			p.alerts = append(p.alerts, Alert{Kind: AlertOutputSinceFocusLost})
		}
		p.mu.Unlock()
		if p.onDamage != nil {
			p.onDamage()
		}
	}
	p.markDead()
}

// markDead records the child exit and notifies the owner exactly once.
func (p *LocalPane) markDead() {
	p.mu.Lock()
	if p.dead {
		p.mu.Unlock()
		return
	}
	p.dead = true
	close(p.deadCh)
	p.mu.Unlock()

	if err := p.cmd.Wait(); err != nil {
		log.Printf("pane %d: child exited: %v", p.id, err)
	} else {
		log.Printf("pane %d: child exited cleanly", p.id)
	}
	if p.cmd.ProcessState != nil {
		p.exitCode = p.cmd.ProcessState.ExitCode()
	}
	p.ptmx.Close()

	if p.onDead != nil {
		p.onDead(p.id)
	}
}

// paneEvents adapts vt.Events onto the pane's alert queue. Defined as a
// distinct type so the Terminal cannot reach the rest of the pane.
type paneEvents LocalPane

func (e *paneEvents) push(a Alert) {
	// Called with the pane lock already held: events fire inside Advance
	e.alerts = append(e.alerts, a)
}

func (e *paneEvents) Bell()             { e.push(Alert{Kind: AlertBell}) }
func (e *paneEvents) PaletteChanged()   { e.push(Alert{Kind: AlertPaletteChanged}) }
func (e *paneEvents) TitleChanged(t string) {
	e.push(Alert{Kind: AlertTitleMaybeChanged, Data: t})
}
func (e *paneEvents) WorkingDirChanged(string) {}
func (e *paneEvents) Notification(text string) {
	e.push(Alert{Kind: AlertToastNotification, Data: text})
}
func (e *paneEvents) SetClipboard(data string) {
	if e.clipboard == nil {
		return
	}
	if err := e.clipboard.SetClipboard(data); err != nil {
		log.Printf("pane %d: clipboard: %v", e.id, err)
	}
}

// --- Pane interface ---

// ID returns the pane id.
func (p *LocalPane) ID() ID { return p.id }

// Title returns the child's current window title.
func (p *LocalPane) Title() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.Title()
}

// WorkingDir returns the OSC 7 working directory, if advertised.
func (p *LocalPane) WorkingDir() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.WorkingDir()
}

// Dimensions returns the visible size.
func (p *LocalPane) Dimensions() (rows, cols int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.Screen().PhysicalRows(), p.term.Screen().PhysicalCols()
}

// CursorPosition returns the renderable cursor state.
func (p *LocalPane) CursorPosition() CursorState {
	p.mu.Lock()
	defer p.mu.Unlock()
	x, y := p.term.CursorPosition()
	return CursorState{
		X:       x,
		Y:       y,
		Shape:   p.term.CursorShape(),
		Visible: p.term.CursorVisible(),
	}
}

// GetLines clones the stored lines in the stable range.
func (p *LocalPane) GetLines(bound rangeset.Range) ([]screen.StableRowIndex, []*cell.Line) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.Screen().LinesInRange(bound)
}

// GetChangedSince reports rows mutated after seqno.
func (p *LocalPane) GetChangedSince(bound rangeset.Range, seqno uint64) *rangeset.RangeSet {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.GetChangedSince(bound, seqno)
}

// SeqNo returns the terminal's mutation counter.
func (p *LocalPane) SeqNo() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.SeqNo()
}

// VisibleRange returns the stable range on screen.
func (p *LocalPane) VisibleRange() rangeset.Range {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.Screen().VisibleRange()
}

// AllRange returns the stable range of all stored rows.
func (p *LocalPane) AllRange() rangeset.Range {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.Screen().AllRange()
}

// Writer returns the raw PTY writer.
func (p *LocalPane) Writer() io.Writer { return p.ptmx }

// SendText writes user-typed text to the application.
func (p *LocalPane) SendText(s string) error {
	if p.IsDead() {
		return io.ErrClosedPipe
	}
	_, err := p.ptmx.WriteString(s)
	return err
}

// SendPaste writes pasted text, wrapped in bracketed-paste markers when the
// application enabled mode 2004.
func (p *LocalPane) SendPaste(s string) error {
	p.mu.Lock()
	bracketed := p.term.BracketedPaste()
	p.mu.Unlock()
	if bracketed {
		s = "\x1b[200~" + s + "\x1b[201~"
	}
	return p.SendText(s)
}

// MouseEvent encodes and forwards a mouse action when the application
// subscribed to it.
func (p *LocalPane) MouseEvent(ev vt.MouseEvent) error {
	p.mu.Lock()
	encoded := p.term.EncodeMouseEvent(ev)
	p.mu.Unlock()
	if encoded == "" {
		return nil
	}
	return p.SendText(encoded)
}

// Resize updates the model and propagates the new size to the PTY.
func (p *LocalPane) Resize(rows, cols int) error {
	p.mu.Lock()
	p.term.Resize(rows, cols)
	p.mu.Unlock()

	if err := pty.Setsize(p.ptmx, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	}); err != nil {
		return fmt.Errorf("pty resize: %w", err)
	}
	return nil
}

// IsDead reports whether the child has exited.
func (p *LocalPane) IsDead() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dead
}

// ExitCode returns the child's exit status once dead.
func (p *LocalPane) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// DeadCh closes when the pane dies; the mux selects on it.
func (p *LocalPane) DeadCh() <-chan struct{} { return p.deadCh }

// Kill terminates the child process. The pane becomes dead when the PTY
// read loop observes EOF.
func (p *LocalPane) Kill() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// DrainAlerts returns and clears the queued notifications.
func (p *LocalPane) DrainAlerts() []Alert {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.alerts
	p.alerts = nil
	return out
}

// MouseGrabbed reports whether the application wants mouse events.
func (p *LocalPane) MouseGrabbed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.MouseGrabbed()
}

// Palette returns the pane's live palette.
func (p *LocalPane) Palette() *color.Palette {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.Palette()
}

// LinkRules returns the hyperlink rules configured at spawn.
func (p *LocalPane) LinkRules() []cell.Rule {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.LinkRules()
}

// SetFocus records focus so output-while-unfocused can be alerted.
func (p *LocalPane) SetFocus(focused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.focused = focused
	if focused {
		p.unseenOutput = false
	}
}

// InputModes snapshots the terminal modes the input encoder consults.
func (p *LocalPane) InputModes() vt.InputModes {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.InputModes()
}
