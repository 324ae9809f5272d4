package client

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/ellery/kiln/internal/cell"
	"github.com/ellery/kiln/internal/color"
	"github.com/ellery/kiln/internal/mux"
	"github.com/ellery/kiln/internal/pane"
	"github.com/ellery/kiln/internal/rangeset"
	"github.com/ellery/kiln/internal/screen"
	"github.com/ellery/kiln/internal/vt"
	"github.com/ellery/kiln/internal/wire"
)

// clientSender adapts the Mirror's outbound interface onto a Client,
// routing responses back into the mirror asynchronously.
type clientSender struct {
	client *Client
	mirror *Mirror
}

func (s *clientSender) SendKeyDown(paneID uint64, data []byte, serial wire.InputSerial) {
	ch, err := s.client.RequestAsync(&wire.SendKeyDown{PaneID: paneID, Data: data, Serial: serial})
	if err != nil {
		log.Printf("client: key down: %v", err)
		return
	}
	go func() { <-ch }()
}

func (s *clientSender) SendPaste(paneID uint64, data string, serial wire.InputSerial) {
	ch, err := s.client.RequestAsync(&wire.SendPaste{PaneID: paneID, Data: data, Serial: serial})
	if err != nil {
		log.Printf("client: paste: %v", err)
		return
	}
	go func() { <-ch }()
}

func (s *clientSender) FetchLines(paneID uint64, rows *rangeset.RangeSet, tag time.Time) {
	ch, err := s.client.RequestAsync(&wire.GetLines{PaneID: paneID, Ranges: rows})
	if err != nil {
		s.mirror.FetchFailed(rows, tag)
		return
	}
	go func() {
		resp, ok := <-ch
		if !ok {
			s.mirror.FetchFailed(rows, tag)
			return
		}
		if lines, isLines := resp.(*wire.GetLinesResponse); isLines {
			s.mirror.ApplyFetchedLines(lines, tag)
		} else {
			s.mirror.FetchFailed(rows, tag)
		}
	}()
}

func (s *clientSender) PollChanges(paneID uint64, force wire.InputSerial) {
	ch, err := s.client.RequestAsync(&wire.GetPaneRenderChanges{PaneID: paneID, ForceWithInputSerial: force})
	if err != nil {
		return
	}
	go func() {
		resp, ok := <-ch
		if !ok {
			return
		}
		if changes, isChanges := resp.(*wire.GetPaneRenderChangesResponse); isChanges {
			s.mirror.ApplyRenderChanges(changes)
		}
	}()
}

// remoteWriter sends raw bytes to the remote pane.
type remoteWriter struct {
	client   *Client
	remoteID uint64
}

func (w *remoteWriter) Write(p []byte) (int, error) {
	data := make([]byte, len(p))
	copy(data, p)
	if _, err := w.client.Request(&wire.WriteToPane{PaneID: w.remoteID, Data: data}); err != nil {
		return 0, err
	}
	return len(p), nil
}

// RemotePane is the local face of a server-side pane: a lazy mirror that
// satisfies the Pane capability set. Local and remote pane ids are distinct
// spaces; the local mux knows only the local id.
type RemotePane struct {
	localID  pane.ID
	remoteID uint64

	client *Client
	mirror *Mirror

	mu     sync.Mutex
	dead   bool
	alerts []pane.Alert
	palette *color.Palette
}

// NewRemotePane wires a mirror for an already-spawned remote pane.
func NewRemotePane(localID pane.ID, remoteID uint64, c *Client, scrollbackDepth int) *RemotePane {
	rp := &RemotePane{
		localID:  localID,
		remoteID: remoteID,
		client:   c,
		palette:  color.DefaultPalette(),
	}
	sender := &clientSender{client: c}
	rp.mirror = NewMirror(remoteID, sender, scrollbackDepth)
	sender.mirror = rp.mirror
	return rp
}

// Mirror exposes the underlying mirror (the renderer pulls poll state and
// tardy overlays from it).
func (p *RemotePane) Mirror() *Mirror { return p.mirror }

// RemoteID returns the server-side pane id.
func (p *RemotePane) RemoteID() uint64 { return p.remoteID }

// HandlePush routes an unsolicited PDU for this pane.
func (p *RemotePane) HandlePush(pdu wire.Pdu) {
	switch push := pdu.(type) {
	case *wire.NotifyAlert:
		p.mu.Lock()
		p.alerts = append(p.alerts, pane.Alert{Kind: pane.AlertKind(push.Kind), Data: push.Data})
		p.mu.Unlock()
	case *wire.SetPalette:
		p.mu.Lock()
		for i, c := range push.Colors {
			if i > 255 {
				break
			}
			p.palette.Colors[i] = color.RGBA{R: c[0], G: c[1], B: c[2], A: c[3]}
		}
		p.palette.Foreground = color.RGBA{R: push.Foreground[0], G: push.Foreground[1], B: push.Foreground[2], A: push.Foreground[3]}
		p.palette.Background = color.RGBA{R: push.Background[0], G: push.Background[1], B: push.Background[2], A: push.Background[3]}
		p.palette.Cursor = color.RGBA{R: push.Cursor[0], G: push.Cursor[1], B: push.Cursor[2], A: push.Cursor[3]}
		p.mu.Unlock()
	case *wire.PaneRemoved:
		p.mu.Lock()
		p.dead = true
		p.mu.Unlock()
	}
}

// --- Pane interface ---

func (p *RemotePane) ID() pane.ID { return p.localID }

func (p *RemotePane) Title() string      { return p.mirror.Title() }
func (p *RemotePane) WorkingDir() string { return p.mirror.WorkingDir() }

func (p *RemotePane) Dimensions() (rows, cols int) {
	dims := p.mirror.Dimensions()
	return int(dims.Rows), int(dims.Cols)
}

func (p *RemotePane) CursorPosition() pane.CursorState {
	c := p.mirror.Cursor()
	return pane.CursorState{
		X:       int(c.X),
		Y:       int(c.Y),
		Shape:   vt.CursorShape(c.Shape),
		Visible: c.Visible,
	}
}

// GetLines serves from the mirror cache; rows without content yield blank
// lines of the mirrored width.
func (p *RemotePane) GetLines(bound rangeset.Range) ([]screen.StableRowIndex, []*cell.Line) {
	dims := p.mirror.Dimensions()
	var idxs []screen.StableRowIndex
	var lines []*cell.Line
	for row := bound.Start; row < bound.End; row++ {
		idxs = append(idxs, row)
		if line, _, ok := p.mirror.GetLine(row); ok && line != nil {
			lines = append(lines, line.Clone())
		} else {
			lines = append(lines, cell.NewLine(int(dims.Cols)))
		}
	}
	return idxs, lines
}

func (p *RemotePane) GetChangedSince(bound rangeset.Range, seqno uint64) *rangeset.RangeSet {
	out := rangeset.New()
	for row := bound.Start; row < bound.End; row++ {
		line, state, ok := p.mirror.GetLine(row)
		if !ok || line == nil {
			continue
		}
		if line.SeqNo() > seqno || state == StateDirty {
			out.Add(row)
		}
	}
	return out
}

func (p *RemotePane) SeqNo() uint64 { return p.mirror.SeqNo() }

func (p *RemotePane) VisibleRange() rangeset.Range {
	return p.mirror.Viewport()
}

func (p *RemotePane) AllRange() rangeset.Range {
	dims := p.mirror.Dimensions()
	v := p.mirror.Viewport()
	return rangeset.Range{Start: v.Start - dims.ScrollbackRows, End: v.End}
}

func (p *RemotePane) Writer() io.Writer {
	return &remoteWriter{client: p.client, remoteID: p.remoteID}
}

func (p *RemotePane) SendText(s string) error {
	if p.IsDead() {
		return io.ErrClosedPipe
	}
	p.mirror.SendKey(s)
	return nil
}

func (p *RemotePane) SendPaste(s string) error {
	if p.IsDead() {
		return io.ErrClosedPipe
	}
	p.mirror.SendPaste(s)
	return nil
}

func (p *RemotePane) MouseEvent(ev vt.MouseEvent) error {
	_, err := p.client.Request(&wire.SendMouseEvent{
		PaneID:  p.remoteID,
		Button:  byte(ev.Button),
		X:       int64(ev.X),
		Y:       int64(ev.Y),
		Press:   ev.Press,
		Motion:  ev.Motion,
		Shift:   ev.Shift,
		Alt:     ev.Alt,
		Control: ev.Control,
	})
	return err
}

func (p *RemotePane) Resize(rows, cols int) error {
	_, err := p.client.Request(&wire.Resize{
		PaneID: p.remoteID,
		Rows:   int64(rows),
		Cols:   int64(cols),
	})
	return err
}

func (p *RemotePane) IsDead() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dead
}

func (p *RemotePane) Kill() {
	if _, err := p.client.Request(&wire.KillPane{PaneID: p.remoteID}); err != nil {
		log.Printf("client: kill pane %d: %v", p.remoteID, err)
	}
}

func (p *RemotePane) DrainAlerts() []pane.Alert {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.alerts
	p.alerts = nil
	return out
}

func (p *RemotePane) MouseGrabbed() bool { return p.mirror.MouseGrabbed() }

func (p *RemotePane) Palette() *color.Palette {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.palette
}

func (p *RemotePane) LinkRules() []cell.Rule { return cell.DefaultRules }

// InputModes are unknown for a remote pane; the server applies its own.
func (p *RemotePane) InputModes() vt.InputModes { return vt.InputModes{} }

// --- Remote domain ---

// RemoteDomain proxies pane creation to a connected server. It registers
// each RemotePane so pushes can be routed by remote id.
type RemoteDomain struct {
	name   string
	client *Client

	mu       sync.Mutex
	attached bool
	byRemote map[uint64]*RemotePane

	scrollbackDepth int
}

// NewRemoteDomain wraps a client connection as a pane factory.
func NewRemoteDomain(name string, c *Client, scrollbackDepth int) *RemoteDomain {
	d := &RemoteDomain{
		name:            name,
		client:          c,
		byRemote:        make(map[uint64]*RemotePane),
		scrollbackDepth: scrollbackDepth,
	}
	c.SetPushHandler(d.routePush)
	return d
}

func (d *RemoteDomain) routePush(pdu wire.Pdu) {
	var remoteID uint64
	switch push := pdu.(type) {
	case *wire.NotifyAlert:
		remoteID = push.PaneID
	case *wire.SetPalette:
		remoteID = push.PaneID
	case *wire.PaneRemoved:
		remoteID = push.PaneID
	case *wire.SetClipboard:
		remoteID = push.PaneID
	default:
		return
	}
	d.mu.Lock()
	rp := d.byRemote[remoteID]
	d.mu.Unlock()
	if rp != nil {
		rp.HandlePush(pdu)
	}
}

func (d *RemoteDomain) Name() string { return d.name }

func (d *RemoteDomain) State() mux.DomainState {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.attached {
		return mux.DomainAttached
	}
	return mux.DomainDetached
}

func (d *RemoteDomain) Spawnable() bool { return d.State() == mux.DomainAttached }

// Attach negotiates the connection.
func (d *RemoteDomain) Attach() error {
	if err := d.client.Connect(); err != nil {
		return err
	}
	d.mu.Lock()
	d.attached = true
	d.mu.Unlock()
	return nil
}

// Detach marks the domain detached so it no longer spawns panes. The
// connection is left open, and pane identity on the server survives for a
// later re-attach.
func (d *RemoteDomain) Detach() error {
	d.mu.Lock()
	d.attached = false
	d.mu.Unlock()
	return nil
}

// SpawnPane asks the server for a pane and mirrors it locally.
func (d *RemoteDomain) SpawnPane(id pane.ID, size mux.PtySize, cmd mux.SpawnCommand) (pane.Pane, error) {
	if !d.Spawnable() {
		return nil, fmt.Errorf("domain %q is detached", d.name)
	}
	resp, err := d.client.Request(&wire.SpawnV2{
		Domain:  "local",
		Command: cmd.Command,
		Cwd:     cmd.Cwd,
		Rows:    int64(size.Rows),
		Cols:    int64(size.Cols),
	})
	if err != nil {
		return nil, err
	}
	spawned, ok := resp.(*wire.SpawnResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected spawn response %T", resp)
	}

	rp := NewRemotePane(id, spawned.PaneID, d.client, d.scrollbackDepth)
	d.mu.Lock()
	d.byRemote[spawned.PaneID] = rp
	d.mu.Unlock()

	// Prime the mirror immediately
	rp.mirror.PollTick()
	return rp, nil
}
