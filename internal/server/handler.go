package server

import (
	"fmt"
	"io"
	"log"
	"regexp"
	"strings"

	"github.com/ellery/kiln/internal/mux"
	"github.com/ellery/kiln/internal/pane"
	"github.com/ellery/kiln/internal/rangeset"
	"github.com/ellery/kiln/internal/vt"
	"github.com/ellery/kiln/internal/wire"
)

// outboundDepth bounds the per-client write queue. When it is full,
// unsolicited pushes are dropped and responses wait for room.
const outboundDepth = 256

// perPane is the shadow of what one client last saw of one pane. It is the
// server half of the incremental sync: computeChanges diffs the live pane
// against it.
type perPane struct {
	lastSeqno        uint64
	lastTitle        string
	lastWorkingDir   string
	lastCursor       wire.CursorPosition
	lastDims         wire.RenderDimensions
	lastMouseGrabbed bool
	initialized      bool

	// pendingInput forces the next computeChanges to answer even when
	// nothing changed, echoing the serial back for RTT measurement.
	pendingInput wire.InputSerial
}

// SessionHandler serves one connected client.
type SessionHandler struct {
	mux  *mux.Mux
	info Info
	conn io.ReadWriteCloser

	out chan *wire.Frame

	perPane  map[pane.ID]*perPane
	clientID string

	negotiated bool
	closed     chan struct{}
}

// NewSessionHandler wraps a freshly accepted connection.
func NewSessionHandler(m *mux.Mux, info Info, conn io.ReadWriteCloser) *SessionHandler {
	return &SessionHandler{
		mux:     m,
		info:    info,
		conn:    conn,
		out:     make(chan *wire.Frame, outboundDepth),
		perPane: make(map[pane.ID]*perPane),
		closed:  make(chan struct{}),
	}
}

// Close tears the connection down.
func (h *SessionHandler) Close() {
	select {
	case <-h.closed:
	default:
		close(h.closed)
	}
	h.conn.Close()
}

// Push enqueues an unsolicited PDU (serial 0). Pushes to a stalled client
// are dropped; the poll cycle repairs any loss.
func (h *SessionHandler) Push(p wire.Pdu) {
	select {
	case h.out <- wire.EncodePdu(0, p):
	default:
		log.Printf("server: dropping push to slow client %q", h.clientID)
	}
}

// Run processes the connection until EOF or protocol error.
func (h *SessionHandler) Run() {
	go h.writeLoop()
	defer h.Close()

	for {
		frame, err := wire.ReadFrame(h.conn)
		if err != nil {
			if err != io.EOF {
				log.Printf("server: read frame: %v", err)
			}
			return
		}
		pdu, err := wire.DecodePdu(frame)
		if err != nil {
			// Frame-boundary protocol errors are fatal for the connection
			log.Printf("server: %v", err)
			return
		}

		resp := h.dispatch(pdu)
		if resp == nil {
			continue
		}
		select {
		case h.out <- wire.EncodePdu(frame.Serial, resp):
		case <-h.closed:
			return
		}
	}
}

func (h *SessionHandler) writeLoop() {
	for {
		select {
		case <-h.closed:
			return
		case f := <-h.out:
			if err := wire.WriteFrame(h.conn, f); err != nil {
				log.Printf("server: write frame: %v", err)
				h.Close()
				return
			}
		}
	}
}

// dispatch executes one request and produces its response PDU.
func (h *SessionHandler) dispatch(p wire.Pdu) wire.Pdu {
	// Codec negotiation gates everything else
	if !h.negotiated {
		if _, ok := p.(*wire.GetCodecVersion); !ok {
			log.Printf("server: client spoke before codec negotiation")
			h.Close()
			return nil
		}
		h.negotiated = true
		return &wire.GetCodecVersionResponse{
			Codec:      wire.CodecVersion,
			Version:    h.info.Version,
			Executable: h.info.Executable,
			ConfigPath: h.info.ConfigPath,
		}
	}

	switch req := p.(type) {
	case *wire.Ping:
		return &wire.Pong{}

	case *wire.GetCodecVersion:
		return &wire.GetCodecVersionResponse{
			Codec:      wire.CodecVersion,
			Version:    h.info.Version,
			Executable: h.info.Executable,
			ConfigPath: h.info.ConfigPath,
		}

	case *wire.SetClientID:
		h.clientID = req.ClientID
		log.Printf("server: client identified as %q", req.ClientID)
		return &wire.UnitResponse{}

	case *wire.ListPanes:
		return h.listPanes()

	case *wire.SpawnV2:
		tab, np, winID, err := h.mux.SpawnTabOrWindow(
			mux.WindowID(req.WindowID),
			req.Domain,
			mux.SpawnCommand{Command: req.Command, Cwd: req.Cwd},
			mux.PtySize{Rows: int(req.Rows), Cols: int(req.Cols)},
			req.Workspace,
		)
		if err != nil {
			return errResp(err)
		}
		return &wire.SpawnResponse{
			PaneID:   uint64(np.ID()),
			TabID:    uint64(tab.ID()),
			WindowID: uint64(winID),
		}

	case *wire.SplitPane:
		dir := mux.SplitVertical
		if req.Horizontal {
			dir = mux.SplitHorizontal
		}
		np, size, err := h.mux.SplitPane(
			pane.ID(req.PaneID), dir, req.Domain,
			mux.SpawnCommand{Command: req.Command, Cwd: req.Cwd},
		)
		if err != nil {
			return errResp(err)
		}
		return &wire.SplitPaneResponse{
			PaneID: uint64(np.ID()),
			Rows:   int64(size.Rows),
			Cols:   int64(size.Cols),
		}

	case *wire.WriteToPane:
		p, err := h.mux.GetPane(pane.ID(req.PaneID))
		if err != nil {
			return errResp(err)
		}
		if _, err := p.Writer().Write(req.Data); err != nil {
			return errResp(err)
		}
		return &wire.UnitResponse{}

	case *wire.SendKeyDown:
		p, err := h.mux.GetPane(pane.ID(req.PaneID))
		if err != nil {
			return errResp(err)
		}
		if err := p.SendText(string(req.Data)); err != nil {
			return errResp(err)
		}
		h.forceNextChanges(pane.ID(req.PaneID), req.Serial)
		return &wire.UnitResponse{}

	case *wire.SendPaste:
		p, err := h.mux.GetPane(pane.ID(req.PaneID))
		if err != nil {
			return errResp(err)
		}
		if err := p.SendPaste(req.Data); err != nil {
			return errResp(err)
		}
		h.forceNextChanges(pane.ID(req.PaneID), req.Serial)
		return &wire.UnitResponse{}

	case *wire.SendMouseEvent:
		p, err := h.mux.GetPane(pane.ID(req.PaneID))
		if err != nil {
			return errResp(err)
		}
		err = p.MouseEvent(vt.MouseEvent{
			Button:  vt.MouseButton(req.Button),
			X:       int(req.X),
			Y:       int(req.Y),
			Press:   req.Press,
			Motion:  req.Motion,
			Shift:   req.Shift,
			Alt:     req.Alt,
			Control: req.Control,
		})
		if err != nil {
			return errResp(err)
		}
		return &wire.UnitResponse{}

	case *wire.Resize:
		p, err := h.mux.GetPane(pane.ID(req.PaneID))
		if err != nil {
			return errResp(err)
		}
		if err := p.Resize(int(req.Rows), int(req.Cols)); err != nil {
			return errResp(err)
		}
		return &wire.UnitResponse{}

	case *wire.SetPaneZoomed:
		_, tabID, err := h.mux.ResolvePaneID(pane.ID(req.PaneID))
		if err != nil {
			return errResp(err)
		}
		tab, ok := h.mux.GetTab(tabID)
		if !ok {
			return errResp(fmt.Errorf("tab %d vanished", tabID))
		}
		tab.SetZoomed(pane.ID(req.PaneID), req.Zoomed)
		return &wire.UnitResponse{}

	case *wire.KillPane:
		if err := h.mux.KillPane(pane.ID(req.PaneID)); err != nil {
			return errResp(err)
		}
		return &wire.UnitResponse{}

	case *wire.GetLiveness:
		p, err := h.mux.GetPane(pane.ID(req.PaneID))
		if err != nil {
			return &wire.LivenessResponse{PaneID: req.PaneID, IsAlive: false}
		}
		return &wire.LivenessResponse{PaneID: req.PaneID, IsAlive: !p.IsDead()}

	case *wire.GetPaneRenderChanges:
		p, err := h.mux.GetPane(pane.ID(req.PaneID))
		if err != nil {
			return errResp(err)
		}
		resp := h.computeChanges(p, req.ForceWithInputSerial)
		if resp == nil {
			return &wire.UnitResponse{}
		}
		return resp

	case *wire.GetLines:
		p, err := h.mux.GetPane(pane.ID(req.PaneID))
		if err != nil {
			return errResp(err)
		}
		resp := &wire.GetLinesResponse{PaneID: req.PaneID}
		for _, r := range req.Ranges.Ranges() {
			idxs, lines := p.GetLines(r)
			for i := range lines {
				resp.Lines = append(resp.Lines, wire.BonusLine{Row: idxs[i], Line: lines[i]})
			}
		}
		return resp

	case *wire.SearchScrollbackRequest:
		p, err := h.mux.GetPane(pane.ID(req.PaneID))
		if err != nil {
			return errResp(err)
		}
		return h.search(p, req)

	default:
		return errResp(fmt.Errorf("unhandled pdu type %d", p.PduType()))
	}
}

func errResp(err error) wire.Pdu {
	return &wire.ErrorResponse{Message: err.Error()}
}

// forceNextChanges stamps the pane's shadow so the next poll answers even
// when nothing changed, carrying the input serial for RTT measurement.
func (h *SessionHandler) forceNextChanges(id pane.ID, serial wire.InputSerial) {
	pp := h.shadow(id)
	pp.pendingInput = serial
}

func (h *SessionHandler) shadow(id pane.ID) *perPane {
	pp, ok := h.perPane[id]
	if !ok {
		pp = &perPane{}
		h.perPane[id] = pp
	}
	return pp
}

func (h *SessionHandler) listPanes() wire.Pdu {
	resp := &wire.ListPanesResponse{}
	for _, win := range h.mux.IterWindows() {
		for _, tab := range win.Tabs {
			for _, pp := range tab.PositionedPanes() {
				p := pp.Pane
				rows, cols := p.Dimensions()
				resp.Panes = append(resp.Panes, wire.PaneEntry{
					PaneID:     uint64(p.ID()),
					TabID:      uint64(tab.ID()),
					WindowID:   uint64(win.ID),
					Workspace:  win.Workspace,
					Title:      p.Title(),
					Rows:       int64(rows),
					Cols:       int64(cols),
					Left:       int64(pp.Left),
					Top:        int64(pp.Top),
					IsActive:   pp.IsActive,
					IsZoomed:   tab.Zoomed() == p.ID(),
					WorkingDir: p.WorkingDir(),
				})
			}
		}
	}
	return resp
}

// computeChanges diffs the live pane against this client's shadow:
//
//  1. Collect title, cursor, dimensions, mouse-grab state and the rows
//     changed since the shadow's seqno across viewport and scrollback.
//  2. If nothing changed and no input serial forces a response, return nil.
//  3. Dirty rows inside the viewport become bonus_lines (sent inline);
//     dirty rows elsewhere are advertised in dirty_lines for lazy fetch.
//  4. The cursor row is always appended as a bonus line, even when clean,
//     so cursor redraws never lag. Consumers treat later entries for a row
//     as authoritative.
//  5. Update the shadow and advance its seqno.
func (h *SessionHandler) computeChanges(p pane.Pane, force wire.InputSerial) *wire.GetPaneRenderChangesResponse {
	pp := h.shadow(p.ID())
	if force == 0 && pp.pendingInput != 0 {
		force = pp.pendingInput
	}
	pp.pendingInput = 0

	rows, cols := p.Dimensions()
	cursor := p.CursorPosition()
	title := p.Title()
	workingDir := p.WorkingDir()
	grabbed := p.MouseGrabbed()
	viewport := p.VisibleRange()
	all := p.AllRange()

	dims := wire.RenderDimensions{
		Rows:           int64(rows),
		Cols:           int64(cols),
		ScrollbackRows: all.Len() - int64(rows),
		ViewportStart:  viewport.Start,
	}
	wcursor := wire.CursorPosition{
		X:       int64(cursor.X),
		Y:       int64(cursor.Y),
		Shape:   byte(cursor.Shape),
		Visible: cursor.Visible,
	}

	changed := p.GetChangedSince(all, pp.lastSeqno)

	same := pp.initialized &&
		changed.IsEmpty() &&
		title == pp.lastTitle &&
		workingDir == pp.lastWorkingDir &&
		wcursor == pp.lastCursor &&
		dims == pp.lastDims &&
		grabbed == pp.lastMouseGrabbed
	if same && force == 0 {
		return nil
	}

	resp := &wire.GetPaneRenderChangesResponse{
		PaneID:       uint64(p.ID()),
		MouseGrabbed: grabbed,
		DirtyLines:   rangeset.New(),
		Dims:         dims,
		Cursor:       wcursor,
		Title:        title,
		WorkingDir:   workingDir,
		InputSerial:  force,
		SeqNo:        p.SeqNo(),
	}

	// Split dirty rows: viewport rows ship inline, the rest is advertised
	bonusRows := rangeset.New()
	for _, row := range changed.Values() {
		if viewport.Contains(row) {
			bonusRows.Add(row)
		} else {
			resp.DirtyLines.Add(row)
		}
	}
	for _, r := range bonusRows.Ranges() {
		idxs, lines := p.GetLines(r)
		for i := range lines {
			resp.BonusLines = append(resp.BonusLines, wire.BonusLine{Row: idxs[i], Line: lines[i]})
		}
	}

	// Cursor row always rides along, clean or not
	cursorRow := viewport.Start + int64(cursor.Y)
	idxs, lines := p.GetLines(rangeset.Range{Start: cursorRow, End: cursorRow + 1})
	for i := range lines {
		resp.BonusLines = append(resp.BonusLines, wire.BonusLine{Row: idxs[i], Line: lines[i]})
	}

	pp.lastSeqno = p.SeqNo()
	pp.lastTitle = title
	pp.lastWorkingDir = workingDir
	pp.lastCursor = wcursor
	pp.lastDims = dims
	pp.lastMouseGrabbed = grabbed
	pp.initialized = true
	return resp
}

// search scans every stored row of the pane for the pattern.
func (h *SessionHandler) search(p pane.Pane, req *wire.SearchScrollbackRequest) wire.Pdu {
	var matcher func(line string) [][]int
	switch req.Kind {
	case wire.SearchRegex:
		re, err := regexp.Compile(req.Pattern)
		if err != nil {
			return errResp(fmt.Errorf("bad pattern: %w", err))
		}
		matcher = func(line string) [][]int { return re.FindAllStringIndex(line, -1) }
	case wire.SearchCaseInsensitive:
		needle := strings.ToLower(req.Pattern)
		matcher = func(line string) [][]int { return substrMatches(strings.ToLower(line), needle) }
	default:
		matcher = func(line string) [][]int { return substrMatches(line, req.Pattern) }
	}

	resp := &wire.SearchScrollbackResponse{PaneID: req.PaneID}
	idxs, lines := p.GetLines(p.AllRange())
	for i, line := range lines {
		text := line.String()
		for _, m := range matcher(text) {
			startX := len([]rune(text[:m[0]]))
			endX := len([]rune(text[:m[1]]))
			resp.Results = append(resp.Results, wire.SearchResult{
				Row:    idxs[i],
				StartX: int64(startX),
				EndX:   int64(endX),
				Text:   text[m[0]:m[1]],
			})
		}
	}
	return resp
}

// substrMatches finds byte ranges of every occurrence of needle.
func substrMatches(haystack, needle string) [][]int {
	if needle == "" {
		return nil
	}
	var out [][]int
	off := 0
	for {
		i := strings.Index(haystack[off:], needle)
		if i < 0 {
			return out
		}
		start := off + i
		out = append(out, []int{start, start + len(needle)})
		off = start + len(needle)
	}
}
