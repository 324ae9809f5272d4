package wire

import (
	"fmt"
	"time"

	"github.com/ellery/kiln/internal/cell"
	"github.com/ellery/kiln/internal/rangeset"
)

// CodecVersion is bumped whenever the encoding of any PDU changes. Client
// and server exchange it before anything else; a mismatch terminates the
// session.
const CodecVersion = 1

// InputSerial tags user input with a millisecond-based, strictly increasing
// id so predictive echo can be correlated with server responses. Zero means
// "no input serial".
type InputSerial uint64

// NextInputSerial produces a serial greater than prev, based on wall-clock
// milliseconds.
func NextInputSerial(prev InputSerial) InputSerial {
	now := InputSerial(time.Now().UnixMilli())
	if now <= prev {
		return prev + 1
	}
	return now
}

// Elapsed returns the wall time since the serial was minted.
func (s InputSerial) Elapsed() time.Duration {
	if s == 0 {
		return 0
	}
	return time.Duration(time.Now().UnixMilli()-int64(s)) * time.Millisecond
}

// PDU type ids. Stable on the wire; append only.
const (
	TypePing uint64 = iota + 1
	TypePong
	TypeGetCodecVersion
	TypeGetCodecVersionResponse
	TypeSetClientID
	TypeUnitResponse
	TypeErrorResponse
	TypeListPanes
	TypeListPanesResponse
	TypeSpawnV2
	TypeSpawnResponse
	TypeSplitPane
	TypeSplitPaneResponse
	TypeWriteToPane
	TypeSendPaste
	TypeSendKeyDown
	TypeSendMouseEvent
	TypeResize
	TypeSetPaneZoomed
	TypeKillPane
	TypeGetPaneRenderChanges
	TypeGetPaneRenderChangesResponse
	TypeGetLines
	TypeGetLinesResponse
	TypeSearchScrollbackRequest
	TypeSearchScrollbackResponse
	TypeNotifyAlert
	TypeSetClipboard
	TypeSetPalette
	TypePaneRemoved
	TypeGetLiveness
	TypeLivenessResponse
)

// Pdu is one decoded protocol unit.
type Pdu interface {
	PduType() uint64
	Encode(e *Encoder)
	Decode(d *Decoder)
}

// EncodePdu renders a PDU into a frame with the given serial.
func EncodePdu(serial uint64, p Pdu) *Frame {
	var e Encoder
	p.Encode(&e)
	return &Frame{Serial: serial, PduType: p.PduType(), Payload: e.Bytes()}
}

// DecodePdu parses a frame's payload by its type tag.
func DecodePdu(f *Frame) (Pdu, error) {
	var p Pdu
	switch f.PduType {
	case TypePing:
		p = &Ping{}
	case TypePong:
		p = &Pong{}
	case TypeGetCodecVersion:
		p = &GetCodecVersion{}
	case TypeGetCodecVersionResponse:
		p = &GetCodecVersionResponse{}
	case TypeSetClientID:
		p = &SetClientID{}
	case TypeUnitResponse:
		p = &UnitResponse{}
	case TypeErrorResponse:
		p = &ErrorResponse{}
	case TypeListPanes:
		p = &ListPanes{}
	case TypeListPanesResponse:
		p = &ListPanesResponse{}
	case TypeSpawnV2:
		p = &SpawnV2{}
	case TypeSpawnResponse:
		p = &SpawnResponse{}
	case TypeSplitPane:
		p = &SplitPane{}
	case TypeSplitPaneResponse:
		p = &SplitPaneResponse{}
	case TypeWriteToPane:
		p = &WriteToPane{}
	case TypeSendPaste:
		p = &SendPaste{}
	case TypeSendKeyDown:
		p = &SendKeyDown{}
	case TypeSendMouseEvent:
		p = &SendMouseEvent{}
	case TypeResize:
		p = &Resize{}
	case TypeSetPaneZoomed:
		p = &SetPaneZoomed{}
	case TypeKillPane:
		p = &KillPane{}
	case TypeGetPaneRenderChanges:
		p = &GetPaneRenderChanges{}
	case TypeGetPaneRenderChangesResponse:
		p = &GetPaneRenderChangesResponse{}
	case TypeGetLines:
		p = &GetLines{}
	case TypeGetLinesResponse:
		p = &GetLinesResponse{}
	case TypeSearchScrollbackRequest:
		p = &SearchScrollbackRequest{}
	case TypeSearchScrollbackResponse:
		p = &SearchScrollbackResponse{}
	case TypeNotifyAlert:
		p = &NotifyAlert{}
	case TypeSetClipboard:
		p = &SetClipboard{}
	case TypeSetPalette:
		p = &SetPalette{}
	case TypePaneRemoved:
		p = &PaneRemoved{}
	case TypeGetLiveness:
		p = &GetLiveness{}
	case TypeLivenessResponse:
		p = &LivenessResponse{}
	default:
		return nil, fmt.Errorf("unknown pdu type %d", f.PduType)
	}
	d := NewDecoder(f.Payload)
	p.Decode(d)
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("decode pdu type %d: %w", f.PduType, err)
	}
	return p, nil
}

// --- Keepalive and negotiation ---

// Ping asks the peer to answer with Pong.
type Ping struct{}

func (*Ping) PduType() uint64  { return TypePing }
func (*Ping) Encode(*Encoder)  {}
func (*Ping) Decode(*Decoder)  {}

// Pong answers a Ping.
type Pong struct{}

func (*Pong) PduType() uint64 { return TypePong }
func (*Pong) Encode(*Encoder) {}
func (*Pong) Decode(*Decoder) {}

// GetCodecVersion must be the first request on a connection.
type GetCodecVersion struct{}

func (*GetCodecVersion) PduType() uint64 { return TypeGetCodecVersion }
func (*GetCodecVersion) Encode(*Encoder) {}
func (*GetCodecVersion) Decode(*Decoder) {}

// GetCodecVersionResponse carries the server's codec and build identity.
type GetCodecVersionResponse struct {
	Codec      uint64
	Version    string // semver build version
	Executable string
	ConfigPath string
}

func (*GetCodecVersionResponse) PduType() uint64 { return TypeGetCodecVersionResponse }
func (p *GetCodecVersionResponse) Encode(e *Encoder) {
	e.U64(p.Codec)
	e.String(p.Version)
	e.String(p.Executable)
	e.String(p.ConfigPath)
}
func (p *GetCodecVersionResponse) Decode(d *Decoder) {
	p.Codec = d.U64()
	p.Version = d.String()
	p.Executable = d.String()
	p.ConfigPath = d.String()
}

// SetClientID identifies this client in the mux.
type SetClientID struct {
	ClientID string
}

func (*SetClientID) PduType() uint64 { return TypeSetClientID }
func (p *SetClientID) Encode(e *Encoder) { e.String(p.ClientID) }
func (p *SetClientID) Decode(d *Decoder) { p.ClientID = d.String() }

// UnitResponse acknowledges a request with no payload.
type UnitResponse struct{}

func (*UnitResponse) PduType() uint64 { return TypeUnitResponse }
func (*UnitResponse) Encode(*Encoder) {}
func (*UnitResponse) Decode(*Decoder) {}

// ErrorResponse reports a failed request.
type ErrorResponse struct {
	Message string
}

func (*ErrorResponse) PduType() uint64 { return TypeErrorResponse }
func (p *ErrorResponse) Encode(e *Encoder) { e.String(p.Message) }
func (p *ErrorResponse) Decode(d *Decoder) { p.Message = d.String() }

// --- Pane tree enumeration ---

// ListPanes asks for the full pane tree.
type ListPanes struct{}

func (*ListPanes) PduType() uint64 { return TypeListPanes }
func (*ListPanes) Encode(*Encoder) {}
func (*ListPanes) Decode(*Decoder) {}

// PaneEntry is one pane in a ListPanesResponse.
type PaneEntry struct {
	PaneID    uint64
	TabID     uint64
	WindowID  uint64
	Workspace string
	Title     string
	Rows      int64
	Cols      int64
	Left      int64
	Top       int64
	IsActive  bool
	IsZoomed  bool
	WorkingDir string
}

// ListPanesResponse enumerates every pane.
type ListPanesResponse struct {
	Panes []PaneEntry
}

func (*ListPanesResponse) PduType() uint64 { return TypeListPanesResponse }
func (p *ListPanesResponse) Encode(e *Encoder) {
	e.U64(uint64(len(p.Panes)))
	for _, pe := range p.Panes {
		e.U64(pe.PaneID)
		e.U64(pe.TabID)
		e.U64(pe.WindowID)
		e.String(pe.Workspace)
		e.String(pe.Title)
		e.I64(pe.Rows)
		e.I64(pe.Cols)
		e.I64(pe.Left)
		e.I64(pe.Top)
		e.Bool(pe.IsActive)
		e.Bool(pe.IsZoomed)
		e.String(pe.WorkingDir)
	}
}
func (p *ListPanesResponse) Decode(d *Decoder) {
	n := d.U64()
	for i := uint64(0); i < n && d.Err() == nil; i++ {
		var pe PaneEntry
		pe.PaneID = d.U64()
		pe.TabID = d.U64()
		pe.WindowID = d.U64()
		pe.Workspace = d.String()
		pe.Title = d.String()
		pe.Rows = d.I64()
		pe.Cols = d.I64()
		pe.Left = d.I64()
		pe.Top = d.I64()
		pe.IsActive = d.Bool()
		pe.IsZoomed = d.Bool()
		pe.WorkingDir = d.String()
		p.Panes = append(p.Panes, pe)
	}
}

// --- Pane creation ---

// SpawnV2 creates a pane in a new or existing window.
type SpawnV2 struct {
	Domain    string
	WindowID  uint64 // 0 requests a fresh window
	Command   string
	Cwd       string
	Rows      int64
	Cols      int64
	Workspace string
}

func (*SpawnV2) PduType() uint64 { return TypeSpawnV2 }
func (p *SpawnV2) Encode(e *Encoder) {
	e.String(p.Domain)
	e.U64(p.WindowID)
	e.String(p.Command)
	e.String(p.Cwd)
	e.I64(p.Rows)
	e.I64(p.Cols)
	e.String(p.Workspace)
}
func (p *SpawnV2) Decode(d *Decoder) {
	p.Domain = d.String()
	p.WindowID = d.U64()
	p.Command = d.String()
	p.Cwd = d.String()
	p.Rows = d.I64()
	p.Cols = d.I64()
	p.Workspace = d.String()
}

// SpawnResponse reports the created pane/tab/window.
type SpawnResponse struct {
	PaneID   uint64
	TabID    uint64
	WindowID uint64
}

func (*SpawnResponse) PduType() uint64 { return TypeSpawnResponse }
func (p *SpawnResponse) Encode(e *Encoder) {
	e.U64(p.PaneID)
	e.U64(p.TabID)
	e.U64(p.WindowID)
}
func (p *SpawnResponse) Decode(d *Decoder) {
	p.PaneID = d.U64()
	p.TabID = d.U64()
	p.WindowID = d.U64()
}

// SplitPane adds a pane adjacent to an existing one.
type SplitPane struct {
	PaneID     uint64
	Horizontal bool
	Domain     string
	Command    string
	Cwd        string
}

func (*SplitPane) PduType() uint64 { return TypeSplitPane }
func (p *SplitPane) Encode(e *Encoder) {
	e.U64(p.PaneID)
	e.Bool(p.Horizontal)
	e.String(p.Domain)
	e.String(p.Command)
	e.String(p.Cwd)
}
func (p *SplitPane) Decode(d *Decoder) {
	p.PaneID = d.U64()
	p.Horizontal = d.Bool()
	p.Domain = d.String()
	p.Command = d.String()
	p.Cwd = d.String()
}

// SplitPaneResponse reports the created pane and its size.
type SplitPaneResponse struct {
	PaneID uint64
	Rows   int64
	Cols   int64
}

func (*SplitPaneResponse) PduType() uint64 { return TypeSplitPaneResponse }
func (p *SplitPaneResponse) Encode(e *Encoder) {
	e.U64(p.PaneID)
	e.I64(p.Rows)
	e.I64(p.Cols)
}
func (p *SplitPaneResponse) Decode(d *Decoder) {
	p.PaneID = d.U64()
	p.Rows = d.I64()
	p.Cols = d.I64()
}

// --- Input ---

// WriteToPane carries raw bytes for the pane's application.
type WriteToPane struct {
	PaneID uint64
	Data   []byte
}

func (*WriteToPane) PduType() uint64 { return TypeWriteToPane }
func (p *WriteToPane) Encode(e *Encoder) {
	e.U64(p.PaneID)
	e.BytesField(p.Data)
}
func (p *WriteToPane) Decode(d *Decoder) {
	p.PaneID = d.U64()
	p.Data = d.BytesField()
}

// SendPaste pastes text, honoring bracketed paste on the server side.
type SendPaste struct {
	PaneID uint64
	Data   string
	Serial InputSerial
}

func (*SendPaste) PduType() uint64 { return TypeSendPaste }
func (p *SendPaste) Encode(e *Encoder) {
	e.U64(p.PaneID)
	e.String(p.Data)
	e.U64(uint64(p.Serial))
}
func (p *SendPaste) Decode(d *Decoder) {
	p.PaneID = d.U64()
	p.Data = d.String()
	p.Serial = InputSerial(d.U64())
}

// SendKeyDown carries an already-encoded key sequence plus its input
// serial for predictive echo correlation.
type SendKeyDown struct {
	PaneID uint64
	Data   []byte
	Serial InputSerial
}

func (*SendKeyDown) PduType() uint64 { return TypeSendKeyDown }
func (p *SendKeyDown) Encode(e *Encoder) {
	e.U64(p.PaneID)
	e.BytesField(p.Data)
	e.U64(uint64(p.Serial))
}
func (p *SendKeyDown) Decode(d *Decoder) {
	p.PaneID = d.U64()
	p.Data = d.BytesField()
	p.Serial = InputSerial(d.U64())
}

// SendMouseEvent forwards a normalized mouse action.
type SendMouseEvent struct {
	PaneID  uint64
	Button  byte
	X       int64
	Y       int64
	Press   bool
	Motion  bool
	Shift   bool
	Alt     bool
	Control bool
}

func (*SendMouseEvent) PduType() uint64 { return TypeSendMouseEvent }
func (p *SendMouseEvent) Encode(e *Encoder) {
	e.U64(p.PaneID)
	e.Byte(p.Button)
	e.I64(p.X)
	e.I64(p.Y)
	e.Bool(p.Press)
	e.Bool(p.Motion)
	e.Bool(p.Shift)
	e.Bool(p.Alt)
	e.Bool(p.Control)
}
func (p *SendMouseEvent) Decode(d *Decoder) {
	p.PaneID = d.U64()
	p.Button = d.Byte()
	p.X = d.I64()
	p.Y = d.I64()
	p.Press = d.Bool()
	p.Motion = d.Bool()
	p.Shift = d.Bool()
	p.Alt = d.Bool()
	p.Control = d.Bool()
}

// --- Lifecycle ---

// Resize changes a pane's dimensions.
type Resize struct {
	PaneID uint64
	Rows   int64
	Cols   int64
}

func (*Resize) PduType() uint64 { return TypeResize }
func (p *Resize) Encode(e *Encoder) {
	e.U64(p.PaneID)
	e.I64(p.Rows)
	e.I64(p.Cols)
}
func (p *Resize) Decode(d *Decoder) {
	p.PaneID = d.U64()
	p.Rows = d.I64()
	p.Cols = d.I64()
}

// SetPaneZoomed zooms or unzooms a pane within its tab.
type SetPaneZoomed struct {
	PaneID uint64
	Zoomed bool
}

func (*SetPaneZoomed) PduType() uint64 { return TypeSetPaneZoomed }
func (p *SetPaneZoomed) Encode(e *Encoder) {
	e.U64(p.PaneID)
	e.Bool(p.Zoomed)
}
func (p *SetPaneZoomed) Decode(d *Decoder) {
	p.PaneID = d.U64()
	p.Zoomed = d.Bool()
}

// KillPane terminates a pane's child process.
type KillPane struct {
	PaneID uint64
}

func (*KillPane) PduType() uint64 { return TypeKillPane }
func (p *KillPane) Encode(e *Encoder) { e.U64(p.PaneID) }
func (p *KillPane) Decode(d *Decoder) { p.PaneID = d.U64() }

// GetLiveness asks whether a pane is still alive.
type GetLiveness struct {
	PaneID uint64
}

func (*GetLiveness) PduType() uint64 { return TypeGetLiveness }
func (p *GetLiveness) Encode(e *Encoder) { e.U64(p.PaneID) }
func (p *GetLiveness) Decode(d *Decoder) { p.PaneID = d.U64() }

// LivenessResponse reports pane liveness.
type LivenessResponse struct {
	PaneID  uint64
	IsAlive bool
}

func (*LivenessResponse) PduType() uint64 { return TypeLivenessResponse }
func (p *LivenessResponse) Encode(e *Encoder) {
	e.U64(p.PaneID)
	e.Bool(p.IsAlive)
}
func (p *LivenessResponse) Decode(d *Decoder) {
	p.PaneID = d.U64()
	p.IsAlive = d.Bool()
}

// --- Render sync ---

// GetPaneRenderChanges polls for pane damage. ForceWithInputSerial makes
// the server respond even without changes so the client can measure RTT.
type GetPaneRenderChanges struct {
	PaneID               uint64
	ForceWithInputSerial InputSerial
}

func (*GetPaneRenderChanges) PduType() uint64 { return TypeGetPaneRenderChanges }
func (p *GetPaneRenderChanges) Encode(e *Encoder) {
	e.U64(p.PaneID)
	e.U64(uint64(p.ForceWithInputSerial))
}
func (p *GetPaneRenderChanges) Decode(d *Decoder) {
	p.PaneID = d.U64()
	p.ForceWithInputSerial = InputSerial(d.U64())
}

// CursorPosition is the renderable cursor description on the wire.
type CursorPosition struct {
	X       int64
	Y       int64
	Shape   byte
	Visible bool
}

// RenderDimensions describes the pane's geometry and viewport placement.
type RenderDimensions struct {
	Rows          int64
	Cols          int64
	ScrollbackRows int64
	// ViewportStart is the stable index of the first visible row.
	ViewportStart int64
}

// BonusLine pairs a stable row with its full content, sent inline.
type BonusLine struct {
	Row  int64
	Line *cell.Line
}

// GetPaneRenderChangesResponse carries everything a mirror needs to catch
// up: inline viewport lines, advertised dirty scrollback rows, cursor,
// title and geometry.
type GetPaneRenderChangesResponse struct {
	PaneID       uint64
	MouseGrabbed bool
	DirtyLines   *rangeset.RangeSet
	Dims         RenderDimensions
	Cursor       CursorPosition
	Title        string
	WorkingDir   string
	BonusLines   []BonusLine
	InputSerial  InputSerial
	SeqNo        uint64
}

func (*GetPaneRenderChangesResponse) PduType() uint64 { return TypeGetPaneRenderChangesResponse }
func (p *GetPaneRenderChangesResponse) Encode(e *Encoder) {
	e.U64(p.PaneID)
	e.Bool(p.MouseGrabbed)
	if p.DirtyLines == nil {
		EncodeRangeSet(e, rangeset.New())
	} else {
		EncodeRangeSet(e, p.DirtyLines)
	}
	e.I64(p.Dims.Rows)
	e.I64(p.Dims.Cols)
	e.I64(p.Dims.ScrollbackRows)
	e.I64(p.Dims.ViewportStart)
	e.I64(p.Cursor.X)
	e.I64(p.Cursor.Y)
	e.Byte(p.Cursor.Shape)
	e.Bool(p.Cursor.Visible)
	e.String(p.Title)
	e.String(p.WorkingDir)
	e.U64(uint64(len(p.BonusLines)))
	for _, bl := range p.BonusLines {
		e.I64(bl.Row)
		EncodeLine(e, bl.Line)
	}
	e.U64(uint64(p.InputSerial))
	e.U64(p.SeqNo)
}
func (p *GetPaneRenderChangesResponse) Decode(d *Decoder) {
	p.PaneID = d.U64()
	p.MouseGrabbed = d.Bool()
	p.DirtyLines = DecodeRangeSet(d)
	p.Dims.Rows = d.I64()
	p.Dims.Cols = d.I64()
	p.Dims.ScrollbackRows = d.I64()
	p.Dims.ViewportStart = d.I64()
	p.Cursor.X = d.I64()
	p.Cursor.Y = d.I64()
	p.Cursor.Shape = d.Byte()
	p.Cursor.Visible = d.Bool()
	p.Title = d.String()
	p.WorkingDir = d.String()
	n := d.U64()
	for i := uint64(0); i < n && d.Err() == nil; i++ {
		row := d.I64()
		line := DecodeLine(d)
		if line != nil {
			p.BonusLines = append(p.BonusLines, BonusLine{Row: row, Line: line})
		}
	}
	p.InputSerial = InputSerial(d.U64())
	p.SeqNo = d.U64()
}

// GetLines fetches specific stable rows.
type GetLines struct {
	PaneID uint64
	Ranges *rangeset.RangeSet
}

func (*GetLines) PduType() uint64 { return TypeGetLines }
func (p *GetLines) Encode(e *Encoder) {
	e.U64(p.PaneID)
	if p.Ranges == nil {
		EncodeRangeSet(e, rangeset.New())
	} else {
		EncodeRangeSet(e, p.Ranges)
	}
}
func (p *GetLines) Decode(d *Decoder) {
	p.PaneID = d.U64()
	p.Ranges = DecodeRangeSet(d)
}

// GetLinesResponse returns the requested rows.
type GetLinesResponse struct {
	PaneID uint64
	Lines  []BonusLine
}

func (*GetLinesResponse) PduType() uint64 { return TypeGetLinesResponse }
func (p *GetLinesResponse) Encode(e *Encoder) {
	e.U64(p.PaneID)
	e.U64(uint64(len(p.Lines)))
	for _, bl := range p.Lines {
		e.I64(bl.Row)
		EncodeLine(e, bl.Line)
	}
}
func (p *GetLinesResponse) Decode(d *Decoder) {
	p.PaneID = d.U64()
	n := d.U64()
	for i := uint64(0); i < n && d.Err() == nil; i++ {
		row := d.I64()
		line := DecodeLine(d)
		if line != nil {
			p.Lines = append(p.Lines, BonusLine{Row: row, Line: line})
		}
	}
}

// --- Scrollback search ---

// SearchKind selects how a search pattern matches.
type SearchKind byte

const (
	SearchCaseSensitive SearchKind = iota
	SearchCaseInsensitive
	SearchRegex
)

// SearchScrollbackRequest searches a pane's stored rows.
type SearchScrollbackRequest struct {
	PaneID  uint64
	Kind    SearchKind
	Pattern string
}

func (*SearchScrollbackRequest) PduType() uint64 { return TypeSearchScrollbackRequest }
func (p *SearchScrollbackRequest) Encode(e *Encoder) {
	e.U64(p.PaneID)
	e.Byte(byte(p.Kind))
	e.String(p.Pattern)
}
func (p *SearchScrollbackRequest) Decode(d *Decoder) {
	p.PaneID = d.U64()
	p.Kind = SearchKind(d.Byte())
	p.Pattern = d.String()
}

// SearchResult is one match, addressed by stable row and columns.
type SearchResult struct {
	Row    int64
	StartX int64
	EndX   int64
	Text   string
}

// SearchScrollbackResponse lists every match.
type SearchScrollbackResponse struct {
	PaneID  uint64
	Results []SearchResult
}

func (*SearchScrollbackResponse) PduType() uint64 { return TypeSearchScrollbackResponse }
func (p *SearchScrollbackResponse) Encode(e *Encoder) {
	e.U64(p.PaneID)
	e.U64(uint64(len(p.Results)))
	for _, r := range p.Results {
		e.I64(r.Row)
		e.I64(r.StartX)
		e.I64(r.EndX)
		e.String(r.Text)
	}
}
func (p *SearchScrollbackResponse) Decode(d *Decoder) {
	p.PaneID = d.U64()
	n := d.U64()
	for i := uint64(0); i < n && d.Err() == nil; i++ {
		var r SearchResult
		r.Row = d.I64()
		r.StartX = d.I64()
		r.EndX = d.I64()
		r.Text = d.String()
		p.Results = append(p.Results, r)
	}
}

// --- Unsolicited pushes (serial 0) ---

// NotifyAlert pushes a pane notification to clients.
type NotifyAlert struct {
	PaneID uint64
	Kind   byte
	Data   string
}

func (*NotifyAlert) PduType() uint64 { return TypeNotifyAlert }
func (p *NotifyAlert) Encode(e *Encoder) {
	e.U64(p.PaneID)
	e.Byte(p.Kind)
	e.String(p.Data)
}
func (p *NotifyAlert) Decode(d *Decoder) {
	p.PaneID = d.U64()
	p.Kind = d.Byte()
	p.Data = d.String()
}

// SetClipboard pushes an OSC 52 clipboard write to the client that owns the
// display.
type SetClipboard struct {
	PaneID uint64
	Data   string
}

func (*SetClipboard) PduType() uint64 { return TypeSetClipboard }
func (p *SetClipboard) Encode(e *Encoder) {
	e.U64(p.PaneID)
	e.String(p.Data)
}
func (p *SetClipboard) Decode(d *Decoder) {
	p.PaneID = d.U64()
	p.Data = d.String()
}

// SetPalette pushes a pane's palette. Sent when the application mutates it
// and re-sent to every client on config regeneration.
type SetPalette struct {
	PaneID uint64
	Colors [][4]byte // 256 rgba entries
	Foreground [4]byte
	Background [4]byte
	Cursor     [4]byte
}

func (*SetPalette) PduType() uint64 { return TypeSetPalette }
func (p *SetPalette) Encode(e *Encoder) {
	e.U64(p.PaneID)
	e.U64(uint64(len(p.Colors)))
	for _, c := range p.Colors {
		e.Byte(c[0])
		e.Byte(c[1])
		e.Byte(c[2])
		e.Byte(c[3])
	}
	for _, c := range [][4]byte{p.Foreground, p.Background, p.Cursor} {
		e.Byte(c[0])
		e.Byte(c[1])
		e.Byte(c[2])
		e.Byte(c[3])
	}
}
func (p *SetPalette) Decode(d *Decoder) {
	p.PaneID = d.U64()
	n := d.U64()
	for i := uint64(0); i < n && d.Err() == nil; i++ {
		p.Colors = append(p.Colors, [4]byte{d.Byte(), d.Byte(), d.Byte(), d.Byte()})
	}
	p.Foreground = [4]byte{d.Byte(), d.Byte(), d.Byte(), d.Byte()}
	p.Background = [4]byte{d.Byte(), d.Byte(), d.Byte(), d.Byte()}
	p.Cursor = [4]byte{d.Byte(), d.Byte(), d.Byte(), d.Byte()}
}

// PaneRemoved announces that a pane is gone.
type PaneRemoved struct {
	PaneID uint64
}

func (*PaneRemoved) PduType() uint64 { return TypePaneRemoved }
func (p *PaneRemoved) Encode(e *Encoder) { e.U64(p.PaneID) }
func (p *PaneRemoved) Decode(d *Decoder) { p.PaneID = d.U64() }
