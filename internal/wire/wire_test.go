package wire

import (
	"bytes"
	"testing"

	"github.com/ellery/kiln/internal/cell"
	"github.com/ellery/kiln/internal/color"
	"github.com/ellery/kiln/internal/rangeset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Framing
// =============================================================================

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := &Frame{Serial: 42, PduType: TypePing, Payload: []byte("abc")}
	require.NoError(t, WriteFrame(&buf, in))

	out, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, in.Serial, out.Serial)
	assert.Equal(t, in.PduType, out.PduType)
	assert.Equal(t, in.Payload, out.Payload)
}

func TestFrame_Sequence(t *testing.T) {
	var buf bytes.Buffer
	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, WriteFrame(&buf, &Frame{Serial: i, PduType: TypePong}))
	}
	for i := uint64(1); i <= 5; i++ {
		f, err := ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, i, f.Serial)
	}
}

func TestFrame_RejectsOversized(t *testing.T) {
	// Hand-craft a frame header advertising an absurd length
	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x7f}) // huge uvarint

	_, err := ReadFrame(&buf)
	assert.Error(t, err)
}

// =============================================================================
// PDU round trips
// =============================================================================

func roundTrip(t *testing.T, serial uint64, in Pdu) Pdu {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, EncodePdu(serial, in)))
	f, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, serial, f.Serial)
	out, err := DecodePdu(f)
	require.NoError(t, err)
	return out
}

func TestPdu_CodecVersion(t *testing.T) {
	in := &GetCodecVersionResponse{
		Codec:      CodecVersion,
		Version:    "1.4.2",
		Executable: "/usr/bin/kiln",
		ConfigPath: "/home/u/.config/kiln/kiln.json",
	}
	out := roundTrip(t, 1, in)
	assert.Equal(t, in, out)
}

func TestPdu_SpawnAndSplit(t *testing.T) {
	spawn := &SpawnV2{Domain: "local", Command: "htop", Cwd: "/tmp", Rows: 24, Cols: 80, Workspace: "dev"}
	assert.Equal(t, spawn, roundTrip(t, 7, spawn))

	split := &SplitPane{PaneID: 3, Horizontal: true, Domain: "local", Command: ""}
	assert.Equal(t, split, roundTrip(t, 8, split))
}

func TestPdu_KeyDownCarriesSerial(t *testing.T) {
	in := &SendKeyDown{PaneID: 9, Data: []byte("x"), Serial: 171234567890}
	out := roundTrip(t, 11, in).(*SendKeyDown)
	assert.Equal(t, in.Serial, out.Serial)
	assert.Equal(t, in.Data, out.Data)
}

func TestPdu_RenderChangesResponse(t *testing.T) {
	dirty := rangeset.New()
	dirty.AddRange(rangeset.Range{Start: -4, End: 2})
	dirty.Add(10)

	line := cell.NewLine(4)
	var attrs cell.Attributes
	attrs.SetIntensity(cell.IntensityBold)
	attrs.SetUnderline(cell.UnderlineCurly)
	attrs.Foreground = color.PaletteIndex(5)
	attrs.Background = color.TrueColor(color.New(1, 2, 3))
	attrs.Hyperlink = &cell.Hyperlink{ID: "i", URI: "https://x.io"}
	line.SetCell(0, cell.New("a", attrs), 17)
	line.SetCell(1, cell.New("世", cell.Attributes{}), 18)

	in := &GetPaneRenderChangesResponse{
		PaneID:       5,
		MouseGrabbed: true,
		DirtyLines:   dirty,
		Dims:         RenderDimensions{Rows: 24, Cols: 80, ScrollbackRows: 100, ViewportStart: 76},
		Cursor:       CursorPosition{X: 3, Y: 9, Visible: true},
		Title:        "vim",
		WorkingDir:   "/src",
		BonusLines:   []BonusLine{{Row: 80, Line: line}},
		InputSerial:  12345,
		SeqNo:        999,
	}
	out := roundTrip(t, 3, in).(*GetPaneRenderChangesResponse)

	assert.Equal(t, in.PaneID, out.PaneID)
	assert.Equal(t, in.Dims, out.Dims)
	assert.Equal(t, in.Cursor, out.Cursor)
	assert.Equal(t, dirty.Values(), out.DirtyLines.Values())
	require.Len(t, out.BonusLines, 1)
	assert.Equal(t, int64(80), out.BonusLines[0].Row)

	got := out.BonusLines[0].Line
	assert.Equal(t, line.SeqNo(), got.SeqNo())
	assert.Equal(t, "a", got.CellAt(0).Text)
	assert.True(t, got.CellAt(0).Attrs.Equal(&attrs))
	assert.Equal(t, 2, got.CellAt(1).Width)
}

func TestPdu_SearchScrollback(t *testing.T) {
	in := &SearchScrollbackResponse{
		PaneID: 2,
		Results: []SearchResult{
			{Row: -3, StartX: 1, EndX: 5, Text: "err!"},
			{Row: 7, StartX: 0, EndX: 2, Text: "ok"},
		},
	}
	assert.Equal(t, in, roundTrip(t, 20, in))
}

func TestPdu_PushesUseSerialZero(t *testing.T) {
	in := &NotifyAlert{PaneID: 1, Kind: 0, Data: ""}
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, EncodePdu(0, in)))
	f, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), f.Serial)
}

func TestPdu_UnknownTypeRejected(t *testing.T) {
	_, err := DecodePdu(&Frame{PduType: 9999})
	assert.Error(t, err)
}

func TestDecoder_TruncationIsError(t *testing.T) {
	f := EncodePdu(1, &SpawnV2{Domain: "local", Command: "x", Rows: 24, Cols: 80})
	f.Payload = f.Payload[:len(f.Payload)/2]
	_, err := DecodePdu(f)
	assert.Error(t, err)
}

// =============================================================================
// Input serials
// =============================================================================

func TestInputSerial_StrictlyIncreasing(t *testing.T) {
	var prev InputSerial
	for i := 0; i < 100; i++ {
		next := NextInputSerial(prev)
		assert.Greater(t, next, prev)
		prev = next
	}
}
