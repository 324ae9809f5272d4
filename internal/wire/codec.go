package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/ellery/kiln/internal/cell"
	"github.com/ellery/kiln/internal/color"
	"github.com/ellery/kiln/internal/rangeset"
)

// Encoder appends primitive values to a payload buffer.
type Encoder struct {
	buf []byte
}

// Bytes returns the encoded payload.
func (e *Encoder) Bytes() []byte { return e.buf }

// U64 appends an unsigned varint.
func (e *Encoder) U64(v uint64) {
	e.buf = binary.AppendUvarint(e.buf, v)
}

// I64 appends a signed varint (zigzag).
func (e *Encoder) I64(v int64) {
	e.buf = binary.AppendVarint(e.buf, v)
}

// Bool appends a single byte flag.
func (e *Encoder) Bool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

// Byte appends one raw byte.
func (e *Encoder) Byte(b byte) {
	e.buf = append(e.buf, b)
}

// String appends a length-prefixed string.
func (e *Encoder) String(s string) {
	e.U64(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

// BytesField appends a length-prefixed byte slice.
func (e *Encoder) BytesField(b []byte) {
	e.U64(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

// Decoder consumes primitive values from a payload buffer. The first error
// sticks; callers check Err once at the end.
type Decoder struct {
	buf []byte
	off int
	err error
}

// NewDecoder wraps a payload.
func NewDecoder(payload []byte) *Decoder {
	return &Decoder{buf: payload}
}

// Err returns the first decoding error, if any.
func (d *Decoder) Err() error { return d.err }

func (d *Decoder) fail(what string) {
	if d.err == nil {
		d.err = fmt.Errorf("truncated payload at %s (offset %d)", what, d.off)
	}
}

// U64 reads an unsigned varint.
func (d *Decoder) U64() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf[d.off:])
	if n <= 0 {
		d.fail("uvarint")
		return 0
	}
	d.off += n
	return v
}

// I64 reads a signed varint.
func (d *Decoder) I64() int64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Varint(d.buf[d.off:])
	if n <= 0 {
		d.fail("varint")
		return 0
	}
	d.off += n
	return v
}

// Bool reads a flag byte.
func (d *Decoder) Bool() bool {
	return d.Byte() != 0
}

// Byte reads one raw byte.
func (d *Decoder) Byte() byte {
	if d.err != nil {
		return 0
	}
	if d.off >= len(d.buf) {
		d.fail("byte")
		return 0
	}
	b := d.buf[d.off]
	d.off++
	return b
}

// String reads a length-prefixed string.
func (d *Decoder) String() string {
	return string(d.BytesField())
}

// BytesField reads a length-prefixed byte slice.
func (d *Decoder) BytesField() []byte {
	n := d.U64()
	if d.err != nil {
		return nil
	}
	if uint64(len(d.buf)-d.off) < n {
		d.fail("bytes")
		return nil
	}
	out := d.buf[d.off : d.off+int(n)]
	d.off += int(n)
	return out
}

// --- Domain value codecs ---

// encodeColorAttr writes a cell color attribute.
func encodeColorAttr(e *Encoder, a color.Attribute) {
	e.Byte(byte(a.Kind))
	switch a.Kind {
	case color.KindPalette:
		e.Byte(a.Index)
	case color.KindTrueColor:
		e.Byte(a.Color.R)
		e.Byte(a.Color.G)
		e.Byte(a.Color.B)
		e.Byte(a.Color.A)
	}
}

func decodeColorAttr(d *Decoder) color.Attribute {
	kind := color.AttributeKind(d.Byte())
	switch kind {
	case color.KindPalette:
		return color.PaletteIndex(d.Byte())
	case color.KindTrueColor:
		return color.TrueColor(color.RGBA{R: d.Byte(), G: d.Byte(), B: d.Byte(), A: d.Byte()})
	default:
		return color.Default()
	}
}

// EncodeLine writes a full line: width, seqno, and each cell.
func EncodeLine(e *Encoder, l *cell.Line) {
	cells := l.Cells()
	e.U64(uint64(len(cells)))
	e.U64(l.SeqNo())
	for i := range cells {
		c := &cells[i]
		e.String(c.Text)
		e.Byte(byte(c.Width))

		a := &c.Attrs
		var flags byte
		if a.Italic() {
			flags |= 1
		}
		if a.Blink() {
			flags |= 2
		}
		if a.Reverse() {
			flags |= 4
		}
		if a.Strikethrough() {
			flags |= 8
		}
		if a.Invisible() {
			flags |= 16
		}
		if a.Overline() {
			flags |= 32
		}
		e.Byte(flags)
		e.Byte(byte(a.Intensity()))
		e.Byte(byte(a.Underline()))
		encodeColorAttr(e, a.Foreground)
		encodeColorAttr(e, a.Background)
		encodeColorAttr(e, a.UnderlineColor)
		if a.Hyperlink != nil {
			e.Bool(true)
			e.String(a.Hyperlink.ID)
			e.String(a.Hyperlink.URI)
			e.Bool(a.Hyperlink.Implicit)
		} else {
			e.Bool(false)
		}
	}
}

// DecodeLine reads a line written by EncodeLine.
func DecodeLine(d *Decoder) *cell.Line {
	width := int(d.U64())
	if d.err != nil || width < 0 || width > 1<<16 {
		d.fail("line width")
		return nil
	}
	seqno := d.U64()
	cells := make([]cell.Cell, width)
	for i := 0; i < width; i++ {
		text := d.String()
		cw := int(d.Byte())

		var attrs cell.Attributes
		flags := d.Byte()
		attrs.SetItalic(flags&1 != 0)
		attrs.SetBlink(flags&2 != 0)
		attrs.SetReverse(flags&4 != 0)
		attrs.SetStrikethrough(flags&8 != 0)
		attrs.SetInvisible(flags&16 != 0)
		attrs.SetOverline(flags&32 != 0)
		attrs.SetIntensity(cell.Intensity(d.Byte()))
		attrs.SetUnderline(cell.Underline(d.Byte()))
		attrs.Foreground = decodeColorAttr(d)
		attrs.Background = decodeColorAttr(d)
		attrs.UnderlineColor = decodeColorAttr(d)
		if d.Bool() {
			link := &cell.Hyperlink{}
			link.ID = d.String()
			link.URI = d.String()
			link.Implicit = d.Bool()
			attrs.Hyperlink = link
		}
		if d.err != nil {
			return nil
		}
		cells[i] = cell.Cell{Text: text, Width: cw, Attrs: attrs}
	}
	return cell.RestoreLine(cells, seqno)
}

// EncodeRangeSet writes the runs of a range set.
func EncodeRangeSet(e *Encoder, rs *rangeset.RangeSet) {
	ranges := rs.Ranges()
	e.U64(uint64(len(ranges)))
	for _, r := range ranges {
		e.I64(r.Start)
		e.I64(r.End)
	}
}

// DecodeRangeSet reads a range set written by EncodeRangeSet.
func DecodeRangeSet(d *Decoder) *rangeset.RangeSet {
	n := d.U64()
	out := rangeset.New()
	for i := uint64(0); i < n && d.err == nil; i++ {
		start := d.I64()
		end := d.I64()
		out.AddRange(rangeset.Range{Start: start, End: end})
	}
	return out
}
