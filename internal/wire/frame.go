// Package wire implements the client/server sync protocol: varint
// length-prefixed frames, the PDU vocabulary, and the binary payload codec.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame payload. Anything larger indicates a
// corrupt or hostile stream.
const MaxFrameSize = 16 * 1024 * 1024

// Frame is one unit on the wire: a request/response serial, a PDU type and
// the encoded payload. Push frames from the server use serial 0.
type Frame struct {
	Serial  uint64
	PduType uint64
	Payload []byte
}

// WriteFrame writes a frame as {encoded_length, serial, pdu_type, payload},
// each integer a uvarint. One Write call keeps the frame atomic on
// non-buffered writers.
func WriteFrame(w io.Writer, f *Frame) error {
	var header [2 * binary.MaxVarintLen64]byte
	n := binary.PutUvarint(header[:], f.Serial)
	n += binary.PutUvarint(header[n:], f.PduType)

	body := uint64(n + len(f.Payload))
	var lenBuf [binary.MaxVarintLen64]byte
	ln := binary.PutUvarint(lenBuf[:], body)

	buf := make([]byte, 0, ln+int(body))
	buf = append(buf, lenBuf[:ln]...)
	buf = append(buf, header[:n]...)
	buf = append(buf, f.Payload...)

	_, err := w.Write(buf)
	return err
}

// byteReaderAdapter lets ReadUvarint work over any io.Reader without
// requiring buffering from the caller.
type byteReaderAdapter struct {
	r io.Reader
}

func (b byteReaderAdapter) ReadByte() (byte, error) {
	var one [1]byte
	if _, err := io.ReadFull(b.r, one[:]); err != nil {
		return 0, err
	}
	return one[0], nil
}

// ReadFrame reads one frame. The reader should be buffered for throughput;
// correctness does not depend on it.
func ReadFrame(r io.Reader) (*Frame, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = byteReaderAdapter{r: r}
	}

	length, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, err
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("frame length %d exceeds limit", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}

	serial, n := binary.Uvarint(body)
	if n <= 0 {
		return nil, fmt.Errorf("bad frame serial")
	}
	pduType, n2 := binary.Uvarint(body[n:])
	if n2 <= 0 {
		return nil, fmt.Errorf("bad frame pdu type")
	}

	return &Frame{
		Serial:  serial,
		PduType: pduType,
		Payload: body[n+n2:],
	}, nil
}
