// Package vt implements the terminal state machine: a deterministic
// byte-driven parser recognizing C0, ESC, CSI, OSC, DCS and SOS/PM/APC
// sequences plus UTF-8 text, and the Terminal that applies the recognized
// actions to its screens.
package vt

import (
	"unicode/utf8"
)

// CSIParam is one parameter position of a CSI sequence. Colon-separated
// sub-parameters (as in SGR 4:3 or 38:2::r:g:b) are carried in Items.
type CSIParam struct {
	Items []int64
}

// First returns the primary value, or def when the position was empty.
func (p CSIParam) First(def int64) int64 {
	if len(p.Items) == 0 {
		return def
	}
	return p.Items[0]
}

// Sub returns sub-parameter i (0 is the primary value), or def.
func (p CSIParam) Sub(i int, def int64) int64 {
	if i >= len(p.Items) {
		return def
	}
	return p.Items[i]
}

// Performer receives the semantic actions recognized by the Parser.
type Performer interface {
	// Print delivers a run of printable text, already valid UTF-8.
	Print(text string)
	// Execute delivers a C0 control byte.
	Execute(b byte)
	// CsiDispatch delivers a complete CSI sequence.
	CsiDispatch(params []CSIParam, intermediates []byte, final byte)
	// EscDispatch delivers a non-CSI escape sequence.
	EscDispatch(intermediates []byte, final byte)
	// OscDispatch delivers an OSC string split on top-level semicolons.
	OscDispatch(params [][]byte)
	// DcsDispatch delivers a complete DCS string (rarely acted upon).
	DcsDispatch(data []byte)
}

type parserState uint8

const (
	stateGround parserState = iota
	stateEscape
	stateEscapeIntermediate
	stateCsiEntry
	stateCsiIgnore
	stateOscString
	stateDcsBody
	stateSosPmApc
)

// maxOscLen bounds OSC accumulation so a hostile stream cannot balloon
// memory; bytes past the limit are discarded and the truncated string is
// still dispatched.
const maxOscLen = 64 * 1024

// maxCsiParams matches the traditional VT limit; further params are ignored.
const maxCsiParams = 32

// Parser is the byte-level state machine. It owns no terminal state; every
// recognized action is handed to the Performer.
type Parser struct {
	state parserState

	printBuf []byte

	// utf8 accumulation
	utf8Buf       []byte
	utf8Remaining int

	params        []CSIParam
	curItems      []int64
	curValue      int64
	curHasValue   bool
	intermediates []byte

	oscBuf     []byte
	dcsBuf     []byte
	escPending bool // inside a string state, saw ESC (possible ST)
}

// NewParser returns a parser in the ground state.
func NewParser() *Parser {
	return &Parser{}
}

// Parse consumes a chunk of bytes, invoking the performer for every
// complete action. Incomplete sequences are retained across calls.
func (p *Parser) Parse(data []byte, perf Performer) {
	for _, b := range data {
		p.advance(b, perf)
	}
	p.flushPrint(perf)
}

func (p *Parser) flushPrint(perf Performer) {
	if len(p.printBuf) > 0 {
		perf.Print(string(p.printBuf))
		p.printBuf = p.printBuf[:0]
	}
}

func (p *Parser) advance(b byte, perf Performer) {
	// A UTF-8 continuation in progress takes priority in ground state
	if p.state == stateGround && p.utf8Remaining > 0 {
		if b >= 0x80 && b < 0xc0 {
			p.utf8Buf = append(p.utf8Buf, b)
			p.utf8Remaining--
			if p.utf8Remaining == 0 {
				r, _ := utf8.DecodeRune(p.utf8Buf)
				if r == utf8.RuneError {
					p.printBuf = append(p.printBuf, []byte("�")...)
				} else {
					p.printBuf = append(p.printBuf, p.utf8Buf...)
				}
				p.utf8Buf = p.utf8Buf[:0]
			}
			return
		}
		// Broken sequence: emit a replacement and reprocess this byte
		p.printBuf = append(p.printBuf, []byte("�")...)
		p.utf8Buf = p.utf8Buf[:0]
		p.utf8Remaining = 0
	}

	switch p.state {
	case stateGround:
		p.advanceGround(b, perf)
	case stateEscape:
		p.advanceEscape(b, perf)
	case stateEscapeIntermediate:
		p.advanceEscapeIntermediate(b, perf)
	case stateCsiEntry:
		p.advanceCsi(b, perf)
	case stateCsiIgnore:
		p.advanceCsiIgnore(b, perf)
	case stateOscString:
		p.advanceOsc(b, perf)
	case stateDcsBody:
		p.advanceDcs(b, perf)
	case stateSosPmApc:
		p.advanceSosPmApc(b)
	}
}

func (p *Parser) advanceGround(b byte, perf Performer) {
	switch {
	case b == 0x1b:
		p.flushPrint(perf)
		p.enterEscape()
	case b < 0x20 || b == 0x7f:
		p.flushPrint(perf)
		perf.Execute(b)
	case b < 0x80:
		p.printBuf = append(p.printBuf, b)
	case b >= 0xc2 && b < 0xe0:
		p.utf8Buf = append(p.utf8Buf[:0], b)
		p.utf8Remaining = 1
	case b >= 0xe0 && b < 0xf0:
		p.utf8Buf = append(p.utf8Buf[:0], b)
		p.utf8Remaining = 2
	case b >= 0xf0 && b < 0xf5:
		p.utf8Buf = append(p.utf8Buf[:0], b)
		p.utf8Remaining = 3
	default:
		// Stray continuation or invalid lead byte
		p.printBuf = append(p.printBuf, []byte("�")...)
	}
}

func (p *Parser) enterEscape() {
	p.state = stateEscape
	p.intermediates = p.intermediates[:0]
}

func (p *Parser) advanceEscape(b byte, perf Performer) {
	switch {
	case b == '[':
		p.state = stateCsiEntry
		p.resetCsi()
	case b == ']':
		p.state = stateOscString
		p.oscBuf = p.oscBuf[:0]
		p.escPending = false
	case b == 'P':
		p.state = stateDcsBody
		p.dcsBuf = p.dcsBuf[:0]
		p.escPending = false
	case b == 'X' || b == '^' || b == '_':
		p.state = stateSosPmApc
		p.escPending = false
	case b >= 0x20 && b <= 0x2f:
		p.intermediates = append(p.intermediates, b)
		p.state = stateEscapeIntermediate
	case b == 0x18 || b == 0x1a: // CAN / SUB abort
		p.state = stateGround
	case b == 0x1b:
		p.enterEscape()
	case b < 0x20:
		perf.Execute(b)
	default:
		p.state = stateGround
		perf.EscDispatch(nil, b)
	}
}

func (p *Parser) advanceEscapeIntermediate(b byte, perf Performer) {
	switch {
	case b >= 0x20 && b <= 0x2f:
		p.intermediates = append(p.intermediates, b)
	case b == 0x18 || b == 0x1a:
		p.state = stateGround
	case b == 0x1b:
		p.enterEscape()
	case b < 0x20:
		perf.Execute(b)
	default:
		p.state = stateGround
		perf.EscDispatch(p.intermediates, b)
	}
}

func (p *Parser) resetCsi() {
	p.params = p.params[:0]
	p.curItems = nil
	p.curValue = 0
	p.curHasValue = false
	p.intermediates = p.intermediates[:0]
}

func (p *Parser) finishParam() {
	if p.curHasValue || len(p.curItems) > 0 {
		p.curItems = append(p.curItems, p.curValue)
	}
	if len(p.params) < maxCsiParams {
		p.params = append(p.params, CSIParam{Items: p.curItems})
	}
	p.curItems = nil
	p.curValue = 0
	p.curHasValue = false
}

func (p *Parser) advanceCsi(b byte, perf Performer) {
	switch {
	case b >= '0' && b <= '9':
		p.curValue = p.curValue*10 + int64(b-'0')
		if p.curValue > 0xffff {
			p.curValue = 0xffff
		}
		p.curHasValue = true
	case b == ':':
		p.curItems = append(p.curItems, p.curValue)
		p.curValue = 0
		p.curHasValue = false
	case b == ';':
		p.finishParam()
	case b >= 0x3c && b <= 0x3f: // private markers < = > ?
		p.intermediates = append(p.intermediates, b)
	case b >= 0x20 && b <= 0x2f:
		p.intermediates = append(p.intermediates, b)
	case b >= 0x40 && b <= 0x7e:
		if p.curHasValue || len(p.curItems) > 0 || len(p.params) > 0 {
			p.finishParam()
		}
		p.state = stateGround
		perf.CsiDispatch(p.params, p.intermediates, b)
	case b == 0x18 || b == 0x1a:
		p.state = stateGround
	case b == 0x1b:
		p.enterEscape()
	case b < 0x20:
		perf.Execute(b)
	default:
		p.state = stateCsiIgnore
	}
}

func (p *Parser) advanceCsiIgnore(b byte, perf Performer) {
	switch {
	case b >= 0x40 && b <= 0x7e:
		p.state = stateGround
	case b == 0x18 || b == 0x1a:
		p.state = stateGround
	case b == 0x1b:
		p.enterEscape()
	case b < 0x20:
		perf.Execute(b)
	}
}

func (p *Parser) advanceOsc(b byte, perf Performer) {
	switch {
	case b == 0x07: // BEL terminator
		p.dispatchOsc(perf)
		p.state = stateGround
	case p.escPending && b == '\\': // ST terminator
		p.dispatchOsc(perf)
		p.state = stateGround
		p.escPending = false
	case b == 0x1b:
		p.escPending = true
	case p.escPending:
		// ESC followed by something other than \: abandon the OSC and
		// reprocess as a fresh escape
		p.escPending = false
		p.enterEscape()
		p.advance(b, perf)
	default:
		if len(p.oscBuf) < maxOscLen {
			p.oscBuf = append(p.oscBuf, b)
		}
	}
}

func (p *Parser) dispatchOsc(perf Performer) {
	var params [][]byte
	start := 0
	for i, b := range p.oscBuf {
		if b == ';' {
			params = append(params, p.oscBuf[start:i])
			start = i + 1
		}
	}
	params = append(params, p.oscBuf[start:])
	perf.OscDispatch(params)
}

func (p *Parser) advanceDcs(b byte, perf Performer) {
	switch {
	case p.escPending && b == '\\':
		perf.DcsDispatch(p.dcsBuf)
		p.state = stateGround
		p.escPending = false
	case b == 0x1b:
		p.escPending = true
	case p.escPending:
		p.escPending = false
		p.enterEscape()
		p.advance(b, perf)
	default:
		if len(p.dcsBuf) < maxOscLen {
			p.dcsBuf = append(p.dcsBuf, b)
		}
	}
}

func (p *Parser) advanceSosPmApc(b byte) {
	switch {
	case p.escPending && b == '\\':
		p.state = stateGround
		p.escPending = false
	case b == 0x1b:
		p.escPending = true
	case b == 0x07:
		// Some emitters terminate with BEL; accept it
		p.state = stateGround
	default:
		p.escPending = false
	}
}
