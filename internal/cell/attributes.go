// Package cell defines the storage unit of the terminal model: one grapheme
// cluster plus rendering attributes, and the Line container with its
// mutation sequence number.
package cell

import (
	"github.com/ellery/kiln/internal/color"
)

// Intensity is the SGR bold/half-bright axis.
type Intensity uint8

const (
	IntensityNormal Intensity = iota
	IntensityBold
	IntensityHalf
)

// Underline is the SGR underline style axis.
type Underline uint8

const (
	UnderlineNone Underline = iota
	UnderlineSingle
	UnderlineDouble
	UnderlineCurly
	UnderlineDashed
	UnderlineDotted
)

// attrFlags packs the boolean attributes into one word.
type attrFlags uint16

const (
	flagItalic attrFlags = 1 << iota
	flagBlink
	flagReverse
	flagStrikethrough
	flagInvisible
	flagOverline
)

// Hyperlink is an OSC 8 explicit link or an implicit link discovered by URL
// rule matching.
type Hyperlink struct {
	ID       string
	URI      string
	Implicit bool
}

// Attributes is the rendering state carried by each cell. The zero value is
// the default pen: normal intensity, no decorations, default colors.
type Attributes struct {
	flags      attrFlags
	intensity  Intensity
	underline  Underline
	Foreground color.Attribute
	Background color.Attribute
	UnderlineColor color.Attribute
	Hyperlink  *Hyperlink
}

// Intensity returns the current intensity level.
func (a *Attributes) Intensity() Intensity { return a.intensity }

// SetIntensity sets the intensity level.
func (a *Attributes) SetIntensity(v Intensity) { a.intensity = v }

// Underline returns the current underline style.
func (a *Attributes) Underline() Underline { return a.underline }

// SetUnderline sets the underline style.
func (a *Attributes) SetUnderline(v Underline) { a.underline = v }

func (a *Attributes) set(f attrFlags, on bool) {
	if on {
		a.flags |= f
	} else {
		a.flags &^= f
	}
}

// Italic reports the italic flag.
func (a *Attributes) Italic() bool { return a.flags&flagItalic != 0 }

// SetItalic sets the italic flag.
func (a *Attributes) SetItalic(on bool) { a.set(flagItalic, on) }

// Blink reports the blink flag.
func (a *Attributes) Blink() bool { return a.flags&flagBlink != 0 }

// SetBlink sets the blink flag.
func (a *Attributes) SetBlink(on bool) { a.set(flagBlink, on) }

// Reverse reports the reverse-video flag.
func (a *Attributes) Reverse() bool { return a.flags&flagReverse != 0 }

// SetReverse sets the reverse-video flag.
func (a *Attributes) SetReverse(on bool) { a.set(flagReverse, on) }

// Strikethrough reports the strikethrough flag.
func (a *Attributes) Strikethrough() bool { return a.flags&flagStrikethrough != 0 }

// SetStrikethrough sets the strikethrough flag.
func (a *Attributes) SetStrikethrough(on bool) { a.set(flagStrikethrough, on) }

// Invisible reports the invisible flag.
func (a *Attributes) Invisible() bool { return a.flags&flagInvisible != 0 }

// SetInvisible sets the invisible flag.
func (a *Attributes) SetInvisible(on bool) { a.set(flagInvisible, on) }

// Overline reports the overline flag.
func (a *Attributes) Overline() bool { return a.flags&flagOverline != 0 }

// SetOverline sets the overline flag.
func (a *Attributes) SetOverline(on bool) { a.set(flagOverline, on) }

// Reset restores the default pen, as SGR 0 does.
func (a *Attributes) Reset() {
	*a = Attributes{}
}

// Equal compares two attribute sets, including hyperlink identity by value.
func (a *Attributes) Equal(other *Attributes) bool {
	if a.flags != other.flags ||
		a.intensity != other.intensity ||
		a.underline != other.underline ||
		a.Foreground != other.Foreground ||
		a.Background != other.Background ||
		a.UnderlineColor != other.UnderlineColor {
		return false
	}
	if (a.Hyperlink == nil) != (other.Hyperlink == nil) {
		return false
	}
	if a.Hyperlink != nil && *a.Hyperlink != *other.Hyperlink {
		return false
	}
	return true
}
