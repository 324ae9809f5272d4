// Package color implements the color model for the terminal core: 8-bit
// sRGB tuples, the X11/CSS parsing forms accepted in configuration and OSC
// sequences, linear-light conversion for the GPU path, and the 256-entry
// terminal palette.
package color

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// RGBA is an 8-bit-per-channel sRGB color. Alpha is linear (not gamma
// encoded) even though the color channels are sRGB.
type RGBA struct {
	R uint8
	G uint8
	B uint8
	A uint8
}

// New returns an opaque RGBA color.
func New(r, g, b uint8) RGBA {
	return RGBA{R: r, G: g, B: b, A: 0xff}
}

// String formats the color so that Parse round-trips it: opaque colors as
// "#rrggbb", translucent ones in the rgba: form.
func (c RGBA) String() string {
	if c.A == 0xff {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("rgba:%d %d %d %d", c.R, c.G, c.B, c.A)
}

// LinearRGBA is a pre-multiplied-free linear-light color used on the GPU
// side of the renderer.
type LinearRGBA struct {
	R float32
	G float32
	B float32
	A float32
}

// SrgbToLinear converts one 8-bit sRGB channel to linear light.
func SrgbToLinear(v uint8) float32 {
	c := float64(v) / 255.0
	if c <= 0.04045 {
		return float32(c / 12.92)
	}
	return float32(math.Pow((c+0.055)/1.055, 2.4))
}

// LinearToSrgb converts a linear-light channel back to 8-bit sRGB.
func LinearToSrgb(v float32) uint8 {
	c := float64(v)
	if c < 0 {
		c = 0
	}
	var s float64
	if c <= 0.0031308 {
		s = c * 12.92
	} else {
		s = 1.055*math.Pow(c, 1.0/2.4) - 0.055
	}
	if s > 1 {
		s = 1
	}
	return uint8(math.Round(s * 255.0))
}

// ToLinear converts the whole tuple. Alpha passes through unchanged since it
// is already linear.
func (c RGBA) ToLinear() LinearRGBA {
	return LinearRGBA{
		R: SrgbToLinear(c.R),
		G: SrgbToLinear(c.G),
		B: SrgbToLinear(c.B),
		A: float32(c.A) / 255.0,
	}
}

// ToSrgb converts a linear tuple back to 8-bit sRGB.
func (l LinearRGBA) ToSrgb() RGBA {
	a := float64(l.A)
	if a < 0 {
		a = 0
	}
	if a > 1 {
		a = 1
	}
	return RGBA{
		R: LinearToSrgb(l.R),
		G: LinearToSrgb(l.G),
		B: LinearToSrgb(l.B),
		A: uint8(math.Round(a * 255.0)),
	}
}

// Mix linearly interpolates toward other in linear-light space. t=0 yields
// the receiver, t=1 yields other. Used by cursor blink and visual bell.
func (c RGBA) Mix(other RGBA, t float32) RGBA {
	if t <= 0 {
		return c
	}
	if t >= 1 {
		return other
	}
	a := c.ToLinear()
	b := other.ToLinear()
	lerp := func(x, y float32) float32 { return x + (y-x)*t }
	return LinearRGBA{
		R: lerp(a.R, b.R),
		G: lerp(a.G, b.G),
		B: lerp(a.B, b.B),
		A: lerp(a.A, b.A),
	}.ToSrgb()
}

// Parse accepts the color syntax listed in the configuration surface:
// #RGB/#RRGGBB/#RRRGGGBBB/#RRRRGGGGBBBB, rgb:RR/GG/BB, rgba:R G B A,
// hsl:H S L, CSS rgb()/rgba(), named colors, and transparent/none/clear.
func Parse(s string) (RGBA, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RGBA{}, fmt.Errorf("empty color string")
	}

	switch {
	case strings.HasPrefix(s, "#"):
		return parseHash(s[1:])
	case strings.HasPrefix(s, "rgb:"):
		return parseXRGB(s[4:])
	case strings.HasPrefix(s, "rgba:"):
		return parseXRGBA(s[5:])
	case strings.HasPrefix(s, "hsl:"):
		return parseHSL(s[4:])
	case strings.HasPrefix(strings.ToLower(s), "rgb(") && strings.HasSuffix(s, ")"):
		return parseCSSRGB(s[4:len(s)-1], false)
	case strings.HasPrefix(strings.ToLower(s), "rgba(") && strings.HasSuffix(s, ")"):
		return parseCSSRGB(s[5:len(s)-1], true)
	}

	lower := strings.ToLower(s)
	if lower == "transparent" || lower == "none" || lower == "clear" {
		return RGBA{}, nil
	}
	if c, ok := namedColors[lower]; ok {
		return c, nil
	}
	return RGBA{}, fmt.Errorf("unrecognized color %q", s)
}

// parseHash handles the XParseColor hash forms. For the wider forms only the
// most significant 8 bits of each component are kept.
func parseHash(s string) (RGBA, error) {
	digitsPer := 0
	switch len(s) {
	case 3:
		digitsPer = 1
	case 6:
		digitsPer = 2
	case 9:
		digitsPer = 3
	case 12:
		digitsPer = 4
	default:
		return RGBA{}, fmt.Errorf("hash color must have 3, 6, 9 or 12 digits, got %d", len(s))
	}

	comp := func(i int) (uint8, error) {
		part := s[i*digitsPer : (i+1)*digitsPer]
		v, err := strconv.ParseUint(part, 16, 32)
		if err != nil {
			return 0, fmt.Errorf("bad hex component %q: %w", part, err)
		}
		switch digitsPer {
		case 1:
			// #f00 means 0xf0, not 0xff: take the nibble as the high bits
			return uint8(v << 4), nil
		case 2:
			return uint8(v), nil
		default:
			// Truncate to the most significant 8 bits
			return uint8(v >> uint(4*(digitsPer-2))), nil
		}
	}

	r, err := comp(0)
	if err != nil {
		return RGBA{}, err
	}
	g, err := comp(1)
	if err != nil {
		return RGBA{}, err
	}
	b, err := comp(2)
	if err != nil {
		return RGBA{}, err
	}
	return New(r, g, b), nil
}

// parseXRGB handles the X11 "rgb:RR/GG/BB" and "rgb:RRRR/GGGG/BBBB" forms.
func parseXRGB(s string) (RGBA, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return RGBA{}, fmt.Errorf("rgb: form needs 3 components, got %d", len(parts))
	}
	var out [3]uint8
	for i, part := range parts {
		if len(part) != 2 && len(part) != 4 {
			return RGBA{}, fmt.Errorf("rgb: component %q must be 2 or 4 hex digits", part)
		}
		v, err := strconv.ParseUint(part, 16, 32)
		if err != nil {
			return RGBA{}, fmt.Errorf("bad rgb: component %q: %w", part, err)
		}
		if len(part) == 4 {
			v >>= 8
		}
		out[i] = uint8(v)
	}
	return New(out[0], out[1], out[2]), nil
}

// parseXRGBA handles "rgba:R G B A" with components either percentages or
// 0-255 values.
func parseXRGBA(s string) (RGBA, error) {
	fields := strings.Fields(s)
	if len(fields) != 4 {
		return RGBA{}, fmt.Errorf("rgba: form needs 4 components, got %d", len(fields))
	}
	var out [4]uint8
	for i, f := range fields {
		v, err := parseComponent(f)
		if err != nil {
			return RGBA{}, err
		}
		out[i] = v
	}
	return RGBA{R: out[0], G: out[1], B: out[2], A: out[3]}, nil
}

// parseComponent accepts "50%" or "0".."255".
func parseComponent(s string) (uint8, error) {
	if strings.HasSuffix(s, "%") {
		p, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return 0, fmt.Errorf("bad percentage %q: %w", s, err)
		}
		if p < 0 || p > 100 {
			return 0, fmt.Errorf("percentage %q out of range", s)
		}
		return uint8(math.Round(p / 100.0 * 255.0)), nil
	}
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("bad component %q: %w", s, err)
	}
	if v > 255 {
		return 0, fmt.Errorf("component %q out of range", s)
	}
	return uint8(v), nil
}

// parseHSL handles "hsl:H S L" with H in degrees and S/L in percent.
func parseHSL(s string) (RGBA, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return RGBA{}, fmt.Errorf("hsl: form needs 3 components, got %d", len(fields))
	}
	h, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return RGBA{}, fmt.Errorf("bad hue %q: %w", fields[0], err)
	}
	sat, err := strconv.ParseFloat(strings.TrimSuffix(fields[1], "%"), 64)
	if err != nil {
		return RGBA{}, fmt.Errorf("bad saturation %q: %w", fields[1], err)
	}
	lum, err := strconv.ParseFloat(strings.TrimSuffix(fields[2], "%"), 64)
	if err != nil {
		return RGBA{}, fmt.Errorf("bad luminance %q: %w", fields[2], err)
	}

	c := colorful.Hsl(math.Mod(h, 360), sat/100.0, lum/100.0).Clamped()
	r, g, b := c.RGB255()
	return New(r, g, b), nil
}

// parseCSSRGB handles CSS rgb(r,g,b) and rgba(r,g,b,a). The alpha component
// of rgba() is a 0-1 float per CSS.
func parseCSSRGB(s string, hasAlpha bool) (RGBA, error) {
	parts := strings.Split(s, ",")
	want := 3
	if hasAlpha {
		want = 4
	}
	if len(parts) != want {
		return RGBA{}, fmt.Errorf("css rgb form needs %d components, got %d", want, len(parts))
	}
	var rgb [3]uint8
	for i := 0; i < 3; i++ {
		v, err := parseComponent(strings.TrimSpace(parts[i]))
		if err != nil {
			return RGBA{}, err
		}
		rgb[i] = v
	}
	alpha := uint8(0xff)
	if hasAlpha {
		a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil {
			return RGBA{}, fmt.Errorf("bad alpha %q: %w", parts[3], err)
		}
		if a < 0 {
			a = 0
		}
		if a > 1 {
			a = 1
		}
		alpha = uint8(math.Round(a * 255.0))
	}
	return RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: alpha}, nil
}

// namedColors is a compact SVG/X11 subset; Parse rejects names outside it.
var namedColors = map[string]RGBA{
	"black":      New(0x00, 0x00, 0x00),
	"white":      New(0xff, 0xff, 0xff),
	"red":        New(0xff, 0x00, 0x00),
	"green":      New(0x00, 0x80, 0x00),
	"lime":       New(0x00, 0xff, 0x00),
	"blue":       New(0x00, 0x00, 0xff),
	"yellow":     New(0xff, 0xff, 0x00),
	"cyan":       New(0x00, 0xff, 0xff),
	"aqua":       New(0x00, 0xff, 0xff),
	"magenta":    New(0xff, 0x00, 0xff),
	"fuchsia":    New(0xff, 0x00, 0xff),
	"gray":       New(0x80, 0x80, 0x80),
	"grey":       New(0x80, 0x80, 0x80),
	"silver":     New(0xc0, 0xc0, 0xc0),
	"maroon":     New(0x80, 0x00, 0x00),
	"olive":      New(0x80, 0x80, 0x00),
	"navy":       New(0x00, 0x00, 0x80),
	"purple":     New(0x80, 0x00, 0x80),
	"teal":       New(0x00, 0x80, 0x80),
	"orange":     New(0xff, 0xa5, 0x00),
	"darkgreen":  New(0x00, 0x64, 0x00),
	"darkred":    New(0x8b, 0x00, 0x00),
	"darkblue":   New(0x00, 0x00, 0x8b),
	"darkgray":   New(0xa9, 0xa9, 0xa9),
	"darkgrey":   New(0xa9, 0xa9, 0xa9),
	"lightgray":  New(0xd3, 0xd3, 0xd3),
	"lightgrey":  New(0xd3, 0xd3, 0xd3),
	"lightblue":  New(0xad, 0xd8, 0xe6),
	"lightgreen": New(0x90, 0xee, 0x90),
	"pink":       New(0xff, 0xc0, 0xcb),
	"brown":      New(0xa5, 0x2a, 0x2a),
	"gold":       New(0xff, 0xd7, 0x00),
	"indigo":     New(0x4b, 0x00, 0x82),
	"violet":     New(0xee, 0x82, 0xee),
	"ivory":      New(0xff, 0xff, 0xf0),
	"khaki":      New(0xf0, 0xe6, 0x8c),
	"salmon":     New(0xfa, 0x80, 0x72),
	"turquoise":  New(0x40, 0xe0, 0xd0),
}
