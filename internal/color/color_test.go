package color

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Parse forms
// =============================================================================

func TestParse_HashForms(t *testing.T) {
	tests := []struct {
		in   string
		want RGBA
	}{
		{"#f00", New(0xf0, 0x00, 0x00)}, // XParseColor: nibble is the high bits
		{"#ff0000", New(0xff, 0x00, 0x00)},
		{"#fff000000", New(0xff, 0x00, 0x00)},          // 9 digits, MSB kept
		{"#ffff00000000", New(0xff, 0x00, 0x00)},       // 12 digits
		{"#d6d6d6", New(0xd6, 0xd6, 0xd6)},
		{"#123456", New(0x12, 0x34, 0x56)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_XForms(t *testing.T) {
	tests := []struct {
		in   string
		want RGBA
	}{
		{"rgb:D6/D6/D6", New(0xd6, 0xd6, 0xd6)},
		{"rgb:ffff/0000/0000", New(0xff, 0x00, 0x00)},
		{"rgba:100% 0 0 50%", RGBA{R: 0xff, G: 0, B: 0, A: 128}},
		{"rgba:255 128 0 255", RGBA{R: 255, G: 128, B: 0, A: 255}},
		{"hsl:0 100 50", New(0xff, 0x00, 0x00)},
		{"hsl:120 100 50", New(0x00, 0xff, 0x00)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_CSSAndNamed(t *testing.T) {
	tests := []struct {
		in   string
		want RGBA
	}{
		{"rgb(255,0,0)", New(0xff, 0x00, 0x00)},
		{"rgba(255, 0, 0, 0.5)", RGBA{R: 0xff, A: 128}},
		{"DarkGreen", New(0x00, 0x64, 0x00)},
		{"white", New(0xff, 0xff, 0xff)},
		{"transparent", RGBA{}},
		{"none", RGBA{}},
		{"clear", RGBA{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	for _, in := range []string{"", "#12345", "rgb:1/2", "hsl:1 2", "rgba:1 2 3", "bogusname"} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			assert.Error(t, err)
		})
	}
}

// =============================================================================
// Round-trip laws
// =============================================================================

func TestRoundTrip_ParseFormat(t *testing.T) {
	// parse(format(c)) == c for each constructor route
	colors := []RGBA{
		New(0xff, 0x00, 0x00),
		New(0x12, 0x34, 0x56),
		RGBA{R: 10, G: 20, B: 30, A: 40},
		RGBA{},
	}
	for _, c := range colors {
		t.Run(c.String(), func(t *testing.T) {
			got, err := Parse(c.String())
			require.NoError(t, err)
			assert.Equal(t, c, got)
		})
	}

	// And via each parse route: format then re-parse is stable
	for _, in := range []string{"#f00", "rgb:D6/D6/D6", "rgba:100% 0 0 50%", "hsl:235 100 50", "DarkGreen"} {
		t.Run(in, func(t *testing.T) {
			c, err := Parse(in)
			require.NoError(t, err)
			again, err := Parse(c.String())
			require.NoError(t, err)
			assert.Equal(t, c, again)
		})
	}
}

func TestRoundTrip_SrgbLinear(t *testing.T) {
	// srgb8(linear(srgb8_to_linear(v))) == v for all v
	for v := 0; v <= 255; v++ {
		got := LinearToSrgb(SrgbToLinear(uint8(v)))
		if got != uint8(v) {
			t.Fatalf("srgb round trip failed at %d: got %d", v, got)
		}
	}
}

func TestMix_Endpoints(t *testing.T) {
	a := New(0, 0, 0)
	b := New(255, 255, 255)
	assert.Equal(t, a, a.Mix(b, 0))
	assert.Equal(t, b, a.Mix(b, 1))

	mid := a.Mix(b, 0.5)
	// Perceptual midpoint in linear space is far above 127
	assert.Greater(t, mid.R, uint8(150))
}

// =============================================================================
// Attributes and palette
// =============================================================================

func TestAttribute_Resolution(t *testing.T) {
	p := DefaultPalette()

	assert.Equal(t, p.Foreground, Default().ResolveFg(p, false, true))
	assert.Equal(t, p.Background, Default().ResolveBg(p))
	assert.Equal(t, p.Colors[1], PaletteIndex(1).ResolveFg(p, false, true))
	assert.Equal(t, New(1, 2, 3), TrueColor(New(1, 2, 3)).ResolveFg(p, true, true))
}

func TestAttribute_BoldBrightens(t *testing.T) {
	p := DefaultPalette()

	// Bold + palette < 8 + enabled => +8
	assert.Equal(t, p.Colors[9], PaletteIndex(1).ResolveFg(p, true, true))
	// Disabled => unchanged
	assert.Equal(t, p.Colors[1], PaletteIndex(1).ResolveFg(p, true, false))
	// Index >= 8 => unchanged
	assert.Equal(t, p.Colors[12], PaletteIndex(12).ResolveFg(p, true, true))
	// Background never brightens
	assert.Equal(t, p.Colors[1], PaletteIndex(1).ResolveBg(p))
}

func TestPalette_CubeAndRamp(t *testing.T) {
	p := DefaultPalette()

	// 16 + 36*0 + 6*0 + 0 => first cube entry is black
	assert.Equal(t, New(0, 0, 0), p.Colors[16])
	// Last cube entry is white
	assert.Equal(t, New(0xff, 0xff, 0xff), p.Colors[231])
	// Grayscale ramp endpoints
	assert.Equal(t, New(8, 8, 8), p.Colors[232])
	assert.Equal(t, New(238, 238, 238), p.Colors[255])
}

func TestPalette_SetReset(t *testing.T) {
	p := DefaultPalette()
	orig := p.Colors[3]

	p.Set(3, New(9, 9, 9))
	assert.Equal(t, New(9, 9, 9), p.Colors[3])

	p.Reset(3)
	assert.Equal(t, orig, p.Colors[3])
}

func ExampleParse() {
	c, _ := Parse("rgb:D6/D6/D6")
	fmt.Println(c)
	// Output: #d6d6d6
}
