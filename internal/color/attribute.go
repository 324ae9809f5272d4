package color

// AttributeKind discriminates how a cell color is specified.
type AttributeKind uint8

const (
	// KindDefault uses the palette's default foreground or background.
	KindDefault AttributeKind = iota
	// KindPalette references one of the 256 palette entries.
	KindPalette
	// KindTrueColor carries a direct RGB value.
	KindTrueColor
)

// Attribute is a cell's foreground or background color specification. The
// zero value is the default color.
type Attribute struct {
	Kind  AttributeKind
	Index uint8
	Color RGBA
}

// Default returns the default-color attribute.
func Default() Attribute {
	return Attribute{}
}

// PaletteIndex returns an attribute referencing palette entry i.
func PaletteIndex(i uint8) Attribute {
	return Attribute{Kind: KindPalette, Index: i}
}

// TrueColor returns a direct-color attribute.
func TrueColor(c RGBA) Attribute {
	return Attribute{Kind: KindTrueColor, Color: c}
}

// IsDefault returns true for the default-color attribute.
func (a Attribute) IsDefault() bool {
	return a.Kind == KindDefault
}

// ResolveFg resolves a foreground attribute against the palette. When
// boldBrightens is set and the attribute is one of the first 8 palette
// entries under bold intensity, the bright variant (index+8) is used.
func (a Attribute) ResolveFg(p *Palette, bold bool, boldBrightens bool) RGBA {
	switch a.Kind {
	case KindPalette:
		idx := a.Index
		if boldBrightens && bold && idx < 8 {
			idx += 8
		}
		return p.Colors[idx]
	case KindTrueColor:
		return a.Color
	default:
		return p.Foreground
	}
}

// ResolveBg resolves a background attribute against the palette.
func (a Attribute) ResolveBg(p *Palette) RGBA {
	switch a.Kind {
	case KindPalette:
		return p.Colors[a.Index]
	case KindTrueColor:
		return a.Color
	default:
		return p.Background
	}
}
