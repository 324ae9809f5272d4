package vt

import (
	"log"

	"github.com/ellery/kiln/internal/cell"
	"github.com/ellery/kiln/internal/color"
)

// applySGR consumes SGR parameters left to right. Each action consumes the
// parameters it needs and hands back the rest; unknown parameters are
// skipped without aborting the remainder of the sequence.
func (t *Terminal) applySGR(params []CSIParam) {
	if len(params) == 0 {
		t.pen.Reset()
		return
	}

	rest := params
	for len(rest) > 0 {
		rest = t.applyOneSGR(rest)
	}
}

func (t *Terminal) applyOneSGR(params []CSIParam) []CSIParam {
	p := params[0]
	rest := params[1:]

	switch p.First(0) {
	case 0:
		t.pen.Reset()
	case 1:
		t.pen.SetIntensity(cell.IntensityBold)
	case 2:
		t.pen.SetIntensity(cell.IntensityHalf)
	case 22:
		t.pen.SetIntensity(cell.IntensityNormal)
	case 3:
		t.pen.SetItalic(true)
	case 23:
		t.pen.SetItalic(false)
	case 4:
		// 4:0 none, 4:1 single, 4:2 double, 4:3 curly, 4:4 dashed, 4:5 dotted
		switch p.Sub(1, 1) {
		case 0:
			t.pen.SetUnderline(cell.UnderlineNone)
		case 1:
			t.pen.SetUnderline(cell.UnderlineSingle)
		case 2:
			t.pen.SetUnderline(cell.UnderlineDouble)
		case 3:
			t.pen.SetUnderline(cell.UnderlineCurly)
		case 4:
			t.pen.SetUnderline(cell.UnderlineDashed)
		case 5:
			t.pen.SetUnderline(cell.UnderlineDotted)
		}
	case 21:
		t.pen.SetUnderline(cell.UnderlineDouble)
	case 24:
		t.pen.SetUnderline(cell.UnderlineNone)
	case 5, 6:
		t.pen.SetBlink(true)
	case 25:
		t.pen.SetBlink(false)
	case 7:
		t.pen.SetReverse(true)
	case 27:
		t.pen.SetReverse(false)
	case 8:
		t.pen.SetInvisible(true)
	case 28:
		t.pen.SetInvisible(false)
	case 9:
		t.pen.SetStrikethrough(true)
	case 29:
		t.pen.SetStrikethrough(false)
	case 53:
		t.pen.SetOverline(true)
	case 55:
		t.pen.SetOverline(false)
	case 30, 31, 32, 33, 34, 35, 36, 37:
		t.pen.Foreground = color.PaletteIndex(uint8(p.First(0) - 30))
	case 40, 41, 42, 43, 44, 45, 46, 47:
		t.pen.Background = color.PaletteIndex(uint8(p.First(0) - 40))
	case 90, 91, 92, 93, 94, 95, 96, 97:
		t.pen.Foreground = color.PaletteIndex(uint8(p.First(0) - 90 + 8))
	case 100, 101, 102, 103, 104, 105, 106, 107:
		t.pen.Background = color.PaletteIndex(uint8(p.First(0) - 100 + 8))
	case 39:
		t.pen.Foreground = color.Default()
	case 49:
		t.pen.Background = color.Default()
	case 38:
		attr, r := parseExtendedColor(p, rest)
		if attr != nil {
			t.pen.Foreground = *attr
		}
		return r
	case 48:
		attr, r := parseExtendedColor(p, rest)
		if attr != nil {
			t.pen.Background = *attr
		}
		return r
	case 58:
		attr, r := parseExtendedColor(p, rest)
		if attr != nil {
			t.pen.UnderlineColor = *attr
		}
		return r
	case 59:
		t.pen.UnderlineColor = color.Default()
	default:
		log.Printf("vt: ignoring SGR %d", p.First(0))
	}
	return rest
}

// parseExtendedColor handles the 38/48/58 indexed and direct color forms,
// in both the semicolon (38;5;N / 38;2;R;G;B) and colon (38:5:N /
// 38:2::R:G:B) encodings. It returns the parsed attribute (nil when
// malformed) and the unconsumed parameter suffix.
func parseExtendedColor(p CSIParam, rest []CSIParam) (*color.Attribute, []CSIParam) {
	if len(p.Items) > 1 {
		// Colon form: everything lives in the sub-parameters
		switch p.Sub(1, 0) {
		case 5:
			attr := color.PaletteIndex(uint8(p.Sub(2, 0)))
			return &attr, rest
		case 2:
			// 38:2:colorspace:R:G:B or 38:2:R:G:B
			var r, g, b int64
			if len(p.Items) >= 6 {
				r, g, b = p.Sub(3, 0), p.Sub(4, 0), p.Sub(5, 0)
			} else if len(p.Items) == 5 {
				r, g, b = p.Sub(2, 0), p.Sub(3, 0), p.Sub(4, 0)
			} else {
				return nil, rest
			}
			attr := color.TrueColor(color.New(uint8(r), uint8(g), uint8(b)))
			return &attr, rest
		default:
			return nil, rest
		}
	}

	// Semicolon form: consume from the following parameters
	if len(rest) == 0 {
		return nil, rest
	}
	switch rest[0].First(0) {
	case 5:
		if len(rest) < 2 {
			return nil, nil
		}
		attr := color.PaletteIndex(uint8(rest[1].First(0)))
		return &attr, rest[2:]
	case 2:
		if len(rest) < 4 {
			return nil, nil
		}
		attr := color.TrueColor(color.New(
			uint8(rest[1].First(0)),
			uint8(rest[2].First(0)),
			uint8(rest[3].First(0)),
		))
		return &attr, rest[4:]
	default:
		return nil, rest[1:]
	}
}
