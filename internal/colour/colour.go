package colour

import (
	"fmt"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Ground says which track a colour belongs to.
type Ground uint8

const (
	Fore Ground = iota
	Back
)

func (g Ground) String() string {
	switch g {
	case Fore:
		return "fore"
	case Back:
		return "back"
	default:
		return fmt.Sprintf("ground(%d)", g)
	}
}

// Colour is an immutable (ground, red, green, blue) value.
type Colour struct {
	Ground  Ground
	R, G, B uint8
}

func FG(r, g, b uint8) Colour { return Colour{Ground: Fore, R: r, G: g, B: b} }
func BG(r, g, b uint8) Colour { return Colour{Ground: Back, R: r, G: g, B: b} }

// Colorful converts c into a go-colorful value for blending and formatting.
func (c Colour) Colorful() colorful.Color {
	return colorful.Color{
		R: float64(c.R) / 255,
		G: float64(c.G) / 255,
		B: float64(c.B) / 255,
	}
}

// Hex returns "#rrggbb".
func (c Colour) Hex() string { return c.Colorful().Hex() }

func (c Colour) String() string { return fmt.Sprintf("<%s %s>", c.Ground, c.Hex()) }

// ParseHex reads a "#rrggbb" string into a colour on the given ground.
func ParseHex(g Ground, s string) (Colour, error) {
	cf, err := colorful.Hex(s)
	if err != nil {
		return Colour{}, fmt.Errorf("parse colour %q: %w", s, err)
	}
	r, gr, b := cf.RGB255()
	return Colour{Ground: g, R: r, G: gr, B: b}, nil
}

// Hue is one of the ten base hues, addressed by a single digit.
type Hue uint8

const (
	Black Hue = iota
	Red
	Green
	Yellow
	Blue
	Purple
	Cyan
	White
	Grey
	Orange

	NumHues = 10
)

var hueNames = [NumHues]string{
	"black", "red", "green", "yellow", "blue",
	"purple", "cyan", "white", "grey", "orange",
}

func (h Hue) String() string {
	if int(h) < NumHues {
		return hueNames[h]
	}
	return fmt.Sprintf("hue(%d)", h)
}

// HueByName looks a hue up by its lower-case name.
func HueByName(name string) (Hue, bool) {
	for i, n := range hueNames {
		if n == name {
			return Hue(i), true
		}
	}
	return 0, false
}

type rgb [3]uint8

var normalRGB = [NumHues]rgb{
	Black:  {0x00, 0x00, 0x00},
	Red:    {0x80, 0x00, 0x00},
	Green:  {0x00, 0x80, 0x00},
	Yellow: {0x80, 0x80, 0x00},
	Blue:   {0x36, 0x3A, 0xEB},
	Purple: {0x80, 0x00, 0x80},
	Cyan:   {0x00, 0x61, 0x61},
	White:  {0xC0, 0xC0, 0xC0},
	Grey:   {0x40, 0x40, 0x40},
	Orange: {0xCD, 0x66, 0x00},
}

var boldRGB = [NumHues]rgb{
	Black:  {0x80, 0x80, 0x80},
	Red:    {0xFF, 0x00, 0x00},
	Green:  {0x00, 0xFF, 0x00},
	Yellow: {0xFF, 0xFF, 0x00},
	Blue:   {0x81, 0x81, 0xFF},
	Purple: {0xFF, 0x00, 0xFF},
	Cyan:   {0x00, 0xFF, 0xFF},
	White:  {0xFF, 0xFF, 0xFF},
	Grey:   {0x80, 0x80, 0x80},
	Orange: {0xFF, 0xA5, 0x00},
}

// Palette is a lookup table of the interned base colours, keyed by
// (hue, variant, ground). Backgrounds only use the normal variant.
type Palette struct {
	fore [2][NumHues]Colour
	back [NumHues]Colour
}

// NewPalette builds the palette from the normal and bold RGB tables.
func NewPalette() *Palette {
	p := &Palette{}
	for h := 0; h < NumHues; h++ {
		n, b := normalRGB[h], boldRGB[h]
		p.fore[0][h] = FG(n[0], n[1], n[2])
		p.fore[1][h] = FG(b[0], b[1], b[2])
		p.back[h] = BG(n[0], n[1], n[2])
	}
	return p
}

// Default is the process-lifetime palette.
var Default = NewPalette()

// Fore returns the foreground colour for h. Out of range hues map to white.
func (p *Palette) Fore(h Hue, bold bool) Colour {
	if int(h) >= NumHues {
		h = White
	}
	if bold {
		return p.fore[1][h]
	}
	return p.fore[0][h]
}

// Back returns the background colour for h. Out of range hues map to black.
func (p *Palette) Back(h Hue) Colour {
	if int(h) >= NumHues {
		h = Black
	}
	return p.back[h]
}

// DefaultFore and DefaultBack are the colours a reset returns to.
func (p *Palette) DefaultFore() Colour { return p.Fore(White, false) }
func (p *Palette) DefaultBack() Colour { return p.Back(Black) }

// Note is the colour used for client-generated connection notes.
var Note = FG(0xFF, 0xAA, 0x00)
