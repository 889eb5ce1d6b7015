package nvt

import (
	"strconv"
	"strings"

	"mudlink/internal/colour"
	"mudlink/internal/metaline"
)

// ColourParser lifts SGR colour codes out of lines. Its hue, background and
// brightness state carry over from one line to the next, so each decoded
// line opens with the colours it inherited.
//
// Recognised parameters:
//
//	0       reset to white on black, brightness off
//	1       brightness on
//	22      brightness off
//	30..39  foreground hue 0..9
//	40..49  background hue 0..9
//
// Other numeric parameters are ignored. A sequence that is not a well formed
// SGR sequence is left in the text untouched.
type ColourParser struct {
	palette *colour.Palette

	fore colour.Hue
	back colour.Hue
	bold bool
}

func NewColourParser(p *colour.Palette) *ColourParser {
	if p == nil {
		p = colour.Default
	}
	cp := &ColourParser{palette: p}
	cp.Reset()
	return cp
}

// Reset returns the parser to the default colours.
func (cp *ColourParser) Reset() {
	cp.fore = colour.White
	cp.back = colour.Black
	cp.bold = false
}

func (cp *ColourParser) foreColour() colour.Colour { return cp.palette.Fore(cp.fore, cp.bold) }
func (cp *ColourParser) backColour() colour.Colour { return cp.palette.Back(cp.back) }

// Decode sanitizes raw and parses it. The result has LineEnd none; the
// caller sets the terminator and layout flags.
func (cp *ColourParser) Decode(raw string) *metaline.Metaline {
	ml := cp.Parse(Sanitize(raw))
	ml.LineEnd = metaline.LineEndNone
	return ml
}

// Parse extracts colour codes from an already sanitized line.
func (cp *ColourParser) Parse(line string) *metaline.Metaline {
	var text strings.Builder
	text.Grow(len(line))

	fores := metaline.NewTrack(metaline.Entry{Offset: 0, Colour: cp.foreColour()})
	backs := metaline.NewTrack(metaline.Entry{Offset: 0, Colour: cp.backColour()})
	off := 0

	for i := 0; i < len(line); {
		if line[i] == esc {
			if params, n, ok := scanSGR(line[i:]); ok {
				cp.apply(params)
				if c := cp.foreColour(); !activeIs(fores, off, c) {
					fores.Set(off, c)
				}
				if c := cp.backColour(); !activeIs(backs, off, c) {
					backs.Set(off, c)
				}
				i += n
				continue
			}
		}
		r, size := decodeRune(line[i:])
		text.WriteRune(r)
		off++
		i += size
	}

	// Codes after the last character colour nothing on this line; the state
	// they set carries into the next one.
	fores.TrimFrom(off)
	backs.TrimFrom(off)
	return metaline.New(text.String(), fores, backs)
}

func activeIs(t metaline.Track, off int, c colour.Colour) bool {
	cur, ok := t.At(off)
	return ok && cur == c
}

func (cp *ColourParser) apply(params []int) {
	for _, p := range params {
		switch {
		case p == 0:
			cp.Reset()
		case p == 1:
			cp.bold = true
		case p == 22:
			cp.bold = false
		case p >= 30 && p <= 39:
			cp.fore = colour.Hue(p - 30)
		case p >= 40 && p <= 49:
			cp.back = colour.Hue(p - 40)
		}
	}
}

// scanSGR reads "ESC [ digits(;digits)* m" at the start of s. An empty
// parameter counts as 0.
func scanSGR(s string) (params []int, n int, ok bool) {
	if len(s) < 3 || s[0] != esc || s[1] != '[' {
		return nil, 0, false
	}
	end := 2
	for end < len(s) && (s[end] == ';' || (s[end] >= '0' && s[end] <= '9')) {
		end++
	}
	if end >= len(s) || s[end] != 'm' {
		return nil, 0, false
	}
	body := s[2:end]
	for _, field := range strings.Split(body, ";") {
		if field == "" {
			params = append(params, 0)
			continue
		}
		v, err := strconv.Atoi(field)
		if err != nil {
			return nil, 0, false
		}
		params = append(params, v)
	}
	return params, end + 1, true
}
