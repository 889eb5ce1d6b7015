package metaline

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"mudlink/internal/colour"
)

// LineEnd is how a line was terminated on the wire.
type LineEnd uint8

const (
	LineEndNone LineEnd = iota
	LineEndHard
	LineEndSoft
)

func (e LineEnd) String() string {
	switch e {
	case LineEndNone:
		return "none"
	case LineEndHard:
		return "hard"
	case LineEndSoft:
		return "soft"
	default:
		return fmt.Sprintf("line_end(%d)", e)
	}
}

// Metaline is the unit of output.
type Metaline struct {
	Text  string
	Fores Track
	Backs Track

	LineEnd LineEnd
	// Wrap says whether this line takes part in column wrapping.
	Wrap bool
	// SoftLineStart allows appending to a soft-ended previous line without a newline.
	SoftLineStart bool
}

// New returns a metaline with the given tracks and a hard line end.
func New(text string, fores, backs Track) *Metaline {
	return &Metaline{Text: text, Fores: fores, Backs: backs, LineEnd: LineEndHard}
}

// Simple returns a single-coloured metaline.
func Simple(text string, fore, back colour.Colour) *Metaline {
	return New(text,
		NewTrack(Entry{Offset: 0, Colour: fore}),
		NewTrack(Entry{Offset: 0, Colour: back}),
	)
}

// Len is the rune length of Text.
func (m *Metaline) Len() int { return utf8.RuneCountInString(m.Text) }

func (m *Metaline) Copy() *Metaline {
	c := *m
	c.Fores = m.Fores.Clone()
	c.Backs = m.Backs.Clone()
	return &c
}

// Insert splices s into the text at rune position pos, shifting every colour
// offset at or after pos by the inserted length.
func (m *Metaline) Insert(pos int, s string) {
	if s == "" {
		return
	}
	runes := []rune(m.Text)
	if pos < 0 {
		pos = 0
	}
	if pos > len(runes) {
		pos = len(runes)
	}
	var b strings.Builder
	b.Grow(len(m.Text) + len(s))
	b.WriteString(string(runes[:pos]))
	b.WriteString(s)
	b.WriteString(string(runes[pos:]))
	m.Text = b.String()

	n := utf8.RuneCountInString(s)
	m.Fores.Shift(pos, n)
	m.Backs.Shift(pos, n)
}

func (m *Metaline) Equal(o *Metaline) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.Text == o.Text &&
		m.LineEnd == o.LineEnd &&
		m.Wrap == o.Wrap &&
		m.SoftLineStart == o.SoftLineStart &&
		m.Fores.Equal(o.Fores) &&
		m.Backs.Equal(o.Backs)
}

func (m *Metaline) String() string {
	return fmt.Sprintf("<Metaline %q fores=%v backs=%v end=%s wrap=%v sls=%v>",
		m.Text, m.Fores.entries, m.Backs.entries, m.LineEnd, m.Wrap, m.SoftLineStart)
}

// Run is a maximal span of text with one foreground and one background.
type Run struct {
	Text string
	Fore colour.Colour
	Back colour.Colour
}

// Runs splits the line into coloured spans. fore and back are the colours
// in effect before the line starts; the returned colours are the ones in
// effect after it.
func (m *Metaline) Runs(fore, back colour.Colour) ([]Run, colour.Colour, colour.Colour) {
	runes := []rune(m.Text)
	fe, be := m.Fores.entries, m.Backs.entries
	var out []Run
	start := 0
	for start < len(runes) {
		for len(fe) > 0 && fe[0].Offset <= start {
			fore = fe[0].Colour
			fe = fe[1:]
		}
		for len(be) > 0 && be[0].Offset <= start {
			back = be[0].Colour
			be = be[1:]
		}
		end := len(runes)
		if len(fe) > 0 && fe[0].Offset < end {
			end = fe[0].Offset
		}
		if len(be) > 0 && be[0].Offset < end {
			end = be[0].Offset
		}
		out = append(out, Run{Text: string(runes[start:end]), Fore: fore, Back: back})
		start = end
	}
	if c, ok := m.Fores.Last(); ok {
		fore = c
	}
	if c, ok := m.Backs.Last(); ok {
		back = c
	}
	return out, fore, back
}
