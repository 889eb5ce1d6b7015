package metaline

import (
	"strings"
	"unicode/utf8"

	"mudlink/internal/colour"
)

// ParseTagged builds a metaline from inline colour markup such as
//
//	<cyan*:black>Target set: <red*>Bob
//
// A tag names a foreground hue, optionally followed by '*' for bold and
// ":hue" for the background. Anything between angle brackets that is not a
// valid tag is kept as literal text. The line starts white on black.
func ParseTagged(s string, p *colour.Palette) *Metaline {
	var text strings.Builder
	fores := NewTrack(Entry{Offset: 0, Colour: p.DefaultFore()})
	backs := NewTrack(Entry{Offset: 0, Colour: p.DefaultBack()})
	off := 0
	for len(s) > 0 {
		lt := strings.IndexByte(s, '<')
		if lt < 0 {
			text.WriteString(s)
			off += utf8.RuneCountInString(s)
			break
		}
		text.WriteString(s[:lt])
		off += utf8.RuneCountInString(s[:lt])
		s = s[lt:]
		gt := strings.IndexByte(s, '>')
		if gt < 0 {
			text.WriteString(s)
			off += utf8.RuneCountInString(s)
			break
		}
		fore, back, hasBack, ok := parseTag(s[1:gt], p)
		if !ok {
			text.WriteByte('<')
			off++
			s = s[1:]
			continue
		}
		fores.Set(off, fore)
		if hasBack {
			backs.Set(off, back)
		}
		s = s[gt+1:]
	}
	return New(text.String(), fores, backs)
}

func parseTag(tag string, p *colour.Palette) (fore, back colour.Colour, hasBack, ok bool) {
	fg, bg, split := strings.Cut(tag, ":")
	bold := strings.HasSuffix(fg, "*")
	fg = strings.TrimSuffix(fg, "*")
	h, found := colour.HueByName(fg)
	if !found {
		return fore, back, false, false
	}
	fore = p.Fore(h, bold)
	if split {
		bh, found := colour.HueByName(bg)
		if !found {
			return fore, back, false, false
		}
		back = p.Back(bh)
		hasBack = true
	}
	return fore, back, hasBack, true
}
