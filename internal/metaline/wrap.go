package metaline

import (
	"unicode"

	"github.com/mattn/go-runewidth"
)

// Wrapped returns a copy of m soft-wrapped to width columns. Lines with Wrap
// unset, or a non-positive width, come back unchanged (but copied).
//
// Whitespace is never dropped: a break is a newline inserted before the
// chunk that would overflow, so text can resume mid-word on the next write.
func (m *Metaline) Wrapped(width int) *Metaline {
	out := m.Copy()
	if !m.Wrap || width <= 0 {
		return out
	}
	breaks := breakPoints([]rune(m.Text), width)
	for i := len(breaks) - 1; i >= 0; i-- {
		out.Insert(breaks[i], "\n")
	}
	return out
}

// breakPoints returns ascending rune positions at which a newline should be
// inserted. Existing newlines reset the column.
func breakPoints(text []rune, width int) []int {
	var out []int
	col := 0
	for i := 0; i < len(text); {
		if text[i] == '\n' {
			col = 0
			i++
			continue
		}
		space := unicode.IsSpace(text[i])
		j := i
		w := 0
		for j < len(text) && text[j] != '\n' && unicode.IsSpace(text[j]) == space {
			w += runewidth.RuneWidth(text[j])
			j++
		}
		if col+w <= width {
			col += w
			i = j
			continue
		}
		if col > 0 {
			out = append(out, i)
			col = 0
			continue
		}
		// A chunk wider than a whole line: split it at the column limit.
		k, cw := i, 0
		for k < j && cw+runewidth.RuneWidth(text[k]) <= width {
			cw += runewidth.RuneWidth(text[k])
			k++
		}
		if k == i {
			k++
		}
		if k < len(text) {
			out = append(out, k)
		}
		i = k
		col = 0
	}
	return out
}
