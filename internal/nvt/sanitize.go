package nvt

import "strings"

const (
	esc       = '\x1b'
	backspace = '\b'
	tabWidth  = 4
)

// Sanitize removes characters the display cannot show. ESC is kept because
// it introduces colour codes; a backspace erases the character before it.
func Sanitize(s string) string {
	if !needsSanitizing(s) {
		return s
	}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r == esc:
			out = append(out, r)
		case r == backspace:
			out = eraseLast(out)
		case r == '\t':
			for i := 0; i < tabWidth; i++ {
				out = append(out, ' ')
			}
		case r < 0x20, r == 0x7f, r >= 0x80 && r < 0xa0:
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

// eraseLast drops the last printable rune of out. Complete colour codes
// after it are kept.
func eraseLast(out []rune) []rune {
	i := len(out)
	for {
		start := sgrStart(out[:i])
		if start < 0 {
			break
		}
		i = start
	}
	if i == 0 || out[i-1] == esc {
		return out
	}
	return append(out[:i-1], out[i:]...)
}

// sgrStart returns the index of the ESC opening a complete colour code at
// the end of rs, or -1.
func sgrStart(rs []rune) int {
	n := len(rs)
	if n < 3 || rs[n-1] != 'm' {
		return -1
	}
	for i := n - 2; i >= 1; i-- {
		switch r := rs[i]; {
		case r == '[':
			if rs[i-1] == esc {
				return i - 1
			}
			return -1
		case r == ';', r >= '0' && r <= '9':
		default:
			return -1
		}
	}
	return -1
}

func needsSanitizing(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return (r < 0x20 && r != esc) || r == 0x7f || (r >= 0x80 && r < 0xa0)
	}) >= 0
}
