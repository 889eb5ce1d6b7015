package telnet

// LineEndingFixer filters the application byte stream before it is split
// into lines. Keep reports whether b stays in the stream.
type LineEndingFixer interface {
	Keep(b byte) bool
}

// ReversedCRLF repairs servers that terminate lines with "\n\r" instead of
// "\r\n": a CR directly after a bare LF is dropped, so the LF ends the line
// and the CR does not leak into the next one. State carries across reads.
type ReversedCRLF struct {
	prev     byte
	bareLF   bool
	havePrev bool
}

func NewReversedCRLF() *ReversedCRLF { return &ReversedCRLF{} }

func (f *ReversedCRLF) Keep(b byte) bool {
	keep := true
	switch b {
	case '\n':
		f.bareLF = !f.havePrev || f.prev != '\r'
	case '\r':
		if f.havePrev && f.prev == '\n' && f.bareLF {
			keep = false
		}
		f.bareLF = false
	default:
		f.bareLF = false
	}
	f.prev = b
	f.havePrev = true
	return keep
}
