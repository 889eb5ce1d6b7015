package metaline

import (
	"sort"

	"mudlink/internal/colour"
)

// Entry records the colour that becomes active at Offset.
type Entry struct {
	Offset int
	Colour colour.Colour
}

// Track is a run-length colour track. Offsets are strictly increasing; a
// missing entry at offset 0 means the line inherits whatever was active
// before it.
type Track struct {
	entries []Entry
}

// NewTrack builds a track from entries in any order. Later entries win on
// duplicate offsets.
func NewTrack(entries ...Entry) Track {
	var t Track
	for _, e := range entries {
		t.Set(e.Offset, e.Colour)
	}
	return t
}

// Set makes c active from off onwards, replacing any entry already at off.
func (t *Track) Set(off int, c colour.Colour) {
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].Offset >= off })
	if i < len(t.entries) && t.entries[i].Offset == off {
		t.entries[i].Colour = c
		return
	}
	t.entries = append(t.entries, Entry{})
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = Entry{Offset: off, Colour: c}
}

// At returns the colour active at off, if any entry covers it.
func (t Track) At(off int) (colour.Colour, bool) {
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].Offset > off })
	if i == 0 {
		return colour.Colour{}, false
	}
	return t.entries[i-1].Colour, true
}

// Last returns the colour of the final entry.
func (t Track) Last() (colour.Colour, bool) {
	if len(t.entries) == 0 {
		return colour.Colour{}, false
	}
	return t.entries[len(t.entries)-1].Colour, true
}

// Shift moves every entry at or after from by n.
func (t *Track) Shift(from, n int) {
	for i := range t.entries {
		if t.entries[i].Offset >= from {
			t.entries[i].Offset += n
		}
	}
}

// TrimFrom drops entries at or after off.
func (t *Track) TrimFrom(off int) {
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].Offset >= off })
	t.entries = t.entries[:i]
}

func (t Track) Items() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t Track) Len() int { return len(t.entries) }

func (t Track) Clone() Track { return Track{entries: t.Items()} }

func (t Track) Equal(o Track) bool {
	if len(t.entries) != len(o.entries) {
		return false
	}
	for i := range t.entries {
		if t.entries[i] != o.entries[i] {
			return false
		}
	}
	return true
}
