package metaline

import (
	"testing"

	"mudlink/internal/colour"
)

var (
	red   = colour.Default.Fore(colour.Red, false)
	green = colour.Default.Fore(colour.Green, false)
	black = colour.Default.Back(colour.Black)
)

func TestTrack_SetKeepsOrderAndReplaces(t *testing.T) {
	tr := NewTrack(Entry{5, red}, Entry{1, green})
	tr.Set(3, red)
	tr.Set(1, red)
	items := tr.Items()
	if len(items) != 3 {
		t.Fatalf("items=%v", items)
	}
	want := []int{1, 3, 5}
	for i, e := range items {
		if e.Offset != want[i] {
			t.Fatalf("items=%v", items)
		}
	}
	if items[0].Colour != red {
		t.Fatalf("offset 1 not replaced: %v", items[0])
	}
}

func TestTrack_At(t *testing.T) {
	tr := NewTrack(Entry{2, red}, Entry{4, green})
	if _, ok := tr.At(1); ok {
		t.Fatalf("offset 1 should have no colour")
	}
	if c, _ := tr.At(3); c != red {
		t.Fatalf("at 3=%v", c)
	}
	if c, _ := tr.At(10); c != green {
		t.Fatalf("at 10=%v", c)
	}
}

func TestInsert_ShiftsOffsetsAtOrAfterPoint(t *testing.T) {
	ml := New("abcdef",
		NewTrack(Entry{0, red}, Entry{3, green}),
		NewTrack(Entry{0, black}),
	)
	ml.Insert(3, "XY")
	if ml.Text != "abcXYdef" {
		t.Fatalf("text=%q", ml.Text)
	}
	got := ml.Fores.Items()
	if got[0].Offset != 0 || got[1].Offset != 5 {
		t.Fatalf("fores=%v", got)
	}

	ml.Insert(0, "\n")
	if ml.Text != "\nabcXYdef" {
		t.Fatalf("text=%q", ml.Text)
	}
	if got := ml.Fores.Items(); got[0].Offset != 1 || got[1].Offset != 6 {
		t.Fatalf("fores=%v", got)
	}
	if got := ml.Backs.Items(); got[0].Offset != 1 {
		t.Fatalf("backs=%v", got)
	}
}

func TestInsert_Unicode(t *testing.T) {
	ml := Simple("héllo", red, black)
	ml.Insert(2, "-")
	if ml.Text != "hé-llo" {
		t.Fatalf("text=%q", ml.Text)
	}
}

func TestCopy_IsIndependent(t *testing.T) {
	ml := Simple("foo", red, black)
	c := ml.Copy()
	c.Insert(0, "\n")
	if ml.Text != "foo" || ml.Fores.Items()[0].Offset != 0 {
		t.Fatalf("original mutated: %v", ml)
	}
}

func TestRuns(t *testing.T) {
	ml := New("abcdef", NewTrack(Entry{2, red}, Entry{4, green}), Track{})
	runs, fore, back := ml.Runs(colour.Default.DefaultFore(), black)
	if len(runs) != 3 {
		t.Fatalf("runs=%v", runs)
	}
	if runs[0].Text != "ab" || runs[0].Fore != colour.Default.DefaultFore() {
		t.Fatalf("run0=%v", runs[0])
	}
	if runs[1].Text != "cd" || runs[1].Fore != red {
		t.Fatalf("run1=%v", runs[1])
	}
	if runs[2].Text != "ef" || runs[2].Fore != green || runs[2].Back != black {
		t.Fatalf("run2=%v", runs[2])
	}
	if fore != green || back != black {
		t.Fatalf("carry fore=%v back=%v", fore, back)
	}
}

func TestParseTagged(t *testing.T) {
	p := colour.Default
	ml := ParseTagged("<cyan*:black>Target set: <red*>Bob", p)
	if ml.Text != "Target set: Bob" {
		t.Fatalf("text=%q", ml.Text)
	}
	fores := ml.Fores.Items()
	if len(fores) != 2 || fores[0] != (Entry{0, p.Fore(colour.Cyan, true)}) || fores[1] != (Entry{12, p.Fore(colour.Red, true)}) {
		t.Fatalf("fores=%v", fores)
	}
	if ml.LineEnd != LineEndHard {
		t.Fatalf("line end=%v", ml.LineEnd)
	}
}

func TestParseTagged_UnknownTagIsLiteral(t *testing.T) {
	ml := ParseTagged("a <b> c", colour.Default)
	if ml.Text != "a <b> c" {
		t.Fatalf("text=%q", ml.Text)
	}
}
