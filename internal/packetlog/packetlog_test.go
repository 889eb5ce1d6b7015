package packetlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLogWritesNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.ndjson")
	l, err := New(path, "run-test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Log(Record{Type: TypeTelnet, Direction: "in", Command: "WILL", Option: 201})
	l.Log(Record{Type: TypeLine, LineEnd: "soft", Length: 5, RunID: "other"})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	l.Log(Record{Type: TypeSend}) // after close: dropped

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var recs []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		recs = append(recs, r)
	}
	if len(recs) != 2 {
		t.Fatalf("records=%d want 2", len(recs))
	}
	if recs[0].RunID != "run-test" || recs[0].Option != 201 || recs[0].Timestamp == "" {
		t.Fatalf("first record: %+v", recs[0])
	}
	if recs[1].RunID != "other" || recs[1].LineEnd != "soft" {
		t.Fatalf("second record: %+v", recs[1])
	}
}

func TestNilLoggerDiscards(t *testing.T) {
	var l *Logger
	l.Log(Record{Type: TypeStartup})
	if err := l.Close(); err != nil {
		t.Fatalf("Close on nil: %v", err)
	}
}
