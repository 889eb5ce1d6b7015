package main

import (
	"strings"
	"testing"

	"mudlink/internal/loop"
	"mudlink/internal/metaline"
	"mudlink/internal/realm"
	"mudlink/internal/state"
)

type display struct {
	texts  []string
	closed bool
}

func (d *display) MetalineReceived(ml *metaline.Metaline, _ []string) {
	d.texts = append(d.texts, strings.TrimPrefix(ml.Text, "\n"))
}
func (d *display) ConnectionMade() {}
func (d *display) ConnectionLost() {}
func (d *display) Close()          { d.closed = true }

type transport struct{ sent []string }

func (t *transport) SendLine(line string) error { t.sent = append(t.sent, line); return nil }
func (t *transport) Close() error               { return nil }

func newCommands(t *testing.T, macros map[string]realm.Macro) (*commands, *display, *transport) {
	t.Helper()
	d := &display{}
	tr := &transport{}
	docs := state.NewGMCPStore()
	root := realm.NewRoot(tr, realm.Options{Scheduler: loop.New(), GMCP: docs, Macros: macros})
	root.AddDisplay(d)
	return &commands{root: root, docs: docs}, d, tr
}

func TestCommandsSendPlainInput(t *testing.T) {
	c, d, tr := newCommands(t, nil)
	c.handle("look")
	c.handle("//slash")
	if strings.Join(tr.sent, "|") != "look|/slash" {
		t.Fatalf("sent=%q", tr.sent)
	}
	if strings.Join(d.texts, "|") != "look|/slash" {
		t.Fatalf("texts=%q", d.texts)
	}
}

func TestCommandsMacro(t *testing.T) {
	ran := 0
	c, d, _ := newCommands(t, map[string]realm.Macro{
		"f1": func(*realm.Root) (bool, error) { ran++; return false, nil },
	})
	c.handle("/macro f1")
	c.handle("/macro f2")
	if ran != 1 {
		t.Fatalf("ran=%d", ran)
	}
	if len(d.texts) != 1 || d.texts[0] != "No macro bound to f2." {
		t.Fatalf("texts=%q", d.texts)
	}
}

func TestCommandsGMCP(t *testing.T) {
	c, d, _ := newCommands(t, nil)
	c.handle("/gmcp")
	c.docs.Update("Char.Vitals", `{"hp":10}`)
	c.handle("/gmcp")
	c.handle("/gmcp Char.Vitals")
	want := []string{"No GMCP data.", "GMCP packages: Char.Vitals", "{", `  "hp": 10`, "}"}
	if strings.Join(d.texts, "|") != strings.Join(want, "|") {
		t.Fatalf("texts=%q", d.texts)
	}
}

func TestCommandsReloadTraceQuit(t *testing.T) {
	c, d, _ := newCommands(t, nil)
	reloads := 0
	c.reload = func() { reloads++ }
	c.handle("/reload")
	c.handle("/trace on")
	c.handle("/bogus")
	c.handle("/quit")
	if reloads != 1 {
		t.Fatalf("reloads=%d", reloads)
	}
	if !c.root.Tracing() {
		t.Fatalf("tracing off")
	}
	joined := strings.Join(d.texts, "|")
	if !strings.Contains(joined, "Tracing enabled!") || !strings.Contains(joined, "Unknown command /bogus.") {
		t.Fatalf("texts=%q", d.texts)
	}
}
