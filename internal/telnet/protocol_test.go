package telnet

import (
	"bytes"
	"testing"
	"time"

	"github.com/klauspost/compress/zlib"

	"mudlink/internal/loop"
	"mudlink/internal/metaline"
)

type gotLine struct {
	text string
	end  metaline.LineEnd
}

type recorder struct {
	lines []gotLine
	gmcp  []string
	echo  []bool
}

func (r *recorder) LineReceived(data []byte, end metaline.LineEnd) {
	r.lines = append(r.lines, gotLine{string(data), end})
}
func (r *recorder) GMCPReceived(payload []byte) { r.gmcp = append(r.gmcp, string(payload)) }
func (r *recorder) ServerEcho(on bool)          { r.echo = append(r.echo, on) }

func newTestProtocol(cfg Config) (*Protocol, *recorder, *bytes.Buffer) {
	rec := &recorder{}
	out := &bytes.Buffer{}
	return New(out, rec, cfg), rec, out
}

func TestLinesHardAndSoft(t *testing.T) {
	p, rec, _ := newTestProtocol(Config{})
	p.Feed([]byte("hello\r\nwor"))
	p.Feed([]byte("ld\nprompt> "))
	p.Feed([]byte{IAC, GA})

	want := []gotLine{
		{"hello", metaline.LineEndHard},
		{"world", metaline.LineEndHard},
		{"prompt> ", metaline.LineEndSoft},
	}
	if len(rec.lines) != len(want) {
		t.Fatalf("lines=%+v", rec.lines)
	}
	for i := range want {
		if rec.lines[i] != want[i] {
			t.Fatalf("line %d = %+v want %+v", i, rec.lines[i], want[i])
		}
	}
}

func TestGAOnEmptyBufferEmitsNothing(t *testing.T) {
	p, rec, _ := newTestProtocol(Config{})
	p.Feed([]byte("x\n"))
	p.Feed([]byte{IAC, GA, IAC, EOR})
	if len(rec.lines) != 1 {
		t.Fatalf("lines=%+v", rec.lines)
	}
}

func TestEscapedIACIsData(t *testing.T) {
	p, rec, _ := newTestProtocol(Config{})
	p.Feed([]byte{'a', IAC, IAC, 'b', '\n'})
	if len(rec.lines) != 1 || rec.lines[0].text != "a\xffb" {
		t.Fatalf("lines=%+v", rec.lines)
	}
}

func TestUnknownOptionRefused(t *testing.T) {
	p, _, out := newTestProtocol(Config{})
	p.Feed([]byte{IAC, WILL, 24, IAC, DO, 31, IAC, DO, 31})
	want := []byte{IAC, DONT, 24, IAC, WONT, 31}
	if !bytes.Equal(out.Bytes(), want) {
		t.Fatalf("out=%v want %v", out.Bytes(), want)
	}
}

func TestServerEcho(t *testing.T) {
	p, rec, out := newTestProtocol(Config{})
	p.Feed([]byte{IAC, WILL, OptEcho, IAC, WILL, OptEcho, IAC, WONT, OptEcho})
	if len(rec.echo) != 2 || !rec.echo[0] || rec.echo[1] {
		t.Fatalf("echo=%v", rec.echo)
	}
	want := []byte{IAC, DO, OptEcho, IAC, DONT, OptEcho}
	if !bytes.Equal(out.Bytes(), want) {
		t.Fatalf("out=%v want %v", out.Bytes(), want)
	}
	if p.RemoteEnabled(OptEcho) {
		t.Fatalf("echo still enabled")
	}
}

func TestGMCPHandshakeAndMessages(t *testing.T) {
	p, rec, out := newTestProtocol(Config{
		GMCP:      true,
		Handshake: [][]byte{[]byte(`Core.Hello {"client":"x"}`)},
	})
	p.Feed([]byte{IAC, SB, OptGMCP})
	p.Feed([]byte("Char.Vitals {}"))
	p.Feed([]byte{IAC, SE})
	if len(rec.gmcp) != 0 {
		t.Fatalf("gmcp before agreement: %v", rec.gmcp)
	}

	p.Feed([]byte{IAC, WILL, OptGMCP})
	wantOut := append([]byte{IAC, DO, OptGMCP, IAC, SB, OptGMCP}, []byte(`Core.Hello {"client":"x"}`)...)
	wantOut = append(wantOut, IAC, SE)
	if !bytes.Equal(out.Bytes(), wantOut) {
		t.Fatalf("out=%q want %q", out.Bytes(), wantOut)
	}

	msg := append([]byte{IAC, SB, OptGMCP}, []byte(`Room.Info {"num":1}`)...)
	msg = append(msg, IAC, SE)
	msg = append(msg, []byte("after\n")...)
	p.Feed(msg)
	if len(rec.gmcp) != 1 || rec.gmcp[0] != `Room.Info {"num":1}` {
		t.Fatalf("gmcp=%v", rec.gmcp)
	}
	if len(rec.lines) != 1 || rec.lines[0].text != "after" {
		t.Fatalf("lines=%+v", rec.lines)
	}
}

func TestGMCPDisabledRefused(t *testing.T) {
	p, _, out := newTestProtocol(Config{GMCP: false})
	p.Feed([]byte{IAC, WILL, OptGMCP})
	if !bytes.Equal(out.Bytes(), []byte{IAC, DONT, OptGMCP}) {
		t.Fatalf("out=%v", out.Bytes())
	}
}

func TestSendLineDoublesIAC(t *testing.T) {
	p, _, out := newTestProtocol(Config{})
	if err := p.SendLine([]byte{'a', IAC, 'b'}); err != nil {
		t.Fatalf("SendLine: %v", err)
	}
	want := []byte{'a', IAC, IAC, 'b', '\r', '\n'}
	if !bytes.Equal(out.Bytes(), want) {
		t.Fatalf("out=%v want %v", out.Bytes(), want)
	}
}

func TestConnectionLostFlushes(t *testing.T) {
	p, rec, _ := newTestProtocol(Config{})
	p.Feed([]byte("partial"))
	reported := 0
	p.ConnectionLost(func() {
		reported++
		if len(rec.lines) != 1 {
			t.Errorf("loss reported before the flush")
		}
	})
	p.ConnectionLost(func() { reported++ })
	p.Feed([]byte("ignored\n"))
	if len(rec.lines) != 1 || rec.lines[0] != (gotLine{"partial", metaline.LineEndHard}) {
		t.Fatalf("lines=%+v", rec.lines)
	}
	if reported != 1 {
		t.Fatalf("reported=%d", reported)
	}
}

func TestReversedLineEndings(t *testing.T) {
	p, rec, _ := newTestProtocol(Config{Fixer: NewReversedCRLF()})
	p.Feed([]byte("one\n"))
	p.Feed([]byte("\rtwo\r\n\rthree\n"))
	want := []string{"one", "two", "\rthree"}
	if len(rec.lines) != len(want) {
		t.Fatalf("lines=%+v", rec.lines)
	}
	for i, w := range want {
		if rec.lines[i].text != w {
			t.Fatalf("line %d = %q want %q", i, rec.lines[i].text, w)
		}
	}
}

func TestReversedLineEndingsDisabled(t *testing.T) {
	p, rec, _ := newTestProtocol(Config{})
	p.Feed([]byte("one\n\rtwo\n"))
	if len(rec.lines) != 2 || rec.lines[1].text != "\rtwo" {
		t.Fatalf("lines=%+v", rec.lines)
	}
}

func deflate(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("deflate: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("deflate close: %v", err)
	}
	return buf.Bytes()
}

func waitFor(t *testing.T, l *loop.Loop, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out")
		}
		l.RunPending()
		time.Sleep(time.Millisecond)
	}
}

func TestCompressedStream(t *testing.T) {
	l := loop.New()
	p, rec, out := newTestProtocol(Config{MCCP: true, Post: l.Post})

	p.Feed([]byte{IAC, WILL, OptCompress2})
	if !bytes.Equal(out.Bytes(), []byte{IAC, DO, OptCompress2}) {
		t.Fatalf("out=%v", out.Bytes())
	}

	z := deflate(t, "inside one\ninside two\n")
	wire := []byte("plain\n")
	wire = append(wire, IAC, SB, OptCompress2, IAC, SE)
	wire = append(wire, z[:5]...)
	p.Feed(wire)
	if !p.Compressing() {
		t.Fatalf("compression not started")
	}
	p.Feed(append(append([]byte(nil), z[5:]...), []byte("tail\n")...))

	waitFor(t, l, func() bool { return len(rec.lines) == 4 })
	want := []string{"plain", "inside one", "inside two", "tail"}
	for i, w := range want {
		if rec.lines[i].text != w {
			t.Fatalf("line %d = %q want %q", i, rec.lines[i].text, w)
		}
	}
	waitFor(t, l, func() bool { return !p.Compressing() })
}

func TestMalformedCompressIgnored(t *testing.T) {
	l := loop.New()
	p, rec, _ := newTestProtocol(Config{MCCP: true, Post: l.Post})

	// Not agreed yet.
	p.Feed([]byte{IAC, SB, OptCompress2, IAC, SE})
	if p.Compressing() {
		t.Fatalf("compression started without agreement")
	}
	p.Feed([]byte{IAC, WILL, OptCompress2})
	// Payload present.
	p.Feed([]byte{IAC, SB, OptCompress2, 'x', IAC, SE, 'o', 'k', '\n'})
	if p.Compressing() {
		t.Fatalf("compression started with payload")
	}
	if len(rec.lines) != 1 || rec.lines[0].text != "ok" {
		t.Fatalf("lines=%+v", rec.lines)
	}
}

func TestCompressRefusedWithoutPost(t *testing.T) {
	p, _, out := newTestProtocol(Config{MCCP: true})
	p.Feed([]byte{IAC, WILL, OptCompress2})
	if !bytes.Equal(out.Bytes(), []byte{IAC, DONT, OptCompress2}) {
		t.Fatalf("out=%v", out.Bytes())
	}
}

func TestConnectionLostDrainsCompressedStream(t *testing.T) {
	l := loop.New()
	p, rec, _ := newTestProtocol(Config{MCCP: true, Post: l.Post})
	p.Feed([]byte{IAC, WILL, OptCompress2})

	// The server is cut off mid-stream: flushed, never closed.
	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	if _, err := zw.Write([]byte("farewell\npartial")); err != nil {
		t.Fatalf("deflate: %v", err)
	}
	if err := zw.Flush(); err != nil {
		t.Fatalf("deflate flush: %v", err)
	}
	wire := []byte{IAC, SB, OptCompress2, IAC, SE}
	wire = append(wire, z.Bytes()...)
	p.Feed(wire)

	linesAtLoss := -1
	p.ConnectionLost(func() { linesAtLoss = len(rec.lines) })

	waitFor(t, l, func() bool { return linesAtLoss >= 0 })
	want := []gotLine{{"farewell", metaline.LineEndHard}, {"partial", metaline.LineEndHard}}
	if len(rec.lines) != len(want) || linesAtLoss != len(want) {
		t.Fatalf("lines=%+v at loss=%d", rec.lines, linesAtLoss)
	}
	for i, w := range want {
		if rec.lines[i] != w {
			t.Fatalf("line %d = %+v want %+v", i, rec.lines[i], w)
		}
	}
	if p.Compressing() {
		t.Fatalf("still compressing after loss")
	}
}
