// Package packetlog writes one JSON object per line describing session
// traffic: negotiation, received lines, GMCP messages and sent commands.
package packetlog

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Record types.
const (
	TypeStartup = "startup"
	TypeTelnet  = "telnet"
	TypeLine    = "line"
	TypeGMCP    = "gmcp"
	TypeSend    = "send"
	TypeClose   = "close"
)

type Record struct {
	RunID     string `json:"run_id"`
	Timestamp string `json:"ts"`
	Type      string `json:"type"`
	Direction string `json:"direction,omitempty"`
	Command   string `json:"cmd,omitempty"`
	Option    int    `json:"opt,omitempty"`
	LineEnd   string `json:"line_end,omitempty"`
	Package   string `json:"pkg,omitempty"`
	Length    int    `json:"len,omitempty"`
	Message   string `json:"message,omitempty"`
}

type Logger struct {
	mu    sync.Mutex
	f     *os.File
	w     *bufio.Writer
	runID string
}

// New opens path for appending. Records without a RunID get runID.
func New(path, runID string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Logger{
		f:     f,
		w:     bufio.NewWriterSize(f, 64*1024),
		runID: runID,
	}, nil
}

func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w != nil {
		_ = l.w.Flush()
		l.w = nil
	}
	if l.f != nil {
		err := l.f.Close()
		l.f = nil
		return err
	}
	return nil
}

// Log appends rec. A nil Logger discards everything.
func (l *Logger) Log(rec Record) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.w == nil {
		return
	}
	if rec.RunID == "" {
		rec.RunID = l.runID
	}
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_, _ = l.w.Write(append(line, '\n'))
	_ = l.w.Flush()
}
