package realm

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrInterrupt aborts the current input unit. Handlers return it (or panic
// with it) to stop processing; fault isolation never swallows it.
var ErrInterrupt = errors.New("interrupted")

var ErrNotConnected = errors.New("not connected")

// HandlerError wraps a fault raised by a matcher, macro, event or timer
// callback.
type HandlerError struct {
	Source string
	Err    error
	// Stack is set when the handler panicked.
	Stack []byte
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Reporter receives handler faults.
type Reporter interface {
	Report(err error)
}

// LogReporter reports to a slog logger.
type LogReporter struct {
	Logger *slog.Logger
}

func (r LogReporter) Report(err error) {
	lg := r.Logger
	if lg == nil {
		lg = slog.Default()
	}
	var he *HandlerError
	if errors.As(err, &he) && he.Stack != nil {
		lg.Error("handler panicked", "source", he.Source, "err", he.Err, "stack", string(he.Stack))
		return
	}
	lg.Error("handler failed", "err", err)
}
