package realm

import (
	"fmt"

	"mudlink/internal/metaline"
)

type pendingWrite struct {
	line          any
	softLineStart bool
}

type pendingSend struct {
	line string
	echo bool
}

// Context is handed to handlers for one matching pass. Triggers may clear
// DisplayLine to keep the line off the screen; aliases may clear SendToMUD
// to stop the command being sent.
type Context struct {
	root  *Root
	kind  Kind
	depth int

	// Line is the incoming line (triggers only).
	Line *metaline.Metaline
	// Command is the outgoing command (aliases only).
	Command string

	DisplayLine bool
	SendToMUD   bool
	Echo        bool

	writes []pendingWrite
	after  []pendingSend
	done   bool
}

func (c *Context) Kind() Kind { return c.kind }

func (c *Context) Depth() int { return c.depth }

func (c *Context) Root() *Root { return c.root }

// Write queues line for display after the current line. line is a string,
// a *metaline.Metaline or anything fmt can print.
func (c *Context) Write(line any, softLineStart bool) {
	if c.done {
		c.root.Write(line, softLineStart)
		return
	}
	c.writes = append(c.writes, pendingWrite{line: line, softLineStart: softLineStart})
}

// CWrite queues a line written in tagged colour markup.
func (c *Context) CWrite(markup string, softLineStart bool) {
	ml := metaline.ParseTagged(markup, c.root.palette)
	ml.SoftLineStart = softLineStart
	c.Write(ml, softLineStart)
}

// Send runs line through the aliases and sends it now.
func (c *Context) Send(line string, echo bool) error {
	return c.root.Send(line, echo)
}

// SendAfter sends line once this context has finished.
func (c *Context) SendAfter(line string, echo bool) {
	if c.done {
		if err := c.root.Send(line, echo); err != nil {
			c.root.reporter.Report(fmt.Errorf("send after %q: %w", line, err))
		}
		return
	}
	c.after = append(c.after, pendingSend{line: line, echo: echo})
}

func (c *Context) SafeSend(line string, echo bool) error {
	return c.root.SafeSend(line, echo)
}

func (c *Context) FireEvent(name string, args ...any) {
	c.root.FireEvent(name, args...)
}

func (c *Context) Tracing() bool { return c.root.tracing }

func (c *Context) Trace(line string) {
	if c.root.tracing {
		c.Write("TRACE: "+line, false)
	}
}

// TraceThunk calls fn only when tracing is on.
func (c *Context) TraceThunk(fn func() string) {
	if c.root.tracing {
		c.Write("TRACE: "+fn(), false)
	}
}
