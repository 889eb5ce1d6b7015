package realm

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"mudlink/internal/colour"
	"mudlink/internal/gmcp"
	"mudlink/internal/loop"
	"mudlink/internal/metaline"
	"mudlink/internal/state"
)

// Transport carries commands to the server.
type Transport interface {
	SendLine(line string) error
	// Close asks for the connection to be dropped. ConnectionLost follows.
	Close() error
}

// Display receives finished lines and connection lifecycle events.
type Display interface {
	MetalineReceived(ml *metaline.Metaline, channels []string)
	ConnectionMade()
	ConnectionLost()
	Close()
}

// CommandLine is the optional input surface hidden while the server echoes.
type CommandLine interface {
	SetInputHidden(hidden bool)
}

// Scheduler runs callbacks later on the session goroutine.
type Scheduler interface {
	CallLater(d time.Duration, fn func()) *loop.Timer
}

type EventHandler func(args ...any) error

// GMCPHandler receives GMCP messages whose package matches Package: an
// exact name, a prefix ending in ".", or "" for everything.
type GMCPHandler struct {
	Name     string
	Package  string
	Sequence int
	Handler  func(msg gmcp.Message, r *Root) error
}

func (h *GMCPHandler) matches(pkg string) bool {
	switch {
	case h.Package == "":
		return true
	case strings.HasSuffix(h.Package, "."):
		return strings.HasPrefix(pkg, h.Package)
	default:
		return strings.EqualFold(pkg, h.Package)
	}
}

func sortGMCP(hs []*GMCPHandler) {
	slices.SortStableFunc(hs, func(a, b *GMCPHandler) int { return a.Sequence - b.Sequence })
}

type Options struct {
	// Width is the soft-wrap column; 0 disables wrapping.
	Width       int
	Scheduler   Scheduler
	Reporter    Reporter
	CommandLine CommandLine
	// Macros are baked in: they survive ClearModules.
	Macros map[string]Macro
	// MainModule produces the definition ReloadMainModule loads.
	MainModule func() (*Definition, error)
	Session    *state.SessionStore
	GMCP       *state.GMCPStore
	// AccessibilityMode turns command echo off.
	AccessibilityMode bool
	Palette           *colour.Palette
	Logger            *slog.Logger
	Now               func() time.Time
}

// Root is the session orchestrator.
type Root struct {
	transport   Transport
	displays    []Display
	sched       Scheduler
	reporter    Reporter
	cmdline     CommandLine
	session     *state.SessionStore
	gmcpStore   *state.GMCPStore
	palette     *colour.Palette
	log         *slog.Logger
	now         func() time.Time
	mainModule  func() (*Definition, error)
	width       int
	accessible  bool
	bakedMacros map[string]Macro

	triggers     []*Matcher
	aliases      []*Matcher
	gmcpHandlers []*GMCPHandler
	macros       map[string]Macro
	loaded       map[*Definition]struct{}

	events map[string][]EventHandler
	state  map[string]string
	timers map[*loop.Timer]struct{}

	activeChannels []string
	hideLines      int
	lastEnd        metaline.LineEnd

	stack []*Context
	// abort is set when ErrInterrupt escapes a handler and is cleared by
	// the entry point that started the input unit.
	abort error

	tracing    bool
	serverEcho bool
	safeToSend bool
	closing    bool
	lost       bool
	closed     bool
}

func NewRoot(t Transport, opts Options) *Root {
	r := &Root{
		transport:      t,
		sched:          opts.Scheduler,
		reporter:       opts.Reporter,
		cmdline:        opts.CommandLine,
		session:        opts.Session,
		gmcpStore:      opts.GMCP,
		palette:        opts.Palette,
		log:            opts.Logger,
		now:            opts.Now,
		mainModule:     opts.MainModule,
		width:          opts.Width,
		accessible:     opts.AccessibilityMode,
		bakedMacros:    maps.Clone(opts.Macros),
		loaded:         map[*Definition]struct{}{},
		events:         map[string][]EventHandler{},
		state:          map[string]string{},
		timers:         map[*loop.Timer]struct{}{},
		activeChannels: []string{"main"},
		safeToSend:     true,
	}
	if r.sched == nil {
		r.sched = loop.New()
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if r.reporter == nil {
		r.reporter = LogReporter{Logger: r.log}
	}
	if r.palette == nil {
		r.palette = colour.Default
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.gmcpStore == nil {
		r.gmcpStore = state.NewGMCPStore()
	}
	r.macros = maps.Clone(r.bakedMacros)
	if r.macros == nil {
		r.macros = map[string]Macro{}
	}
	return r
}

func (r *Root) SetTransport(t Transport) { r.transport = t }

func (r *Root) AddDisplay(d Display) { r.displays = append(r.displays, d) }

func (r *Root) Triggers() []*Matcher { return slices.Clone(r.triggers) }

func (r *Root) Aliases() []*Matcher { return slices.Clone(r.aliases) }

func (r *Root) GMCPHandlers() []*GMCPHandler { return slices.Clone(r.gmcpHandlers) }

// AddTrigger appends m without re-sorting; LoadModule sorts.
func (r *Root) AddTrigger(m *Matcher) { r.triggers = append(r.triggers, m) }

func (r *Root) AddAlias(m *Matcher) { r.aliases = append(r.aliases, m) }

func (r *Root) AddGMCPHandler(h *GMCPHandler) { r.gmcpHandlers = append(r.gmcpHandlers, h) }

func (r *Root) Palette() *colour.Palette { return r.palette }

func (r *Root) GMCPStore() *state.GMCPStore { return r.gmcpStore }

// Incoming.

// MetalineReceived runs the triggers over ml and displays it, followed by
// whatever the handlers wrote. It returns ErrInterrupt if a handler
// interrupted processing.
func (r *Root) MetalineReceived(ml *metaline.Metaline) error {
	if r.session != nil {
		r.session.CountLineIn()
	}
	c := r.push(TriggerKind)
	c.Line = ml
	c.DisplayLine = true

	r.runMatchers(c, ml.Text, r.triggers)
	if err := r.takeAbort(c); err != nil {
		return err
	}
	r.pop()
	if c.DisplayLine {
		r.Write(ml, false)
	}
	if err := r.finish(c); err != nil {
		return err
	}
	return r.takeAbort(nil)
}

// GMCPReceived decodes a GMCP payload, stores it and runs the handlers
// registered for its package.
func (r *Root) GMCPReceived(payload []byte) error {
	msg, err := gmcp.Parse(payload)
	if err != nil {
		r.log.Warn("dropping gmcp message", "err", err)
		return nil
	}
	if r.session != nil {
		r.session.CountGMCP()
	}
	r.gmcpStore.Update(msg.Package, msg.Raw)
	for _, h := range slices.Clone(r.gmcpHandlers) {
		if !h.matches(msg.Package) {
			continue
		}
		err := r.callGMCP(h, msg)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrInterrupt) {
			return err
		}
		r.reporter.Report(err)
	}
	return nil
}

func (r *Root) callGMCP(h *GMCPHandler, msg gmcp.Message) (err error) {
	src := "gmcp " + h.Package
	if h.Name != "" {
		src += " " + h.Name
	}
	defer recoverInto(&err, src)
	if err = h.Handler(msg, r); err != nil && !errors.Is(err, ErrInterrupt) {
		err = &HandlerError{Source: src, Err: err}
	}
	return err
}

// Outgoing.

// Send runs line through the aliases and, unless a handler stops it, sends
// it. With echo the command is also shown, unless the server echoes or
// accessibility mode is on.
func (r *Root) Send(line string, echo bool) error {
	echo = echo && !r.serverEcho && !r.accessible
	c := r.push(AliasKind)
	c.Command = line
	c.SendToMUD = true
	c.Echo = echo

	r.runMatchers(c, line, r.aliases)
	if err := r.takeAbort(c); err != nil {
		return err
	}
	r.pop()
	if c.SendToMUD {
		r.sendLine(line)
		if c.Echo {
			r.echo(line)
		}
	}
	if err := r.finish(c); err != nil {
		return err
	}
	return r.takeAbort(nil)
}

// SafeSend sends only while the safe-to-send flag is set.
func (r *Root) SafeSend(line string, echo bool) error {
	if !r.safeToSend {
		return nil
	}
	return r.Send(line, echo)
}

func (r *Root) SetSafeToSend(on bool) { r.safeToSend = on }

func (r *Root) SafeToSend() bool { return r.safeToSend }

// ReceiveInput sends each line of text typed by the user.
func (r *Root) ReceiveInput(text string) error {
	text = strings.TrimSuffix(text, "\n")
	for _, line := range strings.Split(text, "\n") {
		if err := r.Send(strings.TrimSuffix(line, "\r"), true); err != nil {
			return err
		}
	}
	return nil
}

func (r *Root) sendLine(line string) {
	if r.transport == nil {
		r.reporter.Report(fmt.Errorf("send %q: %w", line, ErrNotConnected))
		return
	}
	if err := r.transport.SendLine(line); err != nil {
		r.reporter.Report(fmt.Errorf("send %q: %w", line, err))
		return
	}
	if r.session != nil {
		r.session.CountLineOut()
	}
}

// echo shows a sent command. Inside a trigger pass it queues behind the
// trigger's line; otherwise it is written straight away.
func (r *Root) echo(line string) {
	ml := metaline.Simple(line, r.palette.DefaultFore(), r.palette.DefaultBack())
	ml.SoftLineStart = true
	if c := r.triggerContext(); c != nil {
		c.Write(ml, true)
		return
	}
	r.Write(ml, true)
}

// triggerContext is the innermost running trigger context, if any.
func (r *Root) triggerContext() *Context {
	for i := len(r.stack) - 1; i >= 0; i-- {
		if r.stack[i].kind == TriggerKind {
			return r.stack[i]
		}
	}
	return nil
}

// Matching.

func (r *Root) push(kind Kind) *Context {
	c := &Context{root: r, kind: kind, depth: len(r.stack)}
	r.stack = append(r.stack, c)
	return c
}

func (r *Root) pop() {
	n := len(r.stack) - 1
	r.stack[n] = nil
	r.stack = r.stack[:n]
}

// takeAbort reports a pending interrupt. With c set, c is discarded first.
// Only the outermost entry point clears the interrupt.
func (r *Root) takeAbort(c *Context) error {
	if r.abort == nil {
		return nil
	}
	if c != nil {
		c.done = true
		r.pop()
	}
	err := r.abort
	if len(r.stack) == 0 {
		r.abort = nil
	}
	return err
}

func (r *Root) runMatchers(c *Context, input string, list []*Matcher) {
	for _, m := range list {
		matches, err := m.Matches(input)
		if err != nil {
			r.reporter.Report(err)
		}
		for _, match := range matches {
			c.TraceThunk(func() string { return m.String() + " matched!" })
			err := r.invoke(m, match, c)
			if err == nil {
				if r.abort != nil {
					return
				}
				continue
			}
			if errors.Is(err, ErrInterrupt) {
				r.abort = err
				return
			}
			r.reporter.Report(err)
		}
	}
}

func (r *Root) invoke(m *Matcher, match *Match, c *Context) (err error) {
	defer recoverInto(&err, m.String())
	if m.Handler == nil {
		return nil
	}
	if err = m.Handler(match, c); err != nil && !errors.Is(err, ErrInterrupt) {
		err = &HandlerError{Source: m.String(), Err: err}
	}
	return err
}

// finish flushes c's queued writes to the innermost running trigger
// context, or to the screen when there is none, then runs its deferred
// sends. c must already be popped.
func (r *Root) finish(c *Context) error {
	c.done = true
	owner := r.triggerContext()
	for _, w := range c.writes {
		if owner != nil {
			owner.Write(w.line, w.softLineStart)
		} else {
			r.Write(w.line, w.softLineStart)
		}
	}
	c.writes = nil
	after := c.after
	c.after = nil
	for _, s := range after {
		if err := r.Send(s.line, s.echo); err != nil {
			return err
		}
	}
	return nil
}

func recoverInto(err *error, source string) {
	p := recover()
	if p == nil {
		return
	}
	if e, ok := p.(error); ok && errors.Is(e, ErrInterrupt) {
		*err = e
		return
	}
	*err = &HandlerError{Source: source, Err: fmt.Errorf("panic: %v", p), Stack: debug.Stack()}
}

// Output.

// Write displays line. Strings become white-on-black metalines that do
// not wrap; other non-metaline values are printed with fmt first. A newline
// is put in front unless this is the first line, or the previous line ended
// soft and this one may continue it.
func (r *Root) Write(line any, softLineStart bool) {
	if r.hideLines > 0 {
		r.hideLines--
		return
	}
	var ml *metaline.Metaline
	switch v := line.(type) {
	case *metaline.Metaline:
		ml = v
	case string:
		ml = r.simple(v, softLineStart)
	default:
		ml = r.simple(fmt.Sprint(v), softLineStart)
	}
	ml = ml.Wrapped(r.width)
	if r.lastEnd != metaline.LineEndNone {
		if r.lastEnd == metaline.LineEndHard || !ml.SoftLineStart {
			ml.Insert(0, "\n")
		}
	}
	channels := slices.Clone(r.activeChannels)
	for _, d := range r.displays {
		d.MetalineReceived(ml, channels)
	}
	r.lastEnd = ml.LineEnd
}

// CWrite writes a line given in tagged colour markup.
func (r *Root) CWrite(markup string, softLineStart bool) {
	ml := metaline.ParseTagged(markup, r.palette)
	ml.SoftLineStart = softLineStart
	r.Write(ml, softLineStart)
}

func (r *Root) simple(s string, softLineStart bool) *metaline.Metaline {
	ml := metaline.Simple(s, r.palette.DefaultFore(), r.palette.DefaultBack())
	ml.SoftLineStart = softLineStart
	return ml
}

// HideNextLines drops the next n writes.
func (r *Root) HideNextLines(n int) {
	if n > 0 {
		r.hideLines += n
	}
}

func (r *Root) SetActiveChannels(channels []string) {
	r.activeChannels = slices.Clone(channels)
}

func (r *Root) ActiveChannels() []string { return slices.Clone(r.activeChannels) }

// LastLineEnd is the terminator of the last line written.
func (r *Root) LastLineEnd() metaline.LineEnd { return r.lastEnd }

func (r *Root) TraceOn() {
	if !r.tracing {
		r.tracing = true
		r.Trace("Tracing enabled!")
	}
}

func (r *Root) TraceOff() {
	if r.tracing {
		r.Trace("Tracing disabled!")
		r.tracing = false
	}
}

func (r *Root) Tracing() bool { return r.tracing }

func (r *Root) Trace(line string) {
	if r.tracing {
		r.Write("TRACE: "+line, false)
	}
}

func (r *Root) TraceThunk(fn func() string) {
	if r.tracing {
		r.Write("TRACE: "+fn(), false)
	}
}

// State.

// GetState returns "" for unknown keys.
func (r *Root) GetState(key string) string { return r.state[key] }

func (r *Root) SetState(key, value string) {
	r.state[key] = value
	if r.session != nil {
		r.session.SetValue(key, value)
	}
}

// ServerEcho is called when the server starts or stops echoing input.
func (r *Root) ServerEcho(on bool) {
	r.serverEcho = on
	if r.cmdline != nil {
		r.cmdline.SetInputHidden(on)
	}
}

func (r *Root) ServerEchoing() bool { return r.serverEcho }

// Events and timers.

func (r *Root) RegisterEventHandler(name string, h EventHandler) {
	r.events[name] = append(r.events[name], h)
}

// FireEvent schedules every handler for name with zero delay.
func (r *Root) FireEvent(name string, args ...any) {
	for _, h := range r.events[name] {
		r.sched.CallLater(0, func() {
			if err := r.callEvent(name, h, args); err != nil {
				r.reporter.Report(err)
			}
		})
	}
}

func (r *Root) callEvent(name string, h EventHandler, args []any) (err error) {
	defer recoverInto(&err, "event "+name)
	if err = h(args...); err != nil {
		err = &HandlerError{Source: "event " + name, Err: err}
	}
	return err
}

// SetTimer runs fn after d. Timers still pending when the connection goes
// away are cancelled.
func (r *Root) SetTimer(d time.Duration, fn func(r *Root) error) *loop.Timer {
	var t *loop.Timer
	t = r.sched.CallLater(d, func() {
		delete(r.timers, t)
		if err := r.callback("timer", fn); err != nil {
			r.reporter.Report(err)
		}
	})
	r.timers[t] = struct{}{}
	return t
}

// RunCallback runs fn for an asynchronous collaborator, such as a finished
// lookup, reporting any error. It must be called on the session goroutine.
func (r *Root) RunCallback(source string, fn func(r *Root) error) {
	if err := r.callback(source, fn); err != nil {
		r.reporter.Report(err)
	}
}

func (r *Root) callback(source string, fn func(r *Root) error) (err error) {
	defer recoverInto(&err, source)
	if err = fn(r); err != nil {
		err = &HandlerError{Source: source, Err: err}
	}
	return err
}

// PendingTimers counts timers that have neither fired nor been cancelled.
func (r *Root) PendingTimers() int {
	n := 0
	for t := range r.timers {
		if t.Pending() {
			n++
		}
	}
	return n
}

func (r *Root) cancelTimers() {
	for t := range r.timers {
		t.Cancel()
	}
	clear(r.timers)
}

// Lifecycle.

func (r *Root) ConnectionMade() {
	r.lost = false
	if r.session != nil {
		r.session.SetConnected(true, r.now())
	}
	r.note("Connection opened at 15:04:05.")
	for _, d := range r.displays {
		d.ConnectionMade()
	}
}

// ConnectionLost reports the dropped link to every display. If Close was
// already requested, the displays are closed afterwards.
func (r *Root) ConnectionLost() {
	if r.lost {
		return
	}
	r.lost = true
	r.cancelTimers()
	if r.session != nil {
		r.session.SetConnected(false, r.now())
	}
	r.note("Connection closed at 15:04:05.")
	for _, d := range r.displays {
		d.ConnectionLost()
	}
	if r.closing {
		r.closeDisplays()
	}
}

// Close shuts the session down. Displays always see ConnectionLost before
// Close: if the link is still up, Close drops it and the displays are
// closed when the loss is reported.
func (r *Root) Close() {
	if r.lost {
		r.closing = true
		r.closeDisplays()
		return
	}
	if r.closing {
		return
	}
	r.closing = true
	if r.transport == nil {
		r.ConnectionLost()
		return
	}
	if err := r.transport.Close(); err != nil {
		r.log.Warn("close transport", "err", err)
	}
}

func (r *Root) closeDisplays() {
	if r.closed {
		return
	}
	r.closed = true
	for _, d := range r.displays {
		d.Close()
	}
}

func (r *Root) note(layout string) {
	ml := metaline.Simple(r.now().Format(layout), colour.Note, r.palette.DefaultBack())
	r.Write(ml, false)
}
