package telnet

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"

	"mudlink/internal/metaline"
	"mudlink/internal/packetlog"
)

// Receiver gets everything the protocol decodes. Calls happen on the
// goroutine driving Feed.
type Receiver interface {
	LineReceived(data []byte, end metaline.LineEnd)
	GMCPReceived(payload []byte)
	// ServerEcho reports the server taking over (on) or releasing echo.
	ServerEcho(on bool)
}

type Config struct {
	// Options defaults to DefaultOptions().
	Options OptionTable
	MCCP    bool
	GMCP    bool
	// Fixer filters the byte stream before line splitting; nil disables it.
	Fixer LineEndingFixer
	// Handshake is sent as GMCP frames once the server agrees to GMCP.
	Handshake [][]byte
	// Post schedules work on the goroutine driving Feed. MCCP is refused
	// without it.
	Post func(func())

	Telemetry *packetlog.Logger
	Logger    *slog.Logger
}

type parseState uint8

const (
	stData parseState = iota
	stIAC
	stNegotiate
	stSB
	stSBData
	stSBIAC
)

type Protocol struct {
	cfg  Config
	out  io.Writer
	recv Receiver
	log  *slog.Logger

	state  parseState
	cmd    byte
	sbOpt  byte
	sb     []byte
	line   []byte
	remote map[byte]bool
	// local options we already refused, so repeated DOs are not answered twice.
	refused map[byte]bool

	allowCompress bool
	allowGMCP     bool
	inflate       *inflater
	// ending is set once the connection is gone but a compressed stream
	// is still draining; closed once the loss is fully reported.
	ending    bool
	closed    bool
	afterLoss func()
}

func New(out io.Writer, recv Receiver, cfg Config) *Protocol {
	if cfg.Options == nil {
		cfg.Options = DefaultOptions()
	}
	lg := cfg.Logger
	if lg == nil {
		lg = slog.Default()
	}
	return &Protocol{
		cfg:     cfg,
		out:     out,
		recv:    recv,
		log:     lg,
		remote:  map[byte]bool{},
		refused: map[byte]bool{},
	}
}

// Compressing reports whether an MCCP stream is open.
func (p *Protocol) Compressing() bool { return p.inflate != nil }

// RemoteEnabled reports whether the server has the option switched on.
func (p *Protocol) RemoteEnabled(opt byte) bool { return p.remote[opt] }

// Feed consumes bytes read from the connection.
func (p *Protocol) Feed(data []byte) {
	if p.closed || p.ending || len(data) == 0 {
		return
	}
	if p.inflate != nil {
		p.inflate.write(data)
		return
	}
	p.parse(data)
}

// ConnectionLost flushes any partial line as a hard line, then calls then
// (which may be nil). With a compressed stream open, the flush waits until
// the decoder has handed over everything it was given.
func (p *Protocol) ConnectionLost(then func()) {
	if p.closed || p.ending {
		return
	}
	p.ending = true
	p.afterLoss = then
	if p.inflate != nil {
		p.inflate.in.close()
		return
	}
	p.finishLoss()
}

func (p *Protocol) finishLoss() {
	p.closed = true
	if len(p.line) > 0 {
		p.flush(metaline.LineEndHard)
	}
	if then := p.afterLoss; then != nil {
		p.afterLoss = nil
		then()
	}
}

func (p *Protocol) parse(data []byte) {
	for i := 0; i < len(data); i++ {
		b := data[i]
		switch p.state {
		case stData:
			if b == IAC {
				p.state = stIAC
				continue
			}
			p.dataByte(b)
		case stIAC:
			p.state = stData
			switch b {
			case IAC:
				p.dataByte(IAC)
			case WILL, WONT, DO, DONT:
				p.cmd = b
				p.state = stNegotiate
			case SB:
				p.state = stSB
			case GA, EOR:
				p.trace("in", b, 0)
				if len(p.line) > 0 {
					p.flush(metaline.LineEndSoft)
				}
			default:
				// NOP and the rest carry nothing for us.
			}
		case stNegotiate:
			p.state = stData
			p.negotiate(p.cmd, b)
		case stSB:
			p.sbOpt = b
			p.sb = p.sb[:0]
			p.state = stSBData
		case stSBData:
			if b == IAC {
				p.state = stSBIAC
				continue
			}
			p.sb = append(p.sb, b)
		case stSBIAC:
			switch b {
			case SE:
				p.state = stData
				if p.subnegotiation(p.sbOpt, p.sb) {
					p.inflate.write(data[i+1:])
					return
				}
			case IAC:
				p.sb = append(p.sb, IAC)
				p.state = stSBData
			default:
				p.state = stSBData
			}
		}
	}
}

func (p *Protocol) dataByte(b byte) {
	if p.cfg.Fixer != nil && !p.cfg.Fixer.Keep(b) {
		return
	}
	if b == '\n' {
		p.flush(metaline.LineEndHard)
		return
	}
	p.line = append(p.line, b)
}

func (p *Protocol) flush(end metaline.LineEnd) {
	line := p.line
	if end == metaline.LineEndHard {
		line = bytes.TrimSuffix(line, []byte{'\r'})
	}
	out := append([]byte(nil), line...)
	p.line = p.line[:0]
	p.cfg.Telemetry.Log(packetlog.Record{
		Type:      packetlog.TypeLine,
		Direction: "in",
		LineEnd:   end.String(),
		Length:    len(out),
	})
	p.recv.LineReceived(out, end)
}

func (p *Protocol) accepts(k OptionKind) bool {
	switch k {
	case OptionEcho:
		return true
	case OptionCompress:
		return p.cfg.MCCP && p.cfg.Post != nil
	case OptionGMCP:
		return p.cfg.GMCP
	default:
		return false
	}
}

func (p *Protocol) negotiate(cmd, opt byte) {
	p.trace("in", cmd, opt)
	kind := p.cfg.Options.Kind(opt)
	switch cmd {
	case WILL:
		if !p.accepts(kind) {
			p.send(DONT, opt)
			return
		}
		if p.remote[opt] {
			return
		}
		p.remote[opt] = true
		p.send(DO, opt)
		p.enableRemote(kind)
	case WONT:
		if !p.remote[opt] {
			return
		}
		p.remote[opt] = false
		p.send(DONT, opt)
		p.disableRemote(kind)
	case DO:
		// We never offer local options.
		if p.refused[opt] {
			return
		}
		p.refused[opt] = true
		p.send(WONT, opt)
	case DONT:
	}
}

func (p *Protocol) enableRemote(k OptionKind) {
	switch k {
	case OptionEcho:
		p.recv.ServerEcho(true)
	case OptionCompress:
		p.allowCompress = true
	case OptionGMCP:
		p.allowGMCP = true
		for _, msg := range p.cfg.Handshake {
			if err := p.SendGMCP(msg); err != nil {
				p.log.Warn("gmcp handshake failed", "err", err)
				return
			}
		}
	}
}

func (p *Protocol) disableRemote(k OptionKind) {
	switch k {
	case OptionEcho:
		p.recv.ServerEcho(false)
	case OptionCompress:
		p.allowCompress = false
	case OptionGMCP:
		p.allowGMCP = false
	}
}

// subnegotiation dispatches a completed SB block. It reports true when a
// compressed stream starts after it.
func (p *Protocol) subnegotiation(opt byte, payload []byte) bool {
	switch p.cfg.Options.Kind(opt) {
	case OptionCompress:
		if !p.allowCompress || len(payload) > 0 || p.inflate != nil || p.ending {
			p.log.Debug("ignoring compress subnegotiation", "allowed", p.allowCompress, "len", len(payload))
			return false
		}
		p.trace("in", SB, opt)
		p.inflate = startInflater(p.cfg.Post, p.inflated, p.inflateDone)
		return true
	case OptionGMCP:
		if !p.allowGMCP {
			return false
		}
		msg := append([]byte(nil), payload...)
		p.cfg.Telemetry.Log(packetlog.Record{
			Type:      packetlog.TypeGMCP,
			Direction: "in",
			Length:    len(msg),
		})
		p.recv.GMCPReceived(msg)
	default:
		p.log.Debug("unhandled subnegotiation", "option", opt, "len", len(payload))
	}
	return false
}

func (p *Protocol) inflated(chunk []byte) {
	if p.closed {
		return
	}
	p.parse(chunk)
}

func (p *Protocol) inflateDone(err error) {
	if p.closed || p.inflate == nil {
		return
	}
	rest := p.inflate.in.takeAll()
	p.inflate = nil
	switch {
	case err != nil && p.ending:
		// The connection went away mid-stream; the decoder just ran dry.
		p.log.Debug("compressed stream cut off", "err", err)
	case err != nil:
		p.log.Warn("compressed stream ended with error", "err", err)
	default:
		p.log.Debug("compressed stream ended", "plain_bytes", len(rest))
	}
	if len(rest) > 0 {
		p.parse(rest)
	}
	if p.ending {
		p.finishLoss()
	}
}

// SendLine writes one line of input, doubling IAC and appending CRLF.
func (p *Protocol) SendLine(line []byte) error {
	buf := make([]byte, 0, len(line)+2)
	buf = append(buf, escapeIAC(line)...)
	buf = append(buf, '\r', '\n')
	p.cfg.Telemetry.Log(packetlog.Record{
		Type:      packetlog.TypeSend,
		Direction: "out",
		Length:    len(line),
	})
	return p.write(buf)
}

// SendGMCP frames payload as IAC SB GMCP ... IAC SE.
func (p *Protocol) SendGMCP(payload []byte) error {
	buf := []byte{IAC, SB, OptGMCP}
	buf = append(buf, escapeIAC(payload)...)
	buf = append(buf, IAC, SE)
	p.cfg.Telemetry.Log(packetlog.Record{
		Type:      packetlog.TypeGMCP,
		Direction: "out",
		Length:    len(payload),
	})
	return p.write(buf)
}

func (p *Protocol) send(cmd, opt byte) {
	p.trace("out", cmd, opt)
	if err := p.write([]byte{IAC, cmd, opt}); err != nil {
		p.log.Warn("negotiation write failed", "cmd", commandName(cmd), "option", opt, "err", err)
	}
}

func (p *Protocol) write(b []byte) error {
	if _, err := p.out.Write(b); err != nil {
		return fmt.Errorf("telnet write: %w", err)
	}
	return nil
}

func (p *Protocol) trace(dir string, cmd, opt byte) {
	p.log.Debug("telnet", "dir", dir, "cmd", commandName(cmd), "option", opt)
	p.cfg.Telemetry.Log(packetlog.Record{
		Type:      packetlog.TypeTelnet,
		Direction: dir,
		Command:   commandName(cmd),
		Option:    int(opt),
	})
}

func escapeIAC(b []byte) []byte {
	if bytes.IndexByte(b, IAC) < 0 {
		return b
	}
	return bytes.ReplaceAll(b, []byte{IAC}, []byte{IAC, IAC})
}
