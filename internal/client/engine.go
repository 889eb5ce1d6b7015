package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"mudlink/internal/colour"
	"mudlink/internal/metaline"
	"mudlink/internal/nvt"
	"mudlink/internal/packetlog"
	"mudlink/internal/realm"
	"mudlink/internal/telnet"
)

const (
	readBufSize = 32 * 1024
	outQueueLen = 256
)

// Config describes one connection.
type Config struct {
	Addr           string
	Encoding       string
	ConnectTimeout time.Duration
	// Telnet is handed to the protocol; Post and Telemetry are filled in
	// from the engine's own settings.
	Telnet telnet.Config
	// Post runs fn on the session loop.
	Post      func(fn func())
	Root      *realm.Root
	Palette   *colour.Palette
	Telemetry *packetlog.Logger
	Logger    *slog.Logger
	// Dial defaults to a net.Dialer with ConnectTimeout.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Engine connects the root realm to the server. It implements
// realm.Transport and telnet.Receiver; both are used on the loop only.
type Engine struct {
	cfg   Config
	log   *slog.Logger
	enc   encoding.Encoding
	proto *telnet.Protocol
	cp    *nvt.ColourParser
	root  *realm.Root

	outQ chan []byte
	done chan struct{}

	mu   sync.Mutex
	conn net.Conn
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Root == nil {
		return nil, errors.New("client: root realm nil")
	}
	if cfg.Post == nil {
		return nil, errors.New("client: post func nil")
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "utf-8"
	}
	enc, err := htmlindex.Get(cfg.Encoding)
	if err != nil {
		return nil, fmt.Errorf("client: encoding %q: %w", cfg.Encoding, err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Palette == nil {
		cfg.Palette = colour.Default
	}
	if cfg.Dial == nil {
		d := &net.Dialer{Timeout: cfg.ConnectTimeout}
		cfg.Dial = d.DialContext
	}

	e := &Engine{
		cfg:  cfg,
		log:  cfg.Logger,
		enc:  enc,
		cp:   nvt.NewColourParser(cfg.Palette),
		root: cfg.Root,
		outQ: make(chan []byte, outQueueLen),
		done: make(chan struct{}),
	}
	tc := cfg.Telnet
	tc.Post = cfg.Post
	tc.Telemetry = cfg.Telemetry
	if tc.Logger == nil {
		tc.Logger = cfg.Logger
	}
	e.proto = telnet.New(queueWriter{e}, e, tc)
	return e, nil
}

// Run dials the server and pumps bytes until the connection ends or ctx is
// cancelled. Connection loss is reported to the root realm through the loop.
// An Engine runs once.
func (e *Engine) Run(ctx context.Context) error {
	conn, err := e.cfg.Dial(ctx, "tcp", e.cfg.Addr)
	if err != nil {
		return fmt.Errorf("connect %s: %w", e.cfg.Addr, err)
	}
	e.mu.Lock()
	e.conn = conn
	e.mu.Unlock()

	e.cfg.Telemetry.Log(packetlog.Record{
		Type:    packetlog.TypeStartup,
		Message: fmt.Sprintf("connected addr=%s remote=%s encoding=%s", e.cfg.Addr, conn.RemoteAddr(), e.cfg.Encoding),
	})
	e.log.Info("connected", "addr", e.cfg.Addr, "remote", conn.RemoteAddr().String())

	sendCtx, cancelSend := context.WithCancel(ctx)
	defer cancelSend()
	go e.sendWorker(sendCtx, conn)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	e.cfg.Post(func() {
		e.root.SetTransport(e)
		e.root.ConnectionMade()
	})

	readErr := e.readLoop(conn)
	_ = conn.Close()
	close(e.done)

	e.cfg.Post(func() {
		e.proto.ConnectionLost(e.root.ConnectionLost)
	})
	e.cfg.Telemetry.Log(packetlog.Record{
		Type:    packetlog.TypeClose,
		Message: fmt.Sprintf("connection closed err=%v", readErr),
	})

	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(readErr, io.EOF), errors.Is(readErr, net.ErrClosed), errors.Is(readErr, io.ErrClosedPipe):
		e.log.Info("connection closed", "addr", e.cfg.Addr)
		return nil
	default:
		e.log.Warn("connection lost", "addr", e.cfg.Addr, "err", readErr)
		return fmt.Errorf("read %s: %w", e.cfg.Addr, readErr)
	}
}

func (e *Engine) readLoop(conn net.Conn) error {
	buf := make([]byte, readBufSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			e.cfg.Post(func() { e.proto.Feed(data) })
		}
		if err != nil {
			return err
		}
	}
}

func (e *Engine) sendWorker(ctx context.Context, conn net.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-e.outQ:
			if _, err := conn.Write(b); err != nil {
				e.log.Warn("write failed", "len", len(b), "err", err)
				_ = conn.Close()
				return
			}
		}
	}
}

// queueWriter hands protocol output to the send worker.
type queueWriter struct{ e *Engine }

func (w queueWriter) Write(p []byte) (int, error) {
	b := make([]byte, len(p))
	copy(b, p)
	select {
	case w.e.outQ <- b:
		return len(p), nil
	case <-w.e.done:
		return 0, net.ErrClosed
	}
}

// realm.Transport

// SendLine encodes line in the session encoding and sends it.
func (e *Engine) SendLine(line string) error {
	b, err := e.enc.NewEncoder().Bytes([]byte(line))
	if err != nil {
		return fmt.Errorf("encode %q: %w", line, err)
	}
	return e.proto.SendLine(b)
}

// Close drops the connection. The read loop then reports the loss.
func (e *Engine) Close() error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// telnet.Receiver

func (e *Engine) LineReceived(data []byte, end metaline.LineEnd) {
	text, err := e.enc.NewDecoder().Bytes(data)
	if err != nil {
		e.log.Debug("undecodable line", "len", len(data), "err", err)
		text = data
	}
	ml := e.cp.Decode(string(text))
	ml.LineEnd = end
	ml.Wrap = true
	if err := e.root.MetalineReceived(ml); err != nil {
		e.log.Debug("line processing interrupted", "err", err)
	}
}

func (e *Engine) GMCPReceived(payload []byte) {
	if err := e.root.GMCPReceived(payload); err != nil {
		e.log.Debug("gmcp processing interrupted", "err", err)
	}
}

func (e *Engine) ServerEcho(on bool) {
	e.root.ServerEcho(on)
}

// SendGMCP sends an out-of-band message. Call it on the loop.
func (e *Engine) SendGMCP(payload []byte) error {
	if !e.proto.RemoteEnabled(telnet.OptGMCP) {
		return realm.ErrNotConnected
	}
	return e.proto.SendGMCP(payload)
}
