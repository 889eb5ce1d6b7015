package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"mudlink/internal/client"
	"mudlink/internal/config"
	"mudlink/internal/display"
	"mudlink/internal/gmcp"
	"mudlink/internal/lookup"
	"mudlink/internal/loop"
	"mudlink/internal/luamod"
	"mudlink/internal/packetlog"
	"mudlink/internal/realm"
	"mudlink/internal/state"
	"mudlink/internal/status"
	"mudlink/internal/telnet"
)

type session struct {
	cfg   config.Config
	runID string

	loop      *loop.Loop
	root      *realm.Root
	engine    *client.Engine
	rt        *luamod.Runtime
	fetcher   *lookup.Fetcher
	telemetry *packetlog.Logger
	store     *state.SessionStore
	docs      *state.GMCPStore
	cmds      *commands
}

func newSession(ctx context.Context, cfg config.Config, runID string) (*session, error) {
	s := &session{
		cfg:   cfg,
		runID: runID,
		loop:  loop.New(),
		store: state.NewSessionStore(cfg.Addr()),
		docs:  state.NewGMCPStore(),
	}

	if cfg.NDJSONPath != "" {
		pl, err := packetlog.New(cfg.NDJSONPath, runID)
		if err != nil {
			return nil, fmt.Errorf("open ndjson telemetry file %s: %w", cfg.NDJSONPath, err)
		}
		s.telemetry = pl
		slog.Info("ndjson telemetry enabled", "path", cfg.NDJSONPath)
	} else {
		slog.Info("ndjson telemetry disabled (default); set ML_TELEMETRY_NDJSON_PATH to enable")
	}

	opts := realm.Options{
		Width:     cfg.Width,
		Scheduler: s.loop,
		Session:   s.store,
		GMCP:      s.docs,
		Logger:    slog.Default(),
	}
	if cfg.ModulePath != "" {
		s.rt = luamod.NewRuntime(cfg.ModulePath)
		opts.MainModule = s.rt.Main
	}
	s.root = realm.NewRoot(nil, opts)
	s.root.AddDisplay(display.NewConsole(os.Stdout, display.Options{Channels: cfg.Channels}))

	s.fetcher = lookup.New(ctx, s.loop.Post, lookup.Options{Logger: slog.Default()})
	if s.rt != nil {
		s.rt.SetFetcher(s.fetcher)
		// The loop is not running yet, so loading here is still single-threaded.
		if err := s.root.ReloadMainModule(); err != nil {
			s.close()
			return nil, fmt.Errorf("load module %s: %w", cfg.ModulePath, err)
		}
		slog.Info("module loaded", "module", cfg.ModulePath, "triggers", len(s.root.Triggers()), "aliases", len(s.root.Aliases()))
	}
	s.cmds = &commands{root: s.root, docs: s.docs, reload: s.reload}

	tc := telnet.Config{
		MCCP: cfg.MCCP,
		GMCP: cfg.GMCP,
	}
	if cfg.FixReversedLineEndings {
		tc.Fixer = telnet.NewReversedCRLF()
	}
	if cfg.GMCP {
		hs, err := gmcp.Handshake("mudlink", version, gmcp.DefaultSupports)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("gmcp handshake: %w", err)
		}
		tc.Handshake = hs
	}
	eng, err := client.NewEngine(client.Config{
		Addr:           cfg.Addr(),
		Encoding:       cfg.Encoding,
		ConnectTimeout: cfg.ConnectTimeout,
		Telnet:         tc,
		Post:           s.loop.Post,
		Root:           s.root,
		Telemetry:      s.telemetry,
		Logger:         slog.Default(),
	})
	if err != nil {
		s.close()
		return nil, fmt.Errorf("client engine init: %w", err)
	}
	s.engine = eng

	if cfg.StatusPort != 0 {
		srv, err := status.Start(ctx, fmt.Sprintf(":%d", cfg.StatusPort), s.statusData, s.docs)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("status server start failed: %w", err)
		}
		slog.Info("status endpoint enabled", "addr", srv.Addr())
	}
	return s, nil
}

func (s *session) statusData() status.Data {
	d := status.FromSnapshot(s.store.Snapshot(), s.docs.Packages())
	d.Version = version
	d.RunID = s.runID
	d.ServerTime = time.Now().UTC().Format(time.RFC3339)
	return d
}

// run drives the session until the connection ends.
func (s *session) run(ctx context.Context) error {
	if s.cfg.ModuleWatch && s.rt != nil {
		go func() {
			if err := luamod.Watch(ctx, s.cfg.ModulePath, s.loop.Post, s.reload); err != nil {
				slog.Warn("module watch disabled", "module", s.cfg.ModulePath, "err", err)
			}
		}()
	}
	go s.readInput(os.Stdin)

	engineErr := make(chan error, 1)
	go func() {
		err := s.engine.Run(ctx)
		s.loop.Post(func() {
			s.root.Close()
			s.loop.Stop()
		})
		engineErr <- err
	}()

	if err := s.loop.Run(context.Background()); err != nil && !errors.Is(err, loop.ErrStopped) {
		return err
	}
	return <-engineErr
}

// readInput posts each line typed on r to the loop. End of input closes
// the session.
func (s *session) readInput(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		s.loop.Post(func() { s.cmds.handle(line) })
	}
	if err := sc.Err(); err != nil {
		slog.Warn("stdin read failed", "err", err)
	}
	s.loop.Post(s.root.Close)
}

func (s *session) reload() {
	if err := s.root.ReloadMainModule(); err != nil {
		slog.Error("module reload failed", "module", s.cfg.ModulePath, "err", err)
		s.root.Write("Module reload failed: "+err.Error(), false)
		return
	}
	slog.Info("module reloaded", "module", s.cfg.ModulePath)
	s.root.CWrite("<green>Module reloaded.", false)
}

func (s *session) close() {
	if s.fetcher != nil {
		s.fetcher.Close()
	}
	if s.rt != nil {
		s.rt.Close()
	}
	if s.telemetry != nil {
		_ = s.telemetry.Close()
	}
}
