package main

import (
	"errors"
	"log/slog"
	"strings"

	"mudlink/internal/gmcp"
	"mudlink/internal/realm"
	"mudlink/internal/state"
)

// commands interprets what the user types. Lines starting with "/" are
// client commands ("//" escapes a literal slash); everything else goes
// through the aliases.
type commands struct {
	root   *realm.Root
	docs   *state.GMCPStore
	reload func()
}

func (c *commands) handle(line string) {
	if !strings.HasPrefix(line, "/") || strings.HasPrefix(line, "//") {
		line = strings.TrimPrefix(line, "/")
		if err := c.root.ReceiveInput(line); err != nil && !errors.Is(err, realm.ErrInterrupt) {
			slog.Warn("input failed", "err", err)
		}
		return
	}

	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "quit":
		c.root.Close()
	case "reload":
		if c.reload != nil {
			c.reload()
		}
	case "macro":
		if !c.root.HasMacro(arg) {
			c.root.Write("No macro bound to "+arg+".", false)
			return
		}
		if _, err := c.root.MaybeDoMacro(arg); err != nil && !errors.Is(err, realm.ErrInterrupt) {
			slog.Warn("macro failed", "chord", arg, "err", err)
		}
	case "gmcp":
		c.showGMCP(arg)
	case "trace":
		switch arg {
		case "on":
			c.root.TraceOn()
		case "off":
			c.root.TraceOff()
		default:
			c.root.Write("Usage: /trace on|off", false)
		}
	default:
		c.root.Write("Unknown command /"+name+".", false)
	}
}

func (c *commands) showGMCP(pkg string) {
	if pkg == "" {
		pkgs := c.docs.Packages()
		if len(pkgs) == 0 {
			c.root.Write("No GMCP data.", false)
			return
		}
		c.root.Write("GMCP packages: "+strings.Join(pkgs, ", "), false)
		return
	}
	raw := c.docs.Get(pkg)
	if raw == "" {
		c.root.Write("No GMCP data for "+pkg+".", false)
		return
	}
	for _, l := range strings.Split(gmcp.Format(raw), "\n") {
		c.root.Write(l, false)
	}
}
