package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ML_SERVER_HOST", "mud.example.org")

	cfg, err := Load(nil, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Host != "mud.example.org" || cfg.Port != 23 {
		t.Fatalf("addr=%s", cfg.Addr())
	}
	if cfg.Encoding != "utf-8" || cfg.ConnectTimeout != 15*time.Second {
		t.Fatalf("encoding=%q timeout=%s", cfg.Encoding, cfg.ConnectTimeout)
	}
	if !cfg.FixReversedLineEndings || !cfg.MCCP || !cfg.GMCP {
		t.Fatalf("telnet defaults=%+v", cfg)
	}
	if cfg.Width != 100 || len(cfg.Channels) != 1 || cfg.Channels[0] != "main" {
		t.Fatalf("display width=%d channels=%v", cfg.Width, cfg.Channels)
	}
	if cfg.StatusPort != 0 || cfg.NDJSONPath != "" || cfg.ModuleWatch {
		t.Fatalf("optional features on: %+v", cfg)
	}
}

func TestLoadRequiresHost(t *testing.T) {
	if _, err := Load(nil, ""); err == nil {
		t.Fatalf("expected error without server.host")
	}
}

func TestLoadRejectsUnknownEncoding(t *testing.T) {
	t.Setenv("ML_SERVER_HOST", "localhost")
	t.Setenv("ML_SERVER_ENCODING", "klingon-8")
	if _, err := Load(nil, ""); err == nil {
		t.Fatalf("expected encoding error")
	}
}

func TestLoadWatchNeedsModule(t *testing.T) {
	t.Setenv("ML_SERVER_HOST", "localhost")
	t.Setenv("ML_MODULE_WATCH", "true")
	if _, err := Load(nil, ""); err == nil {
		t.Fatalf("expected module.watch error")
	}
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Setenv("ML_SERVER_HOST", "env.example.org")
	t.Setenv("ML_SERVER_PORT", "4000")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("host", "", "")
	fs.Int("port", 0, "")
	fs.Int("width", 0, "")
	if err := fs.Parse([]string{"--host", "flag.example.org", "--width", "0"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	cfg, err := Load(fs, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Host != "flag.example.org" {
		t.Fatalf("host=%q", cfg.Host)
	}
	// Unchanged flags fall through to the environment.
	if cfg.Port != 4000 {
		t.Fatalf("port=%d", cfg.Port)
	}
	if cfg.Width != 0 {
		t.Fatalf("width=%d", cfg.Width)
	}
}

func TestLoadExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mud.yaml")
	body := "server:\n  host: file.example.org\n  port: 7777\ndisplay:\n  channels: [main, chat]\ntelemetry:\n  ndjson_path: " +
		filepath.Join(dir, "logs", "session.ndjson") + "\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr() != "file.example.org:7777" {
		t.Fatalf("addr=%s", cfg.Addr())
	}
	if len(cfg.Channels) != 2 || cfg.Channels[1] != "chat" {
		t.Fatalf("channels=%v", cfg.Channels)
	}
	if _, err := os.Stat(filepath.Join(dir, "logs")); err != nil {
		t.Fatalf("telemetry dir not created: %v", err)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Setenv("ML_SERVER_HOST", "localhost")
	if _, err := Load(nil, filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}
