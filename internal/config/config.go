package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/text/encoding/htmlindex"
)

const (
	defaultConfigName = "config"
)

type Config struct {
	Host           string
	Port           int
	Encoding       string
	ConnectTimeout time.Duration

	FixReversedLineEndings bool
	MCCP                   bool
	GMCP                   bool

	Width    int
	Channels []string

	ModulePath  string
	ModuleWatch bool

	StatusPort int

	// NDJSONPath enables session telemetry when set.
	NDJSONPath string

	Debug bool
}

// Addr is the dial address of the server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// flagKeys maps command-line flags to the keys they override.
var flagKeys = map[string]string{
	"host":     "server.host",
	"port":     "server.port",
	"encoding": "server.encoding",
	"module":   "module.path",
	"width":    "display.width",
	"debug":    "debug",
}

// Load reads configuration from defaults, an optional config file, ML_*
// environment variables and flags, in increasing priority. flags may be
// nil. configFile, when set, replaces the config.yaml search.
func Load(flags *pflag.FlagSet, configFile string) (Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(defaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config")
	}

	v.SetEnvPrefix("ML")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 23)
	v.SetDefault("server.encoding", "utf-8")
	v.SetDefault("server.connect_timeout", 15*time.Second)

	v.SetDefault("telnet.fix_reversed_line_endings", true)
	v.SetDefault("telnet.mccp", true)
	v.SetDefault("telnet.gmcp", true)

	v.SetDefault("display.width", 100)
	v.SetDefault("display.channels", []string{"main"})

	v.SetDefault("module.path", "")
	v.SetDefault("module.watch", false)

	v.SetDefault("status.port", 0)
	v.SetDefault("telemetry.ndjson_path", "")
	v.SetDefault("debug", false)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// The file is optional unless named explicitly.
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		Host:                   strings.TrimSpace(v.GetString("server.host")),
		Port:                   v.GetInt("server.port"),
		Encoding:               strings.TrimSpace(v.GetString("server.encoding")),
		ConnectTimeout:         v.GetDuration("server.connect_timeout"),
		FixReversedLineEndings: v.GetBool("telnet.fix_reversed_line_endings"),
		MCCP:                   v.GetBool("telnet.mccp"),
		GMCP:                   v.GetBool("telnet.gmcp"),
		Width:                  v.GetInt("display.width"),
		Channels:               v.GetStringSlice("display.channels"),
		ModulePath:             strings.TrimSpace(v.GetString("module.path")),
		ModuleWatch:            v.GetBool("module.watch"),
		StatusPort:             v.GetInt("status.port"),
		NDJSONPath:             strings.TrimSpace(v.GetString("telemetry.ndjson_path")),
		Debug:                  v.GetBool("debug"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	if cfg.NDJSONPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.NDJSONPath), 0o755); err != nil {
			return Config{}, fmt.Errorf("create telemetry dir: %w", err)
		}
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Host == "" {
		return fmt.Errorf("server.host must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Port)
	}
	if _, err := htmlindex.Get(c.Encoding); err != nil {
		return fmt.Errorf("invalid server.encoding %q: %w", c.Encoding, err)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("server.connect_timeout must be positive, got %s", c.ConnectTimeout)
	}
	if c.Width < 0 {
		return fmt.Errorf("invalid display.width %d", c.Width)
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("display.channels must not be empty")
	}
	if c.StatusPort < 0 || c.StatusPort > 65535 {
		return fmt.Errorf("invalid status.port %d", c.StatusPort)
	}
	if c.ModuleWatch && c.ModulePath == "" {
		return fmt.Errorf("module.watch needs module.path")
	}
	return nil
}
