// Package config loads the front server configuration: an optional YAML file
// first, then command-line flags on top.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cormons/controlstock/internal/legacy"
)

// Config is the front server configuration.
type Config struct {
	Addr      string `yaml:"addr"`
	DB        string `yaml:"db"`
	Log       string `yaml:"log"`
	LoginURL  string `yaml:"login_url"`
	LogoutURL string `yaml:"logout_url"`
	Version   string `yaml:"version"`
	Legacy    Legacy `yaml:"legacy"`
}

// Legacy configures the legacy backend client.
type Legacy struct {
	Enabled bool          `yaml:"enabled"`
	Addr    string        `yaml:"addr"`
	Timeout time.Duration `yaml:"timeout"`
	MaxRead int           `yaml:"max_read"`
	Cipher  bool          `yaml:"cipher"`
	View    string        `yaml:"view"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Addr:      "127.0.0.1:8003",
		DB:        "controlstock.sqlite3",
		LoginURL:  "http://login.cormonsapp.com/login/",
		LogoutURL: "http://login.cormonsapp.com/logout/",
		Version:   "1.0.0",
		Legacy: Legacy{
			Enabled: true,
			Timeout: legacy.DefaultTimeout,
			MaxRead: legacy.DefaultMaxReply,
			View:    legacy.DefaultView,
		},
	}
}

// LoadFile overlays the YAML file at path onto cfg.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Usage is the flag help text.
const Usage = `Usage: server [flags]

Flags:
  -c, -config <path>      YAML config file, applied before flags
  -a, -addr <host:port>   listen address (default: 127.0.0.1:8003)
  -d, -db <path>          SQLite database path (default: controlstock.sqlite3)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -login-url <url>        login portal URL for expired sessions
  -logout-url <url>       logout URL
  -legacy-addr <addr>     legacy backend used when the session has no company config
  -legacy-timeout <dur>   legacy backend timeout (default: 10s)
  -legacy-cipher          encrypt legacy traffic
  -legacy-disabled        do not contact the legacy backend
  -h, -help               show this help and exit
`

// Parse builds the configuration from args. The config file, if named, is
// loaded first; flags given explicitly override it.
func Parse(args []string) (Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(os.Stdout, Usage) }

	var path string
	fs.StringVar(&path, "config", "", "")
	fs.StringVar(&path, "c", "", "")

	var addr, dbPath, logPath, loginURL, logoutURL, legacyAddr string
	fs.StringVar(&addr, "addr", "", "")
	fs.StringVar(&addr, "a", "", "")
	fs.StringVar(&dbPath, "db", "", "")
	fs.StringVar(&dbPath, "d", "", "")
	fs.StringVar(&logPath, "log", "", "")
	fs.StringVar(&logPath, "l", "", "")
	fs.StringVar(&loginURL, "login-url", "", "")
	fs.StringVar(&logoutURL, "logout-url", "", "")
	fs.StringVar(&legacyAddr, "legacy-addr", "", "")

	var timeout time.Duration
	fs.DurationVar(&timeout, "legacy-timeout", 0, "")
	var cipher, disabled bool
	fs.BoolVar(&cipher, "legacy-cipher", false, "")
	fs.BoolVar(&disabled, "legacy-disabled", false, "")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if addr != "" {
		cfg.Addr = addr
	}
	if dbPath != "" {
		cfg.DB = dbPath
	}
	if logPath != "" {
		cfg.Log = logPath
	}
	if loginURL != "" {
		cfg.LoginURL = loginURL
	}
	if logoutURL != "" {
		cfg.LogoutURL = logoutURL
	}
	if legacyAddr != "" {
		cfg.Legacy.Addr = legacyAddr
	}
	if set["legacy-timeout"] {
		cfg.Legacy.Timeout = timeout
	}
	if set["legacy-cipher"] {
		cfg.Legacy.Cipher = cipher
	}
	if set["legacy-disabled"] {
		cfg.Legacy.Enabled = !disabled
	}

	return cfg, cfg.Validate()
}

// Validate checks required values.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.DB == "" {
		return fmt.Errorf("db is required")
	}
	if c.LoginURL == "" {
		return fmt.Errorf("login_url is required")
	}
	if c.Legacy.Timeout <= 0 {
		return fmt.Errorf("legacy timeout must be positive")
	}
	return nil
}
