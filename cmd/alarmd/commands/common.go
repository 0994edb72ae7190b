package commands

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/alarmd/internal/client"
	"git.home.luguber.info/inful/alarmd/internal/config"
	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
	"git.home.luguber.info/inful/alarmd/internal/observability"
)

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
	Out    io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"alarmd.yaml" env:"ALARMD_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`
	API     string           `short:"a" name:"api" help:"Daemon control API address (defaults to http.listen from the config)" env:"ALARMD_API"`
	JSON    bool             `help:"Print raw JSON responses"`

	Daemon   DaemonCmd   `cmd:"" help:"Run the alarm daemon"`
	Init     InitCmd     `cmd:"" help:"Initialize a new configuration file"`
	Alarm    AlarmCmd    `cmd:"" help:"Manage alarms"`
	Session  SessionCmd  `cmd:"" help:"Inspect and control the ringing alarm"`
	Trigger  TriggerCmd  `cmd:"" help:"Ring an alarm now"`
	Boot     BootCmd     `cmd:"" help:"Send the boot-completed signal (reschedule every enabled alarm)"`
	Next     NextCmd     `cmd:"" help:"Show the next scheduled alarm"`
	Health   HealthCmd   `cmd:"" help:"Show daemon health"`
	Settings SettingsCmd `cmd:"" help:"Show or change user settings"`

	cfg    *config.Config `kong:"-"`
	cfgErr error          `kong:"-"`
}

// AfterApply runs after flag parsing; it loads the config once and sets up logging.
func (c *CLI) AfterApply() error {
	c.cfg, c.cfgErr = config.Load(c.Config)
	if errors.Is(c.cfgErr, config.ErrConfigNotFound) {
		c.cfg, c.cfgErr = config.Default(), nil
	}
	logCfg := config.Default().Log
	if c.cfgErr == nil {
		logCfg = c.cfg.Log
	}
	slog.SetDefault(slog.New(observability.NewContextHandler(newHandler(os.Stderr, logCfg, c.Verbose))))
	return nil
}

func newHandler(w io.Writer, lc config.LogConfig, verbose bool) slog.Handler {
	level := lc.Level.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == config.LogFormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// LoadedConfig returns the configuration read during AfterApply.
func (c *CLI) LoadedConfig() (*config.Config, error) {
	if c.cfgErr != nil {
		return nil, c.cfgErr
	}
	if c.cfg == nil {
		return config.Default(), nil
	}
	return c.cfg, nil
}

// Client builds a control API client. The address comes from --api, falling back to
// the configured listen address with wildcard hosts rewritten to loopback.
func (c *CLI) Client() *client.Client {
	if c.API != "" {
		return client.New(c.API)
	}
	listen := config.DefaultListen
	if c.cfg != nil && c.cfgErr == nil {
		listen = c.cfg.HTTP.Listen
	}
	return client.New(dialAddr(listen))
}

func dialAddr(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
