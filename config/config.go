// Package config loads the hub configuration.
//
// Settings come from a YAML file, overlaid by HUB_* environment variables.
// There are no command-line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-serialhub/hub"
	"github.com/arloliu/go-serialhub/logger"
	"github.com/arloliu/go-serialhub/serialport"
	"github.com/arloliu/go-serialhub/session"
)

// DefaultPath is the configuration file used when HUB_CONFIG is not set.
const DefaultPath = "serialhub.yaml"

// Config is the complete hub configuration.
type Config struct {
	Ports     []Port           `yaml:"ports"`
	Directory []DirectoryEntry `yaml:"directory"`
	Dirs      Dirs             `yaml:"dirs"`
	Bridge    Bridge           `yaml:"bridge"`
	Timing    Timing           `yaml:"timing"`
}

// Port is one serial line served by the hub.
type Port struct {
	Name     string `yaml:"name"`
	Port     string `yaml:"port"`
	Baud     int    `yaml:"baud"`
	DataBits int    `yaml:"data_bits"`
	Parity   string `yaml:"parity"`
	StopBits int    `yaml:"stop_bits"`
	XonXoff  bool   `yaml:"xonxoff"`
	RTSCTS   bool   `yaml:"rtscts"`
	// ANSI defaults to true when omitted.
	ANSI *bool `yaml:"ansi"`
}

// DirectoryEntry is one dial target of the Bulletin Boards directory.
type DirectoryEntry struct {
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Dirs are the well-known directories.
type Dirs struct {
	Files string `yaml:"files"`
	Text  string `yaml:"text"`
	Notes string `yaml:"notes"`
}

type Bridge struct {
	// PortTemplate maps a bridge port number to a device, e.g. "COM%d".
	PortTemplate string `yaml:"port_template"`
	LineMode     bool   `yaml:"line_mode"`
}

type Timing struct {
	RetryDelay     Duration `yaml:"retry_delay"`
	SurrenderPoll  Duration `yaml:"surrender_poll"`
	DialTimeout    Duration `yaml:"dial_timeout"`
	StatusInterval Duration `yaml:"status_interval"`
}

// Duration is a time.Duration written as a Go duration string ("5s") or
// as a number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	v, err := parseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(v)

	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Error is a validation failure of one configuration field.
type Error struct {
	Field  string
	Value  any
	Reason string
}

func (e *Error) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
	}

	return fmt.Sprintf("config: %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Default returns the configuration used for fields the file leaves out.
func Default() *Config {
	return &Config{
		Dirs: Dirs{
			Files: "files",
			Text:  "text",
			Notes: "notes",
		},
		Bridge: Bridge{PortTemplate: session.DefaultBridgeTemplate()},
		Timing: Timing{
			RetryDelay:     Duration(hub.DefaultRetryDelay),
			SurrenderPoll:  Duration(hub.DefaultSurrenderPoll),
			DialTimeout:    Duration(session.DefaultDialTimeout),
			StatusInterval: Duration(hub.DefaultStatusLogInterval),
		},
	}
}

// Path returns the configuration file path from HUB_CONFIG.
func Path() string {
	if p := os.Getenv("HUB_CONFIG"); p != "" {
		return p
	}

	return DefaultPath
}

// Load reads the file at path over the defaults, applies the environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	LoadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	return cfg, nil
}

// Validate checks every field and returns the first problem as an *Error.
func (c *Config) Validate() error {
	if len(c.Ports) == 0 {
		return &Error{Field: "ports", Reason: "at least one port is required"}
	}

	seen := make(map[string]int, len(c.Ports))
	for i, p := range c.Ports {
		field := fmt.Sprintf("ports[%d]", i)

		pc, err := p.portConfig()
		if err != nil {
			return &Error{Field: field, Value: p.Port, Reason: err.Error()}
		}

		if j, ok := seen[pc.Key()]; ok {
			return &Error{Field: field + ".port", Value: p.Port, Reason: fmt.Sprintf("same device as ports[%d]", j)}
		}
		seen[pc.Key()] = i
	}

	for i, e := range c.Directory {
		field := fmt.Sprintf("directory[%d]", i)
		if strings.TrimSpace(e.Name) == "" {
			return &Error{Field: field + ".name", Reason: "name is required"}
		}
		if strings.TrimSpace(e.Host) == "" {
			return &Error{Field: field + ".host", Reason: "host is required"}
		}
		if e.Port < 1 || e.Port > 65535 {
			return &Error{Field: field + ".port", Value: e.Port, Reason: "must be in 1..65535"}
		}
	}

	dirs := []struct{ field, dir string }{
		{"dirs.files", c.Dirs.Files},
		{"dirs.text", c.Dirs.Text},
		{"dirs.notes", c.Dirs.Notes},
	}
	for _, d := range dirs {
		if strings.TrimSpace(d.dir) == "" {
			return &Error{Field: d.field, Reason: "directory is required"}
		}
	}

	if strings.Count(c.Bridge.PortTemplate, "%d") != 1 || strings.Count(c.Bridge.PortTemplate, "%") != 1 {
		return &Error{Field: "bridge.port_template", Value: c.Bridge.PortTemplate, Reason: "must contain exactly one %d"}
	}

	timings := []struct {
		field string
		d     Duration
	}{
		{"timing.retry_delay", c.Timing.RetryDelay},
		{"timing.surrender_poll", c.Timing.SurrenderPoll},
		{"timing.dial_timeout", c.Timing.DialTimeout},
		{"timing.status_interval", c.Timing.StatusInterval},
	}
	for _, tm := range timings {
		if tm.d <= 0 {
			return &Error{Field: tm.field, Value: tm.d.Std(), Reason: "must be positive"}
		}
	}

	return nil
}

func (p Port) portConfig() (*serialport.PortConfig, error) {
	opts := []serialport.PortOption{serialport.WithName(p.Name)}

	if p.Baud != 0 {
		opts = append(opts, serialport.WithBaudRate(p.Baud))
	}
	if p.DataBits != 0 {
		opts = append(opts, serialport.WithDataBits(p.DataBits))
	}
	if p.StopBits != 0 {
		opts = append(opts, serialport.WithStopBits(p.StopBits))
	}

	parity, err := serialport.ParseParity(p.Parity)
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		serialport.WithParity(parity),
		serialport.WithSoftwareFlowControl(p.XonXoff),
		serialport.WithHardwareFlowControl(p.RTSCTS),
	)
	if p.ANSI != nil {
		opts = append(opts, serialport.WithANSI(*p.ANSI))
	}

	return serialport.NewPortConfig(p.Port, opts...)
}

// PortConfigs returns the line configurations in file order.
func (c *Config) PortConfigs() ([]*serialport.PortConfig, error) {
	out := make([]*serialport.PortConfig, 0, len(c.Ports))
	for i, p := range c.Ports {
		pc, err := p.portConfig()
		if err != nil {
			return nil, &Error{Field: fmt.Sprintf("ports[%d]", i), Value: p.Port, Reason: err.Error()}
		}
		out = append(out, pc)
	}

	return out, nil
}

// EnsureDirs creates the well-known directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Dirs.Files, c.Dirs.Text, c.Dirs.Notes} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}

	return nil
}

// SessionEnv builds the environment shared by all sessions, with a new
// registry and a serial opener backed by the host's serial ports.
func (c *Config) SessionEnv(l logger.Logger) *session.Env {
	dir := make([]session.DirectoryEntry, len(c.Directory))
	for i, e := range c.Directory {
		dir[i] = session.DirectoryEntry{Name: e.Name, Host: e.Host, Port: e.Port}
	}

	return &session.Env{
		Registry:       serialport.NewRegistry(l),
		Opener:         serialport.NewSerialOpener(l),
		Logger:         l,
		Directory:      dir,
		FilesDir:       c.Dirs.Files,
		TextDir:        c.Dirs.Text,
		NotesDir:       c.Dirs.Notes,
		BridgeTemplate: c.Bridge.PortTemplate,
		BridgeLineMode: c.Bridge.LineMode,
		DialTimeout:    c.Timing.DialTimeout.Std(),
	}
}

// HubOptions returns the worker and hub timing options.
func (c *Config) HubOptions() []hub.Option {
	return []hub.Option{
		hub.WithRetryDelay(c.Timing.RetryDelay.Std()),
		hub.WithSurrenderPollInterval(c.Timing.SurrenderPoll.Std()),
		hub.WithStatusLogInterval(c.Timing.StatusInterval.Std()),
	}
}
