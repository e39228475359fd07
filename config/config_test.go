package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-serialhub/logger"
	"github.com/arloliu/go-serialhub/serialport"
)

const sample = `
ports:
  - name: APPLE2
    port: COM2
    baud: 115200
    rtscts: true
    ansi: false
  - name: C64
    port: COM4
    baud: 2400
    parity: even
    data_bits: 7
    stop_bits: 2
directory:
  - name: Local Board
    host: 127.0.0.1
    port: 2323
dirs:
  files: /srv/hub/files
bridge:
  port_template: /dev/ttyUSB%d
  line_mode: true
timing:
  retry_delay: 2s
  dial_timeout: 15
`

func TestParse(t *testing.T) {
	require := require.New(t)

	cfg, err := Parse([]byte(sample))
	require.NoError(err)
	require.NoError(cfg.Validate())

	require.Len(cfg.Ports, 2)
	require.Equal("/srv/hub/files", cfg.Dirs.Files)
	require.Equal("text", cfg.Dirs.Text)
	require.Equal("/dev/ttyUSB%d", cfg.Bridge.PortTemplate)
	require.True(cfg.Bridge.LineMode)
	require.Equal(2*time.Second, cfg.Timing.RetryDelay.Std())
	require.Equal(15*time.Second, cfg.Timing.DialTimeout.Std())
	require.Equal(time.Second, cfg.Timing.SurrenderPoll.Std())

	ports, err := cfg.PortConfigs()
	require.NoError(err)
	require.Len(ports, 2)

	apple := ports[0]
	require.Equal("APPLE2", apple.Name())
	require.Equal("COM2", apple.ID())
	require.Equal(115200, apple.BaudRate())
	require.True(apple.HardwareFlowControl())
	require.False(apple.ANSI())

	c64 := ports[1]
	require.Equal(serialport.ParityEven, c64.Parity())
	require.Equal(7, c64.DataBits())
	require.Equal(2, c64.StopBits())
	require.True(c64.ANSI())
	require.Equal("COM4 2400 7E2", c64.String())
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse([]byte("ports: []\nmodem: hayes\n"))
	require.Error(t, err)
}

func TestParse_BadDuration(t *testing.T) {
	_, err := Parse([]byte("timing:\n  retry_delay: soon\n"))
	require.Error(t, err)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{name: "no ports", mutate: func(c *Config) { c.Ports = nil }, field: "ports"},
		{name: "empty port", mutate: func(c *Config) { c.Ports[0].Port = " " }, field: "ports[0]"},
		{name: "bad baud", mutate: func(c *Config) { c.Ports[1].Baud = -1 }, field: "ports[1]"},
		{name: "bad parity", mutate: func(c *Config) { c.Ports[0].Parity = "X" }, field: "ports[0]"},
		{name: "duplicate", mutate: func(c *Config) { c.Ports[1].Port = "COM2" }, field: "ports[1].port"},
		{name: "directory host", mutate: func(c *Config) { c.Directory[0].Host = "" }, field: "directory[0].host"},
		{name: "directory port", mutate: func(c *Config) { c.Directory[0].Port = 70000 }, field: "directory[0].port"},
		{name: "notes dir", mutate: func(c *Config) { c.Dirs.Notes = "" }, field: "dirs.notes"},
		{name: "template", mutate: func(c *Config) { c.Bridge.PortTemplate = "COM" }, field: "bridge.port_template"},
		{name: "template verbs", mutate: func(c *Config) { c.Bridge.PortTemplate = "%s%d" }, field: "bridge.port_template"},
		{name: "timing", mutate: func(c *Config) { c.Timing.SurrenderPoll = 0 }, field: "timing.surrender_poll"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(sample))
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			var cerr *Error
			require.True(t, errors.As(err, &cerr), "got %v", err)
			assert.Equal(t, tt.field, cerr.Field)
			assert.Contains(t, cerr.Error(), "config: "+tt.field)
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HUB_FILES_DIR", "/tmp/f")
	t.Setenv("HUB_TEXT_DIR", "/tmp/t")
	t.Setenv("HUB_NOTES_DIR", "/tmp/n")
	t.Setenv("HUB_BRIDGE_TEMPLATE", "/dev/ttyACM%d")
	t.Setenv("HUB_BRIDGE_LINE_MODE", "yes")
	t.Setenv("HUB_DIAL_TIMEOUT", "30s")

	cfg := Default()
	LoadFromEnv(cfg)

	assert.Equal(t, Dirs{Files: "/tmp/f", Text: "/tmp/t", Notes: "/tmp/n"}, cfg.Dirs)
	assert.Equal(t, "/dev/ttyACM%d", cfg.Bridge.PortTemplate)
	assert.True(t, cfg.Bridge.LineMode)
	assert.Equal(t, 30*time.Second, cfg.Timing.DialTimeout.Std())
}

func TestLoadFromEnv_IgnoresMalformed(t *testing.T) {
	t.Setenv("HUB_DIAL_TIMEOUT", "later")
	t.Setenv("HUB_BRIDGE_LINE_MODE", "")

	cfg := Default()
	cfg.Bridge.LineMode = true
	LoadFromEnv(cfg)

	assert.Equal(t, Default().Timing.DialTimeout, cfg.Timing.DialTimeout)
	assert.True(t, cfg.Bridge.LineMode)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	t.Setenv("HUB_NOTES_DIR", filepath.Join(dir, "my-notes"))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "my-notes"), cfg.Dirs.Notes)

	cfg.Dirs.Files = filepath.Join(dir, "files")
	cfg.Dirs.Text = filepath.Join(dir, "text")
	require.NoError(t, cfg.EnsureDirs())
	for _, d := range []string{cfg.Dirs.Files, cfg.Dirs.Text, cfg.Dirs.Notes} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}

	env := cfg.SessionEnv(logger.NewMockLogger().Permissive())
	require.NotNil(t, env.Registry)
	require.NotNil(t, env.Opener)
	require.Equal(t, "127.0.0.1:2323", env.Directory[0].Address())
	require.True(t, env.BridgeLineMode)
	require.Equal(t, 15*time.Second, env.DialTimeout)
	require.NoError(t, env.Validate())

	require.Len(t, cfg.HubOptions(), 3)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestPath(t *testing.T) {
	t.Setenv("HUB_CONFIG", "")
	assert.Equal(t, DefaultPath, Path())

	t.Setenv("HUB_CONFIG", "/etc/serialhub.yaml")
	assert.Equal(t, "/etc/serialhub.yaml", Path())
}
