package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	d := cfg.ToDispatchConfig()
	assert.Equal(t, 400*time.Millisecond, d.ClickTimeout)
	assert.Equal(t, 100*time.Millisecond, d.TapDuration)
	assert.Equal(t, 200*time.Millisecond, d.DimDuration)
	assert.Equal(t, 50*time.Millisecond, d.HapticDuration)
	assert.True(t, d.Haptic)
}

func TestLoadConfigFile_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "headtap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
input:
  devices: [/dev/input/event7]
  auto_discover: false
clicks:
  timeout_ms: 300
tap:
  backend: minitouch
  minitouch:
    addr: 127.0.0.1:2222
    pressure: 80
    screen_width: 1080
    screen_height: 2340
`), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"/dev/input/event7"}, cfg.Input.Devices)
	assert.False(t, cfg.Input.AutoDiscover)
	assert.Equal(t, 300, cfg.Clicks.TimeoutMS)
	assert.Equal(t, tapBackendMinitouch, cfg.Tap.Backend)
	assert.Equal(t, "127.0.0.1:2222", cfg.Tap.Minitouch.Addr)
	assert.Equal(t, 80, cfg.Tap.Minitouch.Pressure)
	assert.Equal(t, 1080, cfg.Tap.Minitouch.ScreenWidth)
	assert.Equal(t, 2340, cfg.Tap.Minitouch.ScreenHeight)

	// Untouched sections keep their defaults.
	assert.Equal(t, 100, cfg.Tap.DurationMS)
	assert.Equal(t, defaultHTTPPort, cfg.HTTP.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigFile_RejectsUnknownFields(t *testing.T) {
	_, err := parseConfig([]byte("clicks:\n  timeout: 300\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestLoadConfigFile_RejectsTrailingDocument(t *testing.T) {
	_, err := parseConfig([]byte("logging:\n  level: debug\n---\nlogging:\n  level: info\n"))
	require.Error(t, err)
}

func TestLoadConfigFile_EmptyPath(t *testing.T) {
	_, err := LoadConfigFile("")
	require.Error(t, err)
}

func TestFlagOverrides_Apply(t *testing.T) {
	cfg := DefaultConfig()
	dev := "/dev/input/event3"
	timeout := 250
	haptic := false
	port := 0

	FlagOverrides{
		InputDevice:    &dev,
		ClickTimeoutMS: &timeout,
		Haptic:         &haptic,
		HTTPPort:       &port,
	}.Apply(&cfg)

	assert.Equal(t, []string{dev}, cfg.Input.Devices)
	assert.Equal(t, 250, cfg.Clicks.TimeoutMS)
	assert.False(t, cfg.Feedback.Haptic)
	assert.Equal(t, 0, cfg.HTTP.Port)
	// Nil overrides leave values alone.
	assert.Equal(t, tapBackendADB, cfg.Tap.Backend)
}

func TestConfig_Validate(t *testing.T) {
	cases := map[string]func(*Config){
		"no devices without discovery": func(c *Config) { c.Input.AutoDiscover = false; c.Input.Devices = nil },
		"empty device path":            func(c *Config) { c.Input.Devices = []string{""} },
		"zero timeout":                 func(c *Config) { c.Clicks.TimeoutMS = 0 },
		"unknown backend":              func(c *Config) { c.Tap.Backend = "uinput" },
		"minitouch without addr":       func(c *Config) { c.Tap.Backend = tapBackendMinitouch; c.Tap.Minitouch.Addr = "" },
		"half a screen size":           func(c *Config) { c.Tap.Backend = tapBackendMinitouch; c.Tap.Minitouch.ScreenWidth = 1080 },
		"zero tap duration":            func(c *Config) { c.Tap.DurationMS = 0 },
		"negative dim":                 func(c *Config) { c.Feedback.DimMS = -1 },
		"empty socket":                 func(c *Config) { c.IPC.SocketPath = "" },
		"bad port":                     func(c *Config) { c.HTTP.Port = 70000 },
		"empty log level":              func(c *Config) { c.Logging.Level = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, "", ExpandPath(""))
	assert.Equal(t, "/etc/headtap.yaml", ExpandPath("/etc/headtap.yaml"))
	assert.Equal(t, home, ExpandPath("~"))
	assert.Equal(t, filepath.Join(home, ".config/headtap/targets.json"), ExpandPath("~/.config/headtap/targets.json"))
}

func TestParseLogLevel(t *testing.T) {
	for _, s := range []string{"error", "warn", "warning", "info", "DEBUG"} {
		_, err := parseLogLevel(s)
		assert.NoError(t, err, s)
	}
	_, err := parseLogLevel("verbose")
	assert.Error(t, err)
}
