package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the headtap daemon.
//
// Defaults and validation live here so the rest of the code can assume a
// well-formed config. The file is the primary configuration surface; flags are
// small overrides on top of it.
type Config struct {
	Input    InputConfig    `yaml:"input"`
	Clicks   ClicksConfig   `yaml:"clicks"`
	Tap      TapConfig      `yaml:"tap"`
	Feedback FeedbackConfig `yaml:"feedback"`
	Targets  TargetsConfig  `yaml:"targets"`
	IPC      IPCConfig      `yaml:"ipc"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type InputConfig struct {
	Devices []string `yaml:"devices,omitempty"` // evdev devices to monitor

	// AutoDiscover adds every /dev/input/event* device that reports media keys.
	AutoDiscover bool `yaml:"auto_discover"`
}

type ClicksConfig struct {
	TimeoutMS int `yaml:"timeout_ms"`
}

type TapConfig struct {
	Backend    string          `yaml:"backend"` // "adb" or "minitouch"
	DurationMS int             `yaml:"duration_ms"`
	ADB        ADBConfig       `yaml:"adb"`
	Minitouch  MinitouchConfig `yaml:"minitouch"`
}

type ADBConfig struct {
	Path   string `yaml:"path"`
	Serial string `yaml:"serial,omitempty"`
}

type MinitouchConfig struct {
	Addr     string `yaml:"addr"`
	Pressure int    `yaml:"pressure"`

	// Screen size in pixels, natural orientation. Zero asks adb ("wm size").
	ScreenWidth  int `yaml:"screen_width,omitempty"`
	ScreenHeight int `yaml:"screen_height,omitempty"`
}

type FeedbackConfig struct {
	Haptic   bool `yaml:"haptic"`
	HapticMS int  `yaml:"haptic_ms"`
	DimMS    int  `yaml:"dim_ms"`
}

type TargetsConfig struct {
	File string `yaml:"file"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

const (
	tapBackendADB       = "adb"
	tapBackendMinitouch = "minitouch"
)

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Input: InputConfig{
			Devices:      nil,
			AutoDiscover: true,
		},
		Clicks: ClicksConfig{
			TimeoutMS: int(defaultClickTimeout / time.Millisecond),
		},
		Tap: TapConfig{
			Backend:    tapBackendADB,
			DurationMS: int(defaultTapDuration / time.Millisecond),
			ADB: ADBConfig{
				Path: "adb",
			},
			Minitouch: MinitouchConfig{
				Addr:     "127.0.0.1:1111",
				Pressure: 50,
			},
		},
		Feedback: FeedbackConfig{
			Haptic:   true,
			HapticMS: int(defaultHapticDuration / time.Millisecond),
			DimMS:    int(defaultDimDuration / time.Millisecond),
		},
		Targets: TargetsConfig{
			File: "", // resolved to the user config dir at startup
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocket,
		},
		HTTP: HTTPConfig{
			Port: defaultHTTPPort,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parseConfig(b)
}

func parseConfig(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides carries command-line overrides. Each pointer is applied only
// when non-nil; main.go decides which flags exist.
type FlagOverrides struct {
	InputDevice  *string
	AutoDiscover *bool

	ClickTimeoutMS *int

	TapBackend    *string
	TapDurationMS *int
	ADBPath       *string
	ADBSerial     *string
	MinitouchAddr *string

	Haptic *bool

	TargetsFile   *string
	IPCSocketPath *string
	HTTPPort      *int

	LogLevel *string
}

// Apply merges the overrides into cfg. A non-nil pointer is applied even if it
// holds a zero value.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.InputDevice != nil {
		cfg.Input.Devices = []string{*o.InputDevice}
	}
	if o.AutoDiscover != nil {
		cfg.Input.AutoDiscover = *o.AutoDiscover
	}
	if o.ClickTimeoutMS != nil {
		cfg.Clicks.TimeoutMS = *o.ClickTimeoutMS
	}
	if o.TapBackend != nil {
		cfg.Tap.Backend = *o.TapBackend
	}
	if o.TapDurationMS != nil {
		cfg.Tap.DurationMS = *o.TapDurationMS
	}
	if o.ADBPath != nil {
		cfg.Tap.ADB.Path = *o.ADBPath
	}
	if o.ADBSerial != nil {
		cfg.Tap.ADB.Serial = *o.ADBSerial
	}
	if o.MinitouchAddr != nil {
		cfg.Tap.Minitouch.Addr = *o.MinitouchAddr
	}
	if o.Haptic != nil {
		cfg.Feedback.Haptic = *o.Haptic
	}
	if o.TargetsFile != nil {
		cfg.Targets.File = *o.TargetsFile
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPPort != nil {
		cfg.HTTP.Port = *o.HTTPPort
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Input
	if len(c.Input.Devices) == 0 && !c.Input.AutoDiscover {
		return errors.New("input.devices must not be empty when input.auto_discover is false")
	}
	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}

	// Clicks
	if c.Clicks.TimeoutMS <= 0 || c.Clicks.TimeoutMS > 5000 {
		return errors.New("clicks.timeout_ms must be between 1 and 5000")
	}

	// Tap
	switch c.Tap.Backend {
	case tapBackendADB:
		if c.Tap.ADB.Path == "" {
			return errors.New("tap.adb.path must not be empty")
		}
	case tapBackendMinitouch:
		if c.Tap.Minitouch.Addr == "" {
			return errors.New("tap.minitouch.addr must not be empty")
		}
		if c.Tap.Minitouch.Pressure < 0 {
			return errors.New("tap.minitouch.pressure must be >= 0")
		}
		w, h := c.Tap.Minitouch.ScreenWidth, c.Tap.Minitouch.ScreenHeight
		if w < 0 || h < 0 || (w == 0) != (h == 0) {
			return errors.New("tap.minitouch.screen_width and screen_height must both be set (> 0) or both be 0")
		}
	default:
		return fmt.Errorf("tap.backend must be %q or %q", tapBackendADB, tapBackendMinitouch)
	}
	if c.Tap.DurationMS <= 0 {
		return errors.New("tap.duration_ms must be > 0")
	}

	// Feedback
	if c.Feedback.HapticMS < 0 {
		return errors.New("feedback.haptic_ms must be >= 0")
	}
	if c.Feedback.DimMS < 0 {
		return errors.New("feedback.dim_ms must be >= 0")
	}
	if c.Feedback.Haptic && c.Tap.ADB.Path == "" {
		// Haptics always go through adb, whatever the tap backend.
		return errors.New("feedback.haptic requires tap.adb.path")
	}

	// IPC / HTTP
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port must be between 0 and 65535 (0 disables)")
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// ToDispatchConfig converts the file config into the reducer's tunables.
func (c *Config) ToDispatchConfig() DispatchConfig {
	return DispatchConfig{
		ClickTimeout:   time.Duration(c.Clicks.TimeoutMS) * time.Millisecond,
		TapDuration:    time.Duration(c.Tap.DurationMS) * time.Millisecond,
		Haptic:         c.Feedback.Haptic,
		HapticDuration: time.Duration(c.Feedback.HapticMS) * time.Millisecond,
		DimDuration:    time.Duration(c.Feedback.DimMS) * time.Millisecond,
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
