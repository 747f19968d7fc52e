package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("headtap v%s\n", version)
	fmt.Println("Headset button to Android screen tap daemon")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  headtapd [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Reads headset media-button presses from Linux input devices and turns")
	fmt.Println("  them into taps on an attached Android device. A single press taps the")
	fmt.Println("  button 1 target; two or more presses within the click timeout tap the")
	fmt.Println("  button 2 target. Targets are set with headtap-ctl.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("SIGNALS:")
	fmt.Println("  SIGHUP   re-read the targets file")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Auto-discover headsets, tap through adb")
	fmt.Println("  headtapd")
	fmt.Println()
	fmt.Println("  # Explicit device, minitouch backend")
	fmt.Println("  headtapd -input-device /dev/input/event5 -tap-backend minitouch -minitouch-addr 127.0.0.1:1111")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires read access to input devices (run as root or add user to 'input' group)")
	fmt.Println("  - The adb backend needs a connected, authorized device (adb devices)")
	fmt.Println()
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")

		inputDevice  = flag.String("input-device", "", "Linux input event device (overrides input.devices)")
		autoDiscover = flag.Bool("auto-discover", true, "Add every input device that reports media keys")

		clickTimeoutMS = flag.Int("click-timeout-ms", int(defaultClickTimeout/time.Millisecond), "Maximum gap between presses of one burst in ms")

		tapBackend    = flag.String("tap-backend", tapBackendADB, "Tap injection backend: adb|minitouch")
		tapDurationMS = flag.Int("tap-duration-ms", int(defaultTapDuration/time.Millisecond), "Tap stroke duration in ms")
		adbPath       = flag.String("adb-path", "adb", "adb binary")
		adbSerial     = flag.String("adb-serial", "", "adb device serial (needed with several devices)")
		minitouchAddr = flag.String("minitouch-addr", "127.0.0.1:1111", "minitouch TCP address")

		haptic = flag.Bool("haptic", true, "Vibrate the device when a button fires")

		targetsFile   = flag.String("targets-file", "", "Targets JSON file (default: <user config dir>/headtap/targets.json)")
		ipcSocketPath = flag.String("ipc-socket", defaultIPCSocket, "Unix domain socket path for IPC")
		httpPort      = flag.Int("http-port", defaultHTTPPort, "HTTP listener port for /ws and webhooks (0 disables)")
		logLevelStr   = flag.String("log-level", "info", "Log level: error, warn, info, debug")

		showVersion = flag.Bool("version", false, "Print version and exit")
		showHelp    = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	// Config precedence: defaults < file < explicitly set flags.
	cfg := DefaultConfig()
	if *configPath != "" {
		fileCfg, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = fileCfg
	}

	var o FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input-device":
			o.InputDevice = inputDevice
		case "auto-discover":
			o.AutoDiscover = autoDiscover
		case "click-timeout-ms":
			o.ClickTimeoutMS = clickTimeoutMS
		case "tap-backend":
			o.TapBackend = tapBackend
		case "tap-duration-ms":
			o.TapDurationMS = tapDurationMS
		case "adb-path":
			o.ADBPath = adbPath
		case "adb-serial":
			o.ADBSerial = adbSerial
		case "minitouch-addr":
			o.MinitouchAddr = minitouchAddr
		case "haptic":
			o.Haptic = haptic
		case "targets-file":
			o.TargetsFile = targetsFile
		case "ipc-socket":
			o.IPCSocketPath = ipcSocketPath
		case "http-port":
			o.HTTPPort = httpPort
		case "log-level":
			o.LogLevel = logLevelStr
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error: invalid config:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(os.Stdout, logLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("headtapd stopped", "error", err)
		os.Exit(1)
	}
}

// run wires collaborators and supervises the daemon goroutines until a
// shutdown signal or a fatal error.
func run(cfg Config, logger *slog.Logger) error {
	logger.Debug("starting headtapd", "version", version)

	// ------------------------------------------------------------------
	// Input devices
	// ------------------------------------------------------------------
	devices, err := resolveInputDevices(cfg.Input, logger)
	if err != nil {
		return err
	}
	files := make([]*os.File, 0, len(devices))
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	for _, dev := range devices {
		f, err := os.Open(dev)
		if err != nil {
			logger.Error("failed to open input device", "device", dev, "error", err, "tip", "run as root or add user to 'input' group")
			return fmt.Errorf("open %s: %w", dev, err)
		}
		files = append(files, f)
	}

	// ------------------------------------------------------------------
	// Targets
	// ------------------------------------------------------------------
	store, err := NewFileTargetStore(cfg.Targets.File)
	if err != nil {
		return fmt.Errorf("targets store: %w", err)
	}
	state := NewDaemonState()
	targets, err := store.Load()
	if err != nil {
		// Start with unset targets; a SIGHUP or set-target fixes it later.
		logger.Warn("could not load targets, starting with none", "file", store.Path(), "error", err)
	} else {
		state.SetObservedTargets(targets, time.Now())
	}
	logger.Info("targets",
		"file", store.Path(),
		"button1", targets.Button1,
		"button2", targets.Button2)

	// ------------------------------------------------------------------
	// Tap injection + haptics
	// ------------------------------------------------------------------
	fx := Effects{
		Store:   store,
		Timeout: time.Duration(defaultEffectTimeoutMS) * time.Millisecond,
	}
	adb := NewADBClient(cfg.Tap.ADB.Path, cfg.Tap.ADB.Serial, logger.With("component", "adb"))
	switch cfg.Tap.Backend {
	case tapBackendMinitouch:
		var screen ScreenSizer = adb
		if cfg.Tap.Minitouch.ScreenWidth > 0 {
			screen = FixedScreen{Width: cfg.Tap.Minitouch.ScreenWidth, Height: cfg.Tap.Minitouch.ScreenHeight}
		}
		mt := NewMinitouchClient(cfg.Tap.Minitouch.Addr, cfg.Tap.Minitouch.Pressure, screen, logger.With("component", "minitouch"))
		defer mt.Close()
		fx.Injector = mt
	default:
		fx.Injector = adb
	}
	if cfg.Feedback.Haptic {
		fx.Vibrator = adb
	}

	// ------------------------------------------------------------------
	// Goroutines
	// ------------------------------------------------------------------
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events := make(chan Event, 64)
	var broadcasts chan StateBroadcast
	if cfg.HTTP.Port > 0 {
		broadcasts = make(chan StateBroadcast, 64)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runDaemon(gctx, events, fx, cfg.ToDispatchConfig(), state, broadcasts, logger)
		return nil
	})

	g.Go(func() error {
		return runIPCServer(gctx, cfg.IPC.SocketPath, events, logger.With("component", "ipc"))
	})

	if cfg.HTTP.Port > 0 {
		mux := http.NewServeMux()
		feedback := NewFeedbackServer(logger.With("component", "ws"), events, HubConfig{})
		feedback.Register(mux, "/ws")
		registerWebhooks(mux, events, logger.With("component", "webhooks"))

		g.Go(func() error {
			feedback.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(gctx, feedback.Hub(), broadcasts, logger)
			return nil
		})
		g.Go(func() error {
			return runHTTPServer(gctx, cfg.HTTP.Port, mux, logger)
		})
	}

	g.Go(func() error {
		if err := readMediaButtonsEpoll(gctx, files, events, logger.With("component", "input")); err != nil {
			return fmt.Errorf("input reader: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return forwardReloadSignals(gctx, events, logger)
	})

	logger.Info("listening",
		"devices", devices,
		"tap_backend", cfg.Tap.Backend,
		"click_timeout_ms", cfg.Clicks.TimeoutMS,
		"ipc", cfg.IPC.SocketPath,
		"http_port", cfg.HTTP.Port)

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutting down")
	return nil
}

// resolveInputDevices merges configured devices with auto-discovered ones.
func resolveInputDevices(in InputConfig, logger *slog.Logger) ([]string, error) {
	devices := slices.Clone(in.Devices)

	if in.AutoDiscover {
		found, err := discoverMediaButtonDevices(logger)
		if err != nil {
			if len(devices) == 0 {
				return nil, fmt.Errorf("auto-discover input devices: %w", err)
			}
			logger.Warn("input auto-discovery failed", "error", err)
		}
		for _, d := range found {
			if !slices.Contains(devices, d) {
				devices = append(devices, d)
			}
		}
	}

	if len(devices) == 0 {
		return nil, errors.New("no media-button input devices found (is the headset connected?)")
	}
	return devices, nil
}

// forwardReloadSignals turns SIGHUP into ReloadTargets until ctx is canceled.
func forwardReloadSignals(ctx context.Context, events chan<- Event, logger *slog.Logger) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			logger.Info("reloading targets (SIGHUP)")
			select {
			case events <- ReloadTargets{}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
