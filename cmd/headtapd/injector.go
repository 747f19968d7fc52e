package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ============================================================================
// Tap injection
// ============================================================================
// A tap is a single-point stroke that starts immediately and lasts a fixed
// duration. Two backends are supported:
//
//   - adb:       "adb shell input swipe x y x y <ms>" (same start and end point)
//   - minitouch: line protocol over TCP ("d 0 x y p", "c", "u 0", "c")
// ============================================================================

// TapInjector dispatches a synthetic tap at screen pixel (x, y).
type TapInjector interface {
	Tap(ctx context.Context, x, y int, duration time.Duration) error
}

// Vibrator gives haptic feedback on the device.
type Vibrator interface {
	Vibrate(ctx context.Context, duration time.Duration) error
}

// commandRunner runs an external command and returns its combined output.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ADBClient shells out to adb for a single device.
type ADBClient struct {
	Path   string // adb binary, default "adb"
	Serial string // optional device serial or host:port

	run    commandRunner
	logger *slog.Logger
}

// NewADBClient returns a client for the given adb binary and device serial.
func NewADBClient(path, serial string, logger *slog.Logger) *ADBClient {
	if path == "" {
		path = "adb"
	}
	return &ADBClient{
		Path:   path,
		Serial: serial,
		run:    execRunner,
		logger: logger,
	}
}

// shell runs "adb [-s serial] shell <args...>" and returns its output.
func (c *ADBClient) shell(ctx context.Context, args ...string) ([]byte, error) {
	full := make([]string, 0, len(args)+3)
	if c.Serial != "" {
		full = append(full, "-s", c.Serial)
	}
	full = append(full, "shell")
	full = append(full, args...)

	if c.logger != nil {
		c.logger.Debug("adb", "args", strings.Join(full, " "))
	}

	out, err := c.run(ctx, c.Path, full...)
	if err != nil {
		return nil, fmt.Errorf("adb shell failed: %w - %s", err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// Tap implements TapInjector with "input swipe" so the stroke duration is honored.
func (c *ADBClient) Tap(ctx context.Context, x, y int, duration time.Duration) error {
	xs, ys := strconv.Itoa(x), strconv.Itoa(y)
	ms := strconv.FormatInt(duration.Milliseconds(), 10)
	if _, err := c.shell(ctx, "input", "swipe", xs, ys, xs, ys, ms); err != nil {
		return fmt.Errorf("tap (%d, %d): %w", x, y, err)
	}
	return nil
}

// Vibrate implements Vibrator.
func (c *ADBClient) Vibrate(ctx context.Context, duration time.Duration) error {
	ms := strconv.FormatInt(duration.Milliseconds(), 10)
	if _, err := c.shell(ctx, "cmd", "vibrator_manager", "synced", "oneshot", ms); err != nil {
		return fmt.Errorf("vibrate: %w", err)
	}
	return nil
}

// ScreenSize implements ScreenSizer with "wm size". An override size, when
// present, wins over the physical one.
//
//	Physical size: 1080x2340
//	Override size: 720x1560
func (c *ADBClient) ScreenSize(ctx context.Context) (width, height int, err error) {
	out, err := c.shell(ctx, "wm", "size")
	if err != nil {
		return 0, 0, fmt.Errorf("screen size: %w", err)
	}
	return parseWMSize(string(out))
}

func parseWMSize(out string) (width, height int, err error) {
	for _, line := range strings.Split(out, "\n") {
		label, size, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		var w, h int
		if _, err := fmt.Sscanf(strings.TrimSpace(size), "%dx%d", &w, &h); err != nil || w <= 0 || h <= 0 {
			continue
		}
		width, height = w, h
		if strings.HasPrefix(label, "Override") {
			break
		}
	}
	if width == 0 {
		return 0, 0, fmt.Errorf("unexpected wm size output %q", strings.TrimSpace(out))
	}
	return width, height, nil
}

// ScreenSizer reports the display size in pixels (natural orientation).
type ScreenSizer interface {
	ScreenSize(ctx context.Context) (width, height int, err error)
}

// FixedScreen is a ScreenSizer for a configured display size.
type FixedScreen struct {
	Width, Height int
}

func (s FixedScreen) ScreenSize(context.Context) (int, int, error) {
	return s.Width, s.Height, nil
}

// MinitouchClient speaks the minitouch protocol over a TCP socket
// (typically forwarded with "adb forward tcp:1111 localabstract:minitouch").
//
// Taps arrive in screen pixels; minitouch expects touch panel units in
// 0..max-x and 0..max-y, so every point is scaled by panel/screen.
type MinitouchClient struct {
	addr     string
	pressure int
	screen   ScreenSizer
	logger   *slog.Logger

	dial func(ctx context.Context, network, addr string) (net.Conn, error)

	mu      sync.Mutex
	conn    net.Conn
	maxX    int
	maxY    int
	screenW int
	screenH int
}

// NewMinitouchClient returns a client for addr. The connection is opened
// lazily and the screen size is asked from screen on first use.
func NewMinitouchClient(addr string, pressure int, screen ScreenSizer, logger *slog.Logger) *MinitouchClient {
	if pressure <= 0 {
		pressure = 50
	}
	d := &net.Dialer{Timeout: 2 * time.Second}
	return &MinitouchClient{
		addr:     addr,
		pressure: pressure,
		screen:   screen,
		logger:   logger,
		dial:     d.DialContext,
	}
}

// screenSize caches the display size.
func (m *MinitouchClient) screenSize(ctx context.Context) error {
	if m.screenW > 0 && m.screenH > 0 {
		return nil
	}
	if m.screen == nil {
		return errors.New("minitouch: screen size unknown")
	}
	w, h, err := m.screen.ScreenSize(ctx)
	if err != nil {
		return err
	}
	if w <= 0 || h <= 0 {
		return fmt.Errorf("minitouch: invalid screen size %dx%d", w, h)
	}
	m.screenW, m.screenH = w, h
	return nil
}

// toPanel maps a screen pixel to touch panel units.
func (m *MinitouchClient) toPanel(x, y int) (int, int) {
	return x * m.maxX / m.screenW, y * m.maxY / m.screenH
}

// connect opens the socket and consumes the banner:
//
//	v <version>
//	^ <max-contacts> <max-x> <max-y> <max-pressure>
//	$ <pid>
func (m *MinitouchClient) connect(ctx context.Context) error {
	if m.conn != nil {
		return nil
	}

	conn, err := m.dial(ctx, "tcp", m.addr)
	if err != nil {
		return fmt.Errorf("dial minitouch %s: %w", m.addr, err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(dl)
	}

	rd := bufio.NewReader(conn)
	var (
		flag                     string
		version                  int
		maxContacts, maxPressure int
		maxX, maxY               int
		pid                      int
	)
	if err := scanLine(rd, "%s %d", &flag, &version); err != nil {
		conn.Close()
		return fmt.Errorf("minitouch banner: %w", err)
	}
	if err := scanLine(rd, "%s %d %d %d %d", &flag, &maxContacts, &maxX, &maxY, &maxPressure); err != nil {
		conn.Close()
		return fmt.Errorf("minitouch banner: %w", err)
	}
	if err := scanLine(rd, "%s %d", &flag, &pid); err != nil {
		conn.Close()
		return fmt.Errorf("minitouch banner: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	// Ignore anything else the server writes.
	go io.Copy(io.Discard, rd)

	if maxX <= 0 || maxY <= 0 {
		conn.Close()
		return fmt.Errorf("minitouch banner: invalid touch area %dx%d", maxX, maxY)
	}

	if m.logger != nil {
		m.logger.Info("connected to minitouch", "addr", m.addr, "max_x", maxX, "max_y", maxY, "max_pressure", maxPressure, "pid", pid)
	}

	m.conn = conn
	m.maxX = maxX
	m.maxY = maxY
	if maxPressure > 0 && m.pressure > maxPressure {
		m.pressure = maxPressure
	}
	return nil
}

func scanLine(rd *bufio.Reader, format string, args ...any) error {
	line, err := rd.ReadString('\n')
	if err != nil {
		return err
	}
	_, err = fmt.Sscanf(strings.TrimSpace(line), format, args...)
	return err
}

func (m *MinitouchClient) write(s string) error {
	if _, err := io.WriteString(m.conn, s); err != nil {
		m.conn.Close()
		m.conn = nil
		return err
	}
	return nil
}

// Tap implements TapInjector.
func (m *MinitouchClient) Tap(ctx context.Context, x, y int, duration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.screenSize(ctx); err != nil {
		return err
	}
	if x >= m.screenW || y >= m.screenH {
		return fmt.Errorf("tap (%d, %d) outside screen %dx%d", x, y, m.screenW, m.screenH)
	}
	if err := m.connect(ctx); err != nil {
		return err
	}
	px, py := m.toPanel(x, y)

	if err := m.write(fmt.Sprintf("d 0 %d %d %d\nc\n", px, py, m.pressure)); err != nil {
		return fmt.Errorf("minitouch down: %w", err)
	}

	select {
	case <-time.After(duration):
	case <-ctx.Done():
	}

	// Always lift the contact, even when ctx ended early.
	if err := m.write("u 0\nc\n"); err != nil {
		return fmt.Errorf("minitouch up: %w", err)
	}
	return ctx.Err()
}

// Close closes the minitouch socket.
func (m *MinitouchClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		err := m.conn.Close()
		m.conn = nil
		return err
	}
	return nil
}
