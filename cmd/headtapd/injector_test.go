package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCommand struct {
	name string
	args []string
}

func fakeRunner(out []byte, err error, calls *[]recordedCommand) commandRunner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		*calls = append(*calls, recordedCommand{name: name, args: args})
		return out, err
	}
}

func TestADBClient_TapUsesSwipe(t *testing.T) {
	var calls []recordedCommand
	c := NewADBClient("", "emulator-5554", discardLogger())
	c.run = fakeRunner(nil, nil, &calls)

	require.NoError(t, c.Tap(context.Background(), 540, 1200, 100*time.Millisecond))

	require.Len(t, calls, 1)
	assert.Equal(t, "adb", calls[0].name)
	assert.Equal(t,
		[]string{"-s", "emulator-5554", "shell", "input", "swipe", "540", "1200", "540", "1200", "100"},
		calls[0].args)
}

func TestADBClient_VibrateWithoutSerial(t *testing.T) {
	var calls []recordedCommand
	c := NewADBClient("/opt/platform-tools/adb", "", discardLogger())
	c.run = fakeRunner(nil, nil, &calls)

	require.NoError(t, c.Vibrate(context.Background(), 50*time.Millisecond))

	require.Len(t, calls, 1)
	assert.Equal(t, "/opt/platform-tools/adb", calls[0].name)
	assert.Equal(t, []string{"shell", "cmd", "vibrator_manager", "synced", "oneshot", "50"}, calls[0].args)
}

func TestADBClient_ErrorIncludesOutput(t *testing.T) {
	var calls []recordedCommand
	c := NewADBClient("adb", "", discardLogger())
	cause := errors.New("exit status 1")
	c.run = fakeRunner([]byte("error: no devices/emulators found\n"), cause, &calls)

	err := c.Tap(context.Background(), 1, 2, 100*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "no devices/emulators found")
}

func TestADBClient_ScreenSize(t *testing.T) {
	var calls []recordedCommand
	c := NewADBClient("adb", "", discardLogger())
	c.run = fakeRunner([]byte("Physical size: 1080x2340\n"), nil, &calls)

	w, h, err := c.ScreenSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1080, w)
	assert.Equal(t, 2340, h)
	assert.Equal(t, []string{"shell", "wm", "size"}, calls[0].args)
}

func TestParseWMSize(t *testing.T) {
	w, h, err := parseWMSize("Physical size: 1440x3200\nOverride size: 1080x2400\n")
	require.NoError(t, err)
	assert.Equal(t, 1080, w)
	assert.Equal(t, 2400, h)

	_, _, err = parseWMSize("error: no devices/emulators found\n")
	assert.Error(t, err)
}

// fakeMinitouch accepts one connection, writes a banner with the given touch
// area and records lines.
func fakeMinitouch(t *testing.T, maxX, maxY int) (addr string, lines <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	out := make(chan string, 32)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fmt.Fprintf(conn, "v 1\n^ 10 %d %d 255\n$ 4242\n", maxX, maxY)
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			out <- sc.Text()
		}
		close(out)
	}()
	return ln.Addr().String(), out
}

func readLines(t *testing.T, lines <-chan string, n int) []string {
	t.Helper()
	var got []string
	for len(got) < n {
		select {
		case l, ok := <-lines:
			if !ok {
				t.Fatalf("connection closed after %v", got)
			}
			got = append(got, l)
		case <-time.After(time.Second):
			t.Fatalf("timeout, got %v", got)
		}
	}
	return got
}

func TestMinitouchClient_Tap(t *testing.T) {
	addr, lines := fakeMinitouch(t, 1079, 2339)
	m := NewMinitouchClient(addr, 50, FixedScreen{Width: 1080, Height: 2340}, discardLogger())
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, m.Tap(ctx, 540, 1200, 30*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	assert.Equal(t, []string{"d 0 539 1199 50", "c", "u 0", "c"}, readLines(t, lines, 4))
	assert.Equal(t, 1079, m.maxX)
	assert.Equal(t, 2339, m.maxY)
}

func TestMinitouchClient_ScalesToPanelUnits(t *testing.T) {
	addr, lines := fakeMinitouch(t, 4095, 4095)
	m := NewMinitouchClient(addr, 50, FixedScreen{Width: 1080, Height: 2340}, discardLogger())
	defer m.Close()

	require.NoError(t, m.Tap(context.Background(), 540, 1170, time.Millisecond))
	assert.Equal(t, []string{"d 0 2047 2047 50", "c", "u 0", "c"}, readLines(t, lines, 4))
}

func TestMinitouchClient_PanelSmallerThanScreen(t *testing.T) {
	addr, lines := fakeMinitouch(t, 719, 1279)
	m := NewMinitouchClient(addr, 50, FixedScreen{Width: 1080, Height: 1920}, discardLogger())
	defer m.Close()

	require.NoError(t, m.Tap(context.Background(), 1000, 1800, time.Millisecond))
	assert.Equal(t, []string{"d 0 665 1199 50", "c", "u 0", "c"}, readLines(t, lines, 4))
}

func TestMinitouchClient_ScreenSizeFromADB(t *testing.T) {
	var calls []recordedCommand
	adb := NewADBClient("adb", "", discardLogger())
	adb.run = fakeRunner([]byte("Physical size: 1080x2340\n"), nil, &calls)

	addr, lines := fakeMinitouch(t, 4095, 4095)
	m := NewMinitouchClient(addr, 50, adb, discardLogger())
	defer m.Close()

	require.NoError(t, m.Tap(context.Background(), 0, 2339, time.Millisecond))
	require.NoError(t, m.Tap(context.Background(), 1079, 0, time.Millisecond))
	assert.Equal(t, []string{"d 0 0 4093 50", "c", "u 0", "c", "d 0 4091 0 50", "c", "u 0", "c"}, readLines(t, lines, 8))
	assert.Len(t, calls, 1, "screen size is cached")
}

func TestMinitouchClient_OutOfBounds(t *testing.T) {
	m := NewMinitouchClient("127.0.0.1:1", 50, FixedScreen{Width: 1080, Height: 2340}, discardLogger())
	defer m.Close()

	err := m.Tap(context.Background(), 1080, 10, 10*time.Millisecond)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "outside screen"))
}

func TestMinitouchClient_DialError(t *testing.T) {
	m := NewMinitouchClient("127.0.0.1:1", 50, FixedScreen{Width: 1080, Height: 2340}, discardLogger())
	m.dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}
	err := m.Tap(context.Background(), 1, 1, time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial minitouch")
}
