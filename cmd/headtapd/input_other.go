//go:build !linux

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// readMediaButtonsEpoll falls back to one blocking reader goroutine per device
// on platforms without epoll.
func readMediaButtonsEpoll(ctx context.Context, files []*os.File, presses chan<- Event, logger *slog.Logger) error {
	if len(files) == 0 {
		return errors.New("no input devices provided")
	}

	errc := make(chan error, len(files))
	for _, f := range files {
		go func(f *os.File) {
			buf := make([]byte, inputEventSize)
			for {
				if _, err := io.ReadFull(f, buf); err != nil {
					errc <- fmt.Errorf("read from %s: %w", f.Name(), err)
					return
				}
				ev, err := decodeInputEvent(buf)
				if err != nil || !isMediaButtonPress(ev) {
					continue
				}
				logger.Debug("media button", "device", f.Name(), "code", ev.Code)
				select {
				case presses <- ButtonPressed{Source: "evdev", At: ev.Time()}:
				case <-ctx.Done():
					return
				}
			}
		}(f)
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		return err
	}
}

// discoverMediaButtonDevices is only supported on Linux.
func discoverMediaButtonDevices(logger *slog.Logger) ([]string, error) {
	return nil, errors.New("input auto-discovery requires linux")
}
