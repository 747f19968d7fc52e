//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// readMediaButtonsEpoll multiplexes all input devices on one goroutine with
// epoll and sends a ButtonPressed for every media-button key-down.
//
// It returns when ctx is canceled (checked between wakeups; epoll_wait uses a
// short timeout so shutdown is prompt) or on a device error.
func readMediaButtonsEpoll(ctx context.Context, files []*os.File, presses chan<- Event, logger *slog.Logger) error {
	if len(files) == 0 {
		return errors.New("no input devices provided")
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	fdToFile := make(map[int]*os.File, len(files))
	for _, f := range files {
		fd := int(f.Fd())
		fdToFile[fd] = f

		event := unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(fd),
		}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
			return fmt.Errorf("epoll_ctl_add %s: %w", f.Name(), err)
		}
	}

	const (
		maxEvents   = 16
		waitTimeout = 250 // ms
	)
	epollEvents := make([]unix.EpollEvent, maxEvents)
	buf := make([]byte, inputEventSize)

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := unix.EpollWait(epfd, epollEvents, waitTimeout)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(epollEvents[i].Fd)
			f := fdToFile[fd]

			if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				// A disconnected headset takes the reader down; main decides what to do.
				return fmt.Errorf("device error/hangup: %s", f.Name())
			}

			if _, err := f.Read(buf); err != nil {
				return fmt.Errorf("read from %s: %w", f.Name(), err)
			}

			ev, err := decodeInputEvent(buf)
			if err != nil {
				continue
			}
			if !isMediaButtonPress(ev) {
				continue
			}

			logger.Debug("media button", "device", f.Name(), "code", ev.Code)
			select {
			case presses <- ButtonPressed{Source: "evdev", At: ev.Time()}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
