//go:build linux

package main

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"

	evdev "github.com/gvalkov/golang-evdev"
)

// discoverMediaButtonDevices lists /dev/input/event* and returns the nodes of
// every device that advertises at least one media-button key.
func discoverMediaButtonDevices(logger *slog.Logger) ([]string, error) {
	devices, err := evdev.ListInputDevices()
	if err != nil {
		return nil, fmt.Errorf("list input devices: %w", err)
	}

	var paths []string
	for _, dev := range devices {
		if hasMediaButton(dev.Capabilities) {
			logger.Info("discovered media-button device", "device", dev.Fn, "name", dev.Name)
			paths = append(paths, dev.Fn)
		}
		if dev.File != nil {
			_ = dev.File.Close()
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func hasMediaButton(caps map[evdev.CapabilityType][]evdev.CapabilityCode) bool {
	for typ, codes := range caps {
		if typ.Type != evdev.EV_KEY {
			continue
		}
		for _, c := range codes {
			if slices.Contains(mediaButtonCodes, uint16(c.Code)) {
				return true
			}
		}
	}
	return false
}
