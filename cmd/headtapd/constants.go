package main

import "time"

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_KEY = 0x01

	KEY_PLAYPAUSE = 164
	KEY_PLAYCD    = 200
	KEY_PAUSECD   = 201
	KEY_MEDIA     = 226 // headset hook on most Bluetooth/wired headsets
)

// Key-down; key-up is 0 and auto-repeat is 2.
const evValuePress = 1

// mediaButtonCodes are the key codes that count as a headset button press.
var mediaButtonCodes = []uint16{
	KEY_PLAYPAUSE,
	KEY_PLAYCD,
	KEY_PAUSECD,
	KEY_MEDIA,
}

// Button numbers
const (
	buttonPrimary   = 1
	buttonSecondary = 2
)

// Click and dispatch defaults
const (
	// Maximum gap between two presses of the same burst.
	defaultClickTimeout = 400 * time.Millisecond

	// Synthetic tap: stroke starts immediately and lasts this long.
	defaultTapDuration = 100 * time.Millisecond

	// How long a triggered button icon stays dimmed.
	defaultDimDuration = 200 * time.Millisecond

	defaultHapticDuration = 50 * time.Millisecond

	// Upper bound for a single tap/haptic/store side effect.
	defaultEffectTimeoutMS = 3000

	defaultHTTPPort  = 3001
	defaultIPCSocket = "/tmp/headtap.sock"

	// Sentinel for an unset target coordinate.
	targetUnset = -1
)
