package main

import (
	"bytes"
	"encoding/binary"
	"slices"
	"time"
)

// inputEvent mirrors the kernel's struct input_event on 64-bit hosts:
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

var inputEventSize = binary.Size(inputEvent{})

// Time is the kernel timestamp of the event (CLOCK_REALTIME by default).
func (ev inputEvent) Time() time.Time {
	return time.Unix(ev.Sec, ev.Usec*int64(time.Microsecond))
}

// decodeInputEvent parses one raw record.
func decodeInputEvent(buf []byte) (inputEvent, error) {
	var ev inputEvent
	err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &ev)
	return ev, err
}

// isMediaButtonPress reports whether ev is the key-down of a headset media
// button. Key-up and auto-repeat are ignored so a held button is one press.
func isMediaButtonPress(ev inputEvent) bool {
	if ev.Type != EV_KEY || ev.Value != evValuePress {
		return false
	}
	return slices.Contains(mediaButtonCodes, ev.Code)
}
