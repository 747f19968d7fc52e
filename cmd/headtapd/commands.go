package main

import (
	"fmt"
	"time"
)

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect requested by the reducer.
//
// CmdArmClickTimer is executed by the daemon loop itself (it owns the timer);
// every other command runs on the effects worker.
type Command interface {
	commandMarker()
	String() string
}

// CmdArmClickTimer (re)arms the single click timer. Any previously armed timer
// is stopped first.
type CmdArmClickTimer struct {
	Gen   uint64
	Count int
	Delay time.Duration
}

func (CmdArmClickTimer) commandMarker() {}
func (c CmdArmClickTimer) String() string {
	return fmt.Sprintf("CmdArmClickTimer(gen=%d count=%d delay=%s)", c.Gen, c.Count, c.Delay)
}

// CmdTap injects a synthetic tap on the device.
type CmdTap struct {
	Button   int
	X, Y     int
	Duration time.Duration
}

func (CmdTap) commandMarker() {}
func (c CmdTap) String() string {
	return fmt.Sprintf("CmdTap(button=%d x=%d y=%d duration=%s)", c.Button, c.X, c.Y, c.Duration)
}

// CmdHaptic requests a short vibration on the device.
type CmdHaptic struct {
	Duration time.Duration
}

func (CmdHaptic) commandMarker() {}
func (c CmdHaptic) String() string { return fmt.Sprintf("CmdHaptic(duration=%s)", c.Duration) }

// CmdSaveTargets persists button targets.
type CmdSaveTargets struct {
	Targets ButtonTargets
}

func (CmdSaveTargets) commandMarker() {}
func (c CmdSaveTargets) String() string {
	return fmt.Sprintf("CmdSaveTargets(button1=%v button2=%v)", c.Targets.Button1, c.Targets.Button2)
}

// CmdLoadTargets reads button targets from the store.
type CmdLoadTargets struct{}

func (CmdLoadTargets) commandMarker() {}
func (CmdLoadTargets) String() string { return "CmdLoadTargets()" }

// CmdPublishStateSnapshot delivers a reducer-produced snapshot to a requester.
// The daemon loop answers it directly; it never reaches the effects worker.
type CmdPublishStateSnapshot struct {
	Reply    chan<- StateSnapshot
	Snapshot StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string  { return "CmdPublishStateSnapshot()" }
