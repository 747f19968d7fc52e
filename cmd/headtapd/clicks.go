package main

import (
	"fmt"
	"time"
)

// ClickAction is the classification of a settled burst of presses.
type ClickAction int

const (
	ClickNone ClickAction = iota
	ClickPrimary
	ClickSecondary
)

func (a ClickAction) String() string {
	switch a {
	case ClickPrimary:
		return "primary"
	case ClickSecondary:
		return "secondary"
	default:
		return "none"
	}
}

// Button returns the button number a classified burst triggers.
func (a ClickAction) Button() int {
	switch a {
	case ClickPrimary:
		return buttonPrimary
	case ClickSecondary:
		return buttonSecondary
	default:
		return 0
	}
}

// classifyBurst maps the number of presses in a settled burst to an action.
// Any burst of two or more presses is a Secondary.
func classifyBurst(count int) ClickAction {
	if count >= 2 {
		return ClickSecondary
	}
	return ClickPrimary
}

// ClickWindow is the debounce state for headset button presses.
//
// It lives inside DaemonState and is only touched by the daemon goroutine, so it
// carries no locks. The timer itself is owned by the daemon loop; ClickWindow only
// tracks which timer generation is current. Armed is true iff PendingCount > 0.
type ClickWindow struct {
	LastPressAt  time.Time
	PendingCount int

	// Gen identifies the most recently armed timer. Firings carrying an older
	// generation are stale and must be ignored.
	Gen   uint64
	Armed bool
}

// ClickTimerArm asks the daemon loop to (re)arm the single click timer.
type ClickTimerArm struct {
	Gen   uint64
	Count int
	Delay time.Duration
}

// ClickPressResult is what a single press produces.
//
// Settled is non-None only when the press arrived after the previous burst's
// timer was already due but before its firing was processed; that burst is
// settled first so it is never lost.
type ClickPressResult struct {
	Settled      ClickAction
	SettledCount int
	Arm          ClickTimerArm
}

// Press records a press at time at and returns the timer to arm.
func (w *ClickWindow) Press(at time.Time, timeout time.Duration) ClickPressResult {
	var res ClickPressResult

	if w.Armed && at.Sub(w.LastPressAt) >= timeout {
		res.Settled = classifyBurst(w.PendingCount)
		res.SettledCount = w.PendingCount
		w.PendingCount = 0
		w.Armed = false
	}

	// The comparison is against the previous press, not the start of the burst.
	if w.Armed && at.Sub(w.LastPressAt) < timeout {
		w.PendingCount++
	} else {
		w.PendingCount = 1
	}

	w.LastPressAt = at
	w.Gen++
	w.Armed = true

	res.Arm = ClickTimerArm{
		Gen:   w.Gen,
		Count: w.PendingCount,
		Delay: timeout,
	}
	return res
}

// Elapsed handles a timer firing. It returns ClickNone for stale or spurious
// firings.
func (w *ClickWindow) Elapsed(gen uint64, count int) ClickAction {
	if !w.Armed || gen != w.Gen {
		return ClickNone
	}
	w.PendingCount = 0
	w.Armed = false
	return classifyBurst(count)
}

func (w ClickWindow) String() string {
	return fmt.Sprintf("ClickWindow(pending=%d armed=%v gen=%d)", w.PendingCount, w.Armed, w.Gen)
}
