package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firedAction struct {
	Action ClickAction
	AtMS   int
}

// simulateClicks drives a ClickWindow on a virtual timeline the way the daemon
// loop does: one timer at most, re-armed on every press. When a press and the
// timer deadline coincide, pressFirst decides which is processed first.
func simulateClicks(t *testing.T, pressesMS []int, timeout time.Duration, pressFirst bool) []firedAction {
	t.Helper()

	t0 := time.Unix(1_700_000_000, 0)
	at := func(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }
	msOf := func(ts time.Time) int { return int(ts.Sub(t0) / time.Millisecond) }

	var (
		w        ClickWindow
		out      []firedAction
		armed    bool
		arm      ClickTimerArm
		deadline time.Time
	)

	fire := func() {
		armed = false
		if a := w.Elapsed(arm.Gen, arm.Count); a != ClickNone {
			out = append(out, firedAction{Action: a, AtMS: msOf(deadline)})
		}
	}

	for _, p := range pressesMS {
		pt := at(p)
		for armed && (deadline.Before(pt) || (deadline.Equal(pt) && !pressFirst)) {
			fire()
		}

		res := w.Press(pt, timeout)
		if res.Settled != ClickNone {
			out = append(out, firedAction{Action: res.Settled, AtMS: p})
		}
		// Re-arming replaces the outstanding timer.
		arm = res.Arm
		armed = true
		deadline = pt.Add(res.Arm.Delay)
	}
	if armed {
		fire()
	}
	return out
}

func TestClicks_SinglePressIsPrimary(t *testing.T) {
	got := simulateClicks(t, []int{0}, 400*time.Millisecond, false)
	assert.Equal(t, []firedAction{{ClickPrimary, 400}}, got)
}

func TestClicks_DoublePressIsSecondary(t *testing.T) {
	got := simulateClicks(t, []int{0, 300}, 400*time.Millisecond, false)
	assert.Equal(t, []firedAction{{ClickSecondary, 700}}, got)
}

func TestClicks_TriplePressIsOneSecondary(t *testing.T) {
	got := simulateClicks(t, []int{0, 300, 650}, 400*time.Millisecond, false)
	assert.Equal(t, []firedAction{{ClickSecondary, 1050}}, got)
}

func TestClicks_LongBurstIsOneSecondary(t *testing.T) {
	presses := []int{0, 399, 798, 1197, 1596, 1995, 2394}
	got := simulateClicks(t, presses, 400*time.Millisecond, false)
	assert.Equal(t, []firedAction{{ClickSecondary, 2794}}, got)
}

func TestClicks_GapStartsNewBurst(t *testing.T) {
	got := simulateClicks(t, []int{0, 500}, 400*time.Millisecond, false)
	assert.Equal(t, []firedAction{{ClickPrimary, 400}, {ClickPrimary, 900}}, got)
}

func TestClicks_ExactTimeoutStartsNewBurst(t *testing.T) {
	want := []firedAction{{ClickPrimary, 400}, {ClickPrimary, 800}}

	// Timer processed before the press.
	assert.Equal(t, want, simulateClicks(t, []int{0, 400}, 400*time.Millisecond, false))

	// Press processed before the due timer: the first burst is settled at the
	// press and the superseded firing is dropped.
	assert.Equal(t, want, simulateClicks(t, []int{0, 400}, 400*time.Millisecond, true))
}

func TestClicks_BurstComparesAgainstPreviousPress(t *testing.T) {
	// 0 → 350 → 700: each gap is under the timeout even though the burst
	// spans longer than one timeout.
	got := simulateClicks(t, []int{0, 350, 700}, 400*time.Millisecond, false)
	assert.Equal(t, []firedAction{{ClickSecondary, 1100}}, got)
}

func TestClicks_CustomTimeout(t *testing.T) {
	got := simulateClicks(t, []int{0, 250}, 200*time.Millisecond, false)
	assert.Equal(t, []firedAction{{ClickPrimary, 200}, {ClickPrimary, 450}}, got)
}

func TestClickWindow_StaleGenerationIgnored(t *testing.T) {
	var w ClickWindow
	t0 := time.Unix(1000, 0)

	first := w.Press(t0, 400*time.Millisecond)
	second := w.Press(t0.Add(100*time.Millisecond), 400*time.Millisecond)
	require.Equal(t, first.Arm.Gen+1, second.Arm.Gen)
	require.Equal(t, 2, second.Arm.Count)

	assert.Equal(t, ClickNone, w.Elapsed(first.Arm.Gen, first.Arm.Count), "stale timer must not act")
	assert.True(t, w.Armed)
	assert.Equal(t, 2, w.PendingCount)

	assert.Equal(t, ClickSecondary, w.Elapsed(second.Arm.Gen, second.Arm.Count))
	assert.False(t, w.Armed)
	assert.Equal(t, 0, w.PendingCount)

	// A duplicate firing after settlement is dropped too.
	assert.Equal(t, ClickNone, w.Elapsed(second.Arm.Gen, second.Arm.Count))
}

func TestClickWindow_ArmedIffPending(t *testing.T) {
	var w ClickWindow
	t0 := time.Unix(1000, 0)
	assert.False(t, w.Armed)
	assert.Zero(t, w.PendingCount)

	res := w.Press(t0, 400*time.Millisecond)
	assert.True(t, w.Armed)
	assert.Equal(t, 1, w.PendingCount)
	assert.Equal(t, 400*time.Millisecond, res.Arm.Delay)

	w.Elapsed(res.Arm.Gen, res.Arm.Count)
	assert.False(t, w.Armed)
	assert.Zero(t, w.PendingCount)
}

func TestClickAction_Button(t *testing.T) {
	assert.Equal(t, buttonPrimary, ClickPrimary.Button())
	assert.Equal(t, buttonSecondary, ClickSecondary.Button())
	assert.Equal(t, 0, ClickNone.Button())
	assert.Equal(t, "secondary", ClickSecondary.String())
}
