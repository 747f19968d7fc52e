package main

import (
	"time"
)

// This file implements the reducer-style architecture building blocks:
//
//   - Events: inputs to the reducer (button presses, click timer firings, effect observations)
//   - Commands: side effects requested by the reducer (timer arming, taps, haptics, target storage)
//   - Broadcasts: feedback events for websocket clients
//   - Reduce(): computes next state + commands + broadcasts, without performing I/O
//
// The daemon loop is responsible for executing Commands and feeding observations back as Events.

// ==============================
// Events
// ==============================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// TimedEvent wraps a payload event with the time the daemon received it.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// ClickWindowElapsed is emitted by the daemon loop when the click timer fires.
// Gen and Count are the values captured when the timer was armed.
type ClickWindowElapsed struct {
	Gen   uint64
	Count int
	At    time.Time
}

func (ClickWindowElapsed) eventMarker() {}

// ReloadTargets asks the daemon to re-read the targets file (SIGHUP).
type ReloadTargets struct{}

func (ReloadTargets) eventMarker() {}

// RequestStateSnapshot asks the daemon loop for a copy of its state.
type RequestStateSnapshot struct {
	Reply chan<- StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// TargetsObserved is emitted after targets were loaded from the store.
type TargetsObserved struct {
	Targets ButtonTargets
	At      time.Time
}

func (TargetsObserved) eventMarker() {}

// TapCompleted is emitted after a tap was injected.
type TapCompleted struct {
	Button int
	At     time.Time
}

func (TapCompleted) eventMarker() {}

// EffectFailed is emitted when executing a Command fails.
type EffectFailed struct {
	Command Command
	Err     error
	At      time.Time
}

func (EffectFailed) eventMarker() {}

// ==============================
// Broadcasts (feedback)
// ==============================

// StateBroadcast is a feedback event published to websocket clients.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastClickClassified reports how a settled burst was classified.
type BroadcastClickClassified struct {
	Action  ClickAction
	Presses int
	At      time.Time
}

func (BroadcastClickClassified) broadcastMarker() {}

// BroadcastButtonTriggered reports a tap dispatch; the icon for Button should
// stay dimmed for DimFor.
type BroadcastButtonTriggered struct {
	Button int
	X, Y   int
	DimFor time.Duration
	At     time.Time
}

func (BroadcastButtonTriggered) broadcastMarker() {}

// BroadcastTargetChanged reports a new (or cleared) target.
type BroadcastTargetChanged struct {
	Button int
	Target ButtonTarget
	At     time.Time
}

func (BroadcastTargetChanged) broadcastMarker() {}

// BroadcastTapFailed reports a failed tap injection.
type BroadcastTapFailed struct {
	Button int
	Error  string
	At     time.Time
}

func (BroadcastTapFailed) broadcastMarker() {}

// ==============================
// Reducer input/output
// ==============================

// DispatchConfig holds the reducer's tunables.
type DispatchConfig struct {
	ClickTimeout   time.Duration
	TapDuration    time.Duration
	Haptic         bool
	HapticDuration time.Duration
	DimDuration    time.Duration
}

// withDefaults fills zero values.
func (c DispatchConfig) withDefaults() DispatchConfig {
	if c.ClickTimeout <= 0 {
		c.ClickTimeout = defaultClickTimeout
	}
	if c.TapDuration <= 0 {
		c.TapDuration = defaultTapDuration
	}
	if c.HapticDuration <= 0 {
		c.HapticDuration = defaultHapticDuration
	}
	if c.DimDuration <= 0 {
		c.DimDuration = defaultDimDuration
	}
	return c
}

// ReduceResult is the output of Reduce(): next state plus Commands and Broadcasts.
type ReduceResult struct {
	State      *DaemonState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// Reduce is the pure reducer:
//
// Rules:
// - Must not perform I/O
// - Must not block
// - Must not mutate anything outside the returned state
func Reduce(s *DaemonState, e Event, cfg DispatchConfig) ReduceResult {
	if s == nil {
		s = NewDaemonState()
	}
	cfg = cfg.withDefaults()

	rr := ReduceResult{State: s}

	switch ev := e.(type) {
	case TimedEvent:
		switch ev.Event.(type) {
		case ButtonPressed, TriggerButton, SetTarget, ClearTarget:
			at := ev.At
			if at.IsZero() {
				at = time.Now()
			}
			reduceAction(&rr, ev.Event, at, cfg)
		default:
			// Internal events carry their own timestamps (if any).
			return Reduce(s, ev.Event, cfg)
		}

	case ClickWindowElapsed:
		action := s.Clicks.Elapsed(ev.Gen, ev.Count)
		if action == ClickNone {
			// Stale firing from a superseded timer.
			break
		}
		settleBurst(&rr, action, ev.Count, ev.At, cfg)

	case ReloadTargets:
		rr.Commands = append(rr.Commands, CmdLoadTargets{})

	case RequestStateSnapshot:
		rr.Commands = append(rr.Commands, CmdPublishStateSnapshot{
			Reply:    ev.Reply,
			Snapshot: s.Snapshot(time.Now()),
		})

	case TargetsObserved:
		prev := s.Targets
		s.SetObservedTargets(ev.Targets, ev.At)
		if prev.Button1 != ev.Targets.Button1 {
			rr.Broadcasts = append(rr.Broadcasts, BroadcastTargetChanged{Button: buttonPrimary, Target: ev.Targets.Button1, At: ev.At})
		}
		if prev.Button2 != ev.Targets.Button2 {
			rr.Broadcasts = append(rr.Broadcasts, BroadcastTargetChanged{Button: buttonSecondary, Target: ev.Targets.Button2, At: ev.At})
		}

	case TapCompleted:
		s.Stats.Taps++

	case EffectFailed:
		// Failures stop at this boundary; the click window is never touched.
		switch c := ev.Command.(type) {
		case CmdTap:
			s.Stats.TapFailures++
			errText := ""
			if ev.Err != nil {
				errText = ev.Err.Error()
			}
			rr.Broadcasts = append(rr.Broadcasts, BroadcastTapFailed{Button: c.Button, Error: errText, At: ev.At})
		case CmdHaptic:
			s.Stats.HapticFailures++
		case CmdSaveTargets, CmdLoadTargets:
			s.Stats.StoreFailures++
		}

	default:
		// Unknown event type: no-op.
	}

	return rr
}

// reduceAction handles externally originated actions.
func reduceAction(rr *ReduceResult, a Event, at time.Time, cfg DispatchConfig) {
	s := rr.State

	switch a := a.(type) {
	case ButtonPressed:
		s.Stats.Presses++

		// Prefer the source timestamp so a backlog in the event queue cannot
		// move a press across the click timeout. The timer is shortened by the
		// same lag so it still fires one timeout after the press.
		pressAt, lag := at, time.Duration(0)
		if !a.At.IsZero() && !a.At.After(at) {
			pressAt, lag = a.At, at.Sub(a.At)
		}

		res := s.Clicks.Press(pressAt, cfg.ClickTimeout)
		if res.Settled != ClickNone {
			// The previous burst was due but its timer firing had not been reduced yet.
			settleBurst(rr, res.Settled, res.SettledCount, pressAt, cfg)
		}
		rr.Commands = append(rr.Commands, CmdArmClickTimer{
			Gen:   res.Arm.Gen,
			Count: res.Arm.Count,
			Delay: max(res.Arm.Delay-lag, 0),
		})

	case TriggerButton:
		triggerButton(rr, a.Button, at, cfg)

	case SetTarget:
		next, err := s.Targets.With(a.Button, ButtonTarget{X: a.X, Y: a.Y})
		if err != nil {
			return
		}
		s.SetObservedTargets(next, at)
		rr.Commands = append(rr.Commands, CmdSaveTargets{Targets: next})
		rr.Broadcasts = append(rr.Broadcasts, BroadcastTargetChanged{Button: a.Button, Target: ButtonTarget{X: a.X, Y: a.Y}, At: at})

	case ClearTarget:
		next, err := s.Targets.With(a.Button, UnsetTarget())
		if err != nil {
			return
		}
		s.SetObservedTargets(next, at)
		rr.Commands = append(rr.Commands, CmdSaveTargets{Targets: next})
		rr.Broadcasts = append(rr.Broadcasts, BroadcastTargetChanged{Button: a.Button, Target: UnsetTarget(), At: at})

	default:
		// no-op
	}
}

// settleBurst records the classification of a finished burst and triggers the
// matching button.
func settleBurst(rr *ReduceResult, action ClickAction, presses int, at time.Time, cfg DispatchConfig) {
	s := rr.State
	switch action {
	case ClickPrimary:
		s.Stats.Primary++
	case ClickSecondary:
		s.Stats.Secondary++
	}
	rr.Broadcasts = append(rr.Broadcasts, BroadcastClickClassified{Action: action, Presses: presses, At: at})
	triggerButton(rr, action.Button(), at, cfg)
}

// triggerButton taps the target of button n. Unset targets are a silent no-op.
func triggerButton(rr *ReduceResult, n int, at time.Time, cfg DispatchConfig) {
	s := rr.State

	target, err := s.Targets.Get(n)
	if err != nil || !target.IsSet() {
		s.Stats.SkippedUnset++
		return
	}

	rr.Commands = append(rr.Commands, CmdTap{
		Button:   n,
		X:        target.X,
		Y:        target.Y,
		Duration: cfg.TapDuration,
	})
	if cfg.Haptic {
		rr.Commands = append(rr.Commands, CmdHaptic{Duration: cfg.HapticDuration})
	}
	rr.Broadcasts = append(rr.Broadcasts, BroadcastButtonTriggered{
		Button: n,
		X:      target.X,
		Y:      target.Y,
		DimFor: cfg.DimDuration,
		At:     at,
	})

	s.Stats.LastTriggeredButton = n
	s.Stats.LastTriggeredAt = at
}
