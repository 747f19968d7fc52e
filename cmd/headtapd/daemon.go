package main

import (
	"context"
	"log/slog"
	"time"
)

// ============================================================================
// Central Daemon Loop - Reducer-driven "Daemon Brain"
// ============================================================================
//
// Design rules enforced here:
//   - The reducer performs no I/O and computes: next state + commands + broadcasts.
//   - Every press and every click timer firing is reduced on this goroutine, so the
//     click window has a single logical timeline.
//   - The loop owns the one click timer. Arming it always stops (and drains) the
//     previous one; the reducer additionally drops firings from stale generations.
//   - Blocking side effects (taps, haptics, target storage) run on the effects
//     worker; their observations come back as Events.
//
// ============================================================================

// runDaemon is the main daemon loop.
//
// Shutdown semantics:
//   - Exits when ctx is canceled
//   - Exits cleanly when the events channel is closed
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	fx Effects,
	cfg DispatchConfig,
	state *DaemonState,
	broadcasts chan<- StateBroadcast,
	logger *slog.Logger,
) {
	if state == nil {
		state = NewDaemonState()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	effectCmds := make(chan Command, 64)
	observations := make(chan Event, 64)
	go runEffectsWorker(ctx, fx, effectCmds, observations, logger)

	// Click timer. At most one is outstanding at any time.
	var (
		clickTimer  *time.Timer
		clickTimerC <-chan time.Time
		clickArmed  CmdArmClickTimer
	)

	stopClickTimer := func() {
		if clickTimer == nil {
			clickTimerC = nil
			return
		}
		if !clickTimer.Stop() {
			select {
			case <-clickTimer.C:
			default:
			}
		}
		clickTimer = nil
		clickTimerC = nil
	}
	defer stopClickTimer()

	armClickTimer := func(c CmdArmClickTimer) {
		stopClickTimer()
		clickArmed = c
		clickTimer = time.NewTimer(c.Delay)
		clickTimerC = clickTimer.C
	}

	publish := func(b StateBroadcast) {
		if broadcasts == nil {
			return
		}
		select {
		case broadcasts <- b:
		default:
			logger.Warn("broadcast queue full, dropping feedback event", "type", broadcastType(b))
		}
	}

	// Commands wait here until the effects worker takes them. The loop never
	// blocks on the worker, so observations are always drained.
	var cmdQueue []Command

	dispatch := func(cmd Command) {
		switch c := cmd.(type) {
		case CmdArmClickTimer:
			armClickTimer(c)
		case CmdPublishStateSnapshot:
			// Answered here so a snapshot never waits behind queued taps.
			replySnapshot(c, logger)
		default:
			cmdQueue = append(cmdQueue, cmd)
		}
	}

	// Explicit queue so observation events produced while reducing are handled
	// in order (no re-entrant reduction).
	var eventQueue []Event

	flushEvents := func() {
		for len(eventQueue) > 0 {
			ev := eventQueue[0]
			eventQueue = eventQueue[1:]

			rr := Reduce(state, ev, cfg)
			if rr.State != nil {
				state = rr.State
			}
			for _, b := range rr.Broadcasts {
				publish(b)
			}
			for _, cmd := range rr.Commands {
				logger.Debug("command", "cmd", cmd.String())
				dispatch(cmd)
			}
		}
	}

	for {
		var (
			nextCmd  Command
			effectsC chan<- Command
		)
		if len(cmdQueue) > 0 {
			nextCmd = cmdQueue[0]
			effectsC = effectCmds
		}

		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case effectsC <- nextCmd:
			cmdQueue[0] = nil
			cmdQueue = cmdQueue[1:]

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return
			}
			eventQueue = append(eventQueue, TimedEvent{Event: ev, At: time.Now()})
			flushEvents()

		case obs := <-observations:
			eventQueue = append(eventQueue, obs)
			flushEvents()

		case now := <-clickTimerC:
			fired := clickArmed
			clickTimer = nil
			clickTimerC = nil
			eventQueue = append(eventQueue, ClickWindowElapsed{Gen: fired.Gen, Count: fired.Count, At: now})
			flushEvents()
		}
	}
}

// broadcastType names a broadcast for logs.
func broadcastType(b StateBroadcast) string {
	if ev, ok := convertBroadcast(b); ok {
		return ev.Type
	}
	return "unknown"
}

// replySnapshot hands a snapshot to its requester without blocking the loop.
func replySnapshot(c CmdPublishStateSnapshot, logger *slog.Logger) {
	if c.Reply == nil {
		logger.Warn("state snapshot requested with nil reply channel")
		return
	}
	select {
	case c.Reply <- c.Snapshot:
	default:
		logger.Warn("state snapshot reply channel not ready; dropping snapshot")
	}
}
