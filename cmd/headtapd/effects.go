package main

import (
	"context"
	"log/slog"
	"time"
)

// Effects bundles the collaborators commands are executed against.
// Any of them may be nil; the matching commands then fail with errNoCollaborator.
type Effects struct {
	Injector TapInjector
	Vibrator Vibrator
	Store    TargetStore

	// Timeout bounds each tap/haptic/store call.
	Timeout time.Duration
}

// runEffect executes a single reducer-emitted Command against external systems
// and emits an observation Event via onEvent.
//
// Design rules:
// - This function is allowed to perform I/O.
// - It must never call Reduce() directly; it only emits Events to be reduced by the daemon loop.
// - Errors are reported as EffectFailed and never returned; a failed tap must not
//   take the daemon down.
func runEffect(
	ctx context.Context,
	fx Effects,
	cmd Command,
	logger *slog.Logger,
	onEvent func(Event),
) {
	if onEvent == nil {
		// No place to report observations/errors; nothing sensible to do.
		return
	}

	timeout := fx.Timeout
	if timeout <= 0 {
		timeout = time.Duration(defaultEffectTimeoutMS) * time.Millisecond
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	now := time.Now()

	switch c := cmd.(type) {
	case CmdTap:
		if fx.Injector == nil {
			onEvent(EffectFailed{Command: cmd, Err: errNoCollaborator{what: "tap injector"}, At: now})
			return
		}
		if err := fx.Injector.Tap(callCtx, c.X, c.Y, c.Duration); err != nil {
			logger.Error("tap failed", "error", err, "button", c.Button, "x", c.X, "y", c.Y)
			onEvent(EffectFailed{Command: cmd, Err: err, At: now})
			return
		}
		logger.Debug("tap dispatched", "button", c.Button, "x", c.X, "y", c.Y, "duration", c.Duration)
		onEvent(TapCompleted{Button: c.Button, At: now})

	case CmdHaptic:
		if fx.Vibrator == nil {
			onEvent(EffectFailed{Command: cmd, Err: errNoCollaborator{what: "vibrator"}, At: now})
			return
		}
		if err := fx.Vibrator.Vibrate(callCtx, c.Duration); err != nil {
			logger.Warn("haptic feedback failed", "error", err)
			onEvent(EffectFailed{Command: cmd, Err: err, At: now})
		}

	case CmdSaveTargets:
		if fx.Store == nil {
			onEvent(EffectFailed{Command: cmd, Err: errNoCollaborator{what: "target store"}, At: now})
			return
		}
		if err := fx.Store.Save(c.Targets); err != nil {
			logger.Error("saving targets failed", "error", err)
			onEvent(EffectFailed{Command: cmd, Err: err, At: now})
			return
		}
		// The reducer already applied the targets; nothing to observe.
		logger.Debug("targets saved", "button1", c.Targets.Button1, "button2", c.Targets.Button2)

	case CmdLoadTargets:
		if fx.Store == nil {
			onEvent(EffectFailed{Command: cmd, Err: errNoCollaborator{what: "target store"}, At: now})
			return
		}
		t, err := fx.Store.Load()
		if err != nil {
			logger.Error("loading targets failed", "error", err)
			onEvent(EffectFailed{Command: cmd, Err: err, At: now})
			return
		}
		onEvent(TargetsObserved{Targets: t, At: now})

	default:
		logger.Warn("unknown command type", "command", cmd.String())
		onEvent(EffectFailed{
			Command: cmd,
			Err:     errUnknownCommand{cmd: cmd},
			At:      now,
		})
	}
}

// runEffectsWorker executes commands one at a time until ctx is canceled or cmds
// is closed. Observations are delivered to out; the send respects ctx so the
// worker never outlives the daemon.
func runEffectsWorker(ctx context.Context, fx Effects, cmds <-chan Command, out chan<- Event, logger *slog.Logger) {
	emit := func(ev Event) {
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-cmds:
			if !ok {
				return
			}
			runEffect(ctx, fx, cmd, logger, emit)
		}
	}
}

// errNoCollaborator indicates a command arrived for a collaborator that is not configured.
type errNoCollaborator struct {
	what string
}

func (e errNoCollaborator) Error() string { return "no " + e.what + " configured" }

type errUnknownCommand struct {
	cmd Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }
