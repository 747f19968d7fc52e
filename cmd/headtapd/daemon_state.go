package main

import "time"

// DaemonState is the top-level, daemon-owned state container.
//
// Only the daemon goroutine reads or writes it. Other goroutines get copies via
// StateSnapshot, requested through the event loop.
type DaemonState struct {
	// Clicks is the debounce window shared by every press source.
	Clicks ClickWindow

	// Targets are the persisted tap coordinates, as last loaded or set.
	Targets      ButtonTargets
	TargetsKnown bool
	TargetsAt    time.Time

	Stats DaemonStats
}

// DaemonStats are counters exposed through snapshots.
type DaemonStats struct {
	Presses   uint64
	Primary   uint64
	Secondary uint64

	// Triggers that ran against a set target.
	Taps uint64
	// Triggers skipped because the target was unset.
	SkippedUnset uint64

	TapFailures    uint64
	HapticFailures uint64
	StoreFailures  uint64

	LastTriggeredButton int
	LastTriggeredAt     time.Time
}

// NewDaemonState returns a state with every target unset.
func NewDaemonState() *DaemonState {
	return &DaemonState{Targets: DefaultButtonTargets()}
}

// SetObservedTargets updates the cached targets after a load or a successful save.
func (s *DaemonState) SetObservedTargets(t ButtonTargets, now time.Time) {
	s.Targets = t
	s.TargetsKnown = true
	s.TargetsAt = now
}

// StateSnapshot is an immutable copy of the parts of DaemonState that are
// published to other goroutines.
type StateSnapshot struct {
	Targets      ButtonTargets
	TargetsKnown bool
	Pending      int
	Stats        DaemonStats
	At           time.Time
}

// Snapshot copies the publishable state.
func (s *DaemonState) Snapshot(now time.Time) StateSnapshot {
	return StateSnapshot{
		Targets:      s.Targets,
		TargetsKnown: s.TargetsKnown,
		Pending:      s.Clicks.PendingCount,
		Stats:        s.Stats,
		At:           now,
	}
}
