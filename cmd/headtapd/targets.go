package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	ErrUnknownButton = errors.New("unknown button")
	ErrInvalidTarget = errors.New("invalid target coordinates")
)

// ButtonTarget is the screen coordinate a button taps. (-1, -1) means unset.
type ButtonTarget struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// UnsetTarget returns the sentinel target.
func UnsetTarget() ButtonTarget {
	return ButtonTarget{X: targetUnset, Y: targetUnset}
}

// IsSet reports whether both coordinates are valid.
func (t ButtonTarget) IsSet() bool {
	return t.X >= 0 && t.Y >= 0
}

// ButtonTargets holds the target of every button, indexed by button number.
type ButtonTargets struct {
	Button1 ButtonTarget
	Button2 ButtonTarget
}

// DefaultButtonTargets returns targets with every button unset.
func DefaultButtonTargets() ButtonTargets {
	return ButtonTargets{Button1: UnsetTarget(), Button2: UnsetTarget()}
}

// Get returns the target for button n.
func (t ButtonTargets) Get(n int) (ButtonTarget, error) {
	switch n {
	case buttonPrimary:
		return t.Button1, nil
	case buttonSecondary:
		return t.Button2, nil
	default:
		return UnsetTarget(), fmt.Errorf("%w: %d", ErrUnknownButton, n)
	}
}

// With returns a copy of t with button n set to target.
func (t ButtonTargets) With(n int, target ButtonTarget) (ButtonTargets, error) {
	switch n {
	case buttonPrimary:
		t.Button1 = target
	case buttonSecondary:
		t.Button2 = target
	default:
		return t, fmt.Errorf("%w: %d", ErrUnknownButton, n)
	}
	return t, nil
}

// validateButton checks a button number coming from an external request.
func validateButton(n int) error {
	if n != buttonPrimary && n != buttonSecondary {
		return fmt.Errorf("%w: %d (must be %d or %d)", ErrUnknownButton, n, buttonPrimary, buttonSecondary)
	}
	return nil
}

// validateTarget checks coordinates coming from an external request.
func validateTarget(x, y int) error {
	if x < 0 || y < 0 {
		return fmt.Errorf("%w: (%d, %d)", ErrInvalidTarget, x, y)
	}
	return nil
}

// targetsFile is the on-disk representation. Keys match the preference names
// the targets have always been stored under.
type targetsFile struct {
	Button1X int `json:"button1_x"`
	Button1Y int `json:"button1_y"`
	Button2X int `json:"button2_x"`
	Button2Y int `json:"button2_y"`
}

// TargetStore persists button targets as a small JSON file.
type TargetStore interface {
	Load() (ButtonTargets, error)
	Save(ButtonTargets) error
}

// FileTargetStore is a TargetStore backed by a single JSON file.
// Writes go through a temp file and rename so a crash never leaves a torn file.
type FileTargetStore struct {
	mu   sync.Mutex
	path string
}

// NewFileTargetStore returns a store for path. An empty path selects the
// default location under the user config directory.
func NewFileTargetStore(path string) (*FileTargetStore, error) {
	if path == "" {
		p, err := defaultTargetsPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &FileTargetStore{path: ExpandPath(path)}, nil
}

func defaultTargetsPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil || configDir == "" {
		return filepath.Join(".", ".headtap-targets.json"), nil
	}
	return filepath.Join(configDir, "headtap", "targets.json"), nil
}

// Path returns the file the store reads and writes.
func (s *FileTargetStore) Path() string { return s.path }

// Load reads the targets file. A missing file yields all-unset targets.
// Keys missing from the file stay unset.
func (s *FileTargetStore) Load() (ButtonTargets, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultButtonTargets(), nil
		}
		return DefaultButtonTargets(), fmt.Errorf("read targets: %w", err)
	}

	f := targetsFile{
		Button1X: targetUnset,
		Button1Y: targetUnset,
		Button2X: targetUnset,
		Button2Y: targetUnset,
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return DefaultButtonTargets(), fmt.Errorf("parse targets %s: %w", s.path, err)
	}

	return ButtonTargets{
		Button1: normalizeTarget(ButtonTarget{X: f.Button1X, Y: f.Button1Y}),
		Button2: normalizeTarget(ButtonTarget{X: f.Button2X, Y: f.Button2Y}),
	}, nil
}

// Save writes targets atomically.
func (s *FileTargetStore) Save(t ButtonTargets) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create targets dir: %w", err)
	}

	data, err := json.MarshalIndent(targetsFile{
		Button1X: t.Button1.X,
		Button1Y: t.Button1.Y,
		Button2X: t.Button2.X,
		Button2Y: t.Button2.Y,
	}, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write targets: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("persist targets: %w", err)
	}
	return nil
}

// normalizeTarget collapses half-set coordinates to the unset sentinel.
func normalizeTarget(t ButtonTarget) ButtonTarget {
	if !t.IsSet() {
		return UnsetTarget()
	}
	return t
}
