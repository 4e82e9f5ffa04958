// Package trigger turns the aux "trick" switch into edges for the control
// loop. The switch can be a GPIO input or any boolean source such as a
// scripted pilot.
package trigger

import (
	"sync"

	"github.com/pkg/errors"
)

type Edge int

const (
	EdgeNone Edge = iota
	// EdgeRise is the switch moving to on: start a trick.
	EdgeRise
	// EdgeFall is the switch moving to off: leave the trick mode.
	EdgeFall
)

func (e Edge) String() string {
	switch e {
	case EdgeRise:
		return "rise"
	case EdgeFall:
		return "fall"
	default:
		return "none"
	}
}

// Detector debounces a boolean level and reports edges. A level must be
// seen on Debounce consecutive samples before it is accepted.
type Detector struct {
	Debounce int

	level   bool
	pending bool
	count   int
}

func NewDetector(debounce int, initial bool) *Detector {
	return &Detector{Debounce: debounce, level: initial, pending: initial}
}

// Level is the accepted (debounced) switch position.
func (d *Detector) Level() bool { return d.level }

// Sample feeds one reading and returns the resulting edge, if any.
func (d *Detector) Sample(on bool) Edge {
	if on != d.pending {
		d.pending = on
		d.count = 0
	}
	d.count++
	need := d.Debounce
	if need < 1 {
		need = 1
	}
	if d.pending == d.level || d.count < need {
		return EdgeNone
	}
	d.level = d.pending
	if d.level {
		return EdgeRise
	}
	return EdgeFall
}

type input interface {
	Value() (int, error)
	Close() error
}

// Config selects the GPIO input.
type Config struct {
	Pin       int
	ActiveLow bool
	Debounce  int
}

// Snapshot is what the status page shows about the switch.
type Snapshot struct {
	Enabled   bool   `json:"enabled"`
	Pin       int    `json:"pin"`
	Level     bool   `json:"level"`
	Rises     int    `json:"rises"`
	Falls     int    `json:"falls"`
	LastError string `json:"last_error,omitempty"`
}

// Switch polls a GPIO input from the control loop.
type Switch struct {
	cfg Config
	in  input
	det *Detector

	mu   sync.RWMutex
	snap Snapshot
}

// Open requests the GPIO line. The initial level is read so a switch left on
// at startup does not fire a trick.
func Open(cfg Config) (*Switch, error) {
	in, err := openGPIOFn(cfg.Pin, cfg.ActiveLow)
	if err != nil {
		return nil, err
	}
	v, err := in.Value()
	if err != nil {
		_ = in.Close()
		return nil, errors.Wrap(err, "trigger: read initial level")
	}
	s := &Switch{
		cfg:  cfg,
		in:   in,
		det:  NewDetector(cfg.Debounce, v != 0),
		snap: Snapshot{Enabled: true, Pin: cfg.Pin, Level: v != 0},
	}
	return s, nil
}

// Poll reads the input once. Read errors keep the last level.
func (s *Switch) Poll() (Edge, error) {
	v, err := s.in.Value()
	if err != nil {
		s.mu.Lock()
		s.snap.LastError = err.Error()
		s.mu.Unlock()
		return EdgeNone, errors.Wrap(err, "trigger: read")
	}
	e := s.det.Sample(v != 0)

	s.mu.Lock()
	s.snap.Level = s.det.Level()
	s.snap.LastError = ""
	switch e {
	case EdgeRise:
		s.snap.Rises++
	case EdgeFall:
		s.snap.Falls++
	}
	s.mu.Unlock()
	return e, nil
}

func (s *Switch) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Switch) Close() error {
	if s == nil || s.in == nil {
		return nil
	}
	return s.in.Close()
}
