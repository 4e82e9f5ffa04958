package flightmode

import "fmt"

// Mode identifies a vehicle flight mode. Numbers follow the usual copter
// mode numbering so they line up with ground-station tooling.
type Mode int

const (
	Stabilize Mode = 0
	Acro      Mode = 1
	AltHold   Mode = 2
	Auto      Mode = 3
	Guided    Mode = 4
	Loiter    Mode = 5
	RTL       Mode = 6
	Land      Mode = 9
	Flip      Mode = 14
)

var modeNames = map[Mode]string{
	Stabilize: "STABILIZE",
	Acro:      "ACRO",
	AltHold:   "ALT_HOLD",
	Auto:      "AUTO",
	Guided:    "GUIDED",
	Loiter:    "LOITER",
	RTL:       "RTL",
	Land:      "LAND",
	Flip:      "FLIP",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("MODE(%d)", int(m))
}

// ManualThrottle reports whether the pilot drives throttle directly in m.
// A trick must not start from these modes with the throttle stick at zero.
func (m Mode) ManualThrottle() bool {
	return m == Acro || m == Stabilize
}

// Parse maps a mode name (as printed by String) back to a Mode.
func Parse(name string) (Mode, error) {
	for m, s := range modeNames {
		if s == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown flight mode %q", name)
}

// Reason records why a mode change was requested.
type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonRCCommand
	ReasonGCSCommand
	ReasonTrickComplete
)

func (r Reason) String() string {
	switch r {
	case ReasonRCCommand:
		return "RC_COMMAND"
	case ReasonGCSCommand:
		return "GCS_COMMAND"
	case ReasonTrickComplete:
		return "TRICK_COMPLETE"
	default:
		return "UNKNOWN"
	}
}
