package trick

import (
	"fmt"
	"time"
)

// ID selects the maneuver a session performs.
type ID int

const (
	// StickSelect picks a roll or pitch flip from the pilot's sticks.
	StickSelect ID = iota
	RollRight
	RollLeft
	PitchBack
	PitchForward
	HitJerk
	FallRecover
	Vibrate
)

// MaxID is the highest maneuver id understood by the machine. Unknown ids
// behave like StickSelect.
const MaxID = Vibrate

var idNames = [...]string{
	StickSelect:  "stick-select",
	RollRight:    "roll-right",
	RollLeft:     "roll-left",
	PitchBack:    "pitch-back",
	PitchForward: "pitch-forward",
	HitJerk:      "hit-jerk",
	FallRecover:  "fall-recover",
	Vibrate:      "vibrate",
}

func (id ID) String() string {
	if id >= 0 && int(id) < len(idNames) {
		return idNames[id]
	}
	return fmt.Sprintf("trick(%d)", int(id))
}

// State is a step of the trick state machine.
type State int

const (
	Start State = iota
	Roll
	PitchA
	PitchB
	Recover
	Abandon
	HitJerkStart
	HitJerkRecover
	FallAndRecover
	RecoverFromFall
	VibrateStart
	Vibrating
	VibrateEnd
)

var stateNames = [...]string{
	Start:           "start",
	Roll:            "roll",
	PitchA:          "pitch-a",
	PitchB:          "pitch-b",
	Recover:         "recover",
	Abandon:         "abandon",
	HitJerkStart:    "hit-jerk-start",
	HitJerkRecover:  "hit-jerk-recover",
	FallAndRecover:  "fall-and-recover",
	RecoverFromFall: "recover-from-fall",
	VibrateStart:    "vibrate-start",
	Vibrating:       "vibrating",
	VibrateEnd:      "vibrate-end",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Fixed limits. Angles are centi-degrees, times are milliseconds.
const (
	// Stick deflection (out of ±4500) that refuses Init and abandons a running trick.
	maxStickAngle = 4000
	// Pitch stick deflection that selects a pitch flip in StickSelect.
	stickSelectThreshold = 300

	timeoutMs = 2500

	flipAngleStart    = 4500
	rollRecoverLimit  = -9000
	invertedRoll      = 9000
	pitchRecoverLimit = -4500

	jerkAngle      = 500
	jerkDurationMs = 100
	// Roll error accepted as "back level" after a jerk or a shake.
	settleTolerance = 100

	// Altitude (cm) the vehicle may end below its fall start and still count as recovered.
	fallAltitudeBuffer = 500

	fallRecoverBoost = 0.2
	vibrateBoost     = 0.6
	vibrateEndBoost  = 0.8
)

// Timeout is the hard wall-clock budget of one session.
const Timeout = timeoutMs * time.Millisecond

const (
	dirRight   = 1
	dirLeft    = -1
	dirBack    = 1
	dirForward = -1
)

// Config holds the trick tunables.
type Config struct {
	ID ID

	// RotationRate is the body rate requested during a flip, centi-degrees/s.
	RotationRate float64
	// ThrottleIncrease is added to pilot throttle while climbing into and out of a flip.
	ThrottleIncrease float64
	// ThrottleDecrease is removed from pilot throttle while inverted.
	ThrottleDecrease float64
	// RecoveryAngle is the attitude error (centi-degrees) that ends Recover.
	RecoveryAngle float64

	FallThrottle float64
	FallDuration time.Duration

	// ShakeAngle is the roll amplitude of the vibrate trick, centi-degrees.
	ShakeAngle int32
	// ShakePeriod is how long each side of the shake is held.
	ShakePeriod   time.Duration
	ShakeDuration time.Duration

	// ThrottleFilter is the cutoff (Hz) handed to the throttle output stage.
	ThrottleFilter float64
}

func DefaultConfig() Config {
	return Config{
		ID:               RollRight,
		RotationRate:     40000,
		ThrottleIncrease: 0.20,
		ThrottleDecrease: 0.24,
		RecoveryAngle:    500,
		FallThrottle:     0.1,
		FallDuration:     50 * time.Millisecond,
		ShakeAngle:       50,
		ShakePeriod:      50 * time.Millisecond,
		ShakeDuration:    500 * time.Millisecond,
		ThrottleFilter:   2.0,
	}
}
