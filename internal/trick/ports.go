package trick

import "trickctl/internal/flightmode"

// Attitude is an Euler attitude in centi-degrees.
type Attitude struct {
	Roll  int32
	Pitch int32
	Yaw   int32
}

type AttitudeSensor interface {
	Attitude() Attitude
	AltitudeCm() int32
}

// PilotInput is the decoded RC input. Stick deflection is ±4500.
type PilotInput interface {
	RollStick() int32
	PitchStick() int32
	DesiredThrottle() float64
	ThrottleZero() bool
}

type VehicleStatus interface {
	Armed() bool
	Landed() bool
	Mode() flightmode.Mode
	// AngleMax is the configured maximum lean angle, centi-degrees.
	AngleMax() int32
}

// AttitudeController accepts one attitude target per tick plus the throttle.
type AttitudeController interface {
	InputRateBodyRollPitchYaw(rollRate, pitchRate, yawRate float64)
	InputEulerAngleRollPitchYaw(roll, pitch, yaw float64, shortestPath bool)
	SetThrottleOut(throttle float64, applyAngleBoost bool, filterCutoff float64)
}

type SpoolState int

const (
	SpoolShutDown SpoolState = iota
	SpoolGroundIdle
	SpoolThrottleUnlimited
)

func (s SpoolState) String() string {
	switch s {
	case SpoolGroundIdle:
		return "ground-idle"
	case SpoolThrottleUnlimited:
		return "throttle-unlimited"
	default:
		return "shut-down"
	}
}

type MotorOutput interface {
	SetDesiredSpoolState(SpoolState)
}

// ModeSwitcher asks the flight-mode framework to leave the trick.
// It returns false if the framework refused the mode.
type ModeSwitcher interface {
	SetMode(mode flightmode.Mode, reason flightmode.Reason) bool
}

// Clock is a monotonic millisecond counter. It may wrap.
type Clock interface {
	Millis() uint32
}

type Event int

const (
	EventStart Event = iota
	EventEnd
)

func (e Event) String() string {
	if e == EventEnd {
		return "FLIP_END"
	}
	return "FLIP_START"
}

type ErrorSubsystem int

const SubsystemFlip ErrorSubsystem = 13

func (s ErrorSubsystem) String() string {
	if s == SubsystemFlip {
		return "FLIP"
	}
	return "UNKNOWN"
}

type ErrorCode int

const ErrorFlipAbandoned ErrorCode = 2

func (c ErrorCode) String() string {
	if c == ErrorFlipAbandoned {
		return "FLIP_ABANDONED"
	}
	return "UNKNOWN"
}

type EventLogger interface {
	Event(e Event)
	Error(sub ErrorSubsystem, code ErrorCode)
}

// Vehicle is everything the machine needs from the aircraft, usually one
// value (the flight stack or a simulator).
type Vehicle interface {
	AttitudeSensor
	PilotInput
	VehicleStatus
	AttitudeController
	MotorOutput
	ModeSwitcher
	Clock
}

// Deps wires the machine to its collaborators.
type Deps struct {
	Sensor   AttitudeSensor
	Pilot    PilotInput
	Status   VehicleStatus
	Attitude AttitudeController
	Motors   MotorOutput
	Modes    ModeSwitcher
	Clock    Clock
	Log      EventLogger
}

func NewDeps(v Vehicle, log EventLogger) Deps {
	return Deps{
		Sensor:   v,
		Pilot:    v,
		Status:   v,
		Attitude: v,
		Motors:   v,
		Modes:    v,
		Clock:    v,
		Log:      log,
	}
}
