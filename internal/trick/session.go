package trick

import "trickctl/internal/flightmode"

// Session is the single active maneuver. It is created by Machine.Init and
// only mutated by Machine.Run.
type Session struct {
	Trick ID
	State State

	// At most one of RollDir/PitchDir is nonzero, and both are zero for
	// jerk, fall and vibrate.
	RollDir  int32
	PitchDir int32

	// Original is the attitude at Init, roll and pitch clamped to the max
	// lean angle. It is the earth-frame recovery target.
	Original  Attitude
	PriorMode flightmode.Mode

	StartMs         uint32
	SubStateStartMs uint32
	VibrateStartMs  uint32
	RecoverStartMs  uint32
	FallStartAltCm  int32
}

// selectManeuver maps a trick id and the pilot sticks to the first state and
// the flip axis. Forced ids win; anything else falls back to the sticks.
func selectManeuver(id ID, rollStick, pitchStick int32) (state State, rollDir, pitchDir int32) {
	switch id {
	case RollRight:
		return Start, dirRight, 0
	case RollLeft:
		return Start, dirLeft, 0
	case PitchBack:
		return Start, 0, dirBack
	case PitchForward:
		return Start, 0, dirForward
	case HitJerk:
		return HitJerkStart, 0, 0
	case FallRecover:
		return FallAndRecover, 0, 0
	case Vibrate:
		return VibrateStart, 0, 0
	}

	switch {
	case pitchStick > stickSelectThreshold:
		return Start, 0, dirBack
	case pitchStick < -stickSelectThreshold:
		return Start, 0, dirForward
	case rollStick >= 0:
		return Start, dirRight, 0
	default:
		return Start, dirLeft, 0
	}
}

func captureAttitude(att Attitude, angleMax int32) Attitude {
	if angleMax < 0 {
		angleMax = -angleMax
	}
	return Attitude{
		Roll:  clamp32(att.Roll, -angleMax, angleMax),
		Pitch: clamp32(att.Pitch, -angleMax, angleMax),
		Yaw:   att.Yaw,
	}
}

func clamp32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
