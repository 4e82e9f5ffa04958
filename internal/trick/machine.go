package trick

import (
	"github.com/pkg/errors"

	"trickctl/internal/flightmode"
)

// FallbackMode is requested when the framework refuses the prior mode. It
// must differ from the prior mode, which is always Guided.
const FallbackMode = flightmode.Stabilize

// CommandKind is the class of attitude command issued on a tick.
type CommandKind int

const (
	CommandNone CommandKind = iota
	CommandRate
	CommandAngle
)

func (k CommandKind) String() string {
	switch k {
	case CommandRate:
		return "rate"
	case CommandAngle:
		return "angle"
	default:
		return "none"
	}
}

// Command is the attitude target handed to the controller. Rate commands are
// centi-degrees/s in the body frame, angle commands centi-degrees in the
// earth frame.
type Command struct {
	Kind         CommandKind
	Roll         float64
	Pitch        float64
	Yaw          float64
	ShortestPath bool
}

type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeCompleted
	OutcomeAbandoned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeAbandoned:
		return "abandoned"
	default:
		return "none"
	}
}

// Step reports what one Run call did.
type Step struct {
	AtMs      uint32
	ElapsedMs uint32
	Trick     ID
	State     State
	Attitude  Attitude
	FlipAngle int32
	Throttle  float64
	Command   Command
	Outcome   Outcome
}

// Machine runs trick sessions. It is driven from the control loop and is not
// safe for concurrent use.
type Machine struct {
	cfg Config
	d   Deps

	sess    Session
	active  bool
	outcome Outcome
}

func New(cfg Config, d Deps) (*Machine, error) {
	switch {
	case d.Sensor == nil:
		return nil, errors.New("trick: attitude sensor is nil")
	case d.Pilot == nil:
		return nil, errors.New("trick: pilot input is nil")
	case d.Status == nil:
		return nil, errors.New("trick: vehicle status is nil")
	case d.Attitude == nil:
		return nil, errors.New("trick: attitude controller is nil")
	case d.Motors == nil:
		return nil, errors.New("trick: motor output is nil")
	case d.Modes == nil:
		return nil, errors.New("trick: mode switcher is nil")
	case d.Clock == nil:
		return nil, errors.New("trick: clock is nil")
	case d.Log == nil:
		return nil, errors.New("trick: event logger is nil")
	}
	return &Machine{cfg: cfg, d: d}, nil
}

func (m *Machine) Config() Config { return m.cfg }

// SetConfig replaces the tunables used by the next Init. A running session
// keeps using the new values from its next tick.
func (m *Machine) SetConfig(cfg Config) { m.cfg = cfg }

// Session returns a copy of the current (or last) session.
func (m *Machine) Session() Session { return m.sess }

// Active reports whether a session is running and has not exited yet.
func (m *Machine) Active() bool { return m.active }

// Outcome is how the last session ended.
func (m *Machine) Outcome() Outcome { return m.outcome }

// Init starts a session. It returns false, leaving any previous session
// untouched, when the vehicle is not in a state to start a trick.
//
// The flag mirrors the mode framework's ignore-checks argument; the safety
// preconditions below are never skipped.
func (m *Machine) Init(bool) bool {
	if m.d.Pilot.ThrottleZero() && m.d.Status.Mode().ManualThrottle() {
		return false
	}
	if abs32(m.d.Pilot.RollStick()) >= maxStickAngle {
		return false
	}
	if !m.d.Status.Armed() || m.d.Status.Landed() {
		return false
	}

	now := m.d.Clock.Millis()
	s := Session{
		Trick: m.cfg.ID,
		// Always hand over to guided rather than the mode we came from, so a
		// mode bound to the trick switch cannot immediately re-trigger it.
		PriorMode:       flightmode.Guided,
		StartMs:         now,
		SubStateStartMs: now,
	}
	s.State, s.RollDir, s.PitchDir = selectManeuver(m.cfg.ID, m.d.Pilot.RollStick(), m.d.Pilot.PitchStick())
	if s.State == FallAndRecover {
		s.FallStartAltCm = m.d.Sensor.AltitudeCm()
	}

	m.d.Log.Event(EventStart)

	s.Original = captureAttitude(m.d.Sensor.Attitude(), m.d.Status.AngleMax())

	m.sess = s
	m.active = true
	m.outcome = OutcomeNone
	return true
}

// tick carries per-Run values between the guard, the handlers and the
// throttle output.
type tick struct {
	now       uint32
	att       Attitude
	flipAngle int32
	throttle  float64
	cmd       Command
	outcome   Outcome
}

type handler func(*Machine, *tick) State

var handlers = [...]handler{
	Start:           (*Machine).runStart,
	Roll:            (*Machine).runRoll,
	PitchA:          (*Machine).runPitchA,
	PitchB:          (*Machine).runPitchB,
	Recover:         (*Machine).runRecover,
	Abandon:         (*Machine).runAbandon,
	HitJerkStart:    (*Machine).runHitJerkStart,
	HitJerkRecover:  (*Machine).runHitJerkRecover,
	FallAndRecover:  (*Machine).runFallAndRecover,
	RecoverFromFall: (*Machine).runRecoverFromFall,
	VibrateStart:    (*Machine).runVibrateStart,
	Vibrating:       (*Machine).runVibrating,
	VibrateEnd:      (*Machine).runVibrateEnd,
}

// Run performs one control tick. It must be called at 100Hz or more while
// the trick mode is active. Once the session has exited Run does nothing.
func (m *Machine) Run() Step {
	if !m.active {
		return Step{Trick: m.sess.Trick, State: m.sess.State, Outcome: m.outcome}
	}

	now := m.d.Clock.Millis()
	if m.shouldAbandon(now) && m.sess.State != Abandon {
		m.enter(Abandon, now)
	}

	t := tick{
		now:      now,
		att:      m.d.Sensor.Attitude(),
		throttle: m.d.Pilot.DesiredThrottle(),
	}
	m.d.Motors.SetDesiredSpoolState(SpoolThrottleUnlimited)

	// Folding the direction into the angle lets every flip share one set of
	// thresholds.
	if m.sess.RollDir != 0 {
		t.flipAngle = t.att.Roll * m.sess.RollDir
	} else {
		t.flipAngle = t.att.Pitch * m.sess.PitchDir
	}

	next := m.sess.State
	if int(next) >= 0 && int(next) < len(handlers) {
		next = handlers[next](m, &t)
	} else {
		next = Abandon
	}
	if next != m.sess.State {
		m.enter(next, now)
	}

	m.d.Attitude.SetThrottleOut(t.throttle, false, m.cfg.ThrottleFilter)

	return Step{
		AtMs:      now,
		ElapsedMs: now - m.sess.StartMs,
		Trick:     m.sess.Trick,
		State:     m.sess.State,
		Attitude:  t.att,
		FlipAngle: t.flipAngle,
		Throttle:  t.throttle,
		Command:   t.cmd,
		Outcome:   t.outcome,
	}
}

// shouldAbandon is the pilot/timeout override. It is checked before every
// dispatch regardless of state.
func (m *Machine) shouldAbandon(now uint32) bool {
	return !m.d.Status.Armed() ||
		abs32(m.d.Pilot.RollStick()) >= maxStickAngle ||
		abs32(m.d.Pilot.PitchStick()) >= maxStickAngle ||
		now-m.sess.StartMs > timeoutMs
}

func (m *Machine) enter(s State, now uint32) {
	m.sess.State = s
	m.sess.SubStateStartMs = now
}

func (m *Machine) rate(t *tick, roll, pitch, yaw float64) {
	m.d.Attitude.InputRateBodyRollPitchYaw(roll, pitch, yaw)
	t.cmd = Command{Kind: CommandRate, Roll: roll, Pitch: pitch, Yaw: yaw}
}

func (m *Machine) angle(t *tick, roll, pitch, yaw float64, shortestPath bool) {
	m.d.Attitude.InputEulerAngleRollPitchYaw(roll, pitch, yaw, shortestPath)
	t.cmd = Command{Kind: CommandAngle, Roll: roll, Pitch: pitch, Yaw: yaw, ShortestPath: shortestPath}
}

func (m *Machine) angleOriginal(t *tick) {
	o := m.sess.Original
	m.angle(t, float64(o.Roll), float64(o.Pitch), float64(o.Yaw), false)
}

func (m *Machine) decreaseThrottle(t *tick) {
	t.throttle -= m.cfg.ThrottleDecrease
	if t.throttle < 0 {
		t.throttle = 0
	}
}

func (m *Machine) runStart(t *tick) State {
	rate := m.cfg.RotationRate
	m.rate(t, rate*float64(m.sess.RollDir), rate*float64(m.sess.PitchDir), 0)
	t.throttle += m.cfg.ThrottleIncrease

	if t.flipAngle >= flipAngleStart {
		if m.sess.RollDir != 0 {
			return Roll
		}
		return PitchA
	}
	return Start
}

func (m *Machine) runRoll(t *tick) State {
	m.rate(t, m.cfg.RotationRate*float64(m.sess.RollDir), 0, 0)
	m.decreaseThrottle(t)

	if t.flipAngle < flipAngleStart && t.flipAngle > rollRecoverLimit {
		return Recover
	}
	return Roll
}

func (m *Machine) runPitchA(t *tick) State {
	m.rate(t, 0, m.cfg.RotationRate*float64(m.sess.PitchDir), 0)
	m.decreaseThrottle(t)

	// Past vertical the Euler roll jumps to ±180: we are inverted.
	if abs32(t.att.Roll) > invertedRoll && t.flipAngle > flipAngleStart {
		return PitchB
	}
	return PitchA
}

func (m *Machine) runPitchB(t *tick) State {
	m.rate(t, 0, m.cfg.RotationRate*float64(m.sess.PitchDir), 0)
	m.decreaseThrottle(t)

	if abs32(t.att.Roll) < invertedRoll && t.flipAngle > pitchRecoverLimit {
		return Recover
	}
	return PitchB
}

func (m *Machine) runRecover(t *tick) State {
	m.angleOriginal(t)
	t.throttle += m.cfg.ThrottleIncrease

	var recoveryAngle int32
	if m.sess.RollDir != 0 {
		recoveryAngle = m.sess.Original.Roll - t.att.Roll
	} else {
		recoveryAngle = m.sess.Original.Pitch - t.att.Pitch
	}
	if float64(abs32(recoveryAngle)) <= m.cfg.RecoveryAngle {
		m.exit(t, OutcomeCompleted)
	}
	return Recover
}

func (m *Machine) runAbandon(t *tick) State {
	m.exit(t, OutcomeAbandoned)
	return Abandon
}

func (m *Machine) runHitJerkStart(t *tick) State {
	m.angle(t, jerkAngle, 0, 0, true)
	if t.now-m.sess.SubStateStartMs > jerkDurationMs {
		return HitJerkRecover
	}
	return HitJerkStart
}

func (m *Machine) runHitJerkRecover(t *tick) State {
	m.angleOriginal(t)
	if m.rollSettled(t) {
		m.exit(t, OutcomeCompleted)
	}
	return HitJerkRecover
}

func (m *Machine) runFallAndRecover(t *tick) State {
	t.throttle = m.cfg.FallThrottle
	if t.now-m.sess.SubStateStartMs > uint32(m.cfg.FallDuration.Milliseconds()) {
		m.sess.RecoverStartMs = t.now
		return RecoverFromFall
	}
	return FallAndRecover
}

func (m *Machine) runRecoverFromFall(t *tick) State {
	t.throttle += fallRecoverBoost
	if m.d.Sensor.AltitudeCm() >= m.sess.FallStartAltCm-fallAltitudeBuffer {
		m.exit(t, OutcomeCompleted)
	}
	return RecoverFromFall
}

func (m *Machine) runVibrateStart(t *tick) State {
	m.angle(t, float64(m.cfg.ShakeAngle), 0, 0, true)
	if t.att.Roll >= m.cfg.ShakeAngle {
		m.sess.VibrateStartMs = t.now
		return Vibrating
	}
	return VibrateStart
}

func (m *Machine) runVibrating(t *tick) State {
	elapsed := t.now - m.sess.VibrateStartMs
	half := uint32(m.cfg.ShakePeriod.Milliseconds())
	if half == 0 {
		half = 1
	}
	target := float64(m.cfg.ShakeAngle)
	if elapsed%(2*half) < half {
		target = -target
	}
	m.angle(t, target, 0, 0, true)
	t.throttle += vibrateBoost

	if elapsed >= uint32(m.cfg.ShakeDuration.Milliseconds()) {
		return VibrateEnd
	}
	return Vibrating
}

func (m *Machine) runVibrateEnd(t *tick) State {
	m.angleOriginal(t)
	t.throttle += vibrateEndBoost
	if m.rollSettled(t) {
		m.exit(t, OutcomeCompleted)
	}
	return VibrateEnd
}

func (m *Machine) rollSettled(t *tick) bool {
	return abs32(t.att.Roll-m.sess.Original.Roll) <= settleTolerance
}

// exit hands control back to the mode framework. It runs once per session.
func (m *Machine) exit(t *tick, outcome Outcome) {
	if !m.d.Modes.SetMode(m.sess.PriorMode, flightmode.ReasonTrickComplete) {
		m.d.Modes.SetMode(FallbackMode, flightmode.ReasonUnknown)
	}
	if outcome == OutcomeAbandoned {
		m.d.Log.Error(SubsystemFlip, ErrorFlipAbandoned)
	} else {
		m.d.Log.Event(EventEnd)
	}
	m.active = false
	m.outcome = outcome
	t.outcome = outcome
}
