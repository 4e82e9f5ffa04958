package sim

import (
	"math"
	"sync"
	"time"

	"go.einride.tech/pid"

	"trickctl/internal/clock"
	"trickctl/internal/flightmode"
	"trickctl/internal/trick"
)

// Config describes the simulated vehicle.
type Config struct {
	Tick              time.Duration
	InitialAltitudeCm int32
	Armed             bool
	Mode              flightmode.Mode
	// AngleMax is the maximum lean angle in centi-degrees.
	AngleMax      int32
	HoverThrottle float64
	Gains         ControlGains
}

func DefaultConfig() Config {
	return Config{
		Tick:              10 * time.Millisecond,
		InitialAltitudeCm: 2000,
		Armed:             true,
		Mode:              flightmode.Stabilize,
		AngleMax:          3000,
		HoverThrottle:     0.5,
		Gains:             DefaultControlGains(),
	}
}

// ModeChange is one accepted or refused mode request.
type ModeChange struct {
	AtMs     uint32
	From     flightmode.Mode
	To       flightmode.Mode
	Reason   flightmode.Reason
	Accepted bool
}

// Vehicle is a software-in-the-loop copter. It implements trick.Vehicle and
// plays the role of the flight-mode framework: outside the trick mode it
// flies itself from the pilot sticks (stabilize) or holds altitude (guided).
//
// Vehicle is driven from a single control loop goroutine; only the
// accessors used by status pages take the lock.
type Vehicle struct {
	cfg Config

	clk    *clock.Manual
	copter *Copter
	ctl    *AttitudeControl
	altPID pid.Controller

	pilot PilotState
	armed bool
	mode  flightmode.Mode
	spool trick.SpoolState

	guidedAltCm int32

	mu      sync.Mutex
	refuse  map[flightmode.Mode]bool
	history []ModeChange
}

func NewVehicle(cfg Config) *Vehicle {
	def := DefaultConfig()
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.AngleMax <= 0 {
		cfg.AngleMax = def.AngleMax
	}
	if cfg.HoverThrottle <= 0 {
		cfg.HoverThrottle = def.HoverThrottle
	}
	if cfg.Gains == (ControlGains{}) {
		cfg.Gains = def.Gains
	}
	v := &Vehicle{
		cfg:    cfg,
		clk:    clock.NewManual(0),
		copter: NewCopter(cfg.InitialAltitudeCm, cfg.HoverThrottle),
		ctl:    NewAttitudeControl(cfg.Gains),
		altPID: pid.Controller{
			Config: pid.ControllerConfig{
				ProportionalGain: 0.15,
				IntegralGain:     0.02,
				DerivativeGain:   0.25,
			},
		},
		armed:  cfg.Armed,
		mode:   cfg.Mode,
		refuse: map[flightmode.Mode]bool{},
	}
	v.guidedAltCm = v.copter.AltitudeCm()
	if v.armed {
		v.spool = trick.SpoolThrottleUnlimited
	}
	return v
}

// Tick is the control loop interval.
func (v *Vehicle) Tick() time.Duration { return v.cfg.Tick }

// SetPilot latches the pilot input for the next tick. Disarming through the
// pilot input stops the motors.
func (v *Vehicle) SetPilot(s PilotState) {
	v.pilot = s
	if s.Armed != v.armed {
		v.SetArmed(s.Armed)
	}
}

func (v *Vehicle) SetArmed(armed bool) {
	v.armed = armed
	if armed {
		v.spool = trick.SpoolThrottleUnlimited
		return
	}
	v.spool = trick.SpoolShutDown
	v.ctl.Reset()
}

// RefuseMode makes later SetMode requests for m fail.
func (v *Vehicle) RefuseMode(m flightmode.Mode, refuse bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.refuse[m] = refuse
}

// ModeHistory returns every mode request seen so far.
func (v *Vehicle) ModeHistory() []ModeChange {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]ModeChange, len(v.history))
	copy(out, v.history)
	return out
}

// EnterTrick is the framework's switch into the trick mode: the mode's Init
// runs against the current mode and the switch happens only if it accepts.
func (v *Vehicle) EnterTrick(m *trick.Machine, reason flightmode.Reason) bool {
	if v.mode == flightmode.Flip {
		return false
	}
	ok := m.Init(false)
	v.record(flightmode.Flip, reason, ok)
	if ok {
		v.mode = flightmode.Flip
	}
	return ok
}

func (v *Vehicle) record(to flightmode.Mode, reason flightmode.Reason, accepted bool) {
	v.mu.Lock()
	v.history = append(v.history, ModeChange{
		AtMs:     v.clk.Millis(),
		From:     v.mode,
		To:       to,
		Reason:   reason,
		Accepted: accepted,
	})
	v.mu.Unlock()
}

// Step advances the simulation by one tick. Targets set through the
// AttitudeController port since the last Step are used while in the trick
// mode; otherwise the vehicle flies its current mode.
func (v *Vehicle) Step() {
	dt := v.cfg.Tick
	switch {
	case v.mode != flightmode.Flip:
		v.flyMode(dt)
	case !v.ctl.HasTarget():
		// Throttle-only trick states keep the airframe level.
		v.ctl.InputEulerAngleRollPitchYaw(0, 0, float64(v.yawCd()), true)
	}

	var throttle float64
	accel, out := v.ctl.Update(v.copter.q, v.copter.rates, dt)
	if v.spool == trick.SpoolThrottleUnlimited && v.armed {
		throttle = out
	} else {
		accel = [3]float64{}
		v.ctl.Reset()
	}
	v.copter.Step(dt.Seconds(), accel, throttle)
	v.clk.Advance(dt)
}

func (v *Vehicle) flyMode(dt time.Duration) {
	switch v.mode {
	case flightmode.Guided, flightmode.Loiter, flightmode.AltHold:
		v.ctl.InputEulerAngleRollPitchYaw(0, 0, float64(v.yawCd()), true)
		v.altPID.Update(pid.ControllerInput{
			ReferenceSignal:  float64(v.guidedAltCm) / 100,
			ActualSignal:     v.copter.altM,
			SamplingInterval: dt,
		})
		v.ctl.SetThrottleOut(v.cfg.HoverThrottle+v.altPID.State.ControlSignal, true, 0)
	default:
		scale := float64(v.cfg.AngleMax) / 4500
		v.ctl.InputEulerAngleRollPitchYaw(v.pilot.RollStick*scale, v.pilot.PitchStick*scale, float64(v.yawCd()), true)
		v.ctl.SetThrottleOut(v.pilot.Throttle, true, 0)
	}
}

func (v *Vehicle) yawCd() int32 {
	_, _, y := v.copter.EulerCd()
	return y
}

// trick.AttitudeSensor

func (v *Vehicle) Attitude() trick.Attitude {
	r, p, y := v.copter.EulerCd()
	return trick.Attitude{Roll: r, Pitch: p, Yaw: y}
}

func (v *Vehicle) AltitudeCm() int32 { return v.copter.AltitudeCm() }

// trick.PilotInput

func (v *Vehicle) RollStick() int32  { return int32(math.Round(v.pilot.RollStick)) }
func (v *Vehicle) PitchStick() int32 { return int32(math.Round(v.pilot.PitchStick)) }

func (v *Vehicle) DesiredThrottle() float64 { return v.pilot.Throttle }

func (v *Vehicle) ThrottleZero() bool { return v.pilot.Throttle <= 0 }

// trick.VehicleStatus

func (v *Vehicle) Armed() bool           { return v.armed }
func (v *Vehicle) Landed() bool          { return v.copter.Landed() }
func (v *Vehicle) Mode() flightmode.Mode { return v.mode }
func (v *Vehicle) AngleMax() int32       { return v.cfg.AngleMax }

// trick.AttitudeController

func (v *Vehicle) InputRateBodyRollPitchYaw(rollRate, pitchRate, yawRate float64) {
	v.ctl.InputRateBodyRollPitchYaw(rollRate, pitchRate, yawRate)
}

func (v *Vehicle) InputEulerAngleRollPitchYaw(roll, pitch, yaw float64, shortestPath bool) {
	v.ctl.InputEulerAngleRollPitchYaw(roll, pitch, yaw, shortestPath)
}

func (v *Vehicle) SetThrottleOut(throttle float64, applyAngleBoost bool, filterCutoff float64) {
	v.ctl.SetThrottleOut(throttle, applyAngleBoost, filterCutoff)
}

// trick.MotorOutput

func (v *Vehicle) SetDesiredSpoolState(s trick.SpoolState) {
	if !v.armed {
		return
	}
	v.spool = s
}

func (v *Vehicle) Spool() trick.SpoolState { return v.spool }

// trick.ModeSwitcher

func (v *Vehicle) SetMode(mode flightmode.Mode, reason flightmode.Reason) bool {
	v.mu.Lock()
	refused := v.refuse[mode]
	v.mu.Unlock()

	v.record(mode, reason, !refused)
	if refused {
		return false
	}
	if mode != v.mode && (mode == flightmode.Guided || mode == flightmode.Loiter || mode == flightmode.AltHold) {
		v.guidedAltCm = v.copter.AltitudeCm()
		v.altPID.Reset()
	}
	v.mode = mode
	return true
}

// trick.Clock

func (v *Vehicle) Millis() uint32 { return v.clk.Millis() }

var _ trick.Vehicle = (*Vehicle)(nil)
