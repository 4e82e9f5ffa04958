package sim

import (
	"math"
	"time"

	"go.einride.tech/pid"
)

// ControlGains tunes the simulated attitude controller.
type ControlGains struct {
	// AngleP converts attitude error (rad) into a body rate target (rad/s).
	AngleP float64
	// RateP/RateI/RateD drive the per-axis rate loops; the output is angular
	// acceleration in rad/s².
	RateP float64
	RateI float64
	RateD float64

	MaxRateDegS   float64
	MaxAccelDegS2 float64
}

func DefaultControlGains() ControlGains {
	return ControlGains{
		AngleP:        6,
		RateP:         20,
		MaxRateDegS:   720,
		MaxAccelDegS2: 3600,
	}
}

type targetKind int

const (
	targetNone targetKind = iota
	targetRate
	targetAngle
)

// AttitudeControl takes one attitude target per tick, like a flight stack's
// attitude controller, and turns it into angular acceleration for the plant.
type AttitudeControl struct {
	gains ControlGains

	rateLoops [3]pid.Controller

	kind       targetKind
	rateTarget [3]float64 // rad/s
	angleQ     quat

	throttleTarget float64
	throttleOut    float64
	filterHz       float64
}

func NewAttitudeControl(g ControlGains) *AttitudeControl {
	c := &AttitudeControl{gains: g}
	for i := range c.rateLoops {
		c.rateLoops[i] = pid.Controller{
			Config: pid.ControllerConfig{
				ProportionalGain: g.RateP,
				IntegralGain:     g.RateI,
				DerivativeGain:   g.RateD,
			},
		}
	}
	return c
}

// InputRateBodyRollPitchYaw sets body rate targets in centi-degrees/s.
func (c *AttitudeControl) InputRateBodyRollPitchYaw(rollRate, pitchRate, yawRate float64) {
	c.kind = targetRate
	c.rateTarget = [3]float64{
		radians(rollRate / 100),
		radians(pitchRate / 100),
		radians(yawRate / 100),
	}
}

// InputEulerAngleRollPitchYaw sets an earth-frame attitude target in
// centi-degrees. The error is always taken the short way round, so
// shortestPath has no effect here.
func (c *AttitudeControl) InputEulerAngleRollPitchYaw(roll, pitch, yaw float64, shortestPath bool) {
	_ = shortestPath
	c.kind = targetAngle
	c.angleQ = quatFromEuler(radians(roll/100), radians(pitch/100), radians(yaw/100))
}

// SetThrottleOut sets the collective. filterCutoff is a first-order low-pass
// cutoff in Hz; zero disables filtering.
func (c *AttitudeControl) SetThrottleOut(throttle float64, applyAngleBoost bool, filterCutoff float64) {
	_ = applyAngleBoost
	c.throttleTarget = clampF(throttle, 0, 1)
	c.filterHz = filterCutoff
}

// HasTarget reports whether a target was set since the last Update.
func (c *AttitudeControl) HasTarget() bool { return c.kind != targetNone }

// Throttle is the filtered collective after the last Update.
func (c *AttitudeControl) Throttle() float64 { return c.throttleOut }

// Reset clears loop state, used when the motors stop.
func (c *AttitudeControl) Reset() {
	for i := range c.rateLoops {
		c.rateLoops[i].Reset()
	}
	c.kind = targetNone
	c.throttleOut = 0
	c.throttleTarget = 0
}

// Update runs the loops once and returns angular acceleration and throttle
// for the plant. The target is consumed.
func (c *AttitudeControl) Update(q quat, rates [3]float64, dt time.Duration) (accel [3]float64, throttle float64) {
	sec := dt.Seconds()
	maxRate := radians(c.gains.MaxRateDegS)
	maxAccel := radians(c.gains.MaxAccelDegS2)

	target := c.rateTarget
	switch c.kind {
	case targetAngle:
		ex, ey, ez := q.conj().mul(c.angleQ).axisAngle()
		target = [3]float64{
			clampF(c.gains.AngleP*ex, -maxRate, maxRate),
			clampF(c.gains.AngleP*ey, -maxRate, maxRate),
			clampF(c.gains.AngleP*ez, -maxRate, maxRate),
		}
	case targetNone:
		target = [3]float64{}
	}

	for i := range c.rateLoops {
		c.rateLoops[i].Update(pid.ControllerInput{
			ReferenceSignal:  target[i],
			ActualSignal:     rates[i],
			SamplingInterval: dt,
		})
		accel[i] = clampF(c.rateLoops[i].State.ControlSignal, -maxAccel, maxAccel)
	}
	c.kind = targetNone

	if c.filterHz > 0 && sec > 0 {
		rc := 1 / (2 * math.Pi * c.filterHz)
		alpha := sec / (rc + sec)
		c.throttleOut += alpha * (c.throttleTarget - c.throttleOut)
	} else {
		c.throttleOut = c.throttleTarget
	}
	return accel, c.throttleOut
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
