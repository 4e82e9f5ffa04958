package sim

import "math"

const gravity = 9.80665

// quat is a unit rotation from the body frame (x forward, y right, z down) to
// the earth frame (north, east, down).
type quat struct {
	w, x, y, z float64
}

func (a quat) mul(b quat) quat {
	return quat{
		w: a.w*b.w - a.x*b.x - a.y*b.y - a.z*b.z,
		x: a.w*b.x + a.x*b.w + a.y*b.z - a.z*b.y,
		y: a.w*b.y - a.x*b.z + a.y*b.w + a.z*b.x,
		z: a.w*b.z + a.x*b.y - a.y*b.x + a.z*b.w,
	}
}

func (a quat) conj() quat { return quat{w: a.w, x: -a.x, y: -a.y, z: -a.z} }

func (a quat) normalized() quat {
	n := math.Sqrt(a.w*a.w + a.x*a.x + a.y*a.y + a.z*a.z)
	if n == 0 {
		return quat{w: 1}
	}
	return quat{w: a.w / n, x: a.x / n, y: a.y / n, z: a.z / n}
}

// quatFromEuler uses the aerospace Z-Y-X (yaw, pitch, roll) sequence.
// Angles are radians.
func quatFromEuler(roll, pitch, yaw float64) quat {
	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
	cy, sy := math.Cos(yaw/2), math.Sin(yaw/2)
	return quat{
		w: cr*cp*cy + sr*sp*sy,
		x: sr*cp*cy - cr*sp*sy,
		y: cr*sp*cy + sr*cp*sy,
		z: cr*cp*sy - sr*sp*cy,
	}
}

func (a quat) euler() (roll, pitch, yaw float64) {
	roll = math.Atan2(2*(a.w*a.x+a.y*a.z), 1-2*(a.x*a.x+a.y*a.y))
	sp := 2 * (a.w*a.y - a.z*a.x)
	if sp > 1 {
		sp = 1
	} else if sp < -1 {
		sp = -1
	}
	pitch = math.Asin(sp)
	yaw = math.Atan2(2*(a.w*a.z+a.x*a.y), 1-2*(a.y*a.y+a.z*a.z))
	return roll, pitch, yaw
}

// upComponent is how much of the body thrust axis points up in the earth
// frame: 1 level, -1 inverted.
func (a quat) upComponent() float64 {
	return 1 - 2*(a.x*a.x+a.y*a.y)
}

// axisAngle returns the rotation as axis*angle, taking the short way round.
func (a quat) axisAngle() (x, y, z float64) {
	if a.w < 0 {
		a = quat{w: -a.w, x: -a.x, y: -a.y, z: -a.z}
	}
	s := math.Sqrt(a.x*a.x + a.y*a.y + a.z*a.z)
	if s < 1e-12 {
		return 0, 0, 0
	}
	angle := 2 * math.Atan2(s, a.w)
	return a.x / s * angle, a.y / s * angle, a.z / s * angle
}

// Copter is a rigid-body multirotor: attitude driven by commanded angular
// acceleration, altitude driven by collective thrust.
type Copter struct {
	q     quat
	rates [3]float64 // body p, q, r in rad/s

	altM     float64
	climbMps float64
	landed   bool

	hoverThrottle float64
}

func NewCopter(altitudeCm int32, hoverThrottle float64) *Copter {
	if hoverThrottle <= 0 || hoverThrottle > 1 {
		hoverThrottle = 0.5
	}
	c := &Copter{
		q:             quat{w: 1},
		altM:          float64(altitudeCm) / 100,
		hoverThrottle: hoverThrottle,
	}
	c.landed = c.altM <= 0
	if c.altM < 0 {
		c.altM = 0
	}
	return c
}

// Step integrates dt seconds with the given body angular acceleration
// (rad/s²) and motor throttle (0..1).
func (c *Copter) Step(dt float64, accel [3]float64, throttle float64) {
	if dt <= 0 {
		return
	}
	if c.landed && throttle <= c.hoverThrottle {
		// Resting on the ground: no rotation, no descent.
		c.rates = [3]float64{}
		c.q = levelWithYaw(c.q)
		c.climbMps = 0
		return
	}

	for i := range c.rates {
		c.rates[i] += accel[i] * dt
	}
	w := quat{x: c.rates[0], y: c.rates[1], z: c.rates[2]}
	dq := c.q.mul(w)
	c.q = quat{
		w: c.q.w + 0.5*dq.w*dt,
		x: c.q.x + 0.5*dq.x*dt,
		y: c.q.y + 0.5*dq.y*dt,
		z: c.q.z + 0.5*dq.z*dt,
	}.normalized()

	az := gravity*(throttle/c.hoverThrottle)*c.q.upComponent() - gravity
	c.climbMps += az * dt
	c.altM += c.climbMps * dt
	c.landed = false
	if c.altM <= 0 {
		c.altM = 0
		if c.climbMps < 0 {
			c.climbMps = 0
		}
		c.landed = true
	}
}

func levelWithYaw(q quat) quat {
	_, _, yaw := q.euler()
	return quatFromEuler(0, 0, yaw)
}

// EulerCd returns roll and pitch in ±18000 and yaw in 0..35999 centi-degrees.
func (c *Copter) EulerCd() (roll, pitch, yaw int32) {
	r, p, y := c.q.euler()
	yawCd := int32(math.Round(degrees(y) * 100))
	if yawCd < 0 {
		yawCd += 36000
	}
	if yawCd >= 36000 {
		yawCd -= 36000
	}
	return int32(math.Round(degrees(r) * 100)), int32(math.Round(degrees(p) * 100)), yawCd
}

func (c *Copter) AltitudeCm() int32 { return int32(math.Round(c.altM * 100)) }

func (c *Copter) ClimbRate() float64 { return c.climbMps }

func (c *Copter) Landed() bool { return c.landed }

func (c *Copter) BodyRates() [3]float64 { return c.rates }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

func radians(deg float64) float64 { return deg * math.Pi / 180 }
