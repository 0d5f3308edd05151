package trajectory

// Polynomial segment generation between two trajectory points. Coefficients
// are in the segment-local time base, so evaluation uses t relative to the
// segment start.

type segmentKind int

const (
	segmentLinear segmentKind = iota
	segmentCubic
	segmentQuintic
)

// linearCoefficients interpolates position only.
func linearCoefficients(p0, p1, dt float64) []float64 {
	if dt <= 0 {
		return []float64{p1, 0}
	}
	return []float64{p0, (p1 - p0) / dt}
}

// cubicCoefficients matches position and velocity at both ends.
func cubicCoefficients(p0, v0, p1, v1, dt float64) []float64 {
	if dt <= 0 {
		return []float64{p1, v1, 0, 0}
	}
	c := make([]float64, 4)
	c[0] = p0
	c[1] = v0
	c[2] = (-3*p0 + 3*p1 - 2*v0*dt - v1*dt) / (dt * dt)
	c[3] = (2*p0 - 2*p1 + v0*dt + v1*dt) / (dt * dt * dt)
	return c
}

// quinticCoefficients matches position, velocity and acceleration at both ends.
func quinticCoefficients(p0, v0, a0, p1, v1, a1, dt float64) []float64 {
	if dt <= 0 {
		return []float64{p1, v1, 0.5 * a1, 0, 0, 0}
	}
	dt2 := dt * dt
	dt3 := dt2 * dt
	dt4 := dt3 * dt
	dt5 := dt4 * dt
	c := make([]float64, 6)
	c[0] = p0
	c[1] = v0
	c[2] = 0.5 * a0
	c[3] = (-20*p0 + 20*p1 - 3*a0*dt2 + a1*dt2 - 12*v0*dt - 8*v1*dt) / (2 * dt3)
	c[4] = (30*p0 - 30*p1 + 3*a0*dt2 - 2*a1*dt2 + 16*v0*dt + 14*v1*dt) / (2 * dt4)
	c[5] = (-12*p0 + 12*p1 - a0*dt2 + a1*dt2 - 6*v0*dt - 6*v1*dt) / (2 * dt5)
	return c
}

// evalSpline evaluates the polynomial and its first two derivatives at t
// (relative to the segment start).
func evalSpline(c []float64, t float64) (pos, vel, acc float64) {
	for i := len(c) - 1; i >= 0; i-- {
		pos = pos*t + c[i]
	}
	for i := len(c) - 1; i >= 1; i-- {
		vel = vel*t + float64(i)*c[i]
	}
	for i := len(c) - 1; i >= 2; i-- {
		acc = acc*t + float64(i*(i-1))*c[i]
	}
	return pos, vel, acc
}
