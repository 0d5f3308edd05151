// Package utils contains small math helpers shared by the controllers.
package utils

import "math"

// ModAngRad normalizes an angle into [0, 2pi).
func ModAngRad(ang float64) float64 {
	twoPi := 2 * math.Pi
	return math.Mod(math.Mod(ang, twoPi)+twoPi, twoPi)
}

// ShortestAngularDistance returns the signed shortest rotation taking from
// to to, always within (-pi, pi].
func ShortestAngularDistance(from, to float64) float64 {
	d := math.Mod(to-from, 2*math.Pi)
	if d > math.Pi {
		d -= 2 * math.Pi
	} else if d <= -math.Pi {
		d += 2 * math.Pi
	}
	return d
}

// Clamp bounds v into [lower, upper].
func Clamp(v, lower, upper float64) float64 {
	return math.Max(lower, math.Min(v, upper))
}

// TowardsBy moves v towards target by at most step, never overshooting.
func TowardsBy(v, target, step float64) float64 {
	if math.Abs(target-v) <= step {
		return target
	}
	if target < v {
		return v - step
	}
	return v + step
}
