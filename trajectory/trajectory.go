// Package trajectory provides the joint-space trajectory representation used
// by the trajectory controllers, along with spline sampling and splicing of
// in-flight trajectories.
package trajectory

import (
	"github.com/pkg/errors"
)

// Point is a single timestamped target state for a set of joints. Velocities
// and Accelerations are optional; when present they must be the same length
// as Positions.
type Point struct {
	Time          float64
	Positions     []float64
	Velocities    []float64
	Accelerations []float64
}

// HasVelocities reports whether the point carries a velocity target.
func (p Point) HasVelocities() bool {
	return len(p.Velocities) > 0
}

// HasAccelerations reports whether the point carries an acceleration target.
func (p Point) HasAccelerations() bool {
	return len(p.Accelerations) > 0
}

// Clone returns a deep copy of the point.
func (p Point) Clone() Point {
	out := Point{Time: p.Time, Positions: append([]float64(nil), p.Positions...)}
	if p.HasVelocities() {
		out.Velocities = append([]float64(nil), p.Velocities...)
	}
	if p.HasAccelerations() {
		out.Accelerations = append([]float64(nil), p.Accelerations...)
	}
	return out
}

// Trajectory is an ordered sequence of points, non-decreasing in time.
// Equal-time duplicate points are permitted as insertion anchors.
type Trajectory struct {
	Points []Point
}

// Size returns the number of points.
func (t Trajectory) Size() int {
	return len(t.Points)
}

// StartTime returns the time of the first point.
func (t Trajectory) StartTime() float64 {
	if len(t.Points) == 0 {
		return 0
	}
	return t.Points[0].Time
}

// EndTime returns the time of the last point.
func (t Trajectory) EndTime() float64 {
	if len(t.Points) == 0 {
		return 0
	}
	return t.Points[len(t.Points)-1].Time
}

// Clone returns a deep copy of the trajectory.
func (t Trajectory) Clone() Trajectory {
	points := make([]Point, 0, len(t.Points))
	for _, p := range t.Points {
		points = append(points, p.Clone())
	}
	return Trajectory{Points: points}
}

// Validate checks that the trajectory is well formed: at least one point,
// a consistent joint count across all points and derivative slices, and
// non-decreasing times.
func (t Trajectory) Validate() error {
	if len(t.Points) == 0 {
		return errors.New("trajectory has no points")
	}
	width := len(t.Points[0].Positions)
	if width == 0 {
		return errors.New("trajectory point has no positions")
	}
	for i, p := range t.Points {
		if len(p.Positions) != width {
			return errors.Errorf("trajectory point %d has %d positions, expected %d", i, len(p.Positions), width)
		}
		if p.HasVelocities() && len(p.Velocities) != width {
			return errors.Errorf("trajectory point %d has %d velocities, expected %d", i, len(p.Velocities), width)
		}
		if p.HasAccelerations() && len(p.Accelerations) != width {
			return errors.Errorf("trajectory point %d has %d accelerations, expected %d", i, len(p.Accelerations), width)
		}
		if i > 0 && p.Time < t.Points[i-1].Time {
			return errors.Errorf("trajectory point %d moves backwards in time (%f < %f)", i, p.Time, t.Points[i-1].Time)
		}
	}
	return nil
}

// Waypoint is one row of a trajectory goal, with its time expressed relative
// to the goal's start.
type Waypoint struct {
	TimeFromStart float64
	Positions     []float64
	Velocities    []float64
	Accelerations []float64
}

// FromWaypoints converts a goal's waypoint rows into an absolute-time
// trajectory whose columns follow order rather than the goal's own joint
// naming. Every name in order must resolve to a column in names, and every
// waypoint must be as wide as names.
func FromWaypoints(names, order []string, waypoints []Waypoint, start float64) (Trajectory, error) {
	if len(waypoints) == 0 {
		return Trajectory{}, errors.New("no waypoints given")
	}

	lookup := make([]int, len(order))
	for i, want := range order {
		lookup[i] = -1
		for j, name := range names {
			if name == want {
				lookup[i] = j
				break
			}
		}
		if lookup[i] == -1 {
			return Trajectory{}, errors.Errorf("joint %q is not present in the goal", want)
		}
	}

	t := Trajectory{Points: make([]Point, 0, len(waypoints))}
	for i, wp := range waypoints {
		if len(wp.Positions) != len(names) {
			return Trajectory{}, errors.Errorf("waypoint %d has %d positions for %d joints", i, len(wp.Positions), len(names))
		}
		p := Point{
			Time:      start + wp.TimeFromStart,
			Positions: make([]float64, len(order)),
		}
		hasVel := len(wp.Velocities) == len(names)
		hasAcc := len(wp.Accelerations) == len(names)
		if hasVel {
			p.Velocities = make([]float64, len(order))
		}
		if hasAcc {
			p.Accelerations = make([]float64, len(order))
		}
		for j, src := range lookup {
			p.Positions[j] = wp.Positions[src]
			if hasVel {
				p.Velocities[j] = wp.Velocities[src]
			}
			if hasAcc {
				p.Accelerations[j] = wp.Accelerations[src]
			}
		}
		t.Points = append(t.Points, p)
	}

	if err := t.Validate(); err != nil {
		return Trajectory{}, err
	}
	return t, nil
}
