package trajectory

import "sort"

// SplineSampler answers "what state should the joints be in at time t" for
// one immutable trajectory. Between each pair of points it fits, per joint,
// the highest-order polynomial the points support: quintic when both carry
// accelerations, cubic when both carry velocities, linear otherwise.
//
// A sampler must be constructed from a non-empty trajectory; that is the
// caller's responsibility.
type SplineSampler struct {
	traj     Trajectory
	segments []segment
}

type segment struct {
	start  float64
	end    float64
	kind   segmentKind
	coeffs [][]float64
}

// NewSplineSampler builds a sampler over t. The trajectory is copied; later
// mutation of t does not affect the sampler.
func NewSplineSampler(t Trajectory) *SplineSampler {
	s := &SplineSampler{traj: t.Clone()}
	points := s.traj.Points
	for i := 0; i+1 < len(points); i++ {
		p0, p1 := points[i], points[i+1]
		seg := segment{start: p0.Time, end: p1.Time}
		dt := p1.Time - p0.Time
		switch {
		case p0.HasAccelerations() && p1.HasAccelerations() && p0.HasVelocities() && p1.HasVelocities():
			seg.kind = segmentQuintic
			for j := range p0.Positions {
				seg.coeffs = append(seg.coeffs, quinticCoefficients(
					p0.Positions[j], p0.Velocities[j], p0.Accelerations[j],
					p1.Positions[j], p1.Velocities[j], p1.Accelerations[j], dt))
			}
		case p0.HasVelocities() && p1.HasVelocities():
			seg.kind = segmentCubic
			for j := range p0.Positions {
				seg.coeffs = append(seg.coeffs, cubicCoefficients(
					p0.Positions[j], p0.Velocities[j], p1.Positions[j], p1.Velocities[j], dt))
			}
		default:
			seg.kind = segmentLinear
			for j := range p0.Positions {
				seg.coeffs = append(seg.coeffs, linearCoefficients(p0.Positions[j], p1.Positions[j], dt))
			}
		}
		s.segments = append(s.segments, seg)
	}
	return s
}

// Sample returns the interpolated point at time tm. Outside the trajectory's
// span the boundary point is returned unchanged, so a stale or early query
// can never run away from the commanded path.
func (s *SplineSampler) Sample(tm float64) Point {
	points := s.traj.Points
	if tm <= points[0].Time || len(s.segments) == 0 {
		return points[0].Clone()
	}
	if tm >= points[len(points)-1].Time {
		return points[len(points)-1].Clone()
	}

	idx := sort.Search(len(s.segments), func(i int) bool {
		return tm < s.segments[i].end
	})
	if idx == len(s.segments) {
		idx = len(s.segments) - 1
	}
	seg := s.segments[idx]

	p := Point{Time: tm, Positions: make([]float64, len(seg.coeffs))}
	if seg.kind != segmentLinear {
		p.Velocities = make([]float64, len(seg.coeffs))
	}
	if seg.kind == segmentQuintic {
		p.Accelerations = make([]float64, len(seg.coeffs))
	}
	u := tm - seg.start
	for j, c := range seg.coeffs {
		pos, vel, acc := evalSpline(c, u)
		p.Positions[j] = pos
		if seg.kind != segmentLinear {
			p.Velocities[j] = vel
		}
		if seg.kind == segmentQuintic {
			p.Accelerations[j] = acc
		}
	}
	return p
}

// EndTime returns the time of the final point.
func (s *SplineSampler) EndTime() float64 {
	return s.traj.EndTime()
}

// Trajectory returns the sampler's backing trajectory. Callers must treat it
// as read-only.
func (s *SplineSampler) Trajectory() Trajectory {
	return s.traj
}
