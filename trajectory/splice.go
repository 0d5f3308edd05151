package trajectory

import (
	"github.com/pkg/errors"
)

// joinTimeStep places the first re-based incoming point this far past the
// retained prefix when the two would otherwise collide in time.
const joinTimeStep = 1e-3

// Splice merges a currently executing trajectory with a newly commanded one
// at cutTime, producing one continuous executable trajectory.
//
// The prefix of active with Time < cutTime is retained as the lead-in; a
// cutTime of zero retains all of active, which covers the short-history case
// where active is just a held last sample. The incoming points follow, kept
// at their own times when they already land after the prefix and otherwise
// shifted forward as a block so the first one lands just past it. The result
// is strictly increasing in time; equal-time anchor duplicates are dropped
// at the seam.
//
// Position continuity at the seam relies on the retained prefix's last point
// having been sampled from the superseded trajectory near the cut time.
func Splice(active, incoming Trajectory, cutTime float64) (Trajectory, error) {
	if err := incoming.Validate(); err != nil {
		return Trajectory{}, errors.Wrap(err, "incoming trajectory is malformed")
	}

	var out Trajectory
	if cutTime == 0 {
		out = active.Clone()
	} else {
		for _, p := range active.Points {
			if p.Time >= cutTime {
				break
			}
			out.Points = append(out.Points, p.Clone())
		}
	}
	if len(out.Points) == 0 {
		return Trajectory{}, errors.Errorf("no points before cut time %f, nothing to splice onto", cutTime)
	}

	base := out.Points[len(out.Points)-1]
	if len(base.Positions) != len(incoming.Points[0].Positions) {
		return Trajectory{}, errors.Errorf("cannot splice %d joints onto %d joints",
			len(incoming.Points[0].Positions), len(base.Positions))
	}

	offset := 0.0
	if incoming.Points[0].Time <= base.Time {
		offset = base.Time + joinTimeStep - incoming.Points[0].Time
	}
	last := base.Time
	for _, p := range incoming.Points {
		q := p.Clone()
		q.Time += offset
		if q.Time <= last {
			continue
		}
		last = q.Time
		out.Points = append(out.Points, q)
	}
	if out.EndTime() == base.Time {
		return Trajectory{}, errors.New("no incoming points survived the splice")
	}
	return out, nil
}
