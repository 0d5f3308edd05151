package jointtraj

import (
	"github.com/pkg/errors"

	"github.com/fieldbotics/controllers/action"
	"github.com/fieldbotics/controllers/joint"
)

// Tolerance bounds one joint's tracking error. A threshold at or below zero
// disables that check.
type Tolerance struct {
	Position     float64
	Velocity     float64
	Acceleration float64
}

const (
	// defaultGoalTolerance is applied per axis whenever a goal does not
	// supply usable goal tolerances. A deliberate safety default, distinct
	// from an explicit non-positive "unchecked" threshold.
	defaultGoalTolerance = 0.02

	// DefaultGoalGrace is the extra settling time allowed past a goal's
	// nominal end plus its time tolerance before the goal times out. The
	// value absorbs control-loop jitter on real hardware.
	DefaultGoalGrace = 0.6
)

func defaultGoalTolerances(n int) []Tolerance {
	out := make([]Tolerance, n)
	for i := range out {
		out[i] = Tolerance{
			Position:     defaultGoalTolerance,
			Velocity:     defaultGoalTolerance,
			Acceleration: defaultGoalTolerance,
		}
	}
	return out
}

// tolerancesByJoint resolves goal tolerance rows against the controlled
// joints by name. Every joint must be covered; an unresolved name is an
// error the caller surfaces as an invalid-joints abort.
func tolerancesByJoint(rows []action.JointTolerance, joints []joint.Handle) ([]Tolerance, error) {
	out := make([]Tolerance, len(joints))
	for i, j := range joints {
		found := false
		for _, row := range rows {
			if row.Joint != j.Name() {
				continue
			}
			out[i] = Tolerance{
				Position:     row.Position,
				Velocity:     row.Velocity,
				Acceleration: row.Acceleration,
			}
			found = true
			break
		}
		if !found {
			return nil, errors.Errorf("no tolerance entry for joint %q", j.Name())
		}
	}
	return out, nil
}
