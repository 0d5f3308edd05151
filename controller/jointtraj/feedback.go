package jointtraj

import "time"

// JointState is one side of a feedback record, one entry per controlled
// joint.
type JointState struct {
	Positions     []float64
	Velocities    []float64
	Accelerations []float64
	Effort        []float64
}

// Feedback is the per-iteration progress report published while a goal
// executes: the commanded state, the observed state, and their difference.
type Feedback struct {
	Stamp      time.Time
	JointNames []string
	Desired    JointState
	Actual     JointState
	Error      JointState
}

func newFeedback(names []string) *Feedback {
	n := len(names)
	return &Feedback{
		JointNames: append([]string(nil), names...),
		Desired: JointState{
			Positions:     make([]float64, n),
			Velocities:    make([]float64, n),
			Accelerations: make([]float64, n),
		},
		Actual: JointState{
			Positions:  make([]float64, n),
			Velocities: make([]float64, n),
			Effort:     make([]float64, n),
		},
		Error: JointState{
			Positions:  make([]float64, n),
			Velocities: make([]float64, n),
		},
	}
}

// clone returns a deep copy safe to hand to the transport.
func (f *Feedback) clone() Feedback {
	cp := Feedback{
		Stamp:      f.Stamp,
		JointNames: append([]string(nil), f.JointNames...),
	}
	cp.Desired = f.Desired.clone()
	cp.Actual = f.Actual.clone()
	cp.Error = f.Error.clone()
	return cp
}

func (s JointState) clone() JointState {
	out := JointState{}
	if s.Positions != nil {
		out.Positions = append([]float64(nil), s.Positions...)
	}
	if s.Velocities != nil {
		out.Velocities = append([]float64(nil), s.Velocities...)
	}
	if s.Accelerations != nil {
		out.Accelerations = append([]float64(nil), s.Accelerations...)
	}
	if s.Effort != nil {
		out.Effort = append([]float64(nil), s.Effort...)
	}
	return out
}
