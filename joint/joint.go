// Package joint defines the hardware-facing abstraction for a single
// controlled joint. Concrete implementations live with the hardware drivers;
// joint/fake provides one for tests and simulation.
package joint

// Handle is the interface controllers use to read joint state and write
// commands. Positions are radians for revolute joints and meters for
// prismatic ones; velocities and efforts follow the same convention.
type Handle interface {
	Name() string

	Position() float64
	Velocity() float64
	Effort() float64

	// Continuous reports whether the joint wraps around, in which case
	// position errors are measured as shortest angular distance.
	Continuous() bool

	// SetPositionCommand sets the desired position, with a velocity and
	// feedforward effort hint.
	SetPositionCommand(position, velocity, effort float64) error

	// SetVelocityCommand sets the desired velocity with a feedforward effort.
	SetVelocityCommand(velocity, effort float64) error
}
