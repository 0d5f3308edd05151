// Package fake implements a joint handle backed by nothing but state, for
// tests and the demo daemon.
package fake

import (
	"sync"
)

// Config describes a fake joint.
type Config struct {
	Name       string  `json:"name"`
	Continuous bool    `json:"continuous"`
	// TrackGain is the fraction of the remaining position error closed per
	// position command. Zero means the joint snaps to its command.
	TrackGain float64 `json:"track_gain"`
}

// Joint is a fake joint. With a zero TrackGain it teleports to whatever it
// is commanded; with a gain in (0, 1] it closes that fraction of the error
// on each command, which is enough to exercise tolerance handling.
type Joint struct {
	mu         sync.Mutex
	name       string
	continuous bool
	trackGain  float64

	position float64
	velocity float64
	effort   float64
}

// New constructs a fake joint from cfg.
func New(cfg Config) *Joint {
	return &Joint{name: cfg.Name, continuous: cfg.Continuous, trackGain: cfg.TrackGain}
}

// Name returns the joint name.
func (j *Joint) Name() string { return j.name }

// Continuous reports whether the joint wraps around.
func (j *Joint) Continuous() bool { return j.continuous }

// Position returns the current position.
func (j *Joint) Position() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.position
}

// Velocity returns the current velocity.
func (j *Joint) Velocity() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.velocity
}

// Effort returns the current applied effort.
func (j *Joint) Effort() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.effort
}

// SetPosition overrides the joint state directly, for tests.
func (j *Joint) SetPosition(p float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.position = p
}

// SetVelocity overrides the joint velocity directly, for tests.
func (j *Joint) SetVelocity(v float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.velocity = v
}

// SetPositionCommand moves the fake joint toward the commanded position.
func (j *Joint) SetPositionCommand(position, velocity, effort float64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.trackGain > 0 {
		j.position += (position - j.position) * j.trackGain
	} else {
		j.position = position
	}
	j.velocity = velocity
	j.effort = effort
	return nil
}

// SetVelocityCommand sets the fake joint's velocity.
func (j *Joint) SetVelocityCommand(velocity, effort float64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.velocity = velocity
	j.effort = effort
	return nil
}

// Step integrates the joint's velocity over dt seconds, so velocity-driven
// controllers observe position movement.
func (j *Joint) Step(dt float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.position += j.velocity * dt
}
