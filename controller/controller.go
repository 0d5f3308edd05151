// Package controller defines the pluggable controller interface and the
// manager that owns joint handles, resolves controller conflicts, and drives
// every active controller from one fixed-rate tick.
package controller

import (
	"time"

	"github.com/pkg/errors"
)

// ErrNoCommand is returned by Update when a controller has nothing to
// command this tick. The caller must not apply any command on its behalf.
var ErrNoCommand = errors.New("controller cannot produce a command")

// Controller is one closed-loop controller. Implementations are updated
// from the manager's control tick and may additionally run their own
// goal-handling goroutines.
type Controller interface {
	// Name returns the controller's configured name.
	Name() string

	// JointNames lists the joints this controller commands.
	JointNames() []string

	// Authoritative reports whether this controller requires exclusive
	// ownership of its joints; nothing else may run on top of it.
	Authoritative() bool

	// Start activates the controller. It is called by the manager with its
	// own lock held and must not call back into the manager.
	Start() error

	// Preempt asks the controller to give up its joints. With force set the
	// controller will be stopped regardless of the return value; otherwise a
	// false return keeps it running.
	Preempt(force bool) bool

	// Update runs one control tick at now with elapsed dt. Returning
	// ErrNoCommand means no command was applied this tick.
	Update(now time.Time, dt time.Duration) error
}
