package controller

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/fieldbotics/controllers/joint"
)

// ManagerConfig configures the manager's control tick.
type ManagerConfig struct {
	// UpdateRate is the control tick frequency in Hz. Defaults to 100.
	UpdateRate float64 `json:"update_rate"`
	// Clock drives the tick loop; defaults to the wall clock. Injected in
	// tests.
	Clock clock.Clock `json:"-"`
}

// Manager owns the joint handles and the set of loaded controllers, starts
// and stops controllers on request while resolving joint-ownership
// conflicts, and updates every active controller once per tick.
type Manager struct {
	logger golog.Logger
	clock  clock.Clock
	period time.Duration

	mu          sync.Mutex
	joints      map[string]joint.Handle
	controllers []Controller
	active      []Controller
}

// NewManager returns a manager ready for joint and controller registration.
func NewManager(cfg ManagerConfig, logger golog.Logger) *Manager {
	rate := cfg.UpdateRate
	if rate <= 0 {
		rate = 100
	}
	c := cfg.Clock
	if c == nil {
		c = clock.New()
	}
	return &Manager{
		logger: logger,
		clock:  c,
		period: time.Duration(float64(time.Second) / rate),
		joints: map[string]joint.Handle{},
	}
}

// RegisterJoint adds a joint handle to the manager.
func (m *Manager) RegisterJoint(j joint.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.joints[j.Name()]; ok {
		return errors.Errorf("joint %q already registered", j.Name())
	}
	m.joints[j.Name()] = j
	return nil
}

// JointHandle returns the handle for a named joint.
func (m *Manager) JointHandle(name string) (joint.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.joints[name]
	if !ok {
		return nil, errors.Errorf("no joint %q registered", name)
	}
	return j, nil
}

// Add loads a controller. It does not start it.
func (m *Manager) Add(c Controller) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.controllers {
		if existing.Name() == c.Name() {
			return errors.Errorf("controller %q already loaded", c.Name())
		}
	}
	m.controllers = append(m.controllers, c)
	return nil
}

// Controller returns a loaded controller by name.
func (m *Manager) Controller(name string) (Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.controllers {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// RequestStart activates the named controller, preempting any active
// authoritative controller that shares joints with it. It reports whether
// the controller is running when it returns.
func (m *Manager) RequestStart(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.active {
		if c.Name() == name {
			return true
		}
	}

	var ctrl Controller
	for _, c := range m.controllers {
		if c.Name() == name {
			ctrl = c
			break
		}
	}
	if ctrl == nil {
		m.logger.Errorw("no such controller to start", "controller", name)
		return false
	}

	for _, a := range append([]Controller(nil), m.active...) {
		if !m.resolveConflictLocked(ctrl.JointNames(), a) {
			m.logger.Errorw("controller conflicts with an active controller",
				"controller", name, "active", a.Name())
			return false
		}
	}

	if err := ctrl.Start(); err != nil {
		m.logger.Errorw("failed to start controller", "controller", name, "error", err)
		return false
	}
	m.active = append(m.active, ctrl)
	m.logger.Infow("started controller", "controller", name)
	return true
}

// RequestStop deactivates the named controller, reporting whether it was
// active.
func (m *Manager) RequestStop(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestStopLocked(name)
}

func (m *Manager) requestStopLocked(name string) bool {
	for i, c := range m.active {
		if c.Name() == name {
			m.active = append(m.active[:i], m.active[i+1:]...)
			m.logger.Infow("stopped controller", "controller", name)
			return true
		}
	}
	return false
}

// resolveConflictLocked reports whether a new controller with the given
// joints may start alongside the active controller, stopping the active one
// when it agrees to be preempted.
func (m *Manager) resolveConflictLocked(joints []string, active Controller) bool {
	if !active.Authoritative() {
		return true
	}
	owned := active.JointNames()
	for _, j := range joints {
		for _, o := range owned {
			if j != o {
				continue
			}
			if active.Preempt(false) {
				return m.requestStopLocked(active.Name())
			}
			return false
		}
	}
	return true
}

// Update runs one control tick over the active controllers, newest first so
// the most recently started controller commands its joints last.
func (m *Manager) Update(now time.Time, dt time.Duration) {
	m.mu.Lock()
	active := append([]Controller(nil), m.active...)
	m.mu.Unlock()

	for i := len(active) - 1; i >= 0; i-- {
		c := active[i]
		if err := c.Update(now, dt); err != nil {
			if errors.Is(err, ErrNoCommand) {
				m.logger.Debugw("controller produced no command", "controller", c.Name())
				continue
			}
			m.logger.Errorw("controller update failed", "controller", c.Name(), "error", err)
		}
	}
}

// Run drives the control tick at the configured rate until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ticker := m.clock.Ticker(m.period)
	defer ticker.Stop()
	last := m.clock.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			m.Update(now, now.Sub(last))
			last = now
		}
	}
}

// Close force-preempts and stops every active controller, then closes any
// controller that needs closing.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	active := append([]Controller(nil), m.active...)
	m.active = nil
	controllers := append([]Controller(nil), m.controllers...)
	m.mu.Unlock()

	for _, c := range active {
		c.Preempt(true)
	}

	var err error
	for _, c := range controllers {
		if closer, ok := c.(interface{ Close() error }); ok {
			err = multierr.Combine(err, closer.Close())
		}
	}
	return err
}
