// Package jointtraj implements a closed-loop joint trajectory controller: it
// samples an installed spline trajectory once per control tick, commands the
// joints, checks path and goal tolerances, and accepts new trajectory goals
// over an action server, splicing them onto whatever is already executing.
package jointtraj

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"gonum.org/v1/gonum/floats"

	"github.com/fieldbotics/controllers/action"
	"github.com/fieldbotics/controllers/controller"
	"github.com/fieldbotics/controllers/joint"
	"github.com/fieldbotics/controllers/trajectory"
	"github.com/fieldbotics/controllers/utils"
)

// Model is the registry type name for this controller.
const Model = "joint_trajectory"

const defaultFeedbackRate = 50.0

// Manager is the subset of the controller manager this controller needs.
type Manager interface {
	JointHandle(name string) (joint.Handle, error)
	RequestStart(name string) bool
	RequestStop(name string) bool
}

// Config configures a trajectory controller.
type Config struct {
	// Joints are the names of the controlled joints, in command order.
	Joints []string `json:"joints"`
	// StopWithAction stops the controller when a goal ends instead of
	// holding the last commanded position.
	StopWithAction bool `json:"stop_with_action"`
	// FeedbackRate is the goal feedback publish rate in Hz. Defaults to 50.
	FeedbackRate float64 `json:"feedback_rate"`
	// GoalGrace overrides the settling grace period in seconds applied on
	// top of a goal's time tolerance. Defaults to DefaultGoalGrace.
	GoalGrace float64 `json:"goal_grace"`
	// Clock drives feedback pacing and goal start times. Injected in tests.
	Clock clock.Clock `json:"-"`
}

// Validate ensures the config names at least one joint.
func (cfg *Config) Validate(path string) error {
	if len(cfg.Joints) == 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "joints")
	}
	return nil
}

func init() {
	controller.Register(Model, func(cfg controller.Config, mgr *controller.Manager, logger golog.Logger) (controller.Controller, error) {
		var conf Config
		if err := cfg.Attributes.TransformTo(&conf); err != nil {
			return nil, err
		}
		if err := conf.Validate(cfg.Name); err != nil {
			return nil, err
		}
		return New(cfg.Name, conf, mgr, logger)
	})
}

// Controller executes joint trajectories. One goal at a time is accepted via
// its action server; between goals the controller holds the last sampled
// position.
type Controller struct {
	name           string
	logger         golog.Logger
	mgr            Manager
	clock          clock.Clock
	stopWithAction bool
	feedbackPeriod time.Duration
	goalGrace      float64
	initialized    bool

	joints     []joint.Handle
	jointNames []string

	server *action.Server

	mu                sync.Mutex
	sampler           *trajectory.SplineSampler
	lastSample        *trajectory.Point
	goal              action.GoalHandle
	preempted         bool
	hasPathTolerance  bool
	pathTolerance     []Tolerance
	goalTolerance     []Tolerance
	goalTimeTolerance float64
	feedback          *Feedback
}

// New builds a trajectory controller over the named joints, resolving their
// handles from the manager.
func New(name string, cfg Config, mgr Manager, logger golog.Logger) (*Controller, error) {
	if len(cfg.Joints) == 0 {
		return nil, errors.New("no joints configured")
	}
	c := &Controller{
		name:           name,
		logger:         logger,
		mgr:            mgr,
		clock:          cfg.Clock,
		stopWithAction: cfg.StopWithAction,
		goalGrace:      cfg.GoalGrace,
		jointNames:     append([]string(nil), cfg.Joints...),
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.goalGrace <= 0 {
		c.goalGrace = DefaultGoalGrace
	}
	rate := cfg.FeedbackRate
	if rate <= 0 {
		rate = defaultFeedbackRate
	}
	c.feedbackPeriod = time.Duration(float64(time.Second) / rate)

	for _, jn := range cfg.Joints {
		h, err := mgr.JointHandle(jn)
		if err != nil {
			return nil, errors.Wrapf(err, "controller %q", name)
		}
		c.joints = append(c.joints, h)
	}
	c.feedback = newFeedback(c.jointNames)
	c.server = action.NewServer(c.execute, logger)
	c.initialized = true
	return c, nil
}

// Name returns the controller name.
func (c *Controller) Name() string {
	return c.name
}

// JointNames returns the controlled joint names.
func (c *Controller) JointNames() []string {
	return append([]string(nil), c.jointNames...)
}

// Authoritative reports that nothing may run on top of this controller.
func (c *Controller) Authoritative() bool {
	return true
}

// Start reports readiness. The controller only starts while a trajectory
// goal is in flight; its admission path requests the start.
func (c *Controller) Start() error {
	if !c.initialized {
		return errors.New("unable to start, not initialized")
	}
	if !c.server.IsActive() {
		return errors.New("unable to start, no active trajectory goal")
	}
	return nil
}

// Preempt gives up the controller's joints. A forced preempt aborts any
// in-flight goal; an unforced one is refused while a goal is executing.
func (c *Controller) Preempt(force bool) bool {
	if !c.initialized {
		return true
	}
	if c.server.IsActive() {
		if force {
			c.server.AbortActive(action.Result{Code: action.CodeOK}, "controller manager forced preemption")
			return true
		}
		return false
	}
	return true
}

// SubmitGoal hands a trajectory goal to the controller's action server,
// preempting any goal already in flight.
func (c *Controller) SubmitGoal(ctx context.Context, goal action.Goal) (*action.ClientHandle, error) {
	return c.server.SendGoal(ctx, goal)
}

// Close shuts down the action server, preempting any in-flight goal.
func (c *Controller) Close() error {
	return c.server.Close()
}

// Update runs one control tick. With an active goal it samples the
// trajectory at now, commands every joint, and evaluates tolerances. With no
// active goal it holds the last sampled position. Before the first sample
// ever lands it returns ErrNoCommand and commands nothing.
func (c *Controller) Update(now time.Time, dt time.Duration) error {
	if !c.initialized {
		return errors.New("not initialized")
	}
	nowSec := timeToSec(now)

	c.mu.Lock()
	sampler := c.sampler
	goal := c.goal
	hasPath := c.hasPathTolerance
	pathTol := c.pathTolerance
	goalTol := c.goalTolerance
	goalTimeTol := c.goalTimeTolerance
	c.mu.Unlock()

	if sampler != nil && goal != nil && goal.IsActive() {
		p := sampler.Sample(nowSec)

		c.mu.Lock()
		fb := c.feedback
		copy(fb.Desired.Positions, p.Positions)
		if p.HasVelocities() {
			copy(fb.Desired.Velocities, p.Velocities)
			if p.HasAccelerations() {
				copy(fb.Desired.Accelerations, p.Accelerations)
			}
		}
		for j, h := range c.joints {
			fb.Actual.Positions[j] = h.Position()
			fb.Actual.Velocities[j] = h.Velocity()
			fb.Actual.Effort[j] = h.Effort()
		}
		for j, h := range c.joints {
			if h.Continuous() {
				fb.Error.Positions[j] = utils.ShortestAngularDistance(fb.Desired.Positions[j], fb.Actual.Positions[j])
			} else {
				fb.Error.Positions[j] = fb.Actual.Positions[j] - fb.Desired.Positions[j]
			}
		}
		floats.SubTo(fb.Error.Velocities, fb.Actual.Velocities, fb.Desired.Velocities)
		fb.Stamp = now

		sample := p.Clone()
		c.lastSample = &sample
		desiredPos := append([]float64(nil), fb.Desired.Positions...)
		desiredVel := append([]float64(nil), fb.Desired.Velocities...)
		errPos := append([]float64(nil), fb.Error.Positions...)
		errVel := append([]float64(nil), fb.Error.Velocities...)
		c.mu.Unlock()

		if hasPath {
			for j := range c.joints {
				if pathTol[j].Position > 0 && math.Abs(errPos[j]) > pathTol[j].Position {
					c.logger.Errorw("trajectory path tolerances violated (position)", "joint", c.jointNames[j])
					goal.SetAborted(action.Result{Code: action.CodePathToleranceViolated},
						"trajectory path tolerances violated (position)")
				}
				if pathTol[j].Velocity > 0 && math.Abs(errVel[j]) > pathTol[j].Velocity {
					c.logger.Errorw("trajectory path tolerances violated (velocity)", "joint", c.jointNames[j])
					goal.SetAborted(action.Result{Code: action.CodePathToleranceViolated},
						"trajectory path tolerances violated (velocity)")
				}
			}
		}

		if nowSec >= sampler.EndTime() {
			insideTolerances := true
			for j := range c.joints {
				if goalTol[j].Position > 0 && math.Abs(errPos[j]) > goalTol[j].Position {
					insideTolerances = false
				}
			}
			if insideTolerances {
				c.logger.Debug("trajectory succeeded")
				goal.SetSucceeded(action.Result{Code: action.CodeOK}, "trajectory succeeded")
			} else if nowSec > sampler.EndTime()+goalTimeTol+c.goalGrace {
				c.logger.Error("trajectory not executed within time limits")
				goal.SetAborted(action.Result{Code: action.CodeGoalToleranceViolated},
					"trajectory not executed within time limits")
			}
		}

		var cmdErr error
		for j, h := range c.joints {
			cmdErr = multierr.Combine(cmdErr, h.SetPositionCommand(desiredPos[j], desiredVel[j], 0))
		}
		return cmdErr
	}

	c.mu.Lock()
	last := c.lastSample
	c.mu.Unlock()
	if last != nil && len(last.Positions) == len(c.joints) {
		var cmdErr error
		for j, h := range c.joints {
			cmdErr = multierr.Combine(cmdErr, h.SetPositionCommand(last.Positions[j], 0, 0))
		}
		return cmdErr
	}

	return controller.ErrNoCommand
}

// execute runs one trajectory goal from admission to its terminal state.
func (c *Controller) execute(ctx context.Context, goal action.Goal, gh action.GoalHandle) {
	if !c.initialized {
		gh.SetAborted(action.Result{Code: action.CodeNotInitialized}, "controller is not initialized")
		return
	}

	if len(goal.Waypoints) == 0 {
		// an empty trajectory means stop
		c.mgr.RequestStop(c.name)
		gh.SetSucceeded(action.Result{Code: action.CodeOK}, "no trajectory to execute, stop requested")
		return
	}

	if len(goal.JointNames) != len(c.joints) {
		c.logger.Error("trajectory goal size does not match controlled joints size")
		gh.SetAborted(action.Result{Code: action.CodeInvalidJoints},
			"trajectory goal size does not match controlled joints size")
		return
	}

	startSec := timeToSec(c.clock.Now())
	newTraj, err := trajectory.FromWaypoints(goal.JointNames, c.jointNames, goal.Waypoints, startSec)
	if err != nil {
		c.logger.Errorw("trajectory goal does not match controlled joints", "error", err)
		gh.SetAborted(action.Result{Code: action.CodeInvalidJoints},
			"trajectory goal does not match controlled joints")
		return
	}

	c.mu.Lock()
	preempted := c.preempted
	cur := c.sampler
	last := c.lastSample
	c.mu.Unlock()

	var executable trajectory.Trajectory
	switch {
	case preempted && cur != nil && cur.Trajectory().Size() > 2:
		// cut into the superseded trajectory at the current time
		executable, err = trajectory.Splice(cur.Trajectory(), newTraj, startSec)
	case preempted && last != nil:
		// the old trajectory was just a hold; lead in from the last sample
		lead := trajectory.Trajectory{Points: []trajectory.Point{last.Clone()}}
		executable, err = trajectory.Splice(lead, newTraj, 0)
	default:
		if newTraj.Size() > 1 {
			executable = newTraj
			if goal.Waypoints[0].TimeFromStart > 0 {
				// hasn't started yet, lead in from where the joints actually are
				head := c.pointFromCurrent(newTraj.Points[0].HasVelocities(), newTraj.Points[0].HasAccelerations(), true, startSec)
				executable.Points = append([]trajectory.Point{head}, executable.Points...)
			}
		} else {
			// a single point, with nothing in the queue
			head := c.pointFromCurrent(newTraj.Points[0].HasVelocities(), newTraj.Points[0].HasAccelerations(), false, startSec)
			executable = trajectory.Trajectory{Points: []trajectory.Point{head, newTraj.Points[0]}}
		}
	}
	if err != nil {
		c.logger.Errorw("unable to splice trajectory", "error", err)
		gh.SetAborted(action.Result{Code: action.CodeInvalidJoints}, "unable to splice trajectory")
		return
	}

	sampler := trajectory.NewSplineSampler(executable)

	hasPath := false
	var pathTol []Tolerance
	if len(goal.PathTolerance) == len(c.joints) {
		pathTol, err = tolerancesByJoint(goal.PathTolerance, c.joints)
		if err != nil {
			c.logger.Errorw("unable to convert path tolerances", "error", err)
			gh.SetAborted(action.Result{Code: action.CodeInvalidJoints}, "unable to convert path tolerances")
			return
		}
		hasPath = true
	}

	goalTol := defaultGoalTolerances(len(c.joints))
	if len(goal.GoalTolerance) == len(c.joints) {
		goalTol, err = tolerancesByJoint(goal.GoalTolerance, c.joints)
		if err != nil {
			c.logger.Errorw("unable to convert goal tolerances", "error", err)
			gh.SetAborted(action.Result{Code: action.CodeInvalidJoints}, "unable to convert goal tolerances")
			return
		}
	}

	c.mu.Lock()
	c.sampler = sampler
	c.goal = gh
	c.hasPathTolerance = hasPath
	c.pathTolerance = pathTol
	c.goalTolerance = goalTol
	c.goalTimeTolerance = goal.GoalTimeTolerance
	c.preempted = false
	c.mu.Unlock()

	if !c.mgr.RequestStart(c.name) {
		c.logger.Error("cannot execute trajectory, unable to start controller")
		gh.SetAborted(action.Result{Code: action.CodeStartRefused},
			"cannot execute trajectory, unable to start controller")
		c.mu.Lock()
		c.sampler = nil
		c.goal = nil
		c.mu.Unlock()
		return
	}

	c.logger.Debug("executing new trajectory")

	for gh.IsActive() {
		if gh.IsPreemptRequested() || ctx.Err() != nil {
			gh.SetPreempted(action.Result{Code: action.CodeOK}, "trajectory preempted")
			c.mu.Lock()
			c.preempted = true
			c.mu.Unlock()
			c.logger.Debug("trajectory preempted")
			break
		}

		c.mu.Lock()
		fb := c.feedback.clone()
		c.mu.Unlock()
		fb.Stamp = c.clock.Now()
		gh.PublishFeedback(fb)

		timer := c.clock.Timer(c.feedbackPeriod)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	c.mu.Lock()
	preempted = c.preempted
	c.goal = nil
	// a preempted goal leaves its sampler in place so the next goal can
	// splice into the in-flight trajectory
	if !preempted {
		c.sampler = nil
	}
	c.mu.Unlock()

	if c.stopWithAction && !preempted {
		c.mgr.RequestStop(c.name)
	}
	c.logger.Debug("done executing trajectory")
}

// pointFromCurrent builds a waypoint from the joints' present state.
// Velocity is either measured or zeroed depending on whether the caller
// wants a moving or a resting lead-in; there is no usable acceleration
// measure, so accelerations are zero when requested at all.
func (c *Controller) pointFromCurrent(inclVel, inclAcc, zeroVel bool, t float64) trajectory.Point {
	p := trajectory.Point{Time: t, Positions: make([]float64, len(c.joints))}
	for j, h := range c.joints {
		p.Positions[j] = h.Position()
	}
	if inclVel {
		p.Velocities = make([]float64, len(c.joints))
		if !zeroVel {
			for j, h := range c.joints {
				p.Velocities[j] = h.Velocity()
			}
		}
	}
	if inclAcc {
		p.Accelerations = make([]float64, len(c.joints))
	}
	return p
}

func timeToSec(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
