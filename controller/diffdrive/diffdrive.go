// Package diffdrive implements a velocity controller for a differential
// drive base: it takes twist commands, ramps wheel speeds toward them, and
// integrates wheel odometry.
package diffdrive

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/fieldbotics/controllers/controller"
	"github.com/fieldbotics/controllers/joint"
	"github.com/fieldbotics/controllers/utils"
)

// Model is the registry type name for this controller.
const Model = "diff_drive"

const (
	defaultMaxVelocity        = 1.0  // m/s
	defaultMaxAngularVelocity = 4.5  // rad/s
	defaultMaxAcceleration    = 0.75 // m/s^2
	defaultCommandTimeout     = 0.25 // s
	defaultMovingThreshold    = 0.05 // m/s equivalent at the wheel rims
)

// Manager is the subset of the controller manager this controller needs.
type Manager interface {
	JointHandle(name string) (joint.Handle, error)
	RequestStart(name string) bool
	RequestStop(name string) bool
}

// Config configures a differential drive controller.
type Config struct {
	// LeftJoint and RightJoint name the wheel joints.
	LeftJoint  string `json:"left_joint"`
	RightJoint string `json:"right_joint"`
	// TrackWidth is the wheel separation in meters.
	TrackWidth float64 `json:"track_width"`
	// WheelRadius is the wheel radius in meters.
	WheelRadius float64 `json:"wheel_radius"`
	// MaxVelocity caps commanded linear speed in m/s. Defaults to 1.
	MaxVelocity float64 `json:"max_velocity"`
	// MaxAngularVelocity caps commanded turn rate in rad/s. Defaults to 4.5.
	MaxAngularVelocity float64 `json:"max_angular_velocity"`
	// MaxAcceleration bounds the ramp toward a new command in m/s^2.
	// Defaults to 0.75.
	MaxAcceleration float64 `json:"max_acceleration"`
	// CommandTimeout is how long a twist command stays valid, in seconds.
	// The base coasts to a stop after it expires. Defaults to 0.25.
	CommandTimeout float64 `json:"command_timeout"`
	// Clock stamps incoming commands. Injected in tests.
	Clock clock.Clock `json:"-"`
}

// Validate checks required geometry.
func (cfg *Config) Validate(path string) error {
	if cfg.LeftJoint == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "left_joint")
	}
	if cfg.RightJoint == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "right_joint")
	}
	if cfg.TrackWidth <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "track_width")
	}
	if cfg.WheelRadius <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "wheel_radius")
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

// Pose is the integrated odometry pose in the odom frame.
type Pose struct {
	X     float64
	Y     float64
	Theta float64
}

// Twist is a planar velocity: linear along the base's heading, angular
// about vertical.
type Twist struct {
	Linear  float64
	Angular float64
}

// Controller drives two wheel joints from twist commands and integrates
// their encoder positions into an odometry pose.
type Controller struct {
	name   string
	logger golog.Logger
	mgr    Manager
	clock  clock.Clock

	left  joint.Handle
	right joint.Handle

	trackWidth      float64
	wheelRadius     float64
	maxVelocity     float64
	maxAngular      float64
	maxAcceleration float64
	commandTimeout  float64
	movingThreshold float64

	mu          sync.Mutex
	desired     Twist
	lastSent    Twist
	lastCommand time.Time
	havePrev    bool
	prevLeft    float64
	prevRight   float64
	pose        Pose
	velocity    Twist
}

// New builds a differential drive controller, resolving the wheel joints
// from the manager.
func New(name string, cfg Config, mgr Manager, logger golog.Logger) (*Controller, error) {
	if cfg.TrackWidth <= 0 || cfg.WheelRadius <= 0 {
		return nil, errors.New("track_width and wheel_radius must be positive")
	}
	c := &Controller{
		name:            name,
		logger:          logger,
		mgr:             mgr,
		clock:           cfg.Clock,
		trackWidth:      cfg.TrackWidth,
		wheelRadius:     cfg.WheelRadius,
		maxVelocity:     cfg.MaxVelocity,
		maxAngular:      cfg.MaxAngularVelocity,
		maxAcceleration: cfg.MaxAcceleration,
		commandTimeout:  cfg.CommandTimeout,
		movingThreshold: defaultMovingThreshold,
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.maxVelocity <= 0 {
		c.maxVelocity = defaultMaxVelocity
	}
	if c.maxAngular <= 0 {
		c.maxAngular = defaultMaxAngularVelocity
	}
	if c.maxAcceleration <= 0 {
		c.maxAcceleration = defaultMaxAcceleration
	}
	if c.commandTimeout <= 0 {
		c.commandTimeout = defaultCommandTimeout
	}

	var err error
	if c.left, err = mgr.JointHandle(cfg.LeftJoint); err != nil {
		return nil, errors.Wrapf(err, "controller %q", name)
	}
	if c.right, err = mgr.JointHandle(cfg.RightJoint); err != nil {
		return nil, errors.Wrapf(err, "controller %q", name)
	}
	return c, nil
}

// Name returns the controller name.
func (c *Controller) Name() string {
	return c.name
}

// JointNames returns the wheel joint names.
func (c *Controller) JointNames() []string {
	return []string{c.left.Name(), c.right.Name()}
}

// Authoritative reports that nothing may run on top of this controller.
func (c *Controller) Authoritative() bool {
	return true
}

// Start reports readiness.
func (c *Controller) Start() error {
	return nil
}

// Preempt gives up the wheels. An unforced preempt is refused while the
// base is still moving; a forced one stops the wheels outright.
func (c *Controller) Preempt(force bool) bool {
	c.mu.Lock()
	moving := math.Abs(c.lastSent.Linear) > c.movingThreshold ||
		math.Abs(c.lastSent.Angular)*c.trackWidth/2 > c.movingThreshold
	if moving && !force {
		c.mu.Unlock()
		return false
	}
	c.desired = Twist{}
	c.lastSent = Twist{}
	c.mu.Unlock()
	if err := c.commandWheels(0, 0); err != nil {
		c.logger.Errorw("unable to stop wheels on preempt", "error", err)
	}
	return true
}

// SetCommand accepts a new twist command, clamped to the configured limits,
// and claims the wheels if this controller is not already running. The
// command expires after the configured timeout.
func (c *Controller) SetCommand(linear, angular float64) error {
	c.mu.Lock()
	c.desired = Twist{
		Linear:  utils.Clamp(linear, -c.maxVelocity, c.maxVelocity),
		Angular: utils.Clamp(angular, -c.maxAngular, c.maxAngular),
	}
	c.lastCommand = c.clock.Now()
	c.mu.Unlock()

	if !c.mgr.RequestStart(c.name) {
		return errors.Errorf("controller %q cannot claim the wheel joints", c.name)
	}
	return nil
}

// Stop zeroes the desired twist. The ramp still bounds the deceleration.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.desired = Twist{}
	c.mu.Unlock()
}

// Odometry returns the integrated pose and the base velocity observed at
// the wheels.
func (c *Controller) Odometry() (Pose, Twist) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pose, c.velocity
}

// Update runs one control tick: it expires stale commands, ramps the sent
// twist toward the desired one, commands wheel velocities, and folds the
// wheel encoder deltas into the odometry pose.
func (c *Controller) Update(now time.Time, dt time.Duration) error {
	dtSec := dt.Seconds()
	if dtSec <= 0 {
		return errors.New("non-positive control period")
	}

	c.mu.Lock()
	if !c.lastCommand.IsZero() && now.Sub(c.lastCommand).Seconds() > c.commandTimeout {
		c.desired = Twist{}
	}
	step := c.maxAcceleration * dtSec
	c.lastSent.Linear = utils.TowardsBy(c.lastSent.Linear, c.desired.Linear, step)
	c.lastSent.Angular = utils.TowardsBy(c.lastSent.Angular, c.desired.Angular, step*2/c.trackWidth)
	sent := c.lastSent
	c.mu.Unlock()

	leftVel := (sent.Linear - sent.Angular*c.trackWidth/2) / c.wheelRadius
	rightVel := (sent.Linear + sent.Angular*c.trackWidth/2) / c.wheelRadius
	cmdErr := c.commandWheels(leftVel, rightVel)

	c.integrateOdometry(dtSec)
	return cmdErr
}

func (c *Controller) commandWheels(leftVel, rightVel float64) error {
	return multierr.Combine(
		c.left.SetVelocityCommand(leftVel, 0),
		c.right.SetVelocityCommand(rightVel, 0),
	)
}

func (c *Controller) integrateOdometry(dtSec float64) {
	leftPos := c.left.Position()
	rightPos := c.right.Position()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.havePrev {
		c.prevLeft, c.prevRight = leftPos, rightPos
		c.havePrev = true
		return
	}

	dLeft := (leftPos - c.prevLeft) * c.wheelRadius
	dRight := (rightPos - c.prevRight) * c.wheelRadius
	c.prevLeft, c.prevRight = leftPos, rightPos

	d := (dLeft + dRight) / 2
	dTheta := (dRight - dLeft) / c.trackWidth

	// integrate along the chord at the midpoint heading
	heading := c.pose.Theta + dTheta/2
	c.pose.X += d * math.Cos(heading)
	c.pose.Y += d * math.Sin(heading)
	c.pose.Theta = utils.ModAngRad(c.pose.Theta + dTheta)

	c.velocity = Twist{Linear: d / dtSec, Angular: dTheta / dtSec}
}
