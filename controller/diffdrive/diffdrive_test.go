package diffdrive

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/fieldbotics/controllers/joint"
	"github.com/fieldbotics/controllers/joint/fake"
)

type fakeManager struct {
	mu          sync.Mutex
	joints      map[string]joint.Handle
	started     int
	refuseStart bool
}

func (m *fakeManager) JointHandle(name string) (joint.Handle, error) {
	j, ok := m.joints[name]
	if !ok {
		return nil, errors.Errorf("no joint %q", name)
	}
	return j, nil
}

func (m *fakeManager) RequestStart(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refuseStart {
		return false
	}
	m.started++
	return true
}

func (m *fakeManager) RequestStop(name string) bool { return true }

type fixture struct {
	c           *Controller
	mock        *clock.Mock
	left, right *fake.Joint
	mgr         *fakeManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mock := clock.NewMock()
	left := fake.New(fake.Config{Name: "wheel_left", Continuous: true})
	right := fake.New(fake.Config{Name: "wheel_right", Continuous: true})
	mgr := &fakeManager{joints: map[string]joint.Handle{
		"wheel_left":  left,
		"wheel_right": right,
	}}
	c, err := New("base", Config{
		LeftJoint:       "wheel_left",
		RightJoint:      "wheel_right",
		TrackWidth:      0.5,
		WheelRadius:     0.1,
		MaxVelocity:     1.0,
		MaxAcceleration: 100, // effectively no ramp unless a test overrides it
		Clock:           mock,
	}, mgr, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return &fixture{c: c, mock: mock, left: left, right: right, mgr: mgr}
}

// tick advances the mock clock and runs one update, stepping the fake
// wheels so odometry sees motion.
func (f *fixture) tick(t *testing.T, dt time.Duration) {
	t.Helper()
	f.mock.Add(dt)
	test.That(t, f.c.Update(f.mock.Now(), dt), test.ShouldBeNil)
	f.left.Step(dt.Seconds())
	f.right.Step(dt.Seconds())
}

func TestUnknownWheelJoint(t *testing.T) {
	mgr := &fakeManager{joints: map[string]joint.Handle{}}
	_, err := New("base", Config{
		LeftJoint:   "nope",
		RightJoint:  "nada",
		TrackWidth:  0.5,
		WheelRadius: 0.1,
	}, mgr, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	test.That(t, cfg.Validate("base"), test.ShouldNotBeNil)
	cfg.LeftJoint = "l"
	test.That(t, cfg.Validate("base"), test.ShouldNotBeNil)
	cfg.RightJoint = "r"
	test.That(t, cfg.Validate("base"), test.ShouldNotBeNil)
	cfg.TrackWidth = 0.5
	test.That(t, cfg.Validate("base"), test.ShouldNotBeNil)
	cfg.WheelRadius = 0.1
	test.That(t, cfg.Validate("base"), test.ShouldBeNil)
}

func TestStraightLineCommand(t *testing.T) {
	f := newFixture(t)
	test.That(t, f.c.SetCommand(0.5, 0), test.ShouldBeNil)
	test.That(t, f.mgr.started, test.ShouldEqual, 1)

	f.tick(t, 20*time.Millisecond)
	// both wheels spin at v / r
	test.That(t, f.left.Velocity(), test.ShouldAlmostEqual, 5.0, 1e-9)
	test.That(t, f.right.Velocity(), test.ShouldAlmostEqual, 5.0, 1e-9)
}

func TestTurnInPlace(t *testing.T) {
	f := newFixture(t)
	test.That(t, f.c.SetCommand(0, 1.0), test.ShouldBeNil)

	f.tick(t, 20*time.Millisecond)
	// wheels spin opposite at w * track/2 / r
	test.That(t, f.left.Velocity(), test.ShouldAlmostEqual, -2.5, 1e-9)
	test.That(t, f.right.Velocity(), test.ShouldAlmostEqual, 2.5, 1e-9)
}

func TestCommandClamped(t *testing.T) {
	f := newFixture(t)
	test.That(t, f.c.SetCommand(50, 0), test.ShouldBeNil)
	f.tick(t, 20*time.Millisecond)
	test.That(t, f.left.Velocity(), test.ShouldAlmostEqual, 10.0, 1e-9) // 1 m/s cap / 0.1 m radius
}

func TestAccelerationRamp(t *testing.T) {
	mock := clock.NewMock()
	left := fake.New(fake.Config{Name: "l"})
	right := fake.New(fake.Config{Name: "r"})
	mgr := &fakeManager{joints: map[string]joint.Handle{"l": left, "r": right}}
	c, err := New("base", Config{
		LeftJoint:       "l",
		RightJoint:      "r",
		TrackWidth:      0.5,
		WheelRadius:     0.1,
		MaxAcceleration: 1.0,
		Clock:           mock,
	}, mgr, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, c.SetCommand(1.0, 0), test.ShouldBeNil)
	mock.Add(100 * time.Millisecond)
	test.That(t, c.Update(mock.Now(), 100*time.Millisecond), test.ShouldBeNil)
	// one tick at 1 m/s^2 over 0.1 s reaches 0.1 m/s
	test.That(t, left.Velocity(), test.ShouldAlmostEqual, 1.0, 1e-9)

	mock.Add(100 * time.Millisecond)
	test.That(t, c.Update(mock.Now(), 100*time.Millisecond), test.ShouldBeNil)
	test.That(t, left.Velocity(), test.ShouldAlmostEqual, 2.0, 1e-9)
}

func TestCommandTimeout(t *testing.T) {
	f := newFixture(t)
	test.That(t, f.c.SetCommand(0.5, 0), test.ShouldBeNil)
	f.tick(t, 20*time.Millisecond)
	test.That(t, f.left.Velocity(), test.ShouldAlmostEqual, 5.0, 1e-9)

	// past the default 0.25 s without a refresh: coast to zero
	f.tick(t, time.Second)
	test.That(t, f.left.Velocity(), test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, f.right.Velocity(), test.ShouldAlmostEqual, 0, 1e-9)
}

func TestOdometryStraight(t *testing.T) {
	f := newFixture(t)
	test.That(t, f.c.SetCommand(0.5, 0), test.ShouldBeNil)
	for i := 0; i < 50; i++ {
		test.That(t, f.c.SetCommand(0.5, 0), test.ShouldBeNil)
		f.tick(t, 20*time.Millisecond)
	}

	pose, vel := f.c.Odometry()
	// 50 ticks at 0.5 m/s over 20 ms each, minus the latch tick
	test.That(t, pose.X, test.ShouldAlmostEqual, 0.49, 1e-9)
	test.That(t, pose.Y, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, pose.Theta, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, vel.Linear, test.ShouldAlmostEqual, 0.5, 1e-9)
}

func TestOdometryTurnInPlace(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 50; i++ {
		test.That(t, f.c.SetCommand(0, 1.0), test.ShouldBeNil)
		f.tick(t, 20*time.Millisecond)
	}

	pose, vel := f.c.Odometry()
	test.That(t, pose.X, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, pose.Y, test.ShouldAlmostEqual, 0, 1e-9)
	// 49 integrating ticks at 1 rad/s over 20 ms each
	test.That(t, pose.Theta, test.ShouldAlmostEqual, 0.98, 1e-9)
	test.That(t, vel.Angular, test.ShouldAlmostEqual, 1.0, 1e-9)
}

func TestPreemptRefusedWhileMoving(t *testing.T) {
	f := newFixture(t)
	test.That(t, f.c.SetCommand(0.5, 0), test.ShouldBeNil)
	f.tick(t, 20*time.Millisecond)

	test.That(t, f.c.Preempt(false), test.ShouldBeFalse)
	test.That(t, f.c.Preempt(true), test.ShouldBeTrue)
	test.That(t, f.left.Velocity(), test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, f.right.Velocity(), test.ShouldAlmostEqual, 0, 1e-9)
}

func TestPreemptAllowedAtRest(t *testing.T) {
	f := newFixture(t)
	test.That(t, f.c.Preempt(false), test.ShouldBeTrue)
}

func TestSetCommandRefusedStart(t *testing.T) {
	f := newFixture(t)
	f.mgr.refuseStart = true
	test.That(t, f.c.SetCommand(0.5, 0), test.ShouldNotBeNil)
}
