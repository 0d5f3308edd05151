package trajectory

import (
	"testing"

	"go.viam.com/test"
)

func TestValidate(t *testing.T) {
	test.That(t, Trajectory{}.Validate(), test.ShouldNotBeNil)

	good := Trajectory{Points: []Point{
		{Time: 0, Positions: []float64{0, 0}},
		{Time: 1, Positions: []float64{1, 2}},
		{Time: 1, Positions: []float64{1, 2}}, // equal-time anchor is fine
	}}
	test.That(t, good.Validate(), test.ShouldBeNil)

	ragged := Trajectory{Points: []Point{
		{Time: 0, Positions: []float64{0, 0}},
		{Time: 1, Positions: []float64{1}},
	}}
	test.That(t, ragged.Validate(), test.ShouldNotBeNil)

	badVel := Trajectory{Points: []Point{
		{Time: 0, Positions: []float64{0, 0}, Velocities: []float64{0}},
	}}
	test.That(t, badVel.Validate(), test.ShouldNotBeNil)

	backwards := Trajectory{Points: []Point{
		{Time: 1, Positions: []float64{0}},
		{Time: 0.5, Positions: []float64{1}},
	}}
	test.That(t, backwards.Validate(), test.ShouldNotBeNil)
}

func TestFromWaypoints(t *testing.T) {
	names := []string{"shoulder", "elbow"}
	order := []string{"elbow", "shoulder"}
	wps := []Waypoint{
		{TimeFromStart: 0, Positions: []float64{1, 2}, Velocities: []float64{0.1, 0.2}},
		{TimeFromStart: 2, Positions: []float64{3, 4}, Velocities: []float64{0.3, 0.4}},
	}

	traj, err := FromWaypoints(names, order, wps, 100)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, traj.Size(), test.ShouldEqual, 2)
	test.That(t, traj.StartTime(), test.ShouldEqual, 100.0)
	test.That(t, traj.EndTime(), test.ShouldEqual, 102.0)
	// columns re-ordered into controller order
	test.That(t, traj.Points[0].Positions, test.ShouldResemble, []float64{2, 1})
	test.That(t, traj.Points[0].Velocities, test.ShouldResemble, []float64{0.2, 0.1})
	test.That(t, traj.Points[1].Positions, test.ShouldResemble, []float64{4, 3})

	_, err = FromWaypoints(names, []string{"elbow", "wrist"}, wps, 0)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "wrist")

	_, err = FromWaypoints(names, order, []Waypoint{{Positions: []float64{1}}}, 0)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = FromWaypoints(names, order, nil, 0)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestClone(t *testing.T) {
	orig := Trajectory{Points: []Point{
		{Time: 0, Positions: []float64{1}, Velocities: []float64{2}, Accelerations: []float64{3}},
	}}
	cp := orig.Clone()
	cp.Points[0].Positions[0] = 99
	cp.Points[0].Velocities[0] = 99
	test.That(t, orig.Points[0].Positions[0], test.ShouldEqual, 1.0)
	test.That(t, orig.Points[0].Velocities[0], test.ShouldEqual, 2.0)
}
