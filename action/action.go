// Package action provides an in-process goal transport for controllers that
// execute long-running commands: a server accepts goals, runs an execute
// callback per goal on its own goroutine, and cooperatively preempts an
// in-flight goal when a new one arrives.
package action

import (
	"github.com/google/uuid"

	"github.com/fieldbotics/controllers/trajectory"
)

// State is the lifecycle state of a goal.
type State int

const (
	// StateIdle means the goal has not started executing.
	StateIdle State = iota
	// StateExecuting means the goal is actively being executed.
	StateExecuting
	// StateSucceeded is terminal: the goal completed within tolerances.
	StateSucceeded
	// StateAborted is terminal: the goal failed.
	StateAborted
	// StatePreempted is terminal: the goal was cancelled, typically by a
	// newer goal.
	StatePreempted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExecuting:
		return "executing"
	case StateSucceeded:
		return "succeeded"
	case StateAborted:
		return "aborted"
	case StatePreempted:
		return "preempted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is one-shot final.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateAborted || s == StatePreempted
}

// Code classifies a terminal result.
type Code int

const (
	// CodeOK is a successful or voluntarily ended goal.
	CodeOK Code = iota
	// CodeInvalidJoints means the goal's shape did not match the controlled
	// joints, or a tolerance entry named an unknown joint.
	CodeInvalidJoints
	// CodePathToleranceViolated means tracking error exceeded the path
	// tolerance mid-trajectory.
	CodePathToleranceViolated
	// CodeGoalToleranceViolated means the goal position was not reached
	// within tolerance before the time limit ran out.
	CodeGoalToleranceViolated
	// CodeStartRefused means the controller manager declined to activate
	// the controller.
	CodeStartRefused
	// CodeNotInitialized means the controller was not ready for goals.
	CodeNotInitialized
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeInvalidJoints:
		return "invalid_joints"
	case CodePathToleranceViolated:
		return "path_tolerance_violated"
	case CodeGoalToleranceViolated:
		return "goal_tolerance_violated"
	case CodeStartRefused:
		return "start_refused"
	case CodeNotInitialized:
		return "not_initialized"
	default:
		return "unknown"
	}
}

// Result is the terminal outcome of a goal.
type Result struct {
	Code Code
}

// JointTolerance is one per-joint tolerance row of a goal. Thresholds at or
// below zero leave the corresponding check disabled.
type JointTolerance struct {
	Joint        string
	Position     float64
	Velocity     float64
	Acceleration float64
}

// Goal is a trajectory-following command record.
type Goal struct {
	ID                uuid.UUID
	JointNames        []string
	Waypoints         []trajectory.Waypoint
	PathTolerance     []JointTolerance
	GoalTolerance     []JointTolerance
	GoalTimeTolerance float64
}

// GoalHandle is the server side of one goal: the execute callback and the
// control tick use it to observe preemption and to report progress and the
// terminal state. Terminal setters are one-shot; later calls are ignored.
type GoalHandle interface {
	// ID returns the goal's unique id.
	ID() uuid.UUID
	// IsActive reports whether the goal is still executing.
	IsActive() bool
	// IsPreemptRequested reports whether cancellation has been requested.
	IsPreemptRequested() bool
	// PublishFeedback records a progress report for the client.
	PublishFeedback(fb interface{})

	SetSucceeded(res Result, msg string)
	SetAborted(res Result, msg string)
	SetPreempted(res Result, msg string)
}
