package action

import (
	"context"
	"sync"

	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

// ExecuteFunc runs one goal to completion. It must set a terminal state on
// the handle before returning; if it does not, the server aborts the goal on
// its behalf.
type ExecuteFunc func(ctx context.Context, goal Goal, gh GoalHandle)

// Server is a minimal single-goal action server. A new goal requests
// preemption of the in-flight one and waits for its execute callback to
// return before starting, so the callback's cleanup is always ordered before
// the next admission.
type Server struct {
	logger  golog.Logger
	execute ExecuteFunc

	// sendMu serializes whole admissions: preempt the in-flight goal, wait
	// out its callback, install the new one. Without it two senders can both
	// pass the preempt-wait and one goal ends up running but unreachable.
	sendMu sync.Mutex

	mu      sync.Mutex
	current *goalHandle
	closed  bool

	cancelCtx               context.Context
	cancel                  context.CancelFunc
	activeBackgroundWorkers sync.WaitGroup
}

// NewServer returns a server dispatching goals to execute.
func NewServer(execute ExecuteFunc, logger golog.Logger) *Server {
	cancelCtx, cancel := context.WithCancel(context.Background())
	return &Server{
		logger:    logger,
		execute:   execute,
		cancelCtx: cancelCtx,
		cancel:    cancel,
	}
}

// IsActive reports whether a goal is currently executing.
func (s *Server) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.current.IsActive()
}

// SendGoal submits a goal. If another goal is in flight it is preempted
// first; SendGoal blocks until the superseded callback has returned. The
// returned handle lets the caller await the terminal state.
func (s *Server) SendGoal(ctx context.Context, goal Goal) (*ClientHandle, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("action server is closed")
	}
	prev := s.current
	s.mu.Unlock()

	if prev != nil {
		prev.requestPreempt()
		select {
		case <-prev.finished:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if goal.ID == uuid.Nil {
		goal.ID = uuid.New()
	}
	gh := newGoalHandle(goal.ID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("action server is closed")
	}
	s.current = gh
	s.mu.Unlock()

	s.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(func() {
		gh.markExecuting()
		s.execute(s.cancelCtx, goal, gh)
		gh.finalize(s.logger)
	}, func() {
		close(gh.finished)
		s.activeBackgroundWorkers.Done()
	})

	return &ClientHandle{gh: gh}, nil
}

// AbortActive aborts the in-flight goal, if any, reporting whether one was
// aborted.
func (s *Server) AbortActive(res Result, msg string) bool {
	s.mu.Lock()
	gh := s.current
	s.mu.Unlock()
	if gh == nil || !gh.IsActive() {
		return false
	}
	gh.SetAborted(res, msg)
	return true
}

// Close preempts any in-flight goal and waits for its callback to exit.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	gh := s.current
	s.mu.Unlock()
	if gh != nil {
		gh.requestPreempt()
	}
	s.cancel()
	s.activeBackgroundWorkers.Wait()
	return nil
}

type goalHandle struct {
	id       uuid.UUID
	finished chan struct{}

	mu               sync.Mutex
	state            State
	preemptRequested bool
	result           Result
	message          string
	lastFeedback     interface{}
	done             chan struct{}
}

func newGoalHandle(id uuid.UUID) *goalHandle {
	return &goalHandle{
		id:       id,
		state:    StateIdle,
		finished: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (gh *goalHandle) markExecuting() {
	gh.mu.Lock()
	defer gh.mu.Unlock()
	if gh.state == StateIdle {
		gh.state = StateExecuting
	}
}

func (gh *goalHandle) ID() uuid.UUID {
	return gh.id
}

func (gh *goalHandle) IsActive() bool {
	gh.mu.Lock()
	defer gh.mu.Unlock()
	return !gh.state.Terminal()
}

func (gh *goalHandle) IsPreemptRequested() bool {
	gh.mu.Lock()
	defer gh.mu.Unlock()
	return gh.preemptRequested
}

func (gh *goalHandle) requestPreempt() {
	gh.mu.Lock()
	defer gh.mu.Unlock()
	gh.preemptRequested = true
}

func (gh *goalHandle) PublishFeedback(fb interface{}) {
	gh.mu.Lock()
	defer gh.mu.Unlock()
	gh.lastFeedback = fb
}

func (gh *goalHandle) SetSucceeded(res Result, msg string) {
	gh.setTerminal(StateSucceeded, res, msg)
}

func (gh *goalHandle) SetAborted(res Result, msg string) {
	gh.setTerminal(StateAborted, res, msg)
}

func (gh *goalHandle) SetPreempted(res Result, msg string) {
	gh.setTerminal(StatePreempted, res, msg)
}

func (gh *goalHandle) setTerminal(state State, res Result, msg string) {
	gh.mu.Lock()
	defer gh.mu.Unlock()
	if gh.state.Terminal() {
		return
	}
	gh.state = state
	gh.result = res
	gh.message = msg
	close(gh.done)
}

// finalize aborts a goal whose execute callback returned while the goal was
// still active.
func (gh *goalHandle) finalize(logger golog.Logger) {
	gh.mu.Lock()
	active := !gh.state.Terminal()
	gh.mu.Unlock()
	if active {
		logger.Warnw("execute callback returned without setting a terminal state", "goal", gh.id)
		gh.SetAborted(Result{Code: CodeOK}, "execute callback returned without setting a terminal state")
	}
}

// ClientHandle is the caller's view of a submitted goal.
type ClientHandle struct {
	gh *goalHandle
}

// ID returns the goal id.
func (c *ClientHandle) ID() uuid.UUID {
	return c.gh.id
}

// Done is closed once the goal reaches a terminal state.
func (c *ClientHandle) Done() <-chan struct{} {
	return c.gh.done
}

// State returns the goal's current lifecycle state.
func (c *ClientHandle) State() State {
	c.gh.mu.Lock()
	defer c.gh.mu.Unlock()
	return c.gh.state
}

// Result returns the terminal result and message. Meaningful once Done is
// closed.
func (c *ClientHandle) Result() (Result, string) {
	c.gh.mu.Lock()
	defer c.gh.mu.Unlock()
	return c.gh.result, c.gh.message
}

// LastFeedback returns the most recently published feedback, or nil.
func (c *ClientHandle) LastFeedback() interface{} {
	c.gh.mu.Lock()
	defer c.gh.mu.Unlock()
	return c.gh.lastFeedback
}

// Cancel requests cooperative preemption of the goal.
func (c *ClientHandle) Cancel() {
	c.gh.requestPreempt()
}
