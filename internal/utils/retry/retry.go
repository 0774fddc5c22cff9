package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// State is a step of the retry machine.
type State int

const (
	StateAttempt State = iota
	StateWaiting
	StateSuccess
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateAttempt:
		return "attempt"
	case StateWaiting:
		return "waiting"
	case StateSuccess:
		return "success"
	case StateExhausted:
		return "exhausted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Policy bounds the number of attempts and sets a linear backoff: the wait
// after attempt n is BackoffStep * n.
type Policy struct {
	MaxAttempts int
	BackoffStep time.Duration
}

// Backoff returns the wait that follows the given (1-based) failed attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	return p.BackoffStep * time.Duration(attempt)
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// ExhaustedError is returned when every attempt failed. Err is the error of
// the last attempt.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The machine stops immediately and
// returns err unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var perm *permanentError
	return errors.As(err, &perm)
}

// Transition describes one state change, reported to observers.
type Transition struct {
	From    State
	To      State
	Attempt int
	Wait    time.Duration
	Err     error
}

type Option func(*Machine)

// WithSleep replaces the wait implementation, mostly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Machine) { m.sleep = sleep }
}

// WithObserver registers a callback invoked on every state change.
func WithObserver(fn func(Transition)) Option {
	return func(m *Machine) { m.observers = append(m.observers, fn) }
}

// Machine runs an operation through attempt -> (waiting -> attempt)* until it
// reaches success or exhausted. A Machine is single use.
type Machine struct {
	policy    Policy
	state     State
	attempt   int
	sleep     func(ctx context.Context, d time.Duration) error
	observers []func(Transition)
}

func New(policy Policy, opts ...Option) *Machine {
	m := &Machine{
		policy: policy,
		state:  StateAttempt,
		sleep:  Sleep,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) State() State  { return m.state }
func (m *Machine) Attempts() int { return m.attempt }

// Run drives op until it succeeds, the policy is exhausted, op returns a
// Permanent error, or ctx is cancelled while waiting.
func (m *Machine) Run(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	max := m.policy.maxAttempts()
	for {
		m.attempt++
		err := op(ctx, m.attempt)
		if err == nil {
			m.transition(StateSuccess, 0, nil)
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			m.transition(StateExhausted, 0, perm.err)
			return perm.err
		}
		if m.attempt >= max {
			m.transition(StateExhausted, 0, err)
			return &ExhaustedError{Attempts: m.attempt, Err: err}
		}

		wait := m.policy.Backoff(m.attempt)
		m.transition(StateWaiting, wait, err)
		if serr := m.sleep(ctx, wait); serr != nil {
			m.transition(StateExhausted, 0, serr)
			return &ExhaustedError{Attempts: m.attempt, Err: errors.Join(err, serr)}
		}
		m.transition(StateAttempt, 0, nil)
	}
}

func (m *Machine) transition(to State, wait time.Duration, err error) {
	t := Transition{From: m.state, To: to, Attempt: m.attempt, Wait: wait, Err: err}
	m.state = to
	for _, fn := range m.observers {
		fn(t)
	}
}

// Do is shorthand for New(policy, opts...).Run(ctx, op).
func Do(ctx context.Context, policy Policy, op func(ctx context.Context, attempt int) error, opts ...Option) error {
	return New(policy, opts...).Run(ctx, op)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
