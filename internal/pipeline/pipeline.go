// Package pipeline runs small batch jobs as ordered tasks with retries.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"arxiv_rag_go_backend/internal/utils/retry"

	"github.com/rs/zerolog"
)

var (
	ErrDuplicateTask = errors.New("duplicate task")
	ErrUnknownTask   = errors.New("unknown dependency")
	ErrCycle         = errors.New("dependency cycle")
	ErrEmpty         = errors.New("pipeline has no tasks")
)

// Task is one unit of work. Dependencies name tasks that must succeed first.
type Task interface {
	Name() string
	Dependencies() []string
	Run(ctx context.Context) error
}

// TaskState is the outcome of a task in a run.
type TaskState string

const (
	TaskSucceeded      TaskState = "success"
	TaskFailed         TaskState = "failed"
	TaskUpstreamFailed TaskState = "upstream_failed"
)

type TaskResult struct {
	Name     string
	State    TaskState
	Attempts int
	Duration time.Duration
	Err      error
}

// TaskError is returned by Run when a task exhausted its retries.
type TaskError struct {
	Task     string
	Attempts int
	Err      error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s failed after %d attempt(s): %v", e.Task, e.Attempts, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Settings mirror the usual scheduler defaults: Retries extra attempts with
// RetryDelay between them.
type Settings struct {
	Retries    int
	RetryDelay time.Duration
}

func DefaultSettings() Settings {
	return Settings{Retries: 1, RetryDelay: 5 * time.Minute}
}

// policy only bounds attempts; runTask waits RetryDelay between them.
func (s Settings) policy() retry.Policy {
	retries := s.Retries
	if retries < 0 {
		retries = 0
	}
	return retry.Policy{MaxAttempts: retries + 1}
}

type Pipeline struct {
	name     string
	settings Settings
	tasks    map[string]Task
	added    []string
	logger   zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

type Option func(*Pipeline)

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithSleep replaces the wait between attempts, mostly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) { p.sleep = sleep }
}

func New(name string, settings Settings, opts ...Option) *Pipeline {
	p := &Pipeline{
		name:     name,
		settings: settings,
		tasks:    make(map[string]Task),
		logger:   zerolog.Nop(),
		sleep:    retry.Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With().Str("pipeline", name).Logger()
	return p
}

func (p *Pipeline) Add(tasks ...Task) error {
	for _, t := range tasks {
		if _, ok := p.tasks[t.Name()]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, t.Name())
		}
		p.tasks[t.Name()] = t
		p.added = append(p.added, t.Name())
	}
	return nil
}

// Order returns the task names so that every task follows its dependencies.
// Ties keep insertion order.
func (p *Pipeline) Order() ([]string, error) {
	if len(p.tasks) == 0 {
		return nil, ErrEmpty
	}

	position := make(map[string]int, len(p.added))
	for i, name := range p.added {
		position[name] = i
	}

	indegree := make(map[string]int, len(p.tasks))
	dependents := make(map[string][]string)
	for _, name := range p.added {
		deps := p.tasks[name].Dependencies()
		indegree[name] = len(deps)
		for _, dep := range deps {
			if _, ok := p.tasks[dep]; !ok {
				return nil, fmt.Errorf("%w: %s needs %s", ErrUnknownTask, name, dep)
			}
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for _, name := range p.added {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(p.tasks))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return position[ready[i]] < position[ready[j]] })
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)
		for _, next := range dependents[name] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(order) != len(p.tasks) {
		return nil, ErrCycle
	}
	return order, nil
}

// Run executes the tasks one at a time in dependency order. The first task
// that exhausts its retries stops the run; the tasks after it are reported as
// upstream_failed.
func (p *Pipeline) Run(ctx context.Context) ([]TaskResult, error) {
	order, err := p.Order()
	if err != nil {
		return nil, err
	}

	p.logger.Info().Strs("order", order).Msg("Starting pipeline run")
	results := make([]TaskResult, 0, len(order))
	var runErr error

	for _, name := range order {
		if runErr != nil {
			results = append(results, TaskResult{Name: name, State: TaskUpstreamFailed})
			continue
		}

		result := p.runTask(ctx, p.tasks[name])
		results = append(results, result)
		if result.State == TaskFailed {
			runErr = &TaskError{Task: name, Attempts: result.Attempts, Err: result.Err}
		}
	}

	if runErr != nil {
		p.logger.Error().Err(runErr).Msg("Pipeline run failed")
		return results, runErr
	}
	p.logger.Info().Msg("Pipeline run succeeded")
	return results, nil
}

func (p *Pipeline) runTask(ctx context.Context, task Task) TaskResult {
	logger := p.logger.With().Str("task", task.Name()).Logger()
	delay := p.settings.RetryDelay

	machine := retry.New(p.settings.policy(),
		retry.WithSleep(func(ctx context.Context, _ time.Duration) error {
			return p.sleep(ctx, delay)
		}),
		retry.WithObserver(func(t retry.Transition) {
			if t.To == retry.StateWaiting {
				logger.Warn().Err(t.Err).Int("attempt", t.Attempt).Dur("retry_delay", delay).Msg("Task failed, retrying")
			}
		}),
	)

	start := time.Now()
	err := machine.Run(ctx, func(ctx context.Context, attempt int) error {
		logger.Info().Int("attempt", attempt).Msg("Running task")
		return task.Run(ctx)
	})
	result := TaskResult{
		Name:     task.Name(),
		State:    TaskSucceeded,
		Attempts: machine.Attempts(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			err = exhausted.Err
		}
		result.State = TaskFailed
		result.Err = err
		logger.Error().Err(err).Int("attempts", result.Attempts).Msg("Task failed")
		return result
	}
	logger.Info().Dur("duration", result.Duration).Msg("Task succeeded")
	return result
}
