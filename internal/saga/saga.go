// Package saga runs an ordered list of steps where each completed step can be
// undone by a compensating action.
//
// Steps execute sequentially. When a step fails and the caller's policy says
// the failure warrants it, the compensations of the steps that already
// completed run in reverse order on a context detached from cancellation.
// Compensation is best-effort: failures are reported through a callback and
// never replace the original error.
package saga

import (
	"context"
	"errors"
)

// Step is one {action, compensation} pair.
type Step struct {
	Name       string
	Action     func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// CompensationError describes a compensation that failed.
type CompensationError struct {
	Step string
	Err  error
}

func (e *CompensationError) Error() string {
	return "compensate " + e.Step + ": " + e.Err.Error()
}

func (e *CompensationError) Unwrap() error {
	return e.Err
}

// Options tunes a run.
type Options struct {
	// ShouldCompensate decides whether a step failure triggers compensation.
	// Nil compensates every failure.
	ShouldCompensate func(step string, err error) bool
	// OnCompensationFailure is called once per failed compensation.
	OnCompensationFailure func(ctx context.Context, failure *CompensationError)
}

// StepError wraps the failing step's error with its name.
type StepError struct {
	Step        string
	Err         error
	Compensated bool
}

func (e *StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ErrNoAction reports a step without an action.
var ErrNoAction = errors.New("saga: step has no action")

// Run executes steps in order. On failure it returns a *StepError wrapping
// the step's error, after running compensations when the policy allows.
func Run(ctx context.Context, opts Options, steps ...Step) error {
	done := make([]Step, 0, len(steps))

	for _, step := range steps {
		if step.Action == nil {
			return &StepError{Step: step.Name, Err: ErrNoAction}
		}

		if err := step.Action(ctx); err != nil {
			stepErr := &StepError{Step: step.Name, Err: err}
			if opts.ShouldCompensate == nil || opts.ShouldCompensate(step.Name, err) {
				compensate(ctx, opts, done)
				stepErr.Compensated = true
			}
			return stepErr
		}

		done = append(done, step)
	}

	return nil
}

func compensate(ctx context.Context, opts Options, done []Step) {
	cctx := context.WithoutCancel(ctx)

	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(cctx); err != nil && opts.OnCompensationFailure != nil {
			opts.OnCompensationFailure(cctx, &CompensationError{Step: step.Name, Err: err})
		}
	}
}
