package domain

import (
	"context"
	"time"
)

// Activity is a named, typed, idempotent operation. Implementations must
// be safe for at-least-once invocation.
type Activity[I any, O any] interface {
	Name() string
	Run(ctx context.Context, in I) (O, error)
}

// RetryPolicy tells the engine how to re-run a failed activity. A zero
// MaxAttempts means a single attempt. Errors marked with [NonRetryable]
// are never retried.
type RetryPolicy struct {
	MaxAttempts        int
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaxInterval        time.Duration
}

// Interval returns the delay before retry number attempt (1-based).
func (p RetryPolicy) Interval(attempt int) time.Duration {
	d := p.InitialInterval
	coeff := p.BackoffCoefficient
	if coeff < 1 {
		coeff = 1
	}
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * coeff)
		if p.MaxInterval > 0 && d > p.MaxInterval {
			return p.MaxInterval
		}
	}
	return d
}

// RetryPolicyProvider is implemented by activities that carry a retry
// policy. Engines read it when the activity is registered or invoked.
type RetryPolicyProvider interface {
	RetryPolicy() RetryPolicy
}

// RetryPolicyOf returns the retry policy declared by an activity, or the
// single-attempt zero policy.
func RetryPolicyOf(activity any) RetryPolicy {
	if p, ok := activity.(RetryPolicyProvider); ok {
		return p.RetryPolicy()
	}
	return RetryPolicy{}
}

// DurableRunner is the capability object provided to a running workflow.
// It durably runs activities and provides a context for pure operations
// that need cancellation propagation.
type DurableRunner interface {
	ID() string

	// Context returns the workflow execution context. In a durable
	// engine this is the deterministic replay context; in the
	// synchronous backend it is the caller's context.
	Context() context.Context

	// Run durably runs an activity, applying its retry policy. The
	// engine provides the activity's context internally; callers should
	// use [RunActivity] for type safety.
	Run(activity Activity[any, any], in any) (any, error)
}

// RunActivity provides type-safe durable activity execution from within
// a workflow body. It is a thin wrapper around [DurableRunner.Run].
func RunActivity[I any, O any](runner DurableRunner, activity Activity[I, O], in I) (O, error) {
	result, err := runner.Run(&activityAdapter[I, O]{activity: activity}, in)
	if err != nil {
		var zero O
		return zero, err
	}
	return result.(O), nil
}

// WorkflowHandle is a handle to a running or completed workflow execution.
type WorkflowHandle[O any] interface {
	WorkflowID() string
	AwaitResult(ctx context.Context) (O, error)
}

// DeploymentRunner starts and awaits deploy workflows.
type DeploymentRunner interface {
	Run(ctx context.Context, req DeployRequest) (WorkflowHandle[DeployState], error)
}

// ValidationRunner starts and awaits validate-only workflows.
type ValidationRunner interface {
	Run(ctx context.Context, req DeployRequest) (WorkflowHandle[ValidationReport], error)
}

// WorkflowEngine creates runners for the workflow types known to the
// domain. Infrastructure packages provide engine-specific implementations.
type WorkflowEngine interface {
	DeploymentRunner(wf *DeploymentWorkflow) (DeploymentRunner, error)
	ValidationRunner(wf *ValidationWorkflow) (ValidationRunner, error)
}

// ActivityOption configures an activity created by [NewActivity].
type ActivityOption func(*activityOptions)

type activityOptions struct {
	retry RetryPolicy
}

// WithRetryPolicy attaches a retry policy to the activity.
func WithRetryPolicy(p RetryPolicy) ActivityOption {
	return func(o *activityOptions) { o.retry = p }
}

// NewActivity creates an [Activity] from a stable name and a function.
// Workflow types use this to define their activities as methods.
func NewActivity[I, O any](name string, fn func(context.Context, I) (O, error), opts ...ActivityOption) Activity[I, O] {
	var o activityOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &activityFunc[I, O]{name: name, fn: fn, retry: o.retry}
}

type activityFunc[I, O any] struct {
	name  string
	fn    func(context.Context, I) (O, error)
	retry RetryPolicy
}

func (a *activityFunc[I, O]) Name() string                             { return a.name }
func (a *activityFunc[I, O]) Run(ctx context.Context, in I) (O, error) { return a.fn(ctx, in) }
func (a *activityFunc[I, O]) RetryPolicy() RetryPolicy                 { return a.retry }

// activityAdapter bridges a typed [Activity] to the any-typed
// [DurableRunner.Run] interface.
type activityAdapter[I any, O any] struct{ activity Activity[I, O] }

func (a *activityAdapter[I, O]) Name() string { return a.activity.Name() }
func (a *activityAdapter[I, O]) Run(ctx context.Context, in any) (any, error) {
	return a.activity.Run(ctx, in.(I))
}
func (a *activityAdapter[I, O]) RetryPolicy() RetryPolicy { return RetryPolicyOf(a.activity) }
