// Package syncworkflow provides a synchronous, in-process [domain.WorkflowEngine].
// Activities execute inline with no persistence or replay; retry policies
// are enforced with cenkalti/backoff.
package syncworkflow

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/fleetshift/fleetshift-pipeline/internal/domain"
)

var runCounter atomic.Int64

// Engine implements [domain.WorkflowEngine] with synchronous, in-process
// execution. No durable state is kept.
type Engine struct {
	// Sleep replaces real waiting between retries when set. Tests use
	// it to observe retry intervals without sleeping.
	Sleep func(time.Duration)
}

func (e *Engine) DeploymentRunner(wf *domain.DeploymentWorkflow) (domain.DeploymentRunner, error) {
	return &runner[domain.DeployState]{engine: e, run: wf.Run}, nil
}

func (e *Engine) ValidationRunner(wf *domain.ValidationWorkflow) (domain.ValidationRunner, error) {
	return &runner[domain.ValidationReport]{engine: e, run: wf.Run}, nil
}

type runner[O any] struct {
	engine *Engine
	run    func(domain.DurableRunner, domain.DeployRequest) (O, error)
}

func (r *runner[O]) Run(ctx context.Context, req domain.DeployRequest) (domain.WorkflowHandle[O], error) {
	id := runCounter.Add(1)
	dr := &syncRunner{id: id, ctx: ctx, engine: r.engine}
	result, err := r.run(dr, req)
	return &handle[O]{id: id, result: result, err: err}, nil
}

type syncRunner struct {
	id     int64
	ctx    context.Context
	engine *Engine
}

func (r *syncRunner) ID() string               { return fmt.Sprintf("sync-%d", r.id) }
func (r *syncRunner) Context() context.Context { return r.ctx }

// Run executes the activity inline, retrying per its policy. Errors
// marked non-retryable end the attempts immediately.
func (r *syncRunner) Run(activity domain.Activity[any, any], in any) (any, error) {
	policy := domain.RetryPolicyOf(activity)
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	op := func() (any, error) {
		out, err := activity.Run(r.ctx, in)
		if err != nil && domain.IsNonRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return out, err
	}

	out, err := backoff.Retry(r.ctx, op,
		backoff.WithBackOff(&policyBackOff{policy: policy, sleep: r.engine.Sleep}),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	return out, err
}

// policyBackOff adapts a [domain.RetryPolicy] to [backoff.BackOff]. When
// sleep is set the wait happens there and the retry proceeds at once.
type policyBackOff struct {
	policy  domain.RetryPolicy
	attempt int
	sleep   func(time.Duration)
}

func (b *policyBackOff) NextBackOff() time.Duration {
	b.attempt++
	d := b.policy.Interval(b.attempt)
	if b.sleep != nil {
		b.sleep(d)
		return 0
	}
	return d
}

func (b *policyBackOff) Reset() { b.attempt = 0 }

type handle[O any] struct {
	id     int64
	result O
	err    error
}

func (h *handle[O]) WorkflowID() string                       { return fmt.Sprintf("sync-%d", h.id) }
func (h *handle[O]) AwaitResult(_ context.Context) (O, error) { return h.result, h.err }
