// Package dbosworkflows implements [domain.WorkflowEngine] using
// the DBOS Transact Go SDK.
package dbosworkflows

import (
	"context"
	"errors"
	"fmt"

	"github.com/dbos-inc/dbos-transact-golang/dbos"

	"github.com/fleetshift/fleetshift-pipeline/internal/domain"
)

// activityInvoker calls RunAsStep with the correct concrete output type.
// Created at construction time when concrete types are known.
type activityInvoker func(ctx dbos.DBOSContext, in any) (any, error)

// Engine implements [domain.WorkflowEngine] backed by DBOS.
//
// The caller must call [dbos.Launch] after creating runners and before
// invoking them.
type Engine struct {
	DBOSCtx dbos.DBOSContext
}

func (e *Engine) DeploymentRunner(wf *domain.DeploymentWorkflow) (domain.DeploymentRunner, error) {
	invokers := make(map[string]activityInvoker)

	registerActivity(invokers, wf.AssignIdentity())
	registerActivity(invokers, wf.GetComponentStatus())
	registerActivity(invokers, wf.DeployComponent())
	registerActivity(invokers, wf.GetComponentOutput())
	registerActivity(invokers, wf.RecordComponent())

	return registerWorkflow(e.DBOSCtx, wf.Name(), invokers, wf.Run), nil
}

func (e *Engine) ValidationRunner(wf *domain.ValidationWorkflow) (domain.ValidationRunner, error) {
	invokers := make(map[string]activityInvoker)

	registerActivity(invokers, wf.AssignIdentity())
	registerActivity(invokers, wf.ValidateComponent())

	return registerWorkflow(e.DBOSCtx, wf.Name(), invokers, wf.Run), nil
}

func registerWorkflow[O any](
	dbosCtx dbos.DBOSContext,
	name string,
	invokers map[string]activityInvoker,
	run func(domain.DurableRunner, domain.DeployRequest) (O, error),
) *workflowRunner[O] {
	wfFunc := func(ctx dbos.DBOSContext, req domain.DeployRequest) (O, error) {
		runner := &durableRunner{ctx: ctx, invokers: invokers}
		return run(runner, req)
	}

	dbos.RegisterWorkflow(dbosCtx, wfFunc, dbos.WithWorkflowName(name))

	return &workflowRunner[O]{dbosCtx: dbosCtx, wfFunc: wfFunc}
}

// stepOutcome is what a step records. Failures are recorded as data so
// the retry decision replays identically after recovery.
type stepOutcome[O any] struct {
	Out       O      `json:"out"`
	Err       string `json:"err,omitempty"`
	Permanent bool   `json:"permanent,omitempty"`
}

// registerActivity creates a typed invoker that calls [dbos.RunAsStep]
// with the concrete output type O, ensuring correct JSON deserialization
// during workflow replay. Each attempt is its own step, separated by a
// durable [dbos.Sleep], so a recovered workflow resumes its poll
// schedule instead of restarting it.
func registerActivity[I, O any](invokers map[string]activityInvoker, activity domain.Activity[I, O]) {
	policy := domain.RetryPolicyOf(activity)
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	invokers[activity.Name()] = func(ctx dbos.DBOSContext, in any) (any, error) {
		var lastErr error
		for attempt := 1; attempt <= attempts; attempt++ {
			res, err := dbos.RunAsStep(ctx, func(stepCtx context.Context) (stepOutcome[O], error) {
				out, err := activity.Run(stepCtx, in.(I))
				if err != nil {
					return stepOutcome[O]{Err: err.Error(), Permanent: domain.IsNonRetryable(err)}, nil
				}
				return stepOutcome[O]{Out: out}, nil
			}, dbos.WithStepName(activity.Name()))
			if err != nil {
				return nil, err
			}
			if res.Err == "" {
				return res.Out, nil
			}
			lastErr = errors.New(res.Err)
			if res.Permanent || attempt == attempts {
				break
			}
			if _, err := dbos.Sleep(ctx, policy.Interval(attempt)); err != nil {
				return nil, fmt.Errorf("sleep before retrying %q: %w", activity.Name(), err)
			}
		}
		return nil, lastErr
	}
}

type durableRunner struct {
	ctx      dbos.DBOSContext
	invokers map[string]activityInvoker
}

func (r *durableRunner) ID() string {
	id, _ := dbos.GetWorkflowID(r.ctx)
	return id
}

func (r *durableRunner) Context() context.Context {
	return r.ctx
}

func (r *durableRunner) Run(activity domain.Activity[any, any], in any) (any, error) {
	invoke, ok := r.invokers[activity.Name()]
	if !ok {
		return nil, fmt.Errorf("activity %q not registered", activity.Name())
	}
	return invoke(r.ctx, in)
}

type workflowRunner[O any] struct {
	dbosCtx dbos.DBOSContext
	wfFunc  dbos.Workflow[domain.DeployRequest, O]
}

func (r *workflowRunner[O]) Run(ctx context.Context, req domain.DeployRequest) (domain.WorkflowHandle[O], error) {
	handle, err := dbos.RunWorkflow(r.dbosCtx, r.wfFunc, req)
	if err != nil {
		return nil, fmt.Errorf("run DBOS workflow: %w", err)
	}
	return &workflowHandle[O]{handle: handle}, nil
}

type workflowHandle[O any] struct {
	handle dbos.WorkflowHandle[O]
}

func (h *workflowHandle[O]) WorkflowID() string {
	return h.handle.GetWorkflowID()
}

func (h *workflowHandle[O]) AwaitResult(_ context.Context) (O, error) {
	return h.handle.GetResult()
}
