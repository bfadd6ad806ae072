// Package goworkflows implements [domain.WorkflowEngine] using
// cschleiden/go-workflows for durable workflow execution.
package goworkflows

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cschleiden/go-workflows/client"
	"github.com/cschleiden/go-workflows/registry"
	"github.com/cschleiden/go-workflows/worker"
	"github.com/cschleiden/go-workflows/workflow"
	"github.com/google/uuid"

	"github.com/fleetshift/fleetshift-pipeline/internal/domain"
)

// activityInvoker calls an activity from the workflow context with the
// correct generic types. Created at construction time when concrete
// types are known.
type activityInvoker func(wfCtx workflow.Context, in any) (any, error)

// Engine implements [domain.WorkflowEngine] backed by go-workflows.
// Activities shared between workflows (such as assign-identity) are
// registered once, from the first workflow that declares them.
type Engine struct {
	Worker  *worker.Worker
	Client  *client.Client
	Timeout time.Duration

	mu       sync.Mutex
	invokers map[string]activityInvoker
}

func (e *Engine) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return 30 * time.Second
}

func (e *Engine) DeploymentRunner(wf *domain.DeploymentWorkflow) (domain.DeploymentRunner, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := registerActivity(e, wf.AssignIdentity()); err != nil {
		return nil, err
	}
	if err := registerActivity(e, wf.GetComponentStatus()); err != nil {
		return nil, err
	}
	if err := registerActivity(e, wf.DeployComponent()); err != nil {
		return nil, err
	}
	if err := registerActivity(e, wf.GetComponentOutput()); err != nil {
		return nil, err
	}
	if err := registerActivity(e, wf.RecordComponent()); err != nil {
		return nil, err
	}
	r, err := registerWorkflow(e, wf.Name(), wf.Run)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (e *Engine) ValidationRunner(wf *domain.ValidationWorkflow) (domain.ValidationRunner, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := registerActivity(e, wf.AssignIdentity()); err != nil {
		return nil, err
	}
	if err := registerActivity(e, wf.ValidateComponent()); err != nil {
		return nil, err
	}
	r, err := registerWorkflow(e, wf.Name(), wf.Run)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func registerWorkflow[O any](
	e *Engine,
	name string,
	run func(domain.DurableRunner, domain.DeployRequest) (O, error),
) (*workflowRunner[O], error) {
	invokers := e.invokers
	wfFunc := func(ctx workflow.Context, req domain.DeployRequest) (O, error) {
		runner := &durableRunner{wfCtx: ctx, invokers: invokers}
		return run(runner, req)
	}

	if err := e.Worker.RegisterWorkflow(wfFunc, registry.WithName(name)); err != nil {
		return nil, fmt.Errorf("register workflow %q: %w", name, err)
	}

	return &workflowRunner[O]{
		client:  e.Client,
		wfName:  name,
		timeout: e.timeout(),
	}, nil
}

// registerActivity registers a typed activity with go-workflows and
// creates a corresponding typed invoker carrying the activity's retry
// policy. Non-retryable errors become permanent go-workflows errors.
func registerActivity[I, O any](e *Engine, activity domain.Activity[I, O]) error {
	if e.invokers == nil {
		e.invokers = make(map[string]activityInvoker)
	}
	if _, ok := e.invokers[activity.Name()]; ok {
		return nil
	}

	activityFn := func(ctx context.Context, in I) (O, error) {
		out, err := activity.Run(ctx, in)
		if err != nil && domain.IsNonRetryable(err) {
			return out, workflow.NewPermanentError(err)
		}
		return out, err
	}

	if err := e.Worker.RegisterActivity(activityFn, registry.WithName(activity.Name())); err != nil {
		return fmt.Errorf("register activity %q: %w", activity.Name(), err)
	}

	opts := activityOptions(domain.RetryPolicyOf(activity))
	e.invokers[activity.Name()] = func(wfCtx workflow.Context, in any) (any, error) {
		result, err := workflow.ExecuteActivity[O](wfCtx, opts, activity.Name(), in).Get(wfCtx)
		return result, err
	}

	return nil
}

func activityOptions(p domain.RetryPolicy) workflow.ActivityOptions {
	opts := workflow.DefaultActivityOptions
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	coeff := p.BackoffCoefficient
	if coeff < 1 {
		coeff = 1
	}
	opts.RetryOptions = workflow.RetryOptions{
		MaxAttempts:        attempts,
		FirstRetryInterval: p.InitialInterval,
		MaxRetryInterval:   p.MaxInterval,
		BackoffCoefficient: coeff,
	}
	return opts
}

type durableRunner struct {
	wfCtx    workflow.Context
	invokers map[string]activityInvoker
}

func (r *durableRunner) ID() string {
	return workflow.WorkflowInstance(r.wfCtx).InstanceID
}

func (r *durableRunner) Context() context.Context {
	return context.Background()
}

func (r *durableRunner) Run(activity domain.Activity[any, any], in any) (any, error) {
	invoke, ok := r.invokers[activity.Name()]
	if !ok {
		return nil, fmt.Errorf("activity %q not registered", activity.Name())
	}
	return invoke(r.wfCtx, in)
}

type workflowRunner[O any] struct {
	client  *client.Client
	wfName  string
	timeout time.Duration
}

func (r *workflowRunner[O]) Run(ctx context.Context, req domain.DeployRequest) (domain.WorkflowHandle[O], error) {
	instanceID := string(req.ID)
	if instanceID == "" {
		instanceID = uuid.NewString()
	} else {
		instanceID = r.wfName + "-" + instanceID + "-" + uuid.NewString()
	}
	instance, err := r.client.CreateWorkflowInstance(ctx, client.WorkflowInstanceOptions{
		InstanceID: instanceID,
	}, r.wfName, req)
	if err != nil {
		return nil, fmt.Errorf("create workflow instance: %w", err)
	}

	return &workflowHandle[O]{
		client:   r.client,
		instance: instance,
		timeout:  r.timeout,
	}, nil
}

type workflowHandle[O any] struct {
	client   *client.Client
	instance *workflow.Instance
	timeout  time.Duration
}

func (h *workflowHandle[O]) WorkflowID() string {
	return h.instance.InstanceID
}

func (h *workflowHandle[O]) AwaitResult(ctx context.Context) (O, error) {
	return client.GetWorkflowResult[O](ctx, h.client, h.instance, h.timeout)
}
