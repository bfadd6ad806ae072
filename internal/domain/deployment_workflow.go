package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// LifecycleLimits bounds how long a component may take to reach a
// terminal status.
type LifecycleLimits struct {
	// PollInterval is the constant delay between status checks while
	// a component is building.
	PollInterval time.Duration

	// MaxPollAttempts is how many times one status activity is retried
	// while the backend reports building.
	MaxPollAttempts int

	// MaxStatusChecks caps status activities per component.
	MaxStatusChecks int

	// MaxDeployAttempts caps deploy activities per component.
	MaxDeployAttempts int

	// CallRetry applies to deploy, get-output and record activities.
	CallRetry RetryPolicy
}

// DefaultLifecycleLimits polls every 30 seconds for up to an hour per
// status check.
func DefaultLifecycleLimits() LifecycleLimits {
	return LifecycleLimits{
		PollInterval:      30 * time.Second,
		MaxPollAttempts:   120,
		MaxStatusChecks:   10,
		MaxDeployAttempts: 3,
		CallRetry: RetryPolicy{
			MaxAttempts:        3,
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaxInterval:        30 * time.Second,
		},
	}
}

func (l LifecycleLimits) withDefaults() LifecycleLimits {
	d := DefaultLifecycleLimits()
	if l.PollInterval > 0 {
		d.PollInterval = l.PollInterval
	}
	if l.MaxPollAttempts > 0 {
		d.MaxPollAttempts = l.MaxPollAttempts
	}
	if l.MaxStatusChecks > 0 {
		d.MaxStatusChecks = l.MaxStatusChecks
	}
	if l.MaxDeployAttempts > 0 {
		d.MaxDeployAttempts = l.MaxDeployAttempts
	}
	if l.CallRetry.MaxAttempts > 0 {
		d.CallRetry = l.CallRetry
	}
	return d
}

// StatusResult is the outcome of one status check. Found is false when
// the backend has never seen the identity; Status is then empty.
type StatusResult struct {
	Found  bool            `json:"found"`
	Status ComponentStatus `json:"status,omitempty"`
}

// DeployInput is the input of the deploy-component activity. Input has
// already been transformed from SiblingOutputs.
type DeployInput struct {
	Ref            ComponentRef   `json:"ref"`
	Input          Values         `json:"input"`
	SiblingOutputs []SourceOutput `json:"sibling_outputs,omitempty"`
}

// DeploymentWorkflow drives every component of a request to a terminal
// status, feeding outputs of deployed components into the inputs of the
// components deployed after them.
type DeploymentWorkflow struct {
	Gateway    ProvisioningGateway
	Identities IdentityGenerator
	Transforms TransformTable
	Records    ComponentRecordRepository // optional
	Limits     LifecycleLimits
	Now        func() time.Time
}

func (wf *DeploymentWorkflow) Name() string { return "deploy" }

func (wf *DeploymentWorkflow) limits() LifecycleLimits { return wf.Limits.withDefaults() }

func (wf *DeploymentWorkflow) now() time.Time {
	if wf.Now != nil {
		return wf.Now()
	}
	return time.Now()
}

func (wf *DeploymentWorkflow) AssignIdentity() Activity[ProviderKind, ComponentIdentity] {
	return assignIdentityActivity(wf.Identities)
}

// GetComponentStatus reports NotFound as a result rather than an error.
// A building component fails the activity with the retryable
// [ErrStillBuilding] so the engine waits PollInterval and checks again;
// every other failure is non-retryable.
func (wf *DeploymentWorkflow) GetComponentStatus() Activity[ComponentRef, StatusResult] {
	limits := wf.limits()
	return NewActivity("get-component-status", func(ctx context.Context, ref ComponentRef) (StatusResult, error) {
		status, err := wf.Gateway.GetStatus(ctx, ref)
		if errors.Is(err, ErrNotFound) {
			return StatusResult{Found: false}, nil
		}
		if err != nil {
			return StatusResult{}, NonRetryable(fmt.Errorf("get status of %s (%s): %w", ref.ProviderKind, ref.Identity, err))
		}
		switch status {
		case ComponentStatusBuilding:
			return StatusResult{}, fmt.Errorf("%s (%s): %w", ref.ProviderKind, ref.Identity, ErrStillBuilding)
		case ComponentStatusSuccess, ComponentStatusError:
			return StatusResult{Found: true, Status: status}, nil
		default:
			return StatusResult{}, NonRetryable(fmt.Errorf("get status of %s (%s): unexpected status %q", ref.ProviderKind, ref.Identity, status))
		}
	}, WithRetryPolicy(RetryPolicy{
		MaxAttempts:        limits.MaxPollAttempts,
		InitialInterval:    limits.PollInterval,
		BackoffCoefficient: 1,
	}))
}

func (wf *DeploymentWorkflow) DeployComponent() Activity[DeployInput, DeployResult] {
	return NewActivity("deploy-component", func(ctx context.Context, in DeployInput) (DeployResult, error) {
		res, err := wf.Gateway.Deploy(ctx, in.Ref, in.Input)
		if err != nil {
			return DeployResult{}, fmt.Errorf("deploy %s (%s): %w", in.Ref.ProviderKind, in.Ref.Identity, err)
		}
		return res, nil
	}, WithRetryPolicy(wf.limits().CallRetry))
}

func (wf *DeploymentWorkflow) GetComponentOutput() Activity[ComponentRef, Values] {
	return NewActivity("get-component-output", func(ctx context.Context, ref ComponentRef) (Values, error) {
		out, err := wf.Gateway.GetOutput(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("get output of %s (%s): %w", ref.ProviderKind, ref.Identity, err)
		}
		if out == nil {
			out = Values{}
		}
		return out, nil
	}, WithRetryPolicy(wf.limits().CallRetry))
}

func (wf *DeploymentWorkflow) RecordComponent() Activity[ComponentRecord, struct{}] {
	return NewActivity("record-component", func(ctx context.Context, rec ComponentRecord) (struct{}, error) {
		if wf.Records == nil {
			return struct{}{}, nil
		}
		rec.UpdatedAt = wf.now()
		if err := wf.Records.Put(ctx, rec); err != nil {
			return struct{}{}, fmt.Errorf("record component %s: %w", rec.ProviderKind, err)
		}
		return struct{}{}, nil
	}, WithRetryPolicy(wf.limits().CallRetry))
}

// Run assigns identities, plans the rollout order from the transform
// table and drives each component in that order. Component failures are
// recorded in the returned state; Run itself fails only for an invalid
// request or when a component record cannot be persisted.
func (wf *DeploymentWorkflow) Run(runner DurableRunner, req DeployRequest) (DeployState, error) {
	if err := CheckRequest(req); err != nil {
		return DeployState{}, err
	}
	order, err := PlanRollout(req.Components, wf.Transforms)
	if err != nil {
		return DeployState{}, err
	}

	req, err = assignIdentities(runner, wf.AssignIdentity(), req)
	if err != nil {
		return DeployState{}, err
	}

	state := DeployState{Components: make([]ComponentState, len(req.Components))}
	for i, c := range req.Components {
		state.Components[i] = ComponentState{
			ProviderKind: c.ProviderKind,
			Identity:     c.Identity,
			Status:       ComponentStatusUnknown,
			Input:        req.InputFor(c),
		}
	}

	for _, idx := range order {
		wf.driveComponent(runner, &state, idx)

		c := state.Components[idx]
		_, err := RunActivity(runner, wf.RecordComponent(), ComponentRecord{
			DeploymentID: req.ID,
			ProviderKind: c.ProviderKind,
			Identity:     c.Identity,
			Status:       c.Status,
			Input:        c.Input,
			Output:       c.Output,
			Failure:      c.Failure,
		})
		if err != nil {
			return state, err
		}
	}
	return state, nil
}
