package domain

import (
	"context"
	"fmt"
	"time"
)

// ValidationWorkflow validates every component of a request against the
// provisioning backend without deploying anything.
type ValidationWorkflow struct {
	Gateway    ProvisioningGateway
	Identities IdentityGenerator

	// Retry applies to each validate call. The zero value means ten
	// attempts with exponential backoff; every failure is retryable.
	Retry RetryPolicy
}

// ValidateInput is the input of the validate-component activity.
type ValidateInput struct {
	Ref   ComponentRef `json:"ref"`
	Input Values       `json:"input"`
}

func (wf *ValidationWorkflow) Name() string { return "validate-deployment" }

func (wf *ValidationWorkflow) AssignIdentity() Activity[ProviderKind, ComponentIdentity] {
	return assignIdentityActivity(wf.Identities)
}

func (wf *ValidationWorkflow) ValidateComponent() Activity[ValidateInput, ValidationResult] {
	return NewActivity("validate-component", func(ctx context.Context, in ValidateInput) (ValidationResult, error) {
		res, err := wf.Gateway.Validate(ctx, in.Ref, in.Input)
		if err != nil {
			return ValidationResult{}, fmt.Errorf("validate %s (%s): %w", in.Ref.ProviderKind, in.Ref.Identity, err)
		}
		return res, nil
	}, WithRetryPolicy(wf.retry()))
}

func (wf *ValidationWorkflow) retry() RetryPolicy {
	if wf.Retry.MaxAttempts > 0 {
		return wf.Retry
	}
	return RetryPolicy{
		MaxAttempts:        10,
		InitialInterval:    time.Second,
		BackoffCoefficient: 2,
		MaxInterval:        30 * time.Second,
	}
}

// Run assigns missing identities, then validates each component. A
// component the backend refuses, or whose validation keeps failing, is
// recorded with OK=false and a message naming its provider kind and
// identity; it never fails the run.
func (wf *ValidationWorkflow) Run(runner DurableRunner, req DeployRequest) (ValidationReport, error) {
	if err := CheckRequest(req); err != nil {
		return ValidationReport{}, err
	}

	req, err := assignIdentities(runner, wf.AssignIdentity(), req)
	if err != nil {
		return ValidationReport{}, err
	}

	report := ValidationReport{
		Validation: make(map[ProviderKind]ValidationResult, len(req.Components)),
		Inputs:     make(map[ProviderKind]Values, len(req.Components)),
		Identities: make(map[ProviderKind]ComponentIdentity, len(req.Components)),
	}
	for _, c := range req.Components {
		input := req.InputFor(c)
		report.Inputs[c.ProviderKind] = input
		report.Identities[c.ProviderKind] = c.Identity

		ref := ComponentRef{Identity: c.Identity, ProviderKind: c.ProviderKind}
		res, err := RunActivity(runner, wf.ValidateComponent(), ValidateInput{Ref: ref, Input: input})
		switch {
		case err != nil:
			res = ValidationResult{
				OK:      false,
				Message: fmt.Sprintf("component %s (%s): validation failed: %v", ref.ProviderKind, ref.Identity, err),
			}
		case !res.OK:
			res.Message = fmt.Sprintf("component %s (%s): %s", ref.ProviderKind, ref.Identity, res.Message)
		}
		report.Validation[c.ProviderKind] = res
	}
	return report, nil
}

func assignIdentityActivity(gen IdentityGenerator) Activity[ProviderKind, ComponentIdentity] {
	if gen == nil {
		gen = &RandomIdentities{}
	}
	return NewActivity("assign-identity", func(_ context.Context, kind ProviderKind) (ComponentIdentity, error) {
		return gen.NewIdentity(kind), nil
	})
}

// assignIdentities returns a copy of req in which every component has an
// identity. Existing identities are kept.
func assignIdentities(runner DurableRunner, activity Activity[ProviderKind, ComponentIdentity], req DeployRequest) (DeployRequest, error) {
	components := make([]Component, len(req.Components))
	copy(components, req.Components)
	for i := range components {
		if components[i].Identity != "" {
			continue
		}
		id, err := RunActivity(runner, activity, components[i].ProviderKind)
		if err != nil {
			return req, fmt.Errorf("assign identity for %s: %w", components[i].ProviderKind, err)
		}
		components[i].Identity = id
	}
	req.Components = components
	return req, nil
}
