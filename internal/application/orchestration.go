package application

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fleetshift/fleetshift-pipeline/internal/domain"
)

// OrchestrationService executes the validation and deploy pipelines as
// durable workflows.
type OrchestrationService struct {
	Deploy   domain.DeploymentRunner
	Validate domain.ValidationRunner
	Log      zerolog.Logger
}

// Orchestrate starts the deploy workflow and waits for it to complete.
func (o *OrchestrationService) Orchestrate(ctx context.Context, req domain.DeployRequest) (domain.DeployState, error) {
	handle, err := o.Deploy.Run(ctx, req)
	if err != nil {
		return domain.DeployState{}, fmt.Errorf("start deploy workflow: %w", err)
	}
	o.Log.Debug().
		Str("deployment_id", string(req.ID)).
		Str("workflow_id", handle.WorkflowID()).
		Msg("deploy workflow started")
	return handle.AwaitResult(ctx)
}

// Check starts the validate-only workflow and waits for its report.
func (o *OrchestrationService) Check(ctx context.Context, req domain.DeployRequest) (domain.ValidationReport, error) {
	handle, err := o.Validate.Run(ctx, req)
	if err != nil {
		return domain.ValidationReport{}, fmt.Errorf("start validation workflow: %w", err)
	}
	o.Log.Debug().
		Str("deployment_id", string(req.ID)).
		Str("workflow_id", handle.WorkflowID()).
		Msg("validation workflow started")
	return handle.AwaitResult(ctx)
}
