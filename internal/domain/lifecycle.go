package domain

import "context"

// driveComponent runs the lifecycle of state.Components[idx] until its
// output has been fetched or it has failed:
//
//   - terminal status: fetch the output and stop.
//   - not found: transform sibling outputs into the input, deploy, and
//     check the status again.
//   - building: the status activity is retried by the engine at the
//     poll interval; if the engine gives up the component is exhausted.
//   - any other failure is fatal for this component only.
//   - an activity that fails because the context ended marks the
//     component cancelled.
func (wf *DeploymentWorkflow) driveComponent(runner DurableRunner, state *DeployState, idx int) {
	limits := wf.limits()
	c := &state.Components[idx]
	ctx := runner.Context()

	var checks, deploys int
	for {
		ref := c.Ref()

		if c.Status.Terminal() {
			out, err := RunActivity(runner, wf.GetComponentOutput(), ref)
			if err != nil {
				c.Failure = activityFailure(ctx, ref, err)
				return
			}
			c.Output = out
			return
		}

		if err := ctx.Err(); err != nil {
			c.Failure = newFailure(FailureCancelled, ref, "%v", err)
			return
		}
		if checks >= limits.MaxStatusChecks {
			c.Failure = newFailure(FailureExhausted, ref, "%v after %d status checks", ErrExhausted, checks)
			return
		}
		checks++

		res, err := RunActivity(runner, wf.GetComponentStatus(), ref)
		switch {
		case err != nil && ctx.Err() != nil:
			c.Failure = newFailure(FailureCancelled, ref, "%v", ctx.Err())
			return

		case err != nil && IsStillBuilding(err):
			c.Failure = newFailure(FailureExhausted, ref, "%v: still building after %d polls", ErrExhausted, limits.MaxPollAttempts)
			return

		case err != nil:
			c.Failure = newFailure(FailureGeneral, ref, "%v", err)
			return

		case !res.Found:
			if deploys >= limits.MaxDeployAttempts {
				c.Failure = newFailure(FailureExhausted, ref, "%v after %d deploys", ErrExhausted, deploys)
				return
			}
			deploys++

			siblings := state.siblingOutputs(idx)
			c.Input = wf.Transforms.Apply(c.ProviderKind, siblings, c.Input.Clone())
			dep, err := RunActivity(runner, wf.DeployComponent(), DeployInput{
				Ref:            ref,
				Input:          c.Input,
				SiblingOutputs: siblings,
			})
			if err != nil {
				c.Failure = activityFailure(ctx, ref, err)
				return
			}
			if !dep.OK {
				c.Failure = newFailure(FailureGeneral, ref, "deploy rejected: %s", dep.Message)
				return
			}

		default:
			c.Status = res.Status
		}
	}
}

// activityFailure classifies an activity error, treating any error seen
// after ctx ended as cancellation.
func activityFailure(ctx context.Context, ref ComponentRef, err error) *ComponentFailure {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return newFailure(FailureCancelled, ref, "%v", ctxErr)
	}
	return newFailure(FailureGeneral, ref, "%v", err)
}
