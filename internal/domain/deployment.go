package domain

import "time"

// DeploymentID identifies one deployment request and its runs.
type DeploymentID string

// DeploymentState indicates the lifecycle state of a deployment.
type DeploymentState string

const (
	DeploymentStatePending   DeploymentState = "pending"
	DeploymentStateDeploying DeploymentState = "deploying"
	DeploymentStateCompleted DeploymentState = "completed"
	DeploymentStateFailed    DeploymentState = "failed"
)

// DeployRequest is the caller-provided description of a multi-component
// deployment.
type DeployRequest struct {
	ID            DeploymentID `json:"id"`
	RequesterName string       `json:"requester_name"`
	RequesterMail string       `json:"requester_mail" validate:"omitempty,email"`
	CI            string       `json:"ci"`
	Components    []Component  `json:"components" validate:"required,min=1,dive"`
	CommonValues  Values       `json:"common_values"`
}

// InputFor returns the effective input of a component: the request's
// common values overlaid by the component's own input.
func (r DeployRequest) InputFor(c Component) Values {
	in := r.CommonValues.Clone()
	for k, v := range c.Input {
		in[k] = v
	}
	return in
}

// Deployment is a persisted deployment request and its overall outcome.
type Deployment struct {
	ID        DeploymentID    `json:"id"`
	Request   DeployRequest   `json:"request"`
	State     DeploymentState `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

// ComponentRecord captures the final state of one component of a
// deployment.
type ComponentRecord struct {
	DeploymentID DeploymentID      `json:"deployment_id"`
	ProviderKind ProviderKind      `json:"provider_kind"`
	Identity     ComponentIdentity `json:"identity"`
	Status       ComponentStatus   `json:"status"`
	Input        Values            `json:"input"`
	Output       Values            `json:"output,omitempty"`
	Failure      *ComponentFailure `json:"failure,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// ValidationResult is the outcome of validating one component.
type ValidationResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// ValidationReport aggregates validation results, the inputs that were
// validated and the identities they were validated under, all keyed by
// provider kind.
type ValidationReport struct {
	Validation map[ProviderKind]ValidationResult  `json:"validation"`
	Inputs     map[ProviderKind]Values            `json:"inputs"`
	Identities map[ProviderKind]ComponentIdentity `json:"identities"`
}

// OK reports whether every component validated successfully.
func (r ValidationReport) OK() bool {
	for _, v := range r.Validation {
		if !v.OK {
			return false
		}
	}
	return true
}
