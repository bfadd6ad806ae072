package domain

import "context"

// DeploymentRepository persists and retrieves deployments.
type DeploymentRepository interface {
	Create(ctx context.Context, d Deployment) error
	Get(ctx context.Context, id DeploymentID) (Deployment, error)
	List(ctx context.Context) ([]Deployment, error)
	Update(ctx context.Context, d Deployment) error
	Delete(ctx context.Context, id DeploymentID) error
}

// ComponentRecordRepository persists the final state of each component
// of a deployment, keyed by deployment and provider kind.
type ComponentRecordRepository interface {
	Put(ctx context.Context, record ComponentRecord) error
	Get(ctx context.Context, deploymentID DeploymentID, kind ProviderKind) (ComponentRecord, error)
	ListByDeployment(ctx context.Context, deploymentID DeploymentID) ([]ComponentRecord, error)
	DeleteByDeployment(ctx context.Context, deploymentID DeploymentID) error
}
