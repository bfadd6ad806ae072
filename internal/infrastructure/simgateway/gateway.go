// Package simgateway provides a simulated provisioning backend that
// implements [domain.ProvisioningGateway] on top of a [ProgressStore].
// A deployed component reports building for a fixed number of status
// checks and then succeeds; its output is the input it was deployed
// with.
package simgateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/fleetshift/fleetshift-pipeline/internal/domain"
)

// Gateway is the simulated backend.
type Gateway struct {
	Store ProgressStore

	// BuildingChecks is how many status checks report building before
	// a deployed component succeeds.
	BuildingChecks int

	// RejectField makes validation fail for inputs that contain it.
	RejectField string

	// Failing lists provider kinds whose builds end in the error status.
	Failing map[domain.ProviderKind]bool

	mu sync.Mutex
}

func (g *Gateway) Validate(_ context.Context, ref domain.ComponentRef, input domain.Values) (domain.ValidationResult, error) {
	if g.RejectField != "" {
		if _, ok := input[g.RejectField]; ok {
			return domain.ValidationResult{OK: false, Message: fmt.Sprintf("field %q is not accepted", g.RejectField)}, nil
		}
	}
	return domain.ValidationResult{OK: true, Message: fmt.Sprintf("%s accepted", ref.Identity)}, nil
}

func (g *Gateway) Deploy(ctx context.Context, ref domain.ComponentRef, input domain.Values) (domain.DeployResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.Store.Put(ctx, ref.Identity, Progress{
		ProviderKind: ref.ProviderKind,
		Deployed:     input,
	})
	if err != nil {
		return domain.DeployResult{}, err
	}
	return domain.DeployResult{OK: true, Message: "deployed"}, nil
}

func (g *Gateway) GetStatus(ctx context.Context, ref domain.ComponentRef) (domain.ComponentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, err := g.Store.Get(ctx, ref.Identity)
	if err != nil {
		return "", err
	}
	if p.StatusChecks >= g.BuildingChecks {
		if g.Failing[ref.ProviderKind] {
			return domain.ComponentStatusError, nil
		}
		return domain.ComponentStatusSuccess, nil
	}
	p.StatusChecks++
	if err := g.Store.Put(ctx, ref.Identity, p); err != nil {
		return "", err
	}
	return domain.ComponentStatusBuilding, nil
}

func (g *Gateway) GetOutput(ctx context.Context, ref domain.ComponentRef) (domain.Values, error) {
	p, err := g.Store.Get(ctx, ref.Identity)
	if err != nil {
		return nil, err
	}
	return p.Deployed, nil
}
