package domain

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
)

// ProvisioningGateway is the port through which the orchestration
// pipeline talks to the remote provisioning backend. Every operation is
// keyed by the component identity and must tolerate repeated calls for
// the same identity.
type ProvisioningGateway interface {
	Validate(ctx context.Context, ref ComponentRef, input Values) (ValidationResult, error)

	// Deploy asks the backend to create or update the component. A
	// repeated deploy for the same identity is an upsert.
	Deploy(ctx context.Context, ref ComponentRef, input Values) (DeployResult, error)

	// GetStatus returns Building, Success or Error. It returns an error
	// wrapping [ErrNotFound] when the backend does not know the identity.
	GetStatus(ctx context.Context, ref ComponentRef) (ComponentStatus, error)

	GetOutput(ctx context.Context, ref ComponentRef) (Values, error)
}

// DeployResult is the backend's acknowledgement of a deploy request.
type DeployResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// IdentityGenerator produces identities for components that arrive
// without one. It is only called from inside an activity, so the
// substrate records the result and replays it.
type IdentityGenerator interface {
	NewIdentity(kind ProviderKind) ComponentIdentity
}

// RandomIdentities appends a four-digit random suffix to the provider
// kind. The zero value draws from the global source; set Rand to a
// seeded source for reproducible identities.
type RandomIdentities struct {
	Rand *rand.Rand

	mu sync.Mutex
}

func (g *RandomIdentities) NewIdentity(kind ProviderKind) ComponentIdentity {
	var n int
	if g.Rand == nil {
		n = rand.Intn(9000)
	} else {
		g.mu.Lock()
		n = g.Rand.Intn(9000)
		g.mu.Unlock()
	}
	return ComponentIdentity(fmt.Sprintf("%s-%d", kind, 1000+n))
}
