package simgateway_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fleetshift/fleetshift-pipeline/internal/domain"
	"github.com/fleetshift/fleetshift-pipeline/internal/infrastructure/simgateway"
	"github.com/fleetshift/fleetshift-pipeline/internal/infrastructure/simgateway/progressstoretest"
)

func TestMemoryStore(t *testing.T) {
	progressstoretest.Run(t, func(t *testing.T) simgateway.ProgressStore {
		return simgateway.NewMemoryStore()
	})
}

func TestGateway_Lifecycle(t *testing.T) {
	ctx := context.Background()
	g := &simgateway.Gateway{Store: simgateway.NewMemoryStore(), BuildingChecks: 2}
	ref := domain.ComponentRef{Identity: "foo-1234", ProviderKind: "foo"}

	if _, err := g.GetStatus(ctx, ref); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetStatus before deploy: got %v, want ErrNotFound", err)
	}

	res, err := g.Deploy(ctx, ref, domain.Values{"bonk": "beep"})
	if err != nil || !res.OK {
		t.Fatalf("Deploy: %+v, %v", res, err)
	}

	for i := 0; i < 2; i++ {
		status, err := g.GetStatus(ctx, ref)
		if err != nil {
			t.Fatalf("GetStatus: %v", err)
		}
		if status != domain.ComponentStatusBuilding {
			t.Fatalf("check %d: status = %q, want building", i, status)
		}
	}
	status, err := g.GetStatus(ctx, ref)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status != domain.ComponentStatusSuccess {
		t.Fatalf("status = %q, want success", status)
	}

	out, err := g.GetOutput(ctx, ref)
	if err != nil {
		t.Fatalf("GetOutput: %v", err)
	}
	if out["bonk"] != "beep" {
		t.Errorf("output = %v, want deployed input", out)
	}
}

func TestGateway_RedeployResetsProgress(t *testing.T) {
	ctx := context.Background()
	g := &simgateway.Gateway{Store: simgateway.NewMemoryStore(), BuildingChecks: 1}
	ref := domain.ComponentRef{Identity: "foo-1234", ProviderKind: "foo"}

	_, _ = g.Deploy(ctx, ref, domain.Values{})
	_, _ = g.GetStatus(ctx, ref)
	_, _ = g.Deploy(ctx, ref, domain.Values{"v": "2"})

	status, _ := g.GetStatus(ctx, ref)
	if status != domain.ComponentStatusBuilding {
		t.Fatalf("status after redeploy = %q, want building", status)
	}
}

func TestGateway_FailingKindEndsInError(t *testing.T) {
	ctx := context.Background()
	g := &simgateway.Gateway{
		Store:   simgateway.NewMemoryStore(),
		Failing: map[domain.ProviderKind]bool{"foo": true},
	}
	ref := domain.ComponentRef{Identity: "foo-1234", ProviderKind: "foo"}
	_, _ = g.Deploy(ctx, ref, domain.Values{})

	status, err := g.GetStatus(ctx, ref)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status != domain.ComponentStatusError {
		t.Fatalf("status = %q, want error", status)
	}
}

func TestGateway_ValidateRejectField(t *testing.T) {
	g := &simgateway.Gateway{Store: simgateway.NewMemoryStore(), RejectField: "forbidden"}
	ref := domain.ComponentRef{Identity: "foo-1234", ProviderKind: "foo"}

	res, err := g.Validate(context.Background(), ref, domain.Values{"forbidden": true})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.OK {
		t.Error("Validate accepted a rejected field")
	}

	res, _ = g.Validate(context.Background(), ref, domain.Values{"bonk": "beep"})
	if !res.OK {
		t.Errorf("Validate = %+v, want ok", res)
	}
}

func TestGateway_StoresAreIndependent(t *testing.T) {
	ctx := context.Background()
	ref := domain.ComponentRef{Identity: "foo-1234", ProviderKind: "foo"}
	a := &simgateway.Gateway{Store: simgateway.NewMemoryStore()}
	b := &simgateway.Gateway{Store: simgateway.NewMemoryStore()}

	_, _ = a.Deploy(ctx, ref, domain.Values{})
	if _, err := b.GetStatus(ctx, ref); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second gateway saw first gateway's deploy: %v", err)
	}
}
