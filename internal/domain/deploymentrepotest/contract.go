// Package deploymentrepotest provides contract tests for
// [domain.DeploymentRepository] implementations.
package deploymentrepotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fleetshift/fleetshift-pipeline/internal/domain"
)

// Factory creates a fresh [domain.DeploymentRepository] for each test.
type Factory func(t *testing.T) domain.DeploymentRepository

// Run exercises the [domain.DeploymentRepository] contract.
func Run(t *testing.T, factory Factory) {
	created := time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC)
	sampleDeployment := func() domain.Deployment {
		return domain.Deployment{
			ID: "d1",
			Request: domain.DeployRequest{
				ID:            "d1",
				RequesterName: "Ada",
				RequesterMail: "ada@example.com",
				Components: []domain.Component{
					{Name: "Foo", ProviderKind: "foo", Order: 1, Input: domain.Values{"bonk": "beep"}},
					{Name: "Bar", ProviderKind: "bar", Order: 2},
				},
				CommonValues: domain.Values{"region": "eu"},
			},
			State:     domain.DeploymentStatePending,
			CreatedAt: created,
		}
	}

	t.Run("CreateAndGet", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		d := sampleDeployment()

		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create: %v", err)
		}

		got, err := repo.Get(ctx, "d1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if len(got.Request.Components) != 2 {
			t.Fatalf("Components = %d, want 2", len(got.Request.Components))
		}
		if got.Request.Components[0].Input["bonk"] != "beep" {
			t.Errorf("Components[0].Input[bonk] = %v, want %q", got.Request.Components[0].Input["bonk"], "beep")
		}
		if got.Request.RequesterMail != "ada@example.com" {
			t.Errorf("RequesterMail = %q, want %q", got.Request.RequesterMail, "ada@example.com")
		}
		if got.State != domain.DeploymentStatePending {
			t.Errorf("State = %q, want %q", got.State, domain.DeploymentStatePending)
		}
		if !got.CreatedAt.Equal(created) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
		}
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		d := sampleDeployment()
		_ = repo.Create(ctx, d)
		err := repo.Create(ctx, d)
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("second Create: got %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		repo := factory(t)
		_, err := repo.Get(context.Background(), "nonexistent")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get: got %v, want ErrNotFound", err)
		}
	})

	t.Run("Update", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		d := sampleDeployment()
		_ = repo.Create(ctx, d)

		d.State = domain.DeploymentStateCompleted
		d.Request.Components[1].Identity = "bar-4242"
		if err := repo.Update(ctx, d); err != nil {
			t.Fatalf("Update: %v", err)
		}

		got, _ := repo.Get(ctx, "d1")
		if got.State != domain.DeploymentStateCompleted {
			t.Errorf("State after Update = %q, want %q", got.State, domain.DeploymentStateCompleted)
		}
		if got.Request.Components[1].Identity != "bar-4242" {
			t.Errorf("Identity after Update = %q, want %q", got.Request.Components[1].Identity, "bar-4242")
		}
	})

	t.Run("UpdateNotFound", func(t *testing.T) {
		repo := factory(t)
		err := repo.Update(context.Background(), domain.Deployment{ID: "nonexistent"})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Update: got %v, want ErrNotFound", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		d1 := sampleDeployment()
		d2 := sampleDeployment()
		d2.ID = "d2"
		_ = repo.Create(ctx, d1)
		_ = repo.Create(ctx, d2)

		got, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("List: got %d, want 2", len(got))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		_ = repo.Create(ctx, sampleDeployment())
		if err := repo.Delete(ctx, "d1"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		_, err := repo.Get(ctx, "d1")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get after Delete: got %v, want ErrNotFound", err)
		}
	})

	t.Run("DeleteNotFound", func(t *testing.T) {
		repo := factory(t)
		err := repo.Delete(context.Background(), "nonexistent")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Delete: got %v, want ErrNotFound", err)
		}
	})
}
