// Package componentrecordrepotest provides contract tests for
// [domain.ComponentRecordRepository] implementations.
package componentrecordrepotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fleetshift/fleetshift-pipeline/internal/domain"
)

// Factory creates a fresh [domain.ComponentRecordRepository] for each test.
type Factory func(t *testing.T) domain.ComponentRecordRepository

// Run exercises the [domain.ComponentRecordRepository] contract.
func Run(t *testing.T, factory Factory) {
	now := time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC)

	t.Run("PutAndGet", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		rec := domain.ComponentRecord{
			DeploymentID: "d1",
			ProviderKind: "apache-bundle",
			Identity:     "apache-bundle-1234",
			Status:       domain.ComponentStatusSuccess,
			Input:        domain.Values{"fqdn": "db.example.com"},
			Output:       domain.Values{"url": "https://apache.example.com"},
			UpdatedAt:    now,
		}

		if err := repo.Put(ctx, rec); err != nil {
			t.Fatalf("Put: %v", err)
		}

		got, err := repo.Get(ctx, "d1", "apache-bundle")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status != domain.ComponentStatusSuccess {
			t.Errorf("Status = %q, want %q", got.Status, domain.ComponentStatusSuccess)
		}
		if got.Identity != "apache-bundle-1234" {
			t.Errorf("Identity = %q, want %q", got.Identity, "apache-bundle-1234")
		}
		if got.Input["fqdn"] != "db.example.com" {
			t.Errorf("Input[fqdn] = %v, want %q", got.Input["fqdn"], "db.example.com")
		}
		if got.Output["url"] != "https://apache.example.com" {
			t.Errorf("Output[url] = %v, want %q", got.Output["url"], "https://apache.example.com")
		}
		if got.Failure != nil {
			t.Errorf("Failure = %+v, want nil", got.Failure)
		}
		if !got.UpdatedAt.Equal(now) {
			t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, now)
		}
	})

	t.Run("PutFailure", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		rec := domain.ComponentRecord{
			DeploymentID: "d1",
			ProviderKind: "vmware-rsoe7",
			Identity:     "vmware-rsoe7-4321",
			Status:       domain.ComponentStatusBuilding,
			Input:        domain.Values{},
			Failure:      &domain.ComponentFailure{Kind: domain.FailureExhausted, Message: "still building"},
			UpdatedAt:    now,
		}
		if err := repo.Put(ctx, rec); err != nil {
			t.Fatalf("Put: %v", err)
		}

		got, err := repo.Get(ctx, "d1", "vmware-rsoe7")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Failure == nil || got.Failure.Kind != domain.FailureExhausted {
			t.Fatalf("Failure = %+v, want kind %q", got.Failure, domain.FailureExhausted)
		}
		if got.Output != nil {
			t.Errorf("Output = %v, want nil", got.Output)
		}
	})

	t.Run("PutUpserts", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		rec := domain.ComponentRecord{
			DeploymentID: "d1", ProviderKind: "foo", Identity: "foo-1000",
			Status: domain.ComponentStatusUnknown, Input: domain.Values{}, UpdatedAt: now,
		}
		_ = repo.Put(ctx, rec)

		rec.Status = domain.ComponentStatusSuccess
		rec.Output = domain.Values{"bonk": "beep"}
		rec.UpdatedAt = now.Add(time.Minute)
		if err := repo.Put(ctx, rec); err != nil {
			t.Fatalf("Put (upsert): %v", err)
		}

		got, _ := repo.Get(ctx, "d1", "foo")
		if got.Status != domain.ComponentStatusSuccess {
			t.Errorf("Status after upsert = %q, want %q", got.Status, domain.ComponentStatusSuccess)
		}
		records, _ := repo.ListByDeployment(ctx, "d1")
		if len(records) != 1 {
			t.Errorf("records after upsert = %d, want 1", len(records))
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		repo := factory(t)
		_, err := repo.Get(context.Background(), "d1", "missing")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get: got %v, want ErrNotFound", err)
		}
	})

	t.Run("ListByDeployment", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		for _, kind := range []domain.ProviderKind{"a", "b"} {
			_ = repo.Put(ctx, domain.ComponentRecord{
				DeploymentID: "d1", ProviderKind: kind, Identity: domain.ComponentIdentity(kind + "-1"),
				Status: domain.ComponentStatusSuccess, Input: domain.Values{}, UpdatedAt: now,
			})
		}
		_ = repo.Put(ctx, domain.ComponentRecord{
			DeploymentID: "d2", ProviderKind: "a", Identity: "a-2",
			Status: domain.ComponentStatusSuccess, Input: domain.Values{}, UpdatedAt: now,
		})

		got, err := repo.ListByDeployment(ctx, "d1")
		if err != nil {
			t.Fatalf("ListByDeployment: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("ListByDeployment: got %d, want 2", len(got))
		}
	})

	t.Run("DeleteByDeployment", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		_ = repo.Put(ctx, domain.ComponentRecord{
			DeploymentID: "d1", ProviderKind: "a", Identity: "a-1",
			Status: domain.ComponentStatusSuccess, Input: domain.Values{}, UpdatedAt: now,
		})
		if err := repo.DeleteByDeployment(ctx, "d1"); err != nil {
			t.Fatalf("DeleteByDeployment: %v", err)
		}
		got, _ := repo.ListByDeployment(ctx, "d1")
		if len(got) != 0 {
			t.Fatalf("records after delete = %d, want 0", len(got))
		}
	})
}
