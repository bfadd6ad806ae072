// Package progressstoretest provides contract tests for
// [simgateway.ProgressStore] implementations.
package progressstoretest

import (
	"context"
	"errors"
	"testing"

	"github.com/fleetshift/fleetshift-pipeline/internal/domain"
	"github.com/fleetshift/fleetshift-pipeline/internal/infrastructure/simgateway"
)

// Factory creates a fresh [simgateway.ProgressStore] for each test.
type Factory func(t *testing.T) simgateway.ProgressStore

// Run exercises the [simgateway.ProgressStore] contract.
func Run(t *testing.T, factory Factory) {
	t.Run("PutAndGet", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		p := simgateway.Progress{
			ProviderKind: "foo",
			Deployed:     domain.Values{"bonk": "beep"},
			StatusChecks: 2,
		}
		if err := store.Put(ctx, "foo-1234", p); err != nil {
			t.Fatalf("Put: %v", err)
		}

		got, err := store.Get(ctx, "foo-1234")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.ProviderKind != "foo" {
			t.Errorf("ProviderKind = %q, want %q", got.ProviderKind, "foo")
		}
		if got.Deployed["bonk"] != "beep" {
			t.Errorf("Deployed[bonk] = %v, want %q", got.Deployed["bonk"], "beep")
		}
		if got.StatusChecks != 2 {
			t.Errorf("StatusChecks = %d, want 2", got.StatusChecks)
		}
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		_ = store.Put(ctx, "foo-1234", simgateway.Progress{ProviderKind: "foo", Deployed: domain.Values{}})
		if err := store.Put(ctx, "foo-1234", simgateway.Progress{ProviderKind: "foo", Deployed: domain.Values{}, StatusChecks: 5}); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, _ := store.Get(ctx, "foo-1234")
		if got.StatusChecks != 5 {
			t.Errorf("StatusChecks = %d, want 5", got.StatusChecks)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		store := factory(t)
		_, err := store.Get(context.Background(), "missing-1000")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get: got %v, want ErrNotFound", err)
		}
	})

	t.Run("GetReturnsCopy", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		_ = store.Put(ctx, "foo-1234", simgateway.Progress{ProviderKind: "foo", Deployed: domain.Values{"a": "1"}})
		got, _ := store.Get(ctx, "foo-1234")
		got.Deployed["a"] = "changed"

		again, _ := store.Get(ctx, "foo-1234")
		if again.Deployed["a"] != "1" {
			t.Errorf("stored value mutated through Get result: %v", again.Deployed)
		}
	})
}
