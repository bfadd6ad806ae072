package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fleetshift/fleetshift-pipeline/internal/domain"
	"github.com/fleetshift/fleetshift-pipeline/internal/infrastructure/simgateway"
)

// ProgressStore implements [simgateway.ProgressStore] backed by SQLite,
// so simulated backend state survives a process restart the same way
// durable workflow state does.
type ProgressStore struct {
	DB *sql.DB
}

func (s *ProgressStore) Get(ctx context.Context, id domain.ComponentIdentity) (simgateway.Progress, error) {
	var p simgateway.Progress
	var kind, deployedJSON string
	err := s.DB.QueryRowContext(ctx,
		`SELECT provider_kind, deployed, status_checks FROM component_progress WHERE identity = ?`,
		string(id),
	).Scan(&kind, &deployedJSON, &p.StatusChecks)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, fmt.Errorf("component %q: %w", id, domain.ErrNotFound)
		}
		return p, fmt.Errorf("scan component progress: %w", err)
	}
	p.ProviderKind = domain.ProviderKind(kind)
	if err := json.Unmarshal([]byte(deployedJSON), &p.Deployed); err != nil {
		return p, fmt.Errorf("unmarshal deployed input: %w", err)
	}
	return p, nil
}

func (s *ProgressStore) Put(ctx context.Context, id domain.ComponentIdentity, p simgateway.Progress) error {
	deployed, err := json.Marshal(p.Deployed)
	if err != nil {
		return fmt.Errorf("marshal deployed input: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO component_progress (identity, provider_kind, deployed, status_checks)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (identity) DO UPDATE SET
		   provider_kind = excluded.provider_kind,
		   deployed = excluded.deployed,
		   status_checks = excluded.status_checks`,
		string(id), string(p.ProviderKind), string(deployed), p.StatusChecks,
	)
	if err != nil {
		return fmt.Errorf("upsert component progress: %w", err)
	}
	return nil
}
