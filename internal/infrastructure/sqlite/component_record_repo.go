package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fleetshift/fleetshift-pipeline/internal/domain"
)

// ComponentRecordRepo implements [domain.ComponentRecordRepository] backed by SQLite.
type ComponentRecordRepo struct {
	DB *sql.DB
}

func (r *ComponentRecordRepo) Put(ctx context.Context, rec domain.ComponentRecord) error {
	input, err := json.Marshal(rec.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	var output []byte
	if rec.Output != nil {
		if output, err = json.Marshal(rec.Output); err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
	}
	failure, err := marshalOptional(rec.Failure)
	if err != nil {
		return fmt.Errorf("marshal failure: %w", err)
	}

	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO component_records (deployment_id, provider_kind, identity, status, input, output, failure, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (deployment_id, provider_kind) DO UPDATE SET
		   identity = excluded.identity,
		   status = excluded.status,
		   input = excluded.input,
		   output = excluded.output,
		   failure = excluded.failure,
		   updated_at = excluded.updated_at`,
		string(rec.DeploymentID), string(rec.ProviderKind), string(rec.Identity), string(rec.Status),
		string(input), nullString(output), nullString(failure), rec.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert component record: %w", err)
	}
	return nil
}

func (r *ComponentRecordRepo) Get(ctx context.Context, depID domain.DeploymentID, kind domain.ProviderKind) (domain.ComponentRecord, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT deployment_id, provider_kind, identity, status, input, output, failure, updated_at
		 FROM component_records WHERE deployment_id = ? AND provider_kind = ?`,
		string(depID), string(kind),
	)
	return scanComponentRecord(row)
}

func (r *ComponentRecordRepo) ListByDeployment(ctx context.Context, depID domain.DeploymentID) ([]domain.ComponentRecord, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT deployment_id, provider_kind, identity, status, input, output, failure, updated_at
		 FROM component_records WHERE deployment_id = ? ORDER BY provider_kind`,
		string(depID),
	)
	if err != nil {
		return nil, fmt.Errorf("list component records: %w", err)
	}
	defer rows.Close()

	var records []domain.ComponentRecord
	for rows.Next() {
		rec, err := scanComponentRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *ComponentRecordRepo) DeleteByDeployment(ctx context.Context, depID domain.DeploymentID) error {
	_, err := r.DB.ExecContext(ctx,
		`DELETE FROM component_records WHERE deployment_id = ?`,
		string(depID),
	)
	if err != nil {
		return fmt.Errorf("delete component records: %w", err)
	}
	return nil
}

func scanComponentRecord(s scanner) (domain.ComponentRecord, error) {
	var rec domain.ComponentRecord
	var depID, kind, identity, statusStr, inputJSON, updatedAtStr string
	var outputJSON, failureJSON sql.NullString
	if err := s.Scan(&depID, &kind, &identity, &statusStr, &inputJSON, &outputJSON, &failureJSON, &updatedAtStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, fmt.Errorf("%w", domain.ErrNotFound)
		}
		return rec, fmt.Errorf("scan component record: %w", err)
	}
	rec.DeploymentID = domain.DeploymentID(depID)
	rec.ProviderKind = domain.ProviderKind(kind)
	rec.Identity = domain.ComponentIdentity(identity)
	rec.Status = domain.ComponentStatus(statusStr)
	if err := json.Unmarshal([]byte(inputJSON), &rec.Input); err != nil {
		return rec, fmt.Errorf("unmarshal input: %w", err)
	}
	if outputJSON.Valid {
		if err := json.Unmarshal([]byte(outputJSON.String), &rec.Output); err != nil {
			return rec, fmt.Errorf("unmarshal output: %w", err)
		}
	}
	if failureJSON.Valid {
		rec.Failure = &domain.ComponentFailure{}
		if err := json.Unmarshal([]byte(failureJSON.String), rec.Failure); err != nil {
			return rec, fmt.Errorf("unmarshal failure: %w", err)
		}
	}
	t, err := time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return rec, fmt.Errorf("parse updated_at: %w", err)
	}
	rec.UpdatedAt = t
	return rec, nil
}
