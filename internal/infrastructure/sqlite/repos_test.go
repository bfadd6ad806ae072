package sqlite_test

import (
	"testing"

	"github.com/fleetshift/fleetshift-pipeline/internal/domain"
	"github.com/fleetshift/fleetshift-pipeline/internal/domain/componentrecordrepotest"
	"github.com/fleetshift/fleetshift-pipeline/internal/domain/deploymentrepotest"
	"github.com/fleetshift/fleetshift-pipeline/internal/infrastructure/simgateway"
	"github.com/fleetshift/fleetshift-pipeline/internal/infrastructure/simgateway/progressstoretest"
	"github.com/fleetshift/fleetshift-pipeline/internal/infrastructure/sqlite"
)

func TestDeploymentRepo(t *testing.T) {
	deploymentrepotest.Run(t, func(t *testing.T) domain.DeploymentRepository {
		db := sqlite.OpenTestDB(t)
		return &sqlite.DeploymentRepo{DB: db}
	})
}

func TestComponentRecordRepo(t *testing.T) {
	componentrecordrepotest.Run(t, func(t *testing.T) domain.ComponentRecordRepository {
		db := sqlite.OpenTestDB(t)
		return &sqlite.ComponentRecordRepo{DB: db}
	})
}

func TestProgressStore(t *testing.T) {
	progressstoretest.Run(t, func(t *testing.T) simgateway.ProgressStore {
		db := sqlite.OpenTestDB(t)
		return &sqlite.ProgressStore{DB: db}
	})
}
