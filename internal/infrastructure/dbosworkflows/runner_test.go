package dbosworkflows_test

import (
	"context"
	"testing"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fleetshift/fleetshift-pipeline/internal/application"
	"github.com/fleetshift/fleetshift-pipeline/internal/domain"
	"github.com/fleetshift/fleetshift-pipeline/internal/infrastructure/dbosworkflows"
	"github.com/fleetshift/fleetshift-pipeline/internal/infrastructure/simgateway"
	"github.com/fleetshift/fleetshift-pipeline/internal/infrastructure/sqlite"
)

func startPostgres(t *testing.T) string {
	t.Helper()

	// Ryuk (the reaper) requires a Docker bridge network that does not
	// exist on Podman. We handle cleanup via t.Cleanup instead.
	t.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("dbos_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get postgres connection string: %v", err)
	}
	return connStr
}

func TestDeployment_DBOS(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a postgres container")
	}
	connStr := startPostgres(t)

	ctx := context.Background()

	dbosCtx, err := dbos.NewDBOSContext(ctx, dbos.Config{
		AppName:     "fleetpipe-dbos-test",
		DatabaseURL: connStr,
	})
	if err != nil {
		t.Fatalf("NewDBOSContext: %v", err)
	}

	db := sqlite.OpenTestDB(t)
	deploymentRepo := &sqlite.DeploymentRepo{DB: db}
	recordRepo := &sqlite.ComponentRecordRepo{DB: db}
	gateway := &simgateway.Gateway{
		Store:          &sqlite.ProgressStore{DB: db},
		BuildingChecks: 2,
		Failing:        map[domain.ProviderKind]bool{"db": true},
	}

	engine := &dbosworkflows.Engine{DBOSCtx: dbosCtx}
	deployRunner, err := engine.DeploymentRunner(&domain.DeploymentWorkflow{
		Gateway:    gateway,
		Transforms: domain.TransformTable{"web": {"db": {"fqdn": "db_host"}}},
		Records:    recordRepo,
		Limits: domain.LifecycleLimits{
			PollInterval:    10 * time.Millisecond,
			MaxPollAttempts: 20,
			CallRetry:       domain.RetryPolicy{MaxAttempts: 3, InitialInterval: 10 * time.Millisecond},
		},
	})
	if err != nil {
		t.Fatalf("DeploymentRunner: %v", err)
	}
	validateRunner, err := engine.ValidationRunner(&domain.ValidationWorkflow{
		Gateway: gateway,
		Retry:   domain.RetryPolicy{MaxAttempts: 2, InitialInterval: 10 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("ValidationRunner: %v", err)
	}

	if err := dbos.Launch(dbosCtx); err != nil {
		t.Fatalf("dbos.Launch: %v", err)
	}
	t.Cleanup(func() { dbos.Shutdown(dbosCtx, 5*time.Second) })

	svc := &application.DeploymentService{
		Deployments: deploymentRepo,
		Components:  recordRepo,
		Orchestration: &application.OrchestrationService{
			Deploy:   deployRunner,
			Validate: validateRunner,
			Log:      zerolog.Nop(),
		},
		Log: zerolog.Nop(),
	}

	out, err := svc.Deploy(ctx, domain.DeployRequest{
		ID: "d1",
		Components: []domain.Component{
			{Name: "Web", ProviderKind: "web"},
			{Name: "Database", ProviderKind: "db", Input: domain.Values{"fqdn": "db.example.com"}},
		},
	})
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if len(out.State.Failed()) != 0 {
		t.Fatalf("failed components: %+v", out.State.Failed())
	}

	records, err := recordRepo.ListByDeployment(ctx, "d1")
	if err != nil {
		t.Fatalf("ListByDeployment: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 component records, got %d", len(records))
	}

	db1, _ := recordRepo.Get(ctx, "d1", "db")
	if db1.Status != domain.ComponentStatusError {
		t.Errorf("db Status = %q, want error", db1.Status)
	}
	web, _ := recordRepo.Get(ctx, "d1", "web")
	if web.Output["db_host"] != "db.example.com" {
		t.Errorf("web output = %v, want db_host from db output", web.Output)
	}
}
