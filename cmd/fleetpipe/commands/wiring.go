package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	wfbackend "github.com/cschleiden/go-workflows/backend"
	wfsqlite "github.com/cschleiden/go-workflows/backend/sqlite"
	"github.com/cschleiden/go-workflows/client"
	"github.com/cschleiden/go-workflows/worker"
	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/fleetshift/fleetshift-pipeline/internal/application"
	"github.com/fleetshift/fleetshift-pipeline/internal/config"
	"github.com/fleetshift/fleetshift-pipeline/internal/domain"
	"github.com/fleetshift/fleetshift-pipeline/internal/infrastructure/dbosworkflows"
	"github.com/fleetshift/fleetshift-pipeline/internal/infrastructure/goworkflows"
	"github.com/fleetshift/fleetshift-pipeline/internal/infrastructure/httpgateway"
	"github.com/fleetshift/fleetshift-pipeline/internal/infrastructure/instrument"
	"github.com/fleetshift/fleetshift-pipeline/internal/infrastructure/simgateway"
	"github.com/fleetshift/fleetshift-pipeline/internal/infrastructure/sqlite"
	"github.com/fleetshift/fleetshift-pipeline/internal/infrastructure/syncworkflow"
	"github.com/fleetshift/fleetshift-pipeline/internal/logging"
)

// app is the wired process. close releases everything in reverse order.
type app struct {
	cfg     config.Config
	log     zerolog.Logger
	db      *sql.DB
	service *application.DeploymentService
	metrics *instrument.Metrics
	closers []func() error
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func loadConfig(opts *globalOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if opts.engine != "" {
		cfg.Engine.Kind = opts.engine
	}
	if opts.gateway != "" {
		cfg.Gateway.Kind = opts.gateway
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	return cfg, cfg.Validate()
}

// newApp wires storage, the gateway, the workflows and the selected
// engine. Workflows are registered before the engine starts running
// them.
func newApp(ctx context.Context, opts *globalOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	log, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, closers: []func() error{closeLog}}

	ok := false
	defer func() {
		if !ok {
			_ = a.close()
		}
	}()

	a.db, err = sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.db.Close)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if a.metrics, err = instrument.NewMetrics(reg); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	if opts.metricsAddr != "" {
		a.serveMetrics(opts.metricsAddr, reg)
	}

	gateway, err := a.gateway()
	if err != nil {
		return nil, err
	}

	records := &sqlite.ComponentRecordRepo{DB: a.db}
	ids := &domain.RandomIdentities{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
	deployWF := &domain.DeploymentWorkflow{
		Gateway:    gateway,
		Identities: ids,
		Transforms: cfg.Transforms,
		Records:    records,
		Limits:     cfg.Lifecycle.Limits(),
	}
	validateWF := &domain.ValidationWorkflow{
		Gateway:    gateway,
		Identities: ids,
		Retry:      cfg.Validation.Retry.Policy(),
	}

	deployRunner, validateRunner, err := a.runners(ctx, deployWF, validateWF)
	if err != nil {
		return nil, err
	}

	a.service = &application.DeploymentService{
		Deployments: &sqlite.DeploymentRepo{DB: a.db},
		Components:  records,
		Orchestration: &application.OrchestrationService{
			Deploy:   deployRunner,
			Validate: validateRunner,
			Log:      log,
		},
		Log: log,
	}

	ok = true
	return a, nil
}

func (a *app) gateway() (domain.ProvisioningGateway, error) {
	var next domain.ProvisioningGateway
	switch a.cfg.Gateway.Kind {
	case "sim":
		failing := make(map[domain.ProviderKind]bool, len(a.cfg.Gateway.SimFailing))
		for _, k := range a.cfg.Gateway.SimFailing {
			failing[k] = true
		}
		next = &simgateway.Gateway{
			Store:          &sqlite.ProgressStore{DB: a.db},
			BuildingChecks: a.cfg.Gateway.SimBuildingChecks,
			RejectField:    a.cfg.Gateway.SimRejectField,
			Failing:        failing,
		}
	case "http":
		tokens := httpgateway.KeyringTokens{Service: a.cfg.Gateway.KeyringService, User: a.cfg.Gateway.KeyringUser}
		next = httpgateway.New(httpgateway.Directory{URLs: a.cfg.Providers}, tokens, a.cfg.Gateway.Timeout)
	default:
		return nil, fmt.Errorf("%w: unknown gateway %q", domain.ErrInvalidArgument, a.cfg.Gateway.Kind)
	}
	return &instrument.Gateway{
		Next:    next,
		Log:     a.log.With().Str("component", "gateway").Logger(),
		Metrics: a.metrics,
	}, nil
}

func (a *app) runners(ctx context.Context, deployWF *domain.DeploymentWorkflow, validateWF *domain.ValidationWorkflow) (domain.DeploymentRunner, domain.ValidationRunner, error) {
	var engine domain.WorkflowEngine
	var launch func() error

	switch a.cfg.Engine.Kind {
	case "sync":
		engine = &syncworkflow.Engine{}

	case "goworkflows":
		var b wfbackend.Backend
		if a.cfg.Engine.SQLitePath != "" {
			b = wfsqlite.NewSqliteBackend(a.cfg.Engine.SQLitePath)
		} else {
			b = wfsqlite.NewInMemoryBackend()
		}
		w := worker.New(b, nil)
		wctx, cancel := context.WithCancel(ctx)
		if err := w.Start(wctx); err != nil {
			cancel()
			return nil, nil, fmt.Errorf("start go-workflows worker: %w", err)
		}
		a.closers = append(a.closers, func() error {
			cancel()
			return w.WaitForCompletion()
		})
		engine = &goworkflows.Engine{Worker: w, Client: client.New(b), Timeout: a.cfg.Engine.Timeout}

	case "dbos":
		dbosCtx, err := dbos.NewDBOSContext(ctx, dbos.Config{
			AppName:     "fleetpipe",
			DatabaseURL: a.cfg.Engine.DatabaseURL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create DBOS context: %w", err)
		}
		engine = &dbosworkflows.Engine{DBOSCtx: dbosCtx}
		launch = func() error {
			if err := dbos.Launch(dbosCtx); err != nil {
				return fmt.Errorf("launch DBOS: %w", err)
			}
			a.closers = append(a.closers, func() error {
				dbos.Shutdown(dbosCtx, 5*time.Second)
				return nil
			})
			return nil
		}

	default:
		return nil, nil, fmt.Errorf("%w: unknown engine %q", domain.ErrInvalidArgument, a.cfg.Engine.Kind)
	}

	deployRunner, err := engine.DeploymentRunner(deployWF)
	if err != nil {
		return nil, nil, err
	}
	validateRunner, err := engine.ValidationRunner(validateWF)
	if err != nil {
		return nil, nil, err
	}
	if launch != nil {
		if err := launch(); err != nil {
			return nil, nil, err
		}
	}
	a.log.Debug().Str("engine", a.cfg.Engine.Kind).Str("gateway", a.cfg.Gateway.Kind).Msg("workflows registered")
	return deployRunner, validateRunner, nil
}

func (a *app) serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	a.log.Info().Str("addr", addr).Msg("serving metrics")

	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}
