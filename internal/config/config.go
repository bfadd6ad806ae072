// Package config loads fleetpipe configuration from YAML with
// FLEETPIPE_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/fleetshift/fleetshift-pipeline/internal/domain"
	"github.com/fleetshift/fleetshift-pipeline/internal/logging"
)

// Config is the process configuration.
type Config struct {
	Log        logging.Config                 `yaml:"log"`
	Engine     EngineConfig                   `yaml:"engine"`
	Database   DatabaseConfig                 `yaml:"database"`
	Gateway    GatewayConfig                  `yaml:"gateway"`
	Providers  map[domain.ProviderKind]string `yaml:"providers" validate:"dive,url"`
	Transforms domain.TransformTable          `yaml:"transforms"`
	Lifecycle  LifecycleConfig                `yaml:"lifecycle"`
	Validation ValidationConfig               `yaml:"validation"`
}

// EngineConfig selects the durable execution substrate.
type EngineConfig struct {
	Kind string `yaml:"kind" validate:"oneof=sync goworkflows dbos"`
	// SQLitePath is the go-workflows backend file; empty keeps it in
	// memory.
	SQLitePath string `yaml:"sqlite_path"`
	// DatabaseURL is the Postgres URL used by DBOS.
	DatabaseURL string        `yaml:"database_url" validate:"required_if=Kind dbos"`
	Timeout     time.Duration `yaml:"timeout" validate:"gte=0"`
}

// DatabaseConfig locates the SQLite database holding deployments and
// component records.
type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// GatewayConfig selects and configures the provisioning gateway.
type GatewayConfig struct {
	Kind           string        `yaml:"kind" validate:"oneof=sim http"`
	KeyringService string        `yaml:"keyring_service"`
	KeyringUser    string        `yaml:"keyring_user"`
	Timeout        time.Duration `yaml:"timeout" validate:"gte=0"`

	// SimBuildingChecks is how many status checks the simulated backend
	// reports building before a component succeeds. The default of six
	// matches the provisioning backend's mock, which succeeds once more
	// than five checks have been made.
	SimBuildingChecks int                   `yaml:"sim_building_checks" validate:"gte=0"`
	SimFailing        []domain.ProviderKind `yaml:"sim_failing"`
	SimRejectField    string                `yaml:"sim_reject_field"`
}

// RetryConfig mirrors [domain.RetryPolicy].
type RetryConfig struct {
	MaxAttempts        int           `yaml:"max_attempts" validate:"gte=0"`
	InitialInterval    time.Duration `yaml:"initial_interval" validate:"gte=0"`
	BackoffCoefficient float64       `yaml:"backoff_coefficient" validate:"gte=0"`
	MaxInterval        time.Duration `yaml:"max_interval" validate:"gte=0"`
}

func (r RetryConfig) Policy() domain.RetryPolicy {
	return domain.RetryPolicy{
		MaxAttempts:        r.MaxAttempts,
		InitialInterval:    r.InitialInterval,
		BackoffCoefficient: r.BackoffCoefficient,
		MaxInterval:        r.MaxInterval,
	}
}

// LifecycleConfig mirrors [domain.LifecycleLimits].
type LifecycleConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval" validate:"gte=0"`
	MaxPollAttempts   int           `yaml:"max_poll_attempts" validate:"gte=0"`
	MaxStatusChecks   int           `yaml:"max_status_checks" validate:"gte=0"`
	MaxDeployAttempts int           `yaml:"max_deploy_attempts" validate:"gte=0"`
	CallRetry         RetryConfig   `yaml:"call_retry"`
}

func (l LifecycleConfig) Limits() domain.LifecycleLimits {
	return domain.LifecycleLimits{
		PollInterval:      l.PollInterval,
		MaxPollAttempts:   l.MaxPollAttempts,
		MaxStatusChecks:   l.MaxStatusChecks,
		MaxDeployAttempts: l.MaxDeployAttempts,
		CallRetry:         l.CallRetry.Policy(),
	}
}

// ValidationConfig configures the validation workflow.
type ValidationConfig struct {
	Retry RetryConfig `yaml:"retry"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	limits := domain.DefaultLifecycleLimits()
	return Config{
		Log:      logging.Config{Level: "info", Format: "console"},
		Engine:   EngineConfig{Kind: "sync", Timeout: time.Hour},
		Database: DatabaseConfig{Path: "fleetpipe.db"},
		Gateway: GatewayConfig{
			Kind:              "sim",
			KeyringService:    "fleetpipe",
			KeyringUser:       "provisioning",
			Timeout:           15 * time.Second,
			SimBuildingChecks: 6,
		},
		Lifecycle: LifecycleConfig{
			PollInterval:      limits.PollInterval,
			MaxPollAttempts:   limits.MaxPollAttempts,
			MaxStatusChecks:   limits.MaxStatusChecks,
			MaxDeployAttempts: limits.MaxDeployAttempts,
			CallRetry: RetryConfig{
				MaxAttempts:        limits.CallRetry.MaxAttempts,
				InitialInterval:    limits.CallRetry.InitialInterval,
				BackoffCoefficient: limits.CallRetry.BackoffCoefficient,
				MaxInterval:        limits.CallRetry.MaxInterval,
			},
		},
		Validation: ValidationConfig{Retry: RetryConfig{
			MaxAttempts:        10,
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaxInterval:        30 * time.Second,
		}},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeStrict(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}


func decodeStrict(raw []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
