package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fleetshift/fleetshift-pipeline/internal/domain"
)

// ErrValidationFailed is returned by [DeploymentService.Deploy] when the
// backend rejects at least one component during the pre-deploy check.
var ErrValidationFailed = errors.New("validation failed")

// DeployOutcome is the result of a deploy run.
type DeployOutcome struct {
	Deployment domain.Deployment  `json:"deployment"`
	State      domain.DeployState `json:"state"`
}

// DeploymentService manages deployment lifecycle and triggers orchestration.
type DeploymentService struct {
	Deployments   domain.DeploymentRepository
	Components    domain.ComponentRecordRepository
	Orchestration *OrchestrationService
	Log           zerolog.Logger

	// SkipValidation deploys without running the validation workflow
	// first.
	SkipValidation bool

	Now func() time.Time
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (s *DeploymentService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *DeploymentService) check(req domain.DeployRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return domain.CheckRequest(req)
}

// Validate runs the validate-only workflow. Nothing is persisted.
func (s *DeploymentService) Validate(ctx context.Context, req domain.DeployRequest) (domain.ValidationReport, error) {
	if err := s.check(req); err != nil {
		return domain.ValidationReport{}, err
	}
	report, err := s.Orchestration.Check(ctx, req)
	if err != nil {
		return domain.ValidationReport{}, err
	}
	for kind, res := range report.Validation {
		if !res.OK {
			s.Log.Warn().Str("provider_kind", string(kind)).Str("message", res.Message).Msg("component failed validation")
		}
	}
	return report, nil
}

// Deploy persists a new deployment, validates it unless SkipValidation
// is set, and runs the deploy workflow. Component failures do not make
// Deploy fail: they are reported in the returned state and the
// deployment ends in [domain.DeploymentStateFailed].
func (s *DeploymentService) Deploy(ctx context.Context, req domain.DeployRequest) (DeployOutcome, error) {
	if err := s.check(req); err != nil {
		return DeployOutcome{}, err
	}
	if req.ID == "" {
		req.ID = domain.DeploymentID(uuid.NewString())
	}
	log := s.Log.With().Str("deployment_id", string(req.ID)).Logger()

	dep := domain.Deployment{
		ID:        req.ID,
		Request:   req,
		State:     domain.DeploymentStatePending,
		CreatedAt: s.now(),
	}
	if err := s.Deployments.Create(ctx, dep); err != nil {
		return DeployOutcome{}, err
	}

	if !s.SkipValidation {
		report, err := s.Orchestration.Check(ctx, req)
		if err != nil {
			return s.fail(ctx, dep, err)
		}
		if !report.OK() {
			return s.fail(ctx, dep, fmt.Errorf("%w: %s", ErrValidationFailed, rejected(report)))
		}
		// Deploy the identities that were validated.
		req = withIdentities(req, report.Identities)
		dep.Request = req
	}

	dep.State = domain.DeploymentStateDeploying
	if err := s.Deployments.Update(ctx, dep); err != nil {
		return DeployOutcome{}, err
	}
	log.Info().Int("components", len(req.Components)).Msg("deploying")

	state, err := s.Orchestration.Orchestrate(ctx, req)
	if err != nil {
		return s.fail(ctx, dep, err)
	}

	dep.Request = withIdentities(dep.Request, state.Identities())
	dep.State = domain.DeploymentStateCompleted
	for _, c := range state.Failed() {
		dep.State = domain.DeploymentStateFailed
		log.Error().
			Str("provider_kind", string(c.ProviderKind)).
			Str("identity", string(c.Identity)).
			Str("failure_kind", string(c.Failure.Kind)).
			Msg(c.Failure.Message)
	}
	if err := s.Deployments.Update(ctx, dep); err != nil {
		return DeployOutcome{}, err
	}
	log.Info().Str("state", string(dep.State)).Msg("deployment finished")

	return DeployOutcome{Deployment: dep, State: state}, nil
}

func (s *DeploymentService) fail(ctx context.Context, dep domain.Deployment, cause error) (DeployOutcome, error) {
	dep.State = domain.DeploymentStateFailed
	if err := s.Deployments.Update(ctx, dep); err != nil {
		return DeployOutcome{}, errors.Join(cause, err)
	}
	return DeployOutcome{Deployment: dep}, cause
}

// Get retrieves a deployment by ID.
func (s *DeploymentService) Get(ctx context.Context, id domain.DeploymentID) (domain.Deployment, error) {
	return s.Deployments.Get(ctx, id)
}

// List returns all deployments.
func (s *DeploymentService) List(ctx context.Context) ([]domain.Deployment, error) {
	return s.Deployments.List(ctx)
}

// ComponentRecords returns the recorded final state of each component of a
// deployment.
func (s *DeploymentService) ComponentRecords(ctx context.Context, id domain.DeploymentID) ([]domain.ComponentRecord, error) {
	if _, err := s.Deployments.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.Components.ListByDeployment(ctx, id)
}

// Delete removes a deployment and its component records.
func (s *DeploymentService) Delete(ctx context.Context, id domain.DeploymentID) error {
	if err := s.Components.DeleteByDeployment(ctx, id); err != nil {
		return fmt.Errorf("delete component records: %w", err)
	}
	return s.Deployments.Delete(ctx, id)
}

// withIdentities copies assigned identities into the request so later
// runs target the same backend resources.
func withIdentities(req domain.DeployRequest, ids map[domain.ProviderKind]domain.ComponentIdentity) domain.DeployRequest {
	components := make([]domain.Component, len(req.Components))
	copy(components, req.Components)
	for i := range components {
		if id, ok := ids[components[i].ProviderKind]; ok && id != "" {
			components[i].Identity = id
		}
	}
	req.Components = components
	return req
}

func rejected(report domain.ValidationReport) string {
	var msgs []string
	for _, res := range report.Validation {
		if !res.OK {
			msgs = append(msgs, res.Message)
		}
	}
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}
