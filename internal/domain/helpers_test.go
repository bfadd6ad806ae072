package domain_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/fleetshift/fleetshift-pipeline/internal/domain"
)

// retryingRunner runs activities inline, honoring each activity's retry
// policy without sleeping, and records every attempt in order.
type retryingRunner struct {
	ctx context.Context

	mu       sync.Mutex
	attempts []string
}

func newRunner() *retryingRunner {
	return &retryingRunner{ctx: context.Background()}
}

func (r *retryingRunner) ID() string               { return "test-runner" }
func (r *retryingRunner) Context() context.Context { return r.ctx }

func (r *retryingRunner) Run(activity domain.Activity[any, any], in any) (any, error) {
	policy := domain.RetryPolicyOf(activity)
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		r.mu.Lock()
		r.attempts = append(r.attempts, activity.Name())
		r.mu.Unlock()

		out, err := activity.Run(r.ctx, in)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if domain.IsNonRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

// count returns how many attempts of the named activity were made.
func (r *retryingRunner) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.attempts {
		if a == name {
			n++
		}
	}
	return n
}

// fakeGateway is a scripted provisioning backend. Each provider kind
// reports NotFound until deployed, then walks through its scripted
// statuses; the last scripted status repeats.
type fakeGateway struct {
	mu sync.Mutex

	statuses    map[domain.ProviderKind][]domain.ComponentStatus
	preDeployed map[domain.ProviderKind]bool
	statusErr   map[domain.ProviderKind]error
	outputs     map[domain.ProviderKind]domain.Values
	rejectKinds map[domain.ProviderKind]bool
	invalid     map[domain.ProviderKind]bool
	refused     map[domain.ProviderKind]bool

	deployed     map[domain.ProviderKind]domain.Values
	deployCalls  map[domain.ProviderKind]int
	statusCalls  map[domain.ProviderKind]int
	outputCalls  map[domain.ProviderKind]int
	validateRefs []domain.ComponentRef
	deployOrder  []domain.ProviderKind
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		statuses:    make(map[domain.ProviderKind][]domain.ComponentStatus),
		preDeployed: make(map[domain.ProviderKind]bool),
		statusErr:   make(map[domain.ProviderKind]error),
		outputs:     make(map[domain.ProviderKind]domain.Values),
		rejectKinds: make(map[domain.ProviderKind]bool),
		invalid:     make(map[domain.ProviderKind]bool),
		refused:     make(map[domain.ProviderKind]bool),
		deployed:    make(map[domain.ProviderKind]domain.Values),
		deployCalls: make(map[domain.ProviderKind]int),
		statusCalls: make(map[domain.ProviderKind]int),
		outputCalls: make(map[domain.ProviderKind]int),
	}
}

func (g *fakeGateway) Validate(_ context.Context, ref domain.ComponentRef, _ domain.Values) (domain.ValidationResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.validateRefs = append(g.validateRefs, ref)
	if g.invalid[ref.ProviderKind] {
		return domain.ValidationResult{}, fmt.Errorf("backend rejected %s", ref.ProviderKind)
	}
	if g.refused[ref.ProviderKind] {
		return domain.ValidationResult{OK: false, Message: `field "size" is not accepted`}, nil
	}
	return domain.ValidationResult{OK: true, Message: string(ref.Identity) + " accepted"}, nil
}

func (g *fakeGateway) Deploy(_ context.Context, ref domain.ComponentRef, input domain.Values) (domain.DeployResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deployCalls[ref.ProviderKind]++
	g.deployOrder = append(g.deployOrder, ref.ProviderKind)
	if g.rejectKinds[ref.ProviderKind] {
		return domain.DeployResult{OK: false, Message: "quota exceeded"}, nil
	}
	g.deployed[ref.ProviderKind] = input.Clone()
	return domain.DeployResult{OK: true}, nil
}

func (g *fakeGateway) GetStatus(_ context.Context, ref domain.ComponentRef) (domain.ComponentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.statusErr[ref.ProviderKind]; err != nil {
		return "", err
	}
	if _, ok := g.deployed[ref.ProviderKind]; !ok && !g.preDeployed[ref.ProviderKind] {
		return "", fmt.Errorf("%s: %w", ref.Identity, domain.ErrNotFound)
	}
	script := g.statuses[ref.ProviderKind]
	n := g.statusCalls[ref.ProviderKind]
	g.statusCalls[ref.ProviderKind]++
	if len(script) == 0 {
		return domain.ComponentStatusSuccess, nil
	}
	if n >= len(script) {
		return script[len(script)-1], nil
	}
	return script[n], nil
}

func (g *fakeGateway) GetOutput(_ context.Context, ref domain.ComponentRef) (domain.Values, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outputCalls[ref.ProviderKind]++
	if out, ok := g.outputs[ref.ProviderKind]; ok {
		return out.Clone(), nil
	}
	return domain.Values{}, nil
}

// fixedIdentities hands out "<kind>-<n>" identities with a counter and
// records how often it was asked.
type fixedIdentities struct {
	mu    sync.Mutex
	calls int
}

func (f *fixedIdentities) NewIdentity(kind domain.ProviderKind) domain.ComponentIdentity {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return domain.ComponentIdentity(fmt.Sprintf("%s-%d", kind, 1000+f.calls))
}

// memRecords is an in-memory ComponentRecordRepository.
type memRecords struct {
	mu      sync.Mutex
	records []domain.ComponentRecord
	err     error
}

func (m *memRecords) Put(_ context.Context, rec domain.ComponentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memRecords) Get(_ context.Context, id domain.DeploymentID, kind domain.ProviderKind) (domain.ComponentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].DeploymentID == id && m.records[i].ProviderKind == kind {
			return m.records[i], nil
		}
	}
	return domain.ComponentRecord{}, domain.ErrNotFound
}

func (m *memRecords) ListByDeployment(_ context.Context, id domain.DeploymentID) ([]domain.ComponentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ComponentRecord
	for _, r := range m.records {
		if r.DeploymentID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRecords) DeleteByDeployment(_ context.Context, _ domain.DeploymentID) error { return nil }

func component(kind domain.ProviderKind, input domain.Values) domain.Component {
	return domain.Component{Name: string(kind), ProviderKind: kind, Input: input}
}

func stateOf(t *testing.T, s domain.DeployState, kind domain.ProviderKind) domain.ComponentState {
	t.Helper()
	for _, c := range s.Components {
		if c.ProviderKind == kind {
			return c
		}
	}
	t.Fatalf("no component with provider kind %q", kind)
	return domain.ComponentState{}
}
