package domain_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fleetshift/fleetshift-pipeline/internal/domain"
)

func testLimits() domain.LifecycleLimits {
	return domain.LifecycleLimits{
		PollInterval:      time.Millisecond,
		MaxPollAttempts:   5,
		MaxStatusChecks:   4,
		MaxDeployAttempts: 2,
		CallRetry:         domain.RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond},
	}
}

func newDeploymentWorkflow(g *fakeGateway) *domain.DeploymentWorkflow {
	return &domain.DeploymentWorkflow{
		Gateway:    g,
		Identities: &fixedIdentities{},
		Limits:     testLimits(),
	}
}

func TestDeploymentWorkflow_NotFoundDeploysOnceThenFetchesOutput(t *testing.T) {
	g := newFakeGateway()
	g.outputs["foo"] = domain.Values{"url": "https://foo.example.com"}
	wf := newDeploymentWorkflow(g)
	runner := newRunner()

	state, err := wf.Run(runner, domain.DeployRequest{
		Components: []domain.Component{component("foo", domain.Values{"bonk": "beep"})},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	foo := stateOf(t, state, "foo")
	if foo.Failure != nil {
		t.Fatalf("Failure = %+v", foo.Failure)
	}
	if foo.Status != domain.ComponentStatusSuccess {
		t.Errorf("Status = %q, want %q", foo.Status, domain.ComponentStatusSuccess)
	}
	if foo.Output["url"] != "https://foo.example.com" {
		t.Errorf("Output = %v", foo.Output)
	}
	if g.deployCalls["foo"] != 1 {
		t.Errorf("deploy calls = %d, want 1", g.deployCalls["foo"])
	}
	if n := runner.count("get-component-status"); n != 2 {
		t.Errorf("status attempts = %d, want 2 (poll, deploy, poll)", n)
	}
	if g.outputCalls["foo"] != 1 {
		t.Errorf("output calls = %d, want 1", g.outputCalls["foo"])
	}
	if g.deployed["foo"]["bonk"] != "beep" {
		t.Errorf("deployed input = %v, want declared input", g.deployed["foo"])
	}
}

func TestDeploymentWorkflow_BuildingIsPolledWithoutDeploying(t *testing.T) {
	const building = 3

	g := newFakeGateway()
	g.preDeployed["foo"] = true
	for i := 0; i < building; i++ {
		g.statuses["foo"] = append(g.statuses["foo"], domain.ComponentStatusBuilding)
	}
	g.statuses["foo"] = append(g.statuses["foo"], domain.ComponentStatusSuccess)

	wf := newDeploymentWorkflow(g)
	runner := newRunner()

	state, err := wf.Run(runner, domain.DeployRequest{
		Components: []domain.Component{component("foo", nil)},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	foo := stateOf(t, state, "foo")
	if foo.Failure != nil {
		t.Fatalf("Failure = %+v", foo.Failure)
	}
	if n := runner.count("get-component-status"); n != building+1 {
		t.Errorf("status attempts = %d, want %d", n, building+1)
	}
	if g.deployCalls["foo"] != 0 {
		t.Errorf("deploy calls = %d, want 0", g.deployCalls["foo"])
	}
	if g.outputCalls["foo"] != 1 {
		t.Errorf("output calls = %d, want 1", g.outputCalls["foo"])
	}
}

func TestDeploymentWorkflow_ErrorStatusStillFetchesOutput(t *testing.T) {
	g := newFakeGateway()
	g.statuses["foo"] = []domain.ComponentStatus{domain.ComponentStatusError}
	g.outputs["foo"] = domain.Values{"reason": "disk full"}
	wf := newDeploymentWorkflow(g)

	state, err := wf.Run(newRunner(), domain.DeployRequest{
		Components: []domain.Component{component("foo", nil)},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	foo := stateOf(t, state, "foo")
	if foo.Failure != nil {
		t.Fatalf("Failure = %+v, want none for Error status", foo.Failure)
	}
	if foo.Status != domain.ComponentStatusError {
		t.Errorf("Status = %q, want %q", foo.Status, domain.ComponentStatusError)
	}
	if foo.Output["reason"] != "disk full" {
		t.Errorf("Output = %v", foo.Output)
	}
}

func TestDeploymentWorkflow_GeneralErrorIsFatalForThatComponentOnly(t *testing.T) {
	g := newFakeGateway()
	g.statusErr["a"] = errors.New("backend unavailable")
	wf := newDeploymentWorkflow(g)
	runner := newRunner()

	state, err := wf.Run(runner, domain.DeployRequest{
		Components: []domain.Component{component("a", nil), component("b", nil)},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	a := stateOf(t, state, "a")
	if a.Failure == nil || a.Failure.Kind != domain.FailureGeneral {
		t.Fatalf("a.Failure = %+v, want general failure", a.Failure)
	}
	if !strings.Contains(a.Failure.Message, "a") || !strings.Contains(a.Failure.Message, string(a.Identity)) {
		t.Errorf("message %q must name provider kind and identity", a.Failure.Message)
	}
	// one non-retried attempt for a, poll-deploy-poll for b
	if n := runner.count("get-component-status"); n != 3 {
		t.Errorf("status attempts = %d, want 3", n)
	}

	b := stateOf(t, state, "b")
	if b.Failure != nil || b.Output == nil {
		t.Errorf("b = %+v, want completed", b)
	}
	if len(state.Failed()) != 1 {
		t.Errorf("Failed() = %d, want 1", len(state.Failed()))
	}
}

func TestDeploymentWorkflow_EndlessBuildingIsExhausted(t *testing.T) {
	g := newFakeGateway()
	g.preDeployed["foo"] = true
	g.statuses["foo"] = []domain.ComponentStatus{domain.ComponentStatusBuilding}
	wf := newDeploymentWorkflow(g)
	runner := newRunner()

	state, err := wf.Run(runner, domain.DeployRequest{
		Components: []domain.Component{component("foo", nil)},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	foo := stateOf(t, state, "foo")
	if foo.Failure == nil || foo.Failure.Kind != domain.FailureExhausted {
		t.Fatalf("Failure = %+v, want exhausted", foo.Failure)
	}
	if n := runner.count("get-component-status"); n != testLimits().MaxPollAttempts {
		t.Errorf("status attempts = %d, want %d", n, testLimits().MaxPollAttempts)
	}
	if foo.Output != nil {
		t.Errorf("Output = %v, want none", foo.Output)
	}
}

func TestDeploymentWorkflow_StatusCheckBudgetIsEnforced(t *testing.T) {
	g := newFakeGateway()
	wf := newDeploymentWorkflow(g)
	wf.Limits.MaxStatusChecks = 1

	state, err := wf.Run(newRunner(), domain.DeployRequest{
		Components: []domain.Component{component("foo", nil)},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	foo := stateOf(t, state, "foo")
	if foo.Failure == nil || foo.Failure.Kind != domain.FailureExhausted {
		t.Fatalf("Failure = %+v, want exhausted", foo.Failure)
	}
	if g.deployCalls["foo"] != 1 {
		t.Errorf("deploy calls = %d, want 1", g.deployCalls["foo"])
	}
}

func TestDeploymentWorkflow_RejectedDeployIsFatal(t *testing.T) {
	g := newFakeGateway()
	g.rejectKinds["foo"] = true
	wf := newDeploymentWorkflow(g)

	state, err := wf.Run(newRunner(), domain.DeployRequest{
		Components: []domain.Component{component("foo", nil)},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	foo := stateOf(t, state, "foo")
	if foo.Failure == nil || !strings.Contains(foo.Failure.Message, "quota exceeded") {
		t.Fatalf("Failure = %+v, want deploy rejection", foo.Failure)
	}
}

func TestDeploymentWorkflow_OutputsFeedDependentInputs(t *testing.T) {
	g := newFakeGateway()
	g.outputs["db"] = domain.Values{"fqdn": "db.example.com", "port": 5432}
	wf := newDeploymentWorkflow(g)
	wf.Transforms = domain.TransformTable{"web": {"db": {"fqdn": "db_host"}}}

	// web is declared first but consumes db's output.
	state, err := wf.Run(newRunner(), domain.DeployRequest{
		Components: []domain.Component{
			component("web", domain.Values{"replicas": 2}),
			component("db", nil),
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(g.deployOrder) != 2 || g.deployOrder[0] != "db" || g.deployOrder[1] != "web" {
		t.Fatalf("deploy order = %v, want [db web]", g.deployOrder)
	}
	deployed := g.deployed["web"]
	if deployed["db_host"] != "db.example.com" {
		t.Errorf("web db_host = %v, want %q", deployed["db_host"], "db.example.com")
	}
	if deployed["port"] != 5432 {
		t.Errorf("web port = %v, want unmapped field copied", deployed["port"])
	}
	if deployed["replicas"] != 2 {
		t.Errorf("web replicas = %v, want declared input kept", deployed["replicas"])
	}
	if web := stateOf(t, state, "web"); web.Input["db_host"] != "db.example.com" {
		t.Errorf("state input = %v, want transformed input", web.Input)
	}
}

func TestDeploymentWorkflow_CycleFailsBeforeDeploying(t *testing.T) {
	g := newFakeGateway()
	wf := newDeploymentWorkflow(g)
	wf.Transforms = domain.TransformTable{"a": {"b": {}}, "b": {"a": {}}}

	_, err := wf.Run(newRunner(), domain.DeployRequest{
		Components: []domain.Component{component("a", nil), component("b", nil)},
	})
	if !errors.Is(err, domain.ErrDependencyCycle) {
		t.Fatalf("Run: got %v, want ErrDependencyCycle", err)
	}
	if len(g.deployOrder) != 0 {
		t.Errorf("deployed %v before rejecting the cycle", g.deployOrder)
	}
}

func TestDeploymentWorkflow_IdentityAssignedOncePerComponent(t *testing.T) {
	g := newFakeGateway()
	ids := &fixedIdentities{}
	wf := newDeploymentWorkflow(g)
	wf.Identities = ids
	runner := newRunner()

	preset := component("a", nil)
	preset.Identity = "a-preset"
	state, err := wf.Run(runner, domain.DeployRequest{
		Components: []domain.Component{preset, component("b", nil)},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if ids.calls != 1 {
		t.Errorf("identity generator calls = %d, want 1", ids.calls)
	}
	if n := runner.count("assign-identity"); n != 1 {
		t.Errorf("assign-identity attempts = %d, want 1", n)
	}
	if a := stateOf(t, state, "a"); a.Identity != "a-preset" {
		t.Errorf("a identity = %q, want preset kept", a.Identity)
	}
	if b := stateOf(t, state, "b"); b.Identity != "b-1001" {
		t.Errorf("b identity = %q, want %q", b.Identity, "b-1001")
	}
}

func TestDeploymentWorkflow_CommonValuesAreDefaults(t *testing.T) {
	g := newFakeGateway()
	wf := newDeploymentWorkflow(g)

	_, err := wf.Run(newRunner(), domain.DeployRequest{
		Components:   []domain.Component{component("foo", domain.Values{"region": "us"})},
		CommonValues: domain.Values{"region": "eu", "owner": "platform"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	deployed := g.deployed["foo"]
	if deployed["region"] != "us" || deployed["owner"] != "platform" {
		t.Errorf("deployed input = %v, want component values over common values", deployed)
	}
}

func TestDeploymentWorkflow_RecordsEveryComponent(t *testing.T) {
	g := newFakeGateway()
	g.statusErr["b"] = errors.New("boom")
	records := &memRecords{}
	wf := newDeploymentWorkflow(g)
	wf.Records = records
	now := time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC)
	wf.Now = func() time.Time { return now }

	_, err := wf.Run(newRunner(), domain.DeployRequest{
		ID:         "d1",
		Components: []domain.Component{component("a", nil), component("b", nil)},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := records.ListByDeployment(context.Background(), "d1")
	if len(got) != 2 {
		t.Fatalf("records = %d, want 2", len(got))
	}
	b, _ := records.Get(context.Background(), "d1", "b")
	if b.Failure == nil {
		t.Errorf("record for b has no failure")
	}
	if !b.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %v, want %v", b.UpdatedAt, now)
	}
}

func TestDeploymentWorkflow_RecordFailureFailsRun(t *testing.T) {
	g := newFakeGateway()
	wf := newDeploymentWorkflow(g)
	wf.Records = &memRecords{err: errors.New("disk full")}

	_, err := wf.Run(newRunner(), domain.DeployRequest{
		ID:         "d1",
		Components: []domain.Component{component("a", nil)},
	})
	if err == nil {
		t.Fatal("Run: expected error when the record cannot be stored")
	}
}

func TestDeploymentWorkflow_CancelledContextStopsComponents(t *testing.T) {
	g := newFakeGateway()
	wf := newDeploymentWorkflow(g)
	runner := newRunner()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner.ctx = ctx

	state, err := wf.Run(runner, domain.DeployRequest{
		Components: []domain.Component{component("a", nil)},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	a := stateOf(t, state, "a")
	if a.Failure == nil || a.Failure.Kind != domain.FailureCancelled {
		t.Fatalf("Failure = %+v, want cancelled", a.Failure)
	}
	if len(g.deployOrder) != 0 {
		t.Errorf("deployed %v after cancellation", g.deployOrder)
	}
}

// cancellingGateway cancels the run's context on the nth status check or
// on the first deploy, then keeps answering like the wrapped backend.
type cancellingGateway struct {
	*fakeGateway
	cancel       context.CancelFunc
	cancelAfter  int
	cancelDeploy bool
	checks       int
}

func (g *cancellingGateway) GetStatus(ctx context.Context, ref domain.ComponentRef) (domain.ComponentStatus, error) {
	g.checks++
	if g.cancelAfter > 0 && g.checks == g.cancelAfter {
		g.cancel()
	}
	return g.fakeGateway.GetStatus(ctx, ref)
}

func (g *cancellingGateway) Deploy(ctx context.Context, ref domain.ComponentRef, input domain.Values) (domain.DeployResult, error) {
	if g.cancelDeploy {
		g.cancel()
		return domain.DeployResult{}, ctx.Err()
	}
	return g.fakeGateway.Deploy(ctx, ref, input)
}

func TestDeploymentWorkflow_CancelledWhileBuilding(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inner := newFakeGateway()
	inner.preDeployed["a"] = true
	inner.statuses["a"] = []domain.ComponentStatus{domain.ComponentStatusBuilding}
	g := &cancellingGateway{fakeGateway: inner, cancel: cancel, cancelAfter: 2}

	wf := &domain.DeploymentWorkflow{Gateway: g, Identities: &fixedIdentities{}, Limits: testLimits()}
	runner := newRunner()
	runner.ctx = ctx

	state, err := wf.Run(runner, domain.DeployRequest{
		Components: []domain.Component{component("a", nil), component("b", nil)},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	a := stateOf(t, state, "a")
	if a.Failure == nil || a.Failure.Kind != domain.FailureCancelled {
		t.Fatalf("a: Failure = %+v, want cancelled", a.Failure)
	}
	b := stateOf(t, state, "b")
	if b.Failure == nil || b.Failure.Kind != domain.FailureCancelled {
		t.Fatalf("b: Failure = %+v, want cancelled", b.Failure)
	}
	if len(inner.deployOrder) != 0 {
		t.Errorf("deployed %v after cancellation", inner.deployOrder)
	}
}

func TestDeploymentWorkflow_CancelledDuringDeploy(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g := &cancellingGateway{fakeGateway: newFakeGateway(), cancel: cancel, cancelDeploy: true}

	wf := &domain.DeploymentWorkflow{Gateway: g, Identities: &fixedIdentities{}, Limits: testLimits()}
	runner := newRunner()
	runner.ctx = ctx

	state, err := wf.Run(runner, domain.DeployRequest{
		Components: []domain.Component{component("a", nil)},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	a := stateOf(t, state, "a")
	if a.Failure == nil || a.Failure.Kind != domain.FailureCancelled {
		t.Fatalf("Failure = %+v, want cancelled", a.Failure)
	}
	if !strings.Contains(a.Failure.Message, "context canceled") {
		t.Errorf("Message = %q, want the context error", a.Failure.Message)
	}
}
