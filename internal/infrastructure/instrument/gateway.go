// Package instrument decorates the provisioning gateway with structured
// logging and Prometheus metrics.
package instrument

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/fleetshift/fleetshift-pipeline/internal/domain"
)

// Metrics holds the collectors for gateway calls and component
// outcomes.
type Metrics struct {
	calls             *prometheus.CounterVec
	duration          *prometheus.HistogramVec
	componentOutcomes *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fleetpipe",
				Name:      "gateway_calls_total",
				Help:      "Provisioning gateway calls by operation, provider kind and result",
			},
			[]string{"operation", "provider_kind", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fleetpipe",
				Name:      "gateway_call_duration_seconds",
				Help:      "Duration of provisioning gateway calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "provider_kind"},
		),
		componentOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fleetpipe",
				Name:      "component_outcomes_total",
				Help:      "Final component outcomes by provider kind, status and failure kind",
			},
			[]string{"provider_kind", "status", "failure_kind"},
		),
	}
	for _, c := range []prometheus.Collector{m.calls, m.duration, m.componentOutcomes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveState counts the final outcome of every component of a run.
func (m *Metrics) ObserveState(state domain.DeployState) {
	if m == nil {
		return
	}
	for _, c := range state.Components {
		failure := ""
		if c.Failure != nil {
			failure = string(c.Failure.Kind)
		}
		m.componentOutcomes.WithLabelValues(string(c.ProviderKind), string(c.Status), failure).Inc()
	}
}

func (m *Metrics) observe(op string, kind domain.ProviderKind, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(op, string(kind), result).Inc()
	m.duration.WithLabelValues(op, string(kind)).Observe(d.Seconds())
}

// Gateway wraps a [domain.ProvisioningGateway]. Gateway calls run inside
// activities, so each call is logged once per attempt.
type Gateway struct {
	Next    domain.ProvisioningGateway
	Log     zerolog.Logger
	Metrics *Metrics // optional
}

func (g *Gateway) Validate(ctx context.Context, ref domain.ComponentRef, input domain.Values) (domain.ValidationResult, error) {
	start := time.Now()
	res, err := g.Next.Validate(ctx, ref, input)
	result := resultOf(err)
	if err == nil && !res.OK {
		result = "rejected"
	}
	g.done("validate", ref, result, start, err)
	return res, err
}

func (g *Gateway) Deploy(ctx context.Context, ref domain.ComponentRef, input domain.Values) (domain.DeployResult, error) {
	start := time.Now()
	res, err := g.Next.Deploy(ctx, ref, input)
	result := resultOf(err)
	if err == nil && !res.OK {
		result = "rejected"
	}
	g.done("deploy", ref, result, start, err)
	return res, err
}

func (g *Gateway) GetStatus(ctx context.Context, ref domain.ComponentRef) (domain.ComponentStatus, error) {
	start := time.Now()
	status, err := g.Next.GetStatus(ctx, ref)
	result := resultOf(err)
	if err == nil {
		result = string(status)
	}
	g.done("get_status", ref, result, start, err)
	return status, err
}

func (g *Gateway) GetOutput(ctx context.Context, ref domain.ComponentRef) (domain.Values, error) {
	start := time.Now()
	out, err := g.Next.GetOutput(ctx, ref)
	g.done("get_output", ref, resultOf(err), start, err)
	return out, err
}

func (g *Gateway) done(op string, ref domain.ComponentRef, result string, start time.Time, err error) {
	d := time.Since(start)
	g.Metrics.observe(op, ref.ProviderKind, result, d)

	ev := g.Log.Debug()
	if err != nil && result != "not_found" {
		ev = g.Log.Warn().Err(err)
	}
	ev.Str("operation", op).
		Str("provider_kind", string(ref.ProviderKind)).
		Str("identity", string(ref.Identity)).
		Str("result", result).
		Dur("duration", d).
		Msg("gateway call")
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
