package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomoyayamashita/ai-optout/internal/policy"
)

const namespace = "aioptout"

// Metrics tracks the state of the last compliance run.
//
// Metrics:
//   - aioptout_compliant: 1 if the last verdict was COMPLIANT
//   - aioptout_passed: 1 if the last run passed in its mode
//   - aioptout_policy_type_enabled: 1 if the policy type is enabled
//   - aioptout_policies: number of opt-out policies
//   - aioptout_accounts_without_policy: active accounts with no effective policy
//   - aioptout_lookup_errors: policies and accounts that could not be read
//   - aioptout_runs_total: completed runs by result
//   - aioptout_run_failures_total: runs that could not read the organization
//   - aioptout_run_duration_seconds: run duration
type Metrics struct {
	registry *prometheus.Registry

	compliant              prometheus.Gauge
	passed                 prometheus.Gauge
	policyTypeEnabled      prometheus.Gauge
	policies               prometheus.Gauge
	accountsWithoutPolicy  prometheus.Gauge
	lookupErrors           prometheus.Gauge
	runsTotal              *prometheus.CounterVec
	runFailuresTotal       prometheus.Counter
	runDuration            prometheus.Histogram
	lastSuccessfulRunStamp prometheus.Gauge
}

// New creates and registers the metrics. If registry is nil a new one is created.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		compliant: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "compliant",
			Help:      "1 if the last verdict was COMPLIANT",
		}),
		passed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "passed",
			Help:      "1 if the last run passed in its evaluation mode",
		}),
		policyTypeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "policy_type_enabled",
			Help:      "1 if the AI services opt-out policy type is enabled",
		}),
		policies: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "policies",
			Help:      "Number of AI services opt-out policies",
		}),
		accountsWithoutPolicy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accounts_without_policy",
			Help:      "Active accounts without an effective opt-out policy",
		}),
		lookupErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lookup_errors",
			Help:      "Policies and accounts whose data could not be read in the last run",
		}),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of completed compliance runs",
			},
			[]string{"result"},
		),
		runFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_failures_total",
			Help:      "Total number of runs that could not read the organization",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of compliance runs in seconds",
			// Large organizations take a while to enumerate
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		lastSuccessfulRunStamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_run_timestamp_seconds",
			Help:      "Unix time of the last completed run",
		}),
	}

	registry.MustRegister(
		m.compliant,
		m.passed,
		m.policyTypeEnabled,
		m.policies,
		m.accountsWithoutPolicy,
		m.lookupErrors,
		m.runsTotal,
		m.runFailuresTotal,
		m.runDuration,
		m.lastSuccessfulRunStamp,
	)

	return m
}

// RecordRun records a completed run
func (m *Metrics) RecordRun(policies int, d policy.Decision, duration time.Duration, at time.Time) {
	v := d.Verdict

	m.compliant.Set(boolToFloat(v.Compliant()))
	m.passed.Set(boolToFloat(d.Passed))
	if v.PolicyTypeEnabled != nil {
		m.policyTypeEnabled.Set(boolToFloat(*v.PolicyTypeEnabled))
	}
	m.policies.Set(float64(policies))

	without := 0
	for _, f := range v.Findings {
		if f.Code == policy.CodeNoEffectivePolicy {
			without++
		}
	}
	m.accountsWithoutPolicy.Set(float64(without))
	m.lookupErrors.Set(float64(len(v.Errors)))

	m.runsTotal.WithLabelValues(string(v.Result)).Inc()
	m.runDuration.Observe(duration.Seconds())
	m.lastSuccessfulRunStamp.Set(float64(at.Unix()))
}

// RecordFailure records a run that could not read the organization
func (m *Metrics) RecordFailure(duration time.Duration) {
	m.runFailuresTotal.Inc()
	m.runDuration.Observe(duration.Seconds())
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
