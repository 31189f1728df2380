// Package metrics records orchestration and model-usage metrics with
// Prometheus. A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns a private registry so several pipelines can coexist in one
// process (and in tests).
type Recorder struct {
	registry *prometheus.Registry

	stepsTotal     *prometheus.CounterVec
	decisionsTotal *prometheus.CounterVec
	retriesTotal   *prometheus.CounterVec
	runsTotal      *prometheus.CounterVec
	runDuration    prometheus.Histogram
	tokensTotal    *prometheus.CounterVec
	llmDuration    *prometheus.HistogramVec
	toolCallsTotal *prometheus.CounterVec
	throttleWait   *prometheus.HistogramVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		stepsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deliberate_steps_total",
				Help: "Controller transitions by target step",
			},
			[]string{"step"},
		),
		decisionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deliberate_critic_decisions_total",
				Help: "Critic decisions by reviewed role and decision",
			},
			[]string{"role", "decision"},
		),
		retriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deliberate_retries_total",
				Help: "Retries charged against a role's budget",
			},
			[]string{"role"},
		),
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deliberate_runs_total",
				Help: "Completed runs by outcome",
			},
			[]string{"outcome"},
		),
		runDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "deliberate_run_duration_seconds",
				Help:    "Wall-clock duration of a run",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		tokensTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deliberate_llm_tokens_total",
				Help: "Tokens used in model calls",
			},
			[]string{"provider", "agent", "type"},
		),
		llmDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deliberate_llm_request_duration_seconds",
				Help:    "Duration of model calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "status"},
		),
		toolCallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deliberate_tool_calls_total",
				Help: "Tool invocations by tool and status",
			},
			[]string{"tool", "status"},
		),
		throttleWait: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deliberate_llm_throttle_wait_seconds",
				Help:    "Time spent waiting on the provider rate limiter",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveStep counts a transition into step.
func (r *Recorder) ObserveStep(step string) {
	if r == nil {
		return
	}
	r.stepsTotal.WithLabelValues(step).Inc()
}

// ObserveDecision counts a critic decision about role.
func (r *Recorder) ObserveDecision(role, decision string) {
	if r == nil {
		return
	}
	r.decisionsTotal.WithLabelValues(role, decision).Inc()
}

// ObserveRetry counts one retry charged to role.
func (r *Recorder) ObserveRetry(role string) {
	if r == nil {
		return
	}
	r.retriesTotal.WithLabelValues(role).Inc()
}

// ObserveRun records a finished run.
func (r *Recorder) ObserveRun(failed bool, d time.Duration) {
	if r == nil {
		return
	}
	outcome := "answered"
	if failed {
		outcome = "failed"
	}
	r.runsTotal.WithLabelValues(outcome).Inc()
	r.runDuration.Observe(d.Seconds())
}

// ObserveLLM records one model call.
func (r *Recorder) ObserveLLM(provider, agent string, inputTokens, outputTokens int64, err error, d time.Duration) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.llmDuration.WithLabelValues(provider, status).Observe(d.Seconds())
	if err == nil {
		r.tokensTotal.WithLabelValues(provider, agent, "input").Add(float64(inputTokens))
		r.tokensTotal.WithLabelValues(provider, agent, "output").Add(float64(outputTokens))
	}
}

// ObserveTool records one tool call.
func (r *Recorder) ObserveTool(tool string, err error) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.toolCallsTotal.WithLabelValues(tool, status).Inc()
}

// ObserveThrottle records time spent waiting for rate limit availability.
func (r *Recorder) ObserveThrottle(provider string, d time.Duration) {
	if r == nil {
		return
	}
	r.throttleWait.WithLabelValues(provider).Observe(d.Seconds())
}
