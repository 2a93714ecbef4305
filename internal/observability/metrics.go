package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	discoveryRuns     *prometheus.CounterVec
	discoveryDuration *prometheus.HistogramVec
	stageCandidates   *prometheus.GaugeVec

	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	callErrors   *prometheus.CounterVec

	cacheLookups     *prometheus.CounterVec
	constructions    *prometheus.CounterVec
	instancesCached  prometheus.Gauge
	rulesReloads     *prometheus.CounterVec
	protocolRequests *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			discoveryRuns: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "discovery_runs_total",
					Help: "Total discovery runs by system and status.",
				},
				[]string{"system", "status"},
			),
			discoveryDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "discovery_duration_seconds",
					Help:    "Discovery pipeline duration in seconds by system.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"system"},
			),
			stageCandidates: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "discovery_stage_candidates",
					Help: "Candidates surviving each pipeline stage of the last run.",
				},
				[]string{"system", "stage"},
			),
			callsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "bridge_calls_total",
					Help: "Total bridged tool calls by tool and status.",
				},
				[]string{"tool", "status"},
			),
			callDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "bridge_call_duration_seconds",
					Help:    "Bridged tool call duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			callErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "bridge_errors_total",
					Help: "Total bridged call failures by tool and kind.",
				},
				[]string{"tool", "kind"},
			),
			cacheLookups: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "instance_cache_lookups_total",
					Help: "Owner instance cache lookups by result.",
				},
				[]string{"result"},
			),
			constructions: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "instance_constructions_total",
					Help: "Owner construction attempts by strategy and status.",
				},
				[]string{"strategy", "status"},
			),
			instancesCached: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "instances_cached",
					Help: "Owner instances currently cached.",
				},
			),
			rulesReloads: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rules_reloads_total",
					Help: "Rule book reloads by status.",
				},
				[]string{"status"},
			),
			protocolRequests: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "protocol_requests_total",
					Help: "Tool protocol requests by method and status.",
				},
				[]string{"method", "status"},
			),
		}

		prometheus.MustRegister(
			m.discoveryRuns,
			m.discoveryDuration,
			m.stageCandidates,
			m.callsTotal,
			m.callDuration,
			m.callErrors,
			m.cacheLookups,
			m.constructions,
			m.instancesCached,
			m.rulesReloads,
			m.protocolRequests,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordDiscovery(system string, duration time.Duration, success bool) {
	m := getMetrics()
	m.discoveryRuns.WithLabelValues(system, statusLabel(success)).Inc()
	m.discoveryDuration.WithLabelValues(system).Observe(duration.Seconds())
}

// SetStageCandidates records how many candidates left a pipeline stage
func SetStageCandidates(system, stage string, count int) {
	m := getMetrics()
	m.stageCandidates.WithLabelValues(system, stage).Set(float64(count))
}

func RecordBridgeCall(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.callsTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	m.callDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordBridgeError(tool, kind string) {
	getMetrics().callErrors.WithLabelValues(tool, kind).Inc()
}

func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	getMetrics().cacheLookups.WithLabelValues(result).Inc()
}

func RecordConstruction(strategy string, success bool) {
	getMetrics().constructions.WithLabelValues(strategy, statusLabel(success)).Inc()
}

func SetInstancesCached(count int) {
	getMetrics().instancesCached.Set(float64(count))
}

func RecordRulesReload(success bool) {
	getMetrics().rulesReloads.WithLabelValues(statusLabel(success)).Inc()
}

func RecordProtocolRequest(method string, success bool) {
	getMetrics().protocolRequests.WithLabelValues(method, statusLabel(success)).Inc()
}
