// Package stats tracks pipeline-wide counters and gauges - items per
// state, retry counts, transfer-loop outcomes - and serves them for
// scraping.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/matthutchison/cryoempipe/xact"
)

// Registry holds every metric the pipeline reports, and a
// *prometheus.Registry to gather them for scraping.
type Registry struct {
	reg *prometheus.Registry

	itemsByState   *prometheus.GaugeVec
	retriesByState *prometheus.CounterVec
	transferRuns   prometheus.Counter
	transferFailed prometheus.Counter
	transferSeconds prometheus.Gauge
	scipionOutcome  *prometheus.CounterVec
}

// New constructs and registers every pipeline metric.
func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.itemsByState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cryoempipe",
		Name:      "items_in_state",
		Help:      "Number of workflow items currently in each state.",
	}, []string{"state"})

	r.retriesByState = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cryoempipe",
		Name:      "state_retries_total",
		Help:      "Count of retry re-entries into each state.",
	}, []string{"state"})

	r.transferRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cryoempipe",
		Name:      "transfer_runs_total",
		Help:      "Count of completed globus transfer-loop iterations.",
	})

	r.transferFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cryoempipe",
		Name:      "transfer_failures_total",
		Help:      "Count of globus transfer-loop iterations that exited non-zero.",
	})

	r.transferSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cryoempipe",
		Name:      "transfer_last_duration_seconds",
		Help:      "Wall-clock duration of the most recent globus transfer.",
	})

	r.scipionOutcome = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cryoempipe",
		Name:      "scipion_bootstrap_total",
		Help:      "Count of scipion project-create/schedule bootstrap attempts by outcome.",
	}, []string{"outcome"})

	r.reg.MustRegister(
		r.itemsByState,
		r.retriesByState,
		r.transferRuns,
		r.transferFailed,
		r.transferSeconds,
		r.scipionOutcome,
	)
	return r
}

// Gatherer exposes the underlying prometheus.Gatherer for the status
// server to encode.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// SetItemsInState records the current item count for a single state.
// The caller (project supervisor) recomputes the full distribution on a
// timer rather than tracking every transition, since the registry's live
// item set is the single source of truth.
func (r *Registry) SetItemsInState(state xact.State, n int) {
	r.itemsByState.WithLabelValues(string(state)).Set(float64(n))
}

// IncRetry records one retry re-entry into state.
func (r *Registry) IncRetry(state xact.State) {
	r.retriesByState.WithLabelValues(string(state)).Inc()
}

// ObserveTransfer records the outcome and duration of one transfer-loop
// iteration.
func (r *Registry) ObserveTransfer(ok bool, seconds float64) {
	r.transferRuns.Inc()
	if !ok {
		r.transferFailed.Inc()
	}
	r.transferSeconds.Set(seconds)
}

// ObserveScipionBootstrap records the outcome of the one-shot
// project-create/schedule bootstrap.
func (r *Registry) ObserveScipionBootstrap(outcome string) {
	r.scipionOutcome.WithLabelValues(outcome).Inc()
}
