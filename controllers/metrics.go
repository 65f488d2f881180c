package controllers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	preinstallSaves = promauto.NewCounter(prometheus.CounterOpts{
		Name: "traceback_preinstall_saves_total",
		Help: "Device heuristics records accepted by the pre-install endpoint.",
	})

	postinstallMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "traceback_postinstall_matches_total",
		Help: "Post-install search outcomes by match type.",
	}, []string{"match_type"})

	retentionSweeps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "traceback_retention_sweeps_total",
		Help: "Retention sweeps that found and deleted stale records.",
	})

	retentionSweptRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "traceback_retention_swept_records_total",
		Help: "Stale install records deleted by retention sweeps.",
	})

	consumeDeleteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "traceback_consume_delete_failures_total",
		Help: "Best-effort deletes of matched install records that failed.",
	})
)
