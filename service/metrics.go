package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	challengesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keyauth_challenges_issued_total",
		Help: "Number of challenges issued",
	})

	verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyauth_verifications_total",
		Help: "Verification attempts by outcome",
	}, []string{"outcome"})

	registryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "keyauth_registry_call_duration_seconds",
		Help:    "Latency of registry RPC calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"call"})
)
