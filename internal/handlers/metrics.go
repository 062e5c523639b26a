package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transfers_requests_total",
		Help: "Transfer requests by outcome",
	}, []string{"outcome"})

	transferDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transfers_request_duration_seconds",
		Help:    "Transfer request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)
