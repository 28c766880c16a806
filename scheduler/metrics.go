package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	buffersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plcmodem_buffers_total",
		Help: "Buffers sent or captured",
	}, []string{"direction"})

	timeoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plcmodem_timeouts_total",
		Help: "Transfers that missed their deadline and were retried",
	}, []string{"direction"})

	lateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plcmodem_late_total",
		Help: "Times the TX loop fell a full buffer behind",
	}, []string{"direction"})

	fillSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "plcmodem_client_seconds",
		Help:    "Time spent in the encoder or decoder per buffer",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
	}, []string{"direction"})
)
