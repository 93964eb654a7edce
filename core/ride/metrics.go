package ride

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ridesStarted        prometheus.Counter
	ridesRejected       *prometheus.CounterVec
	ridesCompleted      prometheus.Counter
	batteryCheckLatency prometheus.Histogram
	actuationSuccess    prometheus.Counter
	actuationFailure    prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (prometheus.Counter, *prometheus.CounterVec, prometheus.Counter, prometheus.Histogram, prometheus.Counter, prometheus.Counter) {
	started := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rides_started_total",
			Help: "Number of rides admitted and activated",
		},
	)
	rejected := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rides_rejected_total",
			Help: "Number of ride start requests rejected",
		},
		[]string{"reason"},
	)
	completed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rides_completed_total",
			Help: "Number of rides terminated normally",
		},
	)
	lat := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "battery_check_duration_seconds",
			Help:    "Duration of the battery admission check, timeouts included",
			Buckets: prometheus.DefBuckets,
		},
	)
	suc := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "actuation_publish_success_total",
			Help: "Number of successful lock/unlock publish operations",
		},
	)
	fail := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "actuation_publish_failure_total",
			Help: "Number of failed lock/unlock publish operations",
		},
	)
	return started, rejected, completed, lat, suc, fail
}

func init() {
	ridesStarted, ridesRejected, ridesCompleted, batteryCheckLatency, actuationSuccess, actuationFailure = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers ride metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(ridesStarted, ridesRejected, ridesCompleted, batteryCheckLatency, actuationSuccess, actuationFailure)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	ridesStarted, ridesRejected, ridesCompleted, batteryCheckLatency, actuationSuccess, actuationFailure = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
