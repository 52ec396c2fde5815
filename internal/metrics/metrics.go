// Package metrics exposes Prometheus instrumentation for the supervisor.
// It is observability-only: nothing in the core engine reads these values
// back to make control decisions, and no verb here can mutate supervisor
// state.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	regOK atomic.Bool

	replicaStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supervisor",
			Subsystem: "replica",
			Name:      "starts_total",
			Help:      "Number of replica spawns, including automatic restarts.",
		}, []string{"program"},
	)
	replicaRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supervisor",
			Subsystem: "replica",
			Name:      "restarts_total",
			Help:      "Number of automatic restarts performed.",
		}, []string{"program"},
	)
	replicaStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supervisor",
			Subsystem: "replica",
			Name:      "stops_total",
			Help:      "Number of replica stops, graceful or forced.",
		}, []string{"program"},
	)
	liveReplicas = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "supervisor",
			Subsystem: "program",
			Name:      "live_replicas",
			Help:      "Current number of live (starting|running) replicas per program.",
		}, []string{"program"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supervisor",
			Subsystem: "replica",
			Name:      "state_transitions_total",
			Help:      "Number of replica state transitions.",
		}, []string{"program", "from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "supervisor",
			Subsystem: "replica",
			Name:      "state",
			Help:      "Current replica state (1 = at least one replica of program is in state).",
		}, []string{"program", "state"},
	)
)

// Register registers all collectors with r. Safe to call more than once.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	collectors := []prometheus.Collector{replicaStarts, replicaRestarts, replicaStops, liveReplicas, stateTransitions, currentState}
	for _, c := range collectors {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the default Prometheus gatherer over HTTP.
func Handler() http.Handler { return promhttp.Handler() }

func IncStart(program string) {
	if regOK.Load() {
		replicaStarts.WithLabelValues(program).Inc()
	}
}

func IncRestart(program string) {
	if regOK.Load() {
		replicaRestarts.WithLabelValues(program).Inc()
	}
}

func IncStop(program string) {
	if regOK.Load() {
		replicaStops.WithLabelValues(program).Inc()
	}
}

func SetLiveReplicas(program string, n int) {
	if regOK.Load() {
		liveReplicas.WithLabelValues(program).Set(float64(n))
	}
}

func RecordTransition(program, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(program, from, to).Inc()
	}
}

func SetCurrentState(program, state string, active bool) {
	if !regOK.Load() {
		return
	}
	v := 0.0
	if active {
		v = 1
	}
	currentState.WithLabelValues(program, state).Set(v)
}
