package coordinator

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	issued     *prometheus.CounterVec
	superseded *prometheus.CounterVec
	coalesced  *prometheus.CounterVec
	outcomes   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poketroid",
			Subsystem: "coordinator",
			Name:      "requests_issued_total",
			Help:      "Requests started by the coordinator.",
		}, []string{"scope"}),
		superseded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poketroid",
			Subsystem: "coordinator",
			Name:      "requests_superseded_total",
			Help:      "Requests whose result was discarded because a newer request replaced them.",
		}, []string{"scope"}),
		coalesced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poketroid",
			Subsystem: "coordinator",
			Name:      "requests_coalesced_total",
			Help:      "Debounced issuances folded into a later one before firing.",
		}, []string{"scope"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poketroid",
			Subsystem: "coordinator",
			Name:      "request_outcomes_total",
			Help:      "Completed requests by result kind.",
		}, []string{"scope", "kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "poketroid",
			Subsystem: "coordinator",
			Name:      "request_duration_seconds",
			Help:      "Time spent waiting for the operation of a request.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"scope"}),
	}

	if reg != nil {
		reg.MustRegister(m.issued, m.superseded, m.coalesced, m.outcomes, m.latency)
	}
	return m
}

// scopeOf keeps label cardinality bounded: "media:42" is reported as "media".
func scopeOf(key string) string {
	if idx := strings.IndexByte(key, ':'); idx > 0 {
		return key[:idx]
	}
	if key == "" {
		return "unknown"
	}
	return key
}
