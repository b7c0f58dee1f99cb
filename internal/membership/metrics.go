package membership

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	toggles *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		toggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poketroid",
			Subsystem: "membership",
			Name:      "toggles_total",
			Help:      "List toggles by list and result.",
		}, []string{"list", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.toggles)
	}
	return m
}
