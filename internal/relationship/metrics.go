package relationship

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	actions *prometheus.CounterVec
}

// sharedMetrics returns the collectors for reg. Every surface has its own
// Machine, so the collectors are registered once and then reused.
func sharedMetrics(reg prometheus.Registerer) *metrics {
	actions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poketroid",
		Subsystem: "relationship",
		Name:      "actions_total",
		Help:      "Relationship actions by surface, action and result.",
	}, []string{"surface", "action", "result"})

	if reg != nil {
		if err := reg.Register(actions); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
			actions = already.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	return &metrics{actions: actions}
}
