package engine

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the engine's prometheus collectors.
type metrics struct {
	requests     *prometheus.CounterVec
	optimistic   *prometheus.CounterVec
	discarded    *prometheus.CounterVec
	droppedLocal prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		requests: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedsim",
			Subsystem: "engine",
			Name:      "requests_total",
			Help:      "Backend requests issued by engine operations, by result.",
		}, []string{"op", "result"})),
		optimistic: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedsim",
			Subsystem: "engine",
			Name:      "optimistic_applies_total",
			Help:      "Local mutations applied before backend confirmation.",
		}, []string{"op"})),
		discarded: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedsim",
			Subsystem: "engine",
			Name:      "stale_discards_total",
			Help:      "Replacing responses discarded because a newer token was issued.",
		}, []string{"section"})),
		droppedLocal: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "feedsim",
			Subsystem: "engine",
			Name:      "local_comments_dropped_total",
			Help:      "Unconfirmed local comments discarded by canonical replacement.",
		})),
	}
}

// register adds c to reg, reusing an identical collector that is already
// registered.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

// request records the result of one backend request.
func (m *metrics) request(op string, err error) {
	result := "ok"
	if err != nil {
		result = string(classify(op, "", "", err).Code)
	}
	m.requests.WithLabelValues(op, result).Inc()
}

func (m *metrics) discard(s Section) {
	m.discarded.WithLabelValues(s.String()).Inc()
}
