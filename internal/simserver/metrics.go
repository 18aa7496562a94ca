package simserver

import (
	"github.com/prometheus/client_golang/prometheus"
)

type serverMetrics struct {
	requests    *prometheus.CounterVec
	simulations *prometheus.CounterVec
	posts       prometheus.Gauge
}

func newServerMetrics(reg prometheus.Registerer) (*serverMetrics, error) {
	m := &serverMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedsim",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "HTTP requests served, by route and status.",
		}, []string{"method", "route", "status"}),
		simulations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedsim",
			Subsystem: "server",
			Name:      "decisions_total",
			Help:      "Persona decisions taken during simulations.",
		}, []string{"mode", "decision"}),
		posts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "feedsim",
			Subsystem: "server",
			Name:      "posts",
			Help:      "Posts in the feed as of the last listing.",
		}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.simulations, m.posts} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
