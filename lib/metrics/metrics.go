// Package metrics holds the prometheus collectors of the push service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spasi_push",
		Name:      "operations_total",
		Help:      "Subscribe and unsubscribe calls by outcome.",
	}, []string{"op", "outcome"})

	Upserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spasi_push",
		Name:      "subscriber_upserts_total",
		Help:      "Subscriber record writes by result.",
	}, []string{"result"})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spasi_push",
		Name:      "deliveries_total",
		Help:      "Web push deliveries by result.",
	}, []string{"result"})

	Managers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "spasi_push",
		Name:      "managers",
		Help:      "Installations with a live subscription manager.",
	})
)

func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
