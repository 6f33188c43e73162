package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var publishesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feedeater_bus_publishes_total",
	Help: "counter of broker publishes by event token",
}, []string{"event"})

var publishFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feedeater_bus_publish_failures_total",
	Help: "counter of failed broker publishes by event token",
}, []string{"event"})

var reconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "feedeater_bus_reconnects_total",
	Help: "counter of broker connection re-establishments",
})

var droppedDeliveriesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "feedeater_bus_dropped_deliveries_total",
	Help: "counter of subscriber deliveries dropped due to slow consumption",
})

var logPublishFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "feedeater_bus_log_publish_failures_total",
	Help: "counter of swallowed log stream publish failures",
})
