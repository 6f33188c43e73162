package history

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	insertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedeater_history_inserts_total",
		Help: "Bus envelopes persisted into history.",
	})
	duplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedeater_history_duplicates_total",
		Help: "Envelopes skipped because their message id was already persisted.",
	})
	insertFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedeater_history_insert_failures_total",
		Help: "Envelope persistence attempts that failed.",
	})
	decodeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedeater_history_decode_failures_total",
		Help: "Bus deliveries that could not be decoded as MessageCreated.",
	})
)
