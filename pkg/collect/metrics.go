package collect

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var wsConnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "feedeater_collect_ws_connects_total",
	Help: "counter of successful WebSocket connects across all collectors",
})

var wsFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "feedeater_collect_ws_frames_total",
	Help: "counter of WebSocket frames received across all collectors",
})

var httpRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "feedeater_collect_http_retries_total",
	Help: "counter of retried REST requests across all collectors",
})

var rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "feedeater_collect_rate_limited_total",
	Help: "counter of HTTP 429 responses observed across all collectors",
})
