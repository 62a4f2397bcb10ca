package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollectors holds all prometheus collectors, each bound
// directly to a Collector accessor via NewCounterFunc/NewGaugeFunc so
// there is no separate value to keep in sync.
type PrometheusCollectors struct {
	PacketsToClient   prometheus.CounterFunc
	PacketsToServer   prometheus.CounterFunc
	PacketsDropped    prometheus.CounterFunc
	MalformedFrames   prometheus.CounterFunc
	UpstreamRetries   prometheus.CounterFunc
	BootstrapRequests prometheus.CounterFunc
	BootstrapErrors   prometheus.CounterFunc
	ClientAttached    prometheus.GaugeFunc
	UpConnected       prometheus.GaugeFunc
}

func register(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		return c
	}
	return c
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// InitPrometheus registers a CounterFunc/GaugeFunc per Collector field
// under namespace, so the values always read directly off the live
// atomics with no separate sync step.
func InitPrometheus(namespace string, c *Collector) *PrometheusCollectors {
	pc := &PrometheusCollectors{}

	pc.PacketsToClient = register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_to_client_total",
		Help:      "Total packets relayed to the game client",
	}, func() float64 { return float64(c.PacketsToClient.Load()) })).(prometheus.CounterFunc)

	pc.PacketsToServer = register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_to_server_total",
		Help:      "Total packets relayed to the upstream game server",
	}, func() float64 { return float64(c.PacketsToServer.Load()) })).(prometheus.CounterFunc)

	pc.PacketsDropped = register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_dropped_total",
		Help:      "Total packets not delivered because the destination peer was absent or the send failed",
	}, func() float64 { return float64(c.PacketsDropped.Load()) })).(prometheus.CounterFunc)

	pc.MalformedFrames = register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "malformed_frames_total",
		Help:      "Total frames rejected by the packet classifier",
	}, func() float64 { return float64(c.MalformedFrames.Load()) })).(prometheus.CounterFunc)

	pc.UpstreamRetries = register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_retries_total",
		Help:      "Total upstream connect retry attempts",
	}, func() float64 { return float64(c.UpstreamRetries.Load()) })).(prometheus.CounterFunc)

	pc.BootstrapRequests = register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bootstrap_requests_total",
		Help:      "Total HTTPS bootstrap requests served",
	}, func() float64 { return float64(c.BootstrapRequests.Load()) })).(prometheus.CounterFunc)

	pc.BootstrapErrors = register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bootstrap_errors_total",
		Help:      "Total HTTPS bootstrap/reverse-proxy errors",
	}, func() float64 { return float64(c.BootstrapErrors.Load()) })).(prometheus.CounterFunc)

	pc.ClientAttached = register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "client_attached",
		Help:      "Whether a game client is currently attached (1) or not (0)",
	}, func() float64 { return boolToFloat(c.IsClientAttached()) })).(prometheus.GaugeFunc)

	pc.UpConnected = register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "upstream_connected",
		Help:      "Whether the outbound upstream peer is currently connected (1) or not (0)",
	}, func() float64 { return boolToFloat(c.IsUpstreamConnected()) })).(prometheus.GaugeFunc)

	return pc
}
