// Package metrics collects relay counters with atomics, the same
// shape internal/metrics used for stratum share/connection counters,
// generalized to packet relay and retry/backoff bookkeeping.
package metrics

import (
	"sync/atomic"
	"time"
)

// Collector holds all relay metrics.
type Collector struct {
	UpConnected    atomic.Bool
	ClientAttached atomic.Bool

	PacketsToClient   atomic.Uint64
	PacketsToServer   atomic.Uint64
	PacketsDropped    atomic.Uint64
	MalformedFrames   atomic.Uint64
	UpstreamRetries   atomic.Uint64
	BootstrapRequests atomic.Uint64
	BootstrapErrors   atomic.Uint64

	LastActivityUnix atomic.Int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

func (m *Collector) SetUpstreamConnected(connected bool) {
	m.UpConnected.Store(connected)
}

func (m *Collector) IsUpstreamConnected() bool {
	return m.UpConnected.Load()
}

func (m *Collector) SetClientAttached(attached bool) {
	m.ClientAttached.Store(attached)
}

func (m *Collector) IsClientAttached() bool {
	return m.ClientAttached.Load()
}

func (m *Collector) IncrementPacketsToClient() {
	m.PacketsToClient.Add(1)
	m.touch()
}

func (m *Collector) IncrementPacketsToServer() {
	m.PacketsToServer.Add(1)
	m.touch()
}

func (m *Collector) IncrementPacketsDropped() {
	m.PacketsDropped.Add(1)
}

func (m *Collector) IncrementMalformedFrames() {
	m.MalformedFrames.Add(1)
}

func (m *Collector) IncrementUpstreamRetries() {
	m.UpstreamRetries.Add(1)
}

func (m *Collector) IncrementBootstrapRequests() {
	m.BootstrapRequests.Add(1)
}

func (m *Collector) IncrementBootstrapErrors() {
	m.BootstrapErrors.Add(1)
}

func (m *Collector) touch() {
	m.LastActivityUnix.Store(time.Now().Unix())
}

func (m *Collector) LastActivity() time.Time {
	return time.Unix(m.LastActivityUnix.Load(), 0)
}

// Snapshot is a point-in-time view of the collector, suitable for
// JSON serving from a status endpoint.
type Snapshot struct {
	UpstreamConnected bool      `json:"upstream_connected"`
	ClientAttached    bool      `json:"client_attached"`
	PacketsToClient   uint64    `json:"packets_to_client"`
	PacketsToServer   uint64    `json:"packets_to_server"`
	PacketsDropped    uint64    `json:"packets_dropped"`
	MalformedFrames   uint64    `json:"malformed_frames"`
	UpstreamRetries   uint64    `json:"upstream_retries"`
	BootstrapRequests uint64    `json:"bootstrap_requests"`
	BootstrapErrors   uint64    `json:"bootstrap_errors"`
	LastActivity      time.Time `json:"last_activity"`
}

func (m *Collector) Snapshot() Snapshot {
	return Snapshot{
		UpstreamConnected: m.IsUpstreamConnected(),
		ClientAttached:    m.IsClientAttached(),
		PacketsToClient:   m.PacketsToClient.Load(),
		PacketsToServer:   m.PacketsToServer.Load(),
		PacketsDropped:    m.PacketsDropped.Load(),
		MalformedFrames:   m.MalformedFrames.Load(),
		UpstreamRetries:   m.UpstreamRetries.Load(),
		BootstrapRequests: m.BootstrapRequests.Load(),
		BootstrapErrors:   m.BootstrapErrors.Load(),
		LastActivity:      m.LastActivity(),
	}
}

// Reset resets all metrics to zero values.
func (m *Collector) Reset() {
	m.UpConnected.Store(false)
	m.ClientAttached.Store(false)
	m.PacketsToClient.Store(0)
	m.PacketsToServer.Store(0)
	m.PacketsDropped.Store(0)
	m.MalformedFrames.Store(0)
	m.UpstreamRetries.Store(0)
	m.BootstrapRequests.Store(0)
	m.BootstrapErrors.Store(0)
	m.LastActivityUnix.Store(0)
}
