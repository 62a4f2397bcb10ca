// Package metrics is a minimal request/error counter for the HTTPS
// bootstrap listener, kept separate from internal/metrics.Collector
// because it has no Prometheus registration of its own — it backs the
// /healthz handler rather than being scraped.
package metrics

import (
	"sync/atomic"
	"time"
)

type Metrics struct {
	requestsTotal int64
	errorsTotal   int64
	lastRequest   int64
}

var Default = New()

func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncrementRequests() {
	atomic.AddInt64(&m.requestsTotal, 1)
	atomic.StoreInt64(&m.lastRequest, time.Now().Unix())
}

func (m *Metrics) IncrementErrors() {
	atomic.AddInt64(&m.errorsTotal, 1)
}

func (m *Metrics) GetRequests() int64 {
	return atomic.LoadInt64(&m.requestsTotal)
}

func (m *Metrics) GetErrors() int64 {
	return atomic.LoadInt64(&m.errorsTotal)
}

func (m *Metrics) GetLastRequest() int64 {
	return atomic.LoadInt64(&m.lastRequest)
}

// Healthy reports whether the bootstrap listener has served any
// request without an error rate above 50%.
func (m *Metrics) Healthy() bool {
	reqs := m.GetRequests()
	if reqs == 0 {
		return true
	}
	return m.GetErrors()*2 <= reqs
}

func IncrementRequests() {
	Default.IncrementRequests()
}

func IncrementErrors() {
	Default.IncrementErrors()
}
