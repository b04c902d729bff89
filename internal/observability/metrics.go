package observability

import (
	"strconv"
	"sync"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu              sync.Mutex
	requestCount    map[string]int64
	errorCount      map[string]int64
	transitionCount map[string]int64
	sweepCount      map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:    make(map[string]int64),
		errorCount:      make(map[string]int64),
		transitionCount: make(map[string]int64),
		sweepCount:      make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordTransition counts committed ticket transitions by resulting status.
func (m *Metrics) RecordTransition(status string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionCount[status]++
}

// RecordSweep counts scheduler sweep outcomes.
func (m *Metrics) RecordSweep(kind string, escalated int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepCount[kind+"|runs"]++
	m.sweepCount[kind+"|escalated"] += int64(escalated)
}

// Snapshot copies all counters for reporting.
func (m *Metrics) Snapshot() map[string]map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]map[string]int64{
		"requests":    {},
		"errors":      {},
		"transitions": {},
		"sweeps":      {},
	}
	for k, v := range m.requestCount {
		out["requests"][k] = v
	}
	for k, v := range m.errorCount {
		out["errors"][k] = v
	}
	for k, v := range m.transitionCount {
		out["transitions"][k] = v
	}
	for k, v := range m.sweepCount {
		out["sweeps"][k] = v
	}
	return out
}
