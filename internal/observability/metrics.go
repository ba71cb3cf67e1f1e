package observability

import (
	"strconv"
	"sync"
)

// Metrics provides basic in-memory counters for commands and status requests.
type Metrics struct {
	mu           sync.Mutex
	commandCount map[string]int64
	requestCount map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		commandCount: make(map[string]int64),
		requestCount: make(map[string]int64),
	}
}

// RecordCommand increments counters for dispatched chat commands.
func (m *Metrics) RecordCommand(name string, ok bool) {
	if m == nil {
		return
	}
	key := name + "|" + strconv.FormatBool(ok)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commandCount[key]++
}

// RecordRequest increments counters for status API requests.
func (m *Metrics) RecordRequest(path, method string, status int) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// CommandCounts returns a copy of the command counters.
func (m *Metrics) CommandCounts() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.commandCount))
	for k, v := range m.commandCount {
		out[k] = v
	}
	return out
}
