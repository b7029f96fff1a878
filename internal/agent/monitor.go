package agent

import (
	"sync"

	"github.com/tlongwell-block/goose/pkg/models"
)

// ToolMonitor guards against a provider looping on the same tool call. It
// tracks, per tool, the last call seen and how many times in a row it has
// repeated; once the count exceeds the configured cap the call is
// rejected.
type ToolMonitor struct {
	mu             sync.Mutex
	maxRepetitions int // zero disables the cap
	lastCalls      map[string]models.ToolCall
	counts         map[string]int
}

// NewToolMonitor creates a monitor. A nil max disables rejection while
// still tracking stats.
func NewToolMonitor(maxRepetitions *int) *ToolMonitor {
	m := &ToolMonitor{
		lastCalls: make(map[string]models.ToolCall),
		counts:    make(map[string]int),
	}
	if maxRepetitions != nil {
		m.maxRepetitions = *maxRepetitions
	}
	return m
}

// Check records the call and reports whether it is allowed to proceed.
func (m *ToolMonitor) Check(call models.ToolCall) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.lastCalls[call.Name]; ok && last.Equal(call) {
		m.counts[call.Name]++
	} else {
		m.lastCalls[call.Name] = call
		m.counts[call.Name] = 1
	}

	if m.maxRepetitions <= 0 {
		return true
	}
	return m.counts[call.Name] <= m.maxRepetitions
}

// Stats returns the current consecutive-repeat count per tool.
func (m *ToolMonitor) Stats() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.counts))
	for name, count := range m.counts {
		out[name] = count
	}
	return out
}

// Reset clears all tracked calls and counters.
func (m *ToolMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCalls = make(map[string]models.ToolCall)
	m.counts = make(map[string]int)
}
