package core

import (
	"sync"
	"time"
)

// recordingMetrics captures Metrics calls for assertions.
type recordingMetrics struct {
	mu        sync.Mutex
	durations map[string]int
	panics    map[string]int
	rejected  map[string]int
	depth     map[string]int
	worklet   map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		durations: map[string]int{},
		panics:    map[string]int{},
		rejected:  map[string]int{},
		depth:     map[string]int{},
		worklet:   map[string]int{},
	}
}

func (m *recordingMetrics) RecordJobDuration(queue string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations[queue]++
}

func (m *recordingMetrics) RecordJobPanic(queue string, _ any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics[queue]++
}

func (m *recordingMetrics) RecordQueueDepth(queue string, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depth[queue] = depth
}

func (m *recordingMetrics) RecordJobRejected(queue string, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[queue]++
}

func (m *recordingMetrics) RecordWorkletError(runtime string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.worklet[runtime]++
}

func (m *recordingMetrics) count(kind map[string]int, key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return kind[key]
}

// recordingPanicHandler captures recovered panics.
type recordingPanicHandler struct {
	mu     sync.Mutex
	values []any
}

func (h *recordingPanicHandler) HandlePanic(_ string, panicInfo any, _ []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.values = append(h.values, panicInfo)
}

func (h *recordingPanicHandler) recovered() []any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]any(nil), h.values...)
}

func quietConfig() *Config {
	return &Config{Logger: NewNoOpLogger()}
}

// inlineInvoker runs jobs synchronously on the caller.
var inlineInvoker = CallInvokerFunc(func(job Job) { job() })
