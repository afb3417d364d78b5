package prometheus

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/Swind/go-worklet-runner/core"
)

// DefaultNamespace prefixes every collector when no namespace is given.
const DefaultNamespace = "worklet"

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	jobDurationSeconds *prom.HistogramVec
	jobPanicTotal      *prom.CounterVec
	jobRejectedTotal   *prom.CounterVec
	queueDepth         *prom.GaugeVec
	workletErrorTotal  *prom.CounterVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
// Collectors already registered on reg are reused.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		// Jobs are expected to fit in a frame; resolve down to 100µs.
		buckets = prom.ExponentialBuckets(0.0001, 4, 8)
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Job execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"queue"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "job_panic_total",
		Help:      "Total number of job panics.",
	}, []string{"queue"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "job_rejected_total",
		Help:      "Total number of rejected jobs.",
	}, []string{"queue", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current queue depth.",
	}, []string{"queue"})
	workletErrorVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "worklet_error_total",
		Help:      "Total number of errors raised by worklets.",
	}, []string{"runtime"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if workletErrorVec, err = registerCollector(reg, workletErrorVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		jobDurationSeconds: durationVec,
		jobPanicTotal:      panicVec,
		jobRejectedTotal:   rejectedVec,
		queueDepth:         queueDepthVec,
		workletErrorTotal:  workletErrorVec,
	}, nil
}

// RecordJobDuration records job execution duration.
func (m *MetricsExporter) RecordJobDuration(queue string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDurationSeconds.WithLabelValues(normalizeLabel(queue, "unknown")).Observe(duration.Seconds())
}

// RecordJobPanic records job panic events.
func (m *MetricsExporter) RecordJobPanic(queue string, panicInfo any) {
	if m == nil {
		return
	}
	m.jobPanicTotal.WithLabelValues(normalizeLabel(queue, "unknown")).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(queue string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(queue, "unknown")).Set(float64(depth))
}

// RecordJobRejected records job rejection events.
func (m *MetricsExporter) RecordJobRejected(queue string, reason string) {
	if m == nil {
		return
	}
	m.jobRejectedTotal.WithLabelValues(normalizeLabel(queue, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordWorkletError records an error raised by a worklet runtime.
func (m *MetricsExporter) RecordWorkletError(runtime string) {
	if m == nil {
		return
	}
	m.workletErrorTotal.WithLabelValues(normalizeLabel(runtime, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
