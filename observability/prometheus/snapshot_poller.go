package prometheus

import (
	"context"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/Swind/go-worklet-runner/core"
)

// ThreadSnapshotProvider provides current thread stats snapshots.
type ThreadSnapshotProvider interface {
	Stats() core.ThreadStats
}

// SchedulerSnapshotProvider provides current scheduler stats snapshots.
type SchedulerSnapshotProvider interface {
	Stats() core.SchedulerStats
}

// SnapshotPoller periodically exports thread and scheduler Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	threadsMu sync.RWMutex
	threads   map[string]ThreadSnapshotProvider

	schedulersMu sync.RWMutex
	schedulers   map[string]SchedulerSnapshotProvider

	threadPending  *prom.GaugeVec
	threadRunning  *prom.GaugeVec
	threadExecuted *prom.GaugeVec
	threadRejected *prom.GaugeVec
	threadClosed   *prom.GaugeVec

	uiPending        *prom.GaugeVec
	uiExecuted       *prom.GaugeVec
	jsScheduled      *prom.GaugeVec
	schedulerPanics  *prom.GaugeVec
	runtimeDestroyed *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	threadGauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{Namespace: namespace, Name: name, Help: help}, []string{"thread"})
	}
	schedulerGauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{Namespace: namespace, Name: name, Help: help}, []string{"scheduler", "runtime"})
	}

	p := &SnapshotPoller{
		interval:   interval,
		threads:    make(map[string]ThreadSnapshotProvider),
		schedulers: make(map[string]SchedulerSnapshotProvider),

		threadPending:  threadGauge("thread_pending", "Number of jobs waiting per thread."),
		threadRunning:  threadGauge("thread_running", "Number of running jobs per thread."),
		threadExecuted: threadGauge("thread_executed_total", "Thread executed job count snapshot."),
		threadRejected: threadGauge("thread_rejected_total", "Thread rejected job count snapshot."),
		threadClosed:   threadGauge("thread_closed", "Thread closed state (1=closed, 0=open)."),

		uiPending:        schedulerGauge("scheduler_ui_pending", "Jobs waiting in the UI queue."),
		uiExecuted:       schedulerGauge("scheduler_ui_executed_total", "UI jobs executed, snapshot."),
		jsScheduled:      schedulerGauge("scheduler_js_scheduled_total", "Jobs handed to the JS invoker, snapshot."),
		schedulerPanics:  schedulerGauge("scheduler_panics_total", "UI jobs that panicked, snapshot."),
		runtimeDestroyed: schedulerGauge("runtime_destroyed", "Worklet runtime destroyed state (1=destroyed, 0=alive)."),
	}

	var err error
	for _, g := range []**prom.GaugeVec{
		&p.threadPending, &p.threadRunning, &p.threadExecuted, &p.threadRejected, &p.threadClosed,
		&p.uiPending, &p.uiExecuted, &p.jsScheduled, &p.schedulerPanics, &p.runtimeDestroyed,
	} {
		if *g, err = registerCollector(reg, *g); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// AddThread adds or replaces a thread snapshot provider by name.
func (p *SnapshotPoller) AddThread(name string, provider ThreadSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "thread")
	p.threadsMu.Lock()
	p.threads[name] = provider
	p.threadsMu.Unlock()
}

// AddScheduler adds or replaces a scheduler snapshot provider by name.
func (p *SnapshotPoller) AddScheduler(name string, provider SchedulerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "scheduler")
	p.schedulersMu.Lock()
	p.schedulers[name] = provider
	p.schedulersMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

// PollNow collects one snapshot synchronously.
func (p *SnapshotPoller) PollNow() {
	if p == nil {
		return
	}
	p.collectOnce()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.threadsMu.RLock()
	for name, provider := range p.threads {
		stats := provider.Stats()
		p.threadPending.WithLabelValues(name).Set(float64(stats.Pending))
		p.threadRunning.WithLabelValues(name).Set(float64(stats.Running))
		p.threadExecuted.WithLabelValues(name).Set(float64(stats.Executed))
		p.threadRejected.WithLabelValues(name).Set(float64(stats.Rejected))
		p.threadClosed.WithLabelValues(name).Set(boolGauge(stats.Closed))
	}
	p.threadsMu.RUnlock()

	p.schedulersMu.RLock()
	for name, provider := range p.schedulers {
		stats := provider.Stats()
		runtime := normalizeLabel(stats.Runtime, "none")
		p.uiPending.WithLabelValues(name, runtime).Set(float64(stats.PendingUI))
		p.uiExecuted.WithLabelValues(name, runtime).Set(float64(stats.ExecutedUI))
		p.jsScheduled.WithLabelValues(name, runtime).Set(float64(stats.ScheduledJS))
		p.schedulerPanics.WithLabelValues(name, runtime).Set(float64(stats.Panics))
		p.runtimeDestroyed.WithLabelValues(name, runtime).Set(boolGauge(stats.RuntimeDestroyed))
	}
	p.schedulersMu.RUnlock()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
