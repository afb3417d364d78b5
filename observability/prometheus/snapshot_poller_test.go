package prometheus

import (
	"context"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Swind/go-worklet-runner/core"
)

type threadStub struct {
	stats core.ThreadStats
}

func (s threadStub) Stats() core.ThreadStats { return s.stats }

type schedulerStub struct {
	stats core.SchedulerStats
}

func (s schedulerStub) Stats() core.SchedulerStats { return s.stats }

func TestSnapshotPoller_CollectsThreadAndSchedulerStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("worklet", reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddThread("ui", threadStub{stats: core.ThreadStats{
		Name:     "ui",
		Pending:  3,
		Running:  1,
		Executed: 40,
		Rejected: 2,
		Closed:   true,
	}})
	poller.AddScheduler("main", schedulerStub{stats: core.SchedulerStats{
		PendingUI:        4,
		ExecutedUI:       10,
		ScheduledJS:      6,
		Panics:           1,
		Runtime:          "ui",
		RuntimeDestroyed: true,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		pending := testutil.ToFloat64(poller.threadPending.WithLabelValues("ui"))
		uiPending := testutil.ToFloat64(poller.uiPending.WithLabelValues("main", "ui"))
		return pending == 3 && uiPending == 4
	})

	if got := testutil.ToFloat64(poller.threadClosed.WithLabelValues("ui")); got != 1 {
		t.Fatalf("thread closed gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.threadExecuted.WithLabelValues("ui")); got != 40 {
		t.Fatalf("thread executed gauge = %v, want 40", got)
	}
	if got := testutil.ToFloat64(poller.jsScheduled.WithLabelValues("main", "ui")); got != 6 {
		t.Fatalf("js scheduled gauge = %v, want 6", got)
	}
	if got := testutil.ToFloat64(poller.runtimeDestroyed.WithLabelValues("main", "ui")); got != 1 {
		t.Fatalf("runtime destroyed gauge = %v, want 1", got)
	}
}

func TestSnapshotPoller_PollNowWithRealScheduler(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("", reg, time.Hour)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	sched := core.NewScheduler(&core.Config{Logger: core.NewNoOpLogger()})
	sched.ScheduleOnUI(func() {})
	sched.ScheduleOnUI(func() {})
	sched.TriggerUI()

	poller.AddScheduler("main", sched)
	poller.PollNow()

	if got := testutil.ToFloat64(poller.uiPending.WithLabelValues("main", "none")); got != 1 {
		t.Fatalf("ui pending gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.uiExecuted.WithLabelValues("main", "none")); got != 1 {
		t.Fatalf("ui executed gauge = %v, want 1", got)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("worklet", reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
