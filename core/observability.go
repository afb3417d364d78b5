package core

import "time"

// ThreadStats represents runtime observability state for a Thread.
type ThreadStats struct {
	Name      string
	Pending   int
	Running   int
	Executed  int64
	Rejected  int64
	Panics    int64
	Closed    bool
	LastJobAt time.Time
}

// SchedulerStats represents runtime observability state for a Scheduler.
type SchedulerStats struct {
	PendingUI        int
	ExecutedUI       int64
	ScheduledJS      int64
	Panics           int64
	Runtime          string
	RuntimeDestroyed bool
}
