package core

// =============================================================================
// UI Job and JS Reply
// =============================================================================

// ScheduleOnUIAndReply runs job on the UI thread and, once it returns without
// panicking, schedules reply on the JS thread. If job panics the panic is
// reported like any other UI job panic and reply does not run.
func (s *Scheduler) ScheduleOnUIAndReply(job Job, reply Job) {
	if reply == nil {
		s.ScheduleOnUI(job)
		return
	}

	s.ScheduleOnUI(func() {
		// A panic unwinds past ScheduleOnJS, so the reply is only posted on success.
		job()
		s.ScheduleOnJS(reply)
	})
}

// ScheduleOnUIWithResult runs task on the UI thread and passes its result to
// reply on the JS thread.
//
// Execution guarantee (Happens-Before):
// - The task ALWAYS completes before the reply starts
// - The reply ALWAYS sees the final values written by the task
//
// Example:
//
//	ScheduleOnUIWithResult(sched,
//	    func() (float64, error) {
//	        return readAnimatedValue(), nil
//	    },
//	    func(v float64, err error) {
//	        fmt.Println("value on JS thread:", v)
//	    },
//	)
func ScheduleOnUIWithResult[T any](s *Scheduler, task func() (T, error), reply func(T, error)) {
	var result T
	var err error

	s.ScheduleOnUIAndReply(
		func() { result, err = task() },
		func() { reply(result, err) },
	)
}
