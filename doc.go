// Package workletrunner runs JavaScript worklets on a dedicated UI thread next
// to a host JavaScript runtime on its own thread.
//
// Work is never run where it is scheduled. Jobs for the UI thread go into the
// scheduler's UI queue and run one per trigger (one trigger per display frame,
// plus one wake-up per scheduled job). Jobs for the JS thread are handed to the
// JS call invoker. Each JavaScript runtime is only ever touched from its own
// thread.
//
// # Quick Start
//
//	rt, err := workletrunner.NewRuntime(workletrunner.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer rt.Close(context.Background())
//	rt.Start()
//
//	// Define a worklet on the UI runtime
//	rt.UI().EvaluateSync(ctx, "worklets.js", `
//		var w = require("worklet");
//		function onScroll(y) { w.setShared("offset", y) }
//	`)
//
//	// Call it from the JS runtime
//	rt.JS().EvaluateSync(ctx, "app.js", `require("worklet").runOnUI("onScroll", 120)`)
//
// # Key Concepts
//
// Scheduler: the two-queue dispatcher. ScheduleOnUI appends to the UI queue;
// TriggerUI pops and runs one job on the UI thread; ScheduleOnJS hands a job to
// the JS call invoker.
//
// RuntimeManager: owns one goja runtime and funnels every access through jobs
// on the runtime's thread. Worklet exceptions never escape; they go to the
// ErrorHandler.
//
// ErrorHandler: records the most recent error and reports it on the UI thread.
//
// # The worklet module
//
// Scripts load native helpers with require("worklet"): runOnJS, makeRemote,
// runOnUI, requestAnimationFrame, and makeShared/getShared/setShared for data
// visible to both runtimes.
//
// # Teardown
//
// Runtime.Close refuses new work, lets queued jobs finish (or interrupts them
// when the context ends), then stops the threads.
package workletrunner
