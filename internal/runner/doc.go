// Package runner is the load scheduler.
//
// A [Runner] drives an [Executor] in one of three modes, chosen once from
// [Options]:
//   - [ModeConcurrency]: ids 1..TotalRequests, at most Concurrency in flight.
//     Each request holds its slot through the Interval pause.
//   - [ModeRatePaced]: id i is dispatched at start + (i-1)/Rate seconds,
//     without admission control.
//   - [ModeDurationBound]: requests are admitted through the gate until
//     Duration elapses, then the run waits for every in-flight request.
//
// Basic usage:
//
//	r, err := runner.New(runner.Options{
//		Concurrency:   10,
//		TotalRequests: 100,
//		Executor:      exec,
//	})
//	if err != nil {
//		return err
//	}
//	result := r.Run(ctx)
//
// Cancelling the context passed to Run stops admission. Requests already in
// flight finish under their own timeouts before Run returns.
package runner
