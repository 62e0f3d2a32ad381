package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/chatstress/internal/gate"
	"github.com/torosent/chatstress/internal/metrics"
)

// Result captures one run.
type Result struct {
	Mode        Mode
	Outcomes    []metrics.Outcome // completion order
	Start       time.Time
	End         time.Time
	Elapsed     time.Duration
	Dispatched  int64
	Peak        int  // highest number of requests executing at once
	Interrupted bool // admission stopped early because ctx ended
}

// Runner schedules requests through an Executor.
type Runner struct {
	opt    Options
	mode   Mode
	gate   *gate.Gate
	logger *zap.Logger

	inFlight   atomic.Int64
	peak       atomic.Int64
	dispatched atomic.Int64

	mu       sync.Mutex
	outcomes []metrics.Outcome
}

// New validates opt and selects the run's mode.
func New(opt Options) (*Runner, error) {
	if err := opt.validate(); err != nil {
		return nil, err
	}
	logger := opt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		opt:    opt,
		mode:   opt.Mode(),
		gate:   gate.New(opt.Concurrency),
		logger: logger,
	}, nil
}

// Mode reports the strategy selected in New.
func (r *Runner) Mode() Mode {
	return r.mode
}

// InFlight reports how many requests are executing right now.
func (r *Runner) InFlight() int {
	return int(r.inFlight.Load())
}

// Dispatched reports how many request ids have been handed to the executor.
func (r *Runner) Dispatched() int64 {
	return r.dispatched.Load()
}

// Run executes the load test. Cancelling ctx stops admission of new requests;
// requests already dispatched finish under their own timeouts and Run returns
// once they have drained. A Runner runs once.
func (r *Runner) Run(ctx context.Context) Result {
	// Dispatched requests outlive admission.
	execCtx := context.WithoutCancel(ctx)

	start := time.Now()
	r.logger.Info("load test started",
		zap.Stringer("mode", r.mode),
		zap.Int("concurrency", r.opt.Concurrency),
		zap.Int("requests", r.opt.TotalRequests),
		zap.Duration("duration", r.opt.Duration),
		zap.Duration("interval", r.opt.Interval),
		zap.Float64("rate", r.opt.Rate),
	)

	switch r.mode {
	case ModeDurationBound:
		r.runDuration(ctx, execCtx, start)
	case ModeRatePaced:
		r.runRate(ctx, execCtx, start)
	default:
		r.runConcurrency(ctx, execCtx)
	}

	end := time.Now()
	r.mu.Lock()
	outcomes := r.outcomes
	r.outcomes = nil
	r.mu.Unlock()

	res := Result{
		Mode:        r.mode,
		Outcomes:    outcomes,
		Start:       start,
		End:         end,
		Elapsed:     end.Sub(start),
		Dispatched:  r.dispatched.Load(),
		Peak:        int(r.peak.Load()),
		Interrupted: ctx.Err() != nil,
	}
	r.logger.Info("load test finished",
		zap.Stringer("mode", r.mode),
		zap.Int64("dispatched", res.Dispatched),
		zap.Int("completed", len(res.Outcomes)),
		zap.Duration("elapsed", res.Elapsed),
		zap.Bool("interrupted", res.Interrupted),
	)
	return res
}

// runConcurrency admits ids 1..N through the gate in order. Each admitted
// request holds its slot through the interval pause and its execution.
func (r *Runner) runConcurrency(ctx, execCtx context.Context) {
	var wg sync.WaitGroup
	for id := int64(1); id <= int64(r.opt.TotalRequests); id++ {
		if err := r.gate.Acquire(ctx); err != nil {
			break
		}
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			defer r.gate.Release()
			if !sleepCtx(ctx, r.opt.Interval) {
				return
			}
			r.execute(execCtx, id)
		}(id)
	}
	wg.Wait()
}

// runRate dispatches id i at start + (i-1)/rate seconds. Rate mode is not
// gated, so slow responses can push in-flight requests past the concurrency
// setting.
func (r *Runner) runRate(ctx, execCtx context.Context, start time.Time) {
	spacing := float64(time.Second) / r.opt.Rate
	var wg sync.WaitGroup
	for id := int64(1); id <= int64(r.opt.TotalRequests); id++ {
		target := start.Add(time.Duration(float64(id-1) * spacing))
		if !sleepCtx(ctx, time.Until(target)) {
			break
		}
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			r.execute(execCtx, id)
		}(id)
	}
	wg.Wait()
}

// runDuration admits requests until the deadline, launching each detached
// with its own slot, then drains the gate.
func (r *Runner) runDuration(ctx, execCtx context.Context, start time.Time) {
	deadline := start.Add(r.opt.Duration)
	admitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var next int64
	for time.Now().Before(deadline) {
		if err := r.gate.Acquire(admitCtx); err != nil {
			break
		}
		if !time.Now().Before(deadline) {
			r.gate.Release()
			break
		}
		next++
		go func(id int64) {
			defer r.gate.Release()
			r.execute(execCtx, id)
		}(next)
		if !sleepCtx(admitCtx, r.opt.Interval) {
			break
		}
	}

	// Every detached request holds a slot until it returns.
	_ = r.gate.Drain(context.Background())
}

func (r *Runner) execute(ctx context.Context, id int64) {
	r.dispatched.Add(1)
	n := r.inFlight.Add(1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}

	out := r.opt.Executor.Execute(ctx, id)
	r.inFlight.Add(-1)

	r.mu.Lock()
	r.outcomes = append(r.outcomes, out)
	r.mu.Unlock()
}

// sleepCtx waits for d and reports whether ctx is still live afterwards.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
