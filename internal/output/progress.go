package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/chatstress/internal/metrics"
)

// LiveSource supplies mid-run counters.
type LiveSource interface {
	Live() metrics.LiveStats
}

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	source   LiveSource
	inFlight func() int64
	interval time.Duration
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
	start    time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given
// interval. inFlight may be nil.
func NewProgressReporter(source LiveSource, inFlight func() int64, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressReporter{
		source:   source,
		inFlight: inFlight,
		interval: interval,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
		start:    time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
// A reporter runs at most once.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running or stopped
	}
	p.ticker = time.NewTicker(p.interval)
	go p.run(p.ticker)
}

// Stop halts progress updates and terminates the progress line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 2) {
		close(p.done)
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run(ticker *time.Ticker) {
	defer close(p.finished)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fmt.Fprint(p.writer, p.line(time.Since(p.start)))
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line(elapsed time.Duration) string {
	live := p.source.Live()
	rate := 0.0
	if live.Total > 0 {
		rate = float64(live.Success) / float64(live.Total) * 100
	}
	qps := 0.0
	if elapsed > 0 {
		qps = float64(live.Total) / elapsed.Seconds()
	}
	line := fmt.Sprintf("\rRequests: %d | Success: %.1f%% | Failed: %d | Timeouts: %d | QPS: %.1f | P99~ %s",
		live.Total, rate, live.Failed, live.Timeouts, qps, live.P99Latency.Round(time.Millisecond))
	if p.inFlight != nil {
		line += fmt.Sprintf(" | In-flight: %d", p.inFlight())
	}
	return line
}
