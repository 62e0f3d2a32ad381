package metrics

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Aggregator accumulates request outcomes from concurrent workers.
type Aggregator struct {
	mu        sync.Mutex
	total     int64
	successes int64
	failures  int64
	timeouts  int64
	other     int64
	sum       time.Duration
	samples   []time.Duration
	hist      *hdrhistogram.Histogram
}

// RunStatistics is the final summary of a run.
type RunStatistics struct {
	Total       int64         `json:"totalRequests"`
	Success     int64         `json:"successfulRequests"`
	Failed      int64         `json:"failedRequests"`
	Timeouts    int64         `json:"timeoutErrors"`
	OtherErrors int64         `json:"otherErrors"`
	SuccessRate float64       `json:"successRate"`
	Throughput  float64       `json:"throughput"`
	AvgLatency  time.Duration `json:"-"`
	MinLatency  time.Duration `json:"-"`
	MaxLatency  time.Duration `json:"-"`
	P50Latency  time.Duration `json:"-"`
	P90Latency  time.Duration `json:"-"`
	P95Latency  time.Duration `json:"-"`
	P99Latency  time.Duration `json:"-"`
	Elapsed     time.Duration `json:"-"`

	// JSON-friendly millisecond fields.
	AvgLatencyMs float64 `json:"avgResponseTime"`
	MinLatencyMs float64 `json:"minResponseTime"`
	MaxLatencyMs float64 `json:"maxResponseTime"`
	P50LatencyMs float64 `json:"p50ResponseTime"`
	P90LatencyMs float64 `json:"p90ResponseTime"`
	P95LatencyMs float64 `json:"p95ResponseTime"`
	P99LatencyMs float64 `json:"p99ResponseTime"`
	ElapsedMs    float64 `json:"totalTime"`
}

// LiveStats is a cheap mid-run view. Percentiles are histogram estimates.
type LiveStats struct {
	Total       int64
	Success     int64
	Failed      int64
	Timeouts    int64
	MeanLatency time.Duration
	P50Latency  time.Duration
	P99Latency  time.Duration
}

func NewAggregator() *Aggregator {
	// Track latencies from 1µs up to 10 minutes with 3 significant figures.
	return &Aggregator{hist: hdrhistogram.New(1, 600_000_000, 3)}
}

// Record adds one outcome. All counters and the sample move together.
func (a *Aggregator) Record(o Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.samples = append(a.samples, o.Latency)
	a.sum += o.Latency

	us := o.Latency.Microseconds()
	if us < a.hist.LowestTrackableValue() {
		us = a.hist.LowestTrackableValue()
	}
	if us > a.hist.HighestTrackableValue() {
		us = a.hist.HighestTrackableValue()
	}
	_ = a.hist.RecordValue(us)

	if o.Success {
		a.successes++
		return
	}
	a.failures++
	if o.Kind == FailureTimeout {
		a.timeouts++
	} else {
		a.other++
	}
}

// Snapshot computes exact statistics over every recorded sample. elapsed is
// the run's wall-clock duration and only affects throughput. Snapshot does not
// modify the aggregator.
func (a *Aggregator) Snapshot(elapsed time.Duration) RunStatistics {
	a.mu.Lock()
	stats := RunStatistics{
		Total:       a.total,
		Success:     a.successes,
		Failed:      a.failures,
		Timeouts:    a.timeouts,
		OtherErrors: a.other,
		Elapsed:     elapsed,
	}
	sorted := slices.Clone(a.samples)
	sum := a.sum
	a.mu.Unlock()

	if n := len(sorted); n > 0 {
		slices.Sort(sorted)
		stats.AvgLatency = sum / time.Duration(n)
		stats.MinLatency = sorted[0]
		stats.MaxLatency = sorted[n-1]
		stats.P50Latency = Percentile(sorted, 0.50)
		stats.P90Latency = Percentile(sorted, 0.90)
		stats.P95Latency = Percentile(sorted, 0.95)
		stats.P99Latency = Percentile(sorted, 0.99)
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Success) / float64(stats.Total) * 100
		if elapsed > 0 {
			stats.Throughput = float64(stats.Total) / elapsed.Seconds()
		}
	}

	stats.AvgLatencyMs = durationMs(stats.AvgLatency)
	stats.MinLatencyMs = durationMs(stats.MinLatency)
	stats.MaxLatencyMs = durationMs(stats.MaxLatency)
	stats.P50LatencyMs = durationMs(stats.P50Latency)
	stats.P90LatencyMs = durationMs(stats.P90Latency)
	stats.P95LatencyMs = durationMs(stats.P95Latency)
	stats.P99LatencyMs = durationMs(stats.P99Latency)
	stats.ElapsedMs = durationMs(elapsed)
	return stats
}

// Live returns counters and estimated percentiles without sorting samples.
func (a *Aggregator) Live() LiveStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	live := LiveStats{
		Total:    a.total,
		Success:  a.successes,
		Failed:   a.failures,
		Timeouts: a.timeouts,
	}
	if a.total > 0 {
		live.MeanLatency = a.sum / time.Duration(a.total)
		live.P50Latency = time.Duration(a.hist.ValueAtQuantile(50)) * time.Microsecond
		live.P99Latency = time.Duration(a.hist.ValueAtQuantile(99)) * time.Microsecond
	}
	return live
}

// Percentile returns sorted[floor(p*n)], clamped to the last element.
// sorted must be in ascending order; an empty slice yields 0.
func Percentile(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Floor(p * float64(n)))
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}
