// Package metrics aggregates per-request outcomes into run statistics.
//
// Workers report each finished request to a shared [Aggregator]:
//
//	agg := metrics.NewAggregator()
//	agg.Record(metrics.Outcome{RequestID: 1, Success: true, Latency: 120 * time.Millisecond})
//	stats := agg.Snapshot(elapsed)
//
// # Statistics
//
// [Aggregator.Snapshot] sorts a copy of every latency sample and reports
// exact order statistics: the p-th percentile is the sample at index
// floor(p*n) of the sorted list. Counters always satisfy
// Total == Success + Failed and Failed == Timeouts + OtherErrors.
//
// [Aggregator.Live] is meant for progress displays. It reads counters and an
// HDR histogram estimate of the percentiles and never sorts.
//
// # Thread Safety
//
// Record, Snapshot and Live are safe for concurrent use. A single mutex
// guards every counter so no reader observes a partially applied record.
package metrics
