package threshold

import (
	"strings"
	"testing"
	"time"

	"github.com/torosent/chatstress/internal/metrics"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Threshold
		wantError bool
	}{
		{
			name:  "valid p95 latency threshold",
			input: "latency:p95 < 3000",
			want: Threshold{
				Metric:    "latency",
				Aggregate: "p95",
				Operator:  "<",
				Value:     3000,
				Raw:       "latency:p95 < 3000",
			},
		},
		{
			name:  "failure rate threshold",
			input: "failed:rate < 0.01",
			want: Threshold{
				Metric:    "failed",
				Aggregate: "rate",
				Operator:  "<",
				Value:     0.01,
				Raw:       "failed:rate < 0.01",
			},
		},
		{
			name:  "request rate without spaces",
			input: "requests:rate>5",
			want: Threshold{
				Metric:    "requests",
				Aggregate: "rate",
				Operator:  ">",
				Value:     5,
				Raw:       "requests:rate>5",
			},
		},
		{
			name:  "success rate in percent",
			input: "  success:rate >= 99  ",
			want: Threshold{
				Metric:    "success",
				Aggregate: "rate",
				Operator:  ">=",
				Value:     99,
				Raw:       "success:rate >= 99",
			},
		},
		{
			name:  "timeout count equality",
			input: "timeouts:count == 0",
			want: Threshold{
				Metric:    "timeouts",
				Aggregate: "count",
				Operator:  "==",
				Value:     0,
				Raw:       "timeouts:count == 0",
			},
		},
		{name: "empty string", input: "", wantError: true},
		{name: "missing aggregate", input: "latency < 500", wantError: true},
		{name: "unknown metric", input: "http_req_duration:p95 < 500", wantError: true},
		{name: "unsupported aggregate", input: "success:count > 5", wantError: true},
		{name: "unsupported percentile", input: "latency:p75 < 500", wantError: true},
		{name: "invalid operator", input: "latency:p95 != 500", wantError: true},
		{name: "invalid value", input: "latency:p95 < 1.2.3", wantError: true},
		{name: "negative value", input: "latency:p95 < -1", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("Parse() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseMultiple(t *testing.T) {
	tests := []struct {
		name      string
		input     []string
		wantCount int
		wantError bool
	}{
		{
			name: "multiple valid thresholds",
			input: []string{
				"latency:p95 < 3000",
				"failed:rate < 0.01",
				"requests:rate > 5",
			},
			wantCount: 3,
		},
		{
			name:      "empty slice",
			input:     []string{},
			wantCount: 0,
		},
		{
			name: "one valid, one invalid",
			input: []string{
				"latency:p95 < 3000",
				"invalid threshold",
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMultiple(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("ParseMultiple() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && len(got) != tt.wantCount {
				t.Errorf("ParseMultiple() returned %d thresholds, want %d", len(got), tt.wantCount)
			}
		})
	}
}

func TestParseMultipleReportsIndex(t *testing.T) {
	_, err := ParseMultiple([]string{"latency:p95 < 3000", "bogus"})
	if err == nil || !strings.Contains(err.Error(), "threshold[1]") {
		t.Fatalf("error = %v, want mention of threshold[1]", err)
	}
}

func sampleStats() metrics.RunStatistics {
	return metrics.RunStatistics{
		Total:        1000,
		Success:      980,
		Failed:       20,
		Timeouts:     5,
		OtherErrors:  15,
		SuccessRate:  98,
		Throughput:   100,
		AvgLatency:   100 * time.Millisecond,
		MinLatencyMs: 10,
		MaxLatencyMs: 500,
		AvgLatencyMs: 100,
		P50LatencyMs: 80,
		P90LatencyMs: 200,
		P95LatencyMs: 300,
		P99LatencyMs: 400,
		ElapsedMs:    10_000,
	}
}

func TestEvaluator(t *testing.T) {
	stats := sampleStats()

	tests := []struct {
		name       string
		thresholds []string
		wantPass   []bool
	}{
		{
			name: "all thresholds pass",
			thresholds: []string{
				"latency:p99 < 500",
				"failed:rate < 0.05",
				"requests:rate > 50",
			},
			wantPass: []bool{true, true, true},
		},
		{
			name: "some thresholds fail",
			thresholds: []string{
				"latency:p99 < 300",
				"failed:rate < 0.01",
				"requests:rate > 50",
			},
			wantPass: []bool{false, false, true},
		},
		{
			name: "latency percentiles",
			thresholds: []string{
				"latency:p50 < 100",
				"latency:p90 < 250",
				"latency:p99 < 450",
			},
			wantPass: []bool{true, true, true},
		},
		{
			name: "avg and max latency",
			thresholds: []string{
				"latency:avg < 150",
				"latency:max < 600",
				"latency:min > 5",
			},
			wantPass: []bool{true, true, true},
		},
		{
			name: "timeouts and success rate",
			thresholds: []string{
				"timeouts:count == 0",
				"timeouts:rate <= 0.005",
				"success:rate >= 99",
			},
			wantPass: []bool{false, true, false},
		},
		{
			name:       "request count",
			thresholds: []string{"requests:count > 900"},
			wantPass:   []bool{true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thresholds, err := ParseMultiple(tt.thresholds)
			if err != nil {
				t.Fatalf("ParseMultiple() error = %v", err)
			}

			evaluator := NewEvaluator(thresholds)
			results := evaluator.Evaluate(stats)

			if len(results) != len(tt.wantPass) {
				t.Fatalf("got %d results, want %d", len(results), len(tt.wantPass))
			}

			for i, result := range results {
				if result.Pass != tt.wantPass[i] {
					t.Errorf("threshold[%d] %q: got pass=%v, want %v (actual=%.2f)",
						i, result.Expr, result.Pass, tt.wantPass[i], result.Actual)
				}
			}
		})
	}
}

func TestEvaluatorNoThresholds(t *testing.T) {
	results := NewEvaluator(nil).Evaluate(sampleStats())
	if results != nil {
		t.Fatalf("Evaluate() = %v, want nil", results)
	}
	if !AllPassed(results) {
		t.Fatal("AllPassed(nil) should be true")
	}
}

func TestAllPassed(t *testing.T) {
	if AllPassed([]Result{{Pass: true}, {Pass: false}}) {
		t.Fatal("AllPassed() = true with a failing result")
	}
	if !AllPassed([]Result{{Pass: true}, {Pass: true}}) {
		t.Fatal("AllPassed() = false with only passing results")
	}
}

func TestEvaluatorEmptyRun(t *testing.T) {
	th, err := Parse("failed:rate < 0.5")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	results := NewEvaluator([]Threshold{th}).Evaluate(metrics.RunStatistics{})
	if len(results) != 1 || !results[0].Pass || results[0].Actual != 0 {
		t.Fatalf("Evaluate(empty) = %+v", results)
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name     string
		actual   float64
		operator string
		expected float64
		want     bool
	}{
		{"less than true", 50, "<", 100, true},
		{"less than false", 100, "<", 50, false},
		{"less than equal", 100, "<", 100, false},
		{"less than or equal true", 50, "<=", 100, true},
		{"less than or equal equal", 100, "<=", 100, true},
		{"less than or equal false", 150, "<=", 100, false},
		{"greater than true", 150, ">", 100, true},
		{"greater than false", 50, ">", 100, false},
		{"greater than equal", 100, ">", 100, false},
		{"greater than or equal true", 150, ">=", 100, true},
		{"greater than or equal equal", 100, ">=", 100, true},
		{"greater than or equal false", 50, ">=", 100, false},
		{"equal true", 100, "==", 100, true},
		{"equal false", 100, "==", 101, false},
		{"equal with floating point precision", 100.0000000001, "==", 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compareValues(tt.actual, tt.operator, tt.expected)
			if got != tt.want {
				t.Errorf("compareValues(%.2f, %s, %.2f) = %v, want %v",
					tt.actual, tt.operator, tt.expected, got, tt.want)
			}
		})
	}
}

func TestExtractMetricValue(t *testing.T) {
	stats := metrics.RunStatistics{
		Total:        1000,
		Success:      950,
		Failed:       50,
		Timeouts:     10,
		SuccessRate:  95,
		Throughput:   123.45,
		MinLatencyMs: 10.5,
		MaxLatencyMs: 500.25,
		AvgLatencyMs: 100.75,
		P50LatencyMs: 80.5,
		P90LatencyMs: 200.25,
		P95LatencyMs: 300.5,
		P99LatencyMs: 400.5,
	}

	tests := []struct {
		name      string
		threshold Threshold
		want      float64
		wantError bool
	}{
		{name: "latency p50", threshold: Threshold{Metric: "latency", Aggregate: "p50"}, want: 80.5},
		{name: "latency p90", threshold: Threshold{Metric: "latency", Aggregate: "p90"}, want: 200.25},
		{name: "latency p95", threshold: Threshold{Metric: "latency", Aggregate: "p95"}, want: 300.5},
		{name: "latency p99", threshold: Threshold{Metric: "latency", Aggregate: "p99"}, want: 400.5},
		{name: "latency avg", threshold: Threshold{Metric: "latency", Aggregate: "avg"}, want: 100.75},
		{name: "latency min", threshold: Threshold{Metric: "latency", Aggregate: "min"}, want: 10.5},
		{name: "latency max", threshold: Threshold{Metric: "latency", Aggregate: "max"}, want: 500.25},
		{name: "failed rate", threshold: Threshold{Metric: "failed", Aggregate: "rate"}, want: 0.05},
		{name: "failed count", threshold: Threshold{Metric: "failed", Aggregate: "count"}, want: 50},
		{name: "timeouts rate", threshold: Threshold{Metric: "timeouts", Aggregate: "rate"}, want: 0.01},
		{name: "timeouts count", threshold: Threshold{Metric: "timeouts", Aggregate: "count"}, want: 10},
		{name: "requests rate", threshold: Threshold{Metric: "requests", Aggregate: "rate"}, want: 123.45},
		{name: "requests count", threshold: Threshold{Metric: "requests", Aggregate: "count"}, want: 1000},
		{name: "success rate", threshold: Threshold{Metric: "success", Aggregate: "rate"}, want: 95},
		{name: "unsupported metric", threshold: Threshold{Metric: "invalid_metric", Aggregate: "p95"}, wantError: true},
		{name: "unsupported latency aggregate", threshold: Threshold{Metric: "latency", Aggregate: "rate"}, wantError: true},
		{name: "unsupported aggregate for failed", threshold: Threshold{Metric: "failed", Aggregate: "p95"}, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractMetricValue(tt.threshold, stats)
			if (err != nil) != tt.wantError {
				t.Errorf("extractMetricValue() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && got != tt.want {
				t.Errorf("extractMetricValue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAssess(t *testing.T) {
	cutoffs := DefaultCutoffs()

	tests := []struct {
		name    string
		avg     time.Duration
		success float64
		want    Assessment
	}{
		{"fast and clean", 800 * time.Millisecond, 100, Assessment{GradeExcellent, GradeExcellent, GradeExcellent}},
		{"boundaries are inclusive", time.Second, 99, Assessment{GradeExcellent, GradeExcellent, GradeExcellent}},
		{"good latency", 2 * time.Second, 99.5, Assessment{GradeGood, GradeExcellent, GradeExcellent}},
		{"acceptable latency", 5 * time.Second, 96, Assessment{GradeAcceptable, GradeGood, GradeGood}},
		{"poor latency", 5*time.Second + time.Millisecond, 92, Assessment{GradePoor, GradeAcceptable, GradeAcceptable}},
		{"poor everything", 12 * time.Second, 50, Assessment{GradePoor, GradePoor, GradePoor}},
		{"mixed extremes", 500 * time.Millisecond, 10, Assessment{GradeExcellent, GradePoor, GradeGood}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Assess(metrics.RunStatistics{AvgLatency: tt.avg, SuccessRate: tt.success}, cutoffs)
			if got != tt.want {
				t.Errorf("Assess() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
