package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/torosent/chatstress/internal/analysis"
	"github.com/torosent/chatstress/internal/metrics"
	"github.com/torosent/chatstress/internal/threshold"
)

// Report is everything printed at the end of a run.
type Report struct {
	TestID      string                `json:"testId,omitempty"`
	Mode        string                `json:"mode"`
	Interrupted bool                  `json:"interrupted,omitempty"`
	Stats       metrics.RunStatistics `json:"stats"`
	Analysis    *analysis.Report      `json:"errorAnalysis,omitempty"`
	Assessment  threshold.Assessment  `json:"assessment"`
	Thresholds  []threshold.Result    `json:"thresholds,omitempty"`
	Files       *Files                `json:"files,omitempty"`
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, r Report) {
	stats := r.Stats
	fmt.Fprintln(w, "\n--- Load Test Results ---")
	if r.TestID != "" {
		fmt.Fprintf(w, "Test ID:           %s\n", r.TestID)
	}
	fmt.Fprintf(w, "Mode:              %s\n", r.Mode)
	if r.Interrupted {
		fmt.Fprintln(w, "Status:            interrupted (in-flight requests drained)")
	}
	fmt.Fprintf(w, "Total Requests:    %d\n", stats.Total)
	fmt.Fprintf(w, "Successful:        %d\n", stats.Success)
	fmt.Fprintf(w, "Failed:            %d\n", stats.Failed)
	fmt.Fprintf(w, "  Timeouts:        %d\n", stats.Timeouts)
	fmt.Fprintf(w, "  Other Errors:    %d\n", stats.OtherErrors)
	fmt.Fprintf(w, "Success Rate:      %.2f%%\n", stats.SuccessRate)
	fmt.Fprintf(w, "Duration:          %s\n", stats.Elapsed)
	fmt.Fprintf(w, "Throughput (QPS):  %.2f\n", stats.Throughput)
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Avg:             %s\n", stats.AvgLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
	fmt.Fprintf(w, "  P95:             %s\n", stats.P95Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)

	fmt.Fprintln(w, "\nAssessment:")
	fmt.Fprintf(w, "  Response Time:   %s\n", r.Assessment.ResponseTime)
	fmt.Fprintf(w, "  Success Rate:    %s\n", r.Assessment.SuccessRate)
	fmt.Fprintf(w, "  Overall:         %s\n", r.Assessment.Overall)

	if r.Analysis != nil && r.Analysis.HasFailures() {
		writeAnalysis(w, *r.Analysis)
	}

	if len(r.Thresholds) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, res := range r.Thresholds {
			fmt.Fprintf(w, "  %s\n", res.Message)
		}
	}

	if r.Files != nil {
		fmt.Fprintln(w, "\nResult Files:")
		for _, name := range r.Files.Names() {
			fmt.Fprintf(w, "  %s\n", name)
		}
	}
}

func writeAnalysis(w io.Writer, a analysis.Report) {
	fmt.Fprintln(w, "\nError Analysis:")
	fmt.Fprintln(w, "  Error Types:")
	for _, e := range a.ErrorTypes.Entries() {
		fmt.Fprintf(w, "    %s: %d (%s)\n", e.Key, e.Count, share(e.Count, a.TotalFailures))
	}
	fmt.Fprintln(w, "  Status Codes:")
	for _, e := range a.StatusCodes.Entries() {
		fmt.Fprintf(w, "    %s: %d (%s)\n", statusLabel(e.Key), e.Count, share(e.Count, a.TotalFailures))
	}
	fmt.Fprintf(w, "  Most Common Error:  %s (%d)\n", a.MostCommonError, a.MostCommonErrorCount)
	fmt.Fprintf(w, "  Most Common Status: %s (%d)\n", statusLabel(a.MostCommonStatus), a.MostCommonStatusCount)

	if len(a.Recommendations) == 0 {
		return
	}
	fmt.Fprintln(w, "\nRecommendations:")
	for i, rec := range a.Recommendations {
		fmt.Fprintf(w, "  %d. %s\n", i+1, rec.Description)
		fmt.Fprintf(w, "     Suggestion: %s\n", rec.Suggestion)
		if rec.Count > 0 {
			fmt.Fprintf(w, "     Count: %d\n", rec.Count)
		}
		if rec.AvgLatencyMs > 0 {
			fmt.Fprintf(w, "     Avg Response Time: %.0fms\n", rec.AvgLatencyMs)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func share(n, total int64) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)/float64(total)*100)
}

func statusLabel(code int) string {
	if code == 0 {
		return "no response"
	}
	return strconv.Itoa(code)
}
