package output

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/oklog/ulid/v2"

	"github.com/torosent/chatstress/internal/analysis"
	"github.com/torosent/chatstress/internal/metrics"
)

// File name prefixes in the results directory.
const (
	PrefixFullReport  = "pressure-test-"
	PrefixAllRequests = "all-requests-"
	PrefixFailed      = "failed-requests-"
	PrefixSuccess     = "success-requests-"
	PrefixSummary     = "test-summary-"

	lockFile = ".chatstress.lock"
)

// ErrLocked is returned when another process holds the results directory.
var ErrLocked = errors.New("results directory is locked by another run")

// RunSettings is the load shape recorded alongside the results. It never
// carries credentials.
type RunSettings struct {
	Model       string  `json:"model"`
	Target      string  `json:"target"`
	Mode        string  `json:"mode"`
	Concurrency int     `json:"concurrent"`
	Requests    int     `json:"requests"`
	DurationMs  int64   `json:"duration"`
	IntervalMs  int64   `json:"interval"`
	TimeoutMs   int64   `json:"timeout"`
	Rate        float64 `json:"rate,omitempty"`
	Scenario    string  `json:"scenario,omitempty"`
}

// RunRecord is a finished run ready to be persisted.
type RunRecord struct {
	TestID   string
	Settings RunSettings
	Stats    metrics.RunStatistics
	Outcomes []metrics.Outcome
	Analysis analysis.Report
	Start    time.Time
	End      time.Time
}

// Files names the result files written for one run. Optional logs are empty
// when they were not written.
type Files struct {
	FullReport  string `json:"fullReport"`
	AllRequests string `json:"allRequests"`
	SuccessLog  string `json:"successLog"`
	FailedLog   string `json:"failedLog"`
	Summary     string `json:"summary"`
}

// Names lists the written files in write order.
func (f Files) Names() []string {
	var names []string
	for _, n := range []string{f.FullReport, f.AllRequests, f.FailedLog, f.SuccessLog, f.Summary} {
		if n != "" {
			names = append(names, n)
		}
	}
	return names
}

// NewTestID returns a fresh, time-ordered run identifier.
func NewTestID() string {
	return "test-" + strings.ToLower(ulid.Make().String())
}

// FileTimestamp formats t the way result file names embed it.
func FileTimestamp(t time.Time) string {
	return strings.NewReplacer(":", "-", ".", "-").Replace(t.UTC().Format("2006-01-02T15:04:05.000Z"))
}

// Writer persists run records as JSON files under a directory.
type Writer struct {
	dir       string
	lockRetry time.Duration
}

// NewWriter creates a writer for dir. The directory is created on first write.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, lockRetry: 50 * time.Millisecond}
}

// Dir returns the results directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Write stores every result file for rec while holding the directory lock.
// ctx bounds the wait for the lock.
func (w *Writer) Write(ctx context.Context, rec RunRecord) (Files, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("create results directory: %w", err)
	}

	lock := flock.New(filepath.Join(w.dir, lockFile))
	locked, err := lock.TryLockContext(ctx, w.lockRetry)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Files{}, ErrLocked
		}
		return Files{}, fmt.Errorf("lock results directory: %w", err)
	}
	if !locked {
		return Files{}, ErrLocked
	}
	defer lock.Unlock()

	if rec.TestID == "" {
		rec.TestID = NewTestID()
	}
	ts, err := w.freeStamp(FileTimestamp(rec.Start))
	if err != nil {
		return Files{}, err
	}
	now := time.Now().UTC()

	var success, failed []metrics.Outcome
	for _, o := range rec.Outcomes {
		if o.Success {
			success = append(success, o)
		} else {
			failed = append(failed, o)
		}
	}

	files := Files{
		FullReport:  PrefixFullReport + ts + ".json",
		AllRequests: PrefixAllRequests + ts + ".json",
		Summary:     PrefixSummary + ts + ".json",
	}
	if len(failed) > 0 {
		files.FailedLog = PrefixFailed + ts + ".json"
	}
	if len(success) > 0 {
		files.SuccessLog = PrefixSuccess + ts + ".json"
	}

	outcomes := rec.Outcomes
	if outcomes == nil {
		outcomes = []metrics.Outcome{}
	}

	if err := w.writeJSON(files.FullReport, fullReport{
		TestID:    rec.TestID,
		Config:    rec.Settings,
		Stats:     rec.Stats,
		Results:   outcomes,
		StartTime: rec.Start.UTC(),
		EndTime:   rec.End.UTC(),
		Duration:  rec.End.Sub(rec.Start).Milliseconds(),
		Timestamp: now,
	}); err != nil {
		return Files{}, err
	}

	if err := w.writeJSON(files.AllRequests, allRequestsLog{
		TestID: rec.TestID,
		Summary: allRequestsSummary{
			TotalRequests:   len(outcomes),
			SuccessRequests: len(success),
			FailedRequests:  len(failed),
			SuccessRate:     percent(len(success), len(outcomes)),
			Timestamp:       now,
		},
		AllRequests:     outcomes,
		SuccessRequests: nonNil(success),
		FailedRequests:  nonNil(failed),
	}); err != nil {
		return Files{}, err
	}

	if len(failed) > 0 {
		if err := w.writeJSON(files.FailedLog, failedLog{
			TestID: rec.TestID,
			Summary: failedSummary{
				TotalFailed:   len(failed),
				TotalRequests: len(outcomes),
				FailureRate:   percent(len(failed), len(outcomes)),
				Timestamp:     now,
			},
			FailedRequests:  failed,
			ErrorAnalysis:   rec.Analysis,
			Recommendations: rec.Analysis.Recommendations,
		}); err != nil {
			return Files{}, err
		}
	}

	if len(success) > 0 {
		if err := w.writeJSON(files.SuccessLog, successLog{
			TestID:          rec.TestID,
			Summary:         summarizeSuccess(success, len(outcomes), now),
			SuccessRequests: success,
		}); err != nil {
			return Files{}, err
		}
	}

	if err := w.writeJSON(files.Summary, testSummary{
		TestID:    rec.TestID,
		Timestamp: now,
		Config:    rec.Settings,
		Results: summaryResults{
			Total:           rec.Stats.Total,
			Success:         rec.Stats.Success,
			Failed:          rec.Stats.Failed,
			SuccessRate:     fmt.Sprintf("%.2f%%", rec.Stats.SuccessRate),
			AvgResponseTime: fmt.Sprintf("%.0fms", rec.Stats.AvgLatencyMs),
			QPS:             fmt.Sprintf("%.2f", rec.Stats.Throughput),
		},
		Files: files,
	}); err != nil {
		return Files{}, err
	}

	return files, nil
}

// freeStamp returns ts, or ts with a numeric suffix when a run that started in
// the same millisecond already wrote files. The caller holds the lock.
func (w *Writer) freeStamp(ts string) (string, error) {
	candidate := ts
	for n := 2; ; n++ {
		_, err := os.Stat(filepath.Join(w.dir, PrefixSummary+candidate+".json"))
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("check existing results: %w", err)
		}
		candidate = fmt.Sprintf("%s_%d", ts, n)
	}
}

func (w *Writer) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	path := filepath.Join(w.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

type fullReport struct {
	TestID    string                `json:"testId"`
	Config    RunSettings           `json:"config"`
	Stats     metrics.RunStatistics `json:"stats"`
	Results   []metrics.Outcome     `json:"results"`
	StartTime time.Time             `json:"startTime"`
	EndTime   time.Time             `json:"endTime"`
	Duration  int64                 `json:"duration"`
	Timestamp time.Time             `json:"timestamp"`
}

type allRequestsSummary struct {
	TotalRequests   int       `json:"totalRequests"`
	SuccessRequests int       `json:"successRequests"`
	FailedRequests  int       `json:"failedRequests"`
	SuccessRate     string    `json:"successRate"`
	Timestamp       time.Time `json:"timestamp"`
}

type allRequestsLog struct {
	TestID          string             `json:"testId"`
	Summary         allRequestsSummary `json:"summary"`
	AllRequests     []metrics.Outcome  `json:"allRequests"`
	SuccessRequests []metrics.Outcome  `json:"successRequests"`
	FailedRequests  []metrics.Outcome  `json:"failedRequests"`
}

type failedSummary struct {
	TotalFailed   int       `json:"totalFailed"`
	TotalRequests int       `json:"totalRequests"`
	FailureRate   string    `json:"failureRate"`
	Timestamp     time.Time `json:"timestamp"`
}

type failedLog struct {
	TestID          string                    `json:"testId"`
	Summary         failedSummary             `json:"summary"`
	FailedRequests  []metrics.Outcome         `json:"failedRequests"`
	ErrorAnalysis   analysis.Report           `json:"errorAnalysis"`
	Recommendations []analysis.Recommendation `json:"recommendations"`
}

type successSummary struct {
	TotalSuccess    int       `json:"totalSuccess"`
	TotalRequests   int       `json:"totalRequests"`
	SuccessRate     string    `json:"successRate"`
	AvgResponseTime float64   `json:"avgResponseTime"`
	MinResponseTime float64   `json:"minResponseTime"`
	MaxResponseTime float64   `json:"maxResponseTime"`
	Timestamp       time.Time `json:"timestamp"`
}

type successLog struct {
	TestID          string            `json:"testId"`
	Summary         successSummary    `json:"summary"`
	SuccessRequests []metrics.Outcome `json:"successRequests"`
}

type summaryResults struct {
	Total           int64  `json:"total"`
	Success         int64  `json:"success"`
	Failed          int64  `json:"failed"`
	SuccessRate     string `json:"successRate"`
	AvgResponseTime string `json:"avgResponseTime"`
	QPS             string `json:"qps"`
}

type testSummary struct {
	TestID    string         `json:"testId"`
	Timestamp time.Time      `json:"timestamp"`
	Config    RunSettings    `json:"config"`
	Results   summaryResults `json:"results"`
	Files     Files          `json:"files"`
}

func summarizeSuccess(success []metrics.Outcome, total int, now time.Time) successSummary {
	s := successSummary{
		TotalSuccess:  len(success),
		TotalRequests: total,
		SuccessRate:   percent(len(success), total),
		Timestamp:     now,
	}
	var sum, lo, hi time.Duration
	for i, o := range success {
		sum += o.Latency
		if i == 0 || o.Latency < lo {
			lo = o.Latency
		}
		if o.Latency > hi {
			hi = o.Latency
		}
	}
	s.AvgResponseTime = ms(sum / time.Duration(len(success)))
	s.MinResponseTime = ms(lo)
	s.MaxResponseTime = ms(hi)
	return s
}

func percent(n, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", float64(n)/float64(total)*100)
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func nonNil(o []metrics.Outcome) []metrics.Outcome {
	if o == nil {
		return []metrics.Outcome{}
	}
	return o
}
