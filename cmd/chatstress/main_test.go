package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/torosent/chatstress/internal/analysis"
	"github.com/torosent/chatstress/internal/config"
	"github.com/torosent/chatstress/internal/metrics"
	"github.com/torosent/chatstress/internal/mockapi"
	"github.com/torosent/chatstress/internal/output"
)

type jsonReport struct {
	TestID string `json:"testId"`
	Mode   string `json:"mode"`
	Stats  struct {
		Total    int64 `json:"totalRequests"`
		Success  int64 `json:"successfulRequests"`
		Failed   int64 `json:"failedRequests"`
		Timeouts int64 `json:"timeoutErrors"`
	} `json:"stats"`
	Analysis struct {
		TotalFailures   int64                     `json:"totalFailures"`
		Recommendations []analysis.Recommendation `json:"recommendations"`
	} `json:"errorAnalysis"`
	Files *output.Files `json:"files"`
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func decodeReport(t *testing.T, stdout string) jsonReport {
	t.Helper()
	var rep jsonReport
	if err := json.Unmarshal([]byte(stdout), &rep); err != nil {
		t.Fatalf("decode report: %v\n%s", err, stdout)
	}
	return rep
}

func baseArgs(url string) []string {
	return []string{
		"--base-url", url,
		"--api-key", "sk-test-1234567890",
		"--model", "test-model",
		"--interval", "0s",
		"--no-progress",
		"--json-output",
		"--log-level", "error",
	}
}

func newMockServer(t *testing.T, opts mockapi.Options) (*mockapi.Server, string) {
	t.Helper()
	mock := mockapi.New(opts)
	srv := httptest.NewServer(mock.Handler())
	t.Cleanup(srv.Close)
	return mock, srv.URL
}

func TestRunCommandSuccess(t *testing.T) {
	mock, url := newMockServer(t, mockapi.Options{APIKey: "sk-test-1234567890"})

	dir := t.TempDir()
	args := append([]string{"run"}, baseArgs(url)...)
	args = append(args, "-c", "3", "-r", "9", "-o", dir)
	stdout, _, err := execute(t, args...)
	if err != nil {
		t.Fatalf("run error = %v", err)
	}

	rep := decodeReport(t, stdout)
	if rep.Stats.Total != 9 || rep.Stats.Success != 9 {
		t.Errorf("stats = %+v, want 9 successful requests", rep.Stats)
	}
	if mock.Requests() != 9 {
		t.Errorf("server requests = %d, want 9", mock.Requests())
	}
	if mock.Unauthorized() != 0 || mock.MissingRequestIDs() != 0 {
		t.Errorf("unauthorized = %d, missing request ids = %d, want 0", mock.Unauthorized(), mock.MissingRequestIDs())
	}
	if rep.Mode != "concurrency" {
		t.Errorf("mode = %q, want concurrency", rep.Mode)
	}
	if len(rep.Analysis.Recommendations) != 0 {
		t.Errorf("recommendations = %v, want none", rep.Analysis.Recommendations)
	}
	if rep.Files == nil || rep.Files.FullReport == "" || rep.Files.FailedLog != "" {
		t.Fatalf("files = %+v, want full report and no failure log", rep.Files)
	}
	if _, err := os.Stat(filepath.Join(dir, rep.Files.FullReport)); err != nil {
		t.Errorf("full report not written: %v", err)
	}
}

func TestRunCommandRateLimited(t *testing.T) {
	_, url := newMockServer(t, mockapi.Options{FailEvery: 1, FailStatus: http.StatusTooManyRequests})

	args := append([]string{"run"}, baseArgs(url)...)
	args = append(args, "-c", "2", "-r", "6", "--no-save")
	stdout, _, err := execute(t, args...)
	if err != nil {
		t.Fatalf("failed requests should not fail the command: %v", err)
	}

	rep := decodeReport(t, stdout)
	if rep.Stats.Failed != 6 || rep.Stats.Success != 0 {
		t.Fatalf("stats = %+v, want 6 failures", rep.Stats)
	}
	var found bool
	for _, rec := range rep.Analysis.Recommendations {
		if rec.Kind == analysis.KindRateLimit {
			found = true
			if rec.Count != rep.Stats.Failed {
				t.Errorf("rate limit count = %d, want %d", rec.Count, rep.Stats.Failed)
			}
		}
	}
	if !found {
		t.Errorf("recommendations = %+v, want rate_limit", rep.Analysis.Recommendations)
	}
	if rep.Files != nil {
		t.Errorf("files = %+v, want none with --no-save", rep.Files)
	}
}

func TestRunCommandTimeouts(t *testing.T) {
	_, url := newMockServer(t, mockapi.Options{Latency: 2 * time.Second})

	args := append([]string{"run"}, baseArgs(url)...)
	args = append(args, "-c", "4", "-r", "4", "--timeout", "50ms", "--no-save")
	stdout, _, err := execute(t, args...)
	if err != nil {
		t.Fatalf("run error = %v", err)
	}

	rep := decodeReport(t, stdout)
	if rep.Stats.Failed != 4 || rep.Stats.Timeouts != rep.Stats.Failed {
		t.Fatalf("stats = %+v, want every request to time out", rep.Stats)
	}
	if len(rep.Analysis.Recommendations) == 0 || rep.Analysis.Recommendations[0].Kind != analysis.KindTimeout {
		t.Errorf("recommendations = %+v, want timeout first", rep.Analysis.Recommendations)
	}
}

func TestRunCommandRatePaced(t *testing.T) {
	mock, url := newMockServer(t, mockapi.Options{})

	args := append([]string{"run"}, baseArgs(url)...)
	args = append(args, "-r", "4", "--rate", "20", "--no-save")
	stdout, _, err := execute(t, args...)
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	rep := decodeReport(t, stdout)
	if rep.Mode != "rate" || rep.Stats.Success != 4 {
		t.Errorf("mode = %q stats = %+v, want 4 rate-paced successes", rep.Mode, rep.Stats)
	}
	if mock.Requests() != 4 {
		t.Errorf("server requests = %d, want 4", mock.Requests())
	}
}

func TestRunCommandOAuth2(t *testing.T) {
	mock, url := newMockServer(t, mockapi.Options{ClientID: "load-tester", ClientSecret: "s3cret"})

	cfgPath := filepath.Join(t.TempDir(), "chatstress.yaml")
	cfgYAML := "api:\n" +
		"  base_url: " + url + "\n" +
		"  model: test-model\n" +
		"  oauth2:\n" +
		"    token_url: " + url + mockapi.TokenPath + "\n" +
		"    client_id: load-tester\n" +
		"    client_secret: s3cret\n"
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := execute(t, "run", "--config", cfgPath, "-c", "3", "-r", "6", "--interval", "0s",
		"--no-save", "--no-progress", "--json-output", "--log-level", "error")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	if rep := decodeReport(t, stdout); rep.Stats.Success != 6 {
		t.Errorf("stats = %+v, want 6 successes with oauth2 tokens", rep.Stats)
	}
	if mock.TokenRequests() != 1 {
		t.Errorf("token requests = %d, want one shared token", mock.TokenRequests())
	}
	if mock.Unauthorized() != 0 {
		t.Errorf("unauthorized = %d, want 0", mock.Unauthorized())
	}
}

func TestRunCommandThresholdFailure(t *testing.T) {
	_, url := newMockServer(t, mockapi.Options{FailEvery: 1})

	args := append([]string{"run"}, baseArgs(url)...)
	args = append(args, "-c", "1", "-r", "2", "--no-save", "--threshold", "success:rate >= 99")
	stdout, _, err := execute(t, args...)

	var te *thresholdError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want thresholdError", err)
	}
	if te.failed != 1 {
		t.Errorf("failed thresholds = %d, want 1", te.failed)
	}
	if !strings.Contains(stdout, `"thresholds"`) {
		t.Errorf("report should be printed before the threshold error:\n%s", stdout)
	}
}

func TestRunCommandInvalidConfig(t *testing.T) {
	_, _, err := execute(t, "run", "--no-save", "--no-progress")
	var ve config.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if len(ve.Issues()) < 2 {
		t.Errorf("issues = %v, want base_url and model problems", ve.Issues())
	}
}

func TestRunCommandSaveFailure(t *testing.T) {
	_, url := newMockServer(t, mockapi.Options{})

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	args := append([]string{"run"}, baseArgs(url)...)
	args = append(args, "-c", "1", "-r", "1", "-o", filepath.Join(blocker, "results"))
	stdout, _, err := execute(t, args...)
	if err == nil || !strings.Contains(err.Error(), "save results") {
		t.Fatalf("error = %v, want save failure", err)
	}
	if rep := decodeReport(t, stdout); rep.Stats.Success != 1 {
		t.Errorf("report should still be printed, got %+v", rep.Stats)
	}
}

func TestSimpleCommandPreset(t *testing.T) {
	cmd := newSimpleCmd()
	fs := cmd.Flags()
	if err := fs.Parse([]string{"--requests", "7"}); err != nil {
		t.Fatal(err)
	}
	for _, p := range simplePreset {
		if fs.Changed(p.flag) {
			continue
		}
		if err := fs.Set(p.flag, p.value); err != nil {
			t.Fatal(err)
		}
	}
	cfg, err := config.NewLoader().Load(fs)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Concurrency != 100 {
		t.Errorf("Concurrency = %d, want 100", cfg.Concurrency)
	}
	if cfg.Requests != 7 {
		t.Errorf("Requests = %d, want explicit 7", cfg.Requests)
	}
	if cfg.Interval != 100*time.Millisecond {
		t.Errorf("Interval = %v, want 100ms", cfg.Interval)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
}

func TestSimpleCommandRuns(t *testing.T) {
	mock, url := newMockServer(t, mockapi.Options{})

	args := append([]string{"simple"}, baseArgs(url)...)
	args = append(args, "-r", "5", "--no-save")
	stdout, _, err := execute(t, args...)
	if err != nil {
		t.Fatalf("simple error = %v", err)
	}
	if rep := decodeReport(t, stdout); rep.Stats.Total != 5 {
		t.Errorf("total = %d, want 5", rep.Stats.Total)
	}
	if mock.Requests() != 5 {
		t.Errorf("server requests = %d, want 5", mock.Requests())
	}
}

func TestScenarioCommandList(t *testing.T) {
	stdout, _, err := execute(t, "scenario", "list")
	if err != nil {
		t.Fatalf("scenario list error = %v", err)
	}
	for _, name := range []string{"light", "standard", "heavy", "soak", "burst"} {
		if !strings.Contains(stdout, name) {
			t.Errorf("scenario list missing %q:\n%s", name, stdout)
		}
	}
	if !strings.Contains(stdout, "rate=50/s") {
		t.Errorf("scenario list should describe the burst shape:\n%s", stdout)
	}
}

func TestScenarioCommandUnknown(t *testing.T) {
	_, _, err := execute(t, "scenario", "nope", "--base-url", "http://127.0.0.1:1", "--api-key", "k", "--model", "m")
	if err == nil {
		t.Fatal("expected error for unknown scenario")
	}
}

func TestScenarioCommandFlagsOverride(t *testing.T) {
	_, url := newMockServer(t, mockapi.Options{})

	args := append([]string{"scenario", "light"}, baseArgs(url)...)
	args = append(args, "-r", "3", "--no-save")
	stdout, _, err := execute(t, args...)
	if err != nil {
		t.Fatalf("scenario error = %v", err)
	}
	if rep := decodeReport(t, stdout); rep.Stats.Total != 3 {
		t.Errorf("total = %d, want 3 from the flag override", rep.Stats.Total)
	}
}

func TestValidateCommandMasksKey(t *testing.T) {
	stdout, _, err := execute(t, "validate",
		"--base-url", "https://api.example.com",
		"--api-key", "sk-secret-abcd",
		"--model", "gpt-4o-mini",
		"--print",
	)
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}
	if strings.Contains(stdout, "sk-secret-abcd") {
		t.Errorf("validate output leaks the api key:\n%s", stdout)
	}
	for _, want := range []string{"Configuration is valid", "**********abcd", "https://api.example.com/v1/chat/completions", "timeout: 5m0s"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("validate output missing %q:\n%s", want, stdout)
		}
	}
}

func TestValidateCommandRejectsBadThreshold(t *testing.T) {
	_, _, err := execute(t, "validate",
		"--base-url", "https://api.example.com",
		"--api-key", "k",
		"--model", "m",
		"--threshold", "latency:p42 < 1",
	)
	if err == nil {
		t.Fatal("expected threshold parse error")
	}
}

func writeRun(t *testing.T, dir string, outcomes []metrics.Outcome) output.Files {
	t.Helper()
	agg := metrics.NewAggregator()
	for _, o := range outcomes {
		agg.Record(o)
	}
	stats := agg.Snapshot(time.Second)
	start := time.Date(2026, 3, 4, 10, 20, 30, 0, time.UTC)
	files, err := output.NewWriter(dir).Write(context.Background(), output.RunRecord{
		TestID:   "test-analyze",
		Stats:    stats,
		Outcomes: outcomes,
		Analysis: analysis.Analyze(outcomes, stats),
		Start:    start,
		End:      start.Add(time.Second),
	})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return files
}

func TestAnalyzeCommands(t *testing.T) {
	dir := t.TempDir()
	files := writeRun(t, dir, []metrics.Outcome{
		{RequestID: 1, Success: true, Status: 200, Latency: 20 * time.Millisecond},
		{RequestID: 2, Status: 429, Latency: 10 * time.Millisecond, Kind: metrics.FailureHTTP, Error: "Request failed with status code 429"},
		{RequestID: 3, Status: 429, Latency: 12 * time.Millisecond, Kind: metrics.FailureHTTP, Error: "Request failed with status code 429"},
	})

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"default", []string{"analyze", "-d", dir}, []string{"Failure Log Analysis", files.FailedLog, "Total Failed:   2"}},
		{"latest", []string{"analyze", "latest", "-d", dir}, []string{"Status Codes:", "429: 2"}},
		{"list", []string{"analyze", "list", "-d", dir}, []string{"Found 1 failure log(s)", files.FailedLog}},
		{"file", []string{"analyze", "file", files.FailedLog, "-d", dir}, []string{"Recommendations:", "Request 2"}},
		{"summary", []string{"analyze", "summary", "-d", dir}, []string{"Failures: 2/3", "Top suggestions:"}},
		{"tests", []string{"analyze", "tests", "-d", dir}, []string{"Found 1 run(s)", "test-analyze"}},
		{"test", []string{"analyze", "test", "test-analyze", "-d", dir}, []string{files.FullReport, files.Summary, files.SuccessLog}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := execute(t, tt.args...)
			if err != nil {
				t.Fatalf("%v error = %v", tt.args, err)
			}
			for _, want := range tt.want {
				if !strings.Contains(stdout, want) {
					t.Errorf("output missing %q:\n%s", want, stdout)
				}
			}
		})
	}
}

func TestAnalyzeCommandEmptyDir(t *testing.T) {
	dir := t.TempDir()
	stdout, _, err := execute(t, "analyze", "summary", "-d", dir)
	if err != nil {
		t.Fatalf("summary error = %v", err)
	}
	if !strings.Contains(stdout, "No failure logs found") {
		t.Errorf("output = %q", stdout)
	}

	if _, _, err := execute(t, "analyze", "test", "test-missing", "-d", dir); err == nil {
		t.Error("expected error for unknown test id")
	}
	if _, _, err := execute(t, "analyze", "file", "../etc/passwd", "-d", dir); err == nil {
		t.Error("expected error for path traversal")
	}
	if _, _, err := execute(t, "analyze", "list", "-d", filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for a missing directory")
	}
}
