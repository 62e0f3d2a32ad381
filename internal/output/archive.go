package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/torosent/chatstress/internal/analysis"
	"github.com/torosent/chatstress/internal/metrics"
)

// ErrNoFailureLogs is returned when the results directory holds no failure log.
var ErrNoFailureLogs = errors.New("no failure logs found")

// Archive reads result files written by Writer.
type Archive struct {
	dir string
}

// NewArchive opens the results directory dir for reading.
func NewArchive(dir string) *Archive {
	return &Archive{dir: dir}
}

// FileInfo describes one result file.
type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Count is one row of a count distribution.
type Count struct {
	Key   string
	Count int64
}

// FailureLog is the decoded content of a failed-requests file.
type FailureLog struct {
	Name                  string
	TestID                string
	Timestamp             string
	TotalFailed           int64
	TotalRequests         int64
	FailureRate           string
	ErrorTypes            []Count
	StatusCodes           []Count
	MostCommonError       string
	MostCommonErrorCount  int64
	MostCommonStatus      string
	MostCommonStatusCount int64
	Recommendations       []analysis.Recommendation
	FailedRequests        []metrics.Outcome
}

// TestGroup collects the files that belong to one run.
type TestGroup struct {
	TestID    string
	Timestamp string
	Files     []FileInfo
}

// FailureLogs lists failed-requests files, newest first.
func (a *Archive) FailureLogs() ([]FileInfo, error) {
	return a.list(PrefixFailed)
}

// Latest returns the newest failed-requests file name.
func (a *Archive) Latest() (string, error) {
	files, err := a.FailureLogs()
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", ErrNoFailureLogs
	}
	return files[0].Name, nil
}

// Load decodes the failed-requests file name.
func (a *Archive) Load(name string) (*FailureLog, error) {
	if name != filepath.Base(name) {
		return nil, fmt.Errorf("invalid file name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(a.dir, name))
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%s: not a JSON document", name)
	}
	doc := gjson.ParseBytes(data)

	log := &FailureLog{
		Name:          name,
		TestID:        doc.Get("testId").String(),
		Timestamp:     firstString(doc, "summary.timestamp", "timestamp"),
		TotalFailed:   doc.Get("summary.totalFailed").Int(),
		TotalRequests: doc.Get("summary.totalRequests").Int(),
		FailureRate:   doc.Get("summary.failureRate").String(),
		ErrorTypes:    counts(doc.Get("errorAnalysis.errorTypes")),
		StatusCodes:   counts(doc.Get("errorAnalysis.statusCodes")),
	}
	log.MostCommonError = doc.Get("errorAnalysis.mostCommonError").String()
	log.MostCommonErrorCount = doc.Get("errorAnalysis.mostCommonErrorCount").Int()
	if st := doc.Get("errorAnalysis.mostCommonStatus"); st.Exists() {
		log.MostCommonStatus = st.String()
		log.MostCommonStatusCount = doc.Get("errorAnalysis.mostCommonStatusCount").Int()
	}

	if recs := doc.Get("recommendations"); recs.IsArray() {
		if err := json.Unmarshal([]byte(recs.Raw), &log.Recommendations); err != nil {
			return nil, fmt.Errorf("%s: recommendations: %w", name, err)
		}
	}
	if reqs := doc.Get("failedRequests"); reqs.IsArray() {
		if err := json.Unmarshal([]byte(reqs.Raw), &log.FailedRequests); err != nil {
			return nil, fmt.Errorf("%s: failedRequests: %w", name, err)
		}
	}
	return log, nil
}

// Tests groups full reports and summaries by test id, newest first.
// Unreadable files are skipped.
func (a *Archive) Tests() ([]TestGroup, error) {
	reports, err := a.list(PrefixFullReport, PrefixSummary)
	if err != nil {
		return nil, err
	}

	var groups []TestGroup
	index := map[string]int{}
	for _, f := range reports {
		doc, err := a.peek(f.Name)
		if err != nil {
			continue
		}
		id := doc.Get("testId").String()
		if id == "" {
			id = "unknown"
		}
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, TestGroup{
				TestID:    id,
				Timestamp: firstString(doc, "timestamp", "startTime"),
			})
		}
		groups[i].Files = append(groups[i].Files, f)
	}
	return groups, nil
}

// FindTest returns every result file belonging to testID.
func (a *Archive) FindTest(testID string) ([]string, error) {
	all, err := a.list(PrefixFullReport, PrefixAllRequests, PrefixFailed, PrefixSuccess, PrefixSummary)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, f := range all {
		if strings.Contains(f.Name, testID) {
			names = append(names, f.Name)
			continue
		}
		doc, err := a.peek(f.Name)
		if err == nil && doc.Get("testId").String() == testID {
			names = append(names, f.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (a *Archive) peek(name string) (gjson.Result, error) {
	data, err := os.ReadFile(filepath.Join(a.dir, name))
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("%s: not a JSON document", name)
	}
	return gjson.ParseBytes(data), nil
}

// list returns .json files with any of prefixes, sorted by name descending.
func (a *Archive) list(prefixes ...string) ([]FileInfo, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("results directory %s does not exist", a.dir)
		}
		return nil, err
	}
	var files []FileInfo
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || !hasAnyPrefix(name, prefixes) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{Name: name, Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name > files[j].Name })
	return files, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func firstString(doc gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := doc.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// counts reads a JSON object of counts, ordered by count descending with
// file order kept between equal counts.
func counts(obj gjson.Result) []Count {
	var out []Count
	obj.ForEach(func(key, value gjson.Result) bool {
		out = append(out, Count{Key: key.String(), Count: value.Int()})
		return true
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// PrintFailureLog renders a failure log in detail.
func PrintFailureLog(w io.Writer, log *FailureLog) {
	rule := strings.Repeat("=", 80)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "Failure Log Analysis")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "File: %s\n", log.Name)
	if log.TestID != "" {
		fmt.Fprintf(w, "Test: %s\n", log.TestID)
	}
	fmt.Fprintf(w, "Time: %s\n", orNA(log.Timestamp))

	fmt.Fprintln(w, "\nFailures:")
	fmt.Fprintf(w, "  Total Failed:   %d\n", log.TotalFailed)
	fmt.Fprintf(w, "  Total Requests: %d\n", log.TotalRequests)
	fmt.Fprintf(w, "  Failure Rate:   %s\n", orNA(log.FailureRate))

	if len(log.ErrorTypes) > 0 {
		fmt.Fprintln(w, "\nError Types:")
		for _, c := range log.ErrorTypes {
			fmt.Fprintf(w, "  %s: %d (%s)\n", c.Key, c.Count, share(c.Count, log.TotalFailed))
		}
	}
	if len(log.StatusCodes) > 0 {
		fmt.Fprintln(w, "\nStatus Codes:")
		for _, c := range log.StatusCodes {
			fmt.Fprintf(w, "  %s: %d (%s)\n", c.Key, c.Count, share(c.Count, log.TotalFailed))
		}
	}
	if log.MostCommonError != "" {
		fmt.Fprintf(w, "\nMost Common Error:  %s (%d)\n", log.MostCommonError, log.MostCommonErrorCount)
	}
	if log.MostCommonStatus != "" {
		fmt.Fprintf(w, "Most Common Status: %s (%d)\n", log.MostCommonStatus, log.MostCommonStatusCount)
	}

	if len(log.Recommendations) > 0 {
		fmt.Fprintln(w, "\nRecommendations:")
		for i, rec := range log.Recommendations {
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

	const shown = 10
	if len(log.FailedRequests) > 0 {
		fmt.Fprintf(w, "\nFailed Requests (first %d):\n", shown)
		for i, req := range log.FailedRequests {
			if i == shown {
				fmt.Fprintf(w, "  ... %d more failed requests\n", len(log.FailedRequests)-shown)
				break
			}
			fmt.Fprintf(w, "  %d. Request %d: %.0fms, status %s, %s\n",
				i+1, req.RequestID, ms(req.Latency), statusLabel(req.Status), req.Error)
		}
	}
	fmt.Fprintln(w, rule)
}

// PrintFailureSummary renders the short digest of a failure log.
func PrintFailureSummary(w io.Writer, log *FailureLog) {
	fmt.Fprintf(w, "Latest failure report: %s\n", log.Name)
	fmt.Fprintf(w, "Failure rate: %s\n", orNA(log.FailureRate))
	fmt.Fprintf(w, "Failures: %d/%d\n", log.TotalFailed, log.TotalRequests)
	if log.MostCommonError != "" {
		fmt.Fprintf(w, "Most common error: %s\n", log.MostCommonError)
	}
	if len(log.Recommendations) == 0 {
		return
	}
	fmt.Fprintln(w, "\nTop suggestions:")
	for i, rec := range log.Recommendations {
		if i == 3 {
			break
		}
		fmt.Fprintf(w, "  %d. %s\n", i+1, rec.Suggestion)
	}
}

// PrintFileList renders files with their size and modification time.
func PrintFileList(w io.Writer, files []FileInfo) {
	for i, f := range files {
		fmt.Fprintf(w, "  %d. %s\n", i+1, f.Name)
		fmt.Fprintf(w, "     Size: %.2f KB\n", float64(f.Size)/1024)
		fmt.Fprintf(w, "     Modified: %s\n", f.ModTime.Format(time.RFC3339))
	}
}

// PrintTests renders grouped test runs.
func PrintTests(w io.Writer, groups []TestGroup) {
	for i, g := range groups {
		fmt.Fprintf(w, "\n  %d. %s\n", i+1, g.TestID)
		fmt.Fprintf(w, "     Time: %s\n", orNA(g.Timestamp))
		fmt.Fprintln(w, "     Files:")
		for _, f := range g.Files {
			kind := "full"
			if strings.HasPrefix(f.Name, PrefixSummary) {
				kind = "summary"
			}
			fmt.Fprintf(w, "       %s [%s] (%.2f KB)\n", f.Name, kind, float64(f.Size)/1024)
		}
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
