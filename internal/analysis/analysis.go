// Package analysis classifies failed requests and derives remediation
// recommendations from the dominant failure.
package analysis

import (
	"strings"

	"github.com/torosent/chatstress/internal/metrics"
)

// UnknownError stands in for a failure that carries no descriptor.
const UnknownError = "Unknown Error"

// SlowResponseThresholdMs is the average latency above which a slow-response
// recommendation is added.
const SlowResponseThresholdMs = 10_000

// RecommendationKind names a remediation rule.
type RecommendationKind string

const (
	KindTimeout      RecommendationKind = "timeout"
	KindRateLimit    RecommendationKind = "rate_limit"
	KindServerError  RecommendationKind = "server_error"
	KindAuthError    RecommendationKind = "auth_error"
	KindSlowResponse RecommendationKind = "slow_response"
)

// Recommendation is one remediation hint.
type Recommendation struct {
	Kind         RecommendationKind `json:"type"`
	Description  string             `json:"description"`
	Suggestion   string             `json:"suggestion"`
	Count        int64              `json:"count,omitempty"`
	AvgLatencyMs float64            `json:"avgResponseTime,omitempty"`
}

// Report summarises the failed outcomes of a run.
type Report struct {
	TotalFailures         int64              `json:"totalFailures"`
	ErrorTypes            *Histogram[string] `json:"errorTypes"`
	StatusCodes           *Histogram[int]    `json:"statusCodes"`
	MostCommonError       string             `json:"mostCommonError,omitempty"`
	MostCommonErrorCount  int64              `json:"mostCommonErrorCount,omitempty"`
	MostCommonStatus      int                `json:"mostCommonStatus"`
	MostCommonStatusCount int64              `json:"mostCommonStatusCount,omitempty"`
	Recommendations       []Recommendation   `json:"recommendations"`
}

// HasFailures reports whether any failed outcome was analysed.
func (r Report) HasFailures() bool {
	return r.TotalFailures > 0
}

// Analyze builds a report over the failed outcomes in their given order.
// stats supplies the run's average latency for the slow-response rule.
func Analyze(outcomes []metrics.Outcome, stats metrics.RunStatistics) Report {
	report := Report{
		ErrorTypes:      &Histogram[string]{},
		StatusCodes:     &Histogram[int]{},
		Recommendations: []Recommendation{},
	}
	firstStatus := map[string]int{}

	for _, o := range outcomes {
		if o.Success {
			continue
		}
		desc := o.Error
		if desc == "" {
			desc = UnknownError
		}
		if _, seen := firstStatus[desc]; !seen {
			firstStatus[desc] = o.Status
		}
		report.ErrorTypes.Add(desc)
		report.StatusCodes.Add(o.Status)
		report.TotalFailures++
	}

	if report.TotalFailures == 0 {
		return report
	}

	topErr, _ := report.ErrorTypes.MostCommon()
	topStatus, _ := report.StatusCodes.MostCommon()
	report.MostCommonError = topErr.Key
	report.MostCommonErrorCount = topErr.Count
	report.MostCommonStatus = topStatus.Key
	report.MostCommonStatusCount = topStatus.Count

	report.Recommendations = recommend(topErr.Key, firstStatus[topErr.Key], topErr.Count, stats)
	return report
}

func recommend(desc string, status int, count int64, stats metrics.RunStatistics) []Recommendation {
	recs := []Recommendation{}
	lower := strings.ToLower(desc)

	if isTimeout(lower) {
		recs = append(recs, Recommendation{
			Kind:        KindTimeout,
			Description: "Requests are timing out",
			Suggestion:  "Increase the request timeout or reduce concurrency",
			Count:       count,
		})
	}
	if status == 429 || strings.Contains(lower, "429") || strings.Contains(lower, "rate limit") {
		recs = append(recs, Recommendation{
			Kind:        KindRateLimit,
			Description: "The API is rate limiting requests",
			Suggestion:  "Lower concurrency or increase the interval between requests",
			Count:       count,
		})
	}
	switch status {
	case 500, 502, 503:
		recs = append(recs, Recommendation{
			Kind:        KindServerError,
			Description: "The server is returning errors",
			Suggestion:  "The server may be overloaded; reduce concurrency",
			Count:       count,
		})
	case 401, 403:
		recs = append(recs, Recommendation{
			Kind:        KindAuthError,
			Description: "Requests are being rejected as unauthorized",
			Suggestion:  "Check the API key and its permissions",
			Count:       count,
		})
	}

	if stats.AvgLatencyMs > SlowResponseThresholdMs {
		recs = append(recs, Recommendation{
			Kind:         KindSlowResponse,
			Description:  "Responses are very slow",
			Suggestion:   "Check network connectivity or reduce the request payload",
			AvgLatencyMs: stats.AvgLatencyMs,
		})
	}
	return recs
}

func isTimeout(lowerDesc string) bool {
	return strings.Contains(lowerDesc, "timeout") ||
		strings.Contains(lowerDesc, "deadline exceeded") ||
		strings.Contains(lowerDesc, "econnaborted")
}
