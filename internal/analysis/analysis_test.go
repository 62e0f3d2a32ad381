package analysis

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/chatstress/internal/metrics"
)

func failure(id int64, status int, desc string) metrics.Outcome {
	kind := metrics.FailureHTTP
	if status == 0 {
		kind = metrics.FailureNetwork
	}
	return metrics.Outcome{RequestID: id, Status: status, Error: desc, Kind: kind}
}

func httpFailure(id int64, status int) metrics.Outcome {
	return failure(id, status, "Request failed with status code "+strconv.Itoa(status))
}

func TestNoFailuresNoRecommendations(t *testing.T) {
	outcomes := []metrics.Outcome{
		{RequestID: 1, Success: true, Status: 200},
		{RequestID: 2, Success: true, Status: 200},
	}
	report := Analyze(outcomes, metrics.RunStatistics{AvgLatencyMs: 20_000})

	assert.False(t, report.HasFailures())
	assert.Zero(t, report.ErrorTypes.Len())
	assert.Zero(t, report.StatusCodes.Len())
	assert.Empty(t, report.Recommendations, "slow responses alone do not produce recommendations")
	assert.Empty(t, report.MostCommonError)
}

func TestHistogramsOnlyCountFailures(t *testing.T) {
	outcomes := []metrics.Outcome{
		{RequestID: 1, Success: true, Status: 200},
		httpFailure(2, 500),
		failure(3, 0, "connect: connection refused"),
		httpFailure(4, 500),
		{RequestID: 5, Status: 0},
	}
	report := Analyze(outcomes, metrics.RunStatistics{})

	assert.Equal(t, int64(4), report.TotalFailures)
	assert.Equal(t, report.TotalFailures, report.ErrorTypes.Total())
	assert.Equal(t, report.TotalFailures, report.StatusCodes.Total())
	assert.Equal(t, int64(1), report.ErrorTypes.Count(UnknownError))
	assert.Equal(t, int64(2), report.StatusCodes.Count(0))
	assert.Equal(t, "Request failed with status code 500", report.MostCommonError)
	assert.Equal(t, int64(2), report.MostCommonErrorCount)
}

func TestMostCommonTieBreaksByFirstInsertion(t *testing.T) {
	outcomes := []metrics.Outcome{
		httpFailure(1, 503),
		httpFailure(2, 401),
		httpFailure(3, 401),
		httpFailure(4, 503),
	}
	for i := 0; i < 20; i++ {
		report := Analyze(outcomes, metrics.RunStatistics{})
		require.Equal(t, "Request failed with status code 503", report.MostCommonError)
		require.Equal(t, 503, report.MostCommonStatus)
		require.Len(t, report.Recommendations, 1)
		require.Equal(t, KindServerError, report.Recommendations[0].Kind)
	}
}

func TestRecommendationRules(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []metrics.Outcome
		want     []RecommendationKind
	}{
		{"timeout", []metrics.Outcome{{Error: "timeout of 30000ms exceeded", Kind: metrics.FailureTimeout}}, []RecommendationKind{KindTimeout}},
		{"econnaborted", []metrics.Outcome{failure(1, 0, "ECONNABORTED")}, []RecommendationKind{KindTimeout}},
		{"rate limit status", []metrics.Outcome{httpFailure(1, 429)}, []RecommendationKind{KindRateLimit}},
		{"rate limit text", []metrics.Outcome{failure(1, 0, "upstream rate limit hit")}, []RecommendationKind{KindRateLimit}},
		{"bad gateway", []metrics.Outcome{httpFailure(1, 502)}, []RecommendationKind{KindServerError}},
		{"forbidden", []metrics.Outcome{httpFailure(1, 403)}, []RecommendationKind{KindAuthError}},
		{"not found", []metrics.Outcome{httpFailure(1, 404)}, nil},
		{"gateway timeout", []metrics.Outcome{failure(1, 504, "upstream timeout")}, []RecommendationKind{KindTimeout}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Analyze(tt.outcomes, metrics.RunStatistics{})
			var got []RecommendationKind
			for _, rec := range report.Recommendations {
				got = append(got, rec.Kind)
				assert.Equal(t, int64(len(tt.outcomes)), rec.Count)
				assert.NotEmpty(t, rec.Suggestion)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRulesUseOnlyDominantError(t *testing.T) {
	outcomes := []metrics.Outcome{
		httpFailure(1, 401),
		httpFailure(2, 500),
		httpFailure(3, 500),
	}
	report := Analyze(outcomes, metrics.RunStatistics{})
	require.Len(t, report.Recommendations, 1)
	assert.Equal(t, KindServerError, report.Recommendations[0].Kind)
	assert.Equal(t, int64(2), report.Recommendations[0].Count)
}

func TestSlowResponseAppendedLast(t *testing.T) {
	report := Analyze([]metrics.Outcome{httpFailure(1, 429)}, metrics.RunStatistics{AvgLatencyMs: 12_500})
	require.Len(t, report.Recommendations, 2)
	assert.Equal(t, KindRateLimit, report.Recommendations[0].Kind)
	assert.Equal(t, KindSlowResponse, report.Recommendations[1].Kind)
	assert.Equal(t, 12_500.0, report.Recommendations[1].AvgLatencyMs)

	report = Analyze([]metrics.Outcome{httpFailure(1, 429)}, metrics.RunStatistics{AvgLatencyMs: 10_000})
	assert.Len(t, report.Recommendations, 1, "threshold is strictly greater than 10s")
}

func TestReportJSONKeepsInsertionOrder(t *testing.T) {
	report := Analyze([]metrics.Outcome{
		httpFailure(1, 503),
		httpFailure(2, 429),
		httpFailure(3, 429),
		failure(4, 0, "connect: connection refused"),
	}, metrics.RunStatistics{})

	data, err := json.Marshal(report)
	require.NoError(t, err)

	var decoded struct {
		TotalFailures   int64            `json:"totalFailures"`
		ErrorTypes      json.RawMessage  `json:"errorTypes"`
		StatusCodes     map[string]int64 `json:"statusCodes"`
		Recommendations []Recommendation `json:"recommendations"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, int64(4), decoded.TotalFailures)
	assert.Equal(t,
		`{"Request failed with status code 503":1,"Request failed with status code 429":2,"connect: connection refused":1}`,
		string(decoded.ErrorTypes))
	assert.Equal(t, map[string]int64{"503": 1, "429": 2, "0": 1}, decoded.StatusCodes)
	require.Len(t, decoded.Recommendations, 1)
	assert.Equal(t, KindRateLimit, decoded.Recommendations[0].Kind)
}

func TestReportJSONKeepsNoResponseStatus(t *testing.T) {
	timeout := metrics.Outcome{Kind: metrics.FailureTimeout, Error: "timeout of 1000ms exceeded"}
	first, second := timeout, timeout
	first.RequestID, second.RequestID = 1, 2
	report := Analyze([]metrics.Outcome{first, second}, metrics.RunStatistics{})

	data, err := json.Marshal(report)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Contains(t, decoded, "mostCommonStatus")
	assert.Equal(t, "0", string(decoded["mostCommonStatus"]))
	assert.Equal(t, "2", string(decoded["mostCommonStatusCount"]))
}

func TestHistogramZeroValue(t *testing.T) {
	var h Histogram[string]
	_, ok := h.MostCommon()
	assert.False(t, ok)
	h.Add("a")
	h.Add("b")
	h.Add("b")
	e, ok := h.MostCommon()
	require.True(t, ok)
	assert.Equal(t, Entry[string]{Key: "b", Count: 2}, e)
	assert.Equal(t, []Entry[string]{{"a", 1}, {"b", 2}}, h.Entries())

	var nilHist *Histogram[int]
	data, err := json.Marshal(nilHist)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}
