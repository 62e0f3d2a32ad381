package threshold

import (
	"time"

	"github.com/torosent/chatstress/internal/config"
	"github.com/torosent/chatstress/internal/metrics"
)

// Grade is a coarse performance rating.
type Grade string

const (
	GradeExcellent  Grade = "excellent"
	GradeGood       Grade = "good"
	GradeAcceptable Grade = "acceptable"
	GradePoor       Grade = "poor"
)

func (g Grade) score() float64 {
	switch g {
	case GradeExcellent:
		return 4
	case GradeGood:
		return 3
	case GradeAcceptable:
		return 2
	default:
		return 1
	}
}

// Assessment grades a run on latency and success rate.
type Assessment struct {
	ResponseTime Grade `json:"responseTime"`
	SuccessRate  Grade `json:"successRate"`
	Overall      Grade `json:"overall"`
}

// Assess grades stats against the configured cutoffs. The overall grade is
// taken from the mean of both scores.
func Assess(stats metrics.RunStatistics, cutoffs config.AnalysisConfig) Assessment {
	rt := GradePoor
	switch avg := stats.AvgLatency; {
	case avg <= cutoffs.Excellent:
		rt = GradeExcellent
	case avg <= cutoffs.Good:
		rt = GradeGood
	case avg <= cutoffs.Acceptable:
		rt = GradeAcceptable
	}

	sr := GradePoor
	switch rate := stats.SuccessRate; {
	case rate >= cutoffs.SuccessExcellent:
		sr = GradeExcellent
	case rate >= cutoffs.SuccessGood:
		sr = GradeGood
	case rate >= cutoffs.SuccessAcceptable:
		sr = GradeAcceptable
	}

	overall := GradePoor
	switch mean := (rt.score() + sr.score()) / 2; {
	case mean >= 3.5:
		overall = GradeExcellent
	case mean >= 2.5:
		overall = GradeGood
	case mean >= 1.5:
		overall = GradeAcceptable
	}

	return Assessment{ResponseTime: rt, SuccessRate: sr, Overall: overall}
}

// DefaultCutoffs returns the grading cutoffs used when none are configured.
func DefaultCutoffs() config.AnalysisConfig {
	return config.AnalysisConfig{
		Excellent:         time.Second,
		Good:              3 * time.Second,
		Acceptable:        5 * time.Second,
		SuccessExcellent:  99,
		SuccessGood:       95,
		SuccessAcceptable: 90,
	}
}
