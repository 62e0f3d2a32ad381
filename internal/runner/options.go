package runner

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/chatstress/internal/metrics"
)

// Executor performs one request. Implementations never fail; every error is
// captured in the returned outcome.
type Executor interface {
	Execute(ctx context.Context, id int64) metrics.Outcome
}

// Options configure the Runner.
type Options struct {
	Concurrency   int           // maximum gated requests in flight
	TotalRequests int           // requests to send when Duration is zero
	Duration      time.Duration // run length; selects duration mode when > 0
	Interval      time.Duration // pause before each admission
	Rate          float64       // requests per second; selects rate mode when > 0 and Duration is zero
	Executor      Executor      // required
	Logger        *zap.Logger   // optional
}

// Mode is the scheduling strategy of a run. It is chosen once from Options
// and never changes during the run.
type Mode int

const (
	ModeConcurrency Mode = iota + 1
	ModeRatePaced
	ModeDurationBound
)

func (m Mode) String() string {
	switch m {
	case ModeConcurrency:
		return "concurrency"
	case ModeRatePaced:
		return "rate"
	case ModeDurationBound:
		return "duration"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Mode reports the strategy these options select. Duration wins over rate,
// which wins over plain concurrency.
func (o Options) Mode() Mode {
	switch {
	case o.Duration > 0:
		return ModeDurationBound
	case o.Rate > 0:
		return ModeRatePaced
	default:
		return ModeConcurrency
	}
}

// ConfigurationError reports options that cannot be scheduled. No request is
// sent when New returns one.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid runner option %s: %s", e.Field, e.Reason)
}

func (o Options) validate() error {
	switch {
	case o.Executor == nil:
		return &ConfigurationError{Field: "executor", Reason: "is required"}
	case o.Concurrency < 1:
		return &ConfigurationError{Field: "concurrency", Reason: fmt.Sprintf("must be >= 1, got %d", o.Concurrency)}
	case o.TotalRequests < 0:
		return &ConfigurationError{Field: "requests", Reason: fmt.Sprintf("must be >= 0, got %d", o.TotalRequests)}
	case o.Duration < 0:
		return &ConfigurationError{Field: "duration", Reason: fmt.Sprintf("must be >= 0, got %s", o.Duration)}
	case o.Interval < 0:
		return &ConfigurationError{Field: "interval", Reason: fmt.Sprintf("must be >= 0, got %s", o.Interval)}
	case o.Rate < 0 || math.IsNaN(o.Rate) || math.IsInf(o.Rate, 0):
		return &ConfigurationError{Field: "rate", Reason: fmt.Sprintf("must be a finite value >= 0, got %g", o.Rate)}
	case o.TotalRequests == 0 && o.Duration == 0:
		return &ConfigurationError{Field: "requests", Reason: "either requests or duration must be > 0"}
	}
	return nil
}
