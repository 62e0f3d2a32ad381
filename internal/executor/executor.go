// Package executor sends one chat-completion request per call and turns
// every possible result into a metrics.Outcome.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/torosent/chatstress/internal/corpus"
	"github.com/torosent/chatstress/internal/httpclient"
	"github.com/torosent/chatstress/internal/metrics"
	"github.com/torosent/chatstress/internal/tracing"
)

const (
	maxErrorBodyBytes = 64 * 1024
	debugEvery        = 100

	// RequestIDHeader carries a fresh correlation id on every request.
	RequestIDHeader = "X-Request-Id"
)

// Options configure an Executor. Client, Builder, Corpus and Aggregator are
// required.
type Options struct {
	Client     *http.Client
	Builder    *httpclient.RequestBuilder
	Corpus     *corpus.Corpus
	Aggregator *metrics.Aggregator
	Timeout    time.Duration
	Model      string
	Logger     *zap.Logger
	LogErrors  bool
	Tracer     trace.Tracer // nil disables spans
	Propagate  bool
}

// Executor dispatches single requests. It is safe for concurrent use.
type Executor struct {
	client     *http.Client
	builder    *httpclient.RequestBuilder
	corpus     *corpus.Corpus
	aggregator *metrics.Aggregator
	timeout    time.Duration
	model      string
	logger     *zap.Logger
	logErrors  bool
	tracer     trace.Tracer
	propagate  bool

	debug rate.Sometimes
}

func New(opt Options) (*Executor, error) {
	switch {
	case opt.Client == nil:
		return nil, errors.New("executor: http client is required")
	case opt.Builder == nil:
		return nil, errors.New("executor: request builder is required")
	case opt.Corpus == nil:
		return nil, errors.New("executor: corpus is required")
	case opt.Aggregator == nil:
		return nil, errors.New("executor: aggregator is required")
	case opt.Timeout <= 0:
		return nil, fmt.Errorf("executor: timeout must be > 0, got %s", opt.Timeout)
	}
	logger := opt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		client:     opt.Client,
		builder:    opt.Builder,
		corpus:     opt.Corpus,
		aggregator: opt.Aggregator,
		timeout:    opt.Timeout,
		model:      opt.Model,
		logger:     logger,
		logErrors:  opt.LogErrors,
		tracer:     opt.Tracer,
		propagate:  opt.Propagate,
		debug:      rate.Sometimes{Every: debugEvery},
	}, nil
}

// Execute sends request id and returns its outcome. The outcome is recorded
// in the aggregator before Execute returns. Execute never fails; every error
// is captured in the outcome.
func (e *Executor) Execute(ctx context.Context, id int64) metrics.Outcome {
	start := time.Now()
	msg := e.corpus.Next()

	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var span trace.Span
	if e.tracer != nil {
		reqCtx, span = tracing.StartRequestSpan(reqCtx, e.tracer, id, e.model, e.builder.Target())
	}

	e.debug.Do(func() {
		e.logger.Debug("dispatching request",
			zap.Int64("request_id", id),
			zap.Int("message_bytes", len(msg.Content)),
		)
	})

	outcome, spanErr := e.do(reqCtx, msg)
	outcome.RequestID = id
	outcome.CompletedAt = time.Now()
	outcome.Latency = outcome.CompletedAt.Sub(start)

	if span != nil {
		tracing.EndSpan(span, spanErr, tracing.StatusAttr(outcome.Status))
	}

	e.aggregator.Record(outcome)

	if !outcome.Success && e.logErrors {
		fields := []zap.Field{
			zap.Int64("request_id", id),
			zap.Stringer("kind", outcome.Kind),
			zap.Int("status", outcome.Status),
			zap.String("error", outcome.Error),
			zap.Duration("latency", outcome.Latency),
		}
		if outcome.Detail != "" {
			fields = append(fields, zap.String("detail", outcome.Detail))
		}
		e.logger.Warn("request failed", fields...)
	}
	return outcome
}

func (e *Executor) do(ctx context.Context, msg corpus.Message) (metrics.Outcome, error) {
	req, err := e.builder.Build(ctx, msg)
	if err != nil {
		return e.failure(err), err
	}
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if e.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return e.failure(err), err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		desc := fmt.Sprintf("Request failed with status code %d", resp.StatusCode)
		return metrics.Outcome{
			Status: resp.StatusCode,
			Error:  desc,
			Kind:   metrics.FailureHTTP,
			Detail: ErrorDetail(body),
		}, errors.New(desc)
	}

	// The request is complete once the whole completion has arrived.
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		out := e.failure(err)
		out.Status = resp.StatusCode
		return out, err
	}
	return metrics.Outcome{Success: true, Status: resp.StatusCode}, nil
}

// failure classifies a transport-level error.
func (e *Executor) failure(err error) metrics.Outcome {
	if IsTimeout(err) {
		return metrics.Outcome{
			Error: TimeoutDescriptor(e.timeout),
			Kind:  metrics.FailureTimeout,
		}
	}
	return metrics.Outcome{
		Error: networkDescriptor(err),
		Kind:  metrics.FailureNetwork,
	}
}

// TimeoutDescriptor is the error text recorded for a request that exceeded
// timeout.
func TimeoutDescriptor(timeout time.Duration) string {
	return fmt.Sprintf("timeout of %dms exceeded", timeout.Milliseconds())
}

// IsTimeout reports whether err is a deadline expiry.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func networkDescriptor(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err.Error()
	}
	return err.Error()
}

// ErrorDetail extracts the server's error message from a JSON error body.
func ErrorDetail(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range []string{"error.message", "message", "error", "detail"} {
		if r := gjson.GetBytes(body, path); r.Type == gjson.String && r.Str != "" {
			return r.Str
		}
	}
	return ""
}
