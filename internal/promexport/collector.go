// Package promexport publishes live run metrics for Prometheus scraping.
package promexport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/torosent/chatstress/internal/metrics"
)

const namespace = "chatstress"

var (
	requestsDesc = prometheus.NewDesc(
		namespace+"_requests_total",
		"Completed requests by outcome.",
		[]string{"outcome"}, nil,
	)
	inFlightDesc = prometheus.NewDesc(
		namespace+"_requests_in_flight",
		"Requests dispatched and not yet completed.",
		nil, nil,
	)
	latencyDesc = prometheus.NewDesc(
		namespace+"_latency_seconds",
		"Estimated request latency percentiles for the current run.",
		[]string{"percentile"}, nil,
	)
	meanLatencyDesc = prometheus.NewDesc(
		namespace+"_latency_mean_seconds",
		"Mean request latency for the current run.",
		nil, nil,
	)
)

// LiveSource supplies mid-run counters.
type LiveSource interface {
	Live() metrics.LiveStats
}

// Collector reads the live run state on every scrape.
type Collector struct {
	source   LiveSource
	inFlight func() int64
}

// NewCollector returns a collector over source. inFlight may be nil.
func NewCollector(source LiveSource, inFlight func() int64) *Collector {
	return &Collector{source: source, inFlight: inFlight}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- requestsDesc
	ch <- inFlightDesc
	ch <- latencyDesc
	ch <- meanLatencyDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	live := c.source.Live()
	ch <- prometheus.MustNewConstMetric(requestsDesc, prometheus.CounterValue, float64(live.Success), "success")
	ch <- prometheus.MustNewConstMetric(requestsDesc, prometheus.CounterValue, float64(live.Timeouts), "timeout")
	ch <- prometheus.MustNewConstMetric(requestsDesc, prometheus.CounterValue, float64(live.Failed-live.Timeouts), "error")

	var inFlight int64
	if c.inFlight != nil {
		inFlight = c.inFlight()
	}
	ch <- prometheus.MustNewConstMetric(inFlightDesc, prometheus.GaugeValue, float64(inFlight))
	ch <- prometheus.MustNewConstMetric(latencyDesc, prometheus.GaugeValue, live.P50Latency.Seconds(), "p50")
	ch <- prometheus.MustNewConstMetric(latencyDesc, prometheus.GaugeValue, live.P99Latency.Seconds(), "p99")
	ch <- prometheus.MustNewConstMetric(meanLatencyDesc, prometheus.GaugeValue, live.MeanLatency.Seconds())
}

// Server exposes a collector on /metrics.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *zap.Logger
	done   chan struct{}
}

// Serve starts listening on addr and serves until Shutdown is called.
func Serve(addr string, c *Collector, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := prometheus.NewRegistry()
	if err := registry.Register(c); err != nil {
		return nil, fmt.Errorf("register collector: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	s := &Server{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		logger: logger,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("metrics endpoint listening", zap.String("addr", ln.Addr().String()))
	return s, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server, waiting for open scrapes until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
