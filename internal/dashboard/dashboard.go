package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/chatstress/internal/metrics"
)

const historySize = 100

// RunInfo holds load test configuration parameters for display.
type RunInfo struct {
	Target      string
	Model       string
	Mode        string
	Concurrency int
	Requests    int           // 0 when the run is bounded by Duration
	Duration    time.Duration // 0 when the run is bounded by Requests
	Rate        float64       // requests per second, 0 when not rate paced
	Timeout     time.Duration
	Scenario    string
	ConfigFile  string
}

// Source supplies mid-run counters.
type Source interface {
	Live() metrics.LiveStats
}

// Dashboard renders a live terminal UI for a running load test.
type Dashboard struct {
	source    Source
	inFlight  func() int64
	info      RunInfo
	interrupt func()
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex

	grid           *ui.Grid
	summaryPara    *widgets.Paragraph
	qpsGauge       *widgets.Gauge
	countersPara   *widgets.Paragraph
	latencySparkle *widgets.SparklineGroup
	latencyPara    *widgets.Paragraph
	failureList    *widgets.List

	latencyHistory []float64
	peakQPS        float64
	startTime      time.Time
}

// New initialises the terminal and creates a dashboard. interrupt is called
// when the user presses q or Ctrl-C and may be nil.
func New(source Source, inFlight func() int64, info RunInfo, interrupt func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}
	d := newDashboard(source, inFlight, info, interrupt)
	d.setupGrid()
	return d, nil
}

func newDashboard(source Source, inFlight func() int64, info RunInfo, interrupt func()) *Dashboard {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		source:         source,
		inFlight:       inFlight,
		info:           info,
		interrupt:      interrupt,
		ctx:            ctx,
		cancel:         cancel,
		latencyHistory: make([]float64, 0, historySize),
		startTime:      time.Now(),
	}
	d.initWidgets()
	return d
}

func (d *Dashboard) initWidgets() {
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Load Test"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.qpsGauge = widgets.NewGauge()
	d.qpsGauge.Title = "Requests Per Second"
	d.qpsGauge.BarColor = ui.ColorBlue
	d.qpsGauge.BorderStyle.Fg = ui.ColorCyan
	d.qpsGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.countersPara = widgets.NewParagraph()
	d.countersPara.Title = "Requests"
	d.countersPara.Text = "Waiting for data..."
	d.countersPara.BorderStyle.Fg = ui.ColorCyan

	sparkline := widgets.NewSparkline()
	sparkline.Title = "Mean latency (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}
	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Latency Stats"
	d.latencyPara.Text = "Mean: 0ms\nP50:  0ms\nP99:  0ms"
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.failureList = widgets.NewList()
	d.failureList.Title = "Failures"
	d.failureList.Rows = []string{"[No failures](fg:green)"}
	d.failureList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.failureList.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)
	d.grid.Set(
		ui.NewRow(0.18,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.24,
			ui.NewCol(0.5, d.qpsGauge),
			ui.NewCol(0.5, d.countersPara),
		),
		ui.NewRow(0.34,
			ui.NewCol(0.65, d.latencySparkle),
			ui.NewCol(0.35, d.latencyPara),
		),
		ui.NewRow(0.24,
			ui.NewCol(1.0, d.failureList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the update loop and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()
	d.render()

	for {
		select {
		case <-d.ctx.Done():
			return
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				if d.interrupt != nil {
					d.interrupt()
				}
				// Stop cancels the loop once the run has drained.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update(time.Since(d.startTime))
			d.render()
		}
	}
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()
	ui.Render(d.grid)
}

// update refreshes every widget from the live counters.
func (d *Dashboard) update(elapsed time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	live := d.source.Live()
	var inFlight int64
	if d.inFlight != nil {
		inFlight = d.inFlight()
	}

	qps := 0.0
	if elapsed > 0 {
		qps = float64(live.Total) / elapsed.Seconds()
	}
	if qps > d.peakQPS {
		d.peakQPS = qps
	}
	d.qpsGauge.Percent = gaugePercent(qps, d.gaugeScale())
	d.qpsGauge.Label = fmt.Sprintf("%.1f req/s", qps)

	d.summaryPara.Text = fmt.Sprintf("Target: %s\n%s\nElapsed: %s%s",
		d.info.Target, formatRunInfo(d.info), elapsed.Round(time.Second), formatRemaining(d.info, elapsed, live.Total))

	d.countersPara.Text = fmt.Sprintf(
		"Total:      %d\nSuccessful: %d\nFailed:     %d\nIn flight:  %d\nSuccess:    %.1f%%",
		live.Total, live.Success, live.Failed, inFlight, successRate(live))

	meanMs := msFloat(live.MeanLatency)
	if live.Total > 0 {
		d.latencyHistory = append(d.latencyHistory, meanMs)
		if len(d.latencyHistory) > historySize {
			d.latencyHistory = d.latencyHistory[1:]
		}
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
	}
	d.latencyPara.Text = fmt.Sprintf("Mean: %.0fms\nP50:  %.0fms\nP99:  %.0fms",
		meanMs, msFloat(live.P50Latency), msFloat(live.P99Latency))

	d.failureList.Rows = formatFailureRows(live)
}

// gaugeScale is the request rate shown as a full gauge: the configured rate
// when pacing, otherwise the highest rate seen so far.
func (d *Dashboard) gaugeScale() float64 {
	if d.info.Rate > 0 {
		return d.info.Rate
	}
	return d.peakQPS
}

func gaugePercent(qps, scale float64) int {
	if scale <= 0 {
		return 0
	}
	p := int(qps / scale * 100)
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	return p
}

func formatFailureRows(live metrics.LiveStats) []string {
	if live.Failed == 0 {
		return []string{"[No failures](fg:green)"}
	}
	other := live.Failed - live.Timeouts
	rows := make([]string, 0, 2)
	if live.Timeouts > 0 {
		rows = append(rows, fmt.Sprintf("[Timeouts](fg:red) %d (%.1f%%)", live.Timeouts, share(live.Timeouts, live.Failed)))
	}
	if other > 0 {
		rows = append(rows, fmt.Sprintf("[Errors](fg:red) %d (%.1f%%)", other, share(other, live.Failed)))
	}
	return rows
}

// formatRunInfo formats the load test parameters for display.
func formatRunInfo(info RunInfo) string {
	var parts []string
	if info.Model != "" {
		parts = append(parts, fmt.Sprintf("Model: %s", info.Model))
	}
	if info.Mode != "" {
		parts = append(parts, fmt.Sprintf("Mode: %s", info.Mode))
	}
	if info.Concurrency > 0 {
		parts = append(parts, fmt.Sprintf("Concurrency: %d", info.Concurrency))
	}
	if info.Rate > 0 {
		parts = append(parts, fmt.Sprintf("Rate: %g/s", info.Rate))
	}
	if info.Duration > 0 {
		parts = append(parts, fmt.Sprintf("Duration: %s", info.Duration))
	} else if info.Requests > 0 {
		parts = append(parts, fmt.Sprintf("Requests: %d", info.Requests))
	}
	if info.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", info.Timeout))
	}
	if info.Scenario != "" {
		parts = append(parts, fmt.Sprintf("Scenario: %s", info.Scenario))
	}
	if info.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", info.ConfigFile))
	}
	return strings.Join(parts, " | ")
}

func formatRemaining(info RunInfo, elapsed time.Duration, done int64) string {
	switch {
	case info.Duration > 0:
		left := info.Duration - elapsed
		if left < 0 {
			left = 0
		}
		return fmt.Sprintf(" | Remaining: %s", left.Round(time.Second))
	case info.Requests > 0:
		return fmt.Sprintf(" | Completed: %d/%d", done, info.Requests)
	}
	return ""
}

func successRate(live metrics.LiveStats) float64 {
	if live.Total == 0 {
		return 0
	}
	return float64(live.Success) / float64(live.Total) * 100
}

func share(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func msFloat(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
