package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the validated description of a load test.
type Config struct {
	API         APIConfig           `yaml:"api"`
	Concurrency int                 `yaml:"concurrency"`
	Requests    int                 `yaml:"requests"`
	Duration    time.Duration       `yaml:"duration"`
	Timeout     time.Duration       `yaml:"timeout"`
	Interval    time.Duration       `yaml:"interval"`
	Rate        float64             `yaml:"rate"`
	Corpus      CorpusConfig        `yaml:"corpus"`
	Output      OutputConfig        `yaml:"output"`
	LogLevel    string              `yaml:"log_level"`
	LogFormat   string              `yaml:"log_format"`
	LogErrors   bool                `yaml:"log_errors"`
	MetricsAddr string              `yaml:"metrics_addr,omitempty"`
	Thresholds  []string            `yaml:"thresholds,omitempty"`
	Analysis    AnalysisConfig      `yaml:"analysis"`
	Tracing     TracingConfig       `yaml:"tracing"`
	Scenarios   map[string]Scenario `yaml:"scenarios,omitempty"`
	Scenario    string              `yaml:"scenario,omitempty"`
	ConfigFile  string              `yaml:"-"`
}

// APIConfig describes the chat-completion endpoint under test.
type APIConfig struct {
	BaseURL     string            `yaml:"base_url"`
	APIKey      string            `yaml:"api_key"`
	Model       string            `yaml:"model"`
	Endpoint    string            `yaml:"endpoint"`
	MaxTokens   int               `yaml:"max_tokens"`
	Temperature float64           `yaml:"temperature"`
	Headers     map[string]string `yaml:"headers,omitempty"`
	AuthHeader  string            `yaml:"auth_header,omitempty"`
	OAuth2      OAuth2Config      `yaml:"oauth2,omitempty"`
}

// OAuth2Config enables the client credentials grant instead of a static key.
type OAuth2Config struct {
	TokenURL            string        `yaml:"token_url,omitempty"`
	ClientID            string        `yaml:"client_id,omitempty"`
	ClientSecret        string        `yaml:"client_secret,omitempty"`
	Scopes              []string      `yaml:"scopes,omitempty"`
	RefreshBeforeExpiry time.Duration `yaml:"refresh_before_expiry,omitempty"`
}

// Enabled reports whether OAuth2 is configured.
func (o OAuth2Config) Enabled() bool {
	return strings.TrimSpace(o.TokenURL) != ""
}

type CorpusConfig struct {
	Path      string `yaml:"path,omitempty"`
	Type      string `yaml:"type,omitempty"` // json, csv or text
	Selection string `yaml:"selection"`      // random or round_robin
}

type OutputConfig struct {
	Save             bool          `yaml:"save"`
	Dir              string        `yaml:"dir"`
	JSON             bool          `yaml:"json"`
	Progress         bool          `yaml:"progress"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
	Dashboard        bool          `yaml:"dashboard"`
}

// AnalysisConfig holds the grading cutoffs used by the performance assessment.
type AnalysisConfig struct {
	Excellent         time.Duration `yaml:"excellent"`
	Good              time.Duration `yaml:"good"`
	Acceptable        time.Duration `yaml:"acceptable"`
	SuccessExcellent  float64       `yaml:"success_excellent"`
	SuccessGood       float64       `yaml:"success_good"`
	SuccessAcceptable float64       `yaml:"success_acceptable"`
}

// TracingConfig configures OTLP export of per-request spans.
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint,omitempty"`
	Protocol    string  `yaml:"protocol"` // grpc or http
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
	Propagate   bool    `yaml:"propagate"`
}

// Enabled reports whether spans should be exported.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// Default returns the configuration used before any file, environment or
// flag is applied.
func Default() Config {
	return Config{
		API: APIConfig{
			Endpoint:    "/v1/chat/completions",
			MaxTokens:   2000,
			Temperature: 0.7,
			Headers:     map[string]string{},
		},
		Concurrency: 10,
		Requests:    100,
		Timeout:     5 * time.Minute,
		Interval:    time.Second,
		Corpus:      CorpusConfig{Selection: "random"},
		Output: OutputConfig{
			Save:             true,
			Dir:              "./results",
			Progress:         true,
			ProgressInterval: time.Second,
		},
		LogLevel:  "info",
		LogFormat: "console",
		Analysis: AnalysisConfig{
			Excellent:         time.Second,
			Good:              3 * time.Second,
			Acceptable:        5 * time.Second,
			SuccessExcellent:  99,
			SuccessGood:       95,
			SuccessAcceptable: 90,
		},
		Tracing: TracingConfig{
			Protocol:    "grpc",
			ServiceName: "chatstress",
			SampleRate:  1,
			Propagate:   true,
		},
	}
}

// TargetURL joins the base URL and the endpoint path.
func (c Config) TargetURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	endpoint := strings.TrimSpace(c.API.Endpoint)
	if endpoint == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(endpoint, "/")
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var issues []string

	issues = append(issues, validateAPI(c.API)...)

	if c.Concurrency < 1 {
		issues = append(issues, "concurrency must be >= 1")
	}
	if c.Requests < 0 {
		issues = append(issues, "requests must be >= 0")
	}
	if c.Duration < 0 {
		issues = append(issues, "duration must be >= 0")
	}
	if c.Requests == 0 && c.Duration == 0 {
		issues = append(issues, "either requests or duration must be > 0")
	}
	if c.Timeout <= 0 {
		issues = append(issues, "timeout must be > 0")
	}
	if c.Interval < 0 {
		issues = append(issues, "interval must be >= 0")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}

	switch strings.ToLower(c.Corpus.Type) {
	case "", "json", "csv", "text":
	default:
		issues = append(issues, fmt.Sprintf("corpus type %q is not supported (json, csv or text)", c.Corpus.Type))
	}
	switch c.Corpus.Selection {
	case "", "random", "round_robin", "round-robin":
	default:
		issues = append(issues, fmt.Sprintf("corpus selection %q is not supported (random or round_robin)", c.Corpus.Selection))
	}

	if c.Output.Save && strings.TrimSpace(c.Output.Dir) == "" {
		issues = append(issues, "output dir is required when saving results")
	}
	if c.Output.ProgressInterval < 0 {
		issues = append(issues, "progress interval must be >= 0")
	}
	if c.Output.Dashboard && c.Output.JSON {
		issues = append(issues, "dashboard cannot be combined with JSON output")
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("log level %q is not supported", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "console", "json":
	default:
		issues = append(issues, fmt.Sprintf("log format %q is not supported (console or json)", c.LogFormat))
	}

	issues = append(issues, validateAnalysis(c.Analysis)...)
	issues = append(issues, validateTracing(c.Tracing)...)

	for name, sc := range c.Scenarios {
		for _, issue := range sc.validate() {
			issues = append(issues, fmt.Sprintf("scenarios.%s: %s", name, issue))
		}
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// longSetting flags timeouts and intervals that look like millisecond values
// read as seconds.
const longSetting = 10 * time.Minute

// Warnings lists settings that are valid but worth a second look.
func (c Config) Warnings() []string {
	var warnings []string
	if c.Rate > 1000 {
		warnings = append(warnings, fmt.Sprintf("high request rate configured (%g req/s); ensure you are authorized to load the target", c.Rate))
	}
	if c.Concurrency > 500 {
		warnings = append(warnings, fmt.Sprintf("high concurrency configured (%d); ensure you are authorized to load the target", c.Concurrency))
	}
	if c.Duration > 0 && c.Requests > 0 {
		warnings = append(warnings, "duration is set; the requests limit is ignored")
	}
	if c.Duration == 0 && c.Rate > 0 && c.Interval > 0 {
		warnings = append(warnings, "rate pacing ignores the interval setting")
	}
	if c.Timeout > longSetting {
		warnings = append(warnings, fmt.Sprintf("timeout of %s is unusually long; bare numbers in config files are seconds, not milliseconds", c.Timeout))
	}
	if c.Interval > longSetting {
		warnings = append(warnings, fmt.Sprintf("interval of %s is unusually long; bare numbers in config files are seconds, not milliseconds", c.Interval))
	}
	if u, err := url.Parse(c.API.BaseURL); err == nil && u.Scheme == "http" && c.API.APIKey != "" {
		warnings = append(warnings, "API key will be sent over plain HTTP")
	}
	return warnings
}

func validateAPI(api APIConfig) []string {
	var issues []string
	base := strings.TrimSpace(api.BaseURL)
	if base == "" {
		issues = append(issues, "api base_url is required")
	} else if u, err := url.Parse(base); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		issues = append(issues, fmt.Sprintf("api base_url %q must be an absolute http(s) URL", base))
	}
	if strings.TrimSpace(api.Model) == "" {
		issues = append(issues, "api model is required")
	}
	if api.OAuth2.Enabled() {
		if strings.TrimSpace(api.OAuth2.ClientID) == "" {
			issues = append(issues, "api oauth2 client_id is required")
		}
		if api.OAuth2.RefreshBeforeExpiry < 0 {
			issues = append(issues, "api oauth2 refresh_before_expiry must be >= 0")
		}
	} else if strings.TrimSpace(api.APIKey) == "" {
		issues = append(issues, "api api_key is required (or configure api.oauth2)")
	}
	if api.MaxTokens < 0 {
		issues = append(issues, "api max_tokens must be >= 0")
	}
	if api.Temperature < 0 || api.Temperature > 2 {
		issues = append(issues, "api temperature must be between 0 and 2")
	}
	for key, value := range api.Headers {
		if strings.TrimSpace(key) == "" || strings.ContainsAny(key, "\r\n") {
			issues = append(issues, fmt.Sprintf("invalid header key %q", key))
		}
		if strings.ContainsAny(value, "\r\n") {
			issues = append(issues, fmt.Sprintf("invalid header value for %s", key))
		}
	}
	return issues
}

func validateAnalysis(a AnalysisConfig) []string {
	var issues []string
	if a.Excellent <= 0 || a.Good < a.Excellent || a.Acceptable < a.Good {
		issues = append(issues, "analysis response time cutoffs must satisfy 0 < excellent <= good <= acceptable")
	}
	if a.SuccessExcellent > 100 || a.SuccessExcellent < a.SuccessGood || a.SuccessGood < a.SuccessAcceptable || a.SuccessAcceptable < 0 {
		issues = append(issues, "analysis success cutoffs must satisfy 100 >= success_excellent >= success_good >= success_acceptable >= 0")
	}
	return issues
}

func validateTracing(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing protocol %q is not supported (grpc or http)", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, "tracing sample_rate must be between 0 and 1")
	}
	return issues
}
