package config

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all load-test flags on a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	def := Default()

	flags.String("config", "", "Path to configuration file (YAML, JSON or TOML)")
	flags.String("scenario", "", "Named scenario to apply before flag overrides")

	// API flags
	flags.String("base-url", "", "Base URL of the chat-completion API")
	flags.String("api-key", "", "API key (or set CHATSTRESS_API_KEY)")
	flags.String("model", "", "Model name sent with every request")
	flags.String("endpoint", def.API.Endpoint, "Chat-completion path appended to the base URL")
	flags.Int("max-tokens", def.API.MaxTokens, "max_tokens sent with every request")
	flags.Float64("temperature", def.API.Temperature, "temperature sent with every request")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.String("auth-header", "", "Header carrying the API key (default Authorization with Bearer prefix)")

	// Load control flags
	flags.IntP("concurrency", "c", def.Concurrency, "Maximum number of requests in flight")
	flags.IntP("requests", "r", def.Requests, "Total number of requests to send")
	flags.DurationP("duration", "d", 0, "Run for a fixed duration instead of a request count (e.g. 30s, 5m)")
	flags.DurationP("timeout", "t", def.Timeout, "Per-request timeout")
	flags.DurationP("interval", "i", def.Interval, "Pause before each request while holding its slot")
	flags.Float64("rate", 0, "Target arrival rate in requests per second (0 disables rate pacing)")

	// Corpus flags
	flags.String("corpus", "", "Path to a prompt corpus file (json, csv or text)")
	flags.String("corpus-type", "", "Corpus file type; detected from the extension when empty")
	flags.String("selection", def.Corpus.Selection, "Prompt selection: random or round_robin")

	// Output flags
	flags.StringP("output", "o", def.Output.Dir, "Directory for result files")
	flags.Bool("no-save", false, "Do not write result files")
	flags.Bool("json-output", false, "Emit the final report as JSON")
	flags.Bool("no-progress", false, "Disable live progress output")
	flags.Duration("progress-interval", def.Output.ProgressInterval, "Live progress refresh interval")
	flags.Bool("dashboard", false, "Show a live terminal dashboard instead of the progress line")

	// Logging and metrics flags
	flags.String("log-level", def.LogLevel, "Log level: debug, info, warn or error")
	flags.String("log-format", def.LogFormat, "Log format: console or json")
	flags.Bool("log-errors", false, "Log each failed request")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address during the run (e.g. :9090)")
	flags.StringSlice("threshold", nil, "Pass/fail threshold (repeatable, e.g. 'latency:p95 < 3000')")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP endpoint for per-request spans")
	flags.String("tracing-protocol", def.Tracing.Protocol, "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
}

// applyFlagOverrides applies command-line flag values to the config,
// overriding values from the config file and environment.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"base-url", &cfg.API.BaseURL},
		{"api-key", &cfg.API.APIKey},
		{"model", &cfg.API.Model},
		{"endpoint", &cfg.API.Endpoint},
		{"auth-header", &cfg.API.AuthHeader},
		{"corpus", &cfg.Corpus.Path},
		{"corpus-type", &cfg.Corpus.Type},
		{"selection", &cfg.Corpus.Selection},
		{"output", &cfg.Output.Dir},
		{"log-level", &cfg.LogLevel},
		{"log-format", &cfg.LogFormat},
		{"metrics-addr", &cfg.MetricsAddr},
		{"tracing-endpoint", &cfg.Tracing.Endpoint},
		{"tracing-protocol", &cfg.Tracing.Protocol},
	}
	for _, f := range strs {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetString(f.name)
		if err != nil {
			return err
		}
		*f.dst = strings.TrimSpace(val)
	}

	if fs.Changed("max-tokens") {
		val, err := fs.GetInt("max-tokens")
		if err != nil {
			return err
		}
		cfg.API.MaxTokens = val
	}
	if fs.Changed("temperature") {
		val, err := fs.GetFloat64("temperature")
		if err != nil {
			return err
		}
		cfg.API.Temperature = val
	}
	if fs.Changed("concurrency") {
		val, err := fs.GetInt("concurrency")
		if err != nil {
			return err
		}
		cfg.Concurrency = val
	}
	if fs.Changed("requests") {
		val, err := fs.GetInt("requests")
		if err != nil {
			return err
		}
		cfg.Requests = val
	}
	if fs.Changed("duration") {
		val, err := fs.GetDuration("duration")
		if err != nil {
			return err
		}
		cfg.Duration = val
	}
	if fs.Changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
	}
	if fs.Changed("interval") {
		val, err := fs.GetDuration("interval")
		if err != nil {
			return err
		}
		cfg.Interval = val
	}
	if fs.Changed("rate") {
		val, err := fs.GetFloat64("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
	}
	if fs.Changed("progress-interval") {
		val, err := fs.GetDuration("progress-interval")
		if err != nil {
			return err
		}
		cfg.Output.ProgressInterval = val
	}

	if fs.Changed("no-save") {
		val, err := fs.GetBool("no-save")
		if err != nil {
			return err
		}
		cfg.Output.Save = !val
	}
	if fs.Changed("no-progress") {
		val, err := fs.GetBool("no-progress")
		if err != nil {
			return err
		}
		cfg.Output.Progress = !val
	}
	if fs.Changed("dashboard") {
		val, err := fs.GetBool("dashboard")
		if err != nil {
			return err
		}
		cfg.Output.Dashboard = val
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.Output.JSON = val
	}
	if fs.Changed("log-errors") {
		val, err := fs.GetBool("log-errors")
		if err != nil {
			return err
		}
		cfg.LogErrors = val
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}

	if fs.Changed("header") {
		vals, err := fs.GetStringSlice("header")
		if err != nil {
			return err
		}
		if cfg.API.Headers == nil {
			cfg.API.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.API.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	return nil
}
