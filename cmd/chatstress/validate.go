package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/torosent/chatstress/internal/auth"
	"github.com/torosent/chatstress/internal/config"
	"github.com/torosent/chatstress/internal/threshold"
)

func newValidateCmd() *cobra.Command {
	var printConfig bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration without sending any requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewLoader().Load(cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if _, err := threshold.ParseMultiple(cfg.Thresholds); err != nil {
				return err
			}
			if _, err := buildCorpus(cfg.Corpus); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, w := range cfg.Warnings() {
				fmt.Fprintf(out, "Warning: %s\n", w)
			}
			printValidation(out, cfg)
			if printConfig {
				fmt.Fprintln(out)
				return printEffectiveConfig(out, cfg)
			}
			return nil
		},
	}
	config.RegisterFlags(cmd)
	cmd.Flags().BoolVar(&printConfig, "print", false, "Print the effective configuration as YAML with secrets masked")
	return cmd
}

func printValidation(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Configuration is valid")
	fmt.Fprintf(w, "  Target:       %s\n", cfg.TargetURL())
	fmt.Fprintf(w, "  Model:        %s\n", cfg.API.Model)
	if cfg.API.OAuth2.Enabled() {
		fmt.Fprintf(w, "  Auth:         oauth2 client credentials (%s)\n", cfg.API.OAuth2.TokenURL)
	} else {
		fmt.Fprintf(w, "  API Key:      %s\n", auth.Mask(cfg.API.APIKey))
	}
	switch {
	case cfg.Duration > 0:
		fmt.Fprintf(w, "  Load:         duration %s, concurrency %d\n", cfg.Duration, cfg.Concurrency)
	case cfg.Rate > 0:
		fmt.Fprintf(w, "  Load:         %d requests at %g/s\n", cfg.Requests, cfg.Rate)
	default:
		fmt.Fprintf(w, "  Load:         %d requests, concurrency %d\n", cfg.Requests, cfg.Concurrency)
	}
	fmt.Fprintf(w, "  Timeout:      %s\n", cfg.Timeout)
	if cfg.Scenario != "" {
		fmt.Fprintf(w, "  Scenario:     %s\n", cfg.Scenario)
	}
	if len(cfg.Thresholds) > 0 {
		fmt.Fprintf(w, "  Thresholds:   %d\n", len(cfg.Thresholds))
	}
}

// effectiveConfig is the printable view of a Config. Durations are rendered
// as strings and secrets are masked.
type effectiveConfig struct {
	API         effectiveAPI         `yaml:"api"`
	Concurrency int                  `yaml:"concurrency"`
	Requests    int                  `yaml:"requests"`
	Duration    string               `yaml:"duration,omitempty"`
	Timeout     string               `yaml:"timeout"`
	Interval    string               `yaml:"interval"`
	Rate        float64              `yaml:"rate,omitempty"`
	Scenario    string               `yaml:"scenario,omitempty"`
	Corpus      config.CorpusConfig  `yaml:"corpus"`
	Output      effectiveOutput      `yaml:"output"`
	LogLevel    string               `yaml:"log_level"`
	LogFormat   string               `yaml:"log_format"`
	MetricsAddr string               `yaml:"metrics_addr,omitempty"`
	Thresholds  []string             `yaml:"thresholds,omitempty"`
	Tracing     config.TracingConfig `yaml:"tracing"`
	Analysis    map[string]any       `yaml:"analysis"`
}

type effectiveAPI struct {
	BaseURL     string            `yaml:"base_url"`
	APIKey      string            `yaml:"api_key,omitempty"`
	Model       string            `yaml:"model"`
	Endpoint    string            `yaml:"endpoint"`
	MaxTokens   int               `yaml:"max_tokens"`
	Temperature float64           `yaml:"temperature"`
	Headers     map[string]string `yaml:"headers,omitempty"`
	AuthHeader  string            `yaml:"auth_header,omitempty"`
	OAuth2      map[string]any    `yaml:"oauth2,omitempty"`
}

type effectiveOutput struct {
	Save             bool   `yaml:"save"`
	Dir              string `yaml:"dir"`
	JSON             bool   `yaml:"json"`
	Progress         bool   `yaml:"progress"`
	ProgressInterval string `yaml:"progress_interval"`
}

func printEffectiveConfig(w io.Writer, cfg *config.Config) error {
	view := effectiveConfig{
		API: effectiveAPI{
			BaseURL:     cfg.API.BaseURL,
			Model:       cfg.API.Model,
			Endpoint:    cfg.API.Endpoint,
			MaxTokens:   cfg.API.MaxTokens,
			Temperature: cfg.API.Temperature,
			Headers:     cfg.API.Headers,
			AuthHeader:  cfg.API.AuthHeader,
		},
		Concurrency: cfg.Concurrency,
		Requests:    cfg.Requests,
		Timeout:     cfg.Timeout.String(),
		Interval:    cfg.Interval.String(),
		Rate:        cfg.Rate,
		Scenario:    cfg.Scenario,
		Corpus:      cfg.Corpus,
		Output: effectiveOutput{
			Save:             cfg.Output.Save,
			Dir:              cfg.Output.Dir,
			JSON:             cfg.Output.JSON,
			Progress:         cfg.Output.Progress,
			ProgressInterval: cfg.Output.ProgressInterval.String(),
		},
		LogLevel:    cfg.LogLevel,
		LogFormat:   cfg.LogFormat,
		MetricsAddr: cfg.MetricsAddr,
		Thresholds:  cfg.Thresholds,
		Tracing:     cfg.Tracing,
		Analysis: map[string]any{
			"excellent":          cfg.Analysis.Excellent.String(),
			"good":               cfg.Analysis.Good.String(),
			"acceptable":         cfg.Analysis.Acceptable.String(),
			"success_excellent":  cfg.Analysis.SuccessExcellent,
			"success_good":       cfg.Analysis.SuccessGood,
			"success_acceptable": cfg.Analysis.SuccessAcceptable,
		},
	}
	if cfg.API.APIKey != "" {
		view.API.APIKey = auth.Mask(cfg.API.APIKey)
	}
	if o := cfg.API.OAuth2; o.Enabled() {
		view.API.OAuth2 = map[string]any{
			"token_url":     o.TokenURL,
			"client_id":     o.ClientID,
			"client_secret": auth.Mask(o.ClientSecret),
			"scopes":        o.Scopes,
		}
	}
	if cfg.Duration > 0 {
		view.Duration = cfg.Duration.String()
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(view); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
