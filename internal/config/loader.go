package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the loader reads, for
// example CHATSTRESS_API_KEY.
const EnvPrefix = "CHATSTRESS"

var envKeys = []string{
	"api_key",
	"base_url",
	"model",
	"endpoint",
	"oauth2_client_secret",
	"log_level",
	"log_format",
	"output_dir",
	"metrics_addr",
}

// Loader builds a Config from defaults, an optional config file, the
// environment and command-line flags, in increasing order of precedence.
type Loader struct {
	// Scenario, when set, is applied after the environment and before flags.
	Scenario string
}

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads configuration using the flags registered by RegisterFlags.
// The returned config has not been validated.
func (l Loader) Load(fs *pflag.FlagSet) (*Config, error) {
	cfg := Default()

	var configPath string
	if fs != nil {
		if f := fs.Lookup("config"); f != nil {
			configPath = strings.TrimSpace(f.Value.String())
		}
	}
	if configPath != "" {
		v := viper.New()
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
		if err := applyConfigSettings(&cfg, v.AllSettings()); err != nil {
			return nil, fmt.Errorf("config %s: %w", configPath, err)
		}
		cfg.ConfigFile = configPath
	}

	if err := applyEnvironment(&cfg); err != nil {
		return nil, err
	}

	scenario := strings.TrimSpace(l.Scenario)
	if scenario == "" && fs != nil && fs.Changed("scenario") {
		scenario, _ = fs.GetString("scenario")
		scenario = strings.TrimSpace(scenario)
	}
	if scenario == "" {
		scenario = cfg.Scenario
	}
	if scenario != "" {
		if err := cfg.ApplyScenario(scenario); err != nil {
			return nil, err
		}
	}

	if fs != nil {
		if err := applyFlagOverrides(&cfg, fs); err != nil {
			return nil, err
		}
	}

	normalize(&cfg)
	return &cfg, nil
}

func normalize(cfg *Config) {
	cfg.API.BaseURL = strings.TrimSpace(cfg.API.BaseURL)
	cfg.API.Model = strings.TrimSpace(cfg.API.Model)
	cfg.API.APIKey = strings.TrimSpace(cfg.API.APIKey)
	headers := make(map[string]string, len(cfg.API.Headers))
	for k, v := range cfg.API.Headers {
		headers[http.CanonicalHeaderKey(strings.TrimSpace(k))] = v
	}
	cfg.API.Headers = headers
	cfg.Corpus.Path = strings.TrimSpace(cfg.Corpus.Path)
	cfg.Corpus.Type = strings.ToLower(strings.TrimSpace(cfg.Corpus.Type))
	cfg.Corpus.Selection = strings.ToLower(strings.TrimSpace(cfg.Corpus.Selection))
	cfg.Output.Dir = strings.TrimSpace(cfg.Output.Dir)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(cfg.Tracing.Protocol))
}

// applyEnvironment reads CHATSTRESS_* variables through viper's env binding.
func applyEnvironment(cfg *Config) error {
	env := viper.New()
	env.SetEnvPrefix(EnvPrefix)
	for _, key := range envKeys {
		if err := env.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	set := func(key string, dst *string) {
		if env.IsSet(key) {
			*dst = env.GetString(key)
		}
	}
	set("api_key", &cfg.API.APIKey)
	set("base_url", &cfg.API.BaseURL)
	set("model", &cfg.API.Model)
	set("endpoint", &cfg.API.Endpoint)
	set("log_level", &cfg.LogLevel)
	set("log_format", &cfg.LogFormat)
	set("output_dir", &cfg.Output.Dir)
	set("metrics_addr", &cfg.MetricsAddr)
	if cfg.API.OAuth2.ClientSecret == "" {
		set("oauth2_client_secret", &cfg.API.OAuth2.ClientSecret)
	}
	return nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]any) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "api"); ok {
		if err := applyAPISettings(&cfg.API, raw); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}

	ints := []struct {
		dst  *int
		keys []string
	}{
		{&cfg.Concurrency, []string{"concurrency", "concurrent"}},
		{&cfg.Requests, []string{"requests", "total"}},
	}
	for _, f := range ints {
		if raw, ok := lookupSetting(settings, f.keys...); ok {
			val, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", f.keys[0], err)
			}
			*f.dst = val
		}
	}

	if raw, ok := lookupSetting(settings, "duration"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = dur
	}
	if raw, ok := lookupSetting(settings, "timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = dur
	}
	if raw, ok := lookupSetting(settings, "interval"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("interval: %w", err)
		}
		cfg.Interval = dur
	}
	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		cfg.Rate = val
	}

	if raw, ok := lookupSetting(settings, "corpus"); ok {
		if err := applyCorpusSettings(&cfg.Corpus, raw); err != nil {
			return fmt.Errorf("corpus: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "output"); ok {
		if err := applyOutputSettings(&cfg.Output, raw); err != nil {
			return fmt.Errorf("output: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "log_level", "loglevel"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		cfg.LogLevel = val
	}
	if raw, ok := lookupSetting(settings, "log_format", "logformat"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log_format: %w", err)
		}
		cfg.LogFormat = val
	}
	if raw, ok := lookupSetting(settings, "log_errors", "logerrors"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("log_errors: %w", err)
		}
		cfg.LogErrors = val
	}
	if raw, ok := lookupSetting(settings, "metrics_addr", "metricsaddr"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("metrics_addr: %w", err)
		}
		cfg.MetricsAddr = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = val
	}
	if raw, ok := lookupSetting(settings, "analysis"); ok {
		if err := applyAnalysisSettings(&cfg.Analysis, raw); err != nil {
			return fmt.Errorf("analysis: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "scenarios"); ok {
		scenarios, err := parseScenarios(raw)
		if err != nil {
			return fmt.Errorf("scenarios: %w", err)
		}
		cfg.Scenarios = scenarios
	}
	if raw, ok := lookupSetting(settings, "scenario"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("scenario: %w", err)
		}
		cfg.Scenario = strings.TrimSpace(val)
	}
	return nil
}

func applyAPISettings(api *APIConfig, raw any) error {
	settings, err := toStringKeyMap(raw)
	if err != nil {
		return err
	}

	strs := []struct {
		dst  *string
		keys []string
	}{
		{&api.BaseURL, []string{"base_url", "baseurl"}},
		{&api.APIKey, []string{"api_key", "apikey"}},
		{&api.Model, []string{"model"}},
		{&api.Endpoint, []string{"endpoint"}},
		{&api.AuthHeader, []string{"auth_header", "authheader"}},
	}
	for _, f := range strs {
		if v, ok := lookupSetting(settings, f.keys...); ok {
			val, err := asString(v)
			if err != nil {
				return fmt.Errorf("%s: %w", f.keys[0], err)
			}
			*f.dst = strings.TrimSpace(val)
		}
	}

	if v, ok := lookupSetting(settings, "max_tokens", "maxtokens"); ok {
		val, err := asInt(v)
		if err != nil {
			return fmt.Errorf("max_tokens: %w", err)
		}
		api.MaxTokens = val
	}
	if v, ok := lookupSetting(settings, "temperature"); ok {
		val, err := asFloat64(v)
		if err != nil {
			return fmt.Errorf("temperature: %w", err)
		}
		api.Temperature = val
	}
	if v, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(v)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if api.Headers == nil {
			api.Headers = map[string]string{}
		}
		for k, val := range hdrs {
			api.Headers[http.CanonicalHeaderKey(k)] = val
		}
	}
	if v, ok := lookupSetting(settings, "oauth2"); ok {
		if err := applyOAuth2Settings(&api.OAuth2, v); err != nil {
			return fmt.Errorf("oauth2: %w", err)
		}
	}
	return nil
}

func applyOAuth2Settings(o *OAuth2Config, raw any) error {
	settings, err := toStringKeyMap(raw)
	if err != nil {
		return err
	}
	strs := []struct {
		dst  *string
		keys []string
	}{
		{&o.TokenURL, []string{"token_url", "tokenurl"}},
		{&o.ClientID, []string{"client_id", "clientid"}},
		{&o.ClientSecret, []string{"client_secret", "clientsecret"}},
	}
	for _, f := range strs {
		if v, ok := lookupSetting(settings, f.keys...); ok {
			val, err := asString(v)
			if err != nil {
				return fmt.Errorf("%s: %w", f.keys[0], err)
			}
			*f.dst = strings.TrimSpace(val)
		}
	}
	if v, ok := lookupSetting(settings, "scopes"); ok {
		scopes, err := asStringSlice(v)
		if err != nil {
			return fmt.Errorf("scopes: %w", err)
		}
		o.Scopes = scopes
	}
	if v, ok := lookupSetting(settings, "refresh_before_expiry", "refreshbeforeexpiry"); ok {
		dur, err := asDuration(v)
		if err != nil {
			return fmt.Errorf("refresh_before_expiry: %w", err)
		}
		o.RefreshBeforeExpiry = dur
	}
	return nil
}

func applyCorpusSettings(c *CorpusConfig, raw any) error {
	settings, err := toStringKeyMap(raw)
	if err != nil {
		return err
	}
	for key, dst := range map[string]*string{"path": &c.Path, "type": &c.Type, "selection": &c.Selection} {
		if v, ok := lookupSetting(settings, key); ok {
			val, err := asString(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = strings.TrimSpace(val)
		}
	}
	return nil
}

func applyOutputSettings(o *OutputConfig, raw any) error {
	settings, err := toStringKeyMap(raw)
	if err != nil {
		return err
	}
	for key, dst := range map[string]*bool{"save": &o.Save, "json": &o.JSON, "progress": &o.Progress, "dashboard": &o.Dashboard} {
		if v, ok := lookupSetting(settings, key); ok {
			val, err := asBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = val
		}
	}
	if v, ok := lookupSetting(settings, "dir"); ok {
		val, err := asString(v)
		if err != nil {
			return fmt.Errorf("dir: %w", err)
		}
		o.Dir = strings.TrimSpace(val)
	}
	if v, ok := lookupSetting(settings, "progress_interval", "progressinterval"); ok {
		dur, err := asDuration(v)
		if err != nil {
			return fmt.Errorf("progress_interval: %w", err)
		}
		o.ProgressInterval = dur
	}
	return nil
}

func applyAnalysisSettings(a *AnalysisConfig, raw any) error {
	settings, err := toStringKeyMap(raw)
	if err != nil {
		return err
	}
	for key, dst := range map[string]*time.Duration{
		"excellent":  &a.Excellent,
		"good":       &a.Good,
		"acceptable": &a.Acceptable,
	} {
		if v, ok := lookupSetting(settings, key); ok {
			dur, err := asDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = dur
		}
	}
	for key, dst := range map[string]*float64{
		"success_excellent":  &a.SuccessExcellent,
		"success_good":       &a.SuccessGood,
		"success_acceptable": &a.SuccessAcceptable,
	} {
		if v, ok := lookupSetting(settings, key); ok {
			val, err := asFloat64(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = val
		}
	}
	return nil
}

func applyTracingSettings(t *TracingConfig, raw any) error {
	settings, err := toStringKeyMap(raw)
	if err != nil {
		return err
	}
	for key, dst := range map[string]*string{"endpoint": &t.Endpoint, "protocol": &t.Protocol, "service_name": &t.ServiceName} {
		if v, ok := lookupSetting(settings, key); ok {
			val, err := asString(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = strings.TrimSpace(val)
		}
	}
	for key, dst := range map[string]*bool{"insecure": &t.Insecure, "propagate": &t.Propagate} {
		if v, ok := lookupSetting(settings, key); ok {
			val, err := asBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = val
		}
	}
	if v, ok := lookupSetting(settings, "sample_rate", "samplerate"); ok {
		val, err := asFloat64(v)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		t.SampleRate = val
	}
	return nil
}

func parseScenarios(raw any) (map[string]Scenario, error) {
	entries, err := toStringKeyMap(raw)
	if err != nil {
		return nil, err
	}
	scenarios := make(map[string]Scenario, len(entries))
	for name, entry := range entries {
		settings, err := toStringKeyMap(entry)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		var sc Scenario
		if v, ok := lookupSetting(settings, "description"); ok {
			if sc.Description, err = asString(v); err != nil {
				return nil, fmt.Errorf("%s.description: %w", name, err)
			}
		}
		if v, ok := lookupSetting(settings, "concurrency", "concurrent"); ok {
			if sc.Concurrency, err = asInt(v); err != nil {
				return nil, fmt.Errorf("%s.concurrency: %w", name, err)
			}
		}
		if v, ok := lookupSetting(settings, "requests"); ok {
			if sc.Requests, err = asInt(v); err != nil {
				return nil, fmt.Errorf("%s.requests: %w", name, err)
			}
		}
		if v, ok := lookupSetting(settings, "duration"); ok {
			if sc.Duration, err = asDuration(v); err != nil {
				return nil, fmt.Errorf("%s.duration: %w", name, err)
			}
		}
		if v, ok := lookupSetting(settings, "timeout"); ok {
			if sc.Timeout, err = asDuration(v); err != nil {
				return nil, fmt.Errorf("%s.timeout: %w", name, err)
			}
		}
		if v, ok := lookupSetting(settings, "interval"); ok {
			if sc.Interval, err = asDuration(v); err != nil {
				return nil, fmt.Errorf("%s.interval: %w", name, err)
			}
		}
		if v, ok := lookupSetting(settings, "rate"); ok {
			if sc.Rate, err = asFloat64(v); err != nil {
				return nil, fmt.Errorf("%s.rate: %w", name, err)
			}
		}
		scenarios[name] = sc
	}
	return scenarios, nil
}
