package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Scenario is a named set of load overrides. Zero fields leave the base
// configuration unchanged.
type Scenario struct {
	Description string        `yaml:"description,omitempty"`
	Concurrency int           `yaml:"concurrency,omitempty"`
	Requests    int           `yaml:"requests,omitempty"`
	Duration    time.Duration `yaml:"duration,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	Interval    time.Duration `yaml:"interval,omitempty"`
	Rate        float64       `yaml:"rate,omitempty"`
}

var builtinScenarios = map[string]Scenario{
	"light": {
		Description: "Light smoke load",
		Concurrency: 5,
		Requests:    50,
		Interval:    time.Second,
	},
	"standard": {
		Description: "Typical production-like load",
		Concurrency: 20,
		Requests:    200,
		Interval:    500 * time.Millisecond,
	},
	"heavy": {
		Description: "High concurrency stress",
		Concurrency: 50,
		Requests:    1000,
		Interval:    100 * time.Millisecond,
	},
	"soak": {
		Description: "Sustained load for ten minutes",
		Concurrency: 10,
		Duration:    10 * time.Minute,
		Interval:    time.Second,
	},
	"burst": {
		Description: "Open-loop burst at a fixed arrival rate",
		Concurrency: 100,
		Requests:    500,
		Rate:        50,
	},
}

// ScenarioNames lists built-in and configured scenario names in sorted order.
func (c Config) ScenarioNames() []string {
	seen := map[string]struct{}{}
	for name := range builtinScenarios {
		seen[name] = struct{}{}
	}
	for name := range c.Scenarios {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupScenario finds a scenario by name. Configured scenarios shadow
// built-ins of the same name.
func (c Config) LookupScenario(name string) (Scenario, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if sc, ok := c.Scenarios[key]; ok {
		return sc, true
	}
	sc, ok := builtinScenarios[key]
	return sc, ok
}

// ApplyScenario overlays the named scenario onto c.
func (c *Config) ApplyScenario(name string) error {
	sc, ok := c.LookupScenario(name)
	if !ok {
		return fmt.Errorf("scenario %q does not exist (available: %s)", name, strings.Join(c.ScenarioNames(), ", "))
	}
	if sc.Concurrency > 0 {
		c.Concurrency = sc.Concurrency
	}
	if sc.Requests > 0 {
		c.Requests = sc.Requests
	}
	if sc.Duration > 0 {
		c.Duration = sc.Duration
	}
	if sc.Timeout > 0 {
		c.Timeout = sc.Timeout
	}
	if sc.Interval > 0 {
		c.Interval = sc.Interval
	}
	if sc.Rate > 0 {
		c.Rate = sc.Rate
	}
	c.Scenario = strings.ToLower(strings.TrimSpace(name))
	return nil
}

func (s Scenario) validate() []string {
	var issues []string
	if s.Concurrency < 0 {
		issues = append(issues, "concurrency must be >= 0")
	}
	if s.Requests < 0 {
		issues = append(issues, "requests must be >= 0")
	}
	if s.Duration < 0 || s.Timeout < 0 || s.Interval < 0 {
		issues = append(issues, "durations must be >= 0")
	}
	if s.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	return issues
}
