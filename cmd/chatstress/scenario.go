package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/torosent/chatstress/internal/config"
)

func newScenarioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario <name>|list",
		Short: "Run a named scenario or list the available ones",
		Long: `Run a named load scenario. Scenarios come from the built-in set
(light, standard, heavy, soak, burst) and the "scenarios" section of the
config file; a configured scenario replaces a built-in one of the same name.
Flags given on the command line override the scenario.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "list" {
				cfg, err := config.NewLoader().Load(cmd.Flags())
				if err != nil {
					return err
				}
				printScenarios(cmd.OutOrStdout(), cfg)
				return nil
			}
			loader := config.Loader{Scenario: name}
			cfg, err := loader.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return runLoadTest(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	config.RegisterFlags(cmd)
	return cmd
}

func printScenarios(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Available scenarios:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range cfg.ScenarioNames() {
		sc, _ := cfg.LookupScenario(name)
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", name, sc.Description, describeScenario(sc))
	}
	_ = tw.Flush()
}

func describeScenario(sc config.Scenario) string {
	var parts []string
	if sc.Concurrency > 0 {
		parts = append(parts, fmt.Sprintf("concurrency=%d", sc.Concurrency))
	}
	if sc.Requests > 0 {
		parts = append(parts, fmt.Sprintf("requests=%d", sc.Requests))
	}
	if sc.Duration > 0 {
		parts = append(parts, fmt.Sprintf("duration=%s", sc.Duration))
	}
	if sc.Rate > 0 {
		parts = append(parts, fmt.Sprintf("rate=%g/s", sc.Rate))
	}
	if sc.Interval > 0 {
		parts = append(parts, fmt.Sprintf("interval=%s", sc.Interval))
	}
	if sc.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("timeout=%s", sc.Timeout))
	}
	return strings.Join(parts, " ")
}
