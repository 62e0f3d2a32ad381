package main

import (
	"io"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "chatstress",
		Short: "Load generator for OpenAI-style chat-completion APIs",
		Long: `chatstress sends chat-completion requests to an LLM endpoint under a chosen
load shape and reports latency, throughput and failure analysis.

Load shapes:
  concurrency  --requests N with at most --concurrency in flight
  rate         --rate R requests per second, dispatched on schedule
  duration     --duration D, keep the concurrency limit saturated until D elapses`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(
		newRunCmd(),
		newSimpleCmd(),
		newScenarioCmd(),
		newValidateCmd(),
		newAnalyzeCmd(),
	)
	return root
}
