package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/torosent/chatstress/internal/output"
)

func newAnalyzeCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Inspect saved result files",
		Long: `Inspect the result files written by previous runs.

With no subcommand the newest failure log is analysed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return analyzeLatest(cmd, dir)
		},
	}
	cmd.PersistentFlags().StringVarP(&dir, "dir", "d", "./results", "Results directory")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "latest",
			Short: "Analyse the newest failure log",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return analyzeLatest(cmd, dir)
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List failure logs",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				files, err := output.NewArchive(dir).FailureLogs()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(files) == 0 {
					fmt.Fprintln(out, "No failure logs found")
					return nil
				}
				fmt.Fprintf(out, "Found %d failure log(s):\n", len(files))
				output.PrintFileList(out, files)
				return nil
			},
		},
		&cobra.Command{
			Use:   "file <name>",
			Short: "Analyse a specific failure log",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				log, err := output.NewArchive(dir).Load(args[0])
				if err != nil {
					return err
				}
				output.PrintFailureLog(cmd.OutOrStdout(), log)
				return nil
			},
		},
		&cobra.Command{
			Use:   "summary",
			Short: "Print a short digest of the newest failure log",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				archive := output.NewArchive(dir)
				name, err := archive.Latest()
				if errors.Is(err, output.ErrNoFailureLogs) {
					fmt.Fprintln(cmd.OutOrStdout(), "No failure logs found")
					return nil
				}
				if err != nil {
					return err
				}
				log, err := archive.Load(name)
				if err != nil {
					return err
				}
				output.PrintFailureSummary(cmd.OutOrStdout(), log)
				return nil
			},
		},
		&cobra.Command{
			Use:   "tests",
			Short: "List saved runs grouped by test id",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				groups, err := output.NewArchive(dir).Tests()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(groups) == 0 {
					fmt.Fprintln(out, "No saved runs found")
					return nil
				}
				fmt.Fprintf(out, "Found %d run(s):", len(groups))
				output.PrintTests(out, groups)
				return nil
			},
		},
		&cobra.Command{
			Use:   "test <testId>",
			Short: "List the result files of one run",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				names, err := output.NewArchive(dir).FindTest(args[0])
				if err != nil {
					return err
				}
				if len(names) == 0 {
					return fmt.Errorf("no result files for test %s", args[0])
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Files for %s:\n", args[0])
				for _, n := range names {
					fmt.Fprintf(out, "  %s\n", n)
				}
				return nil
			},
		},
	)
	return cmd
}

func analyzeLatest(cmd *cobra.Command, dir string) error {
	archive := output.NewArchive(dir)
	name, err := archive.Latest()
	if errors.Is(err, output.ErrNoFailureLogs) {
		fmt.Fprintln(cmd.OutOrStdout(), "No failure logs found")
		return nil
	}
	if err != nil {
		return err
	}
	log, err := archive.Load(name)
	if err != nil {
		return err
	}
	output.PrintFailureLog(cmd.OutOrStdout(), log)
	return nil
}
