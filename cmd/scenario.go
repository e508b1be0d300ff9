package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/sosdispatch/qa/scenarios"
)

var scenarioVerbose bool

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Scripted dispatch scenarios",
}

var scenarioRunCmd = &cobra.Command{
	Use:   "run <file>...",
	Short: "Replay YAML scenarios against an in-memory engine",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScenarios,
}

func init() {
	scenarioRunCmd.Flags().BoolVarP(&scenarioVerbose, "verbose", "v", false, "print every step")
	scenarioCmd.AddCommand(scenarioRunCmd)
	rootCmd.AddCommand(scenarioCmd)
}

func runScenarios(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	failed := 0
	for _, path := range args {
		sc, err := scenarios.Load(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		res, err := scenarios.Run(sc)
		if scenarioVerbose && res != nil {
			for _, line := range res.Log {
				fmt.Fprintf(out, "  %s\n", line)
			}
		}
		if err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", sc.Name, err)
			continue
		}
		s := res.Summary
		fmt.Fprintf(out, "PASS %s (total=%d unread=%d pending=%d dispatched=%d)\n",
			sc.Name, s.Total, s.Unread, s.Pending, s.Dispatched)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(args))
	}
	return nil
}
