// Command execore-sim loads a fixture file (spec.md §6's flat
// key=value format), builds the synthetic TaskGraph it describes,
// runs it through both the single-thread reference scheduler and the
// parallel scheduler, compares their commit hashes, and writes the
// regression telemetry file. Grounded on the teacher's
// cmd/consensus cobra layout (one root command, flag-bearing
// subcommands delegating to a run* function per subcommand).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "execore-sim",
	Short: "Fixture-driven harness for the deterministic execution core",
	Long: `execore-sim loads a fixture describing a synthetic task graph, runs it
through the single-thread reference scheduler and the parallel scheduler,
and verifies both backends commit the identical set of tasks in the
identical order (spec.md §8 P4/P6).`,
}

func main() {
	rootCmd.AddCommand(runCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
