package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// debug enables verbose logging (CRAFT_EVAL_LOG_LEVEL=debug).
var debug bool

func debugf(format string, args ...any) {
	if debug {
		log.Printf(format, args...)
	}
}

var rootCmd = &cobra.Command{
	Use:   "craft-eval",
	Short: "Evaluate a character/affinity text detector on a synthetic test set",
	Long: `craft-eval runs a trained heatmap text detector over the test split,
reporting the per-batch loss and word-level F-score, and periodically
writing predicted and ground-truth heatmaps as PNG files.

Environment variables:
  CRAFT_EVAL_LOG_LEVEL=debug    Enable debug logging`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "craft-eval %s\n", Version)
		fmt.Fprintf(out, "  Build time: %s\n", BuildTime)
		fmt.Fprintf(out, "  Git commit: %s\n", GitCommit)
	},
}

func init() {
	rootCmd.AddCommand(newEvalCmd(), newHistoryCmd(), versionCmd)
}

func main() {
	// Logs and progress go to stderr; stdout carries only results
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	debug = os.Getenv("CRAFT_EVAL_LOG_LEVEL") == "debug"
	debugf("craft-eval v%s (built %s, commit %s)", Version, BuildTime, GitCommit)

	if err := rootCmd.Execute(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}
