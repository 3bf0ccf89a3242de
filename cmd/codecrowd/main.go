// Command codecrowd runs the analysis orchestration core: the HTTP/SSE
// adapter that receives webhook-driven analysis requests (serve), the
// migration runner (migrate), the expired-lock janitor (sweep-locks), and a
// human-readable status view (status).
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "codecrowd",
	Short: "CodeCrow analysis orchestration core",
	Long: `codecrowd orchestrates PR and branch analysis pipelines: it
acquires per-branch locks, drives the VCS and AI service adapters, persists
findings and their aggregate counters, and reconciles issue resolution
across analysis runs.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: env vars + built-in defaults)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
