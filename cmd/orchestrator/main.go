// Command orchestrator runs the workflow orchestration engine's HTTP API
// server, plus a couple of small operator subcommands (health probe, thread
// replay). Grounded on codeready-toolchain-tarsy/cmd/tarsy/main.go's
// flag-driven bootstrap, restructured as a cobra root command per spec §6
// "CLI / admin" (DESIGN.md; cobra named, not code-grounded, per the pack's
// ecosystem-choice convention).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "orchestrator",
		Short: "Multi-agent workflow orchestrator",
	}

	root.PersistentFlags().StringP("config", "c", "", "path to YAML configuration file")
	root.PersistentFlags().String("env", ".env", "path to a .env file with secret overrides")

	root.AddCommand(newServeCmd())
	root.AddCommand(newHealthCmd())
	root.AddCommand(newReplayCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
