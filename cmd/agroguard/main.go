package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "agroguard",
		Short:         "AgroGuard farm advisory gateway",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (defaults apply when omitted)")

	root.AddCommand(
		newServeCmd(&configPath),
		newAdviseCmd(&configPath),
		newMCPCmd(&configPath),
		newCacheCmd(),
		newStatsCmd(&configPath),
		newAuditCmd(&configPath),
		newBudgetCmd(&configPath),
	)
	return root
}
