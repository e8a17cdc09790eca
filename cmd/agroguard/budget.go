package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agroguard/agroguard/pkg/budget"
	"github.com/agroguard/agroguard/pkg/tracker"
)

func newBudgetCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Inspect provider token budgets",
	}

	var providerName string
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show budget usage vs limits per provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if !cfg.Budget.Enabled {
				fmt.Fprintln(cmd.OutOrStdout(), "Budget enforcement is disabled.")
				return nil
			}

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			enforcer := budget.New(cfg.Budget.Policies, tr)

			var providers []string
			if providerName != "" {
				providers = []string{providerName}
			} else {
				for _, p := range cfg.Providers {
					providers = append(providers, p.Name)
				}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tMODEL\tPERIOD\tMAX TOKENS\tUSED\tREMAINING")
			rows := 0
			for _, p := range providers {
				statuses, err := enforcer.Status(context.Background(), p)
				if err != nil {
					return err
				}
				for _, s := range statuses {
					model := s.Policy.Model
					if model == "" {
						model = "*"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
						p, model, s.Policy.Period, s.Policy.MaxTokens, s.Used, s.Remaining)
					rows++
				}
			}
			if rows == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No budget policies apply.")
				return nil
			}
			return w.Flush()
		},
	}
	statusCmd.Flags().StringVar(&providerName, "provider", "", "show a single provider")

	cmd.AddCommand(statusCmd)
	return cmd
}
