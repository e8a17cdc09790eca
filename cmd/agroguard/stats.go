package main

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/agroguard/agroguard/pkg/tracker"
)

func newStatsCmd(configPath *string) *cobra.Command {
	var (
		providerName string
		days         int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show upstream token usage and decision outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer tr.Close()

			ctx := context.Background()
			since := time.Now().UTC().AddDate(0, 0, -days)

			summaries, err := tr.Summary(ctx, providerName)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			if len(summaries) == 0 {
				fmt.Fprintln(w, "No usage data found.")
			} else {
				fmt.Fprintln(w, "PROVIDER\tMODEL\tREQUESTS\tPROMPT\tCOMPLETION\tTOTAL")
				for _, s := range summaries {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n",
						s.Provider, s.Model, s.RequestCount, s.TotalPrompt, s.TotalCompletion, s.TotalTokens)
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}

			decisions, err := tr.Decisions(ctx, since)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nDecisions (last %d days)\n", days)
			w = tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "USE CASE\tSOURCE\tCOUNT\tAVG LATENCY")
			for _, d := range decisions {
				fmt.Fprintf(w, "%s\t%s\t%d\t%.0fms\n", d.UseCase, d.Source, d.Count, d.AvgLatencyMs)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			reasons, err := tr.FallbackReasons(ctx, since)
			if err != nil {
				return err
			}
			if len(reasons) == 0 {
				return nil
			}
			keys := make([]string, 0, len(reasons))
			for k := range reasons {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintln(cmd.OutOrStdout(), "\nFallback reasons")
			w = tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, k := range keys {
				fmt.Fprintf(w, "  %s\t%d\n", k, reasons[k])
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", "", "filter usage by provider")
	cmd.Flags().IntVar(&days, "days", 7, "decision window in days")
	return cmd
}
