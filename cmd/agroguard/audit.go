package main

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agroguard/agroguard/pkg/audit"
	"github.com/agroguard/agroguard/pkg/models"
)

func newAuditCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and manage the upstream attempt audit log",
	}

	cmd.AddCommand(
		newAuditSearchCmd(configPath),
		newAuditShowCmd(configPath),
		newAuditStatsCmd(configPath),
		newAuditCleanupCmd(configPath),
	)
	return cmd
}

func newAuditSearchCmd(configPath *string) *cobra.Command {
	var (
		useCase      string
		providerName string
		outcome      string
		since        string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := models.AuditQueryOpts{
				Provider: providerName,
				Outcome:  outcome,
				Limit:    limit,
			}
			if useCase != "" {
				uc, err := models.ParseUseCase(useCase)
				if err != nil {
					return err
				}
				opts.UseCase = uc
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			l, cleanup, err := openAuditLogger(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := l.Query(context.Background(), opts)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatAuditEntries(entries))
			return nil
		},
	}

	cmd.Flags().StringVar(&useCase, "use-case", "", "filter by use case")
	cmd.Flags().StringVar(&providerName, "provider", "", "filter by provider")
	cmd.Flags().StringVar(&outcome, "outcome", "", "filter by outcome (ok, timeout, upstream_error, ...)")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to return")

	return cmd
}

func newAuditShowCmd(configPath *string) *cobra.Command {
	var requestID string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show every upstream attempt of one request",
		RunE: func(cmd *cobra.Command, args []string) error {
			if requestID == "" {
				return fmt.Errorf("--request-id is required")
			}

			l, cleanup, err := openAuditLogger(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := l.Query(context.Background(), models.AuditQueryOpts{RequestID: requestID})
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No entry found for that request ID.")
				return nil
			}
			// Query returns newest first.
			slices.Reverse(entries)
			fmt.Fprint(cmd.OutOrStdout(), formatAuditDetail(entries))
			return nil
		},
	}

	cmd.Flags().StringVar(&requestID, "request-id", "", "request ID to show")
	return cmd
}

func newAuditStatsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show audit counts by use case, outcome and day",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := l.Stats(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatAuditStats(stats))
			return nil
		},
	}
}

func newAuditCleanupCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete audit entries older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			deleted, err := l.Cleanup(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d audit entries.\n", deleted)
			return nil
		},
	}
}

func openAuditLogger(configPath string) (*audit.Logger, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	l, err := audit.New(cfg.Audit)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit db: %w", err)
	}
	return l, func() { _ = l.Close() }, nil
}

func formatAuditEntries(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s %3s %-9s %-10s %-16s %6s %8s %8s %-19s\n",
		"REQUEST ID", "#", "USE CASE", "PROVIDER", "OUTCOME", "STATUS", "LATENCY", "TOKENS", "TIME")
	b.WriteString(strings.Repeat("-", 125) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-36s %3d %-9s %-10s %-16s %6d %6dms %8d %-19s\n",
			e.RequestID, e.Attempt, e.UseCase, e.Provider, e.Outcome, e.StatusCode,
			e.LatencyMs, e.TotalTokens,
			e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

func formatAuditDetail(entries []models.AuditEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request ID:    %s\n", entries[0].RequestID)
	fmt.Fprintf(&b, "Use case:      %s\n", entries[0].UseCase)
	fmt.Fprintf(&b, "Cache key:     %s\n", entries[0].CacheKeyHash)
	for _, e := range entries {
		fmt.Fprintf(&b, "\n--- Attempt %d: %s/%s ---\n", e.Attempt, e.Provider, e.Model)
		fmt.Fprintf(&b, "Outcome:       %s\n", e.Outcome)
		fmt.Fprintf(&b, "Status:        %d\n", e.StatusCode)
		fmt.Fprintf(&b, "Latency:       %dms\n", e.LatencyMs)
		fmt.Fprintf(&b, "Tokens:        %d prompt / %d completion / %d total\n",
			e.PromptTokens, e.CompletionTokens, e.TotalTokens)
		fmt.Fprintf(&b, "Time:          %s\n", e.CreatedAt.Format(time.RFC3339))
		if e.Prompt != "" {
			fmt.Fprintf(&b, "\nPrompt:\n%s\n", e.Prompt)
		}
		if e.ResponseBody != "" {
			fmt.Fprintf(&b, "\nResponse:\n%s\n", e.ResponseBody)
		}
	}
	return b.String()
}

func formatAuditStats(stats []models.AuditStat) string {
	if len(stats) == 0 {
		return "No audit stats found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %-18s %-12s %8s\n", "USE CASE", "OUTCOME", "DAY", "COUNT")
	b.WriteString(strings.Repeat("-", 51) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-10s %-18s %-12s %8d\n", s.UseCase, s.Outcome, s.Day, s.Count)
	}
	return b.String()
}
