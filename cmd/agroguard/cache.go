package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agroguard/agroguard/pkg/models"
)

// The decision cache lives in the serving process, so these commands talk
// to its admin endpoint.
func newCacheCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the decision cache of a running server",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats models.CacheStats
			if err := adminCall(http.MethodGet, addr, &stats); err != nil {
				return err
			}
			total := stats.Hits + stats.Misses
			hitRate := float64(0)
			if total > 0 {
				hitRate = float64(stats.Hits) / float64(total) * 100
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Entries:  %d\nHits:     %d\nMisses:   %d\nHit Rate: %.1f%%\n",
				stats.Entries, stats.Hits, stats.Misses, hitRate)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear all cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Cleared int64 `json:"cleared"`
			}
			if err := adminCall(http.MethodDelete, addr, &out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cache entries.\n", out.Cleared)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&addr, "addr", "http://localhost:8000", "base URL of the running server")
	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}

func adminCall(method, addr string, out any) error {
	req, err := http.NewRequest(method, strings.TrimRight(addr, "/")+"/admin/cache", nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("contact server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
