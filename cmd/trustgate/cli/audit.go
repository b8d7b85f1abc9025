package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/trustgate/trustgate/internal/model"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and maintain the audit log",
	}

	cmd.AddCommand(newAuditListCmd())
	cmd.AddCommand(newAuditStatsCmd())
	cmd.AddCommand(newAuditPurgeCmd())

	return cmd
}

// ---------- audit list ----------

func newAuditListCmd() *cobra.Command {
	var (
		action     string
		status     string
		targetType string
		since      time.Duration
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List audit log entries, newest first",
		Example: `  trustgate audit list --limit 20
  trustgate audit list --action FAILED_LOGIN --since 24h
  trustgate audit list --status FAILED --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuditList(action, status, targetType, since, limit, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "Filter by action (LOGIN, FAILED_LOGIN, CREATE, ...)")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (SUCCESS, FAILED, PARTIAL)")
	cmd.Flags().StringVar(&targetType, "target-type", "", "Filter by target type (api_key, audit_log, ...)")
	cmd.Flags().DurationVar(&since, "since", 0, "Only entries newer than this, e.g. 24h")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to return")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAuditList(action, status, targetType string, since time.Duration, limit int, jsonOutput bool) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	filter := model.AuditFilter{
		Action:     model.Action(action),
		Status:     model.Status(status),
		TargetType: targetType,
		Limit:      limit,
	}
	if since > 0 {
		from := time.Now().Add(-since)
		filter.From = &from
	}

	entries, err := store.ListAudit(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("list audit entries: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No audit entries match.")
		return nil
	}

	fmt.Printf("%-20s %-18s %-8s %-16s %-15s\n", "TIME", "ACTION", "STATUS", "ACTOR", "IP")
	fmt.Printf("%-20s %-18s %-8s %-16s %-15s\n", "----", "------", "------", "-----", "--")
	for _, e := range entries {
		actor := e.ActorName
		if actor == "" {
			actor = "-"
		}
		fmt.Printf("%-20s %-18s %-8s %-16s %-15s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action, e.Status, actor, e.IPAddress)
	}

	return nil
}

// ---------- audit stats ----------

func newAuditStatsCmd() *cobra.Command {
	var (
		since      time.Duration
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate audit log counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuditStats(since, jsonOutput)
		},
	}

	cmd.Flags().DurationVar(&since, "since", 0, "Only count entries newer than this, e.g. 168h")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAuditStats(since time.Duration, jsonOutput bool) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	var from *time.Time
	if since > 0 {
		f := time.Now().Add(-since)
		from = &f
	}

	stats, err := store.AuditStats(context.Background(), from, nil)
	if err != nil {
		return fmt.Errorf("audit stats: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Printf("Total entries: %d\n", stats.Total)
	if len(stats.ByAction) > 0 {
		fmt.Println("\nBy action:")
		for action, n := range stats.ByAction {
			fmt.Printf("  %-20s %d\n", action, n)
		}
	}
	if len(stats.ByActor) > 0 {
		fmt.Println("\nBy actor:")
		for actor, n := range stats.ByActor {
			fmt.Printf("  %-20s %d\n", actor, n)
		}
	}
	return nil
}

// ---------- audit purge ----------

func newAuditPurgeCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete audit entries older than the given age",
		Long:  "One-shot retention sweep. The server also purges on an hourly schedule; this command is for manual maintenance.",
		Example: `  trustgate audit purge --older-than 4320h   # 180 days
  trustgate audit purge --older-than 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuditPurge(olderThan)
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Delete entries older than this (required), e.g. 4320h")
	cmd.MarkFlagRequired("older-than")

	return cmd
}

func runAuditPurge(olderThan time.Duration) error {
	if olderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	cutoff := time.Now().Add(-olderThan)
	purged, err := store.PurgeAuditBefore(context.Background(), cutoff)
	if err != nil {
		return fmt.Errorf("purge audit entries: %w", err)
	}

	fmt.Printf("Purged %d audit entries older than %s\n", purged, cutoff.Format(time.RFC3339))
	return nil
}
