package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push pending changes to the remote store",
	Long: `Push every unsynced timesheet and queued change record to the remote
store. Individual record failures are reported and retried on the next
pass; they never abort the batch.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp("[sync] ")
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.requireRemote(); err != nil {
			return err
		}

		ctx := context.Background()

		if _, err := a.engine.RefreshEmployees(ctx); err != nil {
			fmt.Printf("Warning: employee refresh failed: %v\n", err)
		}

		results, err := a.engine.SyncPendingChanges(ctx)
		if err != nil {
			return err
		}

		ok, failed := 0, 0
		for _, r := range results {
			if r.Success {
				ok++
				continue
			}
			failed++
			fmt.Printf("  failed %s: %v\n", r.ID, r.Err)
		}
		fmt.Printf("Synced %d records, %d failed, %d total\n", ok, failed, len(results))
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run the full remote cleanup pass",
	Long: `Delete orphaned timesheets, force-close stale sessions, purge
completed records past the retention window, and drop locally queued
changes already synced. All decisions are made against a single snapshot
loaded at the start of the pass.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp("[cleanup] ")
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.requireRemote(); err != nil {
			return err
		}

		summary, err := a.engine.Cleanup(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("Orphaned removed:      %d\n", summary.OrphanedRemoved)
		fmt.Printf("Stale sessions closed: %d\n", summary.StaleClosed)
		fmt.Printf("Retention purged:      %d\n", summary.RetentionPurged)
		fmt.Printf("Synced changes purged: %d\n", summary.SyncedChangesPurged)
		return nil
	},
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Report on today's sessions without changing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp("[diagnose] ")
		if err != nil {
			return err
		}
		defer a.close()

		report, err := a.engine.Diagnose(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("Employees known:   %d\n", report.EmployeesKnown)
		fmt.Printf("Active sessions:   %d (%d valid, %d orphaned)\n",
			report.ActiveSessions, report.ValidActive, report.OrphanedActive)
		fmt.Printf("Stale open:        %d\n", report.StaleOpen)
		fmt.Printf("Recommendation:    %s\n", report.Recommendation)
		return nil
	},
}
