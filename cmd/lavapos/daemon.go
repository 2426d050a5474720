package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lavamatic/pos/internal/logging"
	"github.com/lavamatic/pos/internal/syncengine"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync scheduler",
	Long: `Run sync and repair passes on a timer until interrupted.

The POS front end can request an immediate "save progress" pass by
dropping any file into the trigger directory; the daemon watches it and
starts a pass without waiting for the timer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp("[daemon] ")
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.requireRemote(); err != nil {
			return err
		}

		scheduler, err := syncengine.NewScheduler(a.engine, syncengine.SchedulerConfig{
			SyncInterval:    a.cfg.SyncInterval,
			CleanupInterval: a.cfg.CleanupInterval,
			TriggerDir:      a.cfg.TriggerDir(),
			Logger:          logging.NewFileLogger(a.cfg.LogPath(), "[daemon] "),
		})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			fmt.Fprintln(os.Stderr, "shutting down...")
			cancel()
		}()

		return scheduler.Start(ctx)
	},
}
