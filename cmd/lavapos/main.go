// Command lavapos is the offline-first data layer and sync daemon for a
// Lavamatic point-of-sale terminal.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lavamatic/pos/internal/config"
	"github.com/lavamatic/pos/internal/kvcache"
	"github.com/lavamatic/pos/internal/logging"
	"github.com/lavamatic/pos/internal/queue"
	"github.com/lavamatic/pos/internal/remote"
	"github.com/lavamatic/pos/internal/store"
	"github.com/lavamatic/pos/internal/syncengine"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "lavapos",
	Short: "Offline-first laundry POS data layer",
	Long: `lavapos keeps a laundry point-of-sale terminal fully operable with no
network connectivity and reconciles its state with the remote store when
connectivity returns.

Local state lives in an embedded SQLite database; clock events, ticket
numbers and sales never wait on the network. The sync engine pushes
pending changes and repairs divergence (orphaned records, stale
sessions, status mismatches) against the remote store.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: lavamatic.yaml)")

	rootCmd.AddCommand(clockCmd)
	rootCmd.AddCommand(ticketCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(diagnoseCmd)
	rootCmd.AddCommand(daemonCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the wired-up components a command needs.
type app struct {
	cfg    *config.Config
	store  *store.Store
	queue  *queue.Queue
	remote *remote.Client
	cache  *kvcache.Cache
	engine *syncengine.Engine
}

// openApp loads configuration and opens the local components. The remote
// client is nil when no remote URL is configured; local-only operations
// still work.
func openApp(logPrefix string) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logger := logging.NewFileLogger(cfg.LogPath(), logPrefix)

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}

	cache, err := kvcache.New(cfg.CacheDir(), logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	q := queue.New(st, logger)

	var rc *remote.Client
	if cfg.RemoteURL != "" {
		rc = remote.NewClient(cfg.RemoteURL, cfg.RemoteAPIKey, &http.Client{Timeout: 10 * time.Second})
	}

	engine := syncengine.New(st, q, rc, cache, syncengine.Config{
		TerminalID: cfg.TerminalID,
		Retry: remote.RetryPolicy{
			MaxAttempts: cfg.RetryAttempts,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    5 * time.Second,
		},
		RetentionDays: cfg.RetentionDays,
		Logger:        logger,
	})

	return &app{
		cfg:    cfg,
		store:  st,
		queue:  q,
		remote: rc,
		cache:  cache,
		engine: engine,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
	}
}

// requireRemote exits early for commands that cannot run local-only.
func (a *app) requireRemote() error {
	if a.remote == nil {
		return fmt.Errorf("no remote store configured (set remote_url in lavamatic.yaml or LAVAMATIC_REMOTE_URL)")
	}
	return nil
}
