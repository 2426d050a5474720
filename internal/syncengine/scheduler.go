package syncengine

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SchedulerConfig holds configuration for the background scheduler.
type SchedulerConfig struct {
	// SyncInterval is how often a timed sync pass runs.
	SyncInterval time.Duration

	// CleanupInterval is how often the repair duties (status mismatches,
	// stale sessions) run. Cleanup is scheduled, not continuous.
	CleanupInterval time.Duration

	// TriggerDir, when non-empty, is watched for trigger files. The POS
	// front end drops a file there to request an immediate "save
	// progress" sync pass without waiting for the timer.
	TriggerDir string

	// Logger for scheduler activity.
	Logger *log.Logger
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		SyncInterval:    2 * time.Minute,
		CleanupInterval: time.Hour,
		Logger:          log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Scheduler runs periodic sync and repair passes until stopped.
//
// A pass triggered by the timer, by a trigger file, or by a concurrent
// foreground call all converge: every effect is an idempotent upsert or
// delete keyed by primary id, so overlapping executions are safe.
type Scheduler struct {
	engine *Engine
	config SchedulerConfig

	watcher *fsnotify.Watcher
	kick    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a Scheduler for the engine.
func NewScheduler(engine *Engine, config SchedulerConfig) (*Scheduler, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = 2 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		engine: engine,
		config: config,
		kick:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start begins scheduling. This blocks until ctx is cancelled or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	if s.config.TriggerDir != "" {
		if err := s.watchTriggerDir(); err != nil {
			// A failed start must stay retryable.
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return err
		}
	}

	s.wg.Add(2)
	go s.syncLoop()
	go s.cleanupLoop()

	s.config.Logger.Printf("Scheduler started (sync every %s, cleanup every %s)",
		s.config.SyncInterval, s.config.CleanupInterval)

	select {
	case <-ctx.Done():
	case <-s.ctx.Done():
	}

	return s.Stop()
}

// Stop shuts the scheduler down and waits for in-flight passes to finish.
// A pass runs to completion or failure per record; there is no mid-batch
// abort.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	s.wg.Wait()
	s.config.Logger.Println("Scheduler stopped")
	return nil
}

// TriggerSync requests an immediate sync pass without waiting for the
// timer. Non-blocking; coalesces with an already-pending request.
func (s *Scheduler) TriggerSync() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Scheduler) syncLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runSyncPass("timer")
		case <-s.kick:
			s.runSyncPass("trigger")
		}
	}
}

func (s *Scheduler) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.engine.RepairStatusMismatches(s.ctx); err != nil {
				s.config.Logger.Printf("status repair failed: %v", err)
			} else if n > 0 {
				s.config.Logger.Printf("status repair fixed %d entries", n)
			}
			if n, err := s.engine.CloseStaleSessions(s.ctx); err != nil {
				s.config.Logger.Printf("stale session closure failed: %v", err)
			} else if n > 0 {
				s.config.Logger.Printf("closed %d stale sessions", n)
			}
		}
	}
}

func (s *Scheduler) runSyncPass(reason string) {
	results, err := s.engine.SyncPendingChanges(s.ctx)
	if err != nil {
		s.config.Logger.Printf("sync pass (%s) failed: %v", reason, err)
		return
	}
	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	if failed > 0 {
		s.config.Logger.Printf("sync pass (%s): %d of %d records failed, will retry next pass",
			reason, failed, len(results))
	}
}

// watchTriggerDir creates the trigger directory, attaches the fsnotify
// watcher and spawns the event loop.
func (s *Scheduler) watchTriggerDir() error {
	if err := os.MkdirAll(s.config.TriggerDir, 0755); err != nil {
		return fmt.Errorf("failed to create trigger directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(s.config.TriggerDir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch trigger directory: %w", err)
	}
	s.watcher = watcher
	s.wg.Add(1)
	go s.watchTriggers()
	s.config.Logger.Printf("Watching for sync triggers in %s", s.config.TriggerDir)
	return nil
}

// watchTriggers turns trigger-file creation events into sync requests
// and removes the consumed files.
func (s *Scheduler) watchTriggers() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			s.config.Logger.Printf("sync trigger: %s", filepath.Base(event.Name))
			_ = os.Remove(event.Name)
			s.TriggerSync()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.config.Logger.Printf("watcher error: %v", err)
		}
	}
}
