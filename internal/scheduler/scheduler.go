// Package scheduler implements the auto-backup policy and its background
// runner. Policy due-ness is pure; the Runner owns the periodic loop, writes
// due backups into the backup directory, and persists the policy after each
// successful run. Lifecycle concerns stay isolated from the orchestrator's
// request-path logic.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ceroware/ceropos/internal/backup"
	"github.com/ceroware/ceropos/internal/domain"
)

// IsDue reports whether an automatic backup should run at now. Off means
// never; a policy that has never run is always due; otherwise whole elapsed
// days are compared against the frequency threshold.
func IsDue(p domain.BackupPolicy, now time.Time) bool {
	if !p.AutoBackup {
		return false
	}
	if p.LastBackup == nil {
		return true
	}
	elapsedDays := int(now.Sub(*p.LastBackup).Hours() / 24)
	return elapsedDays >= p.Frequency.Days()
}

// Backuper is the slice of the orchestrator the runner needs.
type Backuper interface {
	CreateBackup(ctx context.Context, password string) (*backup.Backup, error)
}

// PolicyStore persists the auto-backup policy.
type PolicyStore interface {
	Policy() (domain.BackupPolicy, error)
	SetPolicy(domain.BackupPolicy) error
}

// Config holds tunables for the Runner.
type Config struct {
	Interval time.Duration // how often due-ness is checked
	Dir      string        // directory automatic archives are written into
	Logger   *slog.Logger  // optional logger (defaults to slog.Default())
}

// Metrics accumulates in-memory counters for operational insight.
type Metrics struct {
	mu                  sync.Mutex
	Cycles              uint64
	Runs                uint64
	Failures            uint64
	CycleLastDurationMS int64
}

// MetricsView is a read-only snapshot safe to copy.
type MetricsView struct {
	Cycles              uint64
	Runs                uint64
	Failures            uint64
	CycleLastDurationMS int64
}

func (m *Metrics) recordCycle(d time.Duration, ran bool, err error) {
	m.mu.Lock()
	m.Cycles++
	if ran {
		m.Runs++
	}
	if err != nil {
		m.Failures++
	}
	m.CycleLastDurationMS = d.Milliseconds()
	m.mu.Unlock()
}

// Runner encapsulates the background auto-backup loop.
type Runner struct {
	backups  Backuper
	policies PolicyStore
	clock    backup.Clock
	cfg      Config
	metrics  *Metrics

	ticker *time.Ticker
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// New constructs but does not start a Runner.
func New(b Backuper, p PolicyStore, clock backup.Clock, cfg Config) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{
		backups:  b,
		policies: p,
		clock:    clock,
		cfg:      cfg,
		metrics:  &Metrics{},
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the runner loop in a new goroutine.
func (r *Runner) Start(ctx context.Context) {
	if r.ticker != nil {
		return
	} // already started
	r.ticker = time.NewTicker(r.cfg.Interval)
	go r.loop(ctx)
}

// Stop signals the loop to exit and waits for completion.
func (r *Runner) Stop() {
	r.once.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

// MetricsSnapshot returns a copy of current metrics.
func (r *Runner) MetricsSnapshot() MetricsView {
	r.metrics.mu.Lock()
	defer r.metrics.mu.Unlock()
	return MetricsView{
		Cycles:              r.metrics.Cycles,
		Runs:                r.metrics.Runs,
		Failures:            r.metrics.Failures,
		CycleLastDurationMS: r.metrics.CycleLastDurationMS,
	}
}

func (r *Runner) loop(ctx context.Context) {
	log := r.cfg.Logger.With("domain", "scheduler")
	defer func() {
		if r.ticker != nil {
			r.ticker.Stop()
		}
		close(r.doneCh)
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler stop", "reason", "context_cancel")
			return
		case <-r.stopCh:
			log.Info("scheduler stop", "reason", "stop_signal")
			return
		case <-r.ticker.C:
			r.runCycle(ctx)
		}
	}
}

func (r *Runner) runCycle(ctx context.Context) {
	start := time.Now()
	log := r.cfg.Logger.With("domain", "scheduler", "action", "cycle")
	ran, err := r.RunIfDue(ctx, r.clock.Now())
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("auto backup", "error", err)
	}
	r.metrics.recordCycle(time.Since(start), ran, err)
	if ran && err == nil {
		log.Info("cycle complete", "ms", time.Since(start).Milliseconds())
	}
}

// RunIfDue creates an unencrypted backup when the policy says one is due and
// persists the updated policy. Automatic runs never prompt for a password.
// On any failure LastBackup stays untouched so the next cycle retries.
// Returns whether a backup ran.
func (r *Runner) RunIfDue(ctx context.Context, now time.Time) (bool, error) {
	pol, err := r.policies.Policy()
	if err != nil {
		return false, fmt.Errorf("load policy: %w", err)
	}
	if !IsDue(pol, now) {
		return false, nil
	}

	bk, err := r.backups.CreateBackup(ctx, "")
	if err != nil {
		return true, fmt.Errorf("create backup: %w", err)
	}
	dest := filepath.Join(r.cfg.Dir, bk.Filename)
	if err := os.WriteFile(dest, bk.Bytes, 0o600); err != nil {
		return true, fmt.Errorf("write %s: %w", dest, err)
	}

	pol.LastBackup = &now
	if err := r.policies.SetPolicy(pol); err != nil {
		return true, fmt.Errorf("persist policy: %w", err)
	}
	return true, nil
}
