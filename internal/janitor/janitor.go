// Package janitor periodically prunes archived build logs and history
// past their retention window.
package janitor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shipyardci/shipyard/internal/config"
	"github.com/shipyardci/shipyard/internal/orchestrator"
	"github.com/shipyardci/shipyard/internal/store"
)

// Janitor runs a scheduled sweep that deletes log files and trims
// in-memory history older than the configured retention window.
type Janitor struct {
	cfg      config.JanitorConfig
	logPath  string
	registry *orchestrator.Registry
	store    store.Store
	logger   *slog.Logger
	cron     *cron.Cron
}

// New creates a Janitor. st is the durable history store (possibly a
// no-op store when history persistence is disabled); Call Start to
// begin the schedule.
func New(cfg config.JanitorConfig, logPath string, registry *orchestrator.Registry, st store.Store, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		cfg:      cfg,
		logPath:  logPath,
		registry: registry,
		store:    st,
		logger:   logger.With("component", "janitor"),
	}
}

// Start schedules the sweep per cfg.Schedule and runs it in the
// background. It is a no-op if the janitor is disabled.
func (j *Janitor) Start() error {
	if !j.cfg.Enabled {
		j.logger.Info("janitor disabled")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(j.cfg.Schedule, j.sweep); err != nil {
		return err
	}
	j.cron = c
	c.Start()

	j.logger.Info("janitor started", "schedule", j.cfg.Schedule, "retention_days", j.cfg.RetentionDays)
	return nil
}

// Stop halts the scheduler, waiting for any in-flight sweep to finish.
func (j *Janitor) Stop() {
	if j.cron != nil {
		ctx := j.cron.Stop()
		<-ctx.Done()
	}
}

// sweep removes log files older than the retention window and prunes
// each project's in-memory history to the same cutoff.
func (j *Janitor) sweep() {
	cutoff := time.Now().AddDate(0, 0, -j.cfg.RetentionDays)
	j.logger.Debug("janitor sweep starting", "cutoff", cutoff)

	removed, err := pruneLogDir(j.logPath, cutoff)
	if err != nil {
		j.logger.Error("janitor failed to prune log directory", "error", err)
	} else if removed > 0 {
		j.logger.Info("janitor removed stale log files", "count", removed)
	}

	for _, name := range j.registry.Names() {
		ps := j.registry.Get(name)
		if ps == nil {
			continue
		}
		ps.PruneHistory(cutoff)
	}

	if j.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if removed, err := j.store.DeleteOlderThan(ctx, cutoff); err != nil {
			j.logger.Error("janitor failed to prune durable history", "error", err)
		} else if removed > 0 {
			j.logger.Info("janitor removed stale durable history rows", "count", removed)
		}
	}
}

func pruneLogDir(dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
