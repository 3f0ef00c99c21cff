package storage

import (
	"context"
	"log/slog"
	"time"

	"squish/internal/server/metrics"
)

// Sweeper periodically removes files whose modification time has fallen out
// of the retention window. Both originals and compressed outputs live in the
// same directory, so one pass covers both.
type Sweeper struct {
	store     Store
	interval  time.Duration
	retention time.Duration
	metrics   *metrics.Metrics
	done      chan struct{}
}

// NewSweeper creates a sweeper over the given store.
func NewSweeper(store Store, interval, retention time.Duration, m *metrics.Metrics) *Sweeper {
	return &Sweeper{
		store:     store,
		interval:  interval,
		retention: retention,
		metrics:   m,
		done:      make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine. The loop stops when
// ctx is canceled; Wait blocks until it has fully wound down.
func (sw *Sweeper) Start(ctx context.Context) {
	slog.Info("retention sweeper started",
		"interval", sw.interval,
		"retention", sw.retention,
	)

	go func() {
		ticker := time.NewTicker(sw.interval)
		defer ticker.Stop()

		// Run once immediately on start
		sw.runSweep()

		for {
			select {
			case <-ticker.C:
				sw.runSweep()
			case <-ctx.Done():
				slog.Info("retention sweeper stopping")
				close(sw.done)
				return
			}
		}
	}()
}

// Wait blocks until the sweeper has fully stopped.
func (sw *Sweeper) Wait() {
	<-sw.done
}

// runSweep performs a single pass. Errors are logged and counted, never
// propagated: a failed pass must not take down the timer loop.
func (sw *Sweeper) runSweep() {
	sw.metrics.SweepRuns.Inc()

	entries, err := sw.store.List()
	if err != nil {
		// A missing or unreadable directory is a no-op pass.
		slog.Warn("sweep skipped", "error", err)
		return
	}

	cutoff := time.Now().Add(-sw.retention)

	var swept, failed int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Entry vanished between ReadDir and Info.
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := sw.store.Delete(entry.Name()); err != nil {
			slog.Error("failed to sweep file",
				"file", entry.Name(),
				"error", err,
			)
			sw.metrics.SweepErrors.Inc()
			failed++
			continue
		}

		swept++
		sw.metrics.SweptFiles.Inc()
		slog.Info("swept expired file",
			"file", entry.Name(),
			"modified", info.ModTime(),
		)
	}

	if swept > 0 || failed > 0 {
		slog.Info("sweep complete", "swept", swept, "failed", failed)
	}
}
