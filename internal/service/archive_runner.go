package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/ertledger/internal/domain"
)

// ArchiveRunner archives each completed UTC day of settlements and events.
// It looks back a fixed number of days so a missed run catches up; days
// already archived are skipped by the archiver.
type ArchiveRunner struct {
	archiver domain.Archiver
	interval time.Duration
	lookback int
	now      func() time.Time
	logger   *slog.Logger
}

// NewArchiveRunner creates an ArchiveRunner.
func NewArchiveRunner(archiver domain.Archiver, interval time.Duration, lookbackDays int, logger *slog.Logger) *ArchiveRunner {
	if interval <= 0 {
		interval = time.Hour
	}
	if lookbackDays <= 0 {
		lookbackDays = 7
	}
	return &ArchiveRunner{
		archiver: archiver,
		interval: interval,
		lookback: lookbackDays,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "archive_runner")),
	}
}

// Run archives once immediately and then every interval.
func (r *ArchiveRunner) Run(ctx context.Context) error {
	r.Tick(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick archives the completed days in the lookback window and returns the
// number of records written.
func (r *ArchiveRunner) Tick(ctx context.Context) int64 {
	var total int64
	today := r.now().UTC().Truncate(24 * time.Hour)
	for i := r.lookback; i >= 1; i-- {
		day := today.AddDate(0, 0, -i)
		n, err := r.archiver.ArchiveSettlements(ctx, day)
		if err != nil {
			r.logger.ErrorContext(ctx, "archive_runner: settlements failed",
				slog.String("day", day.Format(time.DateOnly)),
				slog.String("error", err.Error()),
			)
		}
		total += n
		n, err = r.archiver.ArchiveEvents(ctx, day)
		if err != nil {
			r.logger.ErrorContext(ctx, "archive_runner: events failed",
				slog.String("day", day.Format(time.DateOnly)),
				slog.String("error", err.Error()),
			)
		}
		total += n
	}
	return total
}
