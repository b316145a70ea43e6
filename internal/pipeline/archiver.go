// Package pipeline schedules the background jobs that move cold market data
// out of the primary store.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// Archiver moves superseded status versions from the database to S3 cold
// storage, once or on a cron schedule.
type Archiver struct {
	blobArchiver  domain.Archiver
	retentionDays int
	logger        *slog.Logger
	now           func() time.Time
}

// NewArchiver creates a new Archiver.
func NewArchiver(blobArchiver domain.Archiver, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archiver")),
		now:           time.Now,
	}
}

// Cutoff is the creation time before which versions are archived.
func (a *Archiver) Cutoff() time.Time {
	return a.now().UTC().AddDate(0, 0, -a.retentionDays)
}

// Run executes a single archive run and returns the number of archived
// status versions.
func (a *Archiver) Run(ctx context.Context) (int64, error) {
	cutoff := a.Cutoff()
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	n, err := a.blobArchiver.ArchiveStatusHistory(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archiving status history before %v: %w", cutoff, err)
	}
	a.logger.InfoContext(ctx, "archive run complete", slog.Int64("status_versions", n))
	return n, nil
}

// RunCron runs the archiver on a cron schedule until the context is cancelled.
// It accepts the standard 5-field format
// "minute hour day-of-month month day-of-week".
//
// Example: "0 3 1 * *" runs at 3:00 AM UTC on the 1st of every month.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	sched, err := ParseCron(cronExpr)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "archiver cron started", slog.String("cron", cronExpr))

	for {
		now := a.now().UTC()
		next, err := sched.Next(now)
		if err != nil {
			return err
		}
		wait := next.Sub(now)
		a.logger.DebugContext(ctx, "archiver waiting for next cron trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if _, err := a.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Schedule is a parsed 5-field cron expression evaluated in UTC.
type Schedule struct {
	spec cron.Schedule
}

// ParseCron parses a standard 5-field cron expression (or a descriptor such
// as "@daily"). Expressions without a CRON_TZ prefix run in UTC.
func ParseCron(expr string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr != "" && !strings.HasPrefix(expr, "CRON_TZ=") && !strings.HasPrefix(expr, "TZ=") {
		expr = "CRON_TZ=UTC " + expr
	}
	spec, err := cron.ParseStandard(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("parsing cron expression %q: %w", expr, err)
	}
	return Schedule{spec: spec}, nil
}

// Next returns the first matching time strictly after the given time.
func (s Schedule) Next(after time.Time) (time.Time, error) {
	next := s.spec.Next(after)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("no matching cron time found after %s", after.Format(time.RFC3339))
	}
	return next, nil
}
