package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx is the subset of pgx.Tx the cleanup service needs; narrowed to keep
// CleanupService testable without a live database.
type Tx interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Beginner opens a Tx.
type Beginner interface {
	Begin(ctx context.Context) (Tx, error)
}

// poolBeginner adapts *pgxpool.Pool to Beginner.
type poolBeginner struct{ pool *pgxpool.Pool }

func (b poolBeginner) Begin(ctx context.Context) (Tx, error) {
	return b.pool.Begin(ctx)
}

// CleanupService handles data retention and cleanup
type CleanupService struct {
	db            Beginner
	RetentionDays int
}

// NewCleanupService creates a new cleanup service over a live pool.
func NewCleanupService(pool *pgxpool.Pool, retentionDays int) *CleanupService {
	return newCleanupService(poolBeginner{pool: pool}, retentionDays)
}

func newCleanupService(db Beginner, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 90 // default 90 days
	}
	return &CleanupService{db: db, RetentionDays: retentionDays}
}

// CleanupOldData removes leads in a terminal status (converted, failed) and
// their outreach logs older than the retention period. Active leads and all
// experiments/templates are never touched regardless of age.
func (s *CleanupService) CleanupOldData(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.RetentionDays)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("cleanup begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var deletedLogs int64
	err = tx.QueryRow(ctx, `
		WITH deleted AS (
			DELETE FROM outreach_logs
			WHERE lead_id IN (
				SELECT id FROM leads
				WHERE status IN ('converted', 'failed') AND updated_at < $1
			)
			RETURNING 1
		)
		SELECT count(*) FROM deleted
	`, cutoff).Scan(&deletedLogs)
	if err != nil {
		slog.Debug("no outreach logs to delete", slog.Any("error", err))
	}

	var deletedLeads int64
	err = tx.QueryRow(ctx, `
		WITH deleted AS (
			DELETE FROM leads
			WHERE status IN ('converted', 'failed') AND updated_at < $1
			RETURNING 1
		)
		SELECT count(*) FROM deleted
	`, cutoff).Scan(&deletedLeads)
	if err != nil {
		slog.Debug("no leads to delete", slog.Any("error", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("cleanup commit: %w", err)
	}

	slog.Info("data cleanup completed",
		slog.Int64("deleted_leads", deletedLeads),
		slog.Int64("deleted_outreach_logs", deletedLogs),
		slog.Time("cutoff", cutoff),
	)

	return nil
}

// RunPeriodic starts a periodic cleanup job
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour // daily by default
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run initial cleanup
	if err := s.CleanupOldData(ctx); err != nil {
		slog.Error("initial cleanup failed", slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup service stopping")
			return
		case <-ticker.C:
			if err := s.CleanupOldData(ctx); err != nil {
				slog.Error("periodic cleanup failed", slog.Any("error", err))
			}
		}
	}
}
