package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stanstork/bulkgen/internal/models"
)

// BatchRunRepository keeps the log of executed batches.
type BatchRunRepository interface {
	Record(ctx context.Context, run models.BatchRun) (models.BatchRun, error)
	ListRecent(ctx context.Context, limit, offset int) ([]models.BatchRun, error)
	Stats(ctx context.Context, days int) (models.RunStat, error)
}

type batchRunRepository struct {
	db *sql.DB
}

func NewBatchRunRepository(db *sql.DB) BatchRunRepository {
	return &batchRunRepository{db: db}
}

func (r *batchRunRepository) Record(ctx context.Context, run models.BatchRun) (models.BatchRun, error) {
	query := `
		INSERT INTO batch_runs (operation, batch_size, attempted, succeeded, failed, skipped, duration_ms, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		string(run.Operation),
		run.BatchSize,
		run.Attempted,
		run.Succeeded,
		run.Failed,
		run.Skipped,
		run.DurationMS,
		run.Error,
	).Scan(&run.ID, &run.CreatedAt)
	return run, err
}

func (r *batchRunRepository) ListRecent(ctx context.Context, limit, offset int) ([]models.BatchRun, error) {
	query := `
		SELECT id, operation, batch_size, attempted, succeeded, failed, skipped, duration_ms, error, created_at
		FROM batch_runs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ListRecent query error: %w", err)
	}
	defer rows.Close()

	var runs []models.BatchRun
	for rows.Next() {
		var run models.BatchRun
		if err := rows.Scan(
			&run.ID,
			&run.Operation,
			&run.BatchSize,
			&run.Attempted,
			&run.Succeeded,
			&run.Failed,
			&run.Skipped,
			&run.DurationMS,
			&run.Error,
			&run.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan batch run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *batchRunRepository) Stats(ctx context.Context, days int) (models.RunStat, error) {
	const perDayQuery = `
		SELECT
			date_trunc('day', created_at) AS day,
			COUNT(*)                                AS batches,
			COALESCE(SUM(succeeded), 0)             AS succeeded,
			COALESCE(SUM(failed), 0)                AS failed,
			COALESCE(SUM(skipped), 0)               AS skipped,
			COALESCE(SUM((error IS NOT NULL)::int), 0) AS errored
		FROM batch_runs
		WHERE created_at >= now() - make_interval(days => $1)
		GROUP BY day
		ORDER BY day;
	`
	rows, err := r.db.QueryContext(ctx, perDayQuery, days)
	if err != nil {
		return models.RunStat{}, fmt.Errorf("Stats query error: %w", err)
	}
	defer rows.Close()

	var stats models.RunStat
	for rows.Next() {
		var day models.RunStatDay
		if err := rows.Scan(&day.Day, &day.Batches, &day.Succeeded, &day.Failed, &day.Skipped, &day.Errored); err != nil {
			return models.RunStat{}, fmt.Errorf("failed to scan run stat: %w", err)
		}
		stats.PerDay = append(stats.PerDay, day)
	}
	if err := rows.Err(); err != nil {
		return models.RunStat{}, err
	}
	return totalize(stats), nil
}

// totalize fills the aggregate fields from PerDay.
func totalize(stats models.RunStat) models.RunStat {
	attempted := 0
	for _, day := range stats.PerDay {
		stats.Batches += day.Batches
		stats.Succeeded += day.Succeeded
		stats.Failed += day.Failed
		stats.Skipped += day.Skipped
		stats.Errored += day.Errored
		attempted += day.Succeeded + day.Failed + day.Skipped
	}
	if attempted > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(attempted) * 100.0
	} else {
		stats.SuccessRate = 0.0 // Avoid division by zero
	}
	return stats
}

// MemoryBatchRunRepository is the in-process batch log used with the memory store.
type MemoryBatchRunRepository struct {
	mu   sync.Mutex
	runs []models.BatchRun
	now  func() time.Time
}

func NewMemoryBatchRunRepository() *MemoryBatchRunRepository {
	return &MemoryBatchRunRepository{now: time.Now}
}

func (r *MemoryBatchRunRepository) Record(_ context.Context, run models.BatchRun) (models.BatchRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run.ID = uuid.NewString()
	run.CreatedAt = r.now().UTC()
	r.runs = append(r.runs, run)
	return run, nil
}

func (r *MemoryBatchRunRepository) ListRecent(_ context.Context, limit, offset int) ([]models.BatchRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	recent := make([]models.BatchRun, len(r.runs))
	for i, run := range r.runs {
		recent[len(r.runs)-1-i] = run
	}
	return page(recent, offset, limit), nil
}

func (r *MemoryBatchRunRepository) Stats(_ context.Context, days int) (models.RunStat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	since := r.now().UTC().AddDate(0, 0, -days)
	byDay := make(map[time.Time]*models.RunStatDay)
	for _, run := range r.runs {
		if run.CreatedAt.Before(since) {
			continue
		}
		day := run.CreatedAt.Truncate(24 * time.Hour)
		entry, ok := byDay[day]
		if !ok {
			entry = &models.RunStatDay{Day: day}
			byDay[day] = entry
		}
		entry.Batches++
		entry.Succeeded += run.Succeeded
		entry.Failed += run.Failed
		entry.Skipped += run.Skipped
		if run.Error != nil {
			entry.Errored++
		}
	}

	var stats models.RunStat
	for _, day := range byDay {
		stats.PerDay = append(stats.PerDay, *day)
	}
	sort.Slice(stats.PerDay, func(i, j int) bool { return stats.PerDay[i].Day.Before(stats.PerDay[j].Day) })
	return totalize(stats), nil
}
