package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/heinthant2k4/sports-arena-booking/internal/models"
)

const outboxColumns = `id, event_id, event_type, reservation_id, payload, status, retry_count,
	last_error, created_at, processed_at, next_retry_at`

func (db *DB) CreateOutboxTask(ctx context.Context, task *models.OutboxTask) error {
	query := `INSERT INTO outbox (event_id, event_type, reservation_id, payload, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC().Truncate(time.Second)
	if task.Status == "" {
		task.Status = models.OutboxPending
	}
	result, err := db.ExecContext(ctx, query,
		task.EventID,
		task.EventType,
		task.ReservationID,
		task.Payload,
		task.Status,
		task.RetryCount,
		task.LastError,
		formatTime(now),
		formatNullTime(task.NextRetryAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = now

	return nil
}

// GetPendingOutboxTasks returns tasks due for delivery, oldest first.
func (db *DB) GetPendingOutboxTasks(ctx context.Context, limit int) ([]models.OutboxTask, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox
              WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY id ASC LIMIT ?`
	return db.queryOutbox(ctx, query, models.OutboxPending, models.OutboxRetry, formatTime(time.Now()), limit)
}

// GetOutboxTask loads one task by id.
func (db *DB) GetOutboxTask(ctx context.Context, id int64) (*models.OutboxTask, error) {
	tasks, err := db.queryOutbox(ctx, `SELECT `+outboxColumns+` FROM outbox WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("outbox task %d: %w", id, ErrNotFound)
	}
	return &tasks[0], nil
}

func (db *DB) GetFailedOutboxTasks(ctx context.Context) ([]models.OutboxTask, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox WHERE status = ? ORDER BY id DESC`
	return db.queryOutbox(ctx, query, models.OutboxFailed)
}

func (db *DB) UpdateOutboxTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []any
	now := time.Now()

	var lastError sql.NullString
	if errMsg != "" {
		lastError = sql.NullString{String: errMsg, Valid: true}
	}

	switch status {
	case models.OutboxRetry:
		query = `UPDATE outbox SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []any{status, lastError, formatNullTime(nextRetryAt), id}
	case models.OutboxDelivered, models.OutboxFailed:
		query = `UPDATE outbox SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []any{status, lastError, formatNullTime(nextRetryAt), formatTime(now), id}
	default:
		query = `UPDATE outbox SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []any{status, lastError, formatNullTime(nextRetryAt), id}
	}

	_, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update outbox task status: %w", err)
	}
	return nil
}

func (db *DB) queryOutbox(ctx context.Context, query string, args ...any) ([]models.OutboxTask, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var tasks []models.OutboxTask
	for rows.Next() {
		var t models.OutboxTask
		var createdAt string
		var processedAt, nextRetryAt sql.NullString
		err := rows.Scan(
			&t.ID, &t.EventID, &t.EventType, &t.ReservationID, &t.Payload, &t.Status, &t.RetryCount,
			&t.LastError, &createdAt, &processedAt, &nextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox task: %w", err)
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if t.ProcessedAt, err = parseNullTime(processedAt); err != nil {
			return nil, err
		}
		if t.NextRetryAt, err = parseNullTime(nextRetryAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}
