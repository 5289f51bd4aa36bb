package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/heinthant2k4/sports-arena-booking/internal/models"
)

const reservationColumns = `id, facility_id, facility_name, owner_id, owner_name, start_time, end_time,
	status, total_cost, purpose, created_at, updated_at, version`

const countOverlapsQuery = `SELECT COUNT(*) FROM reservations
	WHERE facility_id = ? AND status IN (?, ?) AND start_time < ? AND end_time > ? AND id != ?`

func countOverlaps(ctx context.Context, tx *sql.Tx, facilityID int64, start, end time.Time, excludeID int64) (int, error) {
	var count int
	err := tx.QueryRowContext(ctx, countOverlapsQuery,
		facilityID, models.StatusPending, models.StatusConfirmed,
		formatTime(end), formatTime(start), excludeID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to check overlaps in tx: %w", err)
	}
	return count, nil
}

// CreateReservationWithLock checks for overlapping active reservations and
// inserts r in the same transaction. It returns ErrConflict on overlap.
func (db *DB) CreateReservationWithLock(ctx context.Context, r *models.Reservation) error {
	now := time.Now().UTC()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		overlaps, err := countOverlaps(ctx, tx, r.FacilityID, r.StartTime, r.EndTime, 0)
		if err != nil {
			return err
		}
		if overlaps > 0 {
			return ErrConflict
		}

		queryInsert := `INSERT INTO reservations (
				facility_id, facility_name, owner_id, owner_name, start_time, end_time,
				status, total_cost, purpose, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		result, err := tx.ExecContext(ctx, queryInsert,
			r.FacilityID,
			r.FacilityName,
			r.OwnerID,
			r.OwnerName,
			formatTime(r.StartTime),
			formatTime(r.EndTime),
			r.Status,
			r.TotalCost.StringFixed(2),
			r.Purpose,
			formatTime(now),
			formatTime(now),
			1,
		)
		if err != nil {
			return fmt.Errorf("failed to insert reservation in tx: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id in tx: %w", err)
		}
		r.ID = id
		return nil
	})
	if err != nil {
		return err
	}

	r.CreatedAt = now.Truncate(time.Second)
	r.UpdatedAt = r.CreatedAt
	r.Version = 1
	return nil
}

// UpdateReservationWithLock rewrites the interval, cost and purpose of r when
// its stored version still equals fromVersion and the new interval is free.
func (db *DB) UpdateReservationWithLock(ctx context.Context, r *models.Reservation, fromVersion int64) error {
	now := time.Now().UTC()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if r.Status.IsActive() {
			overlaps, err := countOverlaps(ctx, tx, r.FacilityID, r.StartTime, r.EndTime, r.ID)
			if err != nil {
				return err
			}
			if overlaps > 0 {
				return ErrConflict
			}
		}

		query := `UPDATE reservations
			SET start_time = ?, end_time = ?, total_cost = ?, purpose = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?`
		result, err := tx.ExecContext(ctx, query,
			formatTime(r.StartTime),
			formatTime(r.EndTime),
			r.TotalCost.StringFixed(2),
			r.Purpose,
			formatTime(now),
			r.ID,
			fromVersion,
		)
		if err != nil {
			return fmt.Errorf("failed to update reservation: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return ErrConcurrentModification
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.UpdatedAt = now.Truncate(time.Second)
	r.Version = fromVersion + 1
	return nil
}

func (db *DB) UpdateReservationStatusWithVersion(ctx context.Context, id, fromVersion int64, status models.Status) error {
	query := `UPDATE reservations SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, formatTime(time.Now()), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update reservation status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	r, err := scanReservation(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return r, nil
}

func (db *DB) ListReservationsByFacility(ctx context.Context, facilityID int64) ([]*models.Reservation, error) {
	return db.queryReservations(ctx, `WHERE facility_id = ? ORDER BY start_time ASC`, facilityID)
}

func (db *DB) ListReservationsByOwner(ctx context.Context, ownerID string) ([]*models.Reservation, error) {
	return db.queryReservations(ctx, `WHERE owner_id = ? ORDER BY start_time DESC`, ownerID)
}

func (db *DB) ListReservationsByStatus(ctx context.Context, status models.Status) ([]*models.Reservation, error) {
	return db.queryReservations(ctx, `WHERE status = ? ORDER BY start_time DESC`, status)
}

// ListAllReservations returns every reservation in any status, newest start first.
func (db *DB) ListAllReservations(ctx context.Context) ([]*models.Reservation, error) {
	return db.queryReservations(ctx, `ORDER BY start_time DESC, id DESC`)
}

func (db *DB) ListActiveReservations(ctx context.Context) ([]*models.Reservation, error) {
	return db.queryReservations(ctx, `WHERE status IN (?, ?) ORDER BY start_time ASC`,
		models.StatusPending, models.StatusConfirmed)
}

func (db *DB) ListActiveReservationsByFacility(ctx context.Context, facilityID int64) ([]*models.Reservation, error) {
	return db.queryReservations(ctx, `WHERE facility_id = ? AND status IN (?, ?) ORDER BY start_time ASC`,
		facilityID, models.StatusPending, models.StatusConfirmed)
}

// ListReservationsInRange returns reservations lying entirely inside [from, to].
func (db *DB) ListReservationsInRange(ctx context.Context, from, to time.Time) ([]*models.Reservation, error) {
	return db.queryReservations(ctx, `WHERE start_time >= ? AND end_time <= ? ORDER BY start_time ASC`,
		formatTime(from), formatTime(to))
}

func (db *DB) ListUpcomingReservationsByOwner(ctx context.Context, ownerID string, now time.Time) ([]*models.Reservation, error) {
	return db.queryReservations(ctx,
		`WHERE owner_id = ? AND start_time > ? AND status IN (?, ?) ORDER BY start_time ASC`,
		ownerID, formatTime(now), models.StatusPending, models.StatusConfirmed)
}

func (db *DB) ListPastReservationsByOwner(ctx context.Context, ownerID string, now time.Time) ([]*models.Reservation, error) {
	return db.queryReservations(ctx, `WHERE owner_id = ? AND end_time < ? ORDER BY start_time DESC`,
		ownerID, formatTime(now))
}

// ListCancellableReservationsByOwner returns active reservations starting after cutoffTime.
func (db *DB) ListCancellableReservationsByOwner(ctx context.Context, ownerID string, cutoffTime time.Time) ([]*models.Reservation, error) {
	return db.queryReservations(ctx,
		`WHERE owner_id = ? AND status IN (?, ?) AND start_time > ? ORDER BY start_time ASC`,
		ownerID, models.StatusPending, models.StatusConfirmed, formatTime(cutoffTime))
}

func (db *DB) queryReservations(ctx context.Context, where string, args ...any) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations ` + where
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	reservations := make([]*models.Reservation, 0)
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reservations, nil
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var r models.Reservation
	var start, end, createdAt, updatedAt string
	err := row.Scan(
		&r.ID, &r.FacilityID, &r.FacilityName, &r.OwnerID, &r.OwnerName, &start, &end,
		&r.Status, &r.TotalCost, &r.Purpose, &createdAt, &updatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}

	if r.StartTime, err = parseTime(start); err != nil {
		return nil, err
	}
	if r.EndTime, err = parseTime(end); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}
