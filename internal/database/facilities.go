package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/heinthant2k4/sports-arena-booking/internal/models"
)

const facilityColumns = `id, name, type, capacity, hourly_rate, is_active, is_under_maintenance,
	maintenance_note, opening_time, closing_time, location, description, created_at, updated_at`

const upsertFacilityQuery = `INSERT INTO facilities (` + facilityColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		type = excluded.type,
		capacity = excluded.capacity,
		hourly_rate = excluded.hourly_rate,
		is_active = excluded.is_active,
		is_under_maintenance = excluded.is_under_maintenance,
		maintenance_note = excluded.maintenance_note,
		opening_time = excluded.opening_time,
		closing_time = excluded.closing_time,
		location = excluded.location,
		description = excluded.description,
		updated_at = excluded.updated_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertFacility(ctx context.Context, ex execer, f *models.Facility, now time.Time) error {
	if f.OpeningTime == "" {
		f.OpeningTime = models.DefaultOpeningTime
	}
	if f.ClosingTime == "" {
		f.ClosingTime = models.DefaultClosingTime
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now

	_, err := ex.ExecContext(ctx, upsertFacilityQuery,
		f.ID,
		f.Name,
		f.Type,
		f.Capacity,
		f.HourlyRate.String(),
		f.IsActive,
		f.IsUnderMaintenance,
		f.MaintenanceNote,
		f.OpeningTime,
		f.ClosingTime,
		f.Location,
		f.Description,
		formatTime(f.CreatedAt),
		formatTime(f.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert facility %d: %w", f.ID, err)
	}
	return nil
}

// UpsertFacility inserts the facility or overwrites its attributes by id.
func (db *DB) UpsertFacility(ctx context.Context, f *models.Facility) error {
	return upsertFacility(ctx, db, f, time.Now())
}

// SyncFacilities upserts the configured facilities in one transaction.
func (db *DB) SyncFacilities(ctx context.Context, facilities []models.Facility) error {
	now := time.Now()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		for i := range facilities {
			if err := upsertFacility(ctx, tx, &facilities[i], now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	db.logger.Info().Int("count", len(facilities)).Msg("facilities synchronized")
	return nil
}

func (db *DB) GetFacility(ctx context.Context, id int64) (*models.Facility, error) {
	query := `SELECT ` + facilityColumns + ` FROM facilities WHERE id = ?`
	f, err := scanFacility(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("facility %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get facility: %w", err)
	}
	return f, nil
}

func (db *DB) ListFacilities(ctx context.Context) ([]*models.Facility, error) {
	query := `SELECT ` + facilityColumns + ` FROM facilities ORDER BY name ASC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list facilities: %w", err)
	}
	defer rows.Close()

	var facilities []*models.Facility
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan facility: %w", err)
		}
		facilities = append(facilities, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return facilities, nil
}

func scanFacility(row rowScanner) (*models.Facility, error) {
	var f models.Facility
	var createdAt, updatedAt string
	err := row.Scan(
		&f.ID, &f.Name, &f.Type, &f.Capacity, &f.HourlyRate, &f.IsActive, &f.IsUnderMaintenance,
		&f.MaintenanceNote, &f.OpeningTime, &f.ClosingTime, &f.Location, &f.Description,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if f.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if f.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}
