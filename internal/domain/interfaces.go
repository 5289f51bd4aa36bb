package domain

import (
	"context"
	"time"

	"github.com/heinthant2k4/sports-arena-booking/internal/models"
)

type ReservationRepository interface {
	CreateReservationWithLock(ctx context.Context, r *models.Reservation) error
	UpdateReservationWithLock(ctx context.Context, r *models.Reservation, fromVersion int64) error
	UpdateReservationStatusWithVersion(ctx context.Context, id, fromVersion int64, status models.Status) error
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	ListReservationsByFacility(ctx context.Context, facilityID int64) ([]*models.Reservation, error)
	ListReservationsByOwner(ctx context.Context, ownerID string) ([]*models.Reservation, error)
	ListReservationsByStatus(ctx context.Context, status models.Status) ([]*models.Reservation, error)
	ListAllReservations(ctx context.Context) ([]*models.Reservation, error)
	ListActiveReservations(ctx context.Context) ([]*models.Reservation, error)
	ListActiveReservationsByFacility(ctx context.Context, facilityID int64) ([]*models.Reservation, error)
	ListReservationsInRange(ctx context.Context, from, to time.Time) ([]*models.Reservation, error)
	ListUpcomingReservationsByOwner(ctx context.Context, ownerID string, now time.Time) ([]*models.Reservation, error)
	ListPastReservationsByOwner(ctx context.Context, ownerID string, now time.Time) ([]*models.Reservation, error)
	ListCancellableReservationsByOwner(ctx context.Context, ownerID string, cutoffTime time.Time) ([]*models.Reservation, error)
}

type FacilityRepository interface {
	GetFacility(ctx context.Context, id int64) (*models.Facility, error)
	ListFacilities(ctx context.Context) ([]*models.Facility, error)
	SyncFacilities(ctx context.Context, facilities []models.Facility) error
}

type OutboxRepository interface {
	CreateOutboxTask(ctx context.Context, task *models.OutboxTask) error
	GetPendingOutboxTasks(ctx context.Context, limit int) ([]models.OutboxTask, error)
	GetOutboxTask(ctx context.Context, id int64) (*models.OutboxTask, error)
	UpdateOutboxTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// FacilityRegistry answers "does this facility exist and can it be booked".
type FacilityRegistry interface {
	GetResource(ctx context.Context, id int64) (*models.Facility, error)
	IsBookable(f *models.Facility) bool
	ListFacilities(ctx context.Context) ([]*models.Facility, error)
	ListFacilitiesByType(ctx context.Context, facilityType string) ([]*models.Facility, error)
}

// Locker serializes writers per facility. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, facilityID int64) (func(), error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// OutboxEnqueuer persists a reservation change for asynchronous delivery.
type OutboxEnqueuer interface {
	Enqueue(ctx context.Context, eventType string, r *models.Reservation, changedBy string) error
}

type ReservationService interface {
	Create(ctx context.Context, req models.CreateRequest, now time.Time) (*models.Reservation, error)
	Update(ctx context.Context, id int64, req models.UpdateRequest, now time.Time) (*models.Reservation, error)
	CheckAvailability(ctx context.Context, facilityID int64, start, end time.Time, excludeID int64) (bool, error)
	Get(ctx context.Context, id int64) (*models.Reservation, error)
	ListByResource(ctx context.Context, facilityID int64) ([]*models.Reservation, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Reservation, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.Reservation, error)
	ListAll(ctx context.Context) ([]*models.Reservation, error)
	ListActive(ctx context.Context) ([]*models.Reservation, error)
	ListInRange(ctx context.Context, from, to time.Time) ([]*models.Reservation, error)
	ListUpcomingByOwner(ctx context.Context, ownerID string, now time.Time) ([]*models.Reservation, error)
	ListPastByOwner(ctx context.Context, ownerID string, now time.Time) ([]*models.Reservation, error)
	ListCancellableByOwner(ctx context.Context, ownerID string, now time.Time) ([]*models.Reservation, error)
}

type LifecycleService interface {
	Confirm(ctx context.Context, id int64, now time.Time) (*models.Reservation, error)
	Cancel(ctx context.Context, id int64, now time.Time) (*models.Reservation, error)
	Complete(ctx context.Context, id int64, now time.Time) (*models.Reservation, error)
}
