package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/heinthant2k4/sports-arena-booking/internal/apperrors"
	"github.com/heinthant2k4/sports-arena-booking/internal/database"
	"github.com/heinthant2k4/sports-arena-booking/internal/domain"
	"github.com/heinthant2k4/sports-arena-booking/internal/events"
	"github.com/heinthant2k4/sports-arena-booking/internal/interval"
	"github.com/heinthant2k4/sports-arena-booking/internal/metrics"
	"github.com/heinthant2k4/sports-arena-booking/internal/models"

	"github.com/rs/zerolog"
)

const (
	changedByOwner   = "owner"
	changedByManager = "manager"
)

// notifier fans a reservation change out to the event bus and the outbox.
type notifier struct {
	eventBus domain.EventPublisher
	outbox   domain.OutboxEnqueuer
	logger   *zerolog.Logger
}

func (n notifier) publish(ctx context.Context, eventType string, r *models.Reservation, changedBy string) {
	if n.eventBus != nil {
		if err := n.eventBus.PublishJSON(eventType, events.NewReservationPayload(r, changedBy)); err != nil {
			n.logger.Error().Err(err).Str("event_type", eventType).Int64("reservation_id", r.ID).Msg("publish event error")
		}
	}

	if n.outbox != nil {
		if err := n.outbox.Enqueue(ctx, eventType, r, changedBy); err != nil {
			n.logger.Error().Err(err).Str("event_type", eventType).Int64("reservation_id", r.ID).Msg("outbox enqueue error")
		}
	}
}

func lockFacility(ctx context.Context, locker domain.Locker, facilityID int64) (func(), error) {
	unlock, err := locker.Lock(ctx, facilityID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindConflict, fmt.Sprintf("facility %d is busy, try again", facilityID))
	}
	return unlock, nil
}

func getReservation(ctx context.Context, repo domain.ReservationRepository, id int64) (*models.Reservation, error) {
	r, err := repo.GetReservation(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperrors.NotFound("reservation", id)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return r, nil
}

// storeError maps sentinel store errors onto error kinds.
func storeError(err error, id int64) error {
	switch {
	case errors.Is(err, database.ErrConflict):
		return apperrors.Conflict("requested time overlaps an existing reservation")
	case errors.Is(err, database.ErrConcurrentModification):
		return apperrors.Conflict("reservation %d was modified concurrently, reload and retry", id)
	case errors.Is(err, database.ErrNotFound):
		return apperrors.NotFound("reservation", id)
	default:
		return apperrors.Internal(err)
	}
}

func conflictError(conflicts []interval.Entry) error {
	ids := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		ids = append(ids, fmt.Sprint(c.ID))
	}
	return apperrors.Conflict("requested time overlaps reservation(s) %s", strings.Join(ids, ", ")).
		WithDetails(map[string]any{"conflicting_ids": ids})
}

func rejected(err error) error {
	if err != nil {
		metrics.IncReservationRejected(string(apperrors.KindOf(err)))
	}
	return err
}

func listResult(rs []*models.Reservation, err error) ([]*models.Reservation, error) {
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return rs, nil
}
