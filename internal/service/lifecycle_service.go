package service

import (
	"context"
	"time"

	"github.com/heinthant2k4/sports-arena-booking/internal/apperrors"
	"github.com/heinthant2k4/sports-arena-booking/internal/domain"
	"github.com/heinthant2k4/sports-arena-booking/internal/events"
	"github.com/heinthant2k4/sports-arena-booking/internal/interval"
	"github.com/heinthant2k4/sports-arena-booking/internal/metrics"
	"github.com/heinthant2k4/sports-arena-booking/internal/models"

	"github.com/rs/zerolog"
)

// LifecycleService moves reservations through confirm, cancel and complete.
type LifecycleService struct {
	repo   domain.ReservationRepository
	locker domain.Locker
	index  *interval.Index
	notify notifier
	policy models.Policy
	logger *zerolog.Logger
}

func NewLifecycleService(
	repo domain.ReservationRepository,
	locker domain.Locker,
	index *interval.Index,
	eventBus domain.EventPublisher,
	outbox domain.OutboxEnqueuer,
	policy models.Policy,
	logger *zerolog.Logger,
) *LifecycleService {
	return &LifecycleService{
		repo:   repo,
		locker: locker,
		index:  index,
		notify: notifier{eventBus: eventBus, outbox: outbox, logger: logger},
		policy: policy.WithDefaults(),
		logger: logger,
	}
}

func (s *LifecycleService) Confirm(ctx context.Context, id int64, now time.Time) (*models.Reservation, error) {
	return s.transition(ctx, id, models.StatusConfirmed, nil)
}

// Cancel requires the reservation to be active and now + cutoff < start.
func (s *LifecycleService) Cancel(ctx context.Context, id int64, now time.Time) (*models.Reservation, error) {
	return s.transition(ctx, id, models.StatusCancelled, func(r *models.Reservation) error {
		if !r.IsCancellable(now, s.policy.CancelCutoff) {
			return apperrors.InvalidState("reservations can be cancelled only more than %s before start", s.policy.CancelCutoff)
		}
		return nil
	})
}

// Complete requires a confirmed reservation whose end has passed.
func (s *LifecycleService) Complete(ctx context.Context, id int64, now time.Time) (*models.Reservation, error) {
	return s.transition(ctx, id, models.StatusCompleted, func(r *models.Reservation) error {
		if !r.IsCompletable(now) {
			return apperrors.InvalidState("reservation %d has not ended yet", r.ID)
		}
		return nil
	})
}

func (s *LifecycleService) transition(ctx context.Context, id int64, target models.Status, guard func(*models.Reservation) error) (*models.Reservation, error) {
	current, err := getReservation(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}

	r, err := s.apply(ctx, current.FacilityID, id, target, guard)
	if err != nil {
		return nil, err
	}

	metrics.IncTransition(target.String())
	metrics.SetActiveReservations(s.index.Len())
	s.logger.Info().Int64("reservation_id", id).Str("status", target.String()).Msg("reservation status changed")

	s.notify.publish(ctx, events.EventTypeFor(target), r, changedByManager)
	return r, nil
}

func (s *LifecycleService) apply(ctx context.Context, facilityID, id int64, target models.Status, guard func(*models.Reservation) error) (*models.Reservation, error) {
	unlock, err := lockFacility(ctx, s.locker, facilityID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	fresh, err := getReservation(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(fresh.Status, target) {
		return nil, apperrors.InvalidState("cannot move reservation %d from %s to %s", id, fresh.Status, target)
	}
	if guard != nil {
		if err := guard(fresh); err != nil {
			return nil, err
		}
	}

	if err := s.repo.UpdateReservationStatusWithVersion(ctx, id, fresh.Version, target); err != nil {
		return nil, storeError(err, id)
	}
	if target.IsTerminal() {
		s.index.Remove(id)
	}

	return getReservation(ctx, s.repo, id)
}
