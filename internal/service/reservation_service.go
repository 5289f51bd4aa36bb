package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/heinthant2k4/sports-arena-booking/internal/apperrors"
	"github.com/heinthant2k4/sports-arena-booking/internal/database"
	"github.com/heinthant2k4/sports-arena-booking/internal/domain"
	"github.com/heinthant2k4/sports-arena-booking/internal/events"
	"github.com/heinthant2k4/sports-arena-booking/internal/interval"
	"github.com/heinthant2k4/sports-arena-booking/internal/metrics"
	"github.com/heinthant2k4/sports-arena-booking/internal/models"

	"github.com/rs/zerolog"
)

type ReservationService struct {
	repo     domain.ReservationRepository
	registry domain.FacilityRegistry
	locker   domain.Locker
	index    *interval.Index
	notify   notifier
	policy   models.Policy
	logger   *zerolog.Logger
}

func NewReservationService(
	repo domain.ReservationRepository,
	registry domain.FacilityRegistry,
	locker domain.Locker,
	index *interval.Index,
	eventBus domain.EventPublisher,
	outbox domain.OutboxEnqueuer,
	policy models.Policy,
	logger *zerolog.Logger,
) *ReservationService {
	return &ReservationService{
		repo:     repo,
		registry: registry,
		locker:   locker,
		index:    index,
		notify:   notifier{eventBus: eventBus, outbox: outbox, logger: logger},
		policy:   policy.WithDefaults(),
		logger:   logger,
	}
}

func (s *ReservationService) Policy() models.Policy {
	return s.policy
}

// LoadIndex rebuilds the conflict index from active reservations in the store.
func (s *ReservationService) LoadIndex(ctx context.Context) error {
	active, err := s.repo.ListActiveReservations(ctx)
	if err != nil {
		return err
	}

	byFacility := make(map[int64][]interval.Entry)
	for _, r := range active {
		byFacility[r.FacilityID] = append(byFacility[r.FacilityID], entryOf(r))
	}
	s.index.Load(byFacility)
	metrics.SetActiveReservations(s.index.Len())

	s.logger.Info().Int("active", len(active)).Int("facilities", len(byFacility)).Msg("reservation index loaded")
	return nil
}

// reloadFacility replaces the facility's index entries with the store's
// active set. Callers hold the facility lock.
func (s *ReservationService) reloadFacility(ctx context.Context, facilityID int64) error {
	active, err := s.repo.ListActiveReservationsByFacility(ctx, facilityID)
	if err != nil {
		s.logger.Error().Err(err).Int64("facility_id", facilityID).Msg("index reload failed")
		return apperrors.Internal(err)
	}

	entries := make([]interval.Entry, 0, len(active))
	for _, r := range active {
		entries = append(entries, entryOf(r))
	}
	s.index.ReloadFacility(facilityID, entries)
	metrics.SetActiveReservations(s.index.Len())
	s.logger.Debug().Int64("facility_id", facilityID).Int("entries", len(entries)).Msg("index reloaded from store")
	return nil
}

// conflictsLocked answers from the index when it reports the slot free. A hit
// may be stale when another instance cancelled or moved the reservation, so
// the facility is reloaded from the store and checked again before the
// caller rejects. Callers hold the facility lock.
func (s *ReservationService) conflictsLocked(ctx context.Context, facilityID int64, start, end time.Time, excludeID int64) ([]interval.Entry, error) {
	if conflicts := s.index.FindConflicts(facilityID, start, end, excludeID); len(conflicts) == 0 {
		return nil, nil
	}
	if err := s.reloadFacility(ctx, facilityID); err != nil {
		return nil, err
	}
	return s.index.FindConflicts(facilityID, start, end, excludeID), nil
}

func entryOf(r *models.Reservation) interval.Entry {
	return interval.Entry{ID: r.ID, Start: r.StartTime, End: r.EndTime}
}

// wholeSeconds rejects sub-second timestamps; the store keeps second
// precision and rounding would change the requested interval.
func wholeSeconds(start, end time.Time) error {
	if start.Nanosecond() != 0 || end.Nanosecond() != 0 {
		return apperrors.InvalidInput("start and end times must be whole seconds")
	}
	return nil
}

// validateInterval checks the time rules in order; the first failure wins.
func (s *ReservationService) validateInterval(start, end, now time.Time) error {
	if !start.After(now) {
		return apperrors.InvalidInterval("start time must be in the future")
	}
	if !end.After(start) {
		return apperrors.InvalidInterval("end time must be after start time")
	}

	d := end.Sub(start)
	if d < s.policy.MinDuration {
		return apperrors.InvalidInterval("reservation must last at least %s", s.policy.MinDuration)
	}
	if d > s.policy.MaxDuration {
		return apperrors.InvalidInterval("reservation must not exceed %s", s.policy.MaxDuration)
	}

	if start.After(now.Add(s.policy.BookingHorizon)) {
		return apperrors.InvalidInterval("reservations open at most %s in advance", s.policy.BookingHorizon)
	}
	return nil
}

func validatePurpose(purpose string) error {
	if utf8.RuneCountInString(purpose) > models.MaxPurposeLength {
		return apperrors.InvalidInput("purpose must be at most %d characters", models.MaxPurposeLength)
	}
	return nil
}

func (s *ReservationService) Create(ctx context.Context, req models.CreateRequest, now time.Time) (*models.Reservation, error) {
	facility, err := s.registry.GetResource(ctx, req.FacilityID)
	if err != nil {
		return nil, rejected(err)
	}
	if !s.registry.IsBookable(facility) {
		return nil, rejected(apperrors.NotBookable(notBookableReason(facility)))
	}

	start, end := req.Start.UTC(), req.End.UTC()
	if err := s.validateInterval(start, end, now); err != nil {
		return nil, rejected(err)
	}
	if err := wholeSeconds(start, end); err != nil {
		return nil, rejected(err)
	}
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, rejected(apperrors.InvalidInput("owner_id is required"))
	}
	if err := validatePurpose(req.Purpose); err != nil {
		return nil, rejected(err)
	}

	r := &models.Reservation{
		FacilityID:   facility.ID,
		FacilityName: facility.Name,
		OwnerID:      req.OwnerID,
		OwnerName:    req.OwnerName,
		StartTime:    start,
		EndTime:      end,
		Status:       models.StatusPending,
		TotalCost:    models.CalculateCost(facility.HourlyRate, start, end),
		Purpose:      req.Purpose,
	}

	if err := s.insert(ctx, r); err != nil {
		return nil, rejected(err)
	}

	metrics.IncReservationCreated(facility.Type)
	metrics.SetActiveReservations(s.index.Len())
	s.logger.Info().
		Int64("reservation_id", r.ID).
		Int64("facility_id", r.FacilityID).
		Str("owner_id", r.OwnerID).
		Time("start", r.StartTime).
		Time("end", r.EndTime).
		Msg("reservation created")

	s.notify.publish(ctx, events.EventReservationCreated, r, changedByOwner)
	return r, nil
}

// insert is the critical section: index check, store insert, index insert.
func (s *ReservationService) insert(ctx context.Context, r *models.Reservation) error {
	unlock, err := lockFacility(ctx, s.locker, r.FacilityID)
	if err != nil {
		return err
	}
	defer unlock()

	conflicts, err := s.conflictsLocked(ctx, r.FacilityID, r.StartTime, r.EndTime, 0)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return conflictError(conflicts)
	}

	if err := s.repo.CreateReservationWithLock(ctx, r); err != nil {
		if errors.Is(err, database.ErrConflict) {
			_ = s.reloadFacility(ctx, r.FacilityID)
		}
		return storeError(err, 0)
	}

	s.index.Insert(r.FacilityID, entryOf(r))
	return nil
}

// Update changes the interval and/or purpose of a pending reservation.
func (s *ReservationService) Update(ctx context.Context, id int64, req models.UpdateRequest, now time.Time) (*models.Reservation, error) {
	current, err := getReservation(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.update(ctx, current.FacilityID, id, req, now)
	if err != nil {
		return nil, rejected(err)
	}

	s.logger.Info().Int64("reservation_id", id).Int64("version", updated.Version).Msg("reservation updated")
	s.notify.publish(ctx, events.EventReservationUpdated, updated, changedByOwner)
	return updated, nil
}

func (s *ReservationService) update(ctx context.Context, facilityID, id int64, req models.UpdateRequest, now time.Time) (*models.Reservation, error) {
	unlock, err := lockFacility(ctx, s.locker, facilityID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	fresh, err := getReservation(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if fresh.Status != models.StatusPending {
		return nil, apperrors.InvalidState("only pending reservations can be modified, reservation %d is %s", id, fresh.Status)
	}

	updated := *fresh
	if req.Purpose != nil {
		if err := validatePurpose(*req.Purpose); err != nil {
			return nil, err
		}
		updated.Purpose = *req.Purpose
	}

	if req.ChangesTime() {
		start, end := fresh.StartTime, fresh.EndTime
		if req.Start != nil {
			start = req.Start.UTC()
		}
		if req.End != nil {
			end = req.End.UTC()
		}
		if err := s.validateInterval(start, end, now); err != nil {
			return nil, err
		}
		if err := wholeSeconds(start, end); err != nil {
			return nil, err
		}
		conflicts, err := s.conflictsLocked(ctx, fresh.FacilityID, start, end, id)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			return nil, conflictError(conflicts)
		}

		facility, err := s.registry.GetResource(ctx, fresh.FacilityID)
		if err != nil {
			return nil, err
		}
		updated.StartTime, updated.EndTime = start, end
		updated.TotalCost = models.CalculateCost(facility.HourlyRate, start, end)
	}

	if err := s.repo.UpdateReservationWithLock(ctx, &updated, fresh.Version); err != nil {
		if errors.Is(err, database.ErrConflict) {
			_ = s.reloadFacility(ctx, fresh.FacilityID)
		}
		return nil, storeError(err, id)
	}

	if req.ChangesTime() {
		s.index.Replace(fresh.FacilityID, entryOf(&updated))
	}
	return &updated, nil
}

// CheckAvailability reports whether [start, end) is free on the facility.
// It runs without the facility lock; an index hit is confirmed against the
// store so a slot released by another instance reads as free.
func (s *ReservationService) CheckAvailability(ctx context.Context, facilityID int64, start, end time.Time, excludeID int64) (bool, error) {
	if _, err := s.registry.GetResource(ctx, facilityID); err != nil {
		return false, err
	}
	start, end = start.UTC(), end.UTC()
	if !end.After(start) {
		return false, apperrors.InvalidInterval("end time must be after start time")
	}
	if len(s.index.FindConflicts(facilityID, start, end, excludeID)) == 0 {
		return true, nil
	}

	active, err := s.repo.ListActiveReservationsByFacility(ctx, facilityID)
	if err != nil {
		return false, apperrors.Internal(err)
	}
	for _, r := range active {
		if r.ID != excludeID && r.Overlaps(start, end) {
			return false, nil
		}
	}
	return true, nil
}

func (s *ReservationService) Get(ctx context.Context, id int64) (*models.Reservation, error) {
	return getReservation(ctx, s.repo, id)
}

func (s *ReservationService) ListByResource(ctx context.Context, facilityID int64) ([]*models.Reservation, error) {
	if _, err := s.registry.GetResource(ctx, facilityID); err != nil {
		return nil, err
	}
	return listResult(s.repo.ListReservationsByFacility(ctx, facilityID))
}

func (s *ReservationService) ListByOwner(ctx context.Context, ownerID string) ([]*models.Reservation, error) {
	return listResult(s.repo.ListReservationsByOwner(ctx, ownerID))
}

func (s *ReservationService) ListByStatus(ctx context.Context, status models.Status) ([]*models.Reservation, error) {
	return listResult(s.repo.ListReservationsByStatus(ctx, status))
}

func (s *ReservationService) ListAll(ctx context.Context) ([]*models.Reservation, error) {
	return listResult(s.repo.ListAllReservations(ctx))
}

func (s *ReservationService) ListActive(ctx context.Context) ([]*models.Reservation, error) {
	return listResult(s.repo.ListActiveReservations(ctx))
}

// ListInRange returns reservations fully inside [from, to].
func (s *ReservationService) ListInRange(ctx context.Context, from, to time.Time) ([]*models.Reservation, error) {
	if to.Before(from) {
		return nil, apperrors.InvalidInterval("range end must not be before range start")
	}
	return listResult(s.repo.ListReservationsInRange(ctx, from, to))
}

func (s *ReservationService) ListUpcomingByOwner(ctx context.Context, ownerID string, now time.Time) ([]*models.Reservation, error) {
	return listResult(s.repo.ListUpcomingReservationsByOwner(ctx, ownerID, now))
}

func (s *ReservationService) ListPastByOwner(ctx context.Context, ownerID string, now time.Time) ([]*models.Reservation, error) {
	return listResult(s.repo.ListPastReservationsByOwner(ctx, ownerID, now))
}

// ListCancellableByOwner returns active reservations that still clear the
// cancellation cutoff at now.
func (s *ReservationService) ListCancellableByOwner(ctx context.Context, ownerID string, now time.Time) ([]*models.Reservation, error) {
	return listResult(s.repo.ListCancellableReservationsByOwner(ctx, ownerID, now.Add(s.policy.CancelCutoff)))
}
