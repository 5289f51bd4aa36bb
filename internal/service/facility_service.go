package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/heinthant2k4/sports-arena-booking/internal/apperrors"
	"github.com/heinthant2k4/sports-arena-booking/internal/database"
	"github.com/heinthant2k4/sports-arena-booking/internal/domain"
	"github.com/heinthant2k4/sports-arena-booking/internal/models"

	"github.com/rs/zerolog"
)

// FacilityService is the facility registry. It caches the facilities table
// and reloads it after ttl.
type FacilityService struct {
	repo     domain.FacilityRepository
	logger   *zerolog.Logger
	ttl      time.Duration
	clock    func() time.Time
	mu       sync.RWMutex
	byID     map[int64]models.Facility
	loadedAt time.Time
}

func NewFacilityService(repo domain.FacilityRepository, ttl time.Duration, logger *zerolog.Logger) *FacilityService {
	if ttl <= 0 {
		ttl = models.FacilitiesCacheTTL
	}
	return &FacilityService{
		repo:   repo,
		logger: logger,
		ttl:    ttl,
		clock:  time.Now,
		byID:   make(map[int64]models.Facility),
	}
}

// Seed upserts configured facilities and loads the cache.
func (s *FacilityService) Seed(ctx context.Context, facilities []models.Facility) error {
	if err := s.repo.SyncFacilities(ctx, facilities); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

func (s *FacilityService) Refresh(ctx context.Context) error {
	facilities, err := s.repo.ListFacilities(ctx)
	if err != nil {
		return err
	}

	byID := make(map[int64]models.Facility, len(facilities))
	for _, f := range facilities {
		byID[f.ID] = *f
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = byID
	s.loadedAt = s.clock()
	return nil
}

func (s *FacilityService) stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt.IsZero() || s.clock().Sub(s.loadedAt) > s.ttl
}

func (s *FacilityService) refreshIfStale(ctx context.Context) {
	if !s.stale() {
		return
	}
	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("facility cache refresh failed, serving previous snapshot")
	}
}

// GetResource returns a snapshot of the facility. Later changes to the
// facility do not affect the returned value.
func (s *FacilityService) GetResource(ctx context.Context, id int64) (*models.Facility, error) {
	s.refreshIfStale(ctx)

	s.mu.RLock()
	f, ok := s.byID[id]
	s.mu.RUnlock()
	if ok {
		return &f, nil
	}

	// Not cached yet; the row may have been added after the last refresh.
	fresh, err := s.repo.GetFacility(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperrors.NotFound("facility", id)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	s.mu.Lock()
	s.byID[id] = *fresh
	s.mu.Unlock()
	return fresh, nil
}

func (s *FacilityService) IsBookable(f *models.Facility) bool {
	return f.IsBookable()
}

func (s *FacilityService) ListFacilities(ctx context.Context) ([]*models.Facility, error) {
	s.refreshIfStale(ctx)

	s.mu.RLock()
	out := make([]*models.Facility, 0, len(s.byID))
	for _, f := range s.byID {
		f := f
		out = append(out, &f)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// ListFacilitiesByType filters ListFacilities by futsal or badminton.
func (s *FacilityService) ListFacilitiesByType(ctx context.Context, facilityType string) ([]*models.Facility, error) {
	if facilityType != models.FacilityTypeFutsal && facilityType != models.FacilityTypeBadminton {
		return nil, apperrors.InvalidInput("unknown facility type %q", facilityType)
	}

	all, err := s.ListFacilities(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, f := range all {
		if f.Type == facilityType {
			out = append(out, f)
		}
	}
	return out, nil
}

// notBookableReason explains why IsBookable is false.
func notBookableReason(f *models.Facility) string {
	switch {
	case !f.IsActive:
		return "facility is inactive"
	case f.IsUnderMaintenance:
		if f.MaintenanceNote != "" {
			return "under maintenance: " + f.MaintenanceNote
		}
		return "under maintenance"
	default:
		return "facility has no hourly rate"
	}
}
