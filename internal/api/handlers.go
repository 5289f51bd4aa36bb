package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/heinthant2k4/sports-arena-booking/internal/apperrors"
	"github.com/heinthant2k4/sports-arena-booking/internal/export"
	"github.com/heinthant2k4/sports-arena-booking/internal/models"

	"github.com/julienschmidt/httprouter"
)

const maxBodyBytes = 1 << 20

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.deps.Ping != nil {
		if err := s.deps.Ping(r.Context()); err != nil {
			s.log.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "NOT_READY", "dependency unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HTTPServer) handleListFacilities(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var (
		facilities []*models.Facility
		err        error
	)
	if facilityType := r.URL.Query().Get("type"); facilityType != "" {
		facilities, err = s.deps.Facilities.ListFacilitiesByType(r.Context(), strings.ToLower(facilityType))
	} else {
		facilities, err = s.deps.Facilities.ListFacilities(r.Context())
	}
	if err != nil {
		writeAppError(w, s.log, err)
		return
	}
	out := make([]facilityResponse, 0, len(facilities))
	for _, f := range facilities {
		out = append(out, newFacilityResponse(f))
	}
	writeJSON(w, http.StatusOK, map[string]any{"facilities": out})
}

func (s *HTTPServer) handleGetFacility(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := pathID(ps, "id")
	if err != nil {
		writeAppError(w, s.log, err)
		return
	}
	f, err := s.deps.Facilities.GetResource(r.Context(), id)
	if err != nil {
		writeAppError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, newFacilityResponse(f))
}

func (s *HTTPServer) handleListByFacility(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := pathID(ps, "id")
	if err != nil {
		writeAppError(w, s.log, err)
		return
	}
	s.writeReservations(w, func() ([]*models.Reservation, error) {
		return s.deps.Reservations.ListByResource(r.Context(), id)
	})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()

	facilityID, err := queryID(q, "facility_id", true)
	if err != nil {
		writeAppError(w, s.log, err)
		return
	}
	start, err := queryTime(q, "start", true)
	if err != nil {
		writeAppError(w, s.log, err)
		return
	}
	end, err := queryTime(q, "end", true)
	if err != nil {
		writeAppError(w, s.log, err)
		return
	}
	excludeID, err := queryID(q, "exclude_id", false)
	if err != nil {
		writeAppError(w, s.log, err)
		return
	}

	available, err := s.deps.Reservations.CheckAvailability(r.Context(), facilityID, start, end, excludeID)
	if err != nil {
		writeAppError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{
		FacilityID: facilityID,
		Start:      start.UTC(),
		End:        end.UTC(),
		Available:  available,
	})
}

func (s *HTTPServer) handleCreateReservation(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body createReservationRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeAppError(w, s.log, err)
		return
	}
	if err := s.validate.Struct(body); err != nil {
		writeAppError(w, s.log, err)
		return
	}

	res, err := s.deps.Reservations.Create(r.Context(), body.toModel(), s.deps.Now())
	if err != nil {
		writeAppError(w, s.log, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/reservations/%d", res.ID))
	writeJSON(w, http.StatusCreated, newReservationResponse(res))
}

// handleListReservations filters by status, by from/to range, or returns all
// active reservations when no filter is given.
func (s *HTTPServer) handleListReservations(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	ctx := r.Context()

	switch {
	case q.Get("status") != "":
		status, err := models.ParseStatus(strings.ToLower(q.Get("status")))
		if err != nil {
			writeAppError(w, s.log, apperrors.InvalidInput("%v", err))
			return
		}
		s.writeReservations(w, func() ([]*models.Reservation, error) {
			return s.deps.Reservations.ListByStatus(ctx, status)
		})

	case q.Get("from") != "" || q.Get("to") != "":
		from, err := queryTime(q, "from", true)
		if err != nil {
			writeAppError(w, s.log, err)
			return
		}
		to, err := queryTime(q, "to", true)
		if err != nil {
			writeAppError(w, s.log, err)
			return
		}
		s.writeReservations(w, func() ([]*models.Reservation, error) {
			return s.deps.Reservations.ListInRange(ctx, from, to)
		})

	case q.Get("all") != "":
		all, err := strconv.ParseBool(q.Get("all"))
		if err != nil || !all {
			writeAppError(w, s.log, apperrors.InvalidInput("all must be true when given"))
			return
		}
		s.writeReservations(w, func() ([]*models.Reservation, error) {
			return s.deps.Reservations.ListAll(ctx)
		})

	default:
		if raw := q.Get("active"); raw != "" {
			active, err := strconv.ParseBool(raw)
			if err != nil || !active {
				writeAppError(w, s.log, apperrors.InvalidInput("active must be true when given"))
				return
			}
		}
		s.writeReservations(w, func() ([]*models.Reservation, error) {
			return s.deps.Reservations.ListActive(ctx)
		})
	}
}

func (s *HTTPServer) handleGetReservation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := pathID(ps, "id")
	if err != nil {
		writeAppError(w, s.log, err)
		return
	}
	res, err := s.deps.Reservations.Get(r.Context(), id)
	if err != nil {
		writeAppError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationResponse(res))
}

func (s *HTTPServer) handleUpdateReservation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := pathID(ps, "id")
	if err != nil {
		writeAppError(w, s.log, err)
		return
	}

	var body updateReservationRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeAppError(w, s.log, err)
		return
	}
	if body.empty() {
		writeAppError(w, s.log, apperrors.InvalidInput("nothing to update"))
		return
	}
	if err := s.validate.Struct(body); err != nil {
		writeAppError(w, s.log, err)
		return
	}

	res, err := s.deps.Reservations.Update(r.Context(), id, body.toModel(), s.deps.Now())
	if err != nil {
		writeAppError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationResponse(res))
}

type transitionFunc func(ctx context.Context, id int64, now time.Time) (*models.Reservation, error)

func (s *HTTPServer) handleConfirm(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.transition(w, r, ps, s.deps.Lifecycle.Confirm)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.transition(w, r, ps, s.deps.Lifecycle.Cancel)
}

func (s *HTTPServer) handleComplete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.transition(w, r, ps, s.deps.Lifecycle.Complete)
}

func (s *HTTPServer) transition(w http.ResponseWriter, r *http.Request, ps httprouter.Params, apply transitionFunc) {
	id, err := pathID(ps, "id")
	if err != nil {
		writeAppError(w, s.log, err)
		return
	}
	res, err := apply(r.Context(), id, s.deps.Now())
	if err != nil {
		writeAppError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationResponse(res))
}

func (s *HTTPServer) handleListByOwner(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	owner := ps.ByName("owner_id")
	s.writeReservations(w, func() ([]*models.Reservation, error) {
		return s.deps.Reservations.ListByOwner(r.Context(), owner)
	})
}

func (s *HTTPServer) handleListUpcoming(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	owner := ps.ByName("owner_id")
	s.writeReservations(w, func() ([]*models.Reservation, error) {
		return s.deps.Reservations.ListUpcomingByOwner(r.Context(), owner, s.deps.Now())
	})
}

func (s *HTTPServer) handleListPast(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	owner := ps.ByName("owner_id")
	s.writeReservations(w, func() ([]*models.Reservation, error) {
		return s.deps.Reservations.ListPastByOwner(r.Context(), owner, s.deps.Now())
	})
}

func (s *HTTPServer) handleListCancellable(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	owner := ps.ByName("owner_id")
	s.writeReservations(w, func() ([]*models.Reservation, error) {
		return s.deps.Reservations.ListCancellableByOwner(r.Context(), owner, s.deps.Now())
	})
}

// handleExport streams an xlsx workbook of the reservations in [from, to].
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	from, err := queryTime(q, "from", true)
	if err != nil {
		writeAppError(w, s.log, err)
		return
	}
	to, err := queryTime(q, "to", true)
	if err != nil {
		writeAppError(w, s.log, err)
		return
	}

	reservations, err := s.deps.Reservations.ListInRange(r.Context(), from, to)
	if err != nil {
		writeAppError(w, s.log, err)
		return
	}

	f, err := export.Build(reservations, from, to)
	if err != nil {
		writeAppError(w, s.log, err)
		return
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			s.log.Warn().Err(cerr).Msg("close export workbook")
		}
	}()

	filename := fmt.Sprintf("reservations_%s_to_%s.xlsx", from.Format("2006-01-02"), to.Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if err := f.Write(w); err != nil {
		s.log.Error().Err(err).Msg("write export workbook")
	}
}

func (s *HTTPServer) writeReservations(w http.ResponseWriter, list func() ([]*models.Reservation, error)) {
	rs, err := list()
	if err != nil {
		writeAppError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reservations": newReservationList(rs),
		"count":        len(rs),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.InvalidInput("request body is required")
		}
		return apperrors.InvalidInput("invalid JSON body: %v", err)
	}
	return nil
}

func pathID(ps httprouter.Params, name string) (int64, error) {
	raw := ps.ByName(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.InvalidInput("invalid %s: %q", name, raw)
	}
	return id, nil
}

func queryID(q url.Values, name string, required bool) (int64, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		if required {
			return 0, apperrors.InvalidInput("%s is required", name)
		}
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.InvalidInput("invalid %s: %q", name, raw)
	}
	return id, nil
}

func queryTime(q url.Values, name string, required bool) (time.Time, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		if required {
			return time.Time{}, apperrors.InvalidInput("%s is required", name)
		}
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperrors.InvalidInput("invalid %s: expected RFC3339 timestamp", name)
	}
	return t, nil
}
