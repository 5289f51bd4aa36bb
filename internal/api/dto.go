package api

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/heinthant2k4/sports-arena-booking/internal/apperrors"
	"github.com/heinthant2k4/sports-arena-booking/internal/models"

	"github.com/go-playground/validator/v10"
)

type createReservationRequest struct {
	FacilityID int64     `json:"facility_id" validate:"required,gt=0"`
	OwnerID    string    `json:"owner_id" validate:"required,max=100"`
	OwnerName  string    `json:"owner_name" validate:"max=100"`
	StartTime  time.Time `json:"start_time" validate:"required"`
	EndTime    time.Time `json:"end_time" validate:"required"`
	Purpose    string    `json:"purpose" validate:"max=200"`
}

func (r createReservationRequest) toModel() models.CreateRequest {
	return models.CreateRequest{
		FacilityID: r.FacilityID,
		OwnerID:    strings.TrimSpace(r.OwnerID),
		OwnerName:  strings.TrimSpace(r.OwnerName),
		Start:      r.StartTime,
		End:        r.EndTime,
		Purpose:    r.Purpose,
	}
}

type updateReservationRequest struct {
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Purpose   *string    `json:"purpose" validate:"omitempty,max=200"`
}

func (r updateReservationRequest) empty() bool {
	return r.StartTime == nil && r.EndTime == nil && r.Purpose == nil
}

func (r updateReservationRequest) toModel() models.UpdateRequest {
	return models.UpdateRequest{Start: r.StartTime, End: r.EndTime, Purpose: r.Purpose}
}

type reservationResponse struct {
	ID           int64     `json:"id"`
	FacilityID   int64     `json:"facility_id"`
	FacilityName string    `json:"facility_name"`
	OwnerID      string    `json:"owner_id"`
	OwnerName    string    `json:"owner_name,omitempty"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Status       string    `json:"status"`
	TotalCost    string    `json:"total_cost"`
	Purpose      string    `json:"purpose,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Version      int64     `json:"version"`
}

func newReservationResponse(r *models.Reservation) reservationResponse {
	return reservationResponse{
		ID:           r.ID,
		FacilityID:   r.FacilityID,
		FacilityName: r.FacilityName,
		OwnerID:      r.OwnerID,
		OwnerName:    r.OwnerName,
		StartTime:    r.StartTime.UTC(),
		EndTime:      r.EndTime.UTC(),
		Status:       r.Status.String(),
		TotalCost:    r.TotalCost.StringFixed(2),
		Purpose:      r.Purpose,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		Version:      r.Version,
	}
}

func newReservationList(rs []*models.Reservation) []reservationResponse {
	out := make([]reservationResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, newReservationResponse(r))
	}
	return out
}

type facilityResponse struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Type               string `json:"type"`
	Capacity           int    `json:"capacity"`
	HourlyRate         string `json:"hourly_rate"`
	IsActive           bool   `json:"is_active"`
	IsUnderMaintenance bool   `json:"is_under_maintenance"`
	MaintenanceNote    string `json:"maintenance_note,omitempty"`
	OpeningTime        string `json:"opening_time,omitempty"`
	ClosingTime        string `json:"closing_time,omitempty"`
	Location           string `json:"location,omitempty"`
	Description        string `json:"description,omitempty"`
	Bookable           bool   `json:"bookable"`
}

func newFacilityResponse(f *models.Facility) facilityResponse {
	return facilityResponse{
		ID:                 f.ID,
		Name:               f.Name,
		Type:               f.Type,
		Capacity:           f.Capacity,
		HourlyRate:         f.HourlyRate.StringFixed(2),
		IsActive:           f.IsActive,
		IsUnderMaintenance: f.IsUnderMaintenance,
		MaintenanceNote:    f.MaintenanceNote,
		OpeningTime:        f.OpeningTime,
		ClosingTime:        f.ClosingTime,
		Location:           f.Location,
		Description:        f.Description,
		Bookable:           f.IsBookable(),
	}
}

type availabilityResponse struct {
	FacilityID int64     `json:"facility_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Available  bool      `json:"available"`
}

// requestValidator reports failures by JSON field name.
type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &requestValidator{validate: v}
}

func (v *requestValidator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.InvalidInput("invalid request: %v", err)
	}

	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[fe.Field()] = rule
	}
	return apperrors.InvalidInput("request validation failed").WithDetails(map[string]any{"fields": fields})
}
