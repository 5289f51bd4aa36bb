package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Reservation struct {
	ID           int64           `json:"id"`
	FacilityID   int64           `json:"facility_id"`
	FacilityName string          `json:"facility_name"`
	OwnerID      string          `json:"owner_id"`
	OwnerName    string          `json:"owner_name"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      time.Time       `json:"end_time"`
	Status       Status          `json:"status"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	Purpose      string          `json:"purpose,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Version      int64           `json:"version"`
}

// Duration of the reserved interval.
func (r *Reservation) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Overlaps uses half-open intervals: touching endpoints do not overlap.
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return r.StartTime.Before(end) && r.EndTime.After(start)
}

// IsActive reports whether the reservation still blocks its interval.
func (r *Reservation) IsActive() bool {
	return r.Status.IsActive()
}

// IsCancellable reports whether the owner may still cancel at now.
func (r *Reservation) IsCancellable(now time.Time, cutoff time.Duration) bool {
	return r.IsActive() && now.Add(cutoff).Before(r.StartTime)
}

// IsCompletable reports whether a confirmed reservation has ended by now.
func (r *Reservation) IsCompletable(now time.Time) bool {
	return r.Status == StatusConfirmed && !now.Before(r.EndTime)
}

// CalculateCost charges rate per hour pro rata by whole minutes, rounded to cents.
func CalculateCost(hourlyRate decimal.Decimal, start, end time.Time) decimal.Decimal {
	minutes := int64(end.Sub(start) / time.Minute)
	return hourlyRate.
		Mul(decimal.NewFromInt(minutes)).
		Div(decimal.NewFromInt(60)).
		Round(2)
}
