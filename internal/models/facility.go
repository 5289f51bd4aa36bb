package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	FacilityTypeFutsal    = "futsal"
	FacilityTypeBadminton = "badminton"
)

// Facility is a bookable court or pitch.
type Facility struct {
	ID                 int64           `yaml:"id" json:"id" validate:"required,gt=0"`
	Name               string          `yaml:"name" json:"name" validate:"required,max=100"`
	Type               string          `yaml:"type" json:"type" validate:"required,oneof=futsal badminton"`
	Capacity           int             `yaml:"capacity" json:"capacity" validate:"min=1,max=100"`
	HourlyRate         decimal.Decimal `yaml:"hourly_rate" json:"hourly_rate"`
	IsActive           bool            `yaml:"is_active" json:"is_active"`
	IsUnderMaintenance bool            `yaml:"is_under_maintenance" json:"is_under_maintenance"`
	MaintenanceNote    string          `yaml:"maintenance_note" json:"maintenance_note,omitempty" validate:"max=500"`
	OpeningTime        string          `yaml:"opening_time" json:"opening_time" validate:"omitempty,datetime=15:04"`
	ClosingTime        string          `yaml:"closing_time" json:"closing_time" validate:"omitempty,datetime=15:04"`
	Location           string          `yaml:"location" json:"location,omitempty" validate:"max=200"`
	Description        string          `yaml:"description" json:"description,omitempty" validate:"max=500"`
	CreatedAt          time.Time       `yaml:"-" json:"created_at"`
	UpdatedAt          time.Time       `yaml:"-" json:"updated_at"`
}

// IsBookable reports whether new reservations may be placed on the facility.
func (f *Facility) IsBookable() bool {
	if f == nil {
		return false
	}
	return f.IsActive && !f.IsUnderMaintenance && f.HourlyRate.IsPositive()
}
