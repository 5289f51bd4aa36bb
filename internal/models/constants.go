package models

import "time"

const (
	DefaultMinDuration    = time.Hour
	DefaultMaxDuration    = 8 * time.Hour
	DefaultBookingHorizon = 30 * 24 * time.Hour
	DefaultCancelCutoff   = 2 * time.Hour

	DefaultOpeningTime = "06:00"
	DefaultClosingTime = "23:00"

	// MaxPurposeLength caps the purpose field, counted in runes.
	MaxPurposeLength = 200

	// WorkerQueueSize is the outbox worker's in-memory queue depth.
	WorkerQueueSize = 128

	// FacilitiesCacheTTL bounds how long the facility registry serves cached rows.
	FacilitiesCacheTTL = 5 * time.Minute
)

// Policy holds the time rules applied to every reservation.
type Policy struct {
	MinDuration    time.Duration
	MaxDuration    time.Duration
	BookingHorizon time.Duration
	CancelCutoff   time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MinDuration:    DefaultMinDuration,
		MaxDuration:    DefaultMaxDuration,
		BookingHorizon: DefaultBookingHorizon,
		CancelCutoff:   DefaultCancelCutoff,
	}
}

// WithDefaults fills zero fields from DefaultPolicy.
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if p.MinDuration <= 0 {
		p.MinDuration = d.MinDuration
	}
	if p.MaxDuration <= 0 {
		p.MaxDuration = d.MaxDuration
	}
	if p.BookingHorizon <= 0 {
		p.BookingHorizon = d.BookingHorizon
	}
	if p.CancelCutoff <= 0 {
		p.CancelCutoff = d.CancelCutoff
	}
	return p
}
