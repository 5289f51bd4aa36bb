package models

import "time"

// CreateRequest is the input of a new reservation.
type CreateRequest struct {
	FacilityID int64
	OwnerID    string
	OwnerName  string
	Start      time.Time
	End        time.Time
	Purpose    string
}

// UpdateRequest carries optional changes; nil fields keep the stored value.
type UpdateRequest struct {
	Start   *time.Time
	End     *time.Time
	Purpose *string
}

func (u UpdateRequest) ChangesTime() bool {
	return u.Start != nil || u.End != nil
}
