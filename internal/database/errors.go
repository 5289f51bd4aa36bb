package database

import "errors"

var (
	ErrNotFound               = errors.New("record not found")
	ErrConflict               = errors.New("time slot overlaps an active reservation")
	ErrConcurrentModification = errors.New("record was modified concurrently")
)
