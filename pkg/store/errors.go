package store

import "errors"

var (
	// ErrNoSnapshot is returned by a LocalStore that has nothing saved yet.
	ErrNoSnapshot = errors.New("no saved bell state")
	// ErrScheduleNotFound is returned when a schedule id does not exist.
	ErrScheduleNotFound = errors.New("schedule not found")
	// ErrEventNotFound is returned when an event id does not exist.
	ErrEventNotFound = errors.New("bell event not found")
)
