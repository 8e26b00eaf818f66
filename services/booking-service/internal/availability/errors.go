package availability

import "errors"

var (
	// ErrDependencyUnavailable means a store read failed or timed out. Availability is
	// never guessed in that case.
	ErrDependencyUnavailable = errors.New("availability dependency unavailable")
	// ErrSlotConflict means the requested slot is already held by another appointment.
	ErrSlotConflict = errors.New("time slot already booked")
	// ErrNotBookable means the requested time is not an offered slot (past, off-grid,
	// outside working hours or blocked by a busy override).
	ErrNotBookable = errors.New("requested time is not a bookable slot")
)
