package model

import (
	"fmt"
	"slices"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

// OccupyingStatuses are the statuses that hold a provider's slot.
var OccupyingStatuses = []Status{StatusPending, StatusConfirmed, StatusInProgress}

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled:
		return s, nil
	}
	return "", fmt.Errorf("unknown appointment status %q", raw)
}

// OccupiesSlot reports membership in OccupyingStatuses, the set the store filters on.
func (s Status) OccupiesSlot() bool {
	return slices.Contains(OccupyingStatuses, s)
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Appointment occupies exactly one slot starting at ScheduledTime.
type Appointment struct {
	ID              string
	ProviderID      string
	ClientID        string
	VehicleID       string
	ServiceID       string
	ScheduledTime   time.Time
	Status          Status
	Notes           string
	CompletionNotes string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
