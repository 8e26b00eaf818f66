package schedule

import (
	"fmt"
	"strings"
	"time"
)

// BusyOverride is a provider's manually declared unavailability. A nil BusyUntil means
// busy until further notice.
type BusyOverride struct {
	ProviderID string     `json:"provider_id"`
	IsBusy     bool       `json:"is_busy"`
	BusyUntil  *time.Time `json:"busy_until,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// OverrideMode selects how an override that ends partway through a day is applied.
type OverrideMode string

const (
	// OverrideWholeDay blocks every day the busy window touches.
	OverrideWholeDay OverrideMode = "whole_day"
	// OverrideIntersect only removes slots that start before BusyUntil.
	OverrideIntersect OverrideMode = "intersect"
)

func ParseOverrideMode(raw string) (OverrideMode, error) {
	switch OverrideMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", OverrideWholeDay:
		return OverrideWholeDay, nil
	case OverrideIntersect:
		return OverrideIntersect, nil
	default:
		return "", fmt.Errorf("unknown busy override mode %q", raw)
	}
}

// Covers reports whether the override's busy window reaches past dayStart, the first
// instant of the day being resolved. A window ending partway through a day covers that
// whole day, even after BusyUntil has passed.
func (o *BusyOverride) Covers(dayStart time.Time) bool {
	if o == nil || !o.IsBusy {
		return false
	}
	return o.BusyUntil == nil || o.BusyUntil.After(dayStart)
}

// EndsWithin reports whether the busy window ends strictly inside [dayStart, dayEnd).
func (o *BusyOverride) EndsWithin(dayStart, dayEnd time.Time) bool {
	if !o.Covers(dayStart) || o.BusyUntil == nil {
		return false
	}
	return o.BusyUntil.Before(dayEnd)
}
