package availability

import (
	"time"

	"github.com/servicebay/servicebay/services/booking-service/internal/schedule"
)

const DefaultGranularity = 30 * time.Minute

// Slot is one candidate start time on the granularity grid of a working day.
type Slot struct {
	Time      schedule.Clock `json:"time"`
	Available bool           `json:"available"`
}

// GenerateSlots walks [day.Start, day.End) in granularity steps. A slot is only emitted
// when it fits entirely before End, so the result has floor((End-Start)/granularity)
// entries. Days off, empty or inverted windows and sub-minute granularity yield nil.
func GenerateSlots(day schedule.Day, granularity time.Duration) []schedule.Clock {
	step := schedule.Clock(granularity / time.Minute)
	if !day.IsWorkingDay || step <= 0 || day.Start >= day.End {
		return nil
	}

	slots := make([]schedule.Clock, 0, int(day.End-day.Start)/int(step))
	for t := day.Start; t+step <= day.End; t += step {
		slots = append(slots, t)
	}
	return slots
}

// gridSlot maps a time of day onto the slot grid anchored at start. Times before start
// have no slot.
func gridSlot(c, start schedule.Clock, step schedule.Clock) (schedule.Clock, bool) {
	if c < start || step <= 0 {
		return 0, false
	}
	return start + (c-start)/step*step, true
}
