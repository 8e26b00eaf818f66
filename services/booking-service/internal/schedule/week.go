package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidSchedule marks stored or submitted working hours that cannot produce slots.
var ErrInvalidSchedule = errors.New("invalid schedule configuration")

// Day is one weekday of a provider's recurring schedule. Start and End are ignored
// when IsWorkingDay is false.
type Day struct {
	Weekday      time.Weekday `json:"weekday"`
	IsWorkingDay bool         `json:"is_working_day"`
	Start        Clock        `json:"start_time"`
	End          Clock        `json:"end_time"`
}

func (d Day) Validate() error {
	if d.Weekday < time.Sunday || d.Weekday > time.Saturday {
		return fmt.Errorf("%w: weekday %d out of range", ErrInvalidSchedule, int(d.Weekday))
	}
	if !d.IsWorkingDay {
		return nil
	}
	if !d.Start.Valid() || !d.End.Valid() || d.Start == EndOfDay {
		return fmt.Errorf("%w: %s has out-of-range hours", ErrInvalidSchedule, d.Weekday)
	}
	if d.Start >= d.End {
		return fmt.Errorf("%w: %s starts at %s but ends at %s", ErrInvalidSchedule, d.Weekday, d.Start, d.End)
	}
	return nil
}

// Week maps weekdays to their schedule. A missing weekday means no working hours were
// configured for it, which is treated like a day off.
type Week map[time.Weekday]Day

func NewWeek(days ...Day) Week {
	w := make(Week, len(days))
	for _, d := range days {
		w[d.Weekday] = d
	}
	return w
}

func (w Week) Day(wd time.Weekday) (Day, bool) {
	d, ok := w[wd]
	return d, ok
}

// Days returns the configured days ordered Sunday first.
func (w Week) Days() []Day {
	out := make([]Day, 0, len(w))
	for _, d := range w {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weekday < out[j].Weekday })
	return out
}

func (w Week) Validate() error {
	var errs []error
	for _, d := range w.Days() {
		if err := d.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
