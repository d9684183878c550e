package inforequests

import (
	"errors"
	"fmt"
	"time"

	"github.com/infodesk/internal/timewarp"
	"github.com/infodesk/internal/workdays"
)

// Extension bounds in working days for applicant-granted extensions.
const (
	MinExtension = 2
	MaxExtension = 100
)

// ErrNotExtendable is returned when an extension is requested on an action
// that has no extendable obligee deadline.
var ErrNotExtendable = errors.New("action deadline is not extendable")

// Deadlines computes deadline state for actions. The clock and the holiday
// set are passed in explicitly; there is no process-global calendar.
type Deadlines struct {
	Clock    timewarp.Clock
	Holidays workdays.HolidaySet
}

// NewDeadlines creates a deadline service.
func NewDeadlines(clock timewarp.Clock, holidays workdays.HolidaySet) *Deadlines {
	return &Deadlines{Clock: clock, Holidays: holidays}
}

// Date returns the calendar date the action's deadline (including any
// granted extension) falls on, and ok=false when the action sets none.
func (d *Deadlines) Date(a *Action) (time.Time, bool) {
	if !a.HasDeadline {
		return time.Time{}, false
	}
	return workdays.Advance(a.EffectiveDate, a.Deadline+a.Extension, d.Holidays), true
}

// DaysPassedAt returns the working days elapsed from the action's effective
// date to the given day.
func (d *Deadlines) DaysPassedAt(a *Action, at time.Time) int {
	return workdays.Between(a.EffectiveDate, at, d.Holidays)
}

// DaysPassed returns the working days elapsed until today.
func (d *Deadlines) DaysPassed(a *Action) int {
	return d.DaysPassedAt(a, d.Clock.Today())
}

// RemainingAt returns the working days remaining at the given day; negative
// means the deadline is missed. ok=false when the action sets no deadline.
func (d *Deadlines) RemainingAt(a *Action, at time.Time) (int, bool) {
	if !a.HasDeadline {
		return 0, false
	}
	return a.Deadline + a.Extension - d.DaysPassedAt(a, at), true
}

// Remaining returns the working days remaining as of today.
func (d *Deadlines) Remaining(a *Action) (int, bool) {
	return d.RemainingAt(a, d.Clock.Today())
}

// MissedAt reports whether the deadline is missed at the given day. The
// remaining count is 0 on the last day of the deadline, so missed means
// strictly negative.
func (d *Deadlines) MissedAt(a *Action, at time.Time) bool {
	remaining, ok := d.RemainingAt(a, at)
	return ok && remaining < 0
}

// Missed reports whether the deadline is missed as of today.
func (d *Deadlines) Missed(a *Action) bool {
	return d.MissedAt(a, d.Clock.Today())
}

// ExtensionFor computes the extension value to store so that the action's
// new deadline date falls n working days from today. Only missed obligee
// deadlines may be extended; applicant deadlines never.
func (d *Deadlines) ExtensionFor(a *Action, n int) (int, error) {
	if !a.HasObligeeDeadline() {
		return 0, ErrNotExtendable
	}
	if n < MinExtension || n > MaxExtension {
		return 0, fmt.Errorf("%w: extension must be between %d and %d working days",
			ErrValidation, MinExtension, MaxExtension)
	}
	// The stored extension replaces any previous one relative to the base
	// deadline: days_passed - deadline + n working days from today.
	return d.DaysPassed(a) - a.Deadline + n, nil
}
