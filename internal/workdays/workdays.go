// Package workdays implements working-day arithmetic over a configurable
// set of public holidays. A working day is a day that is neither Saturday,
// Sunday nor a holiday of the relevant year.
package workdays

import (
	"time"
)

// Holiday yields concrete dates for a given year, bounded by an optional
// first/last year of validity.
type Holiday interface {
	// ForYear returns the holiday's dates within the given year. The result
	// is empty if the holiday was not in force that year.
	ForYear(year int) []time.Time
}

// FixedHoliday is a holiday that falls on the same day and month every year.
// FirstYear and LastYear bound the years the holiday is in force; zero means
// unbounded.
type FixedHoliday struct {
	Day       int
	Month     time.Month
	FirstYear int
	LastYear  int
}

func (h FixedHoliday) ForYear(year int) []time.Time {
	if h.FirstYear != 0 && year < h.FirstYear {
		return nil
	}
	if h.LastYear != 0 && year > h.LastYear {
		return nil
	}
	return []time.Time{Date(year, h.Month, h.Day)}
}

// EasterHoliday is a holiday defined relative to Western Easter Sunday.
// Days is the offset: negative before, positive after.
type EasterHoliday struct {
	Days      int
	FirstYear int
	LastYear  int
}

func (h EasterHoliday) ForYear(year int) []time.Time {
	if h.FirstYear != 0 && year < h.FirstYear {
		return nil
	}
	if h.LastYear != 0 && year > h.LastYear {
		return nil
	}
	return []time.Time{Easter(year).AddDate(0, 0, h.Days)}
}

// HolidaySet is a declarative collection of holidays.
type HolidaySet struct {
	holidays []Holiday
}

// NewHolidaySet builds a holiday set from the given holidays.
func NewHolidaySet(holidays ...Holiday) HolidaySet {
	return HolidaySet{holidays: holidays}
}

// Between returns the distinct holiday dates in the interval (after, before].
func (s HolidaySet) Between(after, before time.Time) []time.Time {
	after, before = Date(after.Year(), after.Month(), after.Day()), Date(before.Year(), before.Month(), before.Day())
	seen := map[time.Time]bool{}
	var res []time.Time
	for _, h := range s.holidays {
		for year := after.Year(); year <= before.Year(); year++ {
			for _, d := range h.ForYear(year) {
				if d.After(after) && !d.After(before) && !seen[d] {
					seen[d] = true
					res = append(res, d)
				}
			}
		}
	}
	return res
}

// IsHoliday reports whether the given date is a holiday.
func (s HolidaySet) IsHoliday(d time.Time) bool {
	day := Date(d.Year(), d.Month(), d.Day())
	for _, h := range s.holidays {
		for _, hd := range h.ForYear(day.Year()) {
			if hd.Equal(day) {
				return true
			}
		}
	}
	return false
}

// Date returns the canonical representation of a calendar day: midnight UTC.
// All functions in this package compare dates in this form.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf truncates a timestamp to its calendar day.
func DateOf(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

func isWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsWorkday reports whether d is a working day under the given holiday set.
func IsWorkday(d time.Time, set HolidaySet) bool {
	return !isWeekend(d) && !set.IsHoliday(d)
}

// Between returns the number of working days in the interval (after, before],
// excluding after and including before. If a is the day something was
// submitted and b is today, then today is the last full day of a d-day
// deadline iff Between(a, b) == d, and the deadline is missed iff
// Between(a, b) > d.
//
// The following invariants hold:
//
//	Between(a, a) == 0
//	Between(a, b) == -Between(b, a)
//	Between(a, b) == Between(a, x) + Between(x, b)
func Between(after, before time.Time, set HolidaySet) int {
	after, before = DateOf(after), DateOf(before)
	if after.Equal(before) {
		return 0
	}
	if after.After(before) {
		return -Between(before, after, set)
	}

	days := int(before.Sub(after).Hours() / 24)
	res := (days / 7) * 5 // full weeks
	for d := 0; d < days%7; d++ {
		if !isWeekend(before.AddDate(0, 0, -d)) {
			res++
		}
	}
	// Holidays falling on weekends are already excluded by the weekend rule.
	for _, d := range set.Between(after, before) {
		if !isWeekend(d) {
			res--
		}
	}
	return res
}

// Advance returns the date reached by advancing n working days from the
// given date. Negative n steps backwards. Advance(a, n) is always a working
// day for n != 0, and Between(a, Advance(a, n), set) == n.
func Advance(from time.Time, n int, set HolidaySet) time.Time {
	d := DateOf(from)
	step := 1
	if n < 0 {
		step = -1
		n = -n
	}
	for n > 0 {
		d = d.AddDate(0, 0, step)
		if IsWorkday(d, set) {
			n--
		}
	}
	return d
}

// Easter returns Western Easter Sunday of the given year, computed with the
// anonymous Gregorian algorithm.
func Easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return Date(year, time.Month(month), day)
}
