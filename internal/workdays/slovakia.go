package workdays

import "time"

// Slovakia returns the statutory public holidays of the Slovak Republic
// since 1994, per 241/1993 Z.z., 201/1996 Z.z. and 442/2001 Z.z.
func Slovakia() HolidaySet {
	return NewHolidaySet(
		FixedHoliday{Day: 1, Month: time.January, FirstYear: 1994},   // Day of the Establishment of the Slovak Republic
		FixedHoliday{Day: 6, Month: time.January, FirstYear: 1994},   // Epiphany
		EasterHoliday{Days: -2, FirstYear: 1994},                     // Good Friday
		EasterHoliday{Days: +1, FirstYear: 1994},                     // Easter Monday
		FixedHoliday{Day: 1, Month: time.May, FirstYear: 1994},       // Labour Day
		FixedHoliday{Day: 8, Month: time.May, FirstYear: 1997},       // Day of Victory over Fascism
		FixedHoliday{Day: 5, Month: time.July, FirstYear: 1994},      // St. Cyril and Methodius Day
		FixedHoliday{Day: 29, Month: time.August, FirstYear: 1994},   // Slovak National Uprising Anniversary
		FixedHoliday{Day: 1, Month: time.September, FirstYear: 1994}, // Constitution Day
		FixedHoliday{Day: 15, Month: time.September, FirstYear: 1994}, // Our Lady of Sorrows
		FixedHoliday{Day: 1, Month: time.November, FirstYear: 1994},  // All Saints' Day
		FixedHoliday{Day: 17, Month: time.November, FirstYear: 2001}, // Struggle for Freedom and Democracy Day
		FixedHoliday{Day: 24, Month: time.December, FirstYear: 1994}, // Christmas Eve
		FixedHoliday{Day: 25, Month: time.December, FirstYear: 1994}, // Christmas Day
		FixedHoliday{Day: 26, Month: time.December, FirstYear: 1994}, // St. Stephen's Day
	)
}
