package dealtypes

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flightdeals/dealsindex/internal/dealerrs"
)

// DateCode is a YYYYMMDD calendar date packed into an integer, grounded on
// the original's date_to_int/int_to_date (src/types.cpp). Zero means
// "unset"; int_to_date there rejects 0, matching property 4 of spec.md §8.
type DateCode uint32

// ParseDate validates and encodes a "YYYY-MM-DD" string. An empty string
// encodes to 0 ("undefined"), matching types::Date's paramter_undefined
// state.
func ParseDate(date string) (DateCode, error) {
	if date == "" {
		return 0, nil
	}
	if len(date) != 10 || date[4] != '-' || date[7] != '-' {
		return 0, dealerrs.New(dealerrs.KindBadParameter, "wrong date format: %q", date)
	}
	digits := date[0:4] + date[5:7] + date[8:10]
	v, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return 0, dealerrs.New(dealerrs.KindBadParameter, "wrong date format: %q", date)
	}
	code := DateCode(v)
	if _, _, _, ok := code.split(); !ok {
		return 0, dealerrs.New(dealerrs.KindBadParameter, "wrong date format: %q", date)
	}
	return code, nil
}

// MustParseDate is ParseDate for call sites that already validated the
// input (test fixtures, internal constants).
func MustParseDate(date string) DateCode {
	v, err := ParseDate(date)
	if err != nil {
		panic(err)
	}
	return v
}

// IsZero reports whether the code is the "undefined"/one-way sentinel.
func (c DateCode) IsZero() bool { return c == 0 }

func (c DateCode) split() (year, month, day uint32, ok bool) {
	v := uint32(c)
	year = v / 10000
	month = (v - year*10000) / 100
	day = v - year*10000 - month*100
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return 0, 0, 0, false
	}
	return year, month, day, true
}

// String decodes the code back to "YYYY-MM-DD". int_to_date in the
// original rejects 0 ("wrong date code"); we mirror that by returning the
// empty string, since the zero value never round-trips through ParseDate.
func (c DateCode) String() string {
	year, month, day, ok := c.split()
	if c == 0 || !ok {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

// dowTable is utils::day_of_week's month-offset table
// (src/utils.cpp, a Zeller's-congruence variant), Monday=0..Sunday=6.
var dowTable = [12]int{0, 3, 2, 5, 0, 3, 5, 1, 4, 6, 2, 4}

// DayOfWeek returns the weekday of the date, Monday=0..Sunday=6, grounded
// on utils::day_of_week.
func (c DateCode) DayOfWeek() uint8 {
	year, month, day, ok := c.split()
	if !ok {
		return 7
	}
	y := int(year)
	if month < 3 {
		y--
	}
	res := (y + y/4 - y/100 + y/400 + dowTable[month-1] + int(day)) % 7
	if res == 0 {
		return 6
	}
	return uint8(res - 1)
}

// WeekdayBit returns the 7-bit weekday bitmask for the date (one bit set),
// grounded on types::Weekdays(Date).
func (c DateCode) WeekdayBit() uint8 {
	return 1 << c.DayOfWeek()
}

// rataDie is utils::rdn (src/utils.cpp): day count since 0001-01-01.
func rataDie(year, month, day int) int {
	y, m := year, month
	if m < 3 {
		y--
		m += 12
	}
	return 365*y + y/4 - y/100 + y/400 + (153*m-457)/5 + day - 306
}

// DaysBetween returns the number of days from c to other, grounded on
// utils::days_between_dates. Negative when other precedes c.
func (c DateCode) DaysBetween(other DateCode) int {
	y1, m1, d1, ok1 := c.split()
	y2, m2, d2, ok2 := other.split()
	if !ok1 || !ok2 {
		return 0
	}
	return rataDie(int(y2), int(m2), int(d2)) - rataDie(int(y1), int(m1), int(d1))
}

// weekdayNames is utils::days (src/utils.cpp), Monday-first.
var weekdayNames = [7]string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// ParseWeekday parses a single weekday name (case-insensitive) to its
// Monday=0..Sunday=6 index, grounded on utils::day_of_week_from_str.
// Supplements spec.md §8 property 5 with the string codec the distillation
// left implicit.
func ParseWeekday(name string) (uint8, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for i, d := range weekdayNames {
		if d == lower {
			return uint8(i), nil
		}
	}
	return 7, dealerrs.New(dealerrs.KindBadParameter, "bad weekday: %q", name)
}

// WeekdayName renders a single weekday bit back to its name, grounded on
// utils::day_of_week_str_from_bitmask. Returns "" for anything but a single
// set bit in range.
func WeekdayName(bit uint8) string {
	for i, d := range weekdayNames {
		if bit == 1<<uint(i) {
			return d
		}
	}
	return ""
}

// ParseWeekdayMask parses a comma-separated weekday list into a 7-bit
// bitmask, grounded on types::weekdays_bitmask. An empty string is treated
// as unset (mask 0, nil error) rather than an error; a non-empty string that
// fails to parse any day is BadParameter.
func ParseWeekdayMask(list string) (mask uint8, err error) {
	if list == "" {
		return 0, nil
	}
	for _, part := range strings.Split(list, ",") {
		bit, perr := ParseWeekday(part)
		if perr != nil {
			return 0, dealerrs.New(dealerrs.KindBadParameter, "bad day %q in [%s]", part, list)
		}
		mask |= 1 << bit
	}
	if mask == 0 {
		return 0, dealerrs.New(dealerrs.KindBadParameter, "cannot parse days of week: %q", list)
	}
	return mask, nil
}

// WeekdayMaskName renders a bitmask back to a comma-separated weekday list,
// in Monday-first order.
func WeekdayMaskName(mask uint8) string {
	var names []string
	for i, d := range weekdayNames {
		if mask&(1<<uint(i)) != 0 {
			names = append(names, d)
		}
	}
	return strings.Join(names, ",")
}
