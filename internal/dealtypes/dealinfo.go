package dealtypes

import "github.com/flightdeals/dealsindex/internal/dealerrs"

// StayDaysUndefined marks a one-way deal's StayDays field, grounded on the
// original's "UINT8_MAX ⇒ undefined" convention (src/deals_database.cpp).
const StayDaysUndefined = 255

// DealInfo is the fixed-size index record the table scan hot-path
// iterates, grounded on deals::i::DealInfo (src/deals_types.hpp). Every
// field is a fixed-width numeric type or byte array so the struct remains
// POD: internal/table maps raw shared-memory bytes onto []DealInfo via
// unsafe.Slice, which is only sound for pointer-free, fixed-layout types.
type DealInfo struct {
	Timestamp          uint32
	Origin             IATACode
	Destination        IATACode
	DestinationCountry CountryCode
	DepartureDate      DateCode
	ReturnDate         DateCode
	Price              uint32
	StayDays           uint8
	DepartureDayOfWeek uint8
	ReturnDayOfWeek    uint8
	Direct             bool
	Overridden         bool
	Blob               Locator
}

// Validate checks the invariants spec.md §3 states for DealInfo:
// origin != destination; return_date == 0 ⇔ stay_days == 255.
// (country code < 243 is enforced structurally by CountryCode's type.)
func (d DealInfo) Validate() error {
	if d.Origin == d.Destination {
		return dealerrs.New(dealerrs.KindBadParameter, "origin and destination must differ: %s", d.Origin)
	}
	oneWay := d.ReturnDate.IsZero()
	undefinedStay := d.StayDays == StayDaysUndefined
	if oneWay != undefinedStay {
		return dealerrs.New(dealerrs.KindBadParameter, "return_date/stay_days mismatch: return=%v stay_days=%d", d.ReturnDate, d.StayDays)
	}
	return nil
}

// IsRoundTrip reports whether the deal carries a return date.
func (d DealInfo) IsRoundTrip() bool {
	return !d.ReturnDate.IsZero()
}
