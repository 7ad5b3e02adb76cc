// Package query implements spec.md §4.5's query specification and filter:
// a typed parameter bundle validated at construction, evaluated as a
// conjunction of predicates per record during the table scan. Grounded on
// query::SearchQuery (src/search_query.hpp/.cpp) and
// deals::DealsSearchQuery::process_element (src/deals_query.cpp), which
// fixes both the filter set and its evaluation order.
package query

import (
	"net/url"

	"github.com/flightdeals/dealsindex/internal/aggregate"
	"github.com/flightdeals/dealsindex/internal/dealerrs"
	"github.com/flightdeals/dealsindex/internal/dealtypes"
)

// DefaultLimit is query::SearchQuery's filter_result_limit default (20).
const DefaultLimit = 20

// dateRange is query::DateInterval; From/To are inclusive, zero-valued
// fields mean "unbounded in that direction" once the filter itself is
// active (see parseDateRange).
type dateRange struct {
	active   bool
	from, to dealtypes.DateCode
}

func (r dateRange) matches(d dealtypes.DateCode) bool {
	if !r.active {
		return true
	}
	return d >= r.from && d <= r.to
}

type stayRange struct {
	active   bool
	from, to uint8
}

func (r stayRange) matches(stay uint8) bool {
	if !r.active {
		return true
	}
	return stay >= r.from && stay <= r.to
}

type priceRange struct {
	active   bool
	from, to uint32
}

func (r priceRange) matches(price uint32) bool {
	if !r.active {
		return true
	}
	return price >= r.from && price <= r.to
}

// Spec is the validated, precomputed query bundle spec.md §4.5 describes.
// Filters absent from the request are inert (an unset filter passes every
// record); Spec's zero value (aside from Origin) matches everything.
type Spec struct {
	Origin dealtypes.IATACode

	Destinations         dealtypes.IATASet
	DestinationCountries dealtypes.CountrySet

	DepartureDates dateRange
	ReturnDates    dateRange

	DepartureWeekdayMask uint8
	ReturnWeekdayMask    uint8

	StayDays stayRange
	Price    priceRange

	FilterDirect bool
	Direct       bool

	FilterRoundtrip bool
	Roundtrip       bool

	MinTimestamp int64 // max_lifetime_sec, precomputed against "now" at parse time

	Limit int

	nowFn func() int64
}

// Params is the raw, string-typed request bundle as it arrives over HTTP
// (spec.md §6.1's /deals/top query parameters). Parse validates and
// converts it to a Spec.
type Params struct {
	Origin               string
	Destinations         string
	DestinationCountries string
	DepartureDateFrom    string
	DepartureDateTo      string
	DepartureWeekdays    string
	ReturnDateFrom       string
	ReturnDateTo         string
	ReturnWeekdays       string
	StayFrom             string
	StayTo               string
	PriceFrom            string
	PriceTo              string
	DirectFlights        string
	RoundtripFlights     string
	MaxLifetimeSec       string
	Limit                string

	// DayByDay, AddLocaleTop and Locale drive httpapi's aggregator
	// selection and top-destinations side effect, not a DealInfo filter,
	// so they are carried on Params but not copied into Spec.
	DayByDay     string
	AddLocaleTop string
	Locale       string
}

// ParamsFromValues reads Params out of an http.Request's query string,
// matching spec.md §6.1's parameter names verbatim.
func ParamsFromValues(v url.Values) Params {
	return Params{
		Origin:               v.Get("origin"),
		Destinations:         v.Get("destinations"),
		DestinationCountries: v.Get("destination_countries"),
		DepartureDateFrom:    v.Get("departure_date_from"),
		DepartureDateTo:      v.Get("departure_date_to"),
		DepartureWeekdays:    v.Get("departure_days_of_week"),
		ReturnDateFrom:       v.Get("return_date_from"),
		ReturnDateTo:         v.Get("return_date_to"),
		ReturnWeekdays:       v.Get("return_days_of_week"),
		StayFrom:             v.Get("stay_from"),
		StayTo:               v.Get("stay_to"),
		PriceFrom:            v.Get("price_from"),
		PriceTo:              v.Get("price_to"),
		DirectFlights:        v.Get("direct_flights"),
		RoundtripFlights:     v.Get("roundtrip_flights"),
		MaxLifetimeSec:       v.Get("timelimit"),
		Limit:                v.Get("deals_limit"),
		DayByDay:             v.Get("day_by_day"),
		AddLocaleTop:         v.Get("add_locale_top"),
		Locale:               v.Get("locale"),
	}
}

// Parse validates p and builds a Spec, grounded on the sequence of
// SearchQuery setters DealsDatabase::searchFor calls. now is injected so
// callers can use a mockable clock (spec.md §9's Design Notes).
func Parse(p Params, now func() int64) (Spec, error) {
	var s Spec
	s.nowFn = now

	origin, err := dealtypes.ParseIATA(p.Origin)
	if err != nil {
		return Spec{}, err
	}
	if origin.IsZero() {
		return Spec{}, dealerrs.New(dealerrs.KindBadParameter, "origin is required")
	}
	s.Origin = origin

	if s.Destinations, err = dealtypes.ParseIATASet(p.Destinations); err != nil {
		return Spec{}, err
	}
	if s.DestinationCountries, err = dealtypes.ParseCountrySet(p.DestinationCountries); err != nil {
		return Spec{}, err
	}

	if s.DepartureDates, err = parseDateRange(p.DepartureDateFrom, p.DepartureDateTo); err != nil {
		return Spec{}, err
	}
	if s.ReturnDates, err = parseDateRange(p.ReturnDateFrom, p.ReturnDateTo); err != nil {
		return Spec{}, err
	}

	if p.DepartureWeekdays != "" {
		if s.DepartureWeekdayMask, err = dealtypes.ParseWeekdayMask(p.DepartureWeekdays); err != nil {
			return Spec{}, err
		}
	}
	if p.ReturnWeekdays != "" {
		if s.ReturnWeekdayMask, err = dealtypes.ParseWeekdayMask(p.ReturnWeekdays); err != nil {
			return Spec{}, err
		}
	}

	if s.StayDays, err = parseStayRange(p.StayFrom, p.StayTo); err != nil {
		return Spec{}, err
	}
	if s.Price, err = parsePriceRange(p.PriceFrom, p.PriceTo); err != nil {
		return Spec{}, err
	}

	if p.DirectFlights != "" {
		b, err := parseBool(p.DirectFlights)
		if err != nil {
			return Spec{}, err
		}
		s.FilterDirect = true
		s.Direct = b
	}

	if p.RoundtripFlights != "" {
		b, err := parseBool(p.RoundtripFlights)
		if err != nil {
			return Spec{}, err
		}
		s.FilterRoundtrip = true
		s.Roundtrip = b
	}

	if p.MaxLifetimeSec != "" {
		n, err := parseUint(p.MaxLifetimeSec)
		if err != nil {
			return Spec{}, err
		}
		if n > 0 {
			s.MinTimestamp = now() - int64(n)
		}
	}

	s.Limit = DefaultLimit
	if p.Limit != "" {
		n, err := parseUint(p.Limit)
		if err != nil {
			return Spec{}, err
		}
		if n > 0 {
			s.Limit = int(n)
		}
	}

	return s, nil
}

func parseDateRange(from, to string) (dateRange, error) {
	if from == "" && to == "" {
		return dateRange{}, nil
	}
	r := dateRange{active: true}
	if from != "" {
		d, err := dealtypes.ParseDate(from)
		if err != nil {
			return dateRange{}, err
		}
		r.from = d
	}
	if to != "" {
		d, err := dealtypes.ParseDate(to)
		if err != nil {
			return dateRange{}, err
		}
		r.to = d
	} else {
		r.to = dealtypes.DateCode(^uint32(0))
	}
	if r.from > r.to {
		return dateRange{}, dealerrs.New(dealerrs.KindBadParameter, "date range from > to")
	}
	return r, nil
}

func parseStayRange(from, to string) (stayRange, error) {
	if from == "" && to == "" {
		return stayRange{}, nil
	}
	r := stayRange{active: true, to: 254}
	if from != "" {
		n, err := parseUint(from)
		if err != nil {
			return stayRange{}, err
		}
		r.from = uint8(n)
	}
	if to != "" {
		n, err := parseUint(to)
		if err != nil {
			return stayRange{}, err
		}
		r.to = uint8(n)
	}
	if r.from > r.to {
		return stayRange{}, dealerrs.New(dealerrs.KindBadParameter, "stay_days range from > to")
	}
	return r, nil
}

func parsePriceRange(from, to string) (priceRange, error) {
	if from == "" && to == "" {
		return priceRange{}, nil
	}
	r := priceRange{active: true, to: ^uint32(0)}
	if from != "" {
		n, err := parseUint(from)
		if err != nil {
			return priceRange{}, err
		}
		r.from = uint32(n)
	}
	if to != "" {
		n, err := parseUint(to)
		if err != nil {
			return priceRange{}, err
		}
		r.to = uint32(n)
	}
	if r.from > r.to {
		return priceRange{}, dealerrs.New(dealerrs.KindBadParameter, "price range from > to")
	}
	return r, nil
}

func parseBool(v string) (bool, error) {
	switch v {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, dealerrs.New(dealerrs.KindBadParameter, "not a boolean: %q", v)
	}
}

func parseUint(v string) (uint64, error) {
	var n uint64
	for _, c := range v {
		if c < '0' || c > '9' {
			return 0, dealerrs.New(dealerrs.KindBadParameter, "not a number: %q", v)
		}
		n = n*10 + uint64(c-'0')
	}
	return n, nil
}

// Matches evaluates the conjunction of filters against d, short-circuiting
// on first failure in the same order as
// DealsSearchQuery::process_element.
func (s Spec) Matches(d dealtypes.DealInfo) bool {
	if s.Origin != d.Origin {
		return false
	}
	if s.MinTimestamp > 0 && int64(d.Timestamp) < s.MinTimestamp {
		return false
	}
	if s.FilterRoundtrip {
		if s.Roundtrip && d.ReturnDate.IsZero() {
			return false
		}
		if !s.Roundtrip && !d.ReturnDate.IsZero() {
			return false
		}
	}
	if len(s.Destinations) > 0 && !s.Destinations.Contains(d.Destination) {
		return false
	}
	if len(s.DestinationCountries) > 0 && !s.DestinationCountries.Contains(d.DestinationCountry) {
		return false
	}
	if !s.DepartureDates.matches(d.DepartureDate) {
		return false
	}
	if !s.ReturnDates.matches(d.ReturnDate) {
		return false
	}
	if !s.StayDays.matches(d.StayDays) {
		return false
	}
	if !s.Price.matches(d.Price) {
		return false
	}
	if s.FilterDirect && s.Direct != d.Direct {
		return false
	}
	if s.DepartureWeekdayMask != 0 && d.DepartureDayOfWeek&s.DepartureWeekdayMask == 0 {
		return false
	}
	if s.ReturnWeekdayMask != 0 && d.ReturnDayOfWeek&s.ReturnWeekdayMask == 0 {
		return false
	}
	return true
}

// DepartureRange exposes s.DepartureDates as an aggregate.DateRange, for
// constructing a per_date aggregator (which needs the window's duration).
func (s Spec) DepartureRange() aggregate.DateRange {
	return aggregate.DateRange{Active: s.DepartureDates.active, From: s.DepartureDates.from, To: s.DepartureDates.to}
}

// ReturnRange exposes s.ReturnDates as an aggregate.DateRange, same purpose
// as DepartureRange.
func (s Spec) ReturnRange() aggregate.DateRange {
	return aggregate.DateRange{Active: s.ReturnDates.active, From: s.ReturnDates.from, To: s.ReturnDates.to}
}

// ExpireCutoff mirrors DealsSearchQuery::execute's min_timestamp: the
// per-page global_expire_cutoff the table scan uses to drop stale
// records, so pages repurposed under low-memory pressure cannot leak
// expired data. recordExpireSeconds is the owning table's configured
// expiry.
func ExpireCutoff(now, pageExpirationCheck, recordExpireSeconds int64) int64 {
	cutoff := now
	if pageExpirationCheck > cutoff {
		cutoff = pageExpirationCheck
	}
	return cutoff - recordExpireSeconds
}
