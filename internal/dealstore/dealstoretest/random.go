// Package dealstoretest generates randomized DealInfo/blob fixtures for
// exercising internal/dealstore, grounded on
// deals::getRandomOrigin/getRandomCountry/getRandomPrice/getRandomDate/
// getRandomDateOpt/getRandomBool (src/deals_test.cpp). Callers supply the
// *rand.Rand so test output stays reproducible.
package dealstoretest

import (
	"fmt"
	"math/rand"

	"github.com/flightdeals/dealsindex/internal/dealtypes"
)

// origins is deals_test.cpp's origins[] fixture list.
var origins = []string{"MOW", "MAD", "BER", "LON", "PAR", "LAX", "LED", "FRA", "BAR", "JFK"}

// countries is deals_test.cpp's countries[] fixture list.
var countries = []string{"AD", "AE", "AF", "AG", "AI", "RU", "AL", "AM", "AO", "IT", "GE", "FR"}

// RandomOrigin picks a uniformly random IATA code from the fixture list.
func RandomOrigin(r *rand.Rand) dealtypes.IATACode {
	return dealtypes.MustParseIATA(origins[r.Intn(len(origins))])
}

// RandomCountry picks a uniformly random country code from the fixture
// list.
func RandomCountry(r *rand.Rand) dealtypes.CountryCode {
	return dealtypes.MustParseCountry(countries[r.Intn(len(countries))])
}

// RandomPrice returns a random price at or above minPrice, grounded on
// getRandomPrice's "rand() & 0xFFFF + minPrice" construction.
func RandomPrice(r *rand.Rand, minPrice uint32) uint32 {
	return uint32(r.Intn(0x10000)) + minPrice
}

// RandomDate returns a random date in year, grounded on getRandomDate's
// month/day construction (month in [1,10], day in [1,22] by summing three
// small uniforms — not a uniform distribution, but the original's exact
// shape, kept so scenario tests reproduce the same calendar spread).
func RandomDate(r *rand.Rand, year uint32) dealtypes.DateCode {
	month := uint32(r.Intn(4)) + uint32(r.Intn(4)) + uint32(r.Intn(4)) + 1
	day := uint32(r.Intn(8)) + uint32(r.Intn(8)) + uint32(r.Intn(8)) + 1
	if month > 12 {
		month = 12
	}
	if day > 28 {
		day = 28
	}
	return dealtypes.MustParseDate(fmt.Sprintf("%04d-%02d-%02d", year, month, day))
}

// RandomBool returns true about 50% of the time, grounded on getRandomBool.
func RandomBool(r *rand.Rand) bool {
	return r.Intn(0x10000) > 0x8000
}

// Deal builds a randomized, internally-consistent DealInfo for origin,
// destination and minPrice, grounded on the deals_test.cpp fixture
// generators feeding DealsDatabase::addDeal in sequence.
func Deal(r *rand.Rand, origin, destination dealtypes.IATACode, minPrice uint32) dealtypes.DealInfo {
	departure := RandomDate(r, 2016)
	roundTrip := RandomBool(r)

	d := dealtypes.DealInfo{
		Timestamp:          0,
		Origin:             origin,
		Destination:        destination,
		DestinationCountry: RandomCountry(r),
		DepartureDate:      departure,
		Price:              RandomPrice(r, minPrice),
		StayDays:           dealtypes.StayDaysUndefined,
		DepartureDayOfWeek: departure.WeekdayBit(),
		ReturnDayOfWeek:    0,
		Direct:             RandomBool(r),
	}
	if roundTrip {
		ret := RandomDate(r, 2016)
		if ret < departure {
			ret, departure = departure, ret
			d.DepartureDate = departure
			d.DepartureDayOfWeek = departure.WeekdayBit()
		}
		d.ReturnDate = ret
		d.ReturnDayOfWeek = ret.WeekdayBit()
		d.StayDays = uint8(departure.DaysBetween(ret))
	}
	return d
}

// RandomBlob returns a deterministic payload standing in for the scraped
// HTML/JSON a real crawler would store alongside the index row.
func RandomBlob(r *rand.Rand, n int) []byte {
	b := make([]byte, n)
	r.Read(b)
	return b
}
