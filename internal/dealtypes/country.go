package dealtypes

import (
	"strings"

	"github.com/flightdeals/dealsindex/internal/dealerrs"
)

// countries is the fixed 243-entry ISO-3166-1-alpha-2 table the original
// ports as types::COUNTRIES in src/types.hpp; CountryCode is an index into
// it, grounded on types::country_to_code's linear scan and
// types::CountryCode's uint8_t storage. The table is carried verbatim
// (including the legacy "AN"/"CS" entries the original never updated) so
// that indices already baked into existing DealInfo records stay stable.
var countries = [243]string{
	"AD", "AE", "AF", "AG", "AI", "AL", "AM", "AN",
	"AO", "AQ", "AR", "AS", "AT", "AU", "AW", "AX",
	"AZ", "BA", "BB", "BD", "BE", "BF", "BG", "BH",
	"BI", "BJ", "BM", "BN", "BO", "BR", "BS", "BT",
	"BV", "BW", "BY", "BZ", "CA", "CC", "CD", "CF",
	"CG", "CH", "CI", "CK", "CL", "CM", "CN", "CO",
	"CR", "CS", "CU", "CV", "CX", "CY", "CZ", "DE",
	"DJ", "DK", "DM", "DO", "DZ", "EC", "EE", "EG",
	"EH", "ER", "ES", "ET", "FI", "FJ", "FK", "FM",
	"FO", "FR", "GA", "GB", "GD", "GE", "GF", "GG",
	"GH", "GI", "GL", "GM", "GN", "GP", "GQ", "GR",
	"GS", "GT", "GU", "GW", "GY", "HK", "HM", "HN",
	"HR", "HT", "HU", "ID", "IE", "IL", "IM", "IN",
	"IO", "IQ", "IR", "IS", "IT", "JE", "JM", "JO",
	"JP", "KE", "KG", "KH", "KI", "KM", "KN", "KP",
	"KR", "KW", "KY", "KZ", "LA", "LB", "LC", "LI",
	"LK", "LR", "LS", "LT", "LU", "LV", "LY", "MA",
	"MC", "MD", "MG", "MH", "MK", "ML", "MM", "MN",
	"MO", "MP", "MQ", "MR", "MS", "MT", "MU", "MV",
	"MW", "MX", "MY", "MZ", "NA", "NC", "NE", "NF",
	"NG", "NI", "NL", "NO", "NP", "NR", "NU", "NZ",
	"OM", "PA", "PE", "PF", "PG", "PH", "PK", "PL",
	"PM", "PN", "PR", "PS", "PT", "PW", "PY", "QA",
	"RE", "RO", "RU", "RW", "SA", "SB", "SC", "SD",
	"SE", "SG", "SH", "SI", "SJ", "SK", "SL", "SM",
	"SN", "SO", "SR", "ST", "SV", "SY", "SZ", "TC",
	"TD", "TF", "TG", "TH", "TJ", "TK", "TL", "TM",
	"TN", "TO", "TR", "TT", "TV", "TW", "TZ", "UA",
	"UG", "UM", "US", "UY", "UZ", "VA", "VC", "VE",
	"VG", "VI", "VN", "VU", "WF", "WS", "YE", "YT",
	"ZA", "ZM", "ZW",
}

// CountryCode is an 8-bit index into countries, matching spec.md §3's
// "country code < 243" invariant.
type CountryCode uint8

// ParseCountry validates and encodes a 2-letter country code. An empty
// string encodes to the zero value (undefined), matching
// types::CountryCode's paramter_undefined state for an empty input.
func ParseCountry(code string) (CountryCode, error) {
	if code == "" {
		return 0, nil
	}
	if len(code) != 2 {
		return 0, dealerrs.New(dealerrs.KindBadParameter, "bad country code: %q", code)
	}
	up := strings.ToUpper(code)
	for i, c := range countries {
		if c == up {
			return CountryCode(i), nil
		}
	}
	return 0, dealerrs.New(dealerrs.KindBadParameter, "unknown country: %q", code)
}

// MustParseCountry is ParseCountry for call sites that already validated
// the input (test fixtures, internal constants).
func MustParseCountry(code string) CountryCode {
	v, err := ParseCountry(code)
	if err != nil {
		panic(err)
	}
	return v
}

// String decodes the index back to its 2-letter form. Index 0 doubles as
// both "AD" and the zero value; callers that need to distinguish
// "unset" from "Andorra" must track that separately (the original has the
// same ambiguity: CountryCode's own isUndefined() flag, not the code
// value, carries that bit).
func (c CountryCode) String() string {
	if int(c) >= len(countries) {
		return ""
	}
	return countries[c]
}

// CountrySet is a membership set of country codes, grounded on
// types::CountryCodes.
type CountrySet map[CountryCode]struct{}

// ParseCountrySet parses a comma-separated list of 2-letter country codes.
func ParseCountrySet(list string) (CountrySet, error) {
	if list == "" {
		return nil, nil
	}
	parts := strings.Split(list, ",")
	set := make(CountrySet, len(parts))
	for _, p := range parts {
		code, err := ParseCountry(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		set[code] = struct{}{}
	}
	return set, nil
}

// Contains reports membership; a nil/empty set matches nothing by design
// (callers must check len(set) == 0 to treat the filter as unset).
func (s CountrySet) Contains(c CountryCode) bool {
	_, ok := s[c]
	return ok
}
