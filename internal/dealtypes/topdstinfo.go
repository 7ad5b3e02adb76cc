package dealtypes

// TopDstInfo is the fixed-size row stored in the top-destinations table,
// grounded on top::i::DstInfo (src/top_destinations.hpp): a tuple of
// (locale, destination, departure_date). Unlike DealInfo it carries no
// insertion timestamp, matching the original — per-page expiry governs
// its lifetime instead of a per-row cutoff.
type TopDstInfo struct {
	Locale        CountryCode
	Destination   IATACode
	DepartureDate DateCode
}
