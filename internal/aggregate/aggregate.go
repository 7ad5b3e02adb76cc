// Package aggregate implements spec.md §4.6's three result-grouping
// strategies as tagged Visitor variants, per spec.md §9's redesign note:
// "Polymorphic aggregators via virtual inheritance become a Visitor
// capability with tagged variants" rather than a C++-style class
// hierarchy. Grounded on deals::SimplyCheapest (src/deals_cheapest.cpp),
// deals::CheapestByDay (src/deals_cheapest_by_date.cpp), and
// deals::CheapestByCountry (src/deals_cheapest_by_country.cpp).
package aggregate

import (
	"sort"

	"github.com/flightdeals/dealsindex/internal/dealerrs"
	"github.com/flightdeals/dealsindex/internal/dealtypes"
)

// Kind selects which aggregator New builds.
type Kind string

const (
	// KindPerDestination keeps the single cheapest deal per destination,
	// grounded on SimplyCheapest.
	KindPerDestination Kind = "per_destination"
	// KindPerDate keeps the single cheapest deal per departure date (or,
	// for a single-day search with a return-date range, per return date),
	// grounded on CheapestByDay.
	KindPerDate Kind = "per_date"
	// KindPerCountry keeps the single cheapest deal per destination
	// country, grounded on CheapestByCountry.
	KindPerCountry Kind = "per_country"
)

// Visitor accumulates DealInfo records into a bounded, grouped result set.
// Feed calls occur in arbitrary table-scan order; Result is only valid
// after all Feed calls complete.
type Visitor interface {
	// Feed offers one matching record. The aggregator decides whether it
	// replaces anything already held for its group.
	Feed(d dealtypes.DealInfo)
	// Result returns the final, sorted, limit-truncated result set.
	Result() []dealtypes.DealInfo
}

// DateRange is the departure/return date window a PerDate aggregator needs
// to size itself, grounded on CheapestByDay::pre_search's duration check.
type DateRange struct {
	Active   bool
	From, To dealtypes.DateCode
}

func (r DateRange) duration() int {
	if !r.Active {
		return 0
	}
	d := r.From.DaysBetween(r.To)
	if d < 0 {
		return 0
	}
	return d + 1
}

// New builds the aggregator kind requests, grounded on each aggregator's
// pre_search validation. departureRange/returnRange are the query's
// departure_date/return_date windows (DateRange{} if the query left that
// filter unset).
func New(kind Kind, limit int, departureRange, returnRange DateRange) (Visitor, error) {
	switch kind {
	case KindPerDestination, "":
		return &perDestination{limit: limit, groups: make(map[dealtypes.IATACode]*entry)}, nil
	case KindPerCountry:
		return &perCountry{limit: limit, groups: make(map[dealtypes.CountryCode]*entry)}, nil
	case KindPerDate:
		return newPerDate(limit, departureRange, returnRange)
	default:
		return nil, dealerrs.New(dealerrs.KindBadParameter, "unknown aggregator kind: %q", kind)
	}
}

type entry struct {
	deal dealtypes.DealInfo
}

// perDestination is SimplyCheapest: one surviving deal per destination,
// sorted ascending by price, truncated to limit.
type perDestination struct {
	limit        int
	groups       map[dealtypes.IATACode]*entry
	groupMaxSeen uint32 // group_max_price
}

func (v *perDestination) Feed(d dealtypes.DealInfo) {
	if len(v.groups) >= v.limit && v.groupMaxSeen > 0 && d.Price > v.groupMaxSeen {
		return
	}
	g, ok := v.groups[d.Destination]
	if !ok {
		v.groups[d.Destination] = &entry{deal: d}
		v.bumpMax(d.Price)
		return
	}
	if g.deal.Price == 0 || g.deal.Price >= d.Price {
		g.deal = d
		v.bumpMax(d.Price)
		return
	}
	if sameItinerary(g.deal, d) {
		d.Overridden = true
		g.deal = d
		v.bumpMax(d.Price)
	}
}

func (v *perDestination) bumpMax(price uint32) {
	if price > v.groupMaxSeen {
		v.groupMaxSeen = price
	}
}

func (v *perDestination) Result() []dealtypes.DealInfo {
	out := flatten(v.groups)
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return truncate(out, v.limit)
}

// perCountry is CheapestByCountry: one surviving deal per destination
// country, sorted ascending by price, truncated to limit.
type perCountry struct {
	limit        int
	groups       map[dealtypes.CountryCode]*entry
	groupMaxSeen uint32
}

func (v *perCountry) Feed(d dealtypes.DealInfo) {
	if len(v.groups) >= v.limit && v.groupMaxSeen > 0 && d.Price > v.groupMaxSeen {
		return
	}
	g, ok := v.groups[d.DestinationCountry]
	if !ok {
		v.groups[d.DestinationCountry] = &entry{deal: d}
		v.bumpMax(d.Price)
		return
	}
	if g.deal.Price == 0 || g.deal.Price >= d.Price {
		g.deal = d
		v.bumpMax(d.Price)
		return
	}
	if g.deal.Destination == d.Destination && g.deal.ReturnDate == d.ReturnDate && g.deal.Direct == d.Direct {
		d.Overridden = true
		g.deal = d
		v.bumpMax(d.Price)
	}
}

func (v *perCountry) bumpMax(price uint32) {
	if price > v.groupMaxSeen {
		v.groupMaxSeen = price
	}
}

func (v *perCountry) Result() []dealtypes.DealInfo {
	out := flatten(v.groups)
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return truncate(out, v.limit)
}

// perDate is CheapestByDay: one surviving deal per grouping date (departure
// date by default, or return date for a single-day departure search with a
// return-date range), sorted ascending by the grouping date.
type perDate struct {
	limit         int
	groupByReturn bool
	groups        map[dealtypes.DateCode]*entry
}

func newPerDate(limit int, departureRange, returnRange DateRange) (*perDate, error) {
	depDur := departureRange.duration()
	if !departureRange.Active || depDur < 1 {
		return nil, dealerrs.New(dealerrs.KindBadParameter, "per_date aggregation requires a departure_date range")
	}
	if depDur > 366 {
		return nil, dealerrs.New(dealerrs.KindBadParameter, "departure_date range too wide for per_date aggregation (max 366 days)")
	}

	groupByReturn := false
	effectiveLimit := depDur
	if depDur == 1 && returnRange.Active {
		retDur := returnRange.duration()
		if retDur > 0 {
			groupByReturn = true
			effectiveLimit = retDur
		}
	}
	if limit > 0 && limit < effectiveLimit {
		effectiveLimit = limit
	}

	return &perDate{
		limit:         effectiveLimit,
		groupByReturn: groupByReturn,
		groups:        make(map[dealtypes.DateCode]*entry),
	}, nil
}

func (v *perDate) groupKey(d dealtypes.DealInfo) dealtypes.DateCode {
	if v.groupByReturn {
		return d.ReturnDate
	}
	return d.DepartureDate
}

func (v *perDate) Feed(d dealtypes.DealInfo) {
	key := v.groupKey(d)
	g, ok := v.groups[key]
	if !ok {
		v.groups[key] = &entry{deal: d}
		return
	}
	switch {
	case g.deal.Price == 0:
		g.deal = d
	case d.Price < g.deal.Price:
		g.deal = d
	case d.Price == g.deal.Price && d.Timestamp > g.deal.Timestamp:
		// tie-break: newer timestamp wins on equal price.
		g.deal = d
	case g.deal.Destination == d.Destination && g.deal.ReturnDate == d.ReturnDate &&
		g.deal.Direct == d.Direct && g.deal.Timestamp < d.Timestamp:
		d.Overridden = true
		g.deal = d
	}
}

func (v *perDate) Result() []dealtypes.DealInfo {
	out := flatten(v.groups)
	sort.Slice(out, func(i, j int) bool {
		return v.groupKey(out[i]) < v.groupKey(out[j])
	})
	return truncate(out, v.limit)
}

func sameItinerary(a, b dealtypes.DealInfo) bool {
	return a.DepartureDate == b.DepartureDate && a.ReturnDate == b.ReturnDate && a.Direct == b.Direct
}

func flatten[K comparable](groups map[K]*entry) []dealtypes.DealInfo {
	out := make([]dealtypes.DealInfo, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.deal)
	}
	return out
}

func truncate(deals []dealtypes.DealInfo, limit int) []dealtypes.DealInfo {
	if limit > 0 && len(deals) > limit {
		return deals[:limit]
	}
	return deals
}
