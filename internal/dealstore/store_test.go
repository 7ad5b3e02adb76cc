package dealstore_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/flightdeals/dealsindex/internal/aggregate"
	"github.com/flightdeals/dealsindex/internal/dealstore"
	"github.com/flightdeals/dealsindex/internal/dealstore/dealstoretest"
	"github.com/flightdeals/dealsindex/internal/dealtypes"
	"github.com/flightdeals/dealsindex/internal/query"
)

func newStore(t *testing.T, mockClock clock.Clock) *dealstore.Store {
	t.Helper()
	s, err := dealstore.New(dealstore.Config{
		Dir:                 t.TempDir(),
		InfoPages:           8,
		InfoElementsPerPage: 64,
		DataPages:           8,
		DataElementsPerPage: 4096,
		RecordExpireSeconds: 3600,
		Clock:               mockClock,
	})
	require.NoError(t, err)
	return s
}

// S1: a single added deal is retrievable by origin/destination with its
// exact blob.
func TestAddDealThenSearchByOrigin(t *testing.T) {
	mc := clock.NewMock()
	mc.Set(time.Unix(1_700_000_000, 0))
	store := newStore(t, mc)

	origin := dealtypes.MustParseIATA("MOW")
	dest := dealtypes.MustParseIATA("LON")
	deal := dealtypes.DealInfo{
		Origin:             origin,
		Destination:        dest,
		DestinationCountry: dealtypes.MustParseCountry("GB"),
		DepartureDate:      dealtypes.MustParseDate("2016-03-01"),
		Price:              150,
		StayDays:           dealtypes.StayDaysUndefined,
	}
	blob := []byte(`{"source":"test"}`)

	_, err := store.AddDeal(context.Background(), dealstore.AddDealParams{Deal: deal, Blob: blob, Lifetime: time.Hour})
	require.NoError(t, err)

	spec, err := query.Parse(query.Params{Origin: "MOW"}, func() int64 { return mc.Now().Unix() })
	require.NoError(t, err)
	agg, err := aggregate.New(aggregate.KindPerDestination, spec.Limit, spec.DepartureRange(), spec.ReturnRange())
	require.NoError(t, err)

	results, err := store.Search(spec, agg)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, blob, results[0].Blob)
	require.Equal(t, dest, results[0].Info.Destination)
}

// S2: of two deals to the same destination, only the cheaper survives a
// per-destination search.
func TestSearchKeepsCheapestPerDestination(t *testing.T) {
	mc := clock.NewMock()
	mc.Set(time.Unix(1_700_000_000, 0))
	store := newStore(t, mc)

	origin := dealtypes.MustParseIATA("MOW")
	dest := dealtypes.MustParseIATA("LON")
	add := func(price uint32) {
		_, err := store.AddDeal(context.Background(), dealstore.AddDealParams{
			Deal: dealtypes.DealInfo{
				Origin: origin, Destination: dest,
				DepartureDate: dealtypes.MustParseDate("2016-03-01"),
				Price:         price, StayDays: dealtypes.StayDaysUndefined,
			},
			Blob:     []byte{byte(price)},
			Lifetime: time.Hour,
		})
		require.NoError(t, err)
	}
	add(300)
	add(100)

	spec, err := query.Parse(query.Params{Origin: "MOW"}, func() int64 { return mc.Now().Unix() })
	require.NoError(t, err)
	agg, err := aggregate.New(aggregate.KindPerDestination, spec.Limit, spec.DepartureRange(), spec.ReturnRange())
	require.NoError(t, err)

	results, err := store.Search(spec, agg)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.EqualValues(t, 100, results[0].Info.Price)
}

// S3: a destination filter excludes deals to other destinations.
func TestSearchRespectsDestinationFilter(t *testing.T) {
	mc := clock.NewMock()
	mc.Set(time.Unix(1_700_000_000, 0))
	store := newStore(t, mc)

	origin := dealtypes.MustParseIATA("MOW")
	for _, dst := range []string{"LON", "PAR", "BER"} {
		_, err := store.AddDeal(context.Background(), dealstore.AddDealParams{
			Deal: dealtypes.DealInfo{
				Origin: origin, Destination: dealtypes.MustParseIATA(dst),
				DepartureDate: dealtypes.MustParseDate("2016-03-01"),
				Price:         100, StayDays: dealtypes.StayDaysUndefined,
			},
			Blob:     []byte(dst),
			Lifetime: time.Hour,
		})
		require.NoError(t, err)
	}

	spec, err := query.Parse(query.Params{Origin: "MOW", Destinations: "PAR,BER"}, func() int64 { return mc.Now().Unix() })
	require.NoError(t, err)
	agg, err := aggregate.New(aggregate.KindPerDestination, spec.Limit, spec.DepartureRange(), spec.ReturnRange())
	require.NoError(t, err)

	results, err := store.Search(spec, agg)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		require.NotEqual(t, "LON", r.Info.Destination.String())
	}
}

func TestAddDealRejectsInvalidItinerary(t *testing.T) {
	store := newStore(t, clock.NewMock())
	same := dealtypes.MustParseIATA("MOW")
	_, err := store.AddDeal(context.Background(), dealstore.AddDealParams{
		Deal: dealtypes.DealInfo{Origin: same, Destination: same, StayDays: dealtypes.StayDaysUndefined},
		Blob: []byte("x"), Lifetime: time.Hour,
	})
	require.Error(t, err)
}

// Exercises the randomized fixture generator against a real store, standing
// in for deals_test.cpp's bulk-load scenario.
func TestAddManyRandomDealsThenTruncate(t *testing.T) {
	mc := clock.NewMock()
	mc.Set(time.Unix(1_700_000_000, 0))
	store := newStore(t, mc)
	r := rand.New(rand.NewSource(42))

	origin := dealstoretest.RandomOrigin(r)
	for i := 0; i < 20; i++ {
		dest := dealstoretest.RandomOrigin(r)
		if dest == origin {
			continue
		}
		deal := dealstoretest.Deal(r, origin, dest, 50)
		_, err := store.AddDeal(context.Background(), dealstore.AddDealParams{
			Deal: deal, Blob: dealstoretest.RandomBlob(r, 32), Lifetime: time.Hour,
		})
		require.NoError(t, err)
	}

	require.NoError(t, store.Truncate(context.Background()))
	spec, err := query.Parse(query.Params{Origin: origin.String()}, func() int64 { return mc.Now().Unix() })
	require.NoError(t, err)
	agg, err := aggregate.New(aggregate.KindPerDestination, spec.Limit, spec.DepartureRange(), spec.ReturnRange())
	require.NoError(t, err)
	results, err := store.Search(spec, agg)
	require.NoError(t, err)
	require.Empty(t, results)
}
