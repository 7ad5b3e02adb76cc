package dealtypes_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightdeals/dealsindex/internal/dealtypes"
)

func TestDateCodeRoundTrip(t *testing.T) {
	cases := []string{"2016-01-01", "2016-02-29", "1999-12-31", "2024-07-04"}
	for _, s := range cases {
		t.Run(s, func(t *testing.T) {
			code, err := dealtypes.ParseDate(s)
			require.NoError(t, err)
			assert.Equal(t, s, code.String())
		})
	}
}

func TestDateCodeEmptyIsUndefined(t *testing.T) {
	code, err := dealtypes.ParseDate("")
	require.NoError(t, err)
	assert.True(t, code.IsZero())
	assert.Equal(t, "", code.String())
}

func TestDateCodeRejectsGarbage(t *testing.T) {
	for _, bad := range []string{"not-a-date", "2016-13-01", "2016-01-40", "20160101"} {
		_, err := dealtypes.ParseDate(bad)
		assert.Error(t, err, bad)
	}
}

// property 5: exactly one bit set in a single date's weekday.
func TestWeekdayBitIsSingleBit(t *testing.T) {
	for day := 1; day <= 28; day++ {
		code := dealtypes.MustParseDate(dateOf(2016, 2, day))
		bit := code.WeekdayBit()
		assert.Equal(t, uint8(1), popcount(bit), "date %s produced bitmask %08b", code, bit)
	}
}

func TestWeekdayMaskRoundTrip(t *testing.T) {
	mask, err := dealtypes.ParseWeekdayMask("mon,wed,fri")
	require.NoError(t, err)
	assert.Equal(t, "mon,wed,fri", dealtypes.WeekdayMaskName(mask))
}

func TestWeekdayMaskRejectsBadDay(t *testing.T) {
	_, err := dealtypes.ParseWeekdayMask("mon,funday")
	assert.Error(t, err)
}

func TestDaysBetweenIsSymmetric(t *testing.T) {
	a := dealtypes.MustParseDate("2016-01-01")
	b := dealtypes.MustParseDate("2016-03-01")
	assert.Equal(t, 60, a.DaysBetween(b))
	assert.Equal(t, -60, b.DaysBetween(a))
}

func TestIATARoundTrip(t *testing.T) {
	for _, code := range []string{"MOW", "JFK", "LON"} {
		parsed, err := dealtypes.ParseIATA(code)
		require.NoError(t, err)
		assert.Equal(t, code, parsed.String())
	}
}

func TestIATARejectsBadInput(t *testing.T) {
	for _, bad := range []string{"MO", "MOWW", "12A", "mo1"} {
		_, err := dealtypes.ParseIATA(bad)
		assert.Error(t, err, bad)
	}
}

func TestIATAEmptyIsUndefined(t *testing.T) {
	code, err := dealtypes.ParseIATA("")
	require.NoError(t, err)
	assert.True(t, code.IsZero())
}

func TestCountryRoundTrip(t *testing.T) {
	for _, code := range []string{"RU", "US", "FR", "AD", "ZW"} {
		parsed, err := dealtypes.ParseCountry(code)
		require.NoError(t, err)
		assert.Equal(t, code, parsed.String())
	}
}

func TestCountryRejectsUnknown(t *testing.T) {
	_, err := dealtypes.ParseCountry("ZZ")
	assert.Error(t, err)
}

func TestDealInfoValidate(t *testing.T) {
	base := dealtypes.DealInfo{
		Origin:      dealtypes.MustParseIATA("MOW"),
		Destination: dealtypes.MustParseIATA("LON"),
	}

	t.Run("one way requires undefined stay", func(t *testing.T) {
		d := base
		d.StayDays = dealtypes.StayDaysUndefined
		assert.NoError(t, d.Validate())
	})

	t.Run("round trip requires stay days", func(t *testing.T) {
		d := base
		d.ReturnDate = dealtypes.MustParseDate("2016-02-01")
		d.StayDays = dealtypes.StayDaysUndefined
		assert.Error(t, d.Validate(), "return date set but stay_days still undefined")
	})

	t.Run("origin cannot equal destination", func(t *testing.T) {
		d := base
		d.Destination = d.Origin
		d.StayDays = dealtypes.StayDaysUndefined
		assert.Error(t, d.Validate())
	})
}

func dateOf(y, m, d int) string {
	return dealtypes.DateCode(uint32(y)*10000 + uint32(m)*100 + uint32(d)).String()
}

func popcount(b uint8) uint8 {
	var n uint8
	for b != 0 {
		n += b & 1
		b >>= 1
	}
	return n
}
