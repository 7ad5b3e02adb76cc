package dealtypes

import (
	"strings"

	"github.com/flightdeals/dealsindex/internal/dealerrs"
)

// IATACode is a 3-letter airport/city code packed into a uint32, grounded on
// the original's PlaceCodec union (origin_to_code/code_to_origin in
// src/types.cpp): iata_code[0] is left zero, iata_code[1..3] hold the
// letters, and the union's int_code reads those bytes back on a
// little-endian host. Go has no portable union-over-char-array idiom, so we
// reproduce the same byte placement with explicit shifts instead.
type IATACode uint32

// ParseIATA validates and encodes a 3-letter code. An empty string encodes
// to 0 ("undefined"), matching types::IATACode's paramter_undefined state.
func ParseIATA(code string) (IATACode, error) {
	if code == "" {
		return 0, nil
	}
	if len(code) != 3 {
		return 0, dealerrs.New(dealerrs.KindBadParameter, "bad IATA code: %q", code)
	}
	up := strings.ToUpper(code)
	for i := 0; i < 3; i++ {
		if up[i] < 'A' || up[i] > 'Z' {
			return 0, dealerrs.New(dealerrs.KindBadParameter, "bad IATA code: %q", code)
		}
	}
	return IATACode(uint32(up[0])<<8 | uint32(up[1])<<16 | uint32(up[2])<<24), nil
}

// MustParseIATA is ParseIATA for call sites that already validated the
// input (test fixtures, internal constants).
func MustParseIATA(code string) IATACode {
	v, err := ParseIATA(code)
	if err != nil {
		panic(err)
	}
	return v
}

// String decodes the 24-bit code back to its 3-letter form.
func (c IATACode) String() string {
	if c == 0 {
		return ""
	}
	b := [3]byte{
		byte(c >> 8),
		byte(c >> 16),
		byte(c >> 24),
	}
	return string(b[:])
}

// IsZero reports whether the code is the "undefined" sentinel.
func (c IATACode) IsZero() bool { return c == 0 }

// IATASet is a membership set of IATA codes, grounded on types::IATACodes.
type IATASet map[IATACode]struct{}

// ParseIATASet parses a comma-separated list of 3-letter codes.
func ParseIATASet(list string) (IATASet, error) {
	if list == "" {
		return nil, nil
	}
	parts := strings.Split(list, ",")
	set := make(IATASet, len(parts))
	for _, p := range parts {
		code, err := ParseIATA(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		if code.IsZero() {
			continue
		}
		set[code] = struct{}{}
	}
	return set, nil
}

// Contains reports membership; a nil/empty set matches nothing by design
// (callers must check len(set) == 0 to treat the filter as unset).
func (s IATASet) Contains(c IATACode) bool {
	_, ok := s[c]
	return ok
}
