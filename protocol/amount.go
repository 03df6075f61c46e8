package protocol

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const SompiPerKaspa uint64 = 100_000_000

var sompiPerKaspaDec = decimal.NewFromInt(int64(SompiPerKaspa)) // #nosec G115 -- constant fits.

// ParseKaspa converts a decimal KAS amount ("1.5") to sompi. More than eight
// fractional digits, negative values and values above uint64 are rejected.
func ParseKaspa(s string) (uint64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid KAS amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("invalid KAS amount %q: negative", s)
	}
	sompi := d.Mul(sompiPerKaspaDec)
	if !sompi.Equal(sompi.Truncate(0)) {
		return 0, fmt.Errorf("invalid KAS amount %q: more than 8 decimals", s)
	}
	bi := sompi.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("invalid KAS amount %q: out of range", s)
	}
	return bi.Uint64(), nil
}

// FormatSompi renders sompi as a KAS decimal string without trailing zeros.
func FormatSompi(sompi uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(sompi), -8).String()
}
