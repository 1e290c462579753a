package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Amount is a fixed-point quantity of the pool's base asset with six implied
// decimals. It is signed so PnL can be carried in the same type.
type Amount int64

const (
	AmountDecimals = 6
	// One is 1.0 of the base asset.
	One Amount = 1_000_000
)

// Units converts a whole-unit count into an Amount.
func Units(n int64) Amount { return Amount(n) * One }

func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%06d", sign, v/int64(One), v%int64(One))
}

// Abs returns |a|.
func (a Amount) Abs() Amount {
	if a < 0 {
		return -a
	}
	return a
}

// ParseAmount parses a decimal string such as "1250.5" into an Amount.
// Digits beyond six decimals are rejected rather than rounded.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("domain: parse amount: empty string")
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > AmountDecimals {
		return 0, fmt.Errorf("domain: parse amount %q: more than %d decimals", s, AmountDecimals)
	}
	frac += strings.Repeat("0", AmountDecimals-len(frac))

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("domain: parse amount %q: %w", s, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("domain: parse amount %q: %w", s, err)
	}
	if w > (1<<63-1)/int64(One)-1 {
		return 0, fmt.Errorf("domain: parse amount %q: %w", s, ErrOverflow)
	}
	v := Amount(w*int64(One) + f)
	if neg {
		v = -v
	}
	return v, nil
}
