// Package fixedpoint implements the integer basis-point arithmetic used for
// every fee, share and exposure calculation. Intermediate products are carried
// in 256 bits so only the final result can overflow int64.
package fixedpoint

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/ertledger/internal/domain"
)

const (
	// BPS is the basis-point denominator.
	BPS = 10_000
	// SecondsPerYear is the fixed 365-day year used for APR accrual.
	SecondsPerYear = 365 * 24 * 60 * 60
	// MaxDecimals bounds quote precision so 10^decimals fits in int64.
	MaxDecimals = 18
)

// MulDiv returns floor(x*y/d). Operands must be non-negative and d positive.
func MulDiv[T ~int64](x T, y, d int64) (T, error) {
	if x < 0 || y < 0 {
		return 0, fmt.Errorf("fixedpoint: negative operand: %w", domain.ErrOverflow)
	}
	if d <= 0 {
		return 0, fmt.Errorf("fixedpoint: non-positive divisor %d: %w", d, domain.ErrOverflow)
	}
	var z uint256.Int
	res, overflow := z.MulDivOverflow(
		uint256.NewInt(uint64(x)),
		uint256.NewInt(uint64(y)),
		uint256.NewInt(uint64(d)),
	)
	return narrow[T](res, overflow)
}

// MulMulDiv returns floor(a*b*c/d) with the full product held in 256 bits.
func MulMulDiv[T ~int64](a T, b, c, d int64) (T, error) {
	if a < 0 || b < 0 || c < 0 {
		return 0, fmt.Errorf("fixedpoint: negative operand: %w", domain.ErrOverflow)
	}
	if d <= 0 {
		return 0, fmt.Errorf("fixedpoint: non-positive divisor %d: %w", d, domain.ErrOverflow)
	}
	var ab, z uint256.Int
	ab.Mul(uint256.NewInt(uint64(a)), uint256.NewInt(uint64(b)))
	res, overflow := z.MulDivOverflow(&ab, uint256.NewInt(uint64(c)), uint256.NewInt(uint64(d)))
	return narrow[T](res, overflow)
}

func narrow[T ~int64](v *uint256.Int, overflow bool) (T, error) {
	if overflow || !v.IsUint64() || v.Uint64() > math.MaxInt64 {
		return 0, domain.ErrOverflow
	}
	return T(v.Uint64()), nil
}

// ApplyBps returns floor(x*bps/BPS).
func ApplyBps[T ~int64](x T, bps uint32) (T, error) {
	return MulDiv(x, int64(bps), BPS)
}

// Add returns a+b or ErrOverflow.
func Add[T ~int64](a, b T) (T, error) {
	c := a + b
	if (b > 0 && c < a) || (b < 0 && c > a) {
		return 0, domain.ErrOverflow
	}
	return c, nil
}

// Sub returns a-b or ErrOverflow.
func Sub[T ~int64](a, b T) (T, error) {
	c := a - b
	if (b > 0 && c > a) || (b < 0 && c < a) {
		return 0, domain.ErrOverflow
	}
	return c, nil
}

// Pow10 returns 10^n for n <= MaxDecimals.
func Pow10(n uint8) (int64, error) {
	if n > MaxDecimals {
		return 0, fmt.Errorf("fixedpoint: decimals %d above %d: %w", n, MaxDecimals, domain.ErrOverflow)
	}
	v := int64(1)
	for i := uint8(0); i < n; i++ {
		v *= 10
	}
	return v, nil
}

// MarkValue values size units at price scaled by 10^decimals.
func MarkValue(size, price int64, decimals uint8) (domain.Amount, error) {
	scale, err := Pow10(decimals)
	if err != nil {
		return 0, err
	}
	return MulDiv(domain.Amount(size), price, scale)
}

// BpsOf returns floor(part*BPS/whole), saturating at math.MaxUint32. A zero
// whole yields BPS when part is positive and 0 otherwise.
func BpsOf[T ~int64](part, whole T) uint32 {
	if part <= 0 {
		return 0
	}
	if whole <= 0 {
		return BPS
	}
	v, err := MulDiv(part, BPS, int64(whole))
	if err != nil || v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}
