package fixedpoint_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/fixedpoint"
)

func TestApplyBps_Floors(t *testing.T) {
	v, err := fixedpoint.ApplyBps(domain.Units(1_000), 200)
	require.NoError(t, err)
	assert.Equal(t, domain.Units(20), v)

	v, err = fixedpoint.ApplyBps(domain.Amount(9_999), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(0), v)
}

func TestMulDiv_LargeIntermediate(t *testing.T) {
	// x*y overflows int64 but the quotient fits.
	v, err := fixedpoint.MulDiv(domain.Amount(math.MaxInt64), math.MaxInt64, math.MaxInt64)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(math.MaxInt64), v)
}

func TestMulDiv_Overflow(t *testing.T) {
	_, err := fixedpoint.MulDiv(domain.Amount(math.MaxInt64), 2, 1)
	assert.ErrorIs(t, err, domain.ErrOverflow)

	_, err = fixedpoint.MulDiv(domain.Amount(-1), 2, 1)
	assert.ErrorIs(t, err, domain.ErrOverflow)

	_, err = fixedpoint.MulDiv(domain.Amount(1), 2, 0)
	assert.ErrorIs(t, err, domain.ErrOverflow)
}

func TestMulMulDiv_BaseFee(t *testing.T) {
	// 10,000 at 200 bps APR for seven days.
	fee, err := fixedpoint.MulMulDiv(domain.Units(10_000), 200, 7*24*3600, fixedpoint.BPS*fixedpoint.SecondsPerYear)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(3_835_616), fee)
}

func TestAddSub_Overflow(t *testing.T) {
	_, err := fixedpoint.Add(domain.Amount(math.MaxInt64), 1)
	assert.ErrorIs(t, err, domain.ErrOverflow)
	_, err = fixedpoint.Sub(domain.Amount(math.MinInt64), 1)
	assert.ErrorIs(t, err, domain.ErrOverflow)

	v, err := fixedpoint.Sub(domain.Amount(5), 7)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(-2), v)
}

func TestMarkValue(t *testing.T) {
	// 2.5 units at 3,000.00 with 8 price decimals.
	v, err := fixedpoint.MarkValue(2_500_000, 300_000_000_000, 8)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(7_500_000_000), v)

	_, err = fixedpoint.MarkValue(1, 1, 19)
	assert.ErrorIs(t, err, domain.ErrOverflow)
}

func TestBpsOf(t *testing.T) {
	assert.Equal(t, uint32(8000), fixedpoint.BpsOf(domain.Units(80), domain.Units(100)))
	assert.Equal(t, uint32(0), fixedpoint.BpsOf(domain.Amount(0), domain.Units(100)))
	assert.Equal(t, uint32(fixedpoint.BPS), fixedpoint.BpsOf(domain.Units(1), domain.Amount(0)))
}
