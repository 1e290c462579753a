package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ertledger/internal/domain"
)

func TestAmount_String(t *testing.T) {
	tests := []struct {
		in   domain.Amount
		want string
	}{
		{domain.Units(10_000), "10000.000000"},
		{domain.Amount(3_835_616), "3.835616"},
		{-domain.Units(2_000), "-2000.000000"},
		{domain.Amount(-1), "-0.000001"},
		{0, "0.000000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.in.String())
	}
}

func TestParseAmount(t *testing.T) {
	a, err := domain.ParseAmount("1250.5")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(1_250_500_000), a)

	a, err = domain.ParseAmount("-0.25")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(-250_000), a)

	_, err = domain.ParseAmount("1.0000001")
	assert.Error(t, err)

	_, err = domain.ParseAmount("abc")
	assert.Error(t, err)
}

func TestTier_TextRoundTrip(t *testing.T) {
	var tier domain.ExecutorTier
	require.NoError(t, tier.UnmarshalText([]byte("Established")))
	assert.Equal(t, domain.TierEstablished, tier)

	b, err := domain.TierElite.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "elite", string(b))

	assert.Error(t, tier.UnmarshalText([]byte("legendary")))
}
