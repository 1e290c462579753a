package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ertledger/internal/domain"
)

func TestParseQuote(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	q, err := parseQuote("ETH", map[string]string{
		"price":    "250000000000",
		"decimals": "8",
		"ts":       "1740830400000000000",
	})
	require.NoError(t, err)
	assert.Equal(t, "ETH", q.Asset)
	assert.Equal(t, int64(250_000_000_000), q.Price)
	assert.Equal(t, uint8(8), q.Decimals)
	assert.True(t, ts.Equal(q.Timestamp))
}

func TestParseQuote_Missing(t *testing.T) {
	_, err := parseQuote("ETH", nil)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)

	_, err = parseQuote("ETH", map[string]string{"ts": "1"})
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestParseQuote_Malformed(t *testing.T) {
	_, err := parseQuote("ETH", map[string]string{"price": "2500.5", "decimals": "8", "ts": "1"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrPriceUnavailable)

	_, err = parseQuote("ETH", map[string]string{"price": "1", "decimals": "300", "ts": "1"})
	require.Error(t, err)
}

func TestStreamPayload(t *testing.T) {
	b, ok := streamPayload(map[string]any{"payload": "x"})
	assert.True(t, ok)
	assert.Equal(t, []byte("x"), b)
	_, ok = streamPayload(map[string]any{"other": "x"})
	assert.False(t, ok)
}

func TestClientKey(t *testing.T) {
	c := NewFromRedis(nil, "ertledger:")
	assert.Equal(t, "ertledger:price:ETH", c.Key("price:ETH"))
}
