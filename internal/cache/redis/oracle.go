package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/ertledger/internal/domain"
)

var (
	_ domain.PriceOracle = (*Oracle)(nil)
	_ domain.PriceFeed   = (*Oracle)(nil)
)

// Oracle serves marks from Redis hashes at "price:{asset}" with the fields
// price (integer, scaled by 10^decimals), decimals and ts (unix nanos). An
// external feed writes them; the ledger only reads.
type Oracle struct {
	c *Client
}

// NewOracle creates an Oracle backed by c.
func NewOracle(c *Client) *Oracle {
	return &Oracle{c: c}
}

func (o *Oracle) priceKey(asset string) string {
	return o.c.Key("price:" + asset)
}

// SetQuote stores q as the latest mark for its asset.
func (o *Oracle) SetQuote(ctx context.Context, q domain.Quote) error {
	if q.Asset == "" || q.Price <= 0 {
		return fmt.Errorf("redis: set quote %q: %w", q.Asset, domain.ErrPriceUnavailable)
	}
	fields := map[string]any{
		"price":    strconv.FormatInt(q.Price, 10),
		"decimals": strconv.FormatUint(uint64(q.Decimals), 10),
		"ts":       strconv.FormatInt(q.Timestamp.UnixNano(), 10),
	}
	if err := o.c.rdb.HSet(ctx, o.priceKey(q.Asset), fields).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.Asset, err)
	}
	return nil
}

// Quote returns the latest mark for asset, or domain.ErrPriceUnavailable when
// none is stored.
func (o *Oracle) Quote(ctx context.Context, asset string) (domain.Quote, error) {
	vals, err := o.c.rdb.HGetAll(ctx, o.priceKey(asset)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", asset, err)
	}
	return parseQuote(asset, vals)
}

func parseQuote(asset string, vals map[string]string) (domain.Quote, error) {
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrPriceUnavailable
	}
	priceStr, ok := vals["price"]
	if !ok {
		return domain.Quote{}, domain.ErrPriceUnavailable
	}
	price, err := strconv.ParseInt(priceStr, 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse price %s: %w", asset, err)
	}
	decimals, err := strconv.ParseUint(vals["decimals"], 10, 8)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse decimals %s: %w", asset, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse ts %s: %w", asset, err)
	}
	return domain.Quote{
		Asset:     asset,
		Price:     price,
		Decimals:  uint8(decimals),
		Timestamp: time.Unix(0, tsNano).UTC(),
	}, nil
}
