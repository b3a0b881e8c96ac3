package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/alanyoungcy/perpamm/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PriceCache implements domain.PriceCache using Redis hashes.
// Each market's price vector is stored as a hash at key "prices:{marketID}"
// with fields "prices" (JSON array of decimal strings) and "ts" (Unix
// nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func pricesKey(marketID string) string {
	return "prices:" + marketID
}

// SetPrices stores the latest marginal price vector and timestamp for a market.
func (pc *PriceCache) SetPrices(ctx context.Context, marketID string, prices []sdkmath.LegacyDec, ts time.Time) error {
	strs := make([]string, len(prices))
	for i, p := range prices {
		strs[i] = p.String()
	}
	encoded, err := json.Marshal(strs)
	if err != nil {
		return fmt.Errorf("redis: encode prices %s: %w", marketID, err)
	}

	fields := map[string]interface{}{
		"prices": string(encoded),
		"ts":     strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, pricesKey(marketID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set prices %s: %w", marketID, err)
	}
	return nil
}

// GetPrices retrieves the latest marginal price vector and timestamp for a
// market. It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetPrices(ctx context.Context, marketID string) ([]sdkmath.LegacyDec, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, pricesKey(marketID)).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get prices %s: %w", marketID, err)
	}
	if len(vals) == 0 {
		return nil, time.Time{}, domain.ErrNotFound
	}

	encoded, ok := vals["prices"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	var strs []string
	if err := json.Unmarshal([]byte(encoded), &strs); err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: decode prices %s: %w", marketID, err)
	}
	prices := make([]sdkmath.LegacyDec, len(strs))
	for i, s := range strs {
		p, err := sdkmath.LegacyNewDecFromStr(s)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("redis: parse price %s[%d]: %w", marketID, i, err)
		}
		prices[i] = p
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", marketID, err)
	}

	return prices, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
