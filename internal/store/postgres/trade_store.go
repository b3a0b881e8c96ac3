package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/perpamm/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, market_id, trader, epoch, period, deltas,
	net_cost, fee, rollover, created_at`

// Insert appends one executed trade.
func (s *TradeStore) Insert(ctx context.Context, trade domain.Trade) error {
	deltas, err := encodeIntVec(trade.Deltas)
	if err != nil {
		return fmt.Errorf("postgres: encode trade deltas: %w", err)
	}

	const query = `
		INSERT INTO trades (
			id, market_id, trader, epoch, period, deltas,
			net_cost, fee, rollover, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = s.pool.Exec(ctx, query,
		trade.ID, trade.MarketID, trade.Trader.Hex(), trade.Epoch, trade.Period,
		deltas, trade.NetCost.String(), trade.Fee.String(), trade.Rollover, trade.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", trade.ID, err)
	}
	return nil
}

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var trader string
		var deltas []byte
		var netCost, fee string
		if err := rows.Scan(
			&t.ID, &t.MarketID, &trader, &t.Epoch, &t.Period, &deltas,
			&netCost, &fee, &t.Rollover, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		t.Trader = common.HexToAddress(trader)

		var err error
		if t.Deltas, err = decodeIntVec(deltas); err != nil {
			return nil, err
		}
		if t.NetCost, err = parseInt(netCost); err != nil {
			return nil, err
		}
		if t.Fee, err = parseInt(fee); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func appendListOpts(query string, args []any, opts domain.ListOpts) (string, []any) {
	argIdx := len(args) + 1
	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}

// ListByMarket returns trades for a market with pagination and optional time
// filtering.
func (s *TradeStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	query, args := appendListOpts(
		`SELECT `+tradeSelectCols+` FROM trades WHERE market_id = $1`,
		[]any{marketID}, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by market: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by market: %w", err)
	}
	return trades, nil
}

// ListByEpoch returns every trade of one epoch in submission order, used by
// the epoch archiver.
func (s *TradeStore) ListByEpoch(ctx context.Context, marketID string, epoch uint64) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades
		 WHERE market_id = $1 AND epoch = $2 ORDER BY created_at ASC`,
		marketID, epoch)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by epoch: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by epoch: %w", err)
	}
	return trades, nil
}

// ListByTrader returns a trader's trades in one market with pagination and
// optional time filtering.
func (s *TradeStore) ListByTrader(ctx context.Context, marketID string, trader common.Address, opts domain.ListOpts) ([]domain.Trade, error) {
	query, args := appendListOpts(
		`SELECT `+tradeSelectCols+` FROM trades WHERE market_id = $1 AND trader = $2`,
		[]any{marketID, trader.Hex()}, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by trader: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by trader: %w", err)
	}
	return trades, nil
}
