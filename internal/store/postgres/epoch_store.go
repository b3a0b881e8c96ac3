package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/perpamm/internal/domain"
)

// EpochStore implements domain.EpochStore using PostgreSQL.
type EpochStore struct {
	pool *pgxpool.Pool
}

// NewEpochStore creates a new EpochStore backed by the given connection pool.
func NewEpochStore(pool *pgxpool.Pool) *EpochStore {
	return &EpochStore{pool: pool}
}

const epochSelectCols = `number, start_at, funding, funding_for_rollover,
	total_payout, payout_numerators, payout_denominator, base_prices, closed_at`

// Upsert writes an epoch row. Resolved epochs carry their payout vector and
// base prices; active epochs store NULL for both.
func (s *EpochStore) Upsert(ctx context.Context, marketID string, epoch domain.Epoch) error {
	numerators, err := encodeIntVec(epoch.PayoutNumerators)
	if err != nil {
		return fmt.Errorf("postgres: encode payout numerators: %w", err)
	}
	prices, err := encodeDecVec(epoch.BasePrices)
	if err != nil {
		return fmt.Errorf("postgres: encode base prices: %w", err)
	}

	const query = `
		INSERT INTO epochs (
			market_id, number, start_at, funding, funding_for_rollover,
			total_payout, payout_numerators, payout_denominator, base_prices, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (market_id, number) DO UPDATE SET
			funding = EXCLUDED.funding,
			funding_for_rollover = EXCLUDED.funding_for_rollover,
			total_payout = EXCLUDED.total_payout,
			payout_numerators = EXCLUDED.payout_numerators,
			payout_denominator = EXCLUDED.payout_denominator,
			base_prices = EXCLUDED.base_prices,
			closed_at = EXCLUDED.closed_at`

	_, err = s.pool.Exec(ctx, query,
		marketID, epoch.Number, epoch.Start, epoch.Funding.String(),
		epoch.FundingForRollover.String(), epoch.TotalPayout.String(),
		numerators, epoch.PayoutDenominator.String(), prices, epoch.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert epoch %s/%d: %w", marketID, epoch.Number, err)
	}
	return nil
}

func scanEpochRow(row pgx.Row) (domain.Epoch, error) {
	var ep domain.Epoch
	var funding, rollover, payout, denominator string
	var numerators, prices []byte
	if err := row.Scan(
		&ep.Number, &ep.Start, &funding, &rollover,
		&payout, &numerators, &denominator, &prices, &ep.ClosedAt,
	); err != nil {
		return ep, err
	}

	var err error
	if ep.Funding, err = parseInt(funding); err != nil {
		return ep, err
	}
	if ep.FundingForRollover, err = parseInt(rollover); err != nil {
		return ep, err
	}
	if ep.TotalPayout, err = parseInt(payout); err != nil {
		return ep, err
	}
	if ep.PayoutDenominator, err = parseInt(denominator); err != nil {
		return ep, err
	}
	if ep.PayoutNumerators, err = decodeIntVec(numerators); err != nil {
		return ep, err
	}
	if ep.BasePrices, err = decodeDecVec(prices); err != nil {
		return ep, err
	}
	return ep, nil
}

// Get fetches a single epoch of a market.
func (s *EpochStore) Get(ctx context.Context, marketID string, number uint64) (domain.Epoch, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+epochSelectCols+` FROM epochs WHERE market_id = $1 AND number = $2`,
		marketID, number)
	ep, err := scanEpochRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ep, fmt.Errorf("postgres: epoch %s/%d: %w", marketID, number, domain.ErrNotFound)
	}
	if err != nil {
		return ep, fmt.Errorf("postgres: get epoch %s/%d: %w", marketID, number, err)
	}
	return ep, nil
}

// ListByMarket returns a market's epochs in ascending number order.
func (s *EpochStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Epoch, error) {
	query := `SELECT ` + epochSelectCols + ` FROM epochs WHERE market_id = $1 ORDER BY number ASC`
	args := []any{marketID}
	if opts.Limit > 0 {
		query += ` LIMIT $2`
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += ` OFFSET $3`
			args = append(args, opts.Offset)
		}
	} else if opts.Offset > 0 {
		query += ` OFFSET $2`
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list epochs for %s: %w", marketID, err)
	}
	defer rows.Close()

	var out []domain.Epoch
	for rows.Next() {
		ep, err := scanEpochRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan epoch: %w", err)
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}
