package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/perpamm/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketSelectCols = `id, question, outcome_slot_count, fee_bps, expiration_epoch,
	current_epoch, current_period, period_start, fee_accrued,
	collateral_decimals, expired, version, updated_at`

// Upsert writes the market snapshot, replacing any previous row for the same
// market id.
func (s *MarketStore) Upsert(ctx context.Context, rec domain.MarketRecord) error {
	const query = `
		INSERT INTO markets (
			id, question, outcome_slot_count, fee_bps, expiration_epoch,
			current_epoch, current_period, period_start, fee_accrued,
			collateral_decimals, expired, version, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			question = EXCLUDED.question,
			fee_bps = EXCLUDED.fee_bps,
			expiration_epoch = EXCLUDED.expiration_epoch,
			current_epoch = EXCLUDED.current_epoch,
			current_period = EXCLUDED.current_period,
			period_start = EXCLUDED.period_start,
			fee_accrued = EXCLUDED.fee_accrued,
			expired = EXCLUDED.expired,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Question, rec.OutcomeSlotCount, rec.FeeBps, rec.ExpirationEpoch,
		rec.CurrentEpoch, rec.CurrentPeriod, rec.PeriodStart, rec.FeeAccrued.String(),
		rec.CollateralDecimals, rec.Expired, rec.Version, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", rec.ID, err)
	}
	return nil
}

func scanMarketRow(row pgx.Row) (domain.MarketRecord, error) {
	var rec domain.MarketRecord
	var feeAccrued string
	if err := row.Scan(
		&rec.ID, &rec.Question, &rec.OutcomeSlotCount, &rec.FeeBps, &rec.ExpirationEpoch,
		&rec.CurrentEpoch, &rec.CurrentPeriod, &rec.PeriodStart, &feeAccrued,
		&rec.CollateralDecimals, &rec.Expired, &rec.Version, &rec.UpdatedAt,
	); err != nil {
		return rec, err
	}
	var err error
	rec.FeeAccrued, err = parseInt(feeAccrued)
	return rec, err
}

// GetByID fetches a market snapshot by id.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.MarketRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketSelectCols+` FROM markets WHERE id = $1`, id)
	rec, err := scanMarketRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, fmt.Errorf("postgres: market %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return rec, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return rec, nil
}

// List returns all persisted market snapshots.
func (s *MarketStore) List(ctx context.Context) ([]domain.MarketRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+marketSelectCols+` FROM markets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var out []domain.MarketRecord
	for rows.Next() {
		rec, err := scanMarketRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
