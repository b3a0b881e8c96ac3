package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/perpamm/internal/domain"
)

// ShareStore implements domain.ShareStore using PostgreSQL.
type ShareStore struct {
	pool *pgxpool.Pool
}

// NewShareStore creates a new ShareStore backed by the given connection pool.
func NewShareStore(pool *pgxpool.Pool) *ShareStore {
	return &ShareStore{pool: pool}
}

// SaveSnapshot replaces the persisted ledger of one market with the given
// entries in a single transaction.
func (s *ShareStore) SaveSnapshot(ctx context.Context, marketID string, entries []domain.ShareBalance) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin share snapshot: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM share_balances WHERE market_id = $1`, marketID); err != nil {
		return fmt.Errorf("postgres: clear share snapshot: %w", err)
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(
			`INSERT INTO share_balances (market_id, account, share_id, balance, blocked)
			 VALUES ($1, $2, $3, $4, $5)`,
			marketID, e.Account.Hex(), e.ShareID, e.Balance.String(), e.Blocked.String())
	}
	if batch.Len() > 0 {
		results := tx.SendBatch(ctx, batch)
		for range entries {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("postgres: write share snapshot: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("postgres: close share snapshot batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit share snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the persisted ledger entries of one market.
func (s *ShareStore) LoadSnapshot(ctx context.Context, marketID string) ([]domain.ShareBalance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT account, share_id, balance, blocked
		 FROM share_balances WHERE market_id = $1
		 ORDER BY account, share_id`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: load share snapshot: %w", err)
	}
	defer rows.Close()

	var entries []domain.ShareBalance
	for rows.Next() {
		var e domain.ShareBalance
		var account, balance, blocked string
		if err := rows.Scan(&account, &e.ShareID, &balance, &blocked); err != nil {
			return nil, fmt.Errorf("postgres: scan share snapshot: %w", err)
		}
		e.Account = common.HexToAddress(account)
		if e.Balance, err = parseInt(balance); err != nil {
			return nil, fmt.Errorf("postgres: parse share balance: %w", err)
		}
		if e.Blocked, err = parseInt(blocked); err != nil {
			return nil, fmt.Errorf("postgres: parse blocked balance: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate share snapshot: %w", err)
	}
	return entries, nil
}
