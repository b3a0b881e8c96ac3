package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market state snapshots.
type MarketStore interface {
	Upsert(ctx context.Context, rec MarketRecord) error
	GetByID(ctx context.Context, id string) (MarketRecord, error)
	List(ctx context.Context) ([]MarketRecord, error)
}

// EpochStore persists epochs, including payout vectors and base prices once
// an epoch is resolved.
type EpochStore interface {
	Upsert(ctx context.Context, marketID string, epoch Epoch) error
	Get(ctx context.Context, marketID string, number uint64) (Epoch, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Epoch, error)
}

// TradeStore persists executed trades.
type TradeStore interface {
	Insert(ctx context.Context, trade Trade) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Trade, error)
	ListByEpoch(ctx context.Context, marketID string, epoch uint64) ([]Trade, error)
	ListByTrader(ctx context.Context, marketID string, trader common.Address, opts ListOpts) ([]Trade, error)
}

// ShareStore persists the share ledger. Snapshots replace the whole ledger of
// a market atomically; the ledger is small (bounded by accounts x share ids
// touched) and the replacement keeps the durable state consistent with the
// in-memory engine after every mutation.
type ShareStore interface {
	SaveSnapshot(ctx context.Context, marketID string, entries []ShareBalance) error
	LoadSnapshot(ctx context.Context, marketID string) ([]ShareBalance, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
