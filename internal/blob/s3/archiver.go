package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alanyoungcy/perpamm/internal/domain"
)

// EpochTradeLister provides the trade query the archiver needs. The Postgres
// trade store satisfies it implicitly.
type EpochTradeLister interface {
	ListByEpoch(ctx context.Context, marketID string, epoch uint64) ([]domain.Trade, error)
}

// multipartWriter is satisfied by writers that support multipart uploads.
type multipartWriter interface {
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// multipartThreshold is the archive size above which the upload switches to
// multipart.
const multipartThreshold = 8 * 1024 * 1024

// ArchiveImpl implements domain.Archiver by exporting the full trade history
// of a resolved epoch as JSONL and uploading it to blob storage.
//
// Trades are NOT deleted from the primary store here. Pruning is a separate,
// explicit step to be executed after the archive has been verified.
type ArchiveImpl struct {
	writer domain.BlobWriter
	trades EpochTradeLister
	audit  domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, trades EpochTradeLister, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		trades: trades,
		audit:  audit,
	}
}

// ArchiveEpoch queries every trade of the given epoch, serializes them to
// JSONL, and uploads the file at archive/<marketID>/epoch-<N>.jsonl. The
// archival event is recorded in the audit log and the number of archived
// records is returned. An epoch with no trades archives nothing.
func (a *ArchiveImpl) ArchiveEpoch(ctx context.Context, marketID string, epoch uint64) (int, error) {
	trades, err := a.trades.ListByEpoch(ctx, marketID, epoch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive epoch query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(tradeRecords(trades))
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive epoch marshal: %w", err)
	}

	path := archivePath(marketID, epoch)
	if mp, ok := a.writer.(multipartWriter); ok && len(buf) >= multipartThreshold {
		err = mp.PutMultipart(ctx, path, bytes.NewReader(buf), int64(len(buf)/4))
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive epoch upload: %w", err)
	}

	count := len(trades)

	if err := a.audit.Log(ctx, "archive.epoch", map[string]any{
		"path":   path,
		"market": marketID,
		"epoch":  epoch,
		"count":  count,
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive epoch audit log: %w", err)
	}

	return count, nil
}

// tradeRecord is the JSONL row shape. Big integers go out as decimal strings
// so the archive survives tooling that parses JSON numbers as float64.
type tradeRecord struct {
	ID        string    `json:"id"`
	MarketID  string    `json:"market_id"`
	Trader    string    `json:"trader"`
	Epoch     uint64    `json:"epoch"`
	Period    uint64    `json:"period"`
	Deltas    []string  `json:"deltas"`
	NetCost   string    `json:"net_cost"`
	Fee       string    `json:"fee"`
	Rollover  bool      `json:"rollover"`
	CreatedAt time.Time `json:"created_at"`
}

func tradeRecords(trades []domain.Trade) []tradeRecord {
	out := make([]tradeRecord, len(trades))
	for i, t := range trades {
		deltas := make([]string, len(t.Deltas))
		for j, d := range t.Deltas {
			deltas[j] = d.String()
		}
		out[i] = tradeRecord{
			ID:        t.ID,
			MarketID:  t.MarketID,
			Trader:    t.Trader.Hex(),
			Epoch:     t.Epoch,
			Period:    t.Period,
			Deltas:    deltas,
			NetCost:   t.NetCost.String(),
			Fee:       t.Fee.String(),
			Rollover:  t.Rollover,
			CreatedAt: t.CreatedAt,
		}
	}
	return out
}

// archivePath builds the blob key for an epoch archive, partitioned by market.
//
//	archive/btc-daily/epoch-12.jsonl
func archivePath(marketID string, epoch uint64) string {
	return fmt.Sprintf("archive/%s/epoch-%d.jsonl", marketID, epoch)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
