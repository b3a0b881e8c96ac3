package domain

import (
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// ShareKey identifies a share class by epoch, period and outcome. Epochs and
// periods are 1-based; outcomes are 0-based.
type ShareKey struct {
	Epoch   uint64
	Period  uint64
	Outcome int
}

// EncodeShareID packs a ShareKey into a single integer id:
//
//	id = (epoch-1)*periodsPerEpoch*outcomeSlots + (period-1)*outcomeSlots + outcome
//
// DecodeShareID inverts it for any key within the declared ranges.
func EncodeShareID(k ShareKey, periodsPerEpoch uint64, outcomeSlots int) uint64 {
	return (k.Epoch-1)*periodsPerEpoch*uint64(outcomeSlots) +
		(k.Period-1)*uint64(outcomeSlots) +
		uint64(k.Outcome)
}

// DecodeShareID unpacks an encoded share id back into its ShareKey.
func DecodeShareID(id uint64, periodsPerEpoch uint64, outcomeSlots int) ShareKey {
	perEpoch := periodsPerEpoch * uint64(outcomeSlots)
	return ShareKey{
		Epoch:   id/perEpoch + 1,
		Period:  (id%perEpoch)/uint64(outcomeSlots) + 1,
		Outcome: int(id % uint64(outcomeSlots)),
	}
}

// ShareBalance is one persisted ledger entry: the free and blocked balance of
// an account for a single share id.
type ShareBalance struct {
	Account common.Address
	ShareID uint64
	Balance sdkmath.Int
	Blocked sdkmath.Int
}

// PositionEntry is a view of one account's holdings for a single share class,
// decoded for API consumers.
type PositionEntry struct {
	Epoch   uint64
	Period  uint64
	Outcome int
	Free    sdkmath.Int
	Blocked sdkmath.Int
}
