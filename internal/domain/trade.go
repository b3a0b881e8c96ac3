package domain

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// TradeRequest is a prediction submitted against the active epoch. Deltas are
// signed outcome-token amounts, one per outcome slot: positive buys, negative
// sells. Rollover trades settle against the trader's blocked balance and
// carry the position into the next epoch instead of cash settlement.
type TradeRequest struct {
	Trader   common.Address
	Deltas   []sdkmath.Int
	Rollover bool
}

// Trade is an executed, settled prediction.
type Trade struct {
	ID        string // UUID, assigned by the service layer
	MarketID  string
	Trader    common.Address
	Epoch     uint64
	Period    uint64
	Deltas    []sdkmath.Int
	NetCost   sdkmath.Int // signed, collateral base units; positive = trader paid
	Fee       sdkmath.Int // collateral base units
	Rollover  bool
	CreatedAt time.Time
}
