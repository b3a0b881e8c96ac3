package domain

import (
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// Collateral is the fungible-token boundary the market settles against. The
// engine assumes Decimals() <= 18 and fails closed at initialization if not.
// Calls are synchronous and atomic with respect to the calling operation.
type Collateral interface {
	Transfer(from, to common.Address, amount sdkmath.Int) error
	TransferFrom(spender, from, to common.Address, amount sdkmath.Int) error
	Approve(owner, spender common.Address, amount sdkmath.Int) error
	BalanceOf(account common.Address) sdkmath.Int
	Decimals() uint32
}
