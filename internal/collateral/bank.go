// Package collateral provides an in-process implementation of the fungible
// collateral token the market settles against. It follows ERC20-style
// transfer/approve semantics so the engine's settlement path matches the
// boundary it would have against an external token.
package collateral

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/perpamm/internal/domain"
)

// Bank is an in-memory fungible token. It is not safe for concurrent use;
// callers serialize access the same way they serialize market calls.
type Bank struct {
	symbol     string
	decimals   uint32
	balances   map[common.Address]sdkmath.Int
	allowances map[common.Address]map[common.Address]sdkmath.Int
}

// NewBank creates an empty bank with the given token symbol and precision.
func NewBank(symbol string, decimals uint32) *Bank {
	return &Bank{
		symbol:     symbol,
		decimals:   decimals,
		balances:   make(map[common.Address]sdkmath.Int),
		allowances: make(map[common.Address]map[common.Address]sdkmath.Int),
	}
}

// Symbol returns the token symbol.
func (b *Bank) Symbol() string { return b.symbol }

// Decimals returns the token precision.
func (b *Bank) Decimals() uint32 { return b.decimals }

// Mint credits freshly issued tokens to an account. Used for seeding test
// and development environments; a real deployment fronts an external token.
func (b *Bank) Mint(to common.Address, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("collateral: mint: %w: %s", domain.ErrInvalidAmount, amount)
	}
	b.balances[to] = b.BalanceOf(to).Add(amount)
	return nil
}

// BalanceOf returns an account's token balance.
func (b *Bank) BalanceOf(account common.Address) sdkmath.Int {
	if v, ok := b.balances[account]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

// Transfer moves tokens from one account to another.
func (b *Bank) Transfer(from, to common.Address, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("collateral: transfer: %w: %s", domain.ErrInvalidAmount, amount)
	}
	have := b.BalanceOf(from)
	if have.LT(amount) {
		return fmt.Errorf("collateral: transfer from %s: %w: have %s, want %s",
			from.Hex(), domain.ErrInsufficientBalance, have, amount)
	}
	b.balances[from] = have.Sub(amount)
	b.balances[to] = b.BalanceOf(to).Add(amount)
	return nil
}

// Approve sets the amount a spender may move on the owner's behalf.
func (b *Bank) Approve(owner, spender common.Address, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("collateral: approve: %w: %s", domain.ErrInvalidAmount, amount)
	}
	m, ok := b.allowances[owner]
	if !ok {
		m = make(map[common.Address]sdkmath.Int)
		b.allowances[owner] = m
	}
	m[spender] = amount
	return nil
}

// Allowance returns the remaining amount a spender may move for an owner.
func (b *Bank) Allowance(owner, spender common.Address) sdkmath.Int {
	if m, ok := b.allowances[owner]; ok {
		if v, ok := m[spender]; ok {
			return v
		}
	}
	return sdkmath.ZeroInt()
}

// TransferFrom moves tokens using the spender's allowance.
func (b *Bank) TransferFrom(spender, from, to common.Address, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("collateral: transfer from: %w: %s", domain.ErrInvalidAmount, amount)
	}
	allowed := b.Allowance(from, spender)
	if allowed.LT(amount) {
		return fmt.Errorf("collateral: spender %s for %s: %w: allowance %s, want %s",
			spender.Hex(), from.Hex(), domain.ErrInsufficientBalance, allowed, amount)
	}
	if err := b.Transfer(from, to, amount); err != nil {
		return err
	}
	b.allowances[from][spender] = allowed.Sub(amount)
	return nil
}

// Compile-time interface check.
var _ domain.Collateral = (*Bank)(nil)
