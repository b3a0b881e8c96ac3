// Package ledger implements the share ledger: balances keyed by the encoded
// (epoch, period, outcome) share id, plus the blocked sub-ledger tracking
// rollover-reserved amounts per user and per share id.
//
// Blocked shares are physically held by the market's own account; the blocked
// maps record which user each reservation belongs to. A user's plain balance
// is therefore always free balance.
package ledger

import (
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/perpamm/internal/domain"
)

// Ledger is the in-memory share ledger of one market instance. It is not
// safe for concurrent use; the owning market serializes access.
type Ledger struct {
	periodsPerEpoch uint64
	outcomeSlots    int

	balances     map[common.Address]map[uint64]sdkmath.Int
	supply       map[uint64]sdkmath.Int
	blockedUser  map[common.Address]map[uint64]sdkmath.Int
	blockedTotal map[uint64]sdkmath.Int
}

// New creates an empty ledger for the given market geometry.
func New(periodsPerEpoch uint64, outcomeSlots int) *Ledger {
	return &Ledger{
		periodsPerEpoch: periodsPerEpoch,
		outcomeSlots:    outcomeSlots,
		balances:        make(map[common.Address]map[uint64]sdkmath.Int),
		supply:          make(map[uint64]sdkmath.Int),
		blockedUser:     make(map[common.Address]map[uint64]sdkmath.Int),
		blockedTotal:    make(map[uint64]sdkmath.Int),
	}
}

// ID encodes a share key for this ledger's geometry.
func (l *Ledger) ID(epoch, period uint64, outcome int) uint64 {
	return domain.EncodeShareID(domain.ShareKey{Epoch: epoch, Period: period, Outcome: outcome},
		l.periodsPerEpoch, l.outcomeSlots)
}

// Key decodes a share id back into its (epoch, period, outcome) key.
func (l *Ledger) Key(id uint64) domain.ShareKey {
	return domain.DecodeShareID(id, l.periodsPerEpoch, l.outcomeSlots)
}

func get(m map[uint64]sdkmath.Int, id uint64) sdkmath.Int {
	if v, ok := m[id]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

func (l *Ledger) acctBalances(acct common.Address) map[uint64]sdkmath.Int {
	m, ok := l.balances[acct]
	if !ok {
		m = make(map[uint64]sdkmath.Int)
		l.balances[acct] = m
	}
	return m
}

func (l *Ledger) acctBlocked(acct common.Address) map[uint64]sdkmath.Int {
	m, ok := l.blockedUser[acct]
	if !ok {
		m = make(map[uint64]sdkmath.Int)
		l.blockedUser[acct] = m
	}
	return m
}

// Mint credits amount of share id to the account and grows total supply.
func (l *Ledger) Mint(acct common.Address, id uint64, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("ledger: mint: %w: %s", domain.ErrInvalidAmount, amount)
	}
	if amount.IsZero() {
		return nil
	}
	bals := l.acctBalances(acct)
	bals[id] = get(bals, id).Add(amount)
	l.supply[id] = get(l.supply, id).Add(amount)
	return nil
}

// Burn debits amount of share id from the account and shrinks total supply.
// Burning more than the account holds is a hard error and mutates nothing.
func (l *Ledger) Burn(acct common.Address, id uint64, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("ledger: burn: %w: %s", domain.ErrInvalidAmount, amount)
	}
	if amount.IsZero() {
		return nil
	}
	bals := l.acctBalances(acct)
	have := get(bals, id)
	if have.LT(amount) {
		return fmt.Errorf("ledger: burn share %d: %w: have %s, want %s",
			id, domain.ErrInsufficientBalance, have, amount)
	}
	bals[id] = have.Sub(amount)
	l.supply[id] = get(l.supply, id).Sub(amount)
	return nil
}

// Transfer moves amount of share id between accounts without changing supply.
func (l *Ledger) Transfer(from, to common.Address, id uint64, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("ledger: transfer: %w: %s", domain.ErrInvalidAmount, amount)
	}
	if amount.IsZero() {
		return nil
	}
	fromBals := l.acctBalances(from)
	have := get(fromBals, id)
	if have.LT(amount) {
		return fmt.Errorf("ledger: transfer share %d: %w: have %s, want %s",
			id, domain.ErrInsufficientBalance, have, amount)
	}
	fromBals[id] = have.Sub(amount)
	toBals := l.acctBalances(to)
	toBals[id] = get(toBals, id).Add(amount)
	return nil
}

// BalanceOf returns the free balance of an account for a share id.
func (l *Ledger) BalanceOf(acct common.Address, id uint64) sdkmath.Int {
	if m, ok := l.balances[acct]; ok {
		return get(m, id)
	}
	return sdkmath.ZeroInt()
}

// TotalSupply returns the total minted supply of a share id.
func (l *Ledger) TotalSupply(id uint64) sdkmath.Int {
	return get(l.supply, id)
}

// AggregateSupply sums total supply for one outcome across periods
// 1..uptoPeriod of an epoch.
func (l *Ledger) AggregateSupply(epoch uint64, outcome int, uptoPeriod uint64) sdkmath.Int {
	sum := sdkmath.ZeroInt()
	for p := uint64(1); p <= uptoPeriod; p++ {
		sum = sum.Add(l.TotalSupply(l.ID(epoch, p, outcome)))
	}
	return sum
}

// Block records amount of share id as reserved for the given user. The
// underlying shares live in the market account; Block only writes the
// reservation bookkeeping.
func (l *Ledger) Block(acct common.Address, id uint64, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("ledger: block: %w: %s", domain.ErrInvalidAmount, amount)
	}
	if amount.IsZero() {
		return nil
	}
	blocked := l.acctBlocked(acct)
	blocked[id] = get(blocked, id).Add(amount)
	l.blockedTotal[id] = get(l.blockedTotal, id).Add(amount)
	return nil
}

// Unblock releases a previously recorded reservation.
func (l *Ledger) Unblock(acct common.Address, id uint64, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("ledger: unblock: %w: %s", domain.ErrInvalidAmount, amount)
	}
	if amount.IsZero() {
		return nil
	}
	blocked := l.acctBlocked(acct)
	have := get(blocked, id)
	if have.LT(amount) {
		return fmt.Errorf("ledger: unblock share %d: %w: have %s, want %s",
			id, domain.ErrInsufficientBalance, have, amount)
	}
	blocked[id] = have.Sub(amount)
	l.blockedTotal[id] = get(l.blockedTotal, id).Sub(amount)
	return nil
}

// BlockedOf returns the reserved amount of a share id for one account.
func (l *Ledger) BlockedOf(acct common.Address, id uint64) sdkmath.Int {
	if m, ok := l.blockedUser[acct]; ok {
		return get(m, id)
	}
	return sdkmath.ZeroInt()
}

// BlockedTotal returns the aggregate reserved amount of a share id.
func (l *Ledger) BlockedTotal(id uint64) sdkmath.Int {
	return get(l.blockedTotal, id)
}

// Entries returns every non-zero ledger entry as persistable records, sorted
// by account then share id so snapshots are deterministic.
func (l *Ledger) Entries() []domain.ShareBalance {
	type key struct {
		acct common.Address
		id   uint64
	}
	seen := make(map[key]struct{})
	var out []domain.ShareBalance

	collect := func(acct common.Address, id uint64) {
		k := key{acct, id}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		bal := l.BalanceOf(acct, id)
		blk := l.BlockedOf(acct, id)
		if bal.IsZero() && blk.IsZero() {
			return
		}
		out = append(out, domain.ShareBalance{Account: acct, ShareID: id, Balance: bal, Blocked: blk})
	}

	for acct, bals := range l.balances {
		for id := range bals {
			collect(acct, id)
		}
	}
	for acct, blocked := range l.blockedUser {
		for id := range blocked {
			collect(acct, id)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].Account, out[j].Account
		if ai != aj {
			return ai.Hex() < aj.Hex()
		}
		return out[i].ShareID < out[j].ShareID
	})
	return out
}

// Restore replaces the ledger contents with the given snapshot entries.
func (l *Ledger) Restore(entries []domain.ShareBalance) {
	l.balances = make(map[common.Address]map[uint64]sdkmath.Int)
	l.supply = make(map[uint64]sdkmath.Int)
	l.blockedUser = make(map[common.Address]map[uint64]sdkmath.Int)
	l.blockedTotal = make(map[uint64]sdkmath.Int)

	for _, e := range entries {
		if !e.Balance.IsNil() && !e.Balance.IsZero() {
			bals := l.acctBalances(e.Account)
			bals[e.ShareID] = get(bals, e.ShareID).Add(e.Balance)
			l.supply[e.ShareID] = get(l.supply, e.ShareID).Add(e.Balance)
		}
		if !e.Blocked.IsNil() && !e.Blocked.IsZero() {
			blocked := l.acctBlocked(e.Account)
			blocked[e.ShareID] = get(blocked, e.ShareID).Add(e.Blocked)
			l.blockedTotal[e.ShareID] = get(l.blockedTotal, e.ShareID).Add(e.Blocked)
		}
	}
}
