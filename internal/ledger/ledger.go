// Package ledger implements the engine's execution state: token balances and
// allowances with journaled mutations, so a whole execution can be reverted
// atomically the way an EVM transaction unwinds.
package ledger

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
)

// MaxAllowance is the unlimited-approval sentinel. An allowance at this value
// is never decremented on transferFrom.
var MaxAllowance = new(uint256.Int).SetAllOne()

type balanceKey struct {
	asset  common.Address
	holder common.Address
}

type allowanceKey struct {
	asset   common.Address
	owner   common.Address
	spender common.Address
}

// Ledger holds balances and allowances for every asset and account that takes
// part in an execution. Every mutation is journaled; Snapshot/RevertTo give
// all-or-nothing semantics to the callers above.
type Ledger struct {
	mu         sync.Mutex
	balances   map[balanceKey]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
	journal    []func()
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances:   make(map[balanceKey]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
	}
}

// Snapshot returns a revision id for the current state.
func (l *Ledger) Snapshot() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.journal)
}

// RevertTo undoes every mutation recorded after the given revision.
func (l *Ledger) RevertTo(rev int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rev < 0 || rev > len(l.journal) {
		return
	}
	for i := len(l.journal) - 1; i >= rev; i-- {
		l.journal[i]()
	}
	l.journal = l.journal[:rev]
}

// DiscardSnapshots drops the journal up to the current state, committing it.
// Reverting past a discarded revision is no longer possible.
func (l *Ledger) DiscardSnapshots() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.journal = l.journal[:0]
}

// RecordUndo appends an inverse mutation to the journal, letting platforms
// ride their own state through the same snapshot/revert cycle as balances.
// The closure runs under the ledger mutex during RevertTo and must not call
// back into the ledger.
func (l *Ledger) RecordUndo(undo func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.journal = append(l.journal, undo)
}

// BalanceOf returns a copy of the holder's balance of the asset.
func (l *Ledger) BalanceOf(asset domain.Asset, holder common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.balances[balanceKey{asset.Address(), holder}]; ok {
		return new(uint256.Int).Set(b)
	}
	return uint256.NewInt(0)
}

// setBalance records the previous value in the journal and installs the new
// one. Caller must hold the mutex.
func (l *Ledger) setBalance(k balanceKey, v *uint256.Int) {
	prev, existed := l.balances[k]
	l.journal = append(l.journal, func() {
		if existed {
			l.balances[k] = prev
		} else {
			delete(l.balances, k)
		}
	})
	l.balances[k] = v
}

func (l *Ledger) setAllowance(k allowanceKey, v *uint256.Int) {
	prev, existed := l.allowances[k]
	l.journal = append(l.journal, func() {
		if existed {
			l.allowances[k] = prev
		} else {
			delete(l.allowances, k)
		}
	})
	l.allowances[k] = v
}

// Mint credits newly created units to the holder. Used for topology funding
// and by the wrapped-native adapter.
func (l *Ledger) Mint(asset domain.Asset, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := balanceKey{asset.Address(), to}
	cur := l.balances[k]
	if cur == nil {
		cur = uint256.NewInt(0)
	}
	sum, overflow := new(uint256.Int).AddOverflow(cur, amount)
	if overflow {
		return fmt.Errorf("ledger: mint %s to %s: %w", asset, to.Hex(), domain.ErrAmountOverflow)
	}
	l.setBalance(k, sum)
	return nil
}

// BurnFrom destroys units held by the holder.
func (l *Ledger) BurnFrom(asset domain.Asset, from common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := balanceKey{asset.Address(), from}
	cur := l.balances[k]
	if cur == nil || cur.Lt(amount) {
		return fmt.Errorf("ledger: burn %s from %s: %w", asset, from.Hex(), domain.ErrInsufficientBalance)
	}
	l.setBalance(k, new(uint256.Int).Sub(cur, amount))
	return nil
}

// Transfer moves amount of asset from one holder to another.
func (l *Ledger) Transfer(asset domain.Asset, from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transferLocked(asset, from, to, amount)
}

func (l *Ledger) transferLocked(asset domain.Asset, from, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	fromKey := balanceKey{asset.Address(), from}
	fromBal := l.balances[fromKey]
	if fromBal == nil || fromBal.Lt(amount) {
		return fmt.Errorf("ledger: transfer %s of %s from %s: %w",
			amount.Dec(), asset, from.Hex(), domain.ErrInsufficientBalance)
	}
	toKey := balanceKey{asset.Address(), to}
	toBal := l.balances[toKey]
	if toBal == nil {
		toBal = uint256.NewInt(0)
	}
	sum, overflow := new(uint256.Int).AddOverflow(toBal, amount)
	if overflow {
		return fmt.Errorf("ledger: transfer %s of %s to %s: %w",
			amount.Dec(), asset, to.Hex(), domain.ErrAmountOverflow)
	}
	l.setBalance(fromKey, new(uint256.Int).Sub(fromBal, amount))
	l.setBalance(toKey, sum)
	return nil
}

// Allowance returns a copy of the spender's allowance granted by the owner.
func (l *Ledger) Allowance(asset domain.Asset, owner, spender common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.allowances[allowanceKey{asset.Address(), owner, spender}]; ok {
		return new(uint256.Int).Set(a)
	}
	return uint256.NewInt(0)
}

// Approve sets the spender's allowance granted by the owner.
func (l *Ledger) Approve(asset domain.Asset, owner, spender common.Address, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setAllowance(allowanceKey{asset.Address(), owner, spender}, new(uint256.Int).Set(amount))
}

// TransferFrom moves amount of asset from the owner to the recipient on
// behalf of the caller. The caller's allowance is checked and consumed unless
// it is the unlimited sentinel or the caller is the owner. The native asset
// carries no allowance mechanics; only the owner itself may move it.
func (l *Ledger) TransferFrom(asset domain.Asset, caller, from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != from {
		if asset.IsNative() {
			return fmt.Errorf("ledger: native transferFrom by %s: %w", caller.Hex(), domain.ErrInsufficientAllow)
		}
		k := allowanceKey{asset.Address(), from, caller}
		allowed := l.allowances[k]
		if allowed == nil || allowed.Lt(amount) {
			return fmt.Errorf("ledger: transferFrom %s of %s by %s: %w",
				amount.Dec(), asset, caller.Hex(), domain.ErrInsufficientAllow)
		}
		if !allowed.Eq(MaxAllowance) {
			l.setAllowance(k, new(uint256.Int).Sub(allowed, amount))
		}
	}
	return l.transferLocked(asset, from, to, amount)
}
