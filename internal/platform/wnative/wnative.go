// Package wnative is the wrapped-native adapter: it holds deposited native
// value and mints the wrapped token 1:1, the way a WETH-style contract does.
package wnative

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
	"github.com/bancorprotocol/bancor-arbitrage/internal/ledger"
)

// Wrapper converts native <-> wrapped against the ledger.
type Wrapper struct {
	led     *ledger.Ledger
	addr    common.Address
	wrapped domain.Asset
}

// New creates a Wrapper minting the given wrapped token.
func New(led *ledger.Ledger, addr common.Address, wrapped domain.Asset) *Wrapper {
	return &Wrapper{led: led, addr: addr, wrapped: wrapped}
}

// Wrapped returns the wrapped token asset.
func (w *Wrapper) Wrapped() domain.Asset {
	return w.wrapped
}

// Deposit takes native value from the trader and mints wrapped tokens.
func (w *Wrapper) Deposit(trader common.Address, amount *uint256.Int) error {
	if err := w.led.Transfer(domain.NativeAsset(), trader, w.addr, amount); err != nil {
		return err
	}
	return w.led.Mint(w.wrapped, trader, amount)
}

// Withdraw burns the trader's wrapped tokens and returns native value.
func (w *Wrapper) Withdraw(trader common.Address, amount *uint256.Int) error {
	if err := w.led.BurnFrom(w.wrapped, trader, amount); err != nil {
		return err
	}
	return w.led.Transfer(domain.NativeAsset(), w.addr, trader, amount)
}
