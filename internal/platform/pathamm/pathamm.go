// Package pathamm implements a V2-style path-swap venue against the engine
// ledger: deterministic per-pair rates with optional fixed bonus, funded with
// configured liquidity.
package pathamm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
	"github.com/bancorprotocol/bancor-arbitrage/internal/ledger"
)

type pairKey struct {
	source common.Address
	target common.Address
}

type pool struct {
	rateNum *uint256.Int
	rateDen *uint256.Int
	bonus   *uint256.Int
}

// Venue is a path-AMM swap venue. Pools are directional: a source→target pool
// quotes out = in * rateNum / rateDen + bonus.
type Venue struct {
	id   domain.PlatformID
	addr common.Address
	led  *ledger.Ledger

	mu    sync.RWMutex
	pools map[pairKey]pool
	clock func() time.Time
}

// New creates an empty venue. clock may be nil to use wall time.
func New(id domain.PlatformID, addr common.Address, led *ledger.Ledger, clock func() time.Time) *Venue {
	if clock == nil {
		clock = time.Now
	}
	return &Venue{
		id:    id,
		addr:  addr,
		led:   led,
		pools: make(map[pairKey]pool),
		clock: clock,
	}
}

// ID implements exchange.Venue.
func (v *Venue) ID() domain.PlatformID { return v.id }

// Family implements exchange.Venue.
func (v *Venue) Family() domain.Family { return domain.FamilyPathAMM }

// Address implements exchange.Venue.
func (v *Venue) Address() common.Address { return v.addr }

// AddPool registers a directional pool. A nil bonus means no fixed gain.
func (v *Venue) AddPool(source, target domain.Asset, rateNum, rateDen uint64, bonus *uint256.Int) {
	if bonus == nil {
		bonus = uint256.NewInt(0)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pools[pairKey{source.Address(), target.Address()}] = pool{
		rateNum: uint256.NewInt(rateNum),
		rateDen: uint256.NewInt(rateDen),
		bonus:   new(uint256.Int).Set(bonus),
	}
}

// CanTrade reports whether a direct pool exists for the pair.
func (v *Venue) CanTrade(source, target domain.Asset) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.pools[pairKey{source.Address(), target.Address()}]
	return ok
}

// SwapExactIn swaps amountIn along the path, pulling the input from the
// trader and paying the output from the venue's own liquidity. The final
// output below minOut fails the whole swap.
func (v *Venue) SwapExactIn(ctx context.Context, trader common.Address, path []domain.Asset,
	amountIn, minOut *uint256.Int, deadline time.Time) (*uint256.Int, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("pathamm: path must have at least 2 assets")
	}
	if !deadline.IsZero() && v.clock().After(deadline) {
		return nil, fmt.Errorf("%w: platform %d", domain.ErrDeadlineExpired, v.id)
	}

	if err := v.pull(path[0], trader, amountIn); err != nil {
		return nil, err
	}

	amount := new(uint256.Int).Set(amountIn)
	for i := 0; i < len(path)-1; i++ {
		out, err := v.quote(path[i], path[i+1], amount)
		if err != nil {
			return nil, err
		}
		amount = out
	}

	if amount.Lt(minOut) {
		return nil, fmt.Errorf("%w: platform %d got %s, want >= %s",
			domain.ErrInsufficientTarget, v.id, amount.Dec(), minOut.Dec())
	}
	if err := v.led.Transfer(path[len(path)-1], v.addr, trader, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// pull takes the trader's input: allowance-based transferFrom for tokens,
// direct value transfer for native.
func (v *Venue) pull(asset domain.Asset, trader common.Address, amount *uint256.Int) error {
	if asset.IsNative() {
		return v.led.Transfer(asset, trader, v.addr, amount)
	}
	return v.led.TransferFrom(asset, v.addr, trader, v.addr, amount)
}

func (v *Venue) quote(source, target domain.Asset, amount *uint256.Int) (*uint256.Int, error) {
	v.mu.RLock()
	p, ok := v.pools[pairKey{source.Address(), target.Address()}]
	v.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("pathamm: platform %d has no pool %s -> %s", v.id, source, target)
	}
	out, overflow := new(uint256.Int).MulOverflow(amount, p.rateNum)
	if overflow {
		return nil, fmt.Errorf("pathamm: quote: %w", domain.ErrAmountOverflow)
	}
	out.Div(out, p.rateDen)
	if _, overflow = out.AddOverflow(out, p.bonus); overflow {
		return nil, fmt.Errorf("pathamm: quote: %w", domain.ErrAmountOverflow)
	}
	return out, nil
}
