// Package poolamm implements a V3-style single-pool venue: each pool is keyed
// by (source, target, fee tier) and trades only token assets; the dispatcher
// wraps and unwraps native around calls into this family.
package poolamm

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

type poolKey struct {
	source common.Address
	target common.Address
	fee    uint32
}

type pool struct {
	rateNum *uint256.Int
	rateDen *uint256.Int
	bonus   *uint256.Int
}

// Venue is a single-pool exact-input swap venue.
type Venue struct {
	id   domain.PlatformID
	addr common.Address
	led  *ledger.Ledger

	mu    sync.RWMutex
	pools map[poolKey]pool
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
		pools: make(map[poolKey]pool),
		clock: clock,
	}
}

// ID implements exchange.Venue.
func (v *Venue) ID() domain.PlatformID { return v.id }

// Family implements exchange.Venue.
func (v *Venue) Family() domain.Family { return domain.FamilyPoolAMM }

// Address implements exchange.Venue.
func (v *Venue) Address() common.Address { return v.addr }

// AddPool registers a directional pool at the given fee tier.
func (v *Venue) AddPool(source, target domain.Asset, fee uint32, rateNum, rateDen uint64, bonus *uint256.Int) {
	if bonus == nil {
		bonus = uint256.NewInt(0)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pools[poolKey{source.Address(), target.Address(), fee}] = pool{
		rateNum: uint256.NewInt(rateNum),
		rateDen: uint256.NewInt(rateDen),
		bonus:   new(uint256.Int).Set(bonus),
	}
}

// SwapPool swaps amountIn within the pool selected by the fee tier. Native
// assets are rejected; this family operates only on wrapped representations.
func (v *Venue) SwapPool(ctx context.Context, trader common.Address, source, target domain.Asset,
	feeTier uint32, amountIn, minOut *uint256.Int, deadline time.Time) (*uint256.Int, error) {
	if source.IsNative() || target.IsNative() {
		return nil, fmt.Errorf("poolamm: platform %d trades wrapped native only", v.id)
	}
	if !deadline.IsZero() && v.clock().After(deadline) {
		return nil, fmt.Errorf("%w: platform %d", domain.ErrDeadlineExpired, v.id)
	}

	v.mu.RLock()
	p, ok := v.pools[poolKey{source.Address(), target.Address(), feeTier}]
	v.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("poolamm: platform %d has no pool %s -> %s fee %d", v.id, source, target, feeTier)
	}

	if err := v.led.TransferFrom(source, v.addr, trader, v.addr, amountIn); err != nil {
		return nil, err
	}

	out, overflow := new(uint256.Int).MulOverflow(amountIn, p.rateNum)
	if overflow {
		return nil, fmt.Errorf("poolamm: quote: %w", domain.ErrAmountOverflow)
	}
	out.Div(out, p.rateDen)
	if _, overflow = out.AddOverflow(out, p.bonus); overflow {
		return nil, fmt.Errorf("poolamm: quote: %w", domain.ErrAmountOverflow)
	}

	if out.Lt(minOut) {
		return nil, fmt.Errorf("%w: platform %d got %s, want >= %s",
			domain.ErrInsufficientTarget, v.id, out.Dec(), minOut.Dec())
	}
	if err := v.led.Transfer(target, v.addr, trader, out); err != nil {
		return nil, err
	}
	return out, nil
}
