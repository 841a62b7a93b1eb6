// Package carbon implements a strategy-fill order-book venue: trades execute
// as discrete fills against resting strategies with bounded capacity, so a
// fill can be partially consumed and leave source-asset dust.
package carbon

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

type strategy struct {
	source   domain.Asset
	target   domain.Asset
	capacity *uint256.Int // remaining source-side capacity
	rateNum  *uint256.Int
	rateDen  *uint256.Int
}

// Venue is an order-book venue holding resting strategies.
type Venue struct {
	id   domain.PlatformID
	addr common.Address
	led  *ledger.Ledger

	mu         sync.Mutex
	strategies map[string]*strategy
	clock      func() time.Time
}

// New creates an empty venue. clock may be nil to use wall time.
func New(id domain.PlatformID, addr common.Address, led *ledger.Ledger, clock func() time.Time) *Venue {
	if clock == nil {
		clock = time.Now
	}
	return &Venue{
		id:         id,
		addr:       addr,
		led:        led,
		strategies: make(map[string]*strategy),
		clock:      clock,
	}
}

// ID implements exchange.Venue.
func (v *Venue) ID() domain.PlatformID { return v.id }

// Family implements exchange.Venue.
func (v *Venue) Family() domain.Family { return domain.FamilyOrderBook }

// Address implements exchange.Venue.
func (v *Venue) Address() common.Address { return v.addr }

// AddStrategy registers a resting strategy: it absorbs up to capacity units
// of source and pays out at rateNum/rateDen in target units.
func (v *Venue) AddStrategy(id *uint256.Int, source, target domain.Asset, capacity *uint256.Int, rateNum, rateDen uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.strategies[id.Hex()] = &strategy{
		source:   source,
		target:   target,
		capacity: new(uint256.Int).Set(capacity),
		rateNum:  uint256.NewInt(rateNum),
		rateDen:  uint256.NewInt(rateDen),
	}
}

// FillOrders executes the fills in order, consuming from each strategy up to
// its remaining capacity. The consumed source total is pulled from the
// trader; unconsumed amounts are reported back as unspent.
func (v *Venue) FillOrders(ctx context.Context, trader common.Address, source, target domain.Asset,
	fills []domain.OrderFill, minOut *uint256.Int, deadline time.Time) (*uint256.Int, *uint256.Int, error) {
	if !deadline.IsZero() && v.clock().After(deadline) {
		return nil, nil, fmt.Errorf("%w: platform %d", domain.ErrDeadlineExpired, v.id)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	consumedTotal := uint256.NewInt(0)
	unspent := uint256.NewInt(0)
	out := uint256.NewInt(0)

	for i, fill := range fills {
		if fill.StrategyID == nil {
			return nil, nil, fmt.Errorf("carbon: fill %d missing strategy id", i)
		}
		st, ok := v.strategies[fill.StrategyID.Hex()]
		if !ok {
			return nil, nil, fmt.Errorf("carbon: platform %d has no strategy %s", v.id, fill.StrategyID.Hex())
		}
		if st.source != source || st.target != target {
			return nil, nil, fmt.Errorf("carbon: strategy %s trades %s -> %s, fill wants %s -> %s",
				fill.StrategyID.Hex(), st.source, st.target, source, target)
		}

		consumed := new(uint256.Int).Set(fill.Amount)
		if consumed.Gt(st.capacity) {
			consumed.Set(st.capacity)
			unspent.Add(unspent, new(uint256.Int).Sub(fill.Amount, consumed))
		}

		fillOut, overflow := new(uint256.Int).MulOverflow(consumed, st.rateNum)
		if overflow {
			return nil, nil, fmt.Errorf("carbon: fill %d: %w", i, domain.ErrAmountOverflow)
		}
		fillOut.Div(fillOut, st.rateDen)

		// Capacity consumption goes through the ledger journal so a reverted
		// execution releases it again.
		prev := st.capacity
		st.capacity = new(uint256.Int).Sub(prev, consumed)
		v.led.RecordUndo(func() { st.capacity = prev })

		consumedTotal.Add(consumedTotal, consumed)
		out.Add(out, fillOut)
	}

	if out.Lt(minOut) {
		return nil, nil, fmt.Errorf("%w: platform %d got %s, want >= %s",
			domain.ErrInsufficientTarget, v.id, out.Dec(), minOut.Dec())
	}

	if !consumedTotal.IsZero() {
		if err := v.pull(source, trader, consumedTotal); err != nil {
			return nil, nil, err
		}
	}
	if !out.IsZero() {
		if err := v.led.Transfer(target, v.addr, trader, out); err != nil {
			return nil, nil, err
		}
	}
	return out, unspent, nil
}

func (v *Venue) pull(asset domain.Asset, trader common.Address, amount *uint256.Int) error {
	if asset.IsNative() {
		return v.led.Transfer(asset, trader, v.addr, amount)
	}
	return v.led.TransferFrom(asset, v.addr, trader, v.addr, amount)
}
