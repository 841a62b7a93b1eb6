// Package exchange defines the swap venue capability interfaces and the
// dispatcher that executes one route step against one registered platform.
package exchange

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
)

// Venue is the common surface of every registered swap platform.
type Venue interface {
	ID() domain.PlatformID
	Family() domain.Family
	Address() common.Address
}

// PathSwapper is a V2-style venue that swaps along an address path. The venue
// pulls the input from the trader (allowance for tokens, direct value for
// native) and sends the realized output back to the trader. It enforces its
// own deadline and min-output checks; those errors propagate verbatim.
type PathSwapper interface {
	Venue
	SwapExactIn(ctx context.Context, trader common.Address, path []domain.Asset,
		amountIn, minOut *uint256.Int, deadline time.Time) (*uint256.Int, error)
	// CanTrade reports whether the venue has a direct pool for the pair.
	CanTrade(source, target domain.Asset) bool
}

// PoolSwapper is a V3-style venue that swaps within a single pool selected by
// a fee tier. Venues of this family trade only the wrapped representation of
// the native asset.
type PoolSwapper interface {
	Venue
	SwapPool(ctx context.Context, trader common.Address, source, target domain.Asset,
		feeTier uint32, amountIn, minOut *uint256.Int, deadline time.Time) (*uint256.Int, error)
}

// OrderBook is a strategy-fill venue. FillOrders consumes as much of each
// fill as the resting strategy allows, returning the realized output and any
// unconsumed source amount left with the trader.
type OrderBook interface {
	Venue
	FillOrders(ctx context.Context, trader common.Address, source, target domain.Asset,
		fills []domain.OrderFill, minOut *uint256.Int, deadline time.Time) (out, unspent *uint256.Int, err error)
}

// Wrapper converts between the native asset and its wrapped token 1:1, for
// venues that only operate on the wrapped representation.
type Wrapper interface {
	Wrapped() domain.Asset
	Deposit(trader common.Address, amount *uint256.Int) error
	Withdraw(trader common.Address, amount *uint256.Int) error
}
