package domain

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"
)

// PlatformID identifies one registered external platform (swap venue or
// lender). IDs are assigned in the topology configuration; an id is supported
// iff a platform is registered under it.
type PlatformID uint8

// Family classifies a swap venue by the shape of its trade call.
type Family string

const (
	// FamilyPathAMM covers V2-style venues that swap along an address path,
	// optionally routed through a bridge token for legacy pairs.
	FamilyPathAMM Family = "path_amm"
	// FamilyPoolAMM covers V3-style venues that swap within a single pool
	// selected by a fee tier and operate only on the wrapped native token.
	FamilyPoolAMM Family = "pool_amm"
	// FamilyOrderBook covers strategy-fill venues where a trade is a list of
	// discrete order fills against resting liquidity.
	FamilyOrderBook Family = "order_book"
)

// Route length bounds enforced before execution.
const (
	MinRouteLength = 2
	MaxRouteLength = 10
)

// RouteStep describes one swap hop. The head fields are common to every
// platform family; exactly one of the family bodies (Path, Pool, Orders) may
// be set, matching the family of the venue registered under Platform.
type RouteStep struct {
	Platform PlatformID `json:"platform"`
	Source   Asset      `json:"source"`
	Target   Asset      `json:"target"`

	// Amount is the source amount for the hop. Zero (or nil) means "use the
	// full balance currently held"; a nonzero amount above the held balance
	// is capped at the held balance.
	Amount    *uint256.Int `json:"amount,omitempty"`
	MinReturn *uint256.Int `json:"minReturn,omitempty"`
	Deadline  time.Time    `json:"deadline"`

	Path   *PathParams  `json:"path,omitempty"`
	Pool   *PoolParams  `json:"pool,omitempty"`
	Orders *OrderParams `json:"orders,omitempty"`
}

// PathParams carries the path-AMM specific leg of a step. A zero Bridge means
// a direct two-hop path; otherwise the path is routed source→bridge→target.
type PathParams struct {
	Bridge Asset `json:"bridge,omitempty"`
}

// PoolParams carries the single-pool AMM specific leg of a step.
type PoolParams struct {
	FeeTier uint32 `json:"feeTier"`
}

// OrderParams carries the order-book specific leg of a step. Fill amounts
// must sum to the step's effective source amount.
type OrderParams struct {
	Fills []OrderFill `json:"fills"`
}

// OrderFill is one discrete fill against a resting strategy order.
type OrderFill struct {
	StrategyID *uint256.Int `json:"strategyId"`
	Amount     *uint256.Int `json:"amount"`
}

// EffectiveAmount returns the step's configured amount, treating nil as zero.
func (s *RouteStep) EffectiveAmount() *uint256.Int {
	if s.Amount == nil {
		return uint256.NewInt(0)
	}
	return s.Amount
}

// MinReturnAmount returns the step's minimum acceptable output, treating nil
// as zero.
func (s *RouteStep) MinReturnAmount() *uint256.Int {
	if s.MinReturn == nil {
		return uint256.NewInt(0)
	}
	return s.MinReturn
}

// Route is an ordered list of swap hops executed left to right.
type Route []RouteStep

// Validate checks the route length bounds and that every step names a
// platform and both assets. Per-hop preconditions (distinct assets, deadline,
// nonzero effective amount) are enforced at execution time.
func (r Route) Validate() error {
	if len(r) < MinRouteLength || len(r) > MaxRouteLength {
		return fmt.Errorf("%w: got %d steps, want %d-%d",
			ErrInvalidRouteLength, len(r), MinRouteLength, MaxRouteLength)
	}
	for i, step := range r {
		if step.Source.IsZero() || step.Target.IsZero() {
			return fmt.Errorf("step %d: missing source or target asset", i)
		}
	}
	return nil
}

// Anchor returns the route's anchor pair: the first step's source asset and
// the last step's target asset.
func (r Route) Anchor() (first, last Asset) {
	if len(r) == 0 {
		return Asset{}, Asset{}
	}
	return r[0].Source, r[len(r)-1].Target
}
