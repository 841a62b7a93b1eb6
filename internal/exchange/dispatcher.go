package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
	"github.com/bancorprotocol/bancor-arbitrage/internal/ledger"
)

// maxOrderTarget is the order-book family's target ceiling (2^128 - 1).
var maxOrderTarget = func() *uint256.Int {
	v := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	return v.SubUint64(v, 1)
}()

// Dispatcher executes exactly one route step against exactly one registered
// venue, handling per-family quirks: path construction, native wrapping, and
// lazy allowance management.
type Dispatcher struct {
	reg      *Registry
	led      *ledger.Ledger
	wrapper  Wrapper
	trader   common.Address // account whose funds are traded (the engine)
	dustSink common.Address // operator address receiving order-book dust
	now      func() time.Time
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher trading on behalf of trader. wrapper may
// be nil when no pool-family venue is registered.
func NewDispatcher(reg *Registry, led *ledger.Ledger, wrapper Wrapper,
	trader, dustSink common.Address, now func() time.Time, logger *slog.Logger) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		reg:      reg,
		led:      led,
		wrapper:  wrapper,
		trader:   trader,
		dustSink: dustSink,
		now:      now,
		logger:   logger.With(slog.String("component", "dispatcher")),
	}
}

// Trade executes the step with the given effective source amount and returns
// the realized output. Venue-surfaced errors (slippage, liquidity, balance)
// propagate untranslated.
func (d *Dispatcher) Trade(ctx context.Context, step domain.RouteStep, amount *uint256.Int) (*uint256.Int, error) {
	if !step.Deadline.IsZero() && d.now().After(step.Deadline) {
		return nil, fmt.Errorf("%w: platform %d", domain.ErrDeadlineExpired, step.Platform)
	}
	if step.Source == step.Target {
		return nil, fmt.Errorf("%w: %s", domain.ErrSameSourceTarget, step.Source)
	}
	if amount == nil || amount.IsZero() {
		return nil, fmt.Errorf("%w: platform %d %s->%s",
			domain.ErrZeroAmount, step.Platform, step.Source, step.Target)
	}

	venue, err := d.reg.Venue(step.Platform)
	if err != nil {
		return nil, err
	}

	out, err := d.dispatch(ctx, venue, step, amount)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("trade executed",
		slog.Int("platform", int(step.Platform)),
		slog.String("source", step.Source.String()),
		slog.String("target", step.Target.String()),
		slog.String("amount_in", amount.Dec()),
		slog.String("amount_out", out.Dec()),
	)
	return out, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, venue Venue, step domain.RouteStep, amount *uint256.Int) (*uint256.Int, error) {
	switch venue.Family() {
	case domain.FamilyPathAMM:
		return d.tradePath(ctx, venue, step, amount)
	case domain.FamilyPoolAMM:
		return d.tradePool(ctx, venue, step, amount)
	case domain.FamilyOrderBook:
		return d.tradeOrders(ctx, venue, step, amount)
	default:
		return nil, fmt.Errorf("%w: %d has unknown family %q",
			domain.ErrInvalidExchangeID, venue.ID(), venue.Family())
	}
}

// tradePath executes against a path-AMM venue, building a direct 2-hop path
// or a 3-hop path via the step's bridge token for legacy pairs.
func (d *Dispatcher) tradePath(ctx context.Context, venue Venue, step domain.RouteStep, amount *uint256.Int) (*uint256.Int, error) {
	swapper, ok := venue.(PathSwapper)
	if !ok {
		return nil, fmt.Errorf("exchange: platform %d does not implement path swaps", venue.ID())
	}

	path := []domain.Asset{step.Source, step.Target}
	if step.Path != nil && !step.Path.Bridge.IsZero() {
		path = []domain.Asset{step.Source, step.Path.Bridge, step.Target}
	}

	d.ensureAllowance(step.Source, venue.Address(), amount)
	return swapper.SwapExactIn(ctx, d.trader, path, amount, step.MinReturnAmount(), step.Deadline)
}

// tradePool executes against a single-pool venue, wrapping native input and
// unwrapping native output since pool venues trade only the wrapped token.
func (d *Dispatcher) tradePool(ctx context.Context, venue Venue, step domain.RouteStep, amount *uint256.Int) (*uint256.Int, error) {
	swapper, ok := venue.(PoolSwapper)
	if !ok {
		return nil, fmt.Errorf("exchange: platform %d does not implement pool swaps", venue.ID())
	}
	if step.Pool == nil {
		return nil, fmt.Errorf("exchange: platform %d requires pool params (fee tier)", venue.ID())
	}

	source, target := step.Source, step.Target
	unwrapOut := false
	if source.IsNative() {
		if d.wrapper == nil {
			return nil, fmt.Errorf("exchange: no native wrapper configured for platform %d", venue.ID())
		}
		if err := d.wrapper.Deposit(d.trader, amount); err != nil {
			return nil, err
		}
		source = d.wrapper.Wrapped()
	}
	if target.IsNative() {
		if d.wrapper == nil {
			return nil, fmt.Errorf("exchange: no native wrapper configured for platform %d", venue.ID())
		}
		target = d.wrapper.Wrapped()
		unwrapOut = true
	}

	d.ensureAllowance(source, venue.Address(), amount)
	out, err := swapper.SwapPool(ctx, d.trader, source, target, step.Pool.FeeTier,
		amount, step.MinReturnAmount(), step.Deadline)
	if err != nil {
		return nil, err
	}
	if unwrapOut {
		if err := d.wrapper.Withdraw(d.trader, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// tradeOrders executes against an order-book venue. Fill amounts must sum to
// the effective source amount, the min-target ceiling is 2^128-1, and any
// unconsumed source dust is swept to the operator address so no value leaks
// into later hops.
func (d *Dispatcher) tradeOrders(ctx context.Context, venue Venue, step domain.RouteStep, amount *uint256.Int) (*uint256.Int, error) {
	book, ok := venue.(OrderBook)
	if !ok {
		return nil, fmt.Errorf("exchange: platform %d does not implement order fills", venue.ID())
	}
	if step.Orders == nil || len(step.Orders.Fills) == 0 {
		return nil, fmt.Errorf("exchange: platform %d requires order fills", venue.ID())
	}
	if step.MinReturnAmount().Gt(maxOrderTarget) {
		return nil, fmt.Errorf("%w: platform %d", domain.ErrMinTargetTooHigh, venue.ID())
	}

	sum := uint256.NewInt(0)
	for i, fill := range step.Orders.Fills {
		if fill.Amount == nil || fill.Amount.IsZero() {
			return nil, fmt.Errorf("%w: fill %d", domain.ErrZeroAmount, i)
		}
		var overflow bool
		if _, overflow = sum.AddOverflow(sum, fill.Amount); overflow {
			return nil, fmt.Errorf("exchange: fill amounts: %w", domain.ErrAmountOverflow)
		}
	}
	if !sum.Eq(amount) {
		return nil, fmt.Errorf("exchange: fill amounts sum to %s, want %s", sum.Dec(), amount.Dec())
	}

	d.ensureAllowance(step.Source, venue.Address(), amount)
	out, unspent, err := book.FillOrders(ctx, d.trader, step.Source, step.Target,
		step.Orders.Fills, step.MinReturnAmount(), step.Deadline)
	if err != nil {
		return nil, err
	}
	if unspent != nil && !unspent.IsZero() {
		if err := d.led.Transfer(step.Source, d.trader, d.dustSink, unspent); err != nil {
			return nil, err
		}
		d.logger.Debug("order dust swept",
			slog.Int("platform", int(venue.ID())),
			slog.String("asset", step.Source.String()),
			slog.String("amount", unspent.Dec()),
		)
	}
	return out, nil
}

// ensureAllowance lazily raises the venue's spending allowance for the
// trader's source asset.
func (d *Dispatcher) ensureAllowance(asset domain.Asset, spender common.Address, need *uint256.Int) {
	d.led.Token(asset).EnsureAllowance(d.trader, spender, need)
}

// CanTrade reports whether the venue registered under id can trade the pair
// directly. Used to verify that a self-funded anchor has a path back to the
// base reward asset.
func (d *Dispatcher) CanTrade(id domain.PlatformID, source, target domain.Asset) bool {
	venue, err := d.reg.Venue(id)
	if err != nil {
		return false
	}
	swapper, ok := venue.(PathSwapper)
	if !ok {
		return false
	}
	return swapper.CanTrade(source, target)
}
