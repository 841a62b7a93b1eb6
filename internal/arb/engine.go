// Package arb implements the arbitrage execution engine: flash-loan
// orchestration over chained re-entrant lender callbacks, linear route
// execution with carry-forward balance accounting, and reward/burn
// settlement. Every execution is atomic: any failure reverts the ledger to
// its pre-execution state.
package arb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
	"github.com/bancorprotocol/bancor-arbitrage/internal/exchange"
	"github.com/bancorprotocol/bancor-arbitrage/internal/ledger"
	"github.com/bancorprotocol/bancor-arbitrage/internal/lending"
)

// Config holds the engine's immutable deployment parameters and the initial
// values of its durable settings.
type Config struct {
	// Self is the engine's own account on the ledger.
	Self common.Address
	// Admin may change the rewards config and min-burn threshold.
	Admin common.Address
	// BurnSink receives the burn share of every settlement.
	BurnSink common.Address
	// BaseAsset is the designated reward asset all settlements account in.
	BaseAsset domain.Asset
	// DefaultPlatform is the venue used for trailing normalization trades and
	// for the self-funded tradeability check.
	DefaultPlatform domain.PlatformID

	Rewards domain.RewardsConfig
	MinBurn *uint256.Int

	// Clock is injectable for tests; nil means wall time.
	Clock func() time.Time
}

// flight is the per-execution accumulator for the settlement event. It also
// carries the only mutable trust anchor of the callback chain: the lender
// address the engine is currently waiting on.
type flight struct {
	caller common.Address
	// expectedLender is the lender the engine is currently awaiting. Probing
	// callbacks from untrusted callers read it concurrently with the chain
	// advancing it, so access is atomic.
	expectedLender atomic.Pointer[common.Address]

	platforms     []domain.PlatformID
	pairs         []domain.AssetPair
	sourceAssets  []domain.Asset
	sourceAmounts []*uint256.Int
}

// Engine executes arbitrage routes against the ledger. It implements
// lending.Borrower for the flash-loan callback chain.
type Engine struct {
	led     *ledger.Ledger
	disp    *exchange.Dispatcher
	lenders *lending.Registry

	self            common.Address
	admin           common.Address
	burnSink        common.Address
	baseAsset       domain.Asset
	defaultPlatform domain.PlatformID
	clock           func() time.Time

	store  domain.SettlementStore // optional
	params domain.ParamStore      // optional
	bus    domain.SignalBus       // optional
	logger *slog.Logger

	mu      sync.Mutex // guards rewards and minBurn
	rewards domain.RewardsConfig
	minBurn *uint256.Int

	// busy is the top-level reentrancy guard over the public entry points.
	// Loan callbacks are deliberately exempt: they are part of the same
	// logical call and are gated by inflight instead.
	busy atomic.Bool
	// inflight may be probed by concurrent direct callback invocations from
	// untrusted callers, so reads and writes go through an atomic pointer.
	inflight atomic.Pointer[flight]
}

// New creates an Engine. store, params, and bus may be nil for library use.
func New(cfg Config, led *ledger.Ledger, disp *exchange.Dispatcher, lenders *lending.Registry,
	store domain.SettlementStore, params domain.ParamStore, bus domain.SignalBus, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Rewards.Validate(); err != nil {
		return nil, err
	}
	if cfg.MinBurn == nil {
		cfg.MinBurn = uint256.NewInt(0)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Engine{
		led:             led,
		disp:            disp,
		lenders:         lenders,
		self:            cfg.Self,
		admin:           cfg.Admin,
		burnSink:        cfg.BurnSink,
		baseAsset:       cfg.BaseAsset,
		defaultPlatform: cfg.DefaultPlatform,
		clock:           cfg.Clock,
		store:           store,
		params:          params,
		bus:             bus,
		logger:          logger.With(slog.String("component", "engine")),
		rewards: domain.RewardsConfig{
			PercentPPM: cfg.Rewards.PercentPPM,
			MaxAmount:  new(uint256.Int).Set(cfg.Rewards.MaxAmount),
		},
		minBurn: new(uint256.Int).Set(cfg.MinBurn),
	}, nil
}

// Address implements lending.Borrower.
func (e *Engine) Address() common.Address { return e.self }

// BaseAsset returns the designated reward asset.
func (e *Engine) BaseAsset() domain.Asset { return e.baseAsset }

// FlashloanAndArb borrows per the loan plan, executes the route once all
// loans are in hand, repays every loan on the callback unwind, normalizes
// leftover loaned assets into the base asset, and settles the surplus.
func (e *Engine) FlashloanAndArb(ctx context.Context, caller common.Address,
	plan domain.LoanPlan, route domain.Route) (domain.Settlement, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return domain.Settlement{}, domain.ErrReentrancy
	}
	defer e.busy.Store(false)

	if err := plan.Validate(); err != nil {
		return domain.Settlement{}, err
	}
	if err := route.Validate(); err != nil {
		return domain.Settlement{}, err
	}

	f := &flight{caller: caller}
	e.inflight.Store(f)
	defer e.inflight.Store(nil)

	snapshot := e.led.Snapshot()
	settlement, err := e.runFlashExecution(ctx, f, plan, route)
	if err != nil {
		e.led.RevertTo(snapshot)
		e.logger.Warn("flash execution reverted",
			slog.String("caller", caller.Hex()),
			slog.String("error", err.Error()),
		)
		return domain.Settlement{}, err
	}
	e.led.DiscardSnapshots()

	e.recordSettlement(ctx, settlement)
	return settlement, nil
}

func (e *Engine) runFlashExecution(ctx context.Context, f *flight,
	plan domain.LoanPlan, route domain.Route) (domain.Settlement, error) {
	cont := continuation{Index: 0, Plan: plan, Route: route}
	if err := e.issueLoan(ctx, f, cont); err != nil {
		return domain.Settlement{}, err
	}

	// All loans are repaid at this point. Trade any leftover loaned asset
	// back into the base asset before settling.
	for _, req := range plan {
		for _, asset := range req.Assets {
			if err := e.normalizeLeftover(ctx, f, asset); err != nil {
				return domain.Settlement{}, err
			}
		}
	}
	return e.settle(ctx, f)
}

// issueLoan dispatches loan request cont.Index to its lending platform. The
// lender synchronously calls back into OnLoanReceived/OnBatchLoanReceived
// before this returns.
func (e *Engine) issueLoan(ctx context.Context, f *flight, cont continuation) error {
	req := cont.Plan[cont.Index]
	lender, err := e.lenders.Lender(req.Platform)
	if err != nil {
		return err
	}

	payload, err := cont.encode()
	if err != nil {
		return err
	}

	lenderAddr := lender.Address()
	f.expectedLender.Store(&lenderAddr)
	f.sourceAssets = append(f.sourceAssets, req.Assets...)
	for _, amount := range req.Amounts {
		f.sourceAmounts = append(f.sourceAmounts, new(uint256.Int).Set(amount))
	}

	switch l := lender.(type) {
	case lending.BatchLoaner:
		return l.RequestLoan(ctx, e.self, req.Assets, req.Amounts, e, payload)
	case lending.SingleLoaner:
		if len(req.Assets) != 1 {
			return fmt.Errorf("%w: platform %d lends a single asset per request",
				domain.ErrInvalidLoanPlan, req.Platform)
		}
		return l.RequestLoan(ctx, e.self, req.Assets[0], req.Amounts[0], e, payload)
	default:
		return fmt.Errorf("%w: %d is not a lending platform", domain.ErrInvalidExchangeID, req.Platform)
	}
}

// OnLoanReceived implements lending.Borrower for single-asset lenders. It
// continues the loan chain (or runs the route on the last loan) and repays
// this loan before returning control to the lender.
func (e *Engine) OnLoanReceived(ctx context.Context, caller, initiator common.Address,
	asset domain.Asset, amount, fee *uint256.Int, payload []byte) error {
	f, cont, err := e.verifyCallback(caller, initiator, payload)
	if err != nil {
		return err
	}
	if err := e.continueChain(ctx, f, cont); err != nil {
		return err
	}
	return e.repay(caller, asset, amount, fee)
}

// OnBatchLoanReceived implements lending.Borrower for vault-style lenders.
func (e *Engine) OnBatchLoanReceived(ctx context.Context, caller, initiator common.Address,
	assets []domain.Asset, amounts, fees []*uint256.Int, payload []byte) error {
	f, cont, err := e.verifyCallback(caller, initiator, payload)
	if err != nil {
		return err
	}
	if err := e.continueChain(ctx, f, cont); err != nil {
		return err
	}
	for i, asset := range assets {
		if err := e.repay(caller, asset, amounts[i], fees[i]); err != nil {
			return err
		}
	}
	return nil
}

// verifyCallback authorizes a loan callback: an execution must be in flight,
// the embedded initiator must be this engine, and the caller must be the
// exact lender the engine invoked for the current loan. Anything else is an
// attacker-triggered resume.
func (e *Engine) verifyCallback(caller, initiator common.Address, payload []byte) (*flight, continuation, error) {
	f := e.inflight.Load()
	if f == nil || initiator != e.self {
		return nil, continuation{}, domain.ErrInvalidFlashLoanCaller
	}
	want := f.expectedLender.Load()
	if want == nil || caller != *want {
		return nil, continuation{}, domain.ErrInvalidFlashLoanCaller
	}
	cont, err := decodeContinuation(payload)
	if err != nil {
		return nil, continuation{}, err
	}
	if lender, lerr := e.lenders.Lender(cont.Plan[cont.Index].Platform); lerr != nil || lender.Address() != caller {
		return nil, continuation{}, domain.ErrInvalidFlashLoanCaller
	}
	return f, cont, nil
}

// continueChain issues the next loan, or runs the route when this callback
// belongs to the last loan in the plan.
func (e *Engine) continueChain(ctx context.Context, f *flight, cont continuation) error {
	if cont.last() {
		return e.runRoute(ctx, f, cont.Route)
	}
	return e.issueLoan(ctx, f, cont.next())
}

// repay returns principal plus fee to the lender inside its own callback,
// before control unwinds back to it.
func (e *Engine) repay(lenderAddr common.Address, asset domain.Asset, amount, fee *uint256.Int) error {
	owed, overflow := new(uint256.Int).AddOverflow(amount, fee)
	if overflow {
		return fmt.Errorf("arb: repay %s: %w", asset, domain.ErrAmountOverflow)
	}
	if err := e.led.Transfer(asset, e.self, lenderAddr, owed); err != nil {
		return fmt.Errorf("arb: repay %s %s: %w", owed.Dec(), asset, err)
	}
	return nil
}

// FundAndArb executes a route with caller-supplied funds instead of a flash
// loan: the anchor amount is pulled from the caller, the route runs, the
// principal is returned, leftover anchor is normalized into the base asset,
// and the surplus settles exactly as in the flash path.
func (e *Engine) FundAndArb(ctx context.Context, caller common.Address, route domain.Route,
	anchor domain.Asset, amount, value *uint256.Int) (domain.Settlement, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return domain.Settlement{}, domain.ErrReentrancy
	}
	defer e.busy.Store(false)

	if err := route.Validate(); err != nil {
		return domain.Settlement{}, err
	}
	if amount == nil || amount.IsZero() {
		return domain.Settlement{}, domain.ErrZeroAmount
	}
	first, last := route.Anchor()
	if first != anchor || last != anchor {
		return domain.Settlement{}, fmt.Errorf("%w: route is %s -> %s, anchor is %s",
			domain.ErrInvalidAnchor, first, last, anchor)
	}
	if anchor != e.baseAsset && !e.disp.CanTrade(e.defaultPlatform, anchor, e.baseAsset) {
		return domain.Settlement{}, fmt.Errorf("%w: %s", domain.ErrPairNotTradeable, anchor)
	}
	if value == nil {
		value = uint256.NewInt(0)
	}
	if anchor.IsNative() {
		if !value.Eq(amount) {
			return domain.Settlement{}, fmt.Errorf("%w: sent %s, want %s",
				domain.ErrInvalidValue, value.Dec(), amount.Dec())
		}
	} else if !value.IsZero() {
		return domain.Settlement{}, fmt.Errorf("%w: sent %s with token anchor",
			domain.ErrInvalidValue, value.Dec())
	}

	f := &flight{
		caller:        caller,
		sourceAssets:  []domain.Asset{anchor},
		sourceAmounts: []*uint256.Int{new(uint256.Int).Set(amount)},
	}
	e.inflight.Store(f)
	defer e.inflight.Store(nil)

	snapshot := e.led.Snapshot()
	settlement, err := e.runFundedExecution(ctx, f, caller, route, anchor, amount)
	if err != nil {
		e.led.RevertTo(snapshot)
		e.logger.Warn("funded execution reverted",
			slog.String("caller", caller.Hex()),
			slog.String("error", err.Error()),
		)
		return domain.Settlement{}, err
	}
	e.led.DiscardSnapshots()

	e.recordSettlement(ctx, settlement)
	return settlement, nil
}

func (e *Engine) runFundedExecution(ctx context.Context, f *flight, caller common.Address,
	route domain.Route, anchor domain.Asset, amount *uint256.Int) (domain.Settlement, error) {
	// Pull the caller's funds: direct value for native, allowance for tokens.
	if anchor.IsNative() {
		if err := e.led.Transfer(anchor, caller, e.self, amount); err != nil {
			return domain.Settlement{}, err
		}
	} else {
		if err := e.led.TransferFrom(anchor, e.self, caller, e.self, amount); err != nil {
			return domain.Settlement{}, err
		}
	}

	if err := e.runRoute(ctx, f, route); err != nil {
		return domain.Settlement{}, err
	}

	// Return the principal before accounting the surplus.
	if err := e.led.Transfer(anchor, e.self, caller, amount); err != nil {
		return domain.Settlement{}, fmt.Errorf("arb: return principal: %w", err)
	}

	if err := e.normalizeLeftover(ctx, f, anchor); err != nil {
		return domain.Settlement{}, err
	}
	return e.settle(ctx, f)
}

// normalizeLeftover trades the engine's remaining balance of asset into the
// base asset on the default venue. A no-op when the asset already is the
// base asset or nothing is held.
func (e *Engine) normalizeLeftover(ctx context.Context, f *flight, asset domain.Asset) error {
	if asset == e.baseAsset {
		return nil
	}
	held := e.led.BalanceOf(asset, e.self)
	if held.IsZero() {
		return nil
	}
	step := domain.RouteStep{
		Platform: e.defaultPlatform,
		Source:   asset,
		Target:   e.baseAsset,
		Amount:   held,
	}
	out, err := e.disp.Trade(ctx, step, held)
	if err != nil {
		return fmt.Errorf("arb: normalize %s: %w", asset, err)
	}
	f.platforms = append(f.platforms, e.defaultPlatform)
	f.pairs = append(f.pairs, domain.AssetPair{Source: asset, Target: e.baseAsset})
	e.logger.Debug("leftover normalized",
		slog.String("asset", asset.String()),
		slog.String("amount_in", held.Dec()),
		slog.String("amount_out", out.Dec()),
	)
	return nil
}

// recordSettlement persists and publishes a committed settlement. Failures
// here do not undo the execution; they are logged and the event is the
// caller's receipt.
func (e *Engine) recordSettlement(ctx context.Context, s domain.Settlement) {
	e.logger.Info("arbitrage settled",
		slog.String("id", s.ID),
		slog.String("caller", s.Caller.Hex()),
		slog.Int("hops", len(s.Pairs)),
		slog.String("burn", s.Burn.Dec()),
		slog.String("reward", s.Reward.Dec()),
	)
	if e.store != nil {
		if err := e.store.Create(ctx, s); err != nil {
			e.logger.Warn("settlement record failed", slog.String("error", err.Error()))
		}
	}
	e.publishEvent(ctx, "ch:settlement", "settlement", s)
}
