package exchange_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
	"github.com/bancorprotocol/bancor-arbitrage/internal/exchange"
	"github.com/bancorprotocol/bancor-arbitrage/internal/ledger"
	"github.com/bancorprotocol/bancor-arbitrage/internal/platform/carbon"
	"github.com/bancorprotocol/bancor-arbitrage/internal/platform/pathamm"
	"github.com/bancorprotocol/bancor-arbitrage/internal/platform/poolamm"
	"github.com/bancorprotocol/bancor-arbitrage/internal/platform/wnative"
)

const (
	pathID  domain.PlatformID = 1
	poolID  domain.PlatformID = 2
	orderID domain.PlatformID = 3
)

var (
	trader   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	dustSink = common.HexToAddress("0x00000000000000000000000000000000000000dd")

	pathAddr  = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	poolAddr  = common.HexToAddress("0x0000000000000000000000000000000000000e02")
	orderAddr = common.HexToAddress("0x0000000000000000000000000000000000000e03")
	wethAddr  = common.HexToAddress("0x0000000000000000000000000000000000001eec")

	tkn1 = domain.TokenAsset(common.HexToAddress("0x0000000000000000000000000000000000000701"))
	tkn2 = domain.TokenAsset(common.HexToAddress("0x0000000000000000000000000000000000000702"))
	brg  = domain.TokenAsset(common.HexToAddress("0x0000000000000000000000000000000000000703"))
	weth = domain.TokenAsset(wethAddr)
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func amt(v uint64) *uint256.Int { return uint256.NewInt(v) }

// fixture builds a ledger with one venue of each family, seeded liquidity,
// and a dispatcher trading on behalf of trader.
type fixture struct {
	led  *ledger.Ledger
	disp *exchange.Dispatcher
	now  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	led := ledger.New()
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	path := pathamm.New(pathID, pathAddr, led, clock)
	path.AddPool(tkn1, tkn2, 2, 1, amt(5)) // 2x plus a fixed bonus
	path.AddPool(tkn1, brg, 1, 1, nil)
	path.AddPool(brg, tkn2, 3, 1, nil)
	pool := poolamm.New(poolID, poolAddr, led, clock)
	pool.AddPool(weth, tkn1, 3000, 1, 1, nil)
	book := carbon.New(orderID, orderAddr, led, clock)
	book.AddStrategy(amt(1), tkn1, tkn2, amt(60), 1, 1)

	reg := exchange.NewRegistry()
	require.NoError(t, reg.Register(path))
	require.NoError(t, reg.Register(pool))
	require.NoError(t, reg.Register(book))

	// Venue inventory and trader funds.
	require.NoError(t, led.Mint(tkn2, pathAddr, amt(1_000_000)))
	require.NoError(t, led.Mint(tkn1, poolAddr, amt(1_000_000)))
	require.NoError(t, led.Mint(tkn2, orderAddr, amt(1_000_000)))
	require.NoError(t, led.Mint(tkn1, trader, amt(1_000)))
	require.NoError(t, led.Mint(domain.NativeAsset(), trader, amt(1_000)))

	wrapper := wnative.New(led, wethAddr, weth)
	disp := exchange.NewDispatcher(reg, led, wrapper, trader, dustSink, clock, discard())
	return &fixture{led: led, disp: disp, now: now}
}

func TestTradePathDirect(t *testing.T) {
	f := newFixture(t)
	step := domain.RouteStep{
		Platform: pathID, Source: tkn1, Target: tkn2,
		Path: &domain.PathParams{},
	}

	out, err := f.disp.Trade(context.Background(), step, amt(100))
	require.NoError(t, err)
	assert.Equal(t, amt(205), out) // 100*2 + bonus 5
	assert.Equal(t, amt(900), f.led.BalanceOf(tkn1, trader))
	assert.Equal(t, amt(205), f.led.BalanceOf(tkn2, trader))
}

func TestTradePathViaBridge(t *testing.T) {
	f := newFixture(t)
	step := domain.RouteStep{
		Platform: pathID, Source: tkn1, Target: tkn2,
		Path: &domain.PathParams{Bridge: brg},
	}

	out, err := f.disp.Trade(context.Background(), step, amt(100))
	require.NoError(t, err)
	assert.Equal(t, amt(300), out) // 100*1 then *3
}

func TestTradeRejectsSameSourceTarget(t *testing.T) {
	f := newFixture(t)
	step := domain.RouteStep{Platform: pathID, Source: tkn1, Target: tkn1, Path: &domain.PathParams{}}

	_, err := f.disp.Trade(context.Background(), step, amt(1))
	require.ErrorIs(t, err, domain.ErrSameSourceTarget)
}

func TestTradeRejectsZeroAmount(t *testing.T) {
	f := newFixture(t)
	step := domain.RouteStep{Platform: pathID, Source: tkn1, Target: tkn2, Path: &domain.PathParams{}}

	_, err := f.disp.Trade(context.Background(), step, amt(0))
	require.ErrorIs(t, err, domain.ErrZeroAmount)

	_, err = f.disp.Trade(context.Background(), step, nil)
	require.ErrorIs(t, err, domain.ErrZeroAmount)
}

func TestTradeRejectsExpiredDeadline(t *testing.T) {
	f := newFixture(t)
	step := domain.RouteStep{
		Platform: pathID, Source: tkn1, Target: tkn2,
		Deadline: f.now.Add(-time.Second),
		Path:     &domain.PathParams{},
	}

	_, err := f.disp.Trade(context.Background(), step, amt(1))
	require.ErrorIs(t, err, domain.ErrDeadlineExpired)
}

func TestTradeUnknownPlatform(t *testing.T) {
	f := newFixture(t)
	step := domain.RouteStep{Platform: 99, Source: tkn1, Target: tkn2}

	_, err := f.disp.Trade(context.Background(), step, amt(1))
	require.ErrorIs(t, err, domain.ErrInvalidExchangeID)
}

func TestTradeEnforcesMinReturn(t *testing.T) {
	f := newFixture(t)
	step := domain.RouteStep{
		Platform: pathID, Source: tkn1, Target: tkn2,
		MinReturn: amt(1_000_000),
		Path:      &domain.PathParams{},
	}

	_, err := f.disp.Trade(context.Background(), step, amt(100))
	require.ErrorIs(t, err, domain.ErrInsufficientTarget)
}

func TestTradePoolWrapsNativeInput(t *testing.T) {
	f := newFixture(t)
	step := domain.RouteStep{
		Platform: poolID, Source: domain.NativeAsset(), Target: tkn1,
		Pool: &domain.PoolParams{FeeTier: 3000},
	}

	out, err := f.disp.Trade(context.Background(), step, amt(100))
	require.NoError(t, err)
	assert.Equal(t, amt(100), out)
	assert.Equal(t, amt(900), f.led.BalanceOf(domain.NativeAsset(), trader))
	assert.Equal(t, amt(1_100), f.led.BalanceOf(tkn1, trader))
	// The deposited native now backs minted wrapped tokens held by the pool.
	assert.Equal(t, amt(100), f.led.BalanceOf(weth, poolAddr))
}

func TestTradePoolRequiresParams(t *testing.T) {
	f := newFixture(t)
	step := domain.RouteStep{Platform: poolID, Source: weth, Target: tkn1}

	_, err := f.disp.Trade(context.Background(), step, amt(1))
	require.Error(t, err)
}

func TestTradeOrdersFillSumMustMatch(t *testing.T) {
	f := newFixture(t)
	step := domain.RouteStep{
		Platform: orderID, Source: tkn1, Target: tkn2,
		Orders: &domain.OrderParams{Fills: []domain.OrderFill{
			{StrategyID: amt(1), Amount: amt(30)},
		}},
	}

	_, err := f.disp.Trade(context.Background(), step, amt(40))
	require.Error(t, err)
}

func TestTradeOrdersMinTargetCeiling(t *testing.T) {
	f := newFixture(t)
	ceiling := new(uint256.Int).Lsh(uint256.NewInt(1), 128) // 2^128 > ceiling
	step := domain.RouteStep{
		Platform: orderID, Source: tkn1, Target: tkn2,
		MinReturn: ceiling,
		Orders:    &domain.OrderParams{Fills: []domain.OrderFill{{StrategyID: amt(1), Amount: amt(10)}}},
	}

	_, err := f.disp.Trade(context.Background(), step, amt(10))
	require.ErrorIs(t, err, domain.ErrMinTargetTooHigh)
}

func TestTradeOrdersSweepsDust(t *testing.T) {
	f := newFixture(t)
	// Strategy capacity is 60; a 100 fill leaves 40 unconsumed.
	step := domain.RouteStep{
		Platform: orderID, Source: tkn1, Target: tkn2,
		Orders: &domain.OrderParams{Fills: []domain.OrderFill{{StrategyID: amt(1), Amount: amt(100)}}},
	}

	out, err := f.disp.Trade(context.Background(), step, amt(100))
	require.NoError(t, err)
	assert.Equal(t, amt(60), out)
	assert.Equal(t, amt(40), f.led.BalanceOf(tkn1, dustSink))
	// Trader spent only the consumed 60.
	assert.Equal(t, amt(900), f.led.BalanceOf(tkn1, trader))
}

func TestTradeOrdersRevertReleasesCapacity(t *testing.T) {
	f := newFixture(t)
	fills := []domain.OrderFill{{StrategyID: amt(1), Amount: amt(60)}}

	snap := f.led.Snapshot()
	failing := domain.RouteStep{
		Platform: orderID, Source: tkn1, Target: tkn2,
		MinReturn: amt(1_000_000),
		Orders:    &domain.OrderParams{Fills: fills},
	}
	_, err := f.disp.Trade(context.Background(), failing, amt(60))
	require.ErrorIs(t, err, domain.ErrInsufficientTarget)
	f.led.RevertTo(snap)

	// The failed trade released the strategy capacity it had consumed, so an
	// identical retry fills in full.
	step := domain.RouteStep{
		Platform: orderID, Source: tkn1, Target: tkn2,
		Orders: &domain.OrderParams{Fills: fills},
	}
	out, err := f.disp.Trade(context.Background(), step, amt(60))
	require.NoError(t, err)
	assert.Equal(t, amt(60), out)
	assert.Equal(t, amt(940), f.led.BalanceOf(tkn1, trader))
}

func TestTradeRaisesAllowanceLazily(t *testing.T) {
	f := newFixture(t)
	step := domain.RouteStep{Platform: pathID, Source: tkn1, Target: tkn2, Path: &domain.PathParams{}}

	_, err := f.disp.Trade(context.Background(), step, amt(10))
	require.NoError(t, err)
	assert.Equal(t, ledger.MaxAllowance, f.led.Allowance(tkn1, trader, pathAddr))
}

func TestCanTrade(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.disp.CanTrade(pathID, tkn1, tkn2))
	assert.False(t, f.disp.CanTrade(pathID, tkn2, brg))
	assert.False(t, f.disp.CanTrade(99, tkn1, tkn2))
}
