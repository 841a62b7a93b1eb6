package arb

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
	"github.com/bancorprotocol/bancor-arbitrage/internal/exchange"
	"github.com/bancorprotocol/bancor-arbitrage/internal/ledger"
	"github.com/bancorprotocol/bancor-arbitrage/internal/lending"
	"github.com/bancorprotocol/bancor-arbitrage/internal/platform/pathamm"
)

const (
	venueID      domain.PlatformID = 1
	singleLoanID domain.PlatformID = 10
	vaultLoanID  domain.PlatformID = 11
)

var (
	self       = common.HexToAddress("0x0000000000000000000000000000000000000a4b")
	admin      = common.HexToAddress("0x0000000000000000000000000000000000000ad1")
	burnSink   = common.HexToAddress("0x000000000000000000000000000000000000dead")
	dustSink   = common.HexToAddress("0x000000000000000000000000000000000000d057")
	caller     = common.HexToAddress("0x00000000000000000000000000000000000000ca")
	venueAddr  = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	singleAddr = common.HexToAddress("0x0000000000000000000000000000000000000f10")
	vaultAddr  = common.HexToAddress("0x0000000000000000000000000000000000000f11")

	bnt  = domain.TokenAsset(common.HexToAddress("0x0000000000000000000000000000000000000b27"))
	tkn1 = domain.TokenAsset(common.HexToAddress("0x0000000000000000000000000000000000000701"))
	tkn2 = domain.TokenAsset(common.HexToAddress("0x0000000000000000000000000000000000000702"))
	tkn3 = domain.TokenAsset(common.HexToAddress("0x0000000000000000000000000000000000000703"))
)

func amt(v uint64) *uint256.Int { return uint256.NewInt(v) }

// e18 scales n whole tokens to 18-decimal units.
func e18(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.MustFromDecimal("1000000000000000000"))
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeParams struct {
	rewards     *domain.RewardsConfig
	minBurn     *uint256.Int
	rewardSaves int
	burnSaves   int
}

func (p *fakeParams) LoadRewards(context.Context) (domain.RewardsConfig, bool, error) {
	if p.rewards == nil {
		return domain.RewardsConfig{}, false, nil
	}
	return *p.rewards, true, nil
}

func (p *fakeParams) SaveRewards(_ context.Context, cfg domain.RewardsConfig) error {
	p.rewards = &cfg
	p.rewardSaves++
	return nil
}

func (p *fakeParams) LoadMinBurn(context.Context) (*uint256.Int, bool, error) {
	if p.minBurn == nil {
		return nil, false, nil
	}
	return p.minBurn, true, nil
}

func (p *fakeParams) SaveMinBurn(_ context.Context, v *uint256.Int) error {
	p.minBurn = v
	p.burnSaves++
	return nil
}

type fakeBus struct {
	published []string // channel names in publish order
}

func (b *fakeBus) Publish(_ context.Context, channel string, _ []byte) error {
	b.published = append(b.published, channel)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

type fixture struct {
	led    *ledger.Ledger
	eng    *Engine
	venue  *pathamm.Venue
	params *fakeParams
	bus    *fakeBus
}

// newFixture builds a three-asset market on one path venue: every pair trades
// 1:1 plus a fixed 300e18 bonus per hop, so a circular route accretes value.
func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	led := ledger.New()
	clock := func() time.Time { return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC) }

	venue := pathamm.New(venueID, venueAddr, led, clock)
	for _, pair := range [][2]domain.Asset{
		{bnt, tkn1}, {tkn1, bnt},
		{tkn1, tkn2}, {tkn2, tkn1},
		{tkn2, bnt}, {bnt, tkn2},
	} {
		venue.AddPool(pair[0], pair[1], 1, 1, e18(300))
	}
	for _, asset := range []domain.Asset{bnt, tkn1, tkn2} {
		require.NoError(t, led.Mint(asset, venueAddr, e18(1_000_000)))
	}

	reg := exchange.NewRegistry()
	require.NoError(t, reg.Register(venue))
	disp := exchange.NewDispatcher(reg, led, nil, self, dustSink, clock, discard())

	lenders := lending.NewRegistry()
	require.NoError(t, lenders.Register(lending.NewSingleLender(singleLoanID, singleAddr, led, 0)))
	require.NoError(t, lenders.Register(lending.NewVaultLender(vaultLoanID, vaultAddr, led, 0)))
	require.NoError(t, led.Mint(bnt, singleAddr, e18(1_000_000)))
	require.NoError(t, led.Mint(tkn1, vaultAddr, e18(1_000_000)))

	if cfg.Self == (common.Address{}) {
		cfg = Config{
			Self:            self,
			Admin:           admin,
			BurnSink:        burnSink,
			BaseAsset:       bnt,
			DefaultPlatform: venueID,
			Rewards:         cfg.Rewards,
			MinBurn:         cfg.MinBurn,
		}
	}
	if cfg.Rewards.MaxAmount == nil {
		cfg.Rewards = domain.RewardsConfig{PercentPPM: 40_000, MaxAmount: e18(1_000_000)}
	}
	cfg.Clock = clock

	params := &fakeParams{}
	bus := &fakeBus{}
	eng, err := New(cfg, led, disp, lenders, nil, params, bus, discard())
	require.NoError(t, err)
	return &fixture{led: led, eng: eng, venue: venue, params: params, bus: bus}
}

// circularRoute is bnt -> tkn1 -> tkn2 -> bnt, all hops on the path venue.
func circularRoute() domain.Route {
	return domain.Route{
		{Platform: venueID, Source: bnt, Target: tkn1, Path: &domain.PathParams{}},
		{Platform: venueID, Source: tkn1, Target: tkn2, Path: &domain.PathParams{}},
		{Platform: venueID, Source: tkn2, Target: bnt, Path: &domain.PathParams{}},
	}
}

func singleLoanPlan(amount *uint256.Int) domain.LoanPlan {
	return domain.LoanPlan{{Platform: singleLoanID, Assets: []domain.Asset{bnt}, Amounts: []*uint256.Int{amount}}}
}

func TestFlashloanAndArbSettles(t *testing.T) {
	f := newFixture(t, Config{})

	// Borrow 1000 base units; three 1:1 hops each add 300e18, so the surplus
	// after repayment is exactly 900e18.
	s, err := f.eng.FlashloanAndArb(context.Background(), caller, singleLoanPlan(amt(1_000)), circularRoute())
	require.NoError(t, err)

	assert.Equal(t, e18(36), s.Reward) // 900e18 * 4%
	assert.Equal(t, e18(864), s.Burn)
	assert.Equal(t, []domain.PlatformID{venueID, venueID, venueID}, s.Platforms)
	assert.Len(t, s.Pairs, 3)
	assert.Equal(t, []domain.Asset{bnt}, s.SourceAssets)
	assert.Equal(t, []*uint256.Int{amt(1_000)}, s.SourceAmounts)
	assert.NotEmpty(t, s.ID)

	assert.Equal(t, e18(36), f.led.BalanceOf(bnt, caller))
	assert.Equal(t, e18(864), f.led.BalanceOf(bnt, burnSink))
	// Lender liquidity fully restored, engine holds nothing.
	assert.Equal(t, e18(1_000_000), f.led.BalanceOf(bnt, singleAddr))
	assert.True(t, f.led.BalanceOf(bnt, self).IsZero())

	assert.Equal(t, []string{"ch:settlement"}, f.bus.published)
}

func TestFlashloanAndArbRevertsAtomically(t *testing.T) {
	f := newFixture(t, Config{})

	route := circularRoute()
	route[2].MinReturn = e18(1_000_000) // unreachable target on the last hop

	_, err := f.eng.FlashloanAndArb(context.Background(), caller, singleLoanPlan(amt(1_000)), route)
	require.ErrorIs(t, err, domain.ErrInsufficientTarget)

	// Everything is back where it started.
	assert.True(t, f.led.BalanceOf(bnt, self).IsZero())
	assert.True(t, f.led.BalanceOf(tkn1, self).IsZero())
	assert.True(t, f.led.BalanceOf(tkn2, self).IsZero())
	assert.True(t, f.led.BalanceOf(bnt, caller).IsZero())
	assert.Equal(t, e18(1_000_000), f.led.BalanceOf(bnt, singleAddr))
	assert.Empty(t, f.bus.published)
}

func TestRewardCappedAtMaxAmount(t *testing.T) {
	f := newFixture(t, Config{
		Rewards: domain.RewardsConfig{PercentPPM: 40_000, MaxAmount: amt(100)},
	})

	s, err := f.eng.FlashloanAndArb(context.Background(), caller, singleLoanPlan(amt(1_000)), circularRoute())
	require.NoError(t, err)

	assert.Equal(t, amt(100), s.Reward)
	assert.Equal(t, new(uint256.Int).Sub(e18(900), amt(100)), s.Burn)
}

func TestBurnBelowFloorReverts(t *testing.T) {
	f := newFixture(t, Config{MinBurn: e18(1_000)}) // burn would be 864e18

	_, err := f.eng.FlashloanAndArb(context.Background(), caller, singleLoanPlan(amt(1_000)), circularRoute())
	require.ErrorIs(t, err, domain.ErrInsufficientBurn)

	assert.True(t, f.led.BalanceOf(bnt, burnSink).IsZero())
	assert.Equal(t, e18(1_000_000), f.led.BalanceOf(bnt, singleAddr))
}

func TestCarryForwardCapsOversizedAmounts(t *testing.T) {
	f := newFixture(t, Config{})

	route := circularRoute()
	route[0].Amount = amt(1_000)
	route[1].Amount = e18(999_999_999) // far above the held balance: capped
	route[2].Amount = nil              // nil means full balance

	s, err := f.eng.FlashloanAndArb(context.Background(), caller, singleLoanPlan(amt(1_000)), route)
	require.NoError(t, err)
	assert.Equal(t, e18(36), s.Reward)
	assert.Equal(t, e18(864), s.Burn)
}

func TestIntermediateDustStaysOnEngine(t *testing.T) {
	f := newFixture(t, Config{})

	route := circularRoute()
	// Hop 2 deliberately trades only part of the tkn1 balance. The remainder
	// is neither loaned nor the base asset, so it stays on the engine account
	// instead of being normalized or swept.
	route[1].Amount = amt(1_000)

	s, err := f.eng.FlashloanAndArb(context.Background(), caller, singleLoanPlan(amt(1_000)), route)
	require.NoError(t, err)

	// Hops 2 and 3 each add one bonus on the partial amount, leaving a 600e18
	// surplus instead of 900e18.
	assert.Equal(t, e18(24), s.Reward) // 600e18 * 4%
	assert.Equal(t, e18(576), s.Burn)
	assert.Equal(t, e18(300), f.led.BalanceOf(tkn1, f.eng.Address()))
	assert.True(t, f.led.BalanceOf(tkn2, f.eng.Address()).IsZero())
}

func TestChainedVaultLoan(t *testing.T) {
	f := newFixture(t, Config{})

	plan := domain.LoanPlan{
		{Platform: singleLoanID, Assets: []domain.Asset{bnt}, Amounts: []*uint256.Int{amt(1_000)}},
		{Platform: vaultLoanID, Assets: []domain.Asset{tkn1}, Amounts: []*uint256.Int{amt(500)}},
	}
	route := circularRoute()
	// Leave the 500 borrowed tkn1 untouched for repayment on the unwind.
	route[1].Amount = new(uint256.Int).Add(amt(1_000), e18(300))

	s, err := f.eng.FlashloanAndArb(context.Background(), caller, plan, route)
	require.NoError(t, err)

	assert.Equal(t, e18(36), s.Reward)
	assert.Equal(t, []domain.Asset{bnt, tkn1}, s.SourceAssets)
	assert.Equal(t, []*uint256.Int{amt(1_000), amt(500)}, s.SourceAmounts)
	assert.Equal(t, e18(1_000_000), f.led.BalanceOf(tkn1, vaultAddr))
}

func TestDirectCallbackRejected(t *testing.T) {
	f := newFixture(t, Config{})

	err := f.eng.OnLoanReceived(context.Background(), singleAddr, self, bnt, amt(1), amt(0), nil)
	require.ErrorIs(t, err, domain.ErrInvalidFlashLoanCaller)

	err = f.eng.OnBatchLoanReceived(context.Background(), vaultAddr, self,
		[]domain.Asset{tkn1}, []*uint256.Int{amt(1)}, []*uint256.Int{amt(0)}, nil)
	require.ErrorIs(t, err, domain.ErrInvalidFlashLoanCaller)
}

func TestDirectCallbackRejectedDuringExecution(t *testing.T) {
	f := newFixture(t, Config{})
	attacker := common.HexToAddress("0x00000000000000000000000000000000000000ba")

	// Probing callbacks race real executions; the attacker address is never
	// the awaited lender, so every probe must be rejected.
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				err := f.eng.OnLoanReceived(context.Background(), attacker, self, bnt, amt(1), amt(0), nil)
				assert.ErrorIs(t, err, domain.ErrInvalidFlashLoanCaller)
			}
		}()
	}
	for range 4 {
		_, err := f.eng.FlashloanAndArb(context.Background(), caller, singleLoanPlan(amt(1_000)), circularRoute())
		require.NoError(t, err)
	}
	wg.Wait()
}

func TestFlashloanValidatesInputs(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, err := f.eng.FlashloanAndArb(ctx, caller, domain.LoanPlan{}, circularRoute())
	require.ErrorIs(t, err, domain.ErrInvalidLoanPlan)

	_, err = f.eng.FlashloanAndArb(ctx, caller, singleLoanPlan(amt(1)), domain.Route{circularRoute()[0]})
	require.ErrorIs(t, err, domain.ErrInvalidRouteLength)

	// Single lenders take one asset per request.
	plan := domain.LoanPlan{{Platform: singleLoanID,
		Assets: []domain.Asset{bnt, tkn1}, Amounts: []*uint256.Int{amt(1), amt(1)}}}
	_, err = f.eng.FlashloanAndArb(ctx, caller, plan, circularRoute())
	require.ErrorIs(t, err, domain.ErrInvalidLoanPlan)
}

func TestFundAndArbSettles(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.led.Mint(tkn1, caller, amt(1_000)))
	f.led.Approve(tkn1, caller, self, ledger.MaxAllowance)

	route := domain.Route{
		{Platform: venueID, Source: tkn1, Target: tkn2, Path: &domain.PathParams{}},
		{Platform: venueID, Source: tkn2, Target: tkn1, Path: &domain.PathParams{}},
	}

	s, err := f.eng.FundAndArb(context.Background(), caller, route, tkn1, amt(1_000), nil)
	require.NoError(t, err)

	// Two hops leave 600e18 surplus tkn1, normalized into bnt with one more
	// bonus hop: 900e18 total, 4% reward.
	assert.Equal(t, e18(36), s.Reward)
	assert.Equal(t, e18(864), s.Burn)
	assert.Equal(t, []domain.PlatformID{venueID, venueID, venueID}, s.Platforms)
	// Principal came back to the caller alongside the reward.
	assert.Equal(t, amt(1_000), f.led.BalanceOf(tkn1, caller))
	assert.Equal(t, e18(36), f.led.BalanceOf(bnt, caller))
}

func TestFundAndArbNativeAnchor(t *testing.T) {
	f := newFixture(t, Config{})
	native := domain.NativeAsset()
	f.venue.AddPool(native, tkn1, 1, 1, e18(300))
	f.venue.AddPool(tkn1, native, 1, 1, e18(300))
	f.venue.AddPool(native, bnt, 1, 1, e18(300))
	require.NoError(t, f.led.Mint(native, venueAddr, e18(1_000_000)))
	require.NoError(t, f.led.Mint(native, caller, amt(1_000)))

	route := domain.Route{
		{Platform: venueID, Source: native, Target: tkn1, Path: &domain.PathParams{}},
		{Platform: venueID, Source: tkn1, Target: native, Path: &domain.PathParams{}},
	}

	// Sent value must match the anchored amount exactly.
	_, err := f.eng.FundAndArb(context.Background(), caller, route, native, amt(1_000), amt(999))
	require.ErrorIs(t, err, domain.ErrInvalidValue)

	s, err := f.eng.FundAndArb(context.Background(), caller, route, native, amt(1_000), amt(1_000))
	require.NoError(t, err)

	assert.Equal(t, e18(36), s.Reward)
	assert.Equal(t, e18(864), s.Burn)
	assert.Equal(t, []domain.PlatformID{venueID, venueID, venueID}, s.Platforms)
	// Principal returned in native, reward paid in the base asset.
	assert.Equal(t, amt(1_000), f.led.BalanceOf(native, caller))
	assert.Equal(t, e18(36), f.led.BalanceOf(bnt, caller))
}

func TestFundAndArbValidation(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	route := domain.Route{
		{Platform: venueID, Source: tkn1, Target: tkn2, Path: &domain.PathParams{}},
		{Platform: venueID, Source: tkn2, Target: tkn1, Path: &domain.PathParams{}},
	}

	_, err := f.eng.FundAndArb(ctx, caller, route, tkn1, amt(0), nil)
	require.ErrorIs(t, err, domain.ErrZeroAmount)

	// Anchor must match the route's endpoints.
	_, err = f.eng.FundAndArb(ctx, caller, route, tkn2, amt(1), nil)
	require.ErrorIs(t, err, domain.ErrInvalidAnchor)

	// Token anchor with native value attached.
	_, err = f.eng.FundAndArb(ctx, caller, route, tkn1, amt(10), amt(10))
	require.ErrorIs(t, err, domain.ErrInvalidValue)

	// Anchor with no path back to the base asset.
	badRoute := domain.Route{
		{Platform: venueID, Source: tkn3, Target: tkn2, Path: &domain.PathParams{}},
		{Platform: venueID, Source: tkn2, Target: tkn3, Path: &domain.PathParams{}},
	}
	_, err = f.eng.FundAndArb(ctx, caller, badRoute, tkn3, amt(10), nil)
	require.ErrorIs(t, err, domain.ErrPairNotTradeable)
}

func TestSetRewards(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	next := domain.RewardsConfig{PercentPPM: 50_000, MaxAmount: e18(10)}
	require.ErrorIs(t, f.eng.SetRewards(ctx, caller, next), domain.ErrUnauthorized)

	require.NoError(t, f.eng.SetRewards(ctx, admin, next))
	got := f.eng.Rewards()
	assert.Equal(t, uint32(50_000), got.PercentPPM)
	assert.Equal(t, e18(10), got.MaxAmount)
	assert.Equal(t, 1, f.params.rewardSaves)
	assert.Equal(t, []string{"ch:config"}, f.bus.published)

	// Setting the same value again neither persists nor publishes.
	require.NoError(t, f.eng.SetRewards(ctx, admin, next))
	assert.Equal(t, 1, f.params.rewardSaves)
	assert.Len(t, f.bus.published, 1)

	// Invalid configs are rejected before any mutation.
	require.Error(t, f.eng.SetRewards(ctx, admin, domain.RewardsConfig{PercentPPM: 1}))
}

func TestSetMinBurn(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	require.ErrorIs(t, f.eng.SetMinBurn(ctx, caller, amt(5)), domain.ErrUnauthorized)
	require.ErrorIs(t, f.eng.SetMinBurn(ctx, admin, nil), domain.ErrInvalidValue)

	require.NoError(t, f.eng.SetMinBurn(ctx, admin, amt(5)))
	assert.Equal(t, amt(5), f.eng.MinBurn())
	assert.Equal(t, 1, f.params.burnSaves)

	// No-op update.
	require.NoError(t, f.eng.SetMinBurn(ctx, admin, amt(5)))
	assert.Equal(t, 1, f.params.burnSaves)
}

func TestContinuationRoundTrip(t *testing.T) {
	cont := continuation{Index: 1, Plan: singleLoanPlan(amt(7)), Route: circularRoute()}
	cont.Plan = append(cont.Plan, cont.Plan[0])

	data, err := cont.encode()
	require.NoError(t, err)

	got, err := decodeContinuation(data)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Index)
	assert.Len(t, got.Plan, 2)
	assert.Len(t, got.Route, 3)
	assert.True(t, got.last())

	_, err = decodeContinuation([]byte(`{"index":5,"plan":[],"route":[]}`))
	require.Error(t, err)
	_, err = decodeContinuation([]byte("not json"))
	require.Error(t, err)
}
