package app

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/bancorprotocol/bancor-arbitrage/internal/arb"
	"github.com/bancorprotocol/bancor-arbitrage/internal/config"
	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
	"github.com/bancorprotocol/bancor-arbitrage/internal/exchange"
	"github.com/bancorprotocol/bancor-arbitrage/internal/ledger"
	"github.com/bancorprotocol/bancor-arbitrage/internal/lending"
	"github.com/bancorprotocol/bancor-arbitrage/internal/platform/carbon"
	"github.com/bancorprotocol/bancor-arbitrage/internal/platform/pathamm"
	"github.com/bancorprotocol/bancor-arbitrage/internal/platform/poolamm"
	"github.com/bancorprotocol/bancor-arbitrage/internal/platform/wnative"
)

// buildEngine constructs the full market topology from configuration (ledger,
// venues, lenders, seeded balances) and assembles the arbitrage engine on top
// of it. Durable parameters persisted in the param store override the
// configured initial values.
func buildEngine(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*arb.Engine, error) {
	led := ledger.New()

	var wrapper exchange.Wrapper
	if cfg.Topology.WrappedNative != "" {
		if !common.IsHexAddress(cfg.Topology.WrappedNative) {
			return nil, fmt.Errorf("wrapped_native: %q is not a valid address", cfg.Topology.WrappedNative)
		}
		addr := common.HexToAddress(cfg.Topology.WrappedNative)
		wrapper = wnative.New(led, addr, domain.TokenAsset(addr))
	}

	reg := exchange.NewRegistry()
	for _, vc := range cfg.Topology.Venues {
		v, err := buildVenue(vc, led)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(v); err != nil {
			return nil, err
		}
	}

	lenders := lending.NewRegistry()
	for _, lc := range cfg.Topology.Lenders {
		if err := buildLender(lc, led, lenders); err != nil {
			return nil, err
		}
	}

	for i, b := range cfg.Topology.Balances {
		if err := seedBalance(led, b, common.Address{}); err != nil {
			return nil, fmt.Errorf("balances[%d]: %w", i, err)
		}
	}

	self := common.HexToAddress(cfg.Engine.Self)
	dustSink := common.HexToAddress(cfg.Engine.DustSink)
	disp := exchange.NewDispatcher(reg, led, wrapper, self, dustSink, nil, logger)

	baseAsset, err := domain.ParseAsset(cfg.Engine.BaseAsset)
	if err != nil {
		return nil, fmt.Errorf("base_asset: %w", err)
	}
	maxAmount, err := uint256.FromDecimal(cfg.Engine.RewardsMaxAmount)
	if err != nil {
		return nil, fmt.Errorf("rewards_max_amount: %w", err)
	}
	minBurn, err := uint256.FromDecimal(cfg.Engine.MinBurn)
	if err != nil {
		return nil, fmt.Errorf("min_burn: %w", err)
	}

	engineCfg := arb.Config{
		Self:            self,
		Admin:           common.HexToAddress(cfg.Engine.Admin),
		BurnSink:        common.HexToAddress(cfg.Engine.BurnSink),
		BaseAsset:       baseAsset,
		DefaultPlatform: domain.PlatformID(cfg.Engine.DefaultPlatform),
		Rewards: domain.RewardsConfig{
			PercentPPM: uint32(cfg.Engine.RewardsPercentPPM),
			MaxAmount:  maxAmount,
		},
		MinBurn: minBurn,
	}

	// Values persisted by earlier admin updates win over the TOML initials.
	if deps.ParamStore != nil {
		if rewards, ok, err := deps.ParamStore.LoadRewards(ctx); err != nil {
			return nil, fmt.Errorf("load rewards: %w", err)
		} else if ok {
			engineCfg.Rewards = rewards
		}
		if mb, ok, err := deps.ParamStore.LoadMinBurn(ctx); err != nil {
			return nil, fmt.Errorf("load min burn: %w", err)
		} else if ok {
			engineCfg.MinBurn = mb
		}
	}

	return arb.New(engineCfg, led, disp, lenders,
		deps.SettlementStore, deps.ParamStore, deps.SignalBus, logger)
}

// buildVenue constructs one trading venue with its configured liquidity
// parameters.
func buildVenue(vc config.VenueConfig, led *ledger.Ledger) (exchange.Venue, error) {
	id := domain.PlatformID(vc.ID)
	addr := common.HexToAddress(vc.Address)

	switch domain.Family(vc.Family) {
	case domain.FamilyPathAMM:
		v := pathamm.New(id, addr, led, nil)
		for i, p := range vc.Pools {
			source, target, rateNum, rateDen, bonus, err := parsePool(p)
			if err != nil {
				return nil, fmt.Errorf("venue %d pool %d: %w", vc.ID, i, err)
			}
			v.AddPool(source, target, rateNum, rateDen, bonus)
		}
		return v, nil

	case domain.FamilyPoolAMM:
		v := poolamm.New(id, addr, led, nil)
		for i, p := range vc.Pools {
			source, target, rateNum, rateDen, bonus, err := parsePool(p)
			if err != nil {
				return nil, fmt.Errorf("venue %d pool %d: %w", vc.ID, i, err)
			}
			v.AddPool(source, target, uint32(p.FeeTier), rateNum, rateDen, bonus)
		}
		return v, nil

	case domain.FamilyOrderBook:
		v := carbon.New(id, addr, led, nil)
		for i, s := range vc.Strategies {
			if err := addStrategy(v, s); err != nil {
				return nil, fmt.Errorf("venue %d strategy %d: %w", vc.ID, i, err)
			}
		}
		return v, nil

	default:
		return nil, fmt.Errorf("venue %d: unknown family %q", vc.ID, vc.Family)
	}
}

func addStrategy(v *carbon.Venue, s config.StrategyEntry) error {
	id, err := uint256.FromDecimal(s.ID)
	if err != nil {
		return fmt.Errorf("id: %w", err)
	}
	source, err := domain.ParseAsset(s.Source)
	if err != nil {
		return err
	}
	target, err := domain.ParseAsset(s.Target)
	if err != nil {
		return err
	}
	capacity, err := uint256.FromDecimal(s.Capacity)
	if err != nil {
		return fmt.Errorf("capacity: %w", err)
	}
	rateNum, err := parseRate(s.RateNum)
	if err != nil {
		return fmt.Errorf("rate_num: %w", err)
	}
	rateDen, err := parseRate(s.RateDen)
	if err != nil {
		return fmt.Errorf("rate_den: %w", err)
	}
	v.AddStrategy(id, source, target, capacity, rateNum, rateDen)
	return nil
}

// buildLender constructs one flash lender, registers it, and mints its
// configured liquidity onto its own account.
func buildLender(lc config.LenderConfig, led *ledger.Ledger, lenders *lending.Registry) error {
	id := domain.PlatformID(lc.ID)
	addr := common.HexToAddress(lc.Address)

	var l lending.Lender
	switch lc.Kind {
	case "single":
		l = lending.NewSingleLender(id, addr, led, uint32(lc.FeePPM))
	case "vault":
		l = lending.NewVaultLender(id, addr, led, uint32(lc.FeePPM))
	default:
		return fmt.Errorf("lender %d: unknown kind %q", lc.ID, lc.Kind)
	}
	if err := lenders.Register(l); err != nil {
		return err
	}

	for i, entry := range lc.Liquidity {
		if err := seedBalance(led, entry, addr); err != nil {
			return fmt.Errorf("lender %d liquidity[%d]: %w", lc.ID, i, err)
		}
	}
	return nil
}

// seedBalance mints one configured balance. An empty account falls back to
// the given default (the owning lender's address).
func seedBalance(led *ledger.Ledger, entry config.BalanceEntry, fallback common.Address) error {
	account := fallback
	if strings.TrimSpace(entry.Account) != "" {
		if !common.IsHexAddress(entry.Account) {
			return fmt.Errorf("account: %q is not a valid address", entry.Account)
		}
		account = common.HexToAddress(entry.Account)
	} else if account == (common.Address{}) {
		return fmt.Errorf("account must not be empty")
	}
	asset, err := domain.ParseAsset(entry.Asset)
	if err != nil {
		return err
	}
	amount, err := uint256.FromDecimal(entry.Amount)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	return led.Mint(asset, account, amount)
}

func parsePool(p config.PoolEntry) (source, target domain.Asset, rateNum, rateDen uint64, bonus *uint256.Int, err error) {
	if source, err = domain.ParseAsset(p.Source); err != nil {
		return
	}
	if target, err = domain.ParseAsset(p.Target); err != nil {
		return
	}
	if rateNum, err = parseRate(p.RateNum); err != nil {
		err = fmt.Errorf("rate_num: %w", err)
		return
	}
	if rateDen, err = parseRate(p.RateDen); err != nil {
		err = fmt.Errorf("rate_den: %w", err)
		return
	}
	if p.Bonus != "" {
		if bonus, err = uint256.FromDecimal(p.Bonus); err != nil {
			err = fmt.Errorf("bonus: %w", err)
			return
		}
	}
	return
}

// parseRate parses a positive uint64 rate component. Empty defaults to 1 so
// identity-rate pools need no explicit rate.
func parseRate(s string) (uint64, error) {
	if strings.TrimSpace(s) == "" {
		return 1, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, fmt.Errorf("rate must be positive")
	}
	return v, nil
}
