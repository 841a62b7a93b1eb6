package arb

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
)

// Rewards returns the current rewards configuration.
func (e *Engine) Rewards() domain.RewardsConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.RewardsConfig{
		PercentPPM: e.rewards.PercentPPM,
		MaxAmount:  new(uint256.Int).Set(e.rewards.MaxAmount),
	}
}

// MinBurn returns the current minimum burn threshold.
func (e *Engine) MinBurn() *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return new(uint256.Int).Set(e.minBurn)
}

// SetRewards replaces the rewards configuration. Only the admin may call it.
// Setting the current value again is a silent no-op with no persistence and
// no event.
func (e *Engine) SetRewards(ctx context.Context, caller common.Address, cfg domain.RewardsConfig) error {
	if caller != e.admin {
		return domain.ErrUnauthorized
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	if cfg.Equal(e.rewards) {
		e.mu.Unlock()
		return nil
	}
	old := e.rewards
	next := domain.RewardsConfig{
		PercentPPM: cfg.PercentPPM,
		MaxAmount:  new(uint256.Int).Set(cfg.MaxAmount),
	}
	if e.params != nil {
		if err := e.params.SaveRewards(ctx, next); err != nil {
			e.mu.Unlock()
			return fmt.Errorf("arb: persist rewards: %w", err)
		}
	}
	e.rewards = next
	e.mu.Unlock()

	e.logger.Info("rewards updated",
		slog.Uint64("old_ppm", uint64(old.PercentPPM)),
		slog.Uint64("new_ppm", uint64(next.PercentPPM)),
		slog.String("old_max", old.MaxAmount.Dec()),
		slog.String("new_max", next.MaxAmount.Dec()),
	)
	e.publishEvent(ctx, "ch:config", "rewards", next)
	return nil
}

// SetMinBurn replaces the minimum burn threshold. Only the admin may call it.
// Zero disables the floor. Setting the current value again is a no-op.
func (e *Engine) SetMinBurn(ctx context.Context, caller common.Address, minBurn *uint256.Int) error {
	if caller != e.admin {
		return domain.ErrUnauthorized
	}
	if minBurn == nil {
		return fmt.Errorf("arb: min burn: %w", domain.ErrInvalidValue)
	}

	e.mu.Lock()
	if minBurn.Eq(e.minBurn) {
		e.mu.Unlock()
		return nil
	}
	old := e.minBurn
	next := new(uint256.Int).Set(minBurn)
	if e.params != nil {
		if err := e.params.SaveMinBurn(ctx, next); err != nil {
			e.mu.Unlock()
			return fmt.Errorf("arb: persist min burn: %w", err)
		}
	}
	e.minBurn = next
	e.mu.Unlock()

	e.logger.Info("min burn updated",
		slog.String("old", old.Dec()),
		slog.String("new", next.Dec()),
	)
	e.publishEvent(ctx, "ch:config", "min_burn", next)
	return nil
}
