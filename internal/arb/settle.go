package arb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
)

// settle accounts the engine's entire base-asset balance as the execution's
// surplus, splits it into a caller reward and a burn share, and transfers
// both out. The reward is floor(total * ppm / 1e6) capped at the configured
// maximum; everything else burns. A burn share below the minimum threshold
// fails the whole execution.
func (e *Engine) settle(ctx context.Context, f *flight) (domain.Settlement, error) {
	rewards := e.Rewards()
	minBurn := e.MinBurn()

	total := e.led.BalanceOf(e.baseAsset, e.self)

	reward, overflow := new(uint256.Int).MulDivOverflow(
		total, uint256.NewInt(uint64(rewards.PercentPPM)), uint256.NewInt(domain.PPMDenominator))
	if overflow {
		return domain.Settlement{}, fmt.Errorf("arb: reward on %s: %w", total.Dec(), domain.ErrAmountOverflow)
	}
	if reward.Gt(rewards.MaxAmount) {
		reward = new(uint256.Int).Set(rewards.MaxAmount)
	}
	burn := new(uint256.Int).Sub(total, reward)

	if burn.Lt(minBurn) {
		return domain.Settlement{}, fmt.Errorf("arb: burn %s below minimum %s: %w",
			burn.Dec(), minBurn.Dec(), domain.ErrInsufficientBurn)
	}

	if !burn.IsZero() {
		if err := e.led.Transfer(e.baseAsset, e.self, e.burnSink, burn); err != nil {
			return domain.Settlement{}, fmt.Errorf("arb: burn transfer: %w", err)
		}
	}
	if !reward.IsZero() {
		if err := e.led.Transfer(e.baseAsset, e.self, f.caller, reward); err != nil {
			return domain.Settlement{}, fmt.Errorf("arb: reward transfer: %w", err)
		}
	}

	return domain.Settlement{
		ID:            uuid.NewString(),
		Caller:        f.caller,
		Platforms:     append([]domain.PlatformID(nil), f.platforms...),
		Pairs:         append([]domain.AssetPair(nil), f.pairs...),
		SourceAssets:  append([]domain.Asset(nil), f.sourceAssets...),
		SourceAmounts: copyAmounts(f.sourceAmounts),
		Burn:          burn,
		Reward:        reward,
		ExecutedAt:    e.clock().UTC(),
	}, nil
}

func copyAmounts(in []*uint256.Int) []*uint256.Int {
	out := make([]*uint256.Int, len(in))
	for i, v := range in {
		out[i] = new(uint256.Int).Set(v)
	}
	return out
}

// publishEvent sends a typed JSON envelope on the signal bus. Publishing is
// best-effort and never fails the operation that emitted it.
func (e *Engine) publishEvent(ctx context.Context, channel, eventType string, payload any) {
	if e.bus == nil {
		return
	}
	msg, err := json.Marshal(struct {
		Type    string `json:"type"`
		Payload any    `json:"payload"`
	}{Type: eventType, Payload: payload})
	if err != nil {
		e.logger.Warn("event encode failed",
			slog.String("type", eventType), slog.String("error", err.Error()))
		return
	}
	if err := e.bus.Publish(ctx, channel, msg); err != nil {
		e.logger.Warn("event publish failed",
			slog.String("channel", channel), slog.String("error", err.Error()))
	}
}
