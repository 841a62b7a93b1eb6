package arb

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
)

// runRoute walks the route once, left to right. The effective source amount
// of a step is its configured amount when nonzero and covered by the held
// balance, otherwise the full held balance — so a zero amount means "use
// whatever earlier hops produced" and an oversized amount is capped rather
// than failing. Steps over unrelated assets are independent, which lets one
// route thread multiple loaned assets through disjoint sub-paths.
func (e *Engine) runRoute(ctx context.Context, f *flight, route domain.Route) error {
	for i, step := range route {
		held := e.led.BalanceOf(step.Source, e.self)
		amount := step.EffectiveAmount()
		if amount.IsZero() || amount.Gt(held) {
			amount = held
		}

		out, err := e.disp.Trade(ctx, step, amount)
		if err != nil {
			return fmt.Errorf("arb: step %d: %w", i, err)
		}

		f.platforms = append(f.platforms, step.Platform)
		f.pairs = append(f.pairs, domain.AssetPair{Source: step.Source, Target: step.Target})

		e.logger.Debug("route step executed",
			slog.Int("step", i),
			slog.Int("platform", int(step.Platform)),
			slog.String("source", step.Source.String()),
			slog.String("target", step.Target.String()),
			slog.String("amount_in", amount.Dec()),
			slog.String("amount_out", out.Dec()),
		)
	}
	return nil
}
