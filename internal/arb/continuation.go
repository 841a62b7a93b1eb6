package arb

import (
	"encoding/json"
	"fmt"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
)

// continuation is the self-describing resume state threaded through every
// lender callback. The loan chain is driven by external, untrusted callers,
// so the position in the chain travels with the call as an opaque payload
// instead of living in engine fields.
type continuation struct {
	Index int             `json:"index"`
	Plan  domain.LoanPlan `json:"plan"`
	Route domain.Route    `json:"route"`
}

func (c continuation) encode() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("arb: encode continuation: %w", err)
	}
	return data, nil
}

func decodeContinuation(payload []byte) (continuation, error) {
	var c continuation
	if err := json.Unmarshal(payload, &c); err != nil {
		return continuation{}, fmt.Errorf("arb: decode continuation: %w", err)
	}
	if c.Index < 0 || c.Index >= len(c.Plan) {
		return continuation{}, fmt.Errorf("arb: continuation index %d out of range", c.Index)
	}
	return c, nil
}

// next returns the continuation advanced to the following loan request.
func (c continuation) next() continuation {
	return continuation{Index: c.Index + 1, Plan: c.Plan, Route: c.Route}
}

// last reports whether this is the final loan request in the plan.
func (c continuation) last() bool {
	return c.Index == len(c.Plan)-1
}
