package domain

import (
	"fmt"

	"github.com/holiman/uint256"
)

// LoanRequest describes one flash loan call against one lending platform.
// Vault-style lenders receive all their assets in a single request; lenders
// that only support single-asset loans need one request per asset.
type LoanRequest struct {
	Platform PlatformID     `json:"platform"`
	Assets   []Asset        `json:"assets"`
	Amounts  []*uint256.Int `json:"amounts"`
}

// LoanPlan is the ordered list of flash loan requests issued for one
// execution. Each entry is a distinct lending platform call, chained through
// re-entrant callbacks.
type LoanPlan []LoanRequest

// Validate checks the plan shape: at least one request, matching asset and
// amount list lengths, and every amount strictly positive.
func (p LoanPlan) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("%w: empty plan", ErrInvalidLoanPlan)
	}
	for i, req := range p {
		if len(req.Assets) == 0 {
			return fmt.Errorf("%w: request %d has no assets", ErrInvalidLoanPlan, i)
		}
		if len(req.Assets) != len(req.Amounts) {
			return fmt.Errorf("%w: request %d has %d assets but %d amounts",
				ErrInvalidLoanPlan, i, len(req.Assets), len(req.Amounts))
		}
		for j, amount := range req.Amounts {
			if amount == nil || amount.IsZero() {
				return fmt.Errorf("%w: request %d amount %d is zero", ErrInvalidLoanPlan, i, j)
			}
		}
	}
	return nil
}
