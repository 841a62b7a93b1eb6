// Package lending defines the flash-loan lender capability interfaces and
// their ledger-backed implementations. A lender transfers borrowed funds to
// the borrower, synchronously invokes its callback within the same logical
// call, and verifies repayment (principal + fee) before returning.
package lending

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
)

// Borrower is the callback surface a flash-loan recipient must expose.
// initiator is the account that invoked the lender; callbacks must reject
// calls where the initiator is not the borrower itself.
type Borrower interface {
	Address() common.Address
	// OnLoanReceived is invoked by single-asset lenders once the borrowed
	// funds have been transferred.
	OnLoanReceived(ctx context.Context, caller, initiator common.Address,
		asset domain.Asset, amount, fee *uint256.Int, payload []byte) error
	// OnBatchLoanReceived is invoked by vault-style lenders with every
	// requested asset in one call.
	OnBatchLoanReceived(ctx context.Context, caller, initiator common.Address,
		assets []domain.Asset, amounts, fees []*uint256.Int, payload []byte) error
}

// Lender is the common surface of every registered lending platform.
type Lender interface {
	ID() domain.PlatformID
	Address() common.Address
}

// SingleLoaner lends exactly one asset per request.
type SingleLoaner interface {
	Lender
	RequestLoan(ctx context.Context, initiator common.Address, asset domain.Asset,
		amount *uint256.Int, borrower Borrower, payload []byte) error
}

// BatchLoaner lends multiple assets in one request.
type BatchLoaner interface {
	Lender
	RequestLoan(ctx context.Context, initiator common.Address, assets []domain.Asset,
		amounts []*uint256.Int, borrower Borrower, payload []byte) error
}

// Registry maps platform ids to registered lenders.
type Registry struct {
	lenders map[domain.PlatformID]Lender
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{lenders: make(map[domain.PlatformID]Lender)}
}

// Register adds a lender under its id. Duplicate ids are rejected.
func (r *Registry) Register(l Lender) error {
	if _, ok := r.lenders[l.ID()]; ok {
		return fmt.Errorf("lending: platform id %d already registered", l.ID())
	}
	r.lenders[l.ID()] = l
	return nil
}

// Lender resolves a platform id, returning ErrInvalidExchangeID for ids with
// no registered lender.
func (r *Registry) Lender(id domain.PlatformID) (Lender, error) {
	l, ok := r.lenders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidExchangeID, id)
	}
	return l, nil
}

// flashFee computes amount * feePPM / 1e6, truncating.
func flashFee(amount *uint256.Int, feePPM uint32) (*uint256.Int, error) {
	fee, overflow := new(uint256.Int).MulOverflow(amount, uint256.NewInt(uint64(feePPM)))
	if overflow {
		return nil, fmt.Errorf("lending: fee: %w", domain.ErrAmountOverflow)
	}
	return fee.Div(fee, uint256.NewInt(domain.PPMDenominator)), nil
}
