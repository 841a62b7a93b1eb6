package lending

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
	"github.com/bancorprotocol/bancor-arbitrage/internal/ledger"
)

// SingleLender is a single-asset flash lender. One request lends exactly one
// asset; multi-asset plans need one request per asset.
type SingleLender struct {
	id     domain.PlatformID
	addr   common.Address
	led    *ledger.Ledger
	feePPM uint32
}

// NewSingleLender creates a lender charging feePPM per loan.
func NewSingleLender(id domain.PlatformID, addr common.Address, led *ledger.Ledger, feePPM uint32) *SingleLender {
	return &SingleLender{id: id, addr: addr, led: led, feePPM: feePPM}
}

// ID implements Lender.
func (l *SingleLender) ID() domain.PlatformID { return l.id }

// Address implements Lender.
func (l *SingleLender) Address() common.Address { return l.addr }

// RequestLoan transfers the borrowed amount to the borrower, invokes its
// callback synchronously, and verifies the pre-loan balance plus fee is back
// before returning.
func (l *SingleLender) RequestLoan(ctx context.Context, initiator common.Address, asset domain.Asset,
	amount *uint256.Int, borrower Borrower, payload []byte) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("lending: platform %d: %w", l.id, domain.ErrZeroAmount)
	}

	balBefore := l.led.BalanceOf(asset, l.addr)
	if balBefore.Lt(amount) {
		return fmt.Errorf("lending: platform %d liquidity %s below requested %s: %w",
			l.id, balBefore.Dec(), amount.Dec(), domain.ErrInsufficientBalance)
	}
	fee, err := flashFee(amount, l.feePPM)
	if err != nil {
		return err
	}

	if err := l.led.Transfer(asset, l.addr, borrower.Address(), amount); err != nil {
		return err
	}
	if err := borrower.OnLoanReceived(ctx, l.addr, initiator, asset, amount, fee, payload); err != nil {
		return err
	}

	owed, overflow := new(uint256.Int).AddOverflow(balBefore, fee)
	if overflow {
		return fmt.Errorf("lending: platform %d: %w", l.id, domain.ErrAmountOverflow)
	}
	if l.led.BalanceOf(asset, l.addr).Lt(owed) {
		return fmt.Errorf("lending: platform %d loan of %s %s not repaid", l.id, amount.Dec(), asset)
	}
	return nil
}
