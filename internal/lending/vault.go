package lending

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
	"github.com/bancorprotocol/bancor-arbitrage/internal/ledger"
)

// VaultLender is a multi-asset vault-style flash lender: one request lends
// every listed asset and delivers a single batch callback.
type VaultLender struct {
	id     domain.PlatformID
	addr   common.Address
	led    *ledger.Ledger
	feePPM uint32
}

// NewVaultLender creates a vault lender charging feePPM per asset.
func NewVaultLender(id domain.PlatformID, addr common.Address, led *ledger.Ledger, feePPM uint32) *VaultLender {
	return &VaultLender{id: id, addr: addr, led: led, feePPM: feePPM}
}

// ID implements Lender.
func (l *VaultLender) ID() domain.PlatformID { return l.id }

// Address implements Lender.
func (l *VaultLender) Address() common.Address { return l.addr }

// RequestLoan transfers every borrowed asset to the borrower, invokes the
// batch callback once, and verifies each asset's pre-loan balance plus fee
// is back before returning.
func (l *VaultLender) RequestLoan(ctx context.Context, initiator common.Address, assets []domain.Asset,
	amounts []*uint256.Int, borrower Borrower, payload []byte) error {
	if len(assets) == 0 || len(assets) != len(amounts) {
		return fmt.Errorf("lending: platform %d: %w", l.id, domain.ErrInvalidLoanPlan)
	}

	balsBefore := make([]*uint256.Int, len(assets))
	fees := make([]*uint256.Int, len(assets))
	for i, asset := range assets {
		if amounts[i] == nil || amounts[i].IsZero() {
			return fmt.Errorf("lending: platform %d asset %s: %w", l.id, asset, domain.ErrZeroAmount)
		}
		balsBefore[i] = l.led.BalanceOf(asset, l.addr)
		if balsBefore[i].Lt(amounts[i]) {
			return fmt.Errorf("lending: platform %d liquidity %s below requested %s for %s: %w",
				l.id, balsBefore[i].Dec(), amounts[i].Dec(), asset, domain.ErrInsufficientBalance)
		}
		fee, err := flashFee(amounts[i], l.feePPM)
		if err != nil {
			return err
		}
		fees[i] = fee
	}

	for i, asset := range assets {
		if err := l.led.Transfer(asset, l.addr, borrower.Address(), amounts[i]); err != nil {
			return err
		}
	}
	if err := borrower.OnBatchLoanReceived(ctx, l.addr, initiator, assets, amounts, fees, payload); err != nil {
		return err
	}

	for i, asset := range assets {
		owed, overflow := new(uint256.Int).AddOverflow(balsBefore[i], fees[i])
		if overflow {
			return fmt.Errorf("lending: platform %d: %w", l.id, domain.ErrAmountOverflow)
		}
		if l.led.BalanceOf(asset, l.addr).Lt(owed) {
			return fmt.Errorf("lending: platform %d loan of %s %s not repaid", l.id, amounts[i].Dec(), asset)
		}
	}
	return nil
}
