package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
)

// Token binds one asset to a ledger and exposes the fungible-token surface
// the engine and venues program against. It is a value type; copying is cheap.
type Token struct {
	asset domain.Asset
	l     *Ledger
}

// Token returns the Token view of an asset on this ledger.
func (l *Ledger) Token(asset domain.Asset) Token {
	return Token{asset: asset, l: l}
}

// Asset returns the wrapped asset identity.
func (t Token) Asset() domain.Asset {
	return t.asset
}

// IsNative reports whether the token is the native base currency.
func (t Token) IsNative() bool {
	return t.asset.IsNative()
}

// BalanceOf returns the holder's balance.
func (t Token) BalanceOf(holder common.Address) *uint256.Int {
	return t.l.BalanceOf(t.asset, holder)
}

// Transfer moves funds from one holder to another. Failures bubble up as-is
// so platform-level errors stay diagnosable.
func (t Token) Transfer(from, to common.Address, amount *uint256.Int) error {
	return t.l.Transfer(t.asset, from, to, amount)
}

// TransferFrom moves the owner's funds on behalf of the caller, consuming
// allowance for non-native assets.
func (t Token) TransferFrom(caller, from, to common.Address, amount *uint256.Int) error {
	return t.l.TransferFrom(t.asset, caller, from, to, amount)
}

// Approve sets the spender's allowance.
func (t Token) Approve(owner, spender common.Address, amount *uint256.Int) {
	t.l.Approve(t.asset, owner, spender, amount)
}

// Allowance returns the spender's allowance granted by the owner.
func (t Token) Allowance(owner, spender common.Address) *uint256.Int {
	return t.l.Allowance(t.asset, owner, spender)
}

// EnsureAllowance lazily raises the spender's allowance to the unlimited
// sentinel when it is below need. The one-time max approval amortizes the
// cost across repeated trades with the same platform/asset pair. Native
// assets carry no allowance and are a no-op.
func (t Token) EnsureAllowance(owner, spender common.Address, need *uint256.Int) {
	if t.IsNative() {
		return
	}
	if t.Allowance(owner, spender).Lt(need) {
		t.Approve(owner, spender, MaxAllowance)
	}
}
