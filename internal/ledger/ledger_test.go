package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol = common.HexToAddress("0x00000000000000000000000000000000000000c3")

	tkn = domain.TokenAsset(common.HexToAddress("0x0000000000000000000000000000000000000701"))
)

func amt(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestMintAndTransfer(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(tkn, alice, amt(100)))

	require.NoError(t, l.Transfer(tkn, alice, bob, amt(40)))
	assert.Equal(t, amt(60), l.BalanceOf(tkn, alice))
	assert.Equal(t, amt(40), l.BalanceOf(tkn, bob))

	err := l.Transfer(tkn, alice, bob, amt(61))
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// Zero-amount transfers are no-ops even from empty accounts.
	require.NoError(t, l.Transfer(tkn, carol, bob, amt(0)))
}

func TestBurnFrom(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(tkn, alice, amt(10)))

	require.NoError(t, l.BurnFrom(tkn, alice, amt(4)))
	assert.Equal(t, amt(6), l.BalanceOf(tkn, alice))

	require.ErrorIs(t, l.BurnFrom(tkn, alice, amt(7)), domain.ErrInsufficientBalance)
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(tkn, alice, amt(100)))
	l.Approve(tkn, alice, bob, amt(50))

	require.NoError(t, l.TransferFrom(tkn, bob, alice, carol, amt(30)))
	assert.Equal(t, amt(20), l.Allowance(tkn, alice, bob))
	assert.Equal(t, amt(30), l.BalanceOf(tkn, carol))

	err := l.TransferFrom(tkn, bob, alice, carol, amt(21))
	require.ErrorIs(t, err, domain.ErrInsufficientAllow)
}

func TestTransferFromUnlimitedAllowance(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(tkn, alice, amt(100)))
	l.Approve(tkn, alice, bob, MaxAllowance)

	require.NoError(t, l.TransferFrom(tkn, bob, alice, carol, amt(30)))
	// The unlimited sentinel is never decremented.
	assert.Equal(t, MaxAllowance, l.Allowance(tkn, alice, bob))
}

func TestTransferFromOwnerNeedsNoAllowance(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(tkn, alice, amt(100)))
	require.NoError(t, l.TransferFrom(tkn, alice, alice, bob, amt(10)))
	assert.Equal(t, amt(10), l.BalanceOf(tkn, bob))
}

func TestNativeTransferFromByNonOwnerFails(t *testing.T) {
	l := New()
	native := domain.NativeAsset()
	require.NoError(t, l.Mint(native, alice, amt(100)))

	err := l.TransferFrom(native, bob, alice, carol, amt(1))
	require.ErrorIs(t, err, domain.ErrInsufficientAllow)

	// The owner can still move its own native funds through transferFrom.
	require.NoError(t, l.TransferFrom(native, alice, alice, bob, amt(1)))
}

func TestSnapshotRevert(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(tkn, alice, amt(100)))

	rev := l.Snapshot()
	require.NoError(t, l.Transfer(tkn, alice, bob, amt(70)))
	l.Approve(tkn, alice, carol, amt(5))
	require.NoError(t, l.Mint(tkn, carol, amt(9)))

	l.RevertTo(rev)

	assert.Equal(t, amt(100), l.BalanceOf(tkn, alice))
	assert.True(t, l.BalanceOf(tkn, bob).IsZero())
	assert.True(t, l.BalanceOf(tkn, carol).IsZero())
	assert.True(t, l.Allowance(tkn, alice, carol).IsZero())
}

func TestNestedSnapshots(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(tkn, alice, amt(100)))

	outer := l.Snapshot()
	require.NoError(t, l.Transfer(tkn, alice, bob, amt(10)))

	inner := l.Snapshot()
	require.NoError(t, l.Transfer(tkn, alice, bob, amt(20)))

	l.RevertTo(inner)
	assert.Equal(t, amt(10), l.BalanceOf(tkn, bob))

	l.RevertTo(outer)
	assert.True(t, l.BalanceOf(tkn, bob).IsZero())
}

func TestDiscardSnapshotsCommits(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(tkn, alice, amt(100)))

	rev := l.Snapshot()
	require.NoError(t, l.Transfer(tkn, alice, bob, amt(30)))
	l.DiscardSnapshots()

	// Reverting past a committed state is a no-op.
	l.RevertTo(rev)
	assert.Equal(t, amt(30), l.BalanceOf(tkn, bob))
}

func TestRecordUndoRevertsWithJournal(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(tkn, alice, amt(100)))
	capacity := amt(60)

	rev := l.Snapshot()
	require.NoError(t, l.Transfer(tkn, alice, bob, amt(40)))
	prev := capacity
	capacity = amt(20)
	l.RecordUndo(func() { capacity = prev })

	l.RevertTo(rev)
	assert.Equal(t, amt(60), capacity)
	assert.Equal(t, amt(100), l.BalanceOf(tkn, alice))

	// Committed undos never run.
	capacity = amt(5)
	l.RecordUndo(func() { capacity = amt(60) })
	l.DiscardSnapshots()
	l.RevertTo(0)
	assert.Equal(t, amt(5), capacity)
}

func TestTokenEnsureAllowance(t *testing.T) {
	l := New()
	tok := l.Token(tkn)

	tok.EnsureAllowance(alice, bob, amt(10))
	assert.Equal(t, MaxAllowance, tok.Allowance(alice, bob))

	// Already unlimited: stays unlimited.
	tok.EnsureAllowance(alice, bob, amt(1_000_000))
	assert.Equal(t, MaxAllowance, tok.Allowance(alice, bob))

	// Native assets carry no allowance.
	nat := l.Token(domain.NativeAsset())
	nat.EnsureAllowance(alice, bob, amt(10))
	assert.True(t, nat.Allowance(alice, bob).IsZero())
}
