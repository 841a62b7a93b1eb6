package domain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAsset(b byte) Asset {
	return TokenAsset(common.BytesToAddress([]byte{b}))
}

func testStep(source, target Asset) RouteStep {
	return RouteStep{Platform: 1, Source: source, Target: target}
}

func TestRouteValidateLengthBounds(t *testing.T) {
	a, b := testAsset(1), testAsset(2)

	tests := []struct {
		name    string
		steps   int
		wantErr error
	}{
		{"too short", 1, ErrInvalidRouteLength},
		{"min length", 2, nil},
		{"max length", 10, nil},
		{"too long", 11, ErrInvalidRouteLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route := make(Route, tt.steps)
			for i := range route {
				route[i] = testStep(a, b)
			}
			err := route.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestRouteValidateMissingAssets(t *testing.T) {
	route := Route{testStep(testAsset(1), testAsset(2)), testStep(Asset{}, testAsset(2))}
	require.Error(t, route.Validate())
}

func TestRouteAnchor(t *testing.T) {
	a, b, c := testAsset(1), testAsset(2), testAsset(3)
	route := Route{testStep(a, b), testStep(b, c), testStep(c, a)}

	first, last := route.Anchor()
	assert.Equal(t, a, first)
	assert.Equal(t, a, last)
}

func TestStepEffectiveAmount(t *testing.T) {
	s := RouteStep{}
	assert.True(t, s.EffectiveAmount().IsZero())
	assert.True(t, s.MinReturnAmount().IsZero())

	s.Amount = uint256.NewInt(7)
	s.MinReturn = uint256.NewInt(3)
	assert.Equal(t, uint256.NewInt(7), s.EffectiveAmount())
	assert.Equal(t, uint256.NewInt(3), s.MinReturnAmount())
}

func TestLoanPlanValidate(t *testing.T) {
	a, b := testAsset(1), testAsset(2)
	one := uint256.NewInt(1)

	tests := []struct {
		name string
		plan LoanPlan
		ok   bool
	}{
		{"empty plan", LoanPlan{}, false},
		{"no assets", LoanPlan{{Platform: 1}}, false},
		{"length mismatch", LoanPlan{{Platform: 1, Assets: []Asset{a, b}, Amounts: []*uint256.Int{one}}}, false},
		{"zero amount", LoanPlan{{Platform: 1, Assets: []Asset{a}, Amounts: []*uint256.Int{uint256.NewInt(0)}}}, false},
		{"nil amount", LoanPlan{{Platform: 1, Assets: []Asset{a}, Amounts: []*uint256.Int{nil}}}, false},
		{"valid single", LoanPlan{{Platform: 1, Assets: []Asset{a}, Amounts: []*uint256.Int{one}}}, true},
		{"valid batch", LoanPlan{{Platform: 1, Assets: []Asset{a, b}, Amounts: []*uint256.Int{one, one}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrInvalidLoanPlan)
			}
		})
	}
}

func TestParseAsset(t *testing.T) {
	got, err := ParseAsset("native")
	require.NoError(t, err)
	assert.True(t, got.IsNative())

	got, err = ParseAsset("  NATIVE ")
	require.NoError(t, err)
	assert.True(t, got.IsNative())

	got, err = ParseAsset("0x0000000000000000000000000000000000000701")
	require.NoError(t, err)
	assert.False(t, got.IsNative())
	assert.Equal(t, common.HexToAddress("0x0000000000000000000000000000000000000701"), got.Address())

	_, err = ParseAsset("not-an-address")
	require.Error(t, err)
}

func TestRewardsConfigValidate(t *testing.T) {
	cfg := RewardsConfig{PercentPPM: 100_000, MaxAmount: uint256.NewInt(100)}
	require.NoError(t, cfg.Validate())

	require.Error(t, RewardsConfig{PercentPPM: PPMDenominator + 1, MaxAmount: uint256.NewInt(1)}.Validate())
	require.Error(t, RewardsConfig{PercentPPM: 1, MaxAmount: nil}.Validate())
	require.Error(t, RewardsConfig{PercentPPM: 1, MaxAmount: uint256.NewInt(0)}.Validate())
}

func TestRewardsConfigEqual(t *testing.T) {
	a := RewardsConfig{PercentPPM: 10, MaxAmount: uint256.NewInt(5)}
	b := RewardsConfig{PercentPPM: 10, MaxAmount: uint256.NewInt(5)}
	assert.True(t, a.Equal(b))

	b.MaxAmount = uint256.NewInt(6)
	assert.False(t, a.Equal(b))

	b = RewardsConfig{PercentPPM: 11, MaxAmount: uint256.NewInt(5)}
	assert.False(t, a.Equal(b))

	assert.False(t, a.Equal(RewardsConfig{PercentPPM: 10}))
}
