package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PPMDenominator is the fixed-point denominator for parts-per-million
// fractions.
const PPMDenominator = 1_000_000

// RewardsConfig controls how the settlement surplus is split between the
// caller reward and the protocol burn.
type RewardsConfig struct {
	// PercentPPM is the caller's share of the surplus in parts per million.
	PercentPPM uint32
	// MaxAmount caps the caller reward in base asset units.
	MaxAmount *uint256.Int
}

// Validate checks the invariants PercentPPM <= 1e6 and MaxAmount > 0.
func (c RewardsConfig) Validate() error {
	if c.PercentPPM > PPMDenominator {
		return fmt.Errorf("rewards: percent ppm %d exceeds %d", c.PercentPPM, PPMDenominator)
	}
	if c.MaxAmount == nil || c.MaxAmount.IsZero() {
		return fmt.Errorf("rewards: max amount must be > 0")
	}
	return nil
}

// Equal reports whether two configs are identical. Used for the no-op check
// in the admin setter.
func (c RewardsConfig) Equal(o RewardsConfig) bool {
	if c.PercentPPM != o.PercentPPM {
		return false
	}
	switch {
	case c.MaxAmount == nil && o.MaxAmount == nil:
		return true
	case c.MaxAmount == nil || o.MaxAmount == nil:
		return false
	default:
		return c.MaxAmount.Eq(o.MaxAmount)
	}
}

// AssetPair is one flattened source/target pair touched by a route.
type AssetPair struct {
	Source Asset `json:"source"`
	Target Asset `json:"target"`
}

// Settlement is the audit record emitted once per successful execution.
type Settlement struct {
	ID            string         `json:"id"`
	Caller        common.Address `json:"caller"`
	Platforms     []PlatformID   `json:"platforms"`
	Pairs         []AssetPair    `json:"pairs"`
	SourceAssets  []Asset        `json:"sourceAssets"`
	SourceAmounts []*uint256.Int `json:"sourceAmounts"`
	Burn          *uint256.Int   `json:"burn"`
	Reward        *uint256.Int   `json:"reward"`
	ExecutedAt    time.Time      `json:"executedAt"`
}
