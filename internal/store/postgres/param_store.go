package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
)

const (
	paramKeyRewards = "rewards"
	paramKeyMinBurn = "min_burn"
)

// ParamStore implements domain.ParamStore on the engine_params key/value
// table. Values are JSON documents with amounts as decimal strings.
type ParamStore struct {
	pool *pgxpool.Pool
}

var _ domain.ParamStore = (*ParamStore)(nil)

// NewParamStore creates a new ParamStore.
func NewParamStore(pool *pgxpool.Pool) *ParamStore {
	return &ParamStore{pool: pool}
}

type rewardsDoc struct {
	PercentPPM uint32 `json:"percent_ppm"`
	MaxAmount  string `json:"max_amount"`
}

type minBurnDoc struct {
	Value string `json:"value"`
}

// LoadRewards returns the stored rewards config, ok=false when unset.
func (s *ParamStore) LoadRewards(ctx context.Context) (domain.RewardsConfig, bool, error) {
	raw, ok, err := s.load(ctx, paramKeyRewards)
	if err != nil || !ok {
		return domain.RewardsConfig{}, false, err
	}
	var doc rewardsDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.RewardsConfig{}, false, fmt.Errorf("postgres: decode rewards param: %w", err)
	}
	maxAmount, err := uint256.FromDecimal(doc.MaxAmount)
	if err != nil {
		return domain.RewardsConfig{}, false, fmt.Errorf("postgres: decode rewards max amount %q: %w", doc.MaxAmount, err)
	}
	return domain.RewardsConfig{PercentPPM: doc.PercentPPM, MaxAmount: maxAmount}, true, nil
}

// SaveRewards upserts the rewards config.
func (s *ParamStore) SaveRewards(ctx context.Context, cfg domain.RewardsConfig) error {
	return s.save(ctx, paramKeyRewards, rewardsDoc{
		PercentPPM: cfg.PercentPPM,
		MaxAmount:  cfg.MaxAmount.Dec(),
	})
}

// LoadMinBurn returns the stored minimum burn threshold, ok=false when unset.
func (s *ParamStore) LoadMinBurn(ctx context.Context) (*uint256.Int, bool, error) {
	raw, ok, err := s.load(ctx, paramKeyMinBurn)
	if err != nil || !ok {
		return nil, false, err
	}
	var doc minBurnDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false, fmt.Errorf("postgres: decode min burn param: %w", err)
	}
	v, err := uint256.FromDecimal(doc.Value)
	if err != nil {
		return nil, false, fmt.Errorf("postgres: decode min burn %q: %w", doc.Value, err)
	}
	return v, true, nil
}

// SaveMinBurn upserts the minimum burn threshold.
func (s *ParamStore) SaveMinBurn(ctx context.Context, v *uint256.Int) error {
	return s.save(ctx, paramKeyMinBurn, minBurnDoc{Value: v.Dec()})
}

func (s *ParamStore) load(ctx context.Context, key string) ([]byte, bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM engine_params WHERE key = $1`, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("postgres: load param %s: %w", key, err)
	}
	return raw, true, nil
}

func (s *ParamStore) save(ctx context.Context, key string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("postgres: encode param %s: %w", key, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO engine_params (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, raw)
	if err != nil {
		return fmt.Errorf("postgres: save param %s: %w", key, err)
	}
	return nil
}
