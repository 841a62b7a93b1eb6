// Package service hosts the application services that sit between the HTTP
// surface and the arbitrage engine.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/bancorprotocol/bancor-arbitrage/internal/arb"
	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
)

// executionLockKey is the distributed lock key guarding arbitrage execution.
// One lock for the whole engine: executions are serialized across nodes the
// same way the engine's own entry guard serializes them in-process.
const executionLockKey = "execution"

// executionLockTTL bounds how long a crashed node can keep the lock.
const executionLockTTL = 30 * time.Second

// ExecutionService drives the arbitrage engine on behalf of API callers. It
// layers distributed locking over the engine's in-process entry guard and
// exposes the settlement history and admin parameter operations.
type ExecutionService struct {
	engine *arb.Engine
	locks  domain.LockManager    // optional
	store  domain.SettlementStore // optional
	admin  common.Address
	logger *slog.Logger
}

// NewExecutionService creates an ExecutionService. locks and store may be nil
// in exec mode, where a single process owns the engine.
func NewExecutionService(engine *arb.Engine, locks domain.LockManager,
	store domain.SettlementStore, admin common.Address, logger *slog.Logger) *ExecutionService {
	return &ExecutionService{
		engine: engine,
		locks:  locks,
		store:  store,
		admin:  admin,
		logger: logger.With(slog.String("component", "execution_service")),
	}
}

// ExecuteFlashloan runs a flash-loan arbitrage under the execution lock.
func (s *ExecutionService) ExecuteFlashloan(ctx context.Context, caller common.Address,
	plan domain.LoanPlan, route domain.Route) (domain.Settlement, error) {
	unlock, err := s.acquire(ctx)
	if err != nil {
		return domain.Settlement{}, err
	}
	defer unlock()

	return s.engine.FlashloanAndArb(ctx, caller, plan, route)
}

// ExecuteFunded runs a self-funded arbitrage under the execution lock.
func (s *ExecutionService) ExecuteFunded(ctx context.Context, caller common.Address,
	route domain.Route, anchor domain.Asset, amount, value *uint256.Int) (domain.Settlement, error) {
	unlock, err := s.acquire(ctx)
	if err != nil {
		return domain.Settlement{}, err
	}
	defer unlock()

	return s.engine.FundAndArb(ctx, caller, route, anchor, amount, value)
}

func (s *ExecutionService) acquire(ctx context.Context) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	unlock, err := s.locks.Acquire(ctx, executionLockKey, executionLockTTL)
	if err != nil {
		return nil, err
	}
	return unlock, nil
}

// RecentSettlements returns the newest settlement records.
func (s *ExecutionService) RecentSettlements(ctx context.Context, limit int) ([]domain.Settlement, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListRecent(ctx, limit)
}

// SettlementByID returns one settlement record.
func (s *ExecutionService) SettlementByID(ctx context.Context, id string) (domain.Settlement, error) {
	if s.store == nil {
		return domain.Settlement{}, domain.ErrNotFound
	}
	return s.store.GetByID(ctx, id)
}

// Rewards returns the engine's current rewards configuration.
func (s *ExecutionService) Rewards() domain.RewardsConfig {
	return s.engine.Rewards()
}

// SetRewards updates the rewards configuration with the service's admin
// identity. API-level authentication has already happened by the time this
// is called.
func (s *ExecutionService) SetRewards(ctx context.Context, cfg domain.RewardsConfig) error {
	return s.engine.SetRewards(ctx, s.admin, cfg)
}

// MinBurn returns the engine's current minimum burn threshold.
func (s *ExecutionService) MinBurn() *uint256.Int {
	return s.engine.MinBurn()
}

// SetMinBurn updates the minimum burn threshold with the service's admin
// identity.
func (s *ExecutionService) SetMinBurn(ctx context.Context, v *uint256.Int) error {
	return s.engine.SetMinBurn(ctx, s.admin, v)
}

// BaseAsset exposes the engine's reward asset for API responses.
func (s *ExecutionService) BaseAsset() domain.Asset {
	return s.engine.BaseAsset()
}
