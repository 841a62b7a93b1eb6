package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL.
// Amounts are stored as NUMERIC(78,0) so the full 256-bit range survives.
type SettlementStore struct {
	pool *pgxpool.Pool
}

var _ domain.SettlementStore = (*SettlementStore)(nil)

// NewSettlementStore creates a new SettlementStore.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// Create inserts a settlement record.
func (s *SettlementStore) Create(ctx context.Context, st domain.Settlement) error {
	pairs, err := json.Marshal(st.Pairs)
	if err != nil {
		return fmt.Errorf("postgres: encode pairs: %w", err)
	}

	platforms := make([]int16, len(st.Platforms))
	for i, p := range st.Platforms {
		platforms[i] = int16(p)
	}
	assets := make([]string, len(st.SourceAssets))
	for i, a := range st.SourceAssets {
		assets[i] = a.String()
	}
	amounts := make([]string, len(st.SourceAmounts))
	for i, v := range st.SourceAmounts {
		amounts[i] = v.Dec()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO settlements (id, caller, platforms, pairs, source_assets, source_amounts, burn, reward, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		st.ID, st.Caller.Hex(), platforms, pairs, assets, amounts,
		st.Burn.Dec(), st.Reward.Dec(), st.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert settlement: %w", err)
	}
	return nil
}

const settlementColumns = `id, caller, platforms, pairs, source_assets, source_amounts, burn::text, reward::text, executed_at`

// GetByID returns one settlement by its id.
func (s *SettlementStore) GetByID(ctx context.Context, id string) (domain.Settlement, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+settlementColumns+` FROM settlements WHERE id = $1`, id)
	st, err := scanSettlement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Settlement{}, domain.ErrNotFound
		}
		return domain.Settlement{}, fmt.Errorf("postgres: get settlement %s: %w", id, err)
	}
	return st, nil
}

// ListRecent returns the most recent settlements, newest first.
func (s *SettlementStore) ListRecent(ctx context.Context, limit int) ([]domain.Settlement, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+settlementColumns+` FROM settlements ORDER BY executed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements: %w", err)
	}
	defer rows.Close()
	return collectSettlements(rows)
}

// ListBefore returns settlements executed before the cutoff, oldest first.
func (s *SettlementStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Settlement, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+settlementColumns+` FROM settlements WHERE executed_at < $1 ORDER BY executed_at ASC LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements before %s: %w", cutoff, err)
	}
	defer rows.Close()
	return collectSettlements(rows)
}

// DeleteBefore removes settlements executed before the cutoff.
func (s *SettlementStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM settlements WHERE executed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete settlements before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettlement(row rowScanner) (domain.Settlement, error) {
	var (
		st        domain.Settlement
		caller    string
		platforms []int16
		pairs     []byte
		assets    []string
		amounts   []string
		burn      string
		reward    string
	)
	if err := row.Scan(&st.ID, &caller, &platforms, &pairs, &assets, &amounts,
		&burn, &reward, &st.ExecutedAt); err != nil {
		return domain.Settlement{}, err
	}

	st.Caller = common.HexToAddress(caller)
	st.Platforms = make([]domain.PlatformID, len(platforms))
	for i, p := range platforms {
		st.Platforms[i] = domain.PlatformID(p)
	}
	if err := json.Unmarshal(pairs, &st.Pairs); err != nil {
		return domain.Settlement{}, fmt.Errorf("decode pairs: %w", err)
	}
	st.SourceAssets = make([]domain.Asset, len(assets))
	for i, a := range assets {
		asset, err := domain.ParseAsset(a)
		if err != nil {
			return domain.Settlement{}, fmt.Errorf("decode asset %q: %w", a, err)
		}
		st.SourceAssets[i] = asset
	}
	st.SourceAmounts = make([]*uint256.Int, len(amounts))
	for i, v := range amounts {
		n, err := uint256.FromDecimal(v)
		if err != nil {
			return domain.Settlement{}, fmt.Errorf("decode amount %q: %w", v, err)
		}
		st.SourceAmounts[i] = n
	}
	var err error
	if st.Burn, err = uint256.FromDecimal(burn); err != nil {
		return domain.Settlement{}, fmt.Errorf("decode burn %q: %w", burn, err)
	}
	if st.Reward, err = uint256.FromDecimal(reward); err != nil {
		return domain.Settlement{}, fmt.Errorf("decode reward %q: %w", reward, err)
	}
	return st, nil
}

func collectSettlements(rows pgx.Rows) ([]domain.Settlement, error) {
	var list []domain.Settlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, st)
	}
	return list, rows.Err()
}
