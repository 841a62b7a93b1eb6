package handler

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
)

// Wire DTOs. All 256-bit amounts travel as decimal strings.

// StepDTO is one route hop. The family-specific leg is inferred from the
// populated fields: fills select the order-book family, a nonzero fee tier
// selects the single-pool family, anything else is a path swap (with an
// optional bridge asset).
type StepDTO struct {
	Platform  int    `json:"platform"`
	Source    string `json:"source"`
	Target    string `json:"target"`
	Amount    string `json:"amount,omitempty"`
	MinReturn string `json:"minReturn,omitempty"`
	// Deadline is RFC 3339; empty means no deadline.
	Deadline string `json:"deadline,omitempty"`

	Bridge  string    `json:"bridge,omitempty"`
	FeeTier uint32    `json:"feeTier,omitempty"`
	Fills   []FillDTO `json:"fills,omitempty"`
}

// FillDTO is one order fill within an order-book step.
type FillDTO struct {
	StrategyID string `json:"strategyId"`
	Amount     string `json:"amount"`
}

// LoanRequestDTO is one flash-loan request within a plan.
type LoanRequestDTO struct {
	Platform int      `json:"platform"`
	Assets   []string `json:"assets"`
	Amounts  []string `json:"amounts"`
}

// FlashloanRequest is the body of POST /api/arb/flashloan.
type FlashloanRequest struct {
	Caller string           `json:"caller"`
	Loans  []LoanRequestDTO `json:"loans"`
	Route  []StepDTO        `json:"route"`
}

// FundRequest is the body of POST /api/arb/fund. Value models the native
// currency sent along with the call; it must equal Amount for a native
// anchor and be zero (or absent) for a token anchor.
type FundRequest struct {
	Caller string    `json:"caller"`
	Anchor string    `json:"anchor"`
	Amount string    `json:"amount"`
	Value  string    `json:"value,omitempty"`
	Route  []StepDTO `json:"route"`
}

// Decode converts the request into domain values.
func (r FlashloanRequest) Decode() (common.Address, domain.LoanPlan, domain.Route, error) {
	caller, err := parseAddress("caller", r.Caller)
	if err != nil {
		return common.Address{}, nil, nil, err
	}
	plan, err := toLoanPlan(r.Loans)
	if err != nil {
		return common.Address{}, nil, nil, err
	}
	route, err := toRoute(r.Route)
	if err != nil {
		return common.Address{}, nil, nil, err
	}
	return caller, plan, route, nil
}

// Decode converts the request into domain values.
func (r FundRequest) Decode() (caller common.Address, anchor domain.Asset,
	amount, value *uint256.Int, route domain.Route, err error) {
	if caller, err = parseAddress("caller", r.Caller); err != nil {
		return
	}
	if anchor, err = parseAsset("anchor", r.Anchor); err != nil {
		return
	}
	if amount, err = parseAmount("amount", r.Amount); err != nil {
		return
	}
	if value, err = parseOptionalAmount("value", r.Value); err != nil {
		return
	}
	route, err = toRoute(r.Route)
	return
}

// PairDTO mirrors domain.AssetPair.
type PairDTO struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// SettlementDTO mirrors domain.Settlement with string-encoded amounts.
type SettlementDTO struct {
	ID            string    `json:"id"`
	Caller        string    `json:"caller"`
	Platforms     []int     `json:"platforms"`
	Pairs         []PairDTO `json:"pairs"`
	SourceAssets  []string  `json:"sourceAssets"`
	SourceAmounts []string  `json:"sourceAmounts"`
	Burn          string    `json:"burn"`
	Reward        string    `json:"reward"`
	ExecutedAt    time.Time `json:"executedAt"`
}

// ToSettlementDTO converts a settlement record to its wire form.
func ToSettlementDTO(s domain.Settlement) SettlementDTO {
	dto := SettlementDTO{
		ID:         s.ID,
		Caller:     s.Caller.Hex(),
		Burn:       s.Burn.Dec(),
		Reward:     s.Reward.Dec(),
		ExecutedAt: s.ExecutedAt,
		Platforms:  make([]int, len(s.Platforms)),
	}
	for i, p := range s.Platforms {
		dto.Platforms[i] = int(p)
	}
	for _, p := range s.Pairs {
		dto.Pairs = append(dto.Pairs, PairDTO{Source: p.Source.String(), Target: p.Target.String()})
	}
	for _, a := range s.SourceAssets {
		dto.SourceAssets = append(dto.SourceAssets, a.String())
	}
	for _, v := range s.SourceAmounts {
		dto.SourceAmounts = append(dto.SourceAmounts, v.Dec())
	}
	return dto
}

func toRoute(steps []StepDTO) (domain.Route, error) {
	route := make(domain.Route, 0, len(steps))
	for i, s := range steps {
		step, err := toStep(s)
		if err != nil {
			return nil, fmt.Errorf("route[%d]: %w", i, err)
		}
		route = append(route, step)
	}
	return route, nil
}

func toStep(s StepDTO) (domain.RouteStep, error) {
	source, err := parseAsset("source", s.Source)
	if err != nil {
		return domain.RouteStep{}, err
	}
	target, err := parseAsset("target", s.Target)
	if err != nil {
		return domain.RouteStep{}, err
	}
	amount, err := parseOptionalAmount("amount", s.Amount)
	if err != nil {
		return domain.RouteStep{}, err
	}
	minReturn, err := parseOptionalAmount("minReturn", s.MinReturn)
	if err != nil {
		return domain.RouteStep{}, err
	}

	step := domain.RouteStep{
		Platform:  domain.PlatformID(s.Platform),
		Source:    source,
		Target:    target,
		Amount:    amount,
		MinReturn: minReturn,
	}
	if s.Deadline != "" {
		deadline, err := time.Parse(time.RFC3339, s.Deadline)
		if err != nil {
			return domain.RouteStep{}, fmt.Errorf("deadline: %v", err)
		}
		step.Deadline = deadline
	}

	switch {
	case len(s.Fills) > 0:
		fills := make([]domain.OrderFill, 0, len(s.Fills))
		for j, f := range s.Fills {
			id, err := parseAmount(fmt.Sprintf("fills[%d].strategyId", j), f.StrategyID)
			if err != nil {
				return domain.RouteStep{}, err
			}
			amt, err := parseAmount(fmt.Sprintf("fills[%d].amount", j), f.Amount)
			if err != nil {
				return domain.RouteStep{}, err
			}
			fills = append(fills, domain.OrderFill{StrategyID: id, Amount: amt})
		}
		step.Orders = &domain.OrderParams{Fills: fills}
	case s.FeeTier > 0:
		step.Pool = &domain.PoolParams{FeeTier: s.FeeTier}
	default:
		path := &domain.PathParams{}
		if s.Bridge != "" {
			bridge, err := parseAsset("bridge", s.Bridge)
			if err != nil {
				return domain.RouteStep{}, err
			}
			path.Bridge = bridge
		}
		step.Path = path
	}
	return step, nil
}

func toLoanPlan(loans []LoanRequestDTO) (domain.LoanPlan, error) {
	plan := make(domain.LoanPlan, 0, len(loans))
	for i, l := range loans {
		req := domain.LoanRequest{Platform: domain.PlatformID(l.Platform)}
		for j, a := range l.Assets {
			asset, err := parseAsset(fmt.Sprintf("loans[%d].assets[%d]", i, j), a)
			if err != nil {
				return nil, err
			}
			req.Assets = append(req.Assets, asset)
		}
		for j, v := range l.Amounts {
			amount, err := parseAmount(fmt.Sprintf("loans[%d].amounts[%d]", i, j), v)
			if err != nil {
				return nil, err
			}
			req.Amounts = append(req.Amounts, amount)
		}
		plan = append(plan, req)
	}
	return plan, nil
}
