package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/skara-labs/crowdgate/internal/model"
	"github.com/skara-labs/crowdgate/internal/pkg/logger"
	"github.com/skara-labs/crowdgate/internal/pkg/metrics"
	"github.com/skara-labs/crowdgate/internal/sale"
)

// SaleService fronts the sale core. Each call samples the clock exactly
// once and records an event for every committed operation.
type SaleService struct {
	sale   *sale.Sale
	ledger sale.TokenLedger
	clock  sale.Clock
	events *EventService
}

func NewSaleService(s *sale.Sale, ledger sale.TokenLedger, clock sale.Clock, events *EventService) *SaleService {
	if clock == nil {
		clock = sale.SystemClock{}
	}
	return &SaleService{sale: s, ledger: ledger, clock: clock, events: events}
}

func (s *SaleService) Now() time.Time { return s.clock.Now() }

func (s *SaleService) Owner() common.Address { return s.sale.Config().Owner }

func (s *SaleService) record(ctx context.Context, e *model.SaleEvent) {
	if s.events == nil {
		return
	}
	e.RequestID = RequestIDFrom(ctx)
	s.events.Publish(e)
}

func (s *SaleService) rejected(ctx context.Context, op string, err error, args ...any) {
	kind := sale.Kind(err)
	if kind == "" {
		kind = "internal"
	}
	metrics.Rejections.WithLabelValues(op, kind).Inc()
	logger.WarnContext(ctx, "Sale operation rejected", append([]any{"op", op, "kind", kind, "error", err.Error()}, args...)...)
}

func wholeTokens(v *uint256.Int) float64 {
	return decimal.NewFromBigInt(v.ToBig(), -model.Decimals).InexactFloat64()
}

func (s *SaleService) Purchase(ctx context.Context, payer, investor common.Address, amount *uint256.Int) (sale.Purchase, error) {
	now := s.clock.Now()
	p, err := s.sale.BuyTokens(ctx, payer, investor, amount, now)
	if err != nil {
		metrics.PurchasesTotal.WithLabelValues(s.sale.Phase(now).String(), "rejected").Inc()
		s.rejected(ctx, "purchase", err, "investor", investor.Hex())
		return p, err
	}
	metrics.PurchasesTotal.WithLabelValues(p.Phase.String(), "accepted").Inc()
	metrics.TokensIssued.Add(wholeTokens(p.Tokens))
	logger.Get().InfoContext(ctx, "Tokens purchased",
		"investor", investor.Hex(),
		"amount", model.FormatUnits(p.Amount),
		"tokens", model.FormatUnits(p.Tokens),
		"bonus_bp", p.Bonus,
		"phase", p.Phase.String(),
		"vested", p.Vested,
	)
	s.record(ctx, &model.SaleEvent{
		Type:    model.EventPurchase,
		Actor:   payer.Hex(),
		Subject: investor.Hex(),
		Phase:   p.Phase.String(),
		Amount:  model.FormatUnits(p.Amount),
		Tokens:  model.FormatUnits(p.Tokens),
		Details: map[string]string{
			"bonus_bp":   fmt.Sprint(p.Bonus),
			"bonus_rule": p.BonusRule,
			"recipient":  p.Recipient.Hex(),
			"vested":     fmt.Sprint(p.Vested),
		},
		CreatedAt: now,
	})
	return p, nil
}

func (s *SaleService) RegisterDayOne(ctx context.Context, caller, investor common.Address, boundary *uint256.Int) error {
	if err := s.sale.RegisterDayOne(caller, investor, boundary); err != nil {
		s.rejected(ctx, "register_day_one", err, "investor", investor.Hex())
		return err
	}
	rec, _ := s.sale.Investor(investor)
	s.record(ctx, &model.SaleEvent{
		Type:      model.EventWhitelisted,
		Actor:     caller.Hex(),
		Subject:   investor.Hex(),
		Amount:    model.FormatUnits(rec.RemainingBoundary),
		Details:   map[string]string{"tier": sale.TierDayOne.String()},
		CreatedAt: s.clock.Now(),
	})
	return nil
}

func (s *SaleService) RegisterDayTwo(ctx context.Context, caller, investor common.Address) error {
	if err := s.sale.RegisterDayTwo(caller, investor); err != nil {
		s.rejected(ctx, "register_day_two", err, "investor", investor.Hex())
		return err
	}
	s.record(ctx, &model.SaleEvent{
		Type:      model.EventWhitelisted,
		Actor:     caller.Hex(),
		Subject:   investor.Hex(),
		Details:   map[string]string{"tier": sale.TierDayTwo.String()},
		CreatedAt: s.clock.Now(),
	})
	return nil
}

func (s *SaleService) RegisterPresaler(ctx context.Context, caller, investor common.Address, terms sale.PresalerTerms) error {
	now := s.clock.Now()
	if err := s.sale.RegisterPresaler(caller, investor, terms, now); err != nil {
		s.rejected(ctx, "register_presaler", err, "investor", investor.Hex())
		return err
	}
	details := map[string]string{"vesting_duration": terms.VestingDuration.String()}
	if terms.CustomBonus != nil {
		details["custom_bonus_bp"] = fmt.Sprint(*terms.CustomBonus)
	}
	s.record(ctx, &model.SaleEvent{
		Type:      model.EventPresaler,
		Actor:     caller.Hex(),
		Subject:   investor.Hex(),
		Amount:    model.FormatUnits(terms.Cap),
		Details:   details,
		CreatedAt: now,
	})
	return nil
}

func (s *SaleService) AddStakeholder(ctx context.Context, caller common.Address, role sale.Role, beneficiary common.Address, amount *uint256.Int) (sale.PostsalerEntry, error) {
	var (
		entry sale.PostsalerEntry
		err   error
	)
	switch role {
	case sale.RoleTeam:
		entry, err = s.sale.AddTeamMember(caller, beneficiary, amount)
	case sale.RoleAdvisor:
		entry, err = s.sale.AddAdvisor(caller, beneficiary, amount)
	default:
		entry, err = s.sale.AddBountyMember(caller, beneficiary, amount)
	}
	if err != nil {
		s.rejected(ctx, "add_"+role.String(), err, "beneficiary", beneficiary.Hex())
		return entry, err
	}
	s.record(ctx, &model.SaleEvent{
		Type:    model.EventPostsalerAdded,
		Actor:   caller.Hex(),
		Subject: beneficiary.Hex(),
		Tokens:  model.FormatUnits(amount),
		Details: map[string]string{
			"role":        role.String(),
			"total":       model.FormatUnits(entry.Amount),
			"has_vesting": fmt.Sprint(entry.HasVesting),
		},
		CreatedAt: s.clock.Now(),
	})
	return entry, nil
}

func (s *SaleService) Finalize(ctx context.Context, caller common.Address) (*uint256.Int, error) {
	now := s.clock.Now()
	releasable, err := s.sale.Finalize(ctx, caller, now)
	if err != nil {
		s.rejected(ctx, "finalize", err)
		return nil, err
	}
	snap := s.sale.Snapshot()
	logger.Get().InfoContext(ctx, "Sale finalized",
		"tokens_sold", model.FormatUnits(snap.TokensSold),
		"releasable", model.FormatUnits(releasable),
	)
	s.record(ctx, &model.SaleEvent{
		Type:      model.EventFinalized,
		Actor:     caller.Hex(),
		Subject:   s.sale.Config().SaleAccount.Hex(),
		Phase:     s.sale.Phase(now).String(),
		Amount:    model.FormatUnits(snap.WeiRaised),
		Tokens:    model.FormatUnits(releasable),
		Details:   map[string]string{"tokens_sold": model.FormatUnits(snap.TokensSold)},
		CreatedAt: now,
	})
	return releasable, nil
}

func (s *SaleService) Claim(ctx context.Context, payer, beneficiary common.Address) (sale.Claim, error) {
	now := s.clock.Now()
	c, err := s.sale.ClaimFromPostsaler(ctx, payer, beneficiary, now)
	if err != nil {
		metrics.ClaimsTotal.WithLabelValues("rejected").Inc()
		s.rejected(ctx, "claim", err, "beneficiary", beneficiary.Hex())
		return c, err
	}
	metrics.ClaimsTotal.WithLabelValues("settled").Inc()
	s.record(ctx, &model.SaleEvent{
		Type:    model.EventClaimed,
		Actor:   payer.Hex(),
		Subject: beneficiary.Hex(),
		Tokens:  model.FormatUnits(c.Amount),
		Details: map[string]string{
			"recipient": c.Recipient.Hex(),
			"vested":    fmt.Sprint(c.Vested),
			"pool_left": model.FormatUnits(c.Remaining),
		},
		CreatedAt: now,
	})
	return c, nil
}

func (s *SaleService) Release(ctx context.Context, caller, beneficiary common.Address) (*uint256.Int, error) {
	now := s.clock.Now()
	amount, err := s.sale.Release(ctx, beneficiary, now)
	if err != nil {
		s.rejected(ctx, "release", err, "beneficiary", beneficiary.Hex())
		return nil, err
	}
	metrics.VestingReleases.Inc()
	s.record(ctx, &model.SaleEvent{
		Type:      model.EventVestingReleased,
		Actor:     caller.Hex(),
		Subject:   beneficiary.Hex(),
		Tokens:    model.FormatUnits(amount),
		CreatedAt: now,
	})
	return amount, nil
}

func (s *SaleService) Revoke(ctx context.Context, caller, beneficiary common.Address) (*uint256.Int, error) {
	now := s.clock.Now()
	refund, err := s.sale.Revoke(ctx, caller, beneficiary, now)
	if err != nil {
		s.rejected(ctx, "revoke", err, "beneficiary", beneficiary.Hex())
		return nil, err
	}
	logger.Get().InfoContext(ctx, "Vesting revoked", "beneficiary", beneficiary.Hex(), "refund", model.FormatUnits(refund))
	s.record(ctx, &model.SaleEvent{
		Type:      model.EventVestingRevoked,
		Actor:     caller.Hex(),
		Subject:   beneficiary.Hex(),
		Tokens:    model.FormatUnits(refund),
		CreatedAt: now,
	})
	return refund, nil
}

// SaleStatus is a point-in-time view of the sale.
type SaleStatus struct {
	Now      time.Time
	Phase    sale.Phase
	Config   sale.Config
	Snapshot sale.Snapshot
}

func (s *SaleService) Status() SaleStatus {
	now := s.clock.Now()
	return SaleStatus{
		Now:      now,
		Phase:    s.sale.Phase(now),
		Config:   s.sale.Config(),
		Snapshot: s.sale.Snapshot(),
	}
}

// InvestorView combines an investor record with derived flags.
type InvestorView struct {
	Record     sale.InvestorRecord
	Known      bool
	HasVesting bool
}

func (s *SaleService) Investor(addr common.Address) InvestorView {
	rec, known := s.sale.Investor(addr)
	return InvestorView{Record: rec, Known: known, HasVesting: s.sale.HasVesting(addr)}
}

func (s *SaleService) Bonus(addr common.Address, amount *uint256.Int) (sale.BasisPoints, sale.Phase) {
	now := s.clock.Now()
	return s.sale.GetBonus(addr, amount, now), s.sale.Phase(now)
}

// VestingView is a schedule with the amounts derived at the sampled time.
type VestingView struct {
	Schedule   sale.VestingSchedule
	Vested     *uint256.Int
	Releasable *uint256.Int
}

func (s *SaleService) Vesting(addr common.Address) (VestingView, bool) {
	sched, ok := s.sale.Schedule(addr)
	if !ok {
		return VestingView{}, false
	}
	now := s.clock.Now()
	return VestingView{
		Schedule:   sched,
		Vested:     sched.VestedAmount(now),
		Releasable: sched.Releasable(now),
	}, true
}

func (s *SaleService) Pool() (sale.AllocationPool, common.Address) {
	return s.sale.Pool(), s.sale.Config().SaleAccount
}

func (s *SaleService) Postsaler(addr common.Address) (sale.PostsalerEntry, bool) {
	return s.sale.PostsalerAmount(addr)
}

func (s *SaleService) Balance(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	return s.ledger.BalanceOf(ctx, addr)
}

func (s *SaleService) Events(ctx context.Context, filter model.EventFilter) ([]*model.SaleEvent, error) {
	if s.events == nil {
		return nil, nil
	}
	return s.events.List(ctx, filter)
}
