package sale

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Purchase describes a settled contribution.
type Purchase struct {
	Payer     common.Address
	Investor  common.Address
	Amount    *uint256.Int
	Tokens    *uint256.Int
	Bonus     BasisPoints
	BonusRule string
	Phase     Phase
	// Recipient is the investor, or the investor's escrow when the tokens vest.
	Recipient common.Address
	Vested    bool
}

// BuyTokens converts amount into tokens for investor. payer may differ from
// investor; the tokens always go to investor.
func (s *Sale) BuyTokens(ctx context.Context, payer, investor common.Address, amount *uint256.Int, now time.Time) (Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if investor == (common.Address{}) {
		return Purchase{}, fmt.Errorf("buy tokens: %w", ErrZeroAddress)
	}
	if amount == nil || amount.IsZero() {
		return Purchase{}, fmt.Errorf("buy tokens: zero amount: %w", ErrBelowMinimum)
	}

	phase := s.cfg.PhaseAt(now)
	rec, _ := s.investors.get(investor)
	if presalePurchase(rec, phase) && amount.Lt(s.cfg.PresaleMinInvestment) {
		return Purchase{}, fmt.Errorf("buy tokens: %s below presale minimum %s: %w",
			amount, s.cfg.PresaleMinInvestment, ErrBelowMinimum)
	}

	adm, err := s.authorize(rec, amount, phase)
	if err != nil {
		return Purchase{}, err
	}

	bp, rule := s.cfg.bonusFor(bonusInput{rec: rec, amount: amount, phase: phase, now: now})
	tokens, err := TokensFor(amount, s.cfg.Rate, bp)
	if err != nil {
		return Purchase{}, err
	}
	tokensSold, overflow := new(uint256.Int).AddOverflow(s.tokensSold, tokens)
	if overflow {
		return Purchase{}, fmt.Errorf("buy tokens: tokens sold: %w", ErrOverflow)
	}
	contributed, overflow := new(uint256.Int).AddOverflow(rec.TotalContributed, amount)
	if overflow {
		return Purchase{}, fmt.Errorf("buy tokens: investor total: %w", ErrOverflow)
	}

	p := Purchase{
		Payer:     payer,
		Investor:  investor,
		Amount:    new(uint256.Int).Set(amount),
		Tokens:    tokens,
		Bonus:     bp,
		BonusRule: rule,
		Phase:     phase,
		Recipient: investor,
	}

	var sched VestingSchedule
	if req, ok := s.purchaseVesting(rec, amount, adm.presale); ok {
		req.amount = tokens
		sched, err = s.planSchedule(req)
		if err != nil {
			return Purchase{}, err
		}
		p.Recipient = sched.Escrow
		p.Vested = true
	}

	if err := s.ledger.Mint(ctx, p.Recipient, tokens); err != nil {
		return Purchase{}, fmt.Errorf("buy tokens: mint: %w", err)
	}

	// Nothing below can fail.
	s.weiRaised = adm.newWeiRaised
	s.tokensSold = tokensSold
	rec.TotalContributed = contributed
	if adm.presale {
		s.presaleRaised = new(uint256.Int).Add(s.presaleRaised, amount)
		rec.PresaleContributed = new(uint256.Int).Add(rec.PresaleContributed, amount)
	}
	if adm.newBoundary != nil {
		rec.RemainingBoundary = adm.newBoundary
	}
	if adm.promote && rec.Tier < TierDayTwo {
		rec.Tier = TierDayTwo
	}
	s.investors.put(rec)
	if p.Vested {
		s.schedules[investor] = sched
	}
	return p, nil
}

// purchaseVesting decides whether a purchase vests and on which terms.
// Presale purchases always vest, anchored at the presaler's own start.
func (s *Sale) purchaseVesting(rec InvestorRecord, amount *uint256.Int, presale bool) (scheduleRequest, bool) {
	if !presale && !s.cfg.Vesting.VestRegularPurchases {
		return scheduleRequest{}, false
	}
	req := scheduleRequest{
		beneficiary: rec.Address,
		start:       s.cfg.EndTime,
		duration:    s.cfg.tierDuration(amount),
		topUp:       true,
	}
	if presale {
		if !rec.VestingStart.IsZero() {
			req.start = rec.VestingStart
		}
		if rec.VestingDuration > 0 {
			req.duration = rec.VestingDuration
		}
	}
	req.cliff = min(s.cfg.Vesting.BaseCliff, req.duration)
	return req, true
}
