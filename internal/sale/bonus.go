package sale

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type bonusInput struct {
	rec    InvestorRecord
	amount *uint256.Int
	phase  Phase
	now    time.Time
}

// bonusRule yields a rate when it matches. Rules are tried in order and the
// first match wins.
type bonusRule struct {
	name  string
	match func(c *Config, in bonusInput) (BasisPoints, bool)
}

var bonusRules = []bonusRule{
	{"custom", func(_ *Config, in bonusInput) (BasisPoints, bool) {
		if in.rec.CustomBonus == nil {
			return 0, false
		}
		return *in.rec.CustomBonus, true
	}},
	{"presale", func(c *Config, in bonusInput) (BasisPoints, bool) {
		if !presalePurchase(in.rec, in.phase) {
			return 0, false
		}
		switch {
		case in.amount.Lt(c.InvestmentLowThreshold):
			return c.Bonus.PresaleLow, true
		case in.amount.Lt(c.InvestmentMediumThreshold):
			return c.Bonus.PresaleMedium, true
		default:
			return c.Bonus.PresaleHigh, true
		}
	}},
	{"day_one", func(c *Config, in bonusInput) (BasisPoints, bool) {
		return c.Bonus.DayOne, in.phase == WhitelistDayOne
	}},
	{"day_two", func(c *Config, in bonusInput) (BasisPoints, bool) {
		return c.Bonus.DayTwo, in.phase == WhitelistDayTwo
	}},
	{"open_bonus", func(c *Config, in bonusInput) (BasisPoints, bool) {
		return c.Bonus.OpenBonus, in.phase == OpenSale && inOpenBonusWindow(c, in.now)
	}},
}

func (c *Config) bonusFor(in bonusInput) (BasisPoints, string) {
	for _, rule := range bonusRules {
		if bp, ok := rule.match(c, in); ok {
			return bp, rule.name
		}
	}
	return 0, "none"
}

// GetBonus returns the bonus investor would receive for amount at now.
func (s *Sale) GetBonus(investor common.Address, amount *uint256.Int, now time.Time) BasisPoints {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, _ := s.investors.get(investor)
	if amount == nil {
		amount = new(uint256.Int)
	}
	bp, _ := s.cfg.bonusFor(bonusInput{rec: rec, amount: amount, phase: s.cfg.PhaseAt(now), now: now})
	return bp
}

var bpDenominator = uint256.NewInt(uint64(MaxBasisPoints))

// TokensFor computes floor(amount * rate * (10000 + bp) / 10000). The only
// rounding step is the final division.
func TokensFor(amount, rate *uint256.Int, bp BasisPoints) (*uint256.Int, error) {
	base, overflow := new(uint256.Int).MulOverflow(amount, rate)
	if overflow {
		return nil, fmt.Errorf("tokens for %s at rate %s: %w", amount, rate, ErrOverflow)
	}
	factor := uint256.NewInt(uint64(MaxBasisPoints) + uint64(bp))
	tokens, overflow := new(uint256.Int).MulDivOverflow(base, factor, bpDenominator)
	if overflow {
		return nil, fmt.Errorf("tokens for %s at rate %s: %w", amount, rate, ErrOverflow)
	}
	return tokens, nil
}
