package sale

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type Tier uint8

const (
	TierNone Tier = iota
	TierDayOne
	TierDayTwo
)

func (t Tier) String() string {
	switch t {
	case TierDayOne:
		return "day_one"
	case TierDayTwo:
		return "day_two"
	default:
		return "none"
	}
}

// InvestorRecord is the admission state of one investor. Amount fields are
// replaced, never mutated in place, so copies of a record are safe to hand out.
type InvestorRecord struct {
	Address            common.Address
	TotalContributed   *uint256.Int
	PresaleContributed *uint256.Int
	Tier               Tier
	RemainingBoundary  *uint256.Int

	IsPresaler      bool
	PresaleCap      *uint256.Int
	VestingDuration time.Duration
	VestingStart    time.Time
	CustomBonus     *BasisPoints
}

func newInvestorRecord(addr common.Address) InvestorRecord {
	return InvestorRecord{
		Address:            addr,
		TotalContributed:   new(uint256.Int),
		PresaleContributed: new(uint256.Int),
		RemainingBoundary:  new(uint256.Int),
		PresaleCap:         new(uint256.Int),
	}
}

// PresaleAllowance is what the investor may still contribute during presale.
func (r InvestorRecord) PresaleAllowance() *uint256.Int {
	if !r.IsPresaler || r.PresaleContributed.Gt(r.PresaleCap) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(r.PresaleCap, r.PresaleContributed)
}

// investorBook stores records in an arena indexed by address.
type investorBook struct {
	index   map[common.Address]int
	records []InvestorRecord
}

func newInvestorBook() *investorBook {
	return &investorBook{index: make(map[common.Address]int)}
}

func (b *investorBook) get(addr common.Address) (InvestorRecord, bool) {
	i, ok := b.index[addr]
	if !ok {
		return newInvestorRecord(addr), false
	}
	return b.records[i], true
}

func (b *investorBook) put(rec InvestorRecord) {
	if i, ok := b.index[rec.Address]; ok {
		b.records[i] = rec
		return
	}
	b.index[rec.Address] = len(b.records)
	b.records = append(b.records, rec)
}

func (b *investorBook) len() int { return len(b.records) }

// PresalerTerms configures a presale allowance.
type PresalerTerms struct {
	Cap             *uint256.Int
	VestingDuration time.Duration
	CustomBonus     *BasisPoints
	// VestingStart anchors the presaler's schedule. Zero means EndTime.
	VestingStart time.Time
}

// RegisterDayOne admits investor on whitelist day one with the given
// boundary, or the configured default when boundary is nil.
func (s *Sale) RegisterDayOne(caller, investor common.Address, boundary *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if investor == (common.Address{}) {
		return fmt.Errorf("register day one: %w", ErrZeroAddress)
	}
	if boundary == nil {
		boundary = s.cfg.DefaultDayOneBoundary
	}
	rec, _ := s.investors.get(investor)
	if rec.Tier < TierDayOne {
		rec.Tier = TierDayOne
	}
	rec.RemainingBoundary = new(uint256.Int).Set(boundary)
	s.investors.put(rec)
	return nil
}

// RegisterDayTwo admits investor from whitelist day two on.
func (s *Sale) RegisterDayTwo(caller, investor common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if investor == (common.Address{}) {
		return fmt.Errorf("register day two: %w", ErrZeroAddress)
	}
	rec, _ := s.investors.get(investor)
	rec.Tier = TierDayTwo
	s.investors.put(rec)
	return nil
}

// RegisterPresaler creates or overwrites the presale allowance of investor.
// It is only accepted before StartTime.
func (s *Sale) RegisterPresaler(caller, investor common.Address, terms PresalerTerms, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if investor == (common.Address{}) {
		return fmt.Errorf("register presaler: %w", ErrZeroAddress)
	}
	if !now.Before(s.cfg.StartTime) {
		return fmt.Errorf("register presaler after sale start: %w", ErrPhaseViolation)
	}
	if terms.Cap == nil || terms.Cap.IsZero() {
		return fmt.Errorf("register presaler: empty cap: %w", ErrInvalidAmount)
	}
	if terms.VestingDuration < 0 {
		return fmt.Errorf("register presaler: negative vesting duration: %w", ErrInvalidAmount)
	}
	if terms.CustomBonus != nil && *terms.CustomBonus > MaxBasisPoints {
		return fmt.Errorf("register presaler: bonus %d above %d: %w", *terms.CustomBonus, MaxBasisPoints, ErrInvalidAmount)
	}

	rec, _ := s.investors.get(investor)
	rec.IsPresaler = true
	rec.PresaleCap = new(uint256.Int).Set(terms.Cap)
	rec.VestingDuration = terms.VestingDuration
	rec.VestingStart = terms.VestingStart
	rec.CustomBonus = nil
	if terms.CustomBonus != nil {
		bp := *terms.CustomBonus
		rec.CustomBonus = &bp
	}
	s.investors.put(rec)
	return nil
}

// admission is the outcome of a successful authorize call. It is applied
// only after every other step of a purchase has succeeded.
type admission struct {
	presale      bool
	newBoundary  *uint256.Int
	promote      bool
	newWeiRaised *uint256.Int
}

// presalePurchase reports whether a purchase by rec in phase is a presale
// purchase. A registered presaler buying while the sale is inactive is
// treated as one.
func presalePurchase(rec InvestorRecord, phase Phase) bool {
	return phase == Presale || (phase == Inactive && rec.IsPresaler)
}

func (s *Sale) authorize(rec InvestorRecord, amount *uint256.Int, phase Phase) (admission, error) {
	var adm admission

	switch {
	case presalePurchase(rec, phase):
		if !rec.IsPresaler {
			return adm, fmt.Errorf("investor %s has no presale allowance: %w", rec.Address.Hex(), ErrPhaseViolation)
		}
		if amount.Gt(rec.PresaleAllowance()) {
			return adm, fmt.Errorf("presale allowance exceeded: %w", ErrCapViolation)
		}
		raised, overflow := new(uint256.Int).AddOverflow(s.presaleRaised, amount)
		if overflow || raised.Gt(s.cfg.PresaleCap) {
			return adm, fmt.Errorf("presale cap exceeded: %w", ErrCapViolation)
		}
		adm.presale = true
	case phase == WhitelistDayOne:
		if rec.Tier < TierDayOne {
			return adm, fmt.Errorf("investor %s not whitelisted for day one: %w", rec.Address.Hex(), ErrPhaseViolation)
		}
		if amount.Gt(rec.RemainingBoundary) {
			return adm, fmt.Errorf("day one boundary exceeded: %w", ErrCapViolation)
		}
		adm.newBoundary = new(uint256.Int).Sub(rec.RemainingBoundary, amount)
		adm.promote = true
	case phase == WhitelistDayTwo:
		if rec.Tier < TierDayTwo {
			return adm, fmt.Errorf("investor %s not whitelisted for day two: %w", rec.Address.Hex(), ErrPhaseViolation)
		}
	case phase == OpenSale:
	default:
		return adm, fmt.Errorf("purchase during %s: %w", phase, ErrPhaseViolation)
	}

	raised, overflow := new(uint256.Int).AddOverflow(s.weiRaised, amount)
	if overflow || raised.Gt(s.cfg.Cap) {
		return adm, fmt.Errorf("cap exceeded: %w", ErrCapViolation)
	}
	adm.newWeiRaised = raised
	return adm, nil
}

// Investor returns the record of addr, if one exists.
func (s *Sale) Investor(addr common.Address) (InvestorRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.investors.get(addr)
}

func (s *Sale) IsWhitelistedOnDayOne(addr common.Address) bool {
	rec, _ := s.Investor(addr)
	return rec.Tier >= TierDayOne
}

func (s *Sale) IsWhitelistedOnDayTwo(addr common.Address) bool {
	rec, _ := s.Investor(addr)
	return rec.Tier >= TierDayTwo
}

// PresaleBoundary is the remaining presale allowance of addr.
func (s *Sale) PresaleBoundary(addr common.Address) *uint256.Int {
	rec, _ := s.Investor(addr)
	return rec.PresaleAllowance()
}
