package sale

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AllocationPool is the post-sale reserve drained by stakeholder claims.
type AllocationPool struct {
	Finalized  bool
	Initial    *uint256.Int
	Releasable *uint256.Int
}

type Role uint8

const (
	RoleTeam Role = iota
	RoleAdvisor
	RoleBounty
)

func (r Role) String() string {
	switch r {
	case RoleTeam:
		return "team"
	case RoleAdvisor:
		return "advisor"
	default:
		return "bounty"
	}
}

// vests reports whether claims registered under the role vest by default.
func (r Role) vests() bool { return r != RoleBounty }

// PostsalerEntry is a stakeholder's claim on the allocation pool.
type PostsalerEntry struct {
	Beneficiary common.Address
	Role        Role
	Amount      *uint256.Int
	HasVesting  bool
	Claimed     bool
}

// Claim describes a settled stakeholder claim.
type Claim struct {
	Payer       common.Address
	Beneficiary common.Address
	Amount      *uint256.Int
	Recipient   common.Address
	Vested      bool
	Remaining   *uint256.Int
}

var hundred = uint256.NewInt(100)

// Finalize computes the post-sale reserve and mints it to the sale account.
// It succeeds once, after EndTime.
func (s *Sale) Finalize(ctx context.Context, caller common.Address, now time.Time) (*uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOwner(caller); err != nil {
		return nil, err
	}
	if s.pool.Finalized {
		return nil, fmt.Errorf("finalize: %w", ErrAlreadyFinalized)
	}
	if now.Before(s.cfg.EndTime) {
		return nil, fmt.Errorf("finalize before %s: %w", s.cfg.EndTime.UTC().Format(time.RFC3339), ErrSaleNotEnded)
	}

	releasable, err := s.releasableFor(s.tokensSold)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.Mint(ctx, s.cfg.SaleAccount, releasable); err != nil {
		return nil, fmt.Errorf("finalize: mint reserve: %w", err)
	}
	s.pool = AllocationPool{
		Finalized:  true,
		Initial:    releasable,
		Releasable: new(uint256.Int).Set(releasable),
	}
	return new(uint256.Int).Set(releasable), nil
}

// releasableFor is safety + floor(floor(sold*100/salePct)*postsalePct/100).
func (s *Sale) releasableFor(sold *uint256.Int) (*uint256.Int, error) {
	total, overflow := new(uint256.Int).MulDivOverflow(sold, hundred, uint256.NewInt(s.cfg.Allocation.SalePct))
	if overflow {
		return nil, fmt.Errorf("finalize: total supply: %w", ErrOverflow)
	}
	postsale, _ := new(uint256.Int).MulDivOverflow(total, uint256.NewInt(s.cfg.Allocation.PostsalePct), hundred)
	releasable, overflow := new(uint256.Int).AddOverflow(postsale, s.cfg.Allocation.SafetyAllocation)
	if overflow {
		return nil, fmt.Errorf("finalize: releasable amount: %w", ErrOverflow)
	}
	return releasable, nil
}

func (s *Sale) AddTeamMember(caller, beneficiary common.Address, amount *uint256.Int) (PostsalerEntry, error) {
	return s.addPostsaler(caller, beneficiary, amount, RoleTeam)
}

func (s *Sale) AddAdvisor(caller, beneficiary common.Address, amount *uint256.Int) (PostsalerEntry, error) {
	return s.addPostsaler(caller, beneficiary, amount, RoleAdvisor)
}

func (s *Sale) AddBountyMember(caller, beneficiary common.Address, amount *uint256.Int) (PostsalerEntry, error) {
	return s.addPostsaler(caller, beneficiary, amount, RoleBounty)
}

// addPostsaler adds amount to beneficiary's entry. An entry registered under
// several roles vests if any of them does.
func (s *Sale) addPostsaler(caller, beneficiary common.Address, amount *uint256.Int, role Role) (PostsalerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOwner(caller); err != nil {
		return PostsalerEntry{}, err
	}
	if beneficiary == (common.Address{}) {
		return PostsalerEntry{}, fmt.Errorf("add %s: %w", role, ErrZeroAddress)
	}
	if amount == nil || amount.IsZero() {
		return PostsalerEntry{}, fmt.Errorf("add %s: zero amount: %w", role, ErrInvalidAmount)
	}

	entry, ok := s.postsalers[beneficiary]
	if !ok {
		entry = PostsalerEntry{Beneficiary: beneficiary, Role: role, Amount: new(uint256.Int)}
	}
	if entry.Claimed {
		return PostsalerEntry{}, fmt.Errorf("add %s %s: %w", role, beneficiary.Hex(), ErrAlreadyClaimed)
	}
	total, overflow := new(uint256.Int).AddOverflow(entry.Amount, amount)
	if overflow {
		return PostsalerEntry{}, fmt.Errorf("add %s %s: %w", role, beneficiary.Hex(), ErrOverflow)
	}
	entry.Amount = total
	entry.HasVesting = entry.HasVesting || role.vests()
	s.postsalers[beneficiary] = entry
	return entry, nil
}

// ClaimFromPostsaler settles beneficiary's entry out of the pool. Any payer
// may submit it; the tokens only ever reach the beneficiary.
func (s *Sale) ClaimFromPostsaler(ctx context.Context, payer, beneficiary common.Address, now time.Time) (Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pool.Finalized {
		return Claim{}, fmt.Errorf("claim for %s: %w", beneficiary.Hex(), ErrNotFinalized)
	}
	entry, ok := s.postsalers[beneficiary]
	switch {
	case !ok:
		return Claim{}, fmt.Errorf("claim for %s: %w", beneficiary.Hex(), ErrUnknownBeneficiary)
	case entry.Claimed:
		return Claim{}, fmt.Errorf("claim for %s: %w", beneficiary.Hex(), ErrAlreadyClaimed)
	case entry.Amount.Gt(s.pool.Releasable):
		return Claim{}, fmt.Errorf("claim for %s: %s exceeds pool %s: %w",
			beneficiary.Hex(), entry.Amount, s.pool.Releasable, ErrInsufficientPool)
	}

	c := Claim{
		Payer:       payer,
		Beneficiary: beneficiary,
		Amount:      new(uint256.Int).Set(entry.Amount),
		Recipient:   beneficiary,
	}
	var sched VestingSchedule
	if entry.HasVesting {
		var err error
		sched, err = s.planSchedule(scheduleRequest{
			beneficiary: beneficiary,
			amount:      entry.Amount,
			start:       s.cfg.EndTime,
			cliff:       s.cfg.Postsale.Cliff,
			duration:    s.cfg.Postsale.Duration,
			revocable:   s.cfg.Postsale.Revocable,
		})
		if err != nil {
			return Claim{}, err
		}
		c.Recipient = sched.Escrow
		c.Vested = true
	}

	if err := s.ledger.Transfer(ctx, s.cfg.SaleAccount, c.Recipient, entry.Amount); err != nil {
		return Claim{}, fmt.Errorf("claim for %s: %w", beneficiary.Hex(), err)
	}

	s.pool.Releasable = new(uint256.Int).Sub(s.pool.Releasable, entry.Amount)
	entry.Claimed = true
	s.postsalers[beneficiary] = entry
	if c.Vested {
		s.schedules[beneficiary] = sched
	}
	c.Remaining = new(uint256.Int).Set(s.pool.Releasable)
	return c, nil
}

// PostsalerAmount returns the registered entry of beneficiary.
func (s *Sale) PostsalerAmount(beneficiary common.Address) (PostsalerEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.postsalers[beneficiary]
	return entry, ok
}

func (s *Sale) Pool() AllocationPool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool
}

func (s *Sale) Finalized() bool {
	return s.Pool().Finalized
}
