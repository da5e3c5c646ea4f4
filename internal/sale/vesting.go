package sale

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// VestingSchedule locks TotalAllocated tokens in the Escrow account and
// releases them linearly from Start, gated by Cliff.
type VestingSchedule struct {
	Beneficiary    common.Address
	Escrow         common.Address
	TotalAllocated *uint256.Int
	Released       *uint256.Int
	Start          time.Time
	Cliff          time.Duration
	Duration       time.Duration
	Revocable      bool
	Revoked        bool
}

// VestingAddress is the escrow account holding the locked tokens of
// beneficiary.
func VestingAddress(beneficiary common.Address) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("crowdgate.vesting"), beneficiary.Bytes()))
}

// VestedAmount is the part of TotalAllocated unlocked at now. A revoked
// schedule is frozen at the amount vested when it was revoked.
func (v VestingSchedule) VestedAmount(now time.Time) *uint256.Int {
	if v.Revoked || !now.Before(v.Start.Add(v.Duration)) {
		return new(uint256.Int).Set(v.TotalAllocated)
	}
	if now.Before(v.Start.Add(v.Cliff)) {
		return new(uint256.Int)
	}
	// elapsed and duration share nanosecond precision.
	elapsed := now.Sub(v.Start)
	if elapsed <= 0 {
		return new(uint256.Int)
	}
	if v.Duration <= 0 || elapsed >= v.Duration {
		return new(uint256.Int).Set(v.TotalAllocated)
	}
	vested, overflow := new(uint256.Int).MulDivOverflow(v.TotalAllocated, uint256.NewInt(uint64(elapsed)), uint256.NewInt(uint64(v.Duration)))
	if overflow || vested.Gt(v.TotalAllocated) {
		return new(uint256.Int).Set(v.TotalAllocated)
	}
	return vested
}

// Releasable is the vested amount not yet paid out.
func (v VestingSchedule) Releasable(now time.Time) *uint256.Int {
	vested := v.VestedAmount(now)
	if !vested.Gt(v.Released) {
		return new(uint256.Int)
	}
	return vested.Sub(vested, v.Released)
}

func (v VestingSchedule) outstanding() bool {
	return v.TotalAllocated.Gt(v.Released)
}

// lockedAmount is what the escrow still holds for this schedule.
func (v VestingSchedule) lockedAmount() *uint256.Int {
	if !v.outstanding() {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(v.TotalAllocated, v.Released)
}

type scheduleRequest struct {
	beneficiary common.Address
	amount      *uint256.Int
	start       time.Time
	cliff       time.Duration
	duration    time.Duration
	revocable   bool
	// topUp lets an existing compatible schedule absorb the amount instead
	// of conflicting with it.
	topUp bool
}

// planSchedule returns the schedule that would exist after allocating
// req.amount to req.beneficiary. It never touches the ledger or the book.
func (s *Sale) planSchedule(req scheduleRequest) (VestingSchedule, error) {
	if req.cliff < 0 || req.duration < 0 || req.cliff > req.duration {
		return VestingSchedule{}, fmt.Errorf("schedule for %s: cliff %s beyond duration %s: %w",
			req.beneficiary.Hex(), req.cliff, req.duration, ErrInvalidAmount)
	}
	existing, ok := s.schedules[req.beneficiary]
	if ok && existing.outstanding() {
		if !req.topUp || existing.Revoked || existing.Revocable || req.revocable {
			return VestingSchedule{}, fmt.Errorf("schedule for %s has an outstanding balance: %w",
				req.beneficiary.Hex(), ErrScheduleConflict)
		}
		total, overflow := new(uint256.Int).AddOverflow(existing.TotalAllocated, req.amount)
		if overflow {
			return VestingSchedule{}, fmt.Errorf("top up schedule for %s: %w", req.beneficiary.Hex(), ErrOverflow)
		}
		existing.TotalAllocated = total
		return existing, nil
	}
	return VestingSchedule{
		Beneficiary:    req.beneficiary,
		Escrow:         VestingAddress(req.beneficiary),
		TotalAllocated: new(uint256.Int).Set(req.amount),
		Released:       new(uint256.Int),
		Start:          req.start,
		Cliff:          req.cliff,
		Duration:       req.duration,
		Revocable:      req.revocable,
	}, nil
}

// Release pays the releasable part of beneficiary's schedule to the
// beneficiary. Anyone may trigger it.
func (s *Sale) Release(ctx context.Context, beneficiary common.Address, now time.Time) (*uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[beneficiary]
	if !ok {
		return nil, fmt.Errorf("release for %s: %w", beneficiary.Hex(), ErrNoSchedule)
	}
	amount := sched.Releasable(now)
	if amount.IsZero() {
		return nil, fmt.Errorf("release for %s: %w", beneficiary.Hex(), ErrNothingToRelease)
	}
	if err := s.ledger.Transfer(ctx, sched.Escrow, beneficiary, amount); err != nil {
		return nil, fmt.Errorf("release for %s: %w", beneficiary.Hex(), err)
	}
	sched.Released = new(uint256.Int).Add(sched.Released, amount)
	s.schedules[beneficiary] = sched
	return amount, nil
}

// Revoke returns the unvested part of beneficiary's schedule to the owner
// and freezes the schedule at its vested amount. It returns the refund.
func (s *Sale) Revoke(ctx context.Context, caller, beneficiary common.Address, now time.Time) (*uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOwner(caller); err != nil {
		return nil, err
	}
	sched, ok := s.schedules[beneficiary]
	switch {
	case !ok:
		return nil, fmt.Errorf("revoke %s: %w", beneficiary.Hex(), ErrNoSchedule)
	case !sched.Revocable:
		return nil, fmt.Errorf("revoke %s: %w", beneficiary.Hex(), ErrNotRevocable)
	case sched.Revoked:
		return nil, fmt.Errorf("revoke %s: %w", beneficiary.Hex(), ErrAlreadyRevoked)
	}

	vested := sched.VestedAmount(now)
	refund := new(uint256.Int)
	if sched.TotalAllocated.Gt(vested) {
		refund.Sub(sched.TotalAllocated, vested)
	}
	if !refund.IsZero() {
		if err := s.ledger.Transfer(ctx, sched.Escrow, s.cfg.Owner, refund); err != nil {
			return nil, fmt.Errorf("revoke %s: %w", beneficiary.Hex(), err)
		}
	}
	sched.TotalAllocated = vested
	sched.Revoked = true
	s.schedules[beneficiary] = sched
	return refund, nil
}

// Schedule returns the vesting schedule of beneficiary, if any.
func (s *Sale) Schedule(beneficiary common.Address) (VestingSchedule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[beneficiary]
	return sched, ok
}

func (s *Sale) HasVesting(beneficiary common.Address) bool {
	_, ok := s.Schedule(beneficiary)
	return ok
}

func (s *Sale) VestedAmount(beneficiary common.Address, now time.Time) (*uint256.Int, error) {
	sched, ok := s.Schedule(beneficiary)
	if !ok {
		return nil, fmt.Errorf("vested amount for %s: %w", beneficiary.Hex(), ErrNoSchedule)
	}
	return sched.VestedAmount(now), nil
}

func (s *Sale) ReleasableAmount(beneficiary common.Address, now time.Time) (*uint256.Int, error) {
	sched, ok := s.Schedule(beneficiary)
	if !ok {
		return nil, fmt.Errorf("releasable amount for %s: %w", beneficiary.Hex(), ErrNoSchedule)
	}
	return sched.Releasable(now), nil
}
