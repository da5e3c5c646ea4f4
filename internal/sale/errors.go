package sale

import "errors"

// Failure kinds reported by sale operations. Operations wrap them with
// context, so callers should match with errors.Is.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrCapViolation       = errors.New("cap violation")
	ErrPhaseViolation     = errors.New("phase violation")
	ErrBelowMinimum       = errors.New("below minimum investment")
	ErrAlreadyFinalized   = errors.New("already finalized")
	ErrSaleNotEnded       = errors.New("sale not ended")
	ErrNotFinalized       = errors.New("sale not finalized")
	ErrAlreadyClaimed     = errors.New("already claimed")
	ErrInsufficientPool   = errors.New("insufficient allocation pool")
	ErrUnknownBeneficiary = errors.New("unknown beneficiary")
	ErrNothingToRelease   = errors.New("nothing to release")
	ErrScheduleConflict   = errors.New("vesting schedule conflict")
	ErrNoSchedule         = errors.New("no vesting schedule")
	ErrNotRevocable       = errors.New("vesting schedule not revocable")
	ErrAlreadyRevoked     = errors.New("vesting schedule already revoked")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrZeroAddress        = errors.New("zero address")
	ErrOverflow           = errors.New("arithmetic overflow")
	ErrInvalidConfig      = errors.New("invalid sale config")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrUnauthorized, "Unauthorized"},
	{ErrCapViolation, "CapViolation"},
	{ErrPhaseViolation, "PhaseViolation"},
	{ErrBelowMinimum, "BelowMinimum"},
	{ErrAlreadyFinalized, "AlreadyFinalized"},
	{ErrSaleNotEnded, "SaleNotEnded"},
	{ErrNotFinalized, "NotFinalized"},
	{ErrAlreadyClaimed, "AlreadyClaimed"},
	{ErrInsufficientPool, "InsufficientPool"},
	{ErrUnknownBeneficiary, "UnknownBeneficiary"},
	{ErrNothingToRelease, "NothingToRelease"},
	{ErrScheduleConflict, "ScheduleConflict"},
	{ErrNoSchedule, "NoSchedule"},
	{ErrNotRevocable, "NotRevocable"},
	{ErrAlreadyRevoked, "AlreadyRevoked"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrZeroAddress, "ZeroAddress"},
	{ErrOverflow, "Overflow"},
	{ErrInvalidConfig, "InvalidConfig"},
}

// Kind returns the name of the failure kind wrapped by err, or "" when err
// does not carry one of the package's sentinel errors.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}
