package model

import "time"

// PurchaseRequest is the body of POST /v1/purchases. Amount is in ether.
// Investor defaults to the caller.
type PurchaseRequest struct {
	Investor string `json:"investor,omitempty"`
	Amount   string `json:"amount" binding:"required"`
}

type PurchaseResponse struct {
	Investor  string `json:"investor"`
	Payer     string `json:"payer"`
	Amount    string `json:"amount"`
	Tokens    string `json:"tokens"`
	BonusBP   uint16 `json:"bonus_bp"`
	BonusRule string `json:"bonus_rule"`
	Phase     string `json:"phase"`
	Recipient string `json:"recipient"`
	Vested    bool   `json:"vested"`
}

type WhitelistRequest struct {
	Investor string `json:"investor" binding:"required"`
	// Boundary only applies to day one; empty uses the configured default.
	Boundary string `json:"boundary,omitempty"`
}

type PresalerRequest struct {
	Investor               string     `json:"investor" binding:"required"`
	Cap                    string     `json:"cap" binding:"required"`
	VestingDurationSeconds int64      `json:"vesting_duration_seconds,omitempty"`
	CustomBonusBP          *uint16    `json:"custom_bonus_bp,omitempty"`
	VestingStart           *time.Time `json:"vesting_start,omitempty"`
}

// StakeholderRequest registers a post-sale allocation. Amount is in tokens.
type StakeholderRequest struct {
	Beneficiary string `json:"beneficiary" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
}

type StakeholderResponse struct {
	Beneficiary string `json:"beneficiary"`
	Role        string `json:"role"`
	Amount      string `json:"amount"`
	HasVesting  bool   `json:"has_vesting"`
	Claimed     bool   `json:"claimed"`
}

type ClaimResponse struct {
	Beneficiary string `json:"beneficiary"`
	Payer       string `json:"payer"`
	Amount      string `json:"amount"`
	Recipient   string `json:"recipient"`
	Vested      bool   `json:"vested"`
	PoolLeft    string `json:"pool_left"`
}

type InvestorResponse struct {
	Address           string  `json:"address"`
	Tier              string  `json:"tier"`
	TotalContributed  string  `json:"total_contributed"`
	RemainingBoundary string  `json:"remaining_boundary"`
	IsPresaler        bool    `json:"is_presaler"`
	PresaleBoundary   string  `json:"presale_boundary"`
	CustomBonusBP     *uint16 `json:"custom_bonus_bp,omitempty"`
	WhitelistedDayOne bool    `json:"whitelisted_day_one"`
	WhitelistedDayTwo bool    `json:"whitelisted_day_two"`
	VestingAddress    string  `json:"vesting_address"`
	HasVesting        bool    `json:"has_vesting"`
}

type BonusResponse struct {
	Investor string `json:"investor"`
	Amount   string `json:"amount"`
	BonusBP  uint16 `json:"bonus_bp"`
	Phase    string `json:"phase"`
}

type VestingResponse struct {
	Beneficiary     string    `json:"beneficiary"`
	Escrow          string    `json:"escrow"`
	TotalAllocated  string    `json:"total_allocated"`
	Released        string    `json:"released"`
	Vested          string    `json:"vested"`
	Releasable      string    `json:"releasable"`
	Start           time.Time `json:"start"`
	CliffSeconds    int64     `json:"cliff_seconds"`
	DurationSeconds int64     `json:"duration_seconds"`
	Revocable       bool      `json:"revocable"`
	Revoked         bool      `json:"revoked"`
}

type ReleaseResponse struct {
	Beneficiary string `json:"beneficiary"`
	Released    string `json:"released"`
}

type RevokeResponse struct {
	Beneficiary string `json:"beneficiary"`
	Refunded    string `json:"refunded"`
}

type SaleResponse struct {
	Phase         string    `json:"phase"`
	Now           time.Time `json:"now"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	WeiRaised     string    `json:"raised"`
	PresaleRaised string    `json:"presale_raised"`
	TokensSold    string    `json:"tokens_sold"`
	Cap           string    `json:"cap"`
	Investors     int       `json:"investors"`
	Finalized     bool      `json:"finalized"`
}

type PoolResponse struct {
	Finalized   bool   `json:"finalized"`
	Initial     string `json:"initial"`
	Releasable  string `json:"releasable"`
	SaleAccount string `json:"sale_account"`
}
