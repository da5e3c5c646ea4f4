package sale

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// BasisPoints is a rate in hundredths of a percent. 10000 is 100%.
type BasisPoints uint16

const MaxBasisPoints BasisPoints = 10000

// BonusRates holds the bonus applied in each bonus window.
type BonusRates struct {
	PresaleLow    BasisPoints
	PresaleMedium BasisPoints
	PresaleHigh   BasisPoints
	DayOne        BasisPoints
	DayTwo        BasisPoints
	OpenBonus     BasisPoints
}

func DefaultBonusRates() BonusRates {
	return BonusRates{
		PresaleLow:    3000,
		PresaleMedium: 3500,
		PresaleHigh:   4500,
		DayOne:        1500,
		DayTwo:        1000,
		OpenBonus:     500,
	}
}

// VestingTerms selects the duration of purchase vesting schedules. The
// duration is BaseCliff times the multiplier of the investment's size bucket.
type VestingTerms struct {
	BaseCliff        time.Duration
	LowMultiplier    uint64
	MediumMultiplier uint64
	HighMultiplier   uint64

	// VestRegularPurchases locks every purchase, not only presale ones.
	VestRegularPurchases bool
}

// AllocationTerms controls the post-sale reserve computed at finalization.
type AllocationTerms struct {
	SalePct          uint64
	PostsalePct      uint64
	SafetyAllocation *uint256.Int
}

// PostsaleTerms are the vesting terms of team and advisor claims.
type PostsaleTerms struct {
	Cliff     time.Duration
	Duration  time.Duration
	Revocable bool
}

// Config is fixed at construction.
type Config struct {
	Cap                       *uint256.Int
	PresaleCap                *uint256.Int
	InvestmentLowThreshold    *uint256.Int
	InvestmentMediumThreshold *uint256.Int
	Rate                      *uint256.Int
	StartTime                 time.Time
	EndTime                   time.Time
	Owner                     common.Address

	// PresaleStart opens the presale window. Zero means presale is open
	// until StartTime.
	PresaleStart         time.Time
	PresaleMinInvestment *uint256.Int

	WhitelistOffset       time.Duration
	WhitelistDayLength    time.Duration
	OpenBonusLength       time.Duration
	DefaultDayOneBoundary *uint256.Int

	Bonus      BonusRates
	Vesting    VestingTerms
	Allocation AllocationTerms
	Postsale   PostsaleTerms

	// SaleAccount receives the post-sale reserve at finalization.
	SaleAccount common.Address
}

// DefaultSaleAccount is the pool account used when none is configured.
var DefaultSaleAccount = common.BytesToAddress(crypto.Keccak256([]byte("crowdgate.pool")))

func (c Config) withDefaults() Config {
	for _, v := range []**uint256.Int{
		&c.Cap, &c.PresaleCap, &c.InvestmentLowThreshold, &c.InvestmentMediumThreshold,
		&c.Rate, &c.PresaleMinInvestment, &c.DefaultDayOneBoundary, &c.Allocation.SafetyAllocation,
	} {
		if *v == nil {
			*v = new(uint256.Int)
		}
	}
	if c.WhitelistDayLength == 0 {
		c.WhitelistDayLength = 24 * time.Hour
	}
	if c.OpenBonusLength == 0 {
		c.OpenBonusLength = 24 * time.Hour
	}
	if c.Vesting.LowMultiplier == 0 {
		c.Vesting.LowMultiplier = 1
	}
	if c.Vesting.MediumMultiplier == 0 {
		c.Vesting.MediumMultiplier = 2
	}
	if c.Vesting.HighMultiplier == 0 {
		c.Vesting.HighMultiplier = 4
	}
	if c.SaleAccount == (common.Address{}) {
		c.SaleAccount = DefaultSaleAccount
	}
	return c
}

// Validate reports the first constraint the config breaks.
func (c Config) Validate() error {
	c = c.withDefaults()
	switch {
	case c.Owner == (common.Address{}):
		return fmt.Errorf("%w: owner is required", ErrInvalidConfig)
	case c.Rate.IsZero():
		return fmt.Errorf("%w: rate must be positive", ErrInvalidConfig)
	case !c.StartTime.Before(c.EndTime):
		return fmt.Errorf("%w: start time must precede end time", ErrInvalidConfig)
	case !c.PresaleStart.IsZero() && c.PresaleStart.After(c.StartTime):
		return fmt.Errorf("%w: presale must start before the sale", ErrInvalidConfig)
	case c.PresaleCap.Gt(c.Cap):
		return fmt.Errorf("%w: presale cap exceeds cap", ErrInvalidConfig)
	case c.InvestmentLowThreshold.Gt(c.InvestmentMediumThreshold):
		return fmt.Errorf("%w: low threshold exceeds medium threshold", ErrInvalidConfig)
	case c.Allocation.SalePct == 0 || c.Allocation.SalePct+c.Allocation.PostsalePct != 100:
		return fmt.Errorf("%w: allocation percentages must sum to 100", ErrInvalidConfig)
	case c.Postsale.Cliff > c.Postsale.Duration:
		return fmt.Errorf("%w: postsale cliff exceeds duration", ErrInvalidConfig)
	case c.WhitelistOffset < 0:
		return fmt.Errorf("%w: negative whitelist offset", ErrInvalidConfig)
	}
	for _, bp := range []BasisPoints{
		c.Bonus.PresaleLow, c.Bonus.PresaleMedium, c.Bonus.PresaleHigh,
		c.Bonus.DayOne, c.Bonus.DayTwo, c.Bonus.OpenBonus,
	} {
		if bp > MaxBasisPoints {
			return fmt.Errorf("%w: bonus rate %d above %d", ErrInvalidConfig, bp, MaxBasisPoints)
		}
	}
	return nil
}

// tierDuration buckets amount by the investment thresholds.
func (c *Config) tierDuration(amount *uint256.Int) time.Duration {
	mult := c.Vesting.HighMultiplier
	switch {
	case amount.Lt(c.InvestmentLowThreshold):
		mult = c.Vesting.LowMultiplier
	case amount.Lt(c.InvestmentMediumThreshold):
		mult = c.Vesting.MediumMultiplier
	}
	return c.Vesting.BaseCliff * time.Duration(mult)
}
