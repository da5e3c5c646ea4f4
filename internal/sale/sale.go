// Package sale implements the accounting core of a timed token sale:
// phase resolution, whitelist and cap admission, bonus computation,
// vesting, purchases and the post-sale allocation pool.
//
// Every exported method of Sale runs under a single lock and either
// completes or leaves the sale untouched.
package sale

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TokenLedger is the external token ledger the sale mints to and moves
// tokens on.
type TokenLedger interface {
	Mint(ctx context.Context, to common.Address, amount *uint256.Int) error
	Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error
	BalanceOf(ctx context.Context, account common.Address) (*uint256.Int, error)
	TotalSupply(ctx context.Context) (*uint256.Int, error)
}

type Sale struct {
	mu     sync.Mutex
	cfg    Config
	ledger TokenLedger

	weiRaised     *uint256.Int
	presaleRaised *uint256.Int
	tokensSold    *uint256.Int

	investors  *investorBook
	schedules  map[common.Address]VestingSchedule
	pool       AllocationPool
	postsalers map[common.Address]PostsalerEntry
}

func New(cfg Config, ledger TokenLedger) (*Sale, error) {
	if ledger == nil {
		return nil, fmt.Errorf("%w: token ledger is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sale{
		cfg:           cfg.withDefaults(),
		ledger:        ledger,
		weiRaised:     new(uint256.Int),
		presaleRaised: new(uint256.Int),
		tokensSold:    new(uint256.Int),
		investors:     newInvestorBook(),
		schedules:     make(map[common.Address]VestingSchedule),
		pool:          AllocationPool{Releasable: new(uint256.Int), Initial: new(uint256.Int)},
		postsalers:    make(map[common.Address]PostsalerEntry),
	}, nil
}

func (s *Sale) requireOwner(caller common.Address) error {
	if caller != s.cfg.Owner {
		return fmt.Errorf("caller %s is not the owner: %w", caller.Hex(), ErrUnauthorized)
	}
	return nil
}

// Config returns a copy of the sale configuration.
func (s *Sale) Config() Config {
	return s.cfg
}

func (s *Sale) Phase(now time.Time) Phase {
	return s.cfg.PhaseAt(now)
}

// Snapshot is a consistent view of the sale counters.
type Snapshot struct {
	WeiRaised     *uint256.Int
	PresaleRaised *uint256.Int
	TokensSold    *uint256.Int
	Investors     int
	Schedules     int
	Pool          AllocationPool
}

func (s *Sale) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		WeiRaised:     s.weiRaised,
		PresaleRaised: s.presaleRaised,
		TokensSold:    s.tokensSold,
		Investors:     s.investors.len(),
		Schedules:     len(s.schedules),
		Pool:          s.pool,
	}
}
