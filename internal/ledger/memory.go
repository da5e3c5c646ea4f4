// Package ledger provides the token ledger the sale settles against.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOverflow            = errors.New("supply overflow")
	ErrZeroAddress         = errors.New("zero address")
)

// Memory is an in-process, overflow-checked token ledger.
type Memory struct {
	mu       sync.RWMutex
	balances map[common.Address]*uint256.Int
	supply   *uint256.Int
}

func NewMemory() *Memory {
	return &Memory{
		balances: make(map[common.Address]*uint256.Int),
		supply:   new(uint256.Int),
	}
}

func (m *Memory) Mint(_ context.Context, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("mint: %w", ErrZeroAddress)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	supply, overflow := new(uint256.Int).AddOverflow(m.supply, amount)
	if overflow {
		return fmt.Errorf("mint %s to %s: %w", amount, to.Hex(), ErrOverflow)
	}
	// balance <= supply, so it cannot overflow once supply did not
	m.balances[to] = new(uint256.Int).Add(m.balanceOf(to), amount)
	m.supply = supply
	return nil
}

func (m *Memory) Transfer(_ context.Context, from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("transfer: %w", ErrZeroAddress)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	bal := m.balanceOf(from)
	if amount.Gt(bal) {
		return fmt.Errorf("transfer %s from %s: has %s: %w", amount, from.Hex(), bal, ErrInsufficientBalance)
	}
	m.balances[from] = new(uint256.Int).Sub(bal, amount)
	m.balances[to] = new(uint256.Int).Add(m.balanceOf(to), amount)
	return nil
}

func (m *Memory) BalanceOf(_ context.Context, account common.Address) (*uint256.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(uint256.Int).Set(m.balanceOf(account)), nil
}

func (m *Memory) TotalSupply(_ context.Context) (*uint256.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(uint256.Int).Set(m.supply), nil
}

func (m *Memory) balanceOf(account common.Address) *uint256.Int {
	if bal, ok := m.balances[account]; ok {
		return bal
	}
	return new(uint256.Int)
}
