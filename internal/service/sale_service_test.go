package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/skara-labs/crowdgate/internal/ledger"
	"github.com/skara-labs/crowdgate/internal/model"
	"github.com/skara-labs/crowdgate/internal/sale"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

var (
	owner    = common.HexToAddress("0x627306090abaB3A6e1400e9345bC60c78a8BEf57")
	investor = common.HexToAddress("0xf17f52151EbEF6C7334FAD080c5704D77216b732")
	stranger = common.HexToAddress("0xC5fdf4076b8F3A5357c5E395ab970B5B54098Fef")
	member   = common.HexToAddress("0x821aEa9a577a9b44299B9c15c88cf3087F3b5544")

	saleStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	saleEnd   = saleStart.Add(28 * day)
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func mustUnits(t *testing.T, raw string) *uint256.Int {
	t.Helper()
	v, err := model.ParseUnits(raw)
	require.NoError(t, err)
	return v
}

func newTestService(t *testing.T) (*SaleService, *fakeClock, *ledger.Memory, *EventService) {
	t.Helper()
	cfg := sale.Config{
		Cap:                       mustUnits(t, "100"),
		PresaleCap:                mustUnits(t, "40"),
		InvestmentLowThreshold:    mustUnits(t, "10"),
		InvestmentMediumThreshold: mustUnits(t, "20"),
		Rate:                      uint256.NewInt(10),
		StartTime:                 saleStart,
		EndTime:                   saleEnd,
		Owner:                     owner,
		PresaleStart:              saleStart.Add(-7 * day),
		PresaleMinInvestment:      mustUnits(t, "5"),
		DefaultDayOneBoundary:     mustUnits(t, "2"),
		Bonus:                     sale.DefaultBonusRates(),
		Vesting:                   sale.VestingTerms{BaseCliff: 90 * day},
		Allocation:                sale.AllocationTerms{SalePct: 70, PostsalePct: 30, SafetyAllocation: new(uint256.Int)},
		Postsale:                  sale.PostsaleTerms{Cliff: 90 * day, Duration: 360 * day, Revocable: true},
	}
	l := ledger.NewMemory()
	s, err := sale.New(cfg, l)
	require.NoError(t, err)

	events, err := NewEventService("", 32, nil)
	require.NoError(t, err)
	t.Cleanup(events.Close)

	clock := &fakeClock{now: saleStart.Add(-time.Hour)}
	return NewSaleService(s, l, clock, events), clock, l, events
}

func TestSaleService_PurchaseUsesClockAndRecordsEvent(t *testing.T) {
	svc, clock, l, events := newTestService(t)
	ctx := WithRequestID(context.Background(), "req-1")

	clock.Set(saleStart.Add(3 * day))
	p, err := svc.Purchase(ctx, investor, investor, mustUnits(t, "1"))
	require.NoError(t, err)
	assert.Equal(t, sale.OpenSale, p.Phase)

	bal, err := l.BalanceOf(ctx, investor)
	require.NoError(t, err)
	assert.Equal(t, p.Tokens, bal)

	list, err := events.List(ctx, model.EventFilter{Type: model.EventPurchase})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "req-1", list[0].RequestID)
	assert.Equal(t, investor.Hex(), list[0].Subject)
	assert.Equal(t, "1", list[0].Amount)
	assert.Equal(t, model.FormatUnits(p.Tokens), list[0].Tokens)
}

func TestSaleService_RejectionRecordsNoEvent(t *testing.T) {
	svc, _, _, events := newTestService(t)
	ctx := context.Background()

	// before the whitelist window the investor is not a presaler
	_, err := svc.Purchase(ctx, investor, investor, mustUnits(t, "6"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, sale.ErrPhaseViolation))

	list, err := events.List(ctx, model.EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSaleService_WhitelistAndQueries(t *testing.T) {
	svc, _, _, events := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.RegisterDayOne(ctx, owner, investor, nil))
	require.ErrorIs(t, svc.RegisterDayTwo(ctx, stranger, investor), sale.ErrUnauthorized)

	view := svc.Investor(investor)
	assert.True(t, view.Known)
	assert.Equal(t, sale.TierDayOne, view.Record.Tier)
	assert.Equal(t, mustUnits(t, "2"), view.Record.RemainingBoundary)

	list, err := events.List(ctx, model.EventFilter{Subject: investor.Hex()})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.EventWhitelisted, list[0].Type)
	assert.Equal(t, "day_one", list[0].Details["tier"])
}

func TestSaleService_PresaleVestingAndRelease(t *testing.T) {
	svc, clock, l, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.RegisterPresaler(ctx, owner, investor, sale.PresalerTerms{Cap: mustUnits(t, "10")}))
	p, err := svc.Purchase(ctx, investor, investor, mustUnits(t, "5"))
	require.NoError(t, err)
	require.True(t, p.Vested)

	view, ok := svc.Vesting(investor)
	require.True(t, ok)
	assert.True(t, view.Vested.IsZero())

	_, err = svc.Release(ctx, investor, investor)
	assert.ErrorIs(t, err, sale.ErrNothingToRelease)

	clock.Set(saleEnd.Add(view.Schedule.Duration))
	released, err := svc.Release(ctx, investor, investor)
	require.NoError(t, err)
	assert.Equal(t, p.Tokens, released)

	bal, err := l.BalanceOf(ctx, investor)
	require.NoError(t, err)
	assert.Equal(t, p.Tokens, bal)
}

func TestSaleService_FinalizeClaimAndPool(t *testing.T) {
	svc, clock, _, events := newTestService(t)
	ctx := context.Background()

	clock.Set(saleStart.Add(5 * day))
	_, err := svc.Purchase(ctx, investor, investor, mustUnits(t, "7"))
	require.NoError(t, err)

	_, err = svc.AddStakeholder(ctx, owner, sale.RoleBounty, member, mustUnits(t, "3"))
	require.NoError(t, err)

	_, err = svc.Finalize(ctx, owner)
	assert.ErrorIs(t, err, sale.ErrSaleNotEnded)

	clock.Set(saleEnd)
	releasable, err := svc.Finalize(ctx, owner)
	require.NoError(t, err)
	assert.False(t, releasable.IsZero())

	c, err := svc.Claim(ctx, member, member)
	require.NoError(t, err)
	assert.False(t, c.Vested)
	assert.Equal(t, member, c.Recipient)

	pool, account := svc.Pool()
	assert.True(t, pool.Finalized)
	assert.Equal(t, sale.DefaultSaleAccount, account)
	assert.Equal(t, new(uint256.Int).Sub(releasable, mustUnits(t, "3")), pool.Releasable)

	entry, ok := svc.Postsaler(member)
	require.True(t, ok)
	assert.True(t, entry.Claimed)

	list, err := events.List(ctx, model.EventFilter{Type: model.EventClaimed})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "3", list[0].Tokens)
}

func TestSaleService_RevokeTeamSchedule(t *testing.T) {
	svc, clock, l, _ := newTestService(t)
	ctx := context.Background()

	clock.Set(saleStart.Add(5 * day))
	_, err := svc.Purchase(ctx, investor, investor, mustUnits(t, "7"))
	require.NoError(t, err)
	_, err = svc.AddStakeholder(ctx, owner, sale.RoleTeam, member, mustUnits(t, "4"))
	require.NoError(t, err)

	clock.Set(saleEnd)
	_, err = svc.Finalize(ctx, owner)
	require.NoError(t, err)
	c, err := svc.Claim(ctx, owner, member)
	require.NoError(t, err)
	require.True(t, c.Vested)

	_, err = svc.Revoke(ctx, stranger, member)
	assert.ErrorIs(t, err, sale.ErrUnauthorized)

	// before the cliff nothing has vested, so the whole grant is refunded
	refund, err := svc.Revoke(ctx, owner, member)
	require.NoError(t, err)
	assert.Equal(t, mustUnits(t, "4"), refund)

	bal, err := l.BalanceOf(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, mustUnits(t, "4"), bal)
}

func TestSaleService_StatusAndBonus(t *testing.T) {
	svc, clock, _, _ := newTestService(t)

	clock.Set(saleStart.Add(90 * time.Minute))
	status := svc.Status()
	assert.Equal(t, sale.WhitelistDayOne, status.Phase)
	assert.Equal(t, clock.Now(), status.Now)

	bp, phase := svc.Bonus(investor, mustUnits(t, "1"))
	assert.Equal(t, sale.WhitelistDayOne, phase)
	assert.Equal(t, sale.DefaultBonusRates().DayOne, bp)

	clock.Set(saleStart.Add(5 * day))
	bp, phase = svc.Bonus(investor, mustUnits(t, "1"))
	assert.Equal(t, sale.OpenSale, phase)
	assert.Equal(t, sale.BasisPoints(0), bp)
}
