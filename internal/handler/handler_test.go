package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
	"github.com/skara-labs/crowdgate/internal/config"
	"github.com/skara-labs/crowdgate/internal/ledger"
	"github.com/skara-labs/crowdgate/internal/middleware"
	"github.com/skara-labs/crowdgate/internal/model"
	"github.com/skara-labs/crowdgate/internal/sale"
	"github.com/skara-labs/crowdgate/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

var (
	owner    = common.HexToAddress("0x627306090abaB3A6e1400e9345bC60c78a8BEf57")
	investor = common.HexToAddress("0xf17f52151EbEF6C7334FAD080c5704D77216b732")
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

func units(t *testing.T, raw string) *uint256.Int {
	t.Helper()
	v, err := model.ParseUnits(raw)
	require.NoError(t, err)
	return v
}

type testAPI struct {
	router *gin.Engine
	clock  *fakeClock
	ledger *ledger.Memory
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{Auth: config.AuthConfig{AdminKey: "admin"}}
	sc := sale.Config{
		Cap:                       units(t, "100"),
		PresaleCap:                units(t, "40"),
		InvestmentLowThreshold:    units(t, "10"),
		InvestmentMediumThreshold: units(t, "20"),
		Rate:                      uint256.NewInt(10),
		StartTime:                 saleStart,
		EndTime:                   saleEnd,
		Owner:                     owner,
		PresaleMinInvestment:      units(t, "5"),
		DefaultDayOneBoundary:     units(t, "2"),
		Bonus:                     sale.DefaultBonusRates(),
		Vesting:                   sale.VestingTerms{BaseCliff: 90 * day},
		Allocation:                sale.AllocationTerms{SalePct: 70, PostsalePct: 30, SafetyAllocation: new(uint256.Int)},
		Postsale:                  sale.PostsaleTerms{Cliff: 90 * day, Duration: 360 * day, Revocable: true},
	}
	l := ledger.NewMemory()
	s, err := sale.New(sc, l)
	require.NoError(t, err)

	events, err := service.NewEventService("", 64, nil)
	require.NoError(t, err)
	t.Cleanup(events.Close)

	clock := &fakeClock{now: saleStart.Add(-time.Hour)}
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	RegisterRoutes(r, Deps{
		Config:      cfg,
		Sale:        service.NewSaleService(s, l, clock, events),
		Events:      events,
		Limiter:     service.NewLimiterRegistry(0, 0),
		Idempotency: middleware.NewInMemIdempotencyStore(0),
	})
	return &testAPI{router: r, clock: clock, ledger: l}
}

func (a *testAPI) call(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

var adminHeaders = map[string]string{middleware.HeaderAdminKey: "admin"}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestPurchaseFlow_DayOneBoundary(t *testing.T) {
	api := newTestAPI(t)

	rec := api.call(http.MethodPost, "/v1/admin/whitelist/day-one", model.WhitelistRequest{Investor: investor.Hex()}, adminHeaders)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	api.clock.Set(saleStart.Add(time.Hour))
	caller := map[string]string{middleware.HeaderCallerAddress: investor.Hex()}

	rec = api.call(http.MethodPost, "/v1/purchases", model.PurchaseRequest{Amount: "1.5"}, caller)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[model.PurchaseResponse](t, rec)
	assert.Equal(t, investor.Hex(), resp.Investor)
	assert.Equal(t, "whitelist_day_one", resp.Phase)
	assert.Equal(t, uint16(1500), resp.BonusBP)
	assert.Equal(t, "17.25", resp.Tokens)

	// 0.5 left under the boundary
	rec = api.call(http.MethodPost, "/v1/purchases", model.PurchaseRequest{Amount: "1"}, caller)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "CAP_VIOLATION")
	assert.Contains(t, rec.Body.String(), `"kind":"CapViolation"`)

	rec = api.call(http.MethodGet, "/v1/investors/"+investor.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	inv := decode[model.InvestorResponse](t, rec)
	assert.Equal(t, "0.5", inv.RemainingBoundary)
	assert.Equal(t, "1.5", inv.TotalContributed)
	assert.True(t, inv.WhitelistedDayOne)
}

func TestPurchase_Validation(t *testing.T) {
	api := newTestAPI(t)

	rec := api.call(http.MethodPost, "/v1/purchases", model.PurchaseRequest{Amount: "1"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.call(http.MethodPost, "/v1/purchases", model.PurchaseRequest{Investor: "0x12", Amount: "1"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.call(http.MethodPost, "/v1/purchases", model.PurchaseRequest{Investor: investor.Hex(), Amount: "-1"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// not a presaler before the sale opens
	rec = api.call(http.MethodPost, "/v1/purchases", model.PurchaseRequest{Investor: investor.Hex(), Amount: "6"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "PHASE_VIOLATION")
}

func TestAdminRoutesRequireKey(t *testing.T) {
	api := newTestAPI(t)

	rec := api.call(http.MethodPost, "/v1/admin/finalize", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.call(http.MethodPost, "/v1/admin/finalize", nil, adminHeaders)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "SaleNotEnded")
}

func TestPresaleVestingEndpoints(t *testing.T) {
	api := newTestAPI(t)

	rec := api.call(http.MethodPost, "/v1/admin/presalers", model.PresalerRequest{
		Investor:               investor.Hex(),
		Cap:                    "10",
		VestingDurationSeconds: int64((30 * day).Seconds()),
	}, adminHeaders)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.call(http.MethodPost, "/v1/purchases", model.PurchaseRequest{Investor: investor.Hex(), Amount: "5"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[model.PurchaseResponse](t, rec)
	assert.True(t, p.Vested)
	assert.Equal(t, sale.VestingAddress(investor).Hex(), p.Recipient)
	assert.Equal(t, uint16(3000), p.BonusBP)

	rec = api.call(http.MethodGet, "/v1/vesting/"+investor.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[model.VestingResponse](t, rec)
	assert.Equal(t, p.Tokens, v.TotalAllocated)
	assert.Equal(t, "0", v.Vested)
	assert.Equal(t, int64((30 * day).Seconds()), v.DurationSeconds)

	rec = api.call(http.MethodPost, "/v1/vesting/"+investor.Hex()+"/release", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOTHING_TO_RELEASE")

	api.clock.Set(saleEnd.Add(30 * day))
	rec = api.call(http.MethodPost, "/v1/vesting/"+investor.Hex()+"/release", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, p.Tokens, decode[model.ReleaseResponse](t, rec).Released)

	rec = api.call(http.MethodGet, "/v1/vesting/"+member.Hex(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFinalizeAndClaim(t *testing.T) {
	api := newTestAPI(t)

	api.clock.Set(saleStart.Add(5 * day))
	rec := api.call(http.MethodPost, "/v1/purchases", model.PurchaseRequest{Investor: investor.Hex(), Amount: "7"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.call(http.MethodPost, "/v1/admin/bounty", model.StakeholderRequest{Beneficiary: member.Hex(), Amount: "2"}, adminHeaders)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entry := decode[model.StakeholderResponse](t, rec)
	assert.Equal(t, "bounty", entry.Role)
	assert.False(t, entry.HasVesting)

	rec = api.call(http.MethodPost, "/v1/postsalers/"+member.Hex()+"/claim", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "NotFinalized")

	api.clock.Set(saleEnd)
	rec = api.call(http.MethodPost, "/v1/admin/finalize", nil, adminHeaders)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pool := decode[model.PoolResponse](t, rec)
	assert.Equal(t, "30", pool.Initial)

	rec = api.call(http.MethodPost, "/v1/postsalers/"+member.Hex()+"/claim", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	claim := decode[model.ClaimResponse](t, rec)
	assert.Equal(t, "2", claim.Amount)
	assert.Equal(t, "28", claim.PoolLeft)

	rec = api.call(http.MethodPost, "/v1/postsalers/"+member.Hex()+"/claim", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "AlreadyClaimed")

	rec = api.call(http.MethodGet, "/v1/sale", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[model.SaleResponse](t, rec)
	assert.Equal(t, "post_sale", st.Phase)
	assert.Equal(t, "70", st.TokensSold)
	assert.True(t, st.Finalized)

	rec = api.call(http.MethodGet, "/v1/events?type=postsaler_claimed", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]model.SaleEvent](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, member.Hex(), list[0].Subject)
}

func TestEventsRejectsBadFilter(t *testing.T) {
	api := newTestAPI(t)
	rec := api.call(http.MethodGet, "/v1/events?from=yesterday", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = api.call(http.MethodGet, "/v1/events?subject=nope", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "subject"))
}

func TestMaintenancePausesWrites(t *testing.T) {
	api := newTestAPI(t)
	api.clock.Set(saleStart.Add(5 * day))

	rec := api.call(http.MethodPut, "/v1/admin/maintenance", map[string]bool{"read_only": true}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.call(http.MethodPut, "/v1/admin/maintenance", map[string]bool{"read_only": true}, adminHeaders)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.call(http.MethodPost, "/v1/purchases", model.PurchaseRequest{Investor: investor.Hex(), Amount: "1"}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "READ_ONLY")

	rec = api.call(http.MethodPost, "/v1/admin/bounty", model.StakeholderRequest{Beneficiary: member.Hex(), Amount: "1"}, adminHeaders)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = api.call(http.MethodGet, "/v1/sale", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.call(http.MethodGet, "/v1/admin/maintenance", nil, adminHeaders)
	assert.JSONEq(t, `{"read_only":true}`, rec.Body.String())

	rec = api.call(http.MethodPut, "/v1/admin/maintenance", map[string]bool{"read_only": false}, adminHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = api.call(http.MethodPost, "/v1/purchases", model.PurchaseRequest{Investor: investor.Hex(), Amount: "1"}, nil)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.call(http.MethodPut, "/v1/admin/maintenance", map[string]string{}, adminHeaders)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
