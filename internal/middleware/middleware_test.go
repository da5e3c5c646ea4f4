package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/skara-labs/crowdgate/internal/config"
	"github.com/skara-labs/crowdgate/internal/pkg/apperrors"
	"github.com/skara-labs/crowdgate/internal/service"
	"github.com/skara-labs/crowdgate/internal/signer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testOwner  = common.HexToAddress("0x627306090abaB3A6e1400e9345bC60c78a8BEf57")
	testCaller = common.HexToAddress("0xf17f52151EbEF6C7334FAD080c5704D77216b732")
)

func newRouter(cfg *config.Config, mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler(), CallerMiddleware(cfg, nil))
	r.Use(mw...)
	return r
}

func do(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAdminMiddlewareBindsOwner(t *testing.T) {
	cfg := &config.Config{Auth: config.AuthConfig{AdminKey: "admin"}}
	r := newRouter(cfg)
	admin := r.Group("/v1/admin", AdminMiddleware(cfg, testOwner))
	admin.POST("/finalize", func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"caller": caller.Hex()})
	})

	rec := do(r, http.MethodPost, "/v1/admin/finalize", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(r, http.MethodPost, "/v1/admin/finalize", map[string]string{HeaderAdminKey: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// a caller header cannot override the owner binding
	rec = do(r, http.MethodPost, "/v1/admin/finalize", map[string]string{
		HeaderAdminKey:      "admin",
		HeaderCallerAddress: testCaller.Hex(),
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), testOwner.Hex())
}

func TestAdminMiddlewareNotConfigured(t *testing.T) {
	cfg := &config.Config{}
	r := newRouter(cfg)
	r.POST("/admin", AdminMiddleware(cfg, testOwner), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := do(r, http.MethodPost, "/admin", map[string]string{HeaderAdminKey: ""})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCallerMiddleware(t *testing.T) {
	cfg := &config.Config{Auth: config.AuthConfig{RequireCaller: true}}
	r := newRouter(cfg)
	r.GET("/q", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/w", func(c *gin.Context) {
		caller, _ := CallerFrom(c)
		c.String(http.StatusOK, caller.Hex())
	})

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/q", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/w", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/w", map[string]string{HeaderCallerAddress: "nope"}).Code)

	rec := do(r, http.MethodPost, "/w", map[string]string{HeaderCallerAddress: testCaller.Hex()})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testCaller.Hex(), rec.Body.String())
}

func TestIdempotencyReplay(t *testing.T) {
	store := NewInMemIdempotencyStore(0)
	r := newRouter(&config.Config{}, IdempotencyMiddleware(store))
	calls := 0
	r.POST("/v1/purchases", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"n": calls})
	})

	headers := map[string]string{HeaderCallerAddress: testCaller.Hex(), HeaderIdempotencyKey: "k1"}
	first := do(r, http.MethodPost, "/v1/purchases", headers)
	second := do(r, http.MethodPost, "/v1/purchases", headers)

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))

	// same key from another caller is independent
	do(r, http.MethodPost, "/v1/purchases", map[string]string{HeaderCallerAddress: testOwner.Hex(), HeaderIdempotencyKey: "k1"})
	assert.Equal(t, 2, calls)
}

func TestIdempotencyKeyScopedToPath(t *testing.T) {
	store := NewInMemIdempotencyStore(0)
	r := newRouter(&config.Config{}, IdempotencyMiddleware(store))
	var claimed []string
	r.POST("/v1/postsalers/:address/claim", func(c *gin.Context) {
		claimed = append(claimed, c.Param("address"))
		c.JSON(http.StatusOK, gin.H{"beneficiary": c.Param("address")})
	})

	headers := map[string]string{HeaderIdempotencyKey: "claim-1"}
	first := do(r, http.MethodPost, "/v1/postsalers/"+testCaller.Hex()+"/claim", headers)
	second := do(r, http.MethodPost, "/v1/postsalers/"+testOwner.Hex()+"/claim", headers)

	assert.Equal(t, []string{testCaller.Hex(), testOwner.Hex()}, claimed)
	assert.Empty(t, second.Header().Get("Idempotent-Replayed"))
	assert.NotEqual(t, first.Body.String(), second.Body.String())

	do(r, http.MethodPost, "/v1/postsalers/"+testOwner.Hex()+"/claim", headers)
	assert.Len(t, claimed, 2)
}

func TestIdempotencyFailuresStayRetryable(t *testing.T) {
	store := NewInMemIdempotencyStore(0)
	r := newRouter(&config.Config{}, IdempotencyMiddleware(store))
	calls := 0
	r.POST("/v1/purchases", func(c *gin.Context) {
		calls++
		c.Error(apperrors.New(apperrors.ErrCapViolation, "cap reached", nil))
	})

	headers := map[string]string{HeaderIdempotencyKey: "k2"}
	rec := do(r, http.MethodPost, "/v1/purchases", headers)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	do(r, http.MethodPost, "/v1/purchases", headers)
	assert.Equal(t, 2, calls)
}

func TestRateLimitPerCaller(t *testing.T) {
	reg := service.NewLimiterRegistry(0.001, 1)
	r := newRouter(&config.Config{}, RateLimitMiddleware(reg))
	r.POST("/v1/purchases", func(c *gin.Context) { c.Status(http.StatusOK) })

	headers := map[string]string{HeaderCallerAddress: testCaller.Hex()}
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/v1/purchases", headers).Code)
	limited := do(r, http.MethodPost, "/v1/purchases", headers)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))

	other := map[string]string{HeaderCallerAddress: testOwner.Hex()}
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/v1/purchases", other).Code)
}

func TestReadOnlyMiddleware(t *testing.T) {
	sw := NewMaintenanceSwitch(true)
	r := newRouter(&config.Config{}, ReadOnlyMiddleware(sw))
	r.GET("/v1/sale", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/v1/purchases", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/v1/sale", nil).Code)
	paused := do(r, http.MethodPost, "/v1/purchases", nil)
	assert.Equal(t, http.StatusServiceUnavailable, paused.Code)
	assert.Equal(t, "60", paused.Header().Get("Retry-After"))

	sw.Set(false)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/v1/purchases", nil).Code)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(http.StatusCreated))
	assert.Equal(t, "4xx", statusClass(http.StatusUnprocessableEntity))
	assert.Equal(t, "5xx", statusClass(http.StatusBadGateway))
}

func TestCallerMiddlewareVerifiesSignature(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s, err := signer.NewSigner(hexutil.Encode(crypto.FromECDSA(key))[2:], 1)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler(), CallerMiddleware(&config.Config{}, signer.NewVerifier(1, nil)))
	r.POST("/v1/purchases", func(c *gin.Context) { c.Status(http.StatusOK) })

	body := `{"amount":"1"}`
	ts := time.Now().Unix()
	sig, err := s.SignRequest(&signer.CallerRequest{
		Caller:    s.Address(),
		Method:    http.MethodPost,
		Path:      "/v1/purchases",
		Body:      []byte(body),
		Timestamp: ts,
	})
	require.NoError(t, err)

	send := func(body, sig string, ts int64) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/purchases", strings.NewReader(body))
		req.Header.Set(HeaderCallerAddress, s.Address().Hex())
		req.Header.Set(HeaderCallerSignature, sig)
		req.Header.Set(HeaderCallerTimestamp, strconv.FormatInt(ts, 10))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send(body, sig, ts))
	assert.Equal(t, http.StatusUnauthorized, send(`{"amount":"100"}`, sig, ts))
	assert.Equal(t, http.StatusUnauthorized, send(body, "", ts))
	assert.Equal(t, http.StatusUnauthorized, send(body, sig, ts-3600))
}

func TestCallerMiddlewareBodyReadFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler(), CallerMiddleware(&config.Config{}, signer.NewVerifier(1, nil)))
	r.POST("/v1/purchases", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/v1/purchases", io.NopCloser(iotest.ErrReader(errors.New("connection reset"))))
	req.Header.Set(HeaderCallerAddress, testCaller.Hex())
	req.Header.Set(HeaderCallerSignature, hexutil.Encode(make([]byte, 65)))
	req.Header.Set(HeaderCallerTimestamp, strconv.FormatInt(time.Now().Unix(), 10))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), string(apperrors.ErrInvalidRequest))
	assert.Contains(t, rec.Body.String(), "failed to read request body")
}
