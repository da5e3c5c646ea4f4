package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/skara-labs/crowdgate/internal/config"
	"github.com/skara-labs/crowdgate/internal/pkg/apperrors"
	"github.com/skara-labs/crowdgate/internal/pkg/logger"
	"github.com/skara-labs/crowdgate/internal/signer"
)

const (
	HeaderCallerAddress   = "X-Caller-Address"
	HeaderCallerSignature = "X-Caller-Signature"
	HeaderCallerTimestamp = "X-Caller-Timestamp"
	ContextCallerKey      = "caller"
)

// CallerMiddleware resolves the calling account from X-Caller-Address.
// Admin-authenticated requests keep the owner bound by AdminMiddleware.
// With a verifier, writes must also be signed by the caller.
func CallerMiddleware(cfg *config.Config, verifier *signer.Verifier) gin.HandlerFunc {
	maxAge := 5 * time.Minute
	if cfg != nil && cfg.Auth.SignatureMaxAge > 0 {
		maxAge = cfg.Auth.SignatureMaxAge
	}
	return func(c *gin.Context) {
		if _, ok := CallerFrom(c); ok {
			c.Next()
			return
		}
		raw := c.GetHeader(HeaderCallerAddress)
		if raw == "" {
			if cfg != nil && cfg.Auth.RequireCaller && isWrite(c.Request.Method) {
				c.Error(apperrors.New(apperrors.ErrAuthFailed, "missing caller address", nil))
				c.Abort()
				return
			}
			c.Next()
			return
		}
		if !common.IsHexAddress(raw) {
			c.Error(apperrors.NewInvalidRequest("invalid caller address"))
			c.Abort()
			return
		}
		addr := common.HexToAddress(raw)
		if addr == (common.Address{}) {
			c.Error(apperrors.NewInvalidRequest("caller address must not be zero"))
			c.Abort()
			return
		}
		if verifier != nil && isWrite(c.Request.Method) {
			if err := verifyCaller(c, verifier, addr, maxAge); err != nil {
				c.Error(err)
				c.Abort()
				return
			}
		}
		bindCaller(c, addr)
		c.Next()
	}
}

func verifyCaller(c *gin.Context, v *signer.Verifier, caller common.Address, maxAge time.Duration) *apperrors.AppError {
	sig := c.GetHeader(HeaderCallerSignature)
	if sig == "" {
		return apperrors.New(apperrors.ErrAuthFailed, "missing caller signature", nil)
	}
	ts, err := strconv.ParseInt(c.GetHeader(HeaderCallerTimestamp), 10, 64)
	if err != nil {
		return apperrors.New(apperrors.ErrAuthFailed, "invalid caller timestamp", err)
	}
	age := time.Since(time.Unix(ts, 0))
	if age > maxAge || age < -maxAge {
		return apperrors.New(apperrors.ErrAuthFailed, "caller signature expired", nil)
	}

	var body []byte
	if c.Request.Body != nil {
		body, err = io.ReadAll(c.Request.Body)
		if err != nil {
			return apperrors.New(apperrors.ErrInvalidRequest, "failed to read request body", err)
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	}
	req := &signer.CallerRequest{
		Caller:    caller,
		Method:    c.Request.Method,
		Path:      c.Request.URL.Path,
		Body:      body,
		Timestamp: ts,
	}
	if err := v.Verify(c.Request.Context(), req, sig); err != nil {
		return apperrors.New(apperrors.ErrAuthFailed, "invalid caller signature", err)
	}
	return nil
}

// bindCaller stores addr for handlers and tags the request's log context.
func bindCaller(c *gin.Context, addr common.Address) {
	c.Set(ContextCallerKey, addr)
	c.Request = c.Request.WithContext(logger.AppendCtx(c.Request.Context(), slog.String("caller", addr.Hex())))
}

// CallerFrom returns the resolved caller, if any.
func CallerFrom(c *gin.Context) (common.Address, bool) {
	v, ok := c.Get(ContextCallerKey)
	if !ok {
		return common.Address{}, false
	}
	addr, ok := v.(common.Address)
	return addr, ok
}
