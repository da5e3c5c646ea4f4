package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/skara-labs/crowdgate/internal/pkg/apperrors"
	"github.com/skara-labs/crowdgate/internal/service"
)

// RateLimitMiddleware throttles each calling investor separately. Requests
// without a caller share one bucket. Must run after CallerMiddleware.
func RateLimitMiddleware(reg *service.LimiterRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		if reg == nil {
			c.Next()
			return
		}
		caller, _ := CallerFrom(c)
		if !reg.Allow(caller) {
			c.Header("Retry-After", "1")
			c.Error(apperrors.New(apperrors.ErrRateLimited, "rate limit exceeded", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}
