package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/skara-labs/crowdgate/internal/config"
)

const HeaderAdminKey = "X-Admin-Key"

// AdminMiddleware admits requests carrying the configured admin key and
// binds them to the sale owner.
func AdminMiddleware(cfg *config.Config, owner common.Address) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg == nil || cfg.Auth.AdminKey == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin key not configured"})
			c.Abort()
			return
		}
		got := c.GetHeader(HeaderAdminKey)
		if subtle.ConstantTimeCompare([]byte(got), []byte(cfg.Auth.AdminKey)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid admin key"})
			c.Abort()
			return
		}
		bindCaller(c, owner)
		c.Next()
	}
}
