package middleware

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/skara-labs/crowdgate/internal/pkg/apperrors"
)

func isWrite(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

// MaintenanceSwitch pauses every state-changing sale operation while queries
// keep working. It starts from server.read_only and can be flipped by the
// owner at runtime.
type MaintenanceSwitch struct {
	on atomic.Bool
}

func NewMaintenanceSwitch(readOnly bool) *MaintenanceSwitch {
	s := &MaintenanceSwitch{}
	s.on.Store(readOnly)
	return s
}

func (s *MaintenanceSwitch) Set(readOnly bool) { s.on.Store(readOnly) }

func (s *MaintenanceSwitch) Enabled() bool { return s.on.Load() }

// ReadOnlyMiddleware rejects writes with READ_ONLY while the switch is on.
func ReadOnlyMiddleware(s *MaintenanceSwitch) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s == nil || !s.Enabled() || !isWrite(c.Request.Method) {
			c.Next()
			return
		}
		c.Header("Retry-After", "60")
		c.Error(apperrors.New(apperrors.ErrReadOnly, "sale paused for maintenance", nil))
		c.Abort()
	}
}
