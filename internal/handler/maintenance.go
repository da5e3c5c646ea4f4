package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/skara-labs/crowdgate/internal/middleware"
	"github.com/skara-labs/crowdgate/internal/pkg/apperrors"
	"github.com/skara-labs/crowdgate/internal/pkg/logger"
)

type MaintenanceHandler struct {
	sw *middleware.MaintenanceSwitch
}

type maintenanceRequest struct {
	ReadOnly *bool `json:"read_only" binding:"required"`
}

func (h *MaintenanceHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"read_only": h.sw.Enabled()})
}

func (h *MaintenanceHandler) Set(c *gin.Context) {
	var req maintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	h.sw.Set(*req.ReadOnly)
	logger.Get().InfoContext(c.Request.Context(), "Maintenance mode changed", "read_only", *req.ReadOnly)
	c.JSON(http.StatusOK, gin.H{"read_only": *req.ReadOnly})
}
