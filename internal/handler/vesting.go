package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/skara-labs/crowdgate/internal/model"
	"github.com/skara-labs/crowdgate/internal/pkg/apperrors"
)

func (h *SaleHandler) Vesting(c *gin.Context) {
	addr, ok := pathAddress(c)
	if !ok {
		return
	}
	view, ok := h.svc.Vesting(addr)
	if !ok {
		c.Error(apperrors.New(apperrors.ErrNotFound, "no vesting schedule for "+addr.Hex(), nil))
		return
	}
	s := view.Schedule
	c.JSON(http.StatusOK, model.VestingResponse{
		Beneficiary:     s.Beneficiary.Hex(),
		Escrow:          s.Escrow.Hex(),
		TotalAllocated:  model.FormatUnits(s.TotalAllocated),
		Released:        model.FormatUnits(s.Released),
		Vested:          model.FormatUnits(view.Vested),
		Releasable:      model.FormatUnits(view.Releasable),
		Start:           s.Start,
		CliffSeconds:    int64(s.Cliff.Seconds()),
		DurationSeconds: int64(s.Duration.Seconds()),
		Revocable:       s.Revocable,
		Revoked:         s.Revoked,
	})
}

// Release may be triggered by anyone; tokens always go to the beneficiary.
func (h *SaleHandler) Release(c *gin.Context) {
	addr, ok := pathAddress(c)
	if !ok {
		return
	}
	amount, err := h.svc.Release(c.Request.Context(), actor(c, addr), addr)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, model.ReleaseResponse{
		Beneficiary: addr.Hex(),
		Released:    model.FormatUnits(amount),
	})
}

func (h *SaleHandler) Revoke(c *gin.Context) {
	addr, ok := pathAddress(c)
	if !ok {
		return
	}
	refund, err := h.svc.Revoke(c.Request.Context(), actor(c, addr), addr)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, model.RevokeResponse{
		Beneficiary: addr.Hex(),
		Refunded:    model.FormatUnits(refund),
	})
}
