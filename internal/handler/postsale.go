package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/skara-labs/crowdgate/internal/model"
	"github.com/skara-labs/crowdgate/internal/pkg/apperrors"
	"github.com/skara-labs/crowdgate/internal/sale"
)

func (h *SaleHandler) Pool(c *gin.Context) {
	pool, account := h.svc.Pool()
	c.JSON(http.StatusOK, model.PoolResponse{
		Finalized:   pool.Finalized,
		Initial:     model.FormatUnits(pool.Initial),
		Releasable:  model.FormatUnits(pool.Releasable),
		SaleAccount: account.Hex(),
	})
}

func stakeholderResponse(e sale.PostsalerEntry) model.StakeholderResponse {
	return model.StakeholderResponse{
		Beneficiary: e.Beneficiary.Hex(),
		Role:        e.Role.String(),
		Amount:      model.FormatUnits(e.Amount),
		HasVesting:  e.HasVesting,
		Claimed:     e.Claimed,
	}
}

func (h *SaleHandler) Postsaler(c *gin.Context) {
	addr, ok := pathAddress(c)
	if !ok {
		return
	}
	entry, ok := h.svc.Postsaler(addr)
	if !ok {
		c.Error(apperrors.New(apperrors.ErrNotFound, "no post-sale allocation for "+addr.Hex(), nil))
		return
	}
	c.JSON(http.StatusOK, stakeholderResponse(entry))
}

func (h *SaleHandler) Claim(c *gin.Context) {
	addr, ok := pathAddress(c)
	if !ok {
		return
	}
	claim, err := h.svc.Claim(c.Request.Context(), actor(c, addr), addr)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, model.ClaimResponse{
		Beneficiary: claim.Beneficiary.Hex(),
		Payer:       claim.Payer.Hex(),
		Amount:      model.FormatUnits(claim.Amount),
		Recipient:   claim.Recipient.Hex(),
		Vested:      claim.Vested,
		PoolLeft:    model.FormatUnits(claim.Remaining),
	})
}
