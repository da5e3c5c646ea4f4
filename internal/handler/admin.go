package handler

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
	"github.com/skara-labs/crowdgate/internal/model"
	"github.com/skara-labs/crowdgate/internal/pkg/apperrors"
	"github.com/skara-labs/crowdgate/internal/sale"
)

// Admin routes run behind AdminMiddleware, which binds the caller to the owner.

func (h *SaleHandler) adminCaller(c *gin.Context) common.Address {
	return actor(c, common.Address{})
}

func (h *SaleHandler) bindWhitelist(c *gin.Context) (common.Address, *uint256.Int, bool) {
	var req model.WhitelistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return common.Address{}, nil, false
	}
	investor, err := parseAddress(req.Investor, "investor")
	if err != nil {
		c.Error(err)
		return common.Address{}, nil, false
	}
	var boundary *uint256.Int
	if req.Boundary != "" {
		if boundary, err = parseAmount(req.Boundary, "boundary"); err != nil {
			c.Error(err)
			return common.Address{}, nil, false
		}
	}
	return investor, boundary, true
}

func (h *SaleHandler) RegisterDayOne(c *gin.Context) {
	investor, boundary, ok := h.bindWhitelist(c)
	if !ok {
		return
	}
	if err := h.svc.RegisterDayOne(c.Request.Context(), h.adminCaller(c), investor, boundary); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"investor": investor.Hex(), "tier": sale.TierDayOne.String()})
}

func (h *SaleHandler) RegisterDayTwo(c *gin.Context) {
	investor, _, ok := h.bindWhitelist(c)
	if !ok {
		return
	}
	if err := h.svc.RegisterDayTwo(c.Request.Context(), h.adminCaller(c), investor); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"investor": investor.Hex(), "tier": sale.TierDayTwo.String()})
}

func (h *SaleHandler) RegisterPresaler(c *gin.Context) {
	var req model.PresalerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	investor, err := parseAddress(req.Investor, "investor")
	if err != nil {
		c.Error(err)
		return
	}
	capAmount, err := parseAmount(req.Cap, "cap")
	if err != nil {
		c.Error(err)
		return
	}
	terms := sale.PresalerTerms{
		Cap:             capAmount,
		VestingDuration: time.Duration(req.VestingDurationSeconds) * time.Second,
	}
	if req.CustomBonusBP != nil {
		bp := sale.BasisPoints(*req.CustomBonusBP)
		terms.CustomBonus = &bp
	}
	if req.VestingStart != nil {
		terms.VestingStart = *req.VestingStart
	}
	if err := h.svc.RegisterPresaler(c.Request.Context(), h.adminCaller(c), investor, terms); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"investor": investor.Hex(), "presaler": true})
}

// AddStakeholder returns a handler registering post-sale allocations for role.
func (h *SaleHandler) AddStakeholder(role sale.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.StakeholderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperrors.NewInvalidRequest(err.Error()))
			return
		}
		beneficiary, err := parseAddress(req.Beneficiary, "beneficiary")
		if err != nil {
			c.Error(err)
			return
		}
		amount, err := parseAmount(req.Amount, "amount")
		if err != nil {
			c.Error(err)
			return
		}
		entry, err := h.svc.AddStakeholder(c.Request.Context(), h.adminCaller(c), role, beneficiary, amount)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, stakeholderResponse(entry))
	}
}

func (h *SaleHandler) Finalize(c *gin.Context) {
	releasable, err := h.svc.Finalize(c.Request.Context(), h.adminCaller(c))
	if err != nil {
		fail(c, err)
		return
	}
	pool, account := h.svc.Pool()
	c.JSON(http.StatusOK, model.PoolResponse{
		Finalized:   pool.Finalized,
		Initial:     model.FormatUnits(releasable),
		Releasable:  model.FormatUnits(pool.Releasable),
		SaleAccount: account.Hex(),
	})
}
