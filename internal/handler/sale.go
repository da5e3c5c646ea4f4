package handler

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/skara-labs/crowdgate/internal/middleware"
	"github.com/skara-labs/crowdgate/internal/model"
	"github.com/skara-labs/crowdgate/internal/pkg/apperrors"
	"github.com/skara-labs/crowdgate/internal/sale"
	"github.com/skara-labs/crowdgate/internal/service"
)

type SaleHandler struct {
	svc *service.SaleService
}

func NewSaleHandler(svc *service.SaleService) *SaleHandler {
	return &SaleHandler{svc: svc}
}

// Purchase buys tokens for the investor. The caller pays; without a caller
// header the investor is assumed to pay for itself.
func (h *SaleHandler) Purchase(c *gin.Context) {
	var req model.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	amount, err := parseAmount(req.Amount, "amount")
	if err != nil {
		c.Error(err)
		return
	}

	caller, hasCaller := middleware.CallerFrom(c)
	var investor common.Address
	switch {
	case req.Investor != "":
		if investor, err = parseAddress(req.Investor, "investor"); err != nil {
			c.Error(err)
			return
		}
	case hasCaller:
		investor = caller
	default:
		c.Error(apperrors.NewInvalidRequest("investor is required without a caller address"))
		return
	}

	p, err := h.svc.Purchase(c.Request.Context(), actor(c, investor), investor, amount)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, model.PurchaseResponse{
		Investor:  p.Investor.Hex(),
		Payer:     p.Payer.Hex(),
		Amount:    model.FormatUnits(p.Amount),
		Tokens:    model.FormatUnits(p.Tokens),
		BonusBP:   uint16(p.Bonus),
		BonusRule: p.BonusRule,
		Phase:     p.Phase.String(),
		Recipient: p.Recipient.Hex(),
		Vested:    p.Vested,
	})
}

func (h *SaleHandler) Status(c *gin.Context) {
	st := h.svc.Status()
	c.JSON(http.StatusOK, model.SaleResponse{
		Phase:         st.Phase.String(),
		Now:           st.Now.UTC(),
		StartTime:     st.Config.StartTime,
		EndTime:       st.Config.EndTime,
		WeiRaised:     model.FormatUnits(st.Snapshot.WeiRaised),
		PresaleRaised: model.FormatUnits(st.Snapshot.PresaleRaised),
		TokensSold:    model.FormatUnits(st.Snapshot.TokensSold),
		Cap:           model.FormatUnits(st.Config.Cap),
		Investors:     st.Snapshot.Investors,
		Finalized:     st.Snapshot.Pool.Finalized,
	})
}

func (h *SaleHandler) Investor(c *gin.Context) {
	addr, ok := pathAddress(c)
	if !ok {
		return
	}
	view := h.svc.Investor(addr)
	rec := view.Record
	resp := model.InvestorResponse{
		Address:           addr.Hex(),
		Tier:              rec.Tier.String(),
		TotalContributed:  model.FormatUnits(rec.TotalContributed),
		RemainingBoundary: model.FormatUnits(rec.RemainingBoundary),
		IsPresaler:        rec.IsPresaler,
		PresaleBoundary:   model.FormatUnits(rec.PresaleAllowance()),
		WhitelistedDayOne: rec.Tier >= sale.TierDayOne,
		WhitelistedDayTwo: rec.Tier >= sale.TierDayTwo,
		VestingAddress:    sale.VestingAddress(addr).Hex(),
		HasVesting:        view.HasVesting,
	}
	if rec.CustomBonus != nil {
		bp := uint16(*rec.CustomBonus)
		resp.CustomBonusBP = &bp
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SaleHandler) Bonus(c *gin.Context) {
	addr, ok := pathAddress(c)
	if !ok {
		return
	}
	amount, err := parseAmount(c.Query("amount"), "amount")
	if err != nil {
		c.Error(err)
		return
	}
	bp, phase := h.svc.Bonus(addr, amount)
	c.JSON(http.StatusOK, model.BonusResponse{
		Investor: addr.Hex(),
		Amount:   model.FormatUnits(amount),
		BonusBP:  uint16(bp),
		Phase:    phase.String(),
	})
}
