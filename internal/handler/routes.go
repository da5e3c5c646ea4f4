package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/skara-labs/crowdgate/internal/config"
	"github.com/skara-labs/crowdgate/internal/middleware"
	"github.com/skara-labs/crowdgate/internal/sale"
	"github.com/skara-labs/crowdgate/internal/service"
	"github.com/skara-labs/crowdgate/internal/signer"
)

type Deps struct {
	Config      *config.Config
	Sale        *service.SaleService
	Events      *service.EventService
	Limiter     *service.LimiterRegistry
	Idempotency middleware.IdempotencyStore
	// Verifier enables caller signature checks when set.
	Verifier *signer.Verifier
	// Maintenance defaults to a switch seeded from server.read_only.
	Maintenance *middleware.MaintenanceSwitch
}

// RegisterRoutes mounts the /v1 API on r.
func RegisterRoutes(r *gin.Engine, d Deps) {
	saleHandler := NewSaleHandler(d.Sale)
	eventHandler := NewEventHandler(d.Events)
	sw := d.Maintenance
	if sw == nil {
		sw = middleware.NewMaintenanceSwitch(d.Config.Server.ReadOnly)
	}
	maintenance := &MaintenanceHandler{sw: sw}

	v1 := r.Group("/v1")
	{
		public := v1.Group("")
		public.Use(middleware.ReadOnlyMiddleware(sw))
		public.Use(middleware.CallerMiddleware(d.Config, d.Verifier))
		public.Use(middleware.IdempotencyMiddleware(d.Idempotency))

		public.POST("/purchases", middleware.RateLimitMiddleware(d.Limiter), saleHandler.Purchase)
		public.GET("/sale", saleHandler.Status)
		public.GET("/pool", saleHandler.Pool)
		public.GET("/investors/:address", saleHandler.Investor)
		public.GET("/investors/:address/bonus", saleHandler.Bonus)
		public.GET("/vesting/:address", saleHandler.Vesting)
		public.POST("/vesting/:address/release", saleHandler.Release)
		public.GET("/postsalers/:address", saleHandler.Postsaler)
		public.POST("/postsalers/:address/claim", saleHandler.Claim)
		public.GET("/events", eventHandler.List)
		public.GET("/events/stream", eventHandler.Stream)
	}

	admin := v1.Group("/admin")
	admin.Use(middleware.AdminMiddleware(d.Config, d.Sale.Owner()))
	admin.GET("/maintenance", maintenance.Get)
	admin.PUT("/maintenance", maintenance.Set)

	admin = admin.Group("")
	admin.Use(middleware.ReadOnlyMiddleware(sw))
	admin.Use(middleware.IdempotencyMiddleware(d.Idempotency))
	{
		admin.POST("/whitelist/day-one", saleHandler.RegisterDayOne)
		admin.POST("/whitelist/day-two", saleHandler.RegisterDayTwo)
		admin.POST("/presalers", saleHandler.RegisterPresaler)
		admin.POST("/team", saleHandler.AddStakeholder(sale.RoleTeam))
		admin.POST("/advisors", saleHandler.AddStakeholder(sale.RoleAdvisor))
		admin.POST("/bounty", saleHandler.AddStakeholder(sale.RoleBounty))
		admin.POST("/finalize", saleHandler.Finalize)
		admin.POST("/vesting/:address/revoke", saleHandler.Revoke)
	}
}
