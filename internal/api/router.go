package api

import (
	"net/http"

	"github.com/ayo6706/campus-courier/internal/api/handler"
	"github.com/ayo6706/campus-courier/internal/api/middleware"
	"github.com/ayo6706/campus-courier/internal/api/spec"
	"github.com/ayo6706/campus-courier/internal/config"
	"github.com/ayo6706/campus-courier/internal/domain"
	"github.com/ayo6706/campus-courier/internal/idempotency"
	"github.com/ayo6706/campus-courier/internal/service"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Services bundles the domain services the HTTP layer calls into.
type Services struct {
	Orders      *service.OrderService
	Assignments *service.AssignmentService
	Wallets     *service.WalletService
	Payouts     *service.PayoutService
	Webhooks    *service.WebhookService
}

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        handler.Pinger
	idemStore *idempotency.Store
	redis     redis.Cmdable
	services  Services
}

// NewRouter wires handlers onto chi. redis may be nil when caching is disabled.
func NewRouter(cfg *config.Config, logger *zap.Logger, db handler.Pinger, idemStore *idempotency.Store, redis redis.Cmdable, services Services) *Router {
	return &Router{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		idemStore: idemStore,
		redis:     redis,
		services:  services,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(chiMiddleware.RealIP)

	// Handlers
	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	orderHandler := handler.NewOrderHandler(api.services.Orders, api.services.Assignments)
	agentHandler := handler.NewAgentHandler(api.services.Assignments, api.services.Orders, api.services.Wallets)
	payoutHandler := handler.NewPayoutHandler(api.services.Payouts, api.services.Assignments)
	adminHandler := handler.NewAdminHandler(api.services.Assignments, api.services.Wallets)
	webhookHandler := handler.NewWebhookHandler(api.services.Webhooks)

	// Public Routes
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	r.With(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS)).
		Post("/v1/webhooks/payout-gateway", webhookHandler.HandleGatewayEvent)

	// Protected Routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		// Orders
		r.With(middleware.RequireRole(domain.RoleService, domain.RoleAdmin)).Post("/v1/orders", orderHandler.CreateOrder)
		r.With(middleware.RequireRole(domain.RoleService, domain.RoleAdmin)).Post("/v1/orders/{id}/cancel", orderHandler.CancelOrder)
		r.Get("/v1/orders/{id}", orderHandler.GetOrder)

		// Delivery agents
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleAgent))

			r.Get("/v1/orders/claimable", orderHandler.ListClaimable)
			r.Post("/v1/orders/{id}/claim", orderHandler.ClaimOrder)
			r.Post("/v1/orders/{id}/status", orderHandler.AdvanceOrder)

			r.Get("/v1/agents/me", agentHandler.GetMe)
			r.Put("/v1/agents/me/availability", agentHandler.SetAvailability)
			r.Get("/v1/agents/me/orders", agentHandler.ListOrders)
			r.Get("/v1/agents/me/wallet", agentHandler.GetWallet)
			r.Get("/v1/agents/me/wallet/entries", agentHandler.ListWalletEntries)

			r.Get("/v1/agents/me/payout-profile", payoutHandler.GetPayoutProfile)
			r.Put("/v1/agents/me/payout-profile", payoutHandler.UpsertPayoutProfile)
			r.Post("/v1/agents/me/payee", payoutHandler.RegisterPayee)

			r.With(middleware.IdempotencyMiddleware(api.idemStore, api.logger)).Post("/v1/withdrawals", payoutHandler.RequestWithdrawal)
			r.Get("/v1/agents/me/withdrawals", payoutHandler.ListWithdrawals)
		})

		r.With(middleware.RequireRole(domain.RoleAgent, domain.RoleAdmin)).Get("/v1/withdrawals/{id}", payoutHandler.GetWithdrawal)

		// Operators
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleAdmin))

			r.Post("/v1/admin/agents", adminHandler.RegisterAgent)
			r.Post("/v1/admin/agents/{id}/wallet/credits", adminHandler.CreditWallet)
		})
	})

	return r
}
