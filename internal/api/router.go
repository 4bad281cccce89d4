package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sellershub/settlement-engine/internal/api/handler"
	"github.com/sellershub/settlement-engine/internal/api/middleware"
	"github.com/sellershub/settlement-engine/internal/api/spec"
	"github.com/sellershub/settlement-engine/internal/config"
	"github.com/sellershub/settlement-engine/internal/idempotency"
	"github.com/sellershub/settlement-engine/internal/service"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Router wires services and middleware into the HTTP surface.
type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *pgxpool.Pool
	redis     redis.Cmdable
	store     service.QueryStore
	ledgerSvc *service.LedgerService
	payoutSvc *service.PayoutService
	idemStore *idempotency.Store
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db *pgxpool.Pool,
	redisClient redis.Cmdable,
	store service.QueryStore,
	ledgerSvc *service.LedgerService,
	payoutSvc *service.PayoutService,
	idemStore *idempotency.Store,
) *Router {
	return &Router{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		redis:     redisClient,
		store:     store,
		ledgerSvc: ledgerSvc,
		payoutSvc: payoutSvc,
		idemStore: idemStore,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	payoutHandler := handler.NewPayoutHandler(api.payoutSvc, api.store)
	balanceHandler := handler.NewBalanceHandler(api.ledgerSvc, api.store)
	ledgerHandler := handler.NewLedgerHandler(api.ledgerSvc, api.store)

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Get("/healthz", healthHandler.Live)
		r.Get("/readyz", healthHandler.Ready)
		r.Get("/openapi.yaml", spec.OpenAPIHandler())
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.With(middleware.IdempotencyMiddleware(api.idemStore, api.logger)).
			Post("/v1/payouts", payoutHandler.CreatePayout)
		r.Get("/v1/payouts/{id}", payoutHandler.GetPayout)

		r.Get("/v1/accounts/{id}/payouts", payoutHandler.ListAccountPayouts)
		r.Get("/v1/accounts/{id}/balance", balanceHandler.GetBalance)
		r.Get("/v1/accounts/{id}/ledger", ledgerHandler.ListEntries)

		// Operator routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("admin", "operator"))
			r.Post("/v1/payouts/{id}/process", payoutHandler.ProcessPayout)
			r.With(middleware.IdempotencyMiddleware(api.idemStore, api.logger)).
				Post("/v1/accounts/{id}/entries", ledgerHandler.RecordEntry)
			r.With(middleware.IdempotencyMiddleware(api.idemStore, api.logger)).
				Post("/v1/accounts/{id}/release", ledgerHandler.ReleaseFunds)
		})
	})

	return r
}
