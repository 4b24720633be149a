package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/blendpoint-backend/api/controllers"
	"github.com/angelmondragon/blendpoint-backend/api/middleware"
	"github.com/angelmondragon/blendpoint-backend/internal/cart"
	"github.com/angelmondragon/blendpoint-backend/internal/checkout"
	"github.com/angelmondragon/blendpoint-backend/internal/loyalty"
	"github.com/angelmondragon/blendpoint-backend/internal/pricing"
	"github.com/angelmondragon/blendpoint-backend/internal/promotions"
	"github.com/angelmondragon/blendpoint-backend/internal/redemption"
	"github.com/angelmondragon/blendpoint-backend/pkg/config"
	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
	"github.com/angelmondragon/blendpoint-backend/pkg/logger"
	"github.com/angelmondragon/blendpoint-backend/pkg/redis"
)

// RedisStore is the slice of the Redis client the HTTP layer needs.
type RedisStore interface {
	redis.IdempotencyStore
	controllers.Pinger
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (redis.Window, error)
}

// Services bundles everything the router hands to controllers.
type Services struct {
	Calculator pricing.Calculator
	Carts      cart.Service
	Checkout   checkout.Service
	Promotions promotions.Service
	Redemption redemption.Service
	Loyalty    loyalty.Service
}

// Infra carries the process-level dependencies.
type Infra struct {
	DB       controllers.Pinger
	Redis    RedisStore
	Gatherer prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, infra Infra, svc Services) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readinessDeps(infra)))
	})
	if infra.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(infra.Gatherer, promhttp.HandlerOpts{}))
	}

	// a nil store disables replay and throttling
	var idemStore redis.IdempotencyStore
	var limiter middleware.WindowLimiter
	if infra.Redis != nil {
		idemStore = infra.Redis
		limiter = infra.Redis
	}

	redeemPolicy := middleware.RateLimitPolicy{
		Name:          "redeem",
		Window:        cfg.RedeemRateLimit.Window,
		CustomerLimit: cfg.RedeemRateLimit.CustomerLimit,
		IPLimit:       cfg.RedeemRateLimit.IPLimit,
	}

	r.Route("/api/v1", func(r chi.Router) {
		// guests and customers
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(idemStore, cfg.Idempotency.TTL, logg))

			r.Post("/pricing/quote", controllers.PricingQuote(svc.Calculator, logg))
			r.Post("/promotions/validate", controllers.PromotionValidate(svc.Promotions, logg))

			r.Route("/carts", func(r chi.Router) {
				r.Post("/", controllers.CartInit(svc.Carts, logg))
				r.Route("/{cartId}", func(r chi.Router) {
					r.Get("/", controllers.CartGet(svc.Carts, logg))
					r.Post("/items", controllers.CartAddItem(svc.Carts, logg))
					r.Patch("/items/{itemId}", controllers.CartUpdateItem(svc.Carts, logg))
					r.Delete("/items/{itemId}", controllers.CartRemoveItem(svc.Carts, logg))
					r.Post("/promotion", controllers.CartApplyPromotion(svc.Carts, logg))
					r.Delete("/promotion", controllers.CartRemovePromotion(svc.Carts, logg))
					r.Post("/abandon", controllers.CartAbandon(svc.Carts, logg))
					r.Post("/checkout", controllers.CartCheckout(svc.Checkout, logg))
				})
			})
		})

		// signed-in customers
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			r.With(middleware.RateLimit(redeemPolicy, limiter, logg)).Post("/redeem", controllers.Redeem(svc.Redemption, logg))
			r.Route("/receipts", func(r chi.Router) {
				r.Post("/", controllers.ReceiptSubmit(svc.Redemption, logg))
				r.Get("/", controllers.ReceiptListMine(svc.Redemption, logg))
			})
			r.Route("/wallet", func(r chi.Router) {
				r.Get("/", controllers.WalletGet(svc.Loyalty, logg))
				r.Get("/transactions", controllers.WalletTransactions(svc.Loyalty, logg))
				r.Post("/spend", controllers.WalletSpend(svc.Loyalty, logg))
			})
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.OrderList(svc.Checkout, logg))
				r.Get("/{orderId}", controllers.OrderGet(svc.Checkout, logg))
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireRole(logg, enums.RoleOperator))

			r.Route("/promotions", func(r chi.Router) {
				r.Post("/", controllers.AdminPromotionCreate(svc.Promotions, logg))
				r.Get("/{promotionId}", controllers.AdminPromotionGet(svc.Promotions, logg))
				r.Post("/{promotionId}/deactivate", controllers.AdminPromotionDeactivate(svc.Promotions, logg))
				r.Get("/{promotionId}/usages", controllers.AdminPromotionUsages(svc.Promotions, logg))
			})
			r.Route("/qr-codes", func(r chi.Router) {
				r.Post("/", controllers.AdminQRCodeCreate(svc.Redemption, logg))
				r.Get("/{codeId}", controllers.AdminQRCodeGet(svc.Redemption, logg))
				r.Post("/{codeId}/deactivate", controllers.AdminQRCodeDeactivate(svc.Redemption, logg))
				r.Get("/{codeId}/scans", controllers.AdminQRCodeScans(svc.Redemption, logg))
			})
			r.Route("/receipts", func(r chi.Router) {
				r.Get("/", controllers.AdminReceiptList(svc.Redemption, logg))
				r.Get("/{receiptId}", controllers.AdminReceiptGet(svc.Redemption, logg))
				r.Post("/{receiptId}/approve", controllers.AdminReceiptApprove(svc.Redemption, logg))
				r.Post("/{receiptId}/reject", controllers.AdminReceiptReject(svc.Redemption, logg))
			})
			r.Route("/wallets/{customerId}", func(r chi.Router) {
				r.Post("/adjust", controllers.AdminWalletAdjust(svc.Loyalty, logg))
				r.Get("/reconcile", controllers.AdminWalletReconcile(svc.Loyalty, logg))
			})
		})
	})

	return r
}

func readinessDeps(infra Infra) map[string]controllers.Pinger {
	deps := map[string]controllers.Pinger{}
	if infra.DB != nil {
		deps["db"] = infra.DB
	}
	if infra.Redis != nil {
		deps["redis"] = infra.Redis
	}
	return deps
}
