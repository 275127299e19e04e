package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inkroute/inkroute-backend/api/controllers"
	ordercontrollers "github.com/inkroute/inkroute-backend/api/controllers/orders"
	webhookcontrollers "github.com/inkroute/inkroute-backend/api/controllers/webhooks"
	"github.com/inkroute/inkroute-backend/api/middleware"
	"github.com/inkroute/inkroute-backend/internal/auth"
	"github.com/inkroute/inkroute-backend/internal/fulfillment"
	"github.com/inkroute/inkroute-backend/internal/notifications"
	"github.com/inkroute/inkroute-backend/internal/orders"
	"github.com/inkroute/inkroute-backend/internal/providers"
	"github.com/inkroute/inkroute-backend/pkg/auth/session"
	"github.com/inkroute/inkroute-backend/pkg/config"
	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	"github.com/inkroute/inkroute-backend/pkg/logger"
	pkgredis "github.com/inkroute/inkroute-backend/pkg/redis"
)

type cache interface {
	pkgredis.RateLimiter
	pkgredis.IdempotencyStore
	Ping(ctx context.Context) error
}

type storeService interface {
	controllers.StoreService
	Authenticate(ctx context.Context, rawKey string) (*models.Store, error)
}

type quotaLedger interface {
	controllers.UsageReporter
	controllers.Reconciler
	ForStore(ctx context.Context, storeID uuid.UUID) (models.Subscription, error)
	Reserve(ctx context.Context, subscriptionID uuid.UUID, resource enums.QuotaResource, delta int64) error
}

// Dependencies carries everything the HTTP surface calls into.
type Dependencies struct {
	DB            controllers.Pinger
	Cache         cache
	Sessions      session.AccessSessionChecker
	Gatherer      prometheus.Gatherer
	Auth          auth.Service
	Stores        storeService
	Products      controllers.ProductService
	Orders        orders.Service
	Fulfillment   fulfillment.Service
	Notifications notifications.Service
	Providers     providers.Service
	Users         controllers.UserAdmin
	Quota         quotaLedger
	Webhooks      webhookcontrollers.Receiver
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.HTTP.LoginWindow,
		cfg.HTTP.LoginIPLimit,
		cfg.HTTP.LoginEmailLimit,
	)
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Cache,
		}, logg))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Post("/webhooks/{platform}/{storeId}", webhookcontrollers.PlatformOrders(deps.Webhooks, cfg.Webhooks.MaxBodyBytes, logg))

	r.Route("/api", func(r chi.Router) {
		r.Route("/shopify/webhooks/orders", func(r chi.Router) {
			shopify := webhookcontrollers.ShopifyOrders(deps.Webhooks, cfg.Webhooks.MaxBodyBytes, logg)
			r.Post("/create", shopify)
			r.Post("/update", shopify)
		})

		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.AuthRateLimit(loginPolicy, deps.Cache, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
			r.Post("/refresh", controllers.AuthRefresh(deps.Auth, logg))
			r.With(middleware.Auth(cfg.JWT, deps.Sessions, logg)).Post("/logout", controllers.AuthLogout(deps.Auth, logg))
		})

		r.Route("/v1", func(r chi.Router) {
			r.Use(middleware.APIKey(deps.Stores, deps.Quota, logg))
			r.Use(middleware.Idempotency(deps.Cache, logg))
			r.Use(middleware.RateLimit(deps.Cache, cfg.HTTP.RequestsPerMinute, time.Minute, logg))
			r.Get("/products", controllers.PublicListProducts(deps.Products, logg))
			r.Get("/orders", ordercontrollers.PublicList(deps.Orders, logg))
			r.Post("/orders", ordercontrollers.PublicCreate(deps.Orders, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
			r.Use(middleware.Idempotency(deps.Cache, logg))
			r.Use(middleware.RateLimit(deps.Cache, cfg.HTTP.RequestsPerMinute, time.Minute, logg))

			r.Get("/orders", ordercontrollers.List(deps.Orders, deps.Stores, logg))
			r.Get("/orders/{orderId}", ordercontrollers.Detail(deps.Orders, deps.Stores, logg))
			r.Post("/orders/{orderId}/cancel", ordercontrollers.Cancel(deps.Fulfillment, logg))
			r.Post("/orders/{orderId}/tracking", ordercontrollers.Tracking(deps.Fulfillment, logg))

			r.Get("/notifications", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/notifications/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
			r.Post("/notifications/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))

			r.Get("/subscription/usage", controllers.SubscriptionUsage(deps.Quota, deps.Stores, logg))

			r.Get("/stores", controllers.ListStores(deps.Stores, logg))
			r.Post("/stores/{storeId}/api-key", controllers.RotateStoreAPIKey(deps.Stores, logg))

			r.Get("/products", controllers.ListProducts(deps.Products, logg))
			r.Post("/products", controllers.CreateProduct(deps.Products, logg))
			r.Patch("/products/{productId}/status", controllers.SetProductStatus(deps.Products, logg))
			r.Post("/products/{productId}/links", controllers.LinkProduct(deps.Products, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
			r.Use(middleware.RequireRole(string(enums.UserRoleAdmin), logg))
			r.Use(middleware.Idempotency(deps.Cache, logg))
			r.Use(middleware.RateLimit(deps.Cache, cfg.HTTP.RequestsPerMinute, time.Minute, logg))

			r.Patch("/orders/{orderId}/status", ordercontrollers.AdminUpdateStatus(deps.Fulfillment, logg))
			r.Post("/orders/{orderId}/provider", ordercontrollers.AdminAssignProvider(deps.Fulfillment, logg))

			r.Get("/providers", controllers.AdminListProviders(deps.Providers, logg))
			r.Post("/providers", controllers.AdminCreateProvider(deps.Providers, logg))
			r.Patch("/providers/{providerId}/status", controllers.AdminUpdateProviderStatus(deps.Providers, logg))

			r.Patch("/users/{userId}/role", controllers.AdminSetUserRole(deps.Users, logg))
			r.Post("/users/{userId}/ban", controllers.AdminSetUserBanned(deps.Users, logg))

			r.Post("/subscriptions/{subscriptionId}/reconcile", controllers.AdminReconcileSubscription(deps.Quota, logg))
		})
	})

	return r
}
