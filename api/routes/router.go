package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nikhilbhat/swiftcart-backend/api/controllers"
	"github.com/nikhilbhat/swiftcart-backend/api/middleware"
	"github.com/nikhilbhat/swiftcart-backend/internal/cart"
	"github.com/nikhilbhat/swiftcart-backend/internal/orders"
	"github.com/nikhilbhat/swiftcart-backend/internal/payments"
	"github.com/nikhilbhat/swiftcart-backend/internal/tracking"
	"github.com/nikhilbhat/swiftcart-backend/pkg/config"
	"github.com/nikhilbhat/swiftcart-backend/pkg/db"
	"github.com/nikhilbhat/swiftcart-backend/pkg/enums"
	"github.com/nikhilbhat/swiftcart-backend/pkg/logger"
	"github.com/nikhilbhat/swiftcart-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	promRegistry *prometheus.Registry,
	cartService cart.Service,
	ordersService orders.Service,
	paymentsService payments.Service,
	trackingService tracking.Service,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	if promRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(cartService, logg))
			r.Post("/items", controllers.CartAddItem(cartService, logg))
			r.Put("/items/{itemID}", controllers.CartUpdateItem(cartService, logg))
			r.Delete("/items/{itemID}", controllers.CartRemoveItem(cartService, logg))
			r.Delete("/", controllers.CartClear(cartService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/from-cart", controllers.OrderCreateFromCart(ordersService, logg))
			r.Get("/", controllers.OrderList(ordersService, logg))
			r.Get("/{orderID}", controllers.OrderDetail(ordersService, logg))
			r.With(middleware.RequireRoles(logg, enums.UserRoleAdmin)).
				Put("/{orderID}", controllers.OrderUpdateStatus(ordersService, logg))
			r.Put("/{orderID}/cancel", controllers.OrderCancel(ordersService, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			verifyLimit := middleware.NewRateLimitPolicy("payment-verify", time.Minute, 60, 20)
			r.Post("/create-payment-intent", controllers.PaymentCreateIntent(paymentsService, logg))
			r.With(middleware.RateLimit(verifyLimit, redisClient, logg)).
				Post("/verify-payment", controllers.PaymentVerify(paymentsService, logg))
			r.Get("/{paymentID}", controllers.PaymentDetail(paymentsService, logg))
			r.With(middleware.RequireRoles(logg, enums.UserRoleAdmin)).
				Put("/{paymentID}/refund", controllers.PaymentRefund(paymentsService, logg))
		})

		r.Route("/tracking", func(r chi.Router) {
			r.With(middleware.RequireRoles(logg, enums.UserRoleAdmin, enums.UserRoleCourier)).
				Get("/nearby", controllers.TrackingNearby(trackingService, logg))
			r.Get("/{orderID}", controllers.TrackingDetail(trackingService, logg))
			r.With(middleware.RequireRoles(logg, enums.UserRoleAdmin, enums.UserRoleCourier)).
				Put("/{orderID}/location", controllers.TrackingRecordLocation(trackingService, logg))
		})
	})

	return r
}
