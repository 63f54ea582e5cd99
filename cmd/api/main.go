package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nikhilbhat/swiftcart-backend/api/routes"
	"github.com/nikhilbhat/swiftcart-backend/internal/cart"
	"github.com/nikhilbhat/swiftcart-backend/internal/catalog"
	"github.com/nikhilbhat/swiftcart-backend/internal/inventory"
	"github.com/nikhilbhat/swiftcart-backend/internal/orders"
	"github.com/nikhilbhat/swiftcart-backend/internal/payments"
	"github.com/nikhilbhat/swiftcart-backend/internal/tracking"
	"github.com/nikhilbhat/swiftcart-backend/pkg/config"
	"github.com/nikhilbhat/swiftcart-backend/pkg/db"
	"github.com/nikhilbhat/swiftcart-backend/pkg/logger"
	"github.com/nikhilbhat/swiftcart-backend/pkg/metrics"
	"github.com/nikhilbhat/swiftcart-backend/pkg/migrate"
	"github.com/nikhilbhat/swiftcart-backend/pkg/outbox"
	"github.com/nikhilbhat/swiftcart-backend/pkg/razorpay"
	"github.com/nikhilbhat/swiftcart-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	razorpayClient, err := razorpay.NewClient(context.Background(), cfg.Razorpay, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create razorpay client", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	checkoutMetrics := metrics.NewCheckoutMetrics(promRegistry)
	paymentMetrics := metrics.NewPaymentMetrics(promRegistry)

	gdb := dbClient.DB()
	productRepo := catalog.NewRepository(gdb)
	cartRepo := cart.NewRepository(gdb)
	orderRepo := orders.NewRepository(gdb)
	paymentRepo := payments.NewRepository(gdb)
	trackingRepo := tracking.NewRepository(gdb)
	outboxService := outbox.NewService(outbox.NewRepository(gdb), logg)

	stockLedger, err := inventory.NewLedger(gdb)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory ledger", err)
		os.Exit(1)
	}

	cartService, err := cart.NewService(cartRepo, productRepo, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	orderService, err := orders.NewService(
		orderRepo,
		cartRepo,
		productRepo,
		stockLedger,
		dbClient,
		outboxService,
		checkoutMetrics,
		cfg.Checkout,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	paymentService, err := payments.NewService(
		paymentRepo,
		orderRepo,
		razorpayClient,
		dbClient,
		outboxService,
		paymentMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	trackingService, err := tracking.NewService(
		trackingRepo,
		orderRepo,
		dbClient,
		outboxService,
		cfg.Checkout.NearbyMaxDistanceM,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create tracking service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			promRegistry,
			cartService,
			orderService,
			paymentService,
			trackingService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
