package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/events"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/idempotency"
	"github.com/xenking/storefront/internal/repository/memory"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const producerName = "storefront-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	st, err := openStores(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	pepper := []byte(cfg.APIKeyPepper)
	if err := registerAdminKey(ctx, st.apikeys, pepper, cfg.AdminAPIKey); err != nil {
		return errors.Wrap(err, "register admin key")
	}

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	if st.ping != nil {
		healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(st.ping))
	}

	// Idempotency keys and rate limits live in Redis when configured, in
	// process otherwise.
	var (
		replays order.ReplayStore = memory.NewReplayStore()
		limiter httpmiddleware.Limiter
		local   *httpmiddleware.LocalLimiter
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()

		store := idempotency.New(rdb, cfg.Order.IdempotencyTTL, cfg.Order.InFlightTTL)
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck(store))
		replays = store
		if cfg.RateLimit.Max > 0 {
			limiter = httpmiddleware.NewRedisLimiter(rdb, cfg.RateLimit.Max, cfg.RateLimit.Window)
		}
	} else if cfg.RateLimit.Max > 0 {
		local = httpmiddleware.NewLocalLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
		limiter = local
	}

	var publisher order.Publisher = events.Discard{}
	if len(cfg.Kafka.Brokers) > 0 {
		p := events.NewPublisher(events.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, lg), producerName)
		defer func() {
			if err := p.Close(); err != nil {
				lg.Warn("Close event publisher", zap.Error(err))
			}
		}()
		publisher = p
	}

	orderService, err := order.NewService(st.products, st.customers, st.orders, order.Config{
		PlaceTimeout:        cfg.Order.PlaceTimeout,
		CompensationTimeout: cfg.Order.CompensationTimeout,
		WriteTimeout:        cfg.Order.WriteTimeout,
		TracerProvider:      m.TracerProvider(),
		MeterProvider:       m.MeterProvider(),
		Publisher:           publisher,
		Replays:             replays,
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	tokens := auth.NewTokens([]byte(cfg.JWT.Secret), cfg.JWT.TTL)
	customerService := customer.NewService(st.customers, tokens, 0)

	productService := product.NewService(st.products, st.categories)
	categoryService := category.NewService(st.categories, st.products)

	h := handler.New(handler.Config{
		Products:          productService,
		Categories:        categoryService,
		Orders:            orderService,
		Customers:         customerService,
		Tokens:            tokens,
		APIKeys:           st.apikeys,
		APIKeyPepper:      pepper,
		PlaceOrderLimiter: limiter,
	})

	r := chi.NewRouter()
	r.Use(
		httpmiddleware.Recovery(),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			Origins:          cfg.CORS.Origins,
			Headers:          []string{"Content-Type", "Authorization", handler.APIKeyHeader, handler.IdempotencyKeyHeader},
			ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "Retry-After"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.Instrument(producerName, m.TracerProvider(), m.MeterProvider()),
		httpmiddleware.LogRequests(),
	)
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	h.Routes(r)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return healthSvc.Run(gctx, 10*time.Second)
	})
	if local != nil {
		g.Go(func() error {
			local.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		// Graceful shutdown: wait for cancellation, drain, then stop.
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		healthSvc.SetReady(true)
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}
