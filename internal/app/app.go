package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/boutique-pos/internal/domain/auth"
	"github.com/xenking/boutique-pos/internal/domain/product"
	"github.com/xenking/boutique-pos/internal/domain/sale"
	"github.com/xenking/boutique-pos/internal/handler"
	"github.com/xenking/boutique-pos/internal/register"
	"github.com/xenking/boutique-pos/internal/storage/postgres"
	"github.com/xenking/boutique-pos/internal/storage/rediscache"
	"github.com/xenking/boutique-pos/pkg/health"
	"github.com/xenking/boutique-pos/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	taxRate, err := cfg.TaxRate()
	if err != nil {
		return err
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc", time.Second, health.GCMaxPauseCheck(500*time.Millisecond))

	// Repositories.
	var (
		products product.Repository = postgres.NewProductRepository(pool)
		sales    sale.Repository    = postgres.NewSaleRepository(pool)
		limiter  httpmiddleware.Limiter
	)
	suppliers := postgres.NewSupplierRepository(pool)
	apikeys := postgres.NewAPIKeyRepository(pool)

	if cfg.RedisURL != "" {
		rdb, err := newRedis(cfg.RedisURL, m)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()

		// A single lost ping does not mark the API unready.
		healthSvc.AddReadinessCheckWithThresholds("redis", 2*time.Second,
			health.PingCheck(health.PingFunc(func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			})),
			health.Thresholds{Failure: 3, Success: 1},
		)

		cached := rediscache.NewProductRepository(products, rdb, cfg.Catalog.CacheTTL)
		products = cached
		sales = rediscache.NewSaleRepository(sales, cached)
		limiter = httpmiddleware.NewRedisLimiter(rdb, "pos:ratelimit:")
		lg.Info("Redis enabled", zap.Duration("catalog_cache_ttl", cfg.Catalog.CacheTTL))
	} else {
		mem := httpmiddleware.NewMemoryLimiter()
		go mem.RunSweeper(ctx, cfg.RateLimit.Window)
		limiter = mem
	}

	// Domain services.
	saleSvc, err := sale.NewService(sales, taxRate, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create sale service")
	}
	registers, err := register.NewManager(register.Config{
		TaxRate:       taxRate,
		IdleTimeout:   cfg.Register.IdleTimeout,
		SubmitTimeout: cfg.Sales.SubmitTimeout,
	}, products, saleSvc, m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create register manager")
	}

	h := handler.New(products, suppliers, registers, saleSvc)
	router := h.Router(handler.RouterConfig{
		Auth:   auth.NewAuthenticator(apikeys, []byte(cfg.APIKeyPepper)),
		Health: healthSvc,
		Middlewares: []httpmiddleware.Middleware{
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins: cfg.CORS.Origins,
				MaxAge:  86400,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("pos-api", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(),
		},
		Authenticated: []httpmiddleware.Middleware{
			httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: handler.RateLimitKey,
				Limiter: limiter,
			}),
		},
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Sales.SubmitTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           httpmiddleware.Wrap(router, httpmiddleware.Recovery()),
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return registers.Run(gCtx, cfg.Register.ReapInterval)
	})

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-gCtx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server",
			zap.Duration("timeout", cfg.Graceful.ShutdownTimeout),
			zap.Int("open_registers", registers.Len()),
		)
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}

func newRedis(url string, m *app.Telemetry) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(rdb, redisotel.WithTracerProvider(m.TracerProvider())); err != nil {
		return nil, errors.Wrap(err, "instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(rdb, redisotel.WithMeterProvider(m.MeterProvider())); err != nil {
		return nil, errors.Wrap(err, "instrument redis metrics")
	}
	return rdb, nil
}
