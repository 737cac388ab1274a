package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"storefront/internal/auth"
	"storefront/internal/cache"
	"storefront/internal/config"
	httpapi "storefront/internal/http"
	"storefront/internal/payment"
	"storefront/internal/ratelimit"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/sweeper"

	_ "storefront/docs"
)

const shutdownTimeout = 15 * time.Second

// @title Storefront API
// @version 1.0.0
// @description Catalog, checkout and payment confirmation for the storefront.
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	setupLogger(cfg)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	stores, err := repository.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		slog.Error("storage unavailable", "err", err)
		os.Exit(1)
	}

	opts := httpapi.Options{
		Production:  cfg.IsProduction(),
		FrontendURL: cfg.FrontendURL,
	}
	if stores.Ping != nil {
		opts.DB = httpapi.PingFunc(stores.Ping)
	}

	var products repository.ProductRepository = stores.Products
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		c := cache.New(rdb, "storefront:", cfg.CacheTTL)
		if err := c.Ping(ctx); err != nil {
			// the cache and limiter fail open, so a missing Redis is not fatal
			slog.Warn("redis ping failed", "addr", cfg.RedisAddr, "err", err)
		}
		products = cache.NewCachedProducts(products, c)
		opts.Cache = c
		if cfg.IsProduction() {
			opts.Limiter = ratelimit.NewLimiter(rdb, "storefront:ratelimit:")
			opts.RateLimitMax = cfg.RateLimitMax
			opts.RateLimitWindow = cfg.RateLimitWindow
		}
	}

	var gateway payment.Gateway
	if cfg.StripeSecretKey != "" {
		gateway = payment.NewStripe(cfg.StripeSecretKey)
	} else {
		slog.Warn("STRIPE_SECRET_KEY not set, payments are captured locally")
		gateway = payment.NewLocal(true)
	}

	productsSvc := service.NewProductService(products)
	ordersSvc, err := service.NewOrderService(products, stores.Orders, gateway, cfg.Currency)
	if err != nil {
		slog.Error("order service", "err", err)
		os.Exit(1)
	}
	authSvc := service.NewAuthService(stores.Users, auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL), auth.NewPasswordHasher())

	sweep := sweeper.New(ordersSvc, cfg.PendingOrderTTL, cfg.SweepInterval)
	sweep.Start()

	srv := httpapi.NewServer(productsSvc, ordersSvc, authSvc, opts)
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr, "env", cfg.Env, "frontend", cfg.FrontendURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			// one operation so storage closes only after in-flight requests finish
			"storefront": func(ctx context.Context) error {
				slog.Info("graceful shutdown initiated")
				errs := []error{httpServer.Shutdown(ctx), sweep.Stop(ctx)}
				if rdb != nil {
					errs = append(errs, rdb.Close())
				}
				errs = append(errs, stores.Close(ctx))
				return errors.Join(errs...)
			},
		},
	)
	exitCode := <-wait
	slog.Info("storefront exited", "code", exitCode)
	os.Exit(exitCode)
}

func setupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.IsProduction() {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}
