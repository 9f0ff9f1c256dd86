package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aegis-run/governor/internal/auth"
	"github.com/aegis-run/governor/internal/budget"
	"github.com/aegis-run/governor/internal/circuitbreaker"
	"github.com/aegis-run/governor/internal/config"
	"github.com/aegis-run/governor/internal/costtracker"
	"github.com/aegis-run/governor/internal/crossapp"
	"github.com/aegis-run/governor/internal/fallback"
	"github.com/aegis-run/governor/internal/health"
	"github.com/aegis-run/governor/internal/httpapi"
	_ "github.com/aegis-run/governor/internal/metrics" // registers Prometheus collectors on import
	"github.com/aegis-run/governor/internal/pricing"
	"github.com/aegis-run/governor/internal/provideradapter"
	"github.com/aegis-run/governor/internal/ratelimit"
	"github.com/aegis-run/governor/internal/router"
	"github.com/aegis-run/governor/internal/routing"
	"github.com/aegis-run/governor/internal/scheduler"
	"github.com/aegis-run/governor/internal/store"
	"github.com/aegis-run/governor/internal/store/memstore"
	"github.com/aegis-run/governor/internal/store/pgstore"
)

// providers is the fixed vendor set config/routing.yaml's routes reference.
// Adding a new vendor means adding both a routing.yaml entry and a row here.
var providers = []string{"anthropic", "openai", "google"}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	circuitbreaker.StartMetricsCollection()

	dataStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer dataStore.Close()

	users := openUserStore(cfg, logger)

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	plans := auth.NewStaticPlanResolver(auth.DefaultPlans())
	gate := auth.NewGate(auth.GateOptions{
		Verifier: verifier, Users: users, Plans: plans, CacheTTL: cfg.EntitlementTTL, Logger: logger,
	})
	quota := auth.NewMapAIQuotaCounter()
	middleware := auth.NewMiddleware(gate, quota, logger)

	pricingTable, err := pricing.NewTable("")
	if err != nil {
		logger.Fatal("failed to load pricing table", zap.Error(err))
	}
	routingTable, err := routing.NewTable("", "")
	if err != nil {
		logger.Fatal("failed to load routing table", zap.Error(err))
	}
	registry := buildProviderRegistry(logger)

	budgets := budget.NewManager(budget.Options{
		Store:        dataStore,
		TierResolver: auth.TierAdapter{Users: users},
		Logger:       logger,
	})
	costs := costtracker.New(dataStore, dataStore, dataStore, pricingTable, logger)
	routerSvc := router.New(routingTable, registry, budgets, costs, routing.Preference(cfg.GlobalPreference), logger)

	capTable, err := ratelimit.NewCapTable("")
	if err != nil {
		logger.Fatal("failed to load rate limit cap table", zap.Error(err))
	}
	limiter := buildLimiter(cfg, capTable, logger)
	defer limiter.Stop()

	crossAppSigner := crossapp.NewSigner(cfg.CrossAppSecret)

	deps := &httpapi.Dependencies{
		Gate: gate, Middleware: middleware, Users: users, Plans: plans,
		Budgets: budgets, Store: dataStore, Costs: costs, Limiter: limiter,
		Router: routerSvc, CrossApp: crossAppSigner, Logger: logger,
	}
	apiRouter := httpapi.NewRouter(deps)

	apiServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:      apiRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("governance API listening", zap.Int("port", cfg.HTTPPort))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("governance API server failed", zap.Error(err))
		}
	}()

	breakers := make(map[string]*circuitbreaker.CircuitBreaker, len(providers))
	for _, p := range providers {
		breakers[p] = registry.Breaker(p)
	}

	hm := health.NewManager(logger)
	hm.RegisterChecker(health.NewStoreChecker(dataStore))
	hm.RegisterChecker(health.NewProviderBreakerChecker(breakers))
	hm.Start(ctx)

	adminMux := http.NewServeMux()
	health.NewHTTPHandler(hm).RegisterRoutes(adminMux)
	adminMux.Handle("/metrics", promhttp.Handler())
	adminServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.HealthPort),
		Handler:      adminMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("admin HTTP server listening", zap.Int("port", cfg.HealthPort))
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin HTTP server failed", zap.Error(err))
		}
	}()

	sched := scheduler.New(scheduler.Options{Store: dataStore, Budgets: budgets, Costs: costs, Logger: logger})
	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduled jobs", zap.Error(err))
	}
	defer sched.Stop()

	<-ctx.Done()
	logger.Info("shutting down governance service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
	_ = adminServer.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.ServerConfig, logger *zap.Logger) (store.Store, error) {
	if cfg.DatabaseDSN == "" {
		logger.Warn("no database DSN configured; running against an in-memory store")
		return memstore.New(), nil
	}
	return pgstore.Open(ctx, cfg.DatabaseDSN, logger)
}

func openUserStore(cfg config.ServerConfig, logger *zap.Logger) interface {
	auth.UserStore
	Update(ctx context.Context, user auth.User) error
	SetTier(ctx context.Context, uid string, tier auth.Tier, billing auth.BillingStatus) error
	Delete(ctx context.Context, uid string) error
} {
	if cfg.DatabaseDSN == "" {
		return auth.NewMemUserStore()
	}
	db, err := sqlx.Connect("postgres", cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("failed to open user store database", zap.Error(err))
	}
	return auth.NewPostgresUserStore(db)
}

// buildProviderRegistry wires one HTTPAdapter per vendor config/routing.yaml
// names, each reading its base URL and API key from GOVERNOR_<PROVIDER>_*
// env vars. A vendor with no configured base URL still gets registered
// against its documented default endpoint — Invoke simply fails closed
// (and the fallback chain moves on) if no API key is present.
func buildProviderRegistry(logger *zap.Logger) *fallback.MapRegistry {
	reg := fallback.NewMapRegistry()
	defaults := map[string]string{
		"anthropic": "https://api.anthropic.com",
		"openai":    "https://api.openai.com",
		"google":    "https://generativelanguage.googleapis.com",
	}
	for _, p := range providers {
		base := config.EnvOrDefault("GOVERNOR_"+strings.ToUpper(p)+"_BASE_URL", defaults[p])
		apiKey := os.Getenv("GOVERNOR_" + strings.ToUpper(p) + "_API_KEY")
		reg.Register(p, provideradapter.NewHTTPAdapter(p, base, apiKey, logger), logger)
	}
	return reg
}

func buildLimiter(cfg config.ServerConfig, caps *ratelimit.CapTable, logger *zap.Logger) *ratelimit.Limiter {
	if cfg.RedisAddr == "" {
		return ratelimit.NewMapLimiter(caps, logger)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	wrapper := circuitbreaker.NewRedisWrapper(client, logger)
	return ratelimit.NewRedisLimiter(caps, wrapper, logger)
}


