package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"server/internal/adapter/memrepo"
	"server/internal/adapter/repo"
	"server/internal/cache"
	"server/internal/credit"
	"server/internal/dispatch"
	"server/internal/domain"
	"server/internal/http/handlers"
	httpapi "server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/infra/geoip"
	"server/internal/middleware"
	"server/internal/pending"
	"server/internal/poll"
	"server/internal/provider"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		jobs   domain.JobRepository
		ledger domain.CreditLedger
		usage  domain.UsageRepository
	)
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		runner := infra.NewSQLRunner(pool, logger)
		jobs = repo.NewJobRepository(runner)
		ledger = repo.NewCreditLedger(runner)
		usage = repo.NewUsageRepository(runner)
	} else {
		// Credits are seeded generously so every tool is usable out of
		// the box without a database.
		logger.Warn().Msg("DATABASE_URL not set, using in-memory store")
		memLedger := memrepo.NewLedger(map[string]int{"dev-user": 1000})
		jobs = memrepo.NewJobStore()
		ledger = memLedger
		usage = memrepo.NewUsageLog()
	}

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, status cache disabled")
	}
	if rdb != nil {
		defer rdb.Close()
	}
	statusCache := cache.NewStatusCache(rdb, cfg.StatusCacheTTL, logger)

	var prov provider.Client
	if cfg.ProviderAPIKey != "" {
		prov, err = provider.NewHTTPClient(provider.Options{
			APIKey:  cfg.ProviderAPIKey,
			BaseURL: cfg.ProviderBaseURL,
			Logger:  &logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("provider client init failed")
		}
	} else {
		logger.Warn().Msg("PROVIDER_API_KEY not set, using synthetic provider")
		prov = provider.NewSynthetic(10 * time.Second)
	}

	var countryLookup middleware.CountryLookup
	geo, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip database unavailable")
	}
	if geo != nil {
		defer geo.Close()
		countryLookup = geo.Lookup
	}

	gate := credit.NewGate(ledger, logger)
	pollers := poll.NewManager(jobs, prov, gate, poll.Config{
		RefundOnFailure: cfg.RefundOnFailure,
		RefundOnTimeout: cfg.RefundOnTimeout,
	}, logger)
	dispatcher := dispatch.New(jobs, gate, prov, pollers, logger)
	resolver := pending.NewResolver(jobs, pollers, logger)

	app := &handlers.App{
		Dispatcher: dispatcher,
		Resolver:   resolver,
		Pollers:    pollers,
		Jobs:       jobs,
		Ledger:     ledger,
		Usage:      usage,
		Cache:      statusCache,
		Logger:     logger,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		RateLimitPerMin: cfg.RateLimitPerMin,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		CountryLookup:   countryLookup,
		Logger:          logger,
	})
	server := infra.NewHTTPServer(cfg, router)

	logger.Info().Msgf("API listening on :%s", cfg.Port)
	if err := server.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("http server failed")
	}
	pollers.Close()
	logger.Info().Msg("server stopped")
}
