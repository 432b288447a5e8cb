package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ecowatch/ecowatch-service/internal/cache"
	"github.com/ecowatch/ecowatch-service/internal/circuitbreaker"
	"github.com/ecowatch/ecowatch-service/internal/config"
	"github.com/ecowatch/ecowatch-service/internal/fetch"
	httphandler "github.com/ecowatch/ecowatch-service/internal/http"
	"github.com/ecowatch/ecowatch-service/internal/observability"
	"github.com/ecowatch/ecowatch-service/internal/scrape"
	"github.com/ecowatch/ecowatch-service/internal/service"
	"github.com/ecowatch/ecowatch-service/internal/species"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	var store cache.Store
	var memcacheCloser *cache.MemcachedStore
	var sweeper *gocron.Scheduler
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		store = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		mem := cache.NewInMemoryStore()
		store = mem
		observability.RegisterCacheSizeGauge(mem.Len)

		// Expired entries are otherwise only removed on access; sweep
		// periodically so the map does not grow with one-off URLs.
		sweeper = gocron.NewScheduler(time.UTC)
		if _, err := sweeper.Every(cfg.CacheSweepInterval).Do(func() {
			if removed := mem.Sweep(); removed > 0 {
				logger.Debug("cache sweep", zap.Int("removed", removed))
			}
		}); err != nil {
			logger.Fatal("cache sweep schedule", zap.Error(err))
		}
		sweeper.StartAsync()
		logger.Info("cache backend: in_memory", zap.Duration("sweep_interval", cfg.CacheSweepInterval))
	}

	fetcher := fetch.NewClient(store, cfg.UpstreamTimeout, cfg.RetryAttempts, cfg.RetryBaseDelay, cfg.RetryMaxDelay)
	if cfg.BreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.BreakerFailureThreshold,
			SuccessThreshold: cfg.BreakerSuccessThreshold,
			Timeout:          cfg.BreakerTimeout,
			Provider:         "upstream",
			OnStateChange: func(from, to circuitbreaker.State) {
				logger.Warn("circuit breaker transition",
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		fetcher.SetCircuitBreaker(cb)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.BreakerFailureThreshold),
			zap.Duration("timeout", cfg.BreakerTimeout))
	}

	envService := service.NewEnvService(fetcher, service.Config{
		AQICNBaseURL:  cfg.AQICNBaseURL,
		AQICNKey:      cfg.AQICNKey,
		EBirdBaseURL:  cfg.EBirdBaseURL,
		EBirdKey:      cfg.EBirdKey,
		OpenAQBaseURL: cfg.OpenAQBaseURL,
		OpenAQKey:     cfg.OpenAQKey,
		AQITTL:        cfg.AQITTL,
		BirdTTL:       cfg.BirdTTL,
		HotspotTTL:    cfg.HotspotTTL,
		PollutionTTL:  cfg.PollutionTTL,
	})

	newsScraper := scrape.NewNewsScraper(cfg.NewsURL, cfg.UpstreamTimeout, logger)
	deforestationScraper := scrape.NewDeforestationScraper(
		cfg.DeforestationURL, cfg.ForestStatsURL,
		cfg.UpstreamTimeout, cfg.DeforestationTTL, logger)

	var speciesStore httphandler.SpeciesStore
	if st, err := species.Load(cfg.SpeciesCSVPath); err != nil {
		// Species endpoints return 503; the aggregator itself still works.
		logger.Warn("species dataset unavailable", zap.String("path", cfg.SpeciesCSVPath), zap.Error(err))
	} else {
		speciesStore = st
		logger.Info("species dataset loaded", zap.Int("species", st.Count()))
	}

	var cachePing func() error
	if memcacheCloser != nil {
		cachePing = memcacheCloser.Ping
	}
	handler := httphandler.NewHandler(envService, newsScraper, deforestationScraper, speciesStore, logger, cachePing)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix("/api").Subrouter()
	api.Use(httphandler.RateLimitMiddleware(limiter))
	api.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	api.HandleFunc("/aqi", handler.GetAirQuality).Methods("GET")
	api.HandleFunc("/birds", handler.GetBirds).Methods("GET")
	api.HandleFunc("/birds/hotspots", handler.GetBirdHotspots).Methods("GET")
	api.HandleFunc("/birds/all", handler.GetAllBirds).Methods("GET")
	api.HandleFunc("/birds/search", handler.SearchBirds).Methods("GET")
	api.HandleFunc("/birds/family/{family}", handler.GetFamilyBirds).Methods("GET")
	api.HandleFunc("/bird/{common_name}", handler.GetBird).Methods("GET")
	api.HandleFunc("/pollution", handler.GetPollution).Methods("GET")
	api.HandleFunc("/calculate-impact", handler.CalculateImpact).Methods("POST")
	api.HandleFunc("/news", handler.GetNews).Methods("GET")
	api.HandleFunc("/deforestation", handler.GetDeforestation).Methods("GET")
	api.HandleFunc("/deforestation/stats", handler.GetDeforestationStats).Methods("GET")

	root := gorillahandlers.RecoveryHandler(gorillahandlers.RecoveryLogger(&recoveryLogger{logger}))(
		gorillahandlers.CORS(
			gorillahandlers.AllowedOrigins(cfg.AllowedOrigins),
			gorillahandlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
			gorillahandlers.AllowedHeaders([]string{"Content-Type", "X-Correlation-ID"}),
		)(router))

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      root,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	if sweeper != nil {
		sweeper.Stop()
	}
	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// recoveryLogger adapts zap to the gorilla recovery handler's Println-style interface.
type recoveryLogger struct {
	logger *zap.Logger
}

func (l *recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("panic recovered", zap.Any("details", v))
}
