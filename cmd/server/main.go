// Package main provides the vibecheck API server entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	gormlogger "gorm.io/gorm/logger"

	"github.com/didifkup/vibecheck/internal/analyze"
	"github.com/didifkup/vibecheck/internal/auth"
	"github.com/didifkup/vibecheck/internal/billing"
	"github.com/didifkup/vibecheck/internal/config"
	"github.com/didifkup/vibecheck/internal/httpapi"
	"github.com/didifkup/vibecheck/internal/llm"
	"github.com/didifkup/vibecheck/internal/persist"
	"github.com/didifkup/vibecheck/internal/quota"
	"github.com/didifkup/vibecheck/internal/ratelimit"
	"github.com/didifkup/vibecheck/internal/store"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *debug {
		cfg.Debug = true
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	db, err := store.NewStore(store.Config{
		DSN:      cfg.DatabaseURL,
		MaxConns: cfg.MaxConns,
		LogLevel: gormlogger.Silent,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer db.Close()

	usageStore := store.NewUsageStore(db)
	cooldownStore := store.NewCooldownStore(db)
	scenarioStore := store.NewScenarioStore(db)
	streakStore := store.NewStreakStore(db)
	profileStore := store.NewProfileStore(db)

	modelClient := llm.NewClient(llm.Config{
		BaseURL: cfg.ModelBaseURL,
		APIKey:  cfg.ModelAPIKey,
		Model:   cfg.Model,
		Timeout: cfg.ModelTimeout,
	})

	var limiter ratelimit.Limiter
	if cfg.RateLimit > 0 {
		if cfg.RedisURL != "" {
			limiter = ratelimit.NewRedisLimiter(cfg.RedisURL, cfg.RateLimit, cfg.RateWindow)
			log.Info().Msg("using redis rate limiter")
		} else {
			limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit, cfg.RateWindow)
		}
	}

	sink := persist.NewSink(scenarioStore, streakStore)

	svc := httpapi.NewService(httpapi.Deps{
		Config:    cfg,
		Verifier:  auth.NewVerifier(cfg.AuthBaseURL, cfg.AuthServiceKey),
		Pipeline:  analyze.NewPipeline(modelClient),
		Tracker:   quota.NewTracker(usageStore, cooldownStore, cfg.FreeDailyLimit, cfg.CooldownWindow()),
		Sink:      sink,
		Profiles:  profileStore,
		Usage:     usageStore,
		Scenarios: scenarioStore,
		Billing:   billing.NewProcessor(profileStore, cfg.BillingWebhookSecret),
		Limiter:   limiter,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Str("version", Version).Msg("vibecheck API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	// Let queued best-effort writes drain before the store closes.
	sink.Wait()
}
