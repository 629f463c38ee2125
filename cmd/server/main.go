package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"zapisnik/internal/api"
	"zapisnik/internal/booking"
	"zapisnik/internal/cache"
	"zapisnik/internal/config"
	"zapisnik/internal/database"
	"zapisnik/internal/events"
	"zapisnik/internal/metrics"
	"zapisnik/internal/notify"
	"zapisnik/internal/sheets"
	"zapisnik/internal/slots"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	// .env is optional; config values may reference its variables.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("ZAPISNIK_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil && cfg.Logging.Level != "" {
		zerolog.SetGlobalLevel(level)
	}

	dbLogger := logger.With().Str("component", "database").Logger()
	db, err := database.NewDB(cfg.Database.Path, &dbLogger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	var availCache *cache.AvailabilityCache
	if cfg.Redis.Enabled && cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cacheLogger := logger.With().Str("component", "cache").Logger()
		availCache = cache.New(rdb, cfg.CacheTTL(), &cacheLogger)
		logger.Info().Str("addr", cfg.Redis.Address).Msg("availability cache enabled")
	}

	bus := events.NewEventBus()

	if cfg.Telegram.Enabled && cfg.Telegram.BotToken != "" {
		chats := append([]int64{cfg.Telegram.AdminChatID}, cfg.Telegram.ExtraChats...)
		notifyLogger := logger.With().Str("component", "notify").Logger()
		notifier, err := notify.New(cfg.Telegram.BotToken, cfg.Telegram.Debug, chats, &notifyLogger)
		if err != nil {
			logger.Error().Err(err).Msg("telegram notifier unavailable")
		} else {
			notifier.Attach(bus)
		}
	}

	if cfg.Sheets.Enabled && cfg.Sheets.CredentialsFile != "" {
		sheetsLogger := logger.With().Str("component", "sheets").Logger()
		sheetsSvc, err := sheets.New(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID,
			cfg.Sheets.SheetName, &sheetsLogger)
		if err != nil {
			logger.Error().Err(err).Msg("sheets sync unavailable")
		} else {
			sheetsSvc.Attach(bus)
		}
	}

	bookingLogger := logger.With().Str("component", "booking").Logger()
	bookingSvc := booking.NewService(db, bus, &bookingLogger)

	slotLogger := logger.With().Str("component", "slots").Logger()
	slotSvc := slots.NewService(db, bus, &slotLogger)

	ratePer, rateBurst := cfg.RateLimit()
	httpServer := api.NewHTTPServer(bookingSvc, slotSvc, db, availCache, api.Options{
		Port:          cfg.Server.Port,
		MaxRangeDays:  cfg.Server.MaxQueryRangeDays,
		RatePerSecond: ratePer,
		RateBurst:     rateBurst,
		ReadTimeout:   cfg.ReadTimeout(),
		WriteTimeout:  cfg.WriteTimeout(),
	}, logger.With().Str("component", "api").Logger())

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("http shutdown error")
		}
	}()

	logger.Info().Msg("calendar service started")
	if err := httpServer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("http server error")
	}
	logger.Info().Msg("calendar service stopped")
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
