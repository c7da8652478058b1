package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"leadsync/internal/alert"
	"leadsync/internal/api"
	"leadsync/internal/audit"
	"leadsync/internal/config"
	"leadsync/internal/database"
	"leadsync/internal/dispatcher"
	"leadsync/internal/domain"
	"leadsync/internal/events"
	"leadsync/internal/export"
	"leadsync/internal/guard"
	"leadsync/internal/logging"
	"leadsync/internal/metrics"
	"leadsync/internal/repository"
	"leadsync/internal/service"
	"leadsync/internal/sheets"
	"leadsync/internal/tenant"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg, &logger)
	defer repository.Close(redisClient)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
	}

	// Guard windows live in redis when it is up, memory when it is not.
	memRepo := repository.NewMemoryGuardRepository()
	var guardRepo domain.GuardRepository = memRepo
	if redisClient != nil {
		guardRepo = repository.NewFailoverGuardRepository(
			repository.NewRedisGuardRepository(redisClient), memRepo, &logger)
	}
	eventGuard := guard.New(guardRepo, cfg.Guard, &logger)
	go eventGuard.StartSweeper(ctx, memRepo)

	resolver := tenant.NewResolver(db, cfg.Tenants.FilePath, cfg.Tenants.RefreshInterval, &logger)
	go resolver.Start(ctx)

	sheetsClient, err := sheets.NewClient(ctx, cfg.Google.CredentialsFile)
	if err != nil {
		logger.Error().Err(err).Msg("init google sheets")
		return err
	}
	leadStore := sheets.NewStore(sheetsClient, logger)

	bus := events.NewEventBus()
	trail := audit.NewTrail(db, logger)
	notifier := alert.NewNotifier(cfg.Alerts, logger)
	exporter := export.NewExporter(cfg.Exports.Path, logger)
	wireEventSubscribers(bus, notifier, logger)

	leadService := service.NewLeadService(resolver, leadStore, trail, bus, logger)
	disp := dispatcher.New(db, leadService, redisClient, cfg, notifier, bus, logger)
	go disp.Start(ctx)

	backup := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
	go backup.Start(ctx)

	httpServer := api.NewHTTPServer(cfg, disp, resolver, leadStore, eventGuard, db, trail, trail, exporter, logger)

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()
	logger.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Int("http_port", cfg.HTTP.Port).
		Msg("leadsync started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("leadsync stopped")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "main").Logger()

	return cfg, logger, closer, nil
}

// wireEventSubscribers attaches the in-process consumers: counters for the
// lead lifecycle and a note on the alert channel for every closed sale.
func wireEventSubscribers(bus *events.EventBus, alerter domain.Alerter, logger zerolog.Logger) {
	count := func(kind string) events.EventHandler {
		return func(*events.Event) error {
			metrics.IncLeadEvent(kind)
			return nil
		}
	}
	bus.Subscribe(events.EventLeadCreated, count("created"))
	bus.Subscribe(events.EventLeadUpdated, count("updated"))
	bus.Subscribe(events.EventJobDeadLettered, count("dead_lettered"))
	bus.Subscribe(events.EventLeadSale, func(e *events.Event) error {
		metrics.IncLeadEvent("sale")
		var p events.LeadEventPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			logger.Warn().Err(err).Msg("decode sale event")
			return err
		}
		alerter.Notify(fmt.Sprintf("Venda registrada: tenant %d, telefone final %s, R$ %.2f",
			p.TenantID, p.PhoneTail, p.SaleAmount))
		return nil
	})
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}
