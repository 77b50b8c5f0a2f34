package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/netcafe-service/internal/api/http"
	"github.com/spec-kit/netcafe-service/internal/api/http/handlers"
	"github.com/spec-kit/netcafe-service/internal/api/ws"
	"github.com/spec-kit/netcafe-service/internal/auth"
	"github.com/spec-kit/netcafe-service/internal/config"
	"github.com/spec-kit/netcafe-service/internal/events"
	"github.com/spec-kit/netcafe-service/internal/observability"
	"github.com/spec-kit/netcafe-service/internal/persistence"
	"github.com/spec-kit/netcafe-service/internal/ratelimit"
	"github.com/spec-kit/netcafe-service/internal/realtime"
	"github.com/spec-kit/netcafe-service/internal/repository"
	"github.com/spec-kit/netcafe-service/internal/service"
	"github.com/spec-kit/netcafe-service/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	kafka, err := persistence.NewKafka(cfg.Kafka, logger)
	if err != nil {
		logger.Fatal("failed to connect kafka", zap.Error(err))
	}
	defer kafka.Close()

	pool := pg.PoolHandle()
	accountRepo := repository.NewAccountRepository(pool)
	topUpRepo := repository.NewTopUpRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	registry := realtime.NewRegistry(metrics)
	accountLocks := service.NewKeyedMutex[int64]()

	meter := service.NewMeteringService(service.MeteringDependencies{
		AccountRepo:  accountRepo,
		Locks:        accountLocks,
		PricePerHour: cfg.Billing.PricePerHour,
	})
	supervisor := service.NewTickerSupervisor(service.TickerDependencies{
		Meter:       meter,
		AccountRepo: accountRepo,
		Presence:    registry,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Interval:    cfg.Billing.TickInterval(),
	})
	chatService := service.NewChatService(service.ChatDependencies{
		AccountRepo:   accountRepo,
		MessageRepo:   messageRepo,
		Presence:      registry,
		Limiter:       ratelimit.NewRedisLimiter(redis.Client, cfg.Chat.RateLimit, cfg.Chat.RateWindow(), logger),
		Dispatcher:    dispatcher,
		Logger:        logger,
		DedupWindow:   cfg.Chat.DedupWindow(),
		PreviewLength: cfg.Chat.PreviewLength,
		HistoryLimit:  cfg.Chat.HistoryLimit,
	})
	topUpService := service.NewTopUpService(service.TopUpDependencies{
		AccountRepo: accountRepo,
		TopUpRepo:   topUpRepo,
		Chat:        chatService,
		Meter:       meter,
		Locks:       accountLocks,
		Presence:    registry,
		Dispatcher:  dispatcher,
		Logger:      logger,
		MinAmount:   cfg.TopUp.MinAmount,
	})
	sessionService := service.NewSessionService(service.SessionDependencies{
		AccountRepo: accountRepo,
		Registry:    registry,
		Meter:       meter,
		Supervisor:  supervisor,
		Chat:        chatService,
		TopUps:      topUpService,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	accountService := service.NewAccountService(service.AccountDependencies{
		AccountRepo: accountRepo,
		Meter:       meter,
		Connections: registry,
		Logger:      logger,
		BcryptCost:  cfg.Auth.BcryptCost,
	})
	authService := service.NewAuthService(*cfg, service.AuthDependencies{AccountRepo: accountRepo})
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), accountRepo)

	if _, err := accountService.EnsureStaff(ctx, cfg.Auth.BootstrapStaffUser, cfg.Auth.BootstrapStaffPass); err != nil {
		logger.Fatal("failed to bootstrap staff account", zap.Error(err))
	}

	auditCtx, stopAudit := context.WithCancel(context.Background())
	auditDone := worker.StartAuditWorker(auditCtx, service.NewAuditService(dispatcher, kafka, logger, cfg.Kafka))

	sweeper := worker.NewPresenceSweeper(sessionService, cfg.Presence.SweepSchedule, logger)
	if err := sweeper.Start(ctx); err != nil {
		logger.Fatal("failed to start presence sweeper", zap.Error(err))
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(handlers.HealthDependencies{
			ServiceName: cfg.App.Name,
			Version:     cfg.App.Version,
			Postgres:    pg,
			Redis:       redis,
			Metrics:     metrics,
			Supervisor:  supervisor,
			Registry:    registry,
		}),
		Auth:           handlers.NewAuthHandler(authService, accountService, sessionService),
		Accounts:       handlers.NewAccountsHandler(accountService, topUpService, meter),
		TopUps:         handlers.NewTopUpsHandler(topUpService),
		Messages:       handlers.NewMessagesHandler(chatService),
		Realtime:       ws.NewHandler(sessionService, logger, cfg.Presence.SendQueueSize),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer closeCancel()
	logger.Info("closing live sessions", zap.Int("accounts", sessionService.CloseAll(closeCtx)))

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	sweeper.Stop()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := supervisor.Shutdown(stopCtx); err != nil {
		logger.Warn("ticker shutdown", zap.Error(err))
	}

	stopAudit()
	auditDone.Wait()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
