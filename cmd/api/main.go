package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/wager-arbiter/internal/api/http"
	"github.com/spec-kit/wager-arbiter/internal/api/http/handlers"
	"github.com/spec-kit/wager-arbiter/internal/auth"
	"github.com/spec-kit/wager-arbiter/internal/config"
	"github.com/spec-kit/wager-arbiter/internal/events"
	"github.com/spec-kit/wager-arbiter/internal/observability"
	"github.com/spec-kit/wager-arbiter/internal/persistence"
	"github.com/spec-kit/wager-arbiter/internal/platform/chat"
	"github.com/spec-kit/wager-arbiter/internal/repository"
	"github.com/spec-kit/wager-arbiter/internal/scheduler"
	"github.com/spec-kit/wager-arbiter/internal/service"
)

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

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)
	profileRepo := repository.NewProfileRepository(pool)
	tierRepo := repository.NewTierRepository(pool)
	categoryRepo := repository.NewCategoryRepository(pool)
	staffRepo := repository.NewStaffRepository(pool)

	metrics := observability.NewMetrics()
	chatClient := chat.NewClient(cfg.Chat, logger)
	dispatcher := events.NewInMemoryDispatcher()
	clock := scheduler.NewClock()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authService := service.NewAuthService(staffRepo, tokens, cfg.Auth.BcryptCost, logger)
	authMiddleware := auth.NewAuthMiddleware(tokens, staffRepo)

	allocator := service.NewAllocationService(categoryRepo, chatClient, cfg.Chat.GuildChannelCeiling, logger)
	gate := service.NewGateService(chatClient, cfg.Chat.StaffRoleIDs, logger)
	rank := service.NewRankService(profileRepo, tierRepo, chatClient, redis.Client, logger)

	var lifecycle *service.LifecycleService
	deleter := scheduler.NewDeferredDeleter(clock, cfg.Lifecycle.DeletionGrace, func(ticketID string) {
		lifecycle.DeleteTicketChannel(ticketID)
	})
	lifecycle = service.NewLifecycleService(service.LifecycleDependencies{
		TicketRepo:  ticketRepo,
		HistoryRepo: historyRepo,
		Allocator:   allocator,
		Gate:        gate,
		Rank:        rank,
		Chat:        chatClient,
		Dispatcher:  dispatcher,
		Deleter:     deleter,
		Metrics:     metrics,
		Logger:      logger,
		Windows:     cfg.Lifecycle,
	})
	service.NewNotificationService(chatClient, dispatcher, logger)

	sweeper := scheduler.NewEscalationScheduler(
		ticketRepo, lifecycle, allocator,
		chatClient, redis.Client, clock,
		logger, metrics,
		cfg.Lifecycle, cfg.Scheduler,
	)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Staff:          handlers.NewStaffHandler(authService),
		Tickets:        handlers.NewTicketsHandler(lifecycle),
		Interactions:   handlers.NewInteractionsHandler(lifecycle, authService, cfg.Chat.StaffRoleIDs),
		Ranks:          handlers.NewRankHandler(rank, tierRepo),
		Categories:     handlers.NewCategoriesHandler(categoryRepo, allocator),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	logger.Info("listening", zap.String("addr", cfg.App.Addr()))

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
