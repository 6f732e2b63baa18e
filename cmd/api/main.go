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

	httptransport "github.com/devdesk/ticket-lifecycle/internal/api/http"
	"github.com/devdesk/ticket-lifecycle/internal/api/http/handlers"
	"github.com/devdesk/ticket-lifecycle/internal/auth"
	"github.com/devdesk/ticket-lifecycle/internal/cache"
	"github.com/devdesk/ticket-lifecycle/internal/config"
	"github.com/devdesk/ticket-lifecycle/internal/events"
	"github.com/devdesk/ticket-lifecycle/internal/identity"
	"github.com/devdesk/ticket-lifecycle/internal/observability"
	"github.com/devdesk/ticket-lifecycle/internal/persistence"
	"github.com/devdesk/ticket-lifecycle/internal/policy"
	"github.com/devdesk/ticket-lifecycle/internal/repository"
	"github.com/devdesk/ticket-lifecycle/internal/service"
	"github.com/devdesk/ticket-lifecycle/internal/worker"
	"github.com/devdesk/ticket-lifecycle/internal/workflow"
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

	metrics := observability.NewMetrics()

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

	redisConn := persistence.NewRedis(cfg.Redis, logger)
	defer redisConn.Close()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	historyRepo := repository.NewStatusHistoryRepository(pool)
	commentRepo := repository.NewCommentRepository(pool)

	resolver := identity.NewResolver(userRepo)
	ticketCache := cache.NewTicketCache(redisConn.ClientHandle(), cfg.Cache.TicketTTL(), logger)
	pol := policy.New(policy.Config{
		ApproverUsernames: cfg.Policy.ApproverUsernames,
		CreatorUsernames:  cfg.Policy.CreatorUsernames,
	})
	dispatcher := events.NewInMemoryDispatcher(logger)

	engine := workflow.NewEngine(workflow.EngineDependencies{
		Tickets:    ticketRepo,
		Policy:     pol,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authService := service.NewAuthService(userRepo, tokens, logger)
	ticketService := service.NewTicketService(service.TicketDependencies{
		Engine:      engine,
		TicketRepo:  ticketRepo,
		HistoryRepo: historyRepo,
		CommentRepo: commentRepo,
		Policy:      pol,
		Cache:       ticketCache,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		TicketRepo: ticketRepo,
		Resolver:   resolver,
		Policy:     pol,
		Cache:      ticketCache,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	integrationService := service.NewIntegrationService(engine, resolver, ticketCache, logger, cfg.Integration)

	bootstrap := service.NewBootstrapService(userRepo, logger, cfg.Bootstrap, cfg.Integration, cfg.Auth)
	if err := bootstrap.EnsureSeedAccounts(ctx); err != nil {
		logger.Fatal("failed to seed accounts", zap.Error(err))
	}

	notifyWorker := worker.NewNotificationWorker(cfg.Notification.WebhookURL, cfg.Notification.QueueSize, cfg.Notification.Workers, logger)
	notifyWorker.Start(ctx)
	notificationService := service.NewNotificationService(dispatcher, notifyWorker, logger, cfg.Notification)
	notificationService.RegisterHandlers()

	authMiddleware := auth.NewAuthMiddleware(tokens, resolver)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redisConn),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Assignments:    handlers.NewAssignmentsHandler(assignmentService),
		Integration:    handlers.NewIntegrationHandler(integrationService),
		AuthMiddleware: authMiddleware,
	})

	metricsServer := observability.StartMetricsServer(cfg.Observability.MetricsAddr, logger)

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	notifyWorker.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
