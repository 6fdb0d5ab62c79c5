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

	httptransport "github.com/spec-kit/ticket-workflow/internal/api/http"
	"github.com/spec-kit/ticket-workflow/internal/api/http/handlers"
	"github.com/spec-kit/ticket-workflow/internal/auth"
	"github.com/spec-kit/ticket-workflow/internal/automation"
	"github.com/spec-kit/ticket-workflow/internal/classifier"
	"github.com/spec-kit/ticket-workflow/internal/config"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/lifecycle"
	"github.com/spec-kit/ticket-workflow/internal/observability"
	"github.com/spec-kit/ticket-workflow/internal/persistence"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	"github.com/spec-kit/ticket-workflow/internal/repository/memory"
	"github.com/spec-kit/ticket-workflow/internal/seed"
	"github.com/spec-kit/ticket-workflow/internal/service"
	"github.com/spec-kit/ticket-workflow/internal/worker"
)

const (
	metricsNamespace    = "ticket_workflow"
	webhookTimeout      = 5 * time.Second
	notificationQueue   = 256
	shutdownGracePeriod = 10 * time.Second
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

	metrics := observability.NewMetrics(metricsNamespace)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var store repository.Transactor
	if pg.Pool != nil {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		store = repository.NewPostgresStore(pg.Pool)
	} else {
		store = memory.NewStore()
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var predictor classifier.Classifier = classifier.NewClient(classifier.ClientDependencies{
		BaseURL: cfg.Classifier.URL,
		Timeout: cfg.Classifier.Timeout(),
		Logger:  logger,
		Metrics: metrics,
	})
	if redis.Client != nil {
		predictor = classifier.NewCache(predictor, redis.Client, cfg.Classifier.CacheTTL(), logger, metrics)
	}

	router := automation.NewRouter(automation.RouterDependencies{
		Simulator:           automation.NewRandomSimulator(cfg.Automation.SuccessRate, cfg.Automation.Latency(), 0),
		ConfidenceThreshold: cfg.Automation.ConfidenceThreshold,
		ActionTimeout:       cfg.Automation.ActionTimeout(),
		Logger:              logger,
		Metrics:             metrics,
	})
	machine := lifecycle.NewMachine(logger, nil)
	dispatcher := events.NewInMemoryDispatcher(logger)

	notificationWorker := worker.NewNotificationWorker(
		worker.WebhookDeliverer{URL: cfg.Notification.WebhookURL, Timeout: webhookTimeout},
		notificationQueue,
		logger,
	)
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification, notificationWorker)
	worker.StartNotificationWorker(ctx, notificationService, notificationWorker)

	roster, err := seed.LoadRoster(cfg.Seed.RosterFile)
	if err != nil {
		logger.Fatal("failed to load agent roster", zap.Error(err))
	}
	if err := seed.NewSeeder(store, cfg.Auth.BcryptCost, logger).Run(ctx, cfg.Seed, roster); err != nil {
		logger.Fatal("failed to seed accounts", zap.Error(err))
	}

	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		Transactor: store,
		Logger:     logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		Transactor: store,
		Machine:    machine,
		Router:     router,
		Classifier: predictor,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	})
	userService := service.NewUserService(service.UserDependencies{
		Transactor: store,
		Logger:     logger,
	})
	dashboardService := service.NewDashboardService(store, nil)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), authService)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler(logger),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Users:          handlers.NewUsersHandler(authService),
		Admin:          handlers.NewAdminUsersHandler(userService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Dashboard:      handlers.NewDashboardHandler(dashboardService),
		AI:             handlers.NewAIHandler(predictor, dashboardService),
		AuthMiddleware: authMiddleware,
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(shutdownGracePeriod); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	notificationWorker.Stop()
	cancel()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
