package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/opsdesk/case-triage/internal/api/http"
	"github.com/opsdesk/case-triage/internal/api/http/handlers"
	"github.com/opsdesk/case-triage/internal/auth"
	"github.com/opsdesk/case-triage/internal/classify"
	"github.com/opsdesk/case-triage/internal/config"
	"github.com/opsdesk/case-triage/internal/events"
	"github.com/opsdesk/case-triage/internal/observability"
	"github.com/opsdesk/case-triage/internal/persistence"
	"github.com/opsdesk/case-triage/internal/repository"
	"github.com/opsdesk/case-triage/internal/service"
	"github.com/opsdesk/case-triage/internal/worker"
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

	var caseRepo repository.CaseRepository
	var messageRepo repository.MessageRepository
	var auditRepo repository.AuditRepository
	if pool := pg.PoolHandle(); pool != nil {
		caseRepo = repository.NewCaseRepository(pool)
		messageRepo = repository.NewMessageRepository(pool)
		auditRepo = repository.NewAuditRepository(pool)
	} else {
		store := repository.NewMemoryStore()
		caseRepo = store.Cases()
		messageRepo = store.Messages()
		auditRepo = store.Audit()
	}

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	escalator := classify.NewEscalator(cfg.Triage.ClusterThreshold, cfg.Triage.ClusterWindow())

	identity := service.NewCachedIdentityResolver(service.StubIdentityResolver{}, redis.Client)

	caseService := service.NewCaseService(service.CaseDependencies{
		CaseRepo:    caseRepo,
		MessageRepo: messageRepo,
		AuditRepo:   auditRepo,
		Dispatcher:  dispatcher,
		Escalator:   escalator,
		Identity:    identity,
		Logger:      logger,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		CaseRepo:   caseRepo,
		Dispatcher: dispatcher,
	})
	exportService := service.NewExportService(auditRepo, cfg.Triage.ExportPageSize)
	notificationService := service.NewNotificationService(dispatcher, nil, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret)
	authMiddleware := auth.NewMiddleware(tokens)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:      handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Cases:       handlers.NewCasesHandler(caseService),
		Assignments: handlers.NewAssignmentHandler(assignmentService),
		Export:      handlers.NewExportHandler(exportService, logger),
		Auth:        authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
