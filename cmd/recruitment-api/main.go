// Точка входа recruitment-api — вакансии, отклики и формы платформы Manpower.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт клиент folders-service, сервисный слой и HTTP handlers,
// запускает фоновые задачи (досоздание папок, topologymetrics),
// HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/api/handlers"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/api/middleware"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/api/openapi"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/config"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/database"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/peerclient"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/repository"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/server"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/service"
)

const serviceName = "recruitment-api"

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.LoadRecruitment()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg.Server.LogLevel, cfg.Server.LogFormat)
	logger.Info("recruitment-api запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Server.Port),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg.DB, database.MigrationsRecruitment, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.DB, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Клиент folders-service (пустой URL — синхронизация папок отключена)
	var tokens peerclient.TokenProvider
	if cfg.SA.Enabled() {
		tokens = peerclient.NewTokenSource(cfg.SA.TokenURL, cfg.SA.ClientID, cfg.SA.ClientSecret, cfg.SA.Scope, cfg.Folders.Timeout, logger).Token
	} else {
		logger.Warn("SA не настроен, вызовы folders-service идут без токена")
	}
	var folders service.FolderSync
	if cfg.Folders.URL != "" {
		folders = peerclient.NewFoldersClient(cfg.Folders.URL, cfg.Folders.Timeout, cfg.Folders.MaxAttempts, tokens, logger)
		logger.Info("Клиент folders-service создан", slog.String("url", cfg.Folders.URL))
	} else {
		logger.Warn("RA_FOLDERS_URL не задан, папки вакансий и откликов не создаются")
	}

	// 6. Repositories
	jobRepo := repository.NewJobRepository(pool)
	appRepo := repository.NewApplicationRepository(pool)
	formRepo := repository.NewFormRepository(pool)

	// 7. Services
	jobCache := service.NewCacheService(cfg.CacheMaxSize, cfg.CacheTTL)
	jobSvc := service.NewJobService(jobRepo, folders, jobCache, logger)
	appSvc := service.NewApplicationService(appRepo, jobRepo, jobSvc, folders, logger)
	formSvc := service.NewFormService(formRepo, logger)

	// 8. Фоновое досоздание недостающих папок
	var reconciler *service.FolderReconciler
	if folders != nil && cfg.ReconcileInterval > 0 {
		reconciler = service.NewFolderReconciler(
			jobRepo, appRepo, appSvc, folders,
			cfg.ReconcileBatchSize, cfg.ReconcileInterval,
			logger,
		)
		reconciler.Start(ctx)
	}

	// 9. topologymetrics — мониторинг зависимостей (PostgreSQL + folders-service)
	dephealthSvc := startDephealth(ctx, cfg, pgDB, logger)

	// 10. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.Auth.JWKSURL,
		cfg.Auth.Issuer,
		cfg.Auth.AdminGroups,
		cfg.Auth.JWKSClientTimeout,
		cfg.Auth.JWKSRefreshInterval,
		cfg.Auth.Leeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.Auth.JWKSURL),
		slog.String("issuer", cfg.Auth.Issuer),
	)

	// 11. Handlers
	healthHandler := handlers.NewHealthHandler(serviceName,
		handlers.NamedCheck{Name: "postgresql", Checker: database.NewReadinessChecker(pool)},
		handlers.NamedCheck{Name: "jwks", Checker: middleware.NewJWKSReadinessChecker(cfg.Auth.JWKSURL, cfg.Auth.JWKSClientTimeout)},
	)
	apiHandler := handlers.NewRecruitmentHandler(jobSvc, appSvc, formSvc, logger)

	middlewares := []func(http.Handler) http.Handler{
		middleware.RequestLogger(logger),
		middleware.MetricsMiddleware(serviceName),
		server.JWTAuthWithExclusions(jwtAuth.Middleware(), "/health/", "/metrics"),
	}
	if cfg.OpenAPIValidation {
		validator, err := middleware.NewRequestValidator(openapi.Recruitment, logger)
		if err != nil {
			logger.Error("Ошибка загрузки OpenAPI-контракта", slog.String("error", err.Error()))
			os.Exit(1)
		}
		middlewares = append(middlewares, validator.Middleware())
	}

	// 12. Создание и запуск HTTP-сервера
	srv := server.New(cfg.Server, logger, []server.Registrar{healthHandler, apiHandler}, middlewares...)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 13. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	if reconciler != nil {
		reconciler.Stop()
	}

	logger.Info("recruitment-api остановлен")
}

// startDephealth запускает topologymetrics. Ошибки не фатальны:
// сервис работает без мониторинга зависимостей.
func startDephealth(ctx context.Context, cfg *config.RecruitmentConfig, pgDB *sql.DB, logger *slog.Logger) *service.DephealthService {
	svc, err := service.NewDephealthService(service.DephealthParams{
		ServiceID: serviceName,
		Group:     cfg.Dephealth.Group,
		DB:        pgDB,
		PgConnURL: cfg.DB.URL(),
		Peers: []service.PeerDependency{
			{Name: "folders-service", URL: cfg.Folders.URL, Critical: false},
		},
		CheckInterval: cfg.Dephealth.CheckInterval,
		IsEntry:       cfg.Dephealth.IsEntry,
	}, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if err := svc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("topologymetrics запущен",
		slog.String("group", cfg.Dephealth.Group),
		slog.String("check_interval", cfg.Dephealth.CheckInterval.String()),
	)
	return svc
}
