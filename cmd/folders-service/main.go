// Точка входа folders-service — дерево папок и документы платформы Manpower.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL и S3,
// создаёт клиенты recruitment-api и docproc-service, сервисный слой,
// запускает topologymetrics и HTTP-сервер с JWT middleware.
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
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/awsclient"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/blobstore"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/config"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/database"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/peerclient"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/repository"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/server"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/service"
)

const (
	serviceName = "folders-service"
	// callbackPath — маршрут ProcessingCallback, передаётся в docproc как url_response
	callbackPath = "/api/v1/internal/processing-callback"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.LoadFolders()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg.Server.LogLevel, cfg.Server.LogFormat)
	logger.Info("folders-service запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Server.Port),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg.DB, database.MigrationsFolders, logger); err != nil {
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

	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. S3 — хранилище файлов документов
	awsCfg, err := awsclient.LoadConfig(ctx, cfg.AWS)
	if err != nil {
		logger.Error("Ошибка загрузки конфигурации AWS", slog.String("error", err.Error()))
		os.Exit(1)
	}
	blobs := blobstore.New(awsclient.NewS3(awsCfg, cfg.AWS.Endpoint), cfg.S3Bucket, logger)
	logger.Info("S3 клиент создан",
		slog.String("bucket", cfg.S3Bucket),
		slog.String("region", cfg.AWS.Region),
	)

	// 6. Клиенты соседних сервисов (пустой URL — интеграция отключена)
	var tokens peerclient.TokenProvider
	if cfg.SA.Enabled() {
		tokens = peerclient.NewTokenSource(cfg.SA.TokenURL, cfg.SA.ClientID, cfg.SA.ClientSecret, cfg.SA.Scope, cfg.Recruitment.Timeout, logger).Token
	} else {
		logger.Warn("SA не настроен, межсервисные вызовы идут без токена")
	}

	var jobs service.JobSync
	if cfg.Recruitment.URL != "" {
		jobs = peerclient.NewRecruitmentClient(cfg.Recruitment.URL, cfg.Recruitment.Timeout, cfg.Recruitment.MaxAttempts, tokens, logger)
	} else {
		logger.Warn("FS_RECRUITMENT_URL не задан, вакансии не удаляются вместе с папками")
	}

	var docproc service.DocprocSubmitter
	if cfg.Docproc.URL != "" {
		docproc = peerclient.NewDocprocClient(cfg.Docproc.URL, cfg.Docproc.Timeout, cfg.Docproc.MaxAttempts, tokens, logger)
	} else {
		logger.Warn("FS_DOCPROC_URL не задан, документы не отправляются на обработку")
	}

	// 7. Repositories и services
	folderSvc := service.NewFolderService(repository.NewFolderRepository(pool), blobs, jobs, docproc, cfg.TreeMaxDepth, logger)
	docSvc := service.NewDocumentService(
		repository.NewDocumentRepository(pool),
		folderSvc, blobs, docproc,
		service.DocumentServiceConfig{
			MaxFileSize:    cfg.MaxFileSizeBytes(),
			UploadURLTTL:   cfg.UploadURLTTL,
			DownloadURLTTL: cfg.DownloadURLTTL,
			CallbackURL:    cfg.PublicURL + callbackPath,
		},
		logger,
	)

	// 8. topologymetrics
	dephealthSvc := startDephealth(ctx, cfg, pgDB, logger)

	// 9. JWT middleware
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

	// 10. Handlers
	healthHandler := handlers.NewHealthHandler(serviceName,
		handlers.NamedCheck{Name: "postgresql", Checker: database.NewReadinessChecker(pool)},
		handlers.NamedCheck{Name: "jwks", Checker: middleware.NewJWKSReadinessChecker(cfg.Auth.JWKSURL, cfg.Auth.JWKSClientTimeout)},
	)
	apiHandler := handlers.NewFoldersHandler(folderSvc, docSvc, logger)

	middlewares := []func(http.Handler) http.Handler{
		middleware.RequestLogger(logger),
		middleware.MetricsMiddleware(serviceName),
		server.JWTAuthWithExclusions(jwtAuth.Middleware(), "/health/", "/metrics"),
	}
	if cfg.OpenAPIValidation {
		validator, err := middleware.NewRequestValidator(openapi.Folders, logger)
		if err != nil {
			logger.Error("Ошибка загрузки OpenAPI-контракта", slog.String("error", err.Error()))
			os.Exit(1)
		}
		middlewares = append(middlewares, validator.Middleware())
	}

	// 11. Создание и запуск HTTP-сервера
	srv := server.New(cfg.Server, logger, []server.Registrar{healthHandler, apiHandler}, middlewares...)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	logger.Info("folders-service остановлен")
}

func startDephealth(ctx context.Context, cfg *config.FoldersConfig, pgDB *sql.DB, logger *slog.Logger) *service.DephealthService {
	svc, err := service.NewDephealthService(service.DephealthParams{
		ServiceID: serviceName,
		Group:     cfg.Dephealth.Group,
		DB:        pgDB,
		PgConnURL: cfg.DB.URL(),
		Peers: []service.PeerDependency{
			{Name: "recruitment-api", URL: cfg.Recruitment.URL},
			{Name: "docproc-service", URL: cfg.Docproc.URL},
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
	logger.Info("topologymetrics запущен", slog.String("group", cfg.Dephealth.Group))
	return svc
}
