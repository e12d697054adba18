// Точка входа docproc-service — приём документов на обработку, результаты
// и WebSocket-уведомления. Задачи публикуются в SQS; обрабатывает их
// docproc-worker (Lambda) или in-process поллер (DP_SQS_POLLER_ENABLED=true).
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/api/handlers"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/api/middleware"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/api/openapi"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/awsclient"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/config"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/docproc"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/notify"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/peerclient"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/queue"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/resultstore"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/server"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/service"
)

const serviceName = "docproc-service"

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.LoadDocproc()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg.Server.LogLevel, cfg.Server.LogFormat)
	logger.Info("docproc-service запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Server.Port),
		slog.Bool("poller", cfg.PollerEnabled),
	)

	// 3. AWS: DynamoDB (результаты) и SQS (очередь задач)
	ctx := context.Background()
	awsCfg, err := awsclient.LoadConfig(ctx, cfg.Pipeline.AWS)
	if err != nil {
		logger.Error("Ошибка загрузки конфигурации AWS", slog.String("error", err.Error()))
		os.Exit(1)
	}
	results := resultstore.New(
		awsclient.NewDynamoDB(awsCfg, cfg.Pipeline.AWS.Endpoint),
		cfg.Pipeline.ResultsTable, cfg.Pipeline.OwnerIndex,
		logger,
	)
	sqsClient := awsclient.NewSQS(awsCfg, cfg.Pipeline.AWS.Endpoint)
	publisher := queue.NewPublisher(sqsClient, cfg.Pipeline.QueueURL, logger)
	logger.Info("AWS клиенты созданы",
		slog.String("table", cfg.Pipeline.ResultsTable),
		slog.String("queue_url", cfg.Pipeline.QueueURL),
	)

	// 4. WebSocket hub и сервис приёма документов
	hub := notify.NewHub(cfg.WSPingInterval, logger)
	processingSvc := service.NewProcessingService(results, publisher, hub, cfg.MaxDocumentsPerRequest, logger)

	// 5. In-process поллер SQS (альтернатива Lambda)
	var poller *queue.Poller
	if cfg.PollerEnabled {
		var tokens peerclient.TokenProvider
		if cfg.Pipeline.SA.Enabled() {
			tokens = peerclient.NewTokenSource(
				cfg.Pipeline.SA.TokenURL, cfg.Pipeline.SA.ClientID, cfg.Pipeline.SA.ClientSecret, cfg.Pipeline.SA.Scope,
				cfg.Pipeline.CallbackTimeout, logger,
			).Token
		}
		pipeline, err := docproc.NewFromConfig(&cfg.Pipeline, results, hub, tokens, logger)
		if err != nil {
			logger.Error("Ошибка создания конвейера обработки", slog.String("error", err.Error()))
			os.Exit(1)
		}
		poller = queue.NewPoller(sqsClient, cfg.Pipeline.QueueURL, cfg.PollerWaitTime, cfg.PollerConcurrency, pipeline.HandleMessage, logger)
		poller.Start(ctx)
	}

	// 6. JWT middleware
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

	// 7. Handlers
	healthHandler := handlers.NewHealthHandler(serviceName,
		handlers.NamedCheck{Name: "dynamodb", Checker: results},
		handlers.NamedCheck{Name: "jwks", Checker: middleware.NewJWKSReadinessChecker(cfg.Auth.JWKSURL, cfg.Auth.JWKSClientTimeout)},
	)
	apiHandler := handlers.NewDocprocHandler(processingSvc, hub, logger)

	middlewares := []func(http.Handler) http.Handler{
		middleware.RequestLogger(logger),
		middleware.MetricsMiddleware(serviceName),
		server.JWTAuthWithExclusions(jwtAuth.Middleware(), "/health/", "/metrics"),
	}
	if cfg.OpenAPIValidation {
		validator, err := middleware.NewRequestValidator(openapi.Docproc, logger)
		if err != nil {
			logger.Error("Ошибка загрузки OpenAPI-контракта", slog.String("error", err.Error()))
			os.Exit(1)
		}
		middlewares = append(middlewares, validator.Middleware())
	}

	// 8. Создание и запуск HTTP-сервера
	srv := server.New(cfg.Server, logger, []server.Registrar{healthHandler, apiHandler}, middlewares...)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 9. Graceful shutdown: поллер, затем WebSocket-соединения
	if poller != nil {
		poller.Stop()
	}
	hub.Close()

	logger.Info("docproc-service остановлен")
}
