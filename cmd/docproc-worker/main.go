// Точка входа docproc-worker — AWS Lambda, обрабатывающая задачи из SQS.
// Неудачные сообщения возвращаются в batchItemFailures и доставляются
// повторно; уведомления уходят в hub docproc-service через /internal/notify.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/awsclient"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/config"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/docproc"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/peerclient"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/resultstore"
)

// messageHandler обрабатывает тело одного сообщения SQS.
type messageHandler func(ctx context.Context, body string) error

func main() {
	// 1. Загрузка конфигурации
	cfg, srvCfg, err := config.LoadDocprocWorker()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := config.SetupLogger(srvCfg.LogLevel, srvCfg.LogFormat)
	logger.Info("docproc-worker запускается", slog.String("version", config.Version))

	// 2. DynamoDB
	ctx := context.Background()
	awsCfg, err := awsclient.LoadConfig(ctx, cfg.AWS)
	if err != nil {
		logger.Error("Ошибка загрузки конфигурации AWS", slog.String("error", err.Error()))
		os.Exit(1)
	}
	results := resultstore.New(awsclient.NewDynamoDB(awsCfg, cfg.AWS.Endpoint), cfg.ResultsTable, cfg.OwnerIndex, logger)

	// 3. SA и клиент уведомлений
	var tokens peerclient.TokenProvider
	if cfg.SA.Enabled() {
		tokens = peerclient.NewTokenSource(cfg.SA.TokenURL, cfg.SA.ClientID, cfg.SA.ClientSecret, cfg.SA.Scope, cfg.CallbackTimeout, logger).Token
	}
	var notifier docproc.Notifier
	if cfg.NotifyURL != "" {
		notifier = peerclient.NewNotifyClient(cfg.NotifyURL, cfg.CallbackTimeout, tokens, logger)
	} else {
		logger.Warn("DP_NOTIFY_URL не задан, WebSocket-уведомления не отправляются")
	}

	// 4. Конвейер обработки
	pipeline, err := docproc.NewFromConfig(cfg, results, notifier, tokens, logger)
	if err != nil {
		logger.Error("Ошибка создания конвейера обработки", slog.String("error", err.Error()))
		os.Exit(1)
	}

	lambda.Start(newSQSHandler(pipeline.HandleMessage, logger))
}

// newSQSHandler возвращает обработчик пакета SQS. Сообщения обрабатываются
// последовательно; неудачные попадают в BatchItemFailures.
func newSQSHandler(handle messageHandler, logger *slog.Logger) func(context.Context, events.SQSEvent) (events.SQSEventResponse, error) {
	return func(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
		var resp events.SQSEventResponse
		for _, msg := range event.Records {
			if err := handle(ctx, msg.Body); err != nil {
				logger.Error("Ошибка обработки сообщения",
					slog.String("message_id", msg.MessageId),
					slog.String("error", err.Error()),
				)
				resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
					ItemIdentifier: msg.MessageId,
				})
			}
		}
		logger.Info("Пакет SQS обработан",
			slog.Int("records", len(event.Records)),
			slog.Int("failed", len(resp.BatchItemFailures)),
		)
		return resp, nil
	}
}
