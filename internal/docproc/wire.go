package docproc

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/config"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/peerclient"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/queue"
)

// NewFromConfig собирает конвейер по конфигурации: предварительная
// проверка, Azure OCR, LLM-классификатор, Boostr (если задан ключ) и
// callback-клиент. notifier может быть nil.
func NewFromConfig(cfg *config.PipelineConfig, store ResultStore, notifier Notifier, tokens peerclient.TokenProvider, logger *slog.Logger) (*Pipeline, error) {
	classifier, err := NewLLMClassifier(cfg)
	if err != nil {
		return nil, err
	}

	deps := Deps{
		Validator:  NewPrevalidator(cfg.AllowedExtensions, cfg.MaxFileSizeBytes(), &http.Client{Timeout: cfg.PrevalidateTimeout}),
		OCR:        NewOCRClient(cfg.AzureEndpoint, cfg.AzureKey, cfg.AzureTimeout, cfg.OCRPollInterval, cfg.OCRMaxAttempts),
		Classifier: classifier,
		Store:      store,
		Notifier:   notifier,
		Callback:   peerclient.NewCallbackClient(cfg.ResultsNotificationURL, cfg.CallbackTimeout, tokens, logger),
	}
	if cfg.BoostrAPIKey != "" {
		deps.Identity = NewBoostrClient(cfg.BoostrBaseURL, cfg.BoostrAPIKey, cfg.BoostrTimeout)
	} else {
		logger.Warn("BOOSTR_API_KEY не задан, проверка личности отключена")
	}
	return NewPipeline(deps, logger), nil
}

// HandleMessage разбирает тело сообщения SQS и обрабатывает задачу.
// Подходит как queue.Handler.
func (p *Pipeline) HandleMessage(ctx context.Context, body string) error {
	task, err := queue.DecodeTask(body)
	if err != nil {
		return fmt.Errorf("задача отклонена: %w", err)
	}
	return p.Handle(ctx, task)
}
