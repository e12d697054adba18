package peerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
)

// CallbackUserAgent — User-Agent запросов с результатами обработки.
const CallbackUserAgent = "DocumentProcessingMicroservice/1.0"

// CallbackClient отправляет результат обработки документа на url_response.
// URL приходит из запроса платформы, поэтому повторов нет: ошибка
// логируется вызывающим кодом.
type CallbackClient struct {
	httpClient *http.Client
	defaultURL string
	tokens     TokenProvider
	logger     *slog.Logger
}

// NewCallbackClient создаёт callback-клиент. defaultURL используется,
// если в результате не указан url_response.
func NewCallbackClient(defaultURL string, timeout time.Duration, tokens TokenProvider, logger *slog.Logger) *CallbackClient {
	return &CallbackClient{
		httpClient: &http.Client{Timeout: timeout},
		defaultURL: defaultURL,
		tokens:     tokens,
		logger:     logger.With(slog.String("component", "callback_client")),
	}
}

// Send отправляет результат. Возвращает false без ошибки, если URL не задан.
func (c *CallbackClient) Send(ctx context.Context, result *model.ProcessedResult) (bool, error) {
	target := c.defaultURL
	if result.URLResponse != nil && *result.URLResponse != "" {
		target = *result.URLResponse
	}
	if target == "" {
		return false, nil
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("кодирование результата: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("создание callback-запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", CallbackUserAgent)
	if c.tokens != nil {
		token, err := c.tokens(ctx)
		if err != nil {
			return false, fmt.Errorf("получение токена для callback: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из запроса платформы
	if err != nil {
		peerRequestsTotal.WithLabelValues("callback", "network_error").Inc()
		return false, fmt.Errorf("callback %s: %w", target, err)
	}
	defer resp.Body.Close()
	peerRequestsTotal.WithLabelValues("callback", strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, &StatusError{Peer: "callback", StatusCode: resp.StatusCode, Body: string(body)}
	}

	c.logger.Info("Результат отправлен в callback",
		slog.String("document_id", result.DocumentID),
		slog.String("url", target),
		slog.Int("status", resp.StatusCode),
	)
	return true, nil
}
