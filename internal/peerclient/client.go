// Пакет peerclient — HTTP-клиенты для взаимодействия сервисов платформы
// между собой: recruitment-api → folders-service, folders-service →
// recruitment-api и docproc-service, docproc-worker → callback и hub
// уведомлений. Авторизация — SA-токен (client_credentials).
package peerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ошибки peer-клиентов.
var (
	// ErrNotFound — ресурс не найден на стороне peer (404).
	ErrNotFound = errors.New("ресурс не найден в peer-сервисе")
	// ErrConflict — конфликт на стороне peer (409).
	ErrConflict = errors.New("конфликт в peer-сервисе")
	// ErrUnavailable — peer недоступен (сетевая ошибка или 5xx после повторов).
	ErrUnavailable = errors.New("peer-сервис недоступен")
)

// StatusError — неуспешный HTTP-ответ peer-сервиса.
type StatusError struct {
	Peer       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s вернул статус %d: %s", e.Peer, e.StatusCode, e.Body)
}

// peerRequestsTotal — запросы к peer-сервисам по итоговому статусу.
var peerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mp_peer_requests_total",
	Help: "Total number of requests to peer services",
}, []string{"peer", "status"})

// retryBackoff — экспоненциальная задержка между повторами. Копируется на
// каждый вызов do, счётчик попыток у вызовов свой.
var retryBackoff = backoff.Backoff{
	Min:    200 * time.Millisecond,
	Max:    3 * time.Second,
	Factor: 2,
	Jitter: true,
}

// baseClient — общий HTTP-клиент peer-сервиса с SA-авторизацией и повторами.
type baseClient struct {
	httpClient  *http.Client
	baseURL     string
	peer        string
	tokens      TokenProvider
	maxAttempts int
	logger      *slog.Logger
}

func newBaseClient(peer, baseURL string, timeout time.Duration, maxAttempts int, tokens TokenProvider, logger *slog.Logger) baseClient {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return baseClient{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(baseURL, "/"),
		peer:        peer,
		tokens:      tokens,
		maxAttempts: maxAttempts,
		logger:      logger.With(slog.String("component", peer+"_client")),
	}
}

// do выполняет запрос и декодирует JSON-ответ в out (если out != nil).
// Сетевые ошибки и 5xx повторяются до maxAttempts раз.
func (c *baseClient) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("кодирование запроса к %s: %w", c.peer, err)
		}
	}

	b := retryBackoff
	for attempt := 1; ; attempt++ {
		retry, err := c.attempt(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		if attempt >= c.maxAttempts {
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, c.peer, err)
		}

		delay := b.Duration()
		c.logger.Warn("Повтор запроса к peer-сервису",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// attempt выполняет одну попытку. retry = true для сетевых ошибок и 5xx.
func (c *baseClient) attempt(ctx context.Context, method, path string, payload []byte, out any) (retry bool, err error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return false, fmt.Errorf("создание запроса к %s: %w", c.peer, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if c.tokens != nil {
		token, err := c.tokens(ctx)
		if err != nil {
			peerRequestsTotal.WithLabelValues(c.peer, "token_error").Inc()
			return true, fmt.Errorf("получение токена для %s: %w", c.peer, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		peerRequestsTotal.WithLabelValues(c.peer, "network_error").Inc()
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, fmt.Errorf("запрос %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	peerRequestsTotal.WithLabelValues(c.peer, strconv.Itoa(resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return false, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("декодирование ответа %s: %w", c.peer, err)
		}
		return false, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return false, ErrConflict
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	statusErr := &StatusError{Peer: c.peer, StatusCode: resp.StatusCode, Body: string(raw)}
	return resp.StatusCode >= 500, statusErr
}
