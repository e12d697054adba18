package peerclient

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
)

// SubmitResponse — ответ docproc-service на запрос обработки.
type SubmitResponse struct {
	Status      string        `json:"status"`
	Message     string        `json:"message"`
	DocumentIDs []string      `json:"document_ids"`
	Documents   []SubmittedID `json:"documents"`
}

// SubmittedID — соответствие ID документа платформы и ID обработки.
type SubmittedID struct {
	DocumentID         string  `json:"document_id"`
	PlatformDocumentID *string `json:"platform_document_id,omitempty"`
	FileName           string  `json:"file_name"`
}

// DocprocClient — клиент docproc-service.
type DocprocClient struct {
	baseClient
}

// NewDocprocClient создаёт клиент docproc-service.
func NewDocprocClient(baseURL string, timeout time.Duration, maxAttempts int, tokens TokenProvider, logger *slog.Logger) *DocprocClient {
	return &DocprocClient{baseClient: newBaseClient("docproc", baseURL, timeout, maxAttempts, tokens, logger)}
}

// Submit отправляет документы на обработку.
// POST /api/v1/platform/process-documents-platform
func (c *DocprocClient) Submit(ctx context.Context, req model.ProcessRequest) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/platform/process-documents-platform", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteResult удаляет результат обработки. Отсутствие результата — не ошибка.
// DELETE /api/v1/documents/{id}
func (c *DocprocClient) DeleteResult(ctx context.Context, documentID string) error {
	err := c.do(ctx, http.MethodDelete, "/api/v1/documents/"+url.PathEscape(documentID), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// NotifyClient — клиент внутреннего endpoint уведомлений docproc-service.
// Используется Lambda-воркером, у которого нет собственного hub.
type NotifyClient struct {
	baseClient
}

// NewNotifyClient создаёт клиент уведомлений.
func NewNotifyClient(baseURL string, timeout time.Duration, tokens TokenProvider, logger *slog.Logger) *NotifyClient {
	return &NotifyClient{baseClient: newBaseClient("notify", baseURL, timeout, 1, tokens, logger)}
}

// NotifyRequest — тело POST /internal/notify.
type NotifyRequest struct {
	UserID string               `json:"userId"`
	Update model.DocumentUpdate `json:"update"`
}

// Notify доставляет уведомление пользователю через hub docproc-service.
// POST /internal/notify
func (c *NotifyClient) Notify(ctx context.Context, userID string, update model.DocumentUpdate) error {
	return c.do(ctx, http.MethodPost, "/internal/notify", NotifyRequest{UserID: userID, Update: update}, nil)
}
