// docproc.go — обработчики docproc-service: приём документов на обработку,
// результаты, ручное решение, WebSocket и внутренний push уведомлений.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/HoktusDevs/manpower-platform-app-sub003/internal/api/errors"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/api/middleware"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/peerclient"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/service"
)

// Processing — операции docproc-service (реализуется *service.ProcessingService).
type Processing interface {
	ProcessDocuments(ctx context.Context, req model.ProcessRequest) ([]service.SubmittedDocument, error)
	ListResults(ctx context.Context, caller service.Caller, owner string, limit int) ([]*model.ProcessedResult, error)
	GetResult(ctx context.Context, caller service.Caller, documentID string) (*model.ProcessedResult, error)
	UpdateDecision(ctx context.Context, caller service.Caller, documentID string, decision model.Decision, comment string) (*model.ProcessedResult, error)
	DeleteResult(ctx context.Context, caller service.Caller, documentID string) error
}

// UpdateHub — WebSocket hub уведомлений (реализуется *notify.Hub).
type UpdateHub interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string, admin bool) error
	Notify(ctx context.Context, userID string, update model.DocumentUpdate) error
}

// DocprocHandler — HTTP API docproc-service.
type DocprocHandler struct {
	processing Processing
	hub        UpdateHub
	logger     *slog.Logger
}

// NewDocprocHandler создаёт обработчик docproc-service.
func NewDocprocHandler(processing Processing, hub UpdateHub, logger *slog.Logger) *DocprocHandler {
	return &DocprocHandler{
		processing: processing,
		hub:        hub,
		logger:     logger.With(slog.String("component", "docproc_handler")),
	}
}

// Register регистрирует маршруты docproc-service.
func (h *DocprocHandler) Register(r chi.Router) {
	submit := middleware.RequireRoleOrScope(anyUser, []string{middleware.ScopeDocumentsWrite})

	r.Route("/api/v1", func(r chi.Router) {
		r.With(submit).Post("/platform/process-documents-platform", h.processDocuments)
		r.With(middleware.RequireRole(anyUser...)).Get("/documents", h.listResults)
		r.With(submit).Get("/documents/{documentId}", h.getResult)
		r.With(submit).Delete("/documents/{documentId}", h.deleteResult)
		r.With(middleware.RequireRole(adminOnly...)).Post("/documents/{documentId}/decision", h.updateDecision)
	})

	r.With(middleware.RequireRole(anyUser...)).Get("/ws", h.serveWS)
	r.With(middleware.RequireScope(middleware.ScopeNotifyWrite)).Post("/internal/notify", h.notify)
}

func (h *DocprocHandler) processDocuments(w http.ResponseWriter, r *http.Request) {
	var req model.ProcessRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	submitted, err := h.processing.ProcessDocuments(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err, "приём документов")
		return
	}

	resp := peerclient.SubmitResponse{
		Status:      "accepted",
		Message:     strconv.Itoa(len(submitted)) + " documento(s) en cola de procesamiento",
		DocumentIDs: make([]string, 0, len(submitted)),
		Documents:   make([]peerclient.SubmittedID, 0, len(submitted)),
	}
	for _, d := range submitted {
		resp.DocumentIDs = append(resp.DocumentIDs, d.DocumentID)
		resp.Documents = append(resp.Documents, peerclient.SubmittedID{
			DocumentID:         d.DocumentID,
			PlatformDocumentID: d.PlatformDocumentID,
			FileName:           d.FileName,
		})
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *DocprocHandler) listResults(w http.ResponseWriter, r *http.Request) {
	limit, _, ok := pagination(w, r)
	if !ok {
		return
	}
	items, err := h.processing.ListResults(r.Context(), callerFrom(r), r.URL.Query().Get("owner"), limit)
	if err != nil {
		writeServiceError(w, h.logger, err, "список результатов")
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(items, len(items), limit, 0))
}

func (h *DocprocHandler) getResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.processing.GetResult(r.Context(), callerFrom(r), chi.URLParam(r, "documentId"))
	if err != nil {
		writeServiceError(w, h.logger, err, "получение результата")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *DocprocHandler) updateDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.processing.UpdateDecision(r.Context(), callerFrom(r), chi.URLParam(r, "documentId"), req.Decision, req.Comment)
	if err != nil {
		writeServiceError(w, h.logger, err, "ручное решение")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *DocprocHandler) deleteResult(w http.ResponseWriter, r *http.Request) {
	if err := h.processing.DeleteResult(r.Context(), callerFrom(r), chi.URLParam(r, "documentId")); err != nil {
		writeServiceError(w, h.logger, err, "удаление результата")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// serveWS подключает клиента к hub. Администраторы получают уведомления
// всех пользователей.
func (h *DocprocHandler) serveWS(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if err := h.hub.Serve(w, r, caller.UserID, caller.Admin); err != nil {
		// Ответ с ошибкой уже записан upgrader'ом
		h.logger.Warn("Ошибка WebSocket", slog.String("user_id", caller.UserID), slog.String("error", err.Error()))
	}
}

// notify — push уведомления от docproc-worker через hub этого процесса.
func (h *DocprocHandler) notify(w http.ResponseWriter, r *http.Request) {
	var req peerclient.NotifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		apierrors.ValidationError(w, "userId обязателен")
		return
	}
	if err := h.hub.Notify(r.Context(), req.UserID, req.Update); err != nil {
		writeServiceError(w, h.logger, err, "push уведомления")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
