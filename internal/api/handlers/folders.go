// folders.go — обработчики folders-service: дерево папок, документы и
// callback результатов обработки от docproc-service.
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
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/repository"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/service"
)

// Folders — операции с папками (реализуется *service.FolderService).
type Folders interface {
	CreateFolder(ctx context.Context, caller service.Caller, in service.FolderInput) (*model.Folder, error)
	GetFolder(ctx context.Context, caller service.Caller, folderID string) (*model.Folder, error)
	GetFolderByJob(ctx context.Context, caller service.Caller, jobID string) (*model.Folder, error)
	ListFolders(ctx context.Context, caller service.Caller, filters repository.FolderListFilters, limit, offset int) ([]*model.Folder, int, error)
	GetFolderTree(ctx context.Context, caller service.Caller, folderID string, depth int) (*model.FolderNode, error)
	UpdateFolder(ctx context.Context, caller service.Caller, folderID string, patch service.FolderPatch) (*model.Folder, error)
	LinkJob(ctx context.Context, caller service.Caller, folderID string, jobID *string) (*model.Folder, error)
	DeleteFolder(ctx context.Context, caller service.Caller, folderID string, sync bool) (int, error)
	BulkDeleteFolders(ctx context.Context, caller service.Caller, folderIDs []string, sync bool) ([]model.BulkDeleteResult, error)
}

// Documents — операции с документами (реализуется *service.DocumentService).
type Documents interface {
	CreateUpload(ctx context.Context, caller service.Caller, folderID string, in service.UploadInput) (*service.UploadTicket, error)
	ConfirmUpload(ctx context.Context, caller service.Caller, documentID string) (*model.Document, error)
	ListDocuments(ctx context.Context, caller service.Caller, folderID string, limit, offset int) ([]*model.Document, int, error)
	GetDocument(ctx context.Context, caller service.Caller, documentID string) (*service.DocumentWithURL, error)
	DeleteDocument(ctx context.Context, caller service.Caller, documentID string) error
	ProcessingCallback(ctx context.Context, result *model.ProcessedResult) (*model.Document, error)
	UpdateDecision(ctx context.Context, documentID string, decision model.Decision) (*model.Document, error)
}

// FoldersHandler — HTTP API folders-service.
type FoldersHandler struct {
	folders Folders
	docs    Documents
	logger  *slog.Logger
}

// NewFoldersHandler создаёт обработчик folders-service.
func NewFoldersHandler(folders Folders, docs Documents, logger *slog.Logger) *FoldersHandler {
	return &FoldersHandler{
		folders: folders,
		docs:    docs,
		logger:  logger.With(slog.String("component", "folders_handler")),
	}
}

// Register регистрирует маршруты /api/v1 folders-service.
func (h *FoldersHandler) Register(r chi.Router) {
	access := middleware.RequireRoleOrScope(anyUser, []string{middleware.ScopeFoldersWrite})
	docAccess := middleware.RequireRoleOrScope(anyUser, []string{middleware.ScopeFoldersWrite, middleware.ScopeDocumentsWrite})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(access)
			r.Post("/folders", h.createFolder)
			r.Get("/folders", h.listFolders)
			r.Post("/folders/bulk-delete", h.bulkDeleteFolders)
			r.Get("/folders/by-job/{jobId}", h.getFolderByJob)
			r.Get("/folders/{folderId}", h.getFolder)
			r.Patch("/folders/{folderId}", h.updateFolder)
			r.Delete("/folders/{folderId}", h.deleteFolder)
			r.Get("/folders/{folderId}/tree", h.getFolderTree)
		})

		r.With(middleware.RequireRoleOrScope(adminOnly, []string{middleware.ScopeFoldersWrite})).
			Put("/folders/{folderId}/job", h.linkJob)

		r.Group(func(r chi.Router) {
			r.Use(docAccess)
			r.Post("/folders/{folderId}/documents", h.createUpload)
			r.Get("/folders/{folderId}/documents", h.listDocuments)
			r.Get("/documents/{documentId}", h.getDocument)
			r.Delete("/documents/{documentId}", h.deleteDocument)
			r.Post("/documents/{documentId}/confirm", h.confirmUpload)
		})

		r.With(middleware.RequireRole(adminOnly...)).Put("/documents/{documentId}/decision", h.updateDecision)
		r.With(middleware.RequireScope(middleware.ScopeDocumentsWrite)).Post("/internal/processing-callback", h.processingCallback)
	})
}

// --- Папки ---

type folderRequest struct {
	Name     string           `json:"name"`
	Type     model.FolderType `json:"type"`
	ParentID *string          `json:"parentId"`
	JobID    *string          `json:"jobId"`
	UserID   string           `json:"userId"`
	Metadata map[string]any   `json:"metadata"`
}

type folderPatchRequest struct {
	Name     *string        `json:"name"`
	ParentID optionalString `json:"parentId"`
	Metadata map[string]any `json:"metadata"`
}

type linkJobRequest struct {
	JobID *string `json:"jobId"`
}

type bulkDeleteRequest struct {
	FolderIDs []string `json:"folderIds"`
}

func (h *FoldersHandler) createFolder(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	folder, err := h.folders.CreateFolder(r.Context(), callerFrom(r), service.FolderInput{
		Name:     req.Name,
		Type:     req.Type,
		ParentID: req.ParentID,
		JobID:    req.JobID,
		UserID:   req.UserID,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "создание папки")
		return
	}
	writeJSON(w, http.StatusCreated, folder)
}

func (h *FoldersHandler) listFolders(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	rootOnly, _ := strconv.ParseBool(r.URL.Query().Get("rootOnly"))
	filters := repository.FolderListFilters{
		UserID:   optionalQuery(r, "userId"),
		ParentID: optionalQuery(r, "parentId"),
		Type:     optionalQuery(r, "type"),
		RootOnly: rootOnly,
	}
	items, total, err := h.folders.ListFolders(r.Context(), callerFrom(r), filters, limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, err, "список папок")
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(items, total, limit, offset))
}

func (h *FoldersHandler) getFolder(w http.ResponseWriter, r *http.Request) {
	folder, err := h.folders.GetFolder(r.Context(), callerFrom(r), chi.URLParam(r, "folderId"))
	if err != nil {
		writeServiceError(w, h.logger, err, "получение папки")
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

func (h *FoldersHandler) getFolderByJob(w http.ResponseWriter, r *http.Request) {
	folder, err := h.folders.GetFolderByJob(r.Context(), callerFrom(r), chi.URLParam(r, "jobId"))
	if err != nil {
		writeServiceError(w, h.logger, err, "поиск папки вакансии")
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

func (h *FoldersHandler) getFolderTree(w http.ResponseWriter, r *http.Request) {
	depth := 0
	if v := r.URL.Query().Get("depth"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			apierrors.ValidationError(w, "depth: некорректное число")
			return
		}
		depth = d
	}
	tree, err := h.folders.GetFolderTree(r.Context(), callerFrom(r), chi.URLParam(r, "folderId"), depth)
	if err != nil {
		writeServiceError(w, h.logger, err, "дерево папок")
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (h *FoldersHandler) updateFolder(w http.ResponseWriter, r *http.Request) {
	var req folderPatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	folder, err := h.folders.UpdateFolder(r.Context(), callerFrom(r), chi.URLParam(r, "folderId"), service.FolderPatch{
		Name:     req.Name,
		Move:     req.ParentID.Set,
		ParentID: req.ParentID.Value,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "обновление папки")
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

func (h *FoldersHandler) linkJob(w http.ResponseWriter, r *http.Request) {
	var req linkJobRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	folder, err := h.folders.LinkJob(r.Context(), callerFrom(r), chi.URLParam(r, "folderId"), req.JobID)
	if err != nil {
		writeServiceError(w, h.logger, err, "привязка вакансии")
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

// deleteFolder удаляет поддерево. sync=false отключает обратный вызов
// recruitment-api (запрос пришёл из самого recruitment-api).
func (h *FoldersHandler) deleteFolder(w http.ResponseWriter, r *http.Request) {
	sync, err := syncParam(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	deleted, err := h.folders.DeleteFolder(r.Context(), callerFrom(r), chi.URLParam(r, "folderId"), sync)
	if err != nil {
		writeServiceError(w, h.logger, err, "удаление папки")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deletedCount": deleted})
}

func (h *FoldersHandler) bulkDeleteFolders(w http.ResponseWriter, r *http.Request) {
	sync, err := syncParam(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	var req bulkDeleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	results, err := h.folders.BulkDeleteFolders(r.Context(), callerFrom(r), req.FolderIDs, sync)
	if err != nil {
		writeServiceError(w, h.logger, err, "пакетное удаление папок")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// --- Документы ---

type uploadRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type decisionRequest struct {
	Decision model.Decision `json:"decision"`
	Comment  string         `json:"comment"`
}

func (h *FoldersHandler) createUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ticket, err := h.docs.CreateUpload(r.Context(), callerFrom(r), chi.URLParam(r, "folderId"), service.UploadInput{
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Size:        req.Size,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "создание загрузки")
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (h *FoldersHandler) listDocuments(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	items, total, err := h.docs.ListDocuments(r.Context(), callerFrom(r), chi.URLParam(r, "folderId"), limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, err, "список документов")
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(items, total, limit, offset))
}

func (h *FoldersHandler) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.GetDocument(r.Context(), callerFrom(r), chi.URLParam(r, "documentId"))
	if err != nil {
		writeServiceError(w, h.logger, err, "получение документа")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *FoldersHandler) confirmUpload(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.ConfirmUpload(r.Context(), callerFrom(r), chi.URLParam(r, "documentId"))
	if err != nil {
		writeServiceError(w, h.logger, err, "подтверждение загрузки")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *FoldersHandler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.docs.DeleteDocument(r.Context(), callerFrom(r), chi.URLParam(r, "documentId")); err != nil {
		writeServiceError(w, h.logger, err, "удаление документа")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FoldersHandler) updateDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	doc, err := h.docs.UpdateDecision(r.Context(), chi.URLParam(r, "documentId"), req.Decision)
	if err != nil {
		writeServiceError(w, h.logger, err, "решение по документу")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *FoldersHandler) processingCallback(w http.ResponseWriter, r *http.Request) {
	var result model.ProcessedResult
	if !decodeJSON(w, r, &result) {
		return
	}
	doc, err := h.docs.ProcessingCallback(r.Context(), &result)
	if err != nil {
		writeServiceError(w, h.logger, err, "callback обработки")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
