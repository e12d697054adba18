package peerclient

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
)

// CreateFolderRequest — тело POST /api/v1/folders.
type CreateFolderRequest struct {
	Name     string           `json:"name"`
	Type     model.FolderType `json:"type"`
	ParentID *string          `json:"parentId,omitempty"`
	JobID    *string          `json:"jobId,omitempty"`
	// UserID — владелец папки; учитывается только для сервисных аккаунтов
	UserID   string         `json:"userId,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// FoldersClient — клиент folders-service.
type FoldersClient struct {
	baseClient
}

// NewFoldersClient создаёт клиент folders-service.
func NewFoldersClient(baseURL string, timeout time.Duration, maxAttempts int, tokens TokenProvider, logger *slog.Logger) *FoldersClient {
	return &FoldersClient{baseClient: newBaseClient("folders", baseURL, timeout, maxAttempts, tokens, logger)}
}

// CreateFolder создаёт папку.
// POST /api/v1/folders
func (c *FoldersClient) CreateFolder(ctx context.Context, req CreateFolderRequest) (*model.Folder, error) {
	var folder model.Folder
	if err := c.do(ctx, http.MethodPost, "/api/v1/folders", req, &folder); err != nil {
		return nil, err
	}
	return &folder, nil
}

// RenameFolder переименовывает папку.
// PATCH /api/v1/folders/{id}
func (c *FoldersClient) RenameFolder(ctx context.Context, folderID, name string) error {
	body := map[string]string{"name": name}
	return c.do(ctx, http.MethodPatch, "/api/v1/folders/"+url.PathEscape(folderID), body, nil)
}

// DeleteFolder удаляет папку с поддеревом. sync=false отключает обратный
// вызов recruitment-api для папок Cargo.
// DELETE /api/v1/folders/{id}?sync=false
func (c *FoldersClient) DeleteFolder(ctx context.Context, folderID string, sync bool) error {
	path := "/api/v1/folders/" + url.PathEscape(folderID)
	if !sync {
		path += "?sync=false"
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// GetFolderByJob возвращает папку Cargo вакансии.
// GET /api/v1/folders/by-job/{jobId}
func (c *FoldersClient) GetFolderByJob(ctx context.Context, jobID string) (*model.Folder, error) {
	var folder model.Folder
	if err := c.do(ctx, http.MethodGet, "/api/v1/folders/by-job/"+url.PathEscape(jobID), nil, &folder); err != nil {
		return nil, err
	}
	return &folder, nil
}
