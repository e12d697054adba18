package peerclient

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// RecruitmentClient — клиент recruitment-api.
type RecruitmentClient struct {
	baseClient
}

// NewRecruitmentClient создаёт клиент recruitment-api.
func NewRecruitmentClient(baseURL string, timeout time.Duration, maxAttempts int, tokens TokenProvider, logger *slog.Logger) *RecruitmentClient {
	return &RecruitmentClient{baseClient: newBaseClient("recruitment", baseURL, timeout, maxAttempts, tokens, logger)}
}

// DeleteJobByFolder удаляет вакансию jobID, связанную с папкой Cargo.
// Отсутствие вакансии (404) — не ошибка.
// DELETE /api/v1/jobs/by-folder/{folderId}?jobId=
func (c *RecruitmentClient) DeleteJobByFolder(ctx context.Context, folderID, jobID string) error {
	path := "/api/v1/jobs/by-folder/" + url.PathEscape(folderID) + "?" + url.Values{"jobId": {jobID}}.Encode()
	err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
