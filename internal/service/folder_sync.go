// folder_sync.go — best-effort синхронизация вакансий и откликов с папками
// folders-service. Ошибки удалённой стороны логируются и считаются в
// mp_folder_sync_failures_total, локальные изменения не откатываются.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/peerclient"
)

// Операции синхронизации (лейбл operation).
const (
	SyncCreateCargo     = "create_cargo"
	SyncRenameCargo     = "rename_cargo"
	SyncDeleteCargo     = "delete_cargo"
	SyncCreateApplicant = "create_applicant"
	SyncDeleteApplicant = "delete_applicant"
	SyncDeleteJob       = "delete_job"
	SyncDeleteBlobs     = "delete_blobs"
	SyncDeleteResults   = "delete_results"
)

var folderSyncFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mp_folder_sync_failures_total",
	Help: "Ошибки best-effort синхронизации папок и вакансий",
}, []string{"operation"})

// syncTimeout — таймаут удалённой части операции, не зависящий от отмены запроса.
const syncTimeout = 30 * time.Second

// FolderSync — операции folders-service, нужные recruitment-api.
// Реализуется *peerclient.FoldersClient.
type FolderSync interface {
	CreateFolder(ctx context.Context, req peerclient.CreateFolderRequest) (*model.Folder, error)
	RenameFolder(ctx context.Context, folderID, name string) error
	DeleteFolder(ctx context.Context, folderID string, sync bool) error
	GetFolderByJob(ctx context.Context, jobID string) (*model.Folder, error)
}

// JobSync — операции recruitment-api, нужные folders-service.
// Реализуется *peerclient.RecruitmentClient.
type JobSync interface {
	DeleteJobByFolder(ctx context.Context, folderID, jobID string) error
}

// syncFailed логирует и считает ошибку синхронизации.
func syncFailed(logger *slog.Logger, operation string, err error, attrs ...slog.Attr) {
	folderSyncFailuresTotal.WithLabelValues(operation).Inc()
	args := make([]any, 0, len(attrs)+2)
	args = append(args, slog.String("operation", operation), slog.String("error", err.Error()))
	for _, a := range attrs {
		args = append(args, a)
	}
	logger.Warn("Ошибка синхронизации папок", args...)
}

// detached возвращает контекст, не отменяемый вместе с запросом.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), syncTimeout)
}

// ensureCargoFolder создаёт папку Cargo вакансии (или находит существующую)
// и сохраняет её ID. Возвращает ID папки.
//
// 409 означает либо что папка вакансии уже есть (повтор после частичного
// сбоя), либо что имя занято папкой другой вакансии того же владельца.
// Во втором случае пробуется следующее имя из cargoFolderNames.
func ensureCargoFolder(ctx context.Context, folders FolderSync, jobs jobFolderSetter, job *model.JobPosting) (string, error) {
	if job.FolderID != nil {
		return *job.FolderID, nil
	}

	var (
		folder *model.Folder
		err    error
	)
	for _, name := range cargoFolderNames(job) {
		folder, err = folders.CreateFolder(ctx, peerclient.CreateFolderRequest{
			Name:   name,
			Type:   model.FolderCargo,
			JobID:  &job.JobID,
			UserID: job.CreatedBy,
			Metadata: map[string]any{
				"jobId":       job.JobID,
				"companyName": job.CompanyName,
			},
		})
		if !errors.Is(err, peerclient.ErrConflict) {
			break
		}
		existing, getErr := folders.GetFolderByJob(ctx, job.JobID)
		if getErr == nil {
			folder, err = existing, nil
			break
		}
		if !errors.Is(getErr, peerclient.ErrNotFound) {
			err = getErr
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("создание папки Cargo: %w", err)
	}

	if err := jobs.SetFolderID(ctx, job.JobID, &folder.FolderID); err != nil {
		return "", fmt.Errorf("сохранение папки Cargo: %w", err)
	}
	job.FolderID = &folder.FolderID
	return folder.FolderID, nil
}

// renameCargoFolder переименовывает папку Cargo по новому названию вакансии,
// при занятом имени пробуя следующие варианты.
func renameCargoFolder(ctx context.Context, folders FolderSync, job *model.JobPosting) error {
	var err error
	for _, name := range cargoFolderNames(job) {
		if err = folders.RenameFolder(ctx, *job.FolderID, name); !errors.Is(err, peerclient.ErrConflict) {
			return err
		}
	}
	return err
}

// cargoFolderNames возвращает имена папки Cargo в порядке попыток:
// название вакансии, затем с компанией, затем с префиксом jobId.
func cargoFolderNames(job *model.JobPosting) []string {
	title := folderSafeName(job.Title, 120)
	names := []string{title}
	if company := folderSafeName(job.CompanyName, 80); company != "" {
		names = append(names, fmt.Sprintf("%s (%s)", title, company))
	}
	short := job.JobID
	if len(short) > 8 {
		short = short[:8]
	}
	return append(names, fmt.Sprintf("%s · %s", title, short))
}

// folderSafeName приводит строку к допустимому имени папки не длиннее maxBytes.
func folderSafeName(s string, maxBytes int) string {
	s = strings.TrimSpace(strings.NewReplacer("/", "-", "\\", "-").Replace(s))
	if len(s) > maxBytes {
		s = strings.ToValidUTF8(s[:maxBytes], "")
	}
	return s
}

// jobFolderSetter — часть JobRepository, нужная ensureCargoFolder.
type jobFolderSetter interface {
	SetFolderID(ctx context.Context, jobID string, folderID *string) error
}
