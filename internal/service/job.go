// Пакет service — бизнес-логика сервисов платформы: вакансии, отклики,
// формы (recruitment-api), папки и документы (folders-service),
// приём документов на обработку (docproc-service).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/peerclient"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/repository"
)

// JobInput — поля создаваемой вакансии.
type JobInput struct {
	Title          string
	Description    string
	CompanyName    string
	Location       string
	EmploymentType model.EmploymentType
	Salary         *string
	Requirements   []string
	Status         model.JobStatus
	ExpiresAt      *time.Time
}

// JobPatch — частичное обновление вакансии (nil — не менять).
type JobPatch struct {
	Title          *string
	Description    *string
	CompanyName    *string
	Location       *string
	EmploymentType *model.EmploymentType
	Salary         *string
	Requirements   *[]string
	Status         *model.JobStatus
	ExpiresAt      *time.Time
}

// JobService — бизнес-логика вакансий.
type JobService struct {
	jobs    repository.JobRepository
	folders FolderSync
	cache   *CacheService
	logger  *slog.Logger
	now     func() time.Time
}

// NewJobService создаёт сервис вакансий. folders может быть nil —
// тогда синхронизация с папками отключена.
func NewJobService(jobs repository.JobRepository, folders FolderSync, cache *CacheService, logger *slog.Logger) *JobService {
	return &JobService{
		jobs:    jobs,
		folders: folders,
		cache:   cache,
		logger:  logger.With(slog.String("component", "job_service")),
		now:     time.Now,
	}
}

// validateJob проверяет обязательные поля вакансии.
func validateJob(j *model.JobPosting) error {
	if strings.TrimSpace(j.Title) == "" {
		return fmt.Errorf("%w: title обязателен", ErrValidation)
	}
	if len(j.Title) > 255 {
		return fmt.Errorf("%w: title длиннее 255 символов", ErrValidation)
	}
	if strings.TrimSpace(j.CompanyName) == "" {
		return fmt.Errorf("%w: companyName обязателен", ErrValidation)
	}
	if !j.EmploymentType.Valid() {
		return fmt.Errorf("%w: недопустимый employmentType %q", ErrValidation, j.EmploymentType)
	}
	if !j.Status.Valid() {
		return fmt.Errorf("%w: недопустимый status %q", ErrValidation, j.Status)
	}
	return nil
}

// CreateJob создаёт вакансию и (best-effort) её папку Cargo.
func (s *JobService) CreateJob(ctx context.Context, caller Caller, in JobInput) (*model.JobPosting, error) {
	job := &model.JobPosting{
		JobID:          uuid.NewString(),
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		CompanyName:    strings.TrimSpace(in.CompanyName),
		Location:       in.Location,
		EmploymentType: in.EmploymentType,
		Salary:         in.Salary,
		Requirements:   in.Requirements,
		Status:         in.Status,
		ExpiresAt:      in.ExpiresAt,
		CreatedBy:      caller.UserID,
	}
	if job.Status == "" {
		job.Status = model.JobDraft
	}
	if job.Requirements == nil {
		job.Requirements = []string{}
	}
	if err := validateJob(job); err != nil {
		return nil, err
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, mapRepoError(err)
	}

	s.logger.Info("Вакансия создана",
		slog.String("job_id", job.JobID),
		slog.String("title", job.Title),
	)

	if s.folders != nil {
		syncCtx, cancel := detached(ctx)
		defer cancel()
		if _, err := ensureCargoFolder(syncCtx, s.folders, s.jobs, job); err != nil {
			syncFailed(s.logger, SyncCreateCargo, err, slog.String("job_id", job.JobID))
		}
	}

	return job, nil
}

// ListJobs возвращает вакансии с фильтрацией и общее количество.
func (s *JobService) ListJobs(ctx context.Context, filters repository.JobListFilters, limit, offset int) ([]*model.JobPosting, int, error) {
	items, err := s.jobs.List(ctx, filters, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.jobs.Count(ctx, filters)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListPublishedJobs возвращает опубликованные и не истёкшие вакансии.
func (s *JobService) ListPublishedJobs(ctx context.Context, limit, offset int) ([]*model.JobPosting, int, error) {
	return s.ListJobs(ctx, repository.JobListFilters{OpenOnly: true}, limit, offset)
}

// GetJob возвращает вакансию. Не-администраторы видят только опубликованные.
func (s *JobService) GetJob(ctx context.Context, caller Caller, jobID string) (*model.JobPosting, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if !caller.Privileged() && job.Status != model.JobPublished {
		return nil, ErrNotFound
	}
	return job, nil
}

// UpdateJob применяет частичное обновление. Переименование вакансии
// переименовывает папку Cargo (best-effort).
func (s *JobService) UpdateJob(ctx context.Context, jobID string, patch JobPatch) (*model.JobPosting, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	oldTitle := job.Title

	if patch.Title != nil {
		job.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		job.Description = *patch.Description
	}
	if patch.CompanyName != nil {
		job.CompanyName = strings.TrimSpace(*patch.CompanyName)
	}
	if patch.Location != nil {
		job.Location = *patch.Location
	}
	if patch.EmploymentType != nil {
		job.EmploymentType = *patch.EmploymentType
	}
	if patch.Salary != nil {
		job.Salary = patch.Salary
	}
	if patch.Requirements != nil {
		job.Requirements = *patch.Requirements
	}
	if patch.Status != nil {
		job.Status = *patch.Status
	}
	if patch.ExpiresAt != nil {
		job.ExpiresAt = patch.ExpiresAt
	}
	if err := validateJob(job); err != nil {
		return nil, err
	}

	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, mapRepoError(err)
	}
	s.cache.Delete(job.JobID)

	if s.folders != nil && job.FolderID != nil && job.Title != oldTitle {
		syncCtx, cancel := detached(ctx)
		defer cancel()
		if err := renameCargoFolder(syncCtx, s.folders, job); err != nil {
			syncFailed(s.logger, SyncRenameCargo, err,
				slog.String("job_id", job.JobID), slog.String("folder_id", *job.FolderID))
		}
	}

	return job, nil
}

// DeleteJob удаляет вакансию вместе с откликами, затем (best-effort)
// папку Cargo. Папка удаляется с sync=false: folders-service не вызывает
// recruitment-api повторно.
func (s *JobService) DeleteJob(ctx context.Context, jobID string) (int, error) {
	job, deletedApps, err := s.jobs.DeleteWithApplications(ctx, jobID)
	if err != nil {
		return 0, mapRepoError(err)
	}
	s.cache.Delete(job.JobID)

	s.logger.Info("Вакансия удалена",
		slog.String("job_id", job.JobID),
		slog.Int("applications_deleted", deletedApps),
	)

	if s.folders == nil {
		return deletedApps, nil
	}

	syncCtx, cancel := detached(ctx)
	defer cancel()

	folderID := ""
	if job.FolderID != nil {
		folderID = *job.FolderID
	} else if folder, err := s.folders.GetFolderByJob(syncCtx, job.JobID); err == nil {
		folderID = folder.FolderID
	}
	if folderID == "" {
		return deletedApps, nil
	}

	if err := s.folders.DeleteFolder(syncCtx, folderID, false); err != nil && !errors.Is(err, peerclient.ErrNotFound) {
		syncFailed(s.logger, SyncDeleteCargo, err,
			slog.String("job_id", job.JobID), slog.String("folder_id", folderID))
	}
	return deletedApps, nil
}

// DeleteJobByFolder удаляет вакансию jobID, связанную с удалённой папкой
// Cargo. Вызывается folders-service. Вакансия удаляется, только если её
// folderId совпадает с folderID; иначе вызов ничего не делает.
func (s *JobService) DeleteJobByFolder(ctx context.Context, folderID, jobID string) error {
	if folderID == "" || jobID == "" {
		return fmt.Errorf("%w: folderId и jobId обязательны", ErrValidation)
	}
	job, deletedApps, err := s.jobs.DeleteByFolderID(ctx, folderID, jobID)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Debug("Вакансия для папки не найдена",
			slog.String("folder_id", folderID), slog.String("job_id", jobID))
		return nil
	}
	if err != nil {
		return err
	}
	s.cache.Delete(job.JobID)

	s.logger.Info("Вакансия удалена вместе с папкой Cargo",
		slog.String("job_id", job.JobID),
		slog.String("folder_id", folderID),
		slog.Int("applications_deleted", deletedApps),
	)
	return nil
}

// jobSummary возвращает краткие сведения о вакансии из кэша или БД.
func (s *JobService) jobSummary(ctx context.Context, jobID string) (*model.JobSummary, error) {
	if summary, ok := s.cache.Get(jobID); ok {
		return summary, nil
	}
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	summary := job.Summary()
	s.cache.Set(jobID, summary)
	return summary, nil
}

// mapRepoError переводит ошибки репозитория в ошибки сервисного слоя.
func mapRepoError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, repository.ErrStale):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
