package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/peerclient"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/repository"
)

// maxStatusRetries — повторы смены статуса при параллельном изменении.
const maxStatusRetries = 3

// ApplicationInput — данные нового отклика.
type ApplicationInput struct {
	JobID          string
	Description    string
	Documents      []string
	ApplicantName  string
	ApplicantEmail string
}

// ApplicationPatch — изменяемые соискателем поля отклика.
type ApplicationPatch struct {
	Description *string
	Documents   *[]string
}

// ApplicationService — бизнес-логика откликов.
type ApplicationService struct {
	apps    repository.ApplicationRepository
	jobs    repository.JobRepository
	jobSvc  *JobService
	folders FolderSync
	logger  *slog.Logger
	now     func() time.Time
}

// NewApplicationService создаёт сервис откликов. folders может быть nil.
func NewApplicationService(
	apps repository.ApplicationRepository,
	jobs repository.JobRepository,
	jobSvc *JobService,
	folders FolderSync,
	logger *slog.Logger,
) *ApplicationService {
	return &ApplicationService{
		apps:    apps,
		jobs:    jobs,
		jobSvc:  jobSvc,
		folders: folders,
		logger:  logger.With(slog.String("component", "application_service")),
		now:     time.Now,
	}
}

// CreateApplication создаёт отклик на опубликованную вакансию и
// (best-effort) папку соискателя внутри папки Cargo.
func (s *ApplicationService) CreateApplication(ctx context.Context, caller Caller, in ApplicationInput) (*model.Application, error) {
	if in.JobID == "" {
		return nil, fmt.Errorf("%w: jobId обязателен", ErrValidation)
	}

	job, err := s.jobs.GetByID(ctx, in.JobID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if !job.IsOpen(s.now()) {
		return nil, fmt.Errorf("%w: вакансия не принимает отклики", ErrValidation)
	}

	app := &model.Application{
		ApplicationID:  uuid.NewString(),
		UserID:         caller.UserID,
		JobID:          job.JobID,
		Status:         model.ApplicationPending,
		Description:    in.Description,
		Documents:      in.Documents,
		ApplicantName:  in.ApplicantName,
		ApplicantEmail: in.ApplicantEmail,
	}
	if app.Documents == nil {
		app.Documents = []string{}
	}

	if err := s.apps.Create(ctx, app); err != nil {
		return nil, mapRepoError(err)
	}

	s.logger.Info("Отклик создан",
		slog.String("application_id", app.ApplicationID),
		slog.String("job_id", app.JobID),
		slog.String("user_id", app.UserID),
	)

	if s.folders != nil {
		syncCtx, cancel := detached(ctx)
		defer cancel()
		if err := s.ensureApplicantFolder(syncCtx, app, job); err != nil {
			syncFailed(s.logger, SyncCreateApplicant, err,
				slog.String("application_id", app.ApplicationID), slog.String("job_id", job.JobID))
		}
	}

	return app, nil
}

// ensureApplicantFolder находит папку Cargo вакансии, создаёт в ней папку
// соискателя и сохраняет её ID в отклике.
func (s *ApplicationService) ensureApplicantFolder(ctx context.Context, app *model.Application, job *model.JobPosting) error {
	if app.FolderID != nil {
		return nil
	}

	cargoID := ""
	if job.FolderID != nil {
		cargoID = *job.FolderID
	} else {
		folder, err := s.folders.GetFolderByJob(ctx, job.JobID)
		switch {
		case err == nil:
			if folder.Type != model.FolderCargo {
				return fmt.Errorf("папка %s вакансии %s имеет тип %s", folder.FolderID, job.JobID, folder.Type)
			}
			cargoID = folder.FolderID
			if err := s.jobs.SetFolderID(ctx, job.JobID, &cargoID); err != nil {
				s.logger.Warn("Не удалось сохранить папку Cargo вакансии",
					slog.String("job_id", job.JobID), slog.String("error", err.Error()))
			}
		case errors.Is(err, peerclient.ErrNotFound):
			// Папки Cargo нет: создаём её
			if cargoID, err = ensureCargoFolder(ctx, s.folders, s.jobs, job); err != nil {
				return err
			}
		default:
			return fmt.Errorf("поиск папки Cargo: %w", err)
		}
	}

	folder, err := s.folders.CreateFolder(ctx, peerclient.CreateFolderRequest{
		Name:     app.FolderName(),
		Type:     model.FolderApplicant,
		ParentID: &cargoID,
		UserID:   app.UserID,
		Metadata: map[string]any{
			"applicationId": app.ApplicationID,
			"userId":        app.UserID,
			"jobId":         app.JobID,
		},
	})
	if err != nil {
		return fmt.Errorf("создание папки соискателя: %w", err)
	}

	if err := s.apps.SetFolderID(ctx, app.ApplicationID, &folder.FolderID); err != nil {
		return fmt.Errorf("сохранение папки соискателя: %w", err)
	}
	app.FolderID = &folder.FolderID
	return nil
}

// ListMyApplications возвращает отклики текущего пользователя.
func (s *ApplicationService) ListMyApplications(ctx context.Context, caller Caller, status *string, limit, offset int) ([]*model.Application, int, error) {
	return s.ListApplications(ctx, repository.ApplicationListFilters{UserID: &caller.UserID, Status: status}, limit, offset)
}

// ListApplications возвращает отклики с фильтрацией и общее количество.
func (s *ApplicationService) ListApplications(ctx context.Context, filters repository.ApplicationListFilters, limit, offset int) ([]*model.Application, int, error) {
	if filters.Status != nil && !model.ApplicationStatus(*filters.Status).Valid() {
		return nil, 0, fmt.Errorf("%w: недопустимый status %q", ErrValidation, *filters.Status)
	}
	items, err := s.apps.List(ctx, filters, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.apps.Count(ctx, filters)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// GetApplication возвращает отклик, обогащённый сведениями о вакансии.
func (s *ApplicationService) GetApplication(ctx context.Context, caller Caller, applicationID string) (*model.Application, error) {
	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if !caller.CanAccess(app.UserID) {
		return nil, ErrForbidden
	}

	summary, err := s.jobSvc.jobSummary(ctx, app.JobID)
	if err != nil {
		s.logger.Warn("Не удалось получить вакансию отклика",
			slog.String("application_id", app.ApplicationID),
			slog.String("job_id", app.JobID),
			slog.String("error", err.Error()),
		)
	} else {
		app.Job = summary
	}
	return app, nil
}

// UpdateApplication обновляет описание и документы. Только владелец
// и только пока отклик в статусе PENDING.
func (s *ApplicationService) UpdateApplication(ctx context.Context, caller Caller, applicationID string, patch ApplicationPatch) (*model.Application, error) {
	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if app.UserID != caller.UserID {
		return nil, ErrForbidden
	}
	if app.Status != model.ApplicationPending {
		return nil, fmt.Errorf("%w: отклик в статусе %s нельзя изменить", ErrConflict, app.Status)
	}

	if patch.Description != nil {
		app.Description = *patch.Description
	}
	if patch.Documents != nil {
		app.Documents = *patch.Documents
	}
	if err := s.apps.Update(ctx, app); err != nil {
		return nil, mapRepoError(err)
	}
	return app, nil
}

// UpdateApplicationStatus меняет статус отклика по таблице переходов.
// Переход в текущий статус — no-op.
func (s *ApplicationService) UpdateApplicationStatus(ctx context.Context, applicationID string, status model.ApplicationStatus) (*model.Application, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: недопустимый status %q", ErrValidation, status)
	}

	for attempt := 0; attempt < maxStatusRetries; attempt++ {
		app, err := s.apps.GetByID(ctx, applicationID)
		if err != nil {
			return nil, mapRepoError(err)
		}
		if app.Status == status {
			return app, nil
		}
		if !app.Status.CanTransitionTo(status) {
			return nil, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, app.Status, status)
		}

		updated, err := s.apps.UpdateStatus(ctx, applicationID, app.Status, status)
		if errors.Is(err, repository.ErrStale) {
			continue
		}
		if err != nil {
			return nil, mapRepoError(err)
		}

		s.logger.Info("Статус отклика изменён",
			slog.String("application_id", applicationID),
			slog.String("from", string(app.Status)),
			slog.String("to", string(status)),
		)
		return updated, nil
	}
	return nil, fmt.Errorf("%w: статус отклика изменяется параллельно", ErrConflict)
}

// BulkUpdateStatus меняет статус нескольких откликов. Частичный успех
// допустим: результат возвращается для каждого ID.
func (s *ApplicationService) BulkUpdateStatus(ctx context.Context, applicationIDs []string, status model.ApplicationStatus) ([]model.BulkStatusResult, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: недопустимый status %q", ErrValidation, status)
	}
	if len(applicationIDs) == 0 {
		return nil, fmt.Errorf("%w: список applicationIds пуст", ErrValidation)
	}

	seen := make(map[string]struct{}, len(applicationIDs))
	results := make([]model.BulkStatusResult, 0, len(applicationIDs))
	for _, id := range applicationIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		res := model.BulkStatusResult{ApplicationID: id}
		app, err := s.UpdateApplicationStatus(ctx, id, status)
		switch {
		case err == nil:
			res.Result = model.BulkUpdated
			res.Status = app.Status
		case errors.Is(err, ErrNotFound):
			res.Result = model.BulkNotFound
		case errors.Is(err, ErrInvalidTransition):
			res.Result = model.BulkInvalidTransition
		default:
			res.Result = model.BulkError
			s.logger.Error("Ошибка смены статуса отклика",
				slog.String("application_id", id), slog.String("error", err.Error()))
		}
		results = append(results, res)
	}
	return results, nil
}

// DeleteApplication удаляет отклик и (best-effort) папку соискателя.
func (s *ApplicationService) DeleteApplication(ctx context.Context, caller Caller, applicationID string) error {
	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		return mapRepoError(err)
	}
	if !caller.CanAccess(app.UserID) {
		return ErrForbidden
	}

	if err := s.apps.Delete(ctx, applicationID); err != nil {
		return mapRepoError(err)
	}

	s.logger.Info("Отклик удалён", slog.String("application_id", applicationID))

	if s.folders == nil || app.FolderID == nil {
		return nil
	}
	syncCtx, cancel := detached(ctx)
	defer cancel()
	if err := s.folders.DeleteFolder(syncCtx, *app.FolderID, true); err != nil && !errors.Is(err, peerclient.ErrNotFound) {
		syncFailed(s.logger, SyncDeleteApplicant, err,
			slog.String("application_id", applicationID), slog.String("folder_id", *app.FolderID))
	}
	return nil
}
