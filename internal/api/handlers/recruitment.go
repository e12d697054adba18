// recruitment.go — обработчики recruitment-api: вакансии, отклики, формы.
// Авторизация маршрутов задаётся в Register через RequireRole/RequireScope.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/HoktusDevs/manpower-platform-app-sub003/internal/api/errors"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/api/middleware"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/repository"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/service"
)

// Jobs — операции с вакансиями (реализуется *service.JobService).
type Jobs interface {
	CreateJob(ctx context.Context, caller service.Caller, in service.JobInput) (*model.JobPosting, error)
	ListJobs(ctx context.Context, filters repository.JobListFilters, limit, offset int) ([]*model.JobPosting, int, error)
	ListPublishedJobs(ctx context.Context, limit, offset int) ([]*model.JobPosting, int, error)
	GetJob(ctx context.Context, caller service.Caller, jobID string) (*model.JobPosting, error)
	UpdateJob(ctx context.Context, jobID string, patch service.JobPatch) (*model.JobPosting, error)
	DeleteJob(ctx context.Context, jobID string) (int, error)
	DeleteJobByFolder(ctx context.Context, folderID, jobID string) error
}

// Applications — операции с откликами (реализуется *service.ApplicationService).
type Applications interface {
	CreateApplication(ctx context.Context, caller service.Caller, in service.ApplicationInput) (*model.Application, error)
	ListMyApplications(ctx context.Context, caller service.Caller, status *string, limit, offset int) ([]*model.Application, int, error)
	ListApplications(ctx context.Context, filters repository.ApplicationListFilters, limit, offset int) ([]*model.Application, int, error)
	GetApplication(ctx context.Context, caller service.Caller, applicationID string) (*model.Application, error)
	UpdateApplication(ctx context.Context, caller service.Caller, applicationID string, patch service.ApplicationPatch) (*model.Application, error)
	UpdateApplicationStatus(ctx context.Context, applicationID string, status model.ApplicationStatus) (*model.Application, error)
	BulkUpdateStatus(ctx context.Context, applicationIDs []string, status model.ApplicationStatus) ([]model.BulkStatusResult, error)
	DeleteApplication(ctx context.Context, caller service.Caller, applicationID string) error
}

// Forms — операции с формами (реализуется *service.FormService).
type Forms interface {
	CreateForm(ctx context.Context, caller service.Caller, in service.FormInput) (*model.Form, error)
	ListForms(ctx context.Context, filters repository.FormListFilters, limit, offset int) ([]*model.Form, int, error)
	GetForm(ctx context.Context, caller service.Caller, formID string) (*model.Form, error)
	UpdateForm(ctx context.Context, formID string, patch service.FormPatch) (*model.Form, error)
	DeleteForm(ctx context.Context, formID string) error
	SubmitForm(ctx context.Context, caller service.Caller, formID string, answers map[string]any) (*model.FormSubmission, error)
	ListSubmissions(ctx context.Context, formID string, limit, offset int) ([]*model.FormSubmission, int, error)
}

// RecruitmentHandler — HTTP API recruitment-api.
type RecruitmentHandler struct {
	jobs   Jobs
	apps   Applications
	forms  Forms
	logger *slog.Logger
}

// NewRecruitmentHandler создаёт обработчик recruitment-api.
func NewRecruitmentHandler(jobs Jobs, apps Applications, forms Forms, logger *slog.Logger) *RecruitmentHandler {
	return &RecruitmentHandler{
		jobs:   jobs,
		apps:   apps,
		forms:  forms,
		logger: logger.With(slog.String("component", "recruitment_handler")),
	}
}

// Register регистрирует маршруты /api/v1 recruitment-api.
func (h *RecruitmentHandler) Register(r chi.Router) {
	admin := middleware.RequireRole(adminOnly...)
	user := middleware.RequireRole(anyUser...)

	r.Route("/api/v1", func(r chi.Router) {
		// Вакансии
		r.With(admin).Post("/jobs", h.createJob)
		r.With(admin).Get("/jobs", h.listJobs)
		r.With(user).Get("/jobs/published", h.listPublishedJobs)
		r.With(middleware.RequireScope(middleware.ScopeJobsWrite)).Delete("/jobs/by-folder/{folderId}", h.deleteJobByFolder)
		r.With(user).Get("/jobs/{jobId}", h.getJob)
		r.With(admin).Patch("/jobs/{jobId}", h.updateJob)
		r.With(admin).Delete("/jobs/{jobId}", h.deleteJob)

		// Отклики
		r.With(user).Post("/applications", h.createApplication)
		r.With(user).Get("/applications/me", h.listMyApplications)
		r.With(admin).Get("/applications", h.listApplications)
		r.With(admin).Post("/applications/bulk-status", h.bulkUpdateStatus)
		r.With(user).Get("/applications/{applicationId}", h.getApplication)
		r.With(user).Patch("/applications/{applicationId}", h.updateApplication)
		r.With(user).Delete("/applications/{applicationId}", h.deleteApplication)
		r.With(admin).Put("/applications/{applicationId}/status", h.updateApplicationStatus)

		// Формы
		r.With(admin).Post("/forms", h.createForm)
		r.With(user).Get("/forms", h.listForms)
		r.With(user).Get("/forms/{formId}", h.getForm)
		r.With(admin).Patch("/forms/{formId}", h.updateForm)
		r.With(admin).Delete("/forms/{formId}", h.deleteForm)
		r.With(user).Post("/forms/{formId}/submissions", h.submitForm)
		r.With(admin).Get("/forms/{formId}/submissions", h.listSubmissions)
	})
}

// --- Вакансии ---

type jobRequest struct {
	Title          *string               `json:"title"`
	Description    *string               `json:"description"`
	CompanyName    *string               `json:"companyName"`
	Location       *string               `json:"location"`
	EmploymentType *model.EmploymentType `json:"employmentType"`
	Salary         *string               `json:"salary"`
	Requirements   *[]string             `json:"requirements"`
	Status         *model.JobStatus      `json:"status"`
	ExpiresAt      *time.Time            `json:"expiresAt"`
}

func (req *jobRequest) input() service.JobInput {
	in := service.JobInput{
		Title:       deref(req.Title),
		Description: deref(req.Description),
		CompanyName: deref(req.CompanyName),
		Location:    deref(req.Location),
		Salary:      req.Salary,
		ExpiresAt:   req.ExpiresAt,
	}
	if req.EmploymentType != nil {
		in.EmploymentType = *req.EmploymentType
	}
	if req.Requirements != nil {
		in.Requirements = *req.Requirements
	}
	if req.Status != nil {
		in.Status = *req.Status
	}
	return in
}

func (req *jobRequest) patch() service.JobPatch {
	return service.JobPatch{
		Title:          req.Title,
		Description:    req.Description,
		CompanyName:    req.CompanyName,
		Location:       req.Location,
		EmploymentType: req.EmploymentType,
		Salary:         req.Salary,
		Requirements:   req.Requirements,
		Status:         req.Status,
		ExpiresAt:      req.ExpiresAt,
	}
}

func (h *RecruitmentHandler) createJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	job, err := h.jobs.CreateJob(r.Context(), callerFrom(r), req.input())
	if err != nil {
		writeServiceError(w, h.logger, err, "создание вакансии")
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (h *RecruitmentHandler) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	filters := repository.JobListFilters{
		Status:      optionalQuery(r, "status"),
		CompanyName: optionalQuery(r, "companyName"),
	}
	items, total, err := h.jobs.ListJobs(r.Context(), filters, limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, err, "список вакансий")
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(items, total, limit, offset))
}

func (h *RecruitmentHandler) listPublishedJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	items, total, err := h.jobs.ListPublishedJobs(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, err, "список опубликованных вакансий")
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(items, total, limit, offset))
}

func (h *RecruitmentHandler) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetJob(r.Context(), callerFrom(r), chi.URLParam(r, "jobId"))
	if err != nil {
		writeServiceError(w, h.logger, err, "получение вакансии")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *RecruitmentHandler) updateJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	job, err := h.jobs.UpdateJob(r.Context(), chi.URLParam(r, "jobId"), req.patch())
	if err != nil {
		writeServiceError(w, h.logger, err, "обновление вакансии")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *RecruitmentHandler) deleteJob(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.jobs.DeleteJob(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		writeServiceError(w, h.logger, err, "удаление вакансии")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deletedApplications": deleted})
}

// deleteJobByFolder — вызов folders-service при удалении папки Cargo.
// Параметр jobId обязателен. Отсутствие вакансии не считается ошибкой.
func (h *RecruitmentHandler) deleteJobByFolder(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		apierrors.ValidationError(w, "параметр jobId обязателен")
		return
	}
	if err := h.jobs.DeleteJobByFolder(r.Context(), chi.URLParam(r, "folderId"), jobID); err != nil {
		writeServiceError(w, h.logger, err, "удаление вакансии по папке")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Отклики ---

type applicationRequest struct {
	JobID          string   `json:"jobId"`
	Description    string   `json:"description"`
	Documents      []string `json:"documents"`
	ApplicantName  string   `json:"applicantName"`
	ApplicantEmail string   `json:"applicantEmail"`
}

type applicationPatchRequest struct {
	Description *string   `json:"description"`
	Documents   *[]string `json:"documents"`
}

type statusRequest struct {
	Status model.ApplicationStatus `json:"status"`
}

type bulkStatusRequest struct {
	ApplicationIDs []string                `json:"applicationIds"`
	Status         model.ApplicationStatus `json:"status"`
}

func (h *RecruitmentHandler) createApplication(w http.ResponseWriter, r *http.Request) {
	var req applicationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// Имя и email по умолчанию берутся из токена
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil {
		if req.ApplicantEmail == "" {
			req.ApplicantEmail = claims.Email
		}
		if req.ApplicantName == "" {
			req.ApplicantName = claims.Username
		}
	}

	app, err := h.apps.CreateApplication(r.Context(), callerFrom(r), service.ApplicationInput{
		JobID:          req.JobID,
		Description:    req.Description,
		Documents:      req.Documents,
		ApplicantName:  req.ApplicantName,
		ApplicantEmail: req.ApplicantEmail,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "создание отклика")
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (h *RecruitmentHandler) listMyApplications(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	items, total, err := h.apps.ListMyApplications(r.Context(), callerFrom(r), optionalQuery(r, "status"), limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, err, "список своих откликов")
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(items, total, limit, offset))
}

func (h *RecruitmentHandler) listApplications(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	filters := repository.ApplicationListFilters{
		UserID: optionalQuery(r, "userId"),
		JobID:  optionalQuery(r, "jobId"),
		Status: optionalQuery(r, "status"),
	}
	items, total, err := h.apps.ListApplications(r.Context(), filters, limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, err, "список откликов")
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(items, total, limit, offset))
}

func (h *RecruitmentHandler) getApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.apps.GetApplication(r.Context(), callerFrom(r), chi.URLParam(r, "applicationId"))
	if err != nil {
		writeServiceError(w, h.logger, err, "получение отклика")
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *RecruitmentHandler) updateApplication(w http.ResponseWriter, r *http.Request) {
	var req applicationPatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	app, err := h.apps.UpdateApplication(r.Context(), callerFrom(r), chi.URLParam(r, "applicationId"),
		service.ApplicationPatch{Description: req.Description, Documents: req.Documents})
	if err != nil {
		writeServiceError(w, h.logger, err, "обновление отклика")
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *RecruitmentHandler) updateApplicationStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	app, err := h.apps.UpdateApplicationStatus(r.Context(), chi.URLParam(r, "applicationId"), req.Status)
	if err != nil {
		writeServiceError(w, h.logger, err, "смена статуса отклика")
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *RecruitmentHandler) bulkUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req bulkStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	results, err := h.apps.BulkUpdateStatus(r.Context(), req.ApplicationIDs, req.Status)
	if err != nil {
		writeServiceError(w, h.logger, err, "пакетная смена статуса")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *RecruitmentHandler) deleteApplication(w http.ResponseWriter, r *http.Request) {
	if err := h.apps.DeleteApplication(r.Context(), callerFrom(r), chi.URLParam(r, "applicationId")); err != nil {
		writeServiceError(w, h.logger, err, "удаление отклика")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Формы ---

type formRequest struct {
	JobID       *string            `json:"jobId"`
	Title       *string            `json:"title"`
	Description *string            `json:"description"`
	Status      *model.FormStatus  `json:"status"`
	Fields      *[]model.FormField `json:"fields"`
}

type submissionRequest struct {
	Answers map[string]any `json:"answers"`
}

func (h *RecruitmentHandler) createForm(w http.ResponseWriter, r *http.Request) {
	var req formRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in := service.FormInput{
		JobID:       req.JobID,
		Title:       deref(req.Title),
		Description: deref(req.Description),
	}
	if req.Status != nil {
		in.Status = *req.Status
	}
	if req.Fields != nil {
		in.Fields = *req.Fields
	}
	form, err := h.forms.CreateForm(r.Context(), callerFrom(r), in)
	if err != nil {
		writeServiceError(w, h.logger, err, "создание формы")
		return
	}
	writeJSON(w, http.StatusCreated, form)
}

func (h *RecruitmentHandler) listForms(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	filters := repository.FormListFilters{
		JobID:  optionalQuery(r, "jobId"),
		Status: optionalQuery(r, "status"),
	}
	// Соискатели видят только опубликованные формы
	if !callerFrom(r).Privileged() {
		published := string(model.FormPublished)
		filters.Status = &published
	}
	items, total, err := h.forms.ListForms(r.Context(), filters, limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, err, "список форм")
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(items, total, limit, offset))
}

func (h *RecruitmentHandler) getForm(w http.ResponseWriter, r *http.Request) {
	form, err := h.forms.GetForm(r.Context(), callerFrom(r), chi.URLParam(r, "formId"))
	if err != nil {
		writeServiceError(w, h.logger, err, "получение формы")
		return
	}
	writeJSON(w, http.StatusOK, form)
}

func (h *RecruitmentHandler) updateForm(w http.ResponseWriter, r *http.Request) {
	var req formRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	form, err := h.forms.UpdateForm(r.Context(), chi.URLParam(r, "formId"), service.FormPatch{
		JobID:       req.JobID,
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Fields:      req.Fields,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "обновление формы")
		return
	}
	writeJSON(w, http.StatusOK, form)
}

func (h *RecruitmentHandler) deleteForm(w http.ResponseWriter, r *http.Request) {
	if err := h.forms.DeleteForm(r.Context(), chi.URLParam(r, "formId")); err != nil {
		writeServiceError(w, h.logger, err, "удаление формы")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RecruitmentHandler) submitForm(w http.ResponseWriter, r *http.Request) {
	var req submissionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sub, err := h.forms.SubmitForm(r.Context(), callerFrom(r), chi.URLParam(r, "formId"), req.Answers)
	if err != nil {
		writeServiceError(w, h.logger, err, "отправка формы")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *RecruitmentHandler) listSubmissions(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	items, total, err := h.forms.ListSubmissions(r.Context(), chi.URLParam(r, "formId"), limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, err, "список ответов формы")
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(items, total, limit, offset))
}
