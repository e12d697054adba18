package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/api/middleware"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/repository"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/service"
)

// fakeJobs реализует только методы, нужные тестам.
type fakeJobs struct {
	Jobs
	created       service.JobInput
	creator       service.Caller
	deletedFolder string
	deletedJob    string
	getErr        error
	published     bool
}

func (f *fakeJobs) CreateJob(_ context.Context, caller service.Caller, in service.JobInput) (*model.JobPosting, error) {
	f.created, f.creator = in, caller
	return &model.JobPosting{JobID: "j1", Title: in.Title, CreatedBy: caller.UserID}, nil
}

func (f *fakeJobs) ListPublishedJobs(_ context.Context, limit, offset int) ([]*model.JobPosting, int, error) {
	f.published = true
	return []*model.JobPosting{{JobID: "j1"}}, 1, nil
}

func (f *fakeJobs) GetJob(_ context.Context, _ service.Caller, jobID string) (*model.JobPosting, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &model.JobPosting{JobID: jobID}, nil
}

func (f *fakeJobs) DeleteJobByFolder(_ context.Context, folderID, jobID string) error {
	f.deletedFolder, f.deletedJob = folderID, jobID
	return nil
}

type fakeApplications struct {
	Applications
	input service.ApplicationInput
	bulk  []string
}

func (f *fakeApplications) CreateApplication(_ context.Context, caller service.Caller, in service.ApplicationInput) (*model.Application, error) {
	f.input = in
	return &model.Application{ApplicationID: "a1", UserID: caller.UserID, JobID: in.JobID, Status: model.ApplicationPending}, nil
}

func (f *fakeApplications) BulkUpdateStatus(_ context.Context, ids []string, status model.ApplicationStatus) ([]model.BulkStatusResult, error) {
	f.bulk = ids
	out := make([]model.BulkStatusResult, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.BulkStatusResult{ApplicationID: id, Result: model.BulkUpdated, Status: status})
	}
	return out, nil
}

type fakeForms struct {
	Forms
	filters repository.FormListFilters
}

func (f *fakeForms) ListForms(_ context.Context, filters repository.FormListFilters, limit, offset int) ([]*model.Form, int, error) {
	f.filters = filters
	return nil, 0, nil
}

func newRecruitment() (*RecruitmentHandler, *fakeJobs, *fakeApplications, *fakeForms) {
	jobs, apps, forms := &fakeJobs{}, &fakeApplications{}, &fakeForms{}
	return NewRecruitmentHandler(jobs, apps, forms, testLogger()), jobs, apps, forms
}

func TestRecruitmentHandler_CreateJob(t *testing.T) {
	h, jobs, _, _ := newRecruitment()
	body := `{"title":"Operario","companyName":"Manpower","employmentType":"FULL_TIME","requirements":["Licencia B"]}`

	if rec := serve(t, h, applicantClaims, http.MethodPost, "/api/v1/jobs", body); rec.Code != http.StatusForbidden {
		t.Fatalf("соискатель: статус = %d, ожидается 403", rec.Code)
	}

	rec := serve(t, h, adminClaims, http.MethodPost, "/api/v1/jobs", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("статус = %d, тело: %s", rec.Code, rec.Body.String())
	}
	if jobs.created.Title != "Operario" || jobs.created.EmploymentType != model.EmploymentFullTime ||
		len(jobs.created.Requirements) != 1 || jobs.creator.UserID != "admin-1" {
		t.Errorf("вход сервиса = %+v, caller = %+v", jobs.created, jobs.creator)
	}

	if rec := serve(t, h, adminClaims, http.MethodPost, "/api/v1/jobs", `{"title":`); rec.Code != http.StatusBadRequest {
		t.Errorf("битый JSON: статус = %d", rec.Code)
	}
}

func TestRecruitmentHandler_JobRoutes(t *testing.T) {
	h, jobs, _, _ := newRecruitment()

	// /jobs/published не должен попадать в /jobs/{jobId}
	rec := serve(t, h, applicantClaims, http.MethodGet, "/api/v1/jobs/published?limit=10", "")
	if rec.Code != http.StatusOK || !jobs.published {
		t.Fatalf("published: статус = %d", rec.Code)
	}
	var list listResponse[model.JobPosting]
	_ = json.Unmarshal(rec.Body.Bytes(), &list)
	if list.Total != 1 || list.Limit != 10 || len(list.Items) != 1 {
		t.Errorf("список = %+v", list)
	}

	jobs.getErr = service.ErrNotFound
	if rec := serve(t, h, applicantClaims, http.MethodGet, "/api/v1/jobs/j9", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GetJob: статус = %d", rec.Code)
	}

	if rec := serve(t, h, applicantClaims, http.MethodGet, "/api/v1/jobs/published?limit=x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("некорректный limit: статус = %d", rec.Code)
	}
}

func TestRecruitmentHandler_DeleteJobByFolder(t *testing.T) {
	tests := []struct {
		name   string
		claims *middleware.AuthClaims
		query  string
		want   int
	}{
		{"service account", saClaims("folders-service", "manpower/jobs:write"), "?jobId=j1", http.StatusNoContent},
		{"missing jobId", saClaims("folders-service", "manpower/jobs:write"), "", http.StatusBadRequest},
		{"service account without scope", saClaims("docproc", "documents:write"), "?jobId=j1", http.StatusForbidden},
		{"admin user", adminClaims, "?jobId=j1", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, jobs, _, _ := newRecruitment()
			rec := serve(t, h, tt.claims, http.MethodDelete, "/api/v1/jobs/by-folder/f1"+tt.query, "")
			if rec.Code != tt.want {
				t.Fatalf("статус = %d, ожидается %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusNoContent && (jobs.deletedFolder != "f1" || jobs.deletedJob != "j1") {
				t.Errorf("folderId = %q, jobId = %q", jobs.deletedFolder, jobs.deletedJob)
			}
		})
	}
}

func TestRecruitmentHandler_CreateApplicationFromClaims(t *testing.T) {
	h, _, apps, _ := newRecruitment()

	rec := serve(t, h, applicantClaims, http.MethodPost, "/api/v1/applications", `{"jobId":"j1","description":"Disponible"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("статус = %d, тело: %s", rec.Code, rec.Body.String())
	}
	if apps.input.ApplicantEmail != "ana@example.cl" || apps.input.ApplicantName != "ana" {
		t.Errorf("данные соискателя = %+v", apps.input)
	}

	// Явно переданные значения не перезаписываются
	serve(t, h, applicantClaims, http.MethodPost, "/api/v1/applications", `{"jobId":"j1","applicantName":"Ana Pérez"}`)
	if apps.input.ApplicantName != "Ana Pérez" {
		t.Errorf("applicantName = %q", apps.input.ApplicantName)
	}
}

func TestRecruitmentHandler_BulkStatus(t *testing.T) {
	h, _, apps, _ := newRecruitment()

	if rec := serve(t, h, applicantClaims, http.MethodPost, "/api/v1/applications/bulk-status", `{}`); rec.Code != http.StatusForbidden {
		t.Errorf("соискатель: статус = %d", rec.Code)
	}

	rec := serve(t, h, adminClaims, http.MethodPost, "/api/v1/applications/bulk-status", `{"applicationIds":["a1","a2"],"status":"IN_REVIEW"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d", rec.Code)
	}
	var resp struct {
		Results []model.BulkStatusResult `json:"results"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Results) != 2 || resp.Results[1].Status != model.ApplicationInReview || len(apps.bulk) != 2 {
		t.Errorf("результаты = %+v", resp.Results)
	}
}

func TestRecruitmentHandler_ListFormsStatusFilter(t *testing.T) {
	h, _, _, forms := newRecruitment()

	serve(t, h, applicantClaims, http.MethodGet, "/api/v1/forms?status=DRAFT", "")
	if forms.filters.Status == nil || *forms.filters.Status != "PUBLISHED" {
		t.Errorf("соискатель: status = %v", forms.filters.Status)
	}

	serve(t, h, adminClaims, http.MethodGet, "/api/v1/forms?status=DRAFT&jobId=j1", "")
	if forms.filters.Status == nil || *forms.filters.Status != "DRAFT" || deref(forms.filters.JobID) != "j1" {
		t.Errorf("администратор: filters = %+v", forms.filters)
	}
}
