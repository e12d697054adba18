package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/peerclient"
)

var admin = Caller{UserID: "admin-1", Admin: true}

func newJobService(folders FolderSync) (*JobService, *memJobs, *memApps) {
	jobs := newMemJobs()
	apps := newMemApps()
	jobs.apps = apps
	return NewJobService(jobs, folders, NewCacheService(100, time.Minute), testLogger()), jobs, apps
}

func validJob() JobInput {
	return JobInput{
		Title:          "Operario de bodega",
		CompanyName:    "Manpower",
		EmploymentType: model.EmploymentFullTime,
		Status:         model.JobPublished,
	}
}

func TestJobService_CreateJob_CreatesCargoFolder(t *testing.T) {
	folders := newMockFolderSync()
	svc, jobs, _ := newJobService(folders)

	job, err := svc.CreateJob(context.Background(), admin, validJob())
	if err != nil {
		t.Fatalf("CreateJob() ошибка: %v", err)
	}
	if job.FolderID == nil || *job.FolderID != "folder-Operario de bodega" {
		t.Fatalf("folderId = %v", job.FolderID)
	}

	creates := folders.ops("create")
	if len(creates) != 1 {
		t.Fatalf("создано папок: %d, ожидается 1", len(creates))
	}
	req := creates[0].req
	if req.Type != model.FolderCargo || req.JobID == nil || *req.JobID != job.JobID {
		t.Errorf("запрос папки: %+v", req)
	}
	if req.Metadata["companyName"] != "Manpower" {
		t.Errorf("metadata = %v", req.Metadata)
	}

	stored, _ := jobs.GetByID(context.Background(), job.JobID)
	if stored.FolderID == nil {
		t.Error("folderId не сохранён в вакансии")
	}
}

func TestJobService_CreateJob_FolderFailureKeepsJob(t *testing.T) {
	folders := newMockFolderSync()
	folders.createErr = peerclient.ErrUnavailable
	svc, jobs, _ := newJobService(folders)

	job, err := svc.CreateJob(context.Background(), admin, validJob())
	if err != nil {
		t.Fatalf("CreateJob() ошибка: %v", err)
	}
	if job.FolderID != nil {
		t.Errorf("folderId = %v, ожидается пустой", *job.FolderID)
	}
	if _, err := jobs.GetByID(context.Background(), job.JobID); err != nil {
		t.Error("вакансия должна остаться созданной")
	}
}

func TestJobService_CreateJob_ConflictReusesFolder(t *testing.T) {
	folders := newMockFolderSync()
	svc, _, _ := newJobService(folders)

	job, err := svc.CreateJob(context.Background(), admin, validJob())
	if err != nil {
		t.Fatal(err)
	}
	// Повтор ensureCargoFolder при 409 находит существующую папку
	folders.createErr = peerclient.ErrConflict
	job.FolderID = nil
	id, err := ensureCargoFolder(context.Background(), folders, svc.jobs, job)
	if err != nil || id != "folder-Operario de bodega" {
		t.Errorf("ensureCargoFolder() = %q, %v", id, err)
	}
}

func TestJobService_CreateJob_SameTitleGetsDistinctFolders(t *testing.T) {
	folders := newMockFolderSync()
	svc, _, _ := newJobService(folders)
	ctx := context.Background()

	want := []string{
		"folder-Operario de bodega",
		"folder-Operario de bodega (Manpower)",
	}
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		job, err := svc.CreateJob(ctx, admin, validJob())
		if err != nil {
			t.Fatalf("CreateJob() #%d ошибка: %v", i, err)
		}
		if job.FolderID == nil {
			t.Fatalf("вакансия #%d без папки Cargo", i)
		}
		if i < len(want) && *job.FolderID != want[i] {
			t.Errorf("папка #%d = %q, ожидается %q", i, *job.FolderID, want[i])
		}
		if i == 2 && *job.FolderID != "folder-Operario de bodega · "+job.JobID[:8] {
			t.Errorf("папка #2 = %q", *job.FolderID)
		}
		if seen[*job.FolderID] {
			t.Errorf("папка %q досталась двум вакансиям", *job.FolderID)
		}
		seen[*job.FolderID] = true
	}
}

func TestCargoFolderNames(t *testing.T) {
	job := &model.JobPosting{JobID: "0123456789abcdef", Title: " Chofer A/B ", CompanyName: "Acme"}
	got := cargoFolderNames(job)
	want := []string{"Chofer A-B", "Chofer A-B (Acme)", "Chofer A-B · 01234567"}
	if len(got) != len(want) {
		t.Fatalf("cargoFolderNames() = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("имя #%d = %q, ожидается %q", i, got[i], want[i])
		}
	}

	long := &model.JobPosting{JobID: "j", Title: strings.Repeat("ñ", 200), CompanyName: strings.Repeat("é", 100)}
	for _, name := range cargoFolderNames(long) {
		if len(name) > 255 || !utf8.ValidString(name) {
			t.Errorf("недопустимое имя длиной %d", len(name))
		}
	}
}

func TestJobService_UpdateJob_RenameFallsBackOnConflict(t *testing.T) {
	folders := newMockFolderSync()
	svc, _, _ := newJobService(folders)
	ctx := context.Background()

	in := validJob()
	in.Title = "Jefe de bodega"
	if _, err := svc.CreateJob(ctx, admin, in); err != nil {
		t.Fatal(err)
	}
	job, err := svc.CreateJob(ctx, admin, validJob())
	if err != nil {
		t.Fatal(err)
	}

	title := "Jefe de bodega"
	if _, err := svc.UpdateJob(ctx, job.JobID, JobPatch{Title: &title}); err != nil {
		t.Fatalf("UpdateJob() ошибка: %v", err)
	}
	renames := folders.ops("rename")
	if len(renames) != 2 || renames[1].req.Name != "Jefe de bodega (Manpower)" {
		t.Errorf("rename: %+v", renames)
	}
}

func TestJobService_Validation(t *testing.T) {
	svc, _, _ := newJobService(nil)

	tests := []struct {
		name   string
		modify func(in *JobInput)
	}{
		{"empty title", func(in *JobInput) { in.Title = "  " }},
		{"empty company", func(in *JobInput) { in.CompanyName = "" }},
		{"bad employment type", func(in *JobInput) { in.EmploymentType = "FREELANCE" }},
		{"bad status", func(in *JobInput) { in.Status = "ARCHIVED" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validJob()
			tt.modify(&in)
			if _, err := svc.CreateJob(context.Background(), admin, in); !errors.Is(err, ErrValidation) {
				t.Errorf("CreateJob() = %v, ожидается ErrValidation", err)
			}
		})
	}
}

func TestJobService_GetJob_HidesDrafts(t *testing.T) {
	svc, _, _ := newJobService(nil)
	in := validJob()
	in.Status = model.JobDraft
	job, err := svc.CreateJob(context.Background(), admin, in)
	if err != nil {
		t.Fatal(err)
	}

	applicant := Caller{UserID: "user-1"}
	if _, err := svc.GetJob(context.Background(), applicant, job.JobID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetJob() соискателем = %v, ожидается ErrNotFound", err)
	}
	if _, err := svc.GetJob(context.Background(), admin, job.JobID); err != nil {
		t.Errorf("GetJob() администратором = %v", err)
	}
}

func TestJobService_UpdateJob_RenamesFolder(t *testing.T) {
	folders := newMockFolderSync()
	svc, _, _ := newJobService(folders)
	job, _ := svc.CreateJob(context.Background(), admin, validJob())

	if _, err := svc.UpdateJob(context.Background(), job.JobID, JobPatch{Location: ptr("Santiago")}); err != nil {
		t.Fatal(err)
	}
	if n := len(folders.ops("rename")); n != 0 {
		t.Errorf("переименований: %d без смены title", n)
	}

	if _, err := svc.UpdateJob(context.Background(), job.JobID, JobPatch{Title: ptr("Jefe de bodega")}); err != nil {
		t.Fatal(err)
	}
	renames := folders.ops("rename")
	if len(renames) != 1 || renames[0].req.Name != "Jefe de bodega" || renames[0].folderID != *job.FolderID {
		t.Errorf("rename: %+v", renames)
	}
}

func TestJobService_DeleteJob(t *testing.T) {
	folders := newMockFolderSync()
	svc, _, apps := newJobService(folders)
	job, _ := svc.CreateJob(context.Background(), admin, validJob())
	_ = apps.Create(context.Background(), &model.Application{ApplicationID: "a1", UserID: "u1", JobID: job.JobID})
	_ = apps.Create(context.Background(), &model.Application{ApplicationID: "a2", UserID: "u2", JobID: job.JobID})

	n, err := svc.DeleteJob(context.Background(), job.JobID)
	if err != nil {
		t.Fatalf("DeleteJob() ошибка: %v", err)
	}
	if n != 2 {
		t.Errorf("удалено откликов: %d, ожидается 2", n)
	}
	deletes := folders.ops("delete")
	if len(deletes) != 1 || deletes[0].folderID != *job.FolderID || deletes[0].sync {
		t.Errorf("удаление папки: %+v, ожидается sync=false", deletes)
	}

	if _, err := svc.DeleteJob(context.Background(), job.JobID); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный DeleteJob() = %v, ожидается ErrNotFound", err)
	}
}

func TestJobService_DeleteJob_FolderNotFoundIsSuccess(t *testing.T) {
	folders := newMockFolderSync()
	svc, _, _ := newJobService(folders)
	job, _ := svc.CreateJob(context.Background(), admin, validJob())
	folders.deleteErr = peerclient.ErrNotFound

	if _, err := svc.DeleteJob(context.Background(), job.JobID); err != nil {
		t.Errorf("DeleteJob() = %v", err)
	}
}

func TestJobService_DeleteJobByFolder(t *testing.T) {
	folders := newMockFolderSync()
	svc, jobs, _ := newJobService(folders)
	job, _ := svc.CreateJob(context.Background(), admin, validJob())
	other, _ := svc.CreateJob(context.Background(), admin, validJob())

	// Папка не принадлежит вакансии other: ничего не удаляется
	if err := svc.DeleteJobByFolder(context.Background(), *job.FolderID, other.JobID); err != nil {
		t.Fatalf("DeleteJobByFolder(чужая вакансия) ошибка: %v", err)
	}
	for _, id := range []string{job.JobID, other.JobID} {
		if _, err := jobs.GetByID(context.Background(), id); err != nil {
			t.Errorf("вакансия %s удалена при несовпадении папки: %v", id, err)
		}
	}
	if err := svc.DeleteJobByFolder(context.Background(), *job.FolderID, ""); !errors.Is(err, ErrValidation) {
		t.Errorf("пустой jobId = %v, ожидается ErrValidation", err)
	}

	if err := svc.DeleteJobByFolder(context.Background(), *job.FolderID, job.JobID); err != nil {
		t.Fatalf("DeleteJobByFolder() ошибка: %v", err)
	}
	if _, err := jobs.GetByID(context.Background(), job.JobID); err == nil {
		t.Error("вакансия не удалена")
	}
	if n := len(folders.ops("delete")); n != 0 {
		t.Errorf("удаление по папке не должно вызывать folders-service, вызовов: %d", n)
	}

	// Идемпотентность
	if err := svc.DeleteJobByFolder(context.Background(), *job.FolderID, job.JobID); err != nil {
		t.Errorf("повторный DeleteJobByFolder() = %v", err)
	}
}

func TestCacheService(t *testing.T) {
	cache := NewCacheService(10, 50*time.Millisecond)
	if _, ok := cache.Get("j1"); ok {
		t.Fatal("ожидался cache miss")
	}
	cache.Set("j1", &model.JobSummary{Title: "Operario"})
	if got, ok := cache.Get("j1"); !ok || got.Title != "Operario" {
		t.Fatalf("Get() = %+v, %v", got, ok)
	}
	cache.Delete("j1")
	if _, ok := cache.Get("j1"); ok {
		t.Error("ожидался cache miss после Delete")
	}

	cache.Set("j2", &model.JobSummary{})
	time.Sleep(100 * time.Millisecond)
	if _, ok := cache.Get("j2"); ok {
		t.Error("запись должна истечь по TTL")
	}
}
