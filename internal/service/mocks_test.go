package service

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/blobstore"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/peerclient"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/repository"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/resultstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func ptr[T any](v T) *T { return &v }

// --- JobRepository ---

type memJobs struct {
	mu      sync.Mutex
	items   map[string]*model.JobPosting
	apps    *memApps
	getHits int
}

func newMemJobs() *memJobs {
	return &memJobs{items: map[string]*model.JobPosting{}}
}

func (m *memJobs) Create(_ context.Context, j *model.JobPosting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	m.items[j.JobID] = &cp
	return nil
}

func (m *memJobs) GetByID(_ context.Context, id string) (*model.JobPosting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getHits++
	j, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobs) GetByFolderID(_ context.Context, folderID string) (*model.JobPosting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.items {
		if j.FolderID != nil && *j.FolderID == folderID {
			cp := *j
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memJobs) List(context.Context, repository.JobListFilters, int, int) ([]*model.JobPosting, error) {
	return nil, nil
}

func (m *memJobs) Count(context.Context, repository.JobListFilters) (int, error) { return 0, nil }

func (m *memJobs) Update(_ context.Context, j *model.JobPosting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[j.JobID]; !ok {
		return repository.ErrNotFound
	}
	cp := *j
	m.items[j.JobID] = &cp
	return nil
}

func (m *memJobs) SetFolderID(_ context.Context, jobID string, folderID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.items[jobID]
	if !ok {
		return repository.ErrNotFound
	}
	j.FolderID = folderID
	return nil
}

func (m *memJobs) ListMissingFolder(_ context.Context, limit int) ([]*model.JobPosting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.JobPosting
	for _, j := range m.items {
		if j.FolderID == nil && len(out) < limit {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memJobs) DeleteWithApplications(_ context.Context, jobID string) (*model.JobPosting, int, error) {
	m.mu.Lock()
	j, ok := m.items[jobID]
	if !ok {
		m.mu.Unlock()
		return nil, 0, repository.ErrNotFound
	}
	delete(m.items, jobID)
	m.mu.Unlock()

	deleted := 0
	if m.apps != nil {
		deleted = m.apps.deleteByJob(jobID)
	}
	return j, deleted, nil
}

func (m *memJobs) DeleteByFolderID(ctx context.Context, folderID, jobID string) (*model.JobPosting, int, error) {
	j, err := m.GetByFolderID(ctx, folderID)
	if err != nil {
		return nil, 0, err
	}
	if j.JobID != jobID {
		return nil, 0, repository.ErrNotFound
	}
	return m.DeleteWithApplications(ctx, j.JobID)
}

// --- ApplicationRepository ---

type memApps struct {
	mu sync.Mutex
	// items по applicationId
	items map[string]*model.Application
	// staleOnce — первый UpdateStatus вернёт ErrStale
	staleOnce bool
}

func newMemApps() *memApps {
	return &memApps{items: map[string]*model.Application{}}
}

func (m *memApps) Create(_ context.Context, a *model.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.UserID == a.UserID && existing.JobID == a.JobID {
			return repository.ErrConflict
		}
	}
	cp := *a
	m.items[a.ApplicationID] = &cp
	return nil
}

func (m *memApps) GetByID(_ context.Context, id string) (*model.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memApps) List(context.Context, repository.ApplicationListFilters, int, int) ([]*model.Application, error) {
	return nil, nil
}

func (m *memApps) Count(context.Context, repository.ApplicationListFilters) (int, error) {
	return 0, nil
}

func (m *memApps) Update(_ context.Context, a *model.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.items[a.ApplicationID] = &cp
	return nil
}

func (m *memApps) UpdateStatus(_ context.Context, id string, from, to model.ApplicationStatus) (*model.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if m.staleOnce {
		m.staleOnce = false
		return nil, repository.ErrStale
	}
	if a.Status != from {
		return nil, repository.ErrStale
	}
	a.Status = to
	cp := *a
	return &cp, nil
}

func (m *memApps) SetFolderID(_ context.Context, id string, folderID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.FolderID = folderID
	return nil
}

func (m *memApps) ListMissingFolder(_ context.Context, limit int) ([]*model.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Application
	for _, a := range m.items {
		if a.FolderID == nil && len(out) < limit {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memApps) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memApps) deleteByJob(jobID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, a := range m.items {
		if a.JobID == jobID {
			delete(m.items, id)
			n++
		}
	}
	return n
}

// --- FolderSync (peer folders-service) ---

type folderCall struct {
	op       string
	folderID string
	sync     bool
	req      peerclient.CreateFolderRequest
}

type mockFolderSync struct {
	mu    sync.Mutex
	calls []folderCall
	// byJob — папки Cargo по jobId
	byJob map[string]*model.Folder
	// names — занятые имена среди соседей одного владельца
	names map[string]bool

	createErr error
	deleteErr error
	renameErr error
}

func newMockFolderSync() *mockFolderSync {
	return &mockFolderSync{byJob: map[string]*model.Folder{}, names: map[string]bool{}}
}

func siblingKey(userID string, parentID *string, name string) string {
	parent := ""
	if parentID != nil {
		parent = *parentID
	}
	return userID + "|" + parent + "|" + strings.ToLower(name)
}

func (m *mockFolderSync) CreateFolder(_ context.Context, req peerclient.CreateFolderRequest) (*model.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, folderCall{op: "create", req: req})
	if m.createErr != nil {
		return nil, m.createErr
	}
	if req.JobID != nil && m.byJob[*req.JobID] != nil {
		return nil, peerclient.ErrConflict
	}
	key := siblingKey(req.UserID, req.ParentID, req.Name)
	if m.names[key] {
		return nil, peerclient.ErrConflict
	}
	m.names[key] = true
	f := &model.Folder{
		FolderID: "folder-" + req.Name,
		UserID:   req.UserID,
		Name:     req.Name,
		Type:     req.Type,
		ParentID: req.ParentID,
		JobID:    req.JobID,
		Metadata: req.Metadata,
	}
	if req.JobID != nil {
		m.byJob[*req.JobID] = f
	}
	return f, nil
}

func (m *mockFolderSync) RenameFolder(_ context.Context, folderID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, folderCall{op: "rename", folderID: folderID, req: peerclient.CreateFolderRequest{Name: name}})
	if m.renameErr != nil {
		return m.renameErr
	}
	for key := range m.names {
		if strings.HasSuffix(key, "|"+strings.ToLower(name)) {
			return peerclient.ErrConflict
		}
	}
	return nil
}

func (m *mockFolderSync) DeleteFolder(_ context.Context, folderID string, sync bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, folderCall{op: "delete", folderID: folderID, sync: sync})
	return m.deleteErr
}

func (m *mockFolderSync) GetFolderByJob(_ context.Context, jobID string) (*model.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, folderCall{op: "get_by_job"})
	f, ok := m.byJob[jobID]
	if !ok {
		return nil, peerclient.ErrNotFound
	}
	return f, nil
}

func (m *mockFolderSync) ops(op string) []folderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []folderCall
	for _, c := range m.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

// --- JobSync (peer recruitment-api) ---

type mockJobSync struct {
	mu      sync.Mutex
	folders []string
	jobs    []string
	err     error
}

func (m *mockJobSync) DeleteJobByFolder(_ context.Context, folderID, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.folders = append(m.folders, folderID)
	m.jobs = append(m.jobs, jobID)
	return m.err
}

// --- FolderRepository ---

type memFolders struct {
	mu    sync.Mutex
	items map[string]*model.Folder
	// docs — S3-ключи документов по папке (для DeleteSubtree)
	docs map[string][]string
	// procIDs — ID результатов обработки документов по папке
	procIDs map[string][]string
}

func newMemFolders(folders ...*model.Folder) *memFolders {
	m := &memFolders{items: map[string]*model.Folder{}, docs: map[string][]string{}, procIDs: map[string][]string{}}
	for _, f := range folders {
		m.items[f.FolderID] = f
	}
	return m
}

func (m *memFolders) Create(_ context.Context, f *model.Folder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.items {
		sameParent := (other.ParentID == nil && f.ParentID == nil) ||
			(other.ParentID != nil && f.ParentID != nil && *other.ParentID == *f.ParentID)
		if sameParent && other.UserID == f.UserID && other.Name == f.Name {
			return repository.ErrConflict
		}
	}
	cp := *f
	m.items[f.FolderID] = &cp
	return nil
}

func (m *memFolders) GetByID(_ context.Context, id string) (*model.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *memFolders) GetByJobID(_ context.Context, jobID string) (*model.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.items {
		if f.JobID != nil && *f.JobID == jobID {
			cp := *f
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memFolders) List(_ context.Context, filters repository.FolderListFilters, _, _ int) ([]*model.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Folder
	for _, f := range m.items {
		if filters.UserID != nil && f.UserID != *filters.UserID {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (m *memFolders) Count(ctx context.Context, filters repository.FolderListFilters) (int, error) {
	items, _ := m.List(ctx, filters, 0, 0)
	return len(items), nil
}

// subtree возвращает поддерево в порядке обхода в ширину. Вызывается под mu.
func (m *memFolders) subtree(rootID string, maxDepth int) []*model.Folder {
	root, ok := m.items[rootID]
	if !ok {
		return nil
	}
	out := []*model.Folder{root}
	level := []string{rootID}
	for depth := 0; depth < maxDepth && len(level) > 0; depth++ {
		var next []string
		for _, parentID := range level {
			for _, f := range m.items {
				if f.ParentID != nil && *f.ParentID == parentID {
					out = append(out, f)
					next = append(next, f.FolderID)
				}
			}
		}
		level = next
	}
	return out
}

func (m *memFolders) GetSubtree(_ context.Context, rootID string, maxDepth int) ([]*model.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.subtree(rootID, maxDepth)
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (m *memFolders) IsDescendant(_ context.Context, ancestorID, candidateID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.subtree(ancestorID, 1000) {
		if f.FolderID == candidateID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memFolders) Update(_ context.Context, f *model.Folder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *f
	m.items[f.FolderID] = &cp
	return nil
}

func (m *memFolders) SetJobID(_ context.Context, folderID string, jobID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.items[folderID]
	if !ok {
		return repository.ErrNotFound
	}
	f.JobID = jobID
	return nil
}

func (m *memFolders) DeleteSubtree(_ context.Context, rootID string) (*model.DeletedSubtree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	folders := m.subtree(rootID, 1000)
	if folders == nil {
		return nil, repository.ErrNotFound
	}
	out := &model.DeletedSubtree{}
	for _, f := range folders {
		out.FolderIDs = append(out.FolderIDs, f.FolderID)
		if f.Type == model.FolderCargo && f.JobID != nil {
			out.CargoLinks = append(out.CargoLinks, model.CargoLink{FolderID: f.FolderID, JobID: *f.JobID})
		}
		out.S3Keys = append(out.S3Keys, m.docs[f.FolderID]...)
		out.ProcessingIDs = append(out.ProcessingIDs, m.procIDs[f.FolderID]...)
		delete(m.items, f.FolderID)
	}
	return out, nil
}

// --- DocumentRepository ---

type memDocs struct {
	mu    sync.Mutex
	items map[string]*model.Document
}

func newMemDocs() *memDocs {
	return &memDocs{items: map[string]*model.Document{}}
}

func (m *memDocs) Create(_ context.Context, d *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.items[d.DocumentID] = &cp
	return nil
}

func (m *memDocs) GetByID(_ context.Context, id string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memDocs) ListByFolder(_ context.Context, folderID string, _, _ int) ([]*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Document
	for _, d := range m.items {
		if d.FolderID == folderID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDocs) CountByFolder(ctx context.Context, folderID string) (int, error) {
	items, _ := m.ListByFolder(ctx, folderID, 0, 0)
	return len(items), nil
}

func (m *memDocs) UpdateStatus(_ context.Context, id string, status model.DocumentStatus, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.Status = status
	d.Error = errMsg
	return nil
}

func (m *memDocs) MarkProcessing(_ context.Context, id string, processingID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.Status = model.DocumentProcessing
	if processingID != nil {
		d.ProcessingID = processingID
	}
	d.Error = nil
	return nil
}

func (m *memDocs) SaveResult(_ context.Context, id string, u repository.ResultUpdate) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	d.Status = u.Status
	d.Decision = u.Decision
	d.DocumentType = u.DocumentType
	d.ProcessingResult = u.Result
	d.Error = u.Error
	if u.Result != nil && u.Result.DocumentID != "" {
		d.ProcessingID = &u.Result.DocumentID
	}
	cp := *d
	return &cp, nil
}

func (m *memDocs) UpdateDecision(_ context.Context, id string, decision model.Decision) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	d.Decision = &decision
	cp := *d
	return &cp, nil
}

func (m *memDocs) Delete(_ context.Context, id string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(m.items, id)
	return d, nil
}

// --- BlobStore ---

type mockBlobs struct {
	mu      sync.Mutex
	objects map[string]bool
	deleted []string
	headErr error
}

func newMockBlobs() *mockBlobs {
	return &mockBlobs{objects: map[string]bool{}}
}

func (m *mockBlobs) PresignPut(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://s3.test/put/" + key, nil
}

func (m *mockBlobs) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://s3.test/get/" + key, nil
}

func (m *mockBlobs) Head(_ context.Context, key string) (*blobstore.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.headErr != nil {
		return nil, m.headErr
	}
	if !m.objects[key] {
		return nil, blobstore.ErrNotFound
	}
	return &blobstore.ObjectInfo{Size: 1}, nil
}

func (m *mockBlobs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, key)
	delete(m.objects, key)
	return nil
}

func (m *mockBlobs) DeleteMany(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, keys...)
	return nil
}

// --- DocprocSubmitter ---

type mockDocproc struct {
	requests []model.ProcessRequest
	deleted  []string
	err      error
	// deleteErr — ошибка DeleteResult
	deleteErr error
}

func (m *mockDocproc) Submit(_ context.Context, req model.ProcessRequest) (*peerclient.SubmitResponse, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return &peerclient.SubmitResponse{Status: "accepted", DocumentIDs: []string{"proc-1"}}, nil
}

func (m *mockDocproc) DeleteResult(_ context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return m.deleteErr
}

// --- ResultRepository ---

type memResults struct {
	mu    sync.Mutex
	items map[string]*model.ProcessedResult
}

func newMemResults() *memResults {
	return &memResults{items: map[string]*model.ProcessedResult{}}
}

func (m *memResults) Put(_ context.Context, r *model.ProcessedResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.items[r.DocumentID] = &cp
	return nil
}

func (m *memResults) Replace(ctx context.Context, r *model.ProcessedResult) error {
	m.mu.Lock()
	_, ok := m.items[r.DocumentID]
	m.mu.Unlock()
	if !ok {
		return resultstore.ErrNotFound
	}
	return m.Put(ctx, r)
}

func (m *memResults) Get(_ context.Context, id string) (*model.ProcessedResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok {
		return nil, resultstore.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memResults) Delete(_ context.Context, id string) (*model.ProcessedResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok {
		return nil, resultstore.ErrNotFound
	}
	delete(m.items, id)
	return r, nil
}

func (m *memResults) List(_ context.Context, owner string, _ int) ([]*model.ProcessedResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ProcessedResult
	for _, r := range m.items {
		if owner == "" || r.OwnerUserName == owner {
			out = append(out, r)
		}
	}
	return out, nil
}

// --- TaskPublisher / UpdateNotifier ---

type mockPublisher struct {
	tasks []model.ProcessingTask
	// failFn решает, какие задачи не попадут в очередь
	failFn func(task model.ProcessingTask) error
}

func (m *mockPublisher) Publish(_ context.Context, tasks []model.ProcessingTask) map[string]error {
	m.tasks = append(m.tasks, tasks...)
	failed := map[string]error{}
	for _, t := range tasks {
		if m.failFn == nil {
			continue
		}
		if err := m.failFn(t); err != nil {
			failed[t.DocumentID] = err
		}
	}
	return failed
}

type mockNotifier struct {
	users   []string
	updates []model.DocumentUpdate
}

func (m *mockNotifier) Notify(_ context.Context, userID string, u model.DocumentUpdate) error {
	m.users = append(m.users, userID)
	m.updates = append(m.updates, u)
	return nil
}
