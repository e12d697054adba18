package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/blobstore"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/repository"
)

// BlobStore — операции с файлами документов. Реализуется *blobstore.Store.
type BlobStore interface {
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Head(ctx context.Context, key string) (*blobstore.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	DeleteMany(ctx context.Context, keys []string) error
}

// ResultDeleter удаляет результаты обработки в docproc-service.
// Реализуется *peerclient.DocprocClient.
type ResultDeleter interface {
	DeleteResult(ctx context.Context, documentID string) error
}

// FolderInput — данные новой папки.
type FolderInput struct {
	Name     string
	Type     model.FolderType
	ParentID *string
	JobID    *string
	// UserID — владелец; учитывается только для администраторов и сервисов
	UserID   string
	Metadata map[string]any
}

// FolderPatch — изменение папки. Перемещение задаётся Move: ParentID == nil
// переносит папку на верхний уровень.
type FolderPatch struct {
	Name     *string
	Move     bool
	ParentID *string
	Metadata map[string]any
}

// FolderService — бизнес-логика дерева папок.
type FolderService struct {
	folders      repository.FolderRepository
	blobs        BlobStore
	jobs         JobSync
	results      ResultDeleter
	treeMaxDepth int
	logger       *slog.Logger
}

// NewFolderService создаёт сервис папок. jobs может быть nil — тогда
// удаление папок Cargo не синхронизируется с recruitment-api; results
// может быть nil — тогда результаты обработки документов не удаляются.
func NewFolderService(
	folders repository.FolderRepository,
	blobs BlobStore,
	jobs JobSync,
	results ResultDeleter,
	treeMaxDepth int,
	logger *slog.Logger,
) *FolderService {
	return &FolderService{
		folders:      folders,
		blobs:        blobs,
		jobs:         jobs,
		results:      results,
		treeMaxDepth: treeMaxDepth,
		logger:       logger.With(slog.String("component", "folder_service")),
	}
}

// validateFolderName проверяет имя папки.
func validateFolderName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name обязателен", ErrValidation)
	}
	if len(name) > 255 {
		return "", fmt.Errorf("%w: name длиннее 255 символов", ErrValidation)
	}
	if strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("%w: name не может содержать / или \\", ErrValidation)
	}
	return name, nil
}

// resolveParent загружает родителя и проверяет, что папка типа t может в нём лежать.
func (s *FolderService) resolveParent(ctx context.Context, caller Caller, t model.FolderType, parentID *string) error {
	var parentType model.FolderType
	if parentID != nil {
		parent, err := s.folders.GetByID(ctx, *parentID)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: родительская папка %s не найдена", ErrValidation, *parentID)
		}
		if err != nil {
			return err
		}
		if !caller.CanAccess(parent.UserID) {
			return ErrForbidden
		}
		parentType = parent.Type
	}
	if !t.AllowsParent(parentType) {
		if parentType == "" {
			return fmt.Errorf("%w: папка %s не может быть корневой", ErrValidation, t)
		}
		return fmt.Errorf("%w: папка %s не может лежать в папке %s", ErrValidation, t, parentType)
	}
	return nil
}

// CreateFolder создаёт папку с проверкой правил дерева.
func (s *FolderService) CreateFolder(ctx context.Context, caller Caller, in FolderInput) (*model.Folder, error) {
	name, err := validateFolderName(in.Name)
	if err != nil {
		return nil, err
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: недопустимый type %q", ErrValidation, in.Type)
	}
	if in.JobID != nil && in.Type != model.FolderCargo {
		return nil, fmt.Errorf("%w: jobId допустим только для папки CARGO", ErrValidation)
	}
	// Связь с вакансией задают только администраторы и recruitment-api:
	// удаление такой папки с sync удаляет вакансию.
	if in.JobID != nil && !caller.Privileged() {
		return nil, fmt.Errorf("%w: jobId может задать только администратор", ErrForbidden)
	}
	if err := s.resolveParent(ctx, caller, in.Type, in.ParentID); err != nil {
		return nil, err
	}

	owner := caller.UserID
	if caller.Privileged() && in.UserID != "" {
		owner = in.UserID
	}

	folder := &model.Folder{
		FolderID: uuid.NewString(),
		UserID:   owner,
		Name:     name,
		Type:     in.Type,
		ParentID: in.ParentID,
		JobID:    in.JobID,
		Metadata: in.Metadata,
	}
	if err := s.folders.Create(ctx, folder); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, mapRepoError(err)
	}

	s.logger.Info("Папка создана",
		slog.String("folder_id", folder.FolderID),
		slog.String("type", string(folder.Type)),
		slog.String("user_id", folder.UserID),
	)
	return folder, nil
}

// GetFolder возвращает папку с проверкой доступа.
func (s *FolderService) GetFolder(ctx context.Context, caller Caller, folderID string) (*model.Folder, error) {
	folder, err := s.folders.GetByID(ctx, folderID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if !caller.CanAccess(folder.UserID) {
		return nil, ErrForbidden
	}
	return folder, nil
}

// GetFolderByJob возвращает папку Cargo вакансии.
func (s *FolderService) GetFolderByJob(ctx context.Context, caller Caller, jobID string) (*model.Folder, error) {
	folder, err := s.folders.GetByJobID(ctx, jobID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if !caller.CanAccess(folder.UserID) {
		return nil, ErrForbidden
	}
	return folder, nil
}

// ListFolders возвращает папки. Соискатели видят только свои.
func (s *FolderService) ListFolders(ctx context.Context, caller Caller, filters repository.FolderListFilters, limit, offset int) ([]*model.Folder, int, error) {
	if !caller.Privileged() {
		filters.UserID = &caller.UserID
	}
	if filters.Type != nil && !model.FolderType(*filters.Type).Valid() {
		return nil, 0, fmt.Errorf("%w: недопустимый type %q", ErrValidation, *filters.Type)
	}
	items, err := s.folders.List(ctx, filters, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.folders.Count(ctx, filters)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// GetFolderTree возвращает поддерево папки. depth <= 0 — максимальная глубина.
func (s *FolderService) GetFolderTree(ctx context.Context, caller Caller, folderID string, depth int) (*model.FolderNode, error) {
	if depth <= 0 || depth > s.treeMaxDepth {
		depth = s.treeMaxDepth
	}

	flat, err := s.folders.GetSubtree(ctx, folderID, depth)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if !caller.CanAccess(flat[0].UserID) {
		return nil, ErrForbidden
	}
	return BuildTree(flat), nil
}

// BuildTree собирает дерево из плоского списка, упорядоченного по глубине.
// Первый элемент — корень.
func BuildTree(flat []*model.Folder) *model.FolderNode {
	if len(flat) == 0 {
		return nil
	}
	nodes := make(map[string]*model.FolderNode, len(flat))
	root := &model.FolderNode{Folder: *flat[0], Children: []*model.FolderNode{}}
	nodes[root.FolderID] = root

	for _, f := range flat[1:] {
		node := &model.FolderNode{Folder: *f, Children: []*model.FolderNode{}}
		nodes[f.FolderID] = node
		if f.ParentID == nil {
			continue
		}
		if parent, ok := nodes[*f.ParentID]; ok {
			parent.Children = append(parent.Children, node)
		}
	}
	return root
}

// UpdateFolder переименовывает, перемещает папку или меняет метаданные.
func (s *FolderService) UpdateFolder(ctx context.Context, caller Caller, folderID string, patch FolderPatch) (*model.Folder, error) {
	folder, err := s.GetFolder(ctx, caller, folderID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		name, err := validateFolderName(*patch.Name)
		if err != nil {
			return nil, err
		}
		folder.Name = name
	}

	if patch.Move {
		if patch.ParentID != nil {
			if *patch.ParentID == folder.FolderID {
				return nil, fmt.Errorf("%w: папка не может быть своим родителем", ErrConflict)
			}
			cycle, err := s.folders.IsDescendant(ctx, folder.FolderID, *patch.ParentID)
			if err != nil {
				return nil, err
			}
			if cycle {
				return nil, fmt.Errorf("%w: перемещение создаёт цикл", ErrConflict)
			}
		}
		if err := s.resolveParent(ctx, caller, folder.Type, patch.ParentID); err != nil {
			return nil, err
		}
		folder.ParentID = patch.ParentID
	}

	if patch.Metadata != nil {
		folder.Metadata = patch.Metadata
	}

	if err := s.folders.Update(ctx, folder); err != nil {
		return nil, mapRepoError(err)
	}
	return folder, nil
}

// LinkJob устанавливает или снимает (jobID == nil) связь папки Cargo с вакансией.
// Доступно только администраторам и сервисным аккаунтам.
func (s *FolderService) LinkJob(ctx context.Context, caller Caller, folderID string, jobID *string) (*model.Folder, error) {
	if !caller.Privileged() {
		return nil, ErrForbidden
	}
	folder, err := s.folders.GetByID(ctx, folderID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if folder.Type != model.FolderCargo {
		return nil, fmt.Errorf("%w: вакансию можно связать только с папкой CARGO", ErrValidation)
	}
	if err := s.folders.SetJobID(ctx, folderID, jobID); err != nil {
		return nil, mapRepoError(err)
	}
	folder.JobID = jobID
	return folder, nil
}

// DeleteFolder удаляет папку с поддеревом и документами. После коммита
// (best-effort) удаляются объекты S3, результаты обработки документов и,
// если sync, связанные вакансии.
// Возвращает количество удалённых папок.
func (s *FolderService) DeleteFolder(ctx context.Context, caller Caller, folderID string, sync bool) (int, error) {
	if _, err := s.GetFolder(ctx, caller, folderID); err != nil {
		return 0, err
	}

	deleted, err := s.folders.DeleteSubtree(ctx, folderID)
	if err != nil {
		return 0, mapRepoError(err)
	}

	s.logger.Info("Папка удалена",
		slog.String("folder_id", folderID),
		slog.Int("folders", len(deleted.FolderIDs)),
		slog.Int("documents", len(deleted.DocumentIDs)),
		slog.Int("cargo_links", len(deleted.CargoLinks)),
		slog.Bool("sync", sync),
	)

	s.cleanup(ctx, deleted, sync)
	return len(deleted.FolderIDs), nil
}

// cleanup выполняет удалённую часть удаления поддерева.
func (s *FolderService) cleanup(ctx context.Context, deleted *model.DeletedSubtree, sync bool) {
	syncCtx, cancel := detached(ctx)
	defer cancel()

	if len(deleted.S3Keys) > 0 && s.blobs != nil {
		if err := s.blobs.DeleteMany(syncCtx, deleted.S3Keys); err != nil {
			syncFailed(s.logger, SyncDeleteBlobs, err, slog.Int("keys", len(deleted.S3Keys)))
		}
	}
	if s.results != nil {
		for _, id := range deleted.ProcessingIDs {
			if err := s.results.DeleteResult(syncCtx, id); err != nil {
				syncFailed(s.logger, SyncDeleteResults, err, slog.String("processing_id", id))
			}
		}
	}

	if !sync || s.jobs == nil {
		return
	}
	for _, link := range deleted.CargoLinks {
		if err := s.jobs.DeleteJobByFolder(syncCtx, link.FolderID, link.JobID); err != nil {
			syncFailed(s.logger, SyncDeleteJob, err,
				slog.String("folder_id", link.FolderID), slog.String("job_id", link.JobID))
		}
	}
}

// BulkDeleteFolders удаляет несколько папок; результат — по каждому ID.
func (s *FolderService) BulkDeleteFolders(ctx context.Context, caller Caller, folderIDs []string, sync bool) ([]model.BulkDeleteResult, error) {
	if len(folderIDs) == 0 {
		return nil, fmt.Errorf("%w: список folderIds пуст", ErrValidation)
	}

	seen := make(map[string]struct{}, len(folderIDs))
	results := make([]model.BulkDeleteResult, 0, len(folderIDs))
	for _, id := range folderIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		res := model.BulkDeleteResult{FolderID: id}
		count, err := s.DeleteFolder(ctx, caller, id, sync)
		switch {
		case err == nil:
			res.Result = model.BulkDeleted
			res.DeletedCount = count
		case errors.Is(err, ErrNotFound):
			res.Result = model.BulkFolderNotFound
		case errors.Is(err, ErrForbidden):
			res.Result = model.BulkForbidden
		default:
			res.Result = model.BulkDeleteError
			s.logger.Error("Ошибка удаления папки",
				slog.String("folder_id", id), slog.String("error", err.Error()))
		}
		results = append(results, res)
	}
	return results, nil
}
