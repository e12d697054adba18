package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
)

// FolderRepository — интерфейс доступа к дереву папок.
type FolderRepository interface {
	// Create создаёт папку. Дубликат имени среди соседей или jobId — ErrConflict.
	Create(ctx context.Context, f *model.Folder) error
	GetByID(ctx context.Context, folderID string) (*model.Folder, error)
	// GetByJobID возвращает папку Cargo, связанную с вакансией.
	GetByJobID(ctx context.Context, jobID string) (*model.Folder, error)
	List(ctx context.Context, filters FolderListFilters, limit, offset int) ([]*model.Folder, error)
	Count(ctx context.Context, filters FolderListFilters) (int, error)
	// GetSubtree возвращает поддерево (включая корень) не глубже maxDepth,
	// упорядоченное по глубине. Глубина корня — 0.
	GetSubtree(ctx context.Context, rootID string, maxDepth int) ([]*model.Folder, error)
	// IsDescendant проверяет, лежит ли candidateID в поддереве ancestorID
	// (сама папка считается своим потомком).
	IsDescendant(ctx context.Context, ancestorID, candidateID string) (bool, error)
	// Update сохраняет имя, родителя и метаданные.
	Update(ctx context.Context, f *model.Folder) error
	// SetJobID устанавливает или снимает связь с вакансией.
	SetJobID(ctx context.Context, folderID string, jobID *string) error
	// DeleteSubtree удаляет папку с поддеревом и документами в одной транзакции.
	DeleteSubtree(ctx context.Context, rootID string) (*model.DeletedSubtree, error)
}

// FolderListFilters — фильтры для списка папок.
type FolderListFilters struct {
	UserID   *string
	ParentID *string
	Type     *string
	// RootOnly — только папки верхнего уровня (parent_id IS NULL)
	RootOnly bool
}

// folderRepo — реализация FolderRepository.
type folderRepo struct {
	db DBTX
}

// NewFolderRepository создаёт репозиторий папок.
func NewFolderRepository(db DBTX) FolderRepository {
	return &folderRepo{db: db}
}

const folderColumns = `folder_id, user_id, name, type, parent_id, job_id, metadata, created_at, updated_at`

// scanFolder сканирует строку в Folder.
func scanFolder(row pgx.Row) (*model.Folder, error) {
	f := &model.Folder{}
	var metadata []byte
	err := row.Scan(
		&f.FolderID, &f.UserID, &f.Name, &f.Type, &f.ParentID, &f.JobID, &metadata,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := decodeMetadata(metadata, &f.Metadata); err != nil {
		return nil, err
	}
	return f, nil
}

func decodeMetadata(raw []byte, dst *map[string]any) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("декодирование metadata: %w", err)
		}
	}
	if *dst == nil {
		*dst = map[string]any{}
	}
	return nil
}

func encodeMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("кодирование metadata: %w", err)
	}
	return data, nil
}

func (r *folderRepo) Create(ctx context.Context, f *model.Folder) error {
	metadata, err := encodeMetadata(f.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO folders (folder_id, user_id, name, type, parent_id, job_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		f.FolderID, f.UserID, f.Name, f.Type, f.ParentID, f.JobID, metadata,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: папка с таким именем или вакансией уже существует", ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: родительская папка", ErrNotFound)
		}
		return fmt.Errorf("ошибка создания папки: %w", err)
	}
	if f.Metadata == nil {
		f.Metadata = map[string]any{}
	}
	return nil
}

func (r *folderRepo) GetByID(ctx context.Context, folderID string) (*model.Folder, error) {
	f, err := scanFolder(r.db.QueryRow(ctx, `SELECT `+folderColumns+` FROM folders WHERE folder_id = $1`, folderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения папки: %w", err)
	}
	return f, nil
}

func (r *folderRepo) GetByJobID(ctx context.Context, jobID string) (*model.Folder, error) {
	f, err := scanFolder(r.db.QueryRow(ctx, `SELECT `+folderColumns+` FROM folders WHERE job_id = $1`, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения папки по вакансии: %w", err)
	}
	return f, nil
}

func buildFolderWhere(filters FolderListFilters) *whereBuilder {
	b := &whereBuilder{}
	if filters.UserID != nil {
		b.add("user_id = ?", *filters.UserID)
	}
	if filters.ParentID != nil {
		b.add("parent_id = ?", *filters.ParentID)
	}
	if filters.Type != nil {
		b.add("type = ?", *filters.Type)
	}
	if filters.RootOnly {
		b.addRaw("parent_id IS NULL")
	}
	return b
}

func (r *folderRepo) List(ctx context.Context, filters FolderListFilters, limit, offset int) ([]*model.Folder, error) {
	b := buildFolderWhere(filters)
	argNum := b.nextArg()
	where, args := b.build()

	query := fmt.Sprintf(`
		SELECT %s
		FROM folders
		%s
		ORDER BY lower(name), folder_id
		LIMIT $%d OFFSET $%d`, folderColumns, where, argNum, argNum+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка папок: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Folder, 0)
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования папки: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (r *folderRepo) Count(ctx context.Context, filters FolderListFilters) (int, error) {
	where, args := buildFolderWhere(filters).build()

	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM folders `+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта папок: %w", err)
	}
	return count, nil
}

func (r *folderRepo) GetSubtree(ctx context.Context, rootID string, maxDepth int) ([]*model.Folder, error) {
	query := `
		WITH RECURSIVE subtree AS (
			SELECT folder_id, 0 AS depth FROM folders WHERE folder_id = $1
			UNION ALL
			SELECT f.folder_id, s.depth + 1
			FROM folders f
			JOIN subtree s ON f.parent_id = s.folder_id
			WHERE s.depth < $2
		)
		SELECT ` + prefixColumns("f", folderColumns) + `
		FROM folders f
		JOIN subtree s ON s.folder_id = f.folder_id
		ORDER BY s.depth, lower(f.name)`

	rows, err := r.db.Query(ctx, query, rootID, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения поддерева: %w", err)
	}
	defer rows.Close()

	var result []*model.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования папки: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}

func (r *folderRepo) IsDescendant(ctx context.Context, ancestorID, candidateID string) (bool, error) {
	query := `
		WITH RECURSIVE subtree AS (
			SELECT folder_id FROM folders WHERE folder_id = $1
			UNION ALL
			SELECT f.folder_id FROM folders f JOIN subtree s ON f.parent_id = s.folder_id
		)
		SELECT EXISTS (SELECT 1 FROM subtree WHERE folder_id = $2)`

	var found bool
	if err := r.db.QueryRow(ctx, query, ancestorID, candidateID).Scan(&found); err != nil {
		return false, fmt.Errorf("ошибка проверки вложенности папок: %w", err)
	}
	return found, nil
}

func (r *folderRepo) Update(ctx context.Context, f *model.Folder) error {
	metadata, err := encodeMetadata(f.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE folders
		SET name = $2, parent_id = $3, metadata = $4
		WHERE folder_id = $1
		RETURNING updated_at`

	err = r.db.QueryRow(ctx, query, f.FolderID, f.Name, f.ParentID, metadata).Scan(&f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: папка с таким именем уже существует", ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: родительская папка", ErrNotFound)
		}
		return fmt.Errorf("ошибка обновления папки: %w", err)
	}
	return nil
}

func (r *folderRepo) SetJobID(ctx context.Context, folderID string, jobID *string) error {
	tag, err := r.db.Exec(ctx, `UPDATE folders SET job_id = $2 WHERE folder_id = $1`, folderID, jobID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: вакансия уже связана с другой папкой", ErrConflict)
		}
		return fmt.Errorf("ошибка связывания папки с вакансией: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *folderRepo) DeleteSubtree(ctx context.Context, rootID string) (*model.DeletedSubtree, error) {
	deleted := &model.DeletedSubtree{}

	err := runInTx(ctx, r.db, func(tx pgx.Tx) error {
		var locked string
		err := tx.QueryRow(ctx, `SELECT folder_id FROM folders WHERE folder_id = $1 FOR UPDATE`, rootID).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("ошибка блокировки папки: %w", err)
		}

		// Папки поддерева и связи Cargo → вакансия
		rows, err := tx.Query(ctx, `
			WITH RECURSIVE subtree AS (
				SELECT folder_id, type, job_id FROM folders WHERE folder_id = $1
				UNION ALL
				SELECT f.folder_id, f.type, f.job_id
				FROM folders f JOIN subtree s ON f.parent_id = s.folder_id
			)
			SELECT folder_id, type, job_id FROM subtree`, rootID)
		if err != nil {
			return fmt.Errorf("ошибка обхода поддерева: %w", err)
		}
		for rows.Next() {
			var (
				id    string
				ftype model.FolderType
				jobID *string
			)
			if err := rows.Scan(&id, &ftype, &jobID); err != nil {
				rows.Close()
				return fmt.Errorf("ошибка сканирования поддерева: %w", err)
			}
			deleted.FolderIDs = append(deleted.FolderIDs, id)
			if ftype == model.FolderCargo && jobID != nil {
				deleted.CargoLinks = append(deleted.CargoLinks, model.CargoLink{FolderID: id, JobID: *jobID})
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		// Документы поддерева (для очистки S3 и docproc после коммита)
		docRows, err := tx.Query(ctx,
			`SELECT document_id, s3_key, processing_id FROM documents WHERE folder_id = ANY($1)`, deleted.FolderIDs)
		if err != nil {
			return fmt.Errorf("ошибка получения документов поддерева: %w", err)
		}
		for docRows.Next() {
			var (
				id, key      string
				processingID *string
			)
			if err := docRows.Scan(&id, &key, &processingID); err != nil {
				docRows.Close()
				return fmt.Errorf("ошибка сканирования документа: %w", err)
			}
			deleted.DocumentIDs = append(deleted.DocumentIDs, id)
			deleted.S3Keys = append(deleted.S3Keys, key)
			if processingID != nil && *processingID != "" {
				deleted.ProcessingIDs = append(deleted.ProcessingIDs, *processingID)
			}
		}
		docRows.Close()
		if err := docRows.Err(); err != nil {
			return err
		}

		// Дочерние папки и документы удаляются каскадно
		if _, err := tx.Exec(ctx, `DELETE FROM folders WHERE folder_id = $1`, rootID); err != nil {
			return fmt.Errorf("ошибка удаления папки: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}
