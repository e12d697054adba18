package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
)

// DocumentRepository — интерфейс CRUD для таблицы documents.
type DocumentRepository interface {
	Create(ctx context.Context, d *model.Document) error
	GetByID(ctx context.Context, documentID string) (*model.Document, error)
	ListByFolder(ctx context.Context, folderID string, limit, offset int) ([]*model.Document, error)
	CountByFolder(ctx context.Context, folderID string) (int, error)
	// UpdateStatus меняет статус документа; errMsg сохраняется в колонку error.
	UpdateStatus(ctx context.Context, documentID string, status model.DocumentStatus, errMsg *string) error
	// MarkProcessing переводит документ в PROCESSING и запоминает ID результата.
	MarkProcessing(ctx context.Context, documentID string, processingID *string) error
	// SaveResult сохраняет результат обработки документа.
	SaveResult(ctx context.Context, documentID string, update ResultUpdate) (*model.Document, error)
	// UpdateDecision устанавливает решение вручную.
	UpdateDecision(ctx context.Context, documentID string, decision model.Decision) (*model.Document, error)
	// Delete удаляет документ и возвращает удалённую запись.
	Delete(ctx context.Context, documentID string) (*model.Document, error)
}

// ResultUpdate — поля документа, обновляемые результатом обработки.
type ResultUpdate struct {
	Status       model.DocumentStatus
	Decision     *model.Decision
	DocumentType *string
	Result       *model.ProcessedResult
	Error        *string
}

// documentRepo — реализация DocumentRepository.
type documentRepo struct {
	db DBTX
}

// NewDocumentRepository создаёт репозиторий документов.
func NewDocumentRepository(db DBTX) DocumentRepository {
	return &documentRepo{db: db}
}

const documentColumns = `document_id, folder_id, user_id, file_name, content_type, size, s3_key,
	status, decision, document_type, processing_result, processing_id, error, created_at, updated_at`

// scanDocument сканирует строку в Document.
func scanDocument(row pgx.Row) (*model.Document, error) {
	d := &model.Document{}
	var result []byte
	err := row.Scan(
		&d.DocumentID, &d.FolderID, &d.UserID, &d.FileName, &d.ContentType, &d.Size, &d.S3Key,
		&d.Status, &d.Decision, &d.DocumentType, &result, &d.ProcessingID, &d.Error, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(result) > 0 {
		d.ProcessingResult = &model.ProcessedResult{}
		if err := json.Unmarshal(result, d.ProcessingResult); err != nil {
			return nil, fmt.Errorf("декодирование результата обработки: %w", err)
		}
	}
	return d, nil
}

func (r *documentRepo) Create(ctx context.Context, d *model.Document) error {
	query := `
		INSERT INTO documents (document_id, folder_id, user_id, file_name, content_type, size, s3_key, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		d.DocumentID, d.FolderID, d.UserID, d.FileName, d.ContentType, d.Size, d.S3Key, d.Status,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: документ с таким ключом уже существует", ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: папка документа", ErrNotFound)
		}
		return fmt.Errorf("ошибка создания документа: %w", err)
	}
	return nil
}

func (r *documentRepo) GetByID(ctx context.Context, documentID string) (*model.Document, error) {
	d, err := scanDocument(r.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE document_id = $1`, documentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения документа: %w", err)
	}
	return d, nil
}

func (r *documentRepo) ListByFolder(ctx context.Context, folderID string, limit, offset int) ([]*model.Document, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE folder_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, folderID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка документов: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования документа: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *documentRepo) CountByFolder(ctx context.Context, folderID string) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM documents WHERE folder_id = $1`, folderID).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта документов: %w", err)
	}
	return count, nil
}

func (r *documentRepo) UpdateStatus(ctx context.Context, documentID string, status model.DocumentStatus, errMsg *string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE documents SET status = $2, error = $3 WHERE document_id = $1`, documentID, status, errMsg)
	if err != nil {
		return fmt.Errorf("ошибка обновления статуса документа: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *documentRepo) MarkProcessing(ctx context.Context, documentID string, processingID *string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE documents
		SET status = $2, processing_id = COALESCE($3, processing_id), error = NULL
		WHERE document_id = $1`, documentID, model.DocumentProcessing, processingID)
	if err != nil {
		return fmt.Errorf("ошибка обновления статуса документа: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *documentRepo) SaveResult(ctx context.Context, documentID string, update ResultUpdate) (*model.Document, error) {
	var (
		payload      []byte
		processingID *string
	)
	if update.Result != nil {
		var err error
		if payload, err = json.Marshal(update.Result); err != nil {
			return nil, fmt.Errorf("кодирование результата обработки: %w", err)
		}
		if update.Result.DocumentID != "" {
			processingID = &update.Result.DocumentID
		}
	}

	query := `
		UPDATE documents
		SET status = $2, decision = $3, document_type = $4, processing_result = $5, error = $6,
			processing_id = COALESCE($7, processing_id)
		WHERE document_id = $1
		RETURNING ` + documentColumns

	d, err := scanDocument(r.db.QueryRow(ctx, query,
		documentID, update.Status, update.Decision, update.DocumentType, payload, update.Error, processingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка сохранения результата обработки: %w", err)
	}
	return d, nil
}

func (r *documentRepo) UpdateDecision(ctx context.Context, documentID string, decision model.Decision) (*model.Document, error) {
	query := `
		UPDATE documents SET decision = $2
		WHERE document_id = $1
		RETURNING ` + documentColumns

	d, err := scanDocument(r.db.QueryRow(ctx, query, documentID, decision))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления решения: %w", err)
	}
	return d, nil
}

func (r *documentRepo) Delete(ctx context.Context, documentID string) (*model.Document, error) {
	d, err := scanDocument(r.db.QueryRow(ctx,
		`DELETE FROM documents WHERE document_id = $1 RETURNING `+documentColumns, documentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка удаления документа: %w", err)
	}
	return d, nil
}
