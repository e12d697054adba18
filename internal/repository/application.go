package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
)

// ApplicationRepository — интерфейс CRUD для таблицы applications.
type ApplicationRepository interface {
	// Create создаёт отклик. Повторный отклик на ту же вакансию — ErrConflict.
	Create(ctx context.Context, a *model.Application) error
	// GetByID возвращает отклик по UUID.
	GetByID(ctx context.Context, applicationID string) (*model.Application, error)
	// List возвращает список откликов с фильтрацией.
	List(ctx context.Context, filters ApplicationListFilters, limit, offset int) ([]*model.Application, error)
	// Count возвращает количество откликов с фильтрацией.
	Count(ctx context.Context, filters ApplicationListFilters) (int, error)
	// Update обновляет описание и документы отклика.
	Update(ctx context.Context, a *model.Application) error
	// UpdateStatus меняет статус, если текущий статус равен from.
	// Возвращает ErrStale, если статус изменился параллельно.
	UpdateStatus(ctx context.Context, applicationID string, from, to model.ApplicationStatus) (*model.Application, error)
	// SetFolderID сохраняет ID папки соискателя.
	SetFolderID(ctx context.Context, applicationID string, folderID *string) error
	// ListMissingFolder возвращает отклики без папки соискателя (для reconciler).
	ListMissingFolder(ctx context.Context, limit int) ([]*model.Application, error)
	// Delete удаляет отклик.
	Delete(ctx context.Context, applicationID string) error
}

// ApplicationListFilters — фильтры для списка откликов.
type ApplicationListFilters struct {
	UserID *string
	JobID  *string
	Status *string
}

// applicationRepo — реализация ApplicationRepository.
type applicationRepo struct {
	db DBTX
}

// NewApplicationRepository создаёт репозиторий откликов.
func NewApplicationRepository(db DBTX) ApplicationRepository {
	return &applicationRepo{db: db}
}

const applicationColumns = `application_id, user_id, job_id, status, description, documents,
	folder_id, applicant_name, applicant_email, created_at, updated_at`

// scanApplication сканирует строку в Application.
func scanApplication(row pgx.Row) (*model.Application, error) {
	a := &model.Application{}
	err := row.Scan(
		&a.ApplicationID, &a.UserID, &a.JobID, &a.Status, &a.Description, &a.Documents,
		&a.FolderID, &a.ApplicantName, &a.ApplicantEmail, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if a.Documents == nil {
		a.Documents = []string{}
	}
	return a, nil
}

func (r *applicationRepo) Create(ctx context.Context, a *model.Application) error {
	query := `
		INSERT INTO applications (application_id, user_id, job_id, status, description,
			documents, folder_id, applicant_name, applicant_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		a.ApplicationID, a.UserID, a.JobID, a.Status, a.Description,
		a.Documents, a.FolderID, a.ApplicantName, a.ApplicantEmail,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: отклик на эту вакансию уже существует", ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: вакансия %s", ErrNotFound, a.JobID)
		}
		return fmt.Errorf("ошибка создания отклика: %w", err)
	}
	return nil
}

func (r *applicationRepo) GetByID(ctx context.Context, applicationID string) (*model.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE application_id = $1`

	a, err := scanApplication(r.db.QueryRow(ctx, query, applicationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения отклика: %w", err)
	}
	return a, nil
}

// buildApplicationWhere строит WHERE-условие для фильтрации откликов.
func buildApplicationWhere(filters ApplicationListFilters) *whereBuilder {
	b := &whereBuilder{}
	if filters.UserID != nil {
		b.add("user_id = ?", *filters.UserID)
	}
	if filters.JobID != nil {
		b.add("job_id = ?", *filters.JobID)
	}
	if filters.Status != nil {
		b.add("status = ?", *filters.Status)
	}
	return b
}

func (r *applicationRepo) List(ctx context.Context, filters ApplicationListFilters, limit, offset int) ([]*model.Application, error) {
	b := buildApplicationWhere(filters)
	argNum := b.nextArg()
	where, args := b.build()

	query := fmt.Sprintf(`
		SELECT %s
		FROM applications
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, applicationColumns, where, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка откликов: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Application, 0)
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования отклика: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *applicationRepo) Count(ctx context.Context, filters ApplicationListFilters) (int, error) {
	where, args := buildApplicationWhere(filters).build()

	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM applications `+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта откликов: %w", err)
	}
	return count, nil
}

func (r *applicationRepo) Update(ctx context.Context, a *model.Application) error {
	query := `
		UPDATE applications
		SET description = $2, documents = $3
		WHERE application_id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query, a.ApplicationID, a.Description, a.Documents).Scan(&a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления отклика: %w", err)
	}
	return nil
}

func (r *applicationRepo) UpdateStatus(ctx context.Context, applicationID string, from, to model.ApplicationStatus) (*model.Application, error) {
	query := `
		UPDATE applications
		SET status = $3
		WHERE application_id = $1 AND status = $2
		RETURNING ` + applicationColumns

	a, err := scanApplication(r.db.QueryRow(ctx, query, applicationID, from, to))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Различаем отсутствие записи и параллельное изменение статуса
			if _, getErr := r.GetByID(ctx, applicationID); errors.Is(getErr, ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, ErrStale
		}
		return nil, fmt.Errorf("ошибка смены статуса отклика: %w", err)
	}
	return a, nil
}

func (r *applicationRepo) SetFolderID(ctx context.Context, applicationID string, folderID *string) error {
	tag, err := r.db.Exec(ctx, `UPDATE applications SET folder_id = $2 WHERE application_id = $1`, applicationID, folderID)
	if err != nil {
		return fmt.Errorf("ошибка сохранения папки отклика: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *applicationRepo) ListMissingFolder(ctx context.Context, limit int) ([]*model.Application, error) {
	query := `SELECT ` + applicationColumns + `
		FROM applications
		WHERE folder_id IS NULL
		ORDER BY created_at
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения откликов без папки: %w", err)
	}
	defer rows.Close()

	var result []*model.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования отклика: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *applicationRepo) Delete(ctx context.Context, applicationID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM applications WHERE application_id = $1`, applicationID)
	if err != nil {
		return fmt.Errorf("ошибка удаления отклика: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
