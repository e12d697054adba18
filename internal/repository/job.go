package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
)

// JobRepository — интерфейс CRUD для таблицы jobs.
type JobRepository interface {
	// Create создаёт вакансию.
	Create(ctx context.Context, j *model.JobPosting) error
	// GetByID возвращает вакансию по UUID.
	GetByID(ctx context.Context, jobID string) (*model.JobPosting, error)
	// GetByFolderID возвращает вакансию, связанную с папкой Cargo.
	GetByFolderID(ctx context.Context, folderID string) (*model.JobPosting, error)
	// List возвращает список вакансий с фильтрацией.
	List(ctx context.Context, filters JobListFilters, limit, offset int) ([]*model.JobPosting, error)
	// Count возвращает количество вакансий с фильтрацией.
	Count(ctx context.Context, filters JobListFilters) (int, error)
	// Update обновляет изменяемые поля вакансии.
	Update(ctx context.Context, j *model.JobPosting) error
	// SetFolderID сохраняет ID папки Cargo.
	SetFolderID(ctx context.Context, jobID string, folderID *string) error
	// ListMissingFolder возвращает вакансии без папки Cargo (для reconciler).
	ListMissingFolder(ctx context.Context, limit int) ([]*model.JobPosting, error)
	// DeleteWithApplications удаляет вакансию и её отклики в одной транзакции.
	// Возвращает удалённую вакансию и количество удалённых откликов.
	DeleteWithApplications(ctx context.Context, jobID string) (*model.JobPosting, int, error)
	// DeleteByFolderID удаляет вакансию jobID, если она связана с папкой
	// folderID, вместе с откликами.
	DeleteByFolderID(ctx context.Context, folderID, jobID string) (*model.JobPosting, int, error)
}

// JobListFilters — фильтры для списка вакансий.
type JobListFilters struct {
	Status      *string
	CompanyName *string
	// OpenOnly — только PUBLISHED с неистёкшим сроком
	OpenOnly bool
}

// jobRepo — реализация JobRepository.
type jobRepo struct {
	db DBTX
}

// NewJobRepository создаёт репозиторий вакансий.
func NewJobRepository(db DBTX) JobRepository {
	return &jobRepo{db: db}
}

const jobColumns = `job_id, title, description, company_name, location, employment_type,
	salary, requirements, status, folder_id, expires_at, created_by, created_at, updated_at`

// scanJob сканирует строку в JobPosting.
func scanJob(row pgx.Row) (*model.JobPosting, error) {
	j := &model.JobPosting{}
	err := row.Scan(
		&j.JobID, &j.Title, &j.Description, &j.CompanyName, &j.Location, &j.EmploymentType,
		&j.Salary, &j.Requirements, &j.Status, &j.FolderID, &j.ExpiresAt, &j.CreatedBy,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if j.Requirements == nil {
		j.Requirements = []string{}
	}
	return j, nil
}

func (r *jobRepo) Create(ctx context.Context, j *model.JobPosting) error {
	query := `
		INSERT INTO jobs (job_id, title, description, company_name, location, employment_type,
			salary, requirements, status, folder_id, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		j.JobID, j.Title, j.Description, j.CompanyName, j.Location, j.EmploymentType,
		j.Salary, j.Requirements, j.Status, j.FolderID, j.ExpiresAt, j.CreatedBy,
	).Scan(&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: вакансия с таким ID или папкой уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания вакансии: %w", err)
	}
	return nil
}

func (r *jobRepo) GetByID(ctx context.Context, jobID string) (*model.JobPosting, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	j, err := scanJob(r.db.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения вакансии: %w", err)
	}
	return j, nil
}

func (r *jobRepo) GetByFolderID(ctx context.Context, folderID string) (*model.JobPosting, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE folder_id = $1`

	j, err := scanJob(r.db.QueryRow(ctx, query, folderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения вакансии по папке: %w", err)
	}
	return j, nil
}

// buildJobWhere строит WHERE-условие и аргументы для фильтрации вакансий.
func buildJobWhere(filters JobListFilters) *whereBuilder {
	b := &whereBuilder{}
	if filters.Status != nil {
		b.add("status = ?", *filters.Status)
	}
	if filters.CompanyName != nil {
		b.add("company_name = ?", *filters.CompanyName)
	}
	if filters.OpenOnly {
		b.addRaw("status = 'PUBLISHED' AND (expires_at IS NULL OR expires_at > now())")
	}
	return b
}

func (r *jobRepo) List(ctx context.Context, filters JobListFilters, limit, offset int) ([]*model.JobPosting, error) {
	b := buildJobWhere(filters)
	argNum := b.nextArg()
	where, args := b.build()

	query := fmt.Sprintf(`
		SELECT %s
		FROM jobs
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, jobColumns, where, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка вакансий: %w", err)
	}
	defer rows.Close()

	result := make([]*model.JobPosting, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования вакансии: %w", err)
		}
		result = append(result, j)
	}
	return result, rows.Err()
}

func (r *jobRepo) Count(ctx context.Context, filters JobListFilters) (int, error) {
	where, args := buildJobWhere(filters).build()
	query := fmt.Sprintf(`SELECT COUNT(*) FROM jobs %s`, where)

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта вакансий: %w", err)
	}
	return count, nil
}

func (r *jobRepo) Update(ctx context.Context, j *model.JobPosting) error {
	query := `
		UPDATE jobs
		SET title = $2, description = $3, company_name = $4, location = $5,
			employment_type = $6, salary = $7, requirements = $8, status = $9, expires_at = $10
		WHERE job_id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		j.JobID, j.Title, j.Description, j.CompanyName, j.Location,
		j.EmploymentType, j.Salary, j.Requirements, j.Status, j.ExpiresAt,
	).Scan(&j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления вакансии: %w", err)
	}
	return nil
}

func (r *jobRepo) SetFolderID(ctx context.Context, jobID string, folderID *string) error {
	tag, err := r.db.Exec(ctx, `UPDATE jobs SET folder_id = $2 WHERE job_id = $1`, jobID, folderID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: папка уже связана с другой вакансией", ErrConflict)
		}
		return fmt.Errorf("ошибка сохранения папки вакансии: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *jobRepo) ListMissingFolder(ctx context.Context, limit int) ([]*model.JobPosting, error) {
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE folder_id IS NULL
		ORDER BY created_at
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения вакансий без папки: %w", err)
	}
	defer rows.Close()

	var result []*model.JobPosting
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования вакансии: %w", err)
		}
		result = append(result, j)
	}
	return result, rows.Err()
}

func (r *jobRepo) DeleteWithApplications(ctx context.Context, jobID string) (*model.JobPosting, int, error) {
	return r.deleteJob(ctx, "job_id = $1", jobID)
}

func (r *jobRepo) DeleteByFolderID(ctx context.Context, folderID, jobID string) (*model.JobPosting, int, error) {
	return r.deleteJob(ctx, "folder_id = $1 AND job_id = $2", folderID, jobID)
}

// deleteJob удаляет вакансию по условию where вместе с откликами.
// where — константа из кода, не пользовательский ввод.
func (r *jobRepo) deleteJob(ctx context.Context, where string, args ...any) (*model.JobPosting, int, error) {
	var (
		job     *model.JobPosting
		deleted int
	)

	err := runInTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		job, err = scanJob(tx.QueryRow(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE `+where+` FOR UPDATE`, args...))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("ошибка блокировки вакансии: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM applications WHERE job_id = $1`, job.JobID)
		if err != nil {
			return fmt.Errorf("ошибка удаления откликов вакансии: %w", err)
		}
		deleted = int(tag.RowsAffected())

		if _, err := tx.Exec(ctx, `DELETE FROM jobs WHERE job_id = $1`, job.JobID); err != nil {
			return fmt.Errorf("ошибка удаления вакансии: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return job, deleted, nil
}
