package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
)

// FormRepository — интерфейс CRUD для таблиц forms и form_submissions.
type FormRepository interface {
	Create(ctx context.Context, f *model.Form) error
	GetByID(ctx context.Context, formID string) (*model.Form, error)
	List(ctx context.Context, filters FormListFilters, limit, offset int) ([]*model.Form, error)
	Count(ctx context.Context, filters FormListFilters) (int, error)
	Update(ctx context.Context, f *model.Form) error
	Delete(ctx context.Context, formID string) error

	// CreateSubmission сохраняет ответ. Повторный ответ пользователя — ErrConflict.
	CreateSubmission(ctx context.Context, s *model.FormSubmission) error
	// ListSubmissions возвращает ответы на форму.
	ListSubmissions(ctx context.Context, formID string, limit, offset int) ([]*model.FormSubmission, error)
	// CountSubmissions возвращает количество ответов на форму.
	CountSubmissions(ctx context.Context, formID string) (int, error)
}

// FormListFilters — фильтры для списка форм.
type FormListFilters struct {
	JobID  *string
	Status *string
}

// formRepo — реализация FormRepository.
type formRepo struct {
	db DBTX
}

// NewFormRepository создаёт репозиторий форм.
func NewFormRepository(db DBTX) FormRepository {
	return &formRepo{db: db}
}

const formColumns = `form_id, job_id, title, description, status, fields, created_by, created_at, updated_at`

// scanForm сканирует строку в Form. Поля формы хранятся в JSONB.
func scanForm(row pgx.Row) (*model.Form, error) {
	f := &model.Form{}
	var fields []byte
	err := row.Scan(
		&f.FormID, &f.JobID, &f.Title, &f.Description, &f.Status, &fields,
		&f.CreatedBy, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields, &f.Fields); err != nil {
		return nil, fmt.Errorf("декодирование полей формы: %w", err)
	}
	if f.Fields == nil {
		f.Fields = []model.FormField{}
	}
	return f, nil
}

func (r *formRepo) Create(ctx context.Context, f *model.Form) error {
	fields, err := json.Marshal(f.Fields)
	if err != nil {
		return fmt.Errorf("кодирование полей формы: %w", err)
	}

	query := `
		INSERT INTO forms (form_id, job_id, title, description, status, fields, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		f.FormID, f.JobID, f.Title, f.Description, f.Status, fields, f.CreatedBy,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: форма с таким ID уже существует", ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: вакансия формы", ErrNotFound)
		}
		return fmt.Errorf("ошибка создания формы: %w", err)
	}
	return nil
}

func (r *formRepo) GetByID(ctx context.Context, formID string) (*model.Form, error) {
	f, err := scanForm(r.db.QueryRow(ctx, `SELECT `+formColumns+` FROM forms WHERE form_id = $1`, formID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения формы: %w", err)
	}
	return f, nil
}

func buildFormWhere(filters FormListFilters) *whereBuilder {
	b := &whereBuilder{}
	if filters.JobID != nil {
		b.add("job_id = ?", *filters.JobID)
	}
	if filters.Status != nil {
		b.add("status = ?", *filters.Status)
	}
	return b
}

func (r *formRepo) List(ctx context.Context, filters FormListFilters, limit, offset int) ([]*model.Form, error) {
	b := buildFormWhere(filters)
	argNum := b.nextArg()
	where, args := b.build()

	query := fmt.Sprintf(`
		SELECT %s
		FROM forms
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, formColumns, where, argNum, argNum+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка форм: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Form, 0)
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования формы: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (r *formRepo) Count(ctx context.Context, filters FormListFilters) (int, error) {
	where, args := buildFormWhere(filters).build()

	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM forms `+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта форм: %w", err)
	}
	return count, nil
}

func (r *formRepo) Update(ctx context.Context, f *model.Form) error {
	fields, err := json.Marshal(f.Fields)
	if err != nil {
		return fmt.Errorf("кодирование полей формы: %w", err)
	}

	query := `
		UPDATE forms
		SET job_id = $2, title = $3, description = $4, status = $5, fields = $6
		WHERE form_id = $1
		RETURNING updated_at`

	err = r.db.QueryRow(ctx, query, f.FormID, f.JobID, f.Title, f.Description, f.Status, fields).Scan(&f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: вакансия формы", ErrNotFound)
		}
		return fmt.Errorf("ошибка обновления формы: %w", err)
	}
	return nil
}

func (r *formRepo) Delete(ctx context.Context, formID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM forms WHERE form_id = $1`, formID)
	if err != nil {
		return fmt.Errorf("ошибка удаления формы: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *formRepo) CreateSubmission(ctx context.Context, s *model.FormSubmission) error {
	answers, err := json.Marshal(s.Answers)
	if err != nil {
		return fmt.Errorf("кодирование ответов: %w", err)
	}

	query := `
		INSERT INTO form_submissions (submission_id, form_id, user_id, answers)
		VALUES ($1, $2, $3, $4)
		RETURNING submitted_at`

	err = r.db.QueryRow(ctx, query, s.SubmissionID, s.FormID, s.UserID, answers).Scan(&s.SubmittedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: пользователь уже ответил на форму", ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка сохранения ответа: %w", err)
	}
	return nil
}

func (r *formRepo) ListSubmissions(ctx context.Context, formID string, limit, offset int) ([]*model.FormSubmission, error) {
	query := `
		SELECT submission_id, form_id, user_id, answers, submitted_at
		FROM form_submissions
		WHERE form_id = $1
		ORDER BY submitted_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, formID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ответов: %w", err)
	}
	defer rows.Close()

	result := make([]*model.FormSubmission, 0)
	for rows.Next() {
		s := &model.FormSubmission{}
		var answers []byte
		if err := rows.Scan(&s.SubmissionID, &s.FormID, &s.UserID, &answers, &s.SubmittedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования ответа: %w", err)
		}
		if err := json.Unmarshal(answers, &s.Answers); err != nil {
			return nil, fmt.Errorf("декодирование ответов: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *formRepo) CountSubmissions(ctx context.Context, formID string) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM form_submissions WHERE form_id = $1`, formID).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта ответов: %w", err)
	}
	return count, nil
}
