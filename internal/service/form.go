package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/repository"
)

// FormInput — поля создаваемой формы.
type FormInput struct {
	JobID       *string
	Title       string
	Description string
	Status      model.FormStatus
	Fields      []model.FormField
}

// FormPatch — частичное обновление формы.
type FormPatch struct {
	JobID       *string
	Title       *string
	Description *string
	Status      *model.FormStatus
	Fields      *[]model.FormField
}

// FormService — бизнес-логика форм и ответов.
type FormService struct {
	forms  repository.FormRepository
	logger *slog.Logger
}

// NewFormService создаёт сервис форм.
func NewFormService(forms repository.FormRepository, logger *slog.Logger) *FormService {
	return &FormService{
		forms:  forms,
		logger: logger.With(slog.String("component", "form_service")),
	}
}

// validateForm проверяет заголовок, статус и поля формы.
func validateForm(f *model.Form) error {
	if strings.TrimSpace(f.Title) == "" {
		return fmt.Errorf("%w: title обязателен", ErrValidation)
	}
	if !f.Status.Valid() {
		return fmt.Errorf("%w: недопустимый status %q", ErrValidation, f.Status)
	}
	ids := make(map[string]struct{}, len(f.Fields))
	for i, field := range f.Fields {
		if field.ID == "" {
			return fmt.Errorf("%w: fields[%d].id обязателен", ErrValidation, i)
		}
		if _, dup := ids[field.ID]; dup {
			return fmt.Errorf("%w: повторяющийся id поля %q", ErrValidation, field.ID)
		}
		ids[field.ID] = struct{}{}
		if !field.Type.Valid() {
			return fmt.Errorf("%w: недопустимый тип поля %q", ErrValidation, field.Type)
		}
		if field.Type == model.FieldSelect && len(field.Options) == 0 {
			return fmt.Errorf("%w: поле %q типа select без options", ErrValidation, field.ID)
		}
	}
	return nil
}

// CreateForm создаёт форму.
func (s *FormService) CreateForm(ctx context.Context, caller Caller, in FormInput) (*model.Form, error) {
	f := &model.Form{
		FormID:      uuid.NewString(),
		JobID:       in.JobID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Status:      in.Status,
		Fields:      in.Fields,
		CreatedBy:   caller.UserID,
	}
	if f.Status == "" {
		f.Status = model.FormDraft
	}
	if f.Fields == nil {
		f.Fields = []model.FormField{}
	}
	if err := validateForm(f); err != nil {
		return nil, err
	}
	if err := s.forms.Create(ctx, f); err != nil {
		return nil, mapRepoError(err)
	}
	s.logger.Info("Форма создана", slog.String("form_id", f.FormID))
	return f, nil
}

// ListForms возвращает формы с фильтрацией и общее количество.
func (s *FormService) ListForms(ctx context.Context, filters repository.FormListFilters, limit, offset int) ([]*model.Form, int, error) {
	items, err := s.forms.List(ctx, filters, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.forms.Count(ctx, filters)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// GetForm возвращает форму. Не-администраторы видят только опубликованные.
func (s *FormService) GetForm(ctx context.Context, caller Caller, formID string) (*model.Form, error) {
	f, err := s.forms.GetByID(ctx, formID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if !caller.Privileged() && f.Status != model.FormPublished {
		return nil, ErrNotFound
	}
	return f, nil
}

// UpdateForm применяет частичное обновление формы.
func (s *FormService) UpdateForm(ctx context.Context, formID string, patch FormPatch) (*model.Form, error) {
	f, err := s.forms.GetByID(ctx, formID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if patch.JobID != nil {
		if *patch.JobID == "" {
			f.JobID = nil
		} else {
			f.JobID = patch.JobID
		}
	}
	if patch.Title != nil {
		f.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		f.Description = *patch.Description
	}
	if patch.Status != nil {
		f.Status = *patch.Status
	}
	if patch.Fields != nil {
		f.Fields = *patch.Fields
	}
	if err := validateForm(f); err != nil {
		return nil, err
	}
	if err := s.forms.Update(ctx, f); err != nil {
		return nil, mapRepoError(err)
	}
	return f, nil
}

// DeleteForm удаляет форму вместе с ответами.
func (s *FormService) DeleteForm(ctx context.Context, formID string) error {
	if err := s.forms.Delete(ctx, formID); err != nil {
		return mapRepoError(err)
	}
	s.logger.Info("Форма удалена", slog.String("form_id", formID))
	return nil
}

// SubmitForm сохраняет ответ пользователя на опубликованную форму.
func (s *FormService) SubmitForm(ctx context.Context, caller Caller, formID string, answers map[string]any) (*model.FormSubmission, error) {
	f, err := s.forms.GetByID(ctx, formID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if f.Status != model.FormPublished {
		return nil, fmt.Errorf("%w: форма не принимает ответы", ErrValidation)
	}
	if err := ValidateAnswers(f.Fields, answers); err != nil {
		return nil, err
	}

	sub := &model.FormSubmission{
		SubmissionID: uuid.NewString(),
		FormID:       formID,
		UserID:       caller.UserID,
		Answers:      answers,
	}
	if err := s.forms.CreateSubmission(ctx, sub); err != nil {
		return nil, mapRepoError(err)
	}
	return sub, nil
}

// ListSubmissions возвращает ответы на форму.
func (s *FormService) ListSubmissions(ctx context.Context, formID string, limit, offset int) ([]*model.FormSubmission, int, error) {
	if _, err := s.forms.GetByID(ctx, formID); err != nil {
		return nil, 0, mapRepoError(err)
	}
	items, err := s.forms.ListSubmissions(ctx, formID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.forms.CountSubmissions(ctx, formID)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ValidateAnswers проверяет ответы по описанию полей формы.
// Значения приходят из JSON: строки, числа (float64) и bool.
func ValidateAnswers(fields []model.FormField, answers map[string]any) error {
	byID := make(map[string]model.FormField, len(fields))
	for _, f := range fields {
		byID[f.ID] = f
	}

	for id := range answers {
		if _, ok := byID[id]; !ok {
			return fmt.Errorf("%w: неизвестное поле %q", ErrValidation, id)
		}
	}

	for _, field := range fields {
		value, present := answers[field.ID]
		if !present || value == nil || value == "" {
			if field.Required {
				return fmt.Errorf("%w: поле %q обязательно", ErrValidation, field.ID)
			}
			continue
		}
		if err := validateAnswer(field, value); err != nil {
			return fmt.Errorf("%w: поле %q: %v", ErrValidation, field.ID, err)
		}
	}
	return nil
}

// validateAnswer проверяет одно значение по типу поля.
func validateAnswer(field model.FormField, value any) error {
	switch field.Type {
	case model.FieldNumber:
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("ожидается число")
		}
	case model.FieldCheckbox:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("ожидается true или false")
		}
	case model.FieldEmail:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("ожидается строка")
		}
		local, domain, found := strings.Cut(s, "@")
		if !found || local == "" || domain == "" || strings.Contains(domain, "@") {
			return fmt.Errorf("некорректный email")
		}
	case model.FieldDate:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("ожидается строка")
		}
		if _, err := time.Parse(time.DateOnly, s); err != nil {
			return fmt.Errorf("ожидается дата YYYY-MM-DD")
		}
	case model.FieldSelect:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("ожидается строка")
		}
		for _, opt := range field.Options {
			if opt == s {
				return nil
			}
		}
		return fmt.Errorf("значение %q не входит в options", s)
	default:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("ожидается строка")
		}
	}
	return nil
}
