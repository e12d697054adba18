package service

import (
	"context"
	"errors"
	"testing"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/repository"
)

// memForms — FormRepository в памяти.
type memForms struct {
	items map[string]*model.Form
	subs  []*model.FormSubmission
}

func newMemForms() *memForms {
	return &memForms{items: map[string]*model.Form{}}
}

func (m *memForms) Create(_ context.Context, f *model.Form) error {
	cp := *f
	m.items[f.FormID] = &cp
	return nil
}

func (m *memForms) GetByID(_ context.Context, id string) (*model.Form, error) {
	f, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *memForms) List(_ context.Context, _ repository.FormListFilters, _, _ int) ([]*model.Form, error) {
	out := make([]*model.Form, 0, len(m.items))
	for _, f := range m.items {
		out = append(out, f)
	}
	return out, nil
}

func (m *memForms) Count(_ context.Context, _ repository.FormListFilters) (int, error) {
	return len(m.items), nil
}

func (m *memForms) Update(_ context.Context, f *model.Form) error {
	if _, ok := m.items[f.FormID]; !ok {
		return repository.ErrNotFound
	}
	cp := *f
	m.items[f.FormID] = &cp
	return nil
}

func (m *memForms) Delete(_ context.Context, id string) error {
	if _, ok := m.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memForms) CreateSubmission(_ context.Context, s *model.FormSubmission) error {
	for _, existing := range m.subs {
		if existing.FormID == s.FormID && existing.UserID == s.UserID {
			return repository.ErrConflict
		}
	}
	m.subs = append(m.subs, s)
	return nil
}

func (m *memForms) ListSubmissions(_ context.Context, formID string, _, _ int) ([]*model.FormSubmission, error) {
	var out []*model.FormSubmission
	for _, s := range m.subs {
		if s.FormID == formID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memForms) CountSubmissions(ctx context.Context, formID string) (int, error) {
	items, _ := m.ListSubmissions(ctx, formID, 0, 0)
	return len(items), nil
}

var formFields = []model.FormField{
	{ID: "nombre", Type: model.FieldText, Required: true},
	{ID: "edad", Type: model.FieldNumber},
	{ID: "correo", Type: model.FieldEmail, Required: true},
	{ID: "inicio", Type: model.FieldDate},
	{ID: "turno", Type: model.FieldSelect, Options: []string{"mañana", "noche"}},
	{ID: "licencia", Type: model.FieldCheckbox},
}

func TestValidateAnswers(t *testing.T) {
	base := func() map[string]any {
		return map[string]any{"nombre": "Ana", "correo": "ana@example.cl"}
	}

	tests := []struct {
		name    string
		set     map[string]any
		drop    string
		wantErr bool
	}{
		{name: "minimal", wantErr: false},
		{name: "all fields", set: map[string]any{"edad": 31.0, "inicio": "2026-11-02", "turno": "noche", "licencia": true}},
		{name: "missing required", drop: "nombre", wantErr: true},
		{name: "empty required", set: map[string]any{"correo": ""}, wantErr: true},
		{name: "number as string", set: map[string]any{"edad": "31"}, wantErr: true},
		{name: "bad email", set: map[string]any{"correo": "ana.example.cl"}, wantErr: true},
		{name: "double at", set: map[string]any{"correo": "a@b@c"}, wantErr: true},
		{name: "bad date", set: map[string]any{"inicio": "02/11/2026"}, wantErr: true},
		{name: "unknown option", set: map[string]any{"turno": "tarde"}, wantErr: true},
		{name: "checkbox as string", set: map[string]any{"licencia": "yes"}, wantErr: true},
		{name: "unknown field", set: map[string]any{"extra": "x"}, wantErr: true},
		{name: "text as number", set: map[string]any{"nombre": 5.0}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answers := base()
			for k, v := range tt.set {
				answers[k] = v
			}
			if tt.drop != "" {
				delete(answers, tt.drop)
			}
			err := ValidateAnswers(formFields, answers)
			if tt.wantErr && !errors.Is(err, ErrValidation) {
				t.Errorf("ValidateAnswers() = %v, ожидается ErrValidation", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateAnswers() = %v", err)
			}
		})
	}
}

func TestFormService_CreateForm(t *testing.T) {
	svc := NewFormService(newMemForms(), testLogger())

	f, err := svc.CreateForm(context.Background(), admin, FormInput{Title: " Postulación ", Fields: formFields})
	if err != nil {
		t.Fatalf("CreateForm() ошибка: %v", err)
	}
	if f.Status != model.FormDraft || f.Title != "Postulación" || f.CreatedBy != "admin-1" {
		t.Errorf("форма: %+v", f)
	}

	tests := []struct {
		name string
		in   FormInput
	}{
		{"no title", FormInput{}},
		{"bad status", FormInput{Title: "x", Status: "OPEN"}},
		{"duplicate field", FormInput{Title: "x", Fields: []model.FormField{{ID: "a", Type: model.FieldText}, {ID: "a", Type: model.FieldText}}}},
		{"empty field id", FormInput{Title: "x", Fields: []model.FormField{{Type: model.FieldText}}}},
		{"bad field type", FormInput{Title: "x", Fields: []model.FormField{{ID: "a", Type: "slider"}}}},
		{"select without options", FormInput{Title: "x", Fields: []model.FormField{{ID: "a", Type: model.FieldSelect}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateForm(context.Background(), admin, tt.in); !errors.Is(err, ErrValidation) {
				t.Errorf("CreateForm() = %v, ожидается ErrValidation", err)
			}
		})
	}
}

func TestFormService_SubmitForm(t *testing.T) {
	forms := newMemForms()
	svc := NewFormService(forms, testLogger())
	ctx := context.Background()
	applicant := Caller{UserID: "user-1"}

	f, _ := svc.CreateForm(ctx, admin, FormInput{Title: "Postulación", Fields: formFields})
	answers := map[string]any{"nombre": "Ana", "correo": "ana@example.cl"}

	if _, err := svc.GetForm(ctx, applicant, f.FormID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetForm() черновика соискателем = %v", err)
	}
	if _, err := svc.SubmitForm(ctx, applicant, f.FormID, answers); !errors.Is(err, ErrValidation) {
		t.Errorf("SubmitForm() в черновик = %v", err)
	}

	published := model.FormPublished
	if _, err := svc.UpdateForm(ctx, f.FormID, FormPatch{Status: &published}); err != nil {
		t.Fatal(err)
	}
	sub, err := svc.SubmitForm(ctx, applicant, f.FormID, answers)
	if err != nil {
		t.Fatalf("SubmitForm() ошибка: %v", err)
	}
	if sub.UserID != "user-1" || sub.FormID != f.FormID {
		t.Errorf("ответ: %+v", sub)
	}
	if _, err := svc.SubmitForm(ctx, applicant, f.FormID, answers); !errors.Is(err, ErrConflict) {
		t.Errorf("повторный ответ = %v, ожидается ErrConflict", err)
	}
	if _, err := svc.SubmitForm(ctx, applicant, f.FormID, map[string]any{"nombre": "Ana"}); !errors.Is(err, ErrValidation) {
		t.Errorf("неполный ответ = %v", err)
	}

	items, total, err := svc.ListSubmissions(ctx, f.FormID, 50, 0)
	if err != nil || total != 1 || len(items) != 1 {
		t.Errorf("ListSubmissions() = %d, %v", total, err)
	}
	if _, _, err := svc.ListSubmissions(ctx, "missing", 50, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("ListSubmissions() несуществующей формы = %v", err)
	}

	if err := svc.DeleteForm(ctx, f.FormID); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteForm(ctx, f.FormID); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный DeleteForm() = %v", err)
	}
}
