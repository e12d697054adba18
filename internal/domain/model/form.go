package model

import "time"

// FormStatus — статус формы.
type FormStatus string

const (
	FormDraft     FormStatus = "DRAFT"
	FormPublished FormStatus = "PUBLISHED"
	FormClosed    FormStatus = "CLOSED"
)

// Valid проверяет допустимость значения.
func (s FormStatus) Valid() bool {
	switch s {
	case FormDraft, FormPublished, FormClosed:
		return true
	}
	return false
}

// FieldType — тип поля формы.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldTextarea FieldType = "textarea"
	FieldNumber   FieldType = "number"
	FieldEmail    FieldType = "email"
	FieldDate     FieldType = "date"
	FieldSelect   FieldType = "select"
	FieldCheckbox FieldType = "checkbox"
	FieldFile     FieldType = "file"
)

// Valid проверяет допустимость значения.
func (t FieldType) Valid() bool {
	switch t {
	case FieldText, FieldTextarea, FieldNumber, FieldEmail, FieldDate, FieldSelect, FieldCheckbox, FieldFile:
		return true
	}
	return false
}

// FormField — поле формы. Options используется только для select.
type FormField struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Options  []string  `json:"options,omitempty"`
}

// Form — анкета, опционально привязанная к вакансии.
type Form struct {
	FormID      string      `json:"formId"`
	JobID       *string     `json:"jobId,omitempty"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Status      FormStatus  `json:"status"`
	Fields      []FormField `json:"fields"`
	CreatedBy   string      `json:"createdBy"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// FormSubmission — ответ соискателя на форму. Значения ответов — JSON
// (строка, число или bool в зависимости от типа поля).
type FormSubmission struct {
	SubmissionID string         `json:"submissionId"`
	FormID       string         `json:"formId"`
	UserID       string         `json:"userId"`
	Answers      map[string]any `json:"answers"`
	SubmittedAt  time.Time      `json:"submittedAt"`
}
