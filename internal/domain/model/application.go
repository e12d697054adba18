package model

import "time"

// ApplicationStatus — статус отклика на вакансию.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "PENDING"
	ApplicationInReview ApplicationStatus = "IN_REVIEW"
	ApplicationAccepted ApplicationStatus = "ACCEPTED"
	ApplicationRejected ApplicationStatus = "REJECTED"
)

// applicationTransitions — допустимые переходы статуса отклика.
var applicationTransitions = map[ApplicationStatus][]ApplicationStatus{
	ApplicationPending:  {ApplicationInReview, ApplicationAccepted, ApplicationRejected},
	ApplicationInReview: {ApplicationPending, ApplicationAccepted, ApplicationRejected},
	ApplicationAccepted: {ApplicationInReview},
	ApplicationRejected: {ApplicationInReview},
}

// Valid проверяет допустимость значения.
func (s ApplicationStatus) Valid() bool {
	_, ok := applicationTransitions[s]
	return ok
}

// CanTransitionTo проверяет, допустим ли переход из s в target.
// Переход в тот же статус допустим (no-op).
func (s ApplicationStatus) CanTransitionTo(target ApplicationStatus) bool {
	if s == target {
		return target.Valid()
	}
	for _, next := range applicationTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Application — отклик соискателя на вакансию.
type Application struct {
	ApplicationID string            `json:"applicationId"`
	UserID        string            `json:"userId"`
	JobID         string            `json:"jobId"`
	Status        ApplicationStatus `json:"status"`
	Description   string            `json:"description"`
	Documents     []string          `json:"documents"`
	// FolderID — папка соискателя внутри папки Cargo вакансии
	FolderID       *string   `json:"folderId,omitempty"`
	ApplicantName  string    `json:"applicantName"`
	ApplicantEmail string    `json:"applicantEmail"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`

	// Job — сведения о вакансии (только в ответе GetApplication)
	Job *JobSummary `json:"job,omitempty"`
}

// FolderName возвращает имя папки соискателя: имя, иначе email, иначе userId.
func (a *Application) FolderName() string {
	switch {
	case a.ApplicantName != "":
		return a.ApplicantName
	case a.ApplicantEmail != "":
		return a.ApplicantEmail
	default:
		return a.UserID
	}
}

// BulkStatusOutcome — результат смены статуса одного отклика в пакетной операции.
type BulkStatusOutcome string

const (
	BulkUpdated           BulkStatusOutcome = "updated"
	BulkNotFound          BulkStatusOutcome = "not_found"
	BulkInvalidTransition BulkStatusOutcome = "invalid_transition"
	BulkError             BulkStatusOutcome = "error"
)

// BulkStatusResult — результат по одному ID.
type BulkStatusResult struct {
	ApplicationID string            `json:"applicationId"`
	Result        BulkStatusOutcome `json:"result"`
	Status        ApplicationStatus `json:"status,omitempty"`
}
