// Пакет model — доменные модели платформы: вакансии, отклики, формы,
// папки, документы и результаты обработки документов.
package model

import "time"

// EmploymentType — тип занятости.
type EmploymentType string

const (
	EmploymentFullTime   EmploymentType = "FULL_TIME"
	EmploymentPartTime   EmploymentType = "PART_TIME"
	EmploymentContract   EmploymentType = "CONTRACT"
	EmploymentInternship EmploymentType = "INTERNSHIP"
	EmploymentTemporary  EmploymentType = "TEMPORARY"
)

// Valid проверяет допустимость значения.
func (t EmploymentType) Valid() bool {
	switch t {
	case EmploymentFullTime, EmploymentPartTime, EmploymentContract, EmploymentInternship, EmploymentTemporary:
		return true
	}
	return false
}

// JobStatus — статус вакансии.
type JobStatus string

const (
	// JobDraft — черновик, не виден соискателям
	JobDraft JobStatus = "DRAFT"
	// JobPublished — открыта для откликов
	JobPublished JobStatus = "PUBLISHED"
	// JobPaused — приостановлена
	JobPaused JobStatus = "PAUSED"
	// JobClosed — закрыта
	JobClosed JobStatus = "CLOSED"
)

// Valid проверяет допустимость значения.
func (s JobStatus) Valid() bool {
	switch s {
	case JobDraft, JobPublished, JobPaused, JobClosed:
		return true
	}
	return false
}

// JobPosting — вакансия. Связана 1:1 с папкой Cargo в folders-service.
type JobPosting struct {
	JobID          string         `json:"jobId"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	CompanyName    string         `json:"companyName"`
	Location       string         `json:"location"`
	EmploymentType EmploymentType `json:"employmentType"`
	Salary         *string        `json:"salary,omitempty"`
	Requirements   []string       `json:"requirements"`
	Status         JobStatus      `json:"status"`
	// FolderID — папка Cargo; пустой, если создание папки не удалось
	FolderID  *string    `json:"folderId,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedBy string     `json:"createdBy"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// IsOpen сообщает, принимает ли вакансия отклики в момент now.
func (j *JobPosting) IsOpen(now time.Time) bool {
	if j.Status != JobPublished {
		return false
	}
	return j.ExpiresAt == nil || j.ExpiresAt.After(now)
}

// JobSummary — краткие сведения о вакансии для обогащения откликов.
type JobSummary struct {
	Title       string    `json:"title"`
	CompanyName string    `json:"companyName"`
	Location    string    `json:"location"`
	Status      JobStatus `json:"status"`
}

// Summary возвращает краткие сведения о вакансии.
func (j *JobPosting) Summary() *JobSummary {
	return &JobSummary{
		Title:       j.Title,
		CompanyName: j.CompanyName,
		Location:    j.Location,
		Status:      j.Status,
	}
}
