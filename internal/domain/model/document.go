package model

import (
	"path"
	"strings"
	"time"
)

// DocumentStatus — статус документа в folders-service.
type DocumentStatus string

const (
	// DocumentPendingUpload — выдан presigned URL, файл ещё не загружен
	DocumentPendingUpload DocumentStatus = "PENDING_UPLOAD"
	// DocumentUploaded — файл в S3, обработка не запущена
	DocumentUploaded DocumentStatus = "UPLOADED"
	// DocumentProcessing — отправлен в docproc
	DocumentProcessing DocumentStatus = "PROCESSING"
	// DocumentCompleted — обработка завершена
	DocumentCompleted DocumentStatus = "COMPLETED"
	// DocumentFailed — обработка завершилась ошибкой
	DocumentFailed DocumentStatus = "FAILED"
)

// Decision — итоговое решение по документу.
type Decision string

const (
	DecisionApproved     Decision = "APPROVED"
	DecisionRejected     Decision = "REJECTED"
	DecisionManualReview Decision = "MANUAL_REVIEW"
)

// Valid проверяет допустимость значения.
func (d Decision) Valid() bool {
	switch d {
	case DecisionApproved, DecisionRejected, DecisionManualReview:
		return true
	}
	return false
}

// AllowedDocumentExtensions — расширения файлов, принимаемых к загрузке.
var AllowedDocumentExtensions = []string{".pdf", ".jpg", ".jpeg", ".png", ".tiff", ".tif"}

// HasAllowedExtension проверяет расширение имени файла по списку allowed.
func HasAllowedExtension(fileName string, allowed []string) bool {
	ext := strings.ToLower(path.Ext(fileName))
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}

// Document — файл документа в папке.
type Document struct {
	DocumentID       string           `json:"documentId"`
	FolderID         string           `json:"folderId"`
	UserID           string           `json:"userId"`
	FileName         string           `json:"fileName"`
	ContentType      string           `json:"contentType"`
	Size             int64            `json:"size"`
	S3Key            string           `json:"-"`
	Status           DocumentStatus   `json:"status"`
	Decision         *Decision        `json:"decision,omitempty"`
	DocumentType     *string          `json:"documentType,omitempty"`
	ProcessingResult *ProcessedResult `json:"processingResult,omitempty"`
	// ProcessingID — ID результата в docproc-service
	ProcessingID *string `json:"processingId,omitempty"`
	Error            *string          `json:"error,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}
