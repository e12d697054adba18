package model

import "time"

// ProcessingStatus — этап конвейера обработки документа.
type ProcessingStatus string

const (
	ProcessingPending               ProcessingStatus = "PENDING"
	ProcessingPrevalidation         ProcessingStatus = "PREVALIDATION"
	ProcessingOCR                   ProcessingStatus = "OCR"
	ProcessingClassification        ProcessingStatus = "CLASSIFICATION"
	ProcessingExtraction            ProcessingStatus = "EXTRACTION"
	ProcessingValidation            ProcessingStatus = "VALIDATION"
	ProcessingValidationIdentidadCL ProcessingStatus = "VALIDATION_IDENTIDAD_CL"
	ProcessingCompleted             ProcessingStatus = "COMPLETED"
	ProcessingFailed                ProcessingStatus = "FAILED"
)

// Terminal сообщает, завершена ли обработка.
func (s ProcessingStatus) Terminal() bool {
	return s == ProcessingCompleted || s == ProcessingFailed
}

// UnknownDocumentType — тип документа, который не удалось классифицировать.
const UnknownDocumentType = "Desconocido"

// Правила, порождающие наблюдения (observations) конвейера.
const (
	RuleMinConfidence      = "Confianza Mínima"
	RuleExtractedText      = "Texto Extraído"
	RuleBoostr             = "Validación Boostr"
	RuleBoostrError        = "Validación Boostr Error"
	RuleContent            = "Validación de Contenido"
	RuleDocumentValidation = "Validación de Documento"
	RuleProcessingError    = "Error de Procesamiento"
	RuleManualDecision     = "Decisión Manual"
)

// Observation — наблюдение конвейера (причина отклонения или пометка).
type Observation struct {
	Rule   string `json:"rule"`
	Reason string `json:"reason"`
	// Layer — уровень наблюдения проверки содержимого: critical, warning, success
	Layer string `json:"layer,omitempty"`
}

// DocumentRef — документ в запросе на обработку.
type DocumentRef struct {
	FileURL            string  `json:"file_url"`
	FileName           string  `json:"file_name"`
	PlatformDocumentID *string `json:"platform_document_id,omitempty"`
}

// ApplicantData — ожидаемые данные соискателя для проверки содержимого.
type ApplicantData struct {
	RUT    string `json:"rut,omitempty"`
	Nombre string `json:"nombre,omitempty"`
}

// ProcessRequest — запрос платформы на обработку документов.
type ProcessRequest struct {
	OwnerUserName        string         `json:"owner_user_name"`
	Documents            []DocumentRef  `json:"documents"`
	URLResponse          *string        `json:"url_response,omitempty"`
	ApplicantData        *ApplicantData `json:"applicant_data,omitempty"`
	ExpectedDocumentType *string        `json:"expected_document_type,omitempty"`
}

// ProcessingTask — сообщение очереди SQS: один документ на обработку.
type ProcessingTask struct {
	DocumentID           string         `json:"document_id"`
	OwnerUserName        string         `json:"owner_user_name"`
	Document             DocumentRef    `json:"document_data"`
	ProcessingType       string         `json:"processing_type"`
	URLResponse          *string        `json:"url_response,omitempty"`
	ApplicantData        *ApplicantData `json:"applicant_data,omitempty"`
	ExpectedDocumentType *string        `json:"expected_document_type,omitempty"`
	Timestamp            time.Time      `json:"timestamp"`
}

// ProcessingTypePlatformDocument — тип обработки документов платформы.
const ProcessingTypePlatformDocument = "platform_document"

// ProcessedResult — результат обработки одного документа.
// Хранится в DynamoDB и отправляется в callback.
type ProcessedResult struct {
	DocumentID             string           `json:"document_id"`
	PlatformDocumentID     *string          `json:"platform_document_id,omitempty"`
	OriginalFileName       string           `json:"original_file_name"`
	FileURL                string           `json:"file_url"`
	DocumentType           string           `json:"document_type"`
	DataStructure          map[string]any   `json:"data_structure,omitempty"`
	ExpirationDate         *string          `json:"expiration_date,omitempty"`
	FinalDecision          Decision         `json:"final_decision"`
	Observations           []Observation    `json:"observations"`
	ProcessingStatus       ProcessingStatus `json:"processing_status"`
	OwnerUserName          string           `json:"owner_user_name"`
	ClassificationMethod   string           `json:"classification_method,omitempty"`
	ClassificationByIA     string           `json:"classification_by_ia,omitempty"`
	Confidence             float64          `json:"confidence"`
	TotalProcessingCostUSD float64          `json:"total_processing_cost_usd"`
	URLResponse            *string          `json:"url_response,omitempty"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
}

// DocumentUpdateAction — action сообщения WebSocket.
const DocumentUpdateAction = "document_update"

// DocumentUpdate — уведомление о ходе обработки документа (WebSocket).
type DocumentUpdate struct {
	Action           string           `json:"action"`
	DocumentID       string           `json:"documentId"`
	Status           string           `json:"status"`
	ProcessingStatus ProcessingStatus `json:"processingStatus"`
	Phase            string           `json:"phase"`
	Message          string           `json:"message"`
	FileName         string           `json:"fileName"`
	Owner            string           `json:"owner"`
	DocumentType     string           `json:"documentType"`
	Confidence       float64          `json:"confidence"`
	FinalDecision    Decision         `json:"finalDecision,omitempty"`
	Timestamp        time.Time        `json:"timestamp"`
}
