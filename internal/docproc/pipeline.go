// Пакет docproc — конвейер обработки документов: предварительная проверка,
// OCR, классификация и извлечение данных через LLM, бизнес-правила,
// проверка личности CL и проверка содержимого.
//
// Pipeline.Process не возвращает ошибок: любая ошибка этапа превращается в
// результат со статусом FAILED. Pipeline.Handle сохраняет результат и
// рассылает его; ошибка Handle означает, что задачу нужно повторить.
package docproc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/resultstore"
)

var (
	documentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mp_docproc_documents_total",
		Help: "Обработанные документы по итоговому решению",
	}, []string{"decision"})

	phaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mp_docproc_phase_duration_seconds",
		Help:    "Длительность этапов конвейера обработки",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"phase"})
)

// minConfidence — порог уверенности классификации.
const minConfidence = 0.7

// Фазы уведомлений о ходе обработки.
const (
	PhasePrevalidation      = "PREVALIDATION"
	PhaseOCR                = "OCR"
	PhaseClassification     = "CLASSIFICATION"
	PhaseValidation         = "VALIDATION"
	PhaseIdentityValidation = "IDENTITY_VALIDATION"
	PhaseContentValidation  = "CONTENT_VALIDATION"
	PhaseCompleted          = "COMPLETED"
	PhaseFailed             = "FAILED"
)

// Статусы уведомления (поле status).
const (
	UpdateInProgress = "processing_in_progress"
	UpdateCompleted  = "completed"
	UpdateFailed     = "failed"
)

// DocumentValidator — предварительная проверка файла.
type DocumentValidator interface {
	Validate(ctx context.Context, doc model.DocumentRef) error
}

// TextExtractor — OCR.
type TextExtractor interface {
	ExtractText(ctx context.Context, fileURL string) (string, error)
}

// DocumentClassifier — классификация и извлечение данных.
type DocumentClassifier interface {
	Classify(ctx context.Context, text string) (*Classification, error)
	Extract(ctx context.Context, text, documentType string) (map[string]any, error)
}

// IdentityValidator — проверка личности по извлечённым данным.
type IdentityValidator interface {
	ValidateExtracted(ctx context.Context, data map[string]any) (*IdentityResult, error)
}

// ResultStore — хранилище результатов.
type ResultStore interface {
	Get(ctx context.Context, documentID string) (*model.ProcessedResult, error)
	// Replace заменяет существующий результат; отсутствие — resultstore.ErrNotFound
	Replace(ctx context.Context, r *model.ProcessedResult) error
}

// Notifier доставляет уведомления пользователю.
type Notifier interface {
	Notify(ctx context.Context, userID string, update model.DocumentUpdate) error
}

// ResultSender отправляет итоговый результат в callback.
type ResultSender interface {
	Send(ctx context.Context, result *model.ProcessedResult) (bool, error)
}

// Deps — зависимости конвейера. Identity, Notifier и Callback могут быть nil.
type Deps struct {
	Validator  DocumentValidator
	OCR        TextExtractor
	Classifier DocumentClassifier
	Identity   IdentityValidator
	Store      ResultStore
	Notifier   Notifier
	Callback   ResultSender
}

// Pipeline — конвейер обработки документа.
type Pipeline struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

// NewPipeline создаёт конвейер.
func NewPipeline(deps Deps, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		deps:   deps,
		logger: logger.With(slog.String("component", "docproc_pipeline")),
		now:    time.Now,
	}
}

// run — состояние обработки одного документа.
type run struct {
	task       *model.ProcessingTask
	status     model.ProcessingStatus
	decision   model.Decision
	text       string
	docType    string
	confidence float64
	data       map[string]any
	reasons    []model.Observation
}

func (r *run) reject(rule, reason string, decision model.Decision) {
	r.reasons = append(r.reasons, model.Observation{Rule: rule, Reason: reason})
	r.decision = decision
}

// Process выполняет конвейер для задачи и возвращает итоговый результат.
func (p *Pipeline) Process(ctx context.Context, task *model.ProcessingTask) *model.ProcessedResult {
	r := &run{
		task:     task,
		status:   model.ProcessingPending,
		decision: model.DecisionManualReview,
		docType:  model.UnknownDocumentType,
		data:     map[string]any{},
	}

	if err := p.execute(ctx, r); err != nil {
		r.status = model.ProcessingFailed
		if errors.Is(err, ErrInvalidDocument) {
			r.reject(model.RuleDocumentValidation, err.Error(), model.DecisionRejected)
		} else {
			r.reject(model.RuleProcessingError, "Error inesperado: "+err.Error(), model.DecisionManualReview)
		}
		p.logger.Warn("Обработка документа завершилась ошибкой",
			slog.String("document_id", task.DocumentID),
			slog.String("error", err.Error()),
		)
	}

	return p.buildResult(r)
}

// execute проходит этапы конвейера по порядку.
func (p *Pipeline) execute(ctx context.Context, r *run) error {
	doc := r.task.Document

	if err := p.phase(PhasePrevalidation, func() error { return p.deps.Validator.Validate(ctx, doc) }); err != nil {
		return err
	}
	r.status = model.ProcessingPrevalidation
	p.progress(ctx, r, PhasePrevalidation, "Documento validado correctamente")

	err := p.phase(PhaseOCR, func() error {
		text, err := p.deps.OCR.ExtractText(ctx, doc.FileURL)
		r.text = text
		return err
	})
	if err != nil {
		return fmt.Errorf("Error en OCR: %w", err)
	}
	r.status = model.ProcessingOCR
	p.progress(ctx, r, PhaseOCR, fmt.Sprintf("Texto extraído: %d caracteres", len([]rune(r.text))))

	err = p.phase(PhaseClassification, func() error {
		cl, err := p.deps.Classifier.Classify(ctx, r.text)
		if err != nil {
			return err
		}
		r.docType, r.confidence = cl.DocumentType, cl.Confidence
		if r.docType == model.UnknownDocumentType {
			return nil
		}
		data, err := p.deps.Classifier.Extract(ctx, r.text, r.docType)
		if err != nil {
			return err
		}
		r.data = data
		return nil
	})
	if err != nil {
		return fmt.Errorf("Error en clasificación: %w", err)
	}
	r.status = model.ProcessingClassification
	p.progress(ctx, r, PhaseClassification,
		fmt.Sprintf("Documento clasificado como: %s (confianza: %.2f)", r.docType, r.confidence))

	applyBusinessRules(r)
	r.status = model.ProcessingValidation
	p.progress(ctx, r, PhaseValidation, "Reglas de negocio aplicadas")

	if r.docType == TypeCedulaFrontal && p.deps.Identity != nil {
		_ = p.phase(PhaseIdentityValidation, func() error {
			p.validateIdentity(ctx, r)
			return nil
		})
		r.status = model.ProcessingValidationIdentidadCL
		p.progress(ctx, r, PhaseIdentityValidation, "Validación de identidad CL completada")
	}

	if r.task.ApplicantData != nil || (r.task.ExpectedDocumentType != nil && *r.task.ExpectedDocumentType != "") {
		p.validateContent(r)
		p.progress(ctx, r, PhaseContentValidation, "Contenido del documento verificado")
	}

	r.status = model.ProcessingCompleted
	p.progress(ctx, r, PhaseCompleted, "Procesamiento completado - Decisión: "+string(r.decision))
	return nil
}

// applyBusinessRules — правила уверенности и наличия текста.
func applyBusinessRules(r *run) {
	if r.confidence < minConfidence {
		r.reject(model.RuleMinConfidence,
			fmt.Sprintf("Confianza del documento muy baja: %.2f", r.confidence), model.DecisionManualReview)
	}
	if isBlank(r.text) {
		r.reject(model.RuleExtractedText, "No se pudo extraer texto del documento", model.DecisionRejected)
	}
	if len(r.reasons) == 0 {
		r.decision = model.DecisionApproved
	}
}

// validateIdentity — проверка Boostr. Ошибка сервиса не отклоняет документ,
// а отправляет его на ручную проверку.
func (p *Pipeline) validateIdentity(ctx context.Context, r *run) {
	res, err := p.deps.Identity.ValidateExtracted(ctx, r.data)
	if err != nil {
		r.reject(model.RuleBoostrError, "No se pudo validar con Boostr: "+err.Error(), model.DecisionManualReview)
		return
	}
	if !res.Valid {
		r.reject(model.RuleBoostr, "RUT no válido según Boostr: "+res.Reason(), model.DecisionRejected)
	}
}

// validateContent — сверка с данными соискателя. Итоговое решение —
// более строгое из текущего и решения проверки содержимого.
func (p *Pipeline) validateContent(r *run) {
	check := ContentCheck{
		Extracted:    r.data,
		Applicant:    r.task.ApplicantData,
		DetectedType: r.docType,
	}
	if r.task.ExpectedDocumentType != nil {
		check.ExpectedType = *r.task.ExpectedDocumentType
	}
	decision, observations := ValidateContent(check, p.now())
	r.reasons = append(r.reasons, observations...)
	r.decision = stricter(r.decision, decision)
}

// stricter возвращает более строгое из двух решений.
func stricter(a, b model.Decision) model.Decision {
	rank := map[model.Decision]int{
		model.DecisionApproved:     0,
		model.DecisionManualReview: 1,
		model.DecisionRejected:     2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// phase выполняет этап и записывает его длительность.
func (p *Pipeline) phase(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	phaseDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return err
}

// progress отправляет уведомление о ходе обработки. Ошибки не прерывают конвейер.
func (p *Pipeline) progress(ctx context.Context, r *run, phase, message string) {
	p.notify(ctx, r.task, model.DocumentUpdate{
		Status:           UpdateInProgress,
		ProcessingStatus: r.status,
		Phase:            phase,
		Message:          message,
		DocumentType:     r.docType,
		Confidence:       r.confidence,
	})
}

func (p *Pipeline) notify(ctx context.Context, task *model.ProcessingTask, update model.DocumentUpdate) {
	if p.deps.Notifier == nil {
		return
	}
	update.Action = model.DocumentUpdateAction
	update.DocumentID = "unknown"
	if task.Document.PlatformDocumentID != nil {
		update.DocumentID = *task.Document.PlatformDocumentID
	}
	update.FileName = task.Document.FileName
	update.Owner = task.OwnerUserName
	update.Timestamp = p.now().UTC()

	if err := p.deps.Notifier.Notify(ctx, task.OwnerUserName, update); err != nil {
		p.logger.Warn("Ошибка отправки уведомления",
			slog.String("document_id", task.DocumentID),
			slog.String("phase", update.Phase),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pipeline) buildResult(r *run) *model.ProcessedResult {
	method := "IA"
	if r.docType == model.UnknownDocumentType {
		method = "UNKNOWN"
	}
	now := p.now().UTC()
	created := r.task.Timestamp
	if created.IsZero() {
		created = now
	}
	reasons := r.reasons
	if reasons == nil {
		reasons = []model.Observation{}
	}
	return &model.ProcessedResult{
		DocumentID:           r.task.DocumentID,
		PlatformDocumentID:   r.task.Document.PlatformDocumentID,
		OriginalFileName:     r.task.Document.FileName,
		FileURL:              r.task.Document.FileURL,
		DocumentType:         r.docType,
		DataStructure:        r.data,
		ExpirationDate:       ExpirationDate(r.data),
		FinalDecision:        r.decision,
		Observations:         reasons,
		ProcessingStatus:     r.status,
		OwnerUserName:        r.task.OwnerUserName,
		ClassificationMethod: method,
		ClassificationByIA:   r.docType,
		Confidence:           r.confidence,
		URLResponse:          r.task.URLResponse,
		CreatedAt:            created,
		UpdatedAt:            now,
	}
}

// ExpirationDate ищет дату окончания действия в извлечённых данных.
func ExpirationDate(data map[string]any) *string {
	for _, key := range []string{"fecha_vencimiento", "expiration_date", "vencimiento"} {
		if _, ok := data[key]; ok {
			v := stringField(data, key)
			return &v
		}
	}
	return nil
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\n' && r != '\t' && r != '\r' {
			return false
		}
	}
	return true
}

// Handle обрабатывает задачу очереди: выполняет конвейер, сохраняет
// результат, отправляет callback и итоговое уведомление.
// Задачи с итоговым или удалённым результатом пропускаются.
func (p *Pipeline) Handle(ctx context.Context, task *model.ProcessingTask) error {
	existing, err := p.deps.Store.Get(ctx, task.DocumentID)
	switch {
	case errors.Is(err, resultstore.ErrNotFound):
		p.logger.Info("Результат удалён, задача пропущена", slog.String("document_id", task.DocumentID))
		return nil
	case err != nil:
		return fmt.Errorf("чтение результата %s: %w", task.DocumentID, err)
	case existing.ProcessingStatus.Terminal():
		p.logger.Info("Документ уже обработан, повтор пропущен", slog.String("document_id", task.DocumentID))
		return nil
	}
	if !existing.CreatedAt.IsZero() {
		task.Timestamp = existing.CreatedAt
	}

	p.logger.Info("Обработка документа",
		slog.String("document_id", task.DocumentID),
		slog.String("file_name", task.Document.FileName),
		slog.String("owner", task.OwnerUserName),
	)
	result := p.Process(ctx, task)

	// Результат, удалённый во время обработки, не восстанавливается
	err = p.deps.Store.Replace(ctx, result)
	if errors.Is(err, resultstore.ErrNotFound) {
		p.logger.Info("Результат удалён во время обработки, задача пропущена", slog.String("document_id", task.DocumentID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("сохранение результата %s: %w", task.DocumentID, err)
	}
	documentsTotal.WithLabelValues(string(result.FinalDecision)).Inc()

	if p.deps.Callback != nil {
		if _, err := p.deps.Callback.Send(ctx, result); err != nil {
			p.logger.Warn("Результат обработан, но callback не доставлен",
				slog.String("document_id", task.DocumentID),
				slog.String("error", err.Error()),
			)
		}
	}

	status, phase := UpdateCompleted, PhaseCompleted
	if result.ProcessingStatus == model.ProcessingFailed {
		status, phase = UpdateFailed, PhaseFailed
	}
	message := "Decisión: " + string(result.FinalDecision)
	if len(result.Observations) > 0 && result.ProcessingStatus == model.ProcessingFailed {
		message = result.Observations[len(result.Observations)-1].Reason
	}
	p.notify(ctx, task, model.DocumentUpdate{
		Status:           status,
		ProcessingStatus: result.ProcessingStatus,
		Phase:            phase,
		Message:          message,
		DocumentType:     result.DocumentType,
		Confidence:       result.Confidence,
		FinalDecision:    result.FinalDecision,
	})

	p.logger.Info("Документ обработан",
		slog.String("document_id", task.DocumentID),
		slog.String("status", string(result.ProcessingStatus)),
		slog.String("decision", string(result.FinalDecision)),
		slog.String("document_type", result.DocumentType),
	)
	return nil
}
