package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/resultstore"
)

// ResultRepository — хранилище результатов обработки.
// Реализуется *resultstore.Store.
type ResultRepository interface {
	Put(ctx context.Context, r *model.ProcessedResult) error
	Replace(ctx context.Context, r *model.ProcessedResult) error
	Get(ctx context.Context, documentID string) (*model.ProcessedResult, error)
	Delete(ctx context.Context, documentID string) (*model.ProcessedResult, error)
	List(ctx context.Context, owner string, limit int) ([]*model.ProcessedResult, error)
}

// TaskPublisher ставит задачи обработки в очередь.
// Реализуется *queue.Publisher.
type TaskPublisher interface {
	Publish(ctx context.Context, tasks []model.ProcessingTask) map[string]error
}

// UpdateNotifier доставляет уведомления о документах пользователю.
// Реализуется *notify.Hub.
type UpdateNotifier interface {
	Notify(ctx context.Context, userID string, update model.DocumentUpdate) error
}

// SubmittedDocument — документ, принятый на обработку.
type SubmittedDocument struct {
	DocumentID         string  `json:"document_id"`
	PlatformDocumentID *string `json:"platform_document_id,omitempty"`
	FileName           string  `json:"file_name"`
}

// ProcessingService — API docproc-service: приём документов и работа с результатами.
type ProcessingService struct {
	results      ResultRepository
	publisher    TaskPublisher
	notifier     UpdateNotifier
	maxDocuments int
	logger       *slog.Logger
	now          func() time.Time
}

// NewProcessingService создаёт сервис обработки. notifier может быть nil.
func NewProcessingService(
	results ResultRepository,
	publisher TaskPublisher,
	notifier UpdateNotifier,
	maxDocuments int,
	logger *slog.Logger,
) *ProcessingService {
	return &ProcessingService{
		results:      results,
		publisher:    publisher,
		notifier:     notifier,
		maxDocuments: maxDocuments,
		logger:       logger.With(slog.String("component", "processing_service")),
		now:          time.Now,
	}
}

func (s *ProcessingService) validateRequest(req *model.ProcessRequest) error {
	if strings.TrimSpace(req.OwnerUserName) == "" {
		return fmt.Errorf("%w: owner_user_name обязателен", ErrValidation)
	}
	if len(req.Documents) == 0 {
		return fmt.Errorf("%w: documents не может быть пустым", ErrValidation)
	}
	if len(req.Documents) > s.maxDocuments {
		return fmt.Errorf("%w: не более %d документов в запросе", ErrValidation, s.maxDocuments)
	}
	for i, doc := range req.Documents {
		if strings.TrimSpace(doc.FileURL) == "" {
			return fmt.Errorf("%w: documents[%d].file_url обязателен", ErrValidation, i)
		}
		if strings.TrimSpace(doc.FileName) == "" {
			return fmt.Errorf("%w: documents[%d].file_name обязателен", ErrValidation, i)
		}
	}
	return nil
}

// ProcessDocuments принимает документы: сохраняет PENDING-результат на
// каждый документ и ставит задачи в очередь. Документы, задачи которых не
// попали в очередь, сразу помечаются FAILED и в ответ не включаются.
func (s *ProcessingService) ProcessDocuments(ctx context.Context, req model.ProcessRequest) ([]SubmittedDocument, error) {
	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	tasks := make([]model.ProcessingTask, 0, len(req.Documents))
	pending := make(map[string]*model.ProcessedResult, len(req.Documents))
	for _, doc := range req.Documents {
		id := uuid.NewString()
		result := &model.ProcessedResult{
			DocumentID:         id,
			PlatformDocumentID: doc.PlatformDocumentID,
			OriginalFileName:   doc.FileName,
			FileURL:            doc.FileURL,
			DocumentType:       model.UnknownDocumentType,
			FinalDecision:      model.DecisionManualReview,
			Observations:       []model.Observation{},
			ProcessingStatus:   model.ProcessingPending,
			OwnerUserName:      req.OwnerUserName,
			URLResponse:        req.URLResponse,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := s.results.Put(ctx, result); err != nil {
			return nil, fmt.Errorf("сохранение результата: %w", err)
		}
		pending[id] = result
		tasks = append(tasks, model.ProcessingTask{
			DocumentID:           id,
			OwnerUserName:        req.OwnerUserName,
			Document:             doc,
			ProcessingType:       model.ProcessingTypePlatformDocument,
			URLResponse:          req.URLResponse,
			ApplicantData:        req.ApplicantData,
			ExpectedDocumentType: req.ExpectedDocumentType,
			Timestamp:            now,
		})
	}

	failed := s.publisher.Publish(ctx, tasks)
	for id, cause := range failed {
		result := pending[id]
		if result == nil {
			continue
		}
		result.ProcessingStatus = model.ProcessingFailed
		result.Observations = []model.Observation{{
			Rule:   model.RuleProcessingError,
			Reason: "No se pudo encolar el documento: " + cause.Error(),
		}}
		result.UpdatedAt = s.now().UTC()
		if err := s.results.Put(ctx, result); err != nil {
			s.logger.Error("Ошибка сохранения статуса FAILED",
				slog.String("document_id", id), slog.String("error", err.Error()))
		}
	}

	out := make([]SubmittedDocument, 0, len(tasks))
	for _, task := range tasks {
		if _, ok := failed[task.DocumentID]; ok {
			continue
		}
		out = append(out, SubmittedDocument{
			DocumentID:         task.DocumentID,
			PlatformDocumentID: task.Document.PlatformDocumentID,
			FileName:           task.Document.FileName,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: очередь обработки недоступна", ErrPeerUnavailable)
	}

	s.logger.Info("Документы приняты на обработку",
		slog.String("owner", req.OwnerUserName),
		slog.Int("accepted", len(out)),
		slog.Int("failed", len(failed)),
	)
	return out, nil
}

func mapResultError(err error) error {
	if errors.Is(err, resultstore.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// owned загружает результат и проверяет доступ.
func (s *ProcessingService) owned(ctx context.Context, caller Caller, documentID string) (*model.ProcessedResult, error) {
	result, err := s.results.Get(ctx, documentID)
	if err != nil {
		return nil, mapResultError(err)
	}
	if !caller.CanAccess(result.OwnerUserName) {
		return nil, ErrForbidden
	}
	return result, nil
}

// ListResults возвращает результаты. Непривилегированный субъект видит
// только свои результаты независимо от owner.
func (s *ProcessingService) ListResults(ctx context.Context, caller Caller, owner string, limit int) ([]*model.ProcessedResult, error) {
	if !caller.Privileged() {
		owner = caller.UserID
	}
	return s.results.List(ctx, owner, limit)
}

// GetResult возвращает результат обработки документа.
func (s *ProcessingService) GetResult(ctx context.Context, caller Caller, documentID string) (*model.ProcessedResult, error) {
	return s.owned(ctx, caller, documentID)
}

// UpdateDecision — ручное изменение итогового решения.
// Решение фиксируется наблюдением "Decisión Manual" и рассылается владельцу.
func (s *ProcessingService) UpdateDecision(ctx context.Context, caller Caller, documentID string, decision model.Decision, comment string) (*model.ProcessedResult, error) {
	if !decision.Valid() {
		return nil, fmt.Errorf("%w: decision должен быть APPROVED, REJECTED или MANUAL_REVIEW", ErrValidation)
	}
	result, err := s.owned(ctx, caller, documentID)
	if err != nil {
		return nil, err
	}

	reason := fmt.Sprintf("Decisión cambiada de %s a %s por %s", result.FinalDecision, decision, caller.UserID)
	if c := strings.TrimSpace(comment); c != "" {
		reason += ": " + c
	}
	result.Observations = append(result.Observations, model.Observation{Rule: model.RuleManualDecision, Reason: reason})
	result.FinalDecision = decision
	result.UpdatedAt = s.now().UTC()

	if err := s.results.Replace(ctx, result); err != nil {
		return nil, mapResultError(err)
	}
	s.logger.Info("Решение изменено вручную",
		slog.String("document_id", documentID),
		slog.String("decision", string(decision)),
		slog.String("by", caller.UserID),
	)

	if s.notifier != nil {
		update := model.DocumentUpdate{
			DocumentID:       documentID,
			Status:           "decision_updated",
			ProcessingStatus: result.ProcessingStatus,
			Phase:            "MANUAL_DECISION",
			Message:          reason,
			FileName:         result.OriginalFileName,
			Owner:            result.OwnerUserName,
			DocumentType:     result.DocumentType,
			Confidence:       result.Confidence,
			FinalDecision:    decision,
		}
		if result.PlatformDocumentID != nil {
			update.DocumentID = *result.PlatformDocumentID
		}
		if err := s.notifier.Notify(ctx, result.OwnerUserName, update); err != nil {
			s.logger.Warn("Ошибка отправки уведомления",
				slog.String("document_id", documentID), slog.String("error", err.Error()))
		}
	}
	return result, nil
}

// DeleteResult удаляет результат. Задачи в очереди для удалённого
// результата пропускаются воркером.
func (s *ProcessingService) DeleteResult(ctx context.Context, caller Caller, documentID string) error {
	if _, err := s.owned(ctx, caller, documentID); err != nil {
		return err
	}
	if _, err := s.results.Delete(ctx, documentID); err != nil {
		return mapResultError(err)
	}
	s.logger.Info("Результат обработки удалён", slog.String("document_id", documentID))
	return nil
}
