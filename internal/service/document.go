package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/blobstore"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/peerclient"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/repository"
)

// DocprocSubmitter — операции docproc-service, нужные folders-service.
// Реализуется *peerclient.DocprocClient.
type DocprocSubmitter interface {
	Submit(ctx context.Context, req model.ProcessRequest) (*peerclient.SubmitResponse, error)
	DeleteResult(ctx context.Context, documentID string) error
}

// UploadInput — параметры загрузки документа.
type UploadInput struct {
	FileName    string
	ContentType string
	Size        int64
}

// UploadTicket — созданный документ и presigned URL для загрузки.
type UploadTicket struct {
	Document  *model.Document `json:"document"`
	UploadURL string          `json:"uploadUrl"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// DocumentWithURL — документ с presigned URL на скачивание.
type DocumentWithURL struct {
	Document    *model.Document `json:"document"`
	DownloadURL string          `json:"downloadUrl"`
}

// DocumentServiceConfig — параметры DocumentService.
type DocumentServiceConfig struct {
	MaxFileSize       int64
	AllowedExtensions []string
	UploadURLTTL      time.Duration
	DownloadURLTTL    time.Duration
	// CallbackURL — адрес ProcessingCallback, передаётся в docproc как url_response
	CallbackURL string
}

// DocumentService — бизнес-логика документов в папках.
type DocumentService struct {
	docs    repository.DocumentRepository
	folders *FolderService
	blobs   BlobStore
	docproc DocprocSubmitter
	cfg     DocumentServiceConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewDocumentService создаёт сервис документов. docproc может быть nil —
// тогда документы остаются в статусе UPLOADED.
func NewDocumentService(
	docs repository.DocumentRepository,
	folders *FolderService,
	blobs BlobStore,
	docproc DocprocSubmitter,
	cfg DocumentServiceConfig,
	logger *slog.Logger,
) *DocumentService {
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = model.AllowedDocumentExtensions
	}
	return &DocumentService{
		docs:    docs,
		folders: folders,
		blobs:   blobs,
		docproc: docproc,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "document_service")),
		now:     time.Now,
	}
}

// documentKey формирует ключ объекта S3.
func documentKey(folderID, documentID, fileName string) string {
	return "documents/" + folderID + "/" + documentID + "/" + path.Base(fileName)
}

// CreateUpload создаёт запись документа и выдаёт presigned URL на загрузку.
func (s *DocumentService) CreateUpload(ctx context.Context, caller Caller, folderID string, in UploadInput) (*UploadTicket, error) {
	fileName := strings.TrimSpace(in.FileName)
	if fileName == "" || strings.ContainsAny(fileName, "/\\") {
		return nil, fmt.Errorf("%w: некорректное имя файла", ErrValidation)
	}
	if !model.HasAllowedExtension(fileName, s.cfg.AllowedExtensions) {
		return nil, fmt.Errorf("%w: расширение файла не поддерживается, допустимые: %s",
			ErrValidation, strings.Join(s.cfg.AllowedExtensions, ", "))
	}
	if in.Size <= 0 {
		return nil, fmt.Errorf("%w: size должен быть > 0", ErrValidation)
	}
	if in.Size > s.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: файл больше %d байт", ErrValidation, s.cfg.MaxFileSize)
	}

	folder, err := s.folders.GetFolder(ctx, caller, folderID)
	if err != nil {
		return nil, err
	}

	doc := &model.Document{
		DocumentID:  uuid.NewString(),
		FolderID:    folder.FolderID,
		UserID:      folder.UserID,
		FileName:    fileName,
		ContentType: in.ContentType,
		Size:        in.Size,
		Status:      model.DocumentPendingUpload,
	}
	doc.S3Key = documentKey(folder.FolderID, doc.DocumentID, fileName)

	uploadURL, err := s.blobs.PresignPut(ctx, doc.S3Key, doc.ContentType, s.cfg.UploadURLTTL)
	if err != nil {
		return nil, err
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, mapRepoError(err)
	}

	s.logger.Info("Документ создан, ожидается загрузка",
		slog.String("document_id", doc.DocumentID),
		slog.String("folder_id", doc.FolderID),
		slog.Int64("size", doc.Size),
	)
	return &UploadTicket{
		Document:  doc,
		UploadURL: uploadURL,
		ExpiresAt: s.now().Add(s.cfg.UploadURLTTL).UTC(),
	}, nil
}

// getOwned загружает документ и проверяет доступ.
func (s *DocumentService) getOwned(ctx context.Context, caller Caller, documentID string) (*model.Document, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if !caller.CanAccess(doc.UserID) {
		return nil, ErrForbidden
	}
	return doc, nil
}

// ConfirmUpload проверяет наличие файла в S3 и отправляет документ на обработку.
// Ошибка отправки не отменяет подтверждение: документ остаётся UPLOADED.
func (s *DocumentService) ConfirmUpload(ctx context.Context, caller Caller, documentID string) (*model.Document, error) {
	doc, err := s.getOwned(ctx, caller, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != model.DocumentPendingUpload && doc.Status != model.DocumentUploaded {
		return nil, fmt.Errorf("%w: документ уже в статусе %s", ErrConflict, doc.Status)
	}

	if _, err := s.blobs.Head(ctx, doc.S3Key); err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: файл не загружен", ErrConflict)
		}
		return nil, err
	}

	if err := s.docs.UpdateStatus(ctx, doc.DocumentID, model.DocumentUploaded, nil); err != nil {
		return nil, mapRepoError(err)
	}
	doc.Status = model.DocumentUploaded
	doc.Error = nil

	if s.docproc == nil {
		return doc, nil
	}

	processingID, err := s.submit(ctx, doc)
	if err != nil {
		msg := "отправка на обработку: " + err.Error()
		s.logger.Warn("Документ не отправлен на обработку",
			slog.String("document_id", doc.DocumentID), slog.String("error", err.Error()))
		if uerr := s.docs.UpdateStatus(ctx, doc.DocumentID, model.DocumentUploaded, &msg); uerr != nil {
			s.logger.Error("Ошибка сохранения статуса документа",
				slog.String("document_id", doc.DocumentID), slog.String("error", uerr.Error()))
		}
		doc.Error = &msg
		return doc, nil
	}

	if err := s.docs.MarkProcessing(ctx, doc.DocumentID, processingID); err != nil {
		return nil, mapRepoError(err)
	}
	doc.Status = model.DocumentProcessing
	if processingID != nil {
		doc.ProcessingID = processingID
	}
	return doc, nil
}

// submit отправляет документ в docproc-service и возвращает ID результата
// (nil, если docproc его не вернул).
func (s *DocumentService) submit(ctx context.Context, doc *model.Document) (*string, error) {
	fileURL, err := s.blobs.PresignGet(ctx, doc.S3Key, s.cfg.DownloadURLTTL)
	if err != nil {
		return nil, err
	}

	req := model.ProcessRequest{
		OwnerUserName: doc.UserID,
		Documents: []model.DocumentRef{{
			FileURL:            fileURL,
			FileName:           doc.FileName,
			PlatformDocumentID: &doc.DocumentID,
		}},
	}
	if s.cfg.CallbackURL != "" {
		req.URLResponse = &s.cfg.CallbackURL
	}

	resp, err := s.docproc.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Документ отправлен на обработку",
		slog.String("document_id", doc.DocumentID),
		slog.Any("processing_ids", resp.DocumentIDs),
	)
	if len(resp.DocumentIDs) == 0 || resp.DocumentIDs[0] == "" {
		return nil, nil
	}
	return &resp.DocumentIDs[0], nil
}

// processingIDOf возвращает ID результата документа в docproc-service.
func processingIDOf(doc *model.Document) string {
	if doc.ProcessingID != nil && *doc.ProcessingID != "" {
		return *doc.ProcessingID
	}
	if doc.ProcessingResult != nil {
		return doc.ProcessingResult.DocumentID
	}
	return ""
}

// ListDocuments возвращает документы папки.
func (s *DocumentService) ListDocuments(ctx context.Context, caller Caller, folderID string, limit, offset int) ([]*model.Document, int, error) {
	if _, err := s.folders.GetFolder(ctx, caller, folderID); err != nil {
		return nil, 0, err
	}
	items, err := s.docs.ListByFolder(ctx, folderID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.docs.CountByFolder(ctx, folderID)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// GetDocument возвращает документ; для загруженных файлов — с URL на скачивание.
func (s *DocumentService) GetDocument(ctx context.Context, caller Caller, documentID string) (*DocumentWithURL, error) {
	doc, err := s.getOwned(ctx, caller, documentID)
	if err != nil {
		return nil, err
	}
	out := &DocumentWithURL{Document: doc}
	if doc.Status == model.DocumentPendingUpload {
		return out, nil
	}
	if out.DownloadURL, err = s.blobs.PresignGet(ctx, doc.S3Key, s.cfg.DownloadURLTTL); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteDocument удаляет документ. Объект S3 и результат обработки
// удаляются best-effort.
func (s *DocumentService) DeleteDocument(ctx context.Context, caller Caller, documentID string) error {
	if _, err := s.getOwned(ctx, caller, documentID); err != nil {
		return err
	}
	doc, err := s.docs.Delete(ctx, documentID)
	if err != nil {
		return mapRepoError(err)
	}
	s.logger.Info("Документ удалён", slog.String("document_id", documentID))

	syncCtx, cancel := detached(ctx)
	defer cancel()

	if err := s.blobs.Delete(syncCtx, doc.S3Key); err != nil {
		syncFailed(s.logger, SyncDeleteBlobs, err, slog.String("document_id", documentID))
	}
	if processingID := processingIDOf(doc); s.docproc != nil && processingID != "" {
		if err := s.docproc.DeleteResult(syncCtx, processingID); err != nil {
			syncFailed(s.logger, SyncDeleteResults, err,
				slog.String("document_id", documentID), slog.String("processing_id", processingID))
		}
	}
	return nil
}

// ProcessingCallback сохраняет результат обработки от docproc-service.
// Документ определяется по platform_document_id.
func (s *DocumentService) ProcessingCallback(ctx context.Context, result *model.ProcessedResult) (*model.Document, error) {
	if result.PlatformDocumentID == nil || *result.PlatformDocumentID == "" {
		return nil, fmt.Errorf("%w: platform_document_id обязателен", ErrValidation)
	}
	if !result.ProcessingStatus.Terminal() {
		return nil, fmt.Errorf("%w: processing_status %q не является итоговым", ErrValidation, result.ProcessingStatus)
	}

	update := repository.ResultUpdate{
		Status: model.DocumentCompleted,
		Result: result,
	}
	if result.ProcessingStatus == model.ProcessingFailed {
		update.Status = model.DocumentFailed
		if len(result.Observations) > 0 {
			update.Error = &result.Observations[0].Reason
		}
	}
	if result.FinalDecision.Valid() {
		update.Decision = &result.FinalDecision
	}
	if result.DocumentType != "" {
		update.DocumentType = &result.DocumentType
	}

	doc, err := s.docs.SaveResult(ctx, *result.PlatformDocumentID, update)
	if err != nil {
		return nil, mapRepoError(err)
	}
	s.logger.Info("Результат обработки сохранён",
		slog.String("document_id", doc.DocumentID),
		slog.String("status", string(doc.Status)),
		slog.String("decision", string(result.FinalDecision)),
	)
	return doc, nil
}

// UpdateDecision устанавливает решение по документу вручную.
func (s *DocumentService) UpdateDecision(ctx context.Context, documentID string, decision model.Decision) (*model.Document, error) {
	if !decision.Valid() {
		return nil, fmt.Errorf("%w: недопустимое решение %q", ErrValidation, decision)
	}
	doc, err := s.docs.UpdateDecision(ctx, documentID, decision)
	if err != nil {
		return nil, mapRepoError(err)
	}
	s.logger.Info("Решение по документу изменено",
		slog.String("document_id", documentID), slog.String("decision", string(decision)))
	return doc, nil
}
