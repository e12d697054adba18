package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
)

func processRequest(n int) model.ProcessRequest {
	req := model.ProcessRequest{OwnerUserName: "user-1", URLResponse: ptr("http://callback")}
	for i := 0; i < n; i++ {
		req.Documents = append(req.Documents, model.DocumentRef{
			FileURL:            "https://s3.test/doc.pdf",
			FileName:           "doc.pdf",
			PlatformDocumentID: ptr("platform-" + string(rune('a'+i))),
		})
	}
	return req
}

func TestProcessingService_ProcessDocuments(t *testing.T) {
	results := newMemResults()
	pub := &mockPublisher{}
	svc := NewProcessingService(results, pub, nil, 30, testLogger())

	req := processRequest(3)
	req.ApplicantData = &model.ApplicantData{RUT: "12345678-9"}
	submitted, err := svc.ProcessDocuments(context.Background(), req)
	if err != nil {
		t.Fatalf("ProcessDocuments() ошибка: %v", err)
	}
	if len(submitted) != 3 || len(pub.tasks) != 3 {
		t.Fatalf("принято %d, задач %d", len(submitted), len(pub.tasks))
	}

	for i, task := range pub.tasks {
		if task.DocumentID != submitted[i].DocumentID || task.ProcessingType != model.ProcessingTypePlatformDocument {
			t.Errorf("задача %d: %+v", i, task)
		}
		if task.ApplicantData == nil || *task.URLResponse != "http://callback" {
			t.Errorf("задача %d без данных запроса: %+v", i, task)
		}
		stored, err := results.Get(context.Background(), task.DocumentID)
		if err != nil || stored.ProcessingStatus != model.ProcessingPending || stored.OwnerUserName != "user-1" {
			t.Errorf("результат %d: %+v, %v", i, stored, err)
		}
	}
	if *submitted[1].PlatformDocumentID != "platform-b" {
		t.Errorf("platform_document_id = %s", *submitted[1].PlatformDocumentID)
	}
}

func TestProcessingService_ProcessDocuments_Validation(t *testing.T) {
	svc := NewProcessingService(newMemResults(), &mockPublisher{}, nil, 2, testLogger())

	tests := []struct {
		name   string
		modify func(r *model.ProcessRequest)
	}{
		{"no owner", func(r *model.ProcessRequest) { r.OwnerUserName = " " }},
		{"no documents", func(r *model.ProcessRequest) { r.Documents = nil }},
		{"too many", func(r *model.ProcessRequest) { *r = processRequest(3) }},
		{"no url", func(r *model.ProcessRequest) { r.Documents[0].FileURL = "" }},
		{"no name", func(r *model.ProcessRequest) { r.Documents[1].FileName = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := processRequest(2)
			tt.modify(&req)
			if _, err := svc.ProcessDocuments(context.Background(), req); !errors.Is(err, ErrValidation) {
				t.Errorf("ProcessDocuments() = %v, ожидается ErrValidation", err)
			}
		})
	}
}

func TestProcessingService_ProcessDocuments_PublishFailure(t *testing.T) {
	results := newMemResults()
	pub := &mockPublisher{failFn: func(task model.ProcessingTask) error {
		if *task.Document.PlatformDocumentID == "platform-b" {
			return errors.New("throttled")
		}
		return nil
	}}
	svc := NewProcessingService(results, pub, nil, 30, testLogger())

	submitted, err := svc.ProcessDocuments(context.Background(), processRequest(2))
	if err != nil {
		t.Fatal(err)
	}
	if len(submitted) != 1 || *submitted[0].PlatformDocumentID != "platform-a" {
		t.Fatalf("принято: %+v", submitted)
	}

	failedID := pub.tasks[1].DocumentID
	stored, _ := results.Get(context.Background(), failedID)
	if stored.ProcessingStatus != model.ProcessingFailed || !strings.Contains(stored.Observations[0].Reason, "throttled") {
		t.Errorf("результат неотправленной задачи: %+v", stored)
	}

	pub.failFn = func(model.ProcessingTask) error { return errors.New("down") }
	if _, err := svc.ProcessDocuments(context.Background(), processRequest(1)); !errors.Is(err, ErrPeerUnavailable) {
		t.Errorf("очередь недоступна = %v, ожидается ErrPeerUnavailable", err)
	}
}

func TestProcessingService_Results(t *testing.T) {
	results := newMemResults()
	notifier := &mockNotifier{}
	svc := NewProcessingService(results, &mockPublisher{}, notifier, 30, testLogger())
	ctx := context.Background()

	_ = results.Put(ctx, &model.ProcessedResult{DocumentID: "r1", OwnerUserName: "user-1", PlatformDocumentID: ptr("p1"),
		ProcessingStatus: model.ProcessingCompleted, FinalDecision: model.DecisionManualReview})
	_ = results.Put(ctx, &model.ProcessedResult{DocumentID: "r2", OwnerUserName: "user-2"})

	user := Caller{UserID: "user-1"}
	items, err := svc.ListResults(ctx, user, "user-2", 10)
	if err != nil || len(items) != 1 || items[0].DocumentID != "r1" {
		t.Errorf("ListResults() соискателя = %v, %v", items, err)
	}
	if items, _ = svc.ListResults(ctx, admin, "", 10); len(items) != 2 {
		t.Errorf("ListResults() администратора = %d", len(items))
	}

	if _, err := svc.GetResult(ctx, user, "r2"); !errors.Is(err, ErrForbidden) {
		t.Errorf("чужой результат = %v", err)
	}
	if _, err := svc.GetResult(ctx, user, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("несуществующий результат = %v", err)
	}

	updated, err := svc.UpdateDecision(ctx, admin, "r1", model.DecisionApproved, "verificado por teléfono")
	if err != nil {
		t.Fatalf("UpdateDecision() = %v", err)
	}
	last := updated.Observations[len(updated.Observations)-1]
	if updated.FinalDecision != model.DecisionApproved || last.Rule != model.RuleManualDecision ||
		!strings.Contains(last.Reason, "MANUAL_REVIEW a APPROVED") || !strings.HasSuffix(last.Reason, "verificado por teléfono") {
		t.Errorf("результат: %+v", updated)
	}
	if len(notifier.updates) != 1 || notifier.users[0] != "user-1" || notifier.updates[0].DocumentID != "p1" {
		t.Errorf("уведомления: %+v", notifier.updates)
	}
	if _, err := svc.UpdateDecision(ctx, admin, "r1", "MAYBE", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("недопустимое решение = %v", err)
	}

	if err := svc.DeleteResult(ctx, user, "r2"); !errors.Is(err, ErrForbidden) {
		t.Errorf("удаление чужого результата = %v", err)
	}
	if err := svc.DeleteResult(ctx, user, "r1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteResult(ctx, user, "r1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторное удаление = %v", err)
	}
}
