package peerclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpillora/backoff"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func staticToken(token string) TokenProvider {
	return func(context.Context) (string, error) { return token, nil }
}

func init() {
	retryBackoff = backoff.Backoff{Min: time.Millisecond, Max: 4 * time.Millisecond, Factor: 2}
}

func TestTokenSource_Caches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if r.PostForm.Get("grant_type") != "client_credentials" {
			t.Errorf("grant_type = %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("scope") != "folders:write" {
			t.Errorf("scope = %q", r.PostForm.Get("scope"))
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "ra-client" || pass != "secret" {
			t.Errorf("BasicAuth = %q/%q/%v", user, pass, ok)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","expires_in":3600,"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	ts := NewTokenSource(srv.URL, "ra-client", "secret", "folders:write", 5*time.Second, testLogger())

	for i := 0; i < 3; i++ {
		tok, err := ts.Token(context.Background())
		if err != nil {
			t.Fatalf("Token() ошибка: %v", err)
		}
		if tok != "tok-1" {
			t.Errorf("Token() = %q", tok)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("token endpoint вызван %d раз, ожидается 1", calls.Load())
	}
}

func TestTokenSource_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_client", http.StatusUnauthorized)
	}))
	defer srv.Close()

	ts := NewTokenSource(srv.URL, "x", "y", "", time.Second, testLogger())
	if _, err := ts.Token(context.Background()); err == nil {
		t.Fatal("ожидается ошибка для 401")
	}
}

func TestFoldersClient_CreateFolder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/folders" {
			t.Errorf("запрос %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sa-token" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		var req CreateFolderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("декодирование: %v", err)
		}
		if req.Type != model.FolderCargo || req.Name != "Operario" {
			t.Errorf("req = %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(model.Folder{FolderID: "f-1", Name: req.Name, Type: req.Type})
	}))
	defer srv.Close()

	c := NewFoldersClient(srv.URL, time.Second, 3, staticToken("sa-token"), testLogger())
	folder, err := c.CreateFolder(context.Background(), CreateFolderRequest{Name: "Operario", Type: model.FolderCargo})
	if err != nil {
		t.Fatalf("CreateFolder() ошибка: %v", err)
	}
	if folder.FolderID != "f-1" {
		t.Errorf("FolderID = %q", folder.FolderID)
	}
}

func TestFoldersClient_RetriesOn5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewFoldersClient(srv.URL, time.Second, 3, nil, testLogger())
	if err := c.DeleteFolder(context.Background(), "f-1", true); err != nil {
		t.Fatalf("DeleteFolder() ошибка: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("попыток = %d, ожидается 3", calls.Load())
	}
}

func TestFoldersClient_UnavailableAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewFoldersClient(srv.URL, time.Second, 2, nil, testLogger())
	err := c.RenameFolder(context.Background(), "f-1", "Nuevo")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("RenameFolder() = %v, ожидается ErrUnavailable", err)
	}
}

func TestFoldersClient_RetryWaitHonorsContext(t *testing.T) {
	saved := retryBackoff
	retryBackoff = backoff.Backoff{Min: time.Hour, Max: time.Hour}
	t.Cleanup(func() { retryBackoff = saved })

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	c := NewFoldersClient(srv.URL, time.Second, 5, nil, testLogger())
	start := time.Now()
	err := c.DeleteFolder(ctx, "f-1", true)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("DeleteFolder() = %v, ожидается DeadlineExceeded", err)
	}
	if calls.Load() != 1 || time.Since(start) > 5*time.Second {
		t.Errorf("попыток = %d за %s", calls.Load(), time.Since(start))
	}
}

func TestFoldersClient_NoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"VALIDATION_ERROR","message":"bad"}}`))
	}))
	defer srv.Close()

	c := NewFoldersClient(srv.URL, time.Second, 3, nil, testLogger())
	_, err := c.GetFolderByJob(context.Background(), "j-1")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadRequest {
		t.Errorf("GetFolderByJob() = %v, ожидается StatusError 400", err)
	}
	if calls.Load() != 1 {
		t.Errorf("попыток = %d, ожидается 1", calls.Load())
	}
}

func TestFoldersClient_DeleteSyncFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sync") != "false" {
			t.Errorf("sync = %q, ожидается false", r.URL.Query().Get("sync"))
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewFoldersClient(srv.URL, time.Second, 1, nil, testLogger())
	if err := c.DeleteFolder(context.Background(), "f-1", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteFolder() = %v, ожидается ErrNotFound", err)
	}
}

func TestRecruitmentClient_DeleteJobByFolder_NotFoundIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/jobs/by-folder/f-1" || r.Method != http.MethodDelete {
			t.Errorf("запрос %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("jobId"); got != "j-1" {
			t.Errorf("jobId = %q", got)
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewRecruitmentClient(srv.URL, time.Second, 1, nil, testLogger())
	if err := c.DeleteJobByFolder(context.Background(), "f-1", "j-1"); err != nil {
		t.Errorf("DeleteJobByFolder() = %v, ожидается nil", err)
	}
}

func TestCallbackClient_Send(t *testing.T) {
	var got model.ProcessedResult
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != CallbackUserAgent {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewCallbackClient("", time.Second, nil, testLogger())

	// Без URL — ничего не отправляется
	sent, err := c.Send(context.Background(), &model.ProcessedResult{DocumentID: "d-0"})
	if err != nil || sent {
		t.Errorf("Send() без URL = %v, %v", sent, err)
	}

	target := srv.URL + "/callback"
	sent, err = c.Send(context.Background(), &model.ProcessedResult{
		DocumentID:    "d-1",
		FinalDecision: model.DecisionApproved,
		URLResponse:   &target,
	})
	if err != nil || !sent {
		t.Fatalf("Send() = %v, %v", sent, err)
	}
	if got.DocumentID != "d-1" || got.FinalDecision != model.DecisionApproved {
		t.Errorf("получено %+v", got)
	}
}

func TestCallbackClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewCallbackClient(srv.URL, time.Second, nil, testLogger())
	if _, err := c.Send(context.Background(), &model.ProcessedResult{DocumentID: "d-1"}); err == nil {
		t.Error("ожидается ошибка для 500")
	}
}

func TestNotifyClient_Notify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req NotifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("декодирование: %v", err)
		}
		if req.UserID != "u-1" || req.Update.Action != model.DocumentUpdateAction {
			t.Errorf("req = %+v", req)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewNotifyClient(srv.URL, time.Second, nil, testLogger())
	err := c.Notify(context.Background(), "u-1", model.DocumentUpdate{Action: model.DocumentUpdateAction, DocumentID: "d-1"})
	if err != nil {
		t.Fatalf("Notify() ошибка: %v", err)
	}
}
