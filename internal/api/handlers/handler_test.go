package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/api/middleware"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var (
	adminClaims = &middleware.AuthClaims{
		Subject: "admin-1", SubjectType: middleware.SubjectTypeUser,
		Username: "admin", EffectiveRole: middleware.RoleAdmin,
	}
	applicantClaims = &middleware.AuthClaims{
		Subject: "user-1", SubjectType: middleware.SubjectTypeUser,
		Username: "ana", Email: "ana@example.cl", EffectiveRole: middleware.RoleApplicant,
	}
)

func saClaims(clientID string, scopes ...string) *middleware.AuthClaims {
	return &middleware.AuthClaims{
		Subject: clientID, SubjectType: middleware.SubjectTypeSA,
		ClientID: clientID, Scopes: scopes,
	}
}

// registrar — обработчик с методом Register.
type registrar interface {
	Register(r chi.Router)
}

// serve выполняет запрос через chi router с claims в контексте.
func serve(t *testing.T, h registrar, claims *middleware.AuthClaims, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims != nil {
				r = r.WithContext(middleware.WithClaims(r.Context(), claims))
			}
			next.ServeHTTP(w, r)
		})
	})
	h.Register(router)

	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// errorCode извлекает код ошибки из тела ответа.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("некорректное тело ошибки: %s", rec.Body.String())
	}
	return resp.Error.Code
}

func TestPaginationDefaults(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
		wantErr    bool
	}{
		{"", 100, 0, false},
		{"limit=20&offset=40", 20, 40, false},
		{"limit=0", 1, 0, false},
		{"limit=5000", 1000, 0, false},
		{"offset=-3", 100, 0, false},
		{"limit=abc", 0, 0, true},
		{"offset=1.5", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			limit, offset, err := paginationDefaults(req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, ожидается ошибка: %v", err, tt.wantErr)
			}
			if !tt.wantErr && (limit != tt.wantLimit || offset != tt.wantOffset) {
				t.Errorf("limit=%d offset=%d, ожидается %d/%d", limit, offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
		wantBody string
	}{
		{fmt.Errorf("%w: title обязателен", service.ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR"},
		{service.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{service.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{service.ErrConflict, http.StatusConflict, "CONFLICT"},
		{fmt.Errorf("%w: ACCEPTED → PENDING", service.ErrInvalidTransition), http.StatusConflict, "CONFLICT"},
		{service.ErrPeerUnavailable, http.StatusServiceUnavailable, "PEER_UNAVAILABLE"},
		{errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.wantBody, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, testLogger(), tt.err, "тест")
			if rec.Code != tt.wantCode {
				t.Errorf("статус = %d, ожидается %d", rec.Code, tt.wantCode)
			}
			if code := errorCode(t, rec); code != tt.wantBody {
				t.Errorf("code = %s, ожидается %s", code, tt.wantBody)
			}
		})
	}
}

func TestCallerFrom(t *testing.T) {
	tests := []struct {
		name   string
		claims *middleware.AuthClaims
		want   service.Caller
	}{
		{"no claims", nil, service.Caller{}},
		{"admin", adminClaims, service.Caller{UserID: "admin-1", Admin: true}},
		{"applicant", applicantClaims, service.Caller{UserID: "user-1"}},
		{"service account", saClaims("folders-service", "jobs:write"), service.Caller{UserID: "folders-service", Service: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.claims != nil {
				req = req.WithContext(middleware.WithClaims(req.Context(), tt.claims))
			}
			if got := callerFrom(req); got != tt.want {
				t.Errorf("caller = %+v, ожидается %+v", got, tt.want)
			}
		})
	}
}

func TestOptionalString(t *testing.T) {
	tests := []struct {
		body      string
		wantSet   bool
		wantValue string
	}{
		{`{}`, false, ""},
		{`{"parentId":null}`, true, ""},
		{`{"parentId":"f1"}`, true, "f1"},
	}
	for _, tt := range tests {
		var req struct {
			ParentID optionalString `json:"parentId"`
		}
		if err := json.Unmarshal([]byte(tt.body), &req); err != nil {
			t.Fatalf("%s: %v", tt.body, err)
		}
		if req.ParentID.Set != tt.wantSet {
			t.Errorf("%s: Set = %v", tt.body, req.ParentID.Set)
		}
		if got := deref(req.ParentID.Value); got != tt.wantValue {
			t.Errorf("%s: Value = %q", tt.body, got)
		}
	}

	var bad struct {
		ParentID optionalString `json:"parentId"`
	}
	if err := json.Unmarshal([]byte(`{"parentId":42}`), &bad); err == nil {
		t.Error("ожидалась ошибка для числа")
	}
}
