// handler.go — общие помощники HTTP-обработчиков: JSON, пагинация,
// субъект запроса и отображение ошибок сервисного слоя в коды API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/HoktusDevs/manpower-platform-app-sub003/internal/api/errors"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/api/middleware"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/service"
)

// maxBodySize — ограничение размера тела JSON-запроса.
const maxBodySize = 1 << 20

// Права доступа маршрутов.
var (
	anyUser   = []string{middleware.RoleAdmin, middleware.RoleApplicant}
	adminOnly = []string{middleware.RoleAdmin}
)

// listResponse — ответ списковых endpoints.
type listResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func newListResponse[T any](items []T, total, limit, offset int) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Total: total, Limit: limit, Offset: offset}
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает тело запроса в dst. При ошибке пишет 400 и возвращает false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(dst); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return false
	}
	return true
}

// paginationDefaults разбирает limit/offset из query.
// limit: 1..1000, по умолчанию 100; offset ≥ 0.
func paginationDefaults(r *http.Request) (limit, offset int, err error) {
	limit, offset = 100, 0
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("limit: некорректное число %q", v)
		}
		if limit < 1 {
			limit = 1
		}
		if limit > 1000 {
			limit = 1000
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("offset: некорректное число %q", v)
		}
		if offset < 0 {
			offset = 0
		}
	}
	return limit, offset, nil
}

// pagination разбирает limit/offset; при ошибке пишет 400 и возвращает false.
func pagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit, offset, err := paginationDefaults(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return 0, 0, false
	}
	return limit, offset, true
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// optionalQuery возвращает указатель на значение query-параметра или nil.
func optionalQuery(r *http.Request, key string) *string {
	if v := r.URL.Query().Get(key); v != "" {
		return &v
	}
	return nil
}

// syncParam разбирает query-параметр sync (по умолчанию true).
func syncParam(r *http.Request) (bool, error) {
	v := r.URL.Query().Get("sync")
	if v == "" {
		return true, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("sync: некорректное булево значение %q", v)
	}
	return b, nil
}

// callerFrom формирует субъект сервисного слоя из JWT claims.
// Для сервисного аккаунта идентификатором служит client_id.
func callerFrom(r *http.Request) service.Caller {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		return service.Caller{}
	}
	id := claims.Subject
	if claims.IsService() && claims.ClientID != "" {
		id = claims.ClientID
	}
	return service.Caller{
		UserID:  id,
		Admin:   claims.IsAdmin(),
		Service: claims.IsService(),
	}
}

// writeServiceError отображает ошибку сервисного слоя в ответ API.
// Неизвестные ошибки логируются и возвращаются как 500.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error, operation string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrInvalidTransition):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrPeerUnavailable):
		apierrors.PeerUnavailable(w, err.Error())
	default:
		logger.Error("Ошибка обработки запроса",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка: "+operation)
	}
}

// optionalString различает отсутствующее поле JSON, null и строку.
type optionalString struct {
	Set   bool
	Value *string
}

// UnmarshalJSON вызывается только для присутствующего поля.
func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}
