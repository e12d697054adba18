// Пакет errors — ответы с ошибками в едином для всех сервисов формате
// {"error": {"code": "...", "message": "..."}}. Коды совпадают с OpenAPI-контрактами.
package errors

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeConflict        = "CONFLICT"
	CodePeerUnavailable = "PEER_UNAVAILABLE"
	CodeInternalError   = "INTERNAL_ERROR"
)

var statusByCode = map[string]int{
	CodeValidationError: http.StatusBadRequest,
	CodeUnauthorized:    http.StatusUnauthorized,
	CodeForbidden:       http.StatusForbidden,
	CodeNotFound:        http.StatusNotFound,
	CodeConflict:        http.StatusConflict,
	CodeInternalError:   http.StatusInternalServerError,
	CodePeerUnavailable: http.StatusServiceUnavailable,
}

// Body — тело ответа с ошибкой.
type Body struct {
	Error Detail `json:"error"`
}

// Detail — код и описание ошибки.
type Detail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Write пишет ошибку с HTTP-статусом, соответствующим коду.
// Неизвестный код отдаётся как 500.
func Write(w http.ResponseWriter, code, message string) {
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Body{Error: Detail{Code: code, Message: message}})
}

func ValidationError(w http.ResponseWriter, message string) { Write(w, CodeValidationError, message) }

func NotFound(w http.ResponseWriter, message string) { Write(w, CodeNotFound, message) }

func Unauthorized(w http.ResponseWriter, message string) { Write(w, CodeUnauthorized, message) }

func Forbidden(w http.ResponseWriter, message string) { Write(w, CodeForbidden, message) }

func Conflict(w http.ResponseWriter, message string) { Write(w, CodeConflict, message) }

// PeerUnavailable — соседний сервис или очередь недоступны.
func PeerUnavailable(w http.ResponseWriter, message string) { Write(w, CodePeerUnavailable, message) }

func InternalError(w http.ResponseWriter, message string) { Write(w, CodeInternalError, message) }
