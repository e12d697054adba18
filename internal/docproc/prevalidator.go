package docproc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
)

// ErrInvalidDocument — документ не прошёл предварительную проверку.
// Такой документ отклоняется без повторов.
var ErrInvalidDocument = errors.New("Documento no válido")

// Prevalidator проверяет доступность и формат файла до OCR.
type Prevalidator struct {
	httpClient *http.Client
	allowed    []string
	maxSize    int64
}

// NewPrevalidator создаёт проверку. Таймаут HEAD-запроса задаётся в httpClient.
func NewPrevalidator(allowed []string, maxSize int64, httpClient *http.Client) *Prevalidator {
	return &Prevalidator{httpClient: httpClient, allowed: allowed, maxSize: maxSize}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDocument, fmt.Sprintf(format, args...))
}

// Validate проверяет URL (HEAD 200), расширение и Content-Length.
// Отсутствие Content-Length допустимо.
func (p *Prevalidator) Validate(ctx context.Context, doc model.DocumentRef) error {
	if doc.FileURL == "" {
		return invalid("URL del documento no proporcionada")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, doc.FileURL, nil)
	if err != nil {
		return invalid("URL del documento inválida")
	}
	resp, err := p.httpClient.Do(req) //nolint:gosec // G704: URL из запроса платформы
	if err != nil {
		return invalid("%s", connectionErrorMessage(err))
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return invalid("No se pudo acceder a la URL del documento (código de error: %d)", resp.StatusCode)
	}

	if !model.HasAllowedExtension(doc.FileName, p.allowed) {
		return invalid("Tipo de archivo no soportado: %s", doc.FileName)
	}

	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if size, err := strconv.ParseInt(cl, 10, 64); err == nil && size > p.maxSize {
			return invalid("Archivo demasiado grande (máximo %dMB)", p.maxSize/(1024*1024))
		}
	}
	return nil
}

// connectionErrorMessage формирует читаемое сообщение об ошибке соединения.
func connectionErrorMessage(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "No se pudo acceder a la URL del documento (dominio no encontrado)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "No se pudo acceder a la URL del documento (tiempo de espera agotado)"
	}
	return "No se pudo acceder a la URL del documento"
}
