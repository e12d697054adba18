package docproc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// IdentityResult — результат проверки личности.
type IdentityResult struct {
	Valid      bool           `json:"valid"`
	Confidence float64        `json:"confidence"`
	Details    map[string]any `json:"details,omitempty"`
}

// Reason возвращает описание ошибки проверки из details.error.
func (r *IdentityResult) Reason() string {
	if s, ok := r.Details["error"].(string); ok && s != "" {
		return s
	}
	return "Sin detalles"
}

func invalidIdentity(reason string) *IdentityResult {
	return &IdentityResult{Details: map[string]any{"error": reason}}
}

// BoostrClient проверяет RUT и имя по базе Boostr.
type BoostrClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewBoostrClient создаёт клиент Boostr.
func NewBoostrClient(baseURL, apiKey string, timeout time.Duration) *BoostrClient {
	return &BoostrClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// stringField возвращает строковое поле извлечённых данных.
func stringField(data map[string]any, key string) string {
	if v, ok := data[key]; ok && v != nil {
		return strings.TrimSpace(fmt.Sprint(v))
	}
	return ""
}

// fullName собирает полное имя: nombre_completo или nombre + фамилии.
func fullName(data map[string]any) string {
	if _, ok := data["nombre_completo"]; ok {
		return stringField(data, "nombre_completo")
	}
	parts := make([]string, 0, 3)
	for _, key := range []string{"nombre", "apellido_paterno", "apellido_materno"} {
		if v := stringField(data, key); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// ValidateExtracted проверяет личность по извлечённым данным документа.
// Отсутствие RUT или имени — невалидный результат без обращения к API.
func (c *BoostrClient) ValidateExtracted(ctx context.Context, data map[string]any) (*IdentityResult, error) {
	rut := stringField(data, "rut")
	if rut == "" {
		rut = stringField(data, "numero_documento")
	}
	if rut == "" {
		return invalidIdentity("RUT no encontrado en documento"), nil
	}
	name := fullName(data)
	if name == "" {
		return invalidIdentity("Nombre no encontrado en documento"), nil
	}
	return c.ValidateRUT(ctx, rut, name, stringField(data, "fecha_nacimiento"))
}

// ValidateRUT вызывает POST /v1/identity/validate.
func (c *BoostrClient) ValidateRUT(ctx context.Context, rut, name, birthDate string) (*IdentityResult, error) {
	payload := map[string]string{
		"rut":    strings.NewReplacer(".", "", "-", "").Replace(rut),
		"nombre": name,
	}
	if birthDate != "" {
		payload["fecha_nacimiento"] = birthDate
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/identity/validate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("Error conectando con Boostr API: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Error conectando con Boostr API: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var result IdentityResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("Error inesperado en validación Boostr: %w", err)
		}
		return &result, nil
	case http.StatusNotFound:
		return invalidIdentity("RUT no encontrado en base de datos"), nil
	default:
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("Boostr API error: %d - %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}
}
