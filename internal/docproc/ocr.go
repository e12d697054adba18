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

// OCRClient извлекает текст через Azure Computer Vision Read API v3.2.
type OCRClient struct {
	endpoint     string
	key          string
	httpClient   *http.Client
	pollInterval time.Duration
	maxAttempts  int
}

// NewOCRClient создаёт OCR-клиент.
func NewOCRClient(endpoint, key string, timeout, pollInterval time.Duration, maxAttempts int) *OCRClient {
	return &OCRClient{
		endpoint:     strings.TrimRight(endpoint, "/"),
		key:          key,
		httpClient:   &http.Client{Timeout: timeout},
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
	}
}

// readResult — ответ analyzeResults.
type readResult struct {
	Status        string `json:"status"`
	AnalyzeResult struct {
		ReadResults []struct {
			Lines []struct {
				Text string `json:"text"`
			} `json:"lines"`
		} `json:"readResults"`
	} `json:"analyzeResult"`
}

// ExtractText скачивает файл, запускает анализ и ждёт результата.
// Возвращает строки документа, объединённые через "\n".
func (c *OCRClient) ExtractText(ctx context.Context, fileURL string) (string, error) {
	content, err := c.download(ctx, fileURL)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/vision/v3.2/read/analyze", bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("solicitud OCR: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("Error al procesar documento con Azure Vision: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("Error al procesar documento con Azure Vision: HTTP %d", resp.StatusCode)
	}

	location := resp.Header.Get("Operation-Location")
	operationID := location[strings.LastIndex(location, "/")+1:]
	if operationID == "" {
		return "", fmt.Errorf("respuesta de Azure Vision sin Operation-Location")
	}
	return c.poll(ctx, operationID)
}

func (c *OCRClient) download(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("solicitud OCR: %w", err)
	}
	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из запроса платформы
	if err != nil {
		return nil, fmt.Errorf("descarga del documento: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("descarga del documento: HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *OCRClient) poll(ctx context.Context, operationID string) (string, error) {
	resultURL := c.endpoint + "/vision/v3.2/read/analyzeResults/" + operationID

	for range c.maxAttempts {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
		if err != nil {
			return "", fmt.Errorf("Error al obtener resultados OCR: %w", err)
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", c.key)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("Error al obtener resultados OCR: %w", err)
		}
		var result readResult
		decodeErr := json.NewDecoder(resp.Body).Decode(&result)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("Error al obtener resultados OCR: HTTP %d", resp.StatusCode)
		}
		if decodeErr != nil {
			return "", fmt.Errorf("Error al obtener resultados OCR: %w", decodeErr)
		}

		switch result.Status {
		case "succeeded":
			var lines []string
			for _, page := range result.AnalyzeResult.ReadResults {
				for _, line := range page.Lines {
					lines = append(lines, line.Text)
				}
			}
			return strings.Join(lines, "\n"), nil
		case "failed":
			return "", fmt.Errorf("El análisis OCR falló")
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
	return "", fmt.Errorf("Timeout esperando resultados de OCR")
}
