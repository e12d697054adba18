package docproc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/config"
	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
)

// Типы документов, которые распознаёт классификатор.
const (
	TypeCedulaFrontal = "Cédula de Identidad CL (Frontal)"
	TypeCedulaReverso = "Cédula de Identidad CL (Reverso)"
	TypeLicencia      = "Licencia de Conducir CL"
	TypePasaporte     = "Pasaporte"
	TypeCertificado   = "Certificado de Nacimiento"
	TypeOtro          = "Otro"
)

// promptTextLimit — максимум символов текста документа в промпте.
const promptTextLimit = 2000

// Classification — результат классификации.
type Classification struct {
	DocumentType string  `json:"document_type"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning,omitempty"`
}

// extractionSchema — поля, извлекаемые для типа документа.
type extractionSchema struct {
	fields      []string
	description string
}

var extractionSchemas = map[string]extractionSchema{
	TypeCedulaFrontal: {
		fields:      []string{"nombre", "apellido_paterno", "apellido_materno", "rut", "fecha_nacimiento", "nacionalidad"},
		description: "cédula de identidad chilena",
	},
	TypeLicencia: {
		fields:      []string{"nombre_completo", "rut", "fecha_vencimiento", "categoria", "direccion"},
		description: "licencia de conducir chilena",
	},
}

var defaultSchema = extractionSchema{fields: []string{"informacion_general"}, description: "documento"}

// Classifier классифицирует документ и извлекает данные через LLM.
type Classifier struct {
	generation llms.Model
	extraction llms.Model
}

// NewClassifier создаёт классификатор поверх готовых моделей.
func NewClassifier(generation, extraction llms.Model) *Classifier {
	return &Classifier{generation: generation, extraction: extraction}
}

// NewLLMClassifier создаёт классификатор с OpenAI-совместимым API
// (DeepSeek или OpenAI) по конфигурации конвейера.
func NewLLMClassifier(cfg *config.PipelineConfig) (*Classifier, error) {
	gen, err := openai.New(
		openai.WithToken(cfg.LLMAPIKey),
		openai.WithBaseURL(cfg.LLMBaseURL),
		openai.WithModel(cfg.LLMModelGeneration),
	)
	if err != nil {
		return nil, fmt.Errorf("создание LLM-клиента (%s): %w", cfg.LLMProvider, err)
	}
	ext := gen
	if cfg.LLMModelExtraction != cfg.LLMModelGeneration {
		if ext, err = openai.New(
			openai.WithToken(cfg.LLMAPIKey),
			openai.WithBaseURL(cfg.LLMBaseURL),
			openai.WithModel(cfg.LLMModelExtraction),
		); err != nil {
			return nil, fmt.Errorf("создание LLM-клиента (%s): %w", cfg.LLMProvider, err)
		}
	}
	return NewClassifier(gen, ext), nil
}

func truncate(text string) string {
	r := []rune(text)
	if len(r) > promptTextLimit {
		r = r[:promptTextLimit]
	}
	return string(r)
}

func classificationPrompt(text string) string {
	return fmt.Sprintf(`
Analiza el siguiente texto extraído de un documento y determina qué tipo de documento es.

Tipos de documentos posibles:
- %s
- %s
- %s
- %s
- %s
- %s

Texto del documento:
%s...

Responde en formato JSON con:
{
    "document_type": "tipo_identificado",
    "confidence": 0.95,
    "reasoning": "explicación_corta"
}
`, TypeCedulaFrontal, TypeCedulaReverso, TypeLicencia, TypePasaporte, TypeCertificado, TypeOtro, truncate(text))
}

func extractionPrompt(text, documentType string) string {
	schema, ok := extractionSchemas[documentType]
	if !ok {
		schema = defaultSchema
	}
	return fmt.Sprintf(`
Extrae la información estructurada del siguiente texto de una %s.

Campos a extraer: %s

Texto del documento:
%s...

Responde en formato JSON con los campos extraídos:
{
    "nombre": "valor_extraido",
    "fecha_vencimiento": "YYYY-MM-DD",
    "otros_campos": "valores"
}
`, schema.description, strings.Join(schema.fields, ", "), truncate(text))
}

func (c *Classifier) generate(ctx context.Context, model llms.Model, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, model, prompt,
		llms.WithTemperature(0.1),
		llms.WithMaxTokens(2000),
	)
}

// jsonObject снимает markdown-ограждение ```json и возвращает ответ,
// если он начинается с '{'.
func jsonObject(response string) (string, bool) {
	s := strings.TrimSpace(response)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	return s, strings.HasPrefix(s, "{")
}

// Classify определяет тип документа. Ответ модели не в формате JSON
// даёт тип Desconocido с нулевой уверенностью.
func (c *Classifier) Classify(ctx context.Context, text string) (*Classification, error) {
	resp, err := c.generate(ctx, c.generation, classificationPrompt(text))
	if err != nil {
		return nil, fmt.Errorf("Error en clasificación de documento: %w", err)
	}
	unknown := &Classification{DocumentType: model.UnknownDocumentType, Confidence: 0}

	obj, ok := jsonObject(resp)
	if !ok {
		unknown.Reasoning = "No se pudo clasificar el documento"
		return unknown, nil
	}
	var cl Classification
	if err := json.Unmarshal([]byte(obj), &cl); err != nil {
		unknown.Reasoning = "Respuesta de IA no válida"
		return unknown, nil
	}
	if cl.DocumentType == "" {
		cl.DocumentType = model.UnknownDocumentType
	}
	return &cl, nil
}

// Extract извлекает структурированные данные документа типа documentType.
// Ответ не в формате JSON даёт пустой результат.
func (c *Classifier) Extract(ctx context.Context, text, documentType string) (map[string]any, error) {
	resp, err := c.generate(ctx, c.extraction, extractionPrompt(text, documentType))
	if err != nil {
		return nil, fmt.Errorf("Error en extracción de datos: %w", err)
	}
	data := map[string]any{}
	obj, ok := jsonObject(resp)
	if !ok {
		return data, nil
	}
	if err := json.Unmarshal([]byte(obj), &data); err != nil {
		return map[string]any{}, nil
	}
	return data, nil
}
