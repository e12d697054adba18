package config

import (
	"fmt"
	"strings"
	"time"
)

// PipelineConfig — параметры конвейера обработки документов.
// Общий блок для docproc-service (in-process poller) и docproc-worker (Lambda).
type PipelineConfig struct {
	AWS AWSConfig

	// URL очереди SQS
	QueueURL string
	// Таблица DynamoDB с результатами обработки
	ResultsTable string
	// GSI таблицы результатов по owner_user_name
	OwnerIndex string

	// Допустимые расширения файлов (с точкой, в нижнем регистре)
	AllowedExtensions []string
	// Максимальный размер файла в мегабайтах
	MaxFileSizeMB int
	// Таймаут HEAD-запроса предварительной проверки
	PrevalidateTimeout time.Duration

	// --- Azure Vision (OCR) ---
	AzureEndpoint string
	AzureKey      string //nolint:gosec // G101: поле структуры
	AzureTimeout  time.Duration
	// Интервал опроса analyzeResults
	OCRPollInterval time.Duration
	// Максимальное количество опросов analyzeResults
	OCRMaxAttempts int

	// --- LLM (OpenAI-совместимый API) ---
	// Провайдер: deepseek, openai
	LLMProvider        string
	LLMAPIKey          string //nolint:gosec // G101: поле структуры
	LLMBaseURL         string
	LLMModelGeneration string
	LLMModelExtraction string

	// --- Boostr (валидация личности CL) ---
	BoostrAPIKey  string //nolint:gosec // G101: поле структуры
	BoostrBaseURL string
	BoostrTimeout time.Duration

	// URL callback по умолчанию, если в запросе не указан url_response
	ResultsNotificationURL string
	// Таймаут отправки callback
	CallbackTimeout time.Duration
	// URL /internal/notify docproc-service (для worker вне процесса сервиса)
	NotifyURL string
	// SA для callback и notify (scope documents:write notify:write)
	SA ClientCredentialsConfig
}

// MaxFileSizeBytes возвращает лимит размера файла в байтах.
func (c *PipelineConfig) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// DocprocConfig — конфигурация docproc-service.
// Переменные окружения с префиксом DP_.
type DocprocConfig struct {
	Server   ServerConfig
	Auth     AuthConfig
	Pipeline PipelineConfig

	// Максимальное количество документов в одном запросе
	MaxDocumentsPerRequest int
	// Запускать in-process поллер SQS (без Lambda)
	PollerEnabled bool
	// Long polling SQS
	PollerWaitTime time.Duration
	// Количество параллельных обработчиков поллера
	PollerConcurrency int
	// Интервал ping для WebSocket-соединений
	WSPingInterval time.Duration

	OpenAPIValidation bool
}

const docprocPrefix = "DP_"

// LoadDocproc загружает конфигурацию docproc-service.
func LoadDocproc() (*DocprocConfig, error) {
	loadDotEnv()

	const prefix = docprocPrefix
	cfg := &DocprocConfig{}
	var err error

	if cfg.Server, err = loadServer(prefix, 8030); err != nil {
		return nil, err
	}
	if cfg.Auth, err = loadAuth(prefix); err != nil {
		return nil, err
	}
	if cfg.Pipeline, err = loadPipeline(prefix); err != nil {
		return nil, err
	}

	if cfg.MaxDocumentsPerRequest, err = getEnvInt(prefix+"MAX_DOCUMENTS_PER_REQUEST", 30); err != nil {
		return nil, fmt.Errorf("%sMAX_DOCUMENTS_PER_REQUEST: %w", prefix, err)
	}
	if cfg.MaxDocumentsPerRequest < 1 {
		return nil, fmt.Errorf("%sMAX_DOCUMENTS_PER_REQUEST: значение должно быть > 0", prefix)
	}
	if cfg.PollerEnabled, err = getEnvBool(prefix+"SQS_POLLER_ENABLED", false); err != nil {
		return nil, fmt.Errorf("%sSQS_POLLER_ENABLED: %w", prefix, err)
	}
	if cfg.PollerWaitTime, err = getEnvDuration(prefix+"SQS_WAIT_TIME", 20*time.Second); err != nil {
		return nil, fmt.Errorf("%sSQS_WAIT_TIME: %w", prefix, err)
	}
	if cfg.PollerWaitTime < 0 || cfg.PollerWaitTime > 20*time.Second {
		return nil, fmt.Errorf("%sSQS_WAIT_TIME: значение %s вне диапазона 0-20s", prefix, cfg.PollerWaitTime)
	}
	if cfg.PollerConcurrency, err = getEnvInt(prefix+"SQS_POLLER_CONCURRENCY", 3); err != nil {
		return nil, fmt.Errorf("%sSQS_POLLER_CONCURRENCY: %w", prefix, err)
	}
	if cfg.PollerConcurrency < 1 || cfg.PollerConcurrency > 10 {
		return nil, fmt.Errorf("%sSQS_POLLER_CONCURRENCY: значение %d вне диапазона 1-10", prefix, cfg.PollerConcurrency)
	}
	if cfg.WSPingInterval, err = getEnvDuration(prefix+"WS_PING_INTERVAL", 30*time.Second); err != nil {
		return nil, fmt.Errorf("%sWS_PING_INTERVAL: %w", prefix, err)
	}
	if cfg.OpenAPIValidation, err = getEnvBool(prefix+"OPENAPI_VALIDATION", true); err != nil {
		return nil, fmt.Errorf("%sOPENAPI_VALIDATION: %w", prefix, err)
	}

	return cfg, nil
}

// LoadDocprocWorker загружает конфигурацию docproc-worker (Lambda).
// Worker не поднимает HTTP-сервер и не валидирует JWT.
func LoadDocprocWorker() (*PipelineConfig, ServerConfig, error) {
	loadDotEnv()

	srv, err := loadServer(docprocPrefix, 8030)
	if err != nil {
		return nil, srv, err
	}
	p, err := loadPipeline(docprocPrefix)
	if err != nil {
		return nil, srv, err
	}
	return &p, srv, nil
}

// loadPipeline читает параметры конвейера обработки.
func loadPipeline(prefix string) (PipelineConfig, error) {
	var (
		cfg PipelineConfig
		err error
	)

	cfg.AWS = loadAWS(prefix)

	if cfg.QueueURL, err = getEnvRequired(prefix + "QUEUE_URL"); err != nil {
		return cfg, err
	}
	cfg.ResultsTable = getEnvDefault(prefix+"RESULTS_TABLE", "document-processing-results")
	cfg.OwnerIndex = getEnvDefault(prefix+"RESULTS_OWNER_INDEX", "owner_user_name-index")

	exts := parseCSV(getEnvDefault(prefix+"ALLOWED_EXTENSIONS", ".pdf,.jpg,.jpeg,.png,.tiff,.tif"))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		cfg.AllowedExtensions = append(cfg.AllowedExtensions, e)
	}
	if len(cfg.AllowedExtensions) == 0 {
		return cfg, fmt.Errorf("%sALLOWED_EXTENSIONS: список не может быть пустым", prefix)
	}

	if cfg.MaxFileSizeMB, err = getEnvInt(prefix+"MAX_FILE_SIZE_MB", 50); err != nil {
		return cfg, fmt.Errorf("%sMAX_FILE_SIZE_MB: %w", prefix, err)
	}
	if cfg.MaxFileSizeMB < 1 {
		return cfg, fmt.Errorf("%sMAX_FILE_SIZE_MB: значение должно быть > 0", prefix)
	}
	if cfg.PrevalidateTimeout, err = getEnvDuration(prefix+"PREVALIDATE_TIMEOUT", 10*time.Second); err != nil {
		return cfg, fmt.Errorf("%sPREVALIDATE_TIMEOUT: %w", prefix, err)
	}

	cfg.AzureEndpoint = strings.TrimRight(getEnvDefault(prefix+"AZURE_VISION_ENDPOINT", ""), "/")
	cfg.AzureKey = getEnvDefault(prefix+"AZURE_VISION_KEY", "")
	if cfg.AzureTimeout, err = getEnvDuration(prefix+"AZURE_VISION_TIMEOUT", 30*time.Second); err != nil {
		return cfg, fmt.Errorf("%sAZURE_VISION_TIMEOUT: %w", prefix, err)
	}
	if cfg.OCRPollInterval, err = getEnvDuration(prefix+"OCR_POLL_INTERVAL", time.Second); err != nil {
		return cfg, fmt.Errorf("%sOCR_POLL_INTERVAL: %w", prefix, err)
	}
	if cfg.OCRMaxAttempts, err = getEnvInt(prefix+"OCR_MAX_ATTEMPTS", 30); err != nil {
		return cfg, fmt.Errorf("%sOCR_MAX_ATTEMPTS: %w", prefix, err)
	}

	cfg.LLMProvider = strings.ToLower(getEnvDefault(prefix+"IA_PROVIDER", "deepseek"))
	switch cfg.LLMProvider {
	case "deepseek":
		cfg.LLMAPIKey = getEnvDefault(prefix+"DEEPSEEK_API_KEY", "")
		cfg.LLMBaseURL = getEnvDefault(prefix+"DEEPSEEK_API_BASE_URL", "https://api.deepseek.com/v1")
		cfg.LLMModelGeneration = getEnvDefault(prefix+"DEEPSEEK_MODEL_GENERATION", "deepseek-chat")
		cfg.LLMModelExtraction = getEnvDefault(prefix+"DEEPSEEK_MODEL_EXTRACTION", "deepseek-chat")
	case "openai":
		cfg.LLMAPIKey = getEnvDefault(prefix+"OPENAI_API_KEY", "")
		cfg.LLMBaseURL = getEnvDefault(prefix+"OPENAI_API_BASE_URL", "https://api.openai.com/v1")
		cfg.LLMModelGeneration = getEnvDefault(prefix+"OPENAI_MODEL_GENERATION", "gpt-4")
		cfg.LLMModelExtraction = getEnvDefault(prefix+"OPENAI_MODEL_EXTRACTION", "gpt-4")
	default:
		return cfg, fmt.Errorf("%sIA_PROVIDER: недопустимое значение %q, допустимые: deepseek, openai", prefix, cfg.LLMProvider)
	}

	cfg.BoostrAPIKey = getEnvDefault(prefix+"BOOSTR_API_KEY", "")
	cfg.BoostrBaseURL = strings.TrimRight(getEnvDefault(prefix+"BOOSTR_BASE_URL", "https://api.boostr.cl"), "/")
	if cfg.BoostrTimeout, err = getEnvDuration(prefix+"BOOSTR_TIMEOUT", 15*time.Second); err != nil {
		return cfg, fmt.Errorf("%sBOOSTR_TIMEOUT: %w", prefix, err)
	}

	cfg.ResultsNotificationURL = getEnvDefault(prefix+"RESULTS_NOTIFICATION_URL", "")
	if cfg.CallbackTimeout, err = getEnvDuration(prefix+"CALLBACK_TIMEOUT", 30*time.Second); err != nil {
		return cfg, fmt.Errorf("%sCALLBACK_TIMEOUT: %w", prefix, err)
	}
	cfg.NotifyURL = strings.TrimRight(getEnvDefault(prefix+"NOTIFY_URL", ""), "/")
	cfg.SA = loadClientCredentials(prefix, "documents:write notify:write")

	return cfg, nil
}
