package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// recruitmentEnvs возвращает минимальный набор обязательных переменных RA_.
func recruitmentEnvs() map[string]string {
	return map[string]string{
		"RA_DB_HOST":              "localhost",
		"RA_DB_NAME":              "recruitment",
		"RA_DB_USER":              "manpower",
		"RA_DB_PASSWORD":          "secret",
		"RA_COGNITO_REGION":       "us-east-1",
		"RA_COGNITO_USER_POOL_ID": "us-east-1_AbCdEf",
	}
}

func TestLoadRecruitment_Defaults(t *testing.T) {
	setEnvs(t, recruitmentEnvs())

	cfg, err := LoadRecruitment()
	if err != nil {
		t.Fatalf("LoadRecruitment() вернул ошибку: %v", err)
	}

	if cfg.Server.Port != 8010 {
		t.Errorf("Port = %d, ожидается 8010", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.Server.LogLevel)
	}
	if cfg.Server.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.Server.LogFormat)
	}
	if cfg.DB.Port != 5432 {
		t.Errorf("DB.Port = %d, ожидается 5432", cfg.DB.Port)
	}
	wantIssuer := "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_AbCdEf"
	if cfg.Auth.Issuer != wantIssuer {
		t.Errorf("Issuer = %q, ожидается %q", cfg.Auth.Issuer, wantIssuer)
	}
	if cfg.Auth.JWKSURL != wantIssuer+"/.well-known/jwks.json" {
		t.Errorf("JWKSURL = %q", cfg.Auth.JWKSURL)
	}
	if len(cfg.Auth.AdminGroups) != 1 || cfg.Auth.AdminGroups[0] != "admin" {
		t.Errorf("AdminGroups = %v, ожидается [admin]", cfg.Auth.AdminGroups)
	}
	if cfg.Folders.URL != "" {
		t.Errorf("Folders.URL = %q, ожидается пустая строка", cfg.Folders.URL)
	}
	if cfg.Folders.MaxAttempts != 3 {
		t.Errorf("Folders.MaxAttempts = %d, ожидается 3", cfg.Folders.MaxAttempts)
	}
	if cfg.SA.Scope != "folders:write" {
		t.Errorf("SA.Scope = %q, ожидается folders:write", cfg.SA.Scope)
	}
	if cfg.SA.Enabled() {
		t.Error("SA.Enabled() = true без SA_TOKEN_URL")
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v, ожидается 5m", cfg.CacheTTL)
	}
	if cfg.ReconcileInterval != 10*time.Minute {
		t.Errorf("ReconcileInterval = %v, ожидается 10m", cfg.ReconcileInterval)
	}
	if !cfg.OpenAPIValidation {
		t.Error("OpenAPIValidation = false, ожидается true")
	}
	if cfg.Dephealth.CheckInterval != 15*time.Second {
		t.Errorf("Dephealth.CheckInterval = %v, ожидается 15s", cfg.Dephealth.CheckInterval)
	}
}

func TestLoadRecruitment_MissingRequired(t *testing.T) {
	for _, key := range []string{"RA_DB_HOST", "RA_DB_NAME", "RA_DB_USER", "RA_DB_PASSWORD"} {
		t.Run(key, func(t *testing.T) {
			envs := recruitmentEnvs()
			envs[key] = ""
			setEnvs(t, envs)

			_, err := LoadRecruitment()
			if err == nil {
				t.Fatalf("ожидалась ошибка при пустой %s", key)
			}
			if !strings.Contains(err.Error(), key) {
				t.Errorf("ошибка %q не содержит имя переменной %s", err, key)
			}
		})
	}
}

func TestLoadRecruitment_NoJWKS(t *testing.T) {
	envs := recruitmentEnvs()
	envs["RA_COGNITO_USER_POOL_ID"] = ""
	setEnvs(t, envs)

	if _, err := LoadRecruitment(); err == nil {
		t.Fatal("ожидалась ошибка без JWKS URL и User Pool ID")
	}
}

func TestLoadRecruitment_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"порт вне диапазона", "RA_PORT", "70000"},
		{"неверный уровень логов", "RA_LOG_LEVEL", "trace"},
		{"неверный формат логов", "RA_LOG_FORMAT", "xml"},
		{"неверный ssl mode", "RA_DB_SSL_MODE", "prefer"},
		{"неверная длительность", "RA_CACHE_TTL", "5 minutes"},
		{"неверное число попыток", "RA_FOLDERS_MAX_ATTEMPTS", "0"},
		{"неверный bool", "RA_OPENAPI_VALIDATION", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs := recruitmentEnvs()
			envs[tt.key] = tt.val
			setEnvs(t, envs)

			if _, err := LoadRecruitment(); err == nil {
				t.Errorf("ожидалась ошибка для %s=%s", tt.key, tt.val)
			}
		})
	}
}

func TestLoadFolders(t *testing.T) {
	setEnvs(t, map[string]string{
		"FS_DB_HOST":         "db",
		"FS_DB_NAME":         "folders",
		"FS_DB_USER":         "manpower",
		"FS_DB_PASSWORD":     "secret",
		"FS_JWT_JWKS_URL":    "http://jwks.local/jwks.json",
		"FS_S3_BUCKET":       "manpower-documents",
		"FS_RECRUITMENT_URL": "http://recruitment-api:8010/",
		"FS_AWS_ENDPOINT":    "http://localstack:4566/",
	})

	cfg, err := LoadFolders()
	if err != nil {
		t.Fatalf("LoadFolders() вернул ошибку: %v", err)
	}
	if cfg.Recruitment.URL != "http://recruitment-api:8010" {
		t.Errorf("Recruitment.URL = %q, ожидается без завершающего /", cfg.Recruitment.URL)
	}
	if cfg.AWS.Endpoint != "http://localstack:4566" {
		t.Errorf("AWS.Endpoint = %q", cfg.AWS.Endpoint)
	}
	if cfg.MaxFileSizeBytes() != 50*1024*1024 {
		t.Errorf("MaxFileSizeBytes() = %d, ожидается 50MB", cfg.MaxFileSizeBytes())
	}
	if cfg.UploadURLTTL != 15*time.Minute {
		t.Errorf("UploadURLTTL = %v, ожидается 15m", cfg.UploadURLTTL)
	}
	if cfg.TreeMaxDepth != 10 {
		t.Errorf("TreeMaxDepth = %d, ожидается 10", cfg.TreeMaxDepth)
	}
	if cfg.PublicURL != "http://localhost:8020" {
		t.Errorf("PublicURL = %q, ожидается http://localhost:8020", cfg.PublicURL)
	}
	if cfg.SA.Scope != "jobs:write documents:write" {
		t.Errorf("SA.Scope = %q, ожидается jobs:write documents:write", cfg.SA.Scope)
	}
}

func TestLoadFolders_MissingBucket(t *testing.T) {
	setEnvs(t, map[string]string{
		"FS_DB_HOST":      "db",
		"FS_DB_NAME":      "folders",
		"FS_DB_USER":      "manpower",
		"FS_DB_PASSWORD":  "secret",
		"FS_JWT_JWKS_URL": "http://jwks.local/jwks.json",
		"FS_S3_BUCKET":    "",
	})

	if _, err := LoadFolders(); err == nil {
		t.Fatal("ожидалась ошибка без FS_S3_BUCKET")
	}
}

func TestLoadDocproc(t *testing.T) {
	setEnvs(t, map[string]string{
		"DP_JWT_JWKS_URL":       "http://jwks.local/jwks.json",
		"DP_QUEUE_URL":          "https://sqs.us-east-1.amazonaws.com/123/document-processing",
		"DP_ALLOWED_EXTENSIONS": "pdf, .PNG",
	})

	cfg, err := LoadDocproc()
	if err != nil {
		t.Fatalf("LoadDocproc() вернул ошибку: %v", err)
	}
	if cfg.MaxDocumentsPerRequest != 30 {
		t.Errorf("MaxDocumentsPerRequest = %d, ожидается 30", cfg.MaxDocumentsPerRequest)
	}
	if cfg.Pipeline.ResultsTable != "document-processing-results" {
		t.Errorf("ResultsTable = %q", cfg.Pipeline.ResultsTable)
	}
	want := []string{".pdf", ".png"}
	if strings.Join(cfg.Pipeline.AllowedExtensions, ",") != strings.Join(want, ",") {
		t.Errorf("AllowedExtensions = %v, ожидается %v", cfg.Pipeline.AllowedExtensions, want)
	}
	if cfg.Pipeline.LLMProvider != "deepseek" || cfg.Pipeline.LLMBaseURL != "https://api.deepseek.com/v1" {
		t.Errorf("LLM = %s %s, ожидается deepseek по умолчанию", cfg.Pipeline.LLMProvider, cfg.Pipeline.LLMBaseURL)
	}
	if cfg.Pipeline.OCRMaxAttempts != 30 || cfg.Pipeline.OCRPollInterval != time.Second {
		t.Errorf("OCR poll = %d x %v, ожидается 30 x 1s", cfg.Pipeline.OCRMaxAttempts, cfg.Pipeline.OCRPollInterval)
	}
	if cfg.PollerEnabled {
		t.Error("PollerEnabled = true, ожидается false по умолчанию")
	}
	if cfg.WSPingInterval != 30*time.Second {
		t.Errorf("WSPingInterval = %v, ожидается 30s", cfg.WSPingInterval)
	}
}

func TestLoadDocproc_InvalidProvider(t *testing.T) {
	setEnvs(t, map[string]string{
		"DP_JWT_JWKS_URL": "http://jwks.local/jwks.json",
		"DP_QUEUE_URL":    "https://sqs.local/q",
		"DP_IA_PROVIDER":  "gemini",
	})

	if _, err := LoadDocproc(); err == nil {
		t.Fatal("ожидалась ошибка для неизвестного провайдера")
	}
}

func TestLoadDocprocWorker_NoAuthRequired(t *testing.T) {
	setEnvs(t, map[string]string{
		"DP_QUEUE_URL":    "https://sqs.local/q",
		"DP_IA_PROVIDER":  "openai",
		"DP_JWT_JWKS_URL": "",
	})

	p, _, err := LoadDocprocWorker()
	if err != nil {
		t.Fatalf("LoadDocprocWorker() вернул ошибку: %v", err)
	}
	if p.LLMModelGeneration != "gpt-4" {
		t.Errorf("LLMModelGeneration = %q, ожидается gpt-4", p.LLMModelGeneration)
	}
}

func TestParseCSV(t *testing.T) {
	got := parseCSV(" admin , ,hr-admins,")
	if len(got) != 2 || got[0] != "admin" || got[1] != "hr-admins" {
		t.Errorf("parseCSV = %v, ожидается [admin hr-admins]", got)
	}
	if parseCSV("") != nil {
		t.Error("parseCSV(\"\") должен вернуть nil")
	}
}

func TestDBConfig_URLs(t *testing.T) {
	c := DBConfig{Host: "db", Port: 5433, Name: "folders", User: "u", Password: "p", SSLMode: "disable"}
	if got := c.MigrateURL(); got != "pgx5://u:p@db:5433/folders?sslmode=disable" {
		t.Errorf("MigrateURL() = %q", got)
	}
	if got := c.URL(); got != "postgres://u@db:5433/folders" {
		t.Errorf("URL() = %q", got)
	}
}
