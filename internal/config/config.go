// Пакет config — загрузка и валидация конфигурации сервисов платформы
// из переменных окружения. Каждый сервис читает переменные со своим
// префиксом (RA_, FS_, DP_), общие блоки (сервер, БД, JWT, peer-клиенты)
// разбираются одинаковыми функциями.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// ServerConfig — параметры HTTP-сервера и логирования.
type ServerConfig struct {
	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// DBConfig — параметры подключения к PostgreSQL.
type DBConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	// Режим SSL: disable, require, verify-ca, verify-full
	SSLMode string
}

// DSN возвращает строку подключения к PostgreSQL для pgxpool.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Name, c.User, c.Password, c.SSLMode,
	)
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c DBConfig) MigrateURL() string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

// URL возвращает postgres:// URL без пароля (для лейблов topologymetrics).
func (c DBConfig) URL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.User, c.Host, c.Port, c.Name)
}

// AuthConfig — параметры валидации JWT (Cognito User Pool).
type AuthConfig struct {
	// URL JWKS endpoint User Pool
	JWKSURL string
	// Ожидаемый issuer (пустой — не проверяется)
	Issuer string
	// Группы Cognito, дающие роль admin
	AdminGroups []string
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение часов при проверке exp/nbf
	Leeway time.Duration
}

// PeerConfig — параметры HTTP-клиента к соседнему сервису.
type PeerConfig struct {
	// Базовый URL сервиса
	URL string
	// Таймаут одного запроса
	Timeout time.Duration
	// Количество попыток при сетевых ошибках и 5xx
	MaxAttempts int
}

// ClientCredentialsConfig — параметры получения SA-токена (client_credentials).
type ClientCredentialsConfig struct {
	// Token endpoint (например, https://<domain>.auth.<region>.amazoncognito.com/oauth2/token)
	TokenURL string
	ClientID string
	// Client secret SA
	ClientSecret string //nolint:gosec // G101: поле структуры
	// Запрашиваемые scopes через пробел
	Scope string
}

// Enabled сообщает, задан ли SA для межсервисных вызовов.
func (c ClientCredentialsConfig) Enabled() bool {
	return c.TokenURL != "" && c.ClientID != ""
}

// AWSConfig — параметры AWS SDK.
type AWSConfig struct {
	// Регион AWS
	Region string
	// Переопределение endpoint (LocalStack, MinIO). Пустой — endpoint по умолчанию.
	Endpoint string
}

// DephealthConfig — параметры мониторинга зависимостей (topologymetrics).
type DephealthConfig struct {
	// Имя группы в метриках
	Group string
	// Интервал проверки зависимостей
	CheckInterval time.Duration
	// Лейбл isentry=yes для всех зависимостей
	IsEntry bool
}

// loadDotEnv подгружает .env, если файл существует. Переменные окружения
// процесса имеют приоритет над значениями из файла.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
}

// loadServer читает блок параметров сервера с префиксом prefix.
func loadServer(prefix string, defaultPort int) (ServerConfig, error) {
	var (
		cfg ServerConfig
		err error
	)

	cfg.Port, err = getEnvInt(prefix+"PORT", defaultPort)
	if err != nil {
		return cfg, fmt.Errorf("%sPORT: %w", prefix, err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("%sPORT: значение %d вне диапазона 1-65535", prefix, cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault(prefix+"LOG_LEVEL", "info"))
	if err != nil {
		return cfg, fmt.Errorf("%sLOG_LEVEL: %w", prefix, err)
	}

	cfg.LogFormat = getEnvDefault(prefix+"LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return cfg, fmt.Errorf("%sLOG_FORMAT: недопустимое значение %q, допустимые: json, text", prefix, cfg.LogFormat)
	}

	cfg.ShutdownTimeout, err = getEnvDuration(prefix+"SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return cfg, fmt.Errorf("%sSHUTDOWN_TIMEOUT: %w", prefix, err)
	}

	return cfg, nil
}

// loadDB читает блок параметров PostgreSQL с префиксом prefix.
func loadDB(prefix string) (DBConfig, error) {
	var (
		cfg DBConfig
		err error
	)

	if cfg.Host, err = getEnvRequired(prefix + "DB_HOST"); err != nil {
		return cfg, err
	}
	if cfg.Port, err = getEnvInt(prefix+"DB_PORT", 5432); err != nil {
		return cfg, fmt.Errorf("%sDB_PORT: %w", prefix, err)
	}
	if cfg.Name, err = getEnvRequired(prefix + "DB_NAME"); err != nil {
		return cfg, err
	}
	if cfg.User, err = getEnvRequired(prefix + "DB_USER"); err != nil {
		return cfg, err
	}
	if cfg.Password, err = getEnvRequired(prefix + "DB_PASSWORD"); err != nil {
		return cfg, err
	}

	cfg.SSLMode = getEnvDefault(prefix+"DB_SSL_MODE", "disable")
	switch cfg.SSLMode {
	case "disable", "require", "verify-ca", "verify-full":
	default:
		return cfg, fmt.Errorf("%sDB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", prefix, cfg.SSLMode)
	}

	return cfg, nil
}

// loadAuth читает параметры JWT. JWKS URL и issuer вычисляются из
// региона и User Pool ID, если не заданы явно.
func loadAuth(prefix string) (AuthConfig, error) {
	var (
		cfg AuthConfig
		err error
	)

	region := getEnvDefault(prefix+"COGNITO_REGION", "us-east-1")
	poolID := getEnvDefault(prefix+"COGNITO_USER_POOL_ID", "")

	defaultIssuer := ""
	if poolID != "" {
		defaultIssuer = fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, poolID)
	}
	cfg.Issuer = getEnvDefault(prefix+"JWT_ISSUER", defaultIssuer)

	defaultJWKS := ""
	if defaultIssuer != "" {
		defaultJWKS = defaultIssuer + "/.well-known/jwks.json"
	}
	cfg.JWKSURL = getEnvDefault(prefix+"JWT_JWKS_URL", defaultJWKS)
	if cfg.JWKSURL == "" {
		return cfg, fmt.Errorf("%sJWT_JWKS_URL: обязательна, если не задан %sCOGNITO_USER_POOL_ID", prefix, prefix)
	}

	cfg.AdminGroups = parseCSV(getEnvDefault(prefix+"ADMIN_GROUPS", "admin"))

	if cfg.JWKSClientTimeout, err = getEnvDuration(prefix+"JWKS_CLIENT_TIMEOUT", 10*time.Second); err != nil {
		return cfg, fmt.Errorf("%sJWKS_CLIENT_TIMEOUT: %w", prefix, err)
	}
	if cfg.JWKSRefreshInterval, err = getEnvDuration(prefix+"JWKS_REFRESH_INTERVAL", 15*time.Minute); err != nil {
		return cfg, fmt.Errorf("%sJWKS_REFRESH_INTERVAL: %w", prefix, err)
	}
	if cfg.Leeway, err = getEnvDuration(prefix+"JWT_LEEWAY", 5*time.Second); err != nil {
		return cfg, fmt.Errorf("%sJWT_LEEWAY: %w", prefix, err)
	}

	return cfg, nil
}

// loadPeer читает параметры клиента к соседнему сервису name (например, FOLDERS).
// required — URL обязателен.
func loadPeer(prefix, name string, required bool) (PeerConfig, error) {
	var (
		cfg PeerConfig
		err error
	)

	key := prefix + name + "_URL"
	if required {
		if cfg.URL, err = getEnvRequired(key); err != nil {
			return cfg, err
		}
	} else {
		cfg.URL = getEnvDefault(key, "")
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	if cfg.Timeout, err = getEnvDuration(prefix+name+"_TIMEOUT", 10*time.Second); err != nil {
		return cfg, fmt.Errorf("%s%s_TIMEOUT: %w", prefix, name, err)
	}
	if cfg.MaxAttempts, err = getEnvInt(prefix+name+"_MAX_ATTEMPTS", 3); err != nil {
		return cfg, fmt.Errorf("%s%s_MAX_ATTEMPTS: %w", prefix, name, err)
	}
	if cfg.MaxAttempts < 1 || cfg.MaxAttempts > 10 {
		return cfg, fmt.Errorf("%s%s_MAX_ATTEMPTS: значение %d вне диапазона 1-10", prefix, name, cfg.MaxAttempts)
	}

	return cfg, nil
}

// loadClientCredentials читает параметры SA. Все поля опциональны:
// без них межсервисные запросы уходят без Authorization.
func loadClientCredentials(prefix, defaultScope string) ClientCredentialsConfig {
	return ClientCredentialsConfig{
		TokenURL:     getEnvDefault(prefix+"SA_TOKEN_URL", ""),
		ClientID:     getEnvDefault(prefix+"SA_CLIENT_ID", ""),
		ClientSecret: getEnvDefault(prefix+"SA_CLIENT_SECRET", ""),
		Scope:        getEnvDefault(prefix+"SA_SCOPE", defaultScope),
	}
}

// loadAWS читает регион и endpoint AWS.
func loadAWS(prefix string) AWSConfig {
	return AWSConfig{
		Region:   getEnvDefault(prefix+"AWS_REGION", getEnvDefault("AWS_REGION", "us-east-1")),
		Endpoint: strings.TrimRight(getEnvDefault(prefix+"AWS_ENDPOINT", ""), "/"),
	}
}

// loadDephealth читает параметры topologymetrics.
func loadDephealth(prefix string) (DephealthConfig, error) {
	var (
		cfg DephealthConfig
		err error
	)

	cfg.Group = getEnvDefault(prefix+"DEPHEALTH_GROUP", "manpower")
	if cfg.CheckInterval, err = getEnvDuration(prefix+"DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return cfg, fmt.Errorf("%sDEPHEALTH_CHECK_INTERVAL: %w", prefix, err)
	}
	if cfg.IsEntry, err = getEnvBool("DEPHEALTH_ISENTRY", false); err != nil {
		return cfg, fmt.Errorf("DEPHEALTH_ISENTRY: %w", err)
	}
	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер.
func SetupLogger(level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
