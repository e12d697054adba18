package config

import (
	"fmt"
	"time"
)

// RecruitmentConfig — конфигурация recruitment-api (вакансии, отклики, формы).
// Переменные окружения с префиксом RA_.
type RecruitmentConfig struct {
	Server ServerConfig
	DB     DBConfig
	Auth   AuthConfig

	// folders-service (пустой URL — синхронизация папок отключена)
	Folders PeerConfig
	// SA для вызовов folders-service (scope folders:write)
	SA ClientCredentialsConfig

	// Максимальный размер LRU-кэша вакансий для обогащения откликов
	CacheMaxSize int
	// TTL записи кэша
	CacheTTL time.Duration

	// Интервал досоздания недостающих папок (0 — отключено)
	ReconcileInterval time.Duration
	// Размер пакета записей за один проход reconciler
	ReconcileBatchSize int

	// Валидация тел запросов по OpenAPI
	OpenAPIValidation bool

	Dephealth DephealthConfig
}

// LoadRecruitment загружает конфигурацию recruitment-api.
func LoadRecruitment() (*RecruitmentConfig, error) {
	loadDotEnv()

	const prefix = "RA_"
	cfg := &RecruitmentConfig{}
	var err error

	if cfg.Server, err = loadServer(prefix, 8010); err != nil {
		return nil, err
	}
	if cfg.DB, err = loadDB(prefix); err != nil {
		return nil, err
	}
	if cfg.Auth, err = loadAuth(prefix); err != nil {
		return nil, err
	}
	if cfg.Folders, err = loadPeer(prefix, "FOLDERS", false); err != nil {
		return nil, err
	}
	cfg.SA = loadClientCredentials(prefix, "folders:write")

	if cfg.CacheMaxSize, err = getEnvInt(prefix+"CACHE_MAX_SIZE", 1000); err != nil {
		return nil, fmt.Errorf("%sCACHE_MAX_SIZE: %w", prefix, err)
	}
	if cfg.CacheMaxSize < 1 {
		return nil, fmt.Errorf("%sCACHE_MAX_SIZE: значение должно быть > 0", prefix)
	}
	if cfg.CacheTTL, err = getEnvDuration(prefix+"CACHE_TTL", 5*time.Minute); err != nil {
		return nil, fmt.Errorf("%sCACHE_TTL: %w", prefix, err)
	}

	if cfg.ReconcileInterval, err = getEnvDuration(prefix+"FOLDER_RECONCILE_INTERVAL", 10*time.Minute); err != nil {
		return nil, fmt.Errorf("%sFOLDER_RECONCILE_INTERVAL: %w", prefix, err)
	}
	if cfg.ReconcileBatchSize, err = getEnvInt(prefix+"FOLDER_RECONCILE_BATCH_SIZE", 100); err != nil {
		return nil, fmt.Errorf("%sFOLDER_RECONCILE_BATCH_SIZE: %w", prefix, err)
	}
	if cfg.ReconcileBatchSize < 1 || cfg.ReconcileBatchSize > 1000 {
		return nil, fmt.Errorf("%sFOLDER_RECONCILE_BATCH_SIZE: значение %d вне диапазона 1-1000", prefix, cfg.ReconcileBatchSize)
	}

	if cfg.OpenAPIValidation, err = getEnvBool(prefix+"OPENAPI_VALIDATION", true); err != nil {
		return nil, fmt.Errorf("%sOPENAPI_VALIDATION: %w", prefix, err)
	}
	if cfg.Dephealth, err = loadDephealth(prefix); err != nil {
		return nil, err
	}

	return cfg, nil
}
