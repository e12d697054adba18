package config

import (
	"fmt"
	"strings"
	"time"
)

// FoldersConfig — конфигурация folders-service (дерево папок и документы).
// Переменные окружения с префиксом FS_.
type FoldersConfig struct {
	Server ServerConfig
	DB     DBConfig
	Auth   AuthConfig
	AWS    AWSConfig

	// recruitment-api (пустой URL — удаление вакансий при удалении папки Cargo отключено)
	Recruitment PeerConfig
	// docproc-service (пустой URL — документы не отправляются на обработку)
	Docproc PeerConfig
	// SA для вызовов recruitment-api и docproc-service
	SA ClientCredentialsConfig

	// Бакет S3 для файлов документов
	S3Bucket string
	// Максимальный размер загружаемого файла в мегабайтах
	MaxFileSizeMB int
	// TTL presigned URL на загрузку
	UploadURLTTL time.Duration
	// TTL presigned URL на скачивание (также передаётся в docproc)
	DownloadURLTTL time.Duration
	// Внешний URL сервиса, используется для callback от docproc
	PublicURL string
	// Максимальная глубина GetFolderTree по умолчанию
	TreeMaxDepth int

	OpenAPIValidation bool

	Dephealth DephealthConfig
}

// LoadFolders загружает конфигурацию folders-service.
func LoadFolders() (*FoldersConfig, error) {
	loadDotEnv()

	const prefix = "FS_"
	cfg := &FoldersConfig{}
	var err error

	if cfg.Server, err = loadServer(prefix, 8020); err != nil {
		return nil, err
	}
	if cfg.DB, err = loadDB(prefix); err != nil {
		return nil, err
	}
	if cfg.Auth, err = loadAuth(prefix); err != nil {
		return nil, err
	}
	cfg.AWS = loadAWS(prefix)

	if cfg.Recruitment, err = loadPeer(prefix, "RECRUITMENT", false); err != nil {
		return nil, err
	}
	if cfg.Docproc, err = loadPeer(prefix, "DOCPROC", false); err != nil {
		return nil, err
	}
	cfg.SA = loadClientCredentials(prefix, "jobs:write documents:write")

	if cfg.S3Bucket, err = getEnvRequired(prefix + "S3_BUCKET"); err != nil {
		return nil, err
	}
	if cfg.MaxFileSizeMB, err = getEnvInt(prefix+"MAX_FILE_SIZE_MB", 50); err != nil {
		return nil, fmt.Errorf("%sMAX_FILE_SIZE_MB: %w", prefix, err)
	}
	if cfg.MaxFileSizeMB < 1 {
		return nil, fmt.Errorf("%sMAX_FILE_SIZE_MB: значение должно быть > 0", prefix)
	}
	if cfg.UploadURLTTL, err = getEnvDuration(prefix+"UPLOAD_URL_TTL", 15*time.Minute); err != nil {
		return nil, fmt.Errorf("%sUPLOAD_URL_TTL: %w", prefix, err)
	}
	if cfg.DownloadURLTTL, err = getEnvDuration(prefix+"DOWNLOAD_URL_TTL", time.Hour); err != nil {
		return nil, fmt.Errorf("%sDOWNLOAD_URL_TTL: %w", prefix, err)
	}

	cfg.PublicURL = strings.TrimRight(getEnvDefault(prefix+"PUBLIC_URL", fmt.Sprintf("http://localhost:%d", cfg.Server.Port)), "/")

	if cfg.TreeMaxDepth, err = getEnvInt(prefix+"TREE_MAX_DEPTH", 10); err != nil {
		return nil, fmt.Errorf("%sTREE_MAX_DEPTH: %w", prefix, err)
	}
	if cfg.TreeMaxDepth < 1 || cfg.TreeMaxDepth > 50 {
		return nil, fmt.Errorf("%sTREE_MAX_DEPTH: значение %d вне диапазона 1-50", prefix, cfg.TreeMaxDepth)
	}

	if cfg.OpenAPIValidation, err = getEnvBool(prefix+"OPENAPI_VALIDATION", true); err != nil {
		return nil, fmt.Errorf("%sOPENAPI_VALIDATION: %w", prefix, err)
	}
	if cfg.Dephealth, err = loadDephealth(prefix); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MaxFileSizeBytes возвращает лимит размера файла в байтах.
func (c *FoldersConfig) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}
