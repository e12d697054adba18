// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Каждый сервис платформы мониторит:
//   - PostgreSQL — SQL checker через существующий pgxpool (если у сервиса есть БД)
//   - peer-сервисы — HTTP checker к /health/ready
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// PeerDependency — peer-сервис для HTTP-проверки.
type PeerDependency struct {
	// Name — имя зависимости в метриках (например, folders-service)
	Name string
	// URL — базовый URL сервиса
	URL string
	// Critical — влияет ли недоступность на работоспособность сервиса
	Critical bool
}

// DephealthParams — параметры мониторинга зависимостей.
type DephealthParams struct {
	ServiceID string
	Group     string
	// DB — *sql.DB из pgxpool (stdlib.OpenDBFromPool); nil — без PostgreSQL
	DB            *sql.DB
	PgConnURL     string
	Peers         []PeerDependency
	CheckInterval time.Duration
	IsEntry       bool
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(params DephealthParams, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(params, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(params DephealthParams, logger *slog.Logger, registerer prometheus.Registerer) (*DephealthService, error) {
	return newDephealthService(params, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(params DephealthParams, logger *slog.Logger, extraOpts ...dephealth.Option) (*DephealthService, error) {
	opts := []dephealth.Option{dephealth.WithLogger(logger)}

	if params.DB != nil {
		pgDepOpts := []dephealth.DependencyOption{
			dephealth.FromURL(params.PgConnURL),
			dephealth.CheckInterval(params.CheckInterval),
			dephealth.Critical(true),
		}
		if params.IsEntry {
			pgDepOpts = append(pgDepOpts, dephealth.WithLabel("isentry", "yes"))
		}
		opts = append(opts, dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(params.DB)), pgDepOpts...))
	}

	for _, peer := range params.Peers {
		if peer.URL == "" {
			continue
		}
		depOpts := []dephealth.DependencyOption{
			dephealth.FromURL(peer.URL),
			dephealth.WithHTTPHealthPath("/health/ready"),
			dephealth.CheckInterval(params.CheckInterval),
			dephealth.Critical(peer.Critical),
		}
		if params.IsEntry {
			depOpts = append(depOpts, dephealth.WithLabel("isentry", "yes"))
		}
		if parsed, err := url.Parse(peer.URL); err == nil && parsed.Scheme == "https" {
			depOpts = append(depOpts, dephealth.WithHTTPTLSSkipVerify(false))
		}
		opts = append(opts, dephealth.HTTP(peer.Name, depOpts...))
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(params.ServiceID, params.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
