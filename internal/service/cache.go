// CacheService — LRU-кэш кратких сведений о вакансиях с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mp_job_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш вакансий.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mp_job_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша вакансий.",
	})
)

// CacheService — кэш JobSummary для обогащения откликов.
// У каждого экземпляра recruitment-api собственный in-memory кэш.
type CacheService struct {
	cache *expirable.LRU[string, *model.JobSummary]
}

// NewCacheService создаёт LRU-кэш с указанным максимальным размером и TTL.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	return &CacheService{cache: expirable.NewLRU[string, *model.JobSummary](maxSize, nil, ttl)}
}

// Get возвращает сведения о вакансии по jobID.
func (c *CacheService) Get(jobID string) (*model.JobSummary, bool) {
	val, ok := c.cache.Get(jobID)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет запись.
func (c *CacheService) Set(jobID string, summary *model.JobSummary) {
	c.cache.Add(jobID, summary)
}

// Delete инвалидирует запись (при изменении или удалении вакансии).
func (c *CacheService) Delete(jobID string) {
	c.cache.Remove(jobID)
}
