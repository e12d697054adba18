// reconciler.go — фоновая досинхронизация папок.
//
// FolderReconciler периодически (RA_FOLDER_RECONCILE_INTERVAL) находит вакансии
// без папки Cargo и отклики без папки соискателя и повторяет их создание.
// Это не даёт транзакционных гарантий: отсутствие папки остаётся допустимым
// промежуточным состоянием.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/repository"
)

var reconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mp_folder_reconcile_total",
	Help: "Результаты досинхронизации папок",
}, []string{"kind", "result"}) // kind: cargo, applicant; result: created, failed

// ReconcileResult — итог одного прохода.
type ReconcileResult struct {
	CargoCreated     int
	CargoFailed      int
	ApplicantCreated int
	ApplicantFailed  int
}

// FolderReconciler — фоновый сервис досинхронизации папок.
type FolderReconciler struct {
	jobs      repository.JobRepository
	apps      *ApplicationService
	appRepo   repository.ApplicationRepository
	folders   FolderSync
	batchSize int
	interval  time.Duration
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewFolderReconciler создаёт сервис досинхронизации.
func NewFolderReconciler(
	jobs repository.JobRepository,
	appRepo repository.ApplicationRepository,
	apps *ApplicationService,
	folders FolderSync,
	batchSize int,
	interval time.Duration,
	logger *slog.Logger,
) *FolderReconciler {
	return &FolderReconciler{
		jobs:      jobs,
		apps:      apps,
		appRepo:   appRepo,
		folders:   folders,
		batchSize: batchSize,
		interval:  interval,
		logger:    logger.With(slog.String("component", "folder_reconciler")),
	}
}

// Start запускает фоновую горутину с периодической досинхронизацией.
func (r *FolderReconciler) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)

		r.logger.Info("Досинхронизация папок запущена",
			slog.String("interval", r.interval.String()),
			slog.Int("batch_size", r.batchSize),
		)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Info("Досинхронизация папок остановлена")
				return
			case <-ticker.C:
				res := r.RunOnce(ctx)
				if res.CargoCreated+res.CargoFailed+res.ApplicantCreated+res.ApplicantFailed > 0 {
					r.logger.Info("Досинхронизация папок завершена",
						slog.Int("cargo_created", res.CargoCreated),
						slog.Int("cargo_failed", res.CargoFailed),
						slog.Int("applicant_created", res.ApplicantCreated),
						slog.Int("applicant_failed", res.ApplicantFailed),
					)
				}
			}
		}
	}()
}

// Stop останавливает фоновую горутину и ждёт завершения.
func (r *FolderReconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.done != nil {
		<-r.done
	}
}

// RunOnce выполняет один проход: сначала папки Cargo, затем папки соискателей.
func (r *FolderReconciler) RunOnce(ctx context.Context) ReconcileResult {
	var res ReconcileResult

	jobs, err := r.jobs.ListMissingFolder(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("Ошибка получения вакансий без папки", slog.String("error", err.Error()))
	}
	for _, job := range jobs {
		if _, err := ensureCargoFolder(ctx, r.folders, r.jobs, job); err != nil {
			res.CargoFailed++
			reconcileTotal.WithLabelValues("cargo", "failed").Inc()
			r.logger.Warn("Не удалось создать папку Cargo",
				slog.String("job_id", job.JobID), slog.String("error", err.Error()))
			continue
		}
		res.CargoCreated++
		reconcileTotal.WithLabelValues("cargo", "created").Inc()
	}

	apps, err := r.appRepo.ListMissingFolder(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("Ошибка получения откликов без папки", slog.String("error", err.Error()))
	}
	for _, app := range apps {
		job, err := r.jobs.GetByID(ctx, app.JobID)
		if err == nil {
			err = r.apps.ensureApplicantFolder(ctx, app, job)
		}
		if err != nil {
			res.ApplicantFailed++
			reconcileTotal.WithLabelValues("applicant", "failed").Inc()
			r.logger.Warn("Не удалось создать папку соискателя",
				slog.String("application_id", app.ApplicationID), slog.String("error", err.Error()))
			continue
		}
		res.ApplicantCreated++
		reconcileTotal.WithLabelValues("applicant", "created").Inc()
	}

	return res
}
