package jobs

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/autochat-io/autochat-backend/internal/models"
	"github.com/autochat-io/autochat-backend/internal/services"
	"github.com/autochat-io/autochat-backend/internal/storage"
)

// SweeperJob periodically clears pending ingestions that never got a
// column selection, releasing their stored upload files. Format-decision
// expiry is handled by per-entry timers; this job only covers the
// selection stage, which has no timer of its own.
type SweeperJob struct {
	store    storage.Store
	pending  *services.PendingStore
	maxAge   time.Duration
	interval time.Duration
	log      *zap.Logger
	stop     chan struct{}
}

// NewSweeperJob creates the stale-ingestion sweeper.
func NewSweeperJob(store storage.Store, pending *services.PendingStore, maxAge time.Duration, log *zap.Logger) *SweeperJob {
	return &SweeperJob{
		store:    store,
		pending:  pending,
		maxAge:   maxAge,
		interval: maxAge / 2,
		log:      log,
		stop:     make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (j *SweeperJob) Start() {
	j.log.Info("starting stale ingestion sweeper",
		zap.Duration("max_age", j.maxAge),
		zap.Duration("interval", j.interval))
	go j.run()
}

// Stop halts the sweep loop.
func (j *SweeperJob) Stop() {
	close(j.stop)
}

func (j *SweeperJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep()
		case <-j.stop:
			return
		}
	}
}

func (j *SweeperJob) sweep() {
	stale := j.pending.SweepIngestions(j.maxAge)
	for _, ingestion := range stale {
		j.log.Info("sweeping abandoned ingestion",
			zap.Uint("tenant_id", ingestion.TenantID),
			zap.Uint("dataset_id", ingestion.DatasetID),
			zap.Time("created_at", ingestion.CreatedAt))

		if ingestion.SourceRef != "" {
			if err := os.Remove(ingestion.SourceRef); err != nil && !os.IsNotExist(err) {
				j.log.Warn("stale upload release failed",
					zap.String("path", ingestion.SourceRef), zap.Error(err))
			}
		}

		dataset, err := j.store.GetDataset(ingestion.DatasetID)
		if err != nil {
			continue
		}
		dataset.Status = models.DatasetStatusCancelled
		dataset.SourceRef = ""
		if err := j.store.UpdateDataset(dataset); err != nil {
			j.log.Warn("stale dataset update failed",
				zap.Uint("dataset_id", dataset.ID), zap.Error(err))
		}
	}
}
