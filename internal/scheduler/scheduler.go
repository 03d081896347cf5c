package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fentz26/doit/internal/audit"
	"github.com/fentz26/doit/internal/models"
	"github.com/fentz26/doit/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ExhaustedMessage is the error recorded on a job whose queue item was dropped.
const ExhaustedMessage = "delivery attempts exhausted"

// Handler executes one delivered queue item. Errors are logged; the item is
// acknowledged either way.
type Handler interface {
	Handle(ctx context.Context, item models.QueueItem) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, item models.QueueItem) error

// Handle calls f(ctx, item).
func (f HandlerFunc) Handle(ctx context.Context, item models.QueueItem) error {
	return f(ctx, item)
}

// Scheduler claims queue items under a lease and runs them on a bounded pool
// of worker goroutines.
type Scheduler struct {
	store    *store.Store
	recorder *audit.Recorder
	handler  Handler
	config   *Config
	logger   *zap.Logger
	holderID string

	// Worker pool state
	sem         *semaphore.Weighted
	mu          sync.Mutex
	activeItems map[string]models.JobType
	typeCounts  map[models.JobType]int
	processed   int
	failed      int
	dropped     int

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new scheduler.
func New(s *store.Store, rec *audit.Recorder, h Handler, cfg *Config, logger *zap.Logger) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		store:       s,
		recorder:    rec,
		handler:     h,
		config:      cfg,
		logger:      logger,
		holderID:    uuid.New().String(),
		sem:         semaphore.NewWeighted(int64(cfg.GlobalMax)),
		activeItems: make(map[string]models.JobType),
		typeCounts:  make(map[models.JobType]int),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins the scheduler loop.
func (sch *Scheduler) Start() {
	sch.wg.Add(1)
	go sch.schedulerLoop()
	sch.logger.Info("scheduler started", zap.String("holder_id", sch.holderID), zap.Int("global_max", sch.config.GlobalMax))
}

// Stop cancels in-flight workers and waits for them to return. Items they
// were holding are left unacknowledged and get redelivered after the lease.
func (sch *Scheduler) Stop() {
	sch.cancel()
	sch.wg.Wait()
	sch.logger.Info("scheduler stopped")
}

// schedulerLoop polls the queue and hands claimed items to workers.
func (sch *Scheduler) schedulerLoop() {
	defer sch.wg.Done()

	ticker := time.NewTicker(sch.config.GetPollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-sch.ctx.Done():
			return
		case <-ticker.C:
			sch.pollAndDispatch()
		}
	}
}

// pollAndDispatch drops exhausted items, then claims items until capacity
// or the queue runs out.
func (sch *Scheduler) pollAndDispatch() {
	sch.dropExhausted()

	for sch.ctx.Err() == nil {
		if !sch.sem.TryAcquire(1) {
			return
		}

		item, err := sch.store.ClaimNextItem(sch.holderID, sch.config.LeaseTTLSec, sch.saturatedTypes())
		if err != nil {
			sch.sem.Release(1)
			sch.logger.Error("claim queue item", zap.Error(err))
			return
		}
		if item == nil {
			sch.sem.Release(1)
			return
		}

		sch.mu.Lock()
		sch.activeItems[item.ID] = item.JobType
		sch.typeCounts[item.JobType]++
		sch.mu.Unlock()

		sch.logger.Info("dispatching queue item",
			zap.String("item_id", item.ID),
			zap.String("job_id", item.JobID),
			zap.String("job_type", string(item.JobType)),
			zap.Int("attempt", item.Attempts))

		sch.wg.Add(1)
		go sch.runItem(*item)
	}
}

// saturatedTypes returns the job types whose concurrency limit is reached.
func (sch *Scheduler) saturatedTypes() []models.JobType {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	var skip []models.JobType
	for _, jt := range models.JobTypes {
		if sch.typeCounts[jt] >= sch.config.GetJobTypeLimit(jt) {
			skip = append(skip, jt)
		}
	}
	return skip
}

// runItem executes one item under its job type's deadline and a lease heartbeat.
func (sch *Scheduler) runItem(item models.QueueItem) {
	defer sch.wg.Done()
	defer func() {
		sch.mu.Lock()
		delete(sch.activeItems, item.ID)
		sch.typeCounts[item.JobType]--
		sch.mu.Unlock()
		sch.sem.Release(1)
	}()

	ctx, cancel := context.WithTimeout(sch.ctx, sch.config.GetTimeout(item.JobType))
	defer cancel()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		sch.heartbeat(ctx, item)
	}()

	start := time.Now()
	err := sch.safeHandle(ctx, item)
	cancel()
	<-heartbeatDone

	logger := sch.logger.With(zap.String("item_id", item.ID), zap.String("job_id", item.JobID))

	sch.mu.Lock()
	sch.processed++
	if err != nil {
		sch.failed++
	}
	sch.mu.Unlock()

	if err != nil {
		logger.Warn("worker returned error", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
	} else {
		logger.Info("worker finished", zap.Duration("elapsed", time.Since(start)))
	}

	if sch.ctx.Err() != nil {
		logger.Info("scheduler stopping, leaving item for redelivery")
		return
	}
	if err := sch.store.AckItem(item.ID); err != nil {
		logger.Error("ack queue item", zap.Error(err))
	}
}

// safeHandle converts a handler panic into an error.
func (sch *Scheduler) safeHandle(ctx context.Context, item models.QueueItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return sch.handler.Handle(ctx, item)
}

// heartbeat renews the item's lease every third of its TTL until ctx ends.
func (sch *Scheduler) heartbeat(ctx context.Context, item models.QueueItem) {
	interval := time.Duration(sch.config.LeaseTTLSec) * time.Second / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := sch.store.RenewItemLease(item.ID, sch.holderID, sch.config.LeaseTTLSec)
			if errors.Is(err, store.ErrLeaseLost) {
				sch.logger.Warn("queue item lease lost", zap.String("item_id", item.ID), zap.String("job_id", item.JobID))
				return
			}
			if err != nil {
				sch.logger.Error("renew lease", zap.String("item_id", item.ID), zap.Error(err))
			}
		}
	}
}

// dropExhausted removes items that used up their deliveries and fails their jobs.
func (sch *Scheduler) dropExhausted() {
	if sch.config.MaxAttempts <= 0 {
		return
	}
	dropped, err := sch.store.DropExhausted(sch.config.MaxAttempts)
	if err != nil {
		sch.logger.Error("drop exhausted items", zap.Error(err))
		return
	}

	for _, item := range dropped {
		sch.mu.Lock()
		sch.dropped++
		sch.mu.Unlock()

		logger := sch.logger.With(zap.String("item_id", item.ID), zap.String("job_id", item.JobID))
		logger.Error("dropping queue item", zap.Int("attempts", item.Attempts))

		if sch.recorder != nil {
			sch.recorder.Record(audit.ActionQueueDrop, map[string]any{
				"item_id":  item.ID,
				"job_id":   item.JobID,
				"attempts": item.Attempts,
			}, audit.OutcomeFailure, item.JobID, ExhaustedMessage)
		}

		job, err := sch.store.GetJob(item.JobID)
		if err != nil {
			logger.Error("load job of dropped item", zap.Error(err))
			continue
		}
		if job == nil || job.Status.Terminal() {
			continue
		}
		if err := sch.store.WriteOutcome(job.ID, store.JobOutcome{Status: models.JobStatusFailed, Error: ExhaustedMessage}); err != nil {
			logger.Error("fail job of dropped item", zap.Error(err))
		}
	}
}

// GetStats returns current scheduler statistics.
func (sch *Scheduler) GetStats() map[string]interface{} {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	typeCounts := make(map[string]int)
	for k, v := range sch.typeCounts {
		typeCounts[string(k)] = v
	}

	return map[string]interface{}{
		"holder_id":       sch.holderID,
		"active_workers":  len(sch.activeItems),
		"global_max":      sch.config.GlobalMax,
		"job_type_counts": typeCounts,
		"processed":       sch.processed,
		"failed":          sch.failed,
		"dropped":         sch.dropped,
	}
}
