package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/osintlab/trendwatch/pkg/config"
	"github.com/osintlab/trendwatch/pkg/models"
	"github.com/osintlab/trendwatch/pkg/services"
)

// WorkerPool manages the pipeline workers and the stale-item reaper.
type WorkerPool struct {
	podID     string
	cfg       *config.PipelineConfig
	items     *services.ItemService
	processor *Processor

	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

// NewWorkerPool creates a worker pool.
func NewWorkerPool(podID string, cfg *config.PipelineConfig, items *services.ItemService, processor *Processor) *WorkerPool {
	return &WorkerPool{
		podID:     podID,
		cfg:       cfg,
		items:     items,
		processor: processor,
		workers:   make([]*Worker, 0, cfg.WorkerCount),
		stopCh:    make(chan struct{}),
	}
}

// Start spawns the workers and the reaper. Safe to call multiple times;
// subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return nil
	}
	p.started = true

	slog.Info("Starting worker pool", "pod_id", p.podID, "worker_count", p.cfg.WorkerCount)

	for i := 0; i < p.cfg.WorkerCount; i++ {
		worker := NewWorker(fmt.Sprintf("%s-worker-%d", p.podID, i), p.cfg, p.items, p.processor)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runReaper(ctx)
	}()

	slog.Info("Worker pool started")
	return nil
}

// Stop signals all workers to stop and waits for them to finish their
// current items.
func (p *WorkerPool) Stop() {
	slog.Info("Stopping worker pool gracefully")
	for _, worker := range p.workers {
		worker.Stop()
	}
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	slog.Info("Worker pool stopped gracefully")
}

// runReaper periodically resets items stuck in processing. Any replica may
// reap any item: a crashed pod's claims are recovered by whoever scans next.
func (p *WorkerPool) runReaper(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.items.ReapStale(ctx, p.cfg.ReaperTimeout); err != nil {
				slog.Error("Stale item reap failed", "pod_id", p.podID, "error", err)
			}
		}
	}
}

// Worker is one polling pipeline worker.
type Worker struct {
	id        string
	cfg       *config.PipelineConfig
	items     *services.ItemService
	processor *Processor

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu             sync.Mutex
	itemsProcessed int
}

// NewWorker creates a pipeline worker.
func NewWorker(id string, cfg *config.PipelineConfig, items *services.ItemService, processor *Processor) *Worker {
	return &Worker{
		id:        id,
		cfg:       cfg,
		items:     items,
		processor: processor,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish. Safe to call
// multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// ItemsProcessed returns how many items this worker has completed.
func (w *Worker) ItemsProcessed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.itemsProcessed
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, services.ErrNoItemsAvailable) || errors.Is(err, services.ErrAtCapacity) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("Error processing item", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) pollAndProcess(ctx context.Context) error {
	item, err := w.items.Claim(ctx, w.cfg.MaxConcurrentItems)
	if err != nil {
		return err
	}

	log := slog.With("worker_id", w.id, "item_id", item.ID)
	log.Info("Item claimed")

	itemCtx, cancel := context.WithTimeout(ctx, w.cfg.ItemTimeout)
	defer cancel()

	if err := w.processor.Process(itemCtx, item); err != nil {
		// Terminal-status write failed; park the item so it is not lost.
		if finishErr := w.items.Finish(context.Background(), item.ID,
			models.StatusError, err.Error()); finishErr != nil {
			log.Error("Failed to record item failure", "error", finishErr)
		}
		return err
	}

	w.mu.Lock()
	w.itemsProcessed++
	w.mu.Unlock()

	log.Info("Item processing complete")
	return nil
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollInterval returns the poll duration with jitter to de-synchronize
// workers across replicas.
func (w *Worker) pollInterval() time.Duration {
	base := w.cfg.PollInterval
	jitter := w.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}
