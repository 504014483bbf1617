// internal/maintenance/worker.go
package maintenance

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go-psyche/internal/config"
	"go-psyche/internal/memory"
)

// Result summarizes one maintenance pass. Skipped is true when another pass
// was already running and this invocation did nothing.
type Result struct {
	Skipped       bool `json:"skipped"`
	Promoted      int  `json:"promoted"`
	Evicted       int  `json:"evicted"`
	Recomputed    int  `json:"recomputed"`
	CacheReclaims int  `json:"cache_reclaims"`
}

// Runner performs the background hygiene pass: settle expired working
// memories, refresh stale neighborhoods, and age out cached embeddings. At
// most one pass runs at a time; overlapping invocations return immediately
// as skipped rather than queueing.
type Runner struct {
	store    *memory.Store
	cache    *memory.CachedEmbedder // May be nil when no redis is wired
	settings *config.Settings

	neighborBatch int
	cacheMaxAge   time.Duration

	running sync.Mutex
}

// NewRunner creates the maintenance runner
func NewRunner(store *memory.Store, cache *memory.CachedEmbedder, settings *config.Settings, neighborBatch int, cacheMaxAge time.Duration) *Runner {
	if neighborBatch <= 0 {
		neighborBatch = 16
	}
	return &Runner{
		store:         store,
		cache:         cache,
		settings:      settings,
		neighborBatch: neighborBatch,
		cacheMaxAge:   cacheMaxAge,
	}
}

// Run executes one maintenance pass, or reports skipped if one is in flight
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if !r.running.TryLock() {
		return Result{Skipped: true}, nil
	}
	defer r.running.Unlock()

	var res Result

	promoted, evicted, err := r.settleWorking(ctx)
	if err != nil {
		return res, err
	}
	res.Promoted = promoted
	res.Evicted = evicted

	recomputed, err := r.store.Neighborhoods().RecomputeBatch(ctx, r.neighborBatch)
	if err != nil {
		return res, fmt.Errorf("neighborhood recompute failed: %w", err)
	}
	res.Recomputed = recomputed

	if r.cache != nil && r.cacheMaxAge > 0 {
		reclaimed, gerr := r.cache.GC(ctx, r.cacheMaxAge)
		if gerr != nil {
			log.Printf("[Maintenance] WARNING: embed cache GC failed: %v", gerr)
		} else {
			res.CacheReclaims = reclaimed
		}
	}

	if res.Promoted+res.Evicted+res.Recomputed+res.CacheReclaims > 0 {
		log.Printf("[Maintenance] Pass complete: promoted=%d evicted=%d recomputed=%d cache_reclaims=%d",
			res.Promoted, res.Evicted, res.Recomputed, res.CacheReclaims)
	}
	return res, nil
}

// settleWorking resolves every expired working memory: promotion when it
// earned a place (explicit flag, or importance/access over the configured
// bar), archival otherwise
func (r *Runner) settleWorking(ctx context.Context) (promoted, evicted int, err error) {
	minImportance := r.settings.GetFloat(ctx, "maintenance.promote_min_importance", 0.7)
	minAccess := r.settings.GetInt(ctx, "maintenance.promote_min_access", 3)

	expired, err := r.store.Index().ListExpiredWorking(ctx, time.Now(), r.neighborBatch)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list expired working memories: %w", err)
	}

	for _, m := range expired {
		keep := m.Promote || m.Importance >= minImportance || m.AccessCount >= minAccess
		if keep {
			if perr := r.store.Promote(ctx, m.ID); perr != nil {
				return promoted, evicted, fmt.Errorf("failed to promote %s: %w", m.ID, perr)
			}
			promoted++
			continue
		}
		if aerr := r.store.Archive(ctx, m.ID); aerr != nil {
			return promoted, evicted, fmt.Errorf("failed to evict %s: %w", m.ID, aerr)
		}
		evicted++
	}
	return promoted, evicted, nil
}

// Worker runs maintenance passes on a fixed interval
type Worker struct {
	runner   *Runner
	interval time.Duration
	stopChan chan struct{}
}

// NewWorker creates a new maintenance worker
func NewWorker(runner *Runner, interval time.Duration) *Worker {
	return &Worker{
		runner:   runner,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the maintenance loop
func (w *Worker) Start() {
	log.Printf("[MaintenanceWorker] Starting maintenance worker (interval: %s)", w.interval)
	go w.loop()
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	log.Printf("[MaintenanceWorker] Stopping maintenance worker")
	close(w.stopChan)
}

func (w *Worker) loop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runSafely()
		case <-w.stopChan:
			log.Printf("[MaintenanceWorker] Stopped")
			return
		}
	}
}

// runSafely runs one pass with panic recovery
func (w *Worker) runSafely() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[MaintenanceWorker] PANIC recovered: %v", r)
		}
	}()

	if _, err := w.runner.Run(context.Background()); err != nil {
		log.Printf("[MaintenanceWorker] ERROR in maintenance pass: %v", err)
	}
}
