// internal/maintenance/worker_test.go
package maintenance

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"go-psyche/internal/config"
	"go-psyche/internal/memory"
)

// blockingIndex wraps an index and parks ListExpiredWorking on a channel so a
// pass can be held mid-flight
type blockingIndex struct {
	memory.VectorIndex
	release chan struct{}
	entered chan struct{}
}

func (b *blockingIndex) ListExpiredWorking(ctx context.Context, now time.Time, limit int) ([]*memory.Memory, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.VectorIndex.ListExpiredWorking(ctx, now, limit)
}

func newRunner(t *testing.T, index memory.VectorIndex) (*Runner, *memory.Store, *config.Settings) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	err = db.AutoMigrate(
		&config.Setting{},
		&memory.Episode{}, &memory.EpisodeMember{}, &memory.Neighborhood{}, &memory.MemoryEdge{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	embedder := memory.NewMockEmbedder(32)
	segmenter := memory.NewSegmenter(db, 30*time.Minute)
	nc, err := memory.NewNeighborhoodCache(db, index, 4)
	if err != nil {
		t.Fatalf("Failed to build neighborhood cache: %v", err)
	}
	store := memory.NewStore(index, embedder, segmenter, nc)
	settings := config.NewSettings(db)
	return NewRunner(store, nil, settings, 50, 0), store, settings
}

// expireWorking rewinds a working memory's deadline into the past
func expireWorking(t *testing.T, store *memory.Store, id string) {
	t.Helper()
	ctx := context.Background()
	m, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Failed to load memory: %v", err)
	}
	m.ExpiresAt = time.Now().Add(-time.Minute)
	if err := store.Index().Upsert(ctx, m); err != nil {
		t.Fatalf("Failed to rewind expiry: %v", err)
	}
}

func TestRunSettlesExpiredWorkingMemories(t *testing.T) {
	runner, store, settings := newRunner(t, memory.NewMemoryIndex())
	ctx := context.Background()

	if err := settings.Set(ctx, "maintenance.promote_min_importance", "0.7"); err != nil {
		t.Fatalf("Failed to set bar: %v", err)
	}

	worthy, err := store.Create(ctx, memory.CreateParams{
		Kind: memory.KindEpisodic, Content: "worth keeping", Importance: 0.9,
		Working: true, TTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("Failed to create memory: %v", err)
	}
	forgettable, err := store.Create(ctx, memory.CreateParams{
		Kind: memory.KindEpisodic, Content: "noise", Importance: 0.1,
		Working: true, TTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("Failed to create memory: %v", err)
	}
	expireWorking(t, store, worthy)
	expireWorking(t, store, forgettable)

	res, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Skipped {
		t.Fatal("Pass must not report skipped")
	}
	if res.Promoted != 1 || res.Evicted != 1 {
		t.Errorf("Expected 1 promoted / 1 evicted, got %d / %d", res.Promoted, res.Evicted)
	}

	kept, err := store.Get(ctx, worthy)
	if err != nil {
		t.Fatalf("Failed to load promoted memory: %v", err)
	}
	if kept.Working || kept.Status != memory.StatusActive {
		t.Errorf("Promoted memory should be durable and active: %+v", kept)
	}

	gone, err := store.Get(ctx, forgettable)
	if err != nil {
		t.Fatalf("Failed to load evicted memory: %v", err)
	}
	if gone.Status != memory.StatusArchived {
		t.Errorf("Evicted memory should be archived, got %s", gone.Status)
	}
}

func TestRunHonorsExplicitPromoteFlag(t *testing.T) {
	runner, store, _ := newRunner(t, memory.NewMemoryIndex())
	ctx := context.Background()

	id, err := store.Create(ctx, memory.CreateParams{
		Kind: memory.KindEpisodic, Content: "asked to keep", Importance: 0.1,
		Working: true, TTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("Failed to create memory: %v", err)
	}
	m, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Failed to load memory: %v", err)
	}
	m.Promote = true
	m.ExpiresAt = time.Now().Add(-time.Minute)
	if err := store.Index().Upsert(ctx, m); err != nil {
		t.Fatalf("Failed to flag memory: %v", err)
	}

	res, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Promoted != 1 || res.Evicted != 0 {
		t.Errorf("Flagged memory must be promoted despite low importance: %+v", res)
	}
}

func TestRunRefreshesStaleNeighborhoods(t *testing.T) {
	runner, store, _ := newRunner(t, memory.NewMemoryIndex())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Create(ctx, memory.CreateParams{
			Kind: memory.KindEpisodic, Content: fmt.Sprintf("event %d", i), Importance: 0.5,
		})
		if err != nil {
			t.Fatalf("Failed to create memory: %v", err)
		}
	}

	res, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Recomputed != 3 {
		t.Errorf("Expected 3 neighborhoods recomputed, got %d", res.Recomputed)
	}

	stale, err := store.Neighborhoods().StaleCount(ctx)
	if err != nil {
		t.Fatalf("StaleCount failed: %v", err)
	}
	if stale != 0 {
		t.Errorf("Expected no stale neighborhoods after pass, got %d", stale)
	}
}

func TestConcurrentRunSkips(t *testing.T) {
	blocking := &blockingIndex{
		VectorIndex: memory.NewMemoryIndex(),
		release:     make(chan struct{}),
		entered:     make(chan struct{}),
	}
	runner, _, _ := newRunner(t, blocking)
	ctx := context.Background()

	first := make(chan Result, 1)
	go func() {
		res, err := runner.Run(ctx)
		if err != nil {
			t.Errorf("First run failed: %v", err)
		}
		first <- res
	}()

	// Wait until the first pass is inside its working-memory step, then
	// invoke again
	<-blocking.entered
	res, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if !res.Skipped {
		t.Error("Overlapping run must report skipped")
	}
	if res.Promoted+res.Evicted+res.Recomputed != 0 {
		t.Errorf("Skipped run must do no work: %+v", res)
	}

	close(blocking.release)
	if got := <-first; got.Skipped {
		t.Error("First run must complete normally")
	}
}
