package memory

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory sqlite database migrated with the
// memory-layer tables
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	if err := db.AutoMigrate(&Episode{}, &EpisodeMember{}, &Neighborhood{}, &MemoryEdge{}); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}

	return db
}

// newTestStack wires a full in-process memory stack around MemoryIndex and
// MockEmbedder
func newTestStack(t *testing.T) (*Store, *MemoryIndex, *MockEmbedder, *NeighborhoodCache, *Segmenter) {
	t.Helper()

	db := newTestDB(t)
	index := NewMemoryIndex()
	embedder := NewMockEmbedder(32)
	seg := NewSegmenter(db, defaultTestGap)

	nc, err := NewNeighborhoodCache(db, index, 4)
	if err != nil {
		t.Fatalf("failed to create neighborhood cache: %v", err)
	}

	store := NewStore(index, embedder, seg, nc)
	return store, index, embedder, nc, seg
}
