package memory

import (
	"context"
	"testing"
	"time"
)

const defaultTestGap = 30 * time.Minute

func TestSegmenter_ContiguousMemoriesShareEpisode(t *testing.T) {
	db := newTestDB(t)
	seg := NewSegmenter(db, defaultTestGap)
	ctx := context.Background()

	base := time.Now()
	ep1, err := seg.Assign(ctx, "mem-1", base)
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	ep2, err := seg.Assign(ctx, "mem-2", base.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	if ep1.ID != ep2.ID {
		t.Errorf("memories 5 minutes apart should share an episode: %s vs %s", ep1.ID, ep2.ID)
	}

	members, err := seg.Members(ctx, ep1.ID)
	if err != nil {
		t.Fatalf("members failed: %v", err)
	}
	if len(members) != 2 || members[0] != "mem-1" || members[1] != "mem-2" {
		t.Errorf("expected ordered members [mem-1 mem-2], got %v", members)
	}
}

func TestSegmenter_GapOpensNewEpisodeAndClosesOld(t *testing.T) {
	db := newTestDB(t)
	seg := NewSegmenter(db, defaultTestGap)
	ctx := context.Background()

	base := time.Now()
	ep1, err := seg.Assign(ctx, "mem-1", base)
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	ep2, err := seg.Assign(ctx, "mem-2", base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	if ep1.ID == ep2.ID {
		t.Fatalf("a 2h gap should open a new episode")
	}

	var old Episode
	if err := db.First(&old, "id = ?", ep1.ID).Error; err != nil {
		t.Fatalf("failed to reload old episode: %v", err)
	}
	if old.Open {
		t.Errorf("old episode should be closed once the gap passes")
	}
}

func TestSegmenter_SetSummary(t *testing.T) {
	db := newTestDB(t)
	seg := NewSegmenter(db, defaultTestGap)
	ctx := context.Background()

	base := time.Now()
	ep1, err := seg.Assign(ctx, "mem-1", base)
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	// The episode is still open, so summarizing is refused
	if err := seg.SetSummary(ctx, ep1.ID, "too early"); err == nil {
		t.Error("summarizing an open episode must be refused")
	}

	// A long gap closes it
	if _, err := seg.Assign(ctx, "mem-2", base.Add(2*time.Hour)); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if err := seg.SetSummary(ctx, ep1.ID, "an uneventful morning"); err != nil {
		t.Fatalf("SetSummary failed: %v", err)
	}

	var reloaded Episode
	if err := db.First(&reloaded, "id = ?", ep1.ID).Error; err != nil {
		t.Fatalf("failed to reload episode: %v", err)
	}
	if reloaded.Summary != "an uneventful morning" {
		t.Errorf("summary not stored: %q", reloaded.Summary)
	}

	if err := seg.SetSummary(ctx, "no-such-episode", "x"); err == nil {
		t.Error("summarizing an unknown episode must fail")
	}
}

func TestSegmenter_Companions(t *testing.T) {
	db := newTestDB(t)
	seg := NewSegmenter(db, defaultTestGap)
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"mem-a", "mem-b", "mem-c"} {
		if _, err := seg.Assign(ctx, id, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("assign failed: %v", err)
		}
	}
	// Far away: lands in a different episode
	if _, err := seg.Assign(ctx, "mem-far", base.Add(3*time.Hour)); err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	companions, err := seg.Companions(ctx, "mem-a")
	if err != nil {
		t.Fatalf("companions failed: %v", err)
	}
	if len(companions) != 2 {
		t.Fatalf("expected 2 companions, got %v", companions)
	}
	for _, id := range companions {
		if id == "mem-a" || id == "mem-far" {
			t.Errorf("unexpected companion %s", id)
		}
	}
}
