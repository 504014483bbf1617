package memory

import (
	"context"
	"math"
	"testing"
	"time"
)

type fakeBeliefLookup struct {
	confidences map[string]float64
}

func (f *fakeBeliefLookup) ConfidenceOf(ctx context.Context, memoryID string) (float64, bool, error) {
	c, ok := f.confidences[memoryID]
	return c, ok, nil
}

func newTestTrustEngine(t *testing.T, beliefs map[string]float64) (*TrustEngine, *MemoryIndex, *Graph) {
	t.Helper()
	db := newTestDB(t)
	index := NewMemoryIndex()
	graph := NewGraph(db)
	engine := NewTrustEngine(index, graph, &fakeBeliefLookup{confidences: beliefs}, DefaultTrustParams())
	return engine, index, graph
}

func TestDedupeSources_PrefersMostRecent(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	refs := []SourceRef{
		{SourceID: "src-a", Trust: 0.2, ObservedAt: older},
		{SourceID: "src-a", Trust: 0.8, ObservedAt: newer},
		{SourceID: "src-b", Trust: 0.5, ObservedAt: older},
	}

	deduped := DedupeSources(refs)
	if len(deduped) != 2 {
		t.Fatalf("expected 2 deduped sources, got %d", len(deduped))
	}
	if deduped[0].SourceID != "src-a" || deduped[0].Trust != 0.8 {
		t.Errorf("collision should keep the most recent observation: %+v", deduped[0])
	}
}

func TestEffectiveTrust_UnsourcedConfidenceCapsAtFloor(t *testing.T) {
	engine, _, _ := newTestTrustEngine(t, nil)

	trust := engine.EffectiveTrust(0.9, nil)
	if math.Abs(trust-0.15) > 1e-9 {
		t.Errorf("confidence 0.9 with zero sources should cap at the floor 0.15, got %.4f", trust)
	}
}

func TestReinforcement_SaturatesNotLinear(t *testing.T) {
	engine, _, _ := newTestTrustEngine(t, nil)

	one := []SourceRef{{SourceID: "a", Trust: 1.0, ObservedAt: time.Now()}}
	two := append(one, SourceRef{SourceID: "b", Trust: 1.0, ObservedAt: time.Now()})
	twenty := make([]SourceRef, 20)
	for i := range twenty {
		twenty[i] = SourceRef{SourceID: string(rune('a' + i)), Trust: 1.0, ObservedAt: time.Now()}
	}

	gainSecond := engine.Reinforcement(two) - engine.Reinforcement(one)
	gainTwentieth := engine.Reinforcement(twenty) - engine.Reinforcement(twenty[:19])

	if gainSecond <= gainTwentieth {
		t.Errorf("second independent source should matter more than the twentieth: %.4f vs %.4f",
			gainSecond, gainTwentieth)
	}
	if r := engine.Reinforcement(twenty); r >= 1.0 {
		t.Errorf("reinforcement must stay below 1.0, got %.4f", r)
	}
}

func TestEffectiveTrust_WellSourcedClaimApproachesConfidence(t *testing.T) {
	engine, _, _ := newTestTrustEngine(t, nil)

	sources := make([]SourceRef, 10)
	for i := range sources {
		sources[i] = SourceRef{SourceID: string(rune('a' + i)), Trust: 0.9, ObservedAt: time.Now()}
	}

	trust := engine.EffectiveTrust(0.9, sources)
	if trust < 0.8 {
		t.Errorf("ten independent high-trust sources should lift the ceiling near confidence, got %.4f", trust)
	}
	if trust > 0.9 {
		t.Errorf("effective trust must never exceed stated confidence, got %.4f", trust)
	}
}

func TestApplyAlignment_AsymmetricAndBounded(t *testing.T) {
	engine, _, _ := newTestTrustEngine(t, nil)

	shrunk := engine.ApplyAlignment(0.8, -1.0)
	if math.Abs(shrunk-0.4) > 1e-9 {
		t.Errorf("full negative alignment should halve trust, got %.4f", shrunk)
	}

	nudged := engine.ApplyAlignment(0.8, 1.0)
	if math.Abs(nudged-0.9) > 1e-9 {
		t.Errorf("full positive alignment should add 0.1, got %.4f", nudged)
	}

	if v := engine.ApplyAlignment(0.99, 1.0); v > 1.0 {
		t.Errorf("alignment nudge must stay within [0,1], got %.4f", v)
	}
	if v := engine.ApplyAlignment(0.0, -1.0); v < 0.0 {
		t.Errorf("alignment shrink must stay within [0,1], got %.4f", v)
	}
}

func TestAlignment_FromGraphEdges(t *testing.T) {
	engine, index, graph := newTestTrustEngine(t, map[string]float64{
		"belief-1": 0.8,
		"belief-2": 0.6,
	})
	ctx := context.Background()

	embedder := NewMockEmbedder(32)
	for _, id := range []string{"claim", "belief-1", "belief-2"} {
		vec, _ := embedder.Embed(ctx, id)
		index.Upsert(ctx, &Memory{ID: id, Kind: KindSemantic, Status: StatusActive, Content: id, Embedding: vec})
	}

	if err := graph.Link(ctx, "claim", "belief-1", RelSupports, 0.5); err != nil {
		t.Fatalf("link failed: %v", err)
	}
	if err := graph.Link(ctx, "claim", "belief-2", RelContradicts, 1.0); err != nil {
		t.Fatalf("link failed: %v", err)
	}

	alignment, err := engine.Alignment(ctx, "claim")
	if err != nil {
		t.Fatalf("alignment failed: %v", err)
	}

	// supports: 0.5*0.8 = 0.4; contradicts: 1.0*0.6 = 0.6; net -0.2
	if math.Abs(alignment-(-0.2)) > 1e-9 {
		t.Errorf("expected alignment -0.2, got %.4f", alignment)
	}
}

func TestSync_TrustStaysBounded(t *testing.T) {
	engine, index, _ := newTestTrustEngine(t, nil)
	ctx := context.Background()

	embedder := NewMockEmbedder(32)
	vec, _ := embedder.Embed(ctx, "the sky is green")
	index.Upsert(ctx, &Memory{
		ID:        "claim",
		Kind:      KindSemantic,
		Status:    StatusActive,
		Content:   "the sky is green",
		Embedding: vec,
		Extension: Extension{Semantic: &SemanticExt{
			Confidence: 0.9,
			Sources: []SourceRef{
				{SourceID: "a", Trust: 0.9, ObservedAt: time.Now()},
				{SourceID: "a", Trust: 0.7, ObservedAt: time.Now().Add(-time.Hour)},
			},
		}},
	})

	trust, err := engine.Sync(ctx, "claim")
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if trust < 0 || trust > 1 {
		t.Fatalf("trust out of bounds: %.4f", trust)
	}

	stored, err := index.Get(ctx, "claim")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Trust != trust {
		t.Errorf("sync did not persist trust: stored %.4f, returned %.4f", stored.Trust, trust)
	}
	if len(stored.Extension.Semantic.Sources) != 1 {
		t.Errorf("sync should persist deduplicated sources, got %d", len(stored.Extension.Semantic.Sources))
	}
}
