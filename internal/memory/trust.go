// internal/memory/trust.go
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// TrustParams are the tunable constants of the trust computation. The values
// are product choices, not correctness constraints.
type TrustParams struct {
	ReinforcementK        float64 // Saturation rate of the reinforcement curve
	CeilingFloor          float64 // Trust ceiling with zero reinforcement
	CeilingSlope          float64 // Ceiling growth per unit reinforcement
	NegativeAlignmentGain float64 // Multiplicative shrink per unit negative alignment
	PositiveAlignmentGain float64 // Additive nudge per unit positive alignment
	ConfidenceNudge       float64 // Belief confidence delta per evidence weight unit
}

// DefaultTrustParams returns the stock constants
func DefaultTrustParams() TrustParams {
	return TrustParams{
		ReinforcementK:        0.35,
		CeilingFloor:          0.15,
		CeilingSlope:          0.85,
		NegativeAlignmentGain: 0.5,
		PositiveAlignmentGain: 0.1,
		ConfidenceNudge:       0.05,
	}
}

// BeliefLookup resolves whether a memory backs a standing belief, and with
// what confidence. Implemented by the belief package.
type BeliefLookup interface {
	ConfidenceOf(ctx context.Context, memoryID string) (confidence float64, isBelief bool, err error)
}

// TrustEngine computes bounded trust for factual memories from deduplicated
// source evidence and alignment with standing beliefs
type TrustEngine struct {
	index   VectorIndex
	graph   *Graph
	beliefs BeliefLookup
	params  TrustParams
}

// NewTrustEngine creates a trust engine. A zero params value gets the stock
// constants.
func NewTrustEngine(index VectorIndex, graph *Graph, beliefs BeliefLookup, params TrustParams) *TrustEngine {
	if params == (TrustParams{}) {
		params = DefaultTrustParams()
	}
	return &TrustEngine{
		index:   index,
		graph:   graph,
		beliefs: beliefs,
		params:  params,
	}
}

// DedupeSources collapses source references by identity, preferring the most
// recently observed copy on collision. Output is ordered by source ID for
// determinism.
func DedupeSources(refs []SourceRef) []SourceRef {
	byID := make(map[string]SourceRef, len(refs))
	for _, ref := range refs {
		existing, ok := byID[ref.SourceID]
		if !ok || ref.ObservedAt.After(existing.ObservedAt) {
			byID[ref.SourceID] = ref
		}
	}

	out := make([]SourceRef, 0, len(byID))
	for _, ref := range byID {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// Reinforcement maps accumulated independent source trust onto [0,1) with an
// exponential-saturation curve: the second independent source matters more
// than the twentieth.
func (t *TrustEngine) Reinforcement(sources []SourceRef) float64 {
	var sum float64
	for _, s := range DedupeSources(sources) {
		sum += clamp01(s.Trust)
	}
	return 1.0 - math.Exp(-t.params.ReinforcementK*sum)
}

// EffectiveTrust is the lesser of stated confidence and the reinforcement-
// derived ceiling. A confidently asserted but unsourced claim stays near the
// floor.
func (t *TrustEngine) EffectiveTrust(confidence float64, sources []SourceRef) float64 {
	ceiling := t.params.CeilingFloor + t.params.CeilingSlope*t.Reinforcement(sources)
	return clamp01(math.Min(clamp01(confidence), ceiling))
}

// ApplyAlignment nudges trust by alignment with standing beliefs. Negative
// alignment shrinks trust multiplicatively, positive alignment nudges it up
// additively. The asymmetry is deliberate: the agent may stay skeptical of
// well-sourced but worldview-contradicting claims.
func (t *TrustEngine) ApplyAlignment(trust, alignment float64) float64 {
	switch {
	case alignment < 0:
		trust *= 1.0 + alignment*t.params.NegativeAlignmentGain
	case alignment > 0:
		trust += alignment * t.params.PositiveAlignmentGain
	}
	return clamp01(trust)
}

// Alignment derives a [-1,1] agreement signal from the memory's explicit
// supports/contradicts edges into standing beliefs, weighted by edge weight
// and belief confidence.
func (t *TrustEngine) Alignment(ctx context.Context, memoryID string) (float64, error) {
	var signal float64

	for _, rel := range []Relation{RelSupports, RelContradicts} {
		edges, err := t.graph.Edges(ctx, memoryID, rel)
		if err != nil {
			return 0, err
		}
		for _, e := range edges {
			conf, isBelief, err := t.beliefs.ConfidenceOf(ctx, e.ToID)
			if err != nil {
				return 0, err
			}
			if !isBelief {
				continue
			}
			contribution := e.Weight * conf
			if rel == RelContradicts {
				contribution = -contribution
			}
			signal += contribution
		}
	}

	if signal > 1 {
		signal = 1
	}
	if signal < -1 {
		signal = -1
	}
	return signal, nil
}

// Sync recomputes a semantic memory's trust from its sources and alignment,
// then persists it. Fails atomically: an error leaves the stored record
// untouched.
func (t *TrustEngine) Sync(ctx context.Context, memoryID string) (float64, error) {
	m, err := t.index.Get(ctx, memoryID)
	if err != nil {
		return 0, fmt.Errorf("trust sync failed: %w", err)
	}
	if m.Kind != KindSemantic || m.Extension.Semantic == nil {
		return m.Trust, nil
	}

	ext := m.Extension.Semantic
	trust := t.EffectiveTrust(ext.Confidence, ext.Sources)

	alignment, err := t.Alignment(ctx, memoryID)
	if err != nil {
		return 0, fmt.Errorf("trust sync failed: %w", err)
	}
	trust = t.ApplyAlignment(trust, alignment)

	m.Trust = trust
	m.Extension.Semantic.Sources = DedupeSources(ext.Sources)
	if err := t.index.Upsert(ctx, m); err != nil {
		return 0, fmt.Errorf("trust sync failed: %w", err)
	}

	return trust, nil
}

// EvidenceDelta computes the confidence nudge evidence memories exert on a
// belief: supporting evidence pushes up, contradicting evidence pushes down,
// each weighted by the evidence memory's own importance x trust.
func (t *TrustEngine) EvidenceDelta(supporting, contradicting []*Memory) float64 {
	var delta float64
	for _, m := range supporting {
		delta += t.params.ConfidenceNudge * m.Importance * m.Trust
	}
	for _, m := range contradicting {
		delta -= t.params.ConfidenceNudge * m.Importance * m.Trust
	}
	return delta
}
