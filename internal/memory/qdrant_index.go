// internal/memory/qdrant_index.go
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantIndex stores memory records and their embeddings in a qdrant
// collection
type QdrantIndex struct {
	Client         *qdrant.Client
	CollectionName string
	dimensions     int
}

// NewQdrantIndex connects to qdrant and ensures the collection exists
func NewQdrantIndex(qdrantURL, collectionName, apiKey string, dimensions int) (*QdrantIndex, error) {
	qdrantURL = strings.TrimPrefix(qdrantURL, "http://")
	qdrantURL = strings.TrimPrefix(qdrantURL, "https://")

	host := qdrantURL
	if idx := strings.Index(qdrantURL, ":"); idx != -1 {
		host = qdrantURL[:idx]
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   6334, // gRPC port
		APIKey: apiKey,
		UseTLS: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	idx := &QdrantIndex{
		Client:         client,
		CollectionName: collectionName,
		dimensions:     dimensions,
	}

	if err := idx.ensureCollection(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	return idx, nil
}

// ensureCollection creates the collection if it doesn't exist
func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.Client.CollectionExists(ctx, q.CollectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = q.Client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// Payload indexes for the fields we filter on
	indexes := []struct {
		field string
		typ   qdrant.FieldType
	}{
		{"kind", qdrant.FieldType_FieldTypeKeyword},
		{"status", qdrant.FieldType_FieldTypeKeyword},
		{"working", qdrant.FieldType_FieldTypeBool},
		{"expires_at", qdrant.FieldType_FieldTypeInteger},
		{"created_at", qdrant.FieldType_FieldTypeInteger},
		{"importance", qdrant.FieldType_FieldTypeFloat},
	}

	for _, idx := range indexes {
		fieldType := idx.typ
		_, err = q.Client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.CollectionName,
			FieldName:      idx.field,
			FieldType:      &fieldType,
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for %s: %w", idx.field, err)
		}
	}

	return nil
}

// Upsert writes a memory and its embedding to the collection
func (q *QdrantIndex) Upsert(ctx context.Context, m *Memory) error {
	if len(m.Embedding) != q.dimensions {
		return fmt.Errorf("embedding dimension mismatch for memory %s: got %d, want %d",
			m.ID, len(m.Embedding), q.dimensions)
	}

	// The tagged-union extension is stored as one JSON payload field rather
	// than flattened into qdrant values; it is never filtered on server-side.
	extJSON, err := json.Marshal(m.Extension)
	if err != nil {
		return fmt.Errorf("failed to marshal extension: %w", err)
	}

	payload := map[string]*qdrant.Value{
		"memory_id":        qdrant.NewValueString(m.ID),
		"kind":             qdrant.NewValueString(string(m.Kind)),
		"status":           qdrant.NewValueString(string(m.Status)),
		"content":          qdrant.NewValueString(m.Content),
		"importance":       qdrant.NewValueDouble(m.Importance),
		"trust":            qdrant.NewValueDouble(m.Trust),
		"decay_rate":       qdrant.NewValueDouble(m.DecayRate),
		"access_count":     qdrant.NewValueInt(int64(m.AccessCount)),
		"created_at":       qdrant.NewValueInt(m.CreatedAt.Unix()),
		"last_accessed_at": qdrant.NewValueInt(m.LastAccessedAt.Unix()),
		"working":          qdrant.NewValueBool(m.Working),
		"promote":          qdrant.NewValueBool(m.Promote),
		"extension":        qdrant.NewValueString(string(extJSON)),
	}
	if !m.ExpiresAt.IsZero() {
		payload["expires_at"] = qdrant.NewValueInt(m.ExpiresAt.Unix())
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(m.ID),
		Vectors: qdrant.NewVectors(m.Embedding...),
		Payload: payload,
	}

	_, err = q.Client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.CollectionName,
		Points:         []*qdrant.PointStruct{point},
	})
	return err
}

// Get retrieves a single memory by ID
func (q *QdrantIndex) Get(ctx context.Context, id string) (*Memory, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("memory_id", id),
		},
	}

	points, err := q.Client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.CollectionName,
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint32(1)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors: &qdrant.WithVectorsSelector{
			SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve memory: %w", err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMemoryNotFound, id)
	}

	return q.retrievedToMemory(points[0]), nil
}

// GetMany retrieves multiple memories by ID, skipping any that are missing
func (q *QdrantIndex) GetMany(ctx context.Context, ids []string) ([]*Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keywords := make([]string, len(ids))
	copy(keywords, ids)
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatchKeywords("memory_id", keywords...),
		},
	}

	points, err := q.Client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.CollectionName,
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint32(len(ids))),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors: &qdrant.WithVectorsSelector{
			SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve memories: %w", err)
	}

	memories := make([]*Memory, 0, len(points))
	for _, p := range points {
		memories = append(memories, q.retrievedToMemory(p))
	}
	return memories, nil
}

// Search performs similarity search over active memories
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, limit int) ([]ScoredMemory, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("status", string(StatusActive)),
		},
	}

	searchResult, err := q.Client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.CollectionName,
		Query:          qdrant.NewQuery(vector...),
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors: &qdrant.WithVectorsSelector{
			SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]ScoredMemory, 0, len(searchResult))
	for _, point := range searchResult {
		results = append(results, ScoredMemory{
			Memory: q.scoredToMemory(point),
			Score:  float64(point.Score),
		})
	}
	return results, nil
}

// ListExpiredWorking returns working memories whose expiry has passed
func (q *QdrantIndex) ListExpiredWorking(ctx context.Context, now time.Time, limit int) ([]*Memory, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatchBool("working", true),
			qdrant.NewMatch("status", string(StatusActive)),
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: "expires_at",
						Range: &qdrant.Range{
							Lt: qdrant.PtrOf(float64(now.Unix())),
						},
					},
				},
			},
		},
	}

	points, err := q.Client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.CollectionName,
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors: &qdrant.WithVectorsSelector{
			SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scroll expired working memories: %w", err)
	}

	memories := make([]*Memory, 0, len(points))
	for _, p := range points {
		memories = append(memories, q.retrievedToMemory(p))
	}
	return memories, nil
}

func (q *QdrantIndex) scoredToMemory(point *qdrant.ScoredPoint) *Memory {
	m := payloadToMemory(point.Payload)
	if v := point.Vectors.GetVector(); v != nil {
		m.Embedding = v.Data
	}
	return m
}

func (q *QdrantIndex) retrievedToMemory(point *qdrant.RetrievedPoint) *Memory {
	m := payloadToMemory(point.Payload)
	if v := point.Vectors.GetVector(); v != nil {
		m.Embedding = v.Data
	}
	return m
}

func payloadToMemory(payload map[string]*qdrant.Value) *Memory {
	m := &Memory{
		ID:             payloadString(payload, "memory_id"),
		Kind:           Kind(payloadString(payload, "kind")),
		Status:         Status(payloadString(payload, "status")),
		Content:        payloadString(payload, "content"),
		Importance:     payloadFloat(payload, "importance"),
		Trust:          payloadFloat(payload, "trust"),
		DecayRate:      payloadFloat(payload, "decay_rate"),
		AccessCount:    int(payloadInt(payload, "access_count")),
		CreatedAt:      time.Unix(payloadInt(payload, "created_at"), 0),
		LastAccessedAt: time.Unix(payloadInt(payload, "last_accessed_at"), 0),
		Working:        payloadBool(payload, "working"),
		Promote:        payloadBool(payload, "promote"),
	}

	if exp := payloadInt(payload, "expires_at"); exp != 0 {
		m.ExpiresAt = time.Unix(exp, 0)
	}

	if raw := payloadString(payload, "extension"); raw != "" {
		// Best effort: a malformed extension leaves the union empty rather
		// than failing the read
		_ = json.Unmarshal([]byte(raw), &m.Extension)
	}

	return m
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if val, ok := payload[key]; ok {
		return val.GetStringValue()
	}
	return ""
}

func payloadBool(payload map[string]*qdrant.Value, key string) bool {
	if val, ok := payload[key]; ok {
		return val.GetBoolValue()
	}
	return false
}

func payloadInt(payload map[string]*qdrant.Value, key string) int64 {
	if val, ok := payload[key]; ok {
		return val.GetIntegerValue()
	}
	return 0
}

func payloadFloat(payload map[string]*qdrant.Value, key string) float64 {
	if val, ok := payload[key]; ok {
		return val.GetDoubleValue()
	}
	return 0.0
}
