package vector

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/hyperjump/kioku/internal/models"
)

const (
	defaultQdrantPort       = 6334
	defaultQdrantCollection = "content_embeddings"
	qdrantScrollLimit       = 10000
)

// QdrantConfig locates a Qdrant collection.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
	APIKey     string
	UseTLS     bool
}

// ParseQdrantDSN reads qdrant://host:port/collection?api_key=...&tls=true.
// The port is the gRPC port and defaults to 6334.
func ParseQdrantDSN(dsn string) (QdrantConfig, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return QdrantConfig{}, fmt.Errorf("invalid Qdrant URL: %w", err)
	}
	cfg := QdrantConfig{
		Host:       u.Hostname(),
		Port:       defaultQdrantPort,
		Collection: strings.Trim(u.Path, "/"),
		APIKey:     u.Query().Get("api_key"),
		UseTLS:     u.Query().Get("tls") == "true",
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return QdrantConfig{}, fmt.Errorf("invalid Qdrant port %q", p)
		}
		cfg.Port = port
	}
	if cfg.Collection == "" {
		cfg.Collection = defaultQdrantCollection
	}
	return cfg, nil
}

// QdrantBackend stores each record as a point in a cosine collection and lets Qdrant's
// HNSW index rank them.
//
// ReplaceScope is a filtered delete followed by an upsert, both waited on. Qdrant has no
// multi-operation transaction, so a crash between the two leaves the scope empty.
type QdrantBackend struct {
	client     *qdrant.Client
	collection string
	dimensions int
}

// NewQdrantBackend connects to Qdrant and creates the collection when it does not exist.
func NewQdrantBackend(ctx context.Context, cfg QdrantConfig, dimensions int) (*QdrantBackend, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}
	b := &QdrantBackend{client: client, collection: cfg.Collection, dimensions: dimensions}
	if err := b.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return b, nil
}

func (b *QdrantBackend) ensureCollection(ctx context.Context) error {
	exists, err := b.client.CollectionExists(ctx, b.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		err := b.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: b.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(b.dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		return nil
	}

	info, err := b.client.GetCollectionInfo(ctx, b.collection)
	if err != nil {
		return fmt.Errorf("failed to get collection info: %w", err)
	}
	if config := info.Config; config != nil && config.Params != nil {
		if params := config.Params.GetVectorsConfig().GetParams(); params != nil && int(params.Size) != b.dimensions {
			return fmt.Errorf("collection vector size mismatch: expected %d, got %d", b.dimensions, params.Size)
		}
	}
	return nil
}

// probeQdrant confirms the server answers and records its version.
func probeQdrant(ctx context.Context, client *qdrant.Client) (Capabilities, error) {
	reply, err := client.HealthCheck(ctx)
	if err != nil {
		return Capabilities{}, fmt.Errorf("failed to reach Qdrant: %w", err)
	}
	return Capabilities{Native: true, IndexKind: IndexKindHNSW, Version: reply.GetVersion()}, nil
}

// Info reports the native HNSW strategy.
func (b *QdrantBackend) Info() BackendInfo {
	return BackendInfo{Name: "qdrant", Native: true, IndexKind: IndexKindHNSW}
}

// Insert upserts rec as a point.
func (b *QdrantBackend) Insert(ctx context.Context, rec *models.EmbeddingRecord) error {
	if len(rec.Vector) != b.dimensions {
		return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(rec.Vector), b.dimensions)
	}
	_, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: b.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(rec.ID),
			Vectors: qdrant.NewVectors(rec.Vector...),
			Payload: qdrant.NewValueMap(recordPayload(rec)),
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}
	return nil
}

// Search queries the collection with the similarity floor as a score threshold.
func (b *QdrantBackend) Search(ctx context.Context, q models.SearchQuery) ([]models.VectorSearchResult, error) {
	if len(q.Vector) != b.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(q.Vector), b.dimensions)
	}
	limit := uint64(q.Limit)
	threshold := float32(q.MinSimilarity)
	points, err := b.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: b.collection,
		Query:          qdrant.NewQuery(q.Vector...),
		Filter:         scopeFilter(queryScope(q.OwnerID, q.SourceType), q.Subject),
		Limit:          &limit,
		ScoreThreshold: &threshold,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	results := make([]models.VectorSearchResult, 0, len(points))
	for _, p := range points {
		rec := payloadRecord(p.GetId(), p.GetPayload())
		sim := float64(p.GetScore())
		if sim < q.MinSimilarity {
			continue
		}
		results = append(results, models.VectorSearchResult{RecordView: rec.View(), Similarity: sim})
	}
	sortBySimilarity(results)
	return results, nil
}

// KeywordSearch scrolls points whose content contains any term and counts hits in Go.
func (b *QdrantBackend) KeywordSearch(ctx context.Context, q models.KeywordQuery) ([]models.KeywordMatch, error) {
	if len(q.Terms) == 0 {
		return []models.KeywordMatch{}, nil
	}
	filter := scopeFilter(queryScope(q.OwnerID, q.SourceType), q.Subject)
	for _, term := range q.Terms {
		filter.Should = append(filter.Should, qdrant.NewMatchText("content", term))
	}
	records, err := b.scroll(ctx, filter)
	if err != nil {
		return nil, err
	}
	return keywordCandidates(records, q), nil
}

// FindByScope returns the points in scope without their vectors.
func (b *QdrantBackend) FindByScope(ctx context.Context, scope models.Scope) ([]*models.EmbeddingRecord, error) {
	return b.scroll(ctx, scopeFilter(scope, ""))
}

// DeleteByScope removes the points in scope and returns how many there were.
func (b *QdrantBackend) DeleteByScope(ctx context.Context, scope models.Scope) (int, error) {
	filter := scopeFilter(scope, "")
	n, err := b.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: b.collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	_, err = b.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: b.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete points: %w", err)
	}
	return int(n), nil
}

// ReplaceScope deletes the points in scope, then upserts rec.
func (b *QdrantBackend) ReplaceScope(ctx context.Context, scope models.Scope, rec *models.EmbeddingRecord) (int, error) {
	if len(rec.Vector) != b.dimensions {
		return 0, fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(rec.Vector), b.dimensions)
	}
	n, err := b.DeleteByScope(ctx, scope)
	if err != nil {
		return 0, err
	}
	if err := b.Insert(ctx, rec); err != nil {
		return 0, err
	}
	return n, nil
}

// Count returns the exact number of points in the collection.
func (b *QdrantBackend) Count(ctx context.Context) (int, error) {
	n, err := b.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: b.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return int(n), nil
}

// Close closes the gRPC connection.
func (b *QdrantBackend) Close() error {
	return b.client.Close()
}

func (b *QdrantBackend) scroll(ctx context.Context, filter *qdrant.Filter) ([]*models.EmbeddingRecord, error) {
	limit := uint32(qdrantScrollLimit)
	points, err := b.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: b.collection,
		Filter:         filter,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scroll points: %w", err)
	}
	records := make([]*models.EmbeddingRecord, 0, len(points))
	for _, p := range points {
		records = append(records, payloadRecord(p.GetId(), p.GetPayload()))
	}
	return records, nil
}

func scopeFilter(scope models.Scope, subject string) *qdrant.Filter {
	must := []*qdrant.Condition{qdrant.NewMatch("owner_id", scope.OwnerID)}
	if scope.SourceType != "" {
		must = append(must, qdrant.NewMatch("source_type", string(scope.SourceType)))
	}
	if scope.SourceID != "" {
		must = append(must, qdrant.NewMatch("source_id", scope.SourceID))
	}
	if subject != "" {
		must = append(must, qdrant.NewMatch("subject", subject))
	}
	return &qdrant.Filter{Must: must}
}

func recordPayload(rec *models.EmbeddingRecord) map[string]any {
	tags := make([]any, len(rec.Tags))
	for i, t := range rec.Tags {
		tags[i] = t
	}
	return map[string]any{
		"owner_id":    rec.OwnerID,
		"source_type": string(rec.SourceType),
		"source_id":   rec.SourceID,
		"chunk_index": int64(rec.ChunkIndex),
		"content":     rec.Content,
		"model":       rec.Model,
		"dimensions":  int64(rec.Dimensions),
		"token_count": int64(rec.TokenCount),
		"subject":     rec.Subject,
		"tags":        tags,
		"created_at":  rec.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":  rec.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func payloadRecord(id *qdrant.PointId, payload map[string]*qdrant.Value) *models.EmbeddingRecord {
	rec := &models.EmbeddingRecord{
		ID:         id.GetUuid(),
		OwnerID:    payload["owner_id"].GetStringValue(),
		SourceType: models.SourceType(payload["source_type"].GetStringValue()),
		SourceID:   payload["source_id"].GetStringValue(),
		ChunkIndex: int(payload["chunk_index"].GetIntegerValue()),
		Content:    payload["content"].GetStringValue(),
		Model:      payload["model"].GetStringValue(),
		Dimensions: int(payload["dimensions"].GetIntegerValue()),
		TokenCount: int(payload["token_count"].GetIntegerValue()),
		Subject:    payload["subject"].GetStringValue(),
		Tags:       []string{},
	}
	for _, v := range payload["tags"].GetListValue().GetValues() {
		rec.Tags = append(rec.Tags, v.GetStringValue())
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, payload["created_at"].GetStringValue())
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, payload["updated_at"].GetStringValue())
	return rec
}

func openQdrant(ctx context.Context, dsn string, dimensions int, cache *CapabilityCache) (Backend, error) {
	cfg, err := ParseQdrantDSN(dsn)
	if err != nil {
		return nil, err
	}
	b, err := NewQdrantBackend(ctx, cfg, dimensions)
	if err != nil {
		return nil, err
	}
	if _, err := cache.Resolve(ctx, dsn, func(ctx context.Context) (Capabilities, error) {
		return probeQdrant(ctx, b.client)
	}); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}
