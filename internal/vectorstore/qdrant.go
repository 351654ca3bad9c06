package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payloadIDField stores the original chunk ID in the point payload, since
// Qdrant only accepts UUIDs or positive integers as point IDs and a chunk
// hash is neither.
const payloadIDField = "_chunk_id"

type qdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     string // cosine|l2|euclidean|ip|dot|manhattan
}

// NewQdrant dials Qdrant's gRPC API (default port 6334) and ensures the
// target collection exists with the given dimensionality and distance
// metric. An API key may be passed as a DSN query parameter:
// "http://localhost:6334?api_key=...".
func NewQdrant(dsn, collection string, dimensions int, metric string) (VectorStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("vectorstore: collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: parse dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: invalid port in dsn: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: create client: %w", err)
	}
	q := &qdrantStore{
		client:     client,
		collection: collection,
		dimension:  dimensions,
		metric:     strings.ToLower(strings.TrimSpace(metric)),
	}
	if err := q.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("vectorstore: ensure collection: %w", err)
	}
	return q, nil
}

func (q *qdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	if q.dimension <= 0 {
		return fmt.Errorf("vectorstore: dimensions must be > 0")
	}
	var distance qdrant.Distance
	switch q.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	case "manhattan":
		distance = qdrant.Distance_Manhattan
	default:
		distance = qdrant.Distance_Cosine
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: distance,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

// pointUUID derives Qdrant's required UUID point ID from a chunk hash.
func pointUUID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

func payloadToMap(p Payload) map[string]any {
	prefixes := make([]any, len(p.PathPrefixes))
	for i, v := range p.PathPrefixes {
		prefixes[i] = v
	}
	return map[string]any{
		"file_id":       p.FileID,
		payloadIDField:  p.ChunkID,
		"path":          p.Path,
		"mime":          p.MIME,
		"ext":           p.Ext,
		"mtime":         p.MTime,
		"file_hash":     p.FileHash,
		"path_prefixes": prefixes,
	}
}

func payloadFromQdrant(m map[string]*qdrant.Value) Payload {
	var p Payload
	if v, ok := m["file_id"]; ok {
		p.FileID = v.GetIntegerValue()
	}
	if v, ok := m[payloadIDField]; ok {
		p.ChunkID = v.GetStringValue()
	}
	if v, ok := m["path"]; ok {
		p.Path = v.GetStringValue()
	}
	if v, ok := m["mime"]; ok {
		p.MIME = v.GetStringValue()
	}
	if v, ok := m["ext"]; ok {
		p.Ext = v.GetStringValue()
	}
	if v, ok := m["mtime"]; ok {
		p.MTime = v.GetIntegerValue()
	}
	if v, ok := m["file_hash"]; ok {
		p.FileHash = v.GetStringValue()
	}
	if v, ok := m["path_prefixes"]; ok {
		for _, item := range v.GetListValue().GetValues() {
			p.PathPrefixes = append(p.PathPrefixes, item.GetStringValue())
		}
	}
	return p
}

func (q *qdrantStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	pts := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		pts = append(pts, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointUUID(p.ChunkID)),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payloadToMap(p.Payload)),
		})
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         pts,
	})
	return err
}

func (q *qdrantStore) ExistingIDs(ctx context.Context, chunkIDs []string) (map[string]bool, error) {
	if len(chunkIDs) == 0 {
		return map[string]bool{}, nil
	}
	uuidToChunk := make(map[string]string, len(chunkIDs))
	ids := make([]*qdrant.PointId, 0, len(chunkIDs))
	for _, c := range chunkIDs {
		u := pointUUID(c)
		uuidToChunk[u] = c
		ids = append(ids, qdrant.NewIDUUID(u))
	}
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            ids,
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: get points: %w", err)
	}
	found := make(map[string]bool, len(points))
	for _, pt := range points {
		u := pt.GetId().GetUuid()
		if chunk, ok := uuidToChunk[u]; ok {
			found[chunk] = true
		}
	}
	return found, nil
}

func (q *qdrantStore) GetVectors(ctx context.Context, chunkIDs []string) (map[string][]float32, error) {
	if len(chunkIDs) == 0 {
		return map[string][]float32{}, nil
	}
	uuidToChunk := make(map[string]string, len(chunkIDs))
	ids := make([]*qdrant.PointId, 0, len(chunkIDs))
	for _, c := range chunkIDs {
		u := pointUUID(c)
		uuidToChunk[u] = c
		ids = append(ids, qdrant.NewIDUUID(u))
	}
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            ids,
		WithPayload:    qdrant.NewWithPayload(false),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: get vectors: %w", err)
	}
	out := make(map[string][]float32, len(points))
	for _, pt := range points {
		u := pt.GetId().GetUuid()
		chunk, ok := uuidToChunk[u]
		if !ok {
			continue
		}
		out[chunk] = pt.GetVectors().GetVector().GetData()
	}
	return out, nil
}

func (q *qdrantStore) Search(ctx context.Context, vector []float32, topK int, filter SearchFilter) ([]SearchResult, error) {
	if topK <= 0 {
		topK = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)

	var must []*qdrant.Condition
	var mustNot []*qdrant.Condition
	if filter.PathPrefix != "" {
		must = append(must, qdrant.NewMatch("path_prefixes", filter.PathPrefix))
	}
	if filter.ExcludeFileID != 0 {
		mustNot = append(mustNot, qdrant.NewMatchInt("file_id", filter.ExcludeFileID))
	}
	var queryFilter *qdrant.Filter
	if len(must) > 0 || len(mustNot) > 0 {
		queryFilter = &qdrant.Filter{Must: must, MustNot: mustNot}
	}

	limit := uint64(topK)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         queryFilter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		payload := payloadFromQdrant(hit.Payload)
		chunkID := payload.ChunkID
		if chunkID == "" {
			chunkID = hit.Id.GetUuid()
		}
		results = append(results, SearchResult{
			ChunkID: chunkID,
			Score:   float64(hit.Score),
			Payload: payload,
		})
	}
	return results, nil
}

func (q *qdrantStore) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	ids := make([]*qdrant.PointId, 0, len(chunkIDs))
	for _, c := range chunkIDs {
		ids = append(ids, qdrant.NewIDUUID(pointUUID(c)))
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(ids...),
	})
	return err
}

func (q *qdrantStore) Dimension() int { return q.dimension }

func (q *qdrantStore) Close() error { return q.client.Close() }
