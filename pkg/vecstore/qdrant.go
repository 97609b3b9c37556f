package vecstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// Collection tuning. HNSW parameters follow the usual recall/latency
// sweet spot for ~512-dim audio embeddings at this corpus size; int8
// scalar quantization keeps the whole index resident in RAM.
const (
	hnswM           = 16
	hnswEfConstruct = 200
	quantile        = 0.99
	upsertBatchSize = 100
)

// QdrantConfig configures the Qdrant-backed Store.
type QdrantConfig struct {
	// URL is host[:port] with optional http/https scheme. The port is the
	// gRPC port (default 6334); https enables TLS.
	URL        string
	APIKey     string
	Collection string
}

// Qdrant implements Store on a Qdrant cluster over gRPC.
type Qdrant struct {
	client     *qdrant.Client
	collection string
}

// NewQdrant connects to the cluster described by cfg. The connection is
// lazy; failures surface on the first call (Ping at startup).
func NewQdrant(cfg QdrantConfig) (*Qdrant, error) {
	host, port, useTLS, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vecstore: qdrant client: %w", err)
	}
	return &Qdrant{client: client, collection: cfg.Collection}, nil
}

// ParseURL splits a Qdrant URL into gRPC connection parameters.
func ParseURL(raw string) (host string, port int, useTLS bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0, false, fmt.Errorf("vecstore: empty qdrant url")
	}
	hostport := raw
	if strings.Contains(raw, "://") {
		u, parseErr := url.Parse(raw)
		if parseErr != nil {
			return "", 0, false, fmt.Errorf("vecstore: parse qdrant url %q: %w", raw, parseErr)
		}
		switch u.Scheme {
		case "http":
		case "https":
			useTLS = true
		default:
			return "", 0, false, fmt.Errorf("vecstore: unsupported qdrant scheme %q", u.Scheme)
		}
		hostport = u.Host
	}

	host = hostport
	port = 6334
	if i := strings.LastIndex(hostport, ":"); i >= 0 {
		p, convErr := strconv.Atoi(hostport[i+1:])
		if convErr != nil {
			return "", 0, false, fmt.Errorf("vecstore: bad qdrant port in %q", raw)
		}
		host, port = hostport[:i], p
	}
	if host == "" {
		return "", 0, false, fmt.Errorf("vecstore: no host in qdrant url %q", raw)
	}
	return host, port, useTLS, nil
}

func (q *Qdrant) EnsureCollection(ctx context.Context, dim int) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("vecstore: collection check: %w", err)
	}
	if !exists {
		err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
				HnswConfig: &qdrant.HnswConfigDiff{
					M:           qdrant.PtrOf(uint64(hnswM)),
					EfConstruct: qdrant.PtrOf(uint64(hnswEfConstruct)),
				},
			}),
			QuantizationConfig: qdrant.NewQuantizationScalar(&qdrant.ScalarQuantization{
				Type:      qdrant.QuantizationType_Int8,
				Quantile:  qdrant.PtrOf(float32(quantile)),
				AlwaysRam: qdrant.PtrOf(true),
			}),
		})
		if err != nil {
			return fmt.Errorf("vecstore: create collection %s: %w", q.collection, err)
		}
	}

	// Keyword indexes make the track_id delete filter and genre filters
	// cheap. Re-creating an existing index is a no-op server-side.
	for _, field := range []string{"track_id", "genre"} {
		_, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("vecstore: index payload field %s: %w", field, err)
		}
	}
	return nil
}

func (q *Qdrant) UpsertChunks(ctx context.Context, points []Point) error {
	for start := 0; start < len(points); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(points))
		batch := make([]*qdrant.PointStruct, 0, end-start)
		for _, p := range points[start:end] {
			batch = append(batch, &qdrant.PointStruct{
				Id:      qdrant.NewID(p.ID),
				Vectors: qdrant.NewVectors(p.Vector...),
				Payload: qdrant.NewValueMap(p.Payload.valueMap()),
			})
		}
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collection,
			Points:         batch,
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("%w: upsert batch at %d: %v", ErrWrite, start, err)
		}
	}
	return nil
}

func (q *Qdrant) DeleteTrack(ctx context.Context, trackID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("track_id", trackID),
			},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("%w: delete track %s: %v", ErrWrite, trackID, err)
	}
	return nil
}

func (q *Qdrant) Query(ctx context.Context, vector []float32, limit, searchEf int) ([]Hit, error) {
	res, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		Params: &qdrant.SearchParams{
			HnswEf: qdrant.PtrOf(uint64(searchEf)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vecstore: query: %w", err)
	}
	hits := make([]Hit, 0, len(res))
	for _, sp := range res {
		hits = append(hits, Hit{
			Score:   sp.Score,
			Payload: payloadFrom(sp.Payload),
		})
	}
	return hits, nil
}

func (q *Qdrant) Ping(ctx context.Context) error {
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("vecstore: qdrant unreachable: %w", err)
	}
	return nil
}

func (q *Qdrant) Close() error {
	return q.client.Close()
}

// valueMap flattens a Payload for qdrant.NewValueMap. Optional fields are
// omitted rather than stored empty.
func (p Payload) valueMap() map[string]any {
	m := map[string]any{
		"track_id":     p.TrackID,
		"offset_sec":   p.OffsetSec,
		"chunk_index":  int64(p.ChunkIndex),
		"duration_sec": p.DurationSec,
	}
	if p.Title != "" {
		m["title"] = p.Title
	}
	if p.Artist != "" {
		m["artist"] = p.Artist
	}
	if p.Genre != "" {
		m["genre"] = p.Genre
	}
	return m
}

// payloadFrom rebuilds a Payload from a point's stored values.
func payloadFrom(values map[string]*qdrant.Value) Payload {
	var p Payload
	if v, ok := values["track_id"]; ok {
		p.TrackID = v.GetStringValue()
	}
	if v, ok := values["offset_sec"]; ok {
		p.OffsetSec = v.GetDoubleValue()
	}
	if v, ok := values["chunk_index"]; ok {
		p.ChunkIndex = int(v.GetIntegerValue())
	}
	if v, ok := values["duration_sec"]; ok {
		p.DurationSec = v.GetDoubleValue()
	}
	if v, ok := values["title"]; ok {
		p.Title = v.GetStringValue()
	}
	if v, ok := values["artist"]; ok {
		p.Artist = v.GetStringValue()
	}
	if v, ok := values["genre"]; ok {
		p.Genre = v.GetStringValue()
	}
	return p
}

// Compile-time interface check.
var _ Store = (*Qdrant)(nil)
