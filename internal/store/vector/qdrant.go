package vector

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"nur/internal/ids"
	"nur/internal/memory"
)

// payloadIDField stores the caller's original string id in the point
// payload, since Qdrant point ids are restricted to UUIDs/integers — the
// same workaround the teacher's qdrant_vector.go uses.
const payloadIDField = "_original_id"

// payloadDocField stores the record's document text in the payload so Query
// can return it without a second round-trip to the relational store.
const payloadDocField = "_document"

type qdrantStore struct {
	client *qdrant.Client
	dim    int
	metric string

	mu       sync.Mutex
	ensured  map[string]bool
}

// NewQdrant builds a Store backed by a single Qdrant deployment, ensuring
// named collections lazily as they're first written to.
func NewQdrant(dsn string, dimensions int, metric string) (Store, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, memory.NewConfigurationError("parse qdrant dsn", err)
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
		return nil, memory.NewConfigurationError("invalid qdrant port", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if key := parsed.Query().Get("api_key"); key != "" {
		cfg.APIKey = key
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, memory.NewStorageError("create qdrant client", err)
	}
	return &qdrantStore{client: client, dim: dimensions, metric: strings.ToLower(metric), ensured: map[string]bool{}}, nil
}

func (s *qdrantStore) ensureCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured[collection] {
		return nil
	}
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return memory.NewStorageError("check collection exists", err)
	}
	if !exists {
		var distance qdrant.Distance
		switch s.metric {
		case "l2", "euclidean":
			distance = qdrant.Distance_Euclid
		case "ip", "dot":
			distance = qdrant.Distance_Dot
		default:
			distance = qdrant.Distance_Cosine
		}
		if s.dim <= 0 {
			return memory.NewConfigurationError("embedding dimension must be > 0", nil)
		}
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.dim),
				Distance: distance,
			}),
		})
		if err != nil {
			return memory.NewStorageError("create collection", err)
		}
	}
	s.ensured[collection] = true
	return nil
}

func pointID(id string) string {
	if _, err := parseUUID(id); err == nil {
		return id
	}
	return ids.DeterministicUUID(id)
}

// parseUUID is a tiny shim so this file doesn't need to import
// github.com/google/uuid directly just to validate a string shape; the
// qdrant client itself validates at the wire layer, so a lightweight length
// check is sufficient here.
func parseUUID(id string) (string, error) {
	if len(id) == 36 && strings.Count(id, "-") == 4 {
		return id, nil
	}
	return "", fmt.Errorf("not a uuid")
}

func (s *qdrantStore) Upsert(ctx context.Context, collection string, records []Record) error {
	if err := s.ensureCollection(ctx, collection); err != nil {
		return err
	}
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		uuidStr := pointID(r.ID)
		payloadMap := make(map[string]any, len(r.Metadata)+2)
		for k, v := range r.Metadata {
			payloadMap[k] = v
		}
		if uuidStr != r.ID {
			payloadMap[payloadIDField] = r.ID
		}
		if r.Document != "" {
			payloadMap[payloadDocField] = r.Document
		}
		vec := make([]float32, len(r.Embedding))
		copy(vec, r.Embedding)
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuidStr),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payloadMap),
		})
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: collection, Points: points})
	if err != nil {
		return memory.NewStorageError("qdrant upsert", err)
	}
	return nil
}

func (s *qdrantStore) Query(ctx context.Context, collection string, embedding []float32, k int, filter Filter) ([]Result, error) {
	if err := s.ensureCollection(ctx, collection); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(embedding))
	copy(vec, embedding)

	var qf *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for key, values := range filter {
			for _, v := range values {
				must = append(must, qdrant.NewMatch(key, v))
			}
		}
		qf = &qdrant.Filter{Must: must}
	}
	limit := uint64(k)
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         qf,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, memory.NewStorageError("qdrant query", err)
	}
	out := make([]Result, 0, len(hits))
	for _, hit := range hits {
		out = append(out, fromPayload(hit.Id, hit.Payload, float64(hit.Score)))
	}
	return out, nil
}

func (s *qdrantStore) Get(ctx context.Context, collection string, rawIDs []string) ([]Result, error) {
	if err := s.ensureCollection(ctx, collection); err != nil {
		return nil, err
	}
	pointIDs := make([]*qdrant.PointId, 0, len(rawIDs))
	for _, id := range rawIDs {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(pointID(id)))
	}
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, memory.NewStorageError("qdrant get", err)
	}
	out := make([]Result, 0, len(points))
	for _, p := range points {
		out = append(out, fromPayload(p.Id, p.Payload, 0))
	}
	return out, nil
}

func (s *qdrantStore) Delete(ctx context.Context, collection string, filter Filter) error {
	if err := s.ensureCollection(ctx, collection); err != nil {
		return err
	}
	must := make([]*qdrant.Condition, 0, len(filter))
	for key, values := range filter {
		for _, v := range values {
			must = append(must, qdrant.NewMatch(key, v))
		}
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelectorFilter(&qdrant.Filter{Must: must}),
	})
	if err != nil {
		return memory.NewStorageError("qdrant delete", err)
	}
	return nil
}

func (s *qdrantStore) Close() error { return s.client.Close() }

func fromPayload(id *qdrant.PointId, payload map[string]*qdrant.Value, score float64) Result {
	uuidStr := id.GetUuid()
	if uuidStr == "" {
		uuidStr = id.String()
	}
	var originalID, document string
	metadata := make(map[string]string)
	for k, v := range payload {
		switch k {
		case payloadIDField:
			originalID = v.GetStringValue()
		case payloadDocField:
			document = v.GetStringValue()
		default:
			metadata[k] = v.GetStringValue()
		}
	}
	resultID := originalID
	if resultID == "" {
		resultID = uuidStr
	}
	return Result{ID: resultID, Score: score, Document: document, Metadata: metadata}
}
