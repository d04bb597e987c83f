package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"nutrition-rag/internal/apperr"
	"nutrition-rag/internal/contextutil"
)

// QdrantConfig configures the Qdrant connection.
type QdrantConfig struct {
	// URL is the REST endpoint, e.g. "http://localhost:6333" or a hosted
	// "https://<cluster>.cloud.qdrant.io:6333". The gRPC port is derived from it.
	URL    string
	APIKey string
	Options
}

// QdrantStore implements VectorStore using Qdrant over gRPC.
type QdrantStore struct {
	client *qdrant.Client
	opts   Options
}

// grpcAddress derives the gRPC host, port and TLS flag from a REST URL.
// The gRPC port is the REST port + 1 (6333 -> 6334).
func grpcAddress(urlStr string) (host string, port int, useTLS bool, err error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", 0, false, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host = parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port = 6334
	if p := parsedURL.Port(); p != "" {
		httpPort, convErr := strconv.Atoi(p)
		if convErr != nil {
			return "", 0, false, fmt.Errorf("invalid Qdrant port %q", p)
		}
		port = httpPort + 1
	}

	return host, port, parsedURL.Scheme == "https", nil
}

// NewQdrantStore creates a new Qdrant vector store client.
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	host, port, useTLS, err := grpcAddress(cfg.URL)
	if err != nil {
		return nil, apperr.New(apperr.KindConfiguration, "qdrant", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &QdrantStore{
		client: client,
		opts:   cfg.Options.withDefaults(),
	}, nil
}

// Close releases the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// classify maps gRPC failures onto error kinds. Unavailable, deadline and
// throttling codes are transient. A missing collection is a data contract
// failure.
func classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.New(apperr.KindTransientUpstream, op, err)
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Internal, codes.Unknown:
		return apperr.New(apperr.KindTransientUpstream, op, err)
	case codes.NotFound:
		return apperr.New(apperr.KindDataContract, op, err)
	default:
		return apperr.New(apperr.KindUpstream, op, err)
	}
}

// EnsureIndex creates the collection when missing and validates its vector size otherwise.
func (s *QdrantStore) EnsureIndex(ctx context.Context, name string, dimension int) (Index, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if dimension <= 0 {
		return Index{}, fmt.Errorf("dimension must be greater than 0")
	}

	exists, err := s.IndexExists(ctx, name)
	if err != nil {
		return Index{}, err
	}

	if !exists {
		logger.InfoContext(ctx, "creating collection", "collection", name, "vector_size", dimension)
		err := s.opts.call(ctx, "create collection", func(callCtx context.Context) error {
			return classify(ctx, "create collection", s.client.CreateCollection(callCtx, &qdrant.CreateCollection{
				CollectionName: name,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     uint64(dimension),
					Distance: qdrant.Distance_Cosine,
				}),
			}))
		})
		if err != nil {
			return Index{}, fmt.Errorf("failed to create collection: %w", err)
		}
		return Index{Name: name, Dimension: dimension, Created: true}, nil
	}

	info, err := s.IndexInfo(ctx, name)
	if err != nil {
		return Index{}, err
	}
	if info.Dimension == 0 {
		return Index{}, apperr.Errorf(apperr.KindDataContract, "ensure index", "could not determine vector size of collection %q", name)
	}
	if info.Dimension != dimension {
		return Index{}, apperr.New(apperr.KindDataContract, "ensure index",
			fmt.Errorf("%w: collection %q has %d, want %d", ErrDimensionMismatch, name, info.Dimension, dimension))
	}

	logger.InfoContext(ctx, "collection validated", "collection", name, "vector_size", dimension)
	return Index{Name: name, Dimension: dimension}, nil
}

// Upsert inserts or updates points in batches, waiting for each batch to be applied.
func (s *QdrantStore) Upsert(ctx context.Context, index string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	return s.opts.upsertBatches(ctx, index, records, func(callCtx context.Context, batch []Record) error {
		points := make([]*qdrant.PointStruct, 0, len(batch))
		for _, r := range batch {
			point := &qdrant.PointStruct{
				Id:      qdrant.NewID(r.ID),
				Vectors: qdrant.NewVectors(r.Vector...),
			}
			if len(r.Metadata) > 0 {
				payload, err := qdrant.TryValueMap(r.Metadata)
				if err != nil {
					return apperr.New(apperr.KindDataContract, "upsert", fmt.Errorf("invalid metadata for %s: %w", r.ID, err))
				}
				point.Payload = payload
			}
			points = append(points, point)
		}

		_, err := s.client.Upsert(callCtx, &qdrant.UpsertPoints{
			CollectionName: index,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return classify(ctx, "upsert", err)
	})
}

// Query performs a cosine similarity search returning payloads.
func (s *QdrantStore) Query(ctx context.Context, index string, vector []float32, topK int) ([]Match, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if topK <= 0 {
		return nil, fmt.Errorf("topK must be greater than 0")
	}

	limit := uint64(topK)
	var scored []*qdrant.ScoredPoint
	err := s.opts.call(ctx, "query", func(callCtx context.Context) error {
		res, err := s.client.Query(callCtx, &qdrant.QueryPoints{
			CollectionName: index,
			Query:          qdrant.NewQuery(vector...),
			Limit:          &limit,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return classify(ctx, "query", err)
		}
		scored = res
		return nil
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to query points", "collection", index, "top_k", topK, "error", err)
		return nil, fmt.Errorf("failed to query points: %w", err)
	}

	matches := make([]Match, 0, len(scored))
	for _, p := range scored {
		matches = append(matches, Match{
			ID:       pointID(p.GetId()),
			Score:    p.GetScore(),
			Metadata: convertPayloadToMap(p.GetPayload()),
		})
	}

	logger.DebugContext(ctx, "query completed", "collection", index, "top_k", topK, "results", len(matches))
	return matches, nil
}

// Delete removes points by their IDs.
func (s *QdrantStore) Delete(ctx context.Context, index string, ids []string) error {
	logger := contextutil.LoggerFromContext(ctx)

	if len(ids) == 0 {
		return nil
	}

	qdrantIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		qdrantIDs = append(qdrantIDs, qdrant.NewID(id))
	}

	err := s.opts.call(ctx, "delete", func(callCtx context.Context) error {
		_, err := s.client.Delete(callCtx, &qdrant.DeletePoints{
			CollectionName: index,
			Wait:           qdrant.PtrOf(true),
			Points:         qdrant.NewPointsSelector(qdrantIDs...),
		})
		return classify(ctx, "delete", err)
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to delete points", "collection", index, "count", len(ids), "error", err)
		return fmt.Errorf("failed to delete points: %w", err)
	}

	logger.InfoContext(ctx, "deleted points", "collection", index, "count", len(ids))
	return nil
}

// IndexExists checks if a collection exists.
func (s *QdrantStore) IndexExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.opts.call(ctx, "collection exists", func(callCtx context.Context) error {
		ok, err := s.client.CollectionExists(callCtx, name)
		if err != nil {
			return classify(ctx, "collection exists", err)
		}
		exists = ok
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}
	return exists, nil
}

// IndexInfo returns the collection's vector size, point count and status.
func (s *QdrantStore) IndexInfo(ctx context.Context, name string) (*IndexInfo, error) {
	var info *qdrant.CollectionInfo
	err := s.opts.call(ctx, "collection info", func(callCtx context.Context) error {
		res, err := s.client.GetCollectionInfo(callCtx, name)
		if err != nil {
			return classify(ctx, "collection info", err)
		}
		info = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get collection info: %w", err)
	}

	var vectorSize int
	if config := info.GetConfig(); config != nil && config.GetParams() != nil {
		if params := config.GetParams().GetVectorsConfig().GetParams(); params != nil {
			vectorSize = int(params.GetSize())
		}
	}

	return &IndexInfo{
		Name:      name,
		Dimension: vectorSize,
		Count:     int(info.GetPointsCount()),
		Status:    info.GetStatus().String(),
	}, nil
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

// convertPayloadToMap converts Qdrant payload to map[string]any.
func convertPayloadToMap(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		result[k] = convertValue(v)
	}
	return result
}

// convertValue converts a Qdrant Value to Go any type.
func convertValue(v *qdrant.Value) any {
	switch val := v.GetKind().(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_ListValue:
		list := make([]any, len(val.ListValue.GetValues()))
		for i, item := range val.ListValue.GetValues() {
			list[i] = convertValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return convertPayloadToMap(val.StructValue.GetFields())
	default:
		return nil
	}
}
