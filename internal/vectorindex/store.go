// Package vectorindex owns all Qdrant operations. Vectors live in a single
// collection; isolation between documents is enforced by filtering every
// search and delete on the owning document id, so queries never cross
// documents.
package vectorindex

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"doc-rag-platform/internal/logger"
	"doc-rag-platform/models"
)

// Record is one vector plus payload queued for upsert.
type Record struct {
	Ref    string // deterministic "<documentId>-chunk-<position>" reference
	Vector []float32
	Meta   ChunkMeta
}

// Match is one point returned by a search or fetch.
type Match struct {
	Ref   string
	Score float64
	Meta  ChunkMeta
}

// pointsAPI is the slice of the Qdrant points service the store uses.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Get(ctx context.Context, in *pb.GetPoints, opts ...grpc.CallOption) (*pb.GetResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Store is the sole owner of the Qdrant connection.
type Store struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	batchSize   int
}

// New connects to Qdrant at the given gRPC address.
func New(addr, collection string, batchSize int) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("vectorindex: dial qdrant %s: %w", addr, err)
	}
	store := newWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection, batchSize)
	store.conn = conn
	return store, nil
}

func newWithClients(points pointsAPI, collections collectionsAPI, collection string, batchSize int) *Store {
	if batchSize < 1 {
		batchSize = 100
	}
	return &Store{
		points:      points,
		collections: collections,
		collection:  collection,
		batchSize:   batchSize,
	}
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// PointUUID derives the stable point id for a vector reference. Qdrant only
// accepts UUIDs or integers as point ids, so the human-readable reference is
// hashed; the same reference always lands on the same point, which is what
// makes upserts idempotent and neighbor fetches deterministic.
func PointUUID(ref string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(ref)).String()
}

// EnsureCollection creates the collection if it doesn't exist.
func (s *Store) EnsureCollection(ctx context.Context, dims int) error {
	exists, err := s.collectionExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorindex: create collection %s: %v: %w", s.collection, err, models.ErrUpstreamUnavailable)
	}

	logger.Info("Vector collection created", "collection", s.collection, "dimensions", dims)
	return nil
}

// Ping reports whether Qdrant is reachable and the collection exists. Used by
// the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	exists, err := s.collectionExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("vectorindex: collection %s missing: %w", s.collection, models.ErrNotFound)
	}
	return nil
}

func (s *Store) collectionExists(ctx context.Context) (bool, error) {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("vectorindex: list collections: %v: %w", err, models.ErrUpstreamUnavailable)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return true, nil
		}
	}
	return false, nil
}

// Upsert writes records in batches. Writing the same reference twice
// overwrites the point. A batch that still fails after one retry aborts the
// remaining batches.
func (s *Store) Upsert(ctx context.Context, records []Record) error {
	for start := 0; start < len(records); start += s.batchSize {
		end := start + s.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		if err := s.upsertBatch(ctx, batch); err != nil {
			logger.Warn("Vector upsert batch failed, retrying once", "offset", start, "size", len(batch), "error", err)
			if err := s.upsertBatch(ctx, batch); err != nil {
				return fmt.Errorf("vectorindex: upsert batch at offset %d: %w", start, err)
			}
		}
	}
	return nil
}

func (s *Store) upsertBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointUUID(r.Ref)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Vector},
				},
			},
			Payload: r.Meta.ToPayload(),
		}
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert %d points: %v: %w", len(records), err, models.ErrUpstreamUnavailable)
	}
	return nil
}

// Query runs cosine similarity search scoped to one document.
func (s *Store) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	if topK < 1 {
		return nil, nil
	}

	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter: &pb.Filter{
			Must: []*pb.Condition{
				fieldMatch("document_id", namespace),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vectorindex: search in %s: %v: %w", namespace, err, models.ErrUpstreamUnavailable)
	}

	matches := make([]Match, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		meta := metaFromPayload(r.GetPayload())
		matches = append(matches, Match{
			Ref:   meta.VectorRef,
			Score: float64(r.GetScore()),
			Meta:  meta,
		})
	}
	return matches, nil
}

// FetchByRef retrieves a single point by its deterministic reference. This is
// a direct lookup, not a similarity search; the returned match carries no
// score. A reference belonging to a different document is reported as not
// found rather than leaking across the namespace boundary.
func (s *Store) FetchByRef(ctx context.Context, namespace, ref string) (*Match, error) {
	resp, err := s.points.Get(ctx, &pb.GetPoints{
		CollectionName: s.collection,
		Ids: []*pb.PointId{
			{PointIdOptions: &pb.PointId_Uuid{Uuid: PointUUID(ref)}},
		},
		WithPayload: &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("vectorindex: fetch %s: %v: %w", ref, err, models.ErrUpstreamUnavailable)
	}

	result := resp.GetResult()
	if len(result) == 0 {
		return nil, fmt.Errorf("vectorindex: point %s: %w", ref, models.ErrNotFound)
	}

	meta := metaFromPayload(result[0].GetPayload())
	if meta.DocumentID != namespace {
		return nil, fmt.Errorf("vectorindex: point %s outside namespace %s: %w", ref, namespace, models.ErrNotFound)
	}

	return &Match{Ref: meta.VectorRef, Meta: meta}, nil
}

// DeleteNamespace removes every point belonging to one document.
func (s *Store) DeleteNamespace(ctx context.Context, namespace string) error {
	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						fieldMatch("document_id", namespace),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorindex: delete namespace %s: %v: %w", namespace, err, models.ErrUpstreamUnavailable)
	}
	return nil
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
