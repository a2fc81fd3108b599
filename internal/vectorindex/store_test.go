package vectorindex

import (
	"context"
	"errors"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"doc-rag-platform/models"
)

type mockPoints struct {
	upsertCalls []*pb.UpsertPoints
	upsertErrs  []error

	deleteCalls []*pb.DeletePoints
	deleteErr   error

	searchCalls []*pb.SearchPoints
	searchResp  *pb.SearchResponse
	searchErr   error

	getCalls []*pb.GetPoints
	getResp  *pb.GetResponse
	getErr   error
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	i := len(m.upsertCalls)
	m.upsertCalls = append(m.upsertCalls, in)
	if i < len(m.upsertErrs) && m.upsertErrs[i] != nil {
		return nil, m.upsertErrs[i]
	}
	return &pb.PointsOperationResponse{}, nil
}

func (m *mockPoints) Delete(_ context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.deleteCalls = append(m.deleteCalls, in)
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	return &pb.PointsOperationResponse{}, nil
}

func (m *mockPoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	m.searchCalls = append(m.searchCalls, in)
	return m.searchResp, m.searchErr
}

func (m *mockPoints) Get(_ context.Context, in *pb.GetPoints, _ ...grpc.CallOption) (*pb.GetResponse, error) {
	m.getCalls = append(m.getCalls, in)
	return m.getResp, m.getErr
}

type mockCollections struct {
	listResp  *pb.ListCollectionsResponse
	listErr   error
	createReq *pb.CreateCollection
	createErr error
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return m.listResp, m.listErr
}

func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.createReq = in
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func testRecords(n int) []Record {
	records := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		ref := models.ChunkVectorRef("doc1", i)
		records = append(records, Record{
			Ref:    ref,
			Vector: []float32{1, 0, 0},
			Meta: ChunkMeta{
				DocumentID:   "doc1",
				VectorRef:    ref,
				Text:         "chunk",
				PageNumber:   1,
				ChunkType:    models.ChunkTypeParagraph,
				ReadingOrder: i,
			},
		})
	}
	return records
}

func TestPointUUIDIsDeterministic(t *testing.T) {
	a := PointUUID("doc1-chunk-0")
	b := PointUUID("doc1-chunk-0")
	c := PointUUID("doc1-chunk-1")
	if a != b {
		t.Errorf("same ref must map to the same point id: %s vs %s", a, b)
	}
	if a == c {
		t.Errorf("different refs must not collide: %s", a)
	}
}

func TestEnsureCollectionSkipsExisting(t *testing.T) {
	cols := &mockCollections{
		listResp: &pb.ListCollectionsResponse{
			Collections: []*pb.CollectionDescription{{Name: "chunks"}},
		},
	}
	store := newWithClients(&mockPoints{}, cols, "chunks", 100)

	if err := store.EnsureCollection(context.Background(), 768); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cols.createReq != nil {
		t.Error("existing collection must not be recreated")
	}
}

func TestEnsureCollectionCreatesWithCosine(t *testing.T) {
	cols := &mockCollections{
		listResp: &pb.ListCollectionsResponse{},
	}
	store := newWithClients(&mockPoints{}, cols, "chunks", 100)

	if err := store.EnsureCollection(context.Background(), 768); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cols.createReq == nil {
		t.Fatal("expected a create call")
	}
	params := cols.createReq.GetVectorsConfig().GetParams()
	if params.GetSize() != 768 {
		t.Errorf("size %d, want 768", params.GetSize())
	}
	if params.GetDistance() != pb.Distance_Cosine {
		t.Errorf("distance %v, want cosine", params.GetDistance())
	}
}

func TestUpsertBatches(t *testing.T) {
	pts := &mockPoints{}
	store := newWithClients(pts, &mockCollections{}, "chunks", 2)

	if err := store.Upsert(context.Background(), testRecords(5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pts.upsertCalls) != 3 {
		t.Fatalf("5 records at batch size 2 should make 3 calls, got %d", len(pts.upsertCalls))
	}
	total := 0
	for _, call := range pts.upsertCalls {
		total += len(call.Points)
		if call.Wait == nil || !*call.Wait {
			t.Error("upserts must wait for durability")
		}
	}
	if total != 5 {
		t.Errorf("points across batches %d, want 5", total)
	}
}

func TestUpsertRetriesFailedBatchOnce(t *testing.T) {
	pts := &mockPoints{upsertErrs: []error{errors.New("transient")}}
	store := newWithClients(pts, &mockCollections{}, "chunks", 100)

	if err := store.Upsert(context.Background(), testRecords(3)); err != nil {
		t.Fatalf("retry should have recovered: %v", err)
	}
	if len(pts.upsertCalls) != 2 {
		t.Fatalf("expected 1 failure + 1 retry, got %d calls", len(pts.upsertCalls))
	}
}

func TestUpsertGivesUpAfterOneRetry(t *testing.T) {
	pts := &mockPoints{upsertErrs: []error{errors.New("down"), errors.New("still down")}}
	store := newWithClients(pts, &mockCollections{}, "chunks", 100)

	err := store.Upsert(context.Background(), testRecords(1))
	if err == nil {
		t.Fatal("expected error after exhausted retry")
	}
	if !errors.Is(err, models.ErrUpstreamUnavailable) {
		t.Errorf("error should be typed upstream-unavailable: %v", err)
	}
	if len(pts.upsertCalls) != 2 {
		t.Fatalf("retry must be bounded to one, got %d calls", len(pts.upsertCalls))
	}
}

func TestQueryFiltersByNamespace(t *testing.T) {
	pts := &mockPoints{
		searchResp: &pb.SearchResponse{
			Result: []*pb.ScoredPoint{
				{
					Score: 0.92,
					Payload: ChunkMeta{
						DocumentID:   "doc1",
						VectorRef:    "doc1-chunk-4",
						Text:         "hit",
						PageNumber:   2,
						ChunkType:    models.ChunkTypeParagraph,
						ReadingOrder: 4,
					}.ToPayload(),
				},
			},
		},
	}
	store := newWithClients(pts, &mockCollections{}, "chunks", 100)

	matches, err := store.Query(context.Background(), "doc1", []float32{1, 0}, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Ref != "doc1-chunk-4" || matches[0].Score != float64(float32(0.92)) {
		t.Errorf("match mishydrated: %+v", matches[0])
	}
	if matches[0].Meta.ReadingOrder != 4 {
		t.Errorf("reading order lost: %+v", matches[0].Meta)
	}

	req := pts.searchCalls[0]
	if req.Filter == nil || len(req.Filter.Must) != 1 {
		t.Fatal("query must filter on the owning document")
	}
	field := req.Filter.Must[0].GetField()
	if field.Key != "document_id" || field.Match.GetKeyword() != "doc1" {
		t.Errorf("wrong namespace filter: %+v", field)
	}
	if req.Limit != 8 {
		t.Errorf("limit %d, want 8", req.Limit)
	}
}

func TestQueryErrorIsTyped(t *testing.T) {
	pts := &mockPoints{searchErr: errors.New("connection refused")}
	store := newWithClients(pts, &mockCollections{}, "chunks", 100)

	_, err := store.Query(context.Background(), "doc1", []float32{1}, 8)
	if !errors.Is(err, models.ErrUpstreamUnavailable) {
		t.Errorf("expected upstream-unavailable, got %v", err)
	}
}

func TestFetchByRefReturnsMatch(t *testing.T) {
	pts := &mockPoints{
		getResp: &pb.GetResponse{
			Result: []*pb.RetrievedPoint{
				{
					Payload: ChunkMeta{
						DocumentID:   "doc1",
						VectorRef:    "doc1-chunk-3",
						Text:         "neighbor",
						PageNumber:   1,
						ChunkType:    models.ChunkTypeParagraph,
						ReadingOrder: 3,
					}.ToPayload(),
				},
			},
		},
	}
	store := newWithClients(pts, &mockCollections{}, "chunks", 100)

	match, err := store.FetchByRef(context.Background(), "doc1", "doc1-chunk-3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match.Ref != "doc1-chunk-3" || match.Meta.Text != "neighbor" {
		t.Errorf("wrong match: %+v", match)
	}

	req := pts.getCalls[0]
	if len(req.Ids) != 1 || req.Ids[0].GetUuid() != PointUUID("doc1-chunk-3") {
		t.Errorf("fetch must address the derived point id")
	}
}

func TestFetchByRefMissingPointIsNotFound(t *testing.T) {
	pts := &mockPoints{getResp: &pb.GetResponse{}}
	store := newWithClients(pts, &mockCollections{}, "chunks", 100)

	_, err := store.FetchByRef(context.Background(), "doc1", "doc1-chunk-99")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestFetchByRefRefusesForeignNamespace(t *testing.T) {
	pts := &mockPoints{
		getResp: &pb.GetResponse{
			Result: []*pb.RetrievedPoint{
				{
					Payload: ChunkMeta{
						DocumentID: "other-doc",
						VectorRef:  "other-doc-chunk-0",
					}.ToPayload(),
				},
			},
		},
	}
	store := newWithClients(pts, &mockCollections{}, "chunks", 100)

	_, err := store.FetchByRef(context.Background(), "doc1", "other-doc-chunk-0")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("cross-document fetch must read as not-found, got %v", err)
	}
}

func TestDeleteNamespaceUsesFilter(t *testing.T) {
	pts := &mockPoints{}
	store := newWithClients(pts, &mockCollections{}, "chunks", 100)

	if err := store.DeleteNamespace(context.Background(), "doc1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sel := pts.deleteCalls[0].Points.GetFilter()
	if sel == nil || len(sel.Must) != 1 {
		t.Fatal("delete must be filter-scoped")
	}
	field := sel.Must[0].GetField()
	if field.Key != "document_id" || field.Match.GetKeyword() != "doc1" {
		t.Errorf("wrong delete filter: %+v", field)
	}
}
