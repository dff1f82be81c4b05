// Package semantic owns all Qdrant operations for the article similarity
// index. Search results carry cosine similarity scores; the collection is
// created with cosine distance so Qdrant scores map directly.
package semantic

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/FinSightAI/finsight-mvp/engine/domain"
	"github.com/FinSightAI/finsight-mvp/pkg/resilience"
)

// pointsAPI is the slice of the Qdrant points service the index uses.
// pb.PointsClient satisfies it.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// collectionsAPI is the slice of the Qdrant collections service the index
// uses. pb.CollectionsClient satisfies it.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Index is the sole owner of all Qdrant operations.
type Index struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	breaker     *resilience.Breaker
}

// New creates an Index connected to Qdrant at the given gRPC address. All
// calls run through a circuit breaker; an open breaker or transport failure
// surfaces as domain.ErrIndexUnavailable so ingestion can fail closed.
func New(addr string, collection string) (*Index, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	x := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection)
	x.conn = conn
	return x, nil
}

// NewWithClients creates an Index on existing service clients, for tests.
func NewWithClients(points pointsAPI, collections collectionsAPI, collection string) *Index {
	return &Index{
		points:      points,
		collections: collections,
		collection:  collection,
		breaker:     resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
}

// Close closes the underlying gRPC connection.
func (x *Index) Close() error {
	if x.conn == nil {
		return nil
	}
	return x.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
func (x *Index) EnsureCollection(ctx context.Context, dims int) error {
	list, err := x.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w: %v", domain.ErrIndexUnavailable, err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == x.collection {
			return nil
		}
	}

	d := uint64(dims)
	_, err = x.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     d,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w: %v", x.collection, domain.ErrIndexUnavailable, err)
	}
	return nil
}

// Upsert stores one article vector. Writes with the same article id replace
// the previous point, so re-ingestion is idempotent.
func (x *Index) Upsert(ctx context.Context, rec Record) error {
	point := &pb.PointStruct{
		Id: &pb.PointId{
			PointIdOptions: &pb.PointId_Num{Num: uint64(rec.ArticleID)},
		},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{Data: rec.Embedding},
			},
		},
		Payload: map[string]*pb.Value{
			"article_id":   {Kind: &pb.Value_IntegerValue{IntegerValue: rec.ArticleID}},
			"title":        {Kind: &pb.Value_StringValue{StringValue: rec.Title}},
			"source":       {Kind: &pb.Value_StringValue{StringValue: rec.Source}},
			"is_duplicate": {Kind: &pb.Value_BoolValue{BoolValue: rec.IsDuplicate}},
		},
	}

	err := x.breaker.Call(ctx, func(ctx context.Context) error {
		wait := true
		_, err := x.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: x.collection,
			Wait:           &wait,
			Points:         []*pb.PointStruct{point},
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert article %d: %w: %v", rec.ArticleID, domain.ErrIndexUnavailable, err)
	}
	return nil
}

// Nearest performs k-NN similarity search. With excludeDuplicates set, only
// points stored as non-duplicates are considered, so duplicates never become
// duplicate targets.
func (x *Index) Nearest(ctx context.Context, embedding []float32, k int, excludeDuplicates bool) ([]Neighbor, error) {
	req := &pb.SearchPoints{
		CollectionName: x.collection,
		Vector:         embedding,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if excludeDuplicates {
		req.Filter = &pb.Filter{
			Must: []*pb.Condition{{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key: "is_duplicate",
						Match: &pb.Match{
							MatchValue: &pb.Match_Boolean{Boolean: false},
						},
					},
				},
			}},
		}
	}

	var resp *pb.SearchResponse
	err := x.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		resp, err = x.points.Search(ctx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w: %v", domain.ErrIndexUnavailable, err)
	}

	return collect(resp.GetResult()), nil
}

// SimilarityByIDs scores the given article ids against the embedding and
// returns a map keyed by article id. Ids missing from the index are simply
// absent from the result.
func (x *Index) SimilarityByIDs(ctx context.Context, embedding []float32, ids []int64) (map[int64]float64, error) {
	if len(ids) == 0 {
		return map[int64]float64{}, nil
	}

	pids := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pids[i] = &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(id)}}
	}
	req := &pb.SearchPoints{
		CollectionName: x.collection,
		Vector:         embedding,
		Limit:          uint64(len(ids)),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter: &pb.Filter{
			Must: []*pb.Condition{{
				ConditionOneOf: &pb.Condition_HasId{
					HasId: &pb.HasIdCondition{HasId: pids},
				},
			}},
		},
	}

	var resp *pb.SearchResponse
	err := x.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		resp, err = x.points.Search(ctx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: score by id: %w: %v", domain.ErrIndexUnavailable, err)
	}

	scores := make(map[int64]float64, len(resp.GetResult()))
	for _, n := range collect(resp.GetResult()) {
		scores[n.ArticleID] = n.Similarity
	}
	return scores, nil
}

// collect maps raw scored points to neighbors, falling back to the payload
// article_id for older points whose id lives only in the payload.
func collect(result []*pb.ScoredPoint) []Neighbor {
	neighbors := make([]Neighbor, len(result))
	for i, r := range result {
		id := int64(r.GetId().GetNum())
		// Older points may carry the id only in the payload.
		if id == 0 {
			if v, ok := r.GetPayload()["article_id"]; ok {
				id = v.GetIntegerValue()
			}
		}
		neighbors[i] = Neighbor{
			ArticleID:  id,
			Similarity: float64(r.GetScore()),
		}
	}
	return neighbors
}
