// Package qdrant provides a VectorDB implementation using Qdrant.
package qdrant

import (
	"context"
	"errors"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/ersonp/unistore/internal/domain/ports"
	"github.com/ersonp/unistore/internal/infrastructure/config"
)

// Payload keys stored with every point.
const (
	payloadWorkspace = "workspace_id"
	payloadType      = "type"
	payloadEntity    = "entity_id"
)

// Repository implements the VectorDB interface using Qdrant.
type Repository struct {
	client     pb.CollectionsClient
	points     pb.PointsClient
	collection string
	apiKey     string
	conn       *grpc.ClientConn
}

var (
	_ ports.VectorDB          = (*Repository)(nil)
	_ ports.CollectionManager = (*Repository)(nil)
)

// NewRepository creates a new Qdrant repository.
func NewRepository(cfg config.QdrantConfig) (*Repository, error) {
	if cfg.Collection == "" {
		return nil, errors.New("qdrant collection is required")
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	return &Repository{
		client:     pb.NewCollectionsClient(conn),
		points:     pb.NewPointsClient(conn),
		collection: config.SanitizeName(cfg.Collection),
		apiKey:     cfg.APIKey,
		conn:       conn,
	}, nil
}

// Close closes the gRPC connection.
func (r *Repository) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func (r *Repository) withAuth(ctx context.Context) context.Context {
	if r.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", r.apiKey)
}

// EnsureCollection creates the collection if it doesn't exist.
func (r *Repository) EnsureCollection(ctx context.Context, vectorSize uint64) error {
	ctx = r.withAuth(ctx)
	_, err := r.client.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collection,
	})
	if err == nil {
		return nil
	}

	_, err = r.client.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     vectorSize,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	return nil
}

// DeleteCollection removes the collection and all its points.
func (r *Repository) DeleteCollection(ctx context.Context) error {
	_, err := r.client.Delete(r.withAuth(ctx), &pb.DeleteCollection{CollectionName: r.collection})
	if err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	return nil
}

// Upsert stores or replaces the embedding of an entity. Entity ids are
// UUIDs and double as point ids.
func (r *Repository) Upsert(ctx context.Context, doc ports.VectorDocument) error {
	return r.UpsertBatch(ctx, []ports.VectorDocument{doc})
}

// UpsertBatch stores or replaces several embeddings in a single request.
func (r *Repository) UpsertBatch(ctx context.Context, docs []ports.VectorDocument) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(docs))
	for i, doc := range docs {
		points[i] = buildPoint(doc)
	}

	_, err := r.points.Upsert(r.withAuth(ctx), &pb.UpsertPoints{
		CollectionName: r.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}
	return nil
}

// Search performs a semantic search within a workspace.
func (r *Repository) Search(ctx context.Context, embedding []float32, filter ports.VectorFilter, limit int) ([]ports.VectorHit, error) {
	if filter.WorkspaceID == "" {
		return nil, errors.New("workspace is required for vector search")
	}
	if limit <= 0 {
		limit = 10
	}

	resp, err := r.points.Search(r.withAuth(ctx), &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         embedding,
		Limit:          uint64(limit),
		Filter:         buildFilter(filter),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
		WithVectors: &pb.WithVectorsSelector{
			SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: false},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("searching points: %w", err)
	}

	return scoredPointsToHits(resp.Result), nil
}

// Delete removes an entity's embedding by entity ID.
func (r *Repository) Delete(ctx context.Context, entityID string) error {
	_, err := r.points.Delete(r.withAuth(ctx), &pb.DeletePoints{
		CollectionName: r.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{
						{PointIdOptions: &pb.PointId_Uuid{Uuid: entityID}},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting point: %w", err)
	}

	return nil
}

// DeleteByWorkspace removes every point of a workspace.
func (r *Repository) DeleteByWorkspace(ctx context.Context, workspaceID string) error {
	_, err := r.points.Delete(r.withAuth(ctx), &pb.DeletePoints{
		CollectionName: r.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: buildFilter(ports.VectorFilter{WorkspaceID: workspaceID}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting points by workspace: %w", err)
	}

	return nil
}

// buildPoint converts a vector document to a Qdrant point.
func buildPoint(doc ports.VectorDocument) *pb.PointStruct {
	return &pb.PointStruct{
		Id: &pb.PointId{
			PointIdOptions: &pb.PointId_Uuid{
				Uuid: doc.EntityID,
			},
		},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{
					Data: doc.Embedding,
				},
			},
		},
		Payload: map[string]*pb.Value{
			payloadWorkspace: {Kind: &pb.Value_StringValue{StringValue: doc.WorkspaceID}},
			payloadType:      {Kind: &pb.Value_StringValue{StringValue: doc.Type}},
			payloadEntity:    {Kind: &pb.Value_StringValue{StringValue: doc.EntityID}},
		},
	}
}

// buildFilter always constrains by workspace and optionally by type.
func buildFilter(filter ports.VectorFilter) *pb.Filter {
	must := []*pb.Condition{keywordCondition(payloadWorkspace, filter.WorkspaceID)}

	if len(filter.Types) == 1 {
		must = append(must, keywordCondition(payloadType, filter.Types[0]))
	} else if len(filter.Types) > 1 {
		must = append(must, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: payloadType,
					Match: &pb.Match{
						MatchValue: &pb.Match_Keywords{
							Keywords: &pb.RepeatedStrings{Strings: filter.Types},
						},
					},
				},
			},
		})
	}

	return &pb.Filter{Must: must}
}

func keywordCondition(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{
						Keyword: value,
					},
				},
			},
		},
	}
}

// scoredPointsToHits converts scored points to hits, preferring the entity
// id stored in the payload.
func scoredPointsToHits(points []*pb.ScoredPoint) []ports.VectorHit {
	hits := make([]ports.VectorHit, 0, len(points))
	for _, point := range points {
		id := getStringValue(point.Payload, payloadEntity)
		if id == "" {
			id = point.Id.GetUuid()
		}
		if id == "" {
			continue
		}
		hits = append(hits, ports.VectorHit{EntityID: id, Score: point.Score})
	}
	return hits
}

// Helper functions for payload extraction.
func getStringValue(payload map[string]*pb.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}
