package vectorindex

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rstamps01/rag-app-sub001/internal/config"
	"github.com/rstamps01/rag-app-sub001/internal/model"
	appErr "github.com/rstamps01/rag-app-sub001/internal/pkg/errors"
)

type qdrantConfig struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	APIKey string `json:"api_key"`
	UseTLS bool   `json:"use_tls"`
}

type qdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

func init() {
	Register("qdrant", createQdrantIndex)
}

func createQdrantIndex(cfg config.IndexConfig, deps Deps) (Index, error) {
	_ = deps
	args := &qdrantConfig{}
	if err := decodeConfig(cfg.Data, args); err != nil {
		return nil, err
	}
	if args.Host == "" {
		args.Host = "localhost"
	}
	if args.Port == 0 {
		args.Port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   args.Host,
		Port:   args.Port,
		APIKey: args.APIKey,
		UseTLS: args.UseTLS,
		GrpcOptions: []grpc.DialOption{
			// Search responses carry full chunk text in every payload and
			// can exceed the 4MB default receive limit.
			grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(32 << 20)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}
	return &qdrantIndex{client: client, collection: cfg.Collection}, nil
}

func (q *qdrantIndex) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: invalid vector dimension %d", appErr.ErrConfiguration, dimension)
	}
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("%w: check collection: %v", appErr.ErrResourceUnavailable, err)
	}
	if !exists {
		err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("create collection %s: %w", q.collection, err)
		}
		logutil.GetLogger(ctx).Info("vector collection created",
			zap.String("collection", q.collection), zap.Int("dimension", dimension))
		q.dimension = dimension
		return nil
	}
	info, err := q.client.GetCollectionInfo(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("%w: collection info: %v", appErr.ErrResourceUnavailable, err)
	}
	existing := int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
	if existing != 0 && existing != dimension {
		// Changing embedding models requires a full re-index, never a
		// silent dimension change.
		return fmt.Errorf("%w: collection %s has dimension %d, embedding model produces %d",
			appErr.ErrConfiguration, q.collection, existing, dimension)
	}
	q.dimension = dimension
	return nil
}

func (q *qdrantIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	qpoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		qpoints = append(qpoints, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID()),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"document_id":     p.DocumentID,
				"chunk_index":     int64(p.ChunkIndex),
				"department":      string(p.Department),
				"source_filename": p.SourceFilename,
				"text":            p.Text,
			}),
		})
	}
	wait := true
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         qpoints,
	})
	if err != nil {
		return fmt.Errorf("%w: upsert points: %v", appErr.ErrResourceUnavailable, err)
	}
	return nil
}

func (q *qdrantIndex) Search(ctx context.Context, vector []float32, department model.Department, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 5
	}
	limit := uint64(topK)
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("department", string(department)),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", appErr.ErrResourceUnavailable, err)
	}
	matches := make([]Match, 0, len(results))
	for _, point := range results {
		payload := point.GetPayload()
		matches = append(matches, Match{
			DocumentID:     payload["document_id"].GetStringValue(),
			ChunkIndex:     int(payload["chunk_index"].GetIntegerValue()),
			Department:     model.Department(payload["department"].GetStringValue()),
			SourceFilename: payload["source_filename"].GetStringValue(),
			Text:           payload["text"].GetStringValue(),
			Score:          point.GetScore(),
		})
	}
	return matches, nil
}

func (q *qdrantIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	wait := true
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("document_id", documentID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: delete points: %v", appErr.ErrResourceUnavailable, err)
	}
	return nil
}

func (q *qdrantIndex) Dimension() int {
	return q.dimension
}
