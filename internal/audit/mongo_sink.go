package audit

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSink stores events append-only in a Mongo collection, indexed by
// envelope for trail reads.
type MongoSink struct {
	col *mongo.Collection
}

func NewMongoSink(col *mongo.Collection) *MongoSink {
	idx := mongo.IndexModel{Keys: bson.D{{Key: "envelopeId", Value: 1}, {Key: "occurredAt", Value: 1}}}
	col.Indexes().CreateOne(context.Background(), idx)
	return &MongoSink{col: col}
}

func (s *MongoSink) Append(ctx context.Context, ev Event) error {
	_, err := s.col.InsertOne(ctx, ev)
	return err
}

func (s *MongoSink) ListByEnvelope(ctx context.Context, envelopeID string) ([]Event, error) {
	cur, err := s.col.Find(ctx, bson.M{"envelopeId": envelopeID},
		options.Find().SetSort(bson.D{{Key: "occurredAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []Event
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
