package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sealflow/sealflow/backend/go-services/internal/envelope"
)

// MongoEnvelopes implements Envelopes on a Mongo collection. Documents are
// keyed by an "id" string field with a unique index.
type MongoEnvelopes struct {
	col *mongo.Collection
}

func NewMongoEnvelopes(col *mongo.Collection) *MongoEnvelopes {
	idx := mongo.IndexModel{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)}
	col.Indexes().CreateOne(context.Background(), idx)
	return &MongoEnvelopes{col: col}
}

func (m *MongoEnvelopes) Create(ctx context.Context, e *envelope.Envelope) error {
	if e.Version == 0 {
		e.Version = 1
	}
	_, err := m.col.InsertOne(ctx, e)
	return err
}

func (m *MongoEnvelopes) Get(ctx context.Context, id string) (*envelope.Envelope, error) {
	var e envelope.Envelope
	err := m.col.FindOne(ctx, bson.M{"id": id}).Decode(&e)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// Update replaces the document only when the stored version still matches the
// one the caller read; a miss means a concurrent writer won and the caller
// gets ErrConflict.
func (m *MongoEnvelopes) Update(ctx context.Context, e *envelope.Envelope) error {
	readVersion := e.Version
	e.Version++
	res, err := m.col.ReplaceOne(ctx, bson.M{"id": e.ID, "version": readVersion}, e)
	if err != nil {
		e.Version = readVersion
		return err
	}
	if res.MatchedCount == 0 {
		e.Version = readVersion
		// distinguish a missing row from a lost race
		n, err := m.col.CountDocuments(ctx, bson.M{"id": e.ID})
		if err == nil && n == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (m *MongoEnvelopes) ListByOwner(ctx context.Context, ownerID string) ([]*envelope.Envelope, error) {
	return m.list(ctx, bson.M{"ownerId": ownerID})
}

func (m *MongoEnvelopes) ListOverdue(ctx context.Context, before time.Time) ([]*envelope.Envelope, error) {
	return m.list(ctx, bson.M{
		"status":    bson.M{"$nin": []string{string(envelope.StatusCompleted), string(envelope.StatusExpired)}},
		"expiresAt": bson.M{"$lt": before},
	})
}

func (m *MongoEnvelopes) list(ctx context.Context, filter bson.M) ([]*envelope.Envelope, error) {
	cur, err := m.col.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*envelope.Envelope{}
	for cur.Next(ctx) {
		var e envelope.Envelope
		if err := cur.Decode(&e); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, cur.Err()
}

func (m *MongoEnvelopes) Delete(ctx context.Context, id string) error {
	res, err := m.col.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MongoSigners implements Signers on a Mongo collection.
type MongoSigners struct {
	col *mongo.Collection
}

func NewMongoSigners(col *mongo.Collection) *MongoSigners {
	idx := mongo.IndexModel{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)}
	col.Indexes().CreateOne(context.Background(), idx)
	envIdx := mongo.IndexModel{Keys: bson.D{{Key: "envelopeId", Value: 1}}}
	col.Indexes().CreateOne(context.Background(), envIdx)
	return &MongoSigners{col: col}
}

func (m *MongoSigners) CreateMany(ctx context.Context, signers []*envelope.Signer) error {
	if len(signers) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(signers))
	for _, s := range signers {
		docs = append(docs, s)
	}
	_, err := m.col.InsertMany(ctx, docs)
	return err
}

func (m *MongoSigners) Get(ctx context.Context, id string) (*envelope.Signer, error) {
	var s envelope.Signer
	err := m.col.FindOne(ctx, bson.M{"id": id}).Decode(&s)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (m *MongoSigners) ListByEnvelope(ctx context.Context, envelopeID string) ([]*envelope.Signer, error) {
	opts := options.Find().SetSort(bson.D{{Key: "order", Value: 1}})
	cur, err := m.col.Find(ctx, bson.M{"envelopeId": envelopeID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*envelope.Signer{}
	for cur.Next(ctx) {
		var s envelope.Signer
		if err := cur.Decode(&s); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, cur.Err()
}

// UpdateStatus replaces the signer conditioned on the stored status still
// being from. The losing side of a concurrent transition sees ErrConflict.
func (m *MongoSigners) UpdateStatus(ctx context.Context, s *envelope.Signer, from envelope.SignerStatus) error {
	res, err := m.col.ReplaceOne(ctx, bson.M{"id": s.ID, "status": string(from)}, s)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		n, err := m.col.CountDocuments(ctx, bson.M{"id": s.ID})
		if err == nil && n == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (m *MongoSigners) DeleteByEnvelope(ctx context.Context, envelopeID string) error {
	_, err := m.col.DeleteMany(ctx, bson.M{"envelopeId": envelopeID})
	return err
}

// MongoSignatures implements append-only Signatures on a Mongo collection.
type MongoSignatures struct {
	col *mongo.Collection
}

func NewMongoSignatures(col *mongo.Collection) *MongoSignatures {
	idx := mongo.IndexModel{Keys: bson.D{{Key: "envelopeId", Value: 1}}}
	col.Indexes().CreateOne(context.Background(), idx)
	return &MongoSignatures{col: col}
}

func (m *MongoSignatures) Append(ctx context.Context, rec *envelope.SignatureRecord) error {
	_, err := m.col.InsertOne(ctx, rec)
	return err
}

func (m *MongoSignatures) ListByEnvelope(ctx context.Context, envelopeID string) ([]*envelope.SignatureRecord, error) {
	cur, err := m.col.Find(ctx, bson.M{"envelopeId": envelopeID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*envelope.SignatureRecord{}
	for cur.Next(ctx) {
		var r envelope.SignatureRecord
		if err := cur.Decode(&r); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, cur.Err()
}
