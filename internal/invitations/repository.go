package invitations

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound = errors.New("token not found")
	// ErrConflict signals a lost conditional write: the token's status changed
	// underneath the caller. The service re-reads and maps it to the precise
	// terminal error.
	ErrConflict = errors.New("token conflict")
)

// Repository provides token persistence. UpdateStatus is a conditional write
// on the current status; this is the storage contract that makes markUsed
// safe under concurrent callers racing the same token.
type Repository interface {
	Create(ctx context.Context, t *Token) error
	Get(ctx context.Context, id string) (*Token, error)
	GetBySecretHash(ctx context.Context, hash string) (*Token, error)
	GetActiveBySigner(ctx context.Context, signerID string) (*Token, error)
	Update(ctx context.Context, t *Token) error
	UpdateStatus(ctx context.Context, t *Token, from TokenStatus) error
}

// MongoRepository implements Repository using a Mongo collection.
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	idx := mongo.IndexModel{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)}
	col.Indexes().CreateOne(context.Background(), idx)
	hashIdx := mongo.IndexModel{Keys: bson.D{{Key: "secretHash", Value: 1}}, Options: options.Index().SetUnique(true)}
	col.Indexes().CreateOne(context.Background(), hashIdx)
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, t *Token) error {
	_, err := r.col.InsertOne(ctx, t)
	return err
}

func (r *MongoRepository) Get(ctx context.Context, id string) (*Token, error) {
	return r.findOne(ctx, bson.M{"id": id})
}

func (r *MongoRepository) GetBySecretHash(ctx context.Context, hash string) (*Token, error) {
	return r.findOne(ctx, bson.M{"secretHash": hash})
}

func (r *MongoRepository) GetActiveBySigner(ctx context.Context, signerID string) (*Token, error) {
	return r.findOne(ctx, bson.M{"signerId": signerID, "status": string(TokenActive)})
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (*Token, error) {
	var t Token
	if err := r.col.FindOne(ctx, filter).Decode(&t); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *MongoRepository) Update(ctx context.Context, t *Token) error {
	res, err := r.col.ReplaceOne(ctx, bson.M{"id": t.ID}, t)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus replaces the token conditioned on the stored status still
// being from. Exactly one of two racing ACTIVE -> USED writers matches; the
// other observes ErrConflict.
func (r *MongoRepository) UpdateStatus(ctx context.Context, t *Token, from TokenStatus) error {
	res, err := r.col.ReplaceOne(ctx, bson.M{"id": t.ID, "status": string(from)}, t)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		n, err := r.col.CountDocuments(ctx, bson.M{"id": t.ID})
		if err == nil && n == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}
