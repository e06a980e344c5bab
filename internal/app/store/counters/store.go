// internal/app/store/counters/store.go
package counters

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Sequence names used by the stores.
const (
	SeqUsers     = "users"
	SeqLoginOTPs = "login_otps"
)

type counter struct {
	Name  string `bson:"_id"`
	Value int64  `bson:"value"`
}

// Store hands out monotonically increasing int64 ids per named sequence.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("counters")}
}

// Next atomically increments the named sequence and returns the new value.
// The first call for a sequence returns 1.
func (s *Store) Next(ctx context.Context, name string) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var c counter
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		opts,
	).Decode(&c)
	if err != nil {
		return 0, err
	}
	return c.Value, nil
}
