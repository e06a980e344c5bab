// internal/app/store/lockout/store.go
package lockoutstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/securenotes/internal/app/system/normalize"
	"github.com/dalemusser/securenotes/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store persists per-email failure counters in "login_attempts".
// The folded email (normalize.Key) is the document _id, so every spelling
// of an address shares exactly one row.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("login_attempts")}
}

// Get returns the attempt row for email, or nil when none exists.
func (s *Store) Get(ctx context.Context, email string) (*models.LoginAttempt, error) {
	var a models.LoginAttempt
	err := s.c.FindOne(ctx, bson.M{"_id": normalize.Key(email)}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// IncrementFailure adds one failure for email and, if the new count is at
// least maxFails, sets locked_until to lockUntil. Both happen in a single
// server-side update so concurrent failures are never lost.
// The row is created at count 1 when absent. The updated row is returned.
func (s *Store) IncrementFailure(ctx context.Context, email string, maxFails int, lockUntil, now time.Time) (*models.LoginAttempt, error) {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "fail_count", Value: bson.D{{Key: "$add", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$fail_count", 0}}},
				1,
			}}}},
			{Key: "updated_at", Value: now},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "locked_until", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$gte", Value: bson.A{"$fail_count", maxFails}}},
				lockUntil,
				bson.D{{Key: "$ifNull", Value: bson.A{"$locked_until", nil}}},
			}}}},
		}}},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var a models.LoginAttempt
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": normalize.Key(email)}, update, opts).Decode(&a)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Reset zeroes the counter and clears any lock for email. Emails with no
// row are left without one; rows only appear on a first failure.
func (s *Store) Reset(ctx context.Context, email string, now time.Time) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": normalize.Key(email)},
		bson.M{"$set": bson.M{
			"fail_count":   0,
			"locked_until": nil,
			"updated_at":   now,
		}},
	)
	return err
}
