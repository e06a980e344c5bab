// internal/app/store/loginotp/store.go
package loginotp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/securenotes/internal/app/store/counters"
	"github.com/dalemusser/securenotes/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned by Latest when the user has never been issued a code.
var ErrNotFound = errors.New("no login code issued")

// Store provides access to the login_otps collection.
type Store struct {
	c   *mongo.Collection
	seq *counters.Store
}

func New(db *mongo.Database) *Store {
	return &Store{
		c:   db.Collection("login_otps"),
		seq: counters.New(db),
	}
}

// Insert stores a new unused code for userID. Older rows are left alone;
// they stop mattering once a newer row exists.
func (s *Store) Insert(ctx context.Context, userID int64, code string, expiresAt time.Time) (*models.LoginOTP, error) {
	id, err := s.seq.Next(ctx, counters.SeqLoginOTPs)
	if err != nil {
		return nil, fmt.Errorf("allocate otp id: %w", err)
	}
	o := models.LoginOTP{
		ID:        id,
		UserID:    userID,
		Code:      code,
		ExpiresAt: expiresAt,
		Used:      false,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.c.InsertOne(ctx, o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Latest returns the most recently issued code for userID.
func (s *Store) Latest(ctx context.Context, userID int64) (*models.LoginOTP, error) {
	var o models.LoginOTP
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})
	err := s.c.FindOne(ctx, bson.M{"user_id": userID}, opts).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// MarkUsed flips used to true if it is still false. It reports whether this
// call performed the flip, so at most one caller ever sees true for a row.
func (s *Store) MarkUsed(ctx context.Context, id int64) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "used": false},
		bson.M{"$set": bson.M{"used": true}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// DeleteExpiredBefore removes codes whose expiry is older than cutoff and
// returns how many were removed.
func (s *Store) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
