// internal/app/store/activity/store.go
package activity

import (
	"context"
	"time"

	"github.com/dalemusser/securenotes/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// HistoryLimit is how many events the activity page shows.
const HistoryLimit = 100

// Store is the append-only activity_log collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new activity Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("activity_log")}
}

// Append inserts one entry. It never updates existing rows.
func (s *Store) Append(ctx context.Context, e models.ActivityLogEntry) error {
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, e)
	return err
}

// ListByUser returns up to limit entries for userID, newest first.
func (s *Store) ListByUser(ctx context.Context, userID int64, limit int64) ([]models.ActivityLogEntry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)

	cur, err := s.c.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var entries []models.ActivityLogEntry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// CountByType counts entries of eventType since the given time. Operators use
// it to spot lockout and OTP failure spikes.
func (s *Store) CountByType(ctx context.Context, eventType string, since time.Time) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{
		"event_type": eventType,
		"created_at": bson.M{"$gte": since},
	})
}
