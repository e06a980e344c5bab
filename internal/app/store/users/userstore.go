// internal/app/store/users/userstore.go
package userstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/securenotes/internal/app/store/counters"
	"github.com/dalemusser/securenotes/internal/app/system/normalize"
	"github.com/dalemusser/securenotes/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned by Create when the folded email is already taken.
	ErrDuplicateEmail = errors.New("a user with this email already exists")
)

type Store struct {
	c   *mongo.Collection
	seq *counters.Store
}

func New(db *mongo.Database) *Store {
	return &Store{
		c:   db.Collection("users"),
		seq: counters.New(db),
	}
}

// FindByEmail looks up a user by the folded email, ignoring case and accents.
func (s *Store) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.c.FindOne(ctx, bson.M{"email_ci": normalize.Key(email)}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID loads a user by id.
func (s *Store) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a user and returns its id. Uniqueness is enforced by the
// email_ci index, so two racing registrations for the same address produce
// exactly one user and one ErrDuplicateEmail.
func (s *Store) Create(ctx context.Context, email, passwordHash string) (int64, error) {
	email = normalize.Email(email)

	id, err := s.seq.Next(ctx, counters.SeqUsers)
	if err != nil {
		return 0, fmt.Errorf("allocate user id: %w", err)
	}

	u := models.User{
		ID:           id,
		Email:        email,
		EmailCI:      normalize.Key(email),
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return 0, ErrDuplicateEmail
		}
		return 0, err
	}
	return id, nil
}
