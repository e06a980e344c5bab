// Package testutil connects store tests to a throwaway MongoDB database.
// Tests skip when no server is reachable; flow and handler tests use the
// in-memory doubles in testutil/fakes instead.
package testutil

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/securenotes/internal/app/system/indexes"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoURIEnv overrides the server the store tests connect to.
const MongoURIEnv = "SECURENOTES_TEST_MONGO_URI"

const (
	defaultURI = "mongodb://localhost:27017"
	dbPrefix   = "snt_"
	// Database names are capped at 63 bytes; prefix + name + "_" + 8 hex.
	maxNamePart = 63 - len(dbPrefix) - 9
)

var shared = struct {
	once   sync.Once
	client *mongo.Client
	err    error
}{}

func connect() (*mongo.Client, error) {
	shared.once.Do(func() {
		uri := os.Getenv(MongoURIEnv)
		if uri == "" {
			uri = defaultURI
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		opts := options.Client().
			ApplyURI(uri).
			SetMaxPoolSize(100).
			SetServerSelectionTimeout(2 * time.Second)
		c, err := mongo.Connect(ctx, opts)
		if err == nil {
			err = c.Ping(ctx, nil)
		}
		shared.client, shared.err = c, err
	})
	return shared.client, shared.err
}

// SetupTestDB returns an empty database with the production indexes in
// place. It is dropped when t finishes.
func SetupTestDB(t *testing.T) *mongo.Database {
	t.Helper()

	c, err := connect()
	if err != nil {
		t.Skipf("mongo unavailable (%s): %v", MongoURIEnv, err)
	}

	db := c.Database(dbName(t.Name()))
	ctx, cancel := TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := TestContext()
		defer cancel()
		if err := db.Drop(ctx); err != nil {
			t.Logf("drop %s: %v", db.Name(), err)
		}
	})
	return db
}

// dbName derives a unique database name from a test name. The random
// suffix keeps reruns and -count=N from colliding.
func dbName(testName string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, testName)
	if len(clean) > maxNamePart {
		clean = clean[:maxNamePart]
	}
	return dbPrefix + clean + "_" + uuid.NewString()[:8]
}

// TestContext bounds a single test's database calls.
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 20*time.Second)
}
