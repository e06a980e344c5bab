// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called from EnsureSchema at startup and by testutil.SetupTestDB.
Each ensure* function is idempotent. Problems are aggregated so every broken
collection is reported at once and startup fails fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	if err := ensureUsers(ctx, db); err != nil {
		problems = append(problems, "users: "+err.Error())
	}
	if err := ensureLoginAttempts(ctx, db); err != nil {
		problems = append(problems, "login_attempts: "+err.Error())
	}
	if err := ensureLoginOTPs(ctx, db); err != nil {
		problems = append(problems, "login_otps: "+err.Error())
	}
	if err := ensureActivityLog(ctx, db); err != nil {
		problems = append(problems, "activity_log: "+err.Error())
	}
	if err := ensureSessions(ctx, db); err != nil {
		problems = append(problems, "sessions: "+err.Error())
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// indexSpec is the part of an index definition we reconcile. It decodes
// from listIndexes output and is built from the desired IndexModel.
type indexSpec struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique bool   `bson:"unique,omitempty"`
	Sparse bool   `bson:"sparse,omitempty"`
	TTL    *int64 `bson:"expireAfterSeconds,omitempty"`
}

func specOf(m mongo.IndexModel) indexSpec {
	spec := indexSpec{Key: m.Keys.(bson.D)}
	if o := m.Options; o != nil {
		if o.Name != nil {
			spec.Name = *o.Name
		}
		spec.Unique = o.Unique != nil && *o.Unique
		spec.Sparse = o.Sparse != nil && *o.Sparse
		if o.ExpireAfterSeconds != nil {
			ttl := int64(*o.ExpireAfterSeconds)
			spec.TTL = &ttl
		}
	}
	return spec
}

// keySig renders a key pattern as "field:dir, ..." so that int32, int64
// and double directions compare equal.
func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

// sameOptions reports whether an existing index can stand in for want.
// Names are not compared.
func (s indexSpec) sameOptions(want indexSpec) bool {
	if s.Unique != want.Unique || s.Sparse != want.Sparse {
		return false
	}
	switch {
	case s.TTL == nil && want.TTL == nil:
		return true
	case s.TTL == nil || want.TTL == nil:
		return false
	default:
		return *s.TTL == *want.TTL
	}
}

// existingIndexes maps key signature to index for coll.
func existingIndexes(ctx context.Context, coll *mongo.Collection) (map[string]indexSpec, error) {
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	var specs []indexSpec
	if err := cur.All(ctx, &specs); err != nil {
		return nil, err
	}
	out := make(map[string]indexSpec, len(specs))
	for _, s := range specs {
		out[keySig(s.Key)] = s
	}
	return out, nil
}

// ensureIndexSet creates each model that is missing and drops and recreates
// any whose unique, sparse or TTL options have drifted.
func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	existing, err := existingIndexes(ctx, coll)
	if err != nil {
		// Fall through to CreateOne, which is idempotent for identical specs.
		zap.L().Warn("list indexes failed", zap.String("collection", coll.Name()), zap.Error(err))
	}

	var errs []string
	for _, m := range models {
		want := specOf(m)
		sig := keySig(want.Key)
		log := zap.L().With(
			zap.String("collection", coll.Name()),
			zap.String("name", want.Name),
			zap.String("keys", sig))

		if have, ok := existing[sig]; ok {
			if have.sameOptions(want) {
				log.Debug("index up to date")
				continue
			}
			if _, err := coll.Indexes().DropOne(ctx, have.Name); err != nil {
				log.Warn("drop drifted index failed", zap.String("existing", have.Name), zap.Error(err))
				errs = append(errs, fmt.Sprintf("%s(%s): drop %s: %v", coll.Name(), want.Name, have.Name, err))
				continue
			}
			log.Info("dropped drifted index", zap.String("existing", have.Name))
		}

		start := time.Now()
		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			log.Warn("create index failed", zap.Error(err))
			if want.Unique && wafflemongo.IsDup(err) {
				errs = append(errs, fmt.Sprintf("%s(%s): duplicates prevent unique index", coll.Name(), want.Name))
			} else {
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), want.Name, err))
			}
			continue
		}
		log.Info("index created", zap.Duration("took", time.Since(start)))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

func ensureUsers(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("users")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// One account per folded email; registration relies on this to report conflicts.
		{
			Keys:    bson.D{{Key: "email_ci", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_users_email_ci"),
		},
	})
}

func ensureLoginAttempts(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("login_attempts")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Currently locked emails, for operators.
		{
			Keys:    bson.D{{Key: "locked_until", Value: 1}},
			Options: options.Index().SetSparse(true).SetName("idx_login_attempts_locked_until"),
		},
	})
}

func ensureLoginOTPs(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("login_otps")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Latest code for a user.
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "_id", Value: -1},
			},
			Options: options.Index().SetName("idx_login_otps_user_latest"),
		},
		// Retention sweep.
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("idx_login_otps_expires"),
		},
	})
}

func ensureActivityLog(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("activity_log")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// History for one user, newest first.
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_activity_user_created"),
		},
		// Forensic queries by event type.
		{
			Keys: bson.D{
				{Key: "event_type", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_activity_type_created"),
		},
	})
}

func ensureSessions(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("sessions")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Server-side sessions expire on their own.
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_sessions_ttl"),
		},
	})
}
