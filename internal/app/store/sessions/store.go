// internal/app/store/sessions/store.go
package sessionstore

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// defaultLifetime bounds documents whose cookie has no Max-Age (browser
// sessions); the TTL index removes them after this long.
const defaultLifetime = 24 * time.Hour

// record is one server-side session. Data holds the session values encoded
// with the store's securecookie codecs, the same format FilesystemStore
// writes to disk.
type record struct {
	ID        string    `bson:"_id"`
	Data      string    `bson:"data"`
	ExpiresAt time.Time `bson:"expires_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore is a gorilla sessions.Store that keeps session values in the
// "sessions" collection. The browser cookie holds only the signed session id.
type MongoStore struct {
	c       *mongo.Collection
	Codecs  []securecookie.Codec
	Options *sessions.Options
}

var _ sessions.Store = (*MongoStore)(nil)

// NewMongoStore returns a store using keyPairs for signing (and optionally
// encrypting) both the cookie and the stored values.
func NewMongoStore(db *mongo.Database, opts sessions.Options, keyPairs ...[]byte) *MongoStore {
	s := &MongoStore{
		c:       db.Collection("sessions"),
		Codecs:  securecookie.CodecsFromPairs(keyPairs...),
		Options: &opts,
	}
	s.MaxAge(opts.MaxAge)
	return s
}

// MaxAge sets the cookie and codec lifetime, as FilesystemStore.MaxAge does.
func (s *MongoStore) MaxAge(age int) {
	s.Options.MaxAge = age
	for _, codec := range s.Codecs {
		if sc, ok := codec.(*securecookie.SecureCookie); ok {
			sc.MaxAge(age)
		}
	}
}

// Get returns the session for name from the request registry.
func (s *MongoStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New loads the session named by the request cookie, or returns a fresh one.
// A cookie that points at a missing or expired document yields a new empty
// session rather than an error.
func (s *MongoStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.Options
	session.Options = &opts
	session.IsNew = true

	c, errCookie := r.Cookie(name)
	if errCookie != nil {
		return session, nil
	}
	if err := securecookie.DecodeMulti(name, c.Value, &session.ID, s.Codecs...); err != nil {
		session.ID = ""
		return session, err
	}

	found, err := s.load(r.Context(), session)
	if err != nil {
		return session, err
	}
	if !found {
		session.ID = ""
		return session, nil
	}
	session.IsNew = false
	return session, nil
}

// Save writes the session document and sets the id cookie. A negative
// MaxAge deletes the document and expires the cookie.
func (s *MongoStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	ctx := r.Context()

	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.delete(ctx, session.ID); err != nil {
				return err
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if err := s.save(ctx, session); err != nil {
		return err
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.Codecs...)
	if err != nil {
		return err
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

// Regenerate discards the stored document and clears the id so the next
// Save issues a new one. Values stay on the session.
func (s *MongoStore) Regenerate(r *http.Request, session *sessions.Session) error {
	if session.ID == "" {
		return nil
	}
	if err := s.delete(r.Context(), session.ID); err != nil {
		return err
	}
	session.ID = ""
	return nil
}

func (s *MongoStore) save(ctx context.Context, session *sessions.Session) error {
	data, err := securecookie.EncodeMulti(session.Name(), session.Values, s.Codecs...)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	lifetime := defaultLifetime
	if session.Options.MaxAge > 0 {
		lifetime = time.Duration(session.Options.MaxAge) * time.Second
	}

	_, err = s.c.UpdateOne(ctx,
		bson.M{"_id": session.ID},
		bson.M{"$set": bson.M{
			"data":       data,
			"expires_at": now.Add(lifetime),
			"updated_at": now,
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *MongoStore) load(ctx context.Context, session *sessions.Session) (bool, error) {
	var rec record
	err := s.c.FindOne(ctx, bson.M{
		"_id":        session.ID,
		"expires_at": bson.M{"$gt": time.Now().UTC()},
	}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := securecookie.DecodeMulti(session.Name(), rec.Data, &session.Values, s.Codecs...); err != nil {
		return false, err
	}
	return true, nil
}

func (s *MongoStore) delete(ctx context.Context, id string) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
