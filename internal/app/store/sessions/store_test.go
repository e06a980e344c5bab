package sessionstore

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/securenotes/internal/testutil"
	"github.com/gorilla/sessions"
)

const testKey = "test-session-key-for-testing-1234567890"

func newStore(t *testing.T) *MongoStore {
	db := testutil.SetupTestDB(t)
	return NewMongoStore(db, sessions.Options{Path: "/", MaxAge: 3600, HttpOnly: true}, []byte(testKey))
}

// roundTrip saves values through one request and returns the cookie set.
func roundTrip(t *testing.T, s *MongoStore, values map[any]any) *http.Cookie {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	sess, err := s.Get(r, "sn")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	for k, v := range values {
		sess.Values[k] = v
	}
	if err := sess.Save(r, w); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("Save() set %d cookies, want 1", len(cookies))
	}
	return cookies[0]
}

func TestMongoStore_SaveAndLoad(t *testing.T) {
	s := newStore(t)
	cookie := roundTrip(t, s, map[any]any{"user_id": int64(42), "username": "a@b.com"})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookie)
	sess, err := s.Get(r, "sn")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if sess.IsNew {
		t.Error("IsNew = true for a stored session")
	}
	if got, _ := sess.Values["user_id"].(int64); got != 42 {
		t.Errorf("user_id = %v, want 42", sess.Values["user_id"])
	}
	if got, _ := sess.Values["username"].(string); got != "a@b.com" {
		t.Errorf("username = %v, want a@b.com", sess.Values["username"])
	}
}

func TestMongoStore_CookieCarriesOnlyID(t *testing.T) {
	s := newStore(t)
	cookie := roundTrip(t, s, map[any]any{"username": "secret@example.com"})

	if len(cookie.Value) == 0 {
		t.Fatal("empty cookie value")
	}
	// A large payload lives in the document, not the cookie.
	big := make([]byte, 2048)
	for i := range big {
		big[i] = 'x'
	}
	c2 := roundTrip(t, s, map[any]any{"blob": string(big)})
	if len(c2.Value) > 512 {
		t.Errorf("cookie length = %d, want only a signed id", len(c2.Value))
	}
}

func TestMongoStore_DeleteOnNegativeMaxAge(t *testing.T) {
	s := newStore(t)
	cookie := roundTrip(t, s, map[any]any{"user_id": int64(1)})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookie)
	w := httptest.NewRecorder()
	sess, err := s.Get(r, "sn")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// The old cookie no longer resolves to stored values.
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.AddCookie(cookie)
	sess2, err := s.Get(r2, "sn")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !sess2.IsNew || len(sess2.Values) != 0 {
		t.Errorf("deleted session still loads: IsNew=%v values=%v", sess2.IsNew, sess2.Values)
	}
}

func TestMongoStore_Regenerate(t *testing.T) {
	s := newStore(t)
	cookie := roundTrip(t, s, map[any]any{"user_id": int64(5)})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookie)
	w := httptest.NewRecorder()
	sess, err := s.Get(r, "sn")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	oldID := sess.ID
	if err := s.Regenerate(r, sess); err != nil {
		t.Fatalf("Regenerate() error = %v", err)
	}
	if err := sess.Save(r, w); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if sess.ID == oldID || sess.ID == "" {
		t.Errorf("ID after Regenerate = %q, old %q", sess.ID, oldID)
	}

	// The old id is gone.
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.AddCookie(cookie)
	old, err := s.Get(r2, "sn")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !old.IsNew {
		t.Error("old session id still resolves after Regenerate")
	}
}

func TestMongoStore_TamperedCookie(t *testing.T) {
	s := newStore(t)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "sn", Value: "not-a-valid-cookie"})
	sess, err := s.Get(r, "sn")
	if err == nil {
		t.Error("Get() with tampered cookie should return a decode error")
	}
	if sess == nil || !sess.IsNew {
		t.Error("Get() with tampered cookie should still return a new session")
	}
}
