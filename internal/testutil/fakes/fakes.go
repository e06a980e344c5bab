// Package fakes holds in-memory implementations of the store, mailer and
// audit-sink interfaces so flow and handler tests run without MongoDB or SMTP.
package fakes

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/securenotes/internal/app/store/loginotp"
	userstore "github.com/dalemusser/securenotes/internal/app/store/users"
	"github.com/dalemusser/securenotes/internal/app/system/auditlog"
	"github.com/dalemusser/securenotes/internal/app/system/mailer"
	"github.com/dalemusser/securenotes/internal/app/system/normalize"
	"github.com/dalemusser/securenotes/internal/domain/models"
	"github.com/gorilla/sessions"
)

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock { return &Clock{now: start} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Users is an in-memory credential store.
type Users struct {
	mu     sync.Mutex
	byMail map[string]models.User
	nextID int64

	// Err, when set, is returned by every call.
	Err error
}

func NewUsers() *Users {
	return &Users{byMail: make(map[string]models.User)}
}

func (u *Users) FindByEmail(_ context.Context, email string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return nil, u.Err
	}
	usr, ok := u.byMail[normalize.Key(email)]
	if !ok {
		return nil, userstore.ErrNotFound
	}
	return &usr, nil
}

func (u *Users) Create(_ context.Context, email, passwordHash string) (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return 0, u.Err
	}
	email = normalize.Email(email)
	key := normalize.Key(email)
	if _, ok := u.byMail[key]; ok {
		return 0, userstore.ErrDuplicateEmail
	}
	u.nextID++
	u.byMail[key] = models.User{
		ID:           u.nextID,
		Email:        email,
		EmailCI:      key,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	return u.nextID, nil
}

// Put stores a user directly, replacing any existing row for the email.
func (u *Users) Put(usr models.User) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if usr.ID == 0 {
		u.nextID++
		usr.ID = u.nextID
	}
	u.byMail[normalize.Key(usr.Email)] = usr
}

// LockoutStore is an in-memory login_attempts collection keyed like the
// real one, by normalize.Key.
type LockoutStore struct {
	mu   sync.Mutex
	rows map[string]models.LoginAttempt
}

func NewLockoutStore() *LockoutStore {
	return &LockoutStore{rows: make(map[string]models.LoginAttempt)}
}

func (s *LockoutStore) Get(_ context.Context, email string) (*models.LoginAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[normalize.Key(email)]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *LockoutStore) IncrementFailure(_ context.Context, email string, maxFails int, lockUntil, now time.Time) (*models.LoginAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = normalize.Key(email)
	a := s.rows[email]
	a.Email = email
	a.FailCount++
	a.UpdatedAt = now
	if a.FailCount >= maxFails {
		lu := lockUntil
		a.LockedUntil = &lu
	}
	s.rows[email] = a
	return &a, nil
}

func (s *LockoutStore) Reset(_ context.Context, email string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = normalize.Key(email)
	if _, ok := s.rows[email]; !ok {
		return nil
	}
	s.rows[email] = models.LoginAttempt{Email: email, UpdatedAt: now}
	return nil
}

// OTPStore is an in-memory login_otps collection.
type OTPStore struct {
	mu     sync.Mutex
	rows   map[int64]models.LoginOTP
	nextID int64
}

func NewOTPStore() *OTPStore {
	return &OTPStore{rows: make(map[int64]models.LoginOTP)}
}

func (s *OTPStore) Insert(_ context.Context, userID int64, code string, expiresAt time.Time) (*models.LoginOTP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	o := models.LoginOTP{ID: s.nextID, UserID: userID, Code: code, ExpiresAt: expiresAt, CreatedAt: time.Now().UTC()}
	s.rows[o.ID] = o
	return &o, nil
}

func (s *OTPStore) Latest(_ context.Context, userID int64) (*models.LoginOTP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.LoginOTP
	for _, o := range s.rows {
		if o.UserID != userID {
			continue
		}
		if latest == nil || o.ID > latest.ID {
			cp := o
			latest = &cp
		}
	}
	if latest == nil {
		return nil, loginotp.ErrNotFound
	}
	return latest, nil
}

func (s *OTPStore) MarkUsed(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.rows[id]
	if !ok || o.Used {
		return false, nil
	}
	o.Used = true
	s.rows[id] = o
	return true, nil
}

func (s *OTPStore) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, o := range s.rows {
		if o.ExpiresAt.Before(cutoff) {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored codes.
func (s *OTPStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Mailer records sent messages and can be told to fail.
type Mailer struct {
	mu   sync.Mutex
	sent []mailer.Email

	// Err, when set, is returned by Send and nothing is recorded.
	Err error
}

func (m *Mailer) Send(_ context.Context, e mailer.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, e)
	return nil
}

// Sent returns a copy of the delivered messages.
func (m *Mailer) Sent() []mailer.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Email(nil), m.sent...)
}

// Last returns the most recent message, or false if none was sent.
func (m *Mailer) Last() (mailer.Email, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return mailer.Email{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// Sink is an in-memory audit sink.
type Sink struct {
	mu      sync.Mutex
	entries []models.ActivityLogEntry

	// FailTimes makes the next N Append calls return Err. A negative value
	// makes every call, reads included, return Err.
	FailTimes int
	Err       error
}

func (s *Sink) Append(_ context.Context, e models.ActivityLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailTimes < 0 {
		return s.Err
	}
	if s.FailTimes > 0 {
		s.FailTimes--
		return s.Err
	}
	s.entries = append(s.entries, e)
	return nil
}

// Entries returns the appended entries ordered by CreatedAt.
func (s *Sink) Entries() []models.ActivityLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]models.ActivityLogEntry(nil), s.entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ListByUser returns up to limit entries for userID, newest first.
func (s *Sink) ListByUser(_ context.Context, userID int64, limit int64) ([]models.ActivityLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil && s.FailTimes < 0 {
		return nil, s.Err
	}
	var out []models.ActivityLogEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.UserID == nil || *e.UserID != userID {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountByType counts entries of eventType created at or after since.
func (s *Sink) CountByType(_ context.Context, eventType string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil && s.FailTimes < 0 {
		return 0, s.Err
	}
	var n int64
	for _, e := range s.entries {
		if e.EventType == eventType && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// EventTypes returns the event types in append order.
func (s *Sink) EventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.EventType
	}
	return out
}

// Recorder captures audit events synchronously.
type Recorder struct {
	mu     sync.Mutex
	events []RecordedEvent
}

// RecordedEvent is one Record call.
type RecordedEvent struct {
	Source auditlog.Source
	Event  auditlog.Event
}

func (r *Recorder) Record(src auditlog.Source, ev auditlog.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, RecordedEvent{Source: src, Event: ev})
}

func (r *Recorder) Events() []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedEvent(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Event.Type
	}
	return out
}

// Last returns the most recent event.
func (r *Recorder) Last() (RecordedEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return RecordedEvent{}, false
	}
	return r.events[len(r.events)-1], true
}

// SessionStore wraps a real session store and can be told to fail saves.
type SessionStore struct {
	Inner sessions.Store

	mu      sync.Mutex
	saveErr error
}

// FailSaves makes every later Save return err; nil restores saving.
func (s *SessionStore) FailSaves(err error) {
	s.mu.Lock()
	s.saveErr = err
	s.mu.Unlock()
}

func (s *SessionStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New decodes through Inner and rebinds the session to s so that
// Session.Save comes back here.
func (s *SessionStore) New(r *http.Request, name string) (*sessions.Session, error) {
	inner, err := s.Inner.New(r, name)
	sess := sessions.NewSession(s, name)
	sess.IsNew = true
	if inner != nil {
		sess.ID = inner.ID
		sess.Values = inner.Values
		sess.Options = inner.Options
		sess.IsNew = inner.IsNew
	}
	return sess, err
}

func (s *SessionStore) Save(r *http.Request, w http.ResponseWriter, sess *sessions.Session) error {
	s.mu.Lock()
	err := s.saveErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Inner.Save(r, w, sess)
}
