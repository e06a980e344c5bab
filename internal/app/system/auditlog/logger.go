// internal/app/system/auditlog/logger.go
package auditlog

// Terminology: User Identifiers
//   - UserID / userID / user_id: the numeric id (_id) of a users record
//   - Username: the identity shown in the activity history (the email)

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dalemusser/securenotes/internal/app/system/auth"
	"github.com/dalemusser/securenotes/internal/app/system/htmlsanitize"
	"github.com/dalemusser/securenotes/internal/app/system/network"
	"github.com/dalemusser/securenotes/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// MaxUserAgentLength bounds the stored client identification string.
const MaxUserAgentLength = 255

// Destinations, as configured by audit_mode.
const (
	ModeAll = "all" // MongoDB + zap
	ModeDB  = "db"  // MongoDB only
	ModeLog = "log" // zap only
	ModeOff = "off" // disabled
)

// Defaults applied by New when Config leaves a knob at zero.
const (
	DefaultBuffer         = 1024
	DefaultRetries        = 3
	DefaultRetryDelay     = 200 * time.Millisecond
	DefaultAttemptTimeout = 5 * time.Second
)

// ErrClosed is returned by Close when called twice.
var ErrClosed = errors.New("auditlog: logger already closed")

// Sink persists activity entries.
type Sink interface {
	Append(ctx context.Context, e models.ActivityLogEntry) error
}

// Recorder is what request flows depend on.
type Recorder interface {
	Record(src Source, ev Event)
}

// Source is the per-request context an event is attributed to.
type Source struct {
	IP        string
	UserAgent string
	UserID    int64  // from the authenticated session, 0 when none
	Username  string // from the authenticated session
}

// SourceFromRequest captures the client address (honoring forwarding headers
// only from trusted proxies), the user agent, and the authenticated identity
// placed in the context by auth.LoadSession.
func SourceFromRequest(r *http.Request, proxies *network.TrustedProxies) Source {
	src := Source{
		IP:        network.ClientIP(r, proxies),
		UserAgent: r.UserAgent(),
	}
	if st := auth.CurrentState(r); st.IsAuthenticated() {
		src.UserID = st.UserID
		src.Username = st.Username
	}
	return src
}

// Event is one auditable occurrence. Zero UserID and empty Username are filled
// from the Source.
type Event struct {
	Type     string
	UserID   int64
	Username string
	NoteID   *int64
	Details  string
}

// Config holds audit logging configuration.
type Config struct {
	// Mode controls the destination.
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Mode string
	// Buffer is the queue capacity between Record and the writer goroutine.
	Buffer int
	// Retries is the number of sink attempts per entry.
	Retries        int
	RetryDelay     time.Duration
	AttemptTimeout time.Duration
}

// Stats counts what happened to recorded entries.
type Stats struct {
	Enqueued uint64
	Written  uint64
	Dropped  uint64 // queue full or logger closed
	Failed   uint64 // retries exhausted
}

// Logger records activity entries asynchronously. Record never blocks the
// caller: entries go through a bounded queue to a single writer goroutine.
// Entries that cannot be queued or persisted are logged at warn/error with
// their full content and counted in Stats.
type Logger struct {
	sink   Sink
	zapLog *zap.Logger
	config Config

	queue chan models.ActivityLogEntry
	done  chan struct{}

	mu      sync.RWMutex
	closed  bool
	started bool

	enqueued atomic.Uint64
	written  atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64

	// Now stamps entries; tests replace it.
	Now func() time.Time
}

var _ Recorder = (*Logger)(nil)

// New creates a new audit Logger. Call Start to begin writing and Close to
// drain at shutdown.
func New(sink Sink, zapLog *zap.Logger, config Config) *Logger {
	if zapLog == nil {
		zapLog = zap.NewNop()
	}
	if config.Mode == "" {
		config.Mode = ModeAll
	}
	if config.Buffer <= 0 {
		config.Buffer = DefaultBuffer
	}
	if config.Retries <= 0 {
		config.Retries = DefaultRetries
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = DefaultRetryDelay
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = DefaultAttemptTimeout
	}
	return &Logger{
		sink:   sink,
		zapLog: zapLog,
		config: config,
		queue:  make(chan models.ActivityLogEntry, config.Buffer),
		done:   make(chan struct{}),
		Now:    time.Now,
	}
}

// Mode returns the effective destination mode.
func (l *Logger) Mode() string { return l.config.Mode }

// Start launches the writer goroutine. It is a no-op after the first call.
func (l *Logger) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.closed {
		return
	}
	l.started = true
	go l.run()
}

// Record builds an entry from src and ev and queues it.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
func (l *Logger) Record(src Source, ev Event) {
	if l == nil || l.config.Mode == ModeOff {
		return
	}

	entry := l.entry(src, ev)

	if l.config.Mode == ModeAll || l.config.Mode == ModeLog {
		l.logToZap(entry)
	}
	if l.config.Mode != ModeAll && l.config.Mode != ModeDB {
		return
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.drop(entry, "logger closed")
		return
	}
	select {
	case l.queue <- entry:
		l.enqueued.Add(1)
	default:
		l.drop(entry, "queue full")
	}
}

func (l *Logger) entry(src Source, ev Event) models.ActivityLogEntry {
	e := models.ActivityLogEntry{
		ID:        primitive.NewObjectID(),
		EventType: ev.Type,
		IPAddress: src.IP,
		UserAgent: htmlsanitize.PlainText(src.UserAgent, MaxUserAgentLength),
		NoteID:    ev.NoteID,
		CreatedAt: l.Now().UTC(),
	}
	if e.IPAddress == "" {
		e.IPAddress = network.Unknown
	}

	uid := ev.UserID
	if uid == 0 {
		uid = src.UserID
	}
	if uid != 0 {
		e.UserID = &uid
	}
	name := ev.Username
	if name == "" {
		name = src.Username
	}
	if name != "" {
		e.Username = &name
	}
	if ev.Details != "" {
		d := htmlsanitize.PlainText(ev.Details, 0)
		e.Details = &d
	}
	return e
}

func (l *Logger) run() {
	defer close(l.done)
	for e := range l.queue {
		l.write(e)
	}
}

// write appends e with bounded retries. Each entry carries its own _id, so a
// retry after an insert that did land reports a duplicate key, which counts
// as written.
func (l *Logger) write(e models.ActivityLogEntry) {
	var err error
	for attempt := 1; attempt <= l.config.Retries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), l.config.AttemptTimeout)
		err = l.sink.Append(ctx, e)
		cancel()
		if err == nil || wafflemongo.IsDup(err) {
			l.written.Add(1)
			return
		}
		if attempt < l.config.Retries {
			time.Sleep(l.config.RetryDelay * time.Duration(attempt))
		}
	}
	l.failed.Add(1)
	l.zapLog.Error("failed to store audit event",
		append(entryFields(e), zap.Int("attempts", l.config.Retries), zap.Error(err))...)
}

func (l *Logger) drop(e models.ActivityLogEntry, reason string) {
	l.dropped.Add(1)
	l.zapLog.Warn("audit event dropped",
		append(entryFields(e), zap.String("drop_reason", reason))...)
}

// Close stops accepting entries and waits for the queue to drain or ctx to
// end. The writer keeps draining in the background after ctx ends.
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.closed = true
	started := l.started
	close(l.queue)
	l.mu.Unlock()

	if !started {
		for e := range l.queue {
			l.drop(e, "logger never started")
		}
		return nil
	}

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		l.zapLog.Warn("audit queue not drained before shutdown", zap.Int("pending", len(l.queue)))
		return ctx.Err()
	}
}

// Stats returns a snapshot of the counters.
func (l *Logger) Stats() Stats {
	return Stats{
		Enqueued: l.enqueued.Load(),
		Written:  l.written.Load(),
		Dropped:  l.dropped.Load(),
		Failed:   l.failed.Load(),
	}
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(e models.ActivityLogEntry) {
	l.zapLog.Info("audit event", entryFields(e)...)
}

func entryFields(e models.ActivityLogEntry) []zap.Field {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("event_type", e.EventType),
		zap.String("ip", e.IPAddress),
		zap.String("user_agent", e.UserAgent),
		zap.Time("created_at", e.CreatedAt),
	}
	if e.UserID != nil {
		fields = append(fields, zap.Int64("user_id", *e.UserID))
	}
	if e.Username != nil {
		fields = append(fields, zap.String("username", *e.Username))
	}
	if e.NoteID != nil {
		fields = append(fields, zap.Int64("note_id", *e.NoteID))
	}
	if e.Details != nil {
		fields = append(fields, zap.String("details", *e.Details))
	}
	return fields
}
