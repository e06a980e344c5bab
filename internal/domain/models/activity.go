// internal/domain/models/activity.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ActivityLogEntry is one append-only audit row.
//
// UserID and Username are nil for events raised before anyone is signed in
// (for example a failed login for an unknown email). Details carries the
// reason tag for failure events.
type ActivityLogEntry struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	UserID    *int64             `bson:"user_id" json:"user_id,omitempty"`
	Username  *string            `bson:"username" json:"username,omitempty"`
	EventType string             `bson:"event_type" json:"event_type"`
	IPAddress string             `bson:"ip_address" json:"ip_address"`
	UserAgent string             `bson:"user_agent" json:"user_agent"`
	NoteID    *int64             `bson:"note_id,omitempty" json:"note_id,omitempty"`
	Details   *string            `bson:"details,omitempty" json:"details,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
