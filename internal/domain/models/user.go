// internal/domain/models/user.go
package models

// Terminology: User Identifiers
//   - UserID / userID / user_id: the integer _id allocated from the "users" counter
//   - Email: what the user types to log in (stored trimmed and lowercase)

import "time"

// User is a registered account.
//
// EmailCI is the folded form of Email used for case-insensitive matching;
// it carries the unique index. PasswordHash is a bcrypt hash and is never
// rewritten by the auth flows.
type User struct {
	ID           int64     `bson:"_id" json:"id"`
	Email        string    `bson:"email" json:"email"`
	EmailCI      string    `bson:"email_ci" json:"-"`
	PasswordHash string    `bson:"password_hash" json:"-"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}
