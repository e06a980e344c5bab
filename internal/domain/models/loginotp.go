// internal/domain/models/loginotp.go
package models

import "time"

// LoginOTP is one emailed second-factor code.
//
// IDs increase monotonically per collection, so the row with the highest ID
// for a user is the only one a verification considers. Used flips to true at
// most once.
type LoginOTP struct {
	ID        int64     `bson:"_id"`
	UserID    int64     `bson:"user_id"`
	Code      string    `bson:"otp_code"`
	ExpiresAt time.Time `bson:"expires_at"`
	Used      bool      `bson:"used"`
	CreatedAt time.Time `bson:"created_at"`
}
