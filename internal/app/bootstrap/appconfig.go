// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables (SECURENOTES_*), configuration
// files, or command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig
// handles ports, TLS, log level, CORS and body limits; everything about
// sign-in, sessions and auditing lives here.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Maximum connections in pool (default: 100)
	MongoMinPoolSize uint64 // Minimum connections to keep warm (default: 10)

	// Session management configuration
	SessionKey     string        // Secret for signing and encrypting sessions (must be strong in production)
	SessionName    string        // Cookie name (default: securenotes-session)
	SessionDomain  string        // Cookie domain (blank means current host)
	SessionBackend string        // cookie, mongo, or filesystem
	SessionDir     string        // Directory for the filesystem backend (blank means os.TempDir)
	SessionMaxAge  time.Duration // Absolute session lifetime (default: 12h)
	IdleTimeout    time.Duration // Inactivity before an authenticated session ends (default: 15m)

	// Brute-force protection
	MaxFails           int           // Consecutive failures that lock an email (default: 5)
	LockFor            time.Duration // Lock duration (default: 15m)
	LoginRatePerMinute int           // Per-IP login/verify POSTs refilled per minute (default: 20)
	LoginRateBurst     int           // Per-IP burst (default: 10)

	// Second factor
	OTPExpiry  time.Duration // Login code lifetime (default: 5m)
	BcryptCost int           // Password hashing cost (default: 12)

	// CSRF protection configuration
	CSRFKey string // Secret key for CSRF token signing (32 bytes, must be strong in production)

	// Client address resolution. Forwarding headers are honored only when
	// the direct peer falls inside one of these CIDRs.
	TrustedProxies []string

	// Audit logging: "all" (MongoDB + zap), "db", "log", or "off"
	AuditMode    string
	AuditBuffer  int // Queue capacity between requests and the writer
	AuditRetries int // Insert attempts per entry

	// Email delivery of login codes
	MailBackend  string        // smtp or log
	MailSMTPHost string        // SMTP server host (e.g., localhost for Mailpit)
	MailSMTPPort int           // SMTP server port (e.g., 1025 for Mailpit, 587 for submission)
	MailSMTPUser string        // SMTP username (empty for Mailpit)
	MailSMTPPass string        // SMTP password
	MailFrom     string        // From email address (e.g., noreply@example.com)
	MailFromName string        // From display name (e.g., SecureNotes)
	SMTPTimeout  time.Duration // Dial and send bound for one message

	// Base URL of the site, used in CSRF trusted origins
	BaseURL string
}
